// errors.go — ответы с ошибками в формате Django REST Framework.
// Варианты тела: {"detail": "..."}, {"field": ["..."]}, {"non_field_errors": ["..."]}.
package mockapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/bigkaa/mdclient/internal/i18n"
)

// fieldErrors — ошибки валидации: поле → сообщения.
type fieldErrors map[string][]string

func (fe fieldErrors) add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// nonFieldKey — ключ ошибок, не привязанных к полю.
const nonFieldKey = "non_field_errors"

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeDetail записывает {"detail": msg}.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeFieldErrors — 400 с ошибками по полям.
func writeFieldErrors(w http.ResponseWriter, fe fieldErrors) {
	writeJSON(w, http.StatusBadRequest, fe)
}

// notFound — 404 {"detail": "Not found."} на языке запроса.
func notFound(w http.ResponseWriter, r *http.Request) {
	writeDetail(w, http.StatusNotFound, tr(r.Context(), "not_found"))
}

// tr переводит ключ на язык запроса.
func tr(ctx context.Context, key string, args ...any) string {
	return i18n.Default().Translatef(i18n.LangFromContext(ctx), key, args...)
}
