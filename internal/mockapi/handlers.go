// handlers.go — REST endpoints ресурсов: список, чтение, создание, изменение,
// мягкое удаление, восстановление, справочник choices.
package mockapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Параметры пагинации DRF.
const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// handler — обработчики одного ресурса.
type handler struct {
	store    *Store
	resource string
	sc       *schema
	logger   *slog.Logger
}

// routes регистрирует endpoints ресурса внутри /api/<resource>.
func (h *handler) routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/export/", h.export)
	r.Post("/import/", h.importCSV)
	if h.sc.choices != "" {
		r.Get("/choices/", h.choices)
	}
	r.Get("/{id}/", h.get)
	r.Patch("/{id}/", h.update(true))
	r.Put("/{id}/", h.update(false))
	r.Delete("/{id}/", h.delete)
	r.Post("/{id}/restore/", h.restore)
}

// paramsOf читает параметры выборки из query string.
func (h *handler) paramsOf(q url.Values) listParams {
	p := listParams{
		Query:          q.Get("q"),
		Ordering:       q.Get("ordering"),
		IncludeDeleted: q.Get("include_deleted") == "1",
		Filters:        make(map[string]string),
	}
	for _, name := range h.sc.filters {
		if v := q.Get(name); v != "" {
			p.Filters[name] = v
		}
	}
	return p
}

// list — GET /api/<resource>/.
// Ответ — {count, next, previous, results} или массив для ресурсов без пагинации.
func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows := h.store.List(h.resource, h.paramsOf(q))

	if !h.sc.paginated {
		writeJSON(w, http.StatusOK, rows)
		return
	}

	size := intParam(q, "page_size", defaultPageSize)
	if size < 1 {
		size = defaultPageSize
	}
	size = min(size, maxPageSize)

	page := intParam(q, "page", 1)
	pages := max((len(rows)+size-1)/size, 1)
	if page < 1 || page > pages {
		writeDetail(w, http.StatusNotFound, tr(r.Context(), "pagination.invalid_page"))
		return
	}

	start := (page - 1) * size
	end := min(start+size, len(rows))

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(rows),
		"next":     pageLink(r, page+1, page < pages),
		"previous": pageLink(r, page-1, page > 1),
		"results":  rows[start:end],
	})
}

// get — GET /api/<resource>/{id}/.
func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	rec, err := h.store.Get(h.resource, id, r.URL.Query().Get("include_deleted") == "1")
	if err != nil {
		notFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// create — POST /api/<resource>/.
func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeInput(w, r)
	if !ok {
		return
	}
	rec, err := h.store.Create(r.Context(), h.resource, input, userFromContext(r.Context()).Email)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.logger.Info("Запись создана", slog.String("resource", h.resource), slog.Int64("id", rec.id()))
	writeJSON(w, http.StatusCreated, rec)
}

// update — PATCH (partial) и PUT /api/<resource>/{id}/.
func (h *handler) update(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		input, ok := decodeInput(w, r)
		if !ok {
			return
		}
		rec, err := h.store.Update(r.Context(), h.resource, id, input, partial, userFromContext(r.Context()).Email)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// delete — DELETE /api/<resource>/{id}/ (мягкое удаление).
func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(h.resource, id, userFromContext(r.Context()).Email); err != nil {
		notFound(w, r)
		return
	}
	h.logger.Info("Запись удалена", slog.String("resource", h.resource), slog.Int64("id", id))
	w.WriteHeader(http.StatusNoContent)
}

// restore — POST /api/<resource>/{id}/restore/.
func (h *handler) restore(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	rec, err := h.store.Restore(h.resource, id, userFromContext(r.Context()).Email)
	if err != nil {
		notFound(w, r)
		return
	}
	h.logger.Info("Запись восстановлена", slog.String("resource", h.resource), slog.Int64("id", id))
	writeJSON(w, http.StatusOK, rec)
}

// choices — GET /api/<resource>/choices/ (массив без пагинации).
func (h *handler) choices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Choices(h.resource))
}

func (h *handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *validationError
	switch {
	case errors.As(err, &ve):
		writeFieldErrors(w, ve.fields)
	case errors.Is(err, ErrNotFound):
		notFound(w, r)
	default:
		h.logger.Error("Ошибка хранилища", slog.String("error", err.Error()))
		writeDetail(w, http.StatusInternalServerError, tr(r.Context(), "error.generic"))
	}
}

// decodeInput читает JSON-объект тела запроса; числа сохраняются как json.Number.
func decodeInput(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var input map[string]any
	if err := dec.Decode(&input); err != nil || input == nil {
		writeDetail(w, http.StatusBadRequest, tr(r.Context(), "error.bad_json"))
		return nil, false
	}
	return input, true
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		notFound(w, r)
		return 0, false
	}
	return id, true
}

func intParam(q url.Values, name string, def int) int {
	v := q.Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// pageLink строит абсолютную ссылку на страницу; nil, если страницы нет.
func pageLink(r *http.Request, page int, exists bool) any {
	if !exists {
		return nil
	}
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(page))

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.Path + "?" + q.Encode()
}
