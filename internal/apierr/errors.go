// Пакет apierr — ошибки обращения к backend и их нормализация
// в единый вид для показа пользователю.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// ErrTransport — ответ от backend не получен (сеть, DNS, TLS, таймаут).
var ErrTransport = errors.New("backend недоступен")

// Error — неуспешный HTTP-ответ backend (статус вне 2xx).
type Error struct {
	// Status — HTTP статус-код.
	Status int
	// Data — разобранное тело: JSON-значение или текст.
	Data any
	// Message — лучшее человекочитаемое описание (detail, текст тела или "Request failed").
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// Payload возвращает тело ответа для классификации.
func (e *Error) Payload() any {
	return e.Data
}

// requestFailed — сообщение, когда тело не содержит ничего полезного.
const requestFailed = "Request failed"

// FromResponse читает тело неуспешного ответа и строит *Error.
// Тело JSON разбирается в any, иначе сохраняется как строка.
// Закрывает resp.Body.
func FromResponse(resp *http.Response) *Error {
	defer resp.Body.Close()

	data := ReadBody(resp)

	msg := requestFailed
	switch v := data.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			msg = s
		}
	case map[string]any:
		if detail, ok := v["detail"].(string); ok && detail != "" {
			msg = detail
		}
	}

	return &Error{Status: resp.StatusCode, Data: data, Message: msg}
}

// ReadBody читает тело ответа: JSON → any, иначе текст.
// Некорректный JSON при JSON content-type возвращается как текст.
func ReadBody(resp *http.Response) any {
	raw, err := io.ReadAll(resp.Body)
	if err != nil || len(raw) == 0 {
		return nil
	}

	if IsJSON(resp.Header.Get("Content-Type")) {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}

// IsJSON сообщает, является ли content-type JSON-типом.
func IsJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// IsStatus сообщает, является ли err ответом backend с указанным статусом.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}
