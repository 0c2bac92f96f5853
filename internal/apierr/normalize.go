// normalize.go — приведение любой ошибки к виду {message, fieldErrors, cause}.
package apierr

import (
	"errors"
	"strings"

	"github.com/bigkaa/mdclient/internal/i18n"
)

// Normalized — ошибка в едином виде для показа пользователю.
type Normalized struct {
	// Message — общее сообщение (баннер/уведомление).
	Message string
	// FieldErrors — ошибки по полям, nil если их нет.
	FieldErrors FieldErrors
	// NonField — сообщения, не привязанные к полю (только вместе с FieldErrors).
	NonField []string
	// Cause — исходная ошибка.
	Cause error
}

// HasFieldErrors сообщает, есть ли ошибки по полям.
func (n Normalized) HasFieldErrors() bool {
	return len(n.FieldErrors) > 0
}

// payloadCarrier — ошибка, несущая тело ответа backend.
type payloadCarrier interface {
	Payload() any
}

// Normalizer локализует общие сообщения.
type Normalizer struct {
	loc i18n.Localizer
}

// NewNormalizer создаёт нормализатор с указанным локализатором.
func NewNormalizer(loc i18n.Localizer) *Normalizer {
	return &Normalizer{loc: loc}
}

// Localizer возвращает локализатор нормализатора.
func (n *Normalizer) Localizer() i18n.Localizer {
	if n == nil {
		return i18n.Localizer{}
	}
	return n.loc
}

// Normalize классифицирует ошибку; первое совпадение побеждает:
//  1. тело с ошибками по полям → общее "ошибка валидации" + FieldErrors;
//  2. detail → его текст;
//  3. non_field_errors → сообщения через перевод строки;
//  4. ошибка с текстом → этот текст (сетевые ошибки — локализованное сообщение);
//  5. иначе общее сообщение.
func (n *Normalizer) Normalize(err error) Normalized {
	loc := n.Localizer()
	out := Normalized{Cause: err}

	var carrier payloadCarrier
	if errors.As(err, &carrier) {
		switch p := Classify(carrier.Payload()).(type) {
		case FieldErrors:
			out.Message = loc.T("error.validation")
			out.FieldErrors = p
			out.NonField = nonFieldOf(carrier.Payload())
			return out
		case Detail:
			if msg := strings.TrimSpace(string(p)); msg != "" {
				out.Message = msg
				return out
			}
		case NonFieldErrors:
			out.Message = strings.Join(p, "\n")
			return out
		}
	}

	switch {
	case err == nil:
		out.Message = loc.T("error.generic")
	case errors.Is(err, ErrTransport):
		out.Message = loc.T("error.transport")
	default:
		out.Message = messageOf(err, loc)
	}
	return out
}

// messageOf возвращает текст ошибки; для *Error — его Message,
// непереведённый "Request failed" локализуется.
func messageOf(err error, loc i18n.Localizer) string {
	msg := err.Error()

	var apiErr *Error
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
		if msg == requestFailed {
			msg = loc.T("error.request_failed")
		}
	}

	if strings.TrimSpace(msg) == "" {
		return loc.T("error.generic")
	}
	return msg
}
