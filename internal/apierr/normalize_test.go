package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/mdclient/internal/i18n"
)

func apiError(status int, data any) *Error {
	return &Error{Status: status, Data: data, Message: requestFailed}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		data any
		want Payload
	}{
		{
			name: "ошибки по полям",
			data: map[string]any{"email": []any{"required"}, "tel_number": []any{"bad", "short"}},
			want: FieldErrors{"email": {"required"}, "tel_number": {"bad", "short"}},
		},
		{
			name: "detail",
			data: map[string]any{"detail": "Not found."},
			want: Detail("Not found."),
		},
		{
			name: "non_field_errors",
			data: map[string]any{"non_field_errors": []any{"a", "b"}},
			want: NonFieldErrors{"a", "b"},
		},
		{
			name: "пустой список не считается полем",
			data: map[string]any{"email": []any{}},
			want: Opaque{Value: map[string]any{"email": []any{}}},
		},
		{
			name: "список не из строк",
			data: map[string]any{"items": []any{map[string]any{"x": []any{"y"}}}},
			want: Opaque{Value: map[string]any{"items": []any{map[string]any{"x": []any{"y"}}}}},
		},
		{
			name: "текст",
			data: "<html>oops</html>",
			want: Opaque{Value: "<html>oops</html>"},
		},
		{
			name: "nil",
			data: nil,
			want: Opaque{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.data))
		})
	}
}

func TestNormalize_FieldErrorsWinOverDetail(t *testing.T) {
	n := NewNormalizer(i18n.NewLocalizer(nil, "en"))

	err := apiError(http.StatusBadRequest, map[string]any{
		"detail":       "something else",
		"partner_name": []any{"required"},
	})

	got := n.Normalize(err)
	assert.Equal(t, "Please correct the highlighted fields", got.Message)
	assert.Equal(t, FieldErrors{"partner_name": {"required"}}, got.FieldErrors)
	assert.True(t, got.HasFieldErrors())
	assert.Same(t, err, got.Cause)
}

func TestNormalize_FieldErrorsCarryNonField(t *testing.T) {
	n := NewNormalizer(i18n.NewLocalizer(nil, "ja"))

	got := n.Normalize(apiError(http.StatusBadRequest, map[string]any{
		"email":            []any{"invalid"},
		"non_field_errors": []any{"duplicate row"},
	}))

	assert.Equal(t, "入力項目に誤りがあります", got.Message)
	assert.Equal(t, FieldErrors{"email": {"invalid"}}, got.FieldErrors)
	assert.Equal(t, []string{"duplicate row"}, got.NonField)
}

func TestNormalize_Order(t *testing.T) {
	n := NewNormalizer(i18n.NewLocalizer(nil, "en"))

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"detail", apiError(http.StatusForbidden, map[string]any{"detail": "Forbidden here"}), "Forbidden here"},
		{"non_field_errors", apiError(http.StatusBadRequest, map[string]any{"non_field_errors": []any{"one", "two"}}), "one\ntwo"},
		{"текст ответа", &Error{Status: 500, Data: "boom", Message: "boom"}, "boom"},
		{"Request failed локализуется", apiError(http.StatusInternalServerError, nil), "Request failed"},
		{"обычная ошибка", errors.New("disk full"), "disk full"},
		{"обёрнутая ошибка backend", fmt.Errorf("сохранение: %w", apiError(400, map[string]any{"detail": "bad"})), "bad"},
		{"сеть", fmt.Errorf("%w: dial tcp: refused", ErrTransport), "Could not reach the server"},
		{"nil", nil, "An error occurred"},
		{"пустой текст", errors.New(""), "An error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.err)
			assert.Equal(t, tt.want, got.Message)
			assert.Nil(t, got.FieldErrors)
		})
	}
}

func TestNormalize_NilNormalizer(t *testing.T) {
	var n *Normalizer
	got := n.Normalize(errors.New("x"))
	assert.Equal(t, "x", got.Message)
}

func TestFromResponse(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantMsg     string
		wantData    any
	}{
		{"json detail", "application/json", `{"detail":"Not found."}`, "Not found.", map[string]any{"detail": "Not found."}},
		{"json поля", "application/json; charset=utf-8", `{"email":["bad"]}`, requestFailed, map[string]any{"email": []any{"bad"}}},
		{"текст", "text/html", "Server Error", "Server Error", "Server Error"},
		{"пусто", "", "", requestFailed, nil},
		{"битый json", "application/json", "{", "{", "{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			if tt.contentType != "" {
				rec.Header().Set("Content-Type", tt.contentType)
			}
			rec.WriteHeader(http.StatusBadRequest)
			rec.WriteString(tt.body)

			got := FromResponse(rec.Result())
			require.NotNil(t, got)
			assert.Equal(t, http.StatusBadRequest, got.Status)
			assert.Equal(t, tt.wantMsg, got.Message)
			assert.Equal(t, tt.wantData, got.Data)
		})
	}
}

func TestIsStatus(t *testing.T) {
	err := fmt.Errorf("обёртка: %w", apiError(http.StatusNotFound, nil))
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.False(t, IsStatus(err, http.StatusBadRequest))
	assert.False(t, IsStatus(errors.New("x"), http.StatusNotFound))
}

func TestFieldErrors_Fields(t *testing.T) {
	fe := FieldErrors{"b": {"x"}, "a": {"y"}}
	assert.Equal(t, []string{"a", "b"}, fe.Fields())
}
