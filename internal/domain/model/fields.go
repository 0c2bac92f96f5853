// Package model — записи master-data и буферы их редактирования.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrUnknownField — у буфера нет такого поля.
	ErrUnknownField = errors.New("неизвестное поле")
	// ErrInvalidValue — значение не подходит для поля.
	ErrInvalidValue = errors.New("недопустимое значение поля")
)

// fieldKind — вид значения поля буфера.
type fieldKind int

const (
	kindText fieldKind = iota
	kindChoice
	kindDecimal
	kindRef
)

// fieldSpec описывает одно строковое поле буфера B.
type fieldSpec[B any] struct {
	name    string
	ref     func(b *B) *string
	kind    fieldKind
	choices []string
}

// fieldTable — упорядоченный набор полей буфера.
type fieldTable[B any] []fieldSpec[B]

func (t fieldTable[B]) names() []string {
	out := make([]string, len(t))
	for i, f := range t {
		out[i] = f.name
	}
	return out
}

func (t fieldTable[B]) lookup(name string) (fieldSpec[B], bool) {
	i := slices.IndexFunc(t, func(f fieldSpec[B]) bool { return f.name == name })
	if i < 0 {
		return fieldSpec[B]{}, false
	}
	return t[i], true
}

func (t fieldTable[B]) get(b *B, name string) (string, bool) {
	f, ok := t.lookup(name)
	if !ok {
		return "", false
	}
	return *f.ref(b), true
}

// set проверяет вид значения и записывает его в поле.
// Пустая строка допустима для любого поля: обязательность проверяет сервер.
func (t fieldTable[B]) set(b *B, name, value string) error {
	f, ok := t.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}

	value = strings.TrimSpace(value)
	if value != "" {
		switch f.kind {
		case kindChoice:
			if !slices.Contains(f.choices, value) {
				return fmt.Errorf("%w: %s=%q, допустимо: %s", ErrInvalidValue, name, value, strings.Join(f.choices, ", "))
			}
		case kindDecimal:
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				return fmt.Errorf("%w: %s=%q не число", ErrInvalidValue, name, value)
			}
		case kindRef:
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				return fmt.Errorf("%w: %s=%q не идентификатор", ErrInvalidValue, name, value)
			}
		}
	}

	*f.ref(b) = value
	return nil
}

// nullable превращает пустую строку в JSON null.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// decimal превращает строку в число JSON; пустая строка — null.
func decimal(s string) *json.Number {
	if s == "" {
		return nil
	}
	n := json.Number(s)
	return &n
}

// ref превращает строку идентификатора в число; пустая строка — null.
func ref(s string) *int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// refString — обратное преобразование для заполнения буфера.
func refString(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
