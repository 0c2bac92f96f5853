// classify.go — разбор тел ошибок DRF в тегированное объединение.
package apierr

import "sort"

// Ключи тела ошибки DRF, не являющиеся полями записи.
const (
	keyDetail         = "detail"
	keyNonFieldErrors = "non_field_errors"
)

// Payload — известные варианты тела ошибки backend.
// Реализации: FieldErrors, Detail, NonFieldErrors, Opaque.
type Payload interface {
	payload()
}

// FieldErrors — ошибки валидации по полям: поле → сообщения.
type FieldErrors map[string][]string

// Detail — одиночное сообщение {"detail": "..."}.
type Detail string

// NonFieldErrors — {"non_field_errors": [...]}.
type NonFieldErrors []string

// Opaque — тело, не подходящее ни под один известный вариант.
type Opaque struct {
	Value any
}

func (FieldErrors) payload()    {}
func (Detail) payload()         {}
func (NonFieldErrors) payload() {}
func (Opaque) payload()         {}

// Fields возвращает имена полей в алфавитном порядке.
func (fe FieldErrors) Fields() []string {
	names := make([]string, 0, len(fe))
	for name := range fe {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Classify определяет вариант тела ошибки. Порядок проверки:
// поля → detail → non_field_errors → opaque.
// Полем считается ключ с непустым списком строк; detail и non_field_errors полями не являются.
func Classify(data any) Payload {
	obj, ok := data.(map[string]any)
	if !ok {
		return Opaque{Value: data}
	}

	if fe := fieldErrorsOf(obj); len(fe) > 0 {
		return fe
	}

	if detail, ok := obj[keyDetail].(string); ok {
		return Detail(detail)
	}

	if nfe, ok := stringList(obj[keyNonFieldErrors]); ok {
		return NonFieldErrors(nfe)
	}

	return Opaque{Value: data}
}

// nonFieldOf возвращает non_field_errors, если они есть в теле.
func nonFieldOf(data any) []string {
	obj, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	list, _ := stringList(obj[keyNonFieldErrors])
	return list
}

func fieldErrorsOf(obj map[string]any) FieldErrors {
	fe := make(FieldErrors)
	for key, val := range obj {
		if key == keyDetail || key == keyNonFieldErrors {
			continue
		}
		if list, ok := stringList(val); ok {
			fe[key] = list
		}
	}
	return fe
}

// stringList приводит значение к непустому списку строк.
func stringList(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
