package mockapi

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/mdclient/internal/domain/model"
)

// valueKind — вид значения поля.
type valueKind int

const (
	valueText valueKind = iota
	valueEmail
	valueDigits
	valueChoice
	valueDecimal
	valueInt
	valueRef
)

var (
	emailRe  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	digitsRe = regexp.MustCompile(`^[0-9\-]+$`)
)

// field — описание поля ресурса.
type field struct {
	name string
	// header — заголовок колонки CSV.
	header   string
	kind     valueKind
	required bool
	maxLen   int
	choices  []string
	def      any
	// refTo — ресурс, на который ссылается valueRef.
	refTo string
}

// schema — описание ресурса mock backend.
type schema struct {
	name     string
	fields   []field
	search   []string
	ordering []string
	// defaultOrder — сортировка без параметра ordering.
	defaultOrder string
	filters      []string
	// unique — наборы полей, уникальные в пределах ресурса.
	unique [][]string
	// paginated=false — список отдаётся массивом без конверта.
	paginated bool
	// choices — доступен GET choices/ (id + поле названия).
	choices string
	// onCreate заполняет поля, назначаемые сервером.
	onCreate func(r row)
	// derive вычисляет производные поля при выдаче.
	derive func(s *Store, r row) row
}

func (sc *schema) field(name string) (field, bool) {
	i := slices.IndexFunc(sc.fields, func(f field) bool { return f.name == name })
	if i < 0 {
		return field{}, false
	}
	return sc.fields[i], true
}

func (sc *schema) headers() []string {
	out := make([]string, len(sc.fields))
	for i, f := range sc.fields {
		out[i] = f.header
	}
	return out
}

// schemas — ресурсы mock backend.
func schemas() []*schema {
	return []*schema{
		{
			name: "partners",
			fields: []field{
				{name: "partner_name", header: "取引先名称", required: true, maxLen: 100},
				{name: "partner_name_kana", header: "取引先名称カナ", maxLen: 100},
				{name: "partner_type", header: "区分", kind: valueChoice, choices: model.PartnerTypes, def: model.PartnerCustomer},
				{name: "contact_name", header: "担当者名", maxLen: 50},
				{name: "tel_number", header: "電話番号", kind: valueDigits, maxLen: 20},
				{name: "email", header: "Email", kind: valueEmail, required: true, maxLen: 254},
				{name: "postal_code", header: "郵便番号", kind: valueDigits, maxLen: 10},
				{name: "state", header: "都道府県", maxLen: 10},
				{name: "city", header: "市区町村", maxLen: 50},
				{name: "address", header: "住所", maxLen: 100},
				{name: "address2", header: "建物名等", maxLen: 150},
			},
			search:       []string{"partner_name", "partner_name_kana", "contact_name", "email", "tel_number"},
			ordering:     []string{"partner_name", "partner_type", "email", "tel_number", "created_at", "updated_at"},
			defaultOrder: "partner_name",
			filters:      []string{"partner_type"},
			unique:       [][]string{{"partner_name", "email"}},
			paginated:    true,
		},
		{
			name: "product-categories",
			fields: []field{
				{name: "product_category_name", header: "商品カテゴリ名称", required: true, maxLen: 50},
				{name: "sort", header: "表示順", kind: valueInt, def: int64(0)},
			},
			search:       []string{"product_category_name"},
			ordering:     []string{"product_category_name", "sort", "created_at", "updated_at"},
			defaultOrder: "product_category_name",
			unique:       [][]string{{"product_category_name"}},
			paginated:    true,
			choices:      "product_category_name",
		},
		{
			name: "products",
			fields: []field{
				{name: "product_name", header: "商品名称", required: true, maxLen: 100},
				{name: "product_category", header: "商品カテゴリ", kind: valueRef, refTo: "product-categories"},
				{name: "unit", header: "単位", maxLen: 20},
				{name: "unit_price", header: "単価", kind: valueDecimal},
				{name: "description", header: "備考", maxLen: 500},
			},
			search:       []string{"product_name", "description"},
			ordering:     []string{"id", "product_name", "unit_price", "created_at", "updated_at"},
			defaultOrder: "id",
			filters:      []string{"product_category"},
			paginated:    true,
			derive:       deriveCategoryName,
		},
		{
			name: "tenants",
			fields: []field{
				{name: "tenant_name", header: "テナント名", required: true, maxLen: 100},
				{name: "representative_name", header: "代表者名", required: true, maxLen: 50},
				{name: "email", header: "Email", kind: valueEmail, required: true, maxLen: 254},
				{name: "tel_number", header: "電話番号", kind: valueDigits, maxLen: 20},
				{name: "postal_code", header: "郵便番号", kind: valueDigits, maxLen: 10},
				{name: "state", header: "都道府県", maxLen: 10},
				{name: "city", header: "市区町村", maxLen: 50},
				{name: "address", header: "住所", maxLen: 100},
				{name: "address2", header: "建物名等", maxLen: 150},
			},
			search:       []string{"tenant_name", "representative_name", "email", "tel_number"},
			ordering:     []string{"tenant_code", "tenant_name", "representative_name", "email", "tel_number", "created_at", "updated_at"},
			defaultOrder: "tenant_code",
			unique:       [][]string{{"tenant_name"}, {"email"}},
			onCreate: func(r row) {
				r["tenant_code"] = uuid.NewString()
			},
		},
	}
}

// deriveCategoryName добавляет product_category_name товара.
func deriveCategoryName(s *Store, r row) row {
	out := r.clone()
	out["product_category_name"] = nil
	if id, ok := r["product_category"].(int64); ok {
		if cat, ok := s.collections["product-categories"].rows[id]; ok {
			out["product_category_name"] = cat["product_category_name"]
		}
	}
	return out
}

// convert приводит входное значение к виду поля; ok=false — сообщение об ошибке в msg.
// Пустое значение возвращается как nil (для text — "").
func (s *Store) convert(ctx context.Context, f field, v any) (out any, msg string) {
	raw, ok := scalar(v)
	if !ok {
		return nil, tr(ctx, "validation.invalid_value")
	}
	raw = strings.TrimSpace(raw)

	if raw == "" {
		if f.required {
			return nil, tr(ctx, "validation.required")
		}
		switch f.kind {
		case valueDecimal, valueInt, valueRef:
			return nil, ""
		}
		return "", ""
	}

	if f.maxLen > 0 && len([]rune(raw)) > f.maxLen {
		return nil, tr(ctx, "validation.max_length", f.maxLen)
	}

	switch f.kind {
	case valueEmail:
		if !emailRe.MatchString(raw) {
			return nil, tr(ctx, "validation.invalid_email")
		}
	case valueDigits:
		if !digitsRe.MatchString(raw) {
			return nil, tr(ctx, "validation.digits")
		}
	case valueChoice:
		if !slices.Contains(f.choices, raw) {
			return nil, tr(ctx, "validation.invalid_choice", raw)
		}
	case valueDecimal:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, tr(ctx, "validation.invalid_number")
		}
		return strconv.FormatFloat(n, 'f', 2, 64), ""
	case valueInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, tr(ctx, "validation.invalid_integer")
		}
		return n, ""
	case valueRef:
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, tr(ctx, "validation.invalid_pk", raw)
		}
		target, ok := s.collections[f.refTo].rows[id]
		if !ok || target.deleted() {
			return nil, tr(ctx, "validation.invalid_pk", raw)
		}
		return id, ""
	}
	return raw, ""
}

// scalar приводит JSON-значение к строке.
func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return "", false
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return fmt.Sprint(t), false
	}
}
