package model

import (
	"encoding/json"
	"time"
)

// Product — товар.
// unit_price приходит строкой decimal; json.Number принимает и строку, и число.
type Product struct {
	ID                  int64       `json:"id"`
	ProductName         string      `json:"product_name"`
	ProductCategory     *int64      `json:"product_category"`
	ProductCategoryName string      `json:"product_category_name"`
	Unit                string      `json:"unit"`
	UnitPrice           json.Number `json:"unit_price"`
	Description         string      `json:"description"`
	IsDeleted           bool        `json:"is_deleted"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

func (p Product) RecordID() int64 { return p.ID }

// ProductBuffer — редактируемые поля товара. ProductCategory — id категории или "".
type ProductBuffer struct {
	ProductName     string
	ProductCategory string
	Unit            string
	UnitPrice       string
	Description     string
}

// ProductPayload — тело POST/PATCH.
type ProductPayload struct {
	ProductName     string       `json:"product_name"`
	ProductCategory *int64       `json:"product_category"`
	Unit            *string      `json:"unit"`
	UnitPrice       *json.Number `json:"unit_price"`
	Description     *string      `json:"description"`
}

var productFields = fieldTable[ProductBuffer]{
	{name: "product_name", ref: func(b *ProductBuffer) *string { return &b.ProductName }},
	{name: "product_category", ref: func(b *ProductBuffer) *string { return &b.ProductCategory }, kind: kindRef},
	{name: "unit", ref: func(b *ProductBuffer) *string { return &b.Unit }},
	{name: "unit_price", ref: func(b *ProductBuffer) *string { return &b.UnitPrice }, kind: kindDecimal},
	{name: "description", ref: func(b *ProductBuffer) *string { return &b.Description }},
}

// NewProductBuffer возвращает пустой буфер товара.
func NewProductBuffer() ProductBuffer {
	return ProductBuffer{}
}

// SeedProduct заполняет буфер из записи.
func SeedProduct(p Product) ProductBuffer {
	return ProductBuffer{
		ProductName:     p.ProductName,
		ProductCategory: refString(p.ProductCategory),
		Unit:            p.Unit,
		UnitPrice:       p.UnitPrice.String(),
		Description:     p.Description,
	}
}

// Payload формирует тело запроса.
func (b ProductBuffer) Payload() ProductPayload {
	return ProductPayload{
		ProductName:     b.ProductName,
		ProductCategory: ref(b.ProductCategory),
		Unit:            nullable(b.Unit),
		UnitPrice:       decimal(b.UnitPrice),
		Description:     nullable(b.Description),
	}
}

func (ProductBuffer) FieldNames() []string { return productFields.names() }

func (b ProductBuffer) Field(name string) (string, bool) { return productFields.get(&b, name) }

func (b *ProductBuffer) SetField(name, value string) error { return productFields.set(b, name, value) }
