package model

import "time"

// ProductCategory — категория товаров.
type ProductCategory struct {
	ID                  int64     `json:"id"`
	ProductCategoryName string    `json:"product_category_name"`
	Sort                int       `json:"sort"`
	IsDeleted           bool      `json:"is_deleted"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (c ProductCategory) RecordID() int64 { return c.ID }

// CategoryChoice — элемент списка выбора категорий.
type CategoryChoice struct {
	ID                  int64  `json:"id"`
	ProductCategoryName string `json:"product_category_name"`
}

// CategoryBuffer — редактируемые поля категории.
type CategoryBuffer struct {
	ProductCategoryName string
}

// CategoryPayload — тело POST/PATCH.
type CategoryPayload struct {
	ProductCategoryName string `json:"product_category_name"`
}

var categoryFields = fieldTable[CategoryBuffer]{
	{name: "product_category_name", ref: func(b *CategoryBuffer) *string { return &b.ProductCategoryName }},
}

func NewCategoryBuffer() CategoryBuffer { return CategoryBuffer{} }

func SeedCategory(c ProductCategory) CategoryBuffer {
	return CategoryBuffer{ProductCategoryName: c.ProductCategoryName}
}

func (b CategoryBuffer) Payload() CategoryPayload {
	return CategoryPayload(b)
}

func (CategoryBuffer) FieldNames() []string { return categoryFields.names() }

func (b CategoryBuffer) Field(name string) (string, bool) { return categoryFields.get(&b, name) }

func (b *CategoryBuffer) SetField(name, value string) error { return categoryFields.set(b, name, value) }
