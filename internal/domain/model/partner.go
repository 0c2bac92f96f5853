package model

import "time"

// Типы контрагента.
const (
	PartnerCustomer = "customer"
	PartnerSupplier = "supplier"
	PartnerBoth     = "both"
)

// PartnerTypes — допустимые значения partner_type.
var PartnerTypes = []string{PartnerCustomer, PartnerSupplier, PartnerBoth}

// Audit — служебные поля записи.
type Audit struct {
	IsDeleted  bool      `json:"is_deleted"`
	CreatedAt  time.Time `json:"created_at"`
	CreateUser string    `json:"create_user,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	UpdateUser string    `json:"update_user,omitempty"`
}

// Partner — контрагент (клиент или поставщик).
type Partner struct {
	ID              int64  `json:"id"`
	PartnerName     string `json:"partner_name"`
	PartnerNameKana string `json:"partner_name_kana"`
	PartnerType     string `json:"partner_type"`
	ContactName     string `json:"contact_name"`
	TelNumber       string `json:"tel_number"`
	Email           string `json:"email"`
	PostalCode      string `json:"postal_code"`
	State           string `json:"state"`
	City            string `json:"city"`
	Address         string `json:"address"`
	Address2        string `json:"address2"`
	Audit
}

func (p Partner) RecordID() int64 { return p.ID }

// PartnerBuffer — редактируемые поля контрагента.
type PartnerBuffer struct {
	PartnerName     string
	PartnerNameKana string
	PartnerType     string
	ContactName     string
	TelNumber       string
	Email           string
	PostalCode      string
	State           string
	City            string
	Address         string
	Address2        string
}

// PartnerPayload — тело POST/PATCH; пустые необязательные поля передаются как null.
type PartnerPayload struct {
	PartnerName     string  `json:"partner_name"`
	PartnerNameKana *string `json:"partner_name_kana"`
	PartnerType     string  `json:"partner_type"`
	ContactName     *string `json:"contact_name"`
	TelNumber       *string `json:"tel_number"`
	Email           string  `json:"email"`
	PostalCode      *string `json:"postal_code"`
	State           *string `json:"state"`
	City            *string `json:"city"`
	Address         *string `json:"address"`
	Address2        *string `json:"address2"`
}

var partnerFields = fieldTable[PartnerBuffer]{
	{name: "partner_name", ref: func(b *PartnerBuffer) *string { return &b.PartnerName }},
	{name: "partner_name_kana", ref: func(b *PartnerBuffer) *string { return &b.PartnerNameKana }},
	{name: "partner_type", ref: func(b *PartnerBuffer) *string { return &b.PartnerType }, kind: kindChoice, choices: PartnerTypes},
	{name: "contact_name", ref: func(b *PartnerBuffer) *string { return &b.ContactName }},
	{name: "tel_number", ref: func(b *PartnerBuffer) *string { return &b.TelNumber }},
	{name: "email", ref: func(b *PartnerBuffer) *string { return &b.Email }},
	{name: "postal_code", ref: func(b *PartnerBuffer) *string { return &b.PostalCode }},
	{name: "state", ref: func(b *PartnerBuffer) *string { return &b.State }},
	{name: "city", ref: func(b *PartnerBuffer) *string { return &b.City }},
	{name: "address", ref: func(b *PartnerBuffer) *string { return &b.Address }},
	{name: "address2", ref: func(b *PartnerBuffer) *string { return &b.Address2 }},
}

// NewPartnerBuffer возвращает буфер нового контрагента (тип customer).
func NewPartnerBuffer() PartnerBuffer {
	return PartnerBuffer{PartnerType: PartnerCustomer}
}

// SeedPartner заполняет буфер из записи.
func SeedPartner(p Partner) PartnerBuffer {
	t := p.PartnerType
	if t == "" {
		t = PartnerCustomer
	}
	return PartnerBuffer{
		PartnerName:     p.PartnerName,
		PartnerNameKana: p.PartnerNameKana,
		PartnerType:     t,
		ContactName:     p.ContactName,
		TelNumber:       p.TelNumber,
		Email:           p.Email,
		PostalCode:      p.PostalCode,
		State:           p.State,
		City:            p.City,
		Address:         p.Address,
		Address2:        p.Address2,
	}
}

// Payload формирует тело запроса.
func (b PartnerBuffer) Payload() PartnerPayload {
	return PartnerPayload{
		PartnerName:     b.PartnerName,
		PartnerNameKana: nullable(b.PartnerNameKana),
		PartnerType:     b.PartnerType,
		ContactName:     nullable(b.ContactName),
		TelNumber:       nullable(b.TelNumber),
		Email:           b.Email,
		PostalCode:      nullable(b.PostalCode),
		State:           nullable(b.State),
		City:            nullable(b.City),
		Address:         nullable(b.Address),
		Address2:        nullable(b.Address2),
	}
}

func (PartnerBuffer) FieldNames() []string { return partnerFields.names() }

func (b PartnerBuffer) Field(name string) (string, bool) { return partnerFields.get(&b, name) }

func (b *PartnerBuffer) SetField(name, value string) error { return partnerFields.set(b, name, value) }
