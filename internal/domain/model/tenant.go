package model

// Tenant — арендатор (организация). tenant_code назначается сервером (UUID).
type Tenant struct {
	ID                 int64  `json:"id"`
	TenantCode         string `json:"tenant_code"`
	TenantName         string `json:"tenant_name"`
	RepresentativeName string `json:"representative_name"`
	Email              string `json:"email"`
	TelNumber          string `json:"tel_number"`
	PostalCode         string `json:"postal_code"`
	State              string `json:"state"`
	City               string `json:"city"`
	Address            string `json:"address"`
	Address2           string `json:"address2"`
	Audit
}

func (t Tenant) RecordID() int64 { return t.ID }

// TenantBuffer — редактируемые поля арендатора.
type TenantBuffer struct {
	TenantName         string
	RepresentativeName string
	Email              string
	TelNumber          string
	PostalCode         string
	State              string
	City               string
	Address            string
	Address2           string
}

// TenantPayload — тело POST/PATCH.
type TenantPayload struct {
	TenantName         string  `json:"tenant_name"`
	RepresentativeName string  `json:"representative_name"`
	Email              string  `json:"email"`
	TelNumber          *string `json:"tel_number"`
	PostalCode         *string `json:"postal_code"`
	State              *string `json:"state"`
	City               *string `json:"city"`
	Address            *string `json:"address"`
	Address2           *string `json:"address2"`
}

var tenantFields = fieldTable[TenantBuffer]{
	{name: "tenant_name", ref: func(b *TenantBuffer) *string { return &b.TenantName }},
	{name: "representative_name", ref: func(b *TenantBuffer) *string { return &b.RepresentativeName }},
	{name: "email", ref: func(b *TenantBuffer) *string { return &b.Email }},
	{name: "tel_number", ref: func(b *TenantBuffer) *string { return &b.TelNumber }},
	{name: "postal_code", ref: func(b *TenantBuffer) *string { return &b.PostalCode }},
	{name: "state", ref: func(b *TenantBuffer) *string { return &b.State }},
	{name: "city", ref: func(b *TenantBuffer) *string { return &b.City }},
	{name: "address", ref: func(b *TenantBuffer) *string { return &b.Address }},
	{name: "address2", ref: func(b *TenantBuffer) *string { return &b.Address2 }},
}

func NewTenantBuffer() TenantBuffer { return TenantBuffer{} }

func SeedTenant(t Tenant) TenantBuffer {
	return TenantBuffer{
		TenantName:         t.TenantName,
		RepresentativeName: t.RepresentativeName,
		Email:              t.Email,
		TelNumber:          t.TelNumber,
		PostalCode:         t.PostalCode,
		State:              t.State,
		City:               t.City,
		Address:            t.Address,
		Address2:           t.Address2,
	}
}

func (b TenantBuffer) Payload() TenantPayload {
	return TenantPayload{
		TenantName:         b.TenantName,
		RepresentativeName: b.RepresentativeName,
		Email:              b.Email,
		TelNumber:          nullable(b.TelNumber),
		PostalCode:         nullable(b.PostalCode),
		State:              nullable(b.State),
		City:               nullable(b.City),
		Address:            nullable(b.Address),
		Address2:           nullable(b.Address2),
	}
}

func (TenantBuffer) FieldNames() []string { return tenantFields.names() }

func (b TenantBuffer) Field(name string) (string, bool) { return tenantFields.get(&b, name) }

func (b *TenantBuffer) SetField(name, value string) error { return tenantFields.set(b, name, value) }
