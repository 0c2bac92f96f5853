package resource

import (
	"strconv"
	"time"

	"github.com/bigkaa/mdclient/internal/domain/model"
)

// Имена ресурсов.
const (
	NamePartners   = "partners"
	NameProducts   = "products"
	NameCategories = "product-categories"
	NameTenants    = "tenants"
)

// Names — ресурсы, доступные в CLI.
var Names = []string{NamePartners, NameProducts, NameCategories, NameTenants}

// Фильтры ресурсов.
const (
	FilterPartnerType     = "partner_type"
	FilterProductCategory = "product_category"
)

// PathOf возвращает путь коллекции ресурса.
func PathOf(name string) string {
	return "/api/" + name + "/"
}

// Partners — endpoint контрагентов.
func Partners(client Doer) *Endpoint[model.Partner, model.PartnerBuffer] {
	return NewEndpoint(client, Definition[model.Partner, model.PartnerBuffer]{
		Name:        NamePartners,
		Path:        PathOf(NamePartners),
		DefaultSort: "partner_name",
		SortKeys:    []string{"partner_name", "partner_type", "email", "tel_number", "created_at", "updated_at"},
		Filters:     []string{FilterPartnerType},
		Columns: []Column[model.Partner]{
			{Header: "ID", Value: func(p model.Partner) string { return id(p.ID) }},
			{Header: "partner_name", Value: func(p model.Partner) string { return p.PartnerName }},
			{Header: "partner_type", Value: func(p model.Partner) string { return p.PartnerType }},
			{Header: "email", Value: func(p model.Partner) string { return p.Email }},
			{Header: "tel_number", Value: func(p model.Partner) string { return p.TelNumber }},
			{Header: "updated_at", Value: func(p model.Partner) string { return stamp(p.UpdatedAt) }},
			{Header: "deleted", Value: func(p model.Partner) string { return flag(p.IsDeleted) }},
		},
		Defaults: model.NewPartnerBuffer,
		Seed:     model.SeedPartner,
		Payload:  func(b model.PartnerBuffer) any { return b.Payload() },
		Deleted:  func(p model.Partner) bool { return p.IsDeleted },
	})
}

// Products — endpoint товаров.
func Products(client Doer) *Endpoint[model.Product, model.ProductBuffer] {
	return NewEndpoint(client, Definition[model.Product, model.ProductBuffer]{
		Name:        NameProducts,
		Path:        PathOf(NameProducts),
		DefaultSort: "product_name",
		SortKeys:    []string{"product_name", "unit_price", "created_at", "updated_at"},
		Filters:     []string{FilterProductCategory},
		Columns: []Column[model.Product]{
			{Header: "ID", Value: func(p model.Product) string { return id(p.ID) }},
			{Header: "product_name", Value: func(p model.Product) string { return p.ProductName }},
			{Header: "category", Value: func(p model.Product) string { return p.ProductCategoryName }},
			{Header: "unit", Value: func(p model.Product) string { return p.Unit }},
			{Header: "unit_price", Value: func(p model.Product) string { return p.UnitPrice.String() }},
			{Header: "updated_at", Value: func(p model.Product) string { return stamp(p.UpdatedAt) }},
			{Header: "deleted", Value: func(p model.Product) string { return flag(p.IsDeleted) }},
		},
		Defaults: model.NewProductBuffer,
		Seed:     model.SeedProduct,
		Payload:  func(b model.ProductBuffer) any { return b.Payload() },
		Deleted:  func(p model.Product) bool { return p.IsDeleted },
	})
}

// Categories — endpoint категорий товаров.
func Categories(client Doer) *Endpoint[model.ProductCategory, model.CategoryBuffer] {
	return NewEndpoint(client, Definition[model.ProductCategory, model.CategoryBuffer]{
		Name:        NameCategories,
		Path:        PathOf(NameCategories),
		DefaultSort: "product_category_name",
		SortKeys:    []string{"product_category_name", "sort", "created_at", "updated_at"},
		Columns: []Column[model.ProductCategory]{
			{Header: "ID", Value: func(c model.ProductCategory) string { return id(c.ID) }},
			{Header: "product_category_name", Value: func(c model.ProductCategory) string { return c.ProductCategoryName }},
			{Header: "sort", Value: func(c model.ProductCategory) string { return strconv.Itoa(c.Sort) }},
			{Header: "updated_at", Value: func(c model.ProductCategory) string { return stamp(c.UpdatedAt) }},
			{Header: "deleted", Value: func(c model.ProductCategory) string { return flag(c.IsDeleted) }},
		},
		Defaults: model.NewCategoryBuffer,
		Seed:     model.SeedCategory,
		Payload:  func(b model.CategoryBuffer) any { return b.Payload() },
		Deleted:  func(c model.ProductCategory) bool { return c.IsDeleted },
	})
}

// Tenants — endpoint арендаторов (backend отдаёт массив без пагинации).
func Tenants(client Doer) *Endpoint[model.Tenant, model.TenantBuffer] {
	return NewEndpoint(client, Definition[model.Tenant, model.TenantBuffer]{
		Name:        NameTenants,
		Path:        PathOf(NameTenants),
		DefaultSort: "tenant_name",
		SortKeys:    []string{"tenant_name", "representative_name", "email", "tel_number", "created_at", "updated_at"},
		Columns: []Column[model.Tenant]{
			{Header: "ID", Value: func(t model.Tenant) string { return id(t.ID) }},
			{Header: "tenant_code", Value: func(t model.Tenant) string { return t.TenantCode }},
			{Header: "tenant_name", Value: func(t model.Tenant) string { return t.TenantName }},
			{Header: "representative_name", Value: func(t model.Tenant) string { return t.RepresentativeName }},
			{Header: "email", Value: func(t model.Tenant) string { return t.Email }},
			{Header: "deleted", Value: func(t model.Tenant) string { return flag(t.IsDeleted) }},
		},
		Defaults: model.NewTenantBuffer,
		Seed:     model.SeedTenant,
		Payload:  func(b model.TenantBuffer) any { return b.Payload() },
		Deleted:  func(t model.Tenant) bool { return t.IsDeleted },
	})
}

func id(v int64) string { return strconv.FormatInt(v, 10) }

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

func flag(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
