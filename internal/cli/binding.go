package cli

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"

	"github.com/bigkaa/mdclient/internal/domain/model"
	"github.com/bigkaa/mdclient/internal/editsession"
	"github.com/bigkaa/mdclient/internal/i18n"
	"github.com/bigkaa/mdclient/internal/listctl"
	"github.com/bigkaa/mdclient/internal/resource"
)

// fieldBuffer — указатель на буфер формы с доступом к полям по имени.
type fieldBuffer[B any] interface {
	*B
	FieldNames() []string
	Field(name string) (string, bool)
	SetField(name, value string) error
}

// pageView — страница списка, подготовленная к выводу.
type pageView struct {
	Headers []string
	Rows    [][]string
	// Records — исходные записи для вывода в JSON.
	Records any
	Total   int
	Page    int
	Pages   int
}

// resourceBinding — операции команд над ресурсом без параметров типа.
type resourceBinding interface {
	Name() string
	Path() string
	DefaultSort() string
	Check(q listctl.Query, loc i18n.Localizer) error
	List(ctx context.Context, q listctl.Query) (pageView, error)
	Console(app *App, q listctl.Query, out io.Writer, confirmer editsession.Confirmer) consoleHandler
}

type binding[R listctl.Record, B any, PB fieldBuffer[B]] struct {
	ep *resource.Endpoint[R, B]
}

func bindings(client resource.Doer) map[string]resourceBinding {
	return map[string]resourceBinding{
		resource.NamePartners:   &binding[model.Partner, model.PartnerBuffer, *model.PartnerBuffer]{ep: resource.Partners(client)},
		resource.NameProducts:   &binding[model.Product, model.ProductBuffer, *model.ProductBuffer]{ep: resource.Products(client)},
		resource.NameCategories: &binding[model.ProductCategory, model.CategoryBuffer, *model.CategoryBuffer]{ep: resource.Categories(client)},
		resource.NameTenants:    &binding[model.Tenant, model.TenantBuffer, *model.TenantBuffer]{ep: resource.Tenants(client)},
	}
}

func (b *binding[R, B, PB]) Name() string { return b.ep.Definition().Name }

func (b *binding[R, B, PB]) Path() string { return b.ep.Definition().Path }

func (b *binding[R, B, PB]) DefaultSort() string { return b.ep.Definition().DefaultSort }

// Check проверяет ключ сортировки и имена фильтров запроса.
func (b *binding[R, B, PB]) Check(q listctl.Query, loc i18n.Localizer) error {
	def := b.ep.Definition()
	if q.SortKey != "" && q.SortKey != "id" && !slices.Contains(def.SortKeys, q.SortKey) {
		return errors.New(loc.Tf("cli.bad_sort", q.SortKey, def.Name))
	}
	for name := range q.Filters {
		if name == listctl.FilterIncludeDeleted || slices.Contains(def.Filters, name) {
			continue
		}
		return errors.New(loc.Tf("cli.bad_filter", name, def.Name))
	}
	return nil
}

// List загружает одну страницу без контроллера списка.
func (b *binding[R, B, PB]) List(ctx context.Context, q listctl.Query) (pageView, error) {
	page, err := b.ep.List(ctx, q)
	if err != nil {
		return pageView{}, err
	}
	view := tableOf(b.ep.Definition(), page.Rows)
	view.Total = page.Total
	view.Page = max(q.Page, 1)
	view.Pages = listctl.TotalPages(page.Total, q.PageSize)
	return view, nil
}

func (b *binding[R, B, PB]) Console(app *App, q listctl.Query, out io.Writer, confirmer editsession.Confirmer) consoleHandler {
	return newConsole[R, B, PB](app, b.ep, q, out, confirmer)
}

// tableOf строит табличное представление записей по колонкам ресурса.
func tableOf[R listctl.Record, B any](def resource.Definition[R, B], rows []R) pageView {
	view := pageView{
		Headers: make([]string, 0, len(def.Columns)),
		Rows:    make([][]string, 0, len(rows)),
		Records: rows,
	}
	for _, col := range def.Columns {
		view.Headers = append(view.Headers, col.Header)
	}
	for _, rec := range rows {
		line := make([]string, 0, len(def.Columns))
		for _, col := range def.Columns {
			line = append(line, col.Value(rec))
		}
		view.Rows = append(view.Rows, line)
	}
	return view
}

// parseSort разбирает ключ сортировки в формате ordering ("-name" — по убыванию).
func parseSort(s string) (string, listctl.SortDir) {
	if key, ok := strings.CutPrefix(s, "-"); ok {
		return key, listctl.Desc
	}
	return s, listctl.Asc
}

func resourceNames() []string {
	return slices.Clone(resource.Names)
}
