package listctl

import (
	"net/url"
	"slices"
	"strconv"
)

// FilterIncludeDeleted — структурный фильтр, включающий мягко удалённые записи.
const FilterIncludeDeleted = "include_deleted"

// SortDir — направление сортировки.
type SortDir int

const (
	Asc SortDir = iota
	Desc
)

func (d SortDir) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// Query — состояние запроса списка.
type Query struct {
	FreeText string
	Filters  map[string]string
	SortKey  string
	SortDir  SortDir
	Page     int
	PageSize int
}

// Ordering возвращает значение параметра ordering ("-" для убывания).
func (q Query) Ordering() string {
	if q.SortKey == "" {
		return ""
	}
	if q.SortDir == Desc {
		return "-" + q.SortKey
	}
	return q.SortKey
}

// Values кодирует запрос в query-параметры backend.
// Пустые значения не передаются.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.FreeText != "" {
		v.Set("q", q.FreeText)
	}

	names := make([]string, 0, len(q.Filters))
	for name := range q.Filters {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if value := q.Filters[name]; value != "" {
			v.Set(name, value)
		}
	}

	if ordering := q.Ordering(); ordering != "" {
		v.Set("ordering", ordering)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	return v
}

// clone возвращает копию с собственной картой фильтров.
func (q Query) clone() Query {
	filters := make(map[string]string, len(q.Filters))
	for k, v := range q.Filters {
		filters[k] = v
	}
	q.Filters = filters
	return q
}

// TotalPages вычисляет число страниц; пустой результат — одна страница.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	pages := (total + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}
	return pages
}
