// Package resource — типизированные REST endpoints ресурсов master-data
// (список, чтение, создание, изменение, мягкое удаление, восстановление).
package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bigkaa/mdclient/internal/apiclient"
	"github.com/bigkaa/mdclient/internal/listctl"
)

// Doer — выполнение запроса с декодированием ответа (*apiclient.Client).
type Doer interface {
	Do(ctx context.Context, req *apiclient.Request, out any) error
}

// Column — колонка табличного представления записи.
type Column[R any] struct {
	Header string
	Value  func(rec R) string
}

// Definition описывает ресурс: путь, сортировки, фильтры и преобразования буфера.
type Definition[R listctl.Record, B any] struct {
	// Name — имя ресурса в командах и имени файла экспорта (partners).
	Name string
	// Path — путь коллекции (/api/partners/).
	Path        string
	DefaultSort string
	SortKeys    []string
	// Filters — допустимые структурные фильтры (кроме include_deleted).
	Filters []string
	Columns []Column[R]

	Defaults func() B
	Seed     func(rec R) B
	Payload  func(buf B) any
	Deleted  func(rec R) bool
}

// Endpoint — endpoint ресурса. Реализует listctl.Source и editsession.Adapter.
type Endpoint[R listctl.Record, B any] struct {
	def    Definition[R, B]
	client Doer
}

// NewEndpoint создаёт endpoint ресурса.
func NewEndpoint[R listctl.Record, B any](client Doer, def Definition[R, B]) *Endpoint[R, B] {
	return &Endpoint[R, B]{def: def, client: client}
}

// Definition возвращает описание ресурса.
func (e *Endpoint[R, B]) Definition() Definition[R, B] {
	return e.def
}

// pageEnvelope — ответ DRF с пагинацией.
type pageEnvelope[R any] struct {
	Count   int `json:"count"`
	Results []R `json:"results"`
}

// List загружает страницу. Ответ — конверт {count, results} или массив без пагинации.
func (e *Endpoint[R, B]) List(ctx context.Context, q listctl.Query) (listctl.Page[R], error) {
	var raw json.RawMessage
	err := e.client.Do(ctx, &apiclient.Request{
		Method: http.MethodGet,
		Path:   e.def.Path,
		Query:  q.Values(),
	}, &raw)
	if err != nil {
		return listctl.Page[R]{}, err
	}
	return decodePage[R](raw)
}

// decodePage разбирает конверт DRF или массив.
func decodePage[R listctl.Record](raw json.RawMessage) (listctl.Page[R], error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return listctl.Page[R]{}, nil
	}

	if trimmed[0] == '[' {
		var rows []R
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return listctl.Page[R]{}, fmt.Errorf("декодирование списка: %w", err)
		}
		return listctl.Page[R]{Rows: rows, Total: len(rows)}, nil
	}

	var env pageEnvelope[R]
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return listctl.Page[R]{}, fmt.Errorf("декодирование страницы: %w", err)
	}
	return listctl.Page[R]{Rows: env.Results, Total: env.Count}, nil
}

// Create создаёт запись (POST).
func (e *Endpoint[R, B]) Create(ctx context.Context, buf B) (R, error) {
	var rec R
	err := e.client.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   e.def.Path,
		JSON:   e.def.Payload(buf),
	}, &rec)
	return rec, err
}

// Update частично обновляет запись (PATCH).
func (e *Endpoint[R, B]) Update(ctx context.Context, id int64, buf B) (R, error) {
	var rec R
	err := e.client.Do(ctx, &apiclient.Request{
		Method: http.MethodPatch,
		Path:   e.itemPath(id),
		JSON:   e.def.Payload(buf),
	}, &rec)
	return rec, err
}

// Delete мягко удаляет запись (сервер отвечает 204).
func (e *Endpoint[R, B]) Delete(ctx context.Context, id int64) error {
	return e.client.Do(ctx, &apiclient.Request{Method: http.MethodDelete, Path: e.itemPath(id)}, nil)
}

// Restore восстанавливает удалённую запись.
func (e *Endpoint[R, B]) Restore(ctx context.Context, id int64) (R, error) {
	var rec R
	err := e.client.Do(ctx, &apiclient.Request{Method: http.MethodPost, Path: e.itemPath(id) + "restore/"}, &rec)
	return rec, err
}

func (e *Endpoint[R, B]) Defaults() B { return e.def.Defaults() }

func (e *Endpoint[R, B]) Seed(rec R) B { return e.def.Seed(rec) }

func (e *Endpoint[R, B]) Deleted(rec R) bool { return e.def.Deleted(rec) }

// itemPath — путь записи (/api/partners/7/).
func (e *Endpoint[R, B]) itemPath(id int64) string {
	return e.def.Path + strconv.FormatInt(id, 10) + "/"
}
