// store.go — хранилище записей mock backend в памяти.
// Удаление мягкое (is_deleted); восстановление находит и удалённые записи.
package mockapi

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNotFound — запись не найдена (или удалена, если удалённые не запрошены).
var ErrNotFound = errors.New("запись не найдена")

// validationError — ошибки валидации входных данных.
type validationError struct {
	fields fieldErrors
}

func (e *validationError) Error() string {
	return fmt.Sprintf("ошибка валидации: %d полей", len(e.fields))
}

// row — запись: имя поля → значение.
type row map[string]any

func (r row) clone() row {
	return maps.Clone(r)
}

func (r row) id() int64 {
	id, _ := r["id"].(int64)
	return id
}

func (r row) deleted() bool {
	d, _ := r["is_deleted"].(bool)
	return d
}

// collection — записи одного ресурса.
type collection struct {
	schema *schema
	rows   map[int64]row
	nextID int64
}

// listParams — параметры выборки списка.
type listParams struct {
	Query          string
	Filters        map[string]string
	Ordering       string
	IncludeDeleted bool
}

// Store — хранилище всех ресурсов.
type Store struct {
	mu          sync.Mutex
	collections map[string]*collection
	order       []string
	now         func() time.Time
}

// NewStore создаёт пустое хранилище для всех ресурсов.
func NewStore() *Store {
	s := &Store{
		collections: make(map[string]*collection),
		now:         time.Now,
	}
	for _, sc := range schemas() {
		s.collections[sc.name] = &collection{schema: sc, rows: make(map[int64]row), nextID: 1}
		s.order = append(s.order, sc.name)
	}
	return s
}

// Resources возвращает имена ресурсов в порядке объявления.
func (s *Store) Resources() []string {
	return slices.Clone(s.order)
}

func (s *Store) schemaOf(resource string) (*schema, bool) {
	c, ok := s.collections[resource]
	if !ok {
		return nil, false
	}
	return c.schema, true
}

// List возвращает отфильтрованные и упорядоченные записи.
func (s *Store) List(resource string, p listParams) []row {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collections[resource]
	sc := c.schema
	needle := strings.ToLower(strings.TrimSpace(p.Query))

	out := make([]row, 0, len(c.rows))
	for _, r := range c.rows {
		if r.deleted() && !p.IncludeDeleted {
			continue
		}
		if needle != "" && !matches(r, sc.search, needle) {
			continue
		}
		if !filtered(r, sc.filters, p.Filters) {
			continue
		}
		out = append(out, s.present(sc, r))
	}

	key, desc := sc.defaultOrder, false
	if o := strings.TrimSpace(p.Ordering); o != "" {
		name := strings.TrimPrefix(o, "-")
		if slices.Contains(sc.ordering, name) {
			key, desc = name, strings.HasPrefix(o, "-")
		}
	}
	f, _ := sc.field(key)
	slices.SortStableFunc(out, func(a, b row) int {
		c := compareValues(f, a[key], b[key])
		if c == 0 {
			c = cmp.Compare(a.id(), b.id())
		}
		if desc {
			return -c
		}
		return c
	})
	return out
}

// Get возвращает запись; удалённая запись находится только при includeDeleted.
func (s *Store) Get(resource string, id int64, includeDeleted bool) (row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collections[resource]
	r, ok := c.rows[id]
	if !ok || (r.deleted() && !includeDeleted) {
		return nil, ErrNotFound
	}
	return s.present(c.schema, r), nil
}

// Create проверяет и сохраняет новую запись.
func (s *Store) Create(ctx context.Context, resource string, input map[string]any, user string) (row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collections[resource]
	values, err := s.validate(ctx, c, input, 0, false)
	if err != nil {
		return nil, err
	}
	return s.insert(c, values, user), nil
}

// createBatch сохраняет уже проверенные записи разом.
func (s *Store) createBatch(resource string, batch []row, user string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collections[resource]
	for _, values := range batch {
		s.insert(c, values, user)
	}
	return len(batch)
}

func (s *Store) insert(c *collection, values row, user string) row {
	now := s.now()
	r := values.clone()
	r["id"] = c.nextID
	r["is_deleted"] = false
	r["created_at"] = now
	r["updated_at"] = now
	r["create_user"] = user
	r["update_user"] = user
	if c.schema.onCreate != nil {
		c.schema.onCreate(r)
	}
	c.rows[c.nextID] = r
	c.nextID++
	return s.present(c.schema, r)
}

// Update изменяет запись; partial=true — только переданные поля (PATCH).
func (s *Store) Update(ctx context.Context, resource string, id int64, input map[string]any, partial bool, user string) (row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collections[resource]
	r, ok := c.rows[id]
	if !ok || r.deleted() {
		return nil, ErrNotFound
	}

	values, err := s.validate(ctx, c, input, id, partial)
	if err != nil {
		return nil, err
	}
	maps.Copy(r, values)
	r["updated_at"] = s.now()
	r["update_user"] = user
	return s.present(c.schema, r), nil
}

// Delete помечает запись удалённой.
func (s *Store) Delete(resource string, id int64, user string) error {
	return s.setDeleted(resource, id, true, user)
}

// Restore снимает пометку удаления; находит и удалённые записи.
func (s *Store) Restore(resource string, id int64, user string) (row, error) {
	if err := s.setDeleted(resource, id, false, user); err != nil {
		return nil, err
	}
	return s.Get(resource, id, true)
}

func (s *Store) setDeleted(resource string, id int64, deleted bool, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collections[resource]
	r, ok := c.rows[id]
	if !ok || (deleted && r.deleted()) {
		return ErrNotFound
	}
	r["is_deleted"] = deleted
	r["updated_at"] = s.now()
	r["update_user"] = user
	return nil
}

// Choices возвращает неудалённые записи ресурса как {id, <поле названия>}.
func (s *Store) Choices(resource string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collections[resource]
	name := c.schema.choices
	out := make([]map[string]any, 0, len(c.rows))
	for _, r := range c.rows {
		if r.deleted() {
			continue
		}
		out = append(out, map[string]any{"id": r.id(), name: r[name]})
	}
	slices.SortFunc(out, func(a, b map[string]any) int {
		return cmp.Or(
			cmp.Compare(fmt.Sprint(a[name]), fmt.Sprint(b[name])),
			cmp.Compare(a["id"].(int64), b["id"].(int64)),
		)
	})
	return out
}

// Validate проверяет входные данные без сохранения (для импорта CSV).
func (s *Store) Validate(ctx context.Context, resource string, input map[string]any) (row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validate(ctx, s.collections[resource], input, 0, false)
}

// validate проверяет поля и уникальность. excludeID — изменяемая запись.
func (s *Store) validate(ctx context.Context, c *collection, input map[string]any, excludeID int64, partial bool) (row, error) {
	fe := make(fieldErrors)
	values := make(row)

	for _, f := range c.schema.fields {
		v, present := input[f.name]
		if !present {
			if partial {
				continue
			}
			if f.def != nil {
				values[f.name] = f.def
				continue
			}
		}
		out, msg := s.convert(ctx, f, v)
		if msg != "" {
			fe.add(f.name, msg)
			continue
		}
		values[f.name] = out
	}
	if len(fe) > 0 {
		return nil, &validationError{fields: fe}
	}

	for _, set := range c.schema.unique {
		if s.duplicate(c, set, values, excludeID) {
			if len(set) == 1 {
				fe.add(set[0], tr(ctx, "validation.unique"))
			} else {
				fe.add(nonFieldKey, tr(ctx, "validation.unique_together", strings.Join(set, ", ")))
			}
		}
	}
	if len(fe) > 0 {
		return nil, &validationError{fields: fe}
	}
	return values, nil
}

// duplicate сообщает, есть ли другая запись с теми же значениями полей set.
// Удалённые записи тоже занимают значения.
func (s *Store) duplicate(c *collection, set []string, values row, excludeID int64) bool {
	current := c.rows[excludeID]
	for _, r := range c.rows {
		if r.id() == excludeID {
			continue
		}
		same := true
		for _, name := range set {
			v, ok := values[name]
			if !ok && current != nil {
				v = current[name]
			}
			if fmt.Sprint(v) != fmt.Sprint(r[name]) {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

// present возвращает копию записи с производными полями.
func (s *Store) present(sc *schema, r row) row {
	if sc.derive != nil {
		return sc.derive(s, r)
	}
	return r.clone()
}

func matches(r row, fields []string, needle string) bool {
	for _, name := range fields {
		if s, ok := r[name].(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// filtered проверяет точное совпадение по разрешённым фильтрам; пустые значения игнорируются.
func filtered(r row, allowed []string, filters map[string]string) bool {
	for name, want := range filters {
		if want == "" || !slices.Contains(allowed, name) {
			continue
		}
		if fmt.Sprint(r[name]) != want {
			return false
		}
	}
	return true
}

// compareValues сравнивает значения поля; nil меньше любого значения.
func compareValues(f field, a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if f.kind == valueDecimal {
		x, _ := strconv.ParseFloat(fmt.Sprint(a), 64)
		y, _ := strconv.ParseFloat(fmt.Sprint(b), 64)
		return cmp.Compare(x, y)
	}

	switch x := a.(type) {
	case int64:
		y, _ := b.(int64)
		return cmp.Compare(x, y)
	case time.Time:
		y, _ := b.(time.Time)
		return x.Compare(y)
	case string:
		y, _ := b.(string)
		return strings.Compare(strings.ToLower(x), strings.ToLower(y))
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
