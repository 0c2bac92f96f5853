// Package listctl — состояние постраничного списка одного типа ресурса:
// запрос (поиск, фильтры, сортировка, страница), текущая страница строк,
// общее число записей и выбранная запись.
//
// Каждая загрузка получает номер поколения в момент отправки; любое изменение
// запроса продвигает поколение. Результат устаревшего поколения отбрасывается.
package listctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

var (
	// ErrStale — результат загрузки отброшен: за время запроса состояние изменилось.
	ErrStale = errors.New("результат загрузки устарел")
	// ErrNotInPage — запись отсутствует на текущей странице.
	ErrNotInPage = errors.New("запись отсутствует на текущей странице")
	// ErrNavigationBlocked — переход между строками запрещён (идёт редактирование).
	ErrNavigationBlocked = errors.New("переход между записями запрещён")
)

// Record — строка списка с числовым идентификатором.
type Record interface {
	RecordID() int64
}

// Page — результат одной загрузки.
type Page[R Record] struct {
	Rows  []R
	Total int
}

// Source — источник страниц (обычно endpoint ресурса).
type Source[R Record] interface {
	List(ctx context.Context, q Query) (Page[R], error)
}

// State — состояние загрузки.
type State int

const (
	Idle State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Options — начальное состояние запроса.
type Options struct {
	SortKey  string
	SortDir  SortDir
	PageSize int
	Filters  map[string]string
}

// Controller — контроллер списка записей типа R.
type Controller[R Record] struct {
	source Source[R]
	logger *slog.Logger

	mu       sync.Mutex
	query    Query
	gen      uint64
	state    State
	rows     []R
	total    int
	err      error
	selected int64
	hasSel   bool

	// guard разрешает переход prev/next; nil — переход разрешён всегда.
	guard func() bool
	lost  []func(id int64)
}

// New создаёт контроллер. Начальная страница — 1.
func New[R Record](source Source[R], opts Options, logger *slog.Logger) *Controller[R] {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	q := Query{
		Filters:  opts.Filters,
		SortKey:  opts.SortKey,
		SortDir:  opts.SortDir,
		Page:     1,
		PageSize: pageSize,
	}

	return &Controller[R]{
		source: source,
		logger: logger.With(slog.String("component", "listctl")),
		query:  q.clone(),
	}
}

// Load загружает текущую страницу.
// Возвращает ErrStale, если до получения ответа был выдан более новый запрос
// или изменено состояние запроса; такой результат не применяется.
// Ошибка загрузки сохраняется в Err(), строки последней удачной страницы остаются.
func (c *Controller[R]) Load(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	q := c.query.clone()
	c.state = Loading
	c.mu.Unlock()

	page, err := c.source.List(ctx, q)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logger.Debug("Устаревший результат отброшен",
			slog.Uint64("generation", gen),
			slog.Int("page", q.Page),
		)
		return ErrStale
	}

	if err != nil {
		c.state = Failed
		c.err = err
		c.mu.Unlock()
		return fmt.Errorf("загрузка списка: %w", err)
	}

	c.state = Loaded
	c.err = nil
	c.rows = page.Rows
	c.total = max(page.Total, 0)

	var lostID int64
	lost := c.hasSel && c.indexOf(c.selected) < 0
	if lost {
		lostID = c.selected
		c.selected, c.hasSel = 0, false
	}
	listeners := slices.Clone(c.lost)
	c.mu.Unlock()

	if lost {
		c.logger.Debug("Выбранная запись покинула страницу", slog.Int64("id", lostID))
		for _, fn := range listeners {
			fn(lostID)
		}
	}
	return nil
}

// OnSelectionLost регистрирует обработчик потери выбора после загрузки.
// Обработчик вызывается без удержания блокировки контроллера.
func (c *Controller[R]) OnSelectionLost(fn func(id int64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lost = append(c.lost, fn)
}

// SetNavigationGuard задаёт условие, при котором разрешены Prev/Next.
func (c *Controller[R]) SetNavigationGuard(guard func() bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guard = guard
}

// mutate изменяет запрос, продвигает поколение и, если нужно, сбрасывает страницу.
func (c *Controller[R]) mutate(resetPage bool, fn func(q *Query)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.query)
	if resetPage {
		c.query.Page = 1
	}
	c.gen++
}

// SetFreeText задаёт строку поиска.
func (c *Controller[R]) SetFreeText(text string) {
	c.mutate(true, func(q *Query) { q.FreeText = text })
}

// SetFilter задаёт структурный фильтр; пустое значение снимает его.
func (c *Controller[R]) SetFilter(name, value string) {
	c.mutate(true, func(q *Query) {
		if value == "" {
			delete(q.Filters, name)
			return
		}
		q.Filters[name] = value
	})
}

// SetIncludeDeleted включает или выключает показ удалённых записей.
func (c *Controller[R]) SetIncludeDeleted(include bool) {
	value := ""
	if include {
		value = "1"
	}
	c.SetFilter(FilterIncludeDeleted, value)
}

// ToggleSort: тот же ключ меняет направление, новый ключ — по возрастанию.
func (c *Controller[R]) ToggleSort(key string) {
	c.mutate(true, func(q *Query) {
		if q.SortKey == key {
			if q.SortDir == Asc {
				q.SortDir = Desc
			} else {
				q.SortDir = Asc
			}
			return
		}
		q.SortKey = key
		q.SortDir = Asc
	})
}

// SetSort задаёт ключ и направление сортировки.
func (c *Controller[R]) SetSort(key string, dir SortDir) {
	c.mutate(true, func(q *Query) {
		q.SortKey = key
		q.SortDir = dir
	})
}

// SetPage переходит на страницу (не меньше 1).
func (c *Controller[R]) SetPage(page int) {
	c.mutate(false, func(q *Query) { q.Page = max(page, 1) })
}

// SetPageSize меняет размер страницы.
func (c *Controller[R]) SetPageSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("размер страницы должен быть положительным: %d", size)
	}
	c.mutate(true, func(q *Query) { q.PageSize = size })
	return nil
}

// Select выбирает запись текущей страницы.
func (c *Controller[R]) Select(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexOf(id) < 0 {
		return fmt.Errorf("%w: id=%d", ErrNotInPage, id)
	}
	c.selected, c.hasSel = id, true
	return nil
}

// ClearSelection снимает выбор без уведомления.
func (c *Controller[R]) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected, c.hasSel = 0, false
}

// Selected возвращает выбранную запись.
func (c *Controller[R]) Selected() (R, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero R
	if !c.hasSel {
		return zero, false
	}
	i := c.indexOf(c.selected)
	if i < 0 {
		return zero, false
	}
	return c.rows[i], true
}

// SelectedID возвращает идентификатор выбранной записи.
func (c *Controller[R]) SelectedID() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected, c.hasSel
}

// Row возвращает запись текущей страницы по идентификатору.
func (c *Controller[R]) Row(id int64) (R, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero R
	i := c.indexOf(id)
	if i < 0 {
		return zero, false
	}
	return c.rows[i], true
}

// Prev выбирает предыдущую строку страницы.
func (c *Controller[R]) Prev() (int64, error) {
	return c.step(-1)
}

// Next выбирает следующую строку страницы.
func (c *Controller[R]) Next() (int64, error) {
	return c.step(1)
}

// step сдвигает выбор на delta строк.
func (c *Controller[R]) step(delta int) (int64, error) {
	c.mu.Lock()
	guard := c.guard
	c.mu.Unlock()

	// guard может обращаться к сессии редактирования: вызывается без блокировки
	if guard != nil && !guard() {
		return 0, ErrNavigationBlocked
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasSel {
		return 0, ErrNotInPage
	}
	i := c.indexOf(c.selected) + delta
	if i < 0 || i >= len(c.rows) {
		return 0, fmt.Errorf("%w: нет соседней записи", ErrNotInPage)
	}
	c.selected = c.rows[i].RecordID()
	return c.selected, nil
}

// HasPrev сообщает, есть ли строка перед выбранной.
func (c *Controller[R]) HasPrev() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasSel && c.indexOf(c.selected) > 0
}

// HasNext сообщает, есть ли строка после выбранной.
func (c *Controller[R]) HasNext() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(c.selected)
	return c.hasSel && i >= 0 && i < len(c.rows)-1
}

// Query возвращает копию состояния запроса.
func (c *Controller[R]) Query() Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query.clone()
}

// Rows возвращает строки текущей страницы.
func (c *Controller[R]) Rows() []R {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.rows)
}

// Total возвращает число записей, удовлетворяющих фильтрам.
func (c *Controller[R]) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// TotalPages возвращает число страниц для текущего размера страницы.
func (c *Controller[R]) TotalPages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return TotalPages(c.total, c.query.PageSize)
}

// State возвращает состояние загрузки.
func (c *Controller[R]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err возвращает ошибку последней загрузки.
func (c *Controller[R]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// indexOf ищет запись на странице. Вызывается под c.mu.
func (c *Controller[R]) indexOf(id int64) int {
	return slices.IndexFunc(c.rows, func(r R) bool { return r.RecordID() == id })
}
