// Пакет credstore — хранилище пары токенов access/refresh.
// Значения непрозрачны: хранилище не обращается к сети и не проверяет содержимое токенов.
// Изменения (запись, очистка) доставляются подписчикам, в том числе изменения,
// сделанные другими процессами (FileStore.Watch).
package credstore

import (
	"errors"
	"sync"
)

// Фиксированные ключи хранения.
const (
	KeyAccess  = "accessToken"
	KeyRefresh = "refreshToken"
)

// ErrInvalidPair — попытка записать пару без access token.
var ErrInvalidPair = errors.New("пара токенов без access token")

// Pair — пара токенов. Refresh может отсутствовать (обновление невозможно).
type Pair struct {
	Access  string
	Refresh string
}

// CanRefresh сообщает, возможно ли обновление access token.
func (p Pair) CanRefresh() bool {
	return p.Refresh != ""
}

// Listener получает новое состояние: пару и признак её наличия.
type Listener func(pair Pair, ok bool)

// Store — хранилище пары токенов.
type Store interface {
	// Read возвращает текущую пару; ok=false — пользователь не аутентифицирован.
	Read() (Pair, bool)
	// Write заменяет пару целиком.
	Write(pair Pair) error
	// Clear удаляет обе записи.
	Clear() error
	// Subscribe регистрирует слушателя изменений; возвращает функцию отписки.
	Subscribe(fn Listener) (cancel func())
}

// hub — список подписчиков, общий для реализаций Store.
type hub struct {
	mu        sync.Mutex
	next      int
	listeners map[int]Listener
}

func (h *hub) Subscribe(fn Listener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listeners == nil {
		h.listeners = make(map[int]Listener)
	}
	id := h.next
	h.next++
	h.listeners[id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners, id)
	}
}

// publish вызывает слушателей вне блокировки.
func (h *hub) publish(pair Pair, ok bool) {
	h.mu.Lock()
	fns := make([]Listener, 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(pair, ok)
	}
}

// MemoryStore — хранилище в памяти процесса.
type MemoryStore struct {
	hub

	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore создаёт пустое хранилище в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Read возвращает текущую пару.
func (s *MemoryStore) Read() (Pair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pairOf(s.values)
}

// Write заменяет пару.
func (s *MemoryStore) Write(pair Pair) error {
	if pair.Access == "" {
		return ErrInvalidPair
	}

	s.mu.Lock()
	s.values = valuesOf(pair)
	s.mu.Unlock()

	s.publish(pair, true)
	return nil
}

// Clear удаляет пару.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.values = make(map[string]string)
	s.mu.Unlock()

	s.publish(Pair{}, false)
	return nil
}

// pairOf собирает пару из значений по фиксированным ключам.
// Без access пара отсутствует, даже если refresh сохранился.
func pairOf(values map[string]string) (Pair, bool) {
	access := values[KeyAccess]
	if access == "" {
		return Pair{}, false
	}
	return Pair{Access: access, Refresh: values[KeyRefresh]}, true
}

func valuesOf(pair Pair) map[string]string {
	values := map[string]string{KeyAccess: pair.Access}
	if pair.Refresh != "" {
		values[KeyRefresh] = pair.Refresh
	}
	return values
}
