package credstore

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestFileStore(t *testing.T, path, key string) *FileStore {
	t.Helper()
	s, err := NewFileStore(path, key, testLogger())
	if err != nil {
		t.Fatalf("Ошибка создания FileStore: %v", err)
	}
	return s
}

// TestFileStoreRoundTrip проверяет запись и чтение пары с шифрованием.
func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	s := newTestFileStore(t, path, "my-secret-key-for-testing")

	if _, ok := s.Read(); ok {
		t.Fatal("Новое хранилище не должно содержать пару")
	}

	want := Pair{Access: "access-123", Refresh: "refresh-456"}
	if err := s.Write(want); err != nil {
		t.Fatalf("Ошибка записи: %v", err)
	}

	got, ok := s.Read()
	if !ok {
		t.Fatal("После записи пара должна читаться")
	}
	if got != want {
		t.Errorf("Пара: want %+v, got %+v", want, got)
	}

	// Содержимое файла не должно раскрывать токены
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Ошибка чтения файла: %v", err)
	}
	if strings.Contains(string(raw), "access-123") {
		t.Error("Файл содержит токен в открытом виде")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Права файла: want 0600, got %o", info.Mode().Perm())
	}
}

// TestFileStorePlainJSON проверяет хранение без шифрования с фиксированными ключами.
func TestFileStorePlainJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "creds.json")
	s := newTestFileStore(t, path, "")

	if err := s.Write(Pair{Access: "a1"}); err != nil {
		t.Fatalf("Ошибка записи: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Ошибка чтения файла: %v", err)
	}
	if !strings.Contains(string(raw), `"accessToken":"a1"`) {
		t.Errorf("Ожидался ключ accessToken, файл: %s", raw)
	}
	if strings.Contains(string(raw), KeyRefresh) {
		t.Errorf("refreshToken не должен записываться без значения: %s", raw)
	}

	got, ok := s.Read()
	if !ok || got.Access != "a1" || got.CanRefresh() {
		t.Errorf("Ожидалась пара только с access, got %+v ok=%v", got, ok)
	}
}

// TestFileStoreWrongKey проверяет, что файл с чужим ключом читается как отсутствие пары.
func TestFileStoreWrongKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	s1 := newTestFileStore(t, path, "key-one")
	if err := s1.Write(Pair{Access: "secret"}); err != nil {
		t.Fatalf("Ошибка записи: %v", err)
	}

	s2 := newTestFileStore(t, path, "key-two")
	if _, ok := s2.Read(); ok {
		t.Error("Чтение чужим ключом должно давать отсутствие пары")
	}
}

// TestFileStoreRejectsPairWithoutAccess проверяет инвариант пары.
func TestFileStoreRejectsPairWithoutAccess(t *testing.T) {
	s := newTestFileStore(t, filepath.Join(t.TempDir(), "creds.json"), "")
	if err := s.Write(Pair{Refresh: "only-refresh"}); err != ErrInvalidPair {
		t.Errorf("Ожидалась ErrInvalidPair, got %v", err)
	}
}

// TestFileStoreClear проверяет удаление и повторную очистку.
func TestFileStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	s := newTestFileStore(t, path, "")

	var events []bool
	cancel := s.Subscribe(func(_ Pair, ok bool) { events = append(events, ok) })
	defer cancel()

	if err := s.Write(Pair{Access: "a", Refresh: "r"}); err != nil {
		t.Fatalf("Ошибка записи: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Ошибка очистки: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Повторная очистка не должна возвращать ошибку: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Файл должен быть удалён")
	}
	if len(events) != 3 || !events[0] || events[1] || events[2] {
		t.Errorf("События подписчика: %v", events)
	}
}

// TestFileStoreWatchExternalChange проверяет уведомление об изменении другим экземпляром.
func TestFileStoreWatchExternalChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	watched := newTestFileStore(t, path, "shared")
	other := newTestFileStore(t, path, "shared")

	if err := other.Write(Pair{Access: "a", Refresh: "r"}); err != nil {
		t.Fatalf("Ошибка записи: %v", err)
	}

	changes := make(chan bool, 4)
	defer watched.Subscribe(func(_ Pair, ok bool) { changes <- ok })()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watched.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Дождаться регистрации watcher'а: повторяем очистку, пока не придёт событие
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	// Первое состояние watched — пара прочитана в конструкторе до записи other,
	// поэтому ждём сначала появления пары, затем выход.
	sawLogin := false
	for {
		select {
		case ok := <-changes:
			if ok {
				sawLogin = true
				if err := other.Clear(); err != nil {
					t.Fatalf("Ошибка очистки: %v", err)
				}
				continue
			}
			if !sawLogin {
				continue
			}
			if _, has := watched.Read(); has {
				t.Error("После внешнего выхода Read должен возвращать отсутствие пары")
			}
			return
		case <-tick.C:
			if !sawLogin {
				// Перезапись с теми же значениями порождает событие fsnotify
				_ = other.Write(Pair{Access: "a", Refresh: "r"})
			}
		case <-deadline:
			t.Fatal("Не дождались уведомления об изменении файла")
		}
	}
}

// TestMemoryStore проверяет хранилище в памяти и отписку.
func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()

	calls := 0
	cancel := s.Subscribe(func(Pair, bool) { calls++ })

	if err := s.Write(Pair{Access: "a"}); err != nil {
		t.Fatalf("Ошибка записи: %v", err)
	}
	if p, ok := s.Read(); !ok || p.Access != "a" {
		t.Errorf("Read: %+v %v", p, ok)
	}

	cancel()
	_ = s.Clear()
	if calls != 1 {
		t.Errorf("После отписки вызовов быть не должно, calls=%d", calls)
	}
	if _, ok := s.Read(); ok {
		t.Error("После Clear пары быть не должно")
	}
	if err := s.Write(Pair{}); err != ErrInvalidPair {
		t.Errorf("Ожидалась ErrInvalidPair, got %v", err)
	}
}
