package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/mdclient/internal/apierr"
	"github.com/bigkaa/mdclient/internal/credstore"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockBackend — счётчики и обработчики mock-сервера.
type mockBackend struct {
	mu           sync.Mutex
	apiCalls     int
	refreshCalls int
	requests     []*http.Request
	bodies       []string
}

func (m *mockBackend) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiCalls++
	m.requests = append(m.requests, r.Clone(context.Background()))
	m.bodies = append(m.bodies, string(body))
}

// setupMockBackend создаёт mock-сервер backend.
// refreshHandler обрабатывает /api/auth/refresh/, apiHandler — /api/.
func setupMockBackend(t *testing.T, refreshHandler, apiHandler http.HandlerFunc) (*mockBackend, *Client, *credstore.MemoryStore) {
	t.Helper()

	m := &mockBackend{}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.refreshCalls++
		m.mu.Unlock()
		if refreshHandler != nil {
			refreshHandler(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access": "new-access"})
	})

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		m.record(r)
		apiHandler(w, r)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	store := credstore.NewMemoryStore()
	client := New(Options{BaseURL: server.URL, Lang: "ja", HTTPClient: server.Client()}, store, testLogger())

	return m, client, store
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requireBearer отвечает 401, если токен не совпадает с ожидаемым.
func requireBearer(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
			return
		}
		next(w, r)
	}
}

// TestSend_AttachesHeaders проверяет bearer, Content-Type по умолчанию и служебные заголовки.
func TestSend_AttachesHeaders(t *testing.T) {
	m, client, store := setupMockBackend(t, nil, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"id": 1})
	})
	_ = store.Write(credstore.Pair{Access: "tok", Refresh: "ref"})

	resp, err := client.Send(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/api/partners/",
		JSON:   map[string]string{"partner_name": "ACME"},
	})
	if err != nil {
		t.Fatalf("Send вернул ошибку: %v", err)
	}
	drain(resp)

	r := m.requests[0]
	if got := r.Header.Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization = %q", got)
	}
	if got := r.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, ожидается application/json", got)
	}
	if got := r.Header.Get("Accept-Language"); got != "ja" {
		t.Errorf("Accept-Language = %q, ожидается ja", got)
	}
	if r.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID не задан")
	}
	if m.bodies[0] != `{"partner_name":"ACME"}` {
		t.Errorf("тело запроса = %q", m.bodies[0])
	}
}

// TestSend_NoBodyNoContentType проверяет, что без тела Content-Type не выставляется,
// а явно заданный Content-Type не перезаписывается.
func TestSend_NoBodyNoContentType(t *testing.T) {
	m, client, _ := setupMockBackend(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	resp, err := client.Send(context.Background(), &Request{Method: http.MethodGet, Path: "/api/partners/"})
	if err != nil {
		t.Fatalf("Send вернул ошибку: %v", err)
	}
	drain(resp)

	header := http.Header{}
	header.Set("Content-Type", "text/plain")
	resp, err = client.Send(context.Background(), &Request{
		Method: http.MethodPost, Path: "/api/notes/", Header: header, Body: []byte("hi"),
	})
	if err != nil {
		t.Fatalf("Send вернул ошибку: %v", err)
	}
	drain(resp)

	if got := m.requests[0].Header.Get("Content-Type"); got != "" {
		t.Errorf("GET без тела: Content-Type = %q", got)
	}
	if got := m.requests[0].Header.Get("Authorization"); got != "" {
		t.Errorf("без токена Authorization не должен передаваться, получено %q", got)
	}
	if got := m.requests[1].Header.Get("Content-Type"); got != "text/plain" {
		t.Errorf("явный Content-Type перезаписан: %q", got)
	}
}

// TestSend_Multipart проверяет, что Content-Type формы задаётся multipart writer'ом.
func TestSend_Multipart(t *testing.T) {
	var fileContent, fieldValue string
	_, client, _ := setupMockBackend(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fieldValue = r.FormValue("mode")
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		fileContent = string(data)
		writeJSON(w, http.StatusOK, map[string]int{"count": 1})
	})

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	resp, err := client.Send(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/api/partners/import/",
		Header: header,
		Form: &Form{
			Fields: map[string]string{"mode": "strict"},
			Files:  []FilePart{{Field: "file", Filename: "p.csv", Content: []byte("a,b\n1,2\n")}},
		},
	})
	if err != nil {
		t.Fatalf("Send вернул ошибку: %v", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("статус %d, ожидается 200", resp.StatusCode)
	}
	if fileContent != "a,b\n1,2\n" {
		t.Errorf("содержимое файла = %q", fileContent)
	}
	if fieldValue != "strict" {
		t.Errorf("поле формы = %q", fieldValue)
	}
}

// TestSend_RefreshAndRetry проверяет обновление токена и единственный повтор.
func TestSend_RefreshAndRetry(t *testing.T) {
	m, client, store := setupMockBackend(t, nil, requireBearer("new-access", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"ok": "yes"})
	}))
	_ = store.Write(credstore.Pair{Access: "expired", Refresh: "ref"})

	resp, err := client.Send(context.Background(), &Request{
		Method: http.MethodPatch,
		Path:   "/api/partners/7/",
		JSON:   map[string]string{"city": "Osaka"},
	})
	if err != nil {
		t.Fatalf("Send вернул ошибку: %v", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("статус %d, ожидается 200 после повтора", resp.StatusCode)
	}
	if m.apiCalls != 2 || m.refreshCalls != 1 {
		t.Errorf("вызовы: api=%d refresh=%d, ожидается 2 и 1", m.apiCalls, m.refreshCalls)
	}
	if m.bodies[1] != m.bodies[0] || m.bodies[1] == "" {
		t.Errorf("повтор должен отправить то же тело: %q vs %q", m.bodies[0], m.bodies[1])
	}
	if m.requests[0].Header.Get("X-Request-ID") != m.requests[1].Header.Get("X-Request-ID") {
		t.Error("повтор должен сохранять X-Request-ID")
	}

	pair, ok := store.Read()
	if !ok || pair.Access != "new-access" || pair.Refresh != "ref" {
		t.Errorf("после обновления пара = %+v (ok=%v)", pair, ok)
	}
}

// TestSend_AtMostOneRenewal проверяет, что повторный 401 не вызывает второго обновления.
func TestSend_AtMostOneRenewal(t *testing.T) {
	m, client, store := setupMockBackend(t, nil, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "always"})
	})
	_ = store.Write(credstore.Pair{Access: "a", Refresh: "r"})

	resp, err := client.Send(context.Background(), &Request{Method: http.MethodGet, Path: "/api/partners/"})
	if err != nil {
		t.Fatalf("Send вернул ошибку: %v", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("статус %d, ожидается 401 повтора", resp.StatusCode)
	}
	if m.apiCalls != 2 {
		t.Errorf("запросов к API: %d, ожидается 2", m.apiCalls)
	}
	if m.refreshCalls != 1 {
		t.Errorf("обновлений: %d, ожидается 1", m.refreshCalls)
	}
	// Обновление прошло — токены не очищаются
	if _, ok := store.Read(); !ok {
		t.Error("после успешного обновления токены не должны очищаться")
	}
}

// TestSend_RefreshFailureClearsStore проверяет очистку токенов и возврат исходного 401.
func TestSend_RefreshFailureClearsStore(t *testing.T) {
	m, client, store := setupMockBackend(t,
		func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		},
		func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "original"})
		},
	)
	_ = store.Write(credstore.Pair{Access: "a", Refresh: "r"})

	resp, err := client.Send(context.Background(), &Request{Method: http.MethodGet, Path: "/api/partners/"})
	if err != nil {
		t.Fatalf("Send вернул ошибку: %v", err)
	}

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("статус %d, ожидается 401", resp.StatusCode)
	}
	apiErr := apierr.FromResponse(resp)
	if apiErr.Message != "original" {
		t.Errorf("ожидался исходный ответ, detail = %q", apiErr.Message)
	}
	if m.apiCalls != 1 || m.refreshCalls != 1 {
		t.Errorf("вызовы: api=%d refresh=%d, ожидается 1 и 1", m.apiCalls, m.refreshCalls)
	}
	if _, ok := store.Read(); ok {
		t.Error("токены должны быть очищены")
	}
}

// TestSend_NoRefreshToken проверяет, что без refresh token обновление не запрашивается.
func TestSend_NoRefreshToken(t *testing.T) {
	m, client, store := setupMockBackend(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_ = store.Write(credstore.Pair{Access: "a"})

	resp, err := client.Send(context.Background(), &Request{Method: http.MethodGet, Path: "/api/partners/"})
	if err != nil {
		t.Fatalf("Send вернул ошибку: %v", err)
	}
	drain(resp)

	if m.refreshCalls != 0 {
		t.Errorf("обновлений: %d, ожидается 0", m.refreshCalls)
	}
	if client.Authenticated() {
		t.Error("токены должны быть очищены")
	}
}

// TestSend_RotatedRefresh проверяет сохранение ротированного refresh token.
func TestSend_RotatedRefresh(t *testing.T) {
	_, client, store := setupMockBackend(t,
		func(w http.ResponseWriter, r *http.Request) {
			var body refreshRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Refresh != "r1" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "bad refresh"})
				return
			}
			writeJSON(w, http.StatusOK, TokenResponse{Access: "new-access", Refresh: "r2"})
		},
		requireBearer("new-access", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	)
	_ = store.Write(credstore.Pair{Access: "old", Refresh: "r1"})

	if err := client.Do(context.Background(), &Request{Method: http.MethodDelete, Path: "/api/partners/1/"}, nil); err != nil {
		t.Fatalf("Do вернул ошибку: %v", err)
	}

	pair, _ := store.Read()
	if pair.Refresh != "r2" {
		t.Errorf("refresh = %q, ожидается ротированный r2", pair.Refresh)
	}
}

// TestSend_TransportError проверяет, что сетевая ошибка не повторяется и помечена ErrTransport.
func TestSend_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	store := credstore.NewMemoryStore()
	_ = store.Write(credstore.Pair{Access: "a", Refresh: "r"})
	client := New(Options{BaseURL: url}, store, testLogger())

	_, err := client.Send(context.Background(), &Request{Method: http.MethodGet, Path: "/api/partners/"})
	if err == nil {
		t.Fatal("ожидалась ошибка транспорта")
	}
	if !errors.Is(err, apierr.ErrTransport) {
		t.Errorf("ошибка не помечена ErrTransport: %v", err)
	}
	if !client.Authenticated() {
		t.Error("сетевая ошибка не должна очищать токены")
	}
}

// TestSend_RefreshTransportFailureKeepsTokens проверяет, что обрыв соединения при обновлении
// возвращается как ErrTransport и не очищает токены.
func TestSend_RefreshTransportFailureKeepsTokens(t *testing.T) {
	m, client, store := setupMockBackend(t,
		func(w http.ResponseWriter, r *http.Request) {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("ResponseWriter не поддерживает Hijack")
				return
			}
			conn, _, err := hj.Hijack()
			if err == nil {
				_ = conn.Close()
			}
		},
		func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})
		},
	)
	_ = store.Write(credstore.Pair{Access: "a", Refresh: "r"})

	resp, err := client.Send(context.Background(), &Request{Method: http.MethodGet, Path: "/api/partners/"})
	if err == nil {
		drain(resp)
		t.Fatal("ожидалась ошибка транспорта при обновлении")
	}
	if !errors.Is(err, apierr.ErrTransport) {
		t.Errorf("ошибка не помечена ErrTransport: %v", err)
	}
	if m.apiCalls != 1 {
		t.Errorf("запросов к API: %d, ожидается 1 (без повтора)", m.apiCalls)
	}
	pair, ok := store.Read()
	if !ok || pair.Access != "a" || pair.Refresh != "r" {
		t.Errorf("токены должны сохраниться, пара = %+v (ok=%v)", pair, ok)
	}
}

// countingStore считает чтения пары, чтобы тест мог дождаться входа в обновление.
type countingStore struct {
	*credstore.MemoryStore
	reads atomic.Int32
}

func (s *countingStore) Read() (credstore.Pair, bool) {
	s.reads.Add(1)
	return s.MemoryStore.Read()
}

// waitFor ждёт выполнения условия не дольше секунды.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("не дождались: %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// setupBlockingRefresh создаёт backend, у которого обновление ждёт закрытия release.
// API принимает только new-access.
func setupBlockingRefresh(t *testing.T) (client *Client, store *countingStore, refreshCalls *atomic.Int32, started, release chan struct{}) {
	t.Helper()

	refreshCalls = &atomic.Int32{}
	started = make(chan struct{}, 16)
	release = make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		started <- struct{}{}
		<-release
		writeJSON(w, http.StatusOK, map[string]string{"access": "new-access"})
	})
	mux.HandleFunc("/api/", requireBearer("new-access", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"ok": "yes"})
	}))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	store = &countingStore{MemoryStore: credstore.NewMemoryStore()}
	_ = store.Write(credstore.Pair{Access: "expired", Refresh: "r"})
	client = New(Options{BaseURL: server.URL, HTTPClient: server.Client()}, store, testLogger())
	return client, store, refreshCalls, started, release
}

// TestSend_ConcurrentRenewalShared проверяет, что одновременные 401 разделяют одно обновление.
func TestSend_ConcurrentRenewalShared(t *testing.T) {
	client, store, refreshCalls, started, release := setupBlockingRefresh(t)

	const callers = 5
	statuses := make(chan int, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Send(context.Background(), &Request{Method: http.MethodGet, Path: "/api/partners/"})
			if err != nil {
				t.Errorf("Send вернул ошибку: %v", err)
				statuses <- 0
				return
			}
			drain(resp)
			statuses <- resp.StatusCode
		}()
	}

	<-started
	// Каждый вызов читает пару дважды: перед запросом и при обновлении
	waitFor(t, "все вызовы вошли в обновление", func() bool { return store.reads.Load() >= 2*callers })
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(statuses)

	for status := range statuses {
		if status != http.StatusOK {
			t.Errorf("статус %d, ожидается 200", status)
		}
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Errorf("обновлений: %d, ожидается 1", got)
	}
	if pair, _ := store.Read(); pair.Access != "new-access" {
		t.Errorf("access = %q, ожидается new-access", pair.Access)
	}
}

// TestSend_CancelledCallerDoesNotBreakSharedRenewal проверяет, что отмена одного вызова
// не прерывает общее обновление и не очищает токены для остальных.
func TestSend_CancelledCallerDoesNotBreakSharedRenewal(t *testing.T) {
	client, store, _, started, release := setupBlockingRefresh(t)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		resp, err := client.Send(ctxA, &Request{Method: http.MethodGet, Path: "/api/partners/"})
		if err == nil {
			drain(resp)
		}
		errA <- err
	}()
	<-started

	type result struct {
		status int
		err    error
	}
	resB := make(chan result, 1)
	go func() {
		resp, err := client.Send(context.Background(), &Request{Method: http.MethodGet, Path: "/api/partners/"})
		if err != nil {
			resB <- result{err: err}
			return
		}
		drain(resp)
		resB <- result{status: resp.StatusCode}
	}()
	waitFor(t, "второй вызов вошёл в обновление", func() bool { return store.reads.Load() >= 4 })
	time.Sleep(20 * time.Millisecond)

	cancelA()
	err := <-errA
	if !errors.Is(err, context.Canceled) || !errors.Is(err, apierr.ErrTransport) {
		t.Errorf("отменённый вызов: ошибка %v, ожидается ErrTransport + context.Canceled", err)
	}
	if !client.Authenticated() {
		t.Fatal("отмена вызова не должна очищать токены")
	}

	close(release)
	res := <-resB
	if res.err != nil {
		t.Fatalf("второй вызов вернул ошибку: %v", res.err)
	}
	if res.status != http.StatusOK {
		t.Errorf("второй вызов: статус %d, ожидается 200", res.status)
	}
	if pair, _ := store.Read(); pair.Access != "new-access" {
		t.Errorf("access = %q, ожидается new-access", pair.Access)
	}
}

// TestDo_DecodesAndErrors проверяет декодирование ответа и ошибки backend.
func TestDo_DecodesAndErrors(t *testing.T) {
	_, client, _ := setupMockBackend(t, nil, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/partners/1/":
			writeJSON(w, http.StatusOK, map[string]any{"id": 1, "partner_name": "ACME"})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]any{"partner_name": []string{"required"}})
		}
	})

	var got struct {
		ID   int    `json:"id"`
		Name string `json:"partner_name"`
	}
	if err := client.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/api/partners/1/"}, &got); err != nil {
		t.Fatalf("Do вернул ошибку: %v", err)
	}
	if got.ID != 1 || got.Name != "ACME" {
		t.Errorf("декодировано %+v", got)
	}

	err := client.Do(context.Background(), &Request{Method: http.MethodPost, Path: "/api/partners/", JSON: map[string]string{}}, nil)
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("ожидалась *apierr.Error, получено %v", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Errorf("статус %d", apiErr.Status)
	}
	if _, ok := apierr.Classify(apiErr.Data).(apierr.FieldErrors); !ok {
		t.Errorf("тело ошибки должно классифицироваться как FieldErrors: %#v", apiErr.Data)
	}
}

// TestLogin проверяет вход и ошибку неверных учётных данных.
func TestLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		var body loginRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Email != "admin@example.com" || body.Password != "pw" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
			return
		}
		writeJSON(w, http.StatusOK, TokenResponse{Access: "a", Refresh: "r"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	store := credstore.NewMemoryStore()
	client := New(Options{BaseURL: server.URL}, store, testLogger())

	err := client.Login(context.Background(), "admin@example.com", "wrong")
	if !apierr.IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("ожидалась ошибка 401, получено %v", err)
	}
	if !strings.Contains(err.Error(), "No active account") {
		t.Errorf("сообщение ошибки: %v", err)
	}

	if err := client.Login(context.Background(), "admin@example.com", "pw"); err != nil {
		t.Fatalf("Login вернул ошибку: %v", err)
	}
	pair, ok := store.Read()
	if !ok || pair.Access != "a" || pair.Refresh != "r" {
		t.Errorf("после входа пара = %+v", pair)
	}

	if err := client.Logout(); err != nil {
		t.Fatalf("Logout вернул ошибку: %v", err)
	}
	if client.Authenticated() {
		t.Error("после выхода клиент не должен быть аутентифицирован")
	}
}
