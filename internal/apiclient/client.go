// client.go — HTTP-клиент к master-data backend с bearer-аутентификацией.
// На 401 выполняет ровно одно обновление access token по refresh token
// и ровно один повтор исходного запроса. Если backend отказал в обновлении,
// хранилище токенов очищается, а вызывающему возвращается исходный ответ 401.
// Если ответ на обновление не получен, возвращается ошибка apierr.ErrTransport
// и токены сохраняются.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/mdclient/internal/apierr"
	"github.com/bigkaa/mdclient/internal/credstore"
)

// ErrNotAuthenticated — в хранилище нет access token.
var ErrNotAuthenticated = errors.New("вход не выполнен")

// Request — исходящий запрос к backend.
// Тело задаётся одним из полей: JSON, Body или Form.
type Request struct {
	Method string
	// Path — путь относительно базового URL (например, /api/partners/).
	Path   string
	Query  url.Values
	Header http.Header
	// JSON — значение, сериализуемое в тело application/json.
	JSON any
	// Body — готовое тело (Content-Type по умолчанию application/json).
	Body []byte
	// Form — multipart-форма; Content-Type с boundary выставляет multipart writer.
	Form *Form
}

// Form — multipart/form-data тело.
type Form struct {
	Fields map[string]string
	Files  []FilePart
}

// FilePart — файл внутри multipart-формы.
type FilePart struct {
	Field    string
	Filename string
	Content  []byte
}

// Client — HTTP-клиент к backend.
type Client struct {
	baseURL     string
	loginPath   string
	refreshPath string
	lang        string

	store      credstore.Store
	httpClient *http.Client
	logger     *slog.Logger

	// renewals объединяет одновременные обновления токена.
	renewals singleflight.Group
}

// Options — параметры клиента.
type Options struct {
	// BaseURL — базовый URL backend (без trailing slash).
	BaseURL string
	// LoginPath, RefreshPath — endpoints аутентификации.
	LoginPath   string
	RefreshPath string
	// Lang — значение Accept-Language (пусто — заголовок не передаётся).
	Lang string
	// HTTPClient — HTTP-клиент (nil — создаётся новый с таймаутом 30s).
	HTTPClient *http.Client
}

// New создаёт клиент.
func New(opts Options, store credstore.Store, logger *slog.Logger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	loginPath := opts.LoginPath
	if loginPath == "" {
		loginPath = "/api/auth/login/"
	}
	refreshPath := opts.RefreshPath
	if refreshPath == "" {
		refreshPath = "/api/auth/refresh/"
	}

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		loginPath:   loginPath,
		refreshPath: refreshPath,
		lang:        opts.Lang,
		store:       store,
		httpClient:  httpClient,
		logger:      logger.With(slog.String("component", "api_client")),
	}
}

// Store возвращает хранилище токенов клиента.
func (c *Client) Store() credstore.Store {
	return c.store
}

// Authenticated сообщает, есть ли access token в хранилище.
func (c *Client) Authenticated() bool {
	_, ok := c.store.Read()
	return ok
}

// Send выполняет запрос с bearer-аутентификацией и протоколом обновления токена.
// Ошибка возвращается только при отсутствии ответа (обёрнута в apierr.ErrTransport);
// любые HTTP-статусы, включая 401, возвращаются как ответ.
func (c *Client) Send(ctx context.Context, req *Request) (*http.Response, error) {
	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()

	pair, _ := c.store.Read()
	resp, err := c.attempt(ctx, req, body, contentType, pair.Access, requestID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	access, err := c.renew(ctx)
	if errors.Is(err, errRenewalRefused) {
		if err := c.store.Clear(); err != nil {
			c.logger.Error("Ошибка очистки токенов", slog.String("error", err.Error()))
		}
		return resp, nil
	}
	if err != nil {
		// Ответ на обновление не получен: токены сохраняются
		drain(resp)
		return nil, err
	}

	// Исходный 401 больше не нужен
	drain(resp)

	return c.attempt(ctx, req, body, contentType, access, requestID)
}

// Do выполняет запрос и декодирует JSON-ответ в out (out может быть nil).
// Статус вне 2xx возвращается как *apierr.Error.
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

// attempt выполняет один HTTP-запрос.
func (c *Client) attempt(ctx context.Context, req *Request, body []byte, contentType, access, requestID string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.url(req.Path, req.Query), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	if access != "" {
		httpReq.Header.Set("Authorization", "Bearer "+access)
	}

	switch {
	case req.Form != nil:
		httpReq.Header.Set("Content-Type", contentType)
	case body != nil && httpReq.Header.Get("Content-Type") == "":
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if c.lang != "" && httpReq.Header.Get("Accept-Language") == "" {
		httpReq.Header.Set("Accept-Language", c.lang)
	}
	httpReq.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	requestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(req.Method, "error").Inc()
		return nil, fmt.Errorf("%w: %s %s: %w", apierr.ErrTransport, req.Method, req.Path, err)
	}
	requestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()

	c.logger.Debug("Запрос выполнен",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", requestID),
	)
	return resp, nil
}

// url собирает полный URL запроса.
func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// encodeBody готовит тело один раз: повтор после обновления токена
// отправляет те же байты.
func encodeBody(req *Request) ([]byte, string, error) {
	switch {
	case req.Form != nil:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for name, value := range req.Form.Fields {
			if err := w.WriteField(name, value); err != nil {
				return nil, "", fmt.Errorf("запись поля формы %s: %w", name, err)
			}
		}
		for _, f := range req.Form.Files {
			part, err := w.CreateFormFile(f.Field, f.Filename)
			if err != nil {
				return nil, "", fmt.Errorf("создание файла формы %s: %w", f.Field, err)
			}
			if _, err := part.Write(f.Content); err != nil {
				return nil, "", fmt.Errorf("запись файла формы %s: %w", f.Field, err)
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("закрытие формы: %w", err)
		}
		return buf.Bytes(), w.FormDataContentType(), nil

	case req.JSON != nil:
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("сериализация тела запроса: %w", err)
		}
		return data, "", nil

	default:
		return req.Body, "", nil
	}
}

// decodeResponse декодирует успешный ответ в target или возвращает *apierr.Error.
func decodeResponse(resp *http.Response, target any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierr.FromResponse(resp)
	}
	defer resp.Body.Close()

	if target == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("декодирование ответа: %w", err)
	}
	return nil
}

// drain дочитывает и закрывает тело, чтобы соединение вернулось в пул.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
