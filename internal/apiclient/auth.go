// auth.go — вход, выход и обновление access token (simplejwt-совместимые endpoints).
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/mdclient/internal/apierr"
	"github.com/bigkaa/mdclient/internal/credstore"
)

// TokenResponse — ответ endpoints входа и обновления.
// При обновлении refresh присутствует только если backend ротирует токены.
type TokenResponse struct {
	Access  string `json:"access"`  //nolint:gosec // структура токена
	Refresh string `json:"refresh"` //nolint:gosec // структура токена
}

// loginRequest — тело запроса входа.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // учётные данные пользователя
}

// refreshRequest — тело запроса обновления.
type refreshRequest struct {
	Refresh string `json:"refresh"` //nolint:gosec // структура токена
}

// Login выполняет вход и сохраняет пару токенов.
// Ошибки backend (неверные учётные данные) возвращаются как *apierr.Error.
func (c *Client) Login(ctx context.Context, email, password string) error {
	resp, err := c.postToken(ctx, c.loginPath, loginRequest{Email: email, Password: password})
	if err != nil {
		return err
	}

	var tokens TokenResponse
	if err := decodeResponse(resp, &tokens); err != nil {
		return err
	}
	if tokens.Access == "" {
		return errors.New("ответ входа не содержит access token")
	}

	if err := c.store.Write(credstore.Pair{Access: tokens.Access, Refresh: tokens.Refresh}); err != nil {
		return fmt.Errorf("сохранение токенов: %w", err)
	}

	c.logger.Info("Вход выполнен", slog.Bool("refresh", tokens.Refresh != ""))
	return nil
}

// Logout удаляет токены.
func (c *Client) Logout() error {
	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("очистка токенов: %w", err)
	}
	c.logger.Info("Выход выполнен")
	return nil
}

// errRenewalRefused — backend отказал в обновлении или refresh token отсутствует.
// Только в этом случае токены очищаются.
var errRenewalRefused = errors.New("обновление токена отклонено")

// renewTimeout ограничивает общее обновление, которое не зависит от отмены контекста
// отдельного вызывающего.
const renewTimeout = 30 * time.Second

// renew выполняет обновление access token. Одновременные вызовы
// разделяют один запрос к backend. Возвращает новый access token.
// Ошибка оборачивает errRenewalRefused при отказе backend либо apierr.ErrTransport,
// если ответ не получен или вызывающий отменил свой контекст.
func (c *Client) renew(ctx context.Context) (string, error) {
	pair, ok := c.store.Read()
	if !ok || !pair.CanRefresh() {
		renewalsTotal.WithLabelValues("no_refresh").Inc()
		c.logger.Warn("Обновление токена невозможно: нет refresh token")
		return "", errRenewalRefused
	}

	ch := c.renewals.DoChan(pair.Refresh, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), renewTimeout)
		defer cancel()
		return c.refresh(rctx, pair)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		renewalsTotal.WithLabelValues("cancelled").Inc()
		return "", fmt.Errorf("%w: обновление токена: %w", apierr.ErrTransport, ctx.Err())
	case res = <-ch:
	}

	if res.Err != nil {
		result := "failed"
		if !errors.Is(res.Err, errRenewalRefused) {
			result = "transport"
		}
		renewalsTotal.WithLabelValues(result).Inc()
		c.logger.Warn("Обновление токена не удалось", slog.String("result", result), slog.String("error", res.Err.Error()))
		return "", res.Err
	}

	renewalsTotal.WithLabelValues("ok").Inc()
	return res.Val.(string), nil
}

// refresh обращается к endpoint'у обновления и сохраняет новый access token.
// Ошибки ответа backend оборачиваются в errRenewalRefused, сетевые остаются apierr.ErrTransport.
func (c *Client) refresh(ctx context.Context, pair credstore.Pair) (string, error) {
	resp, err := c.postToken(ctx, c.refreshPath, refreshRequest{Refresh: pair.Refresh})
	if err != nil {
		return "", err
	}

	var tokens TokenResponse
	if err := decodeResponse(resp, &tokens); err != nil {
		return "", fmt.Errorf("%w: %w", errRenewalRefused, err)
	}
	if tokens.Access == "" {
		return "", fmt.Errorf("%w: ответ не содержит access token", errRenewalRefused)
	}

	next := credstore.Pair{Access: tokens.Access, Refresh: pair.Refresh}
	if tokens.Refresh != "" {
		next.Refresh = tokens.Refresh
	}
	if err := c.store.Write(next); err != nil {
		return "", fmt.Errorf("сохранение токенов: %w", err)
	}

	c.logger.Info("Access token обновлён", slog.Bool("rotated", tokens.Refresh != ""))
	return tokens.Access, nil
}

// postToken отправляет JSON на endpoint аутентификации без bearer-заголовка.
func (c *Client) postToken(ctx context.Context, path string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("сериализация тела запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.lang != "" {
		req.Header.Set("Accept-Language", c.lang)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: POST %s: %w", apierr.ErrTransport, path, err)
	}
	return resp, nil
}
