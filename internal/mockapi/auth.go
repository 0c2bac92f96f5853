// auth.go — выдача и проверка JWT (HS256) mock backend.
// Совместим с simplejwt: POST /api/auth/login/ → {access, refresh},
// POST /api/auth/refresh/ → {access}; claim token_type различает виды токенов.
package mockapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// contextKeyUser — аутентифицированный пользователь в контексте запроса.
const contextKeyUser contextKey = "mock_user"

// Виды токенов (claim token_type).
const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

// errTokenKind — токен другого вида (refresh вместо access и наоборот).
var errTokenKind = errors.New("неверный вид токена")

// User — учётная запись mock backend.
type User struct {
	ID       int64
	Email    string
	Password string
	Tenant   string
}

// tokenClaims — claims выдаваемых токенов.
type tokenClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"token_type"`
	Email     string `json:"email"`
	Tenant    string `json:"tenant"`
}

// Auth — выдача и проверка токенов одного пользователя.
type Auth struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	user       User
	now        func() time.Time
	logger     *slog.Logger
}

// NewAuth создаёт Auth с секретом подписи HS256.
func NewAuth(secret string, accessTTL, refreshTTL time.Duration, user User, logger *slog.Logger) *Auth {
	return &Auth{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		user:       user,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "mock_auth")),
	}
}

// issue подписывает токен указанного вида.
func (a *Auth) issue(kind string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(a.user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		TokenType: kind,
		Email:     a.user.Email,
		Tenant:    a.user.Tenant,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// parse проверяет подпись, срок действия и вид токена.
func (a *Auth) parse(tokenString, kind string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != kind {
		return nil, errTokenKind
	}
	return claims, nil
}

// login — POST /api/auth/login/.
func (a *Auth) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"` //nolint:gosec // учётные данные пользователя
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, tr(r.Context(), "error.bad_json"))
		return
	}

	fe := make(fieldErrors)
	if strings.TrimSpace(req.Email) == "" {
		fe.add("email", tr(r.Context(), "validation.required"))
	}
	if req.Password == "" {
		fe.add("password", tr(r.Context(), "validation.required"))
	}
	if len(fe) > 0 {
		writeFieldErrors(w, fe)
		return
	}

	emailOK := strings.EqualFold(strings.TrimSpace(req.Email), a.user.Email)
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(a.user.Password)) == 1
	if !emailOK || !passOK {
		a.logger.Warn("Неудачная попытка входа", slog.String("email", req.Email))
		writeDetail(w, http.StatusUnauthorized, tr(r.Context(), "auth.invalid_credentials"))
		return
	}

	access, err := a.issue(tokenAccess, a.accessTTL)
	if err != nil {
		a.internalError(w, err)
		return
	}
	refresh, err := a.issue(tokenRefresh, a.refreshTTL)
	if err != nil {
		a.internalError(w, err)
		return
	}

	a.logger.Info("Вход выполнен", slog.String("email", a.user.Email))
	writeJSON(w, http.StatusOK, map[string]string{"access": access, "refresh": refresh})
}

// refresh — POST /api/auth/refresh/. Refresh token не ротируется.
func (a *Auth) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"` //nolint:gosec // структура токена
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, tr(r.Context(), "error.bad_json"))
		return
	}
	if req.Refresh == "" {
		writeFieldErrors(w, fieldErrors{"refresh": {tr(r.Context(), "validation.required")}})
		return
	}

	if _, err := a.parse(req.Refresh, tokenRefresh); err != nil {
		a.logger.Debug("Refresh token отклонён", slog.String("error", err.Error()))
		a.tokenInvalid(w, r)
		return
	}

	access, err := a.issue(tokenAccess, a.accessTTL)
	if err != nil {
		a.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

// me — GET /api/me/.
func (a *Auth) me(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       u.ID,
		"username": u.Email,
		"email":    u.Email,
	})
}

// Middleware требует действующий access token в заголовке Authorization.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeDetail(w, http.StatusUnauthorized, tr(r.Context(), "auth.not_authenticated"))
			return
		}

		scheme, tokenString, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
			a.tokenInvalid(w, r)
			return
		}

		if _, err := a.parse(tokenString, tokenAccess); err != nil {
			a.logger.Debug("JWT валидация не пройдена",
				slog.String("error", err.Error()),
				slog.String("remote_addr", r.RemoteAddr),
			)
			a.tokenInvalid(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyUser, a.user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userFromContext возвращает пользователя запроса.
func userFromContext(ctx context.Context) User {
	u, _ := ctx.Value(contextKeyUser).(User)
	return u
}

func (a *Auth) tokenInvalid(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"detail": tr(r.Context(), "auth.token_invalid"),
		"code":   "token_not_valid",
	})
}

func (a *Auth) internalError(w http.ResponseWriter, err error) {
	a.logger.Error("Ошибка подписи токена", slog.String("error", err.Error()))
	writeDetail(w, http.StatusInternalServerError, "Internal server error")
}
