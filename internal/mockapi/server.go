// Package mockapi — mock master-data backend (DRF-совместимый REST API)
// для локальной разработки и сквозных тестов клиента.
package mockapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/mdclient/internal/config"
	"github.com/bigkaa/mdclient/internal/i18n"
)

// Server — HTTP-сервер mock backend.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// NewRouter собирает маршруты mock backend.
// /api/auth/*, /api/health/ и /metrics доступны без токена.
func NewRouter(store *Store, auth *Auth, logger *slog.Logger) http.Handler {
	router := chi.NewRouter()

	router.Use(instrument(logger))
	router.Use(i18n.Middleware())

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/api/health/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Post("/api/auth/login/", auth.login)
	router.Post("/api/auth/refresh/", auth.refresh)

	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Get("/api/me/", auth.me)

		for _, name := range store.Resources() {
			sc, _ := store.schemaOf(name)
			h := &handler{
				store:    store,
				resource: name,
				sc:       sc,
				logger:   logger.With(slog.String("component", "mock_handler")),
			}
			r.Route("/api/"+name, h.routes)
		}
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		notFound(w, r)
	})
	return router
}

// New создаёт сервер mock backend.
func New(cfg *config.ServerConfig, store *Store, logger *slog.Logger) *Server {
	auth := NewAuth(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, User{
		ID:       1,
		Email:    cfg.UserEmail,
		Password: cfg.UserPassword,
		Tenant:   cfg.Tenant,
	}, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(store, auth, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer:      srv,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
