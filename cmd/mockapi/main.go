// Точка входа mock backend — DRF-совместимого API справочников.
// Загружает конфигурацию, заполняет хранилище демонстрационными данными
// и запускает HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/bigkaa/mdclient/internal/config"
	"github.com/bigkaa/mdclient/internal/mockapi"
)

func main() {
	// 1. Загрузка конфигурации (.env не перезаписывает окружение)
	if err := config.LoadEnvFile(""); err != nil {
		slog.Error("Ошибка чтения .env", slog.String("error", err.Error()))
		os.Exit(1)
	}
	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	logger.Info("Mock backend запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("user", cfg.UserEmail),
	)

	// 3. Хранилище с демонстрационными данными
	store := mockapi.NewStore()
	if err := mockapi.Seed(context.Background(), store); err != nil {
		logger.Error("Ошибка заполнения хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. HTTP-сервер
	srv := mockapi.New(cfg, store, logger)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
