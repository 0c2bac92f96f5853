// Пакет config — загрузка и валидация конфигурации mdclient
// из переменных окружения (с опциональным .env файлом).
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Поддерживаемые языки сообщений.
var supportedLangs = map[string]bool{"en": true, "ru": true, "ja": true}

// Config содержит параметры клиента.
type Config struct {
	// --- Backend ---

	// Базовый URL backend (например, http://localhost:8000)
	APIURL string
	// Путь endpoint'а входа
	LoginPath string
	// Путь endpoint'а обновления access token
	RefreshPath string
	// Таймаут HTTP-запросов
	HTTPTimeout time.Duration
	// Путь к CA-сертификату для TLS (опционально)
	CACertPath string

	// --- Хранилище учётных данных ---

	// Путь к файлу с токенами
	CredentialsFile string
	// Ключ шифрования файла токенов (пустой — без шифрования)
	CredentialsKey string

	// --- Списки ---

	// Размер страницы по умолчанию
	PageSize int
	// Размер кэша справочников
	ChoicesCacheSize int
	// Время жизни записей кэша справочников
	ChoicesCacheTTL time.Duration

	// --- Интерфейс ---

	// Язык сообщений (en, ru, ja)
	Lang string
	// Файл истории консоли
	HistoryFile string

	// --- Логирование ---

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
}

// ServerConfig содержит параметры mock backend.
type ServerConfig struct {
	// Порт HTTP-сервера
	Port int
	// Секрет подписи JWT (HS256)
	JWTSecret string
	// Время жизни access token
	AccessTTL time.Duration
	// Время жизни refresh token
	RefreshTTL time.Duration
	// Учётная запись пользователя
	UserEmail    string
	UserPassword string
	// Код тенанта пользователя
	Tenant string
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	LogLevel  slog.Level
	LogFormat string
}

// LoadEnvFile загружает переменные из .env файла, не перезаписывая уже заданные.
// Отсутствие файла не считается ошибкой.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("чтение %s: %w", path, err)
	}
	return nil
}

// Load загружает конфигурацию клиента из переменных окружения.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Backend ---

	// MDC_API_URL — базовый URL backend (по умолчанию http://localhost:8000)
	cfg.APIURL = strings.TrimRight(getEnvDefault("MDC_API_URL", "http://localhost:8000"), "/")
	if !strings.HasPrefix(cfg.APIURL, "http://") && !strings.HasPrefix(cfg.APIURL, "https://") {
		return nil, fmt.Errorf("MDC_API_URL: ожидается http:// или https://, получено %q", cfg.APIURL)
	}

	cfg.LoginPath = getEnvDefault("MDC_LOGIN_PATH", "/api/auth/login/")
	cfg.RefreshPath = getEnvDefault("MDC_REFRESH_PATH", "/api/auth/refresh/")

	// MDC_HTTP_TIMEOUT — таймаут HTTP-запросов (по умолчанию 30s)
	cfg.HTTPTimeout, err = getEnvDuration("MDC_HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MDC_HTTP_TIMEOUT: %w", err)
	}

	cfg.CACertPath = getEnvDefault("MDC_CA_CERT_PATH", "")

	// --- Хранилище учётных данных ---

	cfg.CredentialsFile = getEnvDefault("MDC_CREDENTIALS_FILE", filepath.Join(configDir(), "credentials.json"))
	cfg.CredentialsKey = getEnvDefault("MDC_CREDENTIALS_KEY", "")

	// --- Списки ---

	// MDC_PAGE_SIZE — размер страницы (по умолчанию 20)
	cfg.PageSize, err = getEnvInt("MDC_PAGE_SIZE", 20)
	if err != nil {
		return nil, fmt.Errorf("MDC_PAGE_SIZE: %w", err)
	}
	if cfg.PageSize < 1 || cfg.PageSize > 200 {
		return nil, fmt.Errorf("MDC_PAGE_SIZE: значение %d вне допустимого диапазона 1-200", cfg.PageSize)
	}

	cfg.ChoicesCacheSize, err = getEnvInt("MDC_CHOICES_CACHE_SIZE", 64)
	if err != nil {
		return nil, fmt.Errorf("MDC_CHOICES_CACHE_SIZE: %w", err)
	}
	if cfg.ChoicesCacheSize < 1 {
		return nil, fmt.Errorf("MDC_CHOICES_CACHE_SIZE: значение должно быть положительным, получено %d", cfg.ChoicesCacheSize)
	}

	cfg.ChoicesCacheTTL, err = getEnvDuration("MDC_CHOICES_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MDC_CHOICES_CACHE_TTL: %w", err)
	}

	// --- Интерфейс ---

	// MDC_LANG — язык сообщений (по умолчанию en)
	cfg.Lang = strings.ToLower(getEnvDefault("MDC_LANG", "en"))
	if !supportedLangs[cfg.Lang] {
		return nil, fmt.Errorf("MDC_LANG: недопустимое значение %q, допустимые: en, ru, ja", cfg.Lang)
	}

	cfg.HistoryFile = getEnvDefault("MDC_HISTORY_FILE", filepath.Join(configDir(), "history"))

	// --- Логирование ---

	cfg.LogLevel, cfg.LogFormat, err = loadLogging("warn", "text")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadServer загружает конфигурацию mock backend.
func LoadServer() (*ServerConfig, error) {
	cfg := &ServerConfig{}
	var err error

	// MDC_MOCK_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("MDC_MOCK_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("MDC_MOCK_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("MDC_MOCK_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// MDC_MOCK_JWT_SECRET — обязательный
	cfg.JWTSecret, err = getEnvRequired("MDC_MOCK_JWT_SECRET")
	if err != nil {
		return nil, err
	}

	cfg.AccessTTL, err = getEnvDuration("MDC_MOCK_ACCESS_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MDC_MOCK_ACCESS_TTL: %w", err)
	}
	cfg.RefreshTTL, err = getEnvDuration("MDC_MOCK_REFRESH_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("MDC_MOCK_REFRESH_TTL: %w", err)
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, fmt.Errorf("MDC_MOCK_REFRESH_TTL: должен превышать MDC_MOCK_ACCESS_TTL (%v)", cfg.AccessTTL)
	}

	cfg.UserEmail = getEnvDefault("MDC_MOCK_USER_EMAIL", "admin@example.com")
	cfg.UserPassword = getEnvDefault("MDC_MOCK_USER_PASSWORD", "admin")
	cfg.Tenant = getEnvDefault("MDC_MOCK_TENANT", "T001")

	cfg.ShutdownTimeout, err = getEnvDuration("MDC_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MDC_SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg.LogLevel, cfg.LogFormat, err = loadLogging("info", "json")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadLogging читает MDC_LOG_LEVEL и MDC_LOG_FORMAT.
func loadLogging(defLevel, defFormat string) (slog.Level, string, error) {
	level, err := parseLogLevel(getEnvDefault("MDC_LOG_LEVEL", defLevel))
	if err != nil {
		return 0, "", fmt.Errorf("MDC_LOG_LEVEL: %w", err)
	}

	format := getEnvDefault("MDC_LOG_FORMAT", defFormat)
	if format != "json" && format != "text" {
		return 0, "", fmt.Errorf("MDC_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", format)
	}
	return level, format, nil
}

// SetupLogger настраивает глобальный slog-логгер.
// Логи пишутся в w (CLI использует stderr, чтобы не смешивать их с выводом таблиц).
func SetupLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// configDir возвращает каталог конфигурации пользователя ($XDG_CONFIG_HOME/mdclient).
func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "mdclient")
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "mdclient")
	}
	return ".mdclient"
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
