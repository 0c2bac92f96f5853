// Пакет i18n — локализация пользовательских сообщений mdclient и mock backend.
// Поддерживаемые языки: English (en), Русский (ru), 日本語 (ja).
// Каталоги — плоские JSON-файлы, встроенные в бинарник.
package i18n

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/text/language"
)

// DefaultLang — язык по умолчанию и fallback для отсутствующих ключей.
const DefaultLang = "en"

var (
	// SupportedLanguages — список поддерживаемых тегов языков.
	SupportedLanguages = []language.Tag{
		language.English,
		language.Russian,
		language.Japanese,
	}

	// matcher — языковой matcher для Accept-Language.
	matcher = language.NewMatcher(SupportedLanguages)
)

// contextKey — тип ключа для контекста (избегаем коллизий).
type contextKey string

const contextKeyLang contextKey = "i18n_lang"

// Bundle — хранилище переводов для всех языков.
type Bundle struct {
	mu       sync.RWMutex
	catalogs map[string]map[string]string // lang → key → translation
	logger   *slog.Logger
}

// NewBundle создаёт пустой Bundle.
func NewBundle(logger *slog.Logger) *Bundle {
	return &Bundle{
		catalogs: make(map[string]map[string]string),
		logger:   logger,
	}
}

// LoadMessages загружает JSON-каталог переводов для указанного языка.
// JSON формат: {"key": "translation", ...} (плоский).
func (b *Bundle) LoadMessages(lang string, data []byte) error {
	var messages map[string]string
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("i18n: ошибка парсинга каталога %s: %w", lang, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.catalogs[lang] = messages

	if b.logger != nil {
		b.logger.Debug("i18n каталог загружен",
			slog.String("lang", lang),
			slog.Int("keys", len(messages)),
		)
	}
	return nil
}

// Translate возвращает перевод по ключу для указанного языка.
// Если ключ не найден — возвращает ключ как есть.
func (b *Bundle) Translate(lang, key string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if catalog, ok := b.catalogs[lang]; ok {
		if msg, ok := catalog[key]; ok {
			return msg
		}
	}

	// Fallback на английский
	if lang != DefaultLang {
		if catalog, ok := b.catalogs[DefaultLang]; ok {
			if msg, ok := catalog[key]; ok {
				return msg
			}
		}
	}

	return key
}

// Translatef возвращает перевод по ключу с подстановкой аргументов.
func (b *Bundle) Translatef(lang, key string, args ...any) string {
	template := b.Translate(lang, key)
	if len(args) == 0 {
		return template
	}
	return formatFunc(template, args...)
}

// Localizer — Bundle, привязанный к одному языку.
// Нулевое значение использует Default() и английский язык.
type Localizer struct {
	bundle *Bundle
	lang   string
}

// NewLocalizer создаёт Localizer. nil bundle — встроенные каталоги.
func NewLocalizer(bundle *Bundle, lang string) Localizer {
	if lang == "" {
		lang = DefaultLang
	}
	return Localizer{bundle: bundle, lang: lang}
}

// Lang возвращает язык локализатора.
func (l Localizer) Lang() string {
	if l.lang == "" {
		return DefaultLang
	}
	return l.lang
}

// T возвращает перевод ключа.
func (l Localizer) T(key string) string {
	return l.resolve().Translate(l.Lang(), key)
}

// Tf возвращает перевод ключа с подстановкой аргументов.
func (l Localizer) Tf(key string, args ...any) string {
	return l.resolve().Translatef(l.Lang(), key, args...)
}

func (l Localizer) resolve() *Bundle {
	if l.bundle != nil {
		return l.bundle
	}
	return Default()
}

// --- Встроенный Bundle ---

var (
	defaultBundle *Bundle
	defaultOnce   sync.Once
)

// Default возвращает Bundle со встроенными каталогами (загружается один раз).
// Встроенные каталоги проверяются тестами, поэтому ошибка загрузки здесь невозможна
// в собранном бинарнике; при её возникновении Bundle остаётся пустым.
func Default() *Bundle {
	defaultOnce.Do(func() {
		defaultBundle = NewBundle(nil)
		if err := LoadFromEmbedFS(defaultBundle, slog.Default()); err != nil {
			slog.Default().Error("i18n: встроенные каталоги не загружены", slog.String("error", err.Error()))
		}
	})
	return defaultBundle
}

// WithLang помещает язык в контекст.
func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, contextKeyLang, lang)
}

// LangFromContext извлекает язык из контекста. Default: "en".
func LangFromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(contextKeyLang).(string); ok && lang != "" {
		return lang
	}
	return DefaultLang
}

// T возвращает перевод по ключу, используя язык из контекста.
func T(ctx context.Context, key string) string {
	return Default().Translate(LangFromContext(ctx), key)
}

// formatFunc — ссылка на fmt.Sprintf через переменную: формат-строки приходят
// из JSON-каталогов, статическая проверка go vet к ним неприменима.
//
//nolint:govet // обход go vet printf-анализатора
var formatFunc = fmt.Sprintf

// MatchLanguage определяет лучший язык из Accept-Language заголовка.
// Возвращает "en", "ru" или "ja".
func MatchLanguage(acceptLanguage string) string {
	_, idx := language.MatchStrings(matcher, acceptLanguage)
	base, _ := SupportedLanguages[idx].Base()
	return base.String()
}
