// loader.go — загрузка каталогов переводов из embed.FS.
package i18n

import (
	"embed"
	"fmt"
	"log/slog"
)

// LocaleFS — встроенные JSON-каталоги переводов.
//
//go:embed locales/*.json
var LocaleFS embed.FS

// Languages — коды языков, для которых есть встроенные каталоги.
var Languages = []string{"en", "ru", "ja"}

// LoadFromEmbedFS загружает все каталоги переводов из встроенной файловой системы.
// Ожидаемые файлы: locales/en.json, locales/ru.json, locales/ja.json.
func LoadFromEmbedFS(bundle *Bundle, logger *slog.Logger) error {
	for _, lang := range Languages {
		path := fmt.Sprintf("locales/%s.json", lang)
		data, err := LocaleFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("i18n: не удалось прочитать %s: %w", path, err)
		}

		if err := bundle.LoadMessages(lang, data); err != nil {
			return err
		}
	}

	if logger != nil {
		logger.Debug("i18n каталоги загружены", slog.Int("languages", len(Languages)))
	}
	return nil
}
