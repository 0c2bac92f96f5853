// Package csvio — выгрузка и загрузка CSV через endpoints export/import ресурса.
// Формат строк CSV определяет сервер; клиент разбирает только CSV ошибок
// частично отклонённой загрузки.
package csvio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/bigkaa/mdclient/internal/apiclient"
	"github.com/bigkaa/mdclient/internal/apierr"
)

// maxBody — ограничение размера тела ответа export/import.
var maxBody int64 = 64 << 20

// ErrTooLarge — ответ больше maxBody.
var ErrTooLarge = errors.New("ответ превышает допустимый размер")

// Sender — отправка запроса с получением сырого ответа (*apiclient.Client).
type Sender interface {
	Send(ctx context.Context, req *apiclient.Request) (*http.Response, error)
}

// ExportResult — выгруженный файл.
type ExportResult struct {
	Filename string
	Data     []byte
}

// ImportResult — итог загрузки.
// При Partial сервер отклонил файл целиком и вернул CSV с ошибками по строкам.
type ImportResult struct {
	Count    int
	Partial  bool
	Filename string
	ErrorCSV []byte
	Rows     []RowError
}

// DefaultFilename возвращает имя файла вида <prefix>_YYYYMMDDHHMMSS.csv.
func DefaultFilename(prefix string, now time.Time) string {
	return prefix + "_" + now.Format("20060102150405") + ".csv"
}

// Export выгружает CSV ресурса с учётом фильтров query.
// Имя файла берётся из Content-Disposition, иначе — DefaultFilename.
func Export(ctx context.Context, client Sender, resourcePath string, query url.Values, fallbackPrefix string, now time.Time) (ExportResult, error) {
	resp, err := client.Send(ctx, &apiclient.Request{
		Method: http.MethodGet,
		Path:   resourcePath + "export/",
		Query:  query,
	})
	if err != nil {
		return ExportResult{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ExportResult{}, apierr.FromResponse(resp)
	}
	defer resp.Body.Close()

	data, err := readBody(resp.Body)
	if errors.Is(err, ErrTooLarge) {
		return ExportResult{}, fmt.Errorf("чтение CSV: %w", err)
	}
	if err != nil {
		return ExportResult{}, fmt.Errorf("%w: чтение CSV: %w", apierr.ErrTransport, err)
	}

	name := filenameOf(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = DefaultFilename(fallbackPrefix, now)
	}
	return ExportResult{Filename: name, Data: data}, nil
}

// Import загружает CSV (multipart, поле file).
// Ответ 2xx text/csv — частичный отказ с CSV ошибок; 2xx JSON {count} — успех.
func Import(ctx context.Context, client Sender, resourcePath, filename string, content []byte) (ImportResult, error) {
	resp, err := client.Send(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   resourcePath + "import/",
		Form: &apiclient.Form{
			Files: []apiclient.FilePart{{Field: "file", Filename: filepath.Base(filename), Content: content}},
		},
	})
	if err != nil {
		return ImportResult{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ImportResult{}, apierr.FromResponse(resp)
	}
	defer resp.Body.Close()

	data, err := readBody(resp.Body)
	if errors.Is(err, ErrTooLarge) {
		return ImportResult{}, fmt.Errorf("чтение ответа: %w", err)
	}
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: чтение ответа: %w", apierr.ErrTransport, err)
	}

	if isCSV(resp.Header.Get("Content-Type")) {
		rows, err := ParseErrorCSV(data)
		if err != nil {
			return ImportResult{}, err
		}
		return ImportResult{
			Partial:  true,
			Filename: filenameOf(resp.Header.Get("Content-Disposition")),
			ErrorCSV: data,
			Rows:     rows,
		}, nil
	}

	var body struct {
		Count int `json:"count"`
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			return ImportResult{}, fmt.Errorf("декодирование ответа импорта: %w", err)
		}
	}
	return ImportResult{Count: body.Count}, nil
}

// readBody читает тело целиком; тело длиннее maxBody — ErrTooLarge.
func readBody(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBody {
		return nil, fmt.Errorf("%w: больше %d байт", ErrTooLarge, maxBody)
	}
	return data, nil
}

// filenameOf извлекает filename из Content-Disposition.
func filenameOf(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	name := params["filename"]
	if name == "" {
		return ""
	}
	return filepath.Base(name)
}

func isCSV(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "text/csv")
	}
	return mediaType == "text/csv"
}
