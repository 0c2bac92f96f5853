// csv.go — выгрузка и загрузка CSV ресурса.
// Загрузка атомарна: при любой ошибке не сохраняется ни одна строка,
// а в ответ (200 text/csv) уходят только строки с ошибками.
package mockapi

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/bigkaa/mdclient/internal/csvio"
)

// Ограничения загрузки.
const (
	maxUploadSize = 10 << 20
	// firstDataRow — номер первой строки данных (строка 1 — заголовок).
	firstDataRow = 2
)

// export — GET /api/<resource>/export/ с фильтрами списка, без пагинации.
func (h *handler) export(w http.ResponseWriter, r *http.Request) {
	rows := h.store.List(h.resource, h.paramsOf(r.URL.Query()))

	var buf bytes.Buffer
	buf.WriteString("\ufeff")
	cw := csv.NewWriter(&buf)

	header := append([]string{"ID"}, h.sc.headers()...)
	header = append(header, "削除済み")
	_ = cw.Write(header)

	for _, rec := range rows {
		line := make([]string, 0, len(header))
		line = append(line, fmt.Sprint(rec.id()))
		for _, f := range h.sc.fields {
			line = append(line, cell(rec[f.name]))
		}
		deleted := "0"
		if rec.deleted() {
			deleted = "1"
		}
		line = append(line, deleted)
		_ = cw.Write(line)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Error("Ошибка формирования CSV", slog.String("error", err.Error()))
		writeDetail(w, http.StatusInternalServerError, tr(r.Context(), "error.generic"))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(csvio.DefaultFilename(h.resource, time.Now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// importCSV — POST /api/<resource>/import/ (multipart, поле file).
func (h *handler) importCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, tr(r.Context(), "import.no_file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, tr(r.Context(), "import.no_file"))
		return
	}

	header, records, err := readCSV(data)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, tr(r.Context(), "import.bad_header", err.Error()))
		return
	}

	if missing := h.missingHeaders(header); len(missing) > 0 {
		writeDetail(w, http.StatusBadRequest, tr(r.Context(), "import.bad_header", strings.Join(missing, ", ")))
		return
	}

	var (
		ok     []row
		failed []csvio.RowError
		seen   = make(map[string]int)
	)
	for i, rec := range records {
		values := make(map[string]string, len(header))
		input := make(map[string]any)
		for col, name := range header {
			if col >= len(rec) {
				break
			}
			values[name] = rec[col]
			if f, found := h.fieldByHeader(name); found {
				input[f.name] = rec[col]
			}
		}

		rowNo := i + firstDataRow
		var errs []string
		validated, err := h.store.Validate(r.Context(), h.resource, input)
		var ve *validationError
		switch {
		case errors.As(err, &ve):
			errs = append(errs, describe(ve.fields)...)
		case err != nil:
			errs = append(errs, err.Error())
		}

		if err == nil {
			for _, key := range h.uniqueKeys(validated) {
				if prev, dup := seen[key]; dup {
					errs = append(errs, tr(r.Context(), "import.duplicate_row", prev))
					continue
				}
				seen[key] = rowNo
			}
		}

		if len(errs) > 0 {
			failed = append(failed, csvio.RowError{Row: rowNo, Values: values, Errors: errs})
			continue
		}
		ok = append(ok, validated)
	}

	if len(failed) > 0 {
		h.logger.Warn("Импорт отклонён",
			slog.String("resource", h.resource),
			slog.Int("rows", len(records)),
			slog.Int("failed", len(failed)),
		)
		var buf bytes.Buffer
		if err := csvio.WriteErrorCSV(&buf, header, failed); err != nil {
			h.logger.Error("Ошибка формирования CSV ошибок", slog.String("error", err.Error()))
			writeDetail(w, http.StatusInternalServerError, tr(r.Context(), "error.generic"))
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", attachment(csvio.DefaultFilename(h.resource+"_import_error", time.Now())))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
		return
	}

	count := h.store.createBatch(h.resource, ok, userFromContext(r.Context()).Email)
	h.logger.Info("Импорт выполнен", slog.String("resource", h.resource), slog.Int("count", count))
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// missingHeaders возвращает заголовки обязательных полей, которых нет в файле.
func (h *handler) missingHeaders(header []string) []string {
	var missing []string
	for _, f := range h.sc.fields {
		if f.required && !slices.Contains(header, f.header) {
			missing = append(missing, f.header)
		}
	}
	return missing
}

func (h *handler) fieldByHeader(header string) (field, bool) {
	for _, f := range h.sc.fields {
		if f.header == header || f.name == header {
			return f, true
		}
	}
	return field{}, false
}

// uniqueKeys — ключи уникальных наборов полей строки для поиска повторов внутри файла.
func (h *handler) uniqueKeys(values row) []string {
	keys := make([]string, 0, len(h.sc.unique))
	for i, set := range h.sc.unique {
		parts := []string{fmt.Sprint(i)}
		for _, name := range set {
			parts = append(parts, fmt.Sprint(values[name]))
		}
		keys = append(keys, strings.Join(parts, "\x00"))
	}
	return keys
}

// readCSV разбирает файл (UTF-8, BOM допустим) на заголовок и строки.
func readCSV(data []byte) ([]string, [][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1

	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, errors.New("пустой файл")
	}

	header := make([]string, len(all[0]))
	for i, name := range all[0] {
		header[i] = strings.TrimSpace(name)
	}
	return header, all[1:], nil
}

// describe превращает ошибки полей в строки "поле: сообщение / сообщение".
func describe(fe fieldErrors) []string {
	names := make([]string, 0, len(fe))
	for name := range fe {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		msg := strings.Join(fe[name], csvio.ErrorSeparator)
		if name == nonFieldKey {
			out = append(out, msg)
			continue
		}
		out = append(out, name+": "+msg)
	}
	return out
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}

func attachment(filename string) string {
	return fmt.Sprintf(`attachment; filename="%s"`, filename)
}
