package csvio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// Формат CSV ошибок импорта: UTF-8 с BOM, первая колонка — номер строки
// исходного файла, последняя — ошибки через " / ".
const (
	RowNumberHeader = "行番号"
	ErrorsHeader    = "エラー内容"
	ErrorSeparator  = " / "
	bom             = "\ufeff"
)

// ErrBadErrorCSV — ответ не похож на CSV ошибок импорта.
var ErrBadErrorCSV = errors.New("некорректный CSV ошибок импорта")

// RowError — отклонённая строка исходного файла.
type RowError struct {
	// Row — номер строки исходного файла (0, если сервер его не указал).
	Row    int
	Values map[string]string
	Errors []string
}

// ParseErrorCSV разбирает CSV ошибок, возвращённый сервером.
func ParseErrorCSV(data []byte) ([]RowError, error) {
	data = bytes.TrimPrefix(data, []byte(bom))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: заголовок: %w", ErrBadErrorCSV, err)
	}

	rowCol := slices.Index(header, RowNumberHeader)
	errCol := slices.Index(header, ErrorsHeader)
	if errCol < 0 {
		errCol = len(header) - 1
	}
	if rowCol < 0 && errCol == 0 {
		return nil, fmt.Errorf("%w: нет колонки %s", ErrBadErrorCSV, RowNumberHeader)
	}

	var out []RowError
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadErrorCSV, err)
		}

		re := RowError{Values: make(map[string]string)}
		for i, value := range rec {
			switch {
			case i == rowCol:
				re.Row, _ = strconv.Atoi(strings.TrimSpace(value))
			case i == errCol:
				re.Errors = splitErrors(value)
			case i < len(header):
				re.Values[header[i]] = value
			}
		}
		out = append(out, re)
	}
	return out, nil
}

// WriteErrorCSV записывает CSV ошибок в формате, который читает ParseErrorCSV.
// columns — колонки исходного файла в порядке вывода.
func WriteErrorCSV(w io.Writer, columns []string, rows []RowError) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := append([]string{RowNumberHeader}, columns...)
	header = append(header, ErrorsHeader)
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, strconv.Itoa(row.Row))
		for _, col := range columns {
			rec = append(rec, row.Values[col])
		}
		rec = append(rec, strings.Join(row.Errors, ErrorSeparator))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func splitErrors(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ErrorSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
