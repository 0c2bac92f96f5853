package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/bigkaa/mdclient/internal/i18n"
)

// Форматы вывода списка.
const (
	outputTable = "table"
	outputJSON  = "json"
)

// renderPage выводит страницу списка таблицей со строкой итогов или JSON.
func renderPage(w io.Writer, view pageView, format string, loc i18n.Localizer) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view.Records)
	}

	if len(view.Rows) == 0 {
		_, _ = fmt.Fprintln(w, loc.T("cli.list_empty"))
		return nil
	}
	renderTable(w, view.Headers, view.Rows, -1)
	_, _ = fmt.Fprintln(w, loc.Tf("cli.list_summary", view.Page, max(view.Pages, 1), view.Total))
	return nil
}

// renderTable выводит таблицу; строка с индексом marked помечается "›".
func renderTable(w io.Writer, headers []string, rows [][]string, marked int) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, 0, len(headers)+1)
	header = append(header, "")
	for _, h := range headers {
		header = append(header, h)
	}
	t.AppendHeader(header)

	for i, line := range rows {
		row := make(table.Row, 0, len(line)+1)
		mark := ""
		if i == marked {
			mark = "›"
		}
		row = append(row, mark)
		for _, v := range line {
			row = append(row, v)
		}
		t.AppendRow(row)
	}
	t.Render()
}

// renderPairs выводит таблицу "поле — значение".
func renderPairs(w io.Writer, rows [][2]string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	for _, r := range rows {
		t.AppendRow(table.Row{r[0], r[1]})
	}
	t.Render()
}
