package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bigkaa/mdclient/internal/csvio"
)

// exportTo выгружает CSV в файл out ("-" — в stdout, пусто — имя от сервера).
// Возвращает путь записанного файла; для stdout — пустую строку.
func exportTo(ctx context.Context, app *App, resourcePath, name string, query url.Values, out string, stdout io.Writer) (string, error) {
	res, err := csvio.Export(ctx, app.client, resourcePath, query, name, time.Now())
	if err != nil {
		return "", err
	}

	if out == "-" {
		_, err := stdout.Write(res.Data)
		return "", err
	}
	path := out
	if path == "" {
		path = res.Filename
	}
	if err := os.WriteFile(path, res.Data, 0o644); err != nil {
		return "", fmt.Errorf("запись %s: %w", path, err)
	}
	return path, nil
}

// ErrImportRejected — сервер отклонил файл импорта.
var ErrImportRejected = errors.New("импорт отклонён")

func newExportCommand() *cobra.Command {
	var (
		flags queryFlags
		out   string
	)

	cmd := &cobra.Command{
		Use:   "export <resource>",
		Short: "Download the filtered resource list as CSV",
		Example: `  mdclient export partners -f partner_type=supplier
  mdclient export products --out - > products.csv`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: resourceNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loggedInApp(cmd)
			if err != nil {
				return err
			}
			b, err := app.resource(args[0])
			if err != nil {
				return err
			}
			q, err := flags.query(app, b)
			if err != nil {
				return err
			}

			// Выгрузка не постраничная
			values := q.Values()
			values.Del("page")
			values.Del("page_size")

			path, err := exportTo(cmd.Context(), app, b.Path(), b.Name(), values, out, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if path == "" {
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), app.loc.Tf("export.done", path))
			return nil
		},
	}

	flags.register(cmd, false)
	cmd.Flags().StringVar(&out, "out", "", "output file, - for stdout (default: name suggested by the server)")
	return cmd
}

func newImportCommand() *cobra.Command {
	var errorsOut string

	cmd := &cobra.Command{
		Use:   "import <resource> <file>",
		Short: "Upload a CSV file; nothing is saved if any row fails",
		Example: `  mdclient import partners partners.csv
  mdclient import products products.csv --errors-out rejected.csv`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loggedInApp(cmd)
			if err != nil {
				return err
			}
			b, err := app.resource(args[0])
			if err != nil {
				return err
			}

			content, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("чтение %s: %w", args[1], err)
			}

			res, err := csvio.Import(cmd.Context(), app.client, b.Path(), args[1], content)
			if err != nil {
				return err
			}
			if !res.Partial {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), app.loc.Tf("import.ok", res.Count))
				return nil
			}

			path := errorsOut
			if path == "" {
				path = res.Filename
			}
			if path == "" {
				path = csvio.DefaultFilename(b.Name()+"_import_error", time.Now())
			}
			path = filepath.Clean(path)
			if err := os.WriteFile(path, res.ErrorCSV, 0o644); err != nil {
				return fmt.Errorf("запись %s: %w", path, err)
			}

			rows := make([][]string, 0, len(res.Rows))
			for _, r := range res.Rows {
				rows = append(rows, []string{strconv.Itoa(r.Row), strings.Join(r.Errors, csvio.ErrorSeparator)})
			}
			renderTable(cmd.OutOrStdout(), []string{csvio.RowNumberHeader, csvio.ErrorsHeader}, rows, -1)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), app.loc.Tf("import.partial", len(res.Rows), path))
			return ErrImportRejected
		},
	}

	cmd.Flags().StringVar(&errorsOut, "errors-out", "", "where to save the error CSV (default: name suggested by the server)")
	return cmd
}
