package cli

import (
	"fmt"
	"maps"

	"github.com/spf13/cobra"

	"github.com/bigkaa/mdclient/internal/listctl"
)

// queryFlags — флаги запроса списка, общие для list, export и console.
type queryFlags struct {
	text     string
	filters  map[string]string
	sort     string
	page     int
	pageSize int
	deleted  bool
}

func (f *queryFlags) register(cmd *cobra.Command, paging bool) {
	cmd.Flags().StringVarP(&f.text, "query", "q", "", "free-text search")
	cmd.Flags().StringToStringVarP(&f.filters, "filter", "f", nil, "structured filter name=value (repeatable)")
	cmd.Flags().StringVarP(&f.sort, "sort", "s", "", "sort key, prefix with - for descending (default: resource default)")
	cmd.Flags().BoolVar(&f.deleted, "deleted", false, "include soft-deleted records")
	if paging {
		cmd.Flags().IntVarP(&f.page, "page", "p", 1, "page number")
		cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "page size (default: MDC_PAGE_SIZE)")
	}
}

// query собирает запрос списка для ресурса и проверяет его.
func (f *queryFlags) query(app *App, b resourceBinding) (listctl.Query, error) {
	sort := f.sort
	if sort == "" {
		sort = b.DefaultSort()
	}
	key, dir := parseSort(sort)

	q := listctl.Query{
		FreeText: f.text,
		Filters:  maps.Clone(f.filters),
		SortKey:  key,
		SortDir:  dir,
		Page:     max(f.page, 1),
		PageSize: app.cfg.PageSize,
	}
	if f.pageSize > 0 {
		if f.pageSize > 200 {
			return listctl.Query{}, fmt.Errorf("--page-size: значение %d вне допустимого диапазона 1-200", f.pageSize)
		}
		q.PageSize = f.pageSize
	}
	if f.deleted {
		if q.Filters == nil {
			q.Filters = map[string]string{}
		}
		q.Filters[listctl.FilterIncludeDeleted] = "1"
	}

	if err := b.Check(q, app.loc); err != nil {
		return listctl.Query{}, err
	}
	return q, nil
}

func newListCommand() *cobra.Command {
	var (
		flags  queryFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "list <resource>",
		Short: "Show one page of a resource list",
		Example: `  mdclient list partners -q acme --sort -updated_at
  mdclient list products -f product_category=3 --page 2
  mdclient list partners --deleted -o json`,
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

			view, err := b.List(cmd.Context(), q)
			if err != nil {
				return err
			}
			return renderPage(cmd.OutOrStdout(), view, output, app.loc)
		},
	}

	flags.register(cmd, true)
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format (table|json)")
	_ = cmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{outputTable, outputJSON}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}
