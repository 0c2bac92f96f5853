package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/bigkaa/mdclient/internal/editsession"
	"github.com/bigkaa/mdclient/internal/listctl"
	"github.com/bigkaa/mdclient/internal/resource"
)

// consoleHandler — обработчик строк интерактивной консоли одного ресурса.
type consoleHandler interface {
	Prompt() string
	// Handle выполняет одну команду; true — выход из консоли.
	Handle(ctx context.Context, line string) bool
}

// consoleCommands — команды консоли с подсказкой аргументов.
var consoleCommands = [][2]string{
	{"list", "show the current page"},
	{"reload", "reload the current page"},
	{"q", "<text> free-text search (empty clears)"},
	{"filter", "<name> [value] set or clear a filter"},
	{"deleted", "on|off show soft-deleted records"},
	{"sort", "<key> [asc|desc] sort, same key toggles direction"},
	{"page", "<n> go to page n"},
	{"size", "<n> change page size"},
	{"view", "<id> open a record"},
	{"next", "open the next record"},
	{"prev", "open the previous record"},
	{"new", "start a new record"},
	{"edit", "[id] edit the open record or the given one"},
	{"set", "<field> <value> change a form field"},
	{"show", "show the form and its errors"},
	{"save", "save the form"},
	{"cancel", "discard the form"},
	{"delete", "[id] soft-delete a record"},
	{"restore", "[id] restore a soft-deleted record"},
	{"choices", "list product categories"},
	{"export", "[file] export the filtered list as CSV"},
	{"help", "show this help"},
	{"quit", "leave the console"},
}

// printNotifier печатает уведомления сессии в вывод консоли.
type printNotifier struct {
	out io.Writer
}

func (n printNotifier) Success(msg string) { _, _ = fmt.Fprintln(n.out, "✓", msg) }

func (n printNotifier) Error(msg string) { _, _ = fmt.Fprintln(n.out, "✗", msg) }

type console[R listctl.Record, B any, PB fieldBuffer[B]] struct {
	app     *App
	def     resource.Definition[R, B]
	list    *listctl.Controller[R]
	session *editsession.Session[R, B]
	out     io.Writer
}

func newConsole[R listctl.Record, B any, PB fieldBuffer[B]](app *App, ep *resource.Endpoint[R, B], q listctl.Query, out io.Writer, confirmer editsession.Confirmer) *console[R, B, PB] {
	list := listctl.New[R](ep, listctl.Options{
		SortKey:  q.SortKey,
		SortDir:  q.SortDir,
		PageSize: q.PageSize,
		Filters:  q.Filters,
	}, app.logger)
	if q.FreeText != "" {
		list.SetFreeText(q.FreeText)
	}
	if q.Page > 1 {
		list.SetPage(q.Page)
	}

	return &console[R, B, PB]{
		app:  app,
		def:  ep.Definition(),
		list: list,
		session: editsession.New[R, B](list, ep, editsession.Options{
			Normalizer: app.normalizer,
			Notifier:   printNotifier{out: out},
			Confirmer:  confirmer,
			Logger:     app.logger,
		}),
		out: out,
	}
}

// Prompt — имя ресурса и режим сессии ("partners [editing #12]> ").
func (c *console[R, B, PB]) Prompt() string {
	snap := c.session.Snapshot()
	switch snap.Mode {
	case editsession.Closed:
		return c.def.Name + "> "
	case editsession.Creating:
		return c.def.Name + " [new]> "
	default:
		return fmt.Sprintf("%s [%s #%d]> ", c.def.Name, snap.Mode, snap.ID)
	}
}

// Handle выполняет команду; ошибки печатаются, консоль продолжает работу.
func (c *console[R, B, PB]) Handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	if name == "quit" || name == "exit" {
		return true
	}
	if err := c.dispatch(ctx, name, args, line); err != nil {
		c.fail(err)
	}
	return false
}

func (c *console[R, B, PB]) dispatch(ctx context.Context, name string, args []string, line string) error {
	switch name {
	case "help":
		c.help()
		return nil

	case "list", "ls":
		c.printList()
		return nil

	case "reload":
		return c.load(ctx)

	case "q":
		c.list.SetFreeText(rest(line, 1))
		return c.load(ctx)

	case "filter":
		if len(args) == 0 {
			return c.usage("filter <name> [value]")
		}
		if !slices.Contains(c.def.Filters, args[0]) {
			return errors.New(c.app.loc.Tf("cli.bad_filter", args[0], c.def.Name))
		}
		c.list.SetFilter(args[0], rest(line, 2))
		return c.load(ctx)

	case "deleted":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return c.usage("deleted on|off")
		}
		c.list.SetIncludeDeleted(args[0] == "on")
		return c.load(ctx)

	case "sort":
		return c.sort(ctx, args)

	case "page":
		n, ok := intArg(args)
		if !ok {
			return c.usage("page <n>")
		}
		c.list.SetPage(n)
		return c.load(ctx)

	case "size":
		n, ok := intArg(args)
		if !ok {
			return c.usage("size <n>")
		}
		if err := c.list.SetPageSize(n); err != nil {
			return err
		}
		return c.load(ctx)

	case "view":
		id, err := c.idArg(args, false)
		if err != nil {
			return err
		}
		if err := c.session.OpenView(id); err != nil {
			return err
		}
		c.show()
		return nil

	case "next", "prev":
		step := c.list.Next
		if name == "prev" {
			step = c.list.Prev
		}
		id, err := step()
		if err != nil {
			return err
		}
		if err := c.session.OpenView(id); err != nil {
			return err
		}
		c.show()
		return nil

	case "new":
		if err := c.session.OpenCreate(); err != nil {
			return err
		}
		c.show()
		return nil

	case "edit":
		if len(args) > 0 {
			id, err := c.idArg(args, false)
			if err != nil {
				return err
			}
			if err := c.session.EditRecord(id); err != nil {
				return err
			}
		} else if err := c.session.OpenEdit(); err != nil {
			return err
		}
		c.show()
		return nil

	case "set":
		if len(args) == 0 {
			return c.usage("set <field> <value>")
		}
		return c.set(ctx, args[0], rest(line, 2))

	case "show":
		c.show()
		return nil

	case "save":
		if _, err := c.session.Save(ctx); err != nil {
			// Ошибки валидации остаются в форме
			if c.session.Mode() != editsession.Closed && c.session.Snapshot().SaveError != "" {
				c.show()
				return nil
			}
			return err
		}
		c.changed()
		c.show()
		return nil

	case "cancel":
		if err := c.session.Cancel(); err != nil {
			return err
		}
		c.show()
		return nil

	case "delete", "restore":
		id, err := c.idArg(args, true)
		if err != nil {
			return err
		}
		op := c.session.Delete
		if name == "restore" {
			op = c.session.Restore
		}
		// Результат показан уведомлением сессии
		if err := op(ctx, id); err != nil {
			c.app.logger.Debug("Операция не выполнена", slog.String("op", name), slog.String("error", err.Error()))
			return nil
		}
		c.changed()
		return nil

	case "choices":
		return c.choices(ctx)

	case "export":
		return c.export(ctx, args)

	default:
		return errors.New(c.app.loc.Tf("cli.unknown_command", name))
	}
}

// changed сбрасывает кэш списка категорий после изменения категорий.
func (c *console[R, B, PB]) changed() {
	if c.def.Name == resource.NameCategories {
		c.app.choices.Invalidate()
	}
}

// load загружает страницу и печатает её; устаревший результат пропускается.
func (c *console[R, B, PB]) load(ctx context.Context) error {
	err := c.list.Load(ctx)
	if errors.Is(err, listctl.ErrStale) {
		return nil
	}
	if err != nil {
		_, _ = fmt.Fprintf(c.out, "✗ %s: %s\n", c.app.loc.T("error.list_load"), c.app.describe(err))
		return nil
	}
	c.printList()
	return nil
}

func (c *console[R, B, PB]) printList() {
	rows := c.list.Rows()
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(c.out, c.app.loc.T("cli.list_empty"))
		return
	}

	view := tableOf(c.def, rows)
	marked := -1
	if id, ok := c.list.SelectedID(); ok {
		marked = slices.IndexFunc(rows, func(r R) bool { return r.RecordID() == id })
	}
	renderTable(c.out, view.Headers, view.Rows, marked)

	q := c.list.Query()
	_, _ = fmt.Fprintln(c.out, c.app.loc.Tf("cli.list_summary", q.Page, c.list.TotalPages(), c.list.Total()))
}

func (c *console[R, B, PB]) sort(ctx context.Context, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return c.usage("sort <key> [asc|desc]")
	}
	key := args[0]
	if key != "id" && !slices.Contains(c.def.SortKeys, key) {
		return errors.New(c.app.loc.Tf("cli.bad_sort", key, c.def.Name))
	}

	if len(args) == 1 {
		c.list.ToggleSort(key)
		return c.load(ctx)
	}
	switch args[1] {
	case "asc":
		c.list.SetSort(key, listctl.Asc)
	case "desc":
		c.list.SetSort(key, listctl.Desc)
	default:
		return c.usage("sort <key> [asc|desc]")
	}
	return c.load(ctx)
}

// set изменяет поле формы. Категорию товара можно указать названием.
func (c *console[R, B, PB]) set(ctx context.Context, field, value string) error {
	if field == "product_category" && value != "" {
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			id, err := c.categoryID(ctx, value)
			if err != nil {
				return err
			}
			value = strconv.FormatInt(id, 10)
		}
	}
	return c.session.Update(func(buf *B) error {
		return PB(buf).SetField(field, value)
	})
}

func (c *console[R, B, PB]) categoryID(ctx context.Context, name string) (int64, error) {
	choices, err := c.app.choices.Categories(ctx)
	if err != nil {
		return 0, err
	}
	for _, ch := range choices {
		if ch.ProductCategoryName == name {
			return ch.ID, nil
		}
	}
	return 0, errors.New(c.app.loc.Tf("cli.category_not_found", name))
}

// show печатает состояние формы: поля, ошибки по полям и общие ошибки.
func (c *console[R, B, PB]) show() {
	snap := c.session.Snapshot()
	if snap.Mode == editsession.Closed {
		c.printList()
		return
	}

	buf := PB(&snap.Buffer)
	rows := make([][2]string, 0, len(buf.FieldNames())+1)
	if snap.HasID {
		rows = append(rows, [2]string{"id", strconv.FormatInt(snap.ID, 10)})
	}
	for _, name := range buf.FieldNames() {
		value, _ := buf.Field(name)
		if errs := snap.FieldErrors[name]; len(errs) > 0 {
			value += "  ✗ " + strings.Join(errs, " ")
		}
		rows = append(rows, [2]string{name, value})
	}
	renderPairs(c.out, rows)

	if snap.Detached {
		_, _ = fmt.Fprintln(c.out, "!", c.app.loc.T("cli.detached"))
	}
	if snap.SaveError != "" {
		_, _ = fmt.Fprintln(c.out, "✗", snap.SaveError)
	}
	for _, msg := range snap.NonField {
		_, _ = fmt.Fprintln(c.out, "✗", msg)
	}
	// Ошибки по полям, которых нет в форме
	for name, errs := range snap.FieldErrors {
		if !slices.Contains(buf.FieldNames(), name) {
			_, _ = fmt.Fprintf(c.out, "✗ %s: %s\n", name, strings.Join(errs, " "))
		}
	}
}

func (c *console[R, B, PB]) choices(ctx context.Context) error {
	choices, err := c.app.choices.Categories(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(choices))
	for _, ch := range choices {
		rows = append(rows, []string{strconv.FormatInt(ch.ID, 10), ch.ProductCategoryName})
	}
	renderTable(c.out, []string{"id", "product_category_name"}, rows, -1)
	return nil
}

func (c *console[R, B, PB]) export(ctx context.Context, args []string) error {
	values := c.list.Query().Values()
	values.Del("page")
	values.Del("page_size")

	path, err := exportTo(ctx, c.app, c.def.Path, c.def.Name, values, firstArg(args), c.out)
	if err != nil {
		return err
	}
	if path != "" {
		_, _ = fmt.Fprintln(c.out, c.app.loc.Tf("export.done", path))
	}
	return nil
}

func (c *console[R, B, PB]) help() {
	for _, cmd := range consoleCommands {
		_, _ = fmt.Fprintf(c.out, "  %-8s %s\n", cmd[0], cmd[1])
	}
}

func (c *console[R, B, PB]) usage(text string) error {
	return errors.New(c.app.loc.Tf("cli.usage", text))
}

// fail печатает ошибку команды.
func (c *console[R, B, PB]) fail(err error) {
	_, _ = fmt.Fprintln(c.out, "✗", c.app.describe(err))
}

// idArg разбирает id из аргументов; без аргумента — открытая или выбранная запись.
func (c *console[R, B, PB]) idArg(args []string, fallback bool) (int64, error) {
	if len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return 0, errors.New(c.app.loc.Tf("cli.bad_id", args[0]))
		}
		return id, nil
	}
	if fallback {
		if snap := c.session.Snapshot(); snap.HasID {
			return snap.ID, nil
		}
		if id, ok := c.list.SelectedID(); ok {
			return id, nil
		}
	}
	return 0, c.usage("<id>")
}

// intArg разбирает единственный числовой аргумент.
func intArg(args []string) (int, bool) {
	if len(args) != 1 {
		return 0, false
	}
	n, err := strconv.Atoi(args[0])
	return n, err == nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// rest возвращает остаток строки после n первых слов.
func rest(line string, n int) string {
	s := strings.TrimSpace(line)
	for range n {
		i := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\t' })
		if i < 0 {
			return ""
		}
		s = strings.TrimSpace(s[i:])
	}
	return s
}
