package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/bigkaa/mdclient/internal/credstore"
	"github.com/bigkaa/mdclient/internal/editsession"
	"github.com/bigkaa/mdclient/internal/listctl"
)

func newConsoleCommand() *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "console <resource>",
		Short: "Browse and edit a resource interactively",
		Example: `  mdclient console partners
  mdclient console products -f product_category=2 --sort -unit_price`,
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
			return runConsole(cmd, app, b, q)
		},
	}

	flags.register(cmd, true)
	return cmd
}

// runConsole — цикл чтения команд консоли.
// Токены наблюдаются через fsnotify: выход в другом процессе виден сразу.
func runConsole(cmd *cobra.Command, app *App, b resourceBinding, q listctl.Query) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          b.Name() + "> ",
		HistoryFile:     app.cfg.HistoryFile,
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("ошибка инициализации консоли: %w", err)
	}
	defer func() { _ = rl.Close() }()

	out := rl.Stdout()
	var handler consoleHandler
	confirmer := editsession.ConfirmFunc(func(_ context.Context, prompt string) bool {
		defer rl.SetPrompt(handler.Prompt())
		return confirm(rl, prompt+" "+app.loc.T("cli.confirm_hint")+" ")
	})
	handler = b.Console(app, q, out, confirmer)

	// busy — выполняется команда: очистка токенов клиентом не считается внешним выходом
	var busy atomic.Bool
	unsubscribe := app.store.Subscribe(func(_ credstore.Pair, ok bool) {
		if ok {
			return
		}
		key := "credentials.external_logout"
		if busy.Load() {
			key = "error.session_expired"
		}
		_, _ = fmt.Fprintln(out, "!", app.loc.T(key))
	})
	defer unsubscribe()

	go func() {
		if err := app.store.Watch(ctx); err != nil {
			app.logger.Warn("Наблюдение за токенами недоступно", slog.String("error", err.Error()))
		}
	}()

	_, _ = fmt.Fprintln(out, app.loc.Tf("cli.welcome", b.Name()))
	busy.Store(true)
	handler.Handle(ctx, "reload")
	busy.Store(false)

	for {
		rl.SetPrompt(handler.Prompt())
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		busy.Store(true)
		quit := handler.Handle(ctx, strings.TrimSpace(line))
		busy.Store(false)
		if quit {
			return nil
		}
	}
}

// confirm задаёт вопрос y/N в той же строке ввода.
func confirm(rl *readline.Instance, prompt string) bool {
	rl.SetPrompt(prompt)
	line, err := rl.Readline()
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(consoleCommands))
	for _, cmd := range consoleCommands {
		items = append(items, readline.PcItem(cmd[0]))
	}
	return readline.NewPrefixCompleter(items...)
}
