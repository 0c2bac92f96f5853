// Package cli — команды mdclient: вход, списки, CSV и интерактивная консоль.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bigkaa/mdclient/internal/apiclient"
	"github.com/bigkaa/mdclient/internal/apierr"
	"github.com/bigkaa/mdclient/internal/config"
	"github.com/bigkaa/mdclient/internal/credstore"
	"github.com/bigkaa/mdclient/internal/editsession"
	"github.com/bigkaa/mdclient/internal/i18n"
	"github.com/bigkaa/mdclient/internal/resource"
)

// App — зависимости команд, собранные из конфигурации.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *credstore.FileStore
	client     *apiclient.Client
	loc        i18n.Localizer
	normalizer *apierr.Normalizer
	choices    *resource.ChoiceCache
	resources  map[string]resourceBinding
}

// NewApp создаёт хранилище токенов, HTTP-клиент и привязки ресурсов.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := credstore.NewFileStore(cfg.CredentialsFile, cfg.CredentialsKey, logger)
	if err != nil {
		return nil, fmt.Errorf("хранилище токенов: %w", err)
	}

	httpClient, err := apiclient.NewHTTPClient(cfg.HTTPTimeout, cfg.CACertPath, logger)
	if err != nil {
		return nil, fmt.Errorf("HTTP-клиент: %w", err)
	}

	client := apiclient.New(apiclient.Options{
		BaseURL:     cfg.APIURL,
		LoginPath:   cfg.LoginPath,
		RefreshPath: cfg.RefreshPath,
		Lang:        cfg.Lang,
		HTTPClient:  httpClient,
	}, store, logger)

	loc := i18n.NewLocalizer(nil, cfg.Lang)
	return &App{
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "cli")),
		store:      store,
		client:     client,
		loc:        loc,
		normalizer: apierr.NewNormalizer(loc),
		choices:    resource.NewChoiceCache(client, cfg.ChoicesCacheSize, cfg.ChoicesCacheTTL, logger),
		resources:  bindings(client),
	}, nil
}

// resource возвращает привязку ресурса по имени.
func (a *App) resource(name string) (resourceBinding, error) {
	b, ok := a.resources[name]
	if !ok {
		return nil, errors.New(a.loc.Tf("cli.unknown_resource", name, strings.Join(resource.Names, ", ")))
	}
	return b, nil
}

// describe превращает ошибку команды в текст для пользователя.
func (a *App) describe(err error) string {
	switch {
	case errors.Is(err, apiclient.ErrNotAuthenticated):
		return a.loc.T("error.not_authenticated")
	case errors.Is(err, editsession.ErrDeleted):
		return a.loc.T("error.deleted_readonly")
	case errors.Is(err, editsession.ErrUnsavedChanges):
		return a.loc.T("error.unsaved_changes")
	}

	n := a.normalizer.Normalize(err)
	if !n.HasFieldErrors() {
		return n.Message
	}

	var b strings.Builder
	b.WriteString(n.Message)
	for _, msg := range n.NonField {
		b.WriteString("\n  ")
		b.WriteString(msg)
	}
	for _, field := range n.FieldErrors.Fields() {
		fmt.Fprintf(&b, "\n  %s: %s", field, strings.Join(n.FieldErrors[field], " "))
	}
	return b.String()
}

type appKey struct{}

func withApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey{}, app)
}

func appFrom(cmd *cobra.Command) (*App, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New("конфигурация не загружена")
	}
	app, ok := ctx.Value(appKey{}).(*App)
	if !ok {
		return nil, errors.New("конфигурация не загружена")
	}
	return app, nil
}

// loggedInApp — как appFrom, но требует сохранённый access token.
func loggedInApp(cmd *cobra.Command) (*App, error) {
	app, err := appFrom(cmd)
	if err != nil {
		return nil, err
	}
	if !app.client.Authenticated() {
		return nil, apiclient.ErrNotAuthenticated
	}
	return app, nil
}

// skipsConfig — команды, работающие без конфигурации.
func skipsConfig(cmd *cobra.Command) bool {
	return slices.Contains([]string{"help", "version", "completion", "__complete"}, cmd.Name())
}

// ReportError печатает ошибку выполнения команды.
func ReportError(cmd *cobra.Command, err error) {
	msg := err.Error()
	if app, aerr := appFrom(cmd); aerr == nil {
		msg = app.describe(err)
	}
	_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Error:", msg)
}
