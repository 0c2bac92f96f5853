package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/mdclient/internal/config"
)

// NewRootCmd создаёт корневую команду mdclient.
// Конфигурация загружается перед выполнением любой команды, кроме служебных.
func NewRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "mdclient",
		Short: "Master-data admin client",
		Long: `mdclient works with the master-data admin backend: tenants, partners,
products and product categories.

Settings come from MDC_* environment variables (optionally from a .env file).`,
		Version: config.Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipsConfig(cmd) {
				return nil
			}

			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
			}

			// Логи — в stderr: stdout занят таблицами и CSV
			logger := config.SetupLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

			app, err := NewApp(cfg, logger)
			if err != nil {
				return err
			}
			cmd.SetContext(withApp(cmd.Context(), app))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to an optional .env file")

	root.AddCommand(
		newVersionCommand(),
		newLoginCommand(),
		newLogoutCommand(),
		newWhoamiCommand(),
		newListCommand(),
		newExportCommand(),
		newImportCommand(),
		newConsoleCommand(),
	)
	return root
}

// Execute выполняет команду и возвращает код завершения процесса.
func Execute(ctx context.Context, args []string) int {
	root := NewRootCmd()
	root.SetArgs(args)

	cmd, err := root.ExecuteContextC(ctx)
	if err != nil {
		ReportError(cmd, err)
		return 1
	}
	return 0
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "mdclient %s\n", config.Version)
		},
	}
}
