package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/phrazzld/annotator-api/internal/config"
	"github.com/phrazzld/annotator-api/internal/platform/logger"
	"github.com/phrazzld/annotator-api/internal/platform/postgres"
	"github.com/spf13/cobra"
)

// errMigrationsNeedPostgres is returned by migrate when the memory driver is
// configured.
var errMigrationsNeedPostgres = errors.New("migrations require the postgres driver")

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "annotator",
		Short: "Audio segment annotation batch service",
		Long: `Annotator runs batches of audio segments through LLM analysis and
collects human annotations next to the model's answers.

Configuration is read from ./config.yaml (or --config) and ANNOTATOR_*
environment variables.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(
		newServeCmd(&cfgFile),
		newMigrateCmd(&cfgFile),
		newResumeCmd(&cfgFile),
	)
	return root
}

// loadConfig reads configuration and sets up logging.
func loadConfig(cfgFile string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return cfg, l, nil
}

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API. On startup the database schema is migrated and
every in-progress batch is recovered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, l, err := loadConfig(*cfgFile)
			if err != nil {
				return err
			}
			l.Info("Server configuration loaded",
				slog.Int("port", cfg.Server.Port),
				slog.String("log_level", cfg.Server.LogLevel),
				slog.String("database_driver", cfg.Database.Driver),
				slog.String("llm_provider", cfg.LLM.Provider),
				slog.String("storage_backend", cfg.Storage.Backend))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(ctx, cfg, l)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return app.Run(ctx)
		},
	}
}

func newMigrateCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [command]",
		Short:     "Run database migrations",
		Long:      `Run a goose migration command (default "up") against the configured database.`,
		ValidArgs: postgres.MigrationCommands,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			cfg, l, err := loadConfig(*cfgFile)
			if err != nil {
				return err
			}
			if cfg.Database.Driver != config.DriverPostgres {
				return errMigrationsNeedPostgres
			}

			db, err := openDatabase(cmd.Context(), cfg.Database, l)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					l.Error("Error closing database connection", slog.Any("error", err))
				}
			}()

			return postgres.Migrate(cmd.Context(), db, command, l)
		},
	}
}

func newResumeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <batch-id>",
		Short: "Re-dispatch the unfinished items of one batch",
		Long: `Resume a batch: items left pending or processing by an interrupted
run are sent for analysis again. The command waits until they have finished.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid batch id %q: %w", args[0], err)
			}

			cfg, l, err := loadConfig(*cfgFile)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := newApplication(ctx, cfg, l)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.cleanup()

			n, err := app.batchService.Resume(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to resume batch %s: %w", id, err)
			}
			l.Info("Batch resumed", slog.String("batch_id", id.String()), slog.Int("resumed", n))
			app.dispatcher.Wait()

			fmt.Fprintf(cmd.OutOrStdout(), "resumed %d item(s)\n", n)
			return nil
		},
	}
}
