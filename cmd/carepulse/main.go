package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/carepulse/internal/application"
	"github.com/example/carepulse/internal/config"
	"github.com/example/carepulse/internal/logging"
	"github.com/example/carepulse/internal/persistence/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "carepulse",
		Short:         "CarePulse appointment lifecycle service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(summaryCmd())
	root.AddCommand(hashPasskeyCmd())
	return root
}

func loadRuntime(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.New(cfg.LogLevel, cmd.ErrOrStderr())
	return cfg, logger, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the notification outbox worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireAdminPasskey(); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, logger, defaultDependencies())
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, logger *slog.Logger, deps dependencies) error {
	app, err := newCarePulse(ctx, cfg, logger, deps)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			logger.Error("failed to release resources", "error", cerr)
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.worker.Run(workerCtx)
	}()
	defer func() {
		cancelWorker()
		wg.Wait()
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("carepulse API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("carepulse API stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			if dsn, _ := cmd.Flags().GetString("dsn"); dsn != "" {
				cfg.SQLiteDSN = dsn
			}
			return runMigrations(cmd.Context(), cfg.SQLiteDSN, logger, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("dsn", "", "SQLite database path (defaults to CAREPULSE_SQLITE_DSN)")
	return cmd
}

func runMigrations(ctx context.Context, dsn string, logger *slog.Logger, out io.Writer) error {
	storage, err := sqlite.Open(dsn, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer storage.Close()

	executed, err := storage.MigrateVersions(ctx)
	if err != nil {
		return err
	}
	if len(executed) == 0 {
		fmt.Fprintln(out, "schema is up to date")
		return nil
	}
	for _, version := range executed {
		fmt.Fprintf(out, "applied %s\n", version)
	}
	return nil
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the admin appointment summary as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			return printSummary(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}
}

type summaryOutput struct {
	TotalCount     int `json:"totalCount"`
	ScheduledCount int `json:"scheduledCount"`
	PendingCount   int `json:"pendingCount"`
	CancelledCount int `json:"cancelledCount"`
	UnknownCount   int `json:"unknownCount"`
}

func printSummary(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer) error {
	storage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	service := application.NewAppointmentServiceWithLogger(newAppointmentRepositoryAdapter(storage), nil, nil, nil, logger)
	summary, err := service.ListRecentWithSummary(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summaryOutput{
		TotalCount:     summary.TotalCount,
		ScheduledCount: summary.ScheduledCount,
		PendingCount:   summary.PendingCount,
		CancelledCount: summary.CancelledCount,
		UnknownCount:   summary.UnknownCount,
	})
}

func hashPasskeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-passkey [passkey]",
		Short: "Print an argon2id hash for CAREPULSE_ADMIN_PASSKEY_HASH",
		Long:  "Hashes the passkey given as an argument, or the first line of stdin when no argument is supplied.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passkey := ""
			if len(args) == 1 {
				passkey = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read passkey: %w", err)
				}
				passkey = line
			}
			passkey = strings.TrimSpace(passkey)
			if passkey == "" {
				return errors.New("passkey must not be empty")
			}

			hash, err := application.CreatePasskeyHash(passkey, application.DefaultArgon2idParams)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
