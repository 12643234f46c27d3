package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/liamcoop/intakehub/internal/config"
	"github.com/liamcoop/intakehub/internal/logger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "intakehub-server",
		Short:         "Insurance intake rules and workflow API",
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("command failed", slog.String("error", err.Error()))
	}
}

func serveCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Listen port (overrides PORT)")
	return cmd
}

func serve(cfg *config.Config) error {
	log, err := logger.Setup(logger.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		SampleRate: cfg.ErrorSampleRate,
	})
	if err != nil {
		log.Warn("log level fallback", slog.String("error", err.Error()))
	}

	var db *sql.DB
	if cfg.UsesPostgres() {
		db, err = openDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		log.Info("using postgres stores")
	} else {
		log.Info("using in-memory stores")
	}

	server, err := NewServer(cfg, db, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if cfg.SeedDefaults {
		seeded, err := server.workflows.SeedDefaults(context.Background())
		if err != nil {
			return fmt.Errorf("failed to seed default workflows: %w", err)
		}
		log.Info("default workflows seeded", slog.Int("created", len(seeded)))
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			slog.String("addr", httpServer.Addr),
			slog.String("env", cfg.Env),
			slog.String("log_level", logger.GetLevel().String()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigChan:
		log.Info("shutting down server", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("server shutdown error", slog.String("error", err.Error()))
	}
	if err := server.Close(ctx); err != nil {
		log.Error("dispatcher shutdown error", slog.String("error", err.Error()))
	}

	log.Info("server stopped")
	return nil
}

func openDB(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
