package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openbiome/stratagem/internal/server"
	"github.com/openbiome/stratagem/internal/services"
	"github.com/openbiome/stratagem/internal/store"
	"github.com/openbiome/stratagem/internal/telemetry"
	"github.com/openbiome/stratagem/internal/wdk"
)

// serveCmd starts the HTTP API server
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the Stratagem API server.

The server accepts planning-agent chat events over websocket, folds
them into conversation transcripts and strategy graphs, and exposes
REST endpoints for conversations, strategies, and optimization runs.

Required configuration:
  - PostgreSQL database (STRATAGEM_POSTGRES_URL)

Optional:
  - WDK service for executed strategy links (STRATAGEM_WDK_URL)
  - Agent shared secret (STRATAGEM_AGENT_SECRET)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

// runServer initializes and starts the HTTP API server
func runServer(ctx context.Context) error {
	tel, err := telemetry.Init(telemetry.Config{
		ServiceName: "stratagem",
		Environment: cfg.Otel.Environment,
		TraceStdout: cfg.Otel.Endpoint != "",
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	slog.SetDefault(tel.Logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	slog.Info("starting stratagem API server",
		"host", cfg.Server.Host, "port", cfg.Server.Port,
		"environment", cfg.Otel.Environment)

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connection established")

	st := store.New(pool)

	hub := server.NewHub()

	var wdkClient services.WDKClient
	if cfg.WDK.BaseURL != "" {
		wdkClient = wdk.NewClient(cfg.WDK.BaseURL, cfg.WDK.SiteID)
		slog.Info("WDK client initialized", "base_url", cfg.WDK.BaseURL, "site_id", cfg.WDK.SiteID)
	} else {
		slog.Info("WDK not configured, strategy links will not be enriched")
	}

	coordinator := services.NewTurnCoordinator(st, hub, wdkClient, cfg.WDK.SiteID)

	srv := server.NewServer(cfg, st, coordinator, hub)

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		slog.Info("shutting down", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		slog.Info("server stopped")
		return nil
	}
}
