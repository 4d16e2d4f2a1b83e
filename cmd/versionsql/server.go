package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kalambet/versionsql/internal/api"
	"github.com/kalambet/versionsql/internal/catalog"
	"github.com/kalambet/versionsql/internal/config"
	"github.com/kalambet/versionsql/internal/curseforge"
	"github.com/kalambet/versionsql/internal/metrics"
	"github.com/kalambet/versionsql/internal/query"
	"github.com/kalambet/versionsql/internal/storage"
	"github.com/kalambet/versionsql/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the versionsql server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the query tool over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

// backend is the mirror plus everything that reads or refreshes it.
type backend struct {
	store     *storage.Store
	refresher *catalog.Refresher
	engine    *query.Engine
	registry  *prometheus.Registry
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	if err := cfg.RequireAPIToken(); err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	source := curseforge.NewClientWithBaseURL(cfg.CurseForge.APIToken, cfg.CurseForge.BaseURL)
	refresher := catalog.NewRefresher(source, store, cfg.RefreshInterval(), m)

	// The mirror must be populated before the first query is accepted.
	printStep("Fetching catalog from %s", cfg.CurseForge.BaseURL)
	if err := refresher.Load(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("initial catalog load: %w", err)
	}

	return &backend{
		store:     store,
		refresher: refresher,
		engine:    query.NewEngine(store, refresher, m),
		registry:  reg,
	}, nil
}

func (b *backend) Close() {
	if err := b.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "versionsql version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	if cfg.Refresh.Schedule != "" {
		sched, err := catalog.NewScheduler(b.refresher, cfg.Refresh.Schedule, nil)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	schema, err := web.LoadSchema()
	if err != nil {
		return err
	}
	assets, err := web.NewAssets(schema, time.Now())
	if err != nil {
		return err
	}

	handler := api.NewHandler(api.Deps{
		Engine:      b.engine,
		Catalog:     b.refresher,
		Assets:      assets,
		Metrics:     promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{}),
		CORSOrigins: cfg.CORSOrigins(),
		RateLimit:   cfg.Server.RateLimit,
		AdminToken:  cfg.Server.AdminToken,
	})
	if cfg.Server.AdminToken == "" {
		slog.Info("admin token not set, /admin/refresh disabled")
	}

	addr := cfg.ListenAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		printSuccess("versionsql listening on http://%s (console at %s)", addr, web.IndexPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	schema, err := web.LoadSchema()
	if err != nil {
		return err
	}
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Engine:  b.engine,
		Schema:  schema,
		Version: version,
	})

	slog.Info("MCP server started (stdio transport)")
	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
