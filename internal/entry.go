// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/othala/internal/cache"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/indexer"
	"github.com/starford/othala/internal/mcpserver"
	"github.com/starford/othala/internal/metrics"
	"github.com/starford/othala/internal/resolver"
	"github.com/starford/othala/internal/search"
	"github.com/starford/othala/internal/storage"
	"github.com/starford/othala/internal/vaultservice"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Structured JSON logging goes to stderr: stdout belongs to the
	// MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("metrics_addr", cfg.App.MetricsAddr),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	provider, err := storage.NewFS(cfg.Vault.Path, cfg.Vault.ExcludedFolders)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	mtr := metrics.New()
	resultCache := cache.New(cfg.Search.CacheBudgetBytes)

	titles, err := db.Titles()
	if err != nil {
		return fmt.Errorf("load titles: %w", err)
	}
	entries := make([]resolver.Entry, len(titles))
	for i, t := range titles {
		entries[i] = resolver.Entry{ID: t.ID, Title: t.Title, Folder: t.Folder, Path: t.Path}
	}
	res := resolver.New(entries)

	engine := search.New(db, resultCache, mtr, search.Options{
		Fuzzy:         cfg.Search.Fuzzy,
		CaseSensitive: cfg.Search.CaseSensitive,
	})
	ix := indexer.New(db, provider, res, resultCache, mtr, logger)
	svc := vaultservice.New(db, provider, res, engine, ix)

	if app.rebuild {
		logger.Info("Rebuilding index")
		if err := ix.Rebuild(ctx); err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
	} else if _, err := ix.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	mcpSrv := mcpserver.New(svc)

	g, gCtx := errgroup.WithContext(ctx)

	// File watcher keeps the index following disk.
	g.Go(func() error {
		return ix.Watch(gCtx, provider.Root())
	})

	// MCP stdio transport. Its return (stdin closed or ctx cancelled)
	// shuts the whole application down.
	g.Go(func() error {
		logger.Info("MCP server listening on stdio")
		if err := mcpSrv.Listen(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return context.Canceled
	})

	var metricsServer *http.Server
	if cfg.App.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", mtr.Handler())
		mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		metricsServer = &http.Server{Addr: cfg.App.MetricsAddr, Handler: mux}

		g.Go(func() error {
			logger.Info("Metrics server starting", slog.String("address", cfg.App.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("Metrics server shutdown error", slog.String("error", err.Error()))
			}
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
