// Package internal wires configuration, stores and transports into the
// running application.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/lettamem/internal/api"
	"github.com/starford/lettamem/internal/health"
	"github.com/starford/lettamem/internal/index"
	"github.com/starford/lettamem/internal/sse"
)

// Run starts the HTTP server and the record watcher and blocks until ctx
// is cancelled or a signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("app: configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("records_path", cfg.Records.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("letta_url", cfg.Letta.URL),
		slog.String("log_level", cfg.App.LogLevel.String()))

	rt, err := Open(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	stats, err := index.Sync(rt.Index, rt.Files, logger)
	if err != nil {
		logger.Warn("app: initial sync failed", slog.String("error", err.Error()))
	} else {
		logger.Info("app: initial sync done",
			slog.Int("indexed", stats.Indexed),
			slog.Int("unchanged", stats.Unchanged),
			slog.Int("removed", stats.Removed),
			slog.Int("skipped", stats.Skipped))
	}

	broker := sse.NewBroker(2*time.Second, 30*time.Second)
	defer broker.Close()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHTTPHandler(rt, broker, app.version),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return index.Watch(gCtx, rt.Index, rt.Files, cfg.Records.Path, logger, broker.PublishRecordEvent)
	})

	g.Go(func() error {
		logger.Info("app: starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("app: received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("app: context cancelled, shutting down")
		}

		// Streaming clients would otherwise hold Shutdown open.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("app: HTTP shutdown error", slog.String("error", err.Error()))
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("app: run failed", slog.String("error", err.Error()))
		return err
	}
	logger.Info("app: server stopped")
	return nil
}

// newHTTPHandler builds the root router: unauthenticated liveness and
// readiness probes plus the API under /api.
func newHTTPHandler(rt *Runtime, broker *sse.Broker, version string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		results := health.Run(req.Context(), 2*time.Second, rt.ReadyChecks()...)
		status, code := "ok", http.StatusOK
		if !health.AllOK(results) {
			status, code = "unavailable", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "checks": results})
	})

	var events http.Handler
	if broker != nil {
		events = broker
	}
	r.Mount("/api", api.NewRouter(api.RouterConfig{
		Records:       rt.Records,
		Conversations: rt.Conversations,
		Version:       version,
		AuthEnabled:   rt.Config.Auth.AuthEnabled(),
		Token:         rt.Config.Auth.Token,
		Events:        events,
	}))
	return r
}
