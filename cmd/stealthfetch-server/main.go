// Command stealthfetch-server exposes the fetch pipeline over HTTP.
package main

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

	"github.com/use-agent/stealthfetch/api"
	"github.com/use-agent/stealthfetch/api/handler"
	"github.com/use-agent/stealthfetch/cache"
	"github.com/use-agent/stealthfetch/config"
	"github.com/use-agent/stealthfetch/engine"
	"github.com/use-agent/stealthfetch/fingerprint"
	"github.com/use-agent/stealthfetch/models"
	"github.com/use-agent/stealthfetch/scraper"
	"github.com/use-agent/stealthfetch/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging (stderr) ───────────────────
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	slog.Info("stealthfetch server starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxConcurrent", cfg.Browser.MaxConcurrent,
		"defaultEngine", cfg.Fetch.DefaultEngine,
	)
	if cfg.Auth.Enabled && len(cfg.Auth.APIKeys) == 0 {
		slog.Warn("auth enabled without API keys, every request is accepted")
	}

	// ── 3. Fingerprint provider ─────────────────────────────────────
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 30*time.Second)
	pool := fingerprint.LoadUserAgents(loadCtx, cfg.Fetch.UserAgents, logger)
	cancelLoad()
	provider := fingerprint.NewProvider(pool)
	slog.Info("user agent pool loaded", "agents", pool.Len(), "fallback", pool.IsFallback())

	// ── 4. Engines and scraper ──────────────────────────────────────
	registry := engine.Default(
		engine.WithBrowserBin(cfg.Browser.BrowserBin),
		engine.WithNoSandbox(cfg.Browser.NoSandbox),
		engine.WithLogger(logger),
	)
	if _, err := registry.Lookup(models.EngineKind(cfg.Fetch.DefaultEngine)); err != nil {
		slog.Error("default engine is not registered", "engine", cfg.Fetch.DefaultEngine, "engines", registry.Kinds())
		os.Exit(1)
	}
	sc := scraper.New(registry, provider,
		scraper.WithLogger(logger),
		scraper.WithMaxConcurrent(cfg.Browser.MaxConcurrent),
		scraper.WithMaxTimeout(cfg.Fetch.MaxTimeout),
	)

	// ── 5. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(cfg, api.Deps{
		Fetcher:  scraper.NewLoggingFetcher(sc, logger),
		Status:   sc,
		Cache:    cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL),
		Batches:  handler.NewBatchStore(time.Hour),
		Notifier: webhook.NewNotifier(cfg.Webhook.Timeout, logger),
		Logger:   logger,
	})

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// In-flight fetches close their own browsers once their contexts end.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	stats := sc.Stats()
	slog.Info("stealthfetch server stopped", "totalFetches", stats.TotalFetches, "uptime", sc.Uptime().Round(time.Second))
}
