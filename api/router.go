// Package api wires the HTTP surface of the fetch service.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/stealthfetch/api/handler"
	"github.com/use-agent/stealthfetch/api/middleware"
	"github.com/use-agent/stealthfetch/cache"
	"github.com/use-agent/stealthfetch/config"
	"github.com/use-agent/stealthfetch/models"
	"github.com/use-agent/stealthfetch/scraper"
	"github.com/use-agent/stealthfetch/webhook"
)

// Deps are the collaborators the router hands to its handlers.
type Deps struct {
	Fetcher  scraper.Fetcher
	Status   handler.StatusReporter
	Cache    *cache.Cache
	Batches  *handler.BatchStore
	Notifier *webhook.Notifier
	Logger   *slog.Logger
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Server.Mode != gin.TestMode {
		r.Use(gin.Logger())
	}

	defaults := handler.Defaults{
		Engine:        models.EngineKind(cfg.Fetch.DefaultEngine),
		ProxyURL:      cfg.Browser.DefaultProxy,
		ScreenshotDir: cfg.Fetch.ScreenshotDir,
	}
	batch := handler.NewBatch(deps.Fetcher, deps.Batches, deps.Notifier, defaults, cfg.Browser.MaxConcurrent, deps.Logger)

	v1 := r.Group("/api/v1")

	// Health, no auth.
	v1.GET("/health", handler.Health(deps.Status))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/fetch", handler.Fetch(deps.Fetcher, deps.Cache, defaults))

	protected.POST("/batch/fetch", batch.Post())
	protected.GET("/batch/:id", batch.Get())

	return r
}
