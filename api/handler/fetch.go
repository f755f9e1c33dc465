package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/stealthfetch/cache"
	"github.com/use-agent/stealthfetch/models"
	"github.com/use-agent/stealthfetch/scraper"
)

// Defaults are server-side values for request fields a client left empty.
type Defaults struct {
	Engine        models.EngineKind
	ProxyURL      string
	ScreenshotDir string
}

func (d Defaults) apply(cfg *models.FetchConfig) {
	if cfg.Engine == "" {
		cfg.Engine = d.Engine
	}
	if cfg.ProxyURL == "" {
		cfg.ProxyURL = d.ProxyURL
	}
	if cfg.ScreenshotPath == "" {
		cfg.ScreenshotPath = d.ScreenshotDir
	}
}

// Fetch returns a handler for POST /api/v1/fetch.
//
// Orchestration flow:
//  1. Parse & validate request, apply server defaults.
//  2. Cache lookup when maxAge > 0.
//  3. Fetcher.Fetch → rendered HTML, soft failures, timing.
//  4. Cache store, respond 200.
func Fetch(f scraper.Fetcher, cc *cache.Cache, defaults Defaults) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.FetchAPIRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.FetchResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		if err := req.Validate(); err != nil {
			respondError(c, req.URL, nil, err)
			return
		}
		defaults.apply(&req.FetchConfig)

		// ── 2. Cache lookup ─────────────────────────────────────────
		var cacheKey string
		if cc != nil && req.MaxAge > 0 {
			cacheKey = cache.Key(&req.FetchRequest)
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				cached.CacheStatus = "hit"
				cached.Timing = models.TimingInfo{
					TotalMs: time.Since(totalStart).Milliseconds(),
				}
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		// ── 3. Fetch ────────────────────────────────────────────────
		res, err := f.Fetch(c.Request.Context(), &req.FetchRequest)
		if err != nil {
			respondError(c, req.URL, res, err)
			return
		}
		resp := res.Response()

		// ── 4. Cache store ──────────────────────────────────────────
		if cacheKey != "" {
			cc.Set(cacheKey, resp)
			resp.CacheStatus = "miss"
		}

		c.JSON(http.StatusOK, resp)
	}
}

// respondError maps a FetchError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, url string, res *scraper.Result, err error) {
	resp := scraper.ErrorResponse(url, res, err)
	c.JSON(statusFor(resp.Error.Code), resp)
}

// statusFor translates error codes to HTTP status codes.
func statusFor(code string) int {
	switch code {
	case models.ErrCodeInvalidConfig, models.ErrCodeInvalidInput, models.ErrCodeEngineUnavailable:
		return http.StatusBadRequest // 400
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeSessionOpen:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
