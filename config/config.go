package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all process-level configuration. Per-fetch settings live in
// models.FetchConfig.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Fetch     FetchConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls how browser processes are launched.
type BrowserConfig struct {
	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// DefaultProxy is used when a request does not set proxyUrl.
	DefaultProxy string

	// MaxConcurrent bounds the number of browser sessions open at once.
	MaxConcurrent int // default: 4
}

// FetchConfig holds server-side defaults for fetches.
type FetchConfig struct {
	// DefaultEngine is used when a request does not name one.
	DefaultEngine string // default: "rod"

	// MaxTimeout caps the timeout a client may request.
	MaxTimeout time.Duration // default: 180s

	// UserAgents is a file path or http(s) URL with one user agent per line.
	// Empty uses the built-in pair.
	UserAgents string

	// ScreenshotDir is where debug screenshots go when a request does not
	// set screenshotPath.
	ScreenshotDir string // default: "screenshots"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool // default: true
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 3
}

// CacheConfig controls the fetch response cache.
type CacheConfig struct {
	MaxEntries int           // default: 500
	TTL        time.Duration // default: 1h
}

// WebhookConfig controls batch completion delivery.
type WebhookConfig struct {
	Timeout time.Duration // default: 10s
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// NewLogger builds a slog logger writing to w at the configured level.
// Unknown levels fall back to info; any format other than "json" is text.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("STEALTHFETCH_HOST", "0.0.0.0"),
			Port: envIntOr("STEALTHFETCH_PORT", 8080),
			Mode: envOr("STEALTHFETCH_MODE", "release"),
		},
		Browser: BrowserConfig{
			NoSandbox:     envBoolOr("STEALTHFETCH_NO_SANDBOX", true),
			BrowserBin:    os.Getenv("STEALTHFETCH_BROWSER_BIN"),
			DefaultProxy:  os.Getenv("STEALTHFETCH_PROXY"),
			MaxConcurrent: envIntOr("STEALTHFETCH_MAX_CONCURRENT", 4),
		},
		Fetch: FetchConfig{
			DefaultEngine: envOr("STEALTHFETCH_ENGINE", "rod"),
			MaxTimeout:    envDurationOr("STEALTHFETCH_MAX_TIMEOUT", 180*time.Second),
			UserAgents:    os.Getenv("STEALTHFETCH_USER_AGENTS"),
			ScreenshotDir: envOr("STEALTHFETCH_SCREENSHOT_DIR", "screenshots"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("STEALTHFETCH_AUTH_ENABLED", true),
			APIKeys: envSliceOr("STEALTHFETCH_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("STEALTHFETCH_RATE_RPS", 1.0),
			Burst:             envIntOr("STEALTHFETCH_RATE_BURST", 3),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("STEALTHFETCH_CACHE_MAX_ENTRIES", 500),
			TTL:        envDurationOr("STEALTHFETCH_CACHE_TTL", time.Hour),
		},
		Webhook: WebhookConfig{
			Timeout: envDurationOr("STEALTHFETCH_WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level:  envOr("STEALTHFETCH_LOG_LEVEL", "info"),
			Format: envOr("STEALTHFETCH_LOG_FORMAT", "text"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
