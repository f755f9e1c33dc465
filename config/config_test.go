package config_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/use-agent/stealthfetch/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := config.Load()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "rod", cfg.Fetch.DefaultEngine)
	assert.Equal(t, 4, cfg.Browser.MaxConcurrent)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.True(t, cfg.Auth.Enabled)
	assert.Empty(t, cfg.Auth.APIKeys)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STEALTHFETCH_PORT", "9090")
	t.Setenv("STEALTHFETCH_ENGINE", "chromedp-stealth")
	t.Setenv("STEALTHFETCH_API_KEYS", " a, b ,,c ")
	t.Setenv("STEALTHFETCH_NO_SANDBOX", "true")
	t.Setenv("STEALTHFETCH_MAX_TIMEOUT", "90s")
	t.Setenv("STEALTHFETCH_RATE_RPS", "2.5")

	cfg := config.Load()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "chromedp-stealth", cfg.Fetch.DefaultEngine)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Auth.APIKeys)
	assert.True(t, cfg.Browser.NoSandbox)
	assert.Equal(t, 90*time.Second, cfg.Fetch.MaxTimeout)
	assert.InDelta(t, 2.5, cfg.RateLimit.RequestsPerSecond, 0.001)
}

func TestLoad_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("STEALTHFETCH_PORT", "eighty")
	t.Setenv("STEALTHFETCH_CACHE_TTL", "soon")

	cfg := config.Load()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
}

func TestLogConfig_NewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := config.LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)
}

func TestLogConfig_NewLoggerTextDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := config.LogConfig{Level: "DEBUG", Format: "text"}.NewLogger(&buf)
	logger.Debug("detail")

	assert.Contains(t, buf.String(), "msg=detail")
}
