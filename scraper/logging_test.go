package scraper_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/stealthfetch/mock"
	"github.com/use-agent/stealthfetch/models"
	"github.com/use-agent/stealthfetch/scraper"
)

func TestLoggingFetcher_Fetch(t *testing.T) {
	t.Parallel()

	t.Run("logs fetch with bytes and duration", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		inner := &mock.Fetcher{
			FetchFn: func(context.Context, *models.FetchRequest) (*scraper.Result, error) {
				return &scraper.Result{HTML: "<html>content</html>", Engine: models.EngineRod, Stage: scraper.StageClosed}, nil
			},
		}

		res, err := scraper.NewLoggingFetcher(inner, logger).Fetch(context.Background(), &models.FetchRequest{URL: "https://example.com/docs"})

		require.NoError(t, err)
		assert.Equal(t, "<html>content</html>", res.HTML)
		output := buf.String()
		assert.Contains(t, output, "msg=fetch")
		assert.Contains(t, output, "url=https://example.com/docs")
		assert.Contains(t, output, "bytes=20")
		assert.Contains(t, output, "engine=rod")
		assert.Contains(t, output, "duration=")
	})

	t.Run("logs error on failure", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		inner := &mock.Fetcher{
			FetchFn: func(context.Context, *models.FetchRequest) (*scraper.Result, error) {
				return nil, errors.New("network error")
			},
		}

		_, err := scraper.NewLoggingFetcher(inner, logger).Fetch(context.Background(), &models.FetchRequest{URL: "https://example.com/docs"})

		require.Error(t, err)
		output := buf.String()
		assert.Contains(t, output, "level=ERROR")
		assert.Contains(t, output, "err=\"network error\"")
	})
}
