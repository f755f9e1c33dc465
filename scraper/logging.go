package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/stealthfetch/models"
)

var _ Fetcher = (*LoggingFetcher)(nil)

// LoggingFetcher wraps a Fetcher with one log line per fetch.
type LoggingFetcher struct {
	next   Fetcher
	logger *slog.Logger
}

// NewLoggingFetcher creates a new LoggingFetcher.
func NewLoggingFetcher(next Fetcher, logger *slog.Logger) *LoggingFetcher {
	return &LoggingFetcher{next: next, logger: logger}
}

// Fetch delegates to the wrapped fetcher and logs the outcome.
func (f *LoggingFetcher) Fetch(ctx context.Context, req *models.FetchRequest) (res *Result, err error) {
	begin := time.Now()
	defer func() {
		attrs := []any{
			"url", req.URL,
			"duration", time.Since(begin),
		}
		if res != nil {
			attrs = append(attrs,
				"engine", res.Engine,
				"stage", res.Stage,
				"bytes", len(res.HTML),
				"challenge", res.Challenge,
				"softFailures", len(res.SoftFailures),
			)
		}
		if err != nil {
			f.logger.Error("fetch", append(attrs, "err", err)...)
			return
		}
		f.logger.Info("fetch", attrs...)
	}()
	return f.next.Fetch(ctx, req)
}
