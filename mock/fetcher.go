package mock

import (
	"context"

	"github.com/use-agent/stealthfetch/models"
	"github.com/use-agent/stealthfetch/scraper"
)

var _ scraper.Fetcher = (*Fetcher)(nil)

// Fetcher is a mock implementation of scraper.Fetcher.
type Fetcher struct {
	FetchFn func(ctx context.Context, req *models.FetchRequest) (*scraper.Result, error)
}

func (f *Fetcher) Fetch(ctx context.Context, req *models.FetchRequest) (*scraper.Result, error) {
	return f.FetchFn(ctx, req)
}
