package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/stealthfetch/models"
	"github.com/use-agent/stealthfetch/scraper"
	"github.com/use-agent/stealthfetch/webhook"
	"golang.org/x/sync/errgroup"
)

// defaultBatchConcurrency bounds per-batch parallelism when the fetcher
// reports no session limit.
const defaultBatchConcurrency = 4

// BatchStore holds in-flight and completed batch jobs.
type BatchStore struct {
	jobs sync.Map // id → *models.BatchJob
	ttl  time.Duration
}

// NewBatchStore creates a store and starts a goroutine that expires jobs
// older than ttl every 5 minutes.
func NewBatchStore(ttl time.Duration) *BatchStore {
	s := &BatchStore{ttl: ttl}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			s.expire(time.Now())
		}
	}()
	return s
}

func (s *BatchStore) put(job *models.BatchJob) { s.jobs.Store(job.ID, job) }

func (s *BatchStore) get(id string) (*models.BatchJob, bool) {
	v, ok := s.jobs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*models.BatchJob), true
}

func (s *BatchStore) expire(now time.Time) {
	cutoff := now.Add(-s.ttl).Unix()
	s.jobs.Range(func(key, value any) bool {
		if value.(*models.BatchJob).CreatedAt < cutoff {
			s.jobs.Delete(key)
		}
		return true
	})
}

// Batch serves the batch endpoints.
type Batch struct {
	fetcher     scraper.Fetcher
	store       *BatchStore
	notifier    *webhook.Notifier
	defaults    Defaults
	concurrency int
	logger      *slog.Logger
}

// NewBatch creates the batch handlers. concurrency bounds how many URLs of
// one batch are fetched at once.
func NewBatch(f scraper.Fetcher, store *BatchStore, notifier *webhook.Notifier, defaults Defaults, concurrency int, logger *slog.Logger) *Batch {
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{
		fetcher:     f,
		store:       store,
		notifier:    notifier,
		defaults:    defaults,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Post returns a handler for POST /api/v1/batch/fetch. It validates the
// request, registers the job, and fetches in the background.
func (b *Batch) Post() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": models.AsFetchError(err).ToDetail()})
			return
		}
		b.defaults.apply(&req.Options)

		job := &models.BatchJob{
			ID:        "batch-" + uuid.NewString(),
			Status:    models.BatchProcessing,
			Total:     len(req.URLs),
			Results:   make([]*models.FetchResponse, len(req.URLs)),
			CreatedAt: time.Now().Unix(),
		}
		b.store.put(job)

		go b.run(context.Background(), job, req)

		c.JSON(http.StatusAccepted, models.BatchResponse{
			ID:     job.ID,
			Status: models.BatchProcessing,
			Total:  job.Total,
		})
	}
}

// Get returns a handler for GET /api/v1/batch/:id.
func (b *Batch) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := b.store.get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "batch job not found",
				},
			})
			return
		}
		c.JSON(http.StatusOK, job.Snapshot())
	}
}

// run fetches every URL of the job, at most b.concurrency at a time, then
// fires the completion webhook.
func (b *Batch) run(ctx context.Context, job *models.BatchJob, req models.BatchRequest) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, rawURL := range req.URLs {
		g.Go(func() error {
			fr := &models.FetchRequest{URL: rawURL, FetchConfig: req.Options}
			res, err := b.fetcher.Fetch(gctx, fr)
			if err != nil {
				job.Record(i, scraper.ErrorResponse(rawURL, res, err))
				return nil
			}
			job.Record(i, res.Response())
			return nil
		})
	}
	_ = g.Wait()

	succeeded, failed := job.Finish()
	b.logger.Info("batch job finished",
		"id", job.ID,
		"status", job.Status,
		"succeeded", succeeded,
		"failed", failed,
		"total", job.Total,
	)

	if req.WebhookURL != "" && b.notifier != nil {
		b.notifier.DeliverAsync(req.WebhookURL, req.WebhookSecret, &webhook.Event{
			Type:      webhook.EventBatchCompleted,
			JobID:     job.ID,
			Timestamp: time.Now().Unix(),
			Data:      job.Snapshot(),
		})
	}
}
