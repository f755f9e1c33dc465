package models

import "sync"

// BatchRequest is the payload for POST /api/v1/batch/fetch.
type BatchRequest struct {
	// URLs is the list of target pages. Required.
	URLs []string `json:"urls" validate:"required,min=1,max=50,dive,http_url"`

	// Options is the fetch configuration shared by every URL.
	Options FetchConfig `json:"options"`

	// WebhookURL receives a batch.completed event when the job finishes.
	WebhookURL string `json:"webhookUrl,omitempty" validate:"omitempty,http_url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256.
	WebhookSecret string `json:"webhookSecret,omitempty"`
}

// Validate checks the batch payload.
func (r *BatchRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return NewFetchError(ErrCodeInvalidInput, formatValidation(err), err)
	}
	return nil
}

// BatchResponse is the immediate response for POST /api/v1/batch/fetch.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string           `json:"id"`
	Status    string           `json:"status"`
	Completed int              `json:"completed"`
	Total     int              `json:"total"`
	Results   []*FetchResponse `json:"results,omitempty"`
}

// Batch job states.
const (
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchPartial    = "partial"
	BatchFailed     = "failed"
)

// BatchJob tracks an in-progress batch fetch.
type BatchJob struct {
	mu sync.Mutex

	ID        string
	Status    string
	Total     int
	Completed int
	Results   []*FetchResponse
	CreatedAt int64 // unix timestamp
}

// Record stores the result for index idx.
func (j *BatchJob) Record(idx int, resp *FetchResponse) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Results[idx] = resp
	j.Completed++
}

// Finish sets the terminal status from the recorded results.
func (j *BatchJob) Finish() (succeeded, failed int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, r := range j.Results {
		if r != nil && r.Success {
			succeeded++
		} else {
			failed++
		}
	}
	switch {
	case failed == j.Total:
		j.Status = BatchFailed
	case failed > 0:
		j.Status = BatchPartial
	default:
		j.Status = BatchCompleted
	}
	return succeeded, failed
}

// Snapshot returns a consistent copy for serialisation.
func (j *BatchJob) Snapshot() BatchStatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	results := make([]*FetchResponse, len(j.Results))
	copy(results, j.Results)
	return BatchStatusResponse{
		ID:        j.ID,
		Status:    j.Status,
		Completed: j.Completed,
		Total:     j.Total,
		Results:   results,
	}
}
