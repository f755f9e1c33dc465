package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/use-agent/stealthfetch/models"
)

// apiClient talks to the stealthfetch HTTP API.
type apiClient struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	pollInterval time.Duration
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL:      baseURL,
		apiKey:       apiKey,
		http:         &http.Client{Timeout: 5 * time.Minute},
		pollInterval: 2 * time.Second,
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}

// Fetch posts one fetch request. API-level failures come back in the
// response's Error field, not as an error.
func (c *apiClient) Fetch(ctx context.Context, req *models.FetchAPIRequest) (*models.FetchResponse, error) {
	var resp models.FetchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/fetch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Batch starts a batch job and polls it until it leaves the processing
// state or ctx ends.
func (c *apiClient) Batch(ctx context.Context, req *models.BatchRequest) (*models.BatchStatusResponse, error) {
	var created struct {
		models.BatchResponse
		Error *models.ErrorDetail `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/batch/fetch", req, &created); err != nil {
		return nil, err
	}
	if created.Error != nil {
		return nil, fmt.Errorf("[%s] %s", created.Error.Code, created.Error.Message)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("batch job creation failed")
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			var status models.BatchStatusResponse
			if err := c.do(ctx, http.MethodGet, "/api/v1/batch/"+created.ID, nil, &status); err != nil {
				return nil, err
			}
			if status.Status != models.BatchProcessing {
				return &status, nil
			}
		}
	}
}
