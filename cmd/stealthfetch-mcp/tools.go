package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/stealthfetch/models"
)

// sharedConfig reads the options common to both tools.
func sharedConfig(request mcp.CallToolRequest) models.FetchConfig {
	cfg := models.FetchConfig{
		Engine:   models.EngineKind(request.GetString("engine", "")),
		FastMode: request.GetBool("fast_mode", false),
	}
	return cfg
}

func handleFetchHTML(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		req := &models.FetchAPIRequest{
			FetchRequest: models.FetchRequest{URL: url, FetchConfig: sharedConfig(request)},
			MaxAge:       request.GetInt("max_age_ms", 0),
		}
		req.WaitForSelector = request.GetString("wait_for_selector", "")
		req.Timeout = request.GetInt("timeout_ms", 0)

		resp, err := c.Fetch(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(describeFailure(resp)), nil
		}

		var sb strings.Builder
		sb.WriteString(resp.HTML)
		if len(resp.SoftFailures) > 0 {
			fmt.Fprintf(&sb, "\n\n---\nDegraded: %s", strings.Join(resp.SoftFailures, "; "))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleBatchFetch(c *apiClient, budget time.Duration) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil {
			return mcp.NewToolResultError("urls is required and must be an array of strings"), nil
		}

		ctx, cancel := context.WithTimeout(ctx, budget)
		defer cancel()

		status, err := c.Batch(ctx, &models.BatchRequest{URLs: urls, Options: sharedConfig(request)})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch fetch failed: %v", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Batch %s: %s (%d/%d completed)\n\n", status.ID, status.Status, status.Completed, status.Total)
		for i, r := range status.Results {
			switch {
			case r == nil:
				fmt.Fprintf(&sb, "--- [%d] missing result ---\n\n", i+1)
			case r.Success:
				fmt.Fprintf(&sb, "--- [%d] %s ---\n%s\n\n", i+1, r.URL, r.HTML)
			default:
				fmt.Fprintf(&sb, "--- [%d] %s FAILED: %s ---\n\n", i+1, r.URL, describeFailure(r))
			}
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func describeFailure(resp *models.FetchResponse) string {
	if resp.Error == nil {
		return "fetch failed"
	}
	return fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
}
