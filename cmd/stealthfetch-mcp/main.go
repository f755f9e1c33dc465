// Command stealthfetch-mcp is an MCP stdio server that forwards tool calls
// to a running stealthfetch-server.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("STEALTHFETCH_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("STEALTHFETCH_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "STEALTHFETCH_API_KEY is required")
		os.Exit(1)
	}

	c := newAPIClient(apiURL, apiKey)
	if err := server.ServeStdio(newServer(c)); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(c *apiClient) *server.MCPServer {
	s := server.NewMCPServer(
		"stealthfetch",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	fetchTool := mcp.NewTool("fetch_html",
		mcp.WithDescription("Render a web page in a fingerprinted headless browser and return its HTML. Waits out bot-check interstitials and simulates a human reader."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to fetch"),
		),
		mcp.WithString("engine",
			mcp.Description("Browser engine (default chosen by the server)"),
			mcp.Enum("rod", "chromedp", "chromedp-stealth"),
		),
		mcp.WithBoolean("fast_mode",
			mcp.Description("Shorter delays and no behavior simulation"),
		),
		mcp.WithString("wait_for_selector",
			mcp.Description("CSS selector to wait for before returning"),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("Navigation timeout in milliseconds (default 60000)"),
		),
		mcp.WithNumber("max_age_ms",
			mcp.Description("Serve a cached copy younger than this many milliseconds"),
		),
	)
	s.AddTool(fetchTool, handleFetchHTML(c))

	batchTool := mcp.NewTool("batch_fetch",
		mcp.WithDescription("Fetch up to 50 pages with shared options and return the HTML of each."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("List of URLs to fetch"),
		),
		mcp.WithString("engine",
			mcp.Description("Browser engine (default chosen by the server)"),
			mcp.Enum("rod", "chromedp", "chromedp-stealth"),
		),
		mcp.WithBoolean("fast_mode",
			mcp.Description("Shorter delays and no behavior simulation"),
		),
	)
	s.AddTool(batchTool, handleBatchFetch(c, 10*time.Minute))

	return s
}
