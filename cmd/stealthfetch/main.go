// Command stealthfetch renders one page in a fingerprinted browser and
// prints its HTML. Diagnostics go to stderr so stdout carries only the page.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/use-agent/stealthfetch/config"
	"github.com/use-agent/stealthfetch/engine"
	"github.com/use-agent/stealthfetch/fingerprint"
	"github.com/use-agent/stealthfetch/scraper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := NewMain().Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Registry replaces the browser engines. Nil launches real browsers.
	Registry *engine.Registry

	// ScraperOptions are applied after the defaults.
	ScraperOptions []scraper.Option
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{}
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("stealthfetch"),
		kong.Description("Fetch the rendered HTML of a page through a fingerprinted headless browser"),
		kong.Writers(stderr, stderr),
		kong.Exit(func(int) {}),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no arguments provided")
	}
	if len(args) == 1 && (args[0] == "--help" || args[0] == "-h" || args[0] == "help") {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}
	if _, err := parser.Parse(args); err != nil {
		return err
	}

	// ── 1. Process configuration and logging ────────────────────────
	cfg := config.Load()
	if cli.Debug {
		cfg.Log.Level = "debug"
	}
	logger := cfg.Log.NewLogger(stderr)

	// ── 2. Fetch request ────────────────────────────────────────────
	req, err := cli.request(cfg.Fetch.DefaultEngine)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}
	if req.ProxyURL == "" {
		req.ProxyURL = cfg.Browser.DefaultProxy
	}
	if req.ScreenshotPath == "" {
		req.ScreenshotPath = cfg.Fetch.ScreenshotDir
	}

	// ── 3. Fingerprint provider ─────────────────────────────────────
	source := cli.UserAgents
	if source == "" {
		source = cfg.Fetch.UserAgents
	}
	provider := fingerprint.NewProvider(fingerprint.LoadUserAgents(ctx, source, logger))

	// ── 4. Engines and scraper ──────────────────────────────────────
	registry := m.Registry
	if registry == nil {
		registry = engine.Default(
			engine.WithBrowserBin(cfg.Browser.BrowserBin),
			engine.WithNoSandbox(cfg.Browser.NoSandbox),
			engine.WithLogger(logger),
		)
	}
	opts := append([]scraper.Option{
		scraper.WithLogger(logger),
		scraper.WithMaxTimeout(cfg.Fetch.MaxTimeout),
	}, m.ScraperOptions...)
	fetcher := scraper.NewLoggingFetcher(scraper.New(registry, provider, opts...), logger)

	// ── 5. Fetch and emit ───────────────────────────────────────────
	res, err := fetcher.Fetch(ctx, req)
	if err != nil {
		return err
	}
	for _, sf := range res.SoftFailures {
		logger.Warn("degraded", "reason", sf)
	}

	if cli.Output != "" {
		if err := os.WriteFile(cli.Output, []byte(res.HTML), 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		logger.Info("html written", "path", cli.Output, "bytes", len(res.HTML))
		return nil
	}
	_, err = fmt.Fprintln(stdout, res.HTML)
	return err
}
