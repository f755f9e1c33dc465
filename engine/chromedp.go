package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/use-agent/stealthfetch/models"
)

// ChromedpEngine drives Chrome through chromedp. The stealth variant layers
// the go-rod/stealth evasion bundle on top of the base evasion script.
type ChromedpEngine struct {
	opts    options
	kind    models.EngineKind
	stealth bool
}

var _ Engine = (*ChromedpEngine)(nil)

// NewChromedp creates the plain chromedp engine.
func NewChromedp(opts ...Option) *ChromedpEngine {
	return &ChromedpEngine{opts: newOptions(opts), kind: models.EngineChromedp}
}

// NewChromedpStealth creates the chromedp engine with the stealth bundle.
func NewChromedpStealth(opts ...Option) *ChromedpEngine {
	return &ChromedpEngine{opts: newOptions(opts), kind: models.EngineChromedpStealth, stealth: true}
}

// Kind implements Engine.
func (e *ChromedpEngine) Kind() models.EngineKind { return e.kind }

// allocatorOptions builds the launch flags for one session.
func (e *ChromedpEngine) allocatorOptions(cfg models.FetchConfig, fp models.FingerprintProfile, proxy proxyConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.IsHeadless()),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("window-position", "0,0"),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("ignore-certificate-errors-spki-list", true),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.WindowSize(fp.Viewport.Width, fp.Viewport.Height),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("enable-automation", false),
		chromedp.UserAgent(fp.UserAgent),
	)
	if e.opts.noSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if e.opts.browserBin != "" {
		opts = append(opts, chromedp.ExecPath(e.opts.browserBin))
	}
	if proxy.Server != "" {
		opts = append(opts, chromedp.ProxyServer(proxy.Server))
	}
	if fp.Locale != "" {
		opts = append(opts, chromedp.Flag("lang", fp.Locale))
	}
	return opts
}

// Open starts a browser process and attaches to its first tab.
func (e *ChromedpEngine) Open(ctx context.Context, cfg models.FetchConfig, fp models.FingerprintProfile) (Session, error) {
	proxy, err := parseProxy(cfg.ProxyURL)
	if err != nil {
		return nil, models.ConfigError("invalid proxyUrl", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := e.opts.logger.With("engine", e.kind)

	// The browser outlives individual calls, so it is not bound to ctx.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), e.allocatorOptions(cfg, fp, proxy)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	s := &cdpSession{
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		cfg:         cfg,
		proxy:       proxy,
		stealth:     e.stealth,
		stealthJS:   e.opts.stealthScript,
		lifecycle:   newLifecycleWatcher(),
		logger:      logger,
	}

	// ── 1. Start the browser on the tab context itself ───────────────
	start := []chromedp.Action{
		network.Enable(),
		page.Enable(),
		page.SetLifecycleEventsEnabled(true),
	}
	intercept := len(cfg.BlockedResourceTypes) > 0 || proxy.hasAuth()
	if intercept {
		enable := fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}})
		if proxy.hasAuth() {
			enable = enable.WithHandleAuthRequests(true)
		}
		start = append(start, enable)
	}

	stop := context.AfterFunc(ctx, cancelTab)
	err = chromedp.Run(tabCtx, start...)
	stop()
	if err != nil {
		cancelTab()
		cancelAlloc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("start browser: %w", err)
	}

	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		s.lifecycle.frame = cdp.FrameID(c.Target.TargetID)
	}

	// ── 2. Event listeners ───────────────────────────────────────────
	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch ev := ev.(type) {
		case *fetch.EventRequestPaused:
			go s.handlePaused(ev)
		case *fetch.EventAuthRequired:
			go s.handleAuth(ev)
		case *page.EventLifecycleEvent:
			s.lifecycle.observe(ev)
		}
	})

	return s, nil
}

type cdpSession struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	cfg         models.FetchConfig
	proxy       proxyConfig
	stealth     bool
	stealthJS   string
	lifecycle   *lifecycleWatcher
	logger      *slog.Logger
	closed      atomic.Bool
}

var _ Session = (*cdpSession)(nil)

// run executes actions on the tab, bounded by ctx.
func (s *cdpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (s *cdpSession) handlePaused(e *fetch.EventRequestPaused) {
	var action chromedp.Action = fetch.ContinueRequest(e.RequestID)
	if s.cfg.Blocks(string(e.ResourceType)) {
		action = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient)
	}
	if err := chromedp.Run(s.tabCtx, action); err != nil && !s.closed.Load() {
		s.logger.Debug("request interception failed", "url", e.Request.URL, "error", err)
	}
}

func (s *cdpSession) handleAuth(e *fetch.EventAuthRequired) {
	resp := &fetch.AuthChallengeResponse{Response: fetch.AuthChallengeResponseResponseDefault}
	if e.AuthChallenge != nil && e.AuthChallenge.Source == fetch.AuthChallengeSourceProxy {
		resp = &fetch.AuthChallengeResponse{
			Response: fetch.AuthChallengeResponseResponseProvideCredentials,
			Username: s.proxy.Username,
			Password: s.proxy.Password,
		}
	}
	if err := chromedp.Run(s.tabCtx, fetch.ContinueWithAuth(e.RequestID, resp)); err != nil && !s.closed.Load() {
		s.logger.Debug("proxy auth failed", "error", err)
	}
}

func (s *cdpSession) Apply(ctx context.Context, fp models.FingerprintProfile, cfg models.FetchConfig) error {
	// ── 1. Viewport, user agent, headers, cookies, evasion script ────
	ua := emulation.SetUserAgentOverride(fp.UserAgent).
		WithAcceptLanguage(acceptLanguage(fp.Locale))
	if platform := platformFor(fp.UserAgent); platform != "" {
		ua = ua.WithPlatform(platform)
	}
	actions := []chromedp.Action{
		emulation.SetDeviceMetricsOverride(int64(fp.Viewport.Width), int64(fp.Viewport.Height), 1, false),
		ua,
	}
	if len(cfg.ExtraHeaders) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(toNetworkHeaders(cfg.ExtraHeaders)))
	}
	if len(cfg.Cookies) > 0 {
		actions = append(actions, network.SetCookies(toCookieParams(cfg.Cookies)))
	}
	actions = append(actions, addScript(evasionScriptFor(fp.UserAgent)))

	if err := s.run(ctx, actions...); err != nil {
		return fmt.Errorf("apply fingerprint: %w", err)
	}

	// ── 2. Locale, timezone, geolocation (best-effort) ───────────────
	if fp.Locale != "" {
		s.soft("locale", s.run(ctx, emulation.SetLocaleOverride().WithLocale(fp.Locale)))
	}
	if fp.TimezoneID != "" {
		s.soft("timezone", s.run(ctx, emulation.SetTimezoneOverride(fp.TimezoneID)))
	}
	s.soft("geolocation permission", s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		c := chromedp.FromContext(ctx)
		return browser.GrantPermissions([]browser.PermissionType{browser.PermissionTypeGeolocation}).
			Do(cdp.WithExecutor(ctx, c.Browser))
	})))
	s.soft("geolocation", s.run(ctx, emulation.SetGeolocationOverride().
		WithLatitude(fp.Geolocation.Latitude).
		WithLongitude(fp.Geolocation.Longitude).
		WithAccuracy(100)))

	// ── 3. Stealth bundle ────────────────────────────────────────────
	if s.stealth {
		if s.stealthJS == "" {
			s.logger.Warn("stealth bundle unavailable, continuing with base evasions")
		} else if err := s.run(ctx, addScript(s.stealthJS)); err != nil {
			s.logger.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}
	return nil
}

func (s *cdpSession) soft(step string, err error) {
	if err != nil {
		s.logger.Warn("fingerprint step failed, continuing", "step", step, "error", err)
	}
}

func addScript(js string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(js).Do(ctx)
		return err
	})
}

func (s *cdpSession) Navigate(ctx context.Context, url string, cfg models.FetchConfig) error {
	s.lifecycle.reset()

	navCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	// chromedp.Navigate returns at "load"; the lifecycle watcher decides
	// when the requested point is reached, which may be earlier or later.
	navigated := make(chan error, 1)
	go func() { navigated <- chromedp.Run(navCtx, chromedp.Navigate(url)) }()
	reached := make(chan error, 1)
	go func() { reached <- s.lifecycle.wait(navCtx, cdpLifecycle(cfg.WaitUntil)) }()

	for {
		select {
		case err := <-navigated:
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return err
			}
			navigated = nil
		case err := <-reached:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}
}

func cdpLifecycle(w models.NavigationWait) string {
	switch w {
	case models.WaitLoad:
		return "load"
	case models.WaitDOMContentLoaded:
		return "DOMContentLoaded"
	default:
		return "networkAlmostIdle"
	}
}

func (s *cdpSession) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.Evaluate(`document.documentElement.outerHTML`, &html))
	return html, err
}

func (s *cdpSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (s *cdpSession) ScrollTo(ctx context.Context, y int) error {
	return s.run(ctx, chromedp.Evaluate(fmt.Sprintf(`window.scrollTo(0, %d)`, y), nil))
}

func (s *cdpSession) MoveMouse(ctx context.Context, x, y int) error {
	return s.run(ctx, chromedp.MouseEvent(input.MouseMoved, float64(x), float64(y)))
}

func (s *cdpSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.run(wctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Close closes the tab and the browser process.
func (s *cdpSession) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := chromedp.Cancel(s.tabCtx)
	s.cancelTab()
	s.cancelAlloc()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

func toNetworkHeaders(headers map[string]string) network.Headers {
	h := make(network.Headers, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	return h
}

func toCookieParams(cookies []models.CookieRecord) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: network.CookieSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			exp := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
			p.Expires = &exp
		}
		params = append(params, p)
	}
	return params
}

// lifecycleWatcher records main-frame lifecycle events for the current
// navigation.
type lifecycleWatcher struct {
	mu     sync.Mutex
	frame  cdp.FrameID
	loader cdp.LoaderID
	seen   map[string]bool
	notify chan struct{}
}

func newLifecycleWatcher() *lifecycleWatcher {
	return &lifecycleWatcher{seen: map[string]bool{}, notify: make(chan struct{})}
}

// reset forgets earlier documents. The next main-frame "init" event pins
// the loader whose events count.
func (w *lifecycleWatcher) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loader = ""
	w.seen = map[string]bool{}
}

func (w *lifecycleWatcher) observe(e *page.EventLifecycleEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.frame != "" && e.FrameID != w.frame {
		return
	}
	if e.Name == "init" && w.loader == "" {
		w.loader = e.LoaderID
	}
	if w.loader == "" || e.LoaderID != w.loader {
		return
	}
	w.seen[e.Name] = true
	close(w.notify)
	w.notify = make(chan struct{})
}

func (w *lifecycleWatcher) wait(ctx context.Context, name string) error {
	for {
		w.mu.Lock()
		if w.seen[name] {
			w.mu.Unlock()
			return nil
		}
		ch := w.notify
		w.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
