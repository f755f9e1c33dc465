package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/stealthfetch/models"
	"github.com/ysmood/gson"
)

// RodEngine drives Chrome through go-rod.
type RodEngine struct {
	opts options
}

var _ Engine = (*RodEngine)(nil)

// NewRod creates the rod engine.
func NewRod(opts ...Option) *RodEngine {
	return &RodEngine{opts: newOptions(opts)}
}

// Kind implements Engine.
func (e *RodEngine) Kind() models.EngineKind { return models.EngineRod }

// Open launches a fresh browser and opens one blank page.
func (e *RodEngine) Open(ctx context.Context, cfg models.FetchConfig, fp models.FingerprintProfile) (Session, error) {
	proxy, err := parseProxy(cfg.ProxyURL)
	if err != nil {
		return nil, models.ConfigError("invalid proxyUrl", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ── 1. Launcher with stealth flags ───────────────────────────────
	l := launcher.New().
		Headless(cfg.IsHeadless()).
		NoSandbox(e.opts.noSandbox)

	if e.opts.browserBin != "" {
		l = l.Bin(e.opts.browserBin)
	}
	if proxy.Server != "" {
		l = l.Proxy(proxy.Server)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-infobars"))
	l.Set(flags.Flag("ignore-certificate-errors"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("window-size"), strconv.Itoa(fp.Viewport.Width)+","+strconv.Itoa(fp.Viewport.Height))
	if fp.Locale != "" {
		l.Set(flags.Flag("lang"), fp.Locale)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	e.opts.logger.Debug("browser launched", "engine", e.Kind(), "controlURL", controlURL)

	// ── 2. Connect ───────────────────────────────────────────────────
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		stopProcess(l)
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	if proxy.hasAuth() {
		wait := browser.HandleAuth(proxy.Username, proxy.Password)
		go func() {
			if err := wait(); err != nil {
				e.opts.logger.Debug("proxy auth handler exited", "error", err)
			}
		}()
	}

	// ── 3. Page ──────────────────────────────────────────────────────
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		stopProcess(l)
		return nil, fmt.Errorf("open page: %w", err)
	}

	// ── 4. Resource blocking ─────────────────────────────────────────
	router := setupHijack(page, cfg.BlockedResourceTypes)

	return &rodSession{
		launcher:  l,
		browser:   browser,
		page:      page,
		router:    router,
		stealthJS: e.opts.stealthScript,
		logger:    e.opts.logger.With("engine", e.Kind()),
	}, nil
}

// browserProcess is the part of *launcher.Launcher a session tears down.
type browserProcess interface {
	Kill()
	Cleanup()
}

// stopProcess kills the browser and removes its per-launch profile directory.
func stopProcess(p browserProcess) {
	p.Kill()
	p.Cleanup()
}

type rodSession struct {
	launcher  browserProcess
	browser   *rod.Browser
	page      *rod.Page
	router    *rod.HijackRouter
	stealthJS string
	logger    *slog.Logger
	closed    atomic.Bool
}

var _ Session = (*rodSession)(nil)

func (s *rodSession) Apply(ctx context.Context, fp models.FingerprintProfile, cfg models.FetchConfig) error {
	p := s.page.Context(ctx)

	// ── 1. Evasion scripts (before any navigation) ───────────────────
	if _, err := p.EvalOnNewDocument(evasionScriptFor(fp.UserAgent)); err != nil {
		return fmt.Errorf("inject evasion script: %w", err)
	}
	if s.stealthJS == "" {
		s.logger.Warn("stealth bundle unavailable, continuing with base evasions")
	} else if _, err := p.EvalOnNewDocument(s.stealthJS); err != nil {
		s.logger.Warn("stealth injection failed, proceeding without stealth", "error", err)
	}

	// ── 2. Viewport and user agent ───────────────────────────────────
	if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             fp.Viewport.Width,
		Height:            fp.Viewport.Height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      fp.UserAgent,
		AcceptLanguage: acceptLanguage(fp.Locale),
		Platform:       platformFor(fp.UserAgent),
	}); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}

	// ── 3. Extra headers ─────────────────────────────────────────────
	if len(cfg.ExtraHeaders) > 0 {
		if err := (proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(cfg.ExtraHeaders),
		}).Call(p); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
	}

	// ── 4. Cookies, one at a time on a blank document ────────────────
	if len(cfg.Cookies) > 0 {
		if err := p.Navigate("about:blank"); err != nil {
			return fmt.Errorf("prepare cookie document: %w", err)
		}
		for _, c := range cfg.Cookies {
			if _, err := toRodCookie(c).Call(p); err != nil {
				return fmt.Errorf("set cookie %q: %w", c.Name, err)
			}
		}
	}

	// ── 5. Locale, timezone, geolocation (best-effort) ───────────────
	if fp.Locale != "" {
		s.soft("locale", proto.EmulationSetLocaleOverride{Locale: fp.Locale}.Call(p))
	}
	if fp.TimezoneID != "" {
		s.soft("timezone", proto.EmulationSetTimezoneOverride{TimezoneID: fp.TimezoneID}.Call(p))
	}
	s.soft("geolocation permission", proto.BrowserGrantPermissions{
		Permissions: []proto.BrowserPermissionType{proto.BrowserPermissionTypeGeolocation},
	}.Call(s.browser))
	lat, lng, acc := fp.Geolocation.Latitude, fp.Geolocation.Longitude, 100.0
	s.soft("geolocation", proto.EmulationSetGeolocationOverride{
		Latitude:  &lat,
		Longitude: &lng,
		Accuracy:  &acc,
	}.Call(p))

	return nil
}

func (s *rodSession) soft(step string, err error) {
	if err != nil {
		s.logger.Warn("fingerprint step failed, continuing", "step", step, "error", err)
	}
}

func (s *rodSession) Navigate(ctx context.Context, url string, cfg models.FetchConfig) error {
	p := s.page.Context(ctx)

	// The waiter must exist before Navigate or early lifecycle events are missed.
	wait := p.WaitNavigation(rodLifecycle(cfg.WaitUntil))
	if err := p.Navigate(url); err != nil {
		return err
	}
	wait()
	return ctx.Err()
}

func rodLifecycle(w models.NavigationWait) proto.PageLifecycleEventName {
	switch w {
	case models.WaitLoad:
		return proto.PageLifecycleEventNameLoad
	case models.WaitDOMContentLoaded:
		return proto.PageLifecycleEventNameDOMContentLoaded
	default:
		return proto.PageLifecycleEventNameNetworkAlmostIdle
	}
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

func (s *rodSession) Screenshot(ctx context.Context) ([]byte, error) {
	return s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (s *rodSession) ScrollTo(ctx context.Context, y int) error {
	_, err := s.page.Context(ctx).Eval(`(y) => window.scrollTo(0, y)`, y)
	return err
}

func (s *rodSession) MoveMouse(ctx context.Context, x, y int) error {
	return proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMouseMoved,
		X:    float64(x),
		Y:    float64(y),
	}.Call(s.page.Context(ctx))
}

func (s *rodSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	el, err := s.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return err
	}
	return el.WaitVisible()
}

// Close stops the hijack router, closes the browser, kills the process and
// removes its profile directory.
func (s *rodSession) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if s.router != nil {
		if err := s.router.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop hijack router: %w", err))
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	stopProcess(s.launcher)
	return errors.Join(errs...)
}

// resourceToProto maps block-list names to rod resource types.
var resourceToProto = map[string]proto.NetworkResourceType{
	models.ResourceImage:      proto.NetworkResourceTypeImage,
	models.ResourceStylesheet: proto.NetworkResourceTypeStylesheet,
	models.ResourceFont:       proto.NetworkResourceTypeFont,
	models.ResourceMedia:      proto.NetworkResourceTypeMedia,
	models.ResourceScript:     proto.NetworkResourceTypeScript,
}

// setupHijack installs a request interceptor that fails requests for the
// blocked resource types. It returns nil when there is nothing to block.
func setupHijack(page *rod.Page, blockedTypes []string) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := resourceToProto[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, ok := blocked[ctx.Request.Type()]; ok {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// Run blocks until Stop.
	go router.Run()

	return router
}

// toHeadersMap converts a plain string map to proto.NetworkHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

func toRodCookie(c models.CookieRecord) proto.NetworkSetCookie {
	return proto.NetworkSetCookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
		SameSite: proto.NetworkCookieSameSite(c.SameSite),
		Expires:  proto.TimeSinceEpoch(c.Expires),
	}
}
