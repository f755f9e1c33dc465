package engine

import (
	"fmt"
	"net/url"
	"strings"
)

// EvasionScript runs before any page script on every new document. It hides
// the automation flag and patches the navigator and WebGL surfaces that
// fingerprinting scripts probe first.
const EvasionScript = `(() => {
  Object.defineProperty(navigator, 'webdriver', { get: () => undefined });

  if (!('permissions' in navigator)) {
    Object.defineProperty(navigator, 'permissions', {
      configurable: true,
      value: { query: () => Promise.resolve({ state: 'granted' }) },
    });
  } else if (navigator.permissions && navigator.permissions.query) {
    const originalQuery = navigator.permissions.query.bind(navigator.permissions);
    navigator.permissions.query = (parameters) =>
      parameters.name === 'notifications'
        ? Promise.resolve({ state: Notification.permission })
        : originalQuery(parameters);
  }

  Object.defineProperty(navigator, 'plugins', {
    get: () => {
      const plugins = [];
      for (let i = 0; i < 5; i++) {
        plugins.push({
          name: 'Chrome PDF Plugin',
          filename: 'internal-pdf-viewer',
          description: 'Portable Document Format',
          length: 1,
        });
      }
      return plugins;
    },
  });

  Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });

  const patchWebGL = (proto) => {
    if (!proto) return;
    const getParameter = proto.getParameter;
    proto.getParameter = function (parameter) {
      if (parameter === 37445) return 'Intel Inc.';
      if (parameter === 37446) return 'Intel Iris OpenGL Engine';
      return getParameter.call(this, parameter);
    };
  };
  patchWebGL(window.WebGLRenderingContext && WebGLRenderingContext.prototype);
  patchWebGL(window.WebGL2RenderingContext && WebGL2RenderingContext.prototype);

  if (!window.chrome) {
    window.chrome = { runtime: {} };
  }
})();`

// evasionScriptFor returns EvasionScript plus a navigator.platform patch
// matching ua, so page scripts see the same platform as the UA override.
func evasionScriptFor(ua string) string {
	platform := platformFor(ua)
	if platform == "" {
		return EvasionScript
	}
	return EvasionScript + fmt.Sprintf(`
(() => {
  Object.defineProperty(navigator, 'platform', { get: () => %q });
})();`, platform)
}

// platformFor returns the navigator.platform value consistent with ua.
func platformFor(ua string) string {
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "windows"):
		return "Win32"
	case strings.Contains(lower, "macintosh"), strings.Contains(lower, "mac os"):
		return "MacIntel"
	case strings.Contains(lower, "linux"):
		return "Linux x86_64"
	default:
		return ""
	}
}

// acceptLanguage turns a locale into an Accept-Language header value.
func acceptLanguage(locale string) string {
	if locale == "" {
		return ""
	}
	base, _, found := strings.Cut(locale, "-")
	if !found || base == locale {
		return locale
	}
	return locale + "," + base + ";q=0.9"
}

// proxyConfig is an upstream proxy split into the parts Chrome accepts on
// its command line and the credentials it has to be given over CDP.
type proxyConfig struct {
	Server   string
	Username string
	Password string
}

func (p proxyConfig) hasAuth() bool { return p.Username != "" }

// parseProxy splits raw into server and credentials. An empty raw yields a
// zero config.
func parseProxy(raw string) (proxyConfig, error) {
	if raw == "" {
		return proxyConfig{}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return proxyConfig{}, fmt.Errorf("parse proxy: %w", err)
	}
	if u.Host == "" {
		return proxyConfig{}, fmt.Errorf("parse proxy: missing host in %q", raw)
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "http"
	}
	cfg := proxyConfig{Server: scheme + "://" + u.Host}
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	return cfg, nil
}
