package fingerprint

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"
)

// maxListBytes caps a remote user-agent list.
const maxListBytes = 1 << 20

// chromeH1Spec is a Chrome ClientHello with ALPN forced to http/1.1, since
// net/http cannot speak h2 over a utls connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewChromeClient returns an HTTP client whose TLS handshake looks like
// desktop Chrome. Lists hosted behind bot protection reject Go's default
// fingerprint.
func NewChromeClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("fingerprint: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// LoadUserAgents builds a pool from source, which is a file path or an
// http(s) URL with one agent per line. It never fails: an empty source or
// any read error yields the fallback pair.
func LoadUserAgents(ctx context.Context, source string, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if source == "" {
		return NewPool(nil, logger)
	}

	var (
		r   io.ReadCloser
		err error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		r, err = openRemote(ctx, source)
	} else {
		r, err = os.Open(source)
	}
	if err != nil {
		logger.Warn("user agent source unreadable", "source", source, "error", err)
		return NewPool(nil, logger)
	}
	defer r.Close()

	pool, err := ReadPool(io.LimitReader(r, maxListBytes), logger)
	if err != nil {
		logger.Warn("user agent source unreadable", "source", source, "error", err)
		return NewPool(nil, logger)
	}
	return pool
}

func openRemote(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", FallbackWindowsUA)
	req.Header.Set("Accept", "text/plain,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := NewChromeClient(15 * time.Second).Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
