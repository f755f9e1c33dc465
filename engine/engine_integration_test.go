//go:build integration

package engine_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/stealthfetch/engine"
	"github.com/use-agent/stealthfetch/models"
)

const probePage = `<!doctype html>
<html><head><title>probe</title></head>
<body>
<div id="out"></div>
<script>
document.getElementById('out').textContent =
  'webdriver=' + navigator.webdriver + ';tz=' + Intl.DateTimeFormat().resolvedOptions().timeZone;
</script>
</body></html>`

func TestEngines_FetchRealPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, probePage)
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := engine.Default(engine.WithLogger(logger))

	for _, kind := range reg.Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			cfg, err := models.FetchConfig{
				Engine:     kind,
				TimezoneID: "Asia/Tokyo",
				Viewport:   &models.Viewport{Width: 1280, Height: 800},
			}.Resolve(nil)
			require.NoError(t, err)
			fp := cfg.Profile()
			fp.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

			eng, err := reg.Lookup(kind)
			require.NoError(t, err)
			sess, err := eng.Open(ctx, cfg, fp)
			require.NoError(t, err)
			defer sess.Close()

			require.NoError(t, sess.Apply(ctx, fp, cfg))
			require.NoError(t, sess.Navigate(ctx, srv.URL, cfg))
			require.NoError(t, sess.WaitVisible(ctx, "#out", 5*time.Second))
			require.NoError(t, sess.ScrollTo(ctx, 200))
			require.NoError(t, sess.MoveMouse(ctx, 100, 100))

			html, err := sess.HTML(ctx)
			require.NoError(t, err)
			assert.Contains(t, html, "webdriver=undefined")
			assert.Contains(t, html, "tz=Asia/Tokyo")

			png, err := sess.Screenshot(ctx)
			require.NoError(t, err)
			assert.NotEmpty(t, png)

			assert.NoError(t, sess.Close())
			assert.NoError(t, sess.Close())
		})
	}
}
