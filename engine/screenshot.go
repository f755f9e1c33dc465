package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/use-agent/stealthfetch/models"
)

// ScreenshotName builds "<phase>-<engine>-<timestamp>.png" with a
// filesystem-safe ISO-8601 timestamp.
func ScreenshotName(phase string, kind models.EngineKind, t time.Time) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return fmt.Sprintf("%s-%s-%s.png", phase, kind, ts)
}

// SaveScreenshot writes png under dir, creating dir if needed, and returns
// the file path.
func SaveScreenshot(dir, name string, png []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}
