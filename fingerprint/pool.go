// Package fingerprint supplies the randomized browser identity for a fetch:
// user agent, viewport, geolocation and timezone.
package fingerprint

import (
	"bufio"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// Desktop Chrome agents used when no valid user agent could be loaded.
const (
	FallbackWindowsUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/111.0.0.0 Safari/537.36"
	FallbackMacUA     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/111.0.0.0 Safari/537.36"
)

// validUA accepts the characters that appear in real desktop user agents.
var validUA = regexp.MustCompile(`^[a-zA-Z0-9\s.,/\-_:;()]+$`)

// Pool is an immutable, validated list of user-agent strings.
type Pool struct {
	agents   []string
	fallback bool
}

// NewPool validates lines and keeps the ones that pass. Blank lines are
// skipped, invalid ones are dropped silently. When nothing survives the
// fallback pair is used and a warning is logged.
func NewPool(lines []string, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	agents := make([]string, 0, len(lines))
	for _, line := range lines {
		ua := strings.TrimSpace(strings.ReplaceAll(line, "\r", ""))
		if ua == "" || !validUA.MatchString(ua) {
			continue
		}
		agents = append(agents, ua)
	}
	if len(agents) == 0 {
		logger.Warn("no valid user agents loaded, using fallback pair",
			"candidates", len(lines),
		)
		return &Pool{agents: []string{FallbackWindowsUA, FallbackMacUA}, fallback: true}
	}
	logger.Debug("user agent pool loaded", "valid", len(agents), "candidates", len(lines))
	return &Pool{agents: agents}
}

// ReadPool reads newline-separated agents from r.
func ReadPool(r io.Reader, logger *slog.Logger) (*Pool, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewPool(lines, logger), nil
}

// Agents returns a copy of the pool contents.
func (p *Pool) Agents() []string {
	out := make([]string, len(p.agents))
	copy(out, p.agents)
	return out
}

// Len returns the number of agents in the pool.
func (p *Pool) Len() int { return len(p.agents) }

// IsFallback reports whether the pool is the built-in fallback pair.
func (p *Pool) IsFallback() bool { return p.fallback }
