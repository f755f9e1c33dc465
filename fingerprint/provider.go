package fingerprint

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/use-agent/stealthfetch/models"
)

// Location is a city the browser claims to be in.
type Location struct {
	Name        string
	Geolocation models.Geolocation
	TimezoneID  string
}

// Viewports are common desktop resolutions.
var Viewports = []models.Viewport{
	{Width: 1920, Height: 1080},
	{Width: 1680, Height: 1050},
	{Width: 1440, Height: 900},
	{Width: 1366, Height: 768},
	{Width: 2560, Height: 1440},
}

// Locations are major cities with their IANA zones.
var Locations = []Location{
	{"New York", models.Geolocation{Latitude: 40.7128, Longitude: -74.0060}, "America/New_York"},
	{"Los Angeles", models.Geolocation{Latitude: 34.0522, Longitude: -118.2437}, "America/Los_Angeles"},
	{"London", models.Geolocation{Latitude: 51.5074, Longitude: -0.1278}, "Europe/London"},
	{"Paris", models.Geolocation{Latitude: 48.8566, Longitude: 2.3522}, "Europe/Paris"},
	{"Tokyo", models.Geolocation{Latitude: 35.6762, Longitude: 139.6503}, "Asia/Tokyo"},
}

// Provider picks fingerprint values uniformly at random from its pools.
// It is safe for concurrent use.
type Provider struct {
	agents    *Pool
	viewports []models.Viewport
	locations []Location

	mu   sync.Mutex
	intn func(n int) int
}

var _ models.FingerprintPicker = (*Provider)(nil)

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithRand replaces the random source. intn must return a value in [0, n).
func WithRand(intn func(n int) int) ProviderOption {
	return func(p *Provider) {
		p.intn = intn
	}
}

// WithViewports replaces the viewport pool.
func WithViewports(v []models.Viewport) ProviderOption {
	return func(p *Provider) {
		if len(v) > 0 {
			p.viewports = v
		}
	}
}

// WithLocations replaces the city pool.
func WithLocations(l []Location) ProviderOption {
	return func(p *Provider) {
		if len(l) > 0 {
			p.locations = l
		}
	}
}

// NewProvider creates a Provider over the given user-agent pool. A nil pool
// means the fallback pair.
func NewProvider(agents *Pool, opts ...ProviderOption) *Provider {
	if agents == nil || agents.Len() == 0 {
		agents = &Pool{agents: []string{FallbackWindowsUA, FallbackMacUA}, fallback: true}
	}
	p := &Provider{
		agents:    agents,
		viewports: Viewports,
		locations: Locations,
		intn:      rand.IntN,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) pick(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intn(n)
}

// PickUserAgent resolves a selector. An empty selector picks any agent, a
// "~" selector picks among agents matching every term, anything else is
// returned verbatim. A "~" selector with no match picks from the whole pool.
func (p *Provider) PickUserAgent(selector string) string {
	selector = strings.TrimSpace(selector)
	if selector != "" && !strings.HasPrefix(selector, "~") {
		return selector
	}
	candidates := p.agents.agents
	if selector != "" {
		if matched := filterAgents(candidates, parseSelector(selector)); len(matched) > 0 {
			candidates = matched
		}
	}
	return candidates[p.pick(len(candidates))]
}

// PickViewport returns a random viewport.
func (p *Provider) PickViewport() models.Viewport {
	return p.viewports[p.pick(len(p.viewports))]
}

// PickLocation returns a random city coordinate and its zone.
func (p *Provider) PickLocation() (models.Geolocation, string) {
	l := p.locations[p.pick(len(p.locations))]
	return l.Geolocation, l.TimezoneID
}

// PickFingerprint returns a fully random profile.
func (p *Provider) PickFingerprint() models.FingerprintProfile {
	geo, tz := p.PickLocation()
	return models.FingerprintProfile{
		UserAgent:   p.PickUserAgent(""),
		Viewport:    p.PickViewport(),
		Geolocation: geo,
		TimezoneID:  tz,
		Locale:      models.DefaultLocale,
	}
}

// selectorTerm is one "word" or "word op version" clause of a selector.
type selectorTerm struct {
	word    string
	op      string
	version int
}

var termPattern = regexp.MustCompile(`([A-Za-z]+)(?:\s*(>=|<=|>|<|=)\s*(\d+))?`)

// parseSelector reads "~ chrome >= 105 && windows >= 10" style selectors.
func parseSelector(selector string) []selectorTerm {
	body := strings.TrimPrefix(selector, "~")
	var terms []selectorTerm
	for _, m := range termPattern.FindAllStringSubmatch(body, -1) {
		t := selectorTerm{word: strings.ToLower(m[1])}
		if m[2] != "" {
			v, err := strconv.Atoi(m[3])
			if err == nil {
				t.op, t.version = m[2], v
			}
		}
		terms = append(terms, t)
	}
	return terms
}

var firstNumber = regexp.MustCompile(`\d+`)

func (t selectorTerm) matches(ua string) bool {
	lower := strings.ToLower(ua)
	idx := strings.Index(lower, t.word)
	if idx < 0 {
		return false
	}
	if t.op == "" {
		return true
	}
	// The version is the first number within a short window after the word,
	// e.g. "Chrome/111.0" or "Windows NT 10.0".
	rest := lower[idx+len(t.word):]
	if len(rest) > 12 {
		rest = rest[:12]
	}
	num := firstNumber.FindString(rest)
	if num == "" {
		return false
	}
	v, _ := strconv.Atoi(num)
	switch t.op {
	case ">=":
		return v >= t.version
	case "<=":
		return v <= t.version
	case ">":
		return v > t.version
	case "<":
		return v < t.version
	default:
		return v == t.version
	}
}

func filterAgents(agents []string, terms []selectorTerm) []string {
	if len(terms) == 0 {
		return nil
	}
	var out []string
	for _, ua := range agents {
		ok := true
		for _, t := range terms {
			if !t.matches(ua) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, ua)
		}
	}
	return out
}
