package models

// FetchAPIRequest is the payload for POST /api/v1/fetch.
type FetchAPIRequest struct {
	FetchRequest

	// MaxAge serves a cached response younger than this many milliseconds.
	// 0 disables the cache for this request.
	MaxAge int `json:"maxAge,omitempty" validate:"min=0"`
}

// FetchResponse is the response for POST /api/v1/fetch.
type FetchResponse struct {
	// Success indicates whether the fetch produced HTML.
	Success bool `json:"success"`

	URL string `json:"url"`

	// HTML is the outer HTML of the document element after rendering.
	HTML string `json:"html,omitempty"`

	// Engine is the backend that produced the result.
	Engine EngineKind `json:"engine,omitempty"`

	// Challenge reports what the challenge waiter observed.
	Challenge ChallengeState `json:"challenge"`

	// SoftFailures lists non-fatal problems encountered along the way
	// (challenge timeout, selector miss, behavior error).
	SoftFailures []string `json:"softFailures,omitempty"`

	Fingerprint *FingerprintProfile `json:"fingerprint,omitempty"`

	Timing TimingInfo `json:"timing"`

	// CacheStatus is "hit", "miss", or empty when caching was not requested.
	CacheStatus string `json:"cacheStatus,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	TotalMs      int64 `json:"totalMs"`
	NavigationMs int64 `json:"navigationMs"`
	ChallengeMs  int64 `json:"challengeMs"`
	BehaviorMs   int64 `json:"behaviorMs"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status       string       `json:"status"` // "healthy" or "degraded"
	Uptime       string       `json:"uptime"`
	SessionStats SessionStats `json:"sessionStats"`
	Engines      []EngineKind `json:"engines"`
	Version      string       `json:"version"`
}

// SessionStats reports browser session usage.
type SessionStats struct {
	MaxSessions    int   `json:"maxSessions"`
	ActiveSessions int   `json:"activeSessions"`
	TotalFetches   int64 `json:"totalFetches"`
}
