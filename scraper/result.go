package scraper

import "github.com/use-agent/stealthfetch/models"

// Stage is a pipeline state. Every fetch that opened a session ends in
// StageClosed.
type Stage string

const (
	StageInit           Stage = "init"
	StageConfiguring    Stage = "configuring"
	StageNavigating     Stage = "navigating"
	StageChallengeCheck Stage = "challenge_check"
	StageBehaviorSim    Stage = "behavior_sim"
	StageSelectorWait   Stage = "selector_wait"
	StageExtracting     Stage = "extracting"
	StageClosed         Stage = "closed"
)

// Result is the outcome of one fetch. On failure the partial result is
// returned alongside the error.
type Result struct {
	URL  string
	HTML string

	Engine    models.EngineKind
	Profile   models.FingerprintProfile
	Challenge models.ChallengeState

	// SoftFailures lists degradations that did not abort the fetch.
	SoftFailures []string

	// Stage is the last stage reached. It is StageClosed once a session
	// was opened, whatever the outcome.
	Stage Stage

	// SessionOpened reports whether a browser session was opened.
	SessionOpened bool

	Timing models.TimingInfo
}

// Response converts the result into its API form.
func (r *Result) Response() *models.FetchResponse {
	fp := r.Profile
	return &models.FetchResponse{
		Success:      true,
		URL:          r.URL,
		HTML:         r.HTML,
		Engine:       r.Engine,
		Challenge:    r.Challenge,
		SoftFailures: r.SoftFailures,
		Fingerprint:  &fp,
		Timing:       r.Timing,
	}
}

// ErrorResponse builds a failed API response for url from err and an
// optional partial result.
func ErrorResponse(url string, res *Result, err error) *models.FetchResponse {
	resp := &models.FetchResponse{
		URL:   url,
		Error: models.AsFetchError(err).ToDetail(),
	}
	if res != nil {
		resp.Engine = res.Engine
		resp.Challenge = res.Challenge
		resp.SoftFailures = res.SoftFailures
		resp.Timing = res.Timing
	}
	return resp
}
