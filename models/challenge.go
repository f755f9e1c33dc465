package models

import "fmt"

// ChallengeState is the outcome of an interstitial challenge check.
type ChallengeState int

const (
	ChallengeNotPresent ChallengeState = iota
	ChallengePresent
	ChallengeCleared
	ChallengeTimedOut
)

func (s ChallengeState) String() string {
	switch s {
	case ChallengeNotPresent:
		return "not_present"
	case ChallengePresent:
		return "present"
	case ChallengeCleared:
		return "cleared"
	case ChallengeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// MarshalText lets the state appear by name in JSON output.
func (s ChallengeState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *ChallengeState) UnmarshalText(text []byte) error {
	for _, st := range []ChallengeState{ChallengeNotPresent, ChallengePresent, ChallengeCleared, ChallengeTimedOut} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown challenge state %q", text)
}
