// Package session holds per-user console state: the cached service-account
// key and the bounded result histories. Nothing in this package touches
// durable storage; a session's state lives exactly as long as the session.
package session

import (
	"sync"
	"time"

	"github.com/urivet/urivet/internal/credentials"
	"github.com/urivet/urivet/internal/risk"
)

// LookupResult is one entry of the lookup history.
type LookupResult struct {
	URI         string         `json:"uri"`
	ScannedAt   time.Time      `json:"scanned_at"`
	ThreatFound bool           `json:"threat_found"`
	ThreatInfo  map[string]any `json:"threat_info"`
	RawJSON     string         `json:"raw_json"`
}

// State is the per-session value object passed into each orchestrator call.
// Callers must hold the state lock across an orchestrator invocation; the
// fields themselves are not individually synchronized.
type State struct {
	mu sync.Mutex

	// Key is the session-cached service-account key, nil when none is cached.
	Key *credentials.Key

	// Lookups and Scans are independent buffers; they never interact.
	Lookups History[LookupResult]
	Scans   History[risk.Evaluation]

	// LastAction and LastResponse record the most recent submit/check-status
	// call so the console page can re-display its raw API response.
	LastAction   string
	LastResponse string
}

// Lock serializes access to the state for one request. The session host
// guarantees no two requests mutate the same session concurrently.
func (s *State) Lock() { s.mu.Lock() }

// Unlock releases the state lock.
func (s *State) Unlock() { s.mu.Unlock() }

// ClearKey drops the cached service-account key. Returns true when a key was
// actually cached.
func (s *State) ClearKey() bool {
	had := s.Key != nil
	s.Key = nil
	return had
}
