// Package freshness decides whether a cached name history may be served
// without re-checking the external profile source.
package freshness

import (
	"time"

	"github.com/roach88/namehist/internal/history"
)

// Default TTLs. These are policy, not mechanism: a just-observed change is
// trusted for much longer than a steady state. Both are configurable.
const (
	DefaultUnchangedTTL = 12 * time.Hour
	DefaultChangedTTL   = 30 * 24 * time.Hour
)

// Policy selects a TTL by the outcome of the last reconciliation.
type Policy struct {
	// UnchangedTTL applies when the last check found the same name.
	UnchangedTTL time.Duration

	// ChangedTTL applies when the last check discovered a change.
	ChangedTTL time.Duration
}

// DefaultPolicy returns the Policy built from the default TTLs.
func DefaultPolicy() Policy {
	return Policy{UnchangedTTL: DefaultUnchangedTTL, ChangedTTL: DefaultChangedTTL}
}

// IsFresh reports whether data last checked at lastChecked is still current at now.
// A now earlier than lastChecked is never fresh.
func (p Policy) IsFresh(now, lastChecked time.Time, lastCheckChanged bool) bool {
	if now.Before(lastChecked) {
		return false
	}
	elapsed := now.Sub(lastChecked)
	if lastCheckChanged {
		return elapsed < p.ChangedTTL
	}
	return elapsed < p.UnchangedTTL
}

// Check applies IsFresh to stored metadata. Missing metadata is never fresh.
func (p Policy) Check(now time.Time, meta *history.Metadata) bool {
	if meta == nil {
		return false
	}
	return p.IsFresh(now, meta.LastChecked, meta.LastCheckChanged)
}

// TTL returns the window selected by lastCheckChanged.
func (p Policy) TTL(lastCheckChanged bool) time.Duration {
	if lastCheckChanged {
		return p.ChangedTTL
	}
	return p.UnchangedTTL
}
