// Package clock provides the wall-clock source used for freshness decisions
// and metadata timestamps.
package clock

import "time"

// Clock reports the current wall-clock time.
//
// Thread-safety: implementations must be safe for concurrent use; the
// resolver reads the clock from every in-flight lookup.
type Clock interface {
	Now() time.Time
}

// System reads the host clock.
type System struct{}

// Now returns time.Now in UTC.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Func adapts a plain function to Clock.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time {
	return f()
}
