package harness

import "github.com/roach88/namehist/internal/history"

// Trace event types, one per step kind.
const (
	EventAdvance  = "advance"
	EventUpstream = "upstream"
	EventResolve  = "resolve"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq  int    `json:"seq"`
	Type string `json:"type"`

	// At is the clock reading after the step, ms since epoch.
	At int64 `json:"at"`

	Account string `json:"account,omitempty"`

	// Name or Fail is what an upstream step configured.
	Name   string `json:"name,omitempty"`
	Fail   string `json:"fail,omitempty"`
	Status int    `json:"status,omitempty"`

	// Resolve outcome: profile source calls made, returned history or the
	// failure kind.
	Fetches int               `json:"fetches,omitempty"`
	Names   []history.Element `json:"names,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addEvent appends ev with the next sequence number.
func (r *Result) addEvent(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
