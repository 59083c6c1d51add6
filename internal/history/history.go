// Package history defines the name-history domain types shared by the store,
// the resolver, and the service layer.
//
// An identifier's history is an ordered sequence of Elements. Ordering is
// ascending by ChangedAt with the first-known name (nil ChangedAt) first.
// Consecutive elements never repeat a name, and at most one element has a
// nil ChangedAt.
package history

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source is the provenance tag recorded with every stored element.
// The store keeps it for audit and never interprets it.
type Source int

const (
	// SourceUnknown is the column default for rows written without a tag.
	SourceUnknown Source = 0

	// SourceProfile marks elements appended by live reconciliation.
	SourceProfile Source = 1

	// SourceImport is the default tag for bulk-imported histories.
	SourceImport Source = 2
)

// ParseID parses an account identifier in hyphenated or 32-hex-digit form.
func ParseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid identifier %q: %w", s, err)
	}
	return id, nil
}

// Element is one entry of an identifier's name history.
type Element struct {
	Name string

	// ChangedAt is the instant Name became current.
	// Nil marks the first known name, recorded without a transition time.
	ChangedAt *time.Time
}

// NewElement returns an element that became current at changedAt.
func NewElement(name string, changedAt time.Time) Element {
	t := changedAt
	return Element{Name: name, ChangedAt: &t}
}

// NewInitialElement returns a first-known-name element with no transition time.
func NewInitialElement(name string) Element {
	return Element{Name: name}
}

// IsInitial reports whether e is a first-known-name element.
func (e Element) IsInitial() bool {
	return e.ChangedAt == nil
}

// wireElement is the JSON shape: changedToAt is milliseconds since epoch and
// is omitted, never null, when absent.
type wireElement struct {
	Name        string `json:"name"`
	ChangedToAt *int64 `json:"changedToAt,omitempty"`
}

// MarshalJSON renders {"name": ..., "changedToAt": ms}.
func (e Element) MarshalJSON() ([]byte, error) {
	w := wireElement{Name: e.Name}
	if e.ChangedAt != nil {
		ms := e.ChangedAt.UnixMilli()
		w.ChangedToAt = &ms
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts the shape produced by MarshalJSON.
func (e *Element) UnmarshalJSON(data []byte) error {
	var w wireElement
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.Name = w.Name
	e.ChangedAt = nil
	if w.ChangedToAt != nil {
		t := time.UnixMilli(*w.ChangedToAt).UTC()
		e.ChangedAt = &t
	}
	return nil
}

// Metadata records the last reconciliation of one identifier against the
// external source. There is at most one per identifier.
type Metadata struct {
	LastChecked      time.Time
	LastCheckChanged bool
}

// Last returns the most recent element of h and false when h is empty.
func Last(h []Element) (Element, bool) {
	if len(h) == 0 {
		return Element{}, false
	}
	return h[len(h)-1], true
}

// Clone returns a copy of h that shares no backing array with it.
// A nil or empty input yields an empty, non-nil slice.
func Clone(h []Element) []Element {
	out := make([]Element, len(h))
	copy(out, h)
	return out
}
