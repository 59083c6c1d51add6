package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/roach88/namehist/internal/history"
)

// timeLayout renders element and check times in text output.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// HistoryResult is the output of the resolve and history commands.
type HistoryResult struct {
	ID    string            `json:"id"`
	Names []history.Element `json:"names"`

	// Set by the history command only.
	LastChecked      *int64 `json:"lastChecked,omitempty"` // ms since epoch
	LastCheckChanged *bool  `json:"lastCheckChanged,omitempty"`
}

func newHistoryResult(id fmt.Stringer, names []history.Element, meta *history.Metadata) HistoryResult {
	r := HistoryResult{ID: id.String(), Names: names}
	if meta != nil {
		ms := meta.LastChecked.UnixMilli()
		changed := meta.LastCheckChanged
		r.LastChecked = &ms
		r.LastCheckChanged = &changed
	}
	return r
}

// RenderText prints one name per line with the time it became current.
func (r HistoryResult) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "NAME\tCHANGED TO AT\n")
	for _, el := range r.Names {
		when := "-"
		if el.ChangedAt != nil {
			when = el.ChangedAt.UTC().Format(timeLayout)
		}
		fmt.Fprintf(tw, "%s\t%s\n", el.Name, when)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Names) == 0 {
		fmt.Fprintf(w, "no names recorded for %s\n", r.ID)
	}
	if r.LastChecked != nil {
		fmt.Fprintf(w, "last checked %s (changed: %t)\n",
			time.UnixMilli(*r.LastChecked).UTC().Format(timeLayout), *r.LastCheckChanged)
	}
	return nil
}

// StatsResult is the output of history --stats.
type StatsResult struct {
	Identifiers int64 `json:"identifiers"`
}

func (r StatsResult) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d identifiers with recorded history\n", r.Identifiers)
	return err
}

// ImportResult is the output of the import command.
type ImportResult struct {
	Files       int `json:"files"`
	Identifiers int `json:"identifiers"`
	Seeded      int `json:"seeded"`
	Skipped     int `json:"skipped"`
}

func (r ImportResult) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Imported %d identifiers from %d files: %d seeded, %d skipped (history already present)\n",
		r.Identifiers, r.Files, r.Seeded, r.Skipped)
	return err
}
