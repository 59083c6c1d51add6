package harness

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/namehist/internal/history"
)

// TraceSnapshot is the golden-file form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// Snapshot renders the trace of result as indented JSON with a trailing newline.
// Struct field order and the manual clock make the output byte-stable; strings
// are NFC-normalized so equivalent Unicode spellings snapshot identically.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make([]TraceEvent, len(result.Trace))
	for i, ev := range result.Trace {
		trace[i] = normalizeEvent(ev)
	}

	data, err := json.MarshalIndent(TraceSnapshot{ScenarioName: norm.NFC.String(name), Trace: trace}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal trace: %w", err)
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}

func normalizeEvent(ev TraceEvent) TraceEvent {
	ev.Account = norm.NFC.String(ev.Account)
	ev.Name = norm.NFC.String(ev.Name)
	if ev.Names != nil {
		names := make([]history.Element, len(ev.Names))
		for i, el := range ev.Names {
			el.Name = norm.NFC.String(el.Name)
			names[i] = el
		}
		ev.Names = names
	}
	return ev
}
