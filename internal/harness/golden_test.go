package harness

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/namehist/internal/history"
)

func TestScenarioGolden(t *testing.T) {
	files, err := FindScenarioFiles("testdata/scenarios", "")
	require.NoError(t, err)

	for _, path := range files {
		s, err := LoadScenario(path)
		require.NoError(t, err)

		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			require.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshot_NormalizesUnicode(t *testing.T) {
	composed := NewResult()
	composed.addEvent(TraceEvent{Type: EventUpstream, Account: "u1", Name: "Ren\u00e9"})
	composed.addEvent(TraceEvent{Type: EventResolve, Account: "u1", Fetches: 1,
		Names: []history.Element{history.NewInitialElement("Ren\u00e9")}})

	decomposed := NewResult()
	decomposed.addEvent(TraceEvent{Type: EventUpstream, Account: "u1", Name: "Rene\u0301"})
	decomposed.addEvent(TraceEvent{Type: EventResolve, Account: "u1", Fetches: 1,
		Names: []history.Element{history.NewInitialElement("Rene\u0301")}})

	a, err := Snapshot("unicode", composed)
	require.NoError(t, err)
	b, err := Snapshot("unicode", decomposed)
	require.NoError(t, err)
	require.Equal(t, string(a), string(b))

	// The result itself is left untouched.
	require.Equal(t, "Rene\u0301", decomposed.Trace[1].Names[0].Name)
}
