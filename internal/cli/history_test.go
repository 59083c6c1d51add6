package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_AfterResolve(t *testing.T) {
	upstream := newProfileServer(t)
	upstream.set(bobID, "Bob")
	cfgPath := writeConfig(t, upstream.URL)

	_, stderr, code := runCLI(t, "--config", cfgPath, "resolve", bobID)
	require.Equal(t, ExitSuccess, code, stderr)

	// history never contacts the upstream.
	upstream.Close()

	stdout, stderr, code := runCLI(t, "--config", cfgPath, "--format", "json", "history", bobID)
	require.Equal(t, ExitSuccess, code, stderr)

	var result HistoryResult
	decodeResponse(t, stdout, &result)
	require.Len(t, result.Names, 1)
	assert.Equal(t, "Bob", result.Names[0].Name)
	require.NotNil(t, result.LastChecked)
	require.NotNil(t, result.LastCheckChanged)
	assert.True(t, *result.LastCheckChanged)

	stdout, stderr, code = runCLI(t, "--config", cfgPath, "history", "--stats")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Equal(t, "1 identifiers with recorded history\n", stdout)
}

func TestHistory_Unknown(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")

	stdout, stderr, code := runCLI(t, "--config", cfgPath, "history", aliceID)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "no names recorded for "+aliceID)
}

func TestHistory_ArgumentRules(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")

	_, stderr, code := runCLI(t, "--config", cfgPath, "history")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "exactly one of")

	_, _, code = runCLI(t, "--config", cfgPath, "history", "--stats", aliceID)
	assert.Equal(t, ExitCommandError, code)

	_, _, code = runCLI(t, "--config", cfgPath, "history", aliceID, bobID)
	assert.Equal(t, ExitCommandError, code)
}
