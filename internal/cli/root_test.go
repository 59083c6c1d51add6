package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "namehist", cmd.Use)
	assert.Contains(t, cmd.Long, "name histories")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"serve"},
		{"resolve"},
		{"history"},
		{"import"},
		{"config"},
		{"config", "init"},
		{"config", "show"},
		{"test"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	require.NotNil(t, serveCmd.Flags().Lookup("addr"))

	historyCmd, _, err := cmd.Find([]string{"history"})
	require.NoError(t, err)
	statsFlag := historyCmd.Flags().Lookup("stats")
	require.NotNil(t, statsFlag)
	assert.Equal(t, "false", statsFlag.DefValue)

	importCmd, _, err := cmd.Find([]string{"import"})
	require.NoError(t, err)
	sourceFlag := importCmd.Flags().Lookup("source")
	require.NotNil(t, sourceFlag)
	assert.Equal(t, "2", sourceFlag.DefValue)

	initCmd, _, err := cmd.Find([]string{"config", "init"})
	require.NoError(t, err)
	forceFlag := initCmd.Flags().Lookup("force")
	require.NotNil(t, forceFlag)
	assert.Equal(t, "f", forceFlag.Shorthand)
}

func TestExecute_InvalidFormat(t *testing.T) {
	_, stderr, code := runCLI(t, "--format", "xml", "history", "--stats")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, `invalid format "xml"`)
	assert.Contains(t, stderr, "Error [command]")
}

func TestExecute_UnknownFlag(t *testing.T) {
	_, stderr, code := runCLI(t, "resolve", "--nope", aliceID)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "unknown flag")
}

func TestExecute_WrongArgCount(t *testing.T) {
	_, stderr, code := runCLI(t, "resolve")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "invalid arguments")
}

func TestExecute_JSONErrors(t *testing.T) {
	_, stderr, code := runCLI(t, "--format", "json", "resolve", "not-a-uuid")
	assert.Equal(t, ExitCommandError, code)

	resp := decodeResponse(t, stderr, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "command", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "invalid identifier")
}
