package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	aliceID = "4566e69f-c907-48ee-8d71-d7ba5aa00d20"
	bobID   = "069a79f4-44e9-4726-a5be-fca90e38aaf5"
)

// profileServer is a fake profile source keyed by dashless identifier.
type profileServer struct {
	*httptest.Server
	mu    sync.Mutex
	names map[string]string
}

func newProfileServer(t *testing.T) *profileServer {
	t.Helper()
	ps := &profileServer{names: make(map[string]string)}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/")
		ps.mu.Lock()
		name, ok := ps.names[key]
		ps.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": key, "name": name})
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *profileServer) set(id, name string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.names[strings.ReplaceAll(id, "-", "")] = name
}

// writeConfig writes a config file pointing at baseURL and a temp database.
func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "server:\n" +
		"  address: 127.0.0.1:0\n" +
		"  shutdown_timeout: 2s\n" +
		"client:\n" +
		"  base_url: " + baseURL + "/\n" +
		"  timeout: 2s\n" +
		"database:\n" +
		"  path: " + filepath.Join(dir, "names.db") + "\n" +
		"log:\n" +
		"  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// runCLI executes the CLI and returns stdout, stderr and the exit code.
func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

// decodeResponse parses a --format json response envelope.
func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.CLIResponse
}
