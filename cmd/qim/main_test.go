package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&flags{})
	cmd.Writer = &out
	cmd.ErrWriter = &out
	err := cmd.Run(context.Background(), append([]string{"qim"}, args...))
	return out.String(), err
}

func TestConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0o644))

	out, err := run(t, "-c", path, "--log-level", "debug", "config")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, ":9090", got["server"].(map[string]any)["addr"])
	assert.Equal(t, "debug", got["log"].(map[string]any)["level"])
}

func TestUserAndTokenCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := "store:\n  driver: sqlite\n  dsn: " + filepath.Join(dir, "qim.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	out, err := run(t, "-c", path, "user", "create", "--username", "alice", "--first-name", "Alice")
	if err != nil && strings.Contains(err.Error(), "open store") {
		t.Skipf("sqlite unavailable: %v", err)
	}
	require.NoError(t, err)
	assert.Contains(t, out, "created user alice")

	out, err = run(t, "-c", path, "token", "--username", "alice")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "."), 3)

	_, err = run(t, "-c", path, "token", "--username", "nobody")
	assert.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ws:\n  anonymous_policy: maybe\n"), 0o644))

	_, err := run(t, "-c", path, "config")
	assert.Error(t, err)
}
