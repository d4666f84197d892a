package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/qim/pkg/errors"
)

const testYAML = `
server:
  addr: ":9090"
ws:
  anonymous_policy: public
  send_queue_size: 8
history:
  max_page_size: 20
  ttl: 5s
log:
  level: debug
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	_, s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", s.Server.Addr)
	assert.Equal(t, 15, s.History.MaxPageSize)
	assert.Equal(t, 30*time.Second, s.History.TTL)
	assert.False(t, s.History.InvalidateOnWrite)
	assert.Equal(t, "deny", s.WS.AnonymousPolicy)
	assert.Equal(t, "drop", s.WS.SlowConsumerPolicy)
	assert.Equal(t, "memory", s.Store.Driver)
	assert.Equal(t, 24*time.Hour, s.Auth.TokenTTL)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	c, s, err := Load(writeTestConfig(t, testYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9090", s.Server.Addr)
	assert.Equal(t, "public", s.WS.AnonymousPolicy)
	assert.Equal(t, 8, s.WS.SendQueueSize)
	assert.Equal(t, 20, s.History.MaxPageSize)
	assert.Equal(t, 5*time.Second, s.History.TTL)
	assert.Equal(t, "debug", c.GetString("log.level"))
	assert.NotEmpty(t, c.ConfigFileUsed())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("QIM_WS_ANONYMOUS_POLICY", "reject")
	t.Setenv("QIM_HISTORY_TTL", "1m")

	_, s, err := Load(writeTestConfig(t, testYAML))
	require.NoError(t, err)
	assert.Equal(t, "reject", s.WS.AnonymousPolicy)
	assert.Equal(t, time.Minute, s.History.TTL)
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigReadFailed) || errors.Is(err, ErrConfigNotFound))
}

func TestLoadOptionalByName(t *testing.T) {
	c := New(WithConfigName("absent"), WithConfigType("yaml"), WithConfigPaths(t.TempDir()), WithOptional(true),
		WithDefaults(map[string]any{"a.b": "x"}))
	require.NoError(t, c.Load())
	assert.Equal(t, "x", c.GetString("a.b"))
	assert.Empty(t, c.ConfigFileUsed())

	strict := New(WithConfigName("absent"), WithConfigType("yaml"), WithConfigPaths(t.TempDir()))
	err := strict.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

func TestLoadSearchesConfigsDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", "config.yaml"), []byte(testYAML), 0o644))
	t.Chdir(dir)

	c, s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", s.Server.Addr)
	assert.Contains(t, c.ConfigFileUsed(), "configs")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"bad anonymous policy", func(s *Settings) { s.WS.AnonymousPolicy = "maybe" }},
		{"bad slow consumer policy", func(s *Settings) { s.WS.SlowConsumerPolicy = "block" }},
		{"zero page size", func(s *Settings) { s.History.MaxPageSize = 0 }},
		{"sql store without dsn", func(s *Settings) { s.Store.Driver = "mysql"; s.Store.DSN = "" }},
		{"empty secret", func(s *Settings) { s.Auth.Secret = "" }},
		{"unknown relay", func(s *Settings) { s.Broker.Relay = "kafka" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, s, err := Load("")
			require.NoError(t, err)
			tt.mutate(s)
			err = s.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfigInvalid))
		})
	}
}

func TestSetTakesPrecedence(t *testing.T) {
	c, _, err := Load("")
	require.NoError(t, err)

	c.Set("ws.anonymous_policy", "public")
	s, err := c.Settings()
	require.NoError(t, err)
	assert.Equal(t, "public", s.WS.AnonymousPolicy)
}

func TestWatchReloads(t *testing.T) {
	path := writeTestConfig(t, testYAML)
	c, _, err := Load(path)
	require.NoError(t, err)
	defer c.Close()

	changed := make(chan *Settings, 4)
	c.Watch(func(s *Settings) { changed <- s })
	assert.True(t, c.IsWatching())

	require.NoError(t, os.WriteFile(path, []byte(
		"ws:\n  anonymous_policy: reject\n  send_queue_size: 8\n"), 0644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-changed:
			if s.WS.AnonymousPolicy == "reject" {
				return
			}
		case <-deadline:
			t.Fatal("config change not observed")
		}
	}
}

func TestWatchReportsInvalidReload(t *testing.T) {
	path := writeTestConfig(t, testYAML)
	c, _, err := Load(path)
	require.NoError(t, err)
	defer c.Close()

	failed := make(chan error, 1)
	applied := make(chan struct{}, 1)
	c.OnError(func(err error) {
		select {
		case failed <- err:
		default:
		}
	})
	c.Watch(func(*Settings) {
		select {
		case applied <- struct{}{}:
		default:
		}
	})

	require.NoError(t, os.WriteFile(path, []byte("ws:\n  anonymous_policy: maybe\n"), 0644))

	select {
	case err := <-failed:
		assert.True(t, errors.Is(err, ErrConfigInvalid))
		assert.Empty(t, applied)
	case <-time.After(5 * time.Second):
		t.Fatal("reload error not reported")
	}
}
