package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadResolvesFullConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server":  {"url": "ws://chat.test/ws", "userId": 42},
		"backoff": {"baseMs": 500, "maxMs": 30000, "jitter": 0.2},
		"pending": {"maxRetries": 5, "sweepIntervalMs": 30000, "expireAfterMs": 120000},
		"session": {"settleDelayMs": 100, "resumeDelayMs": 250, "pingIntervalMs": 15000},
		"archive": {"dsn": "host=localhost dbname=chat"}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://chat.test/ws", cfg.URL)
	assert.Equal(t, int64(42), cfg.UserID)
	assert.Equal(t, 500*time.Millisecond, cfg.Backoff.Base)
	assert.Equal(t, 30*time.Second, cfg.Backoff.Max)
	assert.Equal(t, 0.2, cfg.Backoff.Jitter)
	assert.Equal(t, uint(5), cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 2*time.Minute, cfg.ExpireAfter)
	assert.Equal(t, 100*time.Millisecond, cfg.SettleDelay)
	assert.Equal(t, 250*time.Millisecond, cfg.ResumeDelay)
	assert.Equal(t, 15*time.Second, cfg.PingInterval)
	assert.Equal(t, "host=localhost dbname=chat", cfg.ArchiveDSN)
}

func TestResolveFillsBackoffDefaults(t *testing.T) {
	cfg, err := Resolve(FileConfig{
		Server: ServerConfig{URL: "ws://chat.test/ws", UserID: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Backoff.Base)
	assert.Equal(t, 60*time.Second, cfg.Backoff.Max)
	assert.Equal(t, 0.3, cfg.Backoff.Jitter)
}

func TestResolveRejectsInvalidConfig(t *testing.T) {
	for name, cfg := range map[string]FileConfig{
		"missing url": {
			Server: ServerConfig{UserID: 1},
		},
		"missing user": {
			Server: ServerConfig{URL: "ws://chat.test/ws"},
		},
		"jitter above one": {
			Server:  ServerConfig{URL: "ws://chat.test/ws", UserID: 1},
			Backoff: BackoffConfig{Jitter: 1.5},
		},
		"base above max": {
			Server:  ServerConfig{URL: "ws://chat.test/ws", UserID: 1},
			Backoff: BackoffConfig{BaseMs: 5000, MaxMs: 1000},
		},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Resolve(cfg)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
