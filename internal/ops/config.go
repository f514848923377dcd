package ops

import (
	"encoding/json"
	"os"
	"time"

	"github.com/yanun0323/errors"

	"main/pkg/backoff"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Server  ServerConfig  `json:"server"`
	Backoff BackoffConfig `json:"backoff"`
	Pending PendingConfig `json:"pending"`
	Session SessionConfig `json:"session"`
	Archive ArchiveConfig `json:"archive"`
}

// ServerConfig locates the chat server and identifies the local user.
type ServerConfig struct {
	URL    string `json:"url"`
	UserID int64  `json:"userId"`
}

// BackoffConfig tunes the reconnect/retry delay curve.
type BackoffConfig struct {
	BaseMs int64   `json:"baseMs"`
	MaxMs  int64   `json:"maxMs"`
	Jitter float64 `json:"jitter"`
}

// PendingConfig tunes the pending message store.
type PendingConfig struct {
	MaxRetries      uint  `json:"maxRetries"`
	SweepIntervalMs int64 `json:"sweepIntervalMs"`
	ExpireAfterMs   int64 `json:"expireAfterMs"`
}

// SessionConfig tunes session timing.
type SessionConfig struct {
	SettleDelayMs  int64 `json:"settleDelayMs"`
	ResumeDelayMs  int64 `json:"resumeDelayMs"`
	PingIntervalMs int64 `json:"pingIntervalMs"`
}

// ArchiveConfig points the devserver at its message store.
type ArchiveConfig struct {
	DSN string `json:"dsn"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	URL    string
	UserID int64

	Backoff backoff.Backoff

	MaxRetries    uint
	SweepInterval time.Duration
	ExpireAfter   time.Duration

	SettleDelay  time.Duration
	ResumeDelay  time.Duration
	PingInterval time.Duration

	ArchiveDSN string
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "parse config")
	}
	return Resolve(cfg)
}

// Resolve validates a FileConfig and fills defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Server.URL == "" {
		return Loaded{}, errors.New("config: server.url is required")
	}
	if cfg.Server.UserID <= 0 {
		return Loaded{}, errors.New("config: server.userId is required")
	}
	if cfg.Backoff.Jitter < 0 || cfg.Backoff.Jitter > 1 {
		return Loaded{}, errors.New("config: backoff.jitter must be within [0,1]")
	}

	bo := backoff.Default()
	if cfg.Backoff.BaseMs > 0 {
		bo.Base = time.Duration(cfg.Backoff.BaseMs) * time.Millisecond
	}
	if cfg.Backoff.MaxMs > 0 {
		bo.Max = time.Duration(cfg.Backoff.MaxMs) * time.Millisecond
	}
	if cfg.Backoff.Jitter > 0 {
		bo.Jitter = cfg.Backoff.Jitter
	}
	if bo.Base > bo.Max {
		return Loaded{}, errors.New("config: backoff.baseMs exceeds backoff.maxMs")
	}

	return Loaded{
		URL:           cfg.Server.URL,
		UserID:        cfg.Server.UserID,
		Backoff:       bo,
		MaxRetries:    cfg.Pending.MaxRetries,
		SweepInterval: time.Duration(cfg.Pending.SweepIntervalMs) * time.Millisecond,
		ExpireAfter:   time.Duration(cfg.Pending.ExpireAfterMs) * time.Millisecond,
		SettleDelay:   time.Duration(cfg.Session.SettleDelayMs) * time.Millisecond,
		ResumeDelay:   time.Duration(cfg.Session.ResumeDelayMs) * time.Millisecond,
		PingInterval:  time.Duration(cfg.Session.PingIntervalMs) * time.Millisecond,
		ArchiveDSN:    cfg.Archive.DSN,
	}, nil
}
