package domwatch

import (
	"log/slog"
	"time"
)

// Config controls a live Session.
type Config struct {
	// RemoteURL attaches to a running Chrome (DevTools WebSocket URL)
	// instead of launching one.
	RemoteURL string
	// Attach reuses an open tab whose URL starts with the session URL
	// rather than opening a new one.
	Attach bool
	// UserDataDir is the Chrome profile of a launched browser. Keep it to
	// stay logged in.
	UserDataDir string
	// Mode is "headless" (default) or "headful".
	Mode             string
	ResourceBlocking []string
	MemoryLimit      int64
	RecycleInterval  time.Duration

	// DebounceWindow closes a batch after this much quiet. Default: 250ms.
	DebounceWindow time.Duration
	// DebounceMax flushes a batch at this many records. Default: 1000.
	DebounceMax int
	// SnapshotInterval re-seeds the mirror periodically. Default: 30m.
	SnapshotInterval time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Mode == "" {
		c.Mode = "headless"
	}
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = 250 * time.Millisecond
	}
	if c.DebounceMax <= 0 {
		c.DebounceMax = 1000
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = 30 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
