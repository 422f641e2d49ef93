// Package naming holds the research-mode counter used in export filenames.
//
// The counter lives in an injected key-value store under a fixed key as a
// decimal string. Storage problems never reach the caller: a failed or
// garbled read counts as zero and a failed write is logged and ignored.
package naming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// CounterKey is the storage key of the counter. It is shared with the
// browser extension so both read the same value on a given origin.
const CounterKey = "chatgpt-downloader-research-counter"

// ErrStorageAccess wraps every KV failure. It is only ever logged.
var ErrStorageAccess = errors.New("naming: storage access failed")

// KV is the durable store the counter is persisted in.
type KV interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// State is the research counter. It is not safe for concurrent use; the
// exporter owns it from a single goroutine.
type State struct {
	kv     KV
	key    string
	logger *slog.Logger
}

// Option configures a State.
type Option func(*State)

// WithKey overrides CounterKey.
func WithKey(key string) Option { return func(s *State) { s.key = key } }

// WithLogger sets the logger used for storage failures.
func WithLogger(l *slog.Logger) Option { return func(s *State) { s.logger = l } }

// New creates a State over kv.
func New(kv KV, opts ...Option) *State {
	s := &State{kv: kv, key: CounterKey}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Current returns the stored counter, or 0 when it is absent, malformed,
// negative or unreadable.
func (s *State) Current(ctx context.Context) int {
	v, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.logger.Warn("naming: read counter", "key", s.key, "error", fmt.Errorf("%w: %v", ErrStorageAccess, err))
		return 0
	}
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		s.logger.Debug("naming: malformed counter treated as zero", "key", s.key, "value", v)
		return 0
	}
	return n
}

// Increment stores and returns the next counter value. When the write
// fails, or the counter is at math.MaxInt, it restarts at 1.
func (s *State) Increment(ctx context.Context) int {
	next := 1
	if cur := s.Current(ctx); cur < math.MaxInt {
		next = cur + 1
	} else {
		s.logger.Warn("naming: counter exhausted, restarting", "key", s.key)
	}
	if err := s.kv.Set(ctx, s.key, strconv.Itoa(next)); err != nil {
		s.logger.Warn("naming: increment counter", "key", s.key, "error", fmt.Errorf("%w: %v", ErrStorageAccess, err))
		return 1
	}
	return next
}

// Reset stores 0. Failures are logged only.
func (s *State) Reset(ctx context.Context) {
	if err := s.kv.Set(ctx, s.key, "0"); err != nil {
		s.logger.Warn("naming: reset counter", "key", s.key, "error", fmt.Errorf("%w: %v", ErrStorageAccess, err))
	}
}
