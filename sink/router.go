package sink

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/chatmd/assemble"
)

// Router fans documents out to every sink. One sink failing does not stop
// the others; failures are logged and the first one is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Len returns the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) Deliver(ctx context.Context, doc assemble.Document) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Deliver(ctx, doc); err != nil {
			r.logger.Warn("sink: deliver failed", "filename", doc.Filename, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
