// Package sink delivers exported Markdown documents: to a directory, to
// stdout, to a webhook, to an in-process callback, or to several of them
// through a Router.
package sink

import (
	"context"

	"github.com/hazyhaar/chatmd/assemble"
)

// Sink is the output interface.
type Sink interface {
	Deliver(ctx context.Context, doc assemble.Document) error
	Close() error
}
