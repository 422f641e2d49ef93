package sink

import (
	"context"

	"github.com/hazyhaar/chatmd/assemble"
)

// Func delivers documents with a Go function call, for embedding chatmd in
// another program.
type Func func(ctx context.Context, doc assemble.Document) error

func (f Func) Deliver(ctx context.Context, doc assemble.Document) error {
	if f == nil {
		return nil
	}
	return f(ctx, doc)
}

func (Func) Close() error { return nil }
