package observer

import (
	"context"
	"errors"
	"fmt"
)

// ErrTargetMissing means a path no longer resolves in the page.
var ErrTargetMissing = errors.New("observer: bind target missing in page")

// BindMessage has the script tag the message at msgPath and place a
// control after anchorPath. A message the page already marks is left as is.
func (o *Observer) BindMessage(ctx context.Context, msgPath, anchorPath, id string) error {
	return o.bind(ctx, `(m, a, id) => window.__chatmd ? window.__chatmd.bindMessage(m, a, id) : 'missing'`, msgPath, anchorPath, id)
}

// BindConversation places the conversation control after anchorPath.
func (o *Observer) BindConversation(ctx context.Context, anchorPath, id string) error {
	return o.bind(ctx, `(a, id) => window.__chatmd ? window.__chatmd.bindConversation(a, id) : 'missing'`, anchorPath, id)
}

func (o *Observer) bind(ctx context.Context, js string, args ...interface{}) error {
	res, err := o.tab.Page.Context(ctx).Eval(js, args...)
	if err != nil {
		return fmt.Errorf("observer: bind: %w", err)
	}
	switch res.Value.Str() {
	case "ok", "bound":
		return nil
	}
	return ErrTargetMissing
}
