package domwatch

import (
	"context"
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/chatmd/internal/htmlutil"
	"github.com/hazyhaar/chatmd/normalize"
)

const (
	// ControlAttr tags every injected control with its ID.
	ControlAttr = "data-chatmd-control"
	// MessageAttr marks a message as bound; its value is the ID of the
	// message's control.
	MessageAttr = "data-chatmd-message"
)

// Binder attaches export controls. Implementations must leave MessageAttr
// on msg, now or once the page reports the change back.
type Binder interface {
	// BindMessage places a control tagged id right after anchor, the
	// site's own action element for msg.
	BindMessage(ctx context.Context, msg, anchor *html.Node, id string) error
	// BindConversation places the conversation control after anchor.
	BindConversation(ctx context.Context, anchor *html.Node, id string) error
}

// TreeBinder binds into the parsed tree itself. It serves offline documents
// and tests.
type TreeBinder struct{}

func (TreeBinder) BindMessage(_ context.Context, msg, anchor *html.Node, id string) error {
	if anchor.Parent == nil {
		return fmt.Errorf("domwatch: bind %s: anchor is detached", id)
	}
	htmlutil.SetAttr(msg, MessageAttr, id)
	anchor.Parent.InsertBefore(control(normalize.ReservedClass, id, "Download"), anchor.NextSibling)
	return nil
}

func (TreeBinder) BindConversation(_ context.Context, anchor *html.Node, id string) error {
	if anchor.Parent == nil {
		return fmt.Errorf("domwatch: bind conversation %s: anchor is detached", id)
	}
	anchor.Parent.InsertBefore(control(normalize.ConversationClass, id, "Download conversation"), anchor.NextSibling)
	return nil
}

func control(class, id, label string) *html.Node {
	btn := &html.Node{
		Type:     html.ElementNode,
		Data:     "button",
		DataAtom: atom.Button,
		Attr: []html.Attribute{
			{Key: "type", Val: "button"},
			{Key: "class", Val: class},
			{Key: ControlAttr, Val: id},
			{Key: "title", Val: label},
		},
	}
	btn.AppendChild(&html.Node{Type: html.TextNode, Data: label})
	return btn
}
