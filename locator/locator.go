// Package locator finds message elements in a chat document and resolves
// which message an arbitrary element (typically a clicked control) belongs
// to. Every call queries the tree afresh; nothing is cached between calls
// because the document keeps mutating.
package locator

import (
	"strings"

	"github.com/JohannesKaufmann/dom"
	"golang.org/x/net/html"

	"github.com/hazyhaar/chatmd/adapter"
)

const (
	defaultMaxDepth = 12
	minDepth        = 5
	maxDepth        = 20
)

// MessageNode references one conversational turn in the document. It is
// borrowed from the tree and only valid while the element is attached.
type MessageNode struct {
	Node *html.Node
	site *adapter.Site
}

// Role evaluates the adapter's author rules against the element. The
// result is never cached since the attributes it reads may change.
func (m MessageNode) Role() adapter.Role {
	if m.Node == nil || m.site == nil {
		return ""
	}
	role, _ := m.site.DetectRole(m.Node)
	return role
}

// IsZero reports whether m references no element.
func (m MessageNode) IsZero() bool { return m.Node == nil }

// Locator applies one Site to documents.
type Locator struct {
	site     *adapter.Site
	maxDepth int
}

// Option configures a Locator.
type Option func(*Locator)

// WithMaxDepth bounds the ancestor walks of ResolveOwningMessage. Values
// are clamped to [5, 20].
func WithMaxDepth(n int) Option {
	return func(l *Locator) {
		if n < minDepth {
			n = minDepth
		}
		if n > maxDepth {
			n = maxDepth
		}
		l.maxDepth = n
	}
}

// New creates a Locator for site.
func New(site *adapter.Site, opts ...Option) *Locator {
	l := &Locator{site: site, maxDepth: defaultMaxDepth}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Site returns the adapter the locator applies.
func (l *Locator) Site() *adapter.Site { return l.site }

// Wrap turns an element already known to be a message into a MessageNode.
func (l *Locator) Wrap(n *html.Node) MessageNode {
	return MessageNode{Node: n, site: l.site}
}

// ListMessages returns the matches of the first message selector that
// yields anything, in document order. Selectors are never merged.
func (l *Locator) ListMessages(doc *html.Node) []MessageNode {
	for _, sel := range l.site.MessageSelectors() {
		if found := sel.QueryAll(doc); len(found) > 0 {
			return l.wrapAll(found)
		}
	}
	return nil
}

// ListMessagesIn runs discovery on an inserted subtree with the adapter's
// watch selectors. The subtree root itself is considered.
func (l *Locator) ListMessagesIn(root *html.Node) []MessageNode {
	if root == nil || root.Type != html.ElementNode {
		return nil
	}
	for _, sel := range l.site.WatchSelectors() {
		if found := sel.SelfOrAll(root); len(found) > 0 {
			return l.wrapAll(found)
		}
	}
	return nil
}

// IndexOf returns the position of msg in ListMessages(doc), or -1.
func (l *Locator) IndexOf(doc *html.Node, msg MessageNode) int {
	for i, m := range l.ListMessages(doc) {
		if m.Node == msg.Node {
			return i
		}
	}
	return -1
}

// ResolveOwningMessage finds the message a node belongs to. It tries, in
// order: the closest message ancestor; messages inside preceding siblings
// of each ancestor, nearest first, widening outward; the first ancestor
// matching any message selector. Each walk stops at <body> or after the
// configured depth.
func (l *Locator) ResolveOwningMessage(n *html.Node) (MessageNode, bool) {
	if n == nil {
		return MessageNode{}, false
	}

	owner := l.site.Owner()
	for cur, depth := n, 0; cur != nil && depth <= l.maxDepth; cur, depth = cur.Parent, depth+1 {
		if owner.Match(cur) {
			return l.Wrap(cur), true
		}
		if isBoundary(cur) {
			break
		}
	}

	for cur, depth := n.Parent, 0; cur != nil && !isBoundary(cur) && depth < l.maxDepth; cur, depth = cur.Parent, depth+1 {
		for sib := dom.PrevSiblingElement(cur); sib != nil; sib = dom.PrevSiblingElement(sib) {
			if m := l.candidate(sib); m != nil {
				return l.Wrap(m), true
			}
		}
	}

	for cur, depth := n.Parent, 0; cur != nil && !isBoundary(cur) && depth < l.maxDepth; cur, depth = cur.Parent, depth+1 {
		if !l.matchesAnyMessageSelector(cur) {
			continue
		}
		if m := l.candidate(cur); m != nil {
			return l.Wrap(m), true
		}
	}
	return MessageNode{}, false
}

// ContentRoot returns the first adapter content match with non-blank text,
// or nil when the message is unrenderable.
func (l *Locator) ContentRoot(msg MessageNode) *html.Node {
	if msg.Node == nil {
		return nil
	}
	for _, sel := range l.site.ContentSelectors(msg.Node) {
		c := sel.Query(msg.Node)
		if c != nil && strings.TrimSpace(dom.CollectText(c)) != "" {
			return c
		}
	}
	return nil
}

// HasContentMatch reports whether any content selector matches inside msg,
// regardless of text. It separates a blank message from one whose content
// element is missing altogether.
func (l *Locator) HasContentMatch(msg MessageNode) bool {
	if msg.Node == nil {
		return false
	}
	for _, sel := range l.site.ContentSelectors(msg.Node) {
		if sel.Query(msg.Node) != nil {
			return true
		}
	}
	return false
}

// candidate returns el when it is a message node, else the last message
// node it contains.
func (l *Locator) candidate(el *html.Node) *html.Node {
	owner := l.site.Owner()
	if owner.Match(el) {
		return el
	}
	if all := owner.QueryAll(el); len(all) > 0 {
		return all[len(all)-1]
	}
	return nil
}

func (l *Locator) matchesAnyMessageSelector(n *html.Node) bool {
	for _, sel := range l.site.MessageSelectors() {
		if sel.Match(n) {
			return true
		}
	}
	return false
}

func (l *Locator) wrapAll(nodes []*html.Node) []MessageNode {
	out := make([]MessageNode, len(nodes))
	for i, n := range nodes {
		out[i] = l.Wrap(n)
	}
	return out
}

func isBoundary(n *html.Node) bool {
	return n.Type != html.ElementNode || n.Data == "body"
}
