// Package domwatch finds new chat messages as a page changes and binds an
// export control to each one once the site has finished rendering it.
//
// The Watcher is driven by its owner: Observe after every change to the
// tree, Run when the earliest readiness check is due. A Session connects
// the same flow to a live browser tab.
package domwatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/JohannesKaufmann/dom"
	"golang.org/x/net/html"

	"github.com/hazyhaar/chatmd/adapter"
	"github.com/hazyhaar/chatmd/idgen"
	"github.com/hazyhaar/chatmd/locator"
	"github.com/hazyhaar/chatmd/normalize"
)

var conversationControl = adapter.MustCompile("." + normalize.ConversationClass)

// Watcher tracks which messages are bound and which still wait for their
// affordance. It is not safe for concurrent use.
type Watcher struct {
	loc    *locator.Locator
	binder Binder
	sched  *Scheduler
	ids    idgen.Generator
	logger *slog.Logger

	bound      map[*html.Node]string
	pending    map[*html.Node]bool
	convAnchor *html.Node
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(w *Watcher) { w.logger = l } }

// WithIDGenerator sets the generator for control IDs.
func WithIDGenerator(g idgen.Generator) Option { return func(w *Watcher) { w.ids = g } }

// NewWatcher creates a Watcher binding through b.
func NewWatcher(loc *locator.Locator, b Binder, opts ...Option) *Watcher {
	w := &Watcher{
		loc:     loc,
		binder:  b,
		sched:   NewScheduler(),
		ids:     idgen.Control,
		logger:  slog.Default(),
		bound:   make(map[*html.Node]string),
		pending: make(map[*html.Node]bool),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// SetBinder swaps the binder, for instance after the page was reopened.
func (w *Watcher) SetBinder(b Binder) { w.binder = b }

// Scan enqueues every message of doc. Use it on a freshly loaded tree.
func (w *Watcher) Scan(ctx context.Context, doc *html.Node, now time.Time) {
	for _, msg := range w.loc.ListMessages(doc) {
		w.enqueue(msg.Node, now)
	}
	w.bindConversation(ctx, doc)
}

// Observe enqueues the messages found in freshly inserted subtrees.
func (w *Watcher) Observe(ctx context.Context, doc *html.Node, inserted []*html.Node, now time.Time) {
	for _, root := range inserted {
		for _, msg := range w.loc.ListMessagesIn(root) {
			w.enqueue(msg.Node, now)
		}
	}
	w.bindConversation(ctx, doc)
}

// Next returns when Run has work to do.
func (w *Watcher) Next() (time.Time, bool) { return w.sched.Next() }

// Pending returns the number of queued readiness checks.
func (w *Watcher) Pending() int { return w.sched.Len() }

// Run performs the readiness checks due at now and returns how many
// messages it bound.
func (w *Watcher) Run(ctx context.Context, doc *html.Node, now time.Time) int {
	n := 0
	for _, t := range w.sched.PopDue(now) {
		if w.check(ctx, doc, t, now) {
			n++
		}
	}
	return n
}

// Reset forgets every node. Call it when doc is replaced wholesale: the
// old nodes are unreachable and bound messages in the new tree carry
// MessageAttr.
func (w *Watcher) Reset() {
	w.sched.Clear()
	w.bound = make(map[*html.Node]string)
	w.pending = make(map[*html.Node]bool)
	w.convAnchor = nil
}

// IsBound reports whether n already has an export control.
func (w *Watcher) IsBound(n *html.Node) bool {
	if _, ok := w.bound[n]; ok {
		return true
	}
	_, ok := dom.GetAttribute(n, MessageAttr)
	return ok
}

// Lookup finds the message a control ID belongs to.
func (w *Watcher) Lookup(doc *html.Node, id string) (locator.MessageNode, bool) {
	if id == "" || doc == nil {
		return locator.MessageNode{}, false
	}
	if n := dom.FindFirstNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && dom.GetAttributeOr(n, MessageAttr, "") == id
	}); n != nil {
		return w.loc.Wrap(n), true
	}
	ctrl := dom.FindFirstNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && dom.GetAttributeOr(n, ControlAttr, "") == id
	})
	if ctrl == nil {
		return locator.MessageNode{}, false
	}
	return w.loc.ResolveOwningMessage(ctrl)
}

func (w *Watcher) enqueue(n *html.Node, now time.Time) {
	if w.IsBound(n) || w.pending[n] {
		return
	}
	w.pending[n] = true
	w.sched.Push(Task{Due: now, Node: n})
}

func (w *Watcher) check(ctx context.Context, doc *html.Node, t Task, now time.Time) bool {
	n := t.Node
	delete(w.pending, n)
	if !attached(doc, n) || w.IsBound(n) {
		return false
	}

	if anchor := w.loc.Site().Affordance(n); anchor != nil {
		id := w.ids()
		err := w.binder.BindMessage(ctx, n, anchor, id)
		if err == nil {
			w.bound[n] = id
			w.logger.Debug("domwatch: message bound", "control", id, "attempt", t.Attempt)
			return true
		}
		w.logger.Warn("domwatch: bind failed", "control", id, "error", err)
	}

	policy := w.loc.Site().Retry()
	if t.Attempt >= policy.MaxRetries {
		w.logger.Debug("domwatch: affordance never appeared, giving up", "checks", t.Attempt+1)
		return false
	}
	w.pending[n] = true
	w.sched.Push(Task{Due: now.Add(policy.Delay(t.Attempt)), Attempt: t.Attempt + 1, Node: n})
	return false
}

func (w *Watcher) bindConversation(ctx context.Context, doc *html.Node) {
	if doc == nil {
		return
	}
	anchor := w.loc.Site().ConversationAnchor(doc)
	if anchor == nil || anchor == w.convAnchor {
		return
	}
	if conversationControl.Query(doc) != nil {
		w.convAnchor = anchor
		return
	}
	id := w.ids()
	if err := w.binder.BindConversation(ctx, anchor, id); err != nil {
		w.logger.Warn("domwatch: bind conversation failed", "error", err)
		return
	}
	w.convAnchor = anchor
	w.logger.Debug("domwatch: conversation bound", "control", id)
}

func attached(doc, n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == doc {
			return true
		}
	}
	return false
}
