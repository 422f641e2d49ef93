// Package exporter runs the export engine: one goroutine that owns the
// page mirror, the watcher and the naming counter, fed by page events and
// commands over channels.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chatmd/adapter"
	"github.com/hazyhaar/chatmd/assemble"
	"github.com/hazyhaar/chatmd/domwatch"
	"github.com/hazyhaar/chatmd/domwatch/mutation"
	"github.com/hazyhaar/chatmd/idgen"
	"github.com/hazyhaar/chatmd/kvstore"
	"github.com/hazyhaar/chatmd/livedoc"
	"github.com/hazyhaar/chatmd/locator"
	"github.com/hazyhaar/chatmd/naming"
	"github.com/hazyhaar/chatmd/render"
	"github.com/hazyhaar/chatmd/sink"
)

var (
	// ErrClosed is returned once Run has stopped.
	ErrClosed = errors.New("exporter: engine stopped")
	// ErrNoDocument means no page has been loaded yet.
	ErrNoDocument = errors.New("exporter: no document loaded")
	// ErrUnknownControl means a click named a control not in the document.
	ErrUnknownControl = errors.New("exporter: unknown control")
	// ErrNoMessage means an index is out of range.
	ErrNoMessage = errors.New("exporter: no such message")
)

// Config for creating an Engine.
type Config struct {
	Site *adapter.Site
	// Render configures the Markdown converter.
	Render render.Config
	// Store holds the research counter. Default: in memory.
	Store naming.KV
	// Sink receives every export. Default: discard.
	Sink sink.Sink
	// MaxDepth bounds owner resolution walks. Default: locator's.
	MaxDepth int
	// ExportIDs stamps Document.ID. Default: idgen.Export.
	ExportIDs idgen.Generator
	// ControlIDs names injected controls. Default: idgen.Control.
	ControlIDs idgen.Generator
	// Now is the clock of the readiness scheduler. Default: time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Store == nil {
		c.Store = kvstore.NewMemory()
	}
	if c.Sink == nil {
		c.Sink = sink.Func(nil)
	}
	if c.ExportIDs == nil {
		c.ExportIDs = idgen.Export
	}
	if c.ControlIDs == nil {
		c.ControlIDs = idgen.Control
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Source is a live page the engine is attached to.
type Source interface {
	Binder() domwatch.Binder
	Resync()
}

// Engine is the export engine. Its state is only touched by Run; every
// other method hands work to Run over a channel and waits.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	rend   *render.Renderer
	naming *naming.State
	src    Source

	site    atomic.Pointer[adapter.Site]
	loc     *locator.Locator
	asm     *assemble.Assembler
	watcher *domwatch.Watcher
	doc     *livedoc.Doc

	events  chan pageEvent
	cmds    chan func(context.Context)
	started chan struct{}
	done    chan struct{}
	fatal   error
}

type pageEvent struct {
	batch *mutation.Batch
	snap  *mutation.Snapshot
	click *mutation.Click
}

// New creates an Engine. A renderer that cannot be built fails here with
// render.ErrRendererUnavailable.
func New(cfg Config) (*Engine, error) {
	if cfg.Site == nil {
		return nil, fmt.Errorf("exporter: no site adapter")
	}
	cfg.defaults()
	rend, err := render.New(cfg.Render)
	if err != nil {
		return nil, fmt.Errorf("exporter: %w", err)
	}
	e := &Engine{
		cfg:     cfg,
		logger:  cfg.Logger,
		rend:    rend,
		naming:  naming.New(cfg.Store, naming.WithLogger(cfg.Logger)),
		doc:     livedoc.New(cfg.Logger),
		events:  make(chan pageEvent, 64),
		cmds:    make(chan func(context.Context)),
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
	e.setSite(cfg.Site)
	return e, nil
}

// Attach binds controls into src's page and asks it for snapshots when the
// mirror drifts. Call it before Run.
func (e *Engine) Attach(src Source) {
	e.src = src
	if e.watcher != nil {
		e.watcher.SetBinder(e.binder())
	}
}

// Site returns the adapter in force.
func (e *Engine) Site() *adapter.Site { return e.site.Load() }

// RenderHTML converts an HTML fragment to Markdown with the engine's
// renderer. It does not touch engine state.
func (e *Engine) RenderHTML(src string) (string, error) {
	return e.rend.RenderString(src)
}

// Run processes page events, commands and readiness checks until ctx is
// cancelled or the renderer fails.
func (e *Engine) Run(ctx context.Context) error {
	select {
	case <-e.started:
		return fmt.Errorf("exporter: Run called twice")
	default:
	}
	close(e.started)
	defer close(e.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		var wake <-chan time.Time
		if due, ok := e.watcher.Next(); ok && e.doc.Root() != nil {
			d := due.Sub(e.cfg.Now())
			if d < 0 {
				d = 0
			}
			timer.Reset(d)
			wake = timer.C
		}

		select {
		case <-ctx.Done():
			return nil
		case ev := <-e.events:
			e.handleEvent(ctx, ev)
		case fn := <-e.cmds:
			e.drainEvents(ctx)
			fn(ctx)
		case <-wake:
			e.runChecks(ctx)
		}
		timer.Stop()

		if e.fatal != nil {
			e.logger.Error("exporter: stopping", "error", e.fatal)
			return e.fatal
		}
	}
}

// Batch, Snapshot and Click make the Engine a domwatch.Feed.

func (e *Engine) Batch(ctx context.Context, b mutation.Batch) error {
	return e.send(ctx, pageEvent{batch: &b})
}

func (e *Engine) Snapshot(ctx context.Context, s mutation.Snapshot) error {
	return e.send(ctx, pageEvent{snap: &s})
}

func (e *Engine) Click(ctx context.Context, c mutation.Click) error {
	return e.send(ctx, pageEvent{click: &c})
}

// LoadHTML replaces the mirror with a saved page, as if the page had
// sent it as a snapshot.
func (e *Engine) LoadHTML(ctx context.Context, pageURL string, src []byte) error {
	return e.Snapshot(ctx, mutation.Snapshot{
		ID:        idgen.New(),
		PageURL:   pageURL,
		HTML:      src,
		HTMLHash:  mutation.HashHTML(src),
		Timestamp: e.cfg.Now().UnixMilli(),
	})
}

func (e *Engine) send(ctx context.Context, ev pageEvent) error {
	select {
	case e.events <- ev:
		return nil
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do runs fn on the engine goroutine and waits for it.
func (e *Engine) do(ctx context.Context, fn func(context.Context)) error {
	finished := make(chan struct{})
	wrapped := func(ctx context.Context) {
		defer close(finished)
		fn(ctx)
	}
	select {
	case e.cmds <- wrapped:
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// drainEvents handles the page events already queued, so a command sees
// every event sent before it.
func (e *Engine) drainEvents(ctx context.Context) {
	for {
		select {
		case ev := <-e.events:
			e.handleEvent(ctx, ev)
		default:
			return
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev pageEvent) {
	switch {
	case ev.snap != nil:
		e.handleSnapshot(ctx, *ev.snap)
	case ev.batch != nil:
		e.handleBatch(ctx, *ev.batch)
	case ev.click != nil:
		e.handleClick(ctx, *ev.click)
	}
}

func (e *Engine) handleSnapshot(ctx context.Context, s mutation.Snapshot) {
	if err := e.doc.Load(s); err != nil {
		e.logger.Warn("exporter: snapshot rejected", "page_url", s.PageURL, "error", err)
		return
	}
	e.watcher.Reset()
	e.watcher.Scan(ctx, e.doc.Root(), e.cfg.Now())
	e.runChecks(ctx)
}

func (e *Engine) handleBatch(ctx context.Context, b mutation.Batch) {
	touched, err := e.doc.Apply(b)
	switch {
	case errors.Is(err, livedoc.ErrStale):
		// A snapshot is on its way.
		return
	case errors.Is(err, livedoc.ErrDrift):
		if e.src != nil {
			e.src.Resync()
		}
		return
	case err != nil:
		e.logger.Warn("exporter: batch rejected", "seq", b.Seq, "error", err)
		return
	}
	if e.doc.Stale() {
		return
	}
	e.watcher.Observe(ctx, e.doc.Root(), touched, e.cfg.Now())
	e.runChecks(ctx)
}

func (e *Engine) handleClick(ctx context.Context, c mutation.Click) {
	var err error
	switch c.Kind {
	case mutation.ClickConversation:
		_, err = e.exportConversation(ctx)
	default:
		_, err = e.exportControl(ctx, c.Control, ModeFor(c))
	}
	if err != nil {
		e.logger.Warn("exporter: export failed", "control", c.Control, "kind", c.Kind, "error", err)
	}
}

func (e *Engine) runChecks(ctx context.Context) {
	if root := e.doc.Root(); root != nil {
		e.watcher.Run(ctx, root, e.cfg.Now())
	}
}

// ModeFor maps click modifiers to an export mode: Ctrl or Meta selects
// Research, Shift selects Skip, and Ctrl/Meta wins when both are held.
func ModeFor(c mutation.Click) assemble.Mode {
	switch {
	case c.Ctrl || c.Meta:
		return assemble.Research
	case c.Shift:
		return assemble.Skip
	}
	return assemble.Normal
}

func (e *Engine) exportControl(ctx context.Context, control string, mode assemble.Mode) (assemble.Document, error) {
	root := e.doc.Root()
	if root == nil {
		return assemble.Document{}, ErrNoDocument
	}
	msg, ok := e.watcher.Lookup(root, control)
	if !ok {
		return assemble.Document{}, fmt.Errorf("%w: %s", ErrUnknownControl, control)
	}
	return e.exportSingle(ctx, root, msg, mode)
}

func (e *Engine) exportSingle(ctx context.Context, root *html.Node, msg locator.MessageNode, mode assemble.Mode) (assemble.Document, error) {
	doc, err := e.asm.Single(ctx, root, msg, mode)
	if err != nil {
		e.checkFatal(err)
		return assemble.Document{}, err
	}
	return e.deliver(ctx, doc)
}

func (e *Engine) exportConversation(ctx context.Context) (assemble.Document, error) {
	root := e.doc.Root()
	if root == nil {
		return assemble.Document{}, ErrNoDocument
	}
	doc, err := e.asm.Conversation(root)
	if err != nil {
		e.checkFatal(err)
		return assemble.Document{}, err
	}
	return e.deliver(ctx, doc)
}

func (e *Engine) deliver(ctx context.Context, doc assemble.Document) (assemble.Document, error) {
	doc.ID = e.cfg.ExportIDs()
	if err := e.cfg.Sink.Deliver(ctx, doc); err != nil {
		return doc, fmt.Errorf("exporter: deliver %s: %w", doc.Filename, err)
	}
	e.logger.Info("exporter: exported", "id", doc.ID, "filename", doc.Filename, "messages", doc.Messages)
	return doc, nil
}

func (e *Engine) checkFatal(err error) {
	if errors.Is(err, render.ErrRendererUnavailable) {
		e.fatal = err
	}
}

func (e *Engine) binder() domwatch.Binder {
	if e.src != nil {
		return e.src.Binder()
	}
	return domwatch.TreeBinder{}
}

func (e *Engine) setSite(site *adapter.Site) {
	var opts []locator.Option
	if e.cfg.MaxDepth > 0 {
		opts = append(opts, locator.WithMaxDepth(e.cfg.MaxDepth))
	}
	e.site.Store(site)
	e.loc = locator.New(site, opts...)
	e.asm = assemble.New(e.loc, e.rend, e.naming, e.logger)
	e.watcher = domwatch.NewWatcher(e.loc, e.binder(),
		domwatch.WithIDGenerator(e.cfg.ControlIDs),
		domwatch.WithLogger(e.logger))
}
