// Package observer watches one browser tab. An injected script reports
// DOM changes through a CDP binding; the observer debounces them into
// batches and forwards batches, snapshots and control clicks to a Feed in
// the order the page produced them.
package observer

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/chatmd/domwatch/internal/browser"
	"github.com/hazyhaar/chatmd/domwatch/mutation"
	"github.com/hazyhaar/chatmd/idgen"
)

//go:embed observer.js
var observerJS string

const bindingName = "__chatmd_binding"

// Feed receives what the page reports.
type Feed interface {
	Batch(ctx context.Context, b mutation.Batch) error
	Snapshot(ctx context.Context, s mutation.Snapshot) error
	Click(ctx context.Context, c mutation.Click) error
}

// Config for creating an Observer.
type Config struct {
	Tab              *browser.Tab
	Feed             Feed
	DebounceWindow   time.Duration
	DebounceMax      int
	SnapshotInterval time.Duration
	Logger           *slog.Logger
}

// Observer manages the injected script and event pump for a single page.
type Observer struct {
	tab    *browser.Tab
	feed   Feed
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	events   chan mutation.Event
	navCh    chan string
	resyncCh chan struct{}

	debouncer        *debouncer
	seq              uint64
	snapshotRef      string
	snapshotInterval time.Duration

	removeScript func() error
}

// New creates an Observer for the given tab.
func New(cfg Config) *Observer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 30 * time.Minute
	}

	o := &Observer{
		tab:              cfg.Tab,
		feed:             cfg.Feed,
		logger:           cfg.Logger,
		events:           make(chan mutation.Event, 4096),
		navCh:            make(chan string, 1),
		resyncCh:         make(chan struct{}, 1),
		snapshotInterval: cfg.SnapshotInterval,
	}
	o.debouncer = newDebouncer(debounceConfig{
		Window:    cfg.DebounceWindow,
		MaxBuffer: cfg.DebounceMax,
	}, o.emitBatch)
	return o
}

// Start injects the script and runs the pump until ctx ends or Stop. The
// script sends the first snapshot itself.
func (o *Observer) Start(ctx context.Context) error {
	o.ctx, o.cancel = context.WithCancel(ctx)
	page := o.tab.Page

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		o.logger.Warn("observer: addBinding failed (may already exist)", "error", err)
	}
	if err := (proto.PageEnable{}).Call(page); err != nil {
		return fmt.Errorf("observer: enable page domain: %w", err)
	}

	go o.listen()

	remove, err := page.EvalOnNewDocument(observerJS)
	if err != nil {
		o.cancel()
		return fmt.Errorf("observer: install script: %w", err)
	}
	o.removeScript = remove

	// The current document predates EvalOnNewDocument.
	if _, err := page.Context(o.ctx).Eval("() => {\n" + observerJS + "\n}"); err != nil {
		o.cancel()
		return fmt.Errorf("observer: inject script: %w", err)
	}

	go o.loop()
	o.logger.Info("observer: watching", "page_url", o.tab.PageURL, "page_id", o.tab.PageID)
	return nil
}

// Stop ends the pump. Records still buffered are dropped.
func (o *Observer) Stop() {
	if o.cancel == nil {
		return
	}
	o.cancel()
	if o.removeScript != nil {
		if err := o.removeScript(); err != nil {
			o.logger.Debug("observer: remove script", "error", err)
		}
	}
}

// Resync asks the page for a fresh snapshot.
func (o *Observer) Resync() {
	select {
	case o.resyncCh <- struct{}{}:
	default:
	}
}

// listen receives binding calls and navigation events from CDP.
func (o *Observer) listen() {
	o.tab.Page.Context(o.ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name != bindingName {
				return
			}
			ev, err := mutation.DecodeEvent([]byte(e.Payload))
			if err != nil {
				o.logger.Warn("observer: bad binding payload", "error", err)
				return
			}
			select {
			case o.events <- ev:
			case <-o.ctx.Done():
			}
		},
		func(e *proto.PageNavigatedWithinDocument) {
			select {
			case o.navCh <- e.URL:
			default:
			}
		},
	)()
}

// loop serializes everything the page reports.
func (o *Observer) loop() {
	snapTicker := time.NewTicker(o.snapshotInterval)
	defer snapTicker.Stop()

	var settle *time.Timer
	var settleC <-chan time.Time

	for {
		select {
		case <-o.ctx.Done():
			return

		case ev := <-o.events:
			o.handle(ev)
			if settle != nil && ev.Type == mutation.EventRecords {
				settle.Reset(navSettle)
			}

		case <-o.debouncer.timerC():
			o.debouncer.flush()

		case u := <-o.navCh:
			settle, settleC = o.handleNavigate(u, settle)

		case <-settleC:
			settle, settleC = nil, nil
			o.requestSnapshot()

		case <-o.resyncCh:
			o.requestSnapshot()

		case <-snapTicker.C:
			o.requestSnapshot()
		}
	}
}

func (o *Observer) handle(ev mutation.Event) {
	switch ev.Type {
	case mutation.EventRecords:
		for _, r := range ev.Records {
			o.debouncer.add(r)
		}

	case mutation.EventReset:
		o.debouncer.flush()
		o.emitBatch([]mutation.Record{{Op: mutation.OpDocReset}})

	case mutation.EventSnapshot:
		o.debouncer.flush()
		if ev.URL != "" {
			o.tab.PageURL = ev.URL
		}
		o.emitSnapshot([]byte(ev.HTML))

	case mutation.EventClick:
		o.debouncer.flush()
		c := *ev.Click
		c.PageID = o.tab.PageID
		if c.PageURL == "" {
			c.PageURL = o.tab.PageURL
		}
		if err := o.feed.Click(o.ctx, c); err != nil {
			o.logger.Error("observer: send click failed", "error", err)
		}
	}
}

func (o *Observer) emitBatch(records []mutation.Record) {
	if len(records) == 0 {
		return
	}
	o.seq++
	batch := mutation.Batch{
		ID:          idgen.New(),
		PageURL:     o.tab.PageURL,
		PageID:      o.tab.PageID,
		Seq:         o.seq,
		Records:     records,
		Timestamp:   time.Now().UnixMilli(),
		SnapshotRef: o.snapshotRef,
	}
	if err := o.feed.Batch(o.ctx, batch); err != nil {
		o.logger.Error("observer: send batch failed", "error", err)
	}
}

func (o *Observer) emitSnapshot(html []byte) {
	snap := mutation.Snapshot{
		ID:        idgen.New(),
		PageURL:   o.tab.PageURL,
		PageID:    o.tab.PageID,
		HTML:      html,
		HTMLHash:  mutation.HashHTML(html),
		Timestamp: time.Now().UnixMilli(),
	}
	o.snapshotRef = snap.ID

	if err := o.feed.Snapshot(o.ctx, snap); err != nil {
		o.logger.Error("observer: send snapshot failed", "error", err)
		return
	}
	o.logger.Info("observer: snapshot emitted", "page_url", o.tab.PageURL, "id", snap.ID, "size", len(html))
}

// requestSnapshot has the script serialize the document. The snapshot
// comes back through the binding, after any record it already queued.
func (o *Observer) requestSnapshot() {
	if _, err := o.tab.Page.Context(o.ctx).Eval(`() => window.__chatmd && window.__chatmd.snapshot()`); err != nil {
		o.logger.Warn("observer: request snapshot failed", "error", err)
	}
}
