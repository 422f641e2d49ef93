package domwatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"golang.org/x/net/html"

	"github.com/hazyhaar/chatmd/domwatch/internal/browser"
	"github.com/hazyhaar/chatmd/domwatch/internal/observer"
	"github.com/hazyhaar/chatmd/livedoc"
)

// Feed receives batches, snapshots and clicks from a live page, in page
// order.
type Feed = observer.Feed

// Session is one conversation page in a browser. It owns the browser
// manager, the tab and the observer, and reopens the tab after Chrome is
// recycled.
type Session struct {
	cfg     Config
	pageURL string
	pageID  string
	feed    Feed
	logger  *slog.Logger

	mgr *browser.Manager
	mu  sync.Mutex
	tab *browser.Tab
	obs *observer.Observer
}

// Open starts or attaches to Chrome, opens pageURL and starts observing.
// The first snapshot reaches feed shortly after Open returns.
func Open(ctx context.Context, cfg Config, pageURL, pageID string, feed Feed) (*Session, error) {
	cfg.defaults()
	s := &Session{
		cfg:     cfg,
		pageURL: pageURL,
		pageID:  pageID,
		feed:    feed,
		logger:  cfg.Logger,
		mgr: browser.NewManager(browser.Config{
			RemoteURL:        cfg.RemoteURL,
			UserDataDir:      cfg.UserDataDir,
			MemoryLimit:      cfg.MemoryLimit,
			RecycleInterval:  cfg.RecycleInterval,
			ResourceBlocking: cfg.ResourceBlocking,
			Mode:             browser.ParseMode(cfg.Mode),
			Logger:           cfg.Logger,
		}),
	}

	if _, err := s.mgr.Start(ctx); err != nil {
		return nil, fmt.Errorf("domwatch: start browser: %w", err)
	}
	s.mgr.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: s.detach,
		AfterRecycle:  func(*rod.Browser) { s.reattach(ctx) },
	})

	s.mu.Lock()
	err := s.attachLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		s.mgr.Close()
		return nil, err
	}
	return s, nil
}

// Binder returns a Binder that injects controls into the live page. Nodes
// passed to it must belong to the mirror fed by this session.
func (s *Session) Binder() Binder { return liveBinder{s} }

// Resync asks the page for a fresh snapshot.
func (s *Session) Resync() {
	if obs := s.observer(); obs != nil {
		obs.Resync()
	}
}

// Close stops observing and releases the browser.
func (s *Session) Close() error {
	s.detach()
	return s.mgr.Close()
}

func (s *Session) attachLocked(ctx context.Context) error {
	var tab *browser.Tab
	var err error
	if s.cfg.Attach {
		tab, err = browser.FindTab(s.mgr, s.pageURL, s.pageID)
	} else {
		tab, err = browser.OpenTab(ctx, s.mgr, s.pageURL, s.pageID)
	}
	if err != nil {
		return fmt.Errorf("domwatch: open tab: %w", err)
	}

	obs := observer.New(observer.Config{
		Tab:              tab,
		Feed:             s.feed,
		DebounceWindow:   s.cfg.DebounceWindow,
		DebounceMax:      s.cfg.DebounceMax,
		SnapshotInterval: s.cfg.SnapshotInterval,
		Logger:           s.logger,
	})
	if err := obs.Start(ctx); err != nil {
		tab.Close()
		return fmt.Errorf("domwatch: start observer: %w", err)
	}
	s.tab, s.obs = tab, obs
	s.logger.Info("domwatch: observing page", "page_url", tab.PageURL, "page_id", s.pageID)
	return nil
}

func (s *Session) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.obs != nil {
		s.obs.Stop()
		s.obs = nil
	}
	if s.tab != nil {
		s.tab.Close()
		s.tab = nil
	}
}

func (s *Session) reattach(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.attachLocked(ctx); err != nil {
		s.logger.Error("domwatch: reattach after recycle failed", "page_url", s.pageURL, "error", err)
	}
}

func (s *Session) observer() *observer.Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.obs
}

// liveBinder addresses mirror nodes in the page by their XPath.
type liveBinder struct{ s *Session }

func (b liveBinder) BindMessage(ctx context.Context, msg, anchor *html.Node, id string) error {
	obs := b.s.observer()
	if obs == nil {
		return fmt.Errorf("domwatch: bind %s: page is not attached", id)
	}
	msgPath, anchorPath := livedoc.XPath(msg), livedoc.XPath(anchor)
	if msgPath == "" || anchorPath == "" {
		return fmt.Errorf("domwatch: bind %s: node is not in the mirror", id)
	}
	return obs.BindMessage(ctx, msgPath, anchorPath, id)
}

func (b liveBinder) BindConversation(ctx context.Context, anchor *html.Node, id string) error {
	obs := b.s.observer()
	if obs == nil {
		return fmt.Errorf("domwatch: bind %s: page is not attached", id)
	}
	path := livedoc.XPath(anchor)
	if path == "" {
		return fmt.Errorf("domwatch: bind %s: node is not in the mirror", id)
	}
	return obs.BindConversation(ctx, path, id)
}
