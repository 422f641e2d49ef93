package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab is a conversation page under observation.
type Tab struct {
	Page    *rod.Page
	PageURL string
	PageID  string
	owned   bool
}

// OpenTab creates a new tab and navigates to pageURL. Headless tabs get
// the stealth patches.
func OpenTab(ctx context.Context, mgr *Manager, pageURL, pageID string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if mgr.cfg.Mode == ModeHeadless {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		applyResourceBlocking(page, mgr.cfg.ResourceBlocking)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Tab{Page: page, PageURL: pageURL, PageID: pageID, owned: true}, nil
}

// FindTab attaches to an already open tab whose URL starts with prefix,
// typically in a browser the user is logged into.
func FindTab(mgr *Manager, prefix, pageID string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	pages, err := b.Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list tabs: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil || info.Type != proto.TargetTargetInfoTypePage {
			continue
		}
		if strings.HasPrefix(info.URL, prefix) {
			return &Tab{Page: p, PageURL: info.URL, PageID: pageID}, nil
		}
	}
	return nil, fmt.Errorf("browser: no tab matches %s", prefix)
}

// Close closes tabs chatmd opened. Attached tabs are left to the user.
func (t *Tab) Close() error {
	if t.Page != nil && t.owned {
		return t.Page.Close()
	}
	return nil
}
