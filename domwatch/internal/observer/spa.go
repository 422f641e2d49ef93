package observer

import (
	"time"
)

// navSettle is how long the page must stay quiet after an in-document
// navigation before a fresh snapshot is taken.
const navSettle = 500 * time.Millisecond

// handleNavigate records the new URL of an SPA route change and arms, or
// re-arms, the settle timer. Records keep flowing meanwhile; each one
// pushes the snapshot back.
func (o *Observer) handleNavigate(newURL string, settle *time.Timer) (*time.Timer, <-chan time.Time) {
	o.logger.Info("observer: SPA navigation", "page_url", newURL)
	o.tab.PageURL = newURL
	if settle == nil {
		settle = time.NewTimer(navSettle)
	} else {
		settle.Reset(navSettle)
	}
	return settle, settle.C
}
