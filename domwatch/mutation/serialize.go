package mutation

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// EventType tags a payload sent by the injected page script.
type EventType string

const (
	EventRecords  EventType = "records"
	EventClick    EventType = "click"
	EventSnapshot EventType = "snapshot"
	EventReset    EventType = "reset"
)

// Event is one binding payload from the page script.
type Event struct {
	Type    EventType `json:"type"`
	Records []Record  `json:"records,omitempty"`
	Click   *Click    `json:"click,omitempty"`
	URL     string    `json:"url,omitempty"`  // snapshot only
	HTML    string    `json:"html,omitempty"` // snapshot only
}

// DecodeEvent parses a binding payload.
func DecodeEvent(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, fmt.Errorf("mutation: decode event: %w", err)
	}
	switch e.Type {
	case EventRecords, EventSnapshot, EventReset:
	case EventClick:
		if e.Click == nil || e.Click.Control == "" {
			return Event{}, fmt.Errorf("mutation: click without control")
		}
	default:
		return Event{}, fmt.Errorf("mutation: unknown event type %q", e.Type)
	}
	return e, nil
}

// HashHTML returns the SHA-256 hex digest of raw HTML bytes.
func HashHTML(html []byte) string {
	h := sha256.Sum256(html)
	return fmt.Sprintf("%x", h)
}
