package mutation

// Snapshot is the full serialized document. One is emitted when a page is
// attached, after SPA navigation, after doc_reset, periodically, and on
// request when the mirror drifted.
type Snapshot struct {
	ID        string `json:"id"`
	PageURL   string `json:"page_url"`
	PageID    string `json:"page_id"`
	HTML      []byte `json:"html"`
	HTMLHash  string `json:"html_hash"` // SHA-256 hex
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// ClickKind says which injected control was clicked.
type ClickKind string

const (
	ClickMessage      ClickKind = "message"
	ClickConversation ClickKind = "conversation"
)

// Click is a click on an injected export control, with the modifier keys
// held at the time.
type Click struct {
	Kind    ClickKind `json:"kind"`
	Control string    `json:"control"` // data-chatmd-control of the clicked button
	PageURL string    `json:"page_url,omitempty"`
	PageID  string    `json:"page_id,omitempty"`
	Ctrl    bool      `json:"ctrl,omitempty"`
	Meta    bool      `json:"meta,omitempty"`
	Shift   bool      `json:"shift,omitempty"`
}
