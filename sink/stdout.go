package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/chatmd/assemble"
)

// Stdout writes documents to an io.Writer (default os.Stdout), either as
// raw Markdown or as JSON lines.
type Stdout struct {
	mu   sync.Mutex
	w    io.Writer
	enc  *json.Encoder
	json bool
}

// NewStdout creates a Markdown Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{w: w, enc: json.NewEncoder(w)}
}

// NewJSONLines creates a Stdout sink writing one JSON object per document.
func NewJSONLines(w io.Writer) *Stdout {
	s := NewStdout(w)
	s.json = true
	return s
}

func (s *Stdout) Deliver(_ context.Context, doc assemble.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.json {
		return s.enc.Encode(envelope{Type: "document", Data: doc})
	}
	_, err := fmt.Fprintf(s.w, "%s\n", doc.Content)
	return err
}

func (s *Stdout) Close() error { return nil }

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
