// Package assemble builds exportable Markdown documents from located
// messages: one message with a mode-dependent filename, or the whole
// conversation under its title.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chatmd/adapter"
	"github.com/hazyhaar/chatmd/locator"
	"github.com/hazyhaar/chatmd/naming"
	"github.com/hazyhaar/chatmd/normalize"
	"github.com/hazyhaar/chatmd/render"
)

// MIME is the media type of every Document.
const MIME = "text/markdown"

var (
	ErrContentNotFound       = errors.New("assemble: message content not found")
	ErrEmptyContent          = errors.New("assemble: message content is empty")
	ErrNoConversationContent = errors.New("assemble: no conversation content")
)

// Mode selects the filename policy of a single-message export.
type Mode string

const (
	// Normal names assistant exports by title and resets the counter.
	Normal Mode = "normal"
	// Research prefixes the next counter value.
	Research Mode = "research"
	// Skip names like Normal but leaves the counter alone.
	Skip Mode = "skip"
)

// ParseMode accepts the mode names above; "" means Normal.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Normal:
		return Normal, nil
	case Research:
		return Research, nil
	case Skip:
		return Skip, nil
	}
	return "", fmt.Errorf("assemble: unknown mode %q", s)
}

// Document is one export, ready for a sink.
type Document struct {
	// ID is stamped by the exporter before delivery.
	ID       string       `json:"id,omitempty"`
	Filename string       `json:"filename"`
	Content  string       `json:"content"`
	MIME     string       `json:"mime"`
	Title    string       `json:"title"`
	Role     adapter.Role `json:"role,omitempty"`
	Mode     Mode         `json:"mode,omitempty"`
	// Messages is the number of rendered segments.
	Messages int `json:"messages"`
}

// Segment is the rendered Markdown of one message.
type Segment struct {
	Index    int          `json:"index"`
	Role     adapter.Role `json:"role"`
	Markdown string       `json:"markdown"`
}

// Renderer turns a cleaned subtree into Markdown.
type Renderer interface {
	Render(n *html.Node) (string, error)
}

// Assembler wires locator, normalizer, renderer and naming state for one
// site.
type Assembler struct {
	loc    *locator.Locator
	norm   *normalize.Normalizer
	rend   Renderer
	naming *naming.State
	logger *slog.Logger
}

// New creates an Assembler. state may be nil, in which case research
// exports always number 1 and nothing is persisted.
func New(loc *locator.Locator, rend Renderer, state *naming.State, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		loc:    loc,
		norm:   normalize.New(loc.Site()),
		rend:   rend,
		naming: state,
		logger: logger,
	}
}

// Locator returns the locator the assembler reads messages with.
func (a *Assembler) Locator() *locator.Locator { return a.loc }

// Segment resolves, cleans and renders one message. idx feeds synthetic
// attachment names.
func (a *Assembler) Segment(msg locator.MessageNode, idx int) (Segment, error) {
	root := a.loc.ContentRoot(msg)
	if root == nil {
		if a.loc.HasContentMatch(msg) {
			return Segment{}, ErrEmptyContent
		}
		return Segment{}, ErrContentNotFound
	}
	md, err := a.rend.Render(a.norm.Normalize(root, idx))
	if err != nil {
		return Segment{}, err
	}
	md = strings.TrimSpace(md)
	if md == "" {
		return Segment{}, ErrEmptyContent
	}
	return Segment{Index: idx, Role: a.role(msg), Markdown: md}, nil
}

// Single exports one message. Naming side effects happen only once the
// content is known to be non-empty.
func (a *Assembler) Single(ctx context.Context, doc *html.Node, msg locator.MessageNode, mode Mode) (Document, error) {
	idx := a.loc.IndexOf(doc, msg)
	if idx < 0 {
		idx = 0
	}
	seg, err := a.Segment(msg, idx)
	if err != nil {
		return Document{}, err
	}

	site := a.loc.Site()
	title := Sanitize(site.Title(doc))
	request, analysis := site.Prefixes(doc)

	var filename string
	switch {
	case seg.Role == adapter.User:
		filename = request + "_" + title + ".md"
	case mode == Research:
		filename = fmt.Sprintf("%s_%d_%s.md", analysis, a.nextResearch(ctx), title)
	default:
		if mode == Normal && a.naming != nil {
			a.naming.Reset(ctx)
		}
		filename = title + ".md"
	}

	return Document{
		Filename: filename,
		Content:  seg.Markdown,
		MIME:     MIME,
		Title:    site.Title(doc),
		Role:     seg.Role,
		Mode:     mode,
		Messages: 1,
	}, nil
}

// Segments renders every located message, skipping unrenderable ones.
// Segments are numbered by rendered position. Only renderer failures are
// returned.
func (a *Assembler) Segments(doc *html.Node) ([]Segment, error) {
	var out []Segment
	for i, msg := range a.loc.ListMessages(doc) {
		seg, err := a.Segment(msg, len(out))
		if errors.Is(err, render.ErrRendererUnavailable) {
			return nil, err
		}
		if err != nil {
			a.logger.Debug("assemble: skip message", "index", i, "error", err)
			continue
		}
		out = append(out, seg)
	}
	return out, nil
}

// Conversation exports every renderable message under a level-1 heading.
func (a *Assembler) Conversation(doc *html.Node) (Document, error) {
	segs, err := a.Segments(doc)
	if err != nil {
		return Document{}, err
	}
	if len(segs) == 0 {
		return Document{}, ErrNoConversationContent
	}

	site := a.loc.Site()
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = "**" + site.Label(s.Role) + "**:\n\n" + s.Markdown
	}
	title := site.Title(doc)
	content := strings.TrimSpace("# " + title + "\n\n" + strings.Join(parts, "\n\n---\n\n"))

	return Document{
		Filename: Sanitize(title) + ".md",
		Content:  content,
		MIME:     MIME,
		Title:    title,
		Messages: len(segs),
	}, nil
}

func (a *Assembler) role(msg locator.MessageNode) adapter.Role {
	role, matched := a.loc.Site().DetectRole(msg.Node)
	if !matched {
		a.logger.Debug("assemble: no author rule matched, using default role", "role", role)
	}
	return role
}

func (a *Assembler) nextResearch(ctx context.Context) int {
	if a.naming == nil {
		return 1
	}
	return a.naming.Increment(ctx)
}
