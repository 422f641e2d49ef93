package exporter

import (
	"context"
	"errors"
	"strings"

	"github.com/JohannesKaufmann/dom"

	"github.com/hazyhaar/chatmd/adapter"
	"github.com/hazyhaar/chatmd/assemble"
	"github.com/hazyhaar/chatmd/domwatch"
)

// CommandDownloadConversation exports the whole conversation.
const CommandDownloadConversation = "download-conversation"

// Command is a request from outside the page, in the shape the browser
// extension runtime sent them.
type Command struct {
	Type string `json:"type"`
}

// CommandResult answers a Command.
type CommandResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	// Document is the export, when one was made.
	Document *assemble.Document `json:"document,omitempty"`
}

// Do runs a command. The type is either the bare name or the name behind
// a "<site>-downloader:" prefix for the site in force.
func (e *Engine) Do(ctx context.Context, cmd Command) CommandResult {
	name := cmd.Type
	if prefix, rest, ok := strings.Cut(name, ":"); ok {
		if prefix != e.Site().Name()+"-downloader" {
			return CommandResult{Error: "unknown command " + cmd.Type}
		}
		name = rest
	}
	switch name {
	case CommandDownloadConversation:
		doc, err := e.ExportConversation(ctx)
		if err != nil {
			return CommandResult{Error: err.Error()}
		}
		return CommandResult{Success: true, Document: &doc}
	}
	return CommandResult{Error: "unknown command " + cmd.Type}
}

// ExportConversation exports every renderable message and delivers the
// document to the sink.
func (e *Engine) ExportConversation(ctx context.Context) (assemble.Document, error) {
	var doc assemble.Document
	var err error
	if derr := e.do(ctx, func(ctx context.Context) {
		doc, err = e.exportConversation(ctx)
	}); derr != nil {
		return assemble.Document{}, derr
	}
	return doc, err
}

// ExportMessage exports the message at index, in document order.
func (e *Engine) ExportMessage(ctx context.Context, index int, mode assemble.Mode) (assemble.Document, error) {
	var doc assemble.Document
	var err error
	if derr := e.do(ctx, func(ctx context.Context) {
		root := e.doc.Root()
		if root == nil {
			err = ErrNoDocument
			return
		}
		msgs := e.loc.ListMessages(root)
		if index < 0 || index >= len(msgs) {
			err = ErrNoMessage
			return
		}
		doc, err = e.exportSingle(ctx, root, msgs[index], mode)
	}); derr != nil {
		return assemble.Document{}, derr
	}
	return doc, err
}

// ExportControl exports the message owning an injected control, as a
// click on it would.
func (e *Engine) ExportControl(ctx context.Context, control string, mode assemble.Mode) (assemble.Document, error) {
	var doc assemble.Document
	var err error
	if derr := e.do(ctx, func(ctx context.Context) {
		doc, err = e.exportControl(ctx, control, mode)
	}); derr != nil {
		return assemble.Document{}, derr
	}
	return doc, err
}

// MessageInfo describes one located message.
type MessageInfo struct {
	Index int          `json:"index"`
	Role  adapter.Role `json:"role"`
	// Control is the ID of the bound export control, if any.
	Control  string `json:"control,omitempty"`
	Markdown string `json:"markdown,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Messages lists the located messages with their rendered Markdown.
// Unrenderable messages carry an Error instead.
func (e *Engine) Messages(ctx context.Context) ([]MessageInfo, error) {
	var out []MessageInfo
	var err error
	if derr := e.do(ctx, func(context.Context) {
		root := e.doc.Root()
		if root == nil {
			err = ErrNoDocument
			return
		}
		for i, msg := range e.loc.ListMessages(root) {
			info := MessageInfo{
				Index:   i,
				Role:    msg.Role(),
				Control: dom.GetAttributeOr(msg.Node, domwatch.MessageAttr, ""),
			}
			seg, serr := e.asm.Segment(msg, i)
			if serr != nil {
				e.checkFatal(serr)
				info.Error = serr.Error()
			} else {
				info.Markdown = seg.Markdown
			}
			out = append(out, info)
		}
	}); derr != nil {
		return nil, derr
	}
	return out, err
}

// SetSite swaps the adapter. Pending readiness checks are dropped and the
// current document is rescanned.
func (e *Engine) SetSite(ctx context.Context, site *adapter.Site) error {
	if site == nil {
		return errors.New("exporter: nil site")
	}
	return e.do(ctx, func(ctx context.Context) {
		e.setSite(site)
		e.logger.Info("exporter: adapter replaced", "name", site.Name())
		if root := e.doc.Root(); root != nil {
			e.watcher.Scan(ctx, root, e.cfg.Now())
			e.runChecks(ctx)
		}
	})
}
