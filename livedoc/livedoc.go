// Package livedoc keeps an in-process copy of a watched page. A snapshot
// seeds the tree, mutation batches keep it current, and the elements each
// batch adds are reported back so the watcher can look for new messages.
package livedoc

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chatmd/domwatch/mutation"
	"github.com/hazyhaar/chatmd/internal/htmlutil"
)

var (
	// ErrStale is returned while the mirror waits for a snapshot.
	ErrStale = errors.New("livedoc: mirror is stale")
	// ErrDrift means a batch no longer lines up with the mirror. The
	// mirror turns stale.
	ErrDrift = errors.New("livedoc: mirror drifted from page")
)

// Doc is the mirror of one page. It is not safe for concurrent use; the
// export engine owns it.
type Doc struct {
	root       *html.Node
	pageURL    string
	snapshotID string
	lastSeq    uint64
	stale      bool
	logger     *slog.Logger
}

// New returns an empty, stale mirror.
func New(logger *slog.Logger) *Doc {
	if logger == nil {
		logger = slog.Default()
	}
	return &Doc{stale: true, logger: logger}
}

// Load replaces the tree with the snapshot's document.
func (d *Doc) Load(snap mutation.Snapshot) error {
	root, err := html.Parse(bytes.NewReader(snap.HTML))
	if err != nil {
		return fmt.Errorf("livedoc: parse snapshot: %w", err)
	}
	d.root = root
	d.pageURL = snap.PageURL
	d.snapshotID = snap.ID
	d.lastSeq = 0
	d.stale = false
	d.logger.Debug("livedoc: snapshot loaded", "page_url", snap.PageURL, "snapshot", snap.ID, "size", len(snap.HTML))
	return nil
}

// Root returns the document node, nil before the first Load.
func (d *Doc) Root() *html.Node { return d.root }

// PageURL returns the URL of the last snapshot.
func (d *Doc) PageURL() string { return d.pageURL }

// Stale reports whether the mirror needs a fresh snapshot.
func (d *Doc) Stale() bool { return d.stale }

// Apply replays b on the tree and returns the roots of the subtrees it
// added or whose attributes changed, still attached after the whole batch.
// On drift the records already applied stay applied and the mirror is
// marked stale.
func (d *Doc) Apply(b mutation.Batch) ([]*html.Node, error) {
	if d.stale || d.root == nil {
		return nil, ErrStale
	}
	if b.SnapshotRef != "" && b.SnapshotRef != d.snapshotID {
		return nil, d.drift(fmt.Errorf("livedoc: batch %d built on snapshot %s: %w", b.Seq, b.SnapshotRef, ErrDrift))
	}
	if d.lastSeq != 0 && b.Seq != d.lastSeq+1 {
		return nil, d.drift(fmt.Errorf("livedoc: batch %d after %d: %w", b.Seq, d.lastSeq, ErrDrift))
	}
	d.lastSeq = b.Seq

	var touched []*html.Node
	for _, r := range b.Records {
		if r.Op == mutation.OpDocReset {
			d.stale = true
			d.logger.Debug("livedoc: document reset, awaiting snapshot", "page_url", d.pageURL)
			return nil, nil
		}
		nodes, err := d.apply(r)
		if err != nil {
			return nil, d.drift(fmt.Errorf("livedoc: %s %s: %w", r.Op, r.XPath, err))
		}
		touched = append(touched, nodes...)
	}

	out := touched[:0]
	for _, n := range touched {
		if d.attached(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (d *Doc) apply(r mutation.Record) ([]*html.Node, error) {
	n := Resolve(d.root, r.XPath)
	if n == nil {
		return nil, ErrDrift
	}
	switch r.Op {
	case mutation.OpChildren:
		if n.Type != html.ElementNode {
			return nil, ErrDrift
		}
		nodes, err := htmlutil.ParseFragmentIn(r.HTML, n)
		if err != nil {
			return nil, err
		}
		htmlutil.RemoveChildren(n)
		var added []*html.Node
		for _, c := range nodes {
			n.AppendChild(c)
			if c.Type == html.ElementNode {
				added = append(added, c)
			}
		}
		return added, nil

	case mutation.OpText:
		if n.Type != html.TextNode {
			return nil, ErrDrift
		}
		n.Data = r.Value
		return nil, nil

	case mutation.OpAttr:
		if n.Type != html.ElementNode {
			return nil, ErrDrift
		}
		htmlutil.SetAttr(n, r.Name, r.Value)
		return []*html.Node{n}, nil

	case mutation.OpAttrDel:
		if n.Type != html.ElementNode {
			return nil, ErrDrift
		}
		htmlutil.RemoveAttr(n, r.Name)
		return nil, nil
	}
	return nil, fmt.Errorf("unknown op %q", r.Op)
}

func (d *Doc) drift(err error) error {
	d.stale = true
	d.logger.Warn("livedoc: drift, resync needed", "page_url", d.pageURL, "error", err)
	return err
}

func (d *Doc) attached(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == d.root {
			return true
		}
	}
	return false
}
