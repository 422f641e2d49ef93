package livedoc

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hazyhaar/chatmd/domwatch/mutation"
	"github.com/hazyhaar/chatmd/internal/htmlutil"
)

const page = `<html><head><title>T</title></head><body><main><p>a</p><!--c--><p>b<span>x</span>tail</p></main></body></html>`

func load(t *testing.T) *Doc {
	t.Helper()
	d := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := d.Load(mutation.Snapshot{ID: "s1", PageURL: "https://chatgpt.com/c/1", HTML: []byte(page)}); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestXPathResolve(t *testing.T) {
	d := load(t)
	cases := []string{
		"/html[1]",
		"/html[1]/body[1]/main[1]/p[2]",
		"/html[1]/body[1]/main[1]/p[2]/span[1]",
		"/html[1]/body[1]/main[1]/p[2]/text()[2]",
		"/html[1]/body[1]/main[1]/comment()[1]",
	}
	for _, path := range cases {
		n := Resolve(d.Root(), path)
		if n == nil {
			t.Errorf("Resolve(%q): nil", path)
			continue
		}
		if got := XPath(n); got != path {
			t.Errorf("XPath(Resolve(%q)): got %q", path, got)
		}
	}
	if got := Resolve(d.Root(), "/html[1]/body[1]/main[1]/p[2]/text()[2]").Data; got != "tail" {
		t.Errorf("text()[2]: got %q", got)
	}
	for _, bad := range []string{"", "html[1]", "/html[2]", "/html[1]/body[1]/p[0]", "/html[1]/body", "/html[1]/body[x]"} {
		if n := Resolve(d.Root(), bad); n != nil {
			t.Errorf("Resolve(%q): got %v, want nil", bad, n.Data)
		}
	}
}

func TestXPathDetached(t *testing.T) {
	d := load(t)
	clone := htmlutil.Clone(Resolve(d.Root(), "/html[1]/body[1]/main[1]/p[1]"))
	if got := XPath(clone); got != "" {
		t.Errorf("detached: got %q", got)
	}
}

func TestApplyChildren(t *testing.T) {
	d := load(t)
	added, err := d.Apply(mutation.Batch{Seq: 1, SnapshotRef: "s1", Records: []mutation.Record{
		{Op: mutation.OpChildren, XPath: "/html[1]/body[1]/main[1]", Tag: "main", HTML: `<div class="turn">hi</div>text<div class="turn">there</div>`},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(added) != 2 || added[0].Data != "div" {
		t.Fatalf("added: got %d", len(added))
	}
	main := Resolve(d.Root(), "/html[1]/body[1]/main[1]")
	want := `<main><div class="turn">hi</div>text<div class="turn">there</div></main>`
	if got := htmlutil.OuterHTML(main); got != want {
		t.Errorf("main:\ngot  %s\nwant %s", got, want)
	}
}

func TestApplyReplacedTwiceReportsOnlyAttached(t *testing.T) {
	d := load(t)
	added, err := d.Apply(mutation.Batch{Seq: 1, Records: []mutation.Record{
		{Op: mutation.OpChildren, XPath: "/html[1]/body[1]/main[1]", HTML: `<div>first</div>`},
		{Op: mutation.OpChildren, XPath: "/html[1]/body[1]/main[1]", HTML: `<section>second</section>`},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(added) != 1 || added[0].Data != "section" {
		t.Fatalf("added: got %v", added)
	}
}

func TestApplyTextAndAttributes(t *testing.T) {
	d := load(t)
	touched, err := d.Apply(mutation.Batch{Seq: 1, Records: []mutation.Record{
		{Op: mutation.OpText, XPath: "/html[1]/body[1]/main[1]/p[1]/text()[1]", Value: "streamed"},
		{Op: mutation.OpAttr, XPath: "/html[1]/body[1]/main[1]/p[2]", Name: "data-role", Value: "assistant"},
		{Op: mutation.OpAttr, XPath: "/html[1]/body[1]/main[1]/p[1]", Name: "class", Value: "gone"},
		{Op: mutation.OpAttrDel, XPath: "/html[1]/body[1]/main[1]/p[1]", Name: "class"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(touched) != 2 {
		t.Errorf("touched: got %d, want 2", len(touched))
	}
	main := Resolve(d.Root(), "/html[1]/body[1]/main[1]")
	want := `<main><p>streamed</p><!--c--><p data-role="assistant">b<span>x</span>tail</p></main>`
	if got := htmlutil.OuterHTML(main); got != want {
		t.Errorf("main:\ngot  %s\nwant %s", got, want)
	}
}

func TestApplyDrift(t *testing.T) {
	cases := []struct {
		name  string
		batch mutation.Batch
	}{
		{"missing node", mutation.Batch{Seq: 1, Records: []mutation.Record{{Op: mutation.OpAttr, XPath: "/html[1]/body[1]/nav[1]", Name: "a"}}}},
		{"text on element", mutation.Batch{Seq: 1, Records: []mutation.Record{{Op: mutation.OpText, XPath: "/html[1]/body[1]/main[1]", Value: "x"}}}},
		{"foreign snapshot", mutation.Batch{Seq: 1, SnapshotRef: "s0"}},
	}
	for _, tc := range cases {
		name, b := tc.name, tc.batch
		d := load(t)
		if _, err := d.Apply(b); !errors.Is(err, ErrDrift) {
			t.Errorf("%s: got %v, want ErrDrift", name, err)
		}
		if !d.Stale() {
			t.Errorf("%s: mirror not stale", name)
		}
		if _, err := d.Apply(mutation.Batch{Seq: 2}); !errors.Is(err, ErrStale) {
			t.Errorf("%s: next Apply got %v, want ErrStale", name, err)
		}
	}
}

func TestApplySeqGap(t *testing.T) {
	d := load(t)
	if _, err := d.Apply(mutation.Batch{Seq: 7}); err != nil {
		t.Fatalf("first batch after load: %v", err)
	}
	if _, err := d.Apply(mutation.Batch{Seq: 8}); err != nil {
		t.Fatalf("contiguous: %v", err)
	}
	if _, err := d.Apply(mutation.Batch{Seq: 10}); !errors.Is(err, ErrDrift) {
		t.Fatalf("gap: got %v, want ErrDrift", err)
	}
}

func TestDocResetAndReload(t *testing.T) {
	d := load(t)
	if _, err := d.Apply(mutation.Batch{Seq: 1, Records: []mutation.Record{{Op: mutation.OpDocReset}}}); err != nil {
		t.Fatal(err)
	}
	if !d.Stale() {
		t.Fatal("doc_reset did not mark the mirror stale")
	}
	if err := d.Load(mutation.Snapshot{ID: "s2", HTML: []byte(`<html><body><p>new</p></body></html>`)}); err != nil {
		t.Fatal(err)
	}
	if d.Stale() {
		t.Fatal("stale after Load")
	}
	if n := Resolve(d.Root(), "/html[1]/body[1]/p[1]/text()[1]"); n == nil || n.Data != "new" {
		t.Error("reloaded tree not visible")
	}
}

func TestApplyBeforeLoad(t *testing.T) {
	d := New(nil)
	if _, err := d.Apply(mutation.Batch{Seq: 1}); !errors.Is(err, ErrStale) {
		t.Fatalf("got %v, want ErrStale", err)
	}
}
