package htmlutil

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func body(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader("<html><head></head><body>" + src + "</body></html>"))
	if err != nil {
		t.Fatal(err)
	}
	return doc.FirstChild.LastChild
}

func TestCloneIsDetached(t *testing.T) {
	b := body(t, `<p class="x">a<b>b</b></p>`)
	p := b.FirstChild
	c := Clone(p)
	if c.Parent != nil {
		t.Fatal("clone has a parent")
	}
	SetAttr(c, "class", "y")
	c.FirstChild.Data = "changed"
	if got := OuterHTML(p); got != `<p class="x">a<b>b</b></p>` {
		t.Errorf("original changed: %s", got)
	}
	if got := OuterHTML(c); got != `<p class="y">changed<b>b</b></p>` {
		t.Errorf("clone: %s", got)
	}
}

func TestAttrHelpers(t *testing.T) {
	n := &html.Node{Type: html.ElementNode, Data: "a"}
	SetAttr(n, "href", "/x")
	SetAttr(n, "href", "/y")
	if len(n.Attr) != 1 || n.Attr[0].Val != "/y" {
		t.Fatalf("SetAttr: got %+v", n.Attr)
	}
	RemoveAttr(n, "href")
	RemoveAttr(n, "missing")
	if len(n.Attr) != 0 {
		t.Errorf("RemoveAttr: got %+v", n.Attr)
	}
}

func TestParseFragmentIn(t *testing.T) {
	b := body(t, `<table><tbody></tbody></table>`)
	tbody := b.FirstChild.FirstChild
	nodes, err := ParseFragmentIn(`<tr><td>1</td></tr>`, tbody)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || nodes[0].Data != "tr" {
		t.Fatalf("got %d nodes, first %q", len(nodes), nodes[0].Data)
	}

	RemoveChildren(b)
	if b.FirstChild != nil {
		t.Error("RemoveChildren left children")
	}

	custom := &html.Node{Type: html.ElementNode, Data: "message-content"}
	nodes, err = ParseFragmentIn(`<p>hi</p>`, custom)
	if err != nil || len(nodes) != 1 || nodes[0].Data != "p" {
		t.Fatalf("custom context: %v %d", err, len(nodes))
	}
}
