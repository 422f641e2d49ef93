package normalize

import (
	"bytes"
	"strings"
	"testing"

	"github.com/JohannesKaufmann/dom"
	"golang.org/x/net/html"

	"github.com/hazyhaar/chatmd/adapter"
)

func parseRoot(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(`<body><div id="root">` + s + `</div></body>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	root := adapter.MustCompile("#root").Query(doc)
	if root == nil {
		t.Fatal("no #root")
	}
	return root
}

func render(t *testing.T, n *html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

func chatgpt() *Normalizer { return New(adapter.MustNew(adapter.ChatGPT())) }

func TestNormalize_DoesNotTouchInput(t *testing.T) {
	root := parseRoot(t, `<p>Hello</p><button class="chatmd-download-button">⬇</button><img src="">`)
	before := render(t, root)

	out := chatgpt().Normalize(root, 0)

	if after := render(t, root); after != before {
		t.Errorf("input changed:\nbefore %s\nafter  %s", before, after)
	}
	if out == root || out.Parent != nil {
		t.Error("expected a detached copy")
	}
}

func TestNormalize_RemovesChrome(t *testing.T) {
	root := parseRoot(t, `<p>keep</p>
		<button class="chatmd-download-button">⬇</button>
		<span class="chatmd-conversation-button">conv</span>
		<div role="button">toggle</div>
		<div data-testid="copy-turn-action-button">copy</div>
		<div data-testid="toast-root">toast</div>`)

	out := chatgpt().Normalize(root, 0)

	if got := strings.TrimSpace(dom.CollectText(out)); got != "keep" {
		t.Errorf("text after chrome removal: got %q, want %q", got, "keep")
	}
}

func TestNormalize_RepairsImages(t *testing.T) {
	root := parseRoot(t, `<img src="a.png"><img alt="  " data-src="b.png"><img alt="diagram" src="c.png">`)

	out := chatgpt().Normalize(root, 0)
	imgs := adapter.MustCompile("img").QueryAll(out)
	if len(imgs) != 3 {
		t.Fatalf("got %d images, want 3", len(imgs))
	}

	wantAlt := []string{"Image 1", "Image 2", "diagram"}
	wantSrc := []string{"a.png", "b.png", "c.png"}
	for i, img := range imgs {
		if got := dom.GetAttributeOr(img, "alt", ""); got != wantAlt[i] {
			t.Errorf("img %d alt: got %q, want %q", i, got, wantAlt[i])
		}
		if got := dom.GetAttributeOr(img, "src", ""); got != wantSrc[i] {
			t.Errorf("img %d src: got %q, want %q", i, got, wantSrc[i])
		}
	}
}

func TestNormalize_Attachments(t *testing.T) {
	root := parseRoot(t, `
		<a id="a" href="blob:https://chatgpt.com/1" download="report.pdf"><div class="font-semibold">ignored</div></a>
		<a id="c" download>no href</a>
		<div class="border-token-border">
			<a id="b" href="/files/2"><span class="truncate">notes.txt</span><svg></svg></a>
			<a id="d" href="/files/3"></a>
		</div>`)

	out := New(adapter.MustNew(adapter.ChatGPT())).Normalize(root, 2)

	want := map[string]string{
		"a": "📎 report.pdf",
		"b": "📎 notes.txt",
		"d": "📎 file_2_3",
	}
	for id, text := range want {
		el := adapter.MustCompile("#" + id).Query(out)
		if el == nil {
			t.Fatalf("#%s missing", id)
		}
		if got := dom.CollectText(el); got != text {
			t.Errorf("#%s text: got %q, want %q", id, got, text)
		}
		if dom.GetAttributeOr(el, LinkMarkerAttr, "") != "true" {
			t.Errorf("#%s: missing %s", id, LinkMarkerAttr)
		}
		if dom.GetAttributeOr(el, "href", "") == "" {
			t.Errorf("#%s: href dropped", id)
		}
	}

	c := adapter.MustCompile("#c").Query(out)
	if c == nil || dom.CollectText(c) != "no href" || dom.GetAttributeOr(c, LinkMarkerAttr, "") != "" {
		t.Error("anchor without href should be left alone")
	}
}

func TestNormalize_Nil(t *testing.T) {
	if got := chatgpt().Normalize(nil, 0); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}
