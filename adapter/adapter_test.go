package adapter

import (
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"
)

func parse(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func first(t *testing.T, doc *html.Node, sel string) *html.Node {
	t.Helper()
	n := MustCompile(sel).Query(doc)
	if n == nil {
		t.Fatalf("no element for %q", sel)
	}
	return n
}

func TestBuiltinsCompile(t *testing.T) {
	for _, name := range BuiltinNames() {
		a, err := Builtin(name)
		if err != nil {
			t.Fatalf("Builtin(%s): %v", name, err)
		}
		if _, err := New(a); err != nil {
			t.Errorf("New(%s): %v", name, err)
		}
	}
	if _, err := Builtin("claude"); err == nil {
		t.Error("Builtin(claude): expected error")
	}
}

func TestDetectRole_ChatGPT(t *testing.T) {
	site := MustNew(ChatGPT())
	doc := parse(t, `<body>
		<div id="a" data-message-author-role="user">hi</div>
		<div id="b" data-message-author-role="assistant">hello</div>
		<article id="c"><img alt="User avatar" src="u.png"><p>q</p></article>
		<article id="d" data-turn="user"><p>q</p></article>
		<article id="e"><p>no hints</p></article>
	</body>`)

	cases := []struct {
		id      string
		want    Role
		matched bool
	}{
		{"a", User, true},
		{"b", Assistant, true},
		{"c", User, true},
		{"d", User, true},
		{"e", Assistant, false},
	}
	for _, tc := range cases {
		got, matched := site.DetectRole(first(t, doc, "#"+tc.id))
		if got != tc.want || matched != tc.matched {
			t.Errorf("DetectRole(#%s): got (%s, %v), want (%s, %v)", tc.id, got, matched, tc.want, tc.matched)
		}
	}
}

func TestDetectRole_GeminiAncestor(t *testing.T) {
	site := MustNew(Gemini())
	doc := parse(t, `<body><user-query><div id="inner">q</div></user-query><model-response><p id="p">a</p></model-response></body>`)

	if got, _ := site.DetectRole(first(t, doc, "#inner")); got != User {
		t.Errorf("inner of user-query: got %s, want %s", got, User)
	}
	if got, _ := site.DetectRole(first(t, doc, "#p")); got != Assistant {
		t.Errorf("inner of model-response: got %s, want %s", got, Assistant)
	}
	if got, _ := site.DetectRole(first(t, doc, "user-query")); got != User {
		t.Errorf("user-query: got %s, want %s", got, User)
	}
}

func TestTitle(t *testing.T) {
	gpt := MustNew(ChatGPT())
	gem := MustNew(Gemini())

	cases := []struct {
		name string
		site *Site
		html string
		want string
	}{
		{"chatgpt title", gpt, `<html><head><title>  Plan   trip </title></head><body></body></html>`, "Plan trip"},
		{"chatgpt fallback", gpt, `<html><head></head><body></body></html>`, "Conversation with ChatGPT"},
		{"gemini conversation title", gem, `<html><head><title>Google Gemini</title></head><body><span class="conversation-title">Recipes</span></body></html>`, "Recipes"},
		{"gemini ignores product title", gem, `<html><head><title>Google Gemini</title></head><body></body></html>`, "Conversation with Gemini"},
		{"gemini document title", gem, `<html><head><title>Taxes</title></head><body></body></html>`, "Taxes"},
	}
	for _, tc := range cases {
		if got := tc.site.Title(parse(t, tc.html)); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestPrefixes(t *testing.T) {
	site := MustNew(Gemini())

	req, ana := site.Prefixes(parse(t, `<html lang="en"><body><button aria-label="Copy">x</button></body></html>`))
	if req != "request" || ana != "analysis" {
		t.Errorf("en: got %q/%q", req, ana)
	}

	req, ana = site.Prefixes(parse(t, `<html lang="ru-RU"><body></body></html>`))
	if req != "запрос" || ana != "анализ" {
		t.Errorf("ru lang: got %q/%q", req, ana)
	}

	req, _ = site.Prefixes(parse(t, `<html><body><button aria-label="Копировать">x</button></body></html>`))
	if req != "запрос" {
		t.Errorf("cyrillic label: got %q, want %q", req, "запрос")
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := ChatGPT().Retry
	cases := map[int]time.Duration{
		0:  0,
		3:  0,
		4:  50 * time.Millisecond,
		7:  50 * time.Millisecond,
		8:  100 * time.Millisecond,
		11: 100 * time.Millisecond,
	}
	for attempt, want := range cases {
		if got := p.Delay(attempt); got != want {
			t.Errorf("Delay(%d): got %v, want %v", attempt, got, want)
		}
	}
	if got := (RetryPolicy{}).Delay(3); got != 0 {
		t.Errorf("empty policy: got %v, want 0", got)
	}
}

func TestAffordanceInFollowingSibling(t *testing.T) {
	site := MustNew(ChatGPT())
	doc := parse(t, `<body>
		<div class="turn">
			<div data-message-author-role="assistant" id="m"><div class="markdown">a</div></div>
		</div>
		<div class="actions"><button data-testid="copy-turn-action-button" id="copy">c</button></div>
	</body>`)

	msg := first(t, doc, "#m")
	got := site.Affordance(msg)
	if got == nil || got != first(t, doc, "#copy") {
		t.Fatalf("Affordance: got %v, want #copy", got)
	}

	lone := parse(t, `<body><div data-message-author-role="assistant" id="m">a</div></body>`)
	if got := site.Affordance(first(t, lone, "#m")); got != nil {
		t.Errorf("Affordance without copy button: got %v, want nil", got)
	}
}

func TestParseWithBase(t *testing.T) {
	a, err := Parse([]byte(`
base: chatgpt
name: chatgpt-enterprise
labels:
  assistant: Copilot
retry:
  max_retries: 3
  steps:
    - delay: 250ms
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Name != "chatgpt-enterprise" {
		t.Errorf("Name: got %q", a.Name)
	}
	if a.Labels.Assistant != "Copilot" || a.Labels.User != "User" {
		t.Errorf("Labels: got %+v", a.Labels)
	}
	if len(a.MessageSelectors) != len(ChatGPT().MessageSelectors) {
		t.Errorf("MessageSelectors: got %d, want inherited %d", len(a.MessageSelectors), len(ChatGPT().MessageSelectors))
	}
	if a.Retry.MaxRetries != 3 || a.Retry.Delay(0) != 250*time.Millisecond {
		t.Errorf("Retry: got %+v", a.Retry)
	}
	if _, err := New(a); err != nil {
		t.Errorf("New: %v", err)
	}
}

func TestNewRejectsBadSelector(t *testing.T) {
	a := Adapter{
		Name:             "broken",
		MessageSelectors: []string{"div[["},
		Content:          []ContentRule{{Selectors: []string{"p"}}},
	}
	if _, err := New(a); err == nil {
		t.Error("expected selector error")
	}

	a = Adapter{Name: "empty"}
	if _, err := New(a); err == nil {
		t.Error("expected missing selectors error")
	}
}
