package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"golang.org/x/net/html"

	"github.com/hazyhaar/chatmd/adapter"
	"github.com/hazyhaar/chatmd/assemble"
	"github.com/hazyhaar/chatmd/domwatch"
	"github.com/hazyhaar/chatmd/domwatch/mutation"
	"github.com/hazyhaar/chatmd/sink"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const page = `<html><head><title>Demo</title></head><body><main>
<div data-message-author-role="user"><div class="markdown">Question?</div><button data-testid="copy-turn-action-button">Copy</button></div>
<div data-message-author-role="assistant"><div class="markdown">Answer <strong>here</strong></div><button data-testid="copy-turn-action-button">Copy</button></div>
</main><form data-type="unified-composer"><textarea></textarea></form></body></html>`

type harness struct {
	e    *Engine
	docs chan assemble.Document
}

func seq(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func start(t *testing.T, site adapter.Adapter, src Source) harness {
	t.Helper()
	docs := make(chan assemble.Document, 16)
	e, err := New(Config{
		Site: adapter.MustNew(site),
		Sink: sink.Func(func(_ context.Context, d assemble.Document) error {
			docs <- d
			return nil
		}),
		ExportIDs: seq("exp_"),
		Logger:    quiet,
	})
	if err != nil {
		t.Fatal(err)
	}
	if src != nil {
		e.Attach(src)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errc; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	return harness{e: e, docs: docs}
}

func (h harness) load(t *testing.T, src string) {
	t.Helper()
	if err := h.e.LoadHTML(context.Background(), "https://chatgpt.com/c/1", []byte(src)); err != nil {
		t.Fatal(err)
	}
}

func (h harness) next(t *testing.T) assemble.Document {
	t.Helper()
	select {
	case d := <-h.docs:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no document delivered")
	}
	return assemble.Document{}
}

func (h harness) messages(t *testing.T) []MessageInfo {
	t.Helper()
	msgs, err := h.e.Messages(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return msgs
}

func TestEngine_ConversationExport(t *testing.T) {
	h := start(t, adapter.ChatGPT(), nil)
	h.load(t, page)

	doc, err := h.e.ExportConversation(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := "# Demo\n\n**User**:\n\nQuestion?\n\n---\n\n**ChatGPT**:\n\nAnswer **here**"
	if doc.Content != want {
		t.Errorf("content:\ngot  %q\nwant %q", doc.Content, want)
	}
	if doc.ID != "exp_1" || doc.Filename != "Demo.md" {
		t.Errorf("document: %+v", doc)
	}
	if got := h.next(t); got.ID != doc.ID {
		t.Errorf("sink got %q, want %q", got.ID, doc.ID)
	}
}

func TestEngine_BindsOnLoad(t *testing.T) {
	h := start(t, adapter.ChatGPT(), nil)
	h.load(t, page)

	msgs := h.messages(t)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	for _, m := range msgs {
		if m.Control == "" {
			t.Errorf("message %d not bound", m.Index)
		}
	}
	if msgs[0].Role != adapter.User || msgs[1].Role != adapter.Assistant {
		t.Errorf("roles: %v %v", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Markdown != "Answer **here**" {
		t.Errorf("markdown: got %q", msgs[1].Markdown)
	}
}

func TestEngine_ClickModes(t *testing.T) {
	ctx := context.Background()
	h := start(t, adapter.ChatGPT(), nil)
	h.load(t, page)
	msgs := h.messages(t)
	user, assistant := msgs[0].Control, msgs[1].Control

	clicks := []struct {
		click mutation.Click
		want  string
	}{
		{mutation.Click{Control: assistant, Ctrl: true}, "analysis_1_Demo.md"},
		{mutation.Click{Control: assistant, Meta: true, Shift: true}, "analysis_2_Demo.md"},
		{mutation.Click{Control: assistant, Shift: true}, "Demo.md"},
		{mutation.Click{Control: assistant, Ctrl: true}, "analysis_3_Demo.md"},
		{mutation.Click{Control: assistant}, "Demo.md"},
		{mutation.Click{Control: assistant, Ctrl: true}, "analysis_1_Demo.md"},
		{mutation.Click{Control: user, Ctrl: true}, "request_Demo.md"},
		{mutation.Click{Kind: mutation.ClickConversation, Control: "any"}, "Demo.md"},
	}
	for i, c := range clicks {
		if c.click.Kind == "" {
			c.click.Kind = mutation.ClickMessage
		}
		if err := h.e.Click(ctx, c.click); err != nil {
			t.Fatal(err)
		}
		if got := h.next(t); got.Filename != c.want {
			t.Errorf("click #%d: got %q, want %q", i, got.Filename, c.want)
		}
	}
}

func TestEngine_UnknownControl(t *testing.T) {
	h := start(t, adapter.ChatGPT(), nil)
	h.load(t, page)
	_, err := h.e.ExportControl(context.Background(), "nope", assemble.Normal)
	if !errors.Is(err, ErrUnknownControl) {
		t.Errorf("got %v, want ErrUnknownControl", err)
	}
}

func TestEngine_ExportMessage(t *testing.T) {
	ctx := context.Background()
	h := start(t, adapter.ChatGPT(), nil)

	if _, err := h.e.ExportMessage(ctx, 0, assemble.Normal); !errors.Is(err, ErrNoDocument) {
		t.Errorf("before load: got %v", err)
	}

	h.load(t, `<html><head><title>T</title></head><body>
		<div data-message-author-role="assistant"><div class="markdown">  </div></div>
		<div data-message-author-role="assistant"><div class="markdown">ok</div></div>
	</body></html>`)

	if _, err := h.e.ExportMessage(ctx, 0, assemble.Normal); !errors.Is(err, assemble.ErrEmptyContent) {
		t.Errorf("blank: got %v, want ErrEmptyContent", err)
	}
	if _, err := h.e.ExportMessage(ctx, 5, assemble.Normal); !errors.Is(err, ErrNoMessage) {
		t.Errorf("range: got %v, want ErrNoMessage", err)
	}
	doc, err := h.e.ExportMessage(ctx, 1, assemble.Research)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Filename != "analysis_1_T.md" || doc.Content != "ok" {
		t.Errorf("got %+v", doc)
	}
}

func TestEngine_Commands(t *testing.T) {
	ctx := context.Background()
	h := start(t, adapter.ChatGPT(), nil)

	res := h.e.Do(ctx, Command{Type: CommandDownloadConversation})
	if res.Success || !strings.Contains(res.Error, "no document") {
		t.Errorf("before load: %+v", res)
	}

	h.load(t, page)
	for _, typ := range []string{"download-conversation", "chatgpt-downloader:download-conversation"} {
		res := h.e.Do(ctx, Command{Type: typ})
		if !res.Success || res.Error != "" || res.Document == nil {
			t.Errorf("%s: %+v", typ, res)
		}
		h.next(t)
	}
	for _, typ := range []string{"gemini-downloader:download-conversation", "reload", ""} {
		if res := h.e.Do(ctx, Command{Type: typ}); res.Success {
			t.Errorf("%q: expected failure", typ)
		}
	}
}

func TestEngine_BatchFindsNewMessages(t *testing.T) {
	ctx := context.Background()
	h := start(t, adapter.ChatGPT(), nil)
	h.load(t, `<html><head><title>Live</title></head><body><main>
<div data-message-author-role="user"><div class="markdown">Hi</div><button data-testid="copy-turn-action-button">Copy</button></div>
</main></body></html>`)

	err := h.e.Batch(ctx, mutation.Batch{Seq: 1, Records: []mutation.Record{{
		Op:    mutation.OpChildren,
		XPath: "/html[1]/body[1]/main[1]",
		Tag:   "main",
		HTML: `<div data-message-author-role="user"><div class="markdown">Hi</div><button data-testid="copy-turn-action-button">Copy</button></div>` +
			`<div data-message-author-role="assistant"><div class="markdown">Streaming done</div><button data-testid="copy-turn-action-button">Copy</button></div>`,
	}}})
	if err != nil {
		t.Fatal(err)
	}

	msgs := h.messages(t)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[1].Control == "" || msgs[1].Markdown != "Streaming done" {
		t.Errorf("new message: %+v", msgs[1])
	}
}

type fakeSource struct {
	resyncs chan struct{}
	binder  domwatch.Binder
}

func (f *fakeSource) Binder() domwatch.Binder { return f.binder }
func (f *fakeSource) Resync()                 { f.resyncs <- struct{}{} }

type recordingBinder struct {
	mu  sync.Mutex
	ids []string
}

func (b *recordingBinder) BindMessage(_ context.Context, _, _ *html.Node, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids = append(b.ids, id)
	return nil
}

func (b *recordingBinder) BindConversation(context.Context, *html.Node, string) error { return nil }

func TestEngine_DriftAsksForSnapshot(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{resyncs: make(chan struct{}, 4), binder: &recordingBinder{}}
	h := start(t, adapter.ChatGPT(), src)
	h.load(t, page)

	text := func(seq uint64) mutation.Batch {
		return mutation.Batch{Seq: seq, Records: []mutation.Record{{
			Op: mutation.OpAttr, XPath: "/html[1]/body[1]/main[1]", Name: "class", Value: "x",
		}}}
	}
	h.e.Batch(ctx, text(1))
	h.e.Batch(ctx, text(3))

	select {
	case <-src.resyncs:
	case <-time.After(2 * time.Second):
		t.Fatal("no resync after sequence gap")
	}
}

func TestEngine_AttachedBinderIsUsed(t *testing.T) {
	b := &recordingBinder{}
	src := &fakeSource{resyncs: make(chan struct{}, 1), binder: b}
	h := start(t, adapter.ChatGPT(), src)
	h.load(t, page)
	h.messages(t)

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ids) != 2 {
		t.Errorf("bound through source: got %v", b.ids)
	}
}

func TestEngine_SetSite(t *testing.T) {
	ctx := context.Background()
	h := start(t, adapter.ChatGPT(), nil)
	h.load(t, page)

	a := adapter.ChatGPT()
	a.Name = "renamed"
	a.Labels = adapter.Labels{User: "Me", Assistant: "Bot"}
	if err := h.e.SetSite(ctx, adapter.MustNew(a)); err != nil {
		t.Fatal(err)
	}
	if h.e.Site().Name() != "renamed" {
		t.Errorf("Site: got %q", h.e.Site().Name())
	}
	doc, err := h.e.ExportConversation(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc.Content, "**Bot**:") {
		t.Errorf("labels not applied: %q", doc.Content)
	}
	if res := h.e.Do(ctx, Command{Type: "renamed-downloader:download-conversation"}); !res.Success {
		t.Errorf("prefixed command for new site: %+v", res)
	}
}

func TestEngine_Closed(t *testing.T) {
	e, err := New(Config{Site: adapter.MustNew(adapter.ChatGPT()), Logger: quiet})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- e.Run(ctx) }()
	cancel()
	<-done

	if _, err := e.ExportConversation(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("after stop: got %v, want ErrClosed", err)
	}
	if err := e.Run(context.Background()); err == nil {
		t.Error("second Run should fail")
	}
}

func TestNew_RequiresSite(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without a site")
	}
}

func TestModeFor(t *testing.T) {
	cases := []struct {
		c    mutation.Click
		want assemble.Mode
	}{
		{mutation.Click{}, assemble.Normal},
		{mutation.Click{Ctrl: true}, assemble.Research},
		{mutation.Click{Meta: true}, assemble.Research},
		{mutation.Click{Shift: true}, assemble.Skip},
		{mutation.Click{Ctrl: true, Shift: true}, assemble.Research},
	}
	for _, tc := range cases {
		if got := ModeFor(tc.c); got != tc.want {
			t.Errorf("ModeFor(%+v): got %q, want %q", tc.c, got, tc.want)
		}
	}
}
