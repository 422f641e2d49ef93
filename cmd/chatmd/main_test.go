package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/goleak"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRun_MissingPageLeavesNothingRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	err := run(context.Background(), discard, options{
		htmlPath: filepath.Join(t.TempDir(), "missing.html"),
		listen:   "127.0.0.1:0",
		out:      t.TempDir(),
		index:    -1,
	})
	if err == nil || !os.IsNotExist(err) {
		t.Fatalf("got %v, want a not-exist error", err)
	}
}

func TestRun_ExportOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	page := filepath.Join(dir, "saved.html")
	if err := os.WriteFile(page, []byte(`<html><head><title>Saved</title></head><body>
		<div data-message-author-role="user"><div class="markdown">Hi</div></div>
		<div data-message-author-role="assistant"><div class="markdown">Hello</div></div>
	</body></html>`), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")

	if err := run(context.Background(), discard, options{htmlPath: page, out: out, index: -1}); err != nil {
		t.Fatalf("run: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "Saved.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# Saved\n") || !strings.Contains(string(data), "Hello") {
		t.Errorf("export: got %q", data)
	}
}

func TestLoadConfig_MCPHTTPNeedsListen(t *testing.T) {
	if _, err := loadConfig(options{mcp: "http"}); err == nil {
		t.Error("expected error for -mcp http without -listen")
	}
	cfg, err := loadConfig(options{out: "-", pageURL: "https://chatgpt.com/c/1", headful: true})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Watch.URL != "https://chatgpt.com/c/1" || cfg.Browser.Mode != "headful" {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if n := len(cfg.Sinks); n != 1 || cfg.Sinks[0].Type != "stdout" {
		t.Errorf("sinks: got %+v", cfg.Sinks)
	}
}
