package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("watch:\n  url: https://chatgpt.com/c/abc\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Browser.Mode != "headless" || cfg.Browser.MemoryLimit != 1<<30 {
		t.Errorf("browser defaults: %+v", cfg.Browser)
	}
	if cfg.Watch.Debounce.Window != 250*time.Millisecond || cfg.Watch.Debounce.MaxBuffer != 1000 {
		t.Errorf("debounce defaults: %+v", cfg.Watch.Debounce)
	}
	if cfg.Watch.SnapshotInterval != 30*time.Minute {
		t.Errorf("snapshot interval: got %v", cfg.Watch.SnapshotInterval)
	}
	if cfg.Adapter.Name != "chatgpt" {
		t.Errorf("adapter: got %q", cfg.Adapter.Name)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatmd.yaml")
	src := `
browser:
  mode: headful
  user_data_dir: /tmp/profile
  resource_blocking: [images, fonts]
watch:
  url: https://gemini.google.com/app/1
  debounce:
    window: 100ms
adapter:
  name: gemini
naming:
  db: state.db
sinks:
  - type: dir
    path: out
  - type: webhook
    url: http://localhost:9000/hook
server:
  listen: ":8080"
  mcp: http
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Browser.Mode != "headful" || len(cfg.Browser.ResourceBlocking) != 2 {
		t.Errorf("browser: %+v", cfg.Browser)
	}
	if cfg.Watch.Debounce.Window != 100*time.Millisecond {
		t.Errorf("window: got %v", cfg.Watch.Debounce.Window)
	}
	if wh := cfg.Sinks[1]; wh.Retries != 3 || wh.Backoff != time.Second {
		t.Errorf("webhook defaults: %+v", wh)
	}

	sess := cfg.Session(nil)
	if sess.Mode != "headful" || sess.DebounceWindow != 100*time.Millisecond || sess.UserDataDir != "/tmp/profile" {
		t.Errorf("session config: %+v", sess)
	}

	site, err := cfg.Adapter.Site()
	if err != nil {
		t.Fatal(err)
	}
	if site.Name() != "gemini" {
		t.Errorf("site: got %q", site.Name())
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"mode":        "browser:\n  mode: invisible\n",
		"mcp":         "server:\n  mcp: carrier-pigeon\n",
		"mcp no addr": "server:\n  mcp: http\n",
		"sink type":   "sinks:\n  - type: s3\n",
		"dir no path": "sinks:\n  - type: dir\n",
		"syntax":      "browser: [\n",
	}
	for name, src := range cases {
		if _, err := Parse([]byte(src)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestAdapter_Inline(t *testing.T) {
	cfg, err := Parse([]byte(`
adapter:
  inline:
    base: chatgpt
    name: my-chatgpt
`))
	if err != nil {
		t.Fatal(err)
	}
	site, err := cfg.Adapter.Site()
	if err != nil {
		t.Fatal(err)
	}
	if site.Name() != "my-chatgpt" {
		t.Errorf("got %q", site.Name())
	}
}

func TestBuildSinks(t *testing.T) {
	dir := t.TempDir()
	r, err := BuildSinks([]SinkConfig{
		{Type: "dir", Path: filepath.Join(dir, "out")},
		{Type: "jsonl"},
		{Type: "webhook", URL: "http://127.0.0.1:1/hook", Retries: 1, Backoff: time.Millisecond, Rate: 2},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.Len() != 3 {
		t.Errorf("Len: got %d", r.Len())
	}
	if _, err := os.Stat(filepath.Join(dir, "out")); err != nil {
		t.Errorf("dir sink did not create its directory: %v", err)
	}

	r, err = BuildSinks(nil, nil)
	if err != nil || r.Len() != 1 {
		t.Errorf("default sinks: %v %v", r, err)
	}

	_, err = BuildSinks([]SinkConfig{{Type: "ftp"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "ftp") {
		t.Errorf("unknown type: got %v", err)
	}
}

func TestOpenStore(t *testing.T) {
	mem, err := NamingConfig{}.OpenStore()
	if err != nil {
		t.Fatal(err)
	}
	mem.Close()

	db, err := NamingConfig{DB: filepath.Join(t.TempDir(), "state.db")}.OpenStore()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
}
