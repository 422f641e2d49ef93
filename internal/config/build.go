package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/chatmd/adapter"
	"github.com/hazyhaar/chatmd/domwatch"
	"github.com/hazyhaar/chatmd/kvstore"
	"github.com/hazyhaar/chatmd/naming"
	"github.com/hazyhaar/chatmd/sink"
)

// Site compiles the configured adapter.
func (c AdapterConfig) Site() (*adapter.Site, error) {
	if c.Inline.Kind != 0 {
		data, err := yaml.Marshal(&c.Inline)
		if err != nil {
			return nil, fmt.Errorf("config: adapter.inline: %w", err)
		}
		a, err := adapter.Parse(data)
		if err != nil {
			return nil, err
		}
		return adapter.New(a)
	}
	if c.File != "" {
		return adapter.LoadFile(c.File)
	}
	return adapter.Resolve(c.Name)
}

// Session returns the live-browser settings for a domwatch Session.
func (c *Config) Session(logger *slog.Logger) domwatch.Config {
	return domwatch.Config{
		RemoteURL:        c.Browser.Remote,
		Attach:           c.Browser.Attach,
		UserDataDir:      c.Browser.UserDataDir,
		Mode:             c.Browser.Mode,
		ResourceBlocking: c.Browser.ResourceBlocking,
		MemoryLimit:      c.Browser.MemoryLimit,
		RecycleInterval:  c.Browser.RecycleInterval,
		DebounceWindow:   c.Watch.Debounce.Window,
		DebounceMax:      c.Watch.Debounce.MaxBuffer,
		SnapshotInterval: c.Watch.SnapshotInterval,
		Logger:           logger,
	}
}

// Store is a naming.KV that may hold resources.
type Store interface {
	naming.KV
	Close() error
}

// OpenStore opens the counter store: SQLite when naming.db is set,
// memory otherwise.
func (c NamingConfig) OpenStore() (Store, error) {
	if c.DB == "" {
		return kvstore.NewMemory(), nil
	}
	return kvstore.OpenSQLite(c.DB)
}

// BuildSinks creates one sink per entry, behind a Router. With no entries
// documents go to stdout as Markdown.
func BuildSinks(cfgs []SinkConfig, logger *slog.Logger) (*sink.Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfgs) == 0 {
		return sink.NewRouter(logger, sink.NewStdout(os.Stdout)), nil
	}
	var sinks []sink.Sink
	for i, sc := range cfgs {
		switch sc.Type {
		case "dir":
			d, err := sink.NewDir(sc.Path, logger)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, d)
		case "stdout":
			sinks = append(sinks, sink.NewStdout(os.Stdout))
		case "jsonl":
			sinks = append(sinks, sink.NewJSONLines(os.Stdout))
		case "webhook":
			opts := []sink.WebhookOption{
				sink.WithWebhookRetries(sc.Retries),
				sink.WithWebhookBackoff(sc.Backoff),
				sink.WithWebhookLogger(logger),
			}
			if sc.Rate > 0 {
				opts = append(opts, sink.WithWebhookRate(sc.Rate, 1))
			}
			sinks = append(sinks, sink.NewWebhook(sc.URL, opts...))
		default:
			return nil, fmt.Errorf("config: sinks[%d]: unknown type %q", i, sc.Type)
		}
	}
	return sink.NewRouter(logger, sinks...), nil
}
