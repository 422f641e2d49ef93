// Package config loads the chatmd YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level chatmd configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Watch   WatchConfig   `yaml:"watch"`
	Adapter AdapterConfig `yaml:"adapter"`
	Naming  NamingConfig  `yaml:"naming"`
	Sinks   []SinkConfig  `yaml:"sinks"`
	Server  ServerConfig  `yaml:"server"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Attach           bool          `yaml:"attach"`
	UserDataDir      string        `yaml:"user_data_dir"`
	Mode             string        `yaml:"mode"` // headless | headful
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
}

// WatchConfig selects the conversation page and how it is observed.
type WatchConfig struct {
	URL              string         `yaml:"url"`
	PageID           string         `yaml:"page_id"`
	Debounce         DebounceConfig `yaml:"debounce"`
	SnapshotInterval time.Duration  `yaml:"snapshot_interval"`
}

// DebounceConfig controls mutation batching.
type DebounceConfig struct {
	Window    time.Duration `yaml:"window"`
	MaxBuffer int           `yaml:"max_buffer"`
}

// AdapterConfig picks the site adapter: Inline wins over File, File over
// Name.
type AdapterConfig struct {
	// Name is a built-in adapter name or a path to an adapter file.
	Name string `yaml:"name"`
	// File is an adapter YAML file, reloaded when it changes.
	File   string    `yaml:"file"`
	Inline yaml.Node `yaml:"inline"`
}

// NamingConfig locates the research counter store.
type NamingConfig struct {
	// DB is a SQLite path. Empty keeps the counter in memory.
	DB string `yaml:"db"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type    string        `yaml:"type"` // dir | stdout | jsonl | webhook
	Path    string        `yaml:"path"` // for dir
	URL     string        `yaml:"url"`  // for webhook
	Retries int           `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"`
	Rate    float64       `yaml:"rate"` // webhook requests per second
}

// ServerConfig controls the command surface.
type ServerConfig struct {
	Listen string `yaml:"listen"`
	// MCP is "", "stdio" or "http" (mounted at /mcp on Listen).
	MCP string `yaml:"mcp"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration of an empty file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Watch.Debounce.Window <= 0 {
		c.Watch.Debounce.Window = 250 * time.Millisecond
	}
	if c.Watch.Debounce.MaxBuffer <= 0 {
		c.Watch.Debounce.MaxBuffer = 1000
	}
	if c.Watch.SnapshotInterval <= 0 {
		c.Watch.SnapshotInterval = 30 * time.Minute
	}
	if c.Adapter.Name == "" {
		c.Adapter.Name = "chatgpt"
	}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if s.Type == "webhook" {
			if s.Retries <= 0 {
				s.Retries = 3
			}
			if s.Backoff <= 0 {
				s.Backoff = time.Second
			}
		}
	}
}

func (c *Config) validate() error {
	switch c.Browser.Mode {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: browser.mode %q: want headless or headful", c.Browser.Mode)
	}
	switch c.Server.MCP {
	case "", "stdio", "http":
	default:
		return fmt.Errorf("config: server.mcp %q: want stdio or http", c.Server.MCP)
	}
	if c.Server.MCP == "http" && c.Server.Listen == "" {
		return fmt.Errorf("config: server.mcp http needs server.listen")
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "dir":
			if s.Path == "" {
				return fmt.Errorf("config: sinks[%d]: dir sink needs path", i)
			}
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook sink needs url", i)
			}
		case "stdout", "jsonl":
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	return nil
}
