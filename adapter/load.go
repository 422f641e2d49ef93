package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Parse decodes a YAML adapter. When the document sets `base`, the named
// built-in is used as the starting point and the remaining keys override
// it; lists replace rather than append.
func Parse(data []byte) (Adapter, error) {
	var head struct {
		Base string `yaml:"base"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return Adapter{}, fmt.Errorf("adapter: parse: %w", err)
	}

	var a Adapter
	if head.Base != "" {
		b, err := Builtin(head.Base)
		if err != nil {
			return Adapter{}, err
		}
		a = b
	}
	if err := yaml.Unmarshal(data, &a); err != nil {
		return Adapter{}, fmt.Errorf("adapter: parse: %w", err)
	}
	return a, nil
}

// LoadFile reads and compiles an adapter YAML file.
func LoadFile(path string) (*Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("adapter: read %s: %w", path, err)
	}
	a, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return New(a)
}

// Resolve returns the compiled built-in named by nameOrPath, or loads it
// as a YAML file when no built-in has that name.
func Resolve(nameOrPath string) (*Site, error) {
	if a, err := Builtin(nameOrPath); err == nil {
		return New(a)
	}
	return LoadFile(nameOrPath)
}

// Watch reloads the adapter file at path whenever it changes on disk and
// hands every successfully compiled Site to fn. Invalid edits are logged
// and skipped so the previous adapter stays in force. Watch blocks until
// ctx is cancelled.
func Watch(ctx context.Context, path string, logger *slog.Logger, fn func(*Site)) error {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("adapter: watch: %w", err)
	}
	defer w.Close()

	// Editors replace files by rename, so watch the directory.
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("adapter: watch: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("adapter: watch %s: %w", path, err)
	}

	const settle = 100 * time.Millisecond
	var reload <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				reload = time.After(settle)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("adapter: watch error", "path", path, "error", err)
		case <-reload:
			reload = nil
			site, err := LoadFile(abs)
			if err != nil {
				logger.Warn("adapter: reload failed, keeping previous", "path", path, "error", err)
				continue
			}
			logger.Info("adapter: reloaded", "path", path, "name", site.Name())
			fn(site)
		}
	}
}
