package sink

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hazyhaar/chatmd/assemble"
)

// maxCollisions bounds the "name (n).md" search.
const maxCollisions = 10000

// Dir writes each document as a file in a directory. An existing file is
// never overwritten: the name gets a " (n)" suffix before the extension.
type Dir struct {
	mu     sync.Mutex
	dir    string
	logger *slog.Logger
	last   string
}

// NewDir creates the directory if needed.
func NewDir(dir string, logger *slog.Logger) (*Dir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: mkdir %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dir{dir: dir, logger: logger}, nil
}

// Last returns the path of the most recently written file.
func (d *Dir) Last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func (d *Dir) Deliver(_ context.Context, doc assemble.Document) error {
	name := filepath.Base(doc.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "conversation.md"
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	d.mu.Lock()
	defer d.mu.Unlock()
	for n := 0; n < maxCollisions; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
		}
		path := filepath.Join(d.dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("sink: create %s: %w", path, err)
		}
		if _, err := f.WriteString(doc.Content); err != nil {
			f.Close()
			return fmt.Errorf("sink: write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("sink: close %s: %w", path, err)
		}
		d.last = path
		d.logger.Info("sink: document written", "path", path, "messages", doc.Messages)
		return nil
	}
	return fmt.Errorf("sink: no free name for %s in %s", name, d.dir)
}

func (d *Dir) Close() error { return nil }
