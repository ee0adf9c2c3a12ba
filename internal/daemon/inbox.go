// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/mediafit/internal/batch"
	"github.com/ManuGH/mediafit/internal/log"
	"github.com/ManuGH/mediafit/internal/naming"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultSettle is how long a file's size must stay unchanged before it is
// handed out. Copies into the inbox arrive as a stream of writes.
const DefaultSettle = 5 * time.Second

type pendingFile struct {
	size    int64
	changed time.Time
}

// Inbox watches a directory and emits media files once they stop growing.
// Each file is emitted once per appearance.
type Inbox struct {
	dir    string
	settle time.Duration
	out    chan string
	logger zerolog.Logger
	now    func() time.Time
}

// NewInbox creates an inbox for dir. A settle of 0 uses DefaultSettle.
func NewInbox(dir string, settle time.Duration) *Inbox {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Inbox{
		dir:    filepath.Clean(dir),
		settle: settle,
		out:    make(chan string),
		logger: log.WithComponent("inbox"),
		now:    time.Now,
	}
}

// Dir returns the watched directory.
func (i *Inbox) Dir() string { return i.dir }

// Files delivers settled files. It is closed when Run returns.
func (i *Inbox) Files() <-chan string { return i.out }

// Run watches until ctx ends. Files already present are emitted first.
func (i *Inbox) Run(ctx context.Context) error {
	defer close(i.out)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(i.dir); err != nil {
		return fmt.Errorf("watch inbox %s: %w", i.dir, err)
	}

	pending := make(map[string]*pendingFile)
	emitted := make(map[string]bool)

	entries, err := os.ReadDir(i.dir)
	if err != nil {
		return fmt.Errorf("scan inbox: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			i.track(pending, filepath.Join(i.dir, e.Name()))
		}
	}
	i.logger.Info().
		Str(log.FieldPath, i.dir).
		Int("existing", len(pending)).
		Dur("settle", i.settle).
		Msg("watching inbox")

	ticker := time.NewTicker(i.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
				delete(pending, ev.Name)
				delete(emitted, ev.Name)
			case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
				if !emitted[ev.Name] {
					i.track(pending, ev.Name)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			i.logger.Warn().Err(err).Msg("inbox watcher error")

		case <-ticker.C:
			for _, path := range i.settled(pending) {
				delete(pending, path)
				emitted[path] = true
				select {
				case i.out <- path:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (i *Inbox) track(pending map[string]*pendingFile, path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !batch.IsMedia(name) {
		return
	}
	if p, ok := pending[path]; ok {
		p.changed = i.now()
		return
	}
	pending[path] = &pendingFile{size: -1, changed: i.now()}
}

// settled returns the pending files whose size has not changed for settle.
func (i *Inbox) settled(pending map[string]*pendingFile) []string {
	var ready []string
	now := i.now()
	for path, p := range pending {
		fi, err := os.Stat(path)
		if err != nil {
			delete(pending, path)
			continue
		}
		if fi.Size() != p.size {
			p.size, p.changed = fi.Size(), now
			continue
		}
		if now.Sub(p.changed) >= i.settle {
			ready = append(ready, path)
		}
	}
	naming.SortNatural(ready)
	return ready
}
