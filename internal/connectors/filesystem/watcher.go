package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// Ensure Watcher implements the interface.
var _ driven.ChangeWatcher = (*Watcher)(nil)

// DefaultDebounce is the quiet period before a batch of changes is emitted.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a directory tree and emits debounced change batches.
type Watcher struct {
	source   *Source
	debounce time.Duration
}

// NewWatcher creates a watcher that reports files the source would list.
func NewWatcher(source *Source, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{source: source, debounce: debounce}
}

// Watch starts watching root recursively. The returned channel receives
// the sorted set of changed paths once no event has arrived for the
// debounce period. It is closed when ctx is done.
func (w *Watcher) Watch(ctx context.Context, root string) (<-chan []string, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.addTree(fsw, root); err != nil {
		fsw.Close()
		return nil, err
	}

	out := make(chan []string)
	go w.loop(ctx, fsw, root, out)
	return out, nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, root string, out chan<- []string) {
	defer close(out)
	defer fsw.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !isHidden(relTo(root, ev.Name)) {
					if err := w.addTree(fsw, ev.Name); err != nil {
						logger.Warn("watch %s: %v", ev.Name, err)
					}
				}
			}
			path, ok := w.handleEvent(root, ev)
			if !ok {
				continue
			}
			pending[path] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watch %s: %v", root, err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			slices.Sort(batch)
			clear(pending)

			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}

// handleEvent returns the path an event refers to if it should trigger
// reindexing.
func (w *Watcher) handleEvent(root string, ev fsnotify.Event) (string, bool) {
	if isHidden(relTo(root, ev.Name)) {
		return "", false
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return ev.Name, true
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil || info.IsDir() {
			return "", false
		}
		if !w.source.Accepts(ev.Name) {
			return "", false
		}
		return ev.Name, true
	default:
		return "", false
	}
}

// addTree registers root and every non-hidden directory below it.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return fsw.Add(filepath.Dir(root))
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func relTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.Base(path)
	}
	return rel
}
