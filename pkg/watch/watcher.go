// Package watch keeps a loaded workspace in step with edits made outside
// the engine.
package watch

import (
	"cmp"
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last event before a batch
// is emitted.
const DefaultDebounce = 100 * time.Millisecond

// ChangeEvent is a coalesced change to one .go file.
type ChangeEvent struct {
	Path string
	Op   fsnotify.Op
}

// Removed reports whether the file is gone or was renamed away.
func (e ChangeEvent) Removed() bool {
	return e.Op&(fsnotify.Remove|fsnotify.Rename) != 0
}

// Watcher emits debounced batches of .go file changes below a root
// directory.
type Watcher struct {
	rootPath string
	debounce time.Duration
	exclude  []string
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithExclude skips paths matching any of the doublestar patterns, given
// relative to the root.
func WithExclude(patterns ...string) Option {
	return func(w *Watcher) { w.exclude = append(w.exclude, patterns...) }
}

// NewWatcher watches rootPath recursively. Hidden, underscore, testdata
// and vendor directories are not watched.
func NewWatcher(rootPath string, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		rootPath: rootPath,
		debounce: DefaultDebounce,
		logger:   logger,
		fsw:      fsw,
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.addDirs(w.rootPath); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.rootPath && w.skipDir(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) skipDir(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata" {
		return true
	}
	return w.excluded(path)
}

func (w *Watcher) excluded(path string) bool {
	rel, err := filepath.Rel(w.rootPath, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Run forwards batches to out until ctx is done. Batches are sorted by
// path; the last operation seen for a file wins.
func (w *Watcher) Run(ctx context.Context, out chan<- []ChangeEvent) error {
	pending := make(map[string]fsnotify.Op)
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				w.watchNewDir(ev.Name)
			}
			if w.accept(ev) {
				pending[ev.Name] = ev.Op
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("fsnotify error", "err", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]ChangeEvent, 0, len(pending))
			for p, op := range pending {
				batch = append(batch, ChangeEvent{Path: p, Op: op})
			}
			slices.SortFunc(batch, func(a, b ChangeEvent) int { return cmp.Compare(a.Path, b.Path) })
			pending = make(map[string]fsnotify.Op)

			select {
			case out <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) accept(ev fsnotify.Event) bool {
	if !strings.HasSuffix(ev.Name, ".go") || w.excluded(ev.Name) {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

// watchNewDir starts watching a directory created after startup, along with
// anything already inside it.
func (w *Watcher) watchNewDir(path string) {
	if w.skipDir(path) {
		return
	}
	if err := w.addDirs(path); err != nil {
		w.logger.Debug("could not add to watch", "path", path, "err", err)
	}
}
