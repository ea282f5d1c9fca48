package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mamaar/goextract/pkg/types"
)

// FileUpdater applies file changes to a workspace and drops whatever was
// derived from the old content.
type FileUpdater interface {
	UpdateFile(ws *types.Workspace, path string, content []byte) (*types.File, error)
	RemoveFile(ws *types.Workspace, path string)
}

// Stats counts what one batch did.
type Stats struct {
	Updated   int
	Removed   int
	Unchanged int
	Failed    int
}

// WorkspaceUpdater folds change batches into a workspace.
type WorkspaceUpdater struct {
	workspace *types.Workspace
	files     FileUpdater
	mu        sync.Locker
	logger    *slog.Logger
}

// NewUpdater returns an updater for ws. mu, when non-nil, is held while
// the workspace is modified.
func NewUpdater(ws *types.Workspace, files FileUpdater, mu sync.Locker, logger *slog.Logger) *WorkspaceUpdater {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &WorkspaceUpdater{workspace: ws, files: files, mu: mu, logger: logger}
}

// Run applies batches from in until ctx is done or in is closed.
func (u *WorkspaceUpdater) Run(ctx context.Context, in <-chan []ChangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-in:
			if !ok {
				return nil
			}
			u.HandleChanges(batch)
		}
	}
}

// HandleChanges applies one batch. A file whose content matches what the
// workspace already holds is skipped, so writes made by the engine itself
// do not invalidate anything.
func (u *WorkspaceUpdater) HandleChanges(events []ChangeEvent) Stats {
	start := time.Now()
	u.mu.Lock()
	defer u.mu.Unlock()

	var stats Stats
	for _, ev := range events {
		content, err := os.ReadFile(ev.Path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if u.remove(ev.Path) {
				stats.Removed++
			}
		case err != nil:
			u.logger.Error("reading changed file failed", "file", ev.Path, "err", err)
			stats.Failed++
		case u.unchanged(ev.Path, content):
			stats.Unchanged++
		default:
			if _, err := u.files.UpdateFile(u.workspace, ev.Path, content); err != nil {
				u.logger.Warn("changed file not applied", "file", ev.Path, "err", err)
				stats.Failed++
				continue
			}
			stats.Updated++
		}
	}

	u.logger.Info("batch complete",
		"updated", stats.Updated,
		"removed", stats.Removed,
		"unchanged", stats.Unchanged,
		"failed", stats.Failed,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return stats
}

func (u *WorkspaceUpdater) unchanged(path string, content []byte) bool {
	file, _, ok := u.workspace.FindFile(path)
	return ok && string(file.OriginalContent) == string(content)
}

// remove forgets path and drops its package once no non-test file is left.
func (u *WorkspaceUpdater) remove(path string) bool {
	if _, _, ok := u.workspace.FindFile(path); !ok {
		return false
	}
	u.files.RemoveFile(u.workspace, path)

	dir := filepath.Dir(path)
	if pkg, ok := u.workspace.Packages[dir]; ok && len(pkg.Files) == 0 {
		delete(u.workspace.Packages, dir)
		if pkg.ImportPath != "" {
			delete(u.workspace.ImportToPath, pkg.ImportPath)
		}
		u.logger.Info("removed empty package", "dir", dir)
	}
	return true
}

// Workspace returns the workspace being updated.
func (u *WorkspaceUpdater) Workspace() *types.Workspace {
	return u.workspace
}
