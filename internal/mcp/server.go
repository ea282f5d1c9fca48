package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/mamaar/goextract/pkg/refactor"
	"github.com/mamaar/goextract/pkg/types"
	"github.com/mamaar/goextract/pkg/watch"
)

const (
	// PreviewTTL is how long a previewed extraction can be applied.
	PreviewTTL     = 10 * time.Minute
	previewCleanup = time.Minute
)

// MCPServer holds the shared state for the MCP tool handlers: a loaded
// workspace, its engine, previewed plans waiting to be applied and an
// optional watcher that folds outside edits into the workspace.
type MCPServer struct {
	mu        sync.RWMutex
	engine    *refactor.DefaultEngine
	workspace *types.Workspace
	watcher   *watch.Watcher
	cancel    context.CancelFunc // stops the watcher goroutines
	previews  *cache.Cache
	watch     bool
	logger    *slog.Logger
}

// Option configures an MCPServer.
type Option func(*MCPServer)

// WithoutWatcher keeps loaded workspaces static.
func WithoutWatcher() Option {
	return func(s *MCPServer) { s.watch = false }
}

// NewMCPServer creates the shared state. A nil config uses the engine
// defaults.
func NewMCPServer(logger *slog.Logger, config *refactor.EngineConfig, opts ...Option) *MCPServer {
	s := &MCPServer{
		engine:   refactor.CreateEngineWithConfig(logger, config),
		previews: cache.New(PreviewTTL, previewCleanup),
		watch:    true,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadWorkspace loads (or reloads) the workspace at path and starts
// watching it.
func (s *MCPServer) LoadWorkspace(ctx context.Context, path string) (*types.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatcherLocked()

	s.logger.Info("loading workspace", "path", path)
	ws, err := s.engine.LoadWorkspace(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load workspace: %w", err)
	}
	s.workspace = ws
	s.previews.Flush()

	if s.watch {
		s.startWatcherLocked(ws)
	}
	return ws, nil
}

func (s *MCPServer) startWatcherLocked(ws *types.Workspace) {
	w, err := watch.NewWatcher(ws.RootPath, s.logger,
		watch.WithDebounce(200*time.Millisecond),
		watch.WithExclude(s.engine.Config().Exclude...))
	if err != nil {
		s.logger.Warn("watcher unavailable, workspace will not auto-update", "err", err)
		return
	}
	s.watcher = w
	updater := watch.NewUpdater(ws, s.engine, &s.mu, s.logger)

	watchCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	ch := make(chan []watch.ChangeEvent, 4)
	go func() {
		defer close(ch)
		if err := w.Run(watchCtx, ch); err != nil && watchCtx.Err() == nil {
			s.logger.Error("watcher error", "err", err)
		}
	}()
	go func() { _ = updater.Run(watchCtx, ch) }()
}

func (s *MCPServer) stopWatcherLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.watcher != nil {
		_ = s.watcher.Close()
		s.watcher = nil
	}
}

// GetWorkspace returns the loaded workspace or an error if none is loaded.
func (s *MCPServer) GetWorkspace() (*types.Workspace, error) {
	if s.workspace == nil {
		return nil, fmt.Errorf("no workspace loaded: call load_workspace first")
	}
	return s.workspace, nil
}

// GetEngine returns the extraction engine.
func (s *MCPServer) GetEngine() *refactor.DefaultEngine {
	return s.engine
}

// RLock acquires a read lock on the server state.
func (s *MCPServer) RLock() { s.mu.RLock() }

// RUnlock releases the read lock.
func (s *MCPServer) RUnlock() { s.mu.RUnlock() }

// Close stops the watcher and drops pending previews.
func (s *MCPServer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatcherLocked()
	s.previews.Flush()
}
