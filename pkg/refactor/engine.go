package refactor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/extract"
	"github.com/mamaar/goextract/pkg/types"
)

// Engine is the workspace-level entry point for extractions.
type Engine interface {
	LoadWorkspace(ctx context.Context, path string) (*types.Workspace, error)

	ExtractMethod(ctx context.Context, ws *types.Workspace, req types.ExtractMethodRequest) (*types.RefactoringPlan, error)
	// AnalyzeExtraction classifies a selection without producing changes.
	AnalyzeExtraction(ctx context.Context, ws *types.Workspace, req types.ExtractMethodRequest) (*ExtractionReport, error)

	ValidateRefactoring(ws *types.Workspace, plan *types.RefactoringPlan) error
	ExecutePlan(ws *types.Workspace, plan *types.RefactoringPlan) error
	PreviewPlan(ws *types.Workspace, plan *types.RefactoringPlan) (string, error)
}

// DefaultEngine implements Engine on top of the workspace parser and the
// extractor.
type DefaultEngine struct {
	parser     *analysis.GoParser
	extractor  *extract.Extractor
	cache      *analysis.DocumentCache
	serializer *Serializer
	validator  *Validator
	config     *EngineConfig
	logger     *slog.Logger
}

// EngineConfig contains configuration options for the engine
type EngineConfig struct {
	SkipCompilation bool
	AllowBreaking   bool

	BestEffort          bool
	ContextFirst        bool
	DefaultFunctionName string
	DefaultMethodName   string

	// Exclude and Hidden are doublestar globs relative to the workspace
	// root; see analysis.GoParser.
	Exclude   []string
	Hidden    []string
	CacheSize int
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		BestEffort:   true,
		ContextFirst: true,
		CacheSize:    analysis.DefaultCacheSize,
	}
}

func CreateEngine(logger *slog.Logger) Engine {
	return CreateEngineWithConfig(logger, DefaultConfig())
}

func CreateEngineWithConfig(logger *slog.Logger, config *EngineConfig) *DefaultEngine {
	if config == nil {
		config = DefaultConfig()
	}
	parser := analysis.NewParser(logger)
	parser.Exclude = config.Exclude
	parser.Hidden = config.Hidden
	// NewDocumentCache only fails for non-positive sizes, which it replaces.
	cache, _ := analysis.NewDocumentCache(config.CacheSize)
	serializer := NewSerializer(logger)
	return &DefaultEngine{
		parser:     parser,
		extractor:  extract.New(analysis.NewOracle(logger), logger),
		cache:      cache,
		serializer: serializer,
		validator:  NewValidator(parser, serializer, logger),
		config:     config,
		logger:     logger,
	}
}

func (e *DefaultEngine) Parser() *analysis.GoParser { return e.parser }

func (e *DefaultEngine) Config() *EngineConfig { return e.config }

func (e *DefaultEngine) Extractor() *extract.Extractor { return e.extractor }

// CacheStats reports the hit rate of the document cache.
func (e *DefaultEngine) CacheStats() analysis.CacheStats { return e.cache.Stats() }

// LoadWorkspace loads and parses a complete workspace
func (e *DefaultEngine) LoadWorkspace(ctx context.Context, path string) (*types.Workspace, error) {
	ws, err := e.parser.ParseWorkspace(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workspace: %w", err)
	}
	modules, err := discoverWorkspaceModules(ws.RootPath)
	if err != nil {
		e.logger.Warn("ignoring unreadable go.work", "root", ws.RootPath, "err", err)
	}
	if ws.Module != nil {
		e.serializer.SetModuleInfo(ws.Module.Path, modules)
	}
	e.cache.Clear()
	return ws, nil
}

// Document returns the type-checked snapshot of a workspace file, reusing
// the cached one while the file and its package are unchanged.
func (e *DefaultEngine) Document(ws *types.Workspace, path string) (*analysis.Document, error) {
	file, pkg, ok := ws.FindFile(path)
	if !ok {
		return nil, &types.RefactorError{
			Type:    types.FileSystemError,
			Message: "file is not part of the workspace",
			File:    path,
		}
	}
	if doc, ok := e.cache.Get(file.Path, file.OriginalContent); ok && pkg.TypesPkg != nil && doc.Pkg == pkg.TypesPkg {
		return doc, nil
	}
	doc, err := e.parser.DocumentFor(ws, file.Path)
	if err != nil {
		return nil, err
	}
	e.cache.Add(doc)
	return doc, nil
}

// UpdateFile replaces the content of a workspace file, as after an edit in
// an editor or on disk.
func (e *DefaultEngine) UpdateFile(ws *types.Workspace, path string, content []byte) (*types.File, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(ws.RootPath, path)
	}
	e.cache.InvalidateFile(path)
	return e.parser.UpdateFile(ws, path, content)
}

// RemoveFile forgets a deleted workspace file.
func (e *DefaultEngine) RemoveFile(ws *types.Workspace, path string) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(ws.RootPath, path)
	}
	e.cache.InvalidateFile(path)
	e.parser.RemoveFile(ws, path)
}

func (e *DefaultEngine) options() extract.Options {
	return extract.Options{
		BestEffort:          e.config.BestEffort,
		ContextFirst:        e.config.ContextFirst,
		DefaultFunctionName: e.config.DefaultFunctionName,
		DefaultMethodName:   e.config.DefaultMethodName,
	}
}

func (e *DefaultEngine) newExtractOperation(req types.ExtractMethodRequest) *ExtractMethodOperation {
	if req.Mode == "" {
		req.Mode = types.ModeAuto
	}
	return &ExtractMethodOperation{Request: req, Options: e.options(), engine: e}
}

// ExtractMethod plans the extraction of req's selection into a new
// function.
func (e *DefaultEngine) ExtractMethod(ctx context.Context, ws *types.Workspace, req types.ExtractMethodRequest) (*types.RefactoringPlan, error) {
	operation := e.newExtractOperation(req)
	if err := operation.Validate(ws); err != nil {
		return nil, fmt.Errorf("extract method operation validation failed: %w", err)
	}
	plan, err := operation.Execute(ctx, ws)
	if err != nil {
		return nil, fmt.Errorf("failed to generate extract method plan: %w", err)
	}
	e.logger.Info("extraction planned",
		"file", req.SourceFile,
		"range", req.Range.String(),
		"name", operation.Result().Name,
		"mode", operation.Result().Mode,
		"issues", len(plan.Issues))
	return plan, nil
}

// AnalyzeExtraction runs the extraction without producing changes and
// reports the classification, including the reasons of a rejection.
func (e *DefaultEngine) AnalyzeExtraction(ctx context.Context, ws *types.Workspace, req types.ExtractMethodRequest) (*ExtractionReport, error) {
	operation := e.newExtractOperation(req)
	if err := operation.Validate(ws); err != nil {
		return nil, fmt.Errorf("extract method operation validation failed: %w", err)
	}
	res, _, err := operation.run(ctx, ws)
	if err != nil {
		return nil, err
	}
	return newExtractionReport(req, res), nil
}

// ValidateRefactoring validates a complete refactoring plan
func (e *DefaultEngine) ValidateRefactoring(ws *types.Workspace, plan *types.RefactoringPlan) error {
	return e.validator.ValidatePlanWithConfig(ws, plan, e.config)
}

// ExecutePlan validates plan, writes it to disk and refreshes the
// workspace copies of the written files.
func (e *DefaultEngine) ExecutePlan(ws *types.Workspace, plan *types.RefactoringPlan) error {
	if err := e.ValidateRefactoring(ws, plan); err != nil {
		return err
	}
	if len(plan.Changes) == 0 {
		return nil
	}
	written, err := e.serializer.ApplyPlan(ws, plan)
	if err != nil {
		return fmt.Errorf("failed to apply changes: %w", err)
	}
	if ws == nil {
		return nil
	}
	for _, path := range sortedKeys(written) {
		if _, err := e.UpdateFile(ws, path, written[path]); err != nil {
			return fmt.Errorf("refreshing %s: %w", path, err)
		}
	}
	return nil
}

// RenderPlan returns the content each touched file would have after plan,
// for clients that apply edits themselves.
func (e *DefaultEngine) RenderPlan(ws *types.Workspace, plan *types.RefactoringPlan) (map[string][]byte, error) {
	if err := e.ValidateRefactoring(ws, plan); err != nil {
		return nil, err
	}
	return e.serializer.RenderPlan(ws, plan)
}

// PreviewPlan renders the plan as a unified diff without applying it.
func (e *DefaultEngine) PreviewPlan(ws *types.Workspace, plan *types.RefactoringPlan) (string, error) {
	return e.serializer.PreviewPlan(ws, plan)
}
