package refactor

import (
	"cmp"
	"errors"
	"fmt"
	"go/format"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/mamaar/goextract/pkg/types"
)

// Serializer applies plan changes to file contents and writes them back.
type Serializer struct {
	logger           *slog.Logger
	modulePath       string
	workspaceModules []string
}

func NewSerializer(logger *slog.Logger) *Serializer {
	return &Serializer{logger: logger}
}

// SetModuleInfo configures the module path and the go.work modules used to
// group imports of rewritten files.
func (s *Serializer) SetModuleInfo(modulePath string, workspaceModules []string) {
	s.modulePath = modulePath
	s.workspaceModules = workspaceModules
}

// ApplyPlan writes every change of plan to disk.
func (s *Serializer) ApplyPlan(ws *types.Workspace, plan *types.RefactoringPlan) (map[string][]byte, error) {
	return s.ApplyChanges(ws, plan.Changes)
}

// ApplyChanges writes changes to disk and returns the new content of each
// touched file. Nothing is written when any file fails to render.
func (s *Serializer) ApplyChanges(ws *types.Workspace, changes []types.Change) (map[string][]byte, error) {
	rendered, err := s.renderAll(ws, changes)
	if err != nil {
		return nil, err
	}
	for _, path := range sortedKeys(rendered) {
		mode := fs.FileMode(0o644)
		if info, err := os.Stat(path); err == nil {
			mode = info.Mode().Perm()
		}
		if err := os.WriteFile(path, rendered[path], mode); err != nil {
			return nil, &types.RefactorError{
				Type:    types.FileSystemError,
				Message: fmt.Sprintf("failed to write file: %v", err),
				File:    path,
				Cause:   err,
			}
		}
		s.logger.Info("wrote file", "path", path, "bytes", len(rendered[path]))
	}
	return rendered, nil
}

// RenderPlan returns the new content of every file plan touches without
// writing anything.
func (s *Serializer) RenderPlan(ws *types.Workspace, plan *types.RefactoringPlan) (map[string][]byte, error) {
	return s.renderAll(ws, plan.Changes)
}

// PreviewPlan renders plan as a unified diff without touching the disk.
func (s *Serializer) PreviewPlan(ws *types.Workspace, plan *types.RefactoringPlan) (string, error) {
	if len(plan.Changes) == 0 {
		return "No changes to preview", nil
	}
	rendered, err := s.renderAll(ws, plan.Changes)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, path := range sortedKeys(rendered) {
		old, err := s.contentOf(ws, path)
		if err != nil {
			return "", err
		}
		diff, err := GenerateDiff(path, old, rendered[path])
		if err != nil {
			return "", err
		}
		b.WriteString(diff)
	}
	return b.String(), nil
}

func (s *Serializer) renderAll(ws *types.Workspace, changes []types.Change) (map[string][]byte, error) {
	byFile := make(map[string][]types.Change)
	for _, c := range changes {
		byFile[c.File] = append(byFile[c.File], c)
	}
	out := make(map[string][]byte, len(byFile))
	for path, fileChanges := range byFile {
		content, err := s.contentOf(ws, path)
		if err != nil {
			return nil, err
		}
		rendered, err := s.Render(path, content, fileChanges)
		if err != nil {
			return nil, &types.RefactorError{
				Type:    types.InvalidOperation,
				Message: fmt.Sprintf("failed to apply changes: %v", err),
				File:    path,
				Cause:   err,
			}
		}
		out[path] = rendered
	}
	return out, nil
}

// contentOf prefers the workspace copy of a file, which may hold unsaved
// edits, over the disk.
func (s *Serializer) contentOf(ws *types.Workspace, path string) ([]byte, error) {
	if ws != nil {
		if f, _, ok := ws.FindFile(path); ok {
			return f.OriginalContent, nil
		}
	}
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.FileSystemError,
			Message: fmt.Sprintf("failed to read file: %v", err),
			File:    path,
			Cause:   err,
		}
	}
	return content, nil
}

// Render applies changes to content. Go files get their imports grouped
// and are gofmt'ed; a file that no longer formats is kept as edited.
func (s *Serializer) Render(path string, content []byte, changes []types.Change) ([]byte, error) {
	out, err := applyChanges(content, changes)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".go") {
		return out, nil
	}
	if s.modulePath != "" {
		out = organizeImports(out, s.modulePath, s.workspaceModules)
	}
	formatted, err := format.Source(out)
	if err != nil {
		s.logger.Warn("failed to format file", "path", path, "err", err)
		return out, nil
	}
	return formatted, nil
}

// applyChanges splices non-overlapping changes into content, checking that
// each change still sees the text it was computed against.
func applyChanges(content []byte, changes []types.Change) ([]byte, error) {
	changes = slices.Clone(changes)
	slices.SortFunc(changes, func(a, b types.Change) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.End, b.End))
	})
	for i, c := range changes {
		if c.Start < 0 || c.End > len(content) || c.Start > c.End {
			return nil, fmt.Errorf("invalid change bounds [%d,%d) for %d bytes", c.Start, c.End, len(content))
		}
		if i > 0 && changes[i-1].End > c.Start {
			return nil, fmt.Errorf("overlapping changes [%d,%d) and [%d,%d)", changes[i-1].Start, changes[i-1].End, c.Start, c.End)
		}
		if c.OldText != "" && string(content[c.Start:c.End]) != c.OldText {
			return nil, fmt.Errorf("old text mismatch at [%d,%d): expected %q, found %q", c.Start, c.End, c.OldText, content[c.Start:c.End])
		}
	}

	var out []byte
	last := 0
	for _, c := range changes {
		out = append(out, content[last:c.Start]...)
		out = append(out, c.NewText...)
		last = c.End
	}
	return append(out, content[last:]...), nil
}

// GenerateDiff returns a unified diff between two versions of a file.
func GenerateDiff(path string, before, after []byte) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: "a/" + strings.TrimPrefix(path, "/"),
		ToFile:   "b/" + strings.TrimPrefix(path, "/"),
		Context:  3,
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
