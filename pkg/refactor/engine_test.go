package refactor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamaar/goextract/pkg/types"
)

const counterSrc = `package demo

func f() int {
	count := 0
	count = count + 1
	return count
}
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestWorkspace writes a one-package module and loads it.
func createTestWorkspace(t *testing.T, src string) (*DefaultEngine, *types.Workspace, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "go.mod"), "module example.com/demo\n\ngo 1.25\n")
	path := filepath.Join(root, "demo.go")
	writeFile(t, path, src)

	engine := CreateEngineWithConfig(discardLogger(), DefaultConfig())
	ws, err := engine.LoadWorkspace(context.Background(), root)
	require.NoError(t, err)
	return engine, ws, path
}

func lineRange(line int) types.SourceRange {
	return types.SourceRange{StartLine: line, EndLine: line}
}

func TestCreateEngine(t *testing.T) {
	engine := CreateEngine(discardLogger())
	de, ok := engine.(*DefaultEngine)
	require.True(t, ok)
	assert.True(t, de.Config().BestEffort)
	assert.True(t, de.Config().ContextFirst)
}

func TestEngine_ExtractMethod(t *testing.T) {
	engine, ws, path := createTestWorkspace(t, counterSrc)

	plan, err := engine.ExtractMethod(context.Background(), ws, types.ExtractMethodRequest{
		SourceFile: "demo.go",
		Range:      lineRange(5),
	})
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	assert.Equal(t, []string{path}, plan.AffectedFiles)
	assert.True(t, plan.Reversible)

	change := plan.Changes[0]
	assert.Equal(t, counterSrc[change.Start:change.End], change.OldText)
	assert.Contains(t, change.NewText, "count = newFunction(count)")

	preview, err := engine.PreviewPlan(ws, plan)
	require.NoError(t, err)
	// the moved line reads as unchanged context below the inserted call
	assert.Contains(t, preview, " \tcount := 0\n+\tcount = newFunction(count)\n+\treturn count\n+}\n+\n+func newFunction(count int) int {\n \tcount = count + 1\n")
	assert.NotContains(t, preview, "-\tcount = count + 1\n")

	require.NoError(t, engine.ExecutePlan(ws, plan))
	want := `package demo

func f() int {
	count := 0
	count = newFunction(count)
	return count
}

func newFunction(count int) int {
	count = count + 1
	return count
}
`
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, string(got))

	file, _, ok := ws.FindFile(path)
	require.True(t, ok)
	assert.Equal(t, want, string(file.OriginalContent))
}

func TestEngine_ExtractMethodRejected(t *testing.T) {
	src := `package demo

func f() {
	defer g()
	g()
}

func g() {}
`
	engine, ws, _ := createTestWorkspace(t, src)
	_, err := engine.ExtractMethod(context.Background(), ws, types.ExtractMethodRequest{
		SourceFile: "demo.go",
		Range:      types.SourceRange{StartLine: 4, EndLine: 5},
	})
	var rerr *types.RefactorError
	require.True(t, errors.As(err, &rerr), "got %v", err)
	assert.Equal(t, types.ExtractionFailed, rerr.Type)
	assert.Contains(t, rerr.Message, "selection contains a defer statement")
	assert.Equal(t, 4, rerr.Line)
}

func TestEngine_ExtractMethodValidation(t *testing.T) {
	engine, ws, _ := createTestWorkspace(t, counterSrc)

	tests := []struct {
		name string
		req  types.ExtractMethodRequest
		msg  string
	}{
		{"missing file", types.ExtractMethodRequest{SourceFile: "other.go", Range: lineRange(5)}, "source file not found"},
		{"bad name", types.ExtractMethodRequest{SourceFile: "demo.go", Range: lineRange(5), NewName: "1x"}, "not a valid identifier"},
		{"bad mode", types.ExtractMethodRequest{SourceFile: "demo.go", Range: lineRange(5), Mode: "inline"}, "unknown extraction mode"},
		{"bad range", types.ExtractMethodRequest{SourceFile: "demo.go"}, "invalid selection"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.ExtractMethod(context.Background(), ws, tt.req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestEngine_AnalyzeExtraction(t *testing.T) {
	engine, ws, _ := createTestWorkspace(t, counterSrc)

	report, err := engine.AnalyzeExtraction(context.Background(), ws, types.ExtractMethodRequest{
		SourceFile: "demo.go",
		Range:      lineRange(5),
	})
	require.NoError(t, err)
	assert.True(t, report.Succeeded)
	assert.Equal(t, types.ModeFunction, report.Mode)
	assert.Equal(t, "newFunction", report.Name)
	require.Len(t, report.Variables, 1)
	assert.Equal(t, VariableReport{
		Name:      "count",
		Kind:      "local",
		Type:      "int",
		Flags:     report.Variables[0].Flags,
		Parameter: "Ref",
		Return:    "AssignmentWithInput",
	}, report.Variables[0])
	assert.Equal(t, []string{"count"}, report.Results)
	assert.Equal(t, []string{"fall through"}, report.Flow)
}

func TestEngine_DocumentIsCached(t *testing.T) {
	engine, ws, path := createTestWorkspace(t, counterSrc)

	first, err := engine.Document(ws, path)
	require.NoError(t, err)
	second, err := engine.Document(ws, "demo.go")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.EqualValues(t, 1, engine.CacheStats().Hits)

	_, err = engine.UpdateFile(ws, "demo.go", []byte(strings.Replace(counterSrc, "count + 1", "count + 2", 1)))
	require.NoError(t, err)
	third, err := engine.Document(ws, path)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Contains(t, string(third.Src), "count + 2")
}

func TestEngine_ValidateRefactoring(t *testing.T) {
	engine, ws, path := createTestWorkspace(t, counterSrc)

	assert.Error(t, engine.ValidateRefactoring(ws, nil))

	at := strings.Index(counterSrc, "return count")
	broken := &types.RefactoringPlan{Changes: []types.Change{{
		File:    path,
		Start:   at,
		End:     at + len("return count"),
		OldText: "return count",
		NewText: "return missing",
	}}}
	err := engine.ValidateRefactoring(ws, broken)
	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	require.Len(t, verr.Issues, 1)
	assert.Equal(t, "undefined: missing", verr.Issues[0].Description)
	assert.Equal(t, 6, verr.Issues[0].Line)

	overlapping := &types.RefactoringPlan{Changes: []types.Change{
		{File: path, Start: 0, End: 10, NewText: "x"},
		{File: path, Start: 5, End: 12, NewText: "y"},
	}}
	err = engine.ValidateRefactoring(ws, overlapping)
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Issues[0].Description, "overlapping changes")
}
