package extractcandidate_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	gotypes "go/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wsanalysis "github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/analyzers"
	"github.com/mamaar/goextract/pkg/analyzers/extractcandidate"
	"github.com/mamaar/goextract/pkg/types"
)

func createTestWorkspace(t *testing.T, src string) *types.Workspace {
	t.Helper()
	fileSet := token.NewFileSet()

	astFile, err := parser.ParseFile(fileSet, "testpkg.go", src, parser.ParseComments)
	require.NoError(t, err)

	file := &types.File{
		Path:            "testpkg.go",
		AST:             astFile,
		OriginalContent: []byte(src),
	}
	pkg := &types.Package{
		Name:       "testpkg",
		Path:       "test/testpkg",
		Dir:        "test/testpkg",
		ImportPath: "example.com/testpkg",
		Files:      map[string]*types.File{"testpkg.go": file},
	}
	file.Package = pkg

	info := wsanalysis.NewInfo()
	conf := gotypes.Config{GoVersion: "go1.25"}
	pkg.TypesPkg, err = conf.Check(pkg.ImportPath, fileSet, []*ast.File{astFile}, info)
	require.NoError(t, err)
	pkg.TypesInfo = info

	return &types.Workspace{
		Packages:     map[string]*types.Package{"test/testpkg": pkg},
		ImportToPath: map[string]string{pkg.ImportPath: "test/testpkg"},
		FileSet:      fileSet,
	}
}

const reportSrc = `package testpkg

func report(items []int) int {
	total := 0
	for _, it := range items {
		total += it
	}

	doubled := total * 2
	shifted := doubled + 1
	return shifted
}
`

func candidates(t *testing.T, rr *analyzers.RunResult) []*extractcandidate.Result {
	t.Helper()
	require.Len(t, rr.Results, 1)
	results, ok := rr.Results[0].([]*extractcandidate.Result)
	require.True(t, ok, "unexpected result type %T", rr.Results[0])
	return results
}

func TestExtractCandidate_ReportsParagraph(t *testing.T) {
	ws := createTestWorkspace(t, reportSrc)
	a := extractcandidate.NewAnalyzer(extractcandidate.WithMinFuncLines(1), extractcandidate.WithMinStatements(3))

	rr, err := analyzers.Run(ws, nil, a, "")
	require.NoError(t, err)

	results := candidates(t, rr)
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, "report", r.Function)
	assert.Equal(t, 9, r.StartLine)
	assert.Equal(t, 11, r.EndLine)
	assert.Equal(t, 3, r.Statements)
	assert.Equal(t, "newFunction", r.Name)
	assert.Equal(t, []string{"total"}, r.Parameters)

	require.Len(t, rr.Diagnostics, 1)
	d := rr.Diagnostics[0]
	assert.Equal(t, "refactor", d.Category)
	assert.Equal(t, "3 statements in report can be extracted into newFunction(total)", d.Message)
	require.Len(t, d.SuggestedFixes, 1)
	require.Len(t, d.SuggestedFixes[0].TextEdits, 1)
}

func TestExtractCandidate_FixRewritesSource(t *testing.T) {
	ws := createTestWorkspace(t, reportSrc)
	a := extractcandidate.NewAnalyzer(extractcandidate.WithMinFuncLines(1), extractcandidate.WithMinStatements(3))

	rr, err := analyzers.Run(ws, nil, a, "example.com/testpkg")
	require.NoError(t, err)

	changes := analyzers.DiagnosticsToChanges(ws.FileSet, rr.Diagnostics)
	require.Len(t, changes, 1)
	c := changes[0]
	out := reportSrc[:c.Start] + c.NewText + reportSrc[c.End:]
	assert.Contains(t, out, "\treturn newFunction(total)\n")
	assert.Contains(t, out, "func newFunction(total int) int {\n\tdoubled := total * 2\n")

	plan := analyzers.ChangesToPlan(changes)
	assert.Equal(t, []string{"testpkg.go"}, plan.AffectedFiles)
}

func TestExtractCandidate_ShortFunctionsAreSkipped(t *testing.T) {
	ws := createTestWorkspace(t, reportSrc)

	rr, err := analyzers.Run(ws, nil, extractcandidate.Analyzer, "")
	require.NoError(t, err)
	assert.Empty(t, candidates(t, rr))
	assert.Empty(t, rr.Diagnostics)
}

func TestExtractCandidate_WholeBodyIsNotACandidate(t *testing.T) {
	src := `package testpkg

func sum(a, b int) int {
	c := a + b
	d := c * 2
	return d
}
`
	ws := createTestWorkspace(t, src)
	a := extractcandidate.NewAnalyzer(extractcandidate.WithMinFuncLines(1), extractcandidate.WithMinStatements(2))

	rr, err := analyzers.Run(ws, nil, a, "")
	require.NoError(t, err)
	assert.Empty(t, candidates(t, rr))
}

func TestRun_UnknownPackage(t *testing.T) {
	ws := createTestWorkspace(t, reportSrc)

	rr, err := analyzers.Run(ws, nil, extractcandidate.Analyzer, "example.com/missing")
	require.NoError(t, err)
	assert.Empty(t, rr.Results)
	assert.Empty(t, rr.Diagnostics)
}
