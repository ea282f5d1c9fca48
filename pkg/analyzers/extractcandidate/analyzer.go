// Package extractcandidate reports runs of statements in long functions
// that can be extracted into a function of their own, with the extraction
// attached as a suggested fix.
package extractcandidate

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"

	"github.com/mamaar/goextract/internal/log"
	wsanalysis "github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/analyzers/filedata"
	"github.com/mamaar/goextract/pkg/extract"
)

// Result is the typed result returned for MCP and CLI consumption.
type Result struct {
	File       string   `json:"file"`
	Function   string   `json:"function"`
	StartLine  int      `json:"start_line"`
	EndLine    int      `json:"end_line"`
	Statements int      `json:"statements"`
	Name       string   `json:"name"`
	Mode       string   `json:"mode"`
	Parameters []string `json:"parameters"`
	Results    int      `json:"results"`
}

type config struct {
	minFuncLines  int
	minStatements int
	extractor     *extract.Extractor
}

// Option configures the analyzer.
type Option func(*config)

// WithMinFuncLines sets the body length, in lines, below which functions
// are not inspected.
func WithMinFuncLines(n int) Option {
	return func(c *config) { c.minFuncLines = n }
}

// WithMinStatements sets the smallest run of statements worth reporting.
func WithMinStatements(n int) Option {
	return func(c *config) { c.minStatements = n }
}

// WithExtractor replaces the extractor validating each candidate.
func WithExtractor(e *extract.Extractor) Option {
	return func(c *config) { c.extractor = e }
}

const doc = "reports statement runs in long functions that can be extracted into a new function"

var Analyzer = NewAnalyzer()

// NewAnalyzer creates a configured extractcandidate analyzer.
func NewAnalyzer(opts ...Option) *analysis.Analyzer {
	cfg := config{minFuncLines: 30, minStatements: 4}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.extractor == nil {
		logger := log.Discard()
		cfg.extractor = extract.New(wsanalysis.NewOracle(logger), logger)
	}
	return &analysis.Analyzer{
		Name:     "extractcandidate",
		Doc:      doc,
		Run:      makeRun(cfg),
		Requires: []*analysis.Analyzer{inspect.Analyzer, filedata.Analyzer},
	}
}

func makeRun(cfg config) func(*analysis.Pass) (any, error) {
	return func(pass *analysis.Pass) (any, error) {
		insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)
		fd := pass.ResultOf[filedata.Analyzer].(*filedata.Data)
		var results []*Result

		for cur := range insp.Root().Preorder((*ast.FuncDecl)(nil)) {
			fn := cur.Node().(*ast.FuncDecl)
			if fn.Body == nil {
				continue
			}
			lines := pass.Fset.Position(fn.Body.Rbrace).Line - pass.Fset.Position(fn.Body.Lbrace).Line + 1
			if lines < cfg.minFuncLines {
				continue
			}
			file, content := enclosingFile(pass, fd, fn)
			if file == nil {
				continue
			}
			doc := newDocument(pass, file, content)

			for block := range cur.Preorder((*ast.BlockStmt)(nil), (*ast.CaseClause)(nil), (*ast.CommClause)(nil)) {
				for _, run := range paragraphs(pass.Fset, content, statementsOf(block.Node())) {
					if len(run) < cfg.minStatements || (block.Node() == fn.Body && len(run) == len(fn.Body.List)) {
						continue
					}
					if r := check(pass, cfg.extractor, doc, fn, run); r != nil {
						results = append(results, r)
					}
				}
			}
		}
		return results, nil
	}
}

func statementsOf(n ast.Node) []ast.Stmt {
	switch n := n.(type) {
	case *ast.BlockStmt:
		return n.List
	case *ast.CaseClause:
		return n.Body
	case *ast.CommClause:
		return n.Body
	}
	return nil
}

// paragraphs splits stmts at blank lines.
func paragraphs(fset *token.FileSet, content []byte, stmts []ast.Stmt) [][]ast.Stmt {
	var out [][]ast.Stmt
	start := 0
	for i := 1; i <= len(stmts); i++ {
		if i == len(stmts) || hasBlankLine(between(fset, content, stmts[i-1].End(), stmts[i].Pos())) {
			out = append(out, stmts[start:i])
			start = i
		}
	}
	return out
}

func between(fset *token.FileSet, content []byte, from, to token.Pos) string {
	a, b := fset.Position(from).Offset, fset.Position(to).Offset
	if a < 0 || b > len(content) || a > b {
		return ""
	}
	return string(content[a:b])
}

func hasBlankLine(gap string) bool {
	lines := strings.Split(gap, "\n")
	for _, l := range lines[1 : max(len(lines)-1, 1)] {
		if strings.TrimSpace(l) == "" {
			return true
		}
	}
	return false
}

func enclosingFile(pass *analysis.Pass, fd *filedata.Data, fn *ast.FuncDecl) (*ast.File, []byte) {
	for _, f := range pass.Files {
		if f.FileStart <= fn.Pos() && fn.End() <= f.FileEnd {
			content := fd.Content[pass.Fset.Position(f.Pos()).Filename]
			if len(content) == 0 {
				return nil, nil
			}
			return f, content
		}
	}
	return nil, nil
}

func newDocument(pass *analysis.Pass, file *ast.File, content []byte) *wsanalysis.Document {
	path := pass.Fset.Position(file.Pos()).Filename
	doc := wsanalysis.NewDocument(path, content, pass.Fset, file).WithTypes(pass.Pkg, pass.TypesInfo)
	if pass.Pkg != nil {
		doc.GoVersion = strings.TrimPrefix(pass.Pkg.GoVersion(), "go")
	}
	return doc
}

// check extracts run and reports it when the extraction succeeds without
// warnings.
func check(pass *analysis.Pass, e *extract.Extractor, doc *wsanalysis.Document, fn *ast.FuncDecl, run []ast.Stmt) *Result {
	span := wsanalysis.Span{Start: doc.Offset(run[0].Pos()), End: doc.Offset(run[len(run)-1].End())}
	res, err := e.ExtractMethod(context.Background(), doc, span, extract.Options{})
	if err != nil || !res.Succeeded() || len(res.Reasons()) > 0 {
		return nil
	}
	out, _, err := res.Document()
	if err != nil {
		return nil
	}
	start, end, newText := diff(doc.Src, out.Src)

	first := pass.Fset.Position(run[0].Pos())
	last := pass.Fset.Position(run[len(run)-1].End())
	var params []string
	for _, vi := range res.Analysis.Parameters() {
		params = append(params, vi.Name())
	}
	pass.Report(analysis.Diagnostic{
		Pos:      run[0].Pos(),
		End:      run[len(run)-1].End(),
		Category: "refactor",
		Message:  fmt.Sprintf("%d statements in %s can be extracted into %s(%s)", len(run), fn.Name.Name, res.Name, strings.Join(params, ", ")),
		SuggestedFixes: []analysis.SuggestedFix{{
			Message: fmt.Sprintf("Extract to %s %s", res.Mode, res.Name),
			TextEdits: []analysis.TextEdit{{
				Pos:     doc.Pos(start),
				End:     doc.Pos(end),
				NewText: []byte(newText),
			}},
		}},
	})
	return &Result{
		File:       first.Filename,
		Function:   fn.Name.Name,
		StartLine:  first.Line,
		EndLine:    last.Line,
		Statements: len(run),
		Name:       res.Name,
		Mode:       string(res.Mode),
		Parameters: params,
		Results:    len(res.Analysis.Results),
	}
}

// diff returns the smallest replacement turning before into after.
func diff(before, after []byte) (start, end int, newText string) {
	for start < len(before) && start < len(after) && before[start] == after[start] {
		start++
	}
	common := 0
	for common < len(before)-start && common < len(after)-start &&
		before[len(before)-1-common] == after[len(after)-1-common] {
		common++
	}
	return start, len(before) - common, string(after[start : len(after)-common])
}
