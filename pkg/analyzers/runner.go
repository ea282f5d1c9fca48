package analyzers

import (
	"cmp"
	"go/ast"
	"go/token"
	"go/types"
	"path/filepath"
	"slices"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/ast/inspector"

	wsanalysis "github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/analyzers/filedata"
	wstypes "github.com/mamaar/goextract/pkg/types"
)

// RunResult holds the output of running an analyzer across one or more packages.
type RunResult struct {
	// Results has one entry per analysed package, in directory order.
	Results     []any
	Diagnostics []analysis.Diagnostic
}

// Run executes an analyzer against workspace packages. pkgFilter selects
// one package by directory, path relative to the workspace root, or
// import path; empty analyses every package. Packages are type-checked
// through parser first; a nil parser uses whatever type information the
// packages already carry.
func Run(ws *wstypes.Workspace, parser *wsanalysis.GoParser, a *analysis.Analyzer, pkgFilter string) (*RunResult, error) {
	var packages []*wstypes.Package
	if pkgFilter != "" {
		pkg, ok := resolvePackage(ws, pkgFilter)
		if !ok {
			return &RunResult{}, nil
		}
		packages = []*wstypes.Package{pkg}
	} else {
		for _, pkg := range ws.Packages {
			packages = append(packages, pkg)
		}
		slices.SortFunc(packages, func(a, b *wstypes.Package) int { return cmp.Compare(a.Dir, b.Dir) })
	}

	combined := &RunResult{}
	for _, pkg := range packages {
		if parser != nil {
			parser.EnsureTypeChecked(ws, pkg)
		}
		rr, err := RunPackage(ws, a, pkg)
		if err != nil {
			return nil, err
		}
		combined.Diagnostics = append(combined.Diagnostics, rr.Diagnostics...)
		combined.Results = append(combined.Results, rr.Results...)
	}
	return combined, nil
}

func resolvePackage(ws *wstypes.Workspace, filter string) (*wstypes.Package, bool) {
	if dir, ok := ws.ImportToPath[filter]; ok {
		filter = dir
	} else if !filepath.IsAbs(filter) {
		filter = filepath.Join(ws.RootPath, filter)
	}
	pkg, ok := ws.Packages[filepath.Clean(filter)]
	return pkg, ok
}

// RunPackage executes an analyzer against a single workspace package.
func RunPackage(ws *wstypes.Workspace, a *analysis.Analyzer, pkg *wstypes.Package) (*RunResult, error) {
	var diags []analysis.Diagnostic
	pass, err := buildPass(ws, pkg, a, func(d analysis.Diagnostic) {
		diags = append(diags, d)
	})
	if err != nil {
		return nil, err
	}
	res, err := a.Run(pass)
	if err != nil {
		return nil, err
	}
	return &RunResult{Results: []any{res}, Diagnostics: diags}, nil
}

func buildPass(ws *wstypes.Workspace, pkg *wstypes.Package, a *analysis.Analyzer, report func(analysis.Diagnostic)) (*analysis.Pass, error) {
	names := make([]string, 0, len(pkg.Files))
	for name := range pkg.Files {
		names = append(names, name)
	}
	slices.Sort(names)
	files := make([]*ast.File, 0, len(names))
	fd := &filedata.Data{Content: make(map[string][]byte)}
	for _, name := range names {
		f := pkg.Files[name]
		files = append(files, f.AST)
		fd.Content[ws.FileSet.Position(f.AST.Pos()).Filename] = f.OriginalContent
	}

	typesPkg := pkg.TypesPkg
	if typesPkg == nil {
		typesPkg = types.NewPackage(pkg.ImportPath, pkg.Name)
	}
	typesInfo := pkg.TypesInfo
	if typesInfo == nil {
		typesInfo = wsanalysis.NewInfo()
	}

	pass := &analysis.Pass{
		Analyzer:  a,
		Fset:      ws.FileSet,
		Files:     files,
		Pkg:       typesPkg,
		TypesInfo: typesInfo,
		Report:    report,
		ResultOf:  make(map[*analysis.Analyzer]any),
	}

	// Pre-compute results for required analyzers.
	for _, req := range a.Requires {
		switch {
		case req == filedata.Analyzer:
			pass.ResultOf[req] = fd
		case req.Name == "inspect":
			pass.ResultOf[req] = inspector.New(files)
		default:
			reqPass, err := buildPass(ws, pkg, req, func(analysis.Diagnostic) {})
			if err != nil {
				return nil, err
			}
			res, err := req.Run(reqPass)
			if err != nil {
				return nil, err
			}
			pass.ResultOf[req] = res
		}
	}
	return pass, nil
}

// DiagnosticsToChanges converts diagnostics with SuggestedFixes into types.Change slices.
// It picks the first SuggestedFix from each diagnostic (if any).
func DiagnosticsToChanges(fset *token.FileSet, diags []analysis.Diagnostic) []wstypes.Change {
	var changes []wstypes.Change
	for _, d := range diags {
		if len(d.SuggestedFixes) == 0 {
			continue
		}
		fix := d.SuggestedFixes[0]
		for _, edit := range fix.TextEdits {
			startPos := fset.Position(edit.Pos)
			endPos := fset.Position(edit.End)
			changes = append(changes, wstypes.Change{
				File:        startPos.Filename,
				Start:       startPos.Offset,
				End:         endPos.Offset,
				NewText:     string(edit.NewText),
				Description: fix.Message,
			})
		}
	}
	return changes
}

// ChangesToPlan creates a RefactoringPlan from a set of changes.
func ChangesToPlan(changes []wstypes.Change) *wstypes.RefactoringPlan {
	var affected []string
	for _, c := range changes {
		if !slices.Contains(affected, c.File) {
			affected = append(affected, c.File)
		}
	}
	slices.Sort(affected)
	return &wstypes.RefactoringPlan{
		Changes:       changes,
		AffectedFiles: affected,
	}
}
