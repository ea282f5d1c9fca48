package analysis

import (
	"context"
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	gotypes "go/types"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/mod/modfile"
	"golang.org/x/sync/errgroup"

	"github.com/mamaar/goextract/pkg/types"
)

// GoParser loads Go workspaces and type-checks their packages on demand.
type GoParser struct {
	fileSet  *token.FileSet
	logger   *slog.Logger
	importer *workspaceImporter

	// Exclude holds doublestar globs, relative to the workspace root, of
	// files and directories skipped while parsing.
	Exclude []string
	// Hidden holds globs of files whose code may not be rewritten.
	Hidden []string

	mu       sync.Mutex // serializes type-checking
	checking map[*types.Package]bool
}

func NewParser(logger *slog.Logger) *GoParser {
	return &GoParser{
		fileSet: token.NewFileSet(),
		logger:  logger,
	}
}

// FileSet returns the file set shared by every file this parser reads.
func (p *GoParser) FileSet() *token.FileSet { return p.fileSet }

// ParseFile parses a single Go file from disk.
func (p *GoParser) ParseFile(filename string) (*types.File, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.FileSystemError,
			Message: fmt.Sprintf("failed to read file: %v", err),
			File:    filename,
			Cause:   err,
		}
	}
	return p.ParseSource(filename, content)
}

// ParseSource parses content as the file at filename.
func (p *GoParser) ParseSource(filename string, content []byte) (*types.File, error) {
	astFile, err := parser.ParseFile(p.fileSet, filename, content, parser.ParseComments)
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.ParseError,
			Message: fmt.Sprintf("failed to parse file: %v", err),
			File:    filename,
			Cause:   err,
		}
	}
	return &types.File{
		Path:            filename,
		AST:             astFile,
		OriginalContent: content,
		Generated:       ast.IsGenerated(astFile),
	}, nil
}

// ParsePackage parses all Go files of one package directory.
func (p *GoParser) ParsePackage(root, dir string) (*types.Package, error) {
	pkg := &types.Package{
		Path:      dir,
		Dir:       dir,
		Files:     make(map[string]*types.File),
		TestFiles: make(map[string]*types.File),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.FileSystemError,
			Message: fmt.Sprintf("failed to parse package: %v", err),
			File:    dir,
			Cause:   err,
		}
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() || !strings.HasSuffix(path, ".go") || p.excluded(root, path) {
			continue
		}
		file, err := p.ParseFile(path)
		if err != nil {
			return nil, err
		}
		file.Package = pkg
		p.addFile(pkg, file)
	}

	if pkg.Name == "" {
		return nil, &types.RefactorError{
			Type:    types.ParseError,
			Message: "no non-test Go files found in package",
			File:    dir,
		}
	}
	return pkg, nil
}

// addFile inserts or replaces file in pkg and refreshes the import list.
func (p *GoParser) addFile(pkg *types.Package, file *types.File) {
	base := filepath.Base(file.Path)
	if strings.HasSuffix(base, "_test.go") {
		pkg.TestFiles[base] = file
		return
	}
	pkg.Files[base] = file
	if pkg.Name == "" {
		pkg.Name = file.AST.Name.Name
	}
	pkg.Imports = collectImports(pkg)
}

func collectImports(pkg *types.Package) []string {
	var imports []string
	for _, f := range pkg.Files {
		for _, imp := range f.AST.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if !slices.Contains(imports, path) {
				imports = append(imports, path)
			}
		}
	}
	slices.Sort(imports)
	return imports
}

// ParseWorkspace parses every package below rootPath. Directories are
// discovered sequentially and parsed in parallel, at most one goroutine
// per CPU.
func (p *GoParser) ParseWorkspace(ctx context.Context, rootPath string) (*types.Workspace, error) {
	p.logger.Info("parsing workspace", "path", rootPath)

	absRootPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.FileSystemError,
			Message: fmt.Sprintf("failed to get absolute path for workspace: %v", err),
			File:    rootPath,
			Cause:   err,
		}
	}

	workspace := &types.Workspace{
		RootPath:     absRootPath,
		Packages:     make(map[string]*types.Package),
		ImportToPath: make(map[string]string),
		FileSet:      p.fileSet,
	}

	goModPath := filepath.Join(absRootPath, "go.mod")
	if modContent, err := os.ReadFile(goModPath); err == nil {
		module, err := parseGoMod(goModPath, modContent)
		if err != nil {
			return nil, err
		}
		workspace.Module = module
	}

	var pkgDirs []string
	err = filepath.WalkDir(absRootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != absRootPath && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata") {
			return filepath.SkipDir
		}
		if p.excluded(absRootPath, path) {
			return filepath.SkipDir
		}
		hasGoFiles, err := hasGoFiles(path)
		if err != nil {
			return err
		}
		if hasGoFiles {
			pkgDirs = append(pkgDirs, path)
		}
		return nil
	})
	if err != nil {
		p.logger.Error("workspace discovery failed", "path", rootPath, "err", err)
		return nil, &types.RefactorError{
			Type:    types.FileSystemError,
			Message: fmt.Sprintf("failed to parse workspace: %v", err),
			File:    rootPath,
			Cause:   err,
		}
	}

	p.logger.Debug("discovered packages", "count", len(pkgDirs))

	pkgs := make([]*types.Package, len(pkgDirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, dir := range pkgDirs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pkg, err := p.ParsePackage(absRootPath, dir)
			if err != nil {
				// A broken package must not prevent work on the others.
				p.logger.Warn("failed to parse package", "dir", dir, "err", err)
				return nil
			}
			pkgs[i] = pkg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, pkg := range pkgs {
		if pkg == nil {
			continue
		}
		workspace.Packages[pkg.Dir] = pkg
		if workspace.Module != nil {
			pkg.ImportPath = computeImportPath(workspace, pkg.Dir)
			workspace.ImportToPath[pkg.ImportPath] = pkg.Dir
		}
	}

	p.logger.Info("workspace parsed", "packages", len(workspace.Packages), "go", workspace.GoVersion())

	p.importer = &workspaceImporter{ws: workspace, parser: p}
	return workspace, nil
}

// UpdateFile replaces the content of one workspace file, re-parses it and
// drops stale type information of its package.
func (p *GoParser) UpdateFile(ws *types.Workspace, path string, content []byte) (*types.File, error) {
	file, err := p.ParseSource(path, content)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	pkg, ok := ws.Packages[dir]
	if !ok {
		pkg = &types.Package{
			Path:      dir,
			Dir:       dir,
			Files:     make(map[string]*types.File),
			TestFiles: make(map[string]*types.File),
		}
		ws.Packages[dir] = pkg
		if ws.Module != nil {
			pkg.ImportPath = computeImportPath(ws, dir)
			ws.ImportToPath[pkg.ImportPath] = dir
		}
	}
	file.Package = pkg
	p.addFile(pkg, file)
	p.Invalidate(ws, pkg)
	return file, nil
}

// RemoveFile forgets a deleted file.
func (p *GoParser) RemoveFile(ws *types.Workspace, path string) {
	pkg, ok := ws.Packages[filepath.Dir(path)]
	if !ok {
		return
	}
	base := filepath.Base(path)
	delete(pkg.Files, base)
	delete(pkg.TestFiles, base)
	pkg.Imports = collectImports(pkg)
	p.Invalidate(ws, pkg)
}

// Invalidate drops the type information of pkg and of every package that
// imports it, so the next query checks them again.
func (p *GoParser) Invalidate(ws *types.Workspace, pkg *types.Package) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stale := []*types.Package{pkg}
	seen := map[*types.Package]bool{pkg: true}
	for len(stale) > 0 {
		cur := stale[0]
		stale = stale[1:]
		cur.TypesPkg, cur.TypesInfo = nil, nil
		for _, other := range ws.Packages {
			if !seen[other] && cur.ImportPath != "" && slices.Contains(other.Imports, cur.ImportPath) {
				seen[other] = true
				stale = append(stale, other)
			}
		}
	}
}

func (p *GoParser) excluded(root, path string) bool {
	return matchAny(p.Exclude, root, path)
}

func (p *GoParser) hidden(root, path string) bool {
	return matchAny(p.Hidden, root, path)
}

func matchAny(globs []string, root, path string) bool {
	if len(globs) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

func parseGoMod(path string, content []byte) (*types.Module, error) {
	f, err := modfile.ParseLax(path, content, nil)
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.ParseError,
			Message: fmt.Sprintf("failed to parse go.mod: %v", err),
			File:    path,
			Cause:   err,
		}
	}
	module := &types.Module{GoMod: string(content)}
	if f.Module != nil {
		module.Path = f.Module.Mod.Path
	}
	if f.Go != nil {
		module.GoVersion = f.Go.Version
	}
	return module, nil
}

// ComputeImportPath computes the Go import path for a package given its
// filesystem path.
func ComputeImportPath(ws *types.Workspace, fsPath string) string {
	return computeImportPath(ws, fsPath)
}

func computeImportPath(ws *types.Workspace, fsPath string) string {
	if ws.Module == nil {
		return ""
	}
	relPath, err := filepath.Rel(ws.RootPath, fsPath)
	if err != nil || relPath == "." {
		return ws.Module.Path
	}
	return ws.Module.Path + "/" + filepath.ToSlash(relPath)
}

func hasGoFiles(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".go") {
			return true, nil
		}
	}
	return false, nil
}

// EnsureTypeChecked runs type-checking on a package if it hasn't been done yet.
func (p *GoParser) EnsureTypeChecked(ws *types.Workspace, pkg *types.Package) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typeCheck(ws, pkg)
}

func (p *GoParser) typeCheck(ws *types.Workspace, pkg *types.Package) {
	if pkg.TypesPkg != nil || p.checking[pkg] {
		return
	}
	if p.checking == nil {
		p.checking = make(map[*types.Package]bool)
	}
	p.checking[pkg] = true
	defer delete(p.checking, pkg)

	var files []*ast.File
	for _, name := range sortedKeys(pkg.Files) {
		files = append(files, pkg.Files[name].AST)
	}
	if len(files) == 0 {
		return
	}
	pkg.TypesPkg, pkg.TypesInfo = p.check(ws, pkg.ImportPath, files)
}

// check type-checks files, keeping partial results when the package has
// errors: extraction still works on the well-typed parts.
func (p *GoParser) check(ws *types.Workspace, path string, files []*ast.File) (*gotypes.Package, *gotypes.Info) {
	if p.importer == nil {
		p.importer = &workspaceImporter{ws: ws, parser: p}
	}
	var firstErr error
	conf := gotypes.Config{
		Importer: p.importer,
		Error: func(err error) {
			if firstErr == nil {
				firstErr = err
			}
		},
		GoVersion: goVersion(ws.GoVersion()),
	}
	info := NewInfo()
	typesPkg, _ := conf.Check(path, p.fileSet, files, info)
	if firstErr != nil {
		p.logger.Debug("type-checking reported errors", "package", path, "err", firstErr)
	}
	return typesPkg, info
}

// CheckReplacement type-checks the package of path as if the file had
// content, and returns every type error. The workspace is not modified.
func (p *GoParser) CheckReplacement(ws *types.Workspace, path string, content []byte) ([]error, error) {
	file, pkg, ok := ws.FindFile(path)
	if !ok {
		return nil, &types.RefactorError{
			Type:    types.InvalidOperation,
			Message: "file is not part of the workspace",
			File:    path,
		}
	}
	replacement, err := parser.ParseFile(p.fileSet, file.Path, content, parser.ParseComments)
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.ParseError,
			Message: fmt.Sprintf("failed to parse file: %v", err),
			File:    file.Path,
			Cause:   err,
		}
	}

	name := replacement.Name.Name
	var files []*ast.File
	collect := func(m map[string]*types.File) {
		for _, n := range sortedKeys(m) {
			f := m[n]
			switch {
			case f == file:
				files = append(files, replacement)
			case f.AST.Name.Name == name:
				files = append(files, f.AST)
			}
		}
	}
	collect(pkg.Files)
	_, isTest := pkg.TestFiles[filepath.Base(file.Path)]
	if isTest {
		collect(pkg.TestFiles)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.importer == nil {
		p.importer = &workspaceImporter{ws: ws, parser: p}
	}
	var errs []error
	conf := gotypes.Config{
		Importer:  p.importer,
		Error:     func(err error) { errs = append(errs, err) },
		GoVersion: goVersion(ws.GoVersion()),
	}
	importPath := pkg.ImportPath
	if name != pkg.Name {
		importPath += "_test"
	}
	_, _ = conf.Check(importPath, p.fileSet, files, nil)
	return errs, nil
}

// NewInfo allocates every map extraction queries.
func NewInfo() *gotypes.Info {
	return &gotypes.Info{
		Types:      make(map[ast.Expr]gotypes.TypeAndValue),
		Instances:  make(map[*ast.Ident]gotypes.Instance),
		Defs:       make(map[*ast.Ident]gotypes.Object),
		Uses:       make(map[*ast.Ident]gotypes.Object),
		Implicits:  make(map[ast.Node]gotypes.Object),
		Selections: make(map[*ast.SelectorExpr]*gotypes.Selection),
		Scopes:     make(map[ast.Node]*gotypes.Scope),
	}
}

// goVersion turns a go.mod version such as "1.25" or "1.25.1" into the
// form go/types accepts.
func goVersion(v string) string {
	if v == "" {
		return ""
	}
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return "go" + v
	}
	return "go" + parts[0] + "." + parts[1]
}

// DocumentFor returns a type-checked snapshot of a workspace file. In-package
// test files are checked together with the package's other files.
func (p *GoParser) DocumentFor(ws *types.Workspace, path string) (*Document, error) {
	file, pkg, ok := ws.FindFile(path)
	if !ok {
		return nil, &types.RefactorError{
			Type:    types.InvalidOperation,
			Message: "file is not part of the workspace",
			File:    path,
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		typesPkg *gotypes.Package
		info     *gotypes.Info
	)
	if _, isTest := pkg.TestFiles[filepath.Base(file.Path)]; isTest {
		typesPkg, info = p.checkWithTests(ws, pkg, file)
	} else {
		p.typeCheck(ws, pkg)
		typesPkg, info = pkg.TypesPkg, pkg.TypesInfo
	}

	doc := NewDocument(file.Path, file.OriginalContent, ws.FileSet, file.AST).WithTypes(typesPkg, info)
	doc.GoVersion = ws.GoVersion()
	doc.Hidden = file.Generated || p.hidden(ws.RootPath, file.Path)
	return doc, nil
}

func (p *GoParser) checkWithTests(ws *types.Workspace, pkg *types.Package, file *types.File) (*gotypes.Package, *gotypes.Info) {
	name := file.AST.Name.Name
	var files []*ast.File
	if name == pkg.Name {
		for _, n := range sortedKeys(pkg.Files) {
			files = append(files, pkg.Files[n].AST)
		}
	}
	for _, n := range sortedKeys(pkg.TestFiles) {
		if f := pkg.TestFiles[n]; f.AST.Name.Name == name {
			files = append(files, f.AST)
		}
	}
	path := pkg.ImportPath
	if name != pkg.Name {
		path += "_test"
	}
	return p.check(ws, path, files)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// CheckSource parses and type-checks a single standalone file. Imports are
// resolved from compiled export data.
func CheckSource(path string, src []byte, goVer string) (*Document, error) {
	doc, err := ParseDocument(path, src)
	if err != nil {
		return nil, err
	}
	conf := gotypes.Config{
		Importer:  importer.Default(),
		Error:     func(error) {},
		GoVersion: goVersion(goVer),
	}
	info := NewInfo()
	pkg, _ := conf.Check(doc.File.Name.Name, doc.Fset, []*ast.File{doc.File}, info)
	doc = doc.WithTypes(pkg, info)
	doc.GoVersion = goVer
	return doc, nil
}

// workspaceImporter resolves workspace-local packages from source and falls
// back to export data for the standard library and dependencies. Callers
// hold GoParser.mu.
type workspaceImporter struct {
	ws     *types.Workspace
	parser *GoParser
	std    gotypes.Importer
}

func (imp *workspaceImporter) Import(path string) (*gotypes.Package, error) {
	if fsPath, ok := imp.ws.ImportToPath[path]; ok {
		if pkg, ok := imp.ws.Packages[fsPath]; ok {
			imp.parser.typeCheck(imp.ws, pkg)
			if pkg.TypesPkg != nil {
				return pkg.TypesPkg, nil
			}
		}
	}
	if imp.std == nil {
		imp.std = importer.Default()
	}
	return imp.std.Import(path)
}
