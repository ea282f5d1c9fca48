package types

import (
	"go/ast"
	"go/token"
	"go/types"
	"path/filepath"
)

// Workspace represents a complete Go module loaded from disk
type Workspace struct {
	RootPath     string
	Module       *Module
	Packages     map[string]*Package // directory -> Package
	ImportToPath map[string]string   // import path -> directory
	FileSet      *token.FileSet
}

// Package represents a single Go package
type Package struct {
	Path       string // Filesystem directory
	ImportPath string
	Name       string
	Dir        string
	Files      map[string]*File // filename -> File
	TestFiles  map[string]*File
	Imports    []string
	TypesPkg   *types.Package
	TypesInfo  *types.Info
}

// File represents a single Go source file
type File struct {
	Path            string
	Package         *Package
	AST             *ast.File
	OriginalContent []byte
	Generated       bool
}

// Module represents Go module information
type Module struct {
	Path      string
	GoVersion string // from the go directive, e.g. "1.25"
	GoMod     string // Contents of go.mod
}

// FindFile looks a source file up by path, accepting relative paths
// against the workspace root.
func (ws *Workspace) FindFile(path string) (*File, *Package, bool) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(ws.RootPath, path)
	}
	path = filepath.Clean(path)
	pkg, ok := ws.Packages[filepath.Dir(path)]
	if !ok {
		return nil, nil, false
	}
	base := filepath.Base(path)
	if f, ok := pkg.Files[base]; ok {
		return f, pkg, true
	}
	if f, ok := pkg.TestFiles[base]; ok {
		return f, pkg, true
	}
	return nil, nil, false
}

// GoVersion reports the module's language version, or "" when unknown.
func (ws *Workspace) GoVersion() string {
	if ws.Module == nil {
		return ""
	}
	return ws.Module.GoVersion
}
