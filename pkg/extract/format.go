package extract

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/mamaar/goextract/pkg/analysis"
)

// formatDocument adds the missing imports and gofmts doc. Markers do not
// survive formatting.
func formatDocument(doc *analysis.Document, imports []string) (*analysis.Document, error) {
	for _, path := range imports {
		astutil.AddImport(doc.Fset, doc.File, path)
	}
	var buf bytes.Buffer
	if err := format.Node(&buf, doc.Fset, doc.File); err != nil {
		return nil, fmt.Errorf("formatting %s: %w", doc.Path, err)
	}
	out, err := analysis.ParseDocument(doc.Path, buf.Bytes())
	if err != nil {
		return nil, err
	}
	out.GoVersion = doc.GoVersion
	return out, nil
}

// findCallName returns the identifier naming the new function at its call
// site.
func findCallName(doc *analysis.Document, name string) (*ast.Ident, bool) {
	var found *ast.Ident
	ast.Inspect(doc.File, func(n ast.Node) bool {
		if found != nil {
			return false
		}
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		fun := call.Fun
		if ix, ok := fun.(*ast.IndexExpr); ok {
			fun = ix.X
		} else if ix, ok := fun.(*ast.IndexListExpr); ok {
			fun = ix.X
		}
		switch f := fun.(type) {
		case *ast.Ident:
			if f.Name == name {
				found = f
			}
		case *ast.SelectorExpr:
			if f.Sel.Name == name {
				found = f.Sel
			}
		}
		return true
	})
	return found, found != nil
}
