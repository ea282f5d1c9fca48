package extract

import (
	"bytes"
	"context"
	"go/ast"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/types"
)

// InsertionPoint is where the new declaration goes.
type InsertionPoint struct {
	Mode types.ExtractMode
	// Offset is the byte offset the declaration text is inserted at.
	Offset int
	// Local is set for a function literal declared in the enclosing
	// statement list.
	Local bool
	// Anchor is the statement the local declaration is placed before.
	Anchor ast.Stmt
}

// InsertionPointResolver finds the container for the new declaration.
type InsertionPointResolver struct{}

// Resolve places package-level functions and methods after the enclosing
// top-level declaration, and local functions in front of the statement
// holding the selection.
func (InsertionPointResolver) Resolve(ctx context.Context, sel *SelectionResult, mode types.ExtractMode) (InsertionPoint, OperationStatus) {
	if err := ctx.Err(); err != nil {
		return InsertionPoint{}, Failure(err.Error())
	}
	doc, r := sel.Document(), sel.Region
	ip := InsertionPoint{Mode: mode}

	if mode == types.ModeLocalFunction {
		anchor := anchorStatement(r)
		if anchor == nil {
			return ip, Failure("no available region")
		}
		ip.Local = true
		ip.Anchor = anchor
		ip.Offset = doc.Offset(anchor.Pos())
	} else {
		ip.Offset = lineEnd(doc.Src, doc.Offset(r.Decl.End()))
	}

	if doc.IsHidden(analysis.Span{Start: ip.Offset, End: ip.Offset}) {
		return ip, Failure("no available region")
	}
	return ip, Success()
}

// anchorStatement returns the statement of a statement list that holds the
// region.
func anchorStatement(r *analysis.Region) ast.Stmt {
	if !r.IsExpression() {
		return r.Stmts[0]
	}
	var child ast.Node = r.Expr
	for _, n := range r.Path {
		if n == ast.Node(r.Expr) {
			continue
		}
		if list, ok := stmtList(n); ok {
			for _, s := range list {
				if s == child {
					return s
				}
			}
			return nil
		}
		if _, ok := n.(*ast.FuncLit); ok {
			return nil
		}
		child = n
	}
	return nil
}

func lineEnd(src []byte, off int) int {
	if i := bytes.IndexByte(src[off:], '\n'); i >= 0 {
		return off + i
	}
	return len(src)
}
