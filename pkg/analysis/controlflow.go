package analysis

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	gotypes "go/types"

	"golang.org/x/tools/go/ast/inspector"
	"golang.org/x/tools/go/cfg"
	"golang.org/x/tools/go/types/typeutil"
)

// ControlFlow computes exits, entries and reachability of r.
func (o *GoOracle) ControlFlow(ctx context.Context, doc *Document, r *Region) (*ControlFlow, error) {
	if doc.Info == nil {
		return nil, fmt.Errorf("control flow for %s: document is not type-checked", doc.Path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cf := &ControlFlow{StartReachable: true, EndReachable: true}
	inside := func(n ast.Node) bool { return r.Span.Contains(doc.SpanOf(n)) }

	ins := inspector.New([]*ast.File{doc.File})
	funcCur, ok := ins.Root().FindNode(r.Func)
	if !ok {
		return nil, fmt.Errorf("control flow for %s: function not found", doc.Path)
	}

	labels := map[*gotypes.Label]*ast.LabeledStmt{}
	for c := range funcCur.Preorder((*ast.LabeledStmt)(nil)) {
		ls := c.Node().(*ast.LabeledStmt)
		if l, ok := doc.Info.Defs[ls.Label].(*gotypes.Label); ok {
			labels[l] = ls
		}
	}

	kinds := []ast.Node{
		(*ast.ReturnStmt)(nil),
		(*ast.BranchStmt)(nil),
		(*ast.DeferStmt)(nil),
		(*ast.CallExpr)(nil),
	}
	for c := range funcCur.Preorder(kinds...) {
		if !sameFunc(c, r.Func) {
			continue
		}
		switch n := c.Node().(type) {
		case *ast.ReturnStmt:
			if inside(n) {
				cf.Exits = append(cf.Exits, Exit{Kind: ExitReturn, Stmt: n})
			}
		case *ast.DeferStmt:
			if inside(n) {
				cf.Defers = append(cf.Defers, n)
			}
		case *ast.CallExpr:
			if inside(n) && isBuiltin(doc.Info, n, "recover") {
				cf.Recovers = append(cf.Recovers, n)
			}
		case *ast.BranchStmt:
			target := branchTarget(doc.Info, c, n, labels)
			if target == nil {
				continue
			}
			switch {
			case inside(n) && !inside(target):
				label := ""
				if n.Label != nil {
					label = n.Label.Name
				}
				cf.Exits = append(cf.Exits, Exit{Kind: branchKind(n.Tok), Stmt: n, Label: label, Target: target})
			case !inside(n) && inside(target):
				if ls, ok := target.(*ast.LabeledStmt); ok {
					cf.EntryPoints = append(cf.EntryPoints, ls)
				} else if n.Label != nil {
					if l, ok := doc.Info.Uses[n.Label].(*gotypes.Label); ok {
						cf.EntryPoints = append(cf.EntryPoints, labels[l])
					}
				}
			}
		}
	}

	if !r.IsExpression() {
		cf.EndReachable = fallsList(doc.Info, r.Stmts)
		cf.StartReachable = startReachable(doc, r)
	}
	return cf, nil
}

func branchKind(tok token.Token) ExitKind {
	switch tok {
	case token.BREAK:
		return ExitBreak
	case token.CONTINUE:
		return ExitContinue
	case token.GOTO:
		return ExitGoto
	}
	return ExitFallthrough
}

// sameFunc reports whether the innermost function around c is fn.
func sameFunc(c inspector.Cursor, fn ast.Node) bool {
	for p := range c.Enclosing((*ast.FuncLit)(nil), (*ast.FuncDecl)(nil)) {
		if p.Node() == c.Node() {
			continue
		}
		return p.Node() == fn
	}
	return false
}

// branchTarget returns the statement a branch transfers control to. For
// break and continue that is the loop, switch or select itself; for goto the
// labeled statement; for fallthrough the switch.
func branchTarget(info *gotypes.Info, c inspector.Cursor, n *ast.BranchStmt, labels map[*gotypes.Label]*ast.LabeledStmt) ast.Node {
	if n.Label != nil {
		l, ok := info.Uses[n.Label].(*gotypes.Label)
		if !ok {
			return nil
		}
		ls := labels[l]
		if ls == nil || n.Tok == token.GOTO {
			return ls
		}
		return ls.Stmt
	}
	for p := range c.Enclosing() {
		switch p.Node().(type) {
		case *ast.ForStmt, *ast.RangeStmt:
			if n.Tok == token.BREAK || n.Tok == token.CONTINUE {
				return p.Node()
			}
		case *ast.SwitchStmt, *ast.TypeSwitchStmt:
			if n.Tok == token.BREAK || n.Tok == token.FALLTHROUGH {
				return p.Node()
			}
		case *ast.SelectStmt:
			if n.Tok == token.BREAK {
				return p.Node()
			}
		case *ast.FuncLit, *ast.FuncDecl:
			return nil
		}
	}
	return nil
}

func isBuiltin(info *gotypes.Info, call *ast.CallExpr, name string) bool {
	b, ok := typeutil.Callee(info, call).(*gotypes.Builtin)
	return ok && b.Name() == name
}

func isPanicCall(info *gotypes.Info, e ast.Expr) bool {
	call, ok := ast.Unparen(e).(*ast.CallExpr)
	return ok && isBuiltin(info, call, "panic")
}

// noReturn lists functions that never return to their caller.
var noReturn = map[string]bool{
	"os.Exit":        true,
	"log.Fatal":      true,
	"log.Fatalf":     true,
	"log.Fatalln":    true,
	"log.Panic":      true,
	"log.Panicf":     true,
	"log.Panicln":    true,
	"runtime.Goexit": true,
}

func mayReturn(info *gotypes.Info) func(*ast.CallExpr) bool {
	return func(call *ast.CallExpr) bool {
		if isBuiltin(info, call, "panic") {
			return false
		}
		if fn, ok := typeutil.Callee(info, call).(*gotypes.Func); ok && fn.Pkg() != nil {
			return !noReturn[fn.Pkg().Path()+"."+fn.Name()]
		}
		return true
	}
}

// startReachable uses the function's control-flow graph to decide whether
// execution can reach the first selected statement.
func startReachable(doc *Document, r *Region) bool {
	g := cfg.New(r.Body, mayReturn(doc.Info))
	first := doc.SpanOf(r.Stmts[0])
	for _, b := range g.Blocks {
		for _, n := range b.Nodes {
			if first.Contains(doc.SpanOf(n)) {
				return b.Live
			}
		}
	}
	return true
}

// fallsList reports whether control can run off the end of list.
func fallsList(info *gotypes.Info, list []ast.Stmt) bool {
	for _, s := range list {
		if !falls(info, s) {
			return false
		}
	}
	return true
}

func falls(info *gotypes.Info, s ast.Stmt) bool {
	switch s := s.(type) {
	case *ast.ReturnStmt:
		return false
	case *ast.BranchStmt:
		return false
	case *ast.ExprStmt:
		if call, ok := ast.Unparen(s.X).(*ast.CallExpr); ok {
			return mayReturn(info)(call)
		}
		return true
	case *ast.BlockStmt:
		return fallsList(info, s.List)
	case *ast.LabeledStmt:
		return falls(info, s.Stmt) || hasBreakTo(info, s.Stmt, s.Label)
	case *ast.IfStmt:
		if s.Else == nil {
			return true
		}
		return falls(info, s.Body) || falls(info, s.Else)
	case *ast.ForStmt:
		return s.Cond != nil || hasBreakTo(info, s, nil)
	case *ast.SwitchStmt:
		return clausesFall(info, s.Body) || hasBreakTo(info, s, nil)
	case *ast.TypeSwitchStmt:
		return clausesFall(info, s.Body) || hasBreakTo(info, s, nil)
	case *ast.SelectStmt:
		if len(s.Body.List) == 0 {
			return false
		}
		return clausesFall(info, s.Body) || hasBreakTo(info, s, nil)
	}
	return true
}

func clausesFall(info *gotypes.Info, body *ast.BlockStmt) bool {
	if _, isSelect := firstClause(body).(*ast.CommClause); !isSelect && !hasDefault(body) {
		return true
	}
	for _, c := range body.List {
		var list []ast.Stmt
		switch c := c.(type) {
		case *ast.CaseClause:
			list = c.Body
		case *ast.CommClause:
			list = c.Body
		}
		if n := len(list); n > 0 {
			if br, ok := list[n-1].(*ast.BranchStmt); ok && br.Tok == token.FALLTHROUGH {
				continue
			}
		}
		if fallsList(info, list) {
			return true
		}
	}
	return false
}

func firstClause(body *ast.BlockStmt) ast.Stmt {
	if len(body.List) == 0 {
		return nil
	}
	return body.List[0]
}

// hasBreakTo reports whether a break inside target leaves it, either
// unlabeled at the top nesting level or naming label.
func hasBreakTo(info *gotypes.Info, target ast.Node, label *ast.Ident) bool {
	var wantLabel gotypes.Object
	if label != nil {
		wantLabel = info.Defs[label]
	}
	found := false
	var visit func(n ast.Node, nested bool) bool
	visit = func(n ast.Node, nested bool) bool {
		if found || n == nil {
			return false
		}
		switch n := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.BranchStmt:
			if n.Tok != token.BREAK {
				return false
			}
			if n.Label == nil && !nested {
				found = true
			}
			if n.Label != nil && wantLabel != nil && info.Uses[n.Label] == wantLabel {
				found = true
			}
			return false
		case *ast.ForStmt, *ast.RangeStmt, *ast.SwitchStmt, *ast.TypeSwitchStmt, *ast.SelectStmt:
			if n != target {
				ast.Inspect(n, func(c ast.Node) bool {
					if c == n {
						return true
					}
					return visit(c, true)
				})
				return false
			}
		}
		return true
	}
	ast.Inspect(target, func(c ast.Node) bool {
		if c == target {
			return true
		}
		return visit(c, false)
	})
	return found
}
