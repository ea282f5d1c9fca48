package extract

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	gotypes "go/types"
	"log/slog"

	"github.com/mamaar/goextract/pkg/analysis"
)

// SelectionKind tells an expression selection from a statement run.
type SelectionKind int

const (
	SelectStatements SelectionKind = iota
	SelectExpression
)

func (k SelectionKind) String() string {
	if k == SelectExpression {
		return "expression"
	}
	return "statements"
}

// SelectionResult is a span resolved to a legal extraction boundary.
type SelectionResult struct {
	Kind   SelectionKind
	Region *analysis.Region
	// First and Last track the first and last selected tokens across
	// rewrites.
	First, Last analysis.Marker
	Status      OperationStatus

	doc *analysis.Document
	cf  *analysis.ControlFlow
}

// Document returns the snapshot the selection was resolved against. It
// carries the First and Last markers.
func (s *SelectionResult) Document() *analysis.Document { return s.doc }

// Span returns the selected source range.
func (s *SelectionResult) Span() analysis.Span { return s.Region.Span }

// ControlFlow returns the control-flow facts gathered during validation.
func (s *SelectionResult) ControlFlow() *analysis.ControlFlow { return s.cf }

func (s *SelectionResult) IsExpression() bool { return s.Kind == SelectExpression }

// With re-derives the selection against a later snapshot of the same file
// by locating the First and Last markers in it.
func (s *SelectionResult) With(doc *analysis.Document) (*SelectionResult, bool) {
	first, ok1 := doc.Lookup(s.First)
	last, ok2 := doc.Lookup(s.Last)
	if !ok1 || !ok2 {
		return nil, false
	}
	span := analysis.Span{Start: first.Start, End: last.End}
	path, _ := doc.PathEnclosingInterval(span)
	var r *analysis.Region
	if s.IsExpression() {
		e, ok := exactExpr(doc, path, span)
		if !ok {
			return nil, false
		}
		r, ok = analysis.NewRegion(doc, path, nil, e)
		if !ok {
			return nil, false
		}
	} else {
		stmts, ok := stmtRun(doc, path, span)
		if !ok {
			return nil, false
		}
		r, ok = analysis.NewRegion(doc, path, stmts, nil)
		if !ok {
			return nil, false
		}
	}
	out := *s
	out.Region, out.doc = r, doc
	return &out, true
}

func exactExpr(doc *analysis.Document, path []ast.Node, span analysis.Span) (ast.Expr, bool) {
	for _, n := range path {
		if e, ok := n.(ast.Expr); ok && doc.SpanOf(e) == span {
			return e, true
		}
	}
	return nil, false
}

// stmtRun finds the statements of the innermost list whose spans exactly
// cover span.
func stmtRun(doc *analysis.Document, path []ast.Node, span analysis.Span) ([]ast.Stmt, bool) {
	for _, n := range path {
		list, ok := stmtList(n)
		if !ok {
			continue
		}
		var run []ast.Stmt
		for _, s := range list {
			if span.Contains(doc.SpanOf(s)) {
				run = append(run, s)
			}
		}
		if len(run) > 0 && doc.Offset(run[0].Pos()) == span.Start && doc.Offset(run[len(run)-1].End()) == span.End {
			return run, true
		}
	}
	return nil, false
}

func stmtList(n ast.Node) ([]ast.Stmt, bool) {
	switch n := n.(type) {
	case *ast.BlockStmt:
		return n.List, true
	case *ast.CaseClause:
		return n.Body, true
	case *ast.CommClause:
		return n.Body, true
	}
	return nil, false
}

// Validator resolves raw spans to selections.
type Validator struct {
	oracle analysis.Oracle
	logger *slog.Logger
}

func NewValidator(oracle analysis.Oracle, logger *slog.Logger) *Validator {
	return &Validator{oracle: oracle, logger: logger}
}

// Validate resolves span to the nearest legal selection and checks that it
// can be moved into a function of its own. Problems with the selection are
// reported in the status; errors are reserved for oracle failures.
func (v *Validator) Validate(ctx context.Context, doc *analysis.Document, span analysis.Span) (*SelectionResult, error) {
	if doc.Info == nil {
		return nil, fmt.Errorf("validating selection in %s: document is not type-checked", doc.Path)
	}
	raw := span
	span = doc.TrimSpan(span)
	if span.Empty() {
		return failedSelection(doc, "selection is empty"), nil
	}
	if doc.IsHidden(span) {
		return failedSelection(doc, "selection is in generated code"), nil
	}

	path, _ := doc.PathEnclosingInterval(span)
	sel, status := v.resolve(doc, path, span)
	if status.Failed() {
		return failedSelection(doc, status.Reasons()...), nil
	}
	if !doc.SpanOf(sel.Region.Body).Contains(doc.CoverTokens(raw)) {
		return failedSelection(doc, "selection extends past the enclosing function"), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cf, err := v.oracle.ControlFlow(ctx, doc, sel.Region)
	if err != nil {
		return nil, fmt.Errorf("validating selection: %w", err)
	}
	sel.cf = cf
	status = status.With(checkControlFlow(cf))
	status = status.With(checkDeclarations(doc, sel.Region))
	if status.Failed() {
		return failedSelection(doc, status.Reasons()...), nil
	}

	toks := doc.Tokens()
	first := toks[doc.TokenAtOrAfter(sel.Region.Span.Start)].Span
	last := toks[doc.TokenBefore(sel.Region.Span.End)].Span
	doc, sel.First = doc.Mark(first)
	doc, sel.Last = doc.Mark(last)
	sel.doc = doc
	sel.Status = status

	v.logger.Debug("selection resolved", "file", doc.Path, "kind", sel.Kind, "span", sel.Region.Span)
	return sel, nil
}

func failedSelection(doc *analysis.Document, reasons ...string) *SelectionResult {
	return &SelectionResult{doc: doc, Status: Failure(reasons...)}
}

// resolve maps the trimmed span onto an expression or a statement run.
func (v *Validator) resolve(doc *analysis.Document, path []ast.Node, span analysis.Span) (*SelectionResult, OperationStatus) {
	if len(path) == 0 {
		return nil, Failure("selection is not inside a function body")
	}

	switch n := path[0].(type) {
	case *ast.BlockStmt, *ast.CaseClause, *ast.CommClause:
		return v.resolveStatements(doc, path, span)
	case *ast.LabeledStmt:
		return v.resolveStatements(doc, path[1:], doc.SpanOf(n))
	case ast.Stmt:
		return v.resolveStatement(doc, path, n)
	case ast.Expr:
		return v.resolveExpression(doc, path)
	case *ast.File, *ast.GenDecl, *ast.FuncDecl, *ast.FieldList, *ast.Field:
		if fd, ok := path[0].(*ast.FuncDecl); ok && fd.Body != nil && doc.SpanOf(fd.Body).Contains(span) {
			return v.resolveStatements(doc, append([]ast.Node{fd.Body}, path...), span)
		}
		return nil, Failure("selection is not inside a function body")
	}
	return nil, Failure("selection does not contain an expression or statements")
}

func (v *Validator) resolveStatements(doc *analysis.Document, path []ast.Node, span analysis.Span) (*SelectionResult, OperationStatus) {
	list, ok := stmtList(path[0])
	if !ok {
		return nil, Failure("selection does not contain an expression or statements")
	}
	var run []ast.Stmt
	for _, s := range list {
		if doc.SpanOf(s).Overlaps(span) {
			run = append(run, s)
		}
	}
	if len(run) == 0 {
		return nil, Failure("selection does not contain statements")
	}
	covered := analysis.Span{Start: doc.Offset(run[0].Pos()), End: doc.Offset(run[len(run)-1].End())}
	if !covered.Contains(span) {
		switch c := path[0].(type) {
		case *ast.CaseClause:
			if span.Start < covered.Start {
				return nil, Failure("selection covers part of a case clause")
			}
		case *ast.CommClause:
			if span.Start < covered.Start {
				return nil, Failure("selection covers part of a select case")
			}
		case *ast.BlockStmt:
			if len(path) > 1 {
				if _, isFunc := path[1].(*ast.FuncDecl); !isFunc {
					if _, isLit := path[1].(*ast.FuncLit); !isLit && !doc.SpanOf(c).Contains(span) {
						return nil, Failure("selection covers part of a statement")
					}
				}
			}
		}
	}
	r, ok := analysis.NewRegion(doc, path, run, nil)
	if !ok {
		return nil, Failure("selection is not inside a function body")
	}
	return &SelectionResult{Kind: SelectStatements, Region: r}, Success()
}

// resolveStatement handles a span inside a single statement: it becomes a
// one-statement run when the statement sits in a statement list.
func (v *Validator) resolveStatement(doc *analysis.Document, path []ast.Node, s ast.Stmt) (*SelectionResult, OperationStatus) {
	if len(path) < 2 {
		return nil, Failure("selection is not inside a function body")
	}
	parent := path[1]
	if ls, ok := parent.(*ast.LabeledStmt); ok && ls.Stmt == s {
		return v.resolveStatement(doc, path[1:], ls)
	}
	switch p := parent.(type) {
	case *ast.ForStmt:
		if p.Init == s || p.Post == s {
			return nil, Failure("selection is part of a for clause")
		}
	case *ast.IfStmt:
		if p.Init == s {
			return nil, Failure("selection is part of an if header")
		}
		if p.Else == s {
			return nil, Failure("selection is part of an else branch")
		}
	case *ast.SwitchStmt:
		if p.Init == s {
			return nil, Failure("selection is part of a switch header")
		}
	case *ast.TypeSwitchStmt:
		if p.Init == s || p.Assign == s {
			return nil, Failure("selection is part of a switch header")
		}
	case *ast.CommClause:
		if p.Comm == s {
			return nil, Failure("selection is part of a select case")
		}
	}
	if _, ok := stmtList(parent); !ok {
		return nil, Failure("selection does not contain statements")
	}
	r, ok := analysis.NewRegion(doc, path[1:], []ast.Stmt{s}, nil)
	if !ok {
		return nil, Failure("selection is not inside a function body")
	}
	return &SelectionResult{Kind: SelectStatements, Region: r}, Success()
}

// resolveExpression widens the span to the innermost value expression.
// An expression making up a whole expression statement selects the
// statement.
func (v *Validator) resolveExpression(doc *analysis.Document, path []ast.Node) (*SelectionResult, OperationStatus) {
	e := path[0].(ast.Expr)
	if _, isKV := e.(*ast.KeyValueExpr); isKV {
		return nil, Failure("selection covers a key and its value")
	}
	parents := path[1:]
	if len(parents) > 0 {
		if es, ok := parents[0].(*ast.ExprStmt); ok && es.X == e {
			return v.resolveStatement(doc, parents, es)
		}
	}
	if status := checkExpression(doc, e, parents); status.Failed() {
		return nil, status
	}
	r, ok := analysis.NewRegion(doc, path, nil, e)
	if !ok {
		return nil, Failure("selection is not inside a function body")
	}
	return &SelectionResult{Kind: SelectExpression, Region: r}, Success()
}

// checkExpression rejects expressions that do not denote a value or whose
// position requires the expression itself.
func checkExpression(doc *analysis.Document, e ast.Expr, parents []ast.Node) OperationStatus {
	tv, known := doc.Info.Types[e]
	switch {
	case known && tv.IsType():
		return Failure("cannot extract a type")
	case known && tv.IsBuiltin():
		return Failure("cannot extract a built-in function name")
	case known && tv.IsNil():
		return Failure("cannot extract nil")
	case known && tv.IsVoid():
		return Failure("expression has no value")
	}
	if id, ok := e.(*ast.Ident); ok {
		switch doc.ObjectOf(id).(type) {
		case *gotypes.PkgName:
			return Failure("cannot extract a package name")
		case *gotypes.Label:
			return Failure("cannot extract a label")
		}
	}
	if !known || tv.Type == nil || tv.Type == gotypes.Typ[gotypes.Invalid] {
		return Failure("expression has no known type")
	}
	if sig, ok := tv.Type.(*gotypes.Signature); ok && sig.TypeParams().Len() > 0 {
		return Failure("cannot extract an uninstantiated generic function")
	}

	if len(parents) == 0 {
		return Success()
	}
	switch p := parents[0].(type) {
	case *ast.SelectorExpr:
		if p.Sel == e {
			return Failure("cannot extract a field or method name")
		}
	case *ast.KeyValueExpr:
		if p.Key == e && len(parents) > 1 {
			if lit, ok := parents[1].(*ast.CompositeLit); ok {
				if _, isStruct := underlying(doc.TypeOf(lit)).(*gotypes.Struct); isStruct {
					return Failure("cannot extract a field name of a composite literal")
				}
			}
		}
	case *ast.AssignStmt:
		for _, lhs := range p.Lhs {
			if lhs == e {
				return Failure("cannot extract the target of an assignment")
			}
		}
	case *ast.IncDecStmt:
		return Failure("cannot extract the operand of " + p.Tok.String())
	case *ast.UnaryExpr:
		if p.Op == token.AND {
			return Failure("cannot extract the operand of &")
		}
	case *ast.RangeStmt:
		if p.Key == e || p.Value == e {
			return Failure("cannot extract a range variable")
		}
	case *ast.DeferStmt, *ast.GoStmt:
		return Failure("cannot extract the call of a go or defer statement")
	case *ast.BranchStmt, *ast.LabeledStmt:
		return Failure("cannot extract a label")
	}

	if needsAddress(doc, e, parents) {
		return Failure("cannot extract an expression whose address is needed")
	}

	for i, n := range parents {
		switch p := n.(type) {
		case *ast.ArrayType:
			return Failure("cannot extract an array length")
		case *ast.GenDecl:
			if p.Tok == token.CONST {
				return Failure("cannot extract part of a constant declaration")
			}
		case *ast.CommClause:
			if i > 0 && p.Comm != nil && p.Comm == parents[i-1] {
				return Failure("cannot extract part of a select case")
			}
		case *ast.FuncDecl, *ast.FuncLit:
			return Success()
		}
	}
	return Success()
}

// needsAddress reports whether e is used as an addressable operand: the
// base of an assigned field or element, or the receiver of a pointer
// method called on a value.
func needsAddress(doc *analysis.Document, e ast.Expr, parents []ast.Node) bool {
	if !isVariable(doc, e) {
		return false
	}
	var child ast.Node = e
	for _, n := range parents {
		switch p := n.(type) {
		case *ast.ParenExpr:
		case *ast.SelectorExpr:
			sel := doc.Info.Selections[p]
			if sel == nil || p.X != child {
				return false
			}
			if sel.Kind() == gotypes.MethodVal {
				if sig, ok := sel.Obj().Type().(*gotypes.Signature); ok && sig.Recv() != nil {
					_, ptrRecv := sig.Recv().Type().(*gotypes.Pointer)
					_, ptrOperand := doc.TypeOf(e).Underlying().(*gotypes.Pointer)
					return ptrRecv && !ptrOperand && !sel.Indirect()
				}
				return false
			}
			if sel.Indirect() {
				return false
			}
		case *ast.IndexExpr:
			if p.X != child {
				return false
			}
			if _, isArray := doc.TypeOf(p.X).Underlying().(*gotypes.Array); !isArray {
				return false
			}
		case *ast.UnaryExpr:
			return p.Op == token.AND
		case *ast.AssignStmt:
			for _, lhs := range p.Lhs {
				if lhs == child {
					return true
				}
			}
			return false
		case *ast.IncDecStmt:
			return true
		case *ast.RangeStmt:
			return p.Key == child || p.Value == child
		default:
			return false
		}
		child = n
	}
	return false
}

func isVariable(doc *analysis.Document, e ast.Expr) bool {
	tv, ok := doc.Info.Types[e]
	return ok && tv.Addressable()
}

func underlying(t gotypes.Type) gotypes.Type {
	if t == nil {
		return nil
	}
	if p, ok := t.Underlying().(*gotypes.Pointer); ok {
		return p.Elem().Underlying()
	}
	return t.Underlying()
}

// checkControlFlow enforces structured exits: everything leaving the
// selection must be expressible as a return of the new function.
func checkControlFlow(cf *analysis.ControlFlow) OperationStatus {
	status := Success()
	if cf.Count(analysis.ExitGoto) > 0 {
		status = status.With(Failure("selection contains a goto that leaves it"))
	}
	if cf.Count(analysis.ExitFallthrough) > 0 {
		status = status.With(Failure("selection contains a fallthrough that leaves it"))
	}
	if len(cf.EntryPoints) > 0 {
		status = status.With(Failure(fmt.Sprintf("label %s is targeted from outside the selection", cf.EntryPoints[0].Label.Name)))
	}
	if len(cf.Defers) > 0 {
		status = status.With(Failure("selection contains a defer statement"))
	}
	if len(cf.Recovers) > 0 {
		status = status.With(Failure("selection calls recover"))
	}
	for _, kind := range []analysis.ExitKind{analysis.ExitBreak, analysis.ExitContinue} {
		targets := map[ast.Node]bool{}
		for _, e := range cf.Exits {
			if e.Kind == kind {
				targets[e.Target] = true
			}
		}
		if len(targets) > 1 {
			status = status.With(Failure(fmt.Sprintf("%s statements leave the selection to different targets", kind)))
		}
	}
	if !cf.StartReachable {
		status = status.WithReason("selection is unreachable")
	}
	return status
}

// checkDeclarations rejects selections declaring types, constants or
// labels that code after the selection still needs.
func checkDeclarations(doc *analysis.Document, r *analysis.Region) OperationStatus {
	declared := map[gotypes.Object]bool{}
	for _, n := range r.Nodes() {
		ast.Inspect(n, func(n ast.Node) bool {
			id, ok := n.(*ast.Ident)
			if !ok {
				return true
			}
			switch obj := doc.Info.Defs[id].(type) {
			case *gotypes.TypeName, *gotypes.Const:
				declared[obj] = true
			}
			return true
		})
	}
	if len(declared) == 0 {
		return Success()
	}
	for id, obj := range doc.Info.Uses {
		if declared[obj] && !r.Span.Contains(doc.SpanOf(id)) {
			return Failure(fmt.Sprintf("%s is declared in the selection and used after it", obj.Name()))
		}
	}
	return Success()
}
