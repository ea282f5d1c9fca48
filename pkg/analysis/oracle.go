package analysis

import (
	"context"
	"go/ast"
	gotypes "go/types"
	"log/slog"
	"slices"
)

// Oracle answers the semantic questions extraction asks about a region of a
// type-checked document. Implementations must be safe for concurrent use.
type Oracle interface {
	DataFlow(ctx context.Context, doc *Document, r *Region) (*DataFlow, error)
	ControlFlow(ctx context.Context, doc *Document, r *Region) (*ControlFlow, error)
}

// AsyncSupport is implemented by oracles for languages with suspendable
// functions. Go has none, so GoOracle does not implement it.
type AsyncSupport interface {
	// ContainsSuspendPoint reports whether the region suspends.
	ContainsSuspendPoint(ctx context.Context, doc *Document, r *Region) (bool, error)
	// EnclosingIsAsync reports whether the function around r is suspendable.
	EnclosingIsAsync(doc *Document, r *Region) bool
	// WrapResult wraps a result type for a suspendable function.
	WrapResult(typ string) string
}

// Region is the part of a function body a query is about: either a run of
// sibling statements or a single expression.
type Region struct {
	Decl  *ast.FuncDecl   // top-level declaration containing the region
	Func  ast.Node        // innermost *ast.FuncDecl or *ast.FuncLit
	Body  *ast.BlockStmt  // body of Func
	Path  []ast.Node      // ancestors of the region, innermost first
	Stmts []ast.Stmt      // statement region
	Expr  ast.Expr        // expression region
	Span  Span
}

// NewRegion builds a region from the selected statements or expression and
// the path of its ancestors, innermost first. It fails when the selection
// is not inside a function body.
func NewRegion(doc *Document, path []ast.Node, stmts []ast.Stmt, expr ast.Expr) (*Region, bool) {
	r := &Region{Path: path, Stmts: stmts, Expr: expr}
	for _, n := range path {
		if n == ast.Node(expr) {
			continue
		}
		switch fn := n.(type) {
		case *ast.FuncLit:
			if r.Func == nil {
				r.Func, r.Body = fn, fn.Body
			}
		case *ast.FuncDecl:
			if r.Func == nil {
				r.Func, r.Body = fn, fn.Body
			}
			r.Decl = fn
		}
	}
	if r.Decl == nil || r.Body == nil {
		return nil, false
	}
	switch {
	case expr != nil:
		r.Span = doc.SpanOf(expr)
	case len(stmts) > 0:
		r.Span = Span{doc.Offset(stmts[0].Pos()), doc.Offset(stmts[len(stmts)-1].End())}
	default:
		return nil, false
	}
	if !doc.SpanOf(r.Body).Contains(r.Span) || r.Span == doc.SpanOf(r.Body) {
		return nil, false
	}
	return r, true
}

// IsExpression reports whether the region is a single expression.
func (r *Region) IsExpression() bool { return r.Expr != nil }

// Nodes returns the selected nodes in source order.
func (r *Region) Nodes() []ast.Node {
	if r.Expr != nil {
		return []ast.Node{r.Expr}
	}
	nodes := make([]ast.Node, len(r.Stmts))
	for i, s := range r.Stmts {
		nodes[i] = s
	}
	return nodes
}

// FuncType returns the signature syntax of the innermost function.
func (r *Region) FuncType() *ast.FuncType {
	switch fn := r.Func.(type) {
	case *ast.FuncDecl:
		return fn.Type
	case *ast.FuncLit:
		return fn.Type
	}
	return nil
}

// VarSet is a set of local variables.
type VarSet map[*gotypes.Var]bool

func (s VarSet) Has(v *gotypes.Var) bool { return s[v] }

func (s VarSet) add(v *gotypes.Var) { s[v] = true }

func (s VarSet) clone() VarSet {
	out := make(VarSet, len(s))
	for v := range s {
		out[v] = true
	}
	return out
}

// Sorted returns the members ordered by declaration position.
func (s VarSet) Sorted() []*gotypes.Var {
	out := make([]*gotypes.Var, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b *gotypes.Var) int { return int(a.Pos() - b.Pos()) })
	return out
}

// DataFlow holds the variable facts for a region. Outside means elsewhere
// in the enclosing top-level declaration.
type DataFlow struct {
	Referenced      []*gotypes.Var // in order of first reference inside the region
	DeclaredInside  VarSet
	ReadInside      VarSet
	WrittenInside   VarSet
	ReadOutside     VarSet
	WrittenOutside  VarSet
	DataFlowsIn     VarSet
	DataFlowsOut    VarSet
	AlwaysAssigned  VarSet
	AddressTaken    VarSet // anywhere in the declaration
	Captured        VarSet // referenced from a function literal inside the region
	CapturedWritten VarSet
	MutatedInside   VarSet // pointee or element assigned through the variable
	UsesInside      map[*gotypes.Var][]*ast.Ident

	// SharedWithClosure holds outer variables the region uses that a
	// function literal elsewhere in the declaration also captures.
	SharedWithClosure VarSet
}

// ExitKind classifies a statement that leaves a region.
type ExitKind int

const (
	ExitReturn ExitKind = iota
	ExitBreak
	ExitContinue
	ExitGoto
	ExitFallthrough
)

func (k ExitKind) String() string {
	switch k {
	case ExitReturn:
		return "return"
	case ExitBreak:
		return "break"
	case ExitContinue:
		return "continue"
	case ExitGoto:
		return "goto"
	case ExitFallthrough:
		return "fallthrough"
	}
	return "unknown"
}

// Exit is a statement inside a region that transfers control outside it.
type Exit struct {
	Kind   ExitKind
	Stmt   ast.Stmt
	Label  string   // for labeled branches
	Target ast.Node // branch target; nil for returns
}

// ControlFlow holds the control-flow facts for a region.
type ControlFlow struct {
	Exits          []Exit
	EntryPoints    []*ast.LabeledStmt // labels inside targeted from outside
	StartReachable bool
	EndReachable   bool
	Defers         []*ast.DeferStmt
	Recovers       []*ast.CallExpr
}

// Count returns the number of exits of a kind.
func (c *ControlFlow) Count(kind ExitKind) int {
	n := 0
	for _, e := range c.Exits {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// GoOracle answers queries from go/types information.
type GoOracle struct {
	logger *slog.Logger
}

func NewOracle(logger *slog.Logger) *GoOracle {
	return &GoOracle{logger: logger}
}

var _ Oracle = (*GoOracle)(nil)
