package analysis

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	gotypes "go/types"

	"golang.org/x/tools/go/ast/edge"
	"golang.org/x/tools/go/ast/inspector"
)

// access describes what one identifier occurrence does to its variable.
type access struct {
	read   bool
	write  bool
	addr   bool
	mutate bool
}

// DataFlow computes the variable facts of r.
func (o *GoOracle) DataFlow(ctx context.Context, doc *Document, r *Region) (*DataFlow, error) {
	if doc.Info == nil {
		return nil, fmt.Errorf("data flow for %s: document is not type-checked", doc.Path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	df := &DataFlow{
		DeclaredInside:  VarSet{},
		ReadInside:      VarSet{},
		WrittenInside:   VarSet{},
		ReadOutside:     VarSet{},
		WrittenOutside:  VarSet{},
		DataFlowsIn:     VarSet{},
		DataFlowsOut:    VarSet{},
		AlwaysAssigned:  VarSet{},
		AddressTaken:    VarSet{},
		Captured:        VarSet{},
		CapturedWritten: VarSet{},
		MutatedInside:   VarSet{},

		SharedWithClosure: VarSet{},
		UsesInside:      map[*gotypes.Var][]*ast.Ident{},
	}

	ins := inspector.New([]*ast.File{doc.File})
	declCur, ok := ins.Root().FindNode(r.Decl)
	if !ok {
		return nil, fmt.Errorf("data flow for %s: declaration not found", doc.Path)
	}

	inside := func(n ast.Node) bool {
		return r.Span.Contains(doc.SpanOf(n))
	}
	loop := enclosingLoop(r)
	var readsAfter, loopReads, lateReads = VarSet{}, VarSet{}, VarSet{}
	capturedOutside := VarSet{}
	accesses := map[*ast.Ident]access{}
	referenced := VarSet{}
	reference := func(v *gotypes.Var) {
		if !referenced.Has(v) {
			referenced.add(v)
			df.Referenced = append(df.Referenced, v)
		}
	}

	record := func(v *gotypes.Var, id *ast.Ident, a access, cur inspector.Cursor) {
		if a.addr {
			df.AddressTaken.add(v)
		}
		if inside(id) {
			reference(v)
			df.UsesInside[v] = append(df.UsesInside[v], id)
			if a.read {
				df.ReadInside.add(v)
			}
			if a.write {
				df.WrittenInside.add(v)
			}
			if a.mutate {
				df.MutatedInside.add(v)
			}
			if lit := innermostFuncLit(cur); lit != nil && inside(lit) && !spanHas(lit, v.Pos()) {
				df.Captured.add(v)
				if a.write {
					df.CapturedWritten.add(v)
				}
			}
			return
		}
		if lit := innermostFuncLit(cur); lit != nil && !spanHas(lit, v.Pos()) && !doc.SpanOf(lit).Contains(r.Span) {
			capturedOutside.add(v)
		}
		if a.read {
			df.ReadOutside.add(v)
			if id.Pos() >= r.Decl.Body.Pos() && doc.Offset(id.Pos()) >= r.Span.End {
				readsAfter.add(v)
			}
			if loop != nil && spanHas(loop, id.Pos()) {
				loopReads.add(v)
			}
			if lit := innermostFuncLit(cur); lit != nil {
				lateReads.add(v)
			}
		}
		if a.write {
			df.WrittenOutside.add(v)
		}
	}

	for cur := range declCur.Preorder((*ast.Ident)(nil), (*ast.ReturnStmt)(nil)) {
		switch n := cur.Node().(type) {
		case *ast.Ident:
			v, ok := localVar(doc, n)
			if !ok {
				continue
			}
			a := accessOf(doc.Info, cur, n, v)
			accesses[n] = a
			record(v, n, a, cur)
		case *ast.ReturnStmt:
			if len(n.Results) > 0 {
				continue
			}
			// a bare return reads every named result
			for _, v := range namedResults(doc.Info, enclosingFunc(cur)) {
				id := &ast.Ident{NamePos: n.Pos(), Name: v.Name()}
				if inside(n) {
					reference(v)
					df.ReadInside.add(v)
					continue
				}
				record(v, id, access{read: true}, cur)
			}
		}
	}

	for _, v := range df.Referenced {
		if r.Span.Contains(Span{doc.Offset(v.Pos()), doc.Offset(v.Pos())}) {
			df.DeclaredInside.add(v)
		}
	}

	for _, v := range df.Referenced {
		if capturedOutside.Has(v) && !df.DeclaredInside.Has(v) {
			df.SharedWithClosure.add(v)
		}
	}

	da := newAssignWalker(doc, r, accesses, df.DeclaredInside)
	da.walkRegion()

	for _, v := range df.Referenced {
		if df.DeclaredInside.Has(v) {
			continue
		}
		carried := loop != nil && df.WrittenInside.Has(v)
		if da.readFirst.Has(v) && (df.WrittenOutside.Has(v) || carried) {
			df.DataFlowsIn.add(v)
		}
	}
	for v := range df.WrittenInside {
		if da.dead || da.assigned.Has(v) {
			df.AlwaysAssigned.add(v)
		}
	}
	for v := range df.WrittenInside {
		switch {
		case readsAfter.Has(v), lateReads.Has(v):
			df.DataFlowsOut.add(v)
		case loopReads.Has(v) && v.Pos() < loop.Pos():
			df.DataFlowsOut.add(v)
		case loop != nil && v.Pos() < loop.Pos() && da.readFirst.Has(v):
			df.DataFlowsOut.add(v)
		}
	}
	return df, nil
}

// localVar returns the function-local variable an identifier refers to.
func localVar(doc *Document, id *ast.Ident) (*gotypes.Var, bool) {
	v, ok := doc.ObjectOf(id).(*gotypes.Var)
	if !ok || v.IsField() || v.Pkg() == nil || v.Parent() == nil || v.Parent() == v.Pkg().Scope() {
		return nil, false
	}
	return v, true
}

// accessOf walks up from an identifier to find out how it is used.
func accessOf(info *gotypes.Info, cur inspector.Cursor, id *ast.Ident, v *gotypes.Var) access {
	if info.Defs[id] != nil {
		kind, _ := cur.ParentEdge()
		switch kind {
		case edge.ValueSpec_Names:
			spec := cur.Parent().Node().(*ast.ValueSpec)
			return access{write: len(spec.Values) > 0}
		default:
			// :=, range variables, parameters and results
			return access{write: true}
		}
	}

	node := cur
	partial := false // storage of v itself is reached through the chain
	through := false // storage v points to is reached through the chain
	for {
		kind, _ := node.ParentEdge()
		parent := node.Parent()
		switch kind {
		case edge.ParenExpr_X:
			node = parent
			continue
		case edge.SelectorExpr_X:
			sel := info.Selections[parent.Node().(*ast.SelectorExpr)]
			if sel == nil {
				return access{read: true}
			}
			if sel.Kind() == gotypes.MethodVal {
				if !through && pointerMethodOnValue(sel) {
					return access{read: true, write: true, addr: true}
				}
				return access{read: true}
			}
			if sel.Indirect() || isPointer(info.TypeOf(node.Node().(ast.Expr))) {
				through = true
			} else if !through {
				partial = true
			}
			node = parent
			continue
		case edge.IndexExpr_X:
			if isArray(info.TypeOf(node.Node().(ast.Expr))) {
				if !through {
					partial = true
				}
			} else {
				through = true
			}
			node = parent
			continue
		case edge.StarExpr_X:
			through = true
			node = parent
			continue
		case edge.SliceExpr_X:
			if !through && isArray(info.TypeOf(node.Node().(ast.Expr))) {
				return access{read: true, write: true, addr: true}
			}
			return access{read: true}
		case edge.UnaryExpr_X:
			if parent.Node().(*ast.UnaryExpr).Op == token.AND && !through {
				return access{read: true, write: true, addr: true}
			}
			return access{read: true}
		case edge.AssignStmt_Lhs:
			assign := parent.Node().(*ast.AssignStmt)
			opAssign := assign.Tok != token.ASSIGN && assign.Tok != token.DEFINE
			return storeAccess(partial, through, opAssign)
		case edge.IncDecStmt_X:
			return storeAccess(partial, through, true)
		case edge.RangeStmt_Key, edge.RangeStmt_Value:
			return storeAccess(partial, through, false)
		}
		return access{read: true}
	}
}

func storeAccess(partial, through, readsOld bool) access {
	switch {
	case through:
		return access{read: true, mutate: true}
	case partial:
		return access{read: true, write: true}
	default:
		return access{read: readsOld, write: true}
	}
}

func pointerMethodOnValue(sel *gotypes.Selection) bool {
	fn, ok := sel.Obj().(*gotypes.Func)
	if !ok || sel.Indirect() {
		return false
	}
	recv := fn.Type().(*gotypes.Signature).Recv()
	if recv == nil {
		return false
	}
	return isPointer(recv.Type()) && !isPointer(sel.Recv())
}

func isPointer(t gotypes.Type) bool {
	if t == nil {
		return false
	}
	_, ok := t.Underlying().(*gotypes.Pointer)
	return ok
}

func isArray(t gotypes.Type) bool {
	if t == nil {
		return false
	}
	_, ok := t.Underlying().(*gotypes.Array)
	return ok
}

func innermostFuncLit(cur inspector.Cursor) *ast.FuncLit {
	for c := range cur.Enclosing((*ast.FuncLit)(nil)) {
		return c.Node().(*ast.FuncLit)
	}
	return nil
}

func enclosingFunc(cur inspector.Cursor) ast.Node {
	for c := range cur.Enclosing((*ast.FuncLit)(nil), (*ast.FuncDecl)(nil)) {
		return c.Node()
	}
	return nil
}

// namedResults returns the named result variables of a function node.
func namedResults(info *gotypes.Info, fn ast.Node) []*gotypes.Var {
	var ft *ast.FuncType
	switch fn := fn.(type) {
	case *ast.FuncDecl:
		ft = fn.Type
	case *ast.FuncLit:
		ft = fn.Type
	default:
		return nil
	}
	if ft.Results == nil {
		return nil
	}
	var out []*gotypes.Var
	for _, field := range ft.Results.List {
		for _, name := range field.Names {
			if v, ok := info.Defs[name].(*gotypes.Var); ok {
				out = append(out, v)
			}
		}
	}
	return out
}

// enclosingLoop returns the innermost loop around the region that lies in
// the same function, or nil. A function literal counts as a loop because it
// may run more than once.
func enclosingLoop(r *Region) ast.Node {
	for _, n := range r.Path {
		if n == ast.Node(r.Expr) {
			continue
		}
		switch n.(type) {
		case *ast.ForStmt, *ast.RangeStmt:
			return n
		case *ast.FuncLit:
			return n
		case *ast.FuncDecl:
			return nil
		}
	}
	return nil
}

func spanHas(n ast.Node, pos token.Pos) bool {
	return n.Pos() <= pos && pos < n.End()
}

// assignWalker tracks definite assignment through the region in execution
// order, recording variables read before the region assigns them.
type assignWalker struct {
	doc       *Document
	r         *Region
	accesses  map[*ast.Ident]access
	declared  VarSet
	assigned  VarSet
	readFirst VarSet
	dead      bool
}

func newAssignWalker(doc *Document, r *Region, accesses map[*ast.Ident]access, declared VarSet) *assignWalker {
	return &assignWalker{
		doc:       doc,
		r:         r,
		accesses:  accesses,
		declared:  declared,
		assigned:  VarSet{},
		readFirst: VarSet{},
	}
}

func (w *assignWalker) walkRegion() {
	if w.r.Expr != nil {
		w.expr(w.r.Expr)
		return
	}
	w.stmts(w.r.Stmts)
}

// branch runs fn against a copy of the current state and returns the
// resulting state.
func (w *assignWalker) branch(fn func()) (VarSet, bool) {
	saved, savedDead := w.assigned, w.dead
	w.assigned = saved.clone()
	fn()
	out, outDead := w.assigned, w.dead
	w.assigned, w.dead = saved, savedDead
	return out, outDead
}

// merge intersects the states of alternative paths.
func (w *assignWalker) merge(states []VarSet, dead []bool) {
	var live []VarSet
	for i, s := range states {
		if !dead[i] {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		w.dead = true
		return
	}
	out := live[0].clone()
	for _, s := range live[1:] {
		for v := range out {
			if !s.Has(v) {
				delete(out, v)
			}
		}
	}
	w.assigned = out
}

func (w *assignWalker) stmts(list []ast.Stmt) {
	for _, s := range list {
		if w.dead {
			return
		}
		w.stmt(s)
	}
}

func (w *assignWalker) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.AssignStmt:
		for _, e := range s.Rhs {
			w.expr(e)
		}
		for _, lhs := range s.Lhs {
			w.store(lhs)
		}
	case *ast.IncDecStmt:
		w.store(s.X)
	case *ast.DeclStmt:
		w.expr(s)
	case *ast.ExprStmt:
		w.expr(s.X)
		if isPanicCall(w.doc.Info, s.X) {
			w.dead = true
		}
	case *ast.SendStmt:
		w.expr(s.Chan)
		w.expr(s.Value)
	case *ast.GoStmt:
		w.expr(s.Call)
	case *ast.DeferStmt:
		w.expr(s.Call)
	case *ast.ReturnStmt:
		for _, e := range s.Results {
			w.expr(e)
		}
		w.dead = true
	case *ast.BranchStmt:
		if s.Tok != token.FALLTHROUGH {
			w.dead = true
		}
	case *ast.BlockStmt:
		w.stmts(s.List)
	case *ast.LabeledStmt:
		w.stmt(s.Stmt)
	case *ast.IfStmt:
		if s.Init != nil {
			w.stmt(s.Init)
		}
		w.expr(s.Cond)
		thenState, thenDead := w.branch(func() { w.stmt(s.Body) })
		elseState, elseDead := w.assigned, w.dead
		if s.Else != nil {
			elseState, elseDead = w.branch(func() { w.stmt(s.Else) })
		}
		w.merge([]VarSet{thenState, elseState}, []bool{thenDead, elseDead})
	case *ast.ForStmt:
		if s.Init != nil {
			w.stmt(s.Init)
		}
		if s.Cond != nil {
			w.expr(s.Cond)
		}
		w.branch(func() {
			w.stmt(s.Body)
			if s.Post != nil && !w.dead {
				w.stmt(s.Post)
			}
		})
	case *ast.RangeStmt:
		w.expr(s.X)
		w.branch(func() {
			if s.Tok == token.ASSIGN {
				if s.Key != nil {
					w.store(s.Key)
				}
				if s.Value != nil {
					w.store(s.Value)
				}
			}
			w.stmt(s.Body)
		})
	case *ast.SwitchStmt:
		if s.Init != nil {
			w.stmt(s.Init)
		}
		if s.Tag != nil {
			w.expr(s.Tag)
		}
		w.clauses(s.Body, hasDefault(s.Body))
	case *ast.TypeSwitchStmt:
		if s.Init != nil {
			w.stmt(s.Init)
		}
		w.stmt(s.Assign)
		w.clauses(s.Body, hasDefault(s.Body))
	case *ast.SelectStmt:
		w.clauses(s.Body, true)
	}
}

func (w *assignWalker) clauses(body *ast.BlockStmt, exhaustive bool) {
	var states []VarSet
	var dead []bool
	for _, c := range body.List {
		st, d := w.branch(func() {
			switch c := c.(type) {
			case *ast.CaseClause:
				for _, e := range c.List {
					w.expr(e)
				}
				w.stmts(c.Body)
			case *ast.CommClause:
				if c.Comm != nil {
					w.stmt(c.Comm)
				}
				w.stmts(c.Body)
			}
		})
		states = append(states, st)
		dead = append(dead, d)
	}
	if !exhaustive {
		states = append(states, w.assigned)
		dead = append(dead, w.dead)
	}
	w.merge(states, dead)
}

// store handles the target of an assignment.
func (w *assignWalker) store(lhs ast.Expr) {
	id, ok := ast.Unparen(lhs).(*ast.Ident)
	if !ok {
		w.expr(lhs)
		return
	}
	v, ok := localVar(w.doc, id)
	if !ok {
		return
	}
	a := w.accesses[id]
	if a.read && !w.assigned.Has(v) && !w.declared.Has(v) {
		w.readFirst.add(v)
	}
	if a.write {
		w.assigned.add(v)
	}
}

// expr records reads in evaluation order. Function literals are not entered
// for assignment but their reads count at the point of creation.
func (w *assignWalker) expr(n ast.Node) {
	if n == nil {
		return
	}
	ast.Inspect(n, func(n ast.Node) bool {
		id, ok := n.(*ast.Ident)
		if !ok {
			return true
		}
		v, ok := localVar(w.doc, id)
		if !ok {
			return true
		}
		a := w.accesses[id]
		if a.read && !w.assigned.Has(v) && !w.declared.Has(v) {
			w.readFirst.add(v)
		}
		if a.write && !a.addr && innermostLitBetween(w.r, n) == nil {
			w.assigned.add(v)
		}
		return true
	})
}

// innermostLitBetween is a cheap check that an identifier is not nested in
// a function literal inside the region.
func innermostLitBetween(r *Region, n ast.Node) *ast.FuncLit {
	var found *ast.FuncLit
	for _, root := range r.Nodes() {
		ast.Inspect(root, func(x ast.Node) bool {
			if found != nil {
				return false
			}
			if lit, ok := x.(*ast.FuncLit); ok && lit.Pos() <= n.Pos() && n.End() <= lit.End() {
				found = lit
				return false
			}
			return x != nil && x.Pos() <= n.Pos() && n.End() <= x.End()
		})
	}
	return found
}

func hasDefault(body *ast.BlockStmt) bool {
	for _, c := range body.List {
		if cc, ok := c.(*ast.CaseClause); ok && cc.List == nil {
			return true
		}
	}
	return false
}
