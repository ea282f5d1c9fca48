package extract

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	gotypes "go/types"
	"log/slog"
	"slices"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/types"
)

// ResultKind tells where a result of the new function comes from.
type ResultKind int

const (
	ResultVariable ResultKind = iota
	ResultExpression
	ResultEnclosing
	ResultFlow
)

// ResultInfo is one result of the new function.
type ResultInfo struct {
	Kind     ResultKind
	Variable *VariableInfo // for ResultVariable
	Type     gotypes.Type  // nil for ResultFlow
}

// AnalyzerResult is the signature-level plan for an extraction.
type AnalyzerResult struct {
	Selection *SelectionResult
	// Mode is the resolved shape of the new function, never ModeAuto.
	Mode types.ExtractMode
	// Receiver is the receiver the new method is declared on.
	Receiver *gotypes.Var
	// Variables are the classified variables in signature order.
	Variables []VariableInfo
	Results   []ResultInfo
	// Enclosing is the signature of the function around the selection.
	Enclosing  *gotypes.Signature
	Flow       FlowControlInfo
	TypeParams []*gotypes.TypeParam
	// Async is set when the oracle reports a suspend point in the region.
	Async       bool
	AsyncResult func(string) string
	// RemovedDecls are outer declarations made dead by the extraction.
	RemovedDecls []*ast.DeclStmt
	DataFlow     *analysis.DataFlow
	Status       OperationStatus
}

// Parameters returns the variables passed to the new function.
func (r *AnalyzerResult) Parameters() []VariableInfo {
	var out []VariableInfo
	for _, v := range r.Variables {
		if v.UseAsParameter() {
			out = append(out, v)
		}
	}
	return out
}

// Variable returns the info of v, if v was classified.
func (r *AnalyzerResult) Variable(v *gotypes.Var) (VariableInfo, bool) {
	for _, vi := range r.Variables {
		if vi.Symbol.Var == v {
			return vi, true
		}
	}
	return VariableInfo{}, false
}

// IsInstance reports whether the new function is a method on Receiver.
func (r *AnalyzerResult) IsInstance() bool { return r.Receiver != nil }

// Analyzer turns a validated selection into an AnalyzerResult.
type Analyzer struct {
	oracle       analysis.Oracle
	logger       *slog.Logger
	contextFirst bool
}

func NewAnalyzer(oracle analysis.Oracle, logger *slog.Logger, contextFirst bool) *Analyzer {
	return &Analyzer{oracle: oracle, logger: logger, contextFirst: contextFirst}
}

// Analyze classifies the variables of sel and derives the signature. In
// strict mode an unclassifiable variable yields an *UnknownStateError;
// with bestEffort it is passed as input and noted in the status.
func (a *Analyzer) Analyze(ctx context.Context, sel *SelectionResult, mode types.ExtractMode, bestEffort bool) (*AnalyzerResult, error) {
	doc, r := sel.Document(), sel.Region
	df, err := a.oracle.DataFlow(ctx, doc, r)
	if err != nil {
		return nil, fmt.Errorf("analyzing selection: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &AnalyzerResult{
		Selection: sel,
		DataFlow:  df,
		Enclosing: enclosingSignature(doc.Info, r.Func),
		Flow:      NewFlowControlInfo(sel.ControlFlow(), sel.IsExpression(), doc.GoVersion),
		Status:    Success(),
	}

	recv := receiverVar(doc.Info, r.Decl)
	res.Mode, res.Status = a.resolveMode(doc, r, df, recv, mode)
	if res.Status.Failed() {
		return res, nil
	}
	if res.Mode == types.ModeMethod {
		res.Receiver = recv
	}

	kinds := symbolKinds(doc.Info, r.Decl)
	for _, v := range df.Referenced {
		if v == recv && res.Mode != types.ModeFunction {
			continue
		}
		vi, ok, guessed, err := a.classify(df, v, kinds[v], bestEffort)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if guessed {
			res.Status = res.Status.WithReason(fmt.Sprintf("could not classify %s", v.Name()))
		}
		if vi.Flags.DeclaredInside && vi.Flags.AddressTaken && (vi.Flags.ReadOutside || vi.Flags.WrittenOutside) {
			res.Status = res.Status.With(Failure(fmt.Sprintf("the address of %s is taken and it is used outside the selection", v.Name())))
			continue
		}
		res.Variables = append(res.Variables, vi)
	}
	if res.Status.Failed() {
		return res, nil
	}

	if res.Flow.OnlyReturns() || endsUnreachable(sel) {
		for i, vi := range res.Variables {
			res.Variables[i] = demoteForUnreachableEnd(vi)
		}
	}
	res.RemovedDecls = settleInwardMoves(doc, r.Decl, res.Variables)
	slices.SortStableFunc(res.Variables, func(a1, b VariableInfo) int {
		return compareSymbols(a1.Symbol, b.Symbol, a.contextFirst)
	})

	res.Results = a.results(doc, sel, res)
	a.collectTypeParams(doc, r, res)
	if res.Mode != types.ModeLocalFunction {
		a.stripLocalTypes(res)
	}
	a.async(ctx, doc, r, res)
	a.postHocReasons(df, res)

	a.logger.Debug("selection analyzed",
		"mode", res.Mode,
		"variables", len(res.Variables),
		"results", len(res.Results),
		"flow", res.Flow.Encoding,
		"bestEffort", bestEffort)
	return res, nil
}

// classify derives the flags of v and looks them up. ok is false for
// variables that do not affect the signature; guessed is set when
// bestEffort had to stand in for a missing table entry.
func (a *Analyzer) classify(df *analysis.DataFlow, v *gotypes.Var, kind SymbolKind, bestEffort bool) (vi VariableInfo, ok, guessed bool, err error) {
	f := Flags{
		DataFlowIn:     df.DataFlowsIn.Has(v),
		DataFlowOut:    df.DataFlowsOut.Has(v),
		AlwaysAssigned: df.AlwaysAssigned.Has(v),
		DeclaredInside: df.DeclaredInside.Has(v),
		ReadInside:     df.ReadInside.Has(v),
		WrittenInside:  df.WrittenInside.Has(v),
		ReadOutside:    df.ReadOutside.Has(v),
		WrittenOutside: df.WrittenOutside.Has(v),
		AddressTaken:   df.AddressTaken.Has(v) || df.CapturedWritten.Has(v) || df.SharedWithClosure.Has(v),
	}
	if f.DataFlowOut {
		f.ReadOutside = true
	}
	if f.DeclaredInside && f.WrittenInside && f.ReadOutside && !f.WrittenOutside {
		f.DataFlowOut = true
	}
	if f.DeclaredInside && !f.ReadOutside && !f.WrittenOutside && !f.DataFlowOut {
		return VariableInfo{}, false, false, nil
	}

	vi = VariableInfo{
		Symbol: VariableSymbol{Kind: kind, Var: v},
		Type:   v.Type(),
		Flags:  f,
	}
	style, err := Classify(f, false)
	if err != nil {
		var unknown *UnknownStateError
		if !errors.As(err, &unknown) || !bestEffort {
			return VariableInfo{}, false, false, err
		}
		a.logger.Debug("unclassified variable", "name", v.Name(), "flags", f)
		style, guessed = StyleInputOnly, true
	}
	vi.Style = style
	vi.PassByPointer = f.AddressTaken

	// values never stored to inside can be copied in
	if !vi.PassByPointer && !f.WrittenInside && (style.Param == Ref || style.Param == Out) {
		vi.Style = StyleInputOnly
	}
	if vi.Style == StyleNone && !vi.PassByPointer {
		return VariableInfo{}, false, false, nil
	}
	return vi, true, guessed, nil
}

// demoteForUnreachableEnd drops variable results when the call site
// always returns: nothing after the call can read them.
func demoteForUnreachableEnd(vi VariableInfo) VariableInfo {
	switch vi.Style.Param {
	case MoveOut, SplitOut:
		vi.Style = StyleSplitOutDecl
	case Ref, Out:
		vi.Style = StyleInputOnly
	default:
		vi.Style.Return = ReturnNone
	}
	return vi
}

// endsUnreachable reports a statement selection that never completes and
// never leaves through an exit, such as one ending in a panic.
func endsUnreachable(sel *SelectionResult) bool {
	cf := sel.ControlFlow()
	return cf != nil && !sel.IsExpression() && !cf.EndReachable && len(cf.Exits) == 0
}

// settleInwardMoves handles variables whose declaration moves into the new
// function. An outer declaration left without readers is removed when it
// is a plain var declaration of that one name; otherwise the variable is
// passed in.
func settleInwardMoves(doc *analysis.Document, decl *ast.FuncDecl, vars []VariableInfo) []*ast.DeclStmt {
	var removed []*ast.DeclStmt
	for i := range vars {
		vi := &vars[i]
		switch vi.Style.Param {
		case MoveIn, SplitIn, Delete:
		default:
			continue
		}
		if vi.Flags.ReadOutside {
			continue
		}
		if ds := removableDecl(doc, decl, vi.Symbol.Var); ds != nil && !vi.Flags.WrittenOutside {
			removed = append(removed, ds)
			continue
		}
		vi.Style = StyleInputOnly
	}
	return removed
}

// removableDecl returns the statement `var v T` declaring only v.
func removableDecl(doc *analysis.Document, decl *ast.FuncDecl, v *gotypes.Var) *ast.DeclStmt {
	var found *ast.DeclStmt
	ast.Inspect(decl.Body, func(n ast.Node) bool {
		if found != nil {
			return false
		}
		ds, ok := n.(*ast.DeclStmt)
		if !ok {
			return true
		}
		gd, ok := ds.Decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.VAR || len(gd.Specs) != 1 {
			return false
		}
		spec := gd.Specs[0].(*ast.ValueSpec)
		if len(spec.Names) == 1 && len(spec.Values) == 0 && doc.Info.Defs[spec.Names[0]] == v {
			found = ds
		}
		return false
	})
	return found
}

func (a *Analyzer) resolveMode(doc *analysis.Document, r *analysis.Region, df *analysis.DataFlow, recv *gotypes.Var, mode types.ExtractMode) (types.ExtractMode, OperationStatus) {
	recvUsed := recv != nil && (df.ReadInside.Has(recv) || df.WrittenInside.Has(recv))
	recvWritten := recv != nil && df.WrittenInside.Has(recv)
	locals := localDeclarationsUsed(doc, r)

	switch mode {
	case types.ModeLocalFunction:
		return mode, Success()
	case types.ModeMethod:
		switch {
		case recv == nil:
			return mode, Failure("the enclosing function has no named receiver")
		case recvWritten:
			return mode, Failure(fmt.Sprintf("the selection assigns the receiver %s", recv.Name()))
		case len(locals) > 0:
			return mode, Failure(fmt.Sprintf("%s is declared in the enclosing function", locals[0].Name()))
		}
		return mode, Success()
	case types.ModeFunction:
		if len(locals) > 0 {
			return mode, Failure(fmt.Sprintf("%s is declared in the enclosing function", locals[0].Name()))
		}
		return mode, Success()
	}

	switch {
	case len(locals) > 0:
		return types.ModeLocalFunction, Success()
	case recvUsed && !recvWritten:
		return types.ModeMethod, Success()
	}
	return types.ModeFunction, Success()
}

// localDeclarationsUsed returns the constants and types declared in the
// enclosing function outside r and named inside it.
func localDeclarationsUsed(doc *analysis.Document, r *analysis.Region) []gotypes.Object {
	var out []gotypes.Object
	for _, n := range r.Nodes() {
		ast.Inspect(n, func(n ast.Node) bool {
			id, ok := n.(*ast.Ident)
			if !ok {
				return true
			}
			obj := doc.Info.Uses[id]
			switch obj.(type) {
			case *gotypes.Const, *gotypes.TypeName:
			default:
				return true
			}
			if _, isTP := obj.Type().(*gotypes.TypeParam); isTP {
				return true
			}
			if isLocalObject(obj) && !r.Span.Contains(analysis.Span{Start: doc.Offset(obj.Pos()), End: doc.Offset(obj.Pos())}) && !slices.Contains(out, obj) {
				out = append(out, obj)
			}
			return true
		})
	}
	return out
}

func (a *Analyzer) results(doc *analysis.Document, sel *SelectionResult, res *AnalyzerResult) []ResultInfo {
	var out []ResultInfo
	if sel.IsExpression() {
		t := doc.TypeOf(sel.Region.Expr)
		if tuple, ok := t.(*gotypes.Tuple); ok {
			for i := range tuple.Len() {
				out = append(out, ResultInfo{Kind: ResultExpression, Type: tuple.At(i).Type()})
			}
			return out
		}
		return []ResultInfo{{Kind: ResultExpression, Type: gotypes.Default(t)}}
	}

	for i := range res.Variables {
		if res.Variables[i].UseAsReturnValue() {
			out = append(out, ResultInfo{Kind: ResultVariable, Variable: &res.Variables[i], Type: res.Variables[i].Type})
		}
	}
	if res.Flow.Has(FlowReturn) && res.Enclosing != nil {
		results := res.Enclosing.Results()
		for i := range results.Len() {
			out = append(out, ResultInfo{Kind: ResultEnclosing, Type: results.At(i).Type()})
		}
	}
	if res.Flow.HasValue() {
		out = append(out, ResultInfo{Kind: ResultFlow})
	}
	return out
}

func (a *Analyzer) collectTypeParams(doc *analysis.Document, r *analysis.Region, res *AnalyzerResult) {
	if res.Mode == types.ModeLocalFunction {
		return
	}
	set := newTypeParamSet()
	for _, v := range res.Parameters() {
		set.addType(v.Type)
	}
	for _, rs := range res.Results {
		set.addType(rs.Type)
	}
	set.addBody(doc, r.Nodes())

	exclude := map[*gotypes.TypeParam]bool{}
	if res.IsInstance() {
		exclude = receiverTypeParams(doc.Info, r.Decl)
	}
	res.TypeParams = set.sorted(exclude)
}

func (a *Analyzer) stripLocalTypes(res *AnalyzerResult) {
	for i := range res.Variables {
		vi := &res.Variables[i]
		if t, ok := stripLocalTypes(vi.Type); ok {
			res.Status = res.Status.WithReason(fmt.Sprintf("the type of %s is declared in the enclosing function; using its underlying type", vi.Name()))
			vi.Type = t
		}
	}
	for i := range res.Results {
		rs := &res.Results[i]
		if rs.Kind == ResultVariable {
			rs.Type = rs.Variable.Type
			continue
		}
		if t, ok := stripLocalTypes(rs.Type); ok {
			res.Status = res.Status.WithReason("the result type is declared in the enclosing function; using its underlying type")
			rs.Type = t
		}
	}
}

func (a *Analyzer) async(ctx context.Context, doc *analysis.Document, r *analysis.Region, res *AnalyzerResult) {
	as, ok := a.oracle.(analysis.AsyncSupport)
	if !ok {
		return
	}
	suspends, err := as.ContainsSuspendPoint(ctx, doc, r)
	if err != nil {
		res.Status = res.Status.WithReason(fmt.Sprintf("could not check for suspend points: %v", err))
		return
	}
	if suspends || (as.EnclosingIsAsync(doc, r) && res.Flow.Has(FlowReturn)) {
		res.Async = true
		res.AsyncResult = as.WrapResult
	}
}

func (a *Analyzer) postHocReasons(df *analysis.DataFlow, res *AnalyzerResult) {
	for _, vi := range res.Variables {
		switch {
		case df.CapturedWritten.Has(vi.Symbol.Var):
			res.Status = res.Status.WithReason(fmt.Sprintf("%s is assigned by a closure; passing it by pointer", vi.Name()))
		case df.SharedWithClosure.Has(vi.Symbol.Var):
			res.Status = res.Status.WithReason(fmt.Sprintf("%s is shared with a closure outside the selection; passing it by pointer", vi.Name()))
		case vi.PassByPointer:
			res.Status = res.Status.WithReason(fmt.Sprintf("the address of %s is taken; passing it by pointer", vi.Name()))
		}
	}
	if endsUnreachable(res.Selection) {
		res.Status = res.Status.WithReason("the end of the selection is unreachable")
	}
}

func enclosingSignature(info *gotypes.Info, fn ast.Node) *gotypes.Signature {
	switch fn := fn.(type) {
	case *ast.FuncDecl:
		if obj, ok := info.Defs[fn.Name].(*gotypes.Func); ok {
			return obj.Type().(*gotypes.Signature)
		}
	case *ast.FuncLit:
		if sig, ok := info.TypeOf(fn).(*gotypes.Signature); ok {
			return sig
		}
	}
	return nil
}

func receiverVar(info *gotypes.Info, decl *ast.FuncDecl) *gotypes.Var {
	if decl.Recv == nil || len(decl.Recv.List) == 0 || len(decl.Recv.List[0].Names) == 0 {
		return nil
	}
	name := decl.Recv.List[0].Names[0]
	if name.Name == "_" {
		return nil
	}
	v, _ := info.Defs[name].(*gotypes.Var)
	return v
}

// symbolKinds tags the variables declared in decl by how they are
// declared.
func symbolKinds(info *gotypes.Info, decl *ast.FuncDecl) map[*gotypes.Var]SymbolKind {
	kinds := map[*gotypes.Var]SymbolKind{}
	params := func(lists ...*ast.FieldList) {
		for _, l := range lists {
			if l == nil {
				continue
			}
			for _, f := range l.List {
				for _, name := range f.Names {
					if v, ok := info.Defs[name].(*gotypes.Var); ok {
						kinds[v] = KindParameter
					}
				}
			}
		}
	}
	params(decl.Recv)
	ast.Inspect(decl, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncType:
			params(n.Params, n.Results)
		case *ast.RangeStmt:
			if n.Tok != token.DEFINE {
				break
			}
			for _, e := range []ast.Expr{n.Key, n.Value} {
				if id, ok := e.(*ast.Ident); ok {
					if v, ok := info.Defs[id].(*gotypes.Var); ok {
						kinds[v] = KindRangeVariable
					}
				}
			}
		case *ast.Ident:
			if v, ok := info.Defs[n].(*gotypes.Var); ok && !v.IsField() {
				if _, seen := kinds[v]; !seen {
					kinds[v] = KindLocal
				}
			}
		}
		return true
	})
	return kinds
}
