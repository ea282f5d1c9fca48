package extract

import (
	"bytes"
	"context"
	"fmt"
	"go/ast"
	"go/token"
	gotypes "go/types"
	"log/slog"
	"strings"

	"golang.org/x/tools/go/ast/edge"
	"golang.org/x/tools/go/ast/inspector"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/types"
)

// GeneratedCode is the edit batch performing an extraction together with
// the markers it places.
type GeneratedCode struct {
	Edits []analysis.Edit
	// CallSite covers the text replacing the selection.
	CallSite analysis.Marker
	// MethodName is the new name inside the call.
	MethodName analysis.Marker
	// Definition covers the new declaration.
	Definition analysis.Marker
	// BodyStart and BodyEnd are empty spans around the moved statements.
	BodyStart, BodyEnd analysis.Marker
	// Imports are packages the new text refers to that the file does not
	// import.
	Imports []string
	// DropCallStart is set when the trivia in front of the selection
	// belonged to a removed declaration.
	DropCallStart bool
}

// CodeGenerator renders the declaration and the call site.
type CodeGenerator struct {
	logger *slog.Logger
}

func NewCodeGenerator(logger *slog.Logger) *CodeGenerator {
	return &CodeGenerator{logger: logger}
}

// generation holds the state of one Generate call.
type generation struct {
	doc   *analysis.Document
	res   *AnalyzerResult
	name  string
	imp   *importTracker
	edits *textEdits
	ins   *inspector.Inspector
	// taken are identifiers the body of the new function already uses.
	taken map[string]bool
}

// Generate produces the edits for res. doc must be the snapshot the trivia
// was saved from.
func (g *CodeGenerator) Generate(ctx context.Context, doc *analysis.Document, ip InsertionPoint, res *AnalyzerResult, saved *SavedTrivia, name string) (*GeneratedCode, OperationStatus) {
	if err := ctx.Err(); err != nil {
		return nil, Failure(err.Error())
	}
	gen := &generation{
		doc:   doc,
		res:   res,
		name:  name,
		imp:   newImportTracker(doc),
		edits: &textEdits{src: doc.Src},
		ins:   inspector.New([]*ast.File{doc.File}),
		taken: map[string]bool{},
	}
	for _, n := range res.Selection.Region.Nodes() {
		for id := range identsIn(n) {
			gen.taken[id] = true
		}
	}
	for _, vi := range res.Variables {
		gen.taken[vi.Name()] = true
	}
	if status := gen.checkNames(); status.Failed() {
		return nil, status
	}

	decl, status := gen.declaration()
	if status.Failed() {
		return nil, status
	}
	call, status := gen.callSite()
	if status.Failed() {
		return nil, status
	}

	before, ok1 := doc.Lookup(saved.Before)
	after, ok2 := doc.Lookup(saved.After)
	if !ok1 || !ok2 {
		return nil, Failure("unknown reason")
	}

	out := &GeneratedCode{
		CallSite:   analysis.NewMarker(),
		MethodName: analysis.NewMarker(),
		Definition: analysis.NewMarker(),
		BodyStart:  analysis.NewMarker(),
		BodyEnd:    analysis.NewMarker(),
	}
	declMarks := func(offset int) map[analysis.Marker]analysis.Span {
		return map[analysis.Marker]analysis.Span{
			out.Definition: {Start: offset, End: offset + len(decl.text)},
			out.BodyStart:  {Start: offset + decl.bodyStart, End: offset + decl.bodyStart},
			out.BodyEnd:    {Start: offset + decl.bodyEnd, End: offset + decl.bodyEnd},
		}
	}

	// statements replace the surrounding trivia too, which is restored
	// later; expressions leave it in place
	callEdit := analysis.Edit{Span: analysis.Span{Start: before.End, End: after.Start}, Marks: map[analysis.Marker]analysis.Span{}}
	pad := "\n"
	if res.Selection.IsExpression() {
		callEdit.Span, pad = res.Selection.Span(), ""
	}
	folded := !res.Selection.IsExpression() && ip.Offset >= before.End && ip.Offset <= after.Start
	var text strings.Builder
	text.WriteString(pad)
	siteStart := text.Len()
	if folded {
		for m, s := range declMarks(text.Len()) {
			callEdit.Marks[m] = s
		}
		text.WriteString(decl.text)
		text.WriteString("\n")
	}
	callEdit.Marks[out.MethodName] = analysis.Span{Start: text.Len() + call.nameStart, End: text.Len() + call.nameStart + len(name)}
	text.WriteString(call.text)
	callEdit.Marks[out.CallSite] = analysis.Span{Start: siteStart, End: text.Len()}
	text.WriteString(pad)
	callEdit.Text = text.String()
	out.Edits = append(out.Edits, callEdit)

	if !folded {
		prefix, suffix := "\n\n", ""
		if ip.Local {
			prefix, suffix = "", "\n"
		}
		out.Edits = append(out.Edits, analysis.Edit{
			Span:  analysis.Span{Start: ip.Offset, End: ip.Offset},
			Text:  prefix + decl.text + suffix,
			Marks: declMarks(len(prefix)),
		})
	}

	for _, ds := range res.RemovedDecls {
		span := removalSpan(doc, ds, before.End)
		if span.End == before.End {
			// the declaration ends right before the selection and takes the
			// rest of its line with it
			out.DropCallStart = true
		}
		out.Edits = append(out.Edits, analysis.Edit{Span: span})
	}

	out.Imports = gen.imp.Needed()
	g.logger.Debug("extraction generated",
		"name", name,
		"mode", res.Mode,
		"parameters", len(res.Parameters()),
		"results", len(res.Results),
		"imports", out.Imports)
	return out, Success()
}

// checkNames rejects signatures in which two different variables would
// share a name.
func (gen *generation) checkNames() OperationStatus {
	seen := map[string]*gotypes.Var{}
	for _, vi := range gen.res.Variables {
		if !vi.UseAsParameter() && !vi.DeclareInside() && !vi.UseAsReturnValue() {
			continue
		}
		if other, ok := seen[vi.Name()]; ok && other != vi.Symbol.Var {
			return Failure(fmt.Sprintf("%s names two different variables", vi.Name()))
		}
		seen[vi.Name()] = vi.Symbol.Var
	}
	if _, clash := seen[gen.name]; clash {
		return Failure(fmt.Sprintf("%s is the name of a variable used by the selection", gen.name))
	}
	return Success()
}

type declText struct {
	text               string
	bodyStart, bodyEnd int
}

func (gen *generation) declaration() (declText, OperationStatus) {
	res, r := gen.res, gen.res.Selection.Region
	if status := gen.rewritePointers(); status.Failed() {
		return declText{}, status
	}
	if !res.Selection.IsExpression() {
		gen.rewriteExits()
	}
	interior, err := gen.edits.render(r.Span)
	if err != nil {
		return declText{}, Failure("unknown reason")
	}

	var b strings.Builder
	b.WriteString(gen.signature())
	b.WriteString(" {\n")
	for _, vi := range res.Variables {
		if vi.DeclareInside() {
			fmt.Fprintf(&b, "var %s %s\n", vi.Name(), gen.imp.typeString(vi.Type))
		}
	}
	if res.Selection.IsExpression() {
		b.WriteString("return ")
	}
	d := declText{bodyStart: b.Len()}
	b.WriteString(interior)
	d.bodyEnd = b.Len()
	if !res.Selection.IsExpression() && res.Flow.Has(FlowFallThrough) && len(res.Results) > 0 {
		b.WriteString("\nreturn ")
		b.WriteString(strings.Join(gen.exitValues(gen.doc.Pos(r.Span.End), FlowFallThrough, nil), ", "))
	}
	b.WriteString("\n}")
	d.text = b.String()
	return d, Success()
}

func (gen *generation) signature() string {
	res := gen.res
	var params []string
	for _, vi := range res.Parameters() {
		t := gen.imp.typeString(vi.Type)
		if vi.PassByPointer {
			t = "*" + t
		}
		params = append(params, vi.Name()+" "+t)
	}

	var results []string
	for _, rs := range res.Results {
		if rs.Kind == ResultFlow {
			results = append(results, res.Flow.TypeString())
			continue
		}
		results = append(results, gen.imp.typeString(rs.Type))
	}
	resultText := strings.Join(results, ", ")
	if len(results) > 1 {
		resultText = "(" + resultText + ")"
	}
	if res.Async && res.AsyncResult != nil {
		resultText = res.AsyncResult(resultText)
	}
	if resultText != "" {
		resultText = " " + resultText
	}

	paramText := "(" + strings.Join(params, ", ") + ")"
	switch res.Mode {
	case types.ModeLocalFunction:
		return gen.name + " := func" + paramText + resultText
	case types.ModeMethod:
		return "func (" + gen.receiverText() + ") " + gen.name + gen.imp.typeParamList(res.TypeParams) + paramText + resultText
	}
	return "func " + gen.name + gen.imp.typeParamList(res.TypeParams) + paramText + resultText
}

func (gen *generation) receiverText() string {
	field := gen.res.Selection.Region.Decl.Recv.List[0]
	return gen.doc.Text(analysis.Span{Start: gen.doc.Offset(field.Pos()), End: gen.doc.Offset(field.End())})
}

// rewritePointers dereferences variables passed by pointer. Field
// selections and address-of operands use the pointer itself.
func (gen *generation) rewritePointers() OperationStatus {
	for _, vi := range gen.res.Parameters() {
		if !vi.PassByPointer {
			continue
		}
		for _, id := range gen.res.DataFlow.UsesInside[vi.Symbol.Var] {
			cur, ok := gen.ins.Root().FindNode(id)
			if !ok {
				return Failure("unknown reason")
			}
			span := gen.doc.SpanOf(id)
			kind, _ := cur.ParentEdge()
			switch kind {
			case edge.SelectorExpr_X:
				if !isPointerType(vi.Type) {
					continue
				}
				gen.edits.add(span, "(*"+id.Name+")")
			case edge.UnaryExpr_X:
				if u := cur.Parent().Node().(*ast.UnaryExpr); u.Op == token.AND {
					gen.edits.add(gen.doc.SpanOf(u), id.Name)
					continue
				}
				gen.edits.add(span, "*"+id.Name)
			case edge.AssignStmt_Lhs:
				if cur.Parent().Node().(*ast.AssignStmt).Tok == token.DEFINE {
					return Failure(fmt.Sprintf("cannot redeclare %s, which is passed by pointer", id.Name))
				}
				gen.edits.add(span, "*"+id.Name)
			case edge.IndexExpr_X, edge.IndexListExpr_X, edge.SliceExpr_X, edge.CallExpr_Fun, edge.TypeAssertExpr_X:
				gen.edits.add(span, "(*"+id.Name+")")
			default:
				gen.edits.add(span, "*"+id.Name)
			}
		}
	}
	return Success()
}

func isPointerType(t gotypes.Type) bool {
	_, ok := t.Underlying().(*gotypes.Pointer)
	return ok
}

// rewriteExits turns the statements leaving the selection into returns of
// the new function.
func (gen *generation) rewriteExits() {
	res := gen.res
	for _, e := range res.Selection.ControlFlow().Exits {
		switch e.Kind {
		case analysis.ExitReturn:
			gen.rewriteReturn(e.Stmt.(*ast.ReturnStmt))
		case analysis.ExitBreak, analysis.ExitContinue:
			kind := FlowBreak
			if e.Kind == analysis.ExitContinue {
				kind = FlowContinue
			}
			text := "return"
			if vals := gen.exitValues(e.Stmt.Pos(), kind, nil); len(vals) > 0 {
				text += " " + strings.Join(vals, ", ")
			}
			gen.edits.replace(gen.doc.SpanOf(e.Stmt), text)
		}
	}
}

func (gen *generation) rewriteReturn(rs *ast.ReturnStmt) {
	res, doc := gen.res, gen.doc
	vars := gen.variableValues(rs.Pos())
	var flow []string
	if res.Flow.HasValue() {
		flow = []string{res.Flow.Value(FlowReturn)}
	}

	switch {
	case len(rs.Results) == 0:
		vals := gen.exitValues(rs.Pos(), FlowReturn, gen.namedResultValues())
		if len(vals) == 0 {
			return
		}
		gen.edits.add(analysis.Span{Start: doc.Offset(rs.Pos()), End: doc.Offset(rs.Pos()) + len("return")}, "return "+strings.Join(vals, ", "))
	case len(vars) == 0 && len(flow) == 0:
	case isTupleCall(doc, rs.Results):
		tuple := doc.TypeOf(rs.Results[0]).(*gotypes.Tuple)
		names := make([]string, tuple.Len())
		for i := range names {
			names[i] = gen.fresh("ret")
		}
		call, err := gen.edits.render(doc.SpanOf(rs.Results[0]))
		if err != nil {
			return
		}
		vals := append(append(vars, names...), flow...)
		gen.edits.replace(doc.SpanOf(rs), fmt.Sprintf("{\n%s := %s\nreturn %s\n}", strings.Join(names, ", "), call, strings.Join(vals, ", ")))
	default:
		if len(vars) > 0 {
			at := doc.Offset(rs.Results[0].Pos())
			gen.edits.add(analysis.Span{Start: at, End: at}, strings.Join(vars, ", ")+", ")
		}
		if len(flow) > 0 {
			at := doc.Offset(rs.Results[len(rs.Results)-1].End())
			gen.edits.add(analysis.Span{Start: at, End: at}, ", "+flow[0])
		}
	}
}

func isTupleCall(doc *analysis.Document, results []ast.Expr) bool {
	if len(results) != 1 {
		return false
	}
	_, ok := doc.TypeOf(results[0]).(*gotypes.Tuple)
	return ok
}

// exitValues renders the result list of a return leaving through kind at
// pos. enclosing overrides the enclosing function's results.
func (gen *generation) exitValues(pos token.Pos, kind FlowKind, enclosing []string) []string {
	res := gen.res
	vals := gen.variableValues(pos)
	if res.Flow.Has(FlowReturn) && res.Enclosing != nil {
		if enclosing == nil {
			results := res.Enclosing.Results()
			for i := range results.Len() {
				vals = append(vals, gen.imp.zeroValue(results.At(i).Type()))
			}
		} else {
			vals = append(vals, enclosing...)
		}
	}
	if res.Flow.HasValue() {
		vals = append(vals, res.Flow.Value(kind))
	}
	return vals
}

// variableValues renders the variable results at pos. A variable declared
// in the selection that is not in scope there yields its zero value.
func (gen *generation) variableValues(pos token.Pos) []string {
	var vals []string
	scope := gen.doc.Pkg.Scope().Innermost(pos)
	for _, rs := range gen.res.Results {
		if rs.Kind != ResultVariable {
			continue
		}
		v := rs.Variable.Symbol.Var
		if rs.Variable.Flags.DeclaredInside && scope != nil {
			if _, obj := scope.LookupParent(v.Name(), pos); obj != v {
				vals = append(vals, gen.imp.zeroValue(rs.Type))
				continue
			}
		}
		vals = append(vals, v.Name())
	}
	return vals
}

// namedResultValues renders the named results of the enclosing function for
// a bare return.
func (gen *generation) namedResultValues() []string {
	res := gen.res
	if res.Enclosing == nil {
		return nil
	}
	results := res.Enclosing.Results()
	vals := []string{}
	for i := range results.Len() {
		v := results.At(i)
		name := v.Name()
		if vi, ok := res.Variable(v); ok && vi.PassByPointer {
			name = "*" + name
		}
		vals = append(vals, name)
	}
	return vals
}

// fresh returns an identifier unused by the moved code and not returned
// before.
func (gen *generation) fresh(base string) string {
	name := freshName(base, func(s string) bool { return gen.taken[s] })
	gen.taken[name] = true
	return name
}

// removalSpan covers a statement and, when it is alone on its line, the
// line itself including a trailing line comment. The range never extends
// past limit when it starts before; a statement ending at limit takes the
// line break in front of it instead.
func removalSpan(doc *analysis.Document, s ast.Stmt, limit int) analysis.Span {
	src := doc.Src
	start, end := doc.Offset(s.Pos()), doc.Offset(s.End())
	ls := start
	for ls > 0 && (src[ls-1] == ' ' || src[ls-1] == '\t') {
		ls--
	}
	if ls > 0 && src[ls-1] != '\n' {
		return analysis.Span{Start: start, End: end}
	}
	start = ls
	if end == limit {
		if start > 0 {
			start--
		}
		return analysis.Span{Start: start, End: end}
	}
	le := end
	for le < len(src) && (src[le] == ' ' || src[le] == '\t') {
		le++
	}
	if bytes.HasPrefix(src[le:], []byte("//")) {
		if i := bytes.IndexByte(src[le:], '\n'); i >= 0 {
			le += i
		} else {
			le = len(src)
		}
	}
	if le < len(src) && src[le] == '\n' && !(start < limit && le+1 > limit) {
		end = le + 1
	}
	return analysis.Span{Start: start, End: end}
}

// textEdits collects non-overlapping edits against a source buffer.
type textEdits struct {
	src   []byte
	edits []analysis.Edit
}

func (t *textEdits) add(s analysis.Span, text string) {
	t.edits = append(t.edits, analysis.Edit{Span: s, Text: text})
}

// replace swaps s for text, dropping edits already made inside s.
func (t *textEdits) replace(s analysis.Span, text string) {
	kept := t.edits[:0]
	for _, e := range t.edits {
		if !s.Contains(e.Span) {
			kept = append(kept, e)
		}
	}
	t.edits = append(kept, analysis.Edit{Span: s, Text: text})
}

// render returns the text of s with the edits inside it applied.
func (t *textEdits) render(s analysis.Span) (string, error) {
	var inner []analysis.Edit
	for _, e := range t.edits {
		if s.Contains(e.Span) {
			inner = append(inner, analysis.Edit{
				Span: analysis.Span{Start: e.Span.Start - s.Start, End: e.Span.End - s.Start},
				Text: e.Text,
			})
		}
	}
	out, _, err := analysis.ApplyEdits(t.src[s.Start:s.End], nil, inner)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
