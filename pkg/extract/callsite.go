package extract

import (
	"go/ast"
	gotypes "go/types"
	"strings"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/types"
)

type callText struct {
	text      string
	nameStart int // offset of the new name in text
}

// callSite renders the statements replacing the selection: declarations
// the call needs, the call and its assignment, and the dispatch back to
// the original exits.
func (gen *generation) callSite() (callText, OperationStatus) {
	res := gen.res
	r := res.Selection.Region

	var args []string
	for _, vi := range res.Parameters() {
		if vi.PassByPointer {
			args = append(args, "&"+vi.Name())
			continue
		}
		args = append(args, vi.Name())
	}
	callee, nameStart := gen.name, 0
	switch res.Mode {
	case types.ModeMethod:
		callee = res.Receiver.Name() + "." + gen.name
		nameStart = len(res.Receiver.Name()) + 1
	case types.ModeFunction:
		callee += typeArgList(res.TypeParams)
	}
	call := callee + "(" + strings.Join(args, ", ") + ")"
	if res.Selection.IsExpression() {
		return callText{text: call, nameStart: nameStart}, Success()
	}

	if res.Flow.OnlyReturns() && !hasVariableResults(res) {
		if res.Enclosing != nil && res.Enclosing.Results().Len() > 0 {
			return callText{text: "return " + call, nameStart: len("return ") + nameStart}, Success()
		}
		return callText{text: call + "\nreturn", nameStart: nameStart}, Success()
	}

	scope := blockScope(gen.doc.Info, r)
	pos := r.Stmts[0].Pos()
	declared := identsIn(r.Decl)
	taken := func(s string) bool {
		if declared[s] || s == gen.name {
			return true
		}
		if scope != nil {
			if _, obj := scope.LookupParent(s, pos); obj != nil {
				return true
			}
		}
		return false
	}
	fresh := func(base string) string {
		name := freshName(base, taken)
		declared[name] = true
		return name
	}

	var lines []string
	for _, vi := range res.Variables {
		if vi.Style.Param == SplitOut {
			lines = append(lines, "var "+vi.Name()+" "+gen.imp.typeString(vi.Type))
		}
	}

	type lhs struct {
		name  string
		typ   string
		isNew bool
	}
	var targets []lhs
	var retNames []string
	flowName := ""
	outerExisting := false
	for _, rs := range res.Results {
		switch rs.Kind {
		case ResultVariable:
			vi := rs.Variable
			isNew := vi.Style.Param == MoveOut
			if !isNew && vi.Style.Param != SplitOut && vi.Symbol.Var.Parent() != scope {
				outerExisting = true
			}
			targets = append(targets, lhs{name: vi.Name(), typ: gen.imp.typeString(rs.Type), isNew: isNew})
		case ResultEnclosing:
			name := fresh("ret")
			retNames = append(retNames, name)
			targets = append(targets, lhs{name: name, typ: gen.imp.typeString(rs.Type), isNew: true})
		case ResultFlow:
			flowName = fresh(res.Flow.VarName())
			targets = append(targets, lhs{name: flowName, typ: res.Flow.TypeString(), isNew: true})
		}
	}

	assign := call
	offset := nameStart
	if len(targets) > 0 {
		anyNew := false
		names := make([]string, len(targets))
		for i, t := range targets {
			names[i] = t.name
			anyNew = anyNew || t.isNew
		}
		op := " = "
		switch {
		case anyNew && !outerExisting:
			op = " := "
		case anyNew:
			for _, t := range targets {
				if t.isNew {
					lines = append(lines, "var "+t.name+" "+t.typ)
				}
			}
		}
		prefix := strings.Join(names, ", ") + op
		assign = prefix + call
		offset += len(prefix)
	}

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	offset += b.Len()
	b.WriteString(assign)
	if d := res.Flow.Dispatch(flowName, retNames); d != "" {
		b.WriteString("\n")
		b.WriteString(d)
	}
	return callText{text: b.String(), nameStart: offset}, Success()
}

func hasVariableResults(res *AnalyzerResult) bool {
	for _, rs := range res.Results {
		if rs.Kind == ResultVariable {
			return true
		}
	}
	return false
}

// blockScope returns the scope of the statement list holding r. Function
// bodies share the scope of their signature.
func blockScope(info *gotypes.Info, r *analysis.Region) *gotypes.Scope {
	if len(r.Path) == 0 {
		return nil
	}
	if s := info.Scopes[r.Path[0]]; s != nil {
		return s
	}
	if r.Path[0] == ast.Node(r.Body) {
		if ft := r.FuncType(); ft != nil {
			return info.Scopes[ft]
		}
	}
	return nil
}
