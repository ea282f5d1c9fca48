package extract

import (
	"cmp"
	"go/ast"
	gotypes "go/types"
	"slices"

	"github.com/mamaar/goextract/pkg/analysis"
)

// typeParamSet collects type parameters reachable from a set of types.
type typeParamSet struct {
	seen  map[*gotypes.TypeParam]bool
	types map[gotypes.Type]bool
}

func newTypeParamSet() *typeParamSet {
	return &typeParamSet{seen: map[*gotypes.TypeParam]bool{}, types: map[gotypes.Type]bool{}}
}

// addType records every type parameter occurring in t. Each new type
// parameter also contributes the ones in its constraint.
func (s *typeParamSet) addType(t gotypes.Type) {
	if t == nil || s.types[t] {
		return
	}
	s.types[t] = true
	switch t := t.(type) {
	case *gotypes.TypeParam:
		if !s.seen[t] {
			s.seen[t] = true
			s.addType(t.Constraint())
		}
	case *gotypes.Alias:
		s.addTypeList(t.TypeArgs())
		s.addType(gotypes.Unalias(t))
	case *gotypes.Named:
		s.addTypeList(t.TypeArgs())
	case *gotypes.Pointer:
		s.addType(t.Elem())
	case *gotypes.Slice:
		s.addType(t.Elem())
	case *gotypes.Array:
		s.addType(t.Elem())
	case *gotypes.Chan:
		s.addType(t.Elem())
	case *gotypes.Map:
		s.addType(t.Key())
		s.addType(t.Elem())
	case *gotypes.Struct:
		for i := range t.NumFields() {
			s.addType(t.Field(i).Type())
		}
	case *gotypes.Tuple:
		for i := range t.Len() {
			s.addType(t.At(i).Type())
		}
	case *gotypes.Signature:
		s.addType(t.Params())
		s.addType(t.Results())
	case *gotypes.Interface:
		for i := range t.NumEmbeddeds() {
			s.addType(t.EmbeddedType(i))
		}
		for i := range t.NumExplicitMethods() {
			s.addType(t.ExplicitMethod(i).Type())
		}
	case *gotypes.Union:
		for i := range t.Len() {
			s.addType(t.Term(i).Type())
		}
	}
}

func (s *typeParamSet) addTypeList(l *gotypes.TypeList) {
	for i := range l.Len() {
		s.addType(l.At(i))
	}
}

// addBody records type parameters named inside the selected nodes.
func (s *typeParamSet) addBody(doc *analysis.Document, nodes []ast.Node) {
	for _, n := range nodes {
		ast.Inspect(n, func(n ast.Node) bool {
			if e, ok := n.(ast.Expr); ok {
				if tv, ok := doc.Info.Types[e]; ok {
					s.addType(tv.Type)
				}
			}
			if id, ok := n.(*ast.Ident); ok {
				if tn, ok := doc.Info.Uses[id].(*gotypes.TypeName); ok {
					s.addType(tn.Type())
				}
			}
			return true
		})
	}
}

// sorted returns the collected type parameters minus excluded, ordered
// by their position in the declaring list.
func (s *typeParamSet) sorted(exclude map[*gotypes.TypeParam]bool) []*gotypes.TypeParam {
	out := make([]*gotypes.TypeParam, 0, len(s.seen))
	for tp := range s.seen {
		if !exclude[tp] {
			out = append(out, tp)
		}
	}
	slices.SortFunc(out, func(a, b *gotypes.TypeParam) int {
		if c := cmp.Compare(a.Index(), b.Index()); c != 0 {
			return c
		}
		return cmp.Compare(a.Obj().Pos(), b.Obj().Pos())
	})
	return out
}

// receiverTypeParams returns the type parameters a method declaration
// binds through its receiver.
func receiverTypeParams(info *gotypes.Info, decl *ast.FuncDecl) map[*gotypes.TypeParam]bool {
	out := map[*gotypes.TypeParam]bool{}
	if decl.Recv == nil {
		return out
	}
	fn, ok := info.Defs[decl.Name].(*gotypes.Func)
	if !ok {
		return out
	}
	recv := fn.Type().(*gotypes.Signature).RecvTypeParams()
	for i := range recv.Len() {
		out[recv.At(i)] = true
	}
	return out
}

// isLocalObject reports whether obj is declared inside a function.
func isLocalObject(obj gotypes.Object) bool {
	return obj != nil && obj.Pkg() != nil && obj.Parent() != nil && obj.Parent() != obj.Pkg().Scope() && obj.Parent() != gotypes.Universe
}

// stripLocalTypes replaces named types declared inside a function by their
// underlying types, so that t can appear in a package-level signature.
// It reports whether anything was replaced.
func stripLocalTypes(t gotypes.Type) (gotypes.Type, bool) {
	switch t := t.(type) {
	case *gotypes.Named:
		if isLocalObject(t.Obj()) {
			u, _ := stripLocalTypes(t.Underlying())
			return u, true
		}
	case *gotypes.Alias:
		if isLocalObject(t.Obj()) {
			u, _ := stripLocalTypes(gotypes.Unalias(t))
			return u, true
		}
	case *gotypes.Pointer:
		if e, ok := stripLocalTypes(t.Elem()); ok {
			return gotypes.NewPointer(e), true
		}
	case *gotypes.Slice:
		if e, ok := stripLocalTypes(t.Elem()); ok {
			return gotypes.NewSlice(e), true
		}
	case *gotypes.Array:
		if e, ok := stripLocalTypes(t.Elem()); ok {
			return gotypes.NewArray(e, t.Len()), true
		}
	case *gotypes.Chan:
		if e, ok := stripLocalTypes(t.Elem()); ok {
			return gotypes.NewChan(t.Dir(), e), true
		}
	case *gotypes.Map:
		k, kok := stripLocalTypes(t.Key())
		e, eok := stripLocalTypes(t.Elem())
		if kok || eok {
			return gotypes.NewMap(k, e), true
		}
	case *gotypes.Struct:
		changed := false
		fields := make([]*gotypes.Var, t.NumFields())
		tags := make([]string, t.NumFields())
		for i := range t.NumFields() {
			f := t.Field(i)
			ft, ok := stripLocalTypes(f.Type())
			changed = changed || ok
			fields[i] = gotypes.NewField(f.Pos(), f.Pkg(), f.Name(), ft, f.Embedded())
			tags[i] = t.Tag(i)
		}
		if changed {
			return gotypes.NewStruct(fields, tags), true
		}
	}
	return t, false
}
