package extract

import (
	"go/ast"
	gotypes "go/types"
	"maps"
	"slices"
	"strconv"

	"github.com/mamaar/goextract/pkg/analysis"
)

// importTracker renders package qualifiers the way the file imports them
// and remembers packages the file does not import yet.
type importTracker struct {
	pkg    *gotypes.Package
	names  map[string]string // import path to local name
	needed map[string]string
}

func newImportTracker(doc *analysis.Document) *importTracker {
	t := &importTracker{pkg: doc.Pkg, names: map[string]string{}, needed: map[string]string{}}
	for _, spec := range doc.File.Imports {
		path, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}
		var obj gotypes.Object
		if spec.Name != nil {
			obj = doc.Info.Defs[spec.Name]
		} else {
			obj = doc.Info.Implicits[spec]
		}
		switch {
		case spec.Name != nil && spec.Name.Name == "_":
		case spec.Name != nil:
			t.names[path] = spec.Name.Name
		case obj != nil:
			t.names[path] = obj.Name()
		}
	}
	return t
}

func (t *importTracker) qualifier(p *gotypes.Package) string {
	if p == nil || p == t.pkg || (t.pkg != nil && p.Path() == t.pkg.Path()) {
		return ""
	}
	if name, ok := t.names[p.Path()]; ok {
		if name == "." {
			return ""
		}
		return name
	}
	t.needed[p.Path()] = p.Name()
	return p.Name()
}

// Needed returns the import paths the rendered text uses but the file
// does not import, sorted.
func (t *importTracker) Needed() []string {
	return slices.Sorted(maps.Keys(t.needed))
}

func (t *importTracker) typeString(typ gotypes.Type) string {
	return gotypes.TypeString(typ, t.qualifier)
}

// zeroValue renders the zero value of typ.
func (t *importTracker) zeroValue(typ gotypes.Type) string {
	if _, ok := gotypes.Unalias(typ).(*gotypes.TypeParam); ok {
		return "*new(" + t.typeString(typ) + ")"
	}
	switch u := typ.Underlying().(type) {
	case *gotypes.Basic:
		switch {
		case u.Info()&gotypes.IsBoolean != 0:
			return "false"
		case u.Info()&gotypes.IsNumeric != 0:
			return "0"
		case u.Info()&gotypes.IsString != 0:
			return `""`
		}
		return "nil"
	case *gotypes.Pointer, *gotypes.Slice, *gotypes.Map, *gotypes.Chan, *gotypes.Signature, *gotypes.Interface:
		return "nil"
	case *gotypes.Struct, *gotypes.Array:
		return t.typeString(typ) + "{}"
	}
	return "*new(" + t.typeString(typ) + ")"
}

// typeParamList renders a type parameter list with constraints.
func (t *importTracker) typeParamList(tps []*gotypes.TypeParam) string {
	if len(tps) == 0 {
		return ""
	}
	s := "["
	for i, tp := range tps {
		if i > 0 {
			s += ", "
		}
		s += tp.Obj().Name() + " " + t.typeString(tp.Constraint())
	}
	return s + "]"
}

// typeArgList renders the type parameters as explicit type arguments.
func typeArgList(tps []*gotypes.TypeParam) string {
	if len(tps) == 0 {
		return ""
	}
	s := "["
	for i, tp := range tps {
		if i > 0 {
			s += ", "
		}
		s += tp.Obj().Name()
	}
	return s + "]"
}

// identsIn returns every identifier name used in n.
func identsIn(n ast.Node) map[string]bool {
	names := map[string]bool{}
	ast.Inspect(n, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok {
			names[id.Name] = true
		}
		return true
	})
	return names
}

// freshName returns base, or base followed by the smallest positive
// number, that taken rejects.
func freshName(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for i := 1; ; i++ {
		if name := base + strconv.Itoa(i); !taken(name) {
			return name
		}
	}
}
