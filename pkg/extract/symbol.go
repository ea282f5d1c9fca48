package extract

import (
	"cmp"
	gotypes "go/types"
)

// SymbolKind tags a VariableSymbol.
type SymbolKind int

const (
	// KindParameter is a parameter, named result or receiver of an
	// enclosing function.
	KindParameter SymbolKind = iota
	KindLocal
	// KindRangeVariable is a key or value variable of a range clause.
	KindRangeVariable
)

func (k SymbolKind) String() string {
	switch k {
	case KindParameter:
		return "parameter"
	case KindLocal:
		return "local"
	case KindRangeVariable:
		return "range variable"
	}
	return "unknown"
}

// VariableSymbol is a variable captured by the selection.
type VariableSymbol struct {
	Kind SymbolKind
	Var  *gotypes.Var
}

func (s VariableSymbol) Name() string { return s.Var.Name() }

// IsContext reports whether the variable is a context.Context.
func (s VariableSymbol) IsContext() bool {
	return isContextType(s.Var.Type())
}

func isContextType(t gotypes.Type) bool {
	named, ok := gotypes.Unalias(t).(*gotypes.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Pkg() != nil && obj.Pkg().Path() == "context" && obj.Name() == "Context"
}

// compareSymbols orders symbols for a signature: contexts first when
// contextFirst is set, then parameters, locals and range variables, each in
// declaration order.
func compareSymbols(a, b VariableSymbol, contextFirst bool) int {
	if contextFirst {
		if ac, bc := a.IsContext(), b.IsContext(); ac != bc {
			if ac {
				return -1
			}
			return 1
		}
	}
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	return cmp.Compare(a.Var.Pos(), b.Var.Pos())
}
