package extract

import gotypes "go/types"

// VariableInfo is one captured variable and its treatment.
type VariableInfo struct {
	Symbol VariableSymbol
	Style  VariableStyle
	Type   gotypes.Type
	// PassByPointer passes the variable's address instead of its value.
	PassByPointer bool
	Flags         Flags
}

func (v VariableInfo) Name() string { return v.Symbol.Name() }

// UseAsParameter reports whether the variable is a parameter of the new
// function.
func (v VariableInfo) UseAsParameter() bool {
	return v.Style.UseAsParameter() || v.PassByPointer
}

// UseAsReturnValue reports whether the variable is one of the results.
func (v VariableInfo) UseAsReturnValue() bool {
	return !v.PassByPointer && v.Style.UseAsReturnValue()
}

// DeclareInside reports whether the new function needs its own
// declaration of the variable.
func (v VariableInfo) DeclareInside() bool {
	return !v.PassByPointer && v.Style.DeclaredInside()
}

// DeclareAtCallSite reports whether the call site needs a declaration
// because the original one moves into the new function.
func (v VariableInfo) DeclareAtCallSite() bool {
	return v.Style.Param == MoveOut || v.Style.Param == SplitOut
}
