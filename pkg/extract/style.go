package extract

// ParameterStyle says how a variable crosses into the new function.
type ParameterStyle int

const (
	ParamNone ParameterStyle = iota
	// InputOnly passes the value in.
	InputOnly
	// Out carries the value back as a result, or through a pointer when the
	// variable's address is taken.
	Out
	// Ref passes the value in and returns the updated value.
	Ref
	// MoveIn moves the outer declaration into the new function.
	MoveIn
	// SplitIn declares a fresh copy inside; the outer declaration stays.
	SplitIn
	// Delete drops an outer declaration only the selection uses.
	Delete
	// MoveOut turns a declaration inside the selection into a declaration
	// at the call site initialized from the result.
	MoveOut
	// SplitOut keeps the declaration inside and declares the variable again
	// at the call site.
	SplitOut
)

var paramStyleNames = [...]string{"None", "InputOnly", "Out", "Ref", "MoveIn", "SplitIn", "Delete", "MoveOut", "SplitOut"}

func (p ParameterStyle) String() string {
	if int(p) < len(paramStyleNames) {
		return paramStyleNames[p]
	}
	return "Unknown"
}

// ReturnStyle says how a variable is carried back to the call site.
type ReturnStyle int

const (
	ReturnNone ReturnStyle = iota
	AssignmentWithInput
	AssignmentWithNoInput
	Initialization
)

var returnStyleNames = [...]string{"None", "AssignmentWithInput", "AssignmentWithNoInput", "Initialization"}

func (r ReturnStyle) String() string {
	if int(r) < len(returnStyleNames) {
		return returnStyleNames[r]
	}
	return "Unknown"
}

// VariableStyle is the combined treatment of one variable.
type VariableStyle struct {
	Param  ParameterStyle
	Return ReturnStyle
}

var (
	StyleNone         = VariableStyle{ParamNone, ReturnNone}
	StyleInputOnly    = VariableStyle{InputOnly, ReturnNone}
	StyleDelete       = VariableStyle{Delete, ReturnNone}
	StyleMoveIn       = VariableStyle{MoveIn, ReturnNone}
	StyleSplitIn      = VariableStyle{SplitIn, ReturnNone}
	StyleOut          = VariableStyle{Out, AssignmentWithNoInput}
	StyleRef          = VariableStyle{Ref, AssignmentWithInput}
	StyleMoveOut      = VariableStyle{MoveOut, Initialization}
	StyleSplitOut     = VariableStyle{SplitOut, AssignmentWithNoInput}
	StyleSplitOutDecl = VariableStyle{SplitOut, ReturnNone}
)

func (s VariableStyle) String() string {
	return s.Param.String() + "/" + s.Return.String()
}

// UseAsParameter reports whether the style passes the variable in. Out is
// a parameter only when passed by pointer, which VariableInfo decides.
func (s VariableStyle) UseAsParameter() bool {
	return s.Param == InputOnly || s.Param == Ref
}

// UseAsReturnValue reports whether the style carries the variable back.
func (s VariableStyle) UseAsReturnValue() bool {
	return s.Return != ReturnNone
}

// DeclaredInside reports whether the new function must declare the
// variable itself.
func (s VariableStyle) DeclaredInside() bool {
	switch s.Param {
	case MoveIn, SplitIn, Delete, Out:
		return true
	}
	return false
}
