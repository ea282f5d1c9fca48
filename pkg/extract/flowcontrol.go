package extract

import (
	"fmt"
	"go/version"
	"slices"
	"strings"

	"github.com/mamaar/goextract/pkg/analysis"
)

// FlowKind is one way control can leave the selection.
type FlowKind int

const (
	FlowFallThrough FlowKind = iota
	FlowBreak
	FlowContinue
	FlowReturn
)

func (k FlowKind) String() string {
	switch k {
	case FlowFallThrough:
		return "fall through"
	case FlowBreak:
		return "break"
	case FlowContinue:
		return "continue"
	case FlowReturn:
		return "return"
	}
	return "unknown"
}

// FlowEncoding is the type carrying the flow kind out of the new function.
// Its domain has exactly as many values as there are kinds.
type FlowEncoding int

const (
	EncodeVoid FlowEncoding = iota
	EncodeBool
	EncodeNullableBool
	EncodeInt
)

func (e FlowEncoding) String() string {
	switch e {
	case EncodeVoid:
		return "void"
	case EncodeBool:
		return "bool"
	case EncodeNullableBool:
		return "nullable bool"
	case EncodeInt:
		return "int"
	}
	return "unknown"
}

// newExprVersion is the first language version accepting new(expr).
const newExprVersion = "go1.26"

// FlowControlInfo describes the exits of a selection and how they are
// encoded in the new function's last result.
type FlowControlInfo struct {
	Kinds    []FlowKind // distinct kinds in FlowKind order
	Encoding FlowEncoding
	// Labels holds the label of labeled break and continue exits.
	Labels map[FlowKind]string

	intPointer bool // nullable bool rendered as int
}

// NewFlowControlInfo derives the flow kinds from control-flow facts.
func NewFlowControlInfo(cf *analysis.ControlFlow, expression bool, goVersion string) FlowControlInfo {
	info := FlowControlInfo{Labels: map[FlowKind]string{}}
	if expression || cf == nil {
		info.Kinds = []FlowKind{FlowFallThrough}
		return info
	}
	if cf.EndReachable {
		info.Kinds = append(info.Kinds, FlowFallThrough)
	}
	for _, k := range []struct {
		exit analysis.ExitKind
		flow FlowKind
	}{
		{analysis.ExitBreak, FlowBreak},
		{analysis.ExitContinue, FlowContinue},
		{analysis.ExitReturn, FlowReturn},
	} {
		for _, e := range cf.Exits {
			if e.Kind != k.exit {
				continue
			}
			if !slices.Contains(info.Kinds, k.flow) {
				info.Kinds = append(info.Kinds, k.flow)
			}
			if e.Label != "" {
				info.Labels[k.flow] = e.Label
			}
		}
	}

	switch len(info.Kinds) {
	case 0, 1:
		info.Encoding = EncodeVoid
	case 2:
		info.Encoding = EncodeBool
	case 3:
		info.Encoding = EncodeNullableBool
		info.intPointer = goVersion != "" && version.Compare(langVersion(goVersion), newExprVersion) < 0
	default:
		info.Encoding = EncodeInt
	}
	return info
}

// langVersion accepts both go.mod ("1.25") and go/version ("go1.25") forms.
func langVersion(v string) string {
	if strings.HasPrefix(v, "go") {
		return v
	}
	return "go" + v
}

func (f FlowControlInfo) Has(k FlowKind) bool { return slices.Contains(f.Kinds, k) }

// OnlyReturns reports whether every path through the selection returns
// from the enclosing function.
func (f FlowControlInfo) OnlyReturns() bool {
	return len(f.Kinds) == 1 && f.Kinds[0] == FlowReturn
}

// HasValue reports whether the new function returns a flow value.
func (f FlowControlInfo) HasValue() bool { return f.Encoding != EncodeVoid }

// VarName is the base name of the call-site variable holding the value.
func (f FlowControlInfo) VarName() string {
	if f.Encoding == EncodeBool && f.Has(FlowFallThrough) && f.Has(FlowReturn) {
		return "shouldReturn"
	}
	return "flow"
}

// TypeString renders the type of the flow value.
func (f FlowControlInfo) TypeString() string {
	switch f.Encoding {
	case EncodeBool:
		return "bool"
	case EncodeNullableBool:
		if f.intPointer {
			return "int"
		}
		return "*bool"
	case EncodeInt:
		return "int"
	}
	return ""
}

func (f FlowControlInfo) index(k FlowKind) int { return slices.Index(f.Kinds, k) }

// Value renders the flow value for kind k.
func (f FlowControlInfo) Value(k FlowKind) string {
	i := f.index(k)
	switch {
	case f.Encoding == EncodeBool:
		return fmt.Sprint(i == 1)
	case f.Encoding == EncodeNullableBool && !f.intPointer:
		switch i {
		case 0:
			return "nil"
		case 1:
			return "new(false)"
		}
		return "new(true)"
	}
	return fmt.Sprint(i)
}

// Condition renders a test of variable v for kind k.
func (f FlowControlInfo) Condition(v string, k FlowKind) string {
	i := f.index(k)
	switch {
	case f.Encoding == EncodeBool:
		if i == 1 {
			return v
		}
		return "!" + v
	case f.Encoding == EncodeNullableBool && !f.intPointer:
		switch i {
		case 0:
			return v + " == nil"
		case 1:
			return fmt.Sprintf("%s != nil && !*%s", v, v)
		}
		return fmt.Sprintf("%s != nil && *%s", v, v)
	}
	return fmt.Sprintf("%s == %d", v, i)
}

// action renders the statement re-creating exit k at the call site.
func (f FlowControlInfo) action(k FlowKind, results []string) string {
	switch k {
	case FlowBreak, FlowContinue:
		if l := f.Labels[k]; l != "" {
			return k.String() + " " + l
		}
		return k.String()
	case FlowReturn:
		if len(results) == 0 {
			return "return"
		}
		return "return " + strings.Join(results, ", ")
	}
	return ""
}

// Dispatch renders the if/else chain re-creating the exits from variable
// v. results are the call-site names of the enclosing function's results.
// Without a fall-through path the last kind needs no test.
func (f FlowControlInfo) Dispatch(v string, results []string) string {
	var exits []FlowKind
	for _, k := range f.Kinds {
		if k != FlowFallThrough {
			exits = append(exits, k)
		}
	}
	if len(exits) == 0 {
		return ""
	}
	if !f.HasValue() {
		return f.action(exits[0], results)
	}

	var b strings.Builder
	for i, k := range exits {
		last := i == len(exits)-1
		switch {
		case i == 0:
			fmt.Fprintf(&b, "if %s {\n", f.Condition(v, k))
		case last && !f.Has(FlowFallThrough):
			b.WriteString("} else {\n")
		default:
			fmt.Fprintf(&b, "} else if %s {\n", f.Condition(v, k))
		}
		b.WriteString(f.action(k, results))
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}
