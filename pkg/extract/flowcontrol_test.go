package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mamaar/goextract/pkg/analysis"
)

func flowOf(endReachable bool, goVersion string, exits ...analysis.Exit) FlowControlInfo {
	cf := &analysis.ControlFlow{StartReachable: true, EndReachable: endReachable, Exits: exits}
	return NewFlowControlInfo(cf, false, goVersion)
}

var (
	exitReturn   = analysis.Exit{Kind: analysis.ExitReturn}
	exitBreak    = analysis.Exit{Kind: analysis.ExitBreak}
	exitContinue = analysis.Exit{Kind: analysis.ExitContinue}
)

func TestFlowControl_EncodingWidth(t *testing.T) {
	tests := []struct {
		name string
		flow FlowControlInfo
		want FlowEncoding
		typ  string
	}{
		{"fall through only", flowOf(true, "1.25"), EncodeVoid, ""},
		{"return only", flowOf(false, "1.25", exitReturn), EncodeVoid, ""},
		{"fall through and return", flowOf(true, "1.25", exitReturn), EncodeBool, "bool"},
		{"three kinds before new(expr)", flowOf(true, "1.25", exitBreak, exitReturn), EncodeNullableBool, "int"},
		{"three kinds with new(expr)", flowOf(true, "1.26", exitBreak, exitReturn), EncodeNullableBool, "*bool"},
		{"all kinds", flowOf(true, "1.25", exitBreak, exitContinue, exitReturn), EncodeInt, "int"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.flow.Encoding)
			assert.Equal(t, tt.typ, tt.flow.TypeString())
		})
	}
}

func TestFlowControl_KindsAreOrdered(t *testing.T) {
	flow := flowOf(true, "1.25", exitReturn, exitContinue, exitReturn, exitBreak)
	assert.Equal(t, []FlowKind{FlowFallThrough, FlowBreak, FlowContinue, FlowReturn}, flow.Kinds)
}

func TestFlowControl_ExpressionFallsThrough(t *testing.T) {
	cf := &analysis.ControlFlow{Exits: []analysis.Exit{exitReturn}}
	flow := NewFlowControlInfo(cf, true, "1.25")
	assert.Equal(t, []FlowKind{FlowFallThrough}, flow.Kinds)
	assert.False(t, flow.HasValue())
	assert.Empty(t, flow.Dispatch("flow", nil))
}

func TestFlowControl_OnlyReturns(t *testing.T) {
	assert.True(t, flowOf(false, "1.25", exitReturn).OnlyReturns())
	assert.False(t, flowOf(true, "1.25", exitReturn).OnlyReturns())
	assert.False(t, flowOf(false, "1.25", exitBreak).OnlyReturns())
}

func TestFlowControl_BoolValues(t *testing.T) {
	flow := flowOf(true, "1.25", exitReturn)
	assert.Equal(t, "shouldReturn", flow.VarName())
	assert.Equal(t, "false", flow.Value(FlowFallThrough))
	assert.Equal(t, "true", flow.Value(FlowReturn))
	assert.Equal(t, "shouldReturn", flow.Condition("shouldReturn", FlowReturn))
	assert.Equal(t, "if shouldReturn {\nreturn ret\n}", flow.Dispatch("shouldReturn", []string{"ret"}))
}

func TestFlowControl_BoolWithoutFallThrough(t *testing.T) {
	flow := flowOf(false, "1.25", exitContinue, exitReturn)
	assert.Equal(t, "flow", flow.VarName())
	assert.Equal(t, "if !flow {\ncontinue\n} else {\nreturn\n}", flow.Dispatch("flow", nil))
}

func TestFlowControl_NullableBool(t *testing.T) {
	flow := flowOf(true, "1.26", exitBreak, exitReturn)
	assert.Equal(t, "nil", flow.Value(FlowFallThrough))
	assert.Equal(t, "new(false)", flow.Value(FlowBreak))
	assert.Equal(t, "new(true)", flow.Value(FlowReturn))
	assert.Equal(t,
		"if flow != nil && !*flow {\nbreak\n} else if flow != nil && *flow {\nreturn\n}",
		flow.Dispatch("flow", nil))
}

func TestFlowControl_NullableBoolAsInt(t *testing.T) {
	flow := flowOf(true, "1.24", exitBreak, exitReturn)
	assert.Equal(t, EncodeNullableBool, flow.Encoding)
	assert.Equal(t, "0", flow.Value(FlowFallThrough))
	assert.Equal(t, "2", flow.Value(FlowReturn))
	assert.Equal(t, "flow == 1", flow.Condition("flow", FlowBreak))
}

func TestFlowControl_LabeledBranch(t *testing.T) {
	flow := flowOf(true, "1.25", analysis.Exit{Kind: analysis.ExitBreak, Label: "outer"})
	assert.Equal(t, "if flow {\nbreak outer\n}", flow.Dispatch("flow", nil))
}

func TestFlowControl_SingleExitNeedsNoValue(t *testing.T) {
	flow := flowOf(false, "1.25", exitBreak)
	assert.False(t, flow.HasValue())
	assert.Equal(t, "break", flow.Dispatch("", nil))
}
