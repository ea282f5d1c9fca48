package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flagsOf(k uint8) Flags {
	bit := func(i uint) bool { return k&(1<<(7-i)) != 0 }
	return Flags{
		DataFlowIn:     bit(0),
		DataFlowOut:    bit(1),
		AlwaysAssigned: bit(2),
		DeclaredInside: bit(3),
		ReadInside:     bit(4),
		WrittenInside:  bit(5),
		ReadOutside:    bit(6),
		WrittenOutside: bit(7),
	}
}

func TestMatrix_Size(t *testing.T) {
	assert.Len(t, matrix, 69)
}

func TestClassify_TotalUnderBestEffort(t *testing.T) {
	for k := 0; k < 256; k++ {
		f := flagsOf(uint8(k))
		_, err := Classify(f, true)
		require.NoError(t, err, "key %s", f)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	for k, want := range matrix {
		for range 3 {
			got, err := Classify(flagsOf(k), false)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}

func TestClassify_AddressTakenDominates(t *testing.T) {
	for k := 0; k < 256; k++ {
		f := flagsOf(uint8(k))
		f.AddressTaken = true
		for _, bestEffort := range []bool{false, true} {
			got, err := Classify(f, bestEffort)
			require.NoError(t, err)
			assert.Equal(t, Out, got.Param, "key %s", f)
		}
	}
}

func TestClassify_Normalization(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want VariableStyle
	}{
		// read inside only, reported without flow in
		{"missing flow in", "00001000", StyleInputOnly},
		// declared inside, read after without definite assignment
		{"missing flow out", "00011010", StyleSplitOut},
		// declared inside yet reported as flowing in
		{"shadowed declaration", "11110110", StyleMoveOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var k uint8
			for _, c := range tt.in {
				k = k<<1 | uint8(c-'0')
			}
			_, known := matrix[k]
			require.False(t, known)

			got, err := Classify(flagsOf(k), false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_UnknownStrict(t *testing.T) {
	// flows in and out but nothing touches it
	f := flagsOf(0b11000000)
	_, err := Classify(f, false)

	var unknown *UnknownStateError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, f, unknown.Flags)

	got, err := Classify(f, true)
	require.NoError(t, err)
	assert.Equal(t, StyleInputOnly, got)
}

func TestClassify_Scenarios(t *testing.T) {
	// x = x + 1 where x lives only in the selection
	got, err := Classify(Flags{DeclaredInside: true, ReadInside: true, WrittenInside: true, AlwaysAssigned: true}, false)
	require.NoError(t, err)
	assert.Equal(t, StyleNone, got)

	// count is read and written inside, flows in from before and is read after
	got, err = Classify(Flags{
		DataFlowIn: true, DataFlowOut: true,
		ReadInside: true, WrittenInside: true,
		ReadOutside: true, WrittenOutside: true,
	}, false)
	require.NoError(t, err)
	assert.Equal(t, StyleRef, got)
}

// named builds flags from space-separated names.
func named(t *testing.T, names string) Flags {
	t.Helper()
	var f Flags
	for _, n := range strings.Fields(names) {
		switch n {
		case "in":
			f.DataFlowIn = true
		case "out":
			f.DataFlowOut = true
		case "assigned":
			f.AlwaysAssigned = true
		case "declared":
			f.DeclaredInside = true
		case "readIn":
			f.ReadInside = true
		case "writeIn":
			f.WrittenInside = true
		case "readOut":
			f.ReadOutside = true
		case "writeOut":
			f.WrittenOutside = true
		default:
			t.Fatalf("unknown flag %q", n)
		}
	}
	return f
}

func TestClassify_Table(t *testing.T) {
	var (
		none       = VariableStyle{ParamNone, ReturnNone}
		input      = VariableStyle{InputOnly, ReturnNone}
		out        = VariableStyle{Out, AssignmentWithNoInput}
		ref        = VariableStyle{Ref, AssignmentWithInput}
		moveIn     = VariableStyle{MoveIn, ReturnNone}
		splitIn    = VariableStyle{SplitIn, ReturnNone}
		del        = VariableStyle{Delete, ReturnNone}
		moveOut    = VariableStyle{MoveOut, Initialization}
		splitOut   = VariableStyle{SplitOut, AssignmentWithNoInput}
		splitOutNR = VariableStyle{SplitOut, ReturnNone}
	)
	tests := []struct {
		want  VariableStyle
		flags []string
	}{
		// untouched
		{none, []string{""}},

		// outer variable only read inside
		{input, []string{
			"in readIn",
			"in readIn writeOut",
			"in readIn readOut",
			"in readIn readOut writeOut",
		}},
		// read and written inside, the new value is not needed after
		{input, []string{
			"in readIn writeIn",
			"in readIn writeIn writeOut",
			"in readIn writeIn readOut",
			"in readIn writeIn readOut writeOut",
			"in assigned readIn writeIn",
			"in assigned readIn writeIn writeOut",
			"in assigned readIn writeIn readOut",
			"in assigned readIn writeIn readOut writeOut",
		}},

		// assigned on every path and read after
		{out, []string{
			"out assigned writeIn readOut",
			"out assigned writeIn readOut writeOut",
			"out assigned readIn writeIn readOut",
			"out assigned readIn writeIn readOut writeOut",
		}},

		// the old value may survive the selection
		{ref, []string{
			"out writeIn readOut",
			"out writeIn readOut writeOut",
			"out readIn writeIn readOut",
			"out readIn writeIn readOut writeOut",
		}},
		// the old value is used inside and the new one after
		{ref, []string{
			"in out readIn writeIn readOut",
			"in out readIn writeIn readOut writeOut",
			"in out assigned readIn writeIn readOut",
			"in out assigned readIn writeIn readOut writeOut",
		}},

		// outer declaration used only by the selection
		{del, []string{
			"writeIn",
			"assigned writeIn",
		}},
		{moveIn, []string{
			"readIn writeIn",
			"assigned readIn writeIn",
		}},

		// outer declaration also used elsewhere, no value crosses
		{splitIn, []string{
			"writeIn writeOut",
			"writeIn readOut",
			"writeIn readOut writeOut",
			"assigned writeIn writeOut",
			"assigned writeIn readOut",
			"assigned writeIn readOut writeOut",
			"readIn writeIn writeOut",
			"readIn writeIn readOut",
			"readIn writeIn readOut writeOut",
			"assigned readIn writeIn writeOut",
			"assigned readIn writeIn readOut",
			"assigned readIn writeIn readOut writeOut",
		}},

		// declared inside and never used after
		{none, []string{
			"declared",
			"declared readIn",
			"declared writeIn",
			"declared readIn writeIn",
			"assigned declared writeIn",
			"assigned declared readIn writeIn",
		}},

		// declared inside, assigned on every path, only read after
		{moveOut, []string{
			"out assigned declared writeIn readOut",
			"out assigned declared readIn writeIn readOut",
		}},

		// declared inside, value needed after, declaration kept inside
		{splitOut, []string{
			"out assigned declared writeIn readOut writeOut",
			"out assigned declared readIn writeIn readOut writeOut",
			"out declared writeIn readOut",
			"out declared writeIn readOut writeOut",
			"out declared readIn writeIn readOut",
			"out declared readIn writeIn readOut writeOut",
			"out declared readOut",
			"out declared readOut writeOut",
			"out declared readIn readOut",
			"out declared readIn readOut writeOut",
		}},

		// declared inside, the name is reused after without the value
		{splitOutNR, []string{
			"declared writeOut",
			"declared readIn writeOut",
			"declared writeIn writeOut",
			"declared readIn writeIn writeOut",
			"assigned declared writeIn writeOut",
			"assigned declared readIn writeIn writeOut",
			"declared writeIn readOut writeOut",
			"declared readIn writeIn readOut writeOut",
			"assigned declared writeIn readOut writeOut",
			"assigned declared readIn writeIn readOut writeOut",
		}},
	}

	seen := map[Flags]bool{}
	for _, tt := range tests {
		for _, names := range tt.flags {
			f := named(t, names)
			require.False(t, seen[f], "duplicate row %q", names)
			seen[f] = true

			_, known := matrix[f.key()]
			assert.True(t, known, "%q is not a table key", names)
			got, err := Classify(f, false)
			require.NoError(t, err, names)
			assert.Equal(t, tt.want, got, "%q", names)
		}
	}
	assert.Len(t, seen, 69)
}
