package extract

import (
	"fmt"
	"strings"
)

// Flags are the data-flow facts of one variable relative to a selection.
type Flags struct {
	DataFlowIn     bool
	DataFlowOut    bool
	AlwaysAssigned bool
	DeclaredInside bool
	ReadInside     bool
	WrittenInside  bool
	ReadOutside    bool
	WrittenOutside bool
	AddressTaken   bool
}

// key packs the eight table dimensions, DataFlowIn in the high bit.
func (f Flags) key() uint8 {
	var k uint8
	for _, b := range []bool{
		f.DataFlowIn, f.DataFlowOut, f.AlwaysAssigned, f.DeclaredInside,
		f.ReadInside, f.WrittenInside, f.ReadOutside, f.WrittenOutside,
	} {
		k <<= 1
		if b {
			k |= 1
		}
	}
	return k
}

// String renders the eight table dimensions as a bit string.
func (f Flags) String() string {
	return fmt.Sprintf("%08b", f.key())
}

// UnknownStateError reports a flag combination the classification table
// has no entry for. It indicates an oracle result the table was never
// designed for and is not recoverable in strict mode.
type UnknownStateError struct {
	Flags Flags
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("unknown variable state %s (in,out,assigned,declared,readIn,writeIn,readOut,writeOut)", e.Flags)
}

// matrix maps every data-flow state a sound analysis can report to the
// treatment of the variable. Keys read dataFlowIn, dataFlowOut,
// alwaysAssigned, declaredInside, readInside, writtenInside, readOutside,
// writtenOutside.
var matrix = buildMatrix()

func buildMatrix() map[uint8]VariableStyle {
	rows := []struct {
		keys  string
		style VariableStyle
	}{
		// declared outside
		{"00000000", StyleNone},
		{"10001000 10001001 10001010 10001011", StyleInputOnly},
		{"01100110 01100111", StyleOut},
		{"01000110 01000111", StyleRef},
		{"00000100 00100100", StyleDelete},
		{"00000101 00000110 00000111 00100101 00100110 00100111", StyleSplitIn},
		{"11001110 11001111 11101110 11101111", StyleRef},
		{"10001100 10001101 10001110 10001111 10101100 10101101 10101110 10101111", StyleInputOnly},
		{"01101110 01101111", StyleOut},
		{"01001110 01001111", StyleRef},
		{"00001100 00101100", StyleMoveIn},
		{"00001101 00001110 00001111 00101101 00101110 00101111", StyleSplitIn},

		// declared inside
		{"00010100 00011100 00110100 00111100", StyleNone},
		{"01110110 01111110", StyleMoveOut},
		{"01110111 01111111 01010110 01010111 01011110 01011111", StyleSplitOut},
		{"00010111 00011111 00110111 00111111 00010101 00011101 00110101 00111101", StyleSplitOutDecl},
		{"00010000 00011000", StyleNone},
		{"00010001 00011001", StyleSplitOutDecl},
		{"01010010 01010011 01011010 01011011", StyleSplitOut},
	}

	m := make(map[uint8]VariableStyle)
	for _, row := range rows {
		for _, bits := range strings.Fields(row.keys) {
			var k uint8
			for _, c := range bits {
				k = k<<1 | uint8(c-'0')
			}
			if _, dup := m[k]; dup {
				panic("duplicate classification key " + bits)
			}
			m[k] = row.style
		}
	}
	return m
}

// Classify returns the treatment of a variable with the given facts.
// An address-taken variable always gets Out, passed by pointer. States
// missing from the table are normalized once per rule; what is still
// unknown becomes InputOnly under bestEffort and an *UnknownStateError
// otherwise.
func Classify(f Flags, bestEffort bool) (VariableStyle, error) {
	if f.AddressTaken {
		return StyleOut, nil
	}
	if s, ok := matrix[f.key()]; ok {
		return s, nil
	}
	orig := f

	// read or written but reported as not flowing in
	if !f.DataFlowIn && (f.ReadInside || f.WrittenInside) {
		f.DataFlowIn = true
		if s, ok := matrix[f.key()]; ok {
			return s, nil
		}
	}
	// used after the selection before being definitely assigned
	if !f.DataFlowOut && !f.AlwaysAssigned && f.DeclaredInside && !f.WrittenInside && f.ReadOutside {
		f.DataFlowOut = true
		if s, ok := matrix[f.key()]; ok {
			return s, nil
		}
	}
	// an outer variable of the same name shadows one declared inside
	if f.DataFlowIn && f.DeclaredInside {
		f.DataFlowIn = false
		if s, ok := matrix[f.key()]; ok {
			return s, nil
		}
	}

	if bestEffort {
		return StyleInputOnly, nil
	}
	return VariableStyle{}, &UnknownStateError{Flags: orig}
}
