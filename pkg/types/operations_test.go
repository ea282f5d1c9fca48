package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtractMode(t *testing.T) {
	testCases := []struct {
		in   string
		want ExtractMode
		ok   bool
	}{
		{"", ModeAuto, true},
		{"auto", ModeAuto, true},
		{"func", ModeFunction, true},
		{"method", ModeMethod, true},
		{"closure", ModeLocalFunction, true},
		{"lambda", "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseExtractMode(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIssueSeverityString(t *testing.T) {
	assert.Equal(t, "Error", Error.String())
	assert.Equal(t, "Warning", Warning.String())
	assert.Equal(t, "Info", Info.String())
	assert.Equal(t, "Unknown", IssueSeverity(7).String())
}

func TestParseSourceRange(t *testing.T) {
	testCases := []struct {
		in      string
		want    SourceRange
		wantErr bool
	}{
		{in: "7", want: SourceRange{StartLine: 7, EndLine: 7}},
		{in: "3-5", want: SourceRange{StartLine: 3, EndLine: 5}},
		{in: "3:2-5:10", want: SourceRange{StartLine: 3, StartCol: 2, EndLine: 5, EndCol: 10}},
		{in: "5-3", wantErr: true},
		{in: "x-3", wantErr: true},
		{in: "3:0-4", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseSourceRange(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.in, got.String())
		})
	}
}

func TestSourceRangeOffsets(t *testing.T) {
	src := []byte("package p\n\nfunc f() {\n\tx := 1\n\ty := x\n}\n")

	start, end, err := SourceRange{StartLine: 4, EndLine: 5}.Offsets(src)
	require.NoError(t, err)
	assert.Equal(t, "x := 1\n\ty := x", string(src[start:end]))

	start, end, err = SourceRange{StartLine: 5, StartCol: 7, EndLine: 5, EndCol: 8}.Offsets(src)
	require.NoError(t, err)
	assert.Equal(t, "x", string(src[start:end]))

	_, _, err = SourceRange{StartLine: 40, EndLine: 41}.Offsets(src)
	assert.Error(t, err)
}
