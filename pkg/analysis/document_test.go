package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEdits_RebasesMarkers(t *testing.T) {
	src := []byte("abcdefghij")
	before, inside, after := NewMarker(), NewMarker(), NewMarker()
	spans := Spans{
		before: {0, 2},
		inside: {4, 5},
		after:  {8, 10},
	}

	out, rebased, err := ApplyEdits(src, spans, []Edit{
		{Span: Span{3, 6}, Text: "XY"},
		{Span: Span{7, 7}, Text: "123"},
	})
	require.NoError(t, err)

	assert.Equal(t, "abcXYg123hij", string(out))
	assert.Equal(t, Span{0, 2}, rebased[before])
	assert.Equal(t, Span{10, 12}, rebased[after])
	_, ok := rebased[inside]
	assert.False(t, ok, "markers inside replaced text are dropped")
	assert.Equal(t, Span{4, 5}, spans[inside], "input table is not modified")
}

func TestApplyEdits_PlacesMarksInInsertedText(t *testing.T) {
	m := NewMarker()
	out, spans, err := ApplyEdits([]byte("x := 1\n"), Spans{}, []Edit{{
		Span:  Span{5, 6},
		Text:  "f(1)",
		Marks: map[Marker]Span{m: {0, 1}},
	}})
	require.NoError(t, err)
	assert.Equal(t, "x := f(1)\n", string(out))
	assert.Equal(t, Span{5, 6}, spans[m])
}

func TestApplyEdits_RejectsOverlap(t *testing.T) {
	_, _, err := ApplyEdits([]byte("abcdef"), Spans{}, []Edit{
		{Span: Span{0, 3}, Text: "x"},
		{Span: Span{2, 4}, Text: "y"},
	})
	assert.Error(t, err)

	_, _, err = ApplyEdits([]byte("abc"), Spans{}, []Edit{{Span: Span{2, 9}}})
	assert.Error(t, err)
}

func TestApplyEdits_InsertionAtSpanEndStaysOutside(t *testing.T) {
	m := NewMarker()
	out, spans, err := ApplyEdits([]byte("ab"), Spans{m: {0, 2}}, []Edit{{Span: Span{2, 2}, Text: "c"}})
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out))
	assert.Equal(t, Span{0, 2}, spans[m])
}

func TestDocument_Tokens(t *testing.T) {
	doc, err := ParseDocument("a.go", []byte("package a\n\n// c\nvar x = 1 /* y */\n"))
	require.NoError(t, err)

	var texts []string
	for _, tok := range doc.Tokens() {
		texts = append(texts, doc.Text(tok.Span))
	}
	assert.Equal(t, []string{"package", "a", "var", "x", "=", "1"}, texts)
}

func TestDocument_TrimSpan(t *testing.T) {
	src := "package a\n\nfunc f() {\n\t// lead\n\tprintln(1)\n\t\n}\n"
	doc, err := ParseDocument("a.go", []byte(src))
	require.NoError(t, err)

	start := len("package a\n\nfunc f() {\n")
	end := len(src) - len("}\n")
	trimmed := doc.TrimSpan(Span{start, end})
	assert.Equal(t, "println(1)", doc.Text(trimmed))
}

func TestDocument_CoverTokens(t *testing.T) {
	src := "package a\n\nvar total = 10 // c\n"
	doc, err := ParseDocument("a.go", []byte(src))
	require.NoError(t, err)

	start := len("package a\n\nvar to")
	covered := doc.CoverTokens(Span{start, start + len("tal = 1")})
	assert.Equal(t, "total = 10", doc.Text(covered))

	end := len(src) - 1
	covered = doc.CoverTokens(Span{len("package a\n\nvar total = 10"), end})
	assert.True(t, covered.Empty(), "comments and whitespace cover no tokens")
}

func TestDocument_Hidden(t *testing.T) {
	gen, err := ParseDocument("gen.go", []byte("// Code generated by stringer. DO NOT EDIT.\n\npackage a\n"))
	require.NoError(t, err)
	assert.True(t, gen.IsHidden(Span{0, 1}))

	src := "package a\n\nfunc f() {\n//line other.y:10\n\tprintln(1)\n//line a.go:6\n\tprintln(2)\n}\n"
	doc, err := ParseDocument("a.go", []byte(src))
	require.NoError(t, err)

	first := indexOf(t, src, "println(1)")
	second := indexOf(t, src, "println(2)")
	assert.True(t, doc.IsHidden(Span{first, first + 10}))
	assert.False(t, doc.IsHidden(Span{second, second + 10}))
}

func TestDocument_RewriteKeepsMarkers(t *testing.T) {
	src := "package a\n\nfunc f() { println(1) }\n"
	doc, err := ParseDocument("a.go", []byte(src))
	require.NoError(t, err)
	doc.GoVersion = "1.25"

	call := indexOf(t, src, "println")
	marked, m := doc.Mark(Span{call, call + len("println")})

	out, err := marked.Rewrite([]Edit{{Span: Span{call, call}, Text: "print(0); "}})
	require.NoError(t, err)

	s, ok := out.Lookup(m)
	require.True(t, ok)
	assert.Equal(t, "println", out.Text(s))
	assert.Equal(t, "1.25", out.GoVersion)
	assert.Nil(t, out.Info)
	assert.Equal(t, src, string(doc.Src), "rewrites never touch the input snapshot")
}

func TestLineDirectiveFile(t *testing.T) {
	assert.Equal(t, "parser.y", lineDirectiveFile("parser.y:10"))
	assert.Equal(t, "parser.y", lineDirectiveFile("parser.y:10:3"))
	assert.Equal(t, "/tmp/x.go", lineDirectiveFile("/tmp/x.go:1"))
	assert.Equal(t, "", lineDirectiveFile(":5"))
}
