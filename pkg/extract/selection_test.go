package extract

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamaar/goextract/pkg/analysis"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func checkSource(t *testing.T, src string) *analysis.Document {
	t.Helper()
	doc, err := analysis.CheckSource("p.go", []byte(src), "1.25")
	require.NoError(t, err)
	return doc
}

// spanOf returns the span of the first occurrence of sub in src.
func spanOf(t *testing.T, src, sub string) analysis.Span {
	t.Helper()
	i := strings.Index(src, sub)
	require.GreaterOrEqual(t, i, 0, "%q not found", sub)
	return analysis.Span{Start: i, End: i + len(sub)}
}

func validate(t *testing.T, src, sel string) *SelectionResult {
	t.Helper()
	doc := checkSource(t, src)
	v := NewValidator(analysis.NewOracle(discardLogger()), discardLogger())
	res, err := v.Validate(context.Background(), doc, spanOf(t, src, sel))
	require.NoError(t, err)
	return res
}

func TestValidate_Statements(t *testing.T) {
	src := `package p

func f() int {
	x := 1
	y := x + 1
	return y
}
`
	sel := validate(t, src, "x := 1\n\ty := x + 1")
	require.True(t, sel.Status.Succeeded(), sel.Status.Reasons())
	assert.Equal(t, SelectStatements, sel.Kind)
	assert.Len(t, sel.Region.Stmts, 2)
	assert.False(t, sel.IsExpression())
}

func TestValidate_WidensToWholeStatement(t *testing.T) {
	src := `package p

func f() int {
	total := 0
	total += 4
	return total
}
`
	sel := validate(t, src, "+= 4")
	require.True(t, sel.Status.Succeeded(), sel.Status.Reasons())
	assert.Equal(t, SelectStatements, sel.Kind)
	assert.Equal(t, "total += 4", sel.Document().Text(sel.Span()))
}

func TestValidate_Expression(t *testing.T) {
	src := `package p

func f(a, b int) int {
	return (a + b) * 2
}
`
	sel := validate(t, src, "a + b")
	require.True(t, sel.Status.Succeeded(), sel.Status.Reasons())
	assert.Equal(t, SelectExpression, sel.Kind)
	assert.True(t, sel.IsExpression())
}

func TestValidate_TrimsWhitespaceAndComments(t *testing.T) {
	src := `package p

func f() int {
	x := 1 // one
	return x
}
`
	sel := validate(t, src, "x := 1 // one\n\t")
	require.True(t, sel.Status.Succeeded(), sel.Status.Reasons())
	assert.Equal(t, "x := 1", sel.Document().Text(sel.Span()))
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		sel    string
		reason string
	}{
		{
			name:   "empty",
			src:    "package p\n\nfunc f() {\n\t\n}\n",
			sel:    "\t\n",
			reason: "selection is empty",
		},
		{
			name:   "outside function",
			src:    "package p\n\nvar v = 1 + 2\n",
			sel:    "1 + 2",
			reason: "selection is not inside a function body",
		},
		{
			name:   "type",
			src:    "package p\n\nfunc f() {\n\tvar x int\n\t_ = x\n}\n",
			sel:    "int",
			reason: "cannot extract a type",
		},
		{
			name:   "nil",
			src:    "package p\n\nfunc f() {\n\tvar p *int = nil\n\t_ = p\n}\n",
			sel:    "nil",
			reason: "cannot extract nil",
		},
		{
			name:   "increment operand",
			src:    "package p\n\nfunc f(k int) int {\n\tk++\n\treturn k\n}\n",
			sel:    "k+",
			reason: "cannot extract the operand of ++",
		},
		{
			name:   "address operand",
			src:    "package p\n\nfunc f() *int {\n\tn := 0\n\treturn &n\n}\n",
			sel:    "n\n",
			reason: "cannot extract the operand of &",
		},
		{
			name:   "goto leaving the selection",
			src:    "package p\n\nfunc f(n int) int {\n\tif n > 0 {\n\t\tgoto done\n\t}\n\tn = 1\ndone:\n\treturn n\n}\n",
			sel:    "if n > 0 {\n\t\tgoto done\n\t}",
			reason: "selection contains a goto that leaves it",
		},
		{
			name:   "defer",
			src:    "package p\n\nfunc f() {\n\tdefer g()\n\tg()\n}\n\nfunc g() {}\n",
			sel:    "defer g()\n\tg()",
			reason: "selection contains a defer statement",
		},
		{
			name:   "constant used after",
			src:    "package p\n\nfunc f() int {\n\tconst c = 3\n\tx := c\n\treturn x + c\n}\n",
			sel:    "const c = 3\n\tx := c",
			reason: "c is declared in the selection and used after it",
		},
		{
			name:   "if header",
			src:    "package p\n\nfunc f() int {\n\tif x := 2; x > 1 {\n\t\treturn x\n\t}\n\treturn 0\n}\n",
			sel:    "x := 2",
			reason: "selection is part of an if header",
		},
		{
			name:   "for clause",
			src:    "package p\n\nfunc f() (s int) {\n\tfor i := 0; i < 3; i++ {\n\t\ts += i\n\t}\n\treturn\n}\n",
			sel:    "i := 0",
			reason: "selection is part of a for clause",
		},
		{
			name:   "break to two targets",
			src:    "package p\n\nfunc f(xs []int) {\nouter:\n\tfor range xs {\n\t\tfor range xs {\n\t\t\tif len(xs) > 2 {\n\t\t\t\tbreak outer\n\t\t\t}\n\t\t\tif len(xs) > 1 {\n\t\t\t\tbreak\n\t\t\t}\n\t\t}\n\t}\n}\n",
			sel:    "if len(xs) > 2 {\n\t\t\t\tbreak outer\n\t\t\t}\n\t\t\tif len(xs) > 1 {\n\t\t\t\tbreak\n\t\t\t}",
			reason: "break statements leave the selection to different targets",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := validate(t, tt.src, tt.sel)
			require.True(t, sel.Status.Failed(), "selection %q should be rejected", tt.sel)
			if tt.reason != "" {
				assert.Contains(t, sel.Status.Reasons(), tt.reason)
			}
		})
	}
}

func TestValidate_RejectsSpanIntoNextDeclaration(t *testing.T) {
	src := `package p

func f() int {
	x := 1
	return x
}

func g() {}
`
	doc := checkSource(t, src)
	v := NewValidator(analysis.NewOracle(discardLogger()), discardLogger())
	sel := spanOf(t, src, "x := 1")
	// end two bytes into the func keyword of g
	end := strings.Index(src, "func g") + 2

	res, err := v.Validate(context.Background(), doc, analysis.Span{Start: sel.Start, End: end})
	require.NoError(t, err)
	assert.True(t, res.Status.Failed())
	assert.Contains(t, res.Status.Reasons(), "selection extends past the enclosing function")

	// trailing whitespace before the closing brace is still fine
	res, err = v.Validate(context.Background(), doc, spanOf(t, src, "x := 1\n\treturn x\n"))
	require.NoError(t, err)
	assert.NotContains(t, res.Status.Reasons(), "selection extends past the enclosing function")
}

func TestValidate_UnreachableStartIsAWarning(t *testing.T) {
	src := `package p

func f() int {
	return 1
	x := 2
	return x
}
`
	sel := validate(t, src, "x := 2\n\treturn x")
	require.True(t, sel.Status.Succeeded(), sel.Status.Reasons())
	assert.Contains(t, sel.Status.Reasons(), "selection is unreachable")
}

func TestSelectionResult_WithFollowsMarkers(t *testing.T) {
	src := `package p

func f() int {
	x := 1
	return x
}
`
	sel := validate(t, src, "x := 1")
	require.True(t, sel.Status.Succeeded())

	doc, err := sel.Document().Rewrite([]analysis.Edit{{
		Span: analysis.Span{Start: sel.Span().Start, End: sel.Span().Start},
		Text: "_ = 0\n\t",
	}})
	require.NoError(t, err)
	moved, ok := sel.With(doc)
	require.True(t, ok)
	assert.Equal(t, "x := 1", moved.Document().Text(moved.Span()))
}
