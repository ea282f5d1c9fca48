package extract

import (
	"context"
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
	gotypes "go/types"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/types"
)

func extractIn(t *testing.T, src, sel string, opts Options) *ExtractMethodResult {
	t.Helper()
	doc := checkSource(t, src)
	e := New(analysis.NewOracle(discardLogger()), discardLogger())
	res, err := e.ExtractMethod(context.Background(), doc, spanOf(t, src, sel), opts)
	require.NoError(t, err)
	return res
}

// extracted runs a successful extraction and returns the new source, which
// must type-check.
func extracted(t *testing.T, src, sel string, opts Options) (string, *ExtractMethodResult) {
	t.Helper()
	res := extractIn(t, src, sel, opts)
	require.True(t, res.Succeeded(), res.Reasons())
	doc, name, err := res.Document()
	require.NoError(t, err)
	assert.Equal(t, res.Name, doc.Text(name))
	out := string(doc.Src)
	assert.Empty(t, typeErrors(t, out), out)
	return out, res
}

func typeErrors(t *testing.T, src string) []error {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "p.go", src, parser.ParseComments)
	require.NoError(t, err, src)
	var errs []error
	conf := gotypes.Config{Error: func(err error) { errs = append(errs, err) }}
	_, _ = conf.Check("p", fset, []*ast.File{f}, nil)
	return errs
}

func TestExtractMethod_RefVariable(t *testing.T) {
	src := `package p

func f() int {
	count := 0
	count = count + 1
	return count
}
`
	out, res := extracted(t, src, "count = count + 1", Options{})
	assert.Equal(t, `package p

func f() int {
	count := 0
	count = newFunction(count)
	return count
}

func newFunction(count int) int {
	count = count + 1
	return count
}
`, out)
	assert.Equal(t, types.ModeFunction, res.Mode)

	vi := res.Analysis.Variables[0]
	assert.Equal(t, "count", vi.Name())
	assert.Equal(t, StyleRef, vi.Style)
}

func TestExtractMethod_DeadWriteReturnsNothing(t *testing.T) {
	src := `package p

func f() {
	x := 0
	x = x + 1
}
`
	out, res := extracted(t, src, "x = x + 1", Options{})
	assert.Contains(t, out, "\tnewFunction(x)\n")
	assert.Contains(t, out, "func newFunction(x int) {\n")
	require.Len(t, res.Analysis.Variables, 1)
	assert.Equal(t, ReturnNone, res.Analysis.Variables[0].Style.Return)
	assert.Empty(t, res.Analysis.Results)
}

func TestExtractMethod_MoveOut(t *testing.T) {
	src := `package p

func f(a int) int {
	b := a * 2
	return b + 1
}
`
	out, _ := extracted(t, src, "b := a * 2", Options{})
	assert.Contains(t, out, "\tb := newFunction(a)\n")
	assert.Contains(t, out, "func newFunction(a int) int {\n\tb := a * 2\n\treturn b\n}")
}

func TestExtractMethod_SingleReturn(t *testing.T) {
	src := `package p

func sum(a, b int) int {
	return a + b
}
`
	out, res := extracted(t, src, "return a + b", Options{})
	assert.Contains(t, out, "\treturn newFunction(a, b)\n")
	assert.Contains(t, out, "func newFunction(a int, b int) int {\n\treturn a + b\n}")
	assert.True(t, res.Analysis.Flow.OnlyReturns())
}

func TestExtractMethod_Expression(t *testing.T) {
	src := `package p

func f(a, b int) int {
	return (a + b) * 2
}
`
	out, res := extracted(t, src, "a + b", Options{Name: "add"})
	assert.Contains(t, out, "\treturn (add(a, b)) * 2\n")
	assert.Contains(t, out, "func add(a int, b int) int {\n\treturn a + b\n}")
	assert.Equal(t, "add", res.Name)
}

func TestExtractMethod_MixedExits(t *testing.T) {
	src := `package p

func first(xs []int) int {
	for _, x := range xs {
		if x < 0 {
			return -1
		}
		if x == 0 {
			break
		}
	}
	return 0
}
`
	out, res := extracted(t, src, "if x < 0 {\n\t\t\treturn -1\n\t\t}\n\t\tif x == 0 {\n\t\t\tbreak\n\t\t}", Options{})
	assert.Equal(t, []FlowKind{FlowFallThrough, FlowBreak, FlowReturn}, res.Analysis.Flow.Kinds)
	assert.Contains(t, out, "ret, flow := newFunction(x)")
	assert.Contains(t, out, "if flow == 1 {\n\t\t\tbreak\n\t\t} else if flow == 2 {\n\t\t\treturn ret\n\t\t}")
	assert.Contains(t, out, "return -1, 2")
	assert.Contains(t, out, "return 0, 1")
}

func TestExtractMethod_ShouldReturn(t *testing.T) {
	src := `package p

func check(n int) string {
	if n < 0 {
		return "negative"
	}
	return "ok"
}
`
	out, _ := extracted(t, src, "if n < 0 {\n\t\treturn \"negative\"\n\t}", Options{})
	assert.Contains(t, out, "ret, shouldReturn := newFunction(n)")
	assert.Contains(t, out, "if shouldReturn {\n\t\treturn ret\n\t}")
	assert.Contains(t, out, "return \"negative\", true")
	assert.Contains(t, out, "return \"\", false")
}

func TestExtractMethod_Method(t *testing.T) {
	src := `package p

type counter struct{ n int }

func (c *counter) add(d int) int {
	c.n += d
	return c.n
}
`
	out, res := extracted(t, src, "c.n += d", Options{})
	assert.Equal(t, types.ModeMethod, res.Mode)
	assert.Equal(t, DefaultMethodName, res.Name)
	assert.Contains(t, out, "\tc.newMethod(d)\n")
	assert.Contains(t, out, "func (c *counter) newMethod(d int) {\n\tc.n += d\n}")
}

func TestExtractMethod_LocalFunction(t *testing.T) {
	src := `package p

func scale(p int) int {
	const k = 3
	s := p * k
	return s
}
`
	out, res := extracted(t, src, "s := p * k", Options{})
	assert.Equal(t, types.ModeLocalFunction, res.Mode)
	assert.Contains(t, out, "newFunction := func(p int) int {")
	assert.Contains(t, out, "s := newFunction(p)")
}

func TestExtractMethod_ForcedFunctionWithLocalConstant(t *testing.T) {
	src := `package p

func scale(p int) int {
	const k = 3
	s := p * k
	return s
}
`
	res := extractIn(t, src, "s := p * k", Options{Mode: types.ModeFunction})
	assert.False(t, res.Succeeded())
	assert.Contains(t, res.Reasons(), "k is declared in the enclosing function")
}

func TestExtractMethod_PreservesComments(t *testing.T) {
	src := `package p

func f() int {
	a := 1 // first
	// lead
	b := a + 1 // tail
	// after
	return b
}
`
	out, _ := extracted(t, src, "b := a + 1", Options{})
	comments := regexp.MustCompile(`//.*`)
	assert.ElementsMatch(t, comments.FindAllString(src, -1), comments.FindAllString(out, -1))
	assert.Contains(t, out, "a := 1 // first\n")
	assert.Contains(t, out, "\t// lead\n\tb := a + 1 // tail\n")
}

func TestExtractMethod_FreshDefaultName(t *testing.T) {
	src := `package p

func newFunction() {}

func f() int {
	x := 2
	y := x * x
	return y
}
`
	out, res := extracted(t, src, "y := x * x", Options{})
	assert.Equal(t, "newFunction1", res.Name)
	assert.Contains(t, out, "y := newFunction1(x)")
}

func TestExtractMethod_NameRejected(t *testing.T) {
	src := `package p

func f() int {
	x := 2
	y := x * x
	return y
}
`
	tests := []struct {
		name   string
		reason string
	}{
		{"f", "f is already declared"},
		{"x", "x is already declared"},
		{"1x", `"1x" is not a valid identifier`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := extractIn(t, src, "y := x * x", Options{Name: tt.name})
			require.False(t, res.Succeeded())
			assert.Contains(t, res.Reasons(), tt.reason)
		})
	}
}

func TestExtractMethod_FailedDocument(t *testing.T) {
	src := `package p

func f() {
	defer g()
	g()
}

func g() {}
`
	res := extractIn(t, src, "defer g()\n\tg()", Options{})
	require.False(t, res.Succeeded())
	assert.Nil(t, res.Analysis)

	_, _, err := res.Document()
	var rerr *types.RefactorError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, types.ExtractionFailed, rerr.Type)
}

func TestExtractMethod_Cancelled(t *testing.T) {
	src := `package p

func f() int {
	x := 1
	return x
}
`
	doc := checkSource(t, src)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New(analysis.NewOracle(discardLogger()), discardLogger())
	_, err := e.ExtractMethod(ctx, doc, spanOf(t, src, "x := 1"), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractMethod_CustomTrivia(t *testing.T) {
	src := `package p

func f() int {
	x := 1
	y := x + 1 // keep
	return y
}
`
	doc := checkSource(t, src)
	e := New(analysis.NewOracle(discardLogger()), discardLogger())
	e.Trivia = func(saved *SavedTrivia) TriviaResolver {
		return func(role TriviaRole) string {
			if role == DeclEnd {
				return "\n"
			}
			return saved.Text(role)
		}
	}
	res, err := e.ExtractMethod(context.Background(), doc, spanOf(t, src, "y := x + 1"), Options{})
	require.NoError(t, err)
	require.True(t, res.Succeeded(), res.Reasons())
	out, _, err := res.Document()
	require.NoError(t, err)
	assert.NotContains(t, string(out.Src), "// keep")
}

func TestExtractMethod_CheckRejectsNewTypeErrors(t *testing.T) {
	src := `package p

func f() int {
	count := 0
	count = count + 1
	return count
}
`
	var checked []string
	opts := Options{Check: func(src []byte) ([]error, error) {
		checked = append(checked, string(src))
		if len(checked) == 2 {
			return []error{errors.New("undefined: broken")}, nil
		}
		return nil, nil
	}}
	res := extractIn(t, src, "count = count + 1", opts)
	assert.False(t, res.Succeeded())
	assert.Contains(t, res.Reasons(), "the extracted code does not compile: undefined: broken")
	require.Len(t, checked, 2)
	assert.Equal(t, src, checked[0])
	assert.Contains(t, checked[1], "func newFunction(count int) int {")
}

func TestExtractMethod_CheckIgnoresExistingTypeErrors(t *testing.T) {
	src := `package p

func f() int {
	count := 0
	count = count + 1
	return count
}
`
	opts := Options{Check: func(src []byte) ([]error, error) {
		return append(typeErrors(t, string(src)), errors.New("missing sibling file")), nil
	}}
	res := extractIn(t, src, "count = count + 1", opts)
	assert.True(t, res.Succeeded(), res.Reasons())
}
