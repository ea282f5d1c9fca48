package extract

import (
	"fmt"
	"strings"

	"github.com/mamaar/goextract/pkg/analysis"
)

// TriviaRole names one of the four token boundaries whose whitespace and
// comments are carried through an extraction.
type TriviaRole int

const (
	// CallStart is between the token before the selection and the call.
	CallStart TriviaRole = iota
	// CallEnd is between the call and the token after the selection.
	CallEnd
	// DeclStart is in front of the first moved token.
	DeclStart
	// DeclEnd is behind the last moved token.
	DeclEnd
)

func (r TriviaRole) String() string {
	switch r {
	case CallStart:
		return "call start"
	case CallEnd:
		return "call end"
	case DeclStart:
		return "declaration start"
	case DeclEnd:
		return "declaration end"
	}
	return "unknown"
}

// AnnotationResolver locates the gap for a role in a rewritten document.
// ok is false when the role has no gap there.
type AnnotationResolver func(doc *analysis.Document, role TriviaRole) (gap analysis.Span, ok bool)

// TriviaResolver returns the text to put into the gap of a role.
type TriviaResolver func(role TriviaRole) string

// SavedTrivia is the whitespace and comments around a selection, split at
// the first line break on each side.
type SavedTrivia struct {
	// StartTrailing ends the line of the token before the selection.
	StartTrailing string
	// StartLeading is the rest, up to the first selected token.
	StartLeading string
	EndTrailing  string
	EndLeading   string
	Expression   bool
	// Before and After track the tokens around the selection.
	Before, After analysis.Marker

	startBreak bool
}

// SnapshotTrivia records the trivia around span, which must start and end
// on tokens inside a function body. The returned document tracks the
// surrounding tokens.
func SnapshotTrivia(doc *analysis.Document, span analysis.Span, expression bool) (*analysis.Document, *SavedTrivia, error) {
	toks := doc.Tokens()
	as := doc.TokenAtOrAfter(span.Start)
	be := doc.TokenBefore(span.End)
	bs, ae := as-1, be+1
	if bs < 0 || ae >= len(toks) || as > be {
		return nil, nil, fmt.Errorf("selection %s is not enclosed by tokens", span)
	}

	t1 := string(doc.Src[toks[bs].Span.End:toks[as].Span.Start])
	t2 := string(doc.Src[toks[be].Span.End:toks[ae].Span.Start])
	st := &SavedTrivia{Expression: expression}
	st.StartTrailing, st.StartLeading = splitAtLineBreak(t1)
	st.EndTrailing, st.EndLeading = splitAtLineBreak(t2)
	st.startBreak = st.StartLeading != ""

	doc, st.Before = doc.Mark(toks[bs].Span)
	doc, st.After = doc.Mark(toks[ae].Span)
	return doc, st, nil
}

func splitAtLineBreak(s string) (trailing, leading string) {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

// dropBlankLines removes the blank lines at the start of s, which begins
// with a line break. A separating blank line stays at the call site.
func dropBlankLines(s string) string {
	rest := s[1:]
	for {
		i := strings.IndexByte(rest, '\n')
		if i < 0 || strings.TrimLeft(rest[:i], " \t\r") != "" {
			return "\n" + rest
		}
		rest = rest[i+1:]
	}
}

func blankLinesAhead(s string) bool {
	return len(dropBlankLines(s)) < len(s)
}

// Text is the default TriviaResolver. Statement extraction leaves the
// trailing comment of the preceding line and the lines after the
// selection at the call site, and moves the rest into the new body.
// Expression extraction leaves everything at the call site.
func (st *SavedTrivia) Text(role TriviaRole) string {
	if st.Expression {
		switch role {
		case CallStart:
			return st.StartTrailing + st.StartLeading
		case CallEnd:
			return st.EndTrailing + st.EndLeading
		case DeclStart:
			return " "
		}
		return "\n"
	}
	switch role {
	case CallStart:
		switch {
		case !st.startBreak:
			return st.StartTrailing
		case blankLinesAhead(st.StartLeading):
			return st.StartTrailing + "\n\n"
		}
		return st.StartTrailing + "\n"
	case CallEnd:
		return st.EndLeading
	case DeclStart:
		if st.StartLeading == "" {
			return "\n"
		}
		return dropBlankLines(st.StartLeading)
	}
	return st.EndTrailing + "\n"
}

// Restore writes the saved trivia back into doc. Roles whose gaps resolve
// to the same range are written once.
func (st *SavedTrivia) Restore(doc *analysis.Document, annotations AnnotationResolver, trivia TriviaResolver) (*analysis.Document, error) {
	if trivia == nil {
		trivia = st.Text
	}
	var edits []analysis.Edit
	seen := map[analysis.Span]bool{}
	for _, role := range []TriviaRole{CallStart, CallEnd, DeclStart, DeclEnd} {
		gap, ok := annotations(doc, role)
		if !ok || seen[gap] {
			continue
		}
		seen[gap] = true
		edits = append(edits, analysis.Edit{Span: gap, Text: trivia(role)})
	}
	out, err := doc.Rewrite(edits)
	if err != nil {
		return nil, fmt.Errorf("restoring trivia: %w", err)
	}
	return out, nil
}

// Gap returns the range between two tracked locations. A missing left
// location collapses the gap onto the right one.
func Gap(doc *analysis.Document, left analysis.Marker, leftEnd bool, right analysis.Marker) (analysis.Span, bool) {
	r, ok := doc.Lookup(right)
	if !ok {
		return analysis.Span{}, false
	}
	l, ok := doc.Lookup(left)
	if !ok {
		return analysis.Span{Start: r.Start, End: r.Start}, true
	}
	from := l.Start
	if leftEnd {
		from = l.End
	}
	if from > r.Start {
		return analysis.Span{}, false
	}
	return analysis.Span{Start: from, End: r.Start}, true
}

// TokenGapBefore returns the range between the token ending before the
// tracked location and the location itself.
func TokenGapBefore(doc *analysis.Document, m analysis.Marker) (analysis.Span, bool) {
	s, ok := doc.Lookup(m)
	if !ok {
		return analysis.Span{}, false
	}
	i := doc.TokenBefore(s.Start)
	if i < 0 {
		return analysis.Span{}, false
	}
	return analysis.Span{Start: doc.Tokens()[i].Span.End, End: s.Start}, true
}

// TokenGapAfter returns the range between the end of the tracked location
// and the token following it.
func TokenGapAfter(doc *analysis.Document, m analysis.Marker) (analysis.Span, bool) {
	s, ok := doc.Lookup(m)
	if !ok {
		return analysis.Span{}, false
	}
	toks := doc.Tokens()
	i := doc.TokenAtOrAfter(s.End)
	if i >= len(toks) {
		return analysis.Span{}, false
	}
	return analysis.Span{Start: s.End, End: toks[i].Span.Start}, true
}
