package analysis

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	gotypes "go/types"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/mamaar/goextract/pkg/types"
)

// Span is a half-open byte interval [Start, End) of a document's source.
type Span struct {
	Start int
	End   int
}

func (s Span) Len() int { return s.End - s.Start }

func (s Span) Empty() bool { return s.Start == s.End }

// Contains reports whether o lies within s.
func (s Span) Contains(o Span) bool { return s.Start <= o.Start && o.End <= s.End }

// Overlaps reports whether the two spans share at least one byte.
func (s Span) Overlaps(o Span) bool { return s.Start < o.End && o.Start < s.End }

func (s Span) String() string { return fmt.Sprintf("[%d,%d)", s.Start, s.End) }

// Marker names a tracked region of a document. Markers stay valid across
// rewrites because every edit batch rebases the span table.
type Marker int64

var markerSeq atomic.Int64

// NewMarker returns a process-wide unique marker.
func NewMarker() Marker {
	return Marker(markerSeq.Add(1))
}

// Spans is the marker table of a document snapshot.
type Spans map[Marker]Span

func (s Spans) Clone() Spans {
	out := make(Spans, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Edit replaces Span with Text. Marks places markers inside Text, with spans
// relative to the start of Text.
type Edit struct {
	Span  Span
	Text  string
	Marks map[Marker]Span
}

// ApplyEdits applies non-overlapping edits to src and rebases spans. A
// marker whose start or end falls strictly inside a replaced range is
// dropped unless the edit re-marks it.
func ApplyEdits(src []byte, spans Spans, edits []Edit) ([]byte, Spans, error) {
	sorted := slices.Clone(edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Span, sorted[j].Span
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		// insertions go before a replacement starting at the same offset
		return a.Empty() && !b.Empty()
	})

	for i, e := range sorted {
		if e.Span.Start < 0 || e.Span.End > len(src) || e.Span.Start > e.Span.End {
			return nil, nil, fmt.Errorf("edit %s out of bounds (len %d)", e.Span, len(src))
		}
		if i > 0 && sorted[i-1].Span.End > e.Span.Start {
			return nil, nil, fmt.Errorf("overlapping edits %s and %s", sorted[i-1].Span, e.Span)
		}
	}

	var buf bytes.Buffer
	buf.Grow(len(src))
	newStarts := make([]int, len(sorted))
	last := 0
	for i, e := range sorted {
		buf.Write(src[last:e.Span.Start])
		newStarts[i] = buf.Len()
		buf.WriteString(e.Text)
		last = e.Span.End
	}
	buf.Write(src[last:])

	// mapOffset translates an old offset; isEnd keeps a pure insertion at
	// the offset outside a span ending there.
	mapOffset := func(off int, isEnd bool) (int, bool) {
		delta := 0
		for _, e := range sorted {
			switch {
			case e.Span.End < off,
				e.Span.End == off && (!isEnd || !e.Span.Empty()):
				delta += len(e.Text) - e.Span.Len()
			case e.Span.Start < off && off < e.Span.End:
				return 0, false
			}
		}
		return off + delta, true
	}

	out := make(Spans, len(spans))
	for m, s := range spans {
		start, ok1 := mapOffset(s.Start, false)
		end, ok2 := mapOffset(s.End, true)
		if ok1 && ok2 && start <= end {
			out[m] = Span{start, end}
		}
	}
	for i, e := range sorted {
		for m, rel := range e.Marks {
			out[m] = Span{newStarts[i] + rel.Start, newStarts[i] + rel.End}
		}
	}
	return buf.Bytes(), out, nil
}

// Token is a non-comment token of a document. Automatically inserted
// semicolons are not tokens.
type Token struct {
	Kind token.Token
	Span Span
}

// Document is an immutable snapshot of one Go source file. Pkg and Info are
// nil for snapshots produced by a rewrite until they are type-checked again.
type Document struct {
	Path      string
	Src       []byte
	Fset      *token.FileSet
	File      *ast.File
	Pkg       *gotypes.Package
	Info      *gotypes.Info
	Spans     Spans
	GoVersion string
	Hidden    bool

	tokensOnce sync.Once
	tokens     []Token
	hidden     []Span
}

// ParseDocument parses src into a syntax-only document.
func ParseDocument(path string, src []byte) (*Document, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, &types.RefactorError{
			Type:    types.ParseError,
			Message: fmt.Sprintf("failed to parse file: %v", err),
			File:    path,
			Cause:   err,
		}
	}
	return NewDocument(path, src, fset, f), nil
}

// NewDocument wraps an already parsed file.
func NewDocument(path string, src []byte, fset *token.FileSet, f *ast.File) *Document {
	return &Document{
		Path:   path,
		Src:    src,
		Fset:   fset,
		File:   f,
		Spans:  Spans{},
		Hidden: ast.IsGenerated(f),
	}
}

// WithTypes returns a copy of d carrying type information.
func (d *Document) WithTypes(pkg *gotypes.Package, info *gotypes.Info) *Document {
	nd := d.shallowCopy()
	nd.Pkg, nd.Info = pkg, info
	return nd
}

// WithSpans returns a copy of d with the given marker table.
func (d *Document) WithSpans(spans Spans) *Document {
	nd := d.shallowCopy()
	nd.Spans = spans
	return nd
}

// Mark returns a copy of d tracking s under a new marker.
func (d *Document) Mark(s Span) (*Document, Marker) {
	m := NewMarker()
	spans := d.Spans.Clone()
	spans[m] = s
	return d.WithSpans(spans), m
}

func (d *Document) shallowCopy() *Document {
	return &Document{
		Path:      d.Path,
		Src:       d.Src,
		Fset:      d.Fset,
		File:      d.File,
		Pkg:       d.Pkg,
		Info:      d.Info,
		Spans:     d.Spans,
		GoVersion: d.GoVersion,
		Hidden:    d.Hidden,
	}
}

// Rewrite applies edits and re-parses the result. The new snapshot has no
// type information.
func (d *Document) Rewrite(edits []Edit) (*Document, error) {
	src, spans, err := ApplyEdits(d.Src, d.Spans, edits)
	if err != nil {
		return nil, fmt.Errorf("rewriting %s: %w", d.Path, err)
	}
	nd, err := ParseDocument(d.Path, src)
	if err != nil {
		return nil, err
	}
	nd.Spans = spans
	nd.GoVersion = d.GoVersion
	nd.Hidden = nd.Hidden || d.Hidden
	return nd, nil
}

// Lookup returns the current location of a marker.
func (d *Document) Lookup(m Marker) (Span, bool) {
	s, ok := d.Spans[m]
	return s, ok
}

func (d *Document) tokFile() *token.File {
	return d.Fset.File(d.File.Pos())
}

// Offset converts a position of d's file set into a byte offset.
func (d *Document) Offset(pos token.Pos) int {
	return d.tokFile().Offset(pos)
}

// Pos converts a byte offset into a position of d's file set.
func (d *Document) Pos(off int) token.Pos {
	return d.tokFile().Pos(off)
}

// SpanOf returns the byte span of a node.
func (d *Document) SpanOf(n ast.Node) Span {
	return Span{d.Offset(n.Pos()), d.Offset(n.End())}
}

// Text returns the source covered by s.
func (d *Document) Text(s Span) string {
	return string(d.Src[s.Start:s.End])
}

// Line returns the 1-based line of an offset.
func (d *Document) Line(off int) int {
	return d.tokFile().Line(d.Pos(off))
}

// PathEnclosingInterval returns the path from the innermost node enclosing s
// up to the file, and whether the innermost node matches s exactly.
func (d *Document) PathEnclosingInterval(s Span) ([]ast.Node, bool) {
	return astutil.PathEnclosingInterval(d.File, d.Pos(s.Start), d.Pos(s.End))
}

// ObjectOf returns the object an identifier denotes, or nil.
func (d *Document) ObjectOf(id *ast.Ident) gotypes.Object {
	if d.Info == nil {
		return nil
	}
	return d.Info.ObjectOf(id)
}

// TypeOf returns the type of an expression, or nil.
func (d *Document) TypeOf(e ast.Expr) gotypes.Type {
	if d.Info == nil {
		return nil
	}
	return d.Info.TypeOf(e)
}

// Tokens returns the token stream of the document, computed once.
func (d *Document) Tokens() []Token {
	d.tokensOnce.Do(d.scan)
	return d.tokens
}

func (d *Document) scan() {
	var s scanner.Scanner
	fset := token.NewFileSet()
	file := fset.AddFile(d.Path, -1, len(d.Src))
	s.Init(file, d.Src, nil, scanner.ScanComments)
	for {
		pos, tok, lit := s.Scan()
		if tok == token.EOF {
			break
		}
		off := file.Offset(pos)
		switch {
		case tok == token.COMMENT:
			d.noteLineDirective(off, lit)
			continue
		case tok == token.SEMICOLON && lit == "\n":
			continue
		}
		end := off + len(lit)
		if lit == "" {
			end = off + len(tok.String())
		}
		d.tokens = append(d.tokens, Token{Kind: tok, Span: Span{off, end}})
	}
	if n := len(d.hidden); n > 0 && d.hidden[n-1].End < 0 {
		d.hidden[n-1].End = len(d.Src)
	}
}

// noteLineDirective records regions whose positions a //line directive
// remaps into a different file. Such code is owned by another source.
func (d *Document) noteLineDirective(off int, lit string) {
	var directive string
	switch {
	case strings.HasPrefix(lit, "//line "):
		directive = strings.TrimPrefix(lit, "//line ")
	case strings.HasPrefix(lit, "/*line ") && strings.HasSuffix(lit, "*/"):
		directive = strings.TrimSuffix(strings.TrimPrefix(lit, "/*line "), "*/")
	default:
		return
	}
	if off > 0 && d.Src[off-1] != '\n' && strings.HasPrefix(lit, "//") {
		return
	}
	name := lineDirectiveFile(directive)
	open := len(d.hidden) > 0 && d.hidden[len(d.hidden)-1].End < 0
	remapped := name != "" && filepath.Base(name) != filepath.Base(d.Path)
	switch {
	case remapped && !open:
		d.hidden = append(d.hidden, Span{Start: off, End: -1})
	case !remapped && open:
		d.hidden[len(d.hidden)-1].End = off
	}
}

// lineDirectiveFile extracts the file name of "file:line[:col]".
func lineDirectiveFile(directive string) string {
	directive = strings.TrimSpace(directive)
	for range 2 {
		i := strings.LastIndexByte(directive, ':')
		if i < 0 {
			break
		}
		if _, err := strconv.Atoi(directive[i+1:]); err != nil {
			break
		}
		directive = directive[:i]
	}
	return directive
}

// IsHidden reports whether s overlaps generated or remapped code.
func (d *Document) IsHidden(s Span) bool {
	if d.Hidden {
		return true
	}
	d.Tokens()
	for _, h := range d.hidden {
		if h.Overlaps(s) || (s.Empty() && h.Start <= s.Start && s.Start < h.End) {
			return true
		}
	}
	return false
}

// TokenAtOrAfter returns the index of the first token starting at or after off.
func (d *Document) TokenAtOrAfter(off int) int {
	toks := d.Tokens()
	return sort.Search(len(toks), func(i int) bool { return toks[i].Span.Start >= off })
}

// TokenBefore returns the index of the last token ending at or before off,
// or -1.
func (d *Document) TokenBefore(off int) int {
	toks := d.Tokens()
	return sort.Search(len(toks), func(i int) bool { return toks[i].Span.End > off }) - 1
}

// CoverTokens grows s to the tokens it touches, including ones it only
// partly covers, and drops whitespace and comments at its edges.
func (d *Document) CoverTokens(s Span) Span {
	toks := d.Tokens()
	first := sort.Search(len(toks), func(i int) bool { return toks[i].Span.End > s.Start })
	last := sort.Search(len(toks), func(i int) bool { return toks[i].Span.Start >= s.End }) - 1
	if first >= len(toks) || last < first {
		return Span{s.Start, s.Start}
	}
	return Span{toks[first].Span.Start, toks[last].Span.End}
}

// TrimSpan shrinks s so that it starts and ends on tokens, dropping
// surrounding whitespace and comments.
func (d *Document) TrimSpan(s Span) Span {
	toks := d.Tokens()
	first := d.TokenAtOrAfter(s.Start)
	last := d.TokenBefore(s.End)
	if first >= len(toks) || last < 0 || last < first {
		return Span{s.Start, s.Start}
	}
	return Span{toks[first].Span.Start, toks[last].Span.End}
}
