package extract

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	gotypes "go/types"
	"log/slog"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/types"
)

const (
	DefaultFunctionName = "newFunction"
	DefaultMethodName   = "newMethod"
)

// Options configure one extraction.
type Options struct {
	// Name of the new function; empty picks a fresh default.
	Name string
	Mode types.ExtractMode
	// BestEffort retries an unclassifiable selection, passing the
	// unclassified variables as inputs.
	BestEffort bool
	// ContextFirst puts context.Context parameters first.
	ContextFirst        bool
	DefaultFunctionName string
	DefaultMethodName   string
	// Check type-checks the package of the document with the file content
	// replaced by src. When set, an extraction that adds type errors fails.
	Check func(src []byte) ([]error, error)
}

// Extractor runs the extraction pipeline: validate, analyze, pick the
// insertion point, generate, restore trivia and format.
type Extractor struct {
	oracle    analysis.Oracle
	logger    *slog.Logger
	validator *Validator
	generator *CodeGenerator
	insertion InsertionPointResolver

	// Annotations builds the resolver locating trivia gaps in the
	// rewritten document. Nil uses the call site and body markers.
	Annotations func(saved *SavedTrivia, code *GeneratedCode) AnnotationResolver
	// Trivia picks the text for each gap. Nil uses SavedTrivia.Text.
	Trivia func(saved *SavedTrivia) TriviaResolver
}

func New(oracle analysis.Oracle, logger *slog.Logger) *Extractor {
	return &Extractor{
		oracle:    oracle,
		logger:    logger,
		validator: NewValidator(oracle, logger),
		generator: NewCodeGenerator(logger),
	}
}

// ExtractMethod moves span of doc into a new function and replaces it with
// a call. A selection that cannot be extracted yields a failed result;
// errors report cancellation and broken input.
func (e *Extractor) ExtractMethod(ctx context.Context, doc *analysis.Document, span analysis.Span, opts Options) (*ExtractMethodResult, error) {
	if opts.Mode == "" {
		opts.Mode = types.ModeAuto
	}
	log := e.logger.With("file", doc.Path, "span", span, "mode", opts.Mode)

	sel, err := e.validator.Validate(ctx, doc, span)
	if err != nil {
		return nil, err
	}
	if sel.Status.Failed() {
		log.Debug("selection rejected", "reasons", sel.Status.Reasons())
		return failed(sel.Status, opts.Mode), nil
	}

	res, err := e.analyze(ctx, sel, opts, log)
	if err != nil {
		var unknown *UnknownStateError
		if errors.As(err, &unknown) {
			return failed(sel.Status.With(Failure(err.Error())), opts.Mode), nil
		}
		return nil, err
	}
	status := sel.Status.With(res.Status)
	if status.Failed() {
		return &ExtractMethodResult{Analysis: res, Mode: res.Mode, status: status}, nil
	}

	name, nameStatus := chooseName(sel.Document(), res, opts)
	status = status.With(nameStatus)
	if status.Failed() {
		return &ExtractMethodResult{Analysis: res, Mode: res.Mode, status: status}, nil
	}
	result := &ExtractMethodResult{Analysis: res, Name: name, Mode: res.Mode}

	ip, ipStatus := e.insertion.Resolve(ctx, sel, res.Mode)
	status = status.With(ipStatus)
	if status.Failed() {
		result.status = status
		return result, nil
	}

	snap, saved, err := SnapshotTrivia(sel.Document(), sel.Span(), sel.IsExpression())
	if err != nil {
		return nil, err
	}
	code, genStatus := e.generator.Generate(ctx, snap, ip, res, saved, name)
	status = status.With(genStatus)
	if status.Failed() {
		result.status = status
		return result, nil
	}

	rewritten, err := snap.Rewrite(code.Edits)
	if err != nil {
		log.Warn("generated code does not parse", "error", err)
		result.status = status.With(Failure("unknown reason"))
		return result, nil
	}
	def, ok := rewritten.Lookup(code.Definition)
	switch {
	case !ok:
		result.status = status.With(Failure("unknown reason"))
		return result, nil
	case rewritten.IsHidden(def):
		result.status = status.With(Failure("overlaps hidden region"))
		return result, nil
	}

	annotations := e.Annotations
	if annotations == nil {
		annotations = markerAnnotations
	}
	var trivia TriviaResolver
	if e.Trivia != nil {
		trivia = e.Trivia(saved)
	}
	restored, err := saved.Restore(rewritten, annotations(saved, code), trivia)
	if err != nil {
		log.Warn("restoring trivia failed", "error", err)
		result.status = status.With(Failure("unknown reason"))
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	formatted, err := formatDocument(restored, code.Imports)
	if err != nil {
		log.Warn("formatting failed", "error", err)
		result.status = status.With(Failure("unknown reason"))
		return result, nil
	}
	if opts.Check != nil {
		msg, err := newTypeError(opts.Check, doc.Src, formatted.Src)
		switch {
		case err != nil:
			log.Warn("type-checking the extraction failed", "error", err)
			result.status = status.With(Failure("unknown reason"))
			return result, nil
		case msg != "":
			log.Debug("extraction does not compile", "error", msg)
			result.status = status.With(Failure("the extracted code does not compile: " + msg))
			return result, nil
		}
	}
	id, ok := findCallName(formatted, name)
	if !ok {
		result.status = status.With(Failure("unknown reason"))
		return result, nil
	}

	result.doc = formatted
	result.nameSpan = formatted.SpanOf(id)
	result.status = status
	log.Info("extracted", "name", name, "resolvedMode", res.Mode, "warnings", len(status.Reasons()))
	return result, nil
}

// analyze runs a strict analysis, falling back to best effort when a
// variable cannot be classified and opts allow it.
func (e *Extractor) analyze(ctx context.Context, sel *SelectionResult, opts Options, log *slog.Logger) (*AnalyzerResult, error) {
	analyzer := NewAnalyzer(e.oracle, e.logger, opts.ContextFirst)
	res, err := analyzer.Analyze(ctx, sel, opts.Mode, false)
	var unknown *UnknownStateError
	if err == nil || !errors.As(err, &unknown) || !opts.BestEffort {
		return res, err
	}
	log.Error("strict analysis failed, retrying with best effort", "error", err)
	return analyzer.Analyze(ctx, sel, opts.Mode, true)
}

// newTypeError returns the first type error of after that before does not
// have. Errors are matched by message so moved code does not count.
func newTypeError(check func([]byte) ([]error, error), before, after []byte) (string, error) {
	old, err := check(before)
	if err != nil {
		return "", err
	}
	errs, err := check(after)
	if err != nil {
		return "", err
	}
	known := map[string]int{}
	for _, e := range old {
		known[typeErrorMessage(e)]++
	}
	for _, e := range errs {
		msg := typeErrorMessage(e)
		if known[msg] > 0 {
			known[msg]--
			continue
		}
		return msg, nil
	}
	return "", nil
}

func typeErrorMessage(err error) string {
	var te gotypes.Error
	if errors.As(err, &te) {
		return te.Msg
	}
	return err.Error()
}

// markerAnnotations locates the trivia gaps through the generated markers.
// An extracted expression leaves the trivia at the call site untouched.
func markerAnnotations(saved *SavedTrivia, code *GeneratedCode) AnnotationResolver {
	return func(doc *analysis.Document, role TriviaRole) (analysis.Span, bool) {
		if saved.Expression && (role == CallStart || role == CallEnd) {
			return analysis.Span{}, false
		}
		switch role {
		case CallStart:
			if code.DropCallStart {
				return analysis.Span{}, false
			}
			return Gap(doc, saved.Before, true, code.CallSite)
		case CallEnd:
			return Gap(doc, code.CallSite, true, saved.After)
		case DeclStart:
			return TokenGapBefore(doc, code.BodyStart)
		case DeclEnd:
			return TokenGapAfter(doc, code.BodyEnd)
		}
		return analysis.Span{}, false
	}
}

// chooseName validates a requested name or picks a fresh default.
func chooseName(doc *analysis.Document, res *AnalyzerResult, opts Options) (string, OperationStatus) {
	taken := nameTaken(doc, res)
	if opts.Name != "" {
		if !token.IsIdentifier(opts.Name) || opts.Name == "_" {
			return "", Failure(fmt.Sprintf("%q is not a valid identifier", opts.Name))
		}
		if taken(opts.Name) {
			return "", Failure(fmt.Sprintf("%s is already declared", opts.Name))
		}
		return opts.Name, Success()
	}
	base := opts.DefaultFunctionName
	if base == "" {
		base = DefaultFunctionName
	}
	if res.Mode == types.ModeMethod {
		base = opts.DefaultMethodName
		if base == "" {
			base = DefaultMethodName
		}
	}
	return freshName(base, taken), Success()
}

// nameTaken reports names that would collide with the new declaration or
// be shadowed at the call site.
func nameTaken(doc *analysis.Document, res *AnalyzerResult) func(string) bool {
	r := res.Selection.Region
	pos := doc.Pos(r.Span.Start)
	scope := doc.Pkg.Scope().Innermost(pos)
	local := identsIn(r.Decl)

	return func(name string) bool {
		if scope != nil {
			if _, obj := scope.LookupParent(name, pos); obj != nil {
				return true
			}
		}
		if local[name] {
			return true
		}
		switch res.Mode {
		case types.ModeLocalFunction:
			return false
		case types.ModeMethod:
			recv := res.Receiver.Type()
			obj, _, _ := gotypes.LookupFieldOrMethod(recv, true, doc.Pkg, name)
			if obj != nil {
				return true
			}
		}
		return doc.Pkg.Scope().Lookup(name) != nil
	}
}
