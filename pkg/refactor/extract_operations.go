package refactor

import (
	"context"
	"fmt"
	"go/token"
	"strings"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/extract"
	"github.com/mamaar/goextract/pkg/types"
)

// ExtractMethodOperation moves a selection of a workspace file into a new
// function, method or local function.
type ExtractMethodOperation struct {
	Request types.ExtractMethodRequest
	Options extract.Options

	engine *DefaultEngine
	// result of the last Execute
	result *extract.ExtractMethodResult
}

func (op *ExtractMethodOperation) Type() types.OperationType {
	return types.ExtractOperation
}

func (op *ExtractMethodOperation) Validate(ws *types.Workspace) error {
	req := op.Request
	if req.SourceFile == "" {
		return &types.RefactorError{
			Type:    types.InvalidOperation,
			Message: "source file cannot be empty",
		}
	}
	if req.Range.StartLine < 1 || req.Range.EndLine < req.Range.StartLine {
		return &types.RefactorError{
			Type:    types.InvalidOperation,
			Message: fmt.Sprintf("invalid selection %s", req.Range),
			File:    req.SourceFile,
		}
	}
	if req.NewName != "" && !token.IsIdentifier(req.NewName) {
		return &types.RefactorError{
			Type:    types.InvalidOperation,
			Message: fmt.Sprintf("%q is not a valid identifier", req.NewName),
			File:    req.SourceFile,
		}
	}
	if _, ok := types.ParseExtractMode(string(req.Mode)); !ok {
		return &types.RefactorError{
			Type:    types.InvalidOperation,
			Message: fmt.Sprintf("unknown extraction mode %q", req.Mode),
		}
	}
	if _, _, ok := ws.FindFile(req.SourceFile); !ok {
		return &types.RefactorError{
			Type:    types.FileSystemError,
			Message: fmt.Sprintf("source file not found: %s", req.SourceFile),
			File:    req.SourceFile,
		}
	}
	return nil
}

// Execute runs the extraction and turns the rewritten file into a single
// change covering the lines that differ.
func (op *ExtractMethodOperation) Execute(ctx context.Context, ws *types.Workspace) (*types.RefactoringPlan, error) {
	res, doc, err := op.run(ctx, ws)
	if err != nil {
		return nil, err
	}
	out, _, err := res.Document()
	if err != nil {
		if rerr, ok := err.(*types.RefactorError); ok {
			rerr.File = doc.Path
			rerr.Line = op.Request.Range.StartLine
		}
		return nil, err
	}

	plan := &types.RefactoringPlan{
		Operations:    []types.Operation{op},
		Changes:       []types.Change{minimalChange(doc.Path, doc.Src, out.Src, op.Description())},
		AffectedFiles: []string{doc.Path},
		Reversible:    true,
	}
	for _, reason := range res.Reasons() {
		issue := types.Issue{
			Type:        types.IssueExtractionWarning,
			Description: reason,
			File:        doc.Path,
			Line:        op.Request.Range.StartLine,
			Severity:    types.Warning,
		}
		if strings.HasPrefix(reason, "could not classify") {
			issue.Type = types.IssueBestEffort
		}
		plan.Issues = append(plan.Issues, issue)
	}
	return plan, nil
}

func (op *ExtractMethodOperation) run(ctx context.Context, ws *types.Workspace) (*extract.ExtractMethodResult, *analysis.Document, error) {
	doc, err := op.engine.Document(ws, op.Request.SourceFile)
	if err != nil {
		return nil, nil, err
	}
	start, end, err := op.Request.Range.Offsets(doc.Src)
	if err != nil {
		return nil, nil, &types.RefactorError{
			Type:    types.InvalidOperation,
			Message: err.Error(),
			File:    doc.Path,
			Line:    op.Request.Range.StartLine,
			Cause:   err,
		}
	}

	opts := op.Options
	opts.Name = op.Request.NewName
	opts.Mode, _ = types.ParseExtractMode(string(op.Request.Mode))
	opts.BestEffort = opts.BestEffort || op.Request.BestEffort
	opts.Check = func(src []byte) ([]error, error) {
		return op.engine.parser.CheckReplacement(ws, doc.Path, src)
	}
	res, err := op.engine.extractor.ExtractMethod(ctx, doc, analysis.Span{Start: start, End: end}, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("extracting from %s: %w", doc.Path, err)
	}
	op.result = res
	return res, doc, nil
}

// Result returns the outcome of the last Execute, or nil.
func (op *ExtractMethodOperation) Result() *extract.ExtractMethodResult { return op.result }

func (op *ExtractMethodOperation) Description() string {
	name := op.Request.NewName
	if op.result != nil && op.result.Name != "" {
		name = op.result.Name
	}
	if name == "" {
		name = "a new function"
	}
	return fmt.Sprintf("Extract %s:%s into %s", op.Request.SourceFile, op.Request.Range, name)
}

// minimalChange describes the rewrite of before into after as one change,
// trimmed to whole lines outside the common prefix and suffix.
func minimalChange(path string, before, after []byte, description string) types.Change {
	prefix := 0
	for prefix < len(before) && prefix < len(after) && before[prefix] == after[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(before)-prefix && suffix < len(after)-prefix &&
		before[len(before)-1-suffix] == after[len(after)-1-suffix] {
		suffix++
	}
	// widen to line boundaries so the change reads well in a preview
	for prefix > 0 && before[prefix-1] != '\n' {
		prefix--
	}
	for suffix > 0 && len(before)-suffix > 0 && before[len(before)-suffix-1] != '\n' {
		suffix--
	}
	return types.Change{
		File:        path,
		Start:       prefix,
		End:         len(before) - suffix,
		OldText:     string(before[prefix : len(before)-suffix]),
		NewText:     string(after[prefix : len(after)-suffix]),
		Description: description,
	}
}
