package refactor

import (
	"errors"
	"fmt"
	gotypes "go/types"
	"log/slog"
	"slices"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/types"
)

// Validator checks a plan before it is written: changes must not collide
// and must not introduce type errors.
type Validator struct {
	parser     *analysis.GoParser
	serializer *Serializer
	logger     *slog.Logger
}

func NewValidator(parser *analysis.GoParser, serializer *Serializer, logger *slog.Logger) *Validator {
	return &Validator{parser: parser, serializer: serializer, logger: logger}
}

// ValidatePlan validates plan with the default configuration.
func (v *Validator) ValidatePlan(ws *types.Workspace, plan *types.RefactoringPlan) error {
	return v.ValidatePlanWithConfig(ws, plan, nil)
}

// ValidatePlanWithConfig records every issue found on plan and fails with
// a ValidationError when one of them is an error, unless config allows
// breaking changes.
func (v *Validator) ValidatePlanWithConfig(ws *types.Workspace, plan *types.RefactoringPlan, config *EngineConfig) error {
	if plan == nil {
		return &types.RefactorError{
			Type:    types.InvalidOperation,
			Message: "refactoring plan is nil",
		}
	}
	if config == nil {
		config = DefaultConfig()
	}

	issues := validateChanges(plan.Changes)
	if len(issues) == 0 && !config.SkipCompilation && ws != nil {
		issues = append(issues, v.validateCompilation(ws, plan)...)
	}
	plan.Issues = append(plan.Issues, issues...)

	critical := filterCriticalIssues(issues)
	if len(critical) > 0 && !config.AllowBreaking {
		return &types.ValidationError{Issues: critical}
	}
	return nil
}

func validateChanges(changes []types.Change) []types.Issue {
	var issues []types.Issue
	for i, a := range changes {
		if a.Start > a.End {
			issues = append(issues, types.Issue{
				Type:        types.IssueCompilationError,
				Description: fmt.Sprintf("change [%d,%d) ends before it starts", a.Start, a.End),
				File:        a.File,
				Severity:    types.Error,
			})
		}
		for _, b := range changes[i+1:] {
			if a.File == b.File && a.Start < b.End && b.Start < a.End {
				issues = append(issues, types.Issue{
					Type:        types.IssueCompilationError,
					Description: fmt.Sprintf("overlapping changes [%d,%d) and [%d,%d)", a.Start, a.End, b.Start, b.End),
					File:        a.File,
					Severity:    types.Error,
				})
			}
		}
	}
	return issues
}

// validateCompilation type-checks each changed package with the new file
// content and reports the errors that were not there before.
func (v *Validator) validateCompilation(ws *types.Workspace, plan *types.RefactoringPlan) []types.Issue {
	rendered, err := v.serializer.renderAll(ws, plan.Changes)
	if err != nil {
		return []types.Issue{{
			Type:        types.IssueCompilationError,
			Description: err.Error(),
			Severity:    types.Error,
		}}
	}

	var issues []types.Issue
	for _, path := range sortedKeys(rendered) {
		file, _, ok := ws.FindFile(path)
		if !ok {
			continue
		}
		before, err := v.parser.CheckReplacement(ws, path, file.OriginalContent)
		if err != nil {
			v.logger.Warn("cannot type-check original file", "path", path, "err", err)
			continue
		}
		after, err := v.parser.CheckReplacement(ws, path, rendered[path])
		if err != nil {
			issues = append(issues, types.Issue{
				Type:        types.IssueCompilationError,
				Description: err.Error(),
				File:        path,
				Severity:    types.Error,
			})
			continue
		}

		known := make([]string, 0, len(before))
		for _, e := range before {
			known = append(known, typeErrorMessage(e))
		}
		for _, e := range after {
			msg := typeErrorMessage(e)
			if i := slices.Index(known, msg); i >= 0 {
				known = slices.Delete(known, i, i+1)
				continue
			}
			issue := types.Issue{
				Type:        types.IssueCompilationError,
				Description: msg,
				File:        path,
				Severity:    types.Error,
			}
			var te gotypes.Error
			if errors.As(e, &te) {
				issue.Line = te.Fset.Position(te.Pos).Line
			}
			issues = append(issues, issue)
		}
	}
	return issues
}

// typeErrorMessage drops the position so errors can be matched across
// versions of a file.
func typeErrorMessage(err error) string {
	var te gotypes.Error
	if errors.As(err, &te) {
		return te.Msg
	}
	return err.Error()
}

func filterCriticalIssues(issues []types.Issue) []types.Issue {
	var critical []types.Issue
	for _, issue := range issues {
		if issue.Severity == types.Error {
			critical = append(critical, issue)
		}
	}
	return critical
}
