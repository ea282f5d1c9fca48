package types

import "context"

// Operation represents a refactoring operation over a loaded workspace
type Operation interface {
	Type() OperationType
	Validate(ws *Workspace) error
	Execute(ctx context.Context, ws *Workspace) (*RefactoringPlan, error)
	Description() string
}

type OperationType int

const (
	ExtractOperation OperationType = iota
	AnalyzeOperation
)

func (t OperationType) String() string {
	switch t {
	case ExtractOperation:
		return "extract"
	case AnalyzeOperation:
		return "analyze"
	default:
		return "unknown"
	}
}

// ExtractMode selects the shape of the extracted unit.
type ExtractMode string

const (
	ModeAuto          ExtractMode = "auto"
	ModeFunction      ExtractMode = "function"
	ModeMethod        ExtractMode = "method"
	ModeLocalFunction ExtractMode = "local"
)

// ParseExtractMode accepts the mode names used on the command line.
func ParseExtractMode(s string) (ExtractMode, bool) {
	switch s {
	case "", "auto":
		return ModeAuto, true
	case "function", "func":
		return ModeFunction, true
	case "method":
		return ModeMethod, true
	case "local", "local-function", "closure":
		return ModeLocalFunction, true
	}
	return "", false
}

// ExtractMethodRequest represents extracting a selection into a new function
type ExtractMethodRequest struct {
	SourceFile string
	Range      SourceRange
	NewName    string // empty picks a fresh default name
	Mode       ExtractMode
	BestEffort bool
}

// RefactoringPlan represents a planned set of changes
type RefactoringPlan struct {
	Operations    []Operation
	Changes       []Change
	AffectedFiles []string
	Issues        []Issue
	Reversible    bool
}

// Change represents a specific change to be made
type Change struct {
	File        string
	Start       int
	End         int
	OldText     string
	NewText     string
	Description string
}

type Issue struct {
	Type        IssueType
	Description string
	File        string
	Line        int
	Severity    IssueSeverity
}

type IssueType int

const (
	IssueCompilationError IssueType = iota
	IssueNameConflict
	IssueTypeMismatch
	IssueBestEffort
	IssueExtractionWarning
)

type IssueSeverity int

const (
	Error IssueSeverity = iota
	Warning
	Info
)

// String returns the string representation of IssueSeverity
func (s IssueSeverity) String() string {
	switch s {
	case Error:
		return "Error"
	case Warning:
		return "Warning"
	case Info:
		return "Info"
	default:
		return "Unknown"
	}
}
