package types

import "fmt"

// RefactorError represents errors in refactoring operations
type RefactorError struct {
	Type    ErrorType
	Message string
	File    string
	Line    int
	Column  int
	Cause   error
}

func (e *RefactorError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	return e.Message
}

func (e *RefactorError) Unwrap() error {
	return e.Cause
}

type ErrorType int

const (
	ParseError ErrorType = iota
	InvalidOperation
	CompilationError
	NameConflict
	FileSystemError
	ExtractionFailed
	InternalError
)

func (t ErrorType) String() string {
	switch t {
	case ParseError:
		return "parse error"
	case InvalidOperation:
		return "invalid operation"
	case CompilationError:
		return "compilation error"
	case NameConflict:
		return "name conflict"
	case FileSystemError:
		return "file system error"
	case ExtractionFailed:
		return "extraction failed"
	case InternalError:
		return "internal error"
	default:
		return "unknown error"
	}
}

// ValidationError represents validation failures
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "validation failed: " + e.Issues[0].Description
	}
	return fmt.Sprintf("validation failed with %d issues", len(e.Issues))
}
