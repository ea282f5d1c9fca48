package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefactorError_Error(t *testing.T) {
	testCases := []struct {
		name     string
		err      *RefactorError
		expected string
	}{
		{
			name: "With file location",
			err: &RefactorError{
				Type:    ParseError,
				Message: "Failed to parse",
				File:    "/test/file.go",
				Line:    15,
				Column:  10,
			},
			expected: "/test/file.go:15:10: Failed to parse",
		},
		{
			name: "Without file location",
			err: &RefactorError{
				Type:    ExtractionFailed,
				Message: "selection is not inside a function body",
			},
			expected: "selection is not inside a function body",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestRefactorError_Unwrap(t *testing.T) {
	cause := errors.New("disk on fire")
	err := &RefactorError{Type: FileSystemError, Message: "failed to read file", Cause: cause}

	assert.ErrorIs(t, err, cause)

	var target *RefactorError
	assert.True(t, errors.As(err, &target))
	assert.Equal(t, FileSystemError, target.Type)
}

func TestErrorTypeString(t *testing.T) {
	assert.Equal(t, "parse error", ParseError.String())
	assert.Equal(t, "extraction failed", ExtractionFailed.String())
	assert.Equal(t, "unknown error", ErrorType(99).String())
}

func TestValidationError(t *testing.T) {
	single := &ValidationError{Issues: []Issue{{Description: "name conflict"}}}
	assert.Equal(t, "validation failed: name conflict", single.Error())

	many := &ValidationError{Issues: []Issue{{}, {}}}
	assert.Equal(t, "validation failed with 2 issues", many.Error())
}
