package extract

import (
	"strings"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/types"
)

// ExtractMethodResult is the outcome of ExtractMethod.
type ExtractMethodResult struct {
	// Analysis is nil when validation failed.
	Analysis *AnalyzerResult
	Name     string
	Mode     types.ExtractMode

	status   OperationStatus
	doc      *analysis.Document
	nameSpan analysis.Span
}

func (r *ExtractMethodResult) Succeeded() bool { return r.status.Succeeded() }

// Reasons returns the failure reasons, or the warnings of a successful
// extraction.
func (r *ExtractMethodResult) Reasons() []string { return r.status.Reasons() }

func (r *ExtractMethodResult) Status() OperationStatus { return r.status }

// Document returns the rewritten file and the location of the new name at
// the call site.
func (r *ExtractMethodResult) Document() (*analysis.Document, analysis.Span, error) {
	if r.status.Failed() || r.doc == nil {
		msg := "extraction failed"
		if reasons := r.Reasons(); len(reasons) > 0 {
			msg += ": " + strings.Join(reasons, "; ")
		}
		return nil, analysis.Span{}, &types.RefactorError{Type: types.ExtractionFailed, Message: msg}
	}
	return r.doc, r.nameSpan, nil
}

func failed(status OperationStatus, mode types.ExtractMode) *ExtractMethodResult {
	return &ExtractMethodResult{status: status, Mode: mode}
}
