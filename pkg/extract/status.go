package extract

import "slices"

// OperationStatus carries the outcome of one stage. Failed stages stop the
// pipeline; reasons on a successful status are warnings.
type OperationStatus struct {
	failed  bool
	reasons []string
}

// Success returns a successful status with optional warnings.
func Success(reasons ...string) OperationStatus {
	return OperationStatus{reasons: reasons}
}

// Failure returns a failed status.
func Failure(reasons ...string) OperationStatus {
	return OperationStatus{failed: true, reasons: reasons}
}

func (s OperationStatus) Succeeded() bool { return !s.failed }

func (s OperationStatus) Failed() bool { return s.failed }

// Reasons returns the reasons in order of first appearance, without
// duplicates.
func (s OperationStatus) Reasons() []string {
	out := make([]string, 0, len(s.reasons))
	for _, r := range s.reasons {
		if r != "" && !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

// With combines two statuses: the result succeeds only if both do and
// carries the reasons of both.
func (s OperationStatus) With(o OperationStatus) OperationStatus {
	reasons := make([]string, 0, len(s.reasons)+len(o.reasons))
	reasons = append(reasons, s.reasons...)
	reasons = append(reasons, o.reasons...)
	return OperationStatus{failed: s.failed || o.failed, reasons: reasons}
}

// WithReason adds a warning without changing success.
func (s OperationStatus) WithReason(reason string) OperationStatus {
	return s.With(Success(reason))
}
