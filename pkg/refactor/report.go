package refactor

import (
	"github.com/mamaar/goextract/pkg/extract"
	"github.com/mamaar/goextract/pkg/types"
)

// ExtractionReport is the dry-run view of an extraction: how each variable
// is classified and what the new signature would carry.
type ExtractionReport struct {
	File      string            `json:"file"`
	Range     string            `json:"range"`
	Succeeded bool              `json:"succeeded"`
	Mode      types.ExtractMode `json:"mode"`
	Name      string            `json:"name,omitempty"`
	Reasons   []string          `json:"reasons,omitempty"`
	Variables []VariableReport  `json:"variables,omitempty"`
	Results   []string          `json:"results,omitempty"`
	Flow      []string          `json:"flow,omitempty"`
	// FlowEncoding names how control flow is reported back to the caller.
	FlowEncoding string `json:"flowEncoding,omitempty"`
}

// VariableReport is one classified variable.
type VariableReport struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Type      string `json:"type"`
	Flags     string `json:"flags"`
	Parameter string `json:"parameter"`
	Return    string `json:"return"`
	Pointer   bool   `json:"pointer,omitempty"`
}

func newExtractionReport(req types.ExtractMethodRequest, res *extract.ExtractMethodResult) *ExtractionReport {
	report := &ExtractionReport{
		File:      req.SourceFile,
		Range:     req.Range.String(),
		Succeeded: res.Succeeded(),
		Mode:      res.Mode,
		Name:      res.Name,
		Reasons:   res.Reasons(),
	}
	a := res.Analysis
	if a == nil {
		return report
	}
	for _, vi := range a.Variables {
		vr := VariableReport{
			Name:      vi.Name(),
			Kind:      vi.Symbol.Kind.String(),
			Flags:     vi.Flags.String(),
			Parameter: vi.Style.Param.String(),
			Return:    vi.Style.Return.String(),
			Pointer:   vi.PassByPointer,
		}
		if vi.Type != nil {
			vr.Type = vi.Type.String()
		}
		report.Variables = append(report.Variables, vr)
	}
	for _, r := range a.Results {
		switch {
		case r.Kind == extract.ResultVariable && r.Variable != nil:
			report.Results = append(report.Results, r.Variable.Name())
		case r.Kind == extract.ResultFlow:
			report.Results = append(report.Results, a.Flow.VarName()+" "+a.Flow.TypeString())
		case r.Type != nil:
			report.Results = append(report.Results, r.Type.String())
		}
	}
	for _, k := range a.Flow.Kinds {
		report.Flow = append(report.Flow, k.String())
	}
	report.FlowEncoding = a.Flow.Encoding.String()
	return report
}
