package mcp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mamaar/goextract/pkg/analyzers"
	"github.com/mamaar/goextract/pkg/analyzers/extractcandidate"
	"github.com/mamaar/goextract/pkg/types"
)

// SelectionInput names a selection in a workspace file.
type SelectionInput struct {
	SourceFile string `json:"source_file" jsonschema:"path to the source file (absolute or relative to workspace root)"`
	Range      string `json:"range" jsonschema:"selection as LINE, LINE-LINE or LINE:COL-LINE:COL (1-based, end column exclusive)"`
	Name       string `json:"name,omitempty" jsonschema:"name for the new function (default: a fresh newFunction or newMethod)"`
	Mode       string `json:"mode,omitempty" jsonschema:"function, method, local or auto (default auto)"`
	BestEffort bool   `json:"best_effort,omitempty" jsonschema:"pass variables that cannot be classified as plain parameters"`
}

// --- extract_method ---

type ExtractMethodInput struct {
	SourceFile string `json:"source_file" jsonschema:"path to the source file (absolute or relative to workspace root)"`
	Range      string `json:"range" jsonschema:"selection as LINE, LINE-LINE or LINE:COL-LINE:COL"`
	Name       string `json:"name,omitempty" jsonschema:"name for the new function"`
	Mode       string `json:"mode,omitempty" jsonschema:"function, method, local or auto (default auto)"`
	BestEffort bool   `json:"best_effort,omitempty" jsonschema:"pass variables that cannot be classified as plain parameters"`
	Preview    bool   `json:"preview,omitempty" jsonschema:"return a diff and a token for apply_extraction instead of writing"`
}

func (in ExtractMethodInput) selection() SelectionInput {
	return SelectionInput{
		SourceFile: in.SourceFile,
		Range:      in.Range,
		Name:       in.Name,
		Mode:       in.Mode,
		BestEffort: in.BestEffort,
	}
}

type ExtractPreviewOutput struct {
	Token         string      `json:"token"`
	Description   string      `json:"description"`
	Diff          string      `json:"diff"`
	AffectedFiles []string    `json:"affected_files"`
	Issues        []IssueView `json:"issues,omitempty"`
	ExpiresIn     string      `json:"expires_in"`
}

// --- apply_extraction ---

type ApplyExtractionInput struct {
	Token string `json:"token" jsonschema:"token returned by extract_method with preview set"`
}

// --- find_extraction_candidates ---

type FindCandidatesInput struct {
	Package       string `json:"package,omitempty" jsonschema:"import path or directory of one package (default: all packages)"`
	MinFuncLines  int    `json:"min_func_lines,omitempty" jsonschema:"only inspect functions at least this long (default 30)"`
	MinStatements int    `json:"min_statements,omitempty" jsonschema:"shortest statement run to report (default 4)"`
}

type CandidatesOutput struct {
	Candidates []*extractcandidate.Result `json:"candidates"`
}

// pendingExtraction is a previewed plan waiting for apply_extraction.
type pendingExtraction struct {
	plan        *types.RefactoringPlan
	description string
}

func resolveFile(ws *types.Workspace, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(ws.RootPath, path)
}

func newRequest(ws *types.Workspace, in SelectionInput) (types.ExtractMethodRequest, error) {
	rng, err := types.ParseSourceRange(in.Range)
	if err != nil {
		return types.ExtractMethodRequest{}, err
	}
	mode, ok := types.ParseExtractMode(in.Mode)
	if !ok {
		return types.ExtractMethodRequest{}, fmt.Errorf("unknown mode %q", in.Mode)
	}
	return types.ExtractMethodRequest{
		SourceFile: resolveFile(ws, in.SourceFile),
		Range:      rng,
		NewName:    in.Name,
		Mode:       mode,
		BestEffort: in.BestEffort,
	}, nil
}

func planDescription(plan *types.RefactoringPlan) string {
	if len(plan.Operations) > 0 {
		return plan.Operations[0].Description()
	}
	return "extract method"
}

func registerExtractTools(s *mcpsdk.Server, state *MCPServer) {
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name: "analyze_extraction",
		Description: "Classify the variables of a selection without changing anything: which become parameters, " +
			"results or pointers, how control flow leaves the selection, and why an extraction would be rejected.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in SelectionInput) (*mcpsdk.CallToolResult, any, error) {
		state.RLock()
		defer state.RUnlock()

		ws, err := state.GetWorkspace()
		if err != nil {
			return errResult(err), nil, nil
		}
		request, err := newRequest(ws, in)
		if err != nil {
			return errResult(err), nil, nil
		}
		report, err := state.GetEngine().AnalyzeExtraction(ctx, ws, request)
		if err != nil {
			return errResult(err), nil, nil
		}
		return textResult(report), nil, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name: "extract_method",
		Description: "Extract a selection of statements or an expression into a new function, method or local closure. " +
			"Parameters and results are inferred. With preview set, nothing is written and a token for apply_extraction is returned.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in ExtractMethodInput) (*mcpsdk.CallToolResult, any, error) {
		state.RLock()
		ws, err := state.GetWorkspace()
		if err != nil {
			state.RUnlock()
			return errResult(err), nil, nil
		}
		request, err := newRequest(ws, in.selection())
		if err != nil {
			state.RUnlock()
			return errResult(err), nil, nil
		}
		plan, err := state.GetEngine().ExtractMethod(ctx, ws, request)
		if err != nil {
			state.RUnlock()
			return errResult(err), nil, nil
		}
		desc := planDescription(plan)

		if in.Preview {
			defer state.RUnlock()
			diff, err := state.GetEngine().PreviewPlan(ws, plan)
			if err != nil {
				return errResult(err), nil, nil
			}
			token := uuid.NewString()
			state.previews.SetDefault(token, &pendingExtraction{plan: plan, description: desc})
			return textResult(ExtractPreviewOutput{
				Token:         token,
				Description:   desc,
				Diff:          diff,
				AffectedFiles: plan.AffectedFiles,
				Issues:        issueViews(plan.Issues),
				ExpiresIn:     PreviewTTL.String(),
			}), nil, nil
		}

		state.RUnlock()
		result, err := executePlan(state, ws, plan, desc)
		if err != nil {
			return errResult(err), nil, nil
		}
		return textResult(result), nil, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "apply_extraction",
		Description: "Write an extraction previously returned by extract_method with preview set. Tokens are single use.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in ApplyExtractionInput) (*mcpsdk.CallToolResult, any, error) {
		v, ok := state.previews.Get(in.Token)
		if !ok {
			return errResult(errors.New("unknown or expired preview token")), nil, nil
		}
		state.previews.Delete(in.Token)
		pending := v.(*pendingExtraction)

		state.RLock()
		ws, err := state.GetWorkspace()
		state.RUnlock()
		if err != nil {
			return errResult(err), nil, nil
		}
		result, err := executePlan(state, ws, pending.plan, pending.description)
		if err != nil {
			return errResult(err), nil, nil
		}
		return textResult(result), nil, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "find_extraction_candidates",
		Description: "List runs of statements in long functions that can be extracted cleanly, with the signature each extraction would get.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in FindCandidatesInput) (*mcpsdk.CallToolResult, any, error) {
		// Type-checking fills in package type information, so this takes
		// the write lock.
		state.mu.Lock()
		defer state.mu.Unlock()

		ws, err := state.GetWorkspace()
		if err != nil {
			return errResult(err), nil, nil
		}
		opts := []extractcandidate.Option{extractcandidate.WithExtractor(state.GetEngine().Extractor())}
		if in.MinFuncLines > 0 {
			opts = append(opts, extractcandidate.WithMinFuncLines(in.MinFuncLines))
		}
		if in.MinStatements > 0 {
			opts = append(opts, extractcandidate.WithMinStatements(in.MinStatements))
		}
		rr, err := analyzers.Run(ws, state.GetEngine().Parser(), extractcandidate.NewAnalyzer(opts...), in.Package)
		if err != nil {
			return errResult(err), nil, nil
		}
		found := []*extractcandidate.Result{}
		for _, r := range rr.Results {
			found = append(found, r.([]*extractcandidate.Result)...)
		}
		return textResult(CandidatesOutput{Candidates: found}), nil, nil
	})
}
