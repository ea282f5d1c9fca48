package mcp

import (
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mamaar/goextract/pkg/types"
)

// PlanResult is the structured output of tools that write files.
type PlanResult struct {
	Description   string      `json:"description"`
	AffectedFiles []string    `json:"affected_files"`
	ChangeCount   int         `json:"change_count"`
	Issues        []IssueView `json:"issues,omitempty"`
	Success       bool        `json:"success"`
}

// IssueView is an issue as reported to clients.
type IssueView struct {
	Severity    string `json:"severity"`
	Description string `json:"description"`
	File        string `json:"file,omitempty"`
	Line        int    `json:"line,omitempty"`
}

func issueViews(issues []types.Issue) []IssueView {
	var out []IssueView
	for _, issue := range issues {
		out = append(out, IssueView{
			Severity:    issue.Severity.String(),
			Description: issue.Description,
			File:        issue.File,
			Line:        issue.Line,
		})
	}
	return out
}

// executePlan writes plan. The caller must not hold the state lock: the
// engine refreshes the workspace, which takes the write lock.
func executePlan(state *MCPServer, ws *types.Workspace, plan *types.RefactoringPlan, desc string) (*PlanResult, error) {
	state.mu.Lock()
	err := state.GetEngine().ExecutePlan(ws, plan)
	state.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("execute plan: %w", err)
	}
	return &PlanResult{
		Description:   desc,
		AffectedFiles: plan.AffectedFiles,
		ChangeCount:   len(plan.Changes),
		Issues:        issueViews(plan.Issues),
		Success:       true,
	}, nil
}

// textResult marshals v to JSON and wraps it in a CallToolResult with a
// single TextContent block.
func textResult(v any) *mcpsdk.CallToolResult {
	b, _ := json.MarshalIndent(v, "", "  ")
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(b)},
		},
	}
}

// errResult returns a CallToolResult that signals an error.
func errResult(err error) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
	}
}
