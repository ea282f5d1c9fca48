package mcp

import (
	"context"
	"sort"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// --- load_workspace ---

type LoadWorkspaceInput struct {
	Path string `json:"path" jsonschema:"absolute path to workspace root (go.mod directory)"`
}

type LoadWorkspaceOutput struct {
	Module       string `json:"module"`
	GoVersion    string `json:"go_version,omitempty"`
	PackageCount int    `json:"package_count"`
	RootPath     string `json:"root_path"`
}

// --- workspace_status ---

type WorkspaceStatusInput struct{}

type WorkspaceStatusOutput struct {
	Loaded          bool     `json:"loaded"`
	Module          string   `json:"module,omitempty"`
	RootPath        string   `json:"root_path,omitempty"`
	PackageCount    int      `json:"package_count"`
	Packages        []string `json:"packages,omitempty"`
	CachedDocuments int      `json:"cached_documents"`
	CacheHits       int64    `json:"cache_hits"`
	CacheMisses     int64    `json:"cache_misses"`
	PendingPreviews int      `json:"pending_previews"`
}

func registerWorkspaceTools(s *mcpsdk.Server, state *MCPServer) {
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "load_workspace",
		Description: "Load a Go workspace into memory. Must be called before any other tool.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in LoadWorkspaceInput) (*mcpsdk.CallToolResult, any, error) {
		ws, err := state.LoadWorkspace(ctx, in.Path)
		if err != nil {
			return errResult(err), nil, nil
		}
		out := LoadWorkspaceOutput{
			PackageCount: len(ws.Packages),
			RootPath:     ws.RootPath,
			GoVersion:    ws.GoVersion(),
		}
		if ws.Module != nil {
			out.Module = ws.Module.Path
		}
		return textResult(out), nil, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "workspace_status",
		Description: "Return the current workspace status: loaded state, module name, packages and document cache statistics.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in WorkspaceStatusInput) (*mcpsdk.CallToolResult, any, error) {
		state.RLock()
		defer state.RUnlock()

		ws, err := state.GetWorkspace()
		if err != nil {
			return textResult(WorkspaceStatusOutput{Loaded: false}), nil, nil
		}
		stats := state.GetEngine().CacheStats()
		out := WorkspaceStatusOutput{
			Loaded:          true,
			RootPath:        ws.RootPath,
			PackageCount:    len(ws.Packages),
			CachedDocuments: stats.Len,
			CacheHits:       stats.Hits,
			CacheMisses:     stats.Misses,
			PendingPreviews: state.previews.ItemCount(),
		}
		if ws.Module != nil {
			out.Module = ws.Module.Path
		}
		for _, pkg := range ws.Packages {
			out.Packages = append(out.Packages, pkg.ImportPath)
		}
		sort.Strings(out.Packages)
		return textResult(out), nil, nil
	})
}
