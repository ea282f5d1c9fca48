package mcp

import mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

// RegisterAllTools wires every goextract tool into the MCP server.
func RegisterAllTools(s *mcpsdk.Server, state *MCPServer) {
	registerWorkspaceTools(s, state)
	registerExtractTools(s, state)
}
