package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/downtime-engine/pkg/database"
)

type healthResult struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	DatabaseConnected bool   `json:"database_connected"`
}

// RegisterHealthTool adds the health tool. It reports unhealthy, rather
// than failing, when the store cannot be reached.
func RegisterHealthTool(s *server.MCPServer, store database.Store, version string) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server status, version and whether the downtime database is reachable"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out := healthResult{Status: "healthy", Version: version, DatabaseConnected: true}
		if err := store.Ping(ctx); err != nil {
			out.Status = "unhealthy"
			out.DatabaseConnected = false
		}
		return jsonResult(out)
	})
}
