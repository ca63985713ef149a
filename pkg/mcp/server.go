// Package mcp exposes the downtime engine as an MCP server over streamable HTTP.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/database"
	"github.com/ekaya-inc/downtime-engine/pkg/mcp/tools"
	"github.com/ekaya-inc/downtime-engine/pkg/services"
)

// ServerName identifies the engine to MCP clients.
const ServerName = "downtime-engine"

// Deps are the collaborators the tools need.
type Deps struct {
	Store database.Store
	Ask   services.AskService
	Stats services.StatsService
}

// Server wraps the mcp-go MCPServer with every downtime tool registered.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates the MCP server and registers the tools.
func NewServer(version string, deps Deps, logger *zap.Logger) *Server {
	s := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	tools.RegisterHealthTool(s, deps.Store, version)
	tools.RegisterDowntimeTools(s, &tools.DowntimeToolDeps{Ask: deps.Ask, Stats: deps.Stats})

	logger.Named("mcp").Info("MCP server ready", zap.String("version", version))
	return &Server{mcp: s, logger: logger}
}

// MCP returns the underlying MCPServer.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer returns a stateless HTTP transport. Routing is left
// to the caller's mux.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
}
