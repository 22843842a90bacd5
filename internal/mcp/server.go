// Package mcpserver exposes the bucket catalog to MCP clients over stdio.
package mcpserver

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"bucketadmin/internal/service"
)

// Server is the MCP server of bucketadmin.
type Server struct {
	mcp    *server.MCPServer
	logger *slog.Logger

	database *service.DatabaseService
	catalog  *service.CatalogService
}

// Deps holds the services the tools call into.
type Deps struct {
	Database *service.DatabaseService
	Catalog  *service.CatalogService
	Logger   *slog.Logger
	Version  string
}

// New creates the MCP server with all tools, resources and prompts.
func New(deps Deps) *Server {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		logger:   deps.Logger.With("component", "mcp"),
		database: deps.Database,
		catalog:  deps.Catalog,
	}

	s.mcp = server.NewMCPServer(
		"bucketadmin-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerDatabaseTools()
	s.registerCatalogTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio serves on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	s.logger.Info("starting stdio server")
	return server.ServeStdio(s.mcp)
}

// MCP returns the underlying server, for in-process clients.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ── Helpers ────────────────────────────────────────────────

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to indented JSON in a text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// toolError reports err to the model as a tool failure rather than a
// protocol error.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("tool failed", "tool", tool, "error", err)
	return mcp.NewToolResultError(err.Error())
}

