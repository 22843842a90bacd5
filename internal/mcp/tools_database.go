package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerDatabaseTools() {
	s.mcp.AddTool(mcp.NewTool("list_db_connections",
		mcp.WithDescription("List the configured catalog database connections"),
	), s.handleListDBConnections)

	s.mcp.AddTool(mcp.NewTool("introspect_database",
		mcp.WithDescription("Get schema information (tables and columns) of a database connection"),
		mcp.WithString("connectionId", mcp.Description("Database connection ID (default connection when omitted)")),
	), s.handleIntrospectDatabase)
}

func (s *Server) handleListDBConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conns, err := s.database.ListConnections()
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	type connSummary struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Driver    string `json:"driver"`
		Host      string `json:"host"`
		Port      int    `json:"port"`
		Database  string `json:"database"`
		IsDefault bool   `json:"isDefault"`
	}
	defID := ""
	if def, err := s.database.DefaultConnection(); err == nil {
		defID = def.ID
	}
	out := make([]connSummary, 0, len(conns))
	for _, c := range conns {
		out = append(out, connSummary{
			ID:        c.ID,
			Name:      c.Name,
			Driver:    string(c.Driver),
			Host:      c.Host,
			Port:      c.Port,
			Database:  c.Database,
			IsDefault: c.ID == defID,
		})
	}
	return jsonResult(out)
}

func (s *Server) handleIntrospectDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conn, err := s.database.Resolve(req.GetString("connectionId", ""))
	if err != nil {
		return s.toolError("introspect_database", err), nil
	}
	schema, err := s.database.Introspect(ctx, conn.ID)
	if err != nil {
		return s.toolError("introspect_database", fmt.Errorf("introspect: %w", err)), nil
	}
	return jsonResult(schema)
}
