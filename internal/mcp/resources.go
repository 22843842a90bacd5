package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"bucketadmin/internal/catalog"
)

const (
	connectionsURI   = "bucketadmin://connections"
	usersURI         = "bucketadmin://users"
	partitionsPrefix = "bucketadmin://users/"
	partitionsSuffix = "/partitions"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(
		connectionsURI,
		"Database Connections",
		mcp.WithMIMEType("application/json"),
	), s.handleConnectionsResource)

	s.mcp.AddResource(mcp.NewResource(
		usersURI,
		"User Statistics",
		mcp.WithMIMEType("application/json"),
	), s.handleUsersResource)

	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			partitionsPrefix+"{userId}"+partitionsSuffix,
			"Partitions of a User",
		),
		s.handlePartitionsResource,
	)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleConnectionsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	conns, err := s.database.ListConnections()
	if err != nil {
		return nil, err
	}
	return jsonContents(connectionsURI, conns)
}

func (s *Server) handleUsersResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	users, err := s.catalog.Users(ctx, "", catalog.StatsFilter{}, false)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return jsonContents(usersURI, out)
}

func (s *Server) handlePartitionsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	userID, err := userIDFromURI(uri)
	if err != nil {
		return nil, err
	}
	parts, err := s.catalog.Partitions(ctx, "", userID)
	if err != nil {
		return nil, err
	}
	return jsonContents(uri, parts)
}

// userIDFromURI extracts the id of "bucketadmin://users/{id}/partitions".
func userIDFromURI(uri string) (uint64, error) {
	rest, ok := strings.CutPrefix(uri, partitionsPrefix)
	if ok {
		rest, ok = strings.CutSuffix(rest, partitionsSuffix)
	}
	if !ok || rest == "" {
		return 0, fmt.Errorf("unexpected resource URI: %s", uri)
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id in %s", uri)
	}
	return id, nil
}
