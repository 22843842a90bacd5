package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"bucketadmin/internal/catalog"
	"bucketadmin/internal/domain"
	"bucketadmin/internal/view"
)

func (s *Server) registerCatalogTools() {
	s.mcp.AddTool(mcp.NewTool("search_buckets",
		mcp.WithDescription("Find buckets by id and/or name and list the files stored in them"),
		mcp.WithString("bid", mcp.Description("Bucket ID (exact match)")),
		mcp.WithString("bname", mcp.Description("Bucket name (exact match)")),
		mcp.WithString("connectionId", mcp.Description("Database connection ID (optional)")),
	), s.handleSearchBuckets)

	s.mcp.AddTool(mcp.NewTool("list_users",
		mcp.WithDescription("List users with their file count, total size in bytes and partitions"),
		mcp.WithString("username", mcp.Description("Only this username")),
		mcp.WithString("bid", mcp.Description("Only the bucket with this id")),
		mcp.WithString("bname", mcp.Description("Only buckets with this name")),
		mcp.WithNumber("limit", mcp.Description("Maximum partitions scanned per user (0 = all)")),
		mcp.WithBoolean("refresh", mcp.Description("Bypass the stats cache")),
		mcp.WithString("connectionId", mcp.Description("Database connection ID (optional)")),
	), s.handleListUsers)

	s.mcp.AddTool(mcp.NewTool("user_partitions",
		mcp.WithDescription("Show which of the 256 partitions (00-ff) hold a user's buckets, as JSON and a 16x16 grid"),
		mcp.WithNumber("userId", mcp.Description("User ID"), mcp.Required()),
		mcp.WithString("connectionId", mcp.Description("Database connection ID (optional)")),
	), s.handleUserPartitions)

	s.mcp.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List files of one user in one partition"),
		mcp.WithNumber("userId", mcp.Description("User ID"), mcp.Required()),
		mcp.WithString("partition", mcp.Description("Two-digit lowercase hex partition label"), mcp.Required()),
		mcp.WithNumber("fid", mcp.Description("Only this file id")),
		mcp.WithString("fname", mcp.Description("File name substring")),
		mcp.WithNumber("bucketId", mcp.Description("Only files of this bucket")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows (default from config)")),
		mcp.WithString("connectionId", mcp.Description("Database connection ID (optional)")),
	), s.handleListFiles)

	s.mcp.AddTool(mcp.NewTool("format_size",
		mcp.WithDescription("Format a byte count the way the panel does (B, KB, MB, GB, TB with two decimals)"),
		mcp.WithNumber("bytes", mcp.Description("Size in bytes"), mcp.Required()),
	), s.handleFormatSize)
}

func (s *Server) handleSearchBuckets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bid := req.GetString("bid", "")
	bname := req.GetString("bname", "")
	if bid == "" && bname == "" {
		return mcp.NewToolResultError("bid or bname is required"), nil
	}
	res, err := s.catalog.Search(ctx, req.GetString("connectionId", ""), bid, bname)
	if err != nil {
		return s.toolError("search_buckets", err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleListUsers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := getFloat(req.GetArguments(), "limit", 0)
	if limit < 0 {
		return mcp.NewToolResultError("limit must be non-negative"), nil
	}
	f := catalog.StatsFilter{
		BID:      req.GetString("bid", ""),
		BName:    req.GetString("bname", ""),
		Username: req.GetString("username", ""),
		Limit:    int(limit),
	}
	users, err := s.catalog.Users(ctx, req.GetString("connectionId", ""), f, req.GetBool("refresh", false))
	if err != nil {
		return s.toolError("list_users", err), nil
	}

	type userRow struct {
		domain.UserSummary
		Size string `json:"size"`
	}
	out := make([]userRow, 0, len(users))
	for _, u := range users {
		out = append(out, userRow{UserSummary: u.Summary(), Size: view.FormatSize(u.TotalSize)})
	}
	return jsonResult(out)
}

func (s *Server) handleUserPartitions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, ok, err := getUint(req.GetArguments(), "userId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError("userId is required"), nil
	}

	parts, err := s.catalog.Partitions(ctx, req.GetString("connectionId", ""), userID)
	if err != nil {
		return s.toolError("user_partitions", err), nil
	}
	grid := view.BuildGrid(parts)

	res, err := jsonResult(parts)
	if err != nil {
		return nil, err
	}
	res.Content = append(res.Content, mcp.TextContent{
		Type: "text",
		Text: fmt.Sprintf("Partitions of user %d (%d/%d)\n%s", userID, grid.Present(), domain.PartitionCount, view.RenderGridText(grid)),
	})
	return res, nil
}

func (s *Server) handleListFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	var f catalog.FileFilter

	userID, ok, err := getUint(args, "userId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError("userId is required"), nil
	}
	f.UserID = userID
	f.Part = req.GetString("partition", "")
	if f.Part == "" {
		return mcp.NewToolResultError("partition is required"), nil
	}
	if f.FID, _, err = getUint(args, "fid"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if f.BucketID, _, err = getUint(args, "bucketId"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit, _, err := getUint(args, "limit")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f.Limit = int(limit)
	f.FName = req.GetString("fname", "")

	files, err := s.catalog.Files(ctx, req.GetString("connectionId", ""), f)
	if err != nil {
		return s.toolError("list_files", err), nil
	}
	return jsonResult(files)
}

func (s *Server) handleFormatSize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	if _, ok := args["bytes"].(float64); !ok {
		return mcp.NewToolResultError("bytes must be a number"), nil
	}
	return textResult(view.FormatSize(getFloat(args, "bytes", 0))), nil
}
