package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("inspect_user",
		mcp.WithPromptDescription("Walk through a user's storage: totals, partitions and largest files"),
		mcp.WithArgument("username",
			mcp.ArgumentDescription("Username to inspect"),
			mcp.RequiredArgument(),
		),
	), s.handleInspectUserPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("locate_bucket",
		mcp.WithPromptDescription("Find a bucket and report where its files live"),
		mcp.WithArgument("bucket",
			mcp.ArgumentDescription("Bucket id or name"),
			mcp.RequiredArgument(),
		),
	), s.handleLocateBucketPrompt)
}

func (s *Server) handleInspectUserPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	username := req.Params.Arguments["username"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Inspect storage of user %s", username),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Report on the storage of user "%s". Follow these steps:

1. Call list_users with username "%s" to get the user id, file count and total size
2. Call user_partitions with that id and show the occupancy grid
3. For each partition, call list_files to sample the files stored there
4. Summarize: total size (use format_size), number of partitions used out of 256, and any files with a non-ok status`, username, username),
				},
			},
		},
	}, nil
}

func (s *Server) handleLocateBucketPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	bucket := req.Params.Arguments["bucket"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Locate bucket %s", bucket),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Locate bucket "%s".

1. Call search_buckets with bid "%s" if it is numeric, otherwise with bname "%s"
2. Report the owning user and partition of every match
3. List the files found, with sizes formatted by format_size`, bucket, bucket, bucket),
				},
			},
		},
	}, nil
}
