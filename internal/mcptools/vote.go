package mcptools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/commontrace/tracehook/internal/kb"
)

// VoteTool handles the vote_trace MCP tool.
type VoteTool struct {
	client *kb.Client
}

// NewVoteTool creates a VoteTool.
func NewVoteTool(client *kb.Client) *VoteTool {
	return &VoteTool{client: client}
}

// Definition returns the MCP tool definition for vote_trace.
func (t *VoteTool) Definition() mcp.Tool {
	return mcp.NewTool("vote_trace",
		mcp.WithDescription(
			"Vote on a knowledge-base trace after applying it. Votes rank traces "+
				"in future search results, so vote when a trace helped or misled you.",
		),
		mcp.WithString("trace_id",
			mcp.Required(),
			mcp.Description("The trace ID to vote on"),
		),
		mcp.WithString("direction",
			mcp.Required(),
			mcp.Description("'up' if the trace helped, 'down' if it was wrong or outdated"),
		),
		mcp.WithString("feedback",
			mcp.Description("Optional note on why, shown to the trace author"),
		),
	)
}

// Handle processes the vote_trace tool call.
func (t *VoteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("trace_id", "")
	if id == "" {
		return mcp.NewToolResultError("'trace_id' is required"), nil
	}
	direction := req.GetString("direction", "")
	if direction != "up" && direction != "down" {
		return mcp.NewToolResultError("'direction' must be 'up' or 'down'"), nil
	}

	if err := t.client.Vote(ctx, id, direction, req.GetString("feedback", "")); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("vote failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Voted %s on trace %s.", direction, id)), nil
}
