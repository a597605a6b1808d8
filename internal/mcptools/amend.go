package mcptools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/commontrace/tracehook/internal/kb"
)

// AmendTool handles the amend_trace MCP tool.
type AmendTool struct {
	client *kb.Client
}

// NewAmendTool creates an AmendTool.
func NewAmendTool(client *kb.Client) *AmendTool {
	return &AmendTool{client: client}
}

// Definition returns the MCP tool definition for amend_trace.
func (t *AmendTool) Definition() mcp.Tool {
	return mcp.NewTool("amend_trace",
		mcp.WithDescription(
			"Revise the solution of a trace you contributed earlier in this session, "+
				"for when continued work showed the first version was incomplete or wrong.",
		),
		mcp.WithString("trace_id",
			mcp.Required(),
			mcp.Description("The ID of the trace to amend"),
		),
		mcp.WithString("solution",
			mcp.Required(),
			mcp.Description("The revised solution text, replacing the previous one"),
		),
	)
}

// Handle processes the amend_trace tool call.
func (t *AmendTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("trace_id", "")
	if id == "" {
		return mcp.NewToolResultError("'trace_id' is required"), nil
	}
	solution := req.GetString("solution", "")
	if solution == "" {
		return mcp.NewToolResultError("'solution' is required"), nil
	}

	if err := t.client.Amend(ctx, id, solution); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("amend failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Trace %s amended.", id)), nil
}
