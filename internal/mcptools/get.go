package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/commontrace/tracehook/internal/kb"
)

// GetTool handles the get_trace MCP tool.
type GetTool struct {
	client *kb.Client
}

// NewGetTool creates a GetTool.
func NewGetTool(client *kb.Client) *GetTool {
	return &GetTool{client: client}
}

// Definition returns the MCP tool definition for get_trace.
func (t *GetTool) Definition() mcp.Tool {
	return mcp.NewTool("get_trace",
		mcp.WithDescription(
			"Fetch the full content of a knowledge-base trace by ID, "+
				"including the complete solution text.",
		),
		mcp.WithString("trace_id",
			mcp.Required(),
			mcp.Description("The trace ID returned by search_traces"),
		),
	)
}

// Handle processes the get_trace tool call.
func (t *GetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("trace_id", "")
	if id == "" {
		return mcp.NewToolResultError("'trace_id' is required"), nil
	}

	trace, err := t.client.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get trace failed: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", trace.Title)
	if trace.ContextText != "" {
		fmt.Fprintf(&b, "## Context\n%s\n\n", trace.ContextText)
	}
	fmt.Fprintf(&b, "## Solution\n%s\n", trace.SolutionText)
	if len(trace.Tags) > 0 {
		fmt.Fprintf(&b, "\nTags: %s\n", strings.Join(trace.Tags, ", "))
	}
	fmt.Fprintf(&b, "\nIf this helped, vote with vote_trace (trace_id: %s).", trace.ID)
	return mcp.NewToolResultText(b.String()), nil
}
