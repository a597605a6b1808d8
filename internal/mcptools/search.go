// Package mcptools exposes the CommonTrace knowledge-base operations as
// MCP tools for agents that prefer tool calls over the hook surface.
package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/commontrace/tracehook/internal/kb"
)

// SearchTool handles the search_traces MCP tool.
type SearchTool struct {
	client *kb.Client
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(client *kb.Client) *SearchTool {
	return &SearchTool{client: client}
}

// Definition returns the MCP tool definition for search_traces.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("search_traces",
		mcp.WithDescription(
			"Search the CommonTrace knowledge base for traces: distilled solutions "+
				"other developers contributed after working through the same class of problem. "+
				"Search before solving errors, configuration issues, or unfamiliar domains.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query: error text, problem description, or keywords"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tag filter, e.g. 'python,fastapi'"),
		),
	)
}

// Handle processes the search_traces tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	var tags []string
	if raw := req.GetString("tags", ""); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}

	traces, err := t.client.Search(ctx, query, tags, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(traces) == 0 {
		return mcp.NewToolResultText("No traces found matching your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d trace(s):\n\n", len(traces))
	b.WriteString(kb.FormatTraces(traces))
	b.WriteString("\n\nUse get_trace with the ID to read the full solution.")
	return mcp.NewToolResultText(b.String()), nil
}
