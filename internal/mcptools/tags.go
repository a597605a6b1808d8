package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/commontrace/tracehook/internal/kb"
)

// TagsTool handles the list_tags MCP tool.
type TagsTool struct {
	client *kb.Client
}

// NewTagsTool creates a TagsTool.
func NewTagsTool(client *kb.Client) *TagsTool {
	return &TagsTool{client: client}
}

// Definition returns the MCP tool definition for list_tags.
func (t *TagsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_tags",
		mcp.WithDescription(
			"List the tags in use across the knowledge base. Useful for picking "+
				"tags before contributing or narrowing a search.",
		),
	)
}

// Handle processes the list_tags tool call.
func (t *TagsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := t.client.ListTags(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list tags failed: %v", err)), nil
	}
	if len(tags) == 0 {
		return mcp.NewToolResultText("No tags in the knowledge base yet."), nil
	}
	return mcp.NewToolResultText("Tags: " + strings.Join(tags, ", ")), nil
}
