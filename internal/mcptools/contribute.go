package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/commontrace/tracehook/internal/kb"
)

// ContributeTool handles the contribute_trace MCP tool.
type ContributeTool struct {
	client *kb.Client
}

// NewContributeTool creates a ContributeTool.
func NewContributeTool(client *kb.Client) *ContributeTool {
	return &ContributeTool{client: client}
}

// Definition returns the MCP tool definition for contribute_trace.
func (t *ContributeTool) Definition() mcp.Tool {
	return mcp.NewTool("contribute_trace",
		mcp.WithDescription(
			"Contribute a trace to the CommonTrace knowledge base. A trace captures "+
				"a problem and its working solution so other developers can reuse it. "+
				"Write the solution as the steps that actually worked, not a narrative.",
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Short descriptive title, e.g. 'Fix asyncpg pool exhaustion under pgbouncer'"),
		),
		mcp.WithString("context",
			mcp.Required(),
			mcp.Description("The situation and symptoms: error messages, environment, what was tried"),
		),
		mcp.WithString("solution",
			mcp.Required(),
			mcp.Description("The working solution: concrete steps, commands, or code changes"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags, e.g. 'python,asyncpg,postgres'"),
		),
	)
}

// Handle processes the contribute_trace tool call.
func (t *ContributeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	contextText := req.GetString("context", "")
	solution := req.GetString("solution", "")
	if title == "" || contextText == "" || solution == "" {
		return mcp.NewToolResultError("'title', 'context', and 'solution' are all required"), nil
	}

	var tags []string
	if raw := req.GetString("tags", ""); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}

	id, err := t.client.Contribute(ctx, kb.ContributeRequest{
		Title:        title,
		ContextText:  contextText,
		SolutionText: solution,
		Tags:         tags,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("contribute failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Trace contributed. ID: %s", id)), nil
}
