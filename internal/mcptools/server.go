package mcptools

import (
	"strings"

	"github.com/mark3labs/mcp-go/server"

	"github.com/commontrace/tracehook/internal/config"
	"github.com/commontrace/tracehook/internal/kb"
)

// NewServer wires the knowledge-base tools onto an MCP server instance.
// This is the composition root for `tracehook mcp`: it resolves the API
// client from config and registers every tool.
func NewServer(cfg *config.Config, version string) *server.MCPServer {
	client := kb.New(&cfg.API)

	s := server.NewMCPServer(
		"tracehook",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	search := NewSearchTool(client)
	s.AddTool(search.Definition(), search.Handle)

	get := NewGetTool(client)
	s.AddTool(get.Definition(), get.Handle)

	contribute := NewContributeTool(client)
	s.AddTool(contribute.Definition(), contribute.Handle)

	vote := NewVoteTool(client)
	s.AddTool(vote.Definition(), vote.Handle)

	tags := NewTagsTool(client)
	s.AddTool(tags.Definition(), tags.Handle)

	amend := NewAmendTool(client)
	s.AddTool(amend.Definition(), amend.Handle)

	return s
}

func serverInstructions() string {
	return strings.TrimSpace(`
CommonTrace is a shared knowledge base of developer traces: problems and the
solutions that actually resolved them. Search it before debugging unfamiliar
errors (search_traces), read promising results in full (get_trace), and vote
on traces you applied (vote_trace). When you solve something non-obvious,
contribute it (contribute_trace) so the next developer skips the struggle.
`)
}
