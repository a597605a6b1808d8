package cli

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/commontrace/tracehook/internal/logger"
	"github.com/commontrace/tracehook/internal/mcptools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the knowledge-base tools over MCP stdio",
	Long: `Serve the CommonTrace knowledge-base tools over the Model Context
Protocol on stdio: search_traces, get_trace, contribute_trace, vote_trace,
list_tags, and amend_trace.

Register in the agent's MCP settings as a stdio server running
"tracehook mcp".`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	// stdout carries the MCP protocol, logs stay on stderr or in a file.
	if verbose {
		_ = logger.Init("debug", cfg.Settings.LogFile)
	} else {
		logger.InitQuiet()
	}

	s := mcptools.NewServer(cfg, Version)
	if err := server.ServeStdio(s); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
