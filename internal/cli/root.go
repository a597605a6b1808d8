package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/commontrace/tracehook/internal/config"
)

// Version information set via ldflags
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	verbose    bool
	configFile string
	projectDir string
)

var rootCmd = &cobra.Command{
	Use:   "tracehook",
	Short: "Session knowledge detection for coding agents",
	Long: `Tracehook observes coding-agent sessions through hook events, detects
when a session produced knowledge worth keeping (errors resolved, approaches
reversed, configuration discovered), and prompts for a contribution to the
CommonTrace knowledge base when the evidence is strong enough.

It also serves the knowledge-base operations over MCP stdio for agents that
search and contribute directly.

Configure in:
  - ~/.commontrace/config.yaml (global)
  - .commontrace/config.yaml (project-specific)`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tracehook %s\n", Version)
		fmt.Printf("  commit: %s\n", Commit)
		fmt.Printf("  built:  %s\n", Date)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Override config file path")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", "", "Override project directory")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves configuration from the --config override or the
// global/project file chain, falling back to defaults when nothing exists.
func loadConfig() *config.Config {
	loader, err := config.NewLoader(projectDir)
	if err != nil {
		return config.DefaultConfig()
	}

	var cfg *config.Config
	if configFile != "" {
		cfg, err = loader.LoadFromFile(configFile)
	} else {
		cfg, err = loader.Load()
	}
	if err != nil {
		return config.DefaultConfig()
	}
	return cfg
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
