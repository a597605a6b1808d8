package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/commontrace/tracehook/internal/config"
)

var (
	setupGlobal bool
	setupEvents string
	setupForce  bool
)

// HookConfig is the hooks section of the agent's settings file.
type HookConfig struct {
	Hooks map[string][]EventConfig `json:"hooks"`
}

// EventConfig binds one event to a list of hook commands.
type EventConfig struct {
	Matcher string        `json:"matcher,omitempty"`
	Hooks   []HookCommand `json:"hooks"`
}

// HookCommand is a single command entry in the agent's hook settings.
type HookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Set up tracehook configuration and agent hooks",
	Long: `Set up tracehook with a single command.

This command:
1. Creates a tracehook configuration file (.commontrace/config.yaml or global)
2. Outputs agent hooks JSON and an MCP server entry for copy/paste into settings

Examples:
  tracehook setup            # Project config
  tracehook setup --global   # Write to ~/.commontrace/config.yaml
  tracehook setup --force    # Overwrite existing config`,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().BoolVarP(&setupGlobal, "global", "g", false, "Write config to ~/.commontrace/config.yaml instead of project")
	setupCmd.Flags().StringVarP(&setupEvents, "events", "e", "SessionStart,UserPromptSubmit,PostToolUse,PostToolUseFailure,Stop,SessionEnd", "Comma-separated events to hook")
	setupCmd.Flags().BoolVar(&setupForce, "force", false, "Overwrite existing config file")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	var configPath string
	if setupGlobal {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(homeDir, ".commontrace", "config.yaml")
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		configPath = filepath.Join(cwd, ".commontrace", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil && !setupForce {
		return fmt.Errorf("config file already exists: %s\nUse --force to overwrite", configPath)
	}

	cfg := config.DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created tracehook config: %s\n\n", configPath)

	hookConfig := generateHooksConfig(setupEvents)
	output, err := json.MarshalIndent(hookConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal hook config: %w", err)
	}

	fmt.Println("Add the following to your agent settings file:")
	fmt.Println()
	fmt.Println(string(output))
	fmt.Println()
	fmt.Println("And register the MCP server:")
	fmt.Println()
	fmt.Println(`  {"mcpServers": {"commontrace": {"command": "tracehook", "args": ["mcp"]}}}`)
	fmt.Println()
	fmt.Println("Settings file locations:")
	fmt.Println("  - Global: ~/.claude/settings.json")
	fmt.Println("  - Project: .claude/settings.json")
	fmt.Println()
	fmt.Println("Set COMMONTRACE_API_KEY in your environment to enable the knowledge base.")
	return nil
}

// generateHooksConfig builds the agent hook entries for the selected events
func generateHooksConfig(events string) HookConfig {
	hookConfig := HookConfig{
		Hooks: make(map[string][]EventConfig),
	}

	for _, event := range strings.Split(events, ",") {
		event = strings.TrimSpace(event)
		if event == "" {
			continue
		}

		eventConfig := EventConfig{
			Hooks: []HookCommand{
				{
					Type:    "command",
					Command: fmt.Sprintf("tracehook hook --event %s", event),
					Timeout: 10,
				},
			},
		}

		// Tool events carry a matcher so every tool is observed.
		switch event {
		case "PostToolUse", "PostToolUseFailure":
			eventConfig.Matcher = ".*"
		}

		hookConfig.Hooks[event] = []EventConfig{eventConfig}
	}

	return hookConfig
}
