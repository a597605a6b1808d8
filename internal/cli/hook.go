package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/commontrace/tracehook/internal/config"
	"github.com/commontrace/tracehook/internal/hooks"
	"github.com/commontrace/tracehook/internal/logger"
)

var hookEventType string

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Process a hook event from the coding agent",
	Long: `Process a hook event from the coding agent.

This command reads JSON from stdin (the hook input from the agent), runs
knowledge detection over it, and writes any output as JSON to stdout. Most
events produce no output at all.

Hooks must never break the host session: any internal failure is swallowed
and the command exits zero with empty output.

Example:
  echo '{"session_id":"abc","tool_name":"Bash",...}' | tracehook hook --event PostToolUse`,
	RunE: runHook,
}

func init() {
	hookCmd.Flags().StringVarP(&hookEventType, "event", "e", "", "Hook event type (required)")
	_ = hookCmd.MarkFlagRequired("event")
	rootCmd.AddCommand(hookCmd)
}

func runHook(cmd *cobra.Command, args []string) error {
	event := hooks.EventType(hookEventType)
	if !isValidEventType(event) {
		return fmt.Errorf("invalid event type: %s", hookEventType)
	}

	cfg := loadConfig()

	// Hook stdout is protocol output, so logs go to the configured file
	// or nowhere.
	if verbose {
		_ = logger.Init("debug", cfg.Settings.LogFile)
	} else if cfg.Settings.LogLevel != "" && cfg.Settings.LogFile != "" {
		_ = logger.Init(cfg.Settings.LogLevel, cfg.Settings.LogFile)
	} else {
		logger.InitQuiet()
	}

	inputJSON, err := io.ReadAll(os.Stdin)
	if err != nil || len(inputJSON) == 0 {
		// Fail open: nothing to process, nothing to say.
		return nil
	}

	logger.Debug().
		Str("event", hookEventType).
		RawJSON("input", inputJSON).
		Msg("Received hook input")

	output := dispatch(event, cfg, inputJSON)
	if output == nil {
		return nil
	}

	outputJSON, err := json.Marshal(output)
	if err != nil {
		logger.Debug().Err(err).Msg("output marshal failed")
		return nil
	}
	fmt.Println(string(outputJSON))
	return nil
}

// dispatch decodes the event payload and routes it to the runner. Every
// failure path returns nil output so the host session is never disturbed.
func dispatch(event hooks.EventType, cfg *config.Config, inputJSON []byte) *hooks.HookOutput {
	var common hooks.CommonInput
	if err := json.Unmarshal(inputJSON, &common); err != nil {
		logger.Debug().Err(err).Msg("input decode failed")
		return nil
	}

	runner, err := hooks.NewRunner(cfg, common.SessionID, common.Cwd)
	if err != nil {
		logger.Debug().Err(err).Msg("runner init failed")
		return nil
	}
	defer runner.Close()

	switch event {
	case hooks.SessionStart:
		var in hooks.SessionStartInput
		if json.Unmarshal(inputJSON, &in) != nil {
			return nil
		}
		return runner.HandleSessionStart(&in)
	case hooks.UserPromptSubmit:
		var in hooks.UserPromptSubmitInput
		if json.Unmarshal(inputJSON, &in) != nil {
			return nil
		}
		return runner.HandleUserPromptSubmit(&in)
	case hooks.PostToolUse:
		var in hooks.PostToolUseInput
		if json.Unmarshal(inputJSON, &in) != nil {
			return nil
		}
		return runner.HandlePostToolUse(&in)
	case hooks.PostToolUseFailure:
		var in hooks.PostToolUseFailureInput
		if json.Unmarshal(inputJSON, &in) != nil {
			return nil
		}
		return runner.HandlePostToolUseFailure(&in)
	case hooks.Stop:
		var in hooks.StopInput
		if json.Unmarshal(inputJSON, &in) != nil {
			return nil
		}
		return runner.HandleStop(&in)
	case hooks.SessionEnd:
		return runner.HandleSessionEnd()
	default:
		return nil
	}
}

func isValidEventType(event hooks.EventType) bool {
	switch event {
	case hooks.SessionStart, hooks.UserPromptSubmit, hooks.PostToolUse,
		hooks.PostToolUseFailure, hooks.Stop, hooks.SessionEnd:
		return true
	default:
		return false
	}
}
