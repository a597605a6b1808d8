package hooks

// EventType represents the type of agent hook event delivered to tracehook
type EventType string

// Event types delivered by the host agent
const (
	SessionStart       EventType = "SessionStart"
	UserPromptSubmit   EventType = "UserPromptSubmit"
	PostToolUse        EventType = "PostToolUse"
	PostToolUseFailure EventType = "PostToolUseFailure"
	Stop               EventType = "Stop"
	SessionEnd         EventType = "SessionEnd"
)

// CommonInput contains fields common to all hook events
type CommonInput struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd"`
	HookEventName  string `json:"hook_event_name"`
}

// SessionStartInput is the input for SessionStart hooks
type SessionStartInput struct {
	CommonInput
	Source string `json:"source"` // startup, resume, clear, compact
}

// UserPromptSubmitInput is the input for UserPromptSubmit hooks
type UserPromptSubmitInput struct {
	CommonInput
	Prompt string `json:"prompt"`
}

// PostToolUseInput is the input for PostToolUse hooks
type PostToolUseInput struct {
	CommonInput
	ToolName     string                 `json:"tool_name"`
	ToolInput    map[string]interface{} `json:"tool_input"`
	ToolResponse interface{}            `json:"tool_response"`
	ToolUseID    string                 `json:"tool_use_id"`
}

// PostToolUseFailureInput is the input for PostToolUseFailure hooks,
// delivered when the host rejected or failed a tool call at the system
// level (distinct from a command that ran and exited non-zero).
type PostToolUseFailureInput struct {
	CommonInput
	ToolName  string                 `json:"tool_name"`
	ToolInput map[string]interface{} `json:"tool_input"`
	ToolUseID string                 `json:"tool_use_id"`
	Error     string                 `json:"error"`
}

// StopInput is the input for Stop hooks
type StopInput struct {
	CommonInput
	StopHookActive bool `json:"stop_hook_active"`
}

// Decision represents a blocking decision on a Stop event
type Decision string

// DecisionBlock asks the host to keep the conversation open and show Reason
const DecisionBlock Decision = "block"

// HookOutput is the JSON written to stdout for the host.
// A nil/empty output means "nothing to say" and the hook prints nothing.
type HookOutput struct {
	Decision           Decision            `json:"decision,omitempty"`
	Reason             string              `json:"reason,omitempty"`
	SuppressOutput     bool                `json:"suppressOutput,omitempty"`
	HookSpecificOutput *HookSpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// HookSpecificOutput carries event-specific output fields
type HookSpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// NewContextOutput creates an output that injects additional context
// into the agent's conversation for the given event.
func NewContextOutput(event EventType, context string) *HookOutput {
	return &HookOutput{
		HookSpecificOutput: &HookSpecificOutput{
			HookEventName:     string(event),
			AdditionalContext: context,
		},
	}
}

// NewBlockOutput creates a Stop-event output that keeps the conversation
// open and shows the reason to the agent.
func NewBlockOutput(reason string) *HookOutput {
	return &HookOutput{
		Decision: DecisionBlock,
		Reason:   reason,
	}
}
