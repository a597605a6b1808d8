package hooks

import (
	"regexp"
	"strings"
	"time"

	"github.com/commontrace/tracehook/internal/detect"
)

// exitCodeSuffix matches the structural exit-code metadata the host
// appends to plain-string tool responses. This is host metadata, not
// error-message parsing.
var exitCodeSuffix = regexp.MustCompile(`(?i)exit\s*code[:\s]+(\d+)`)

const errTailLimit = 500

// NormalizeToolEvent maps a PostToolUse input to an engine event plus
// the structural error tail for the search triggers. Unknown tools
// yield an event with an empty kind, which the engine ignores.
func NormalizeToolEvent(seq int64, in *PostToolUseInput, now time.Time) (detect.ToolEvent, string) {
	ev := detect.ToolEvent{Seq: seq, Tool: in.ToolName, Time: now}

	switch in.ToolName {
	case "Bash":
		ev.Kind = detect.EventCommand
		ev.Command, _ = in.ToolInput["command"].(string)
		failed, tail := bashOutcome(in.ToolResponse)
		ev.Failed = failed
		if failed {
			ev.ExitCode = 1
		}
		return ev, tail

	case "Write", "Edit", "MultiEdit", "NotebookEdit":
		ev.Kind = detect.EventFileEdit
		ev.Path = editPath(in.ToolInput)
		ev.PayloadSize = editPayloadSize(in.ToolInput)
		return ev, ""

	case "Read":
		ev.Kind = detect.EventFileRead
		ev.Path, _ = in.ToolInput["file_path"].(string)
		return ev, ""

	case "Grep", "Glob":
		ev.Kind = detect.EventSearch
		return ev, ""

	case "WebSearch", "WebFetch":
		ev.Kind = detect.EventWebLookup
		return ev, ""
	}

	return ev, ""
}

// bashOutcome extracts the failure flag and error tail from a Bash tool
// response using structural evidence only: the exit code field, or the
// presence of stderr content.
func bashOutcome(response interface{}) (bool, string) {
	switch resp := response.(type) {
	case map[string]interface{}:
		output, _ := resp["output"].(string)
		stderr, _ := resp["stderr"].(string)

		if code, ok := exitCode(resp); ok && code != 0 {
			if stderr != "" {
				return true, tail(stderr)
			}
			return true, tail(output)
		}
		if strings.TrimSpace(stderr) != "" {
			return true, tail(stderr)
		}
		return false, ""

	case string:
		end := resp
		if len(end) > 100 {
			end = end[len(end)-100:]
		}
		if m := exitCodeSuffix.FindStringSubmatch(end); m != nil && m[1] != "0" {
			return true, tail(resp)
		}
		return false, ""
	}
	return false, ""
}

func exitCode(resp map[string]interface{}) (int, bool) {
	for _, key := range []string{"exitCode", "exit_code"} {
		if v, ok := resp[key]; ok {
			if f, ok := v.(float64); ok {
				return int(f), true
			}
		}
	}
	return 0, false
}

func editPath(input map[string]interface{}) string {
	if p, ok := input["file_path"].(string); ok && p != "" {
		return p
	}
	p, _ := input["notebook_path"].(string)
	return p
}

// editPayloadSize is the byte length of the edit payload: a size class
// for rewrite detection, never inspected as text.
func editPayloadSize(input map[string]interface{}) int {
	size := 0
	if s, ok := input["content"].(string); ok {
		size += len(s)
	}
	if s, ok := input["new_string"].(string); ok {
		size += len(s)
	}
	if s, ok := input["new_source"].(string); ok {
		size += len(s)
	}
	if edits, ok := input["edits"].([]interface{}); ok {
		for _, e := range edits {
			if m, ok := e.(map[string]interface{}); ok {
				if s, ok := m["new_string"].(string); ok {
					size += len(s)
				}
			}
		}
	}
	return size
}

func tail(s string) string {
	if len(s) > errTailLimit {
		return s[len(s)-errTailLimit:]
	}
	return s
}

var digits = regexp.MustCompile(`\d+`)

// ErrorSignature normalizes an error tail for cross-session matching:
// lowercase, digits collapsed, whitespace folded.
func ErrorSignature(errTail string) string {
	sig := strings.ToLower(strings.TrimSpace(errTail))
	sig = digits.ReplaceAllString(sig, "n")
	sig = strings.Join(strings.Fields(sig), " ")
	if len(sig) > 300 {
		sig = sig[len(sig)-300:]
	}
	return sig
}
