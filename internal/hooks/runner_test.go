package hooks

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/commontrace/tracehook/internal/config"
	"github.com/commontrace/tracehook/internal/logger"
)

func newTestRunner(t *testing.T, mutate func(*config.Config)) *Runner {
	t.Helper()
	logger.InitQuiet()
	t.Setenv("TMPDIR", t.TempDir())
	t.Setenv("COMMONTRACE_API_KEY", "")
	t.Setenv("COMMONTRACE_API_BASE_URL", "")

	cfg := config.DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "local.db")
	if mutate != nil {
		mutate(cfg)
	}

	r, err := NewRunner(cfg, "sess-test", t.TempDir())
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func bashUse(command string, exitCode float64, stderr string) *PostToolUseInput {
	return toolUse("Bash",
		map[string]interface{}{"command": command},
		map[string]interface{}{"output": "", "stderr": stderr, "exitCode": exitCode})
}

func editUse(path string) *PostToolUseInput {
	return toolUse("Edit", map[string]interface{}{"file_path": path, "new_string": "x"}, nil)
}

func TestStopPromptsOnResolvedEpisode(t *testing.T) {
	r := newTestRunner(t, func(cfg *config.Config) {
		cfg.Detection.ScoreThreshold = 2.5
	})

	r.HandlePostToolUse(bashUse("python app.py", 1, "Traceback: boom"))
	r.HandlePostToolUse(editUse("src/app.py"))
	r.HandlePostToolUse(bashUse("python app.py", 0, ""))

	out := r.HandleStop(&StopInput{})
	if out == nil {
		t.Fatal("expected a block decision")
	}
	if out.Decision != DecisionBlock {
		t.Errorf("decision = %q", out.Decision)
	}
	if !strings.Contains(out.Reason, "contribute_trace") {
		t.Errorf("reason missing contribution instructions: %q", out.Reason)
	}

	// Same session state must not prompt twice.
	if again := r.HandleStop(&StopInput{}); again != nil {
		t.Errorf("second stop prompted again: %+v", again)
	}
}

func TestStopBelowThresholdIsSilent(t *testing.T) {
	r := newTestRunner(t, nil)
	r.HandlePostToolUse(editUse("src/app.py"))

	if out := r.HandleStop(&StopInput{}); out != nil {
		t.Errorf("benign session prompted: %+v", out)
	}
}

func TestStopHookActiveIsNoop(t *testing.T) {
	r := newTestRunner(t, func(cfg *config.Config) {
		cfg.Detection.ScoreThreshold = 0.5
	})
	r.HandlePostToolUse(bashUse("python app.py", 1, "boom"))
	r.HandlePostToolUse(editUse("src/app.py"))
	r.HandlePostToolUse(bashUse("python app.py", 0, ""))

	if out := r.HandleStop(&StopInput{StopHookActive: true}); out != nil {
		t.Errorf("stop_hook_active must short-circuit, got %+v", out)
	}
}

func TestFirstTurnNudge(t *testing.T) {
	r := newTestRunner(t, nil)

	out := r.HandleUserPromptSubmit(&UserPromptSubmitInput{})
	if out == nil || out.HookSpecificOutput == nil {
		t.Fatal("first turn should inject a nudge")
	}
	if !strings.Contains(out.HookSpecificOutput.AdditionalContext, "search CommonTrace") {
		t.Errorf("nudge = %q", out.HookSpecificOutput.AdditionalContext)
	}

	if out := r.HandleUserPromptSubmit(&UserPromptSubmitInput{}); out != nil {
		t.Errorf("second turn nudged again: %+v", out)
	}
}

func TestContributionThenAmendNudge(t *testing.T) {
	r := newTestRunner(t, nil)

	r.HandleUserPromptSubmit(&UserPromptSubmitInput{})
	r.HandlePostToolUse(toolUse("mcp__commontrace__contribute_trace",
		map[string]interface{}{},
		"Contributed trace 0f8fad5b-d9cb-469f-a165-70867728950e"))

	// No turns after the contribution: nothing to amend.
	if out := r.HandleStop(&StopInput{}); out != nil {
		t.Errorf("unexpected nudge with no later turns: %+v", out)
	}

	r.HandleUserPromptSubmit(&UserPromptSubmitInput{})
	out := r.HandleStop(&StopInput{})
	if out == nil || out.Decision != DecisionBlock {
		t.Fatal("expected amend nudge after post-contribution turns")
	}
	if !strings.Contains(out.Reason, "amend_trace") {
		t.Errorf("reason = %q", out.Reason)
	}
	if !strings.Contains(out.Reason, "0f8fad5b-d9cb-469f-a165-70867728950e") {
		t.Errorf("reason missing trace id: %q", out.Reason)
	}

	// The same nudge is not repeated.
	if again := r.HandleStop(&StopInput{}); again != nil {
		t.Errorf("amend nudge repeated: %+v", again)
	}
}

func TestToolFailureFeedsEngine(t *testing.T) {
	r := newTestRunner(t, func(cfg *config.Config) {
		cfg.Detection.ScoreThreshold = 2.5
	})

	r.HandlePostToolUseFailure(&PostToolUseFailureInput{
		ToolName:  "Edit",
		ToolInput: map[string]interface{}{"file_path": "src/app.py"},
		Error:     "permission denied",
	})
	r.HandlePostToolUse(editUse("src/shim.py"))

	// The failure opened an episode; the engine state must survive the
	// process boundary simulated by separate handler calls.
	e := r.loadEngine(time.Now())
	if e.State().OpenEpisode("tool:Edit") == nil {
		t.Fatal("tool failure did not open an episode")
	}
}

func TestRedeliveredToolUseIsDropped(t *testing.T) {
	r := newTestRunner(t, nil)

	in := editUse("src/app.py")
	in.ToolUseID = "toolu_01abc"
	r.HandlePostToolUse(in)
	r.HandlePostToolUse(in)

	e := r.loadEngine(time.Now())
	if got := e.State().EditCounts["src/app.py"]; got != 1 {
		t.Errorf("edit count = %d, want 1 after duplicate delivery", got)
	}
	if got := len(e.State().Signals); got != 1 {
		t.Errorf("signals = %d, want 1", got)
	}

	// Events without a host id are not deduplicated against each other.
	r.HandlePostToolUse(editUse("src/app.py"))
	e = r.loadEngine(time.Now())
	if got := e.State().EditCounts["src/app.py"]; got != 2 {
		t.Errorf("edit count = %d, want 2 after distinct id-less event", got)
	}
}

func TestRedeliveredToolFailureIsDropped(t *testing.T) {
	r := newTestRunner(t, nil)

	in := &PostToolUseFailureInput{
		ToolName:  "Edit",
		ToolInput: map[string]interface{}{"file_path": "src/app.py"},
		ToolUseID: "toolu_02def",
		Error:     "permission denied",
	}
	r.HandlePostToolUseFailure(in)
	r.HandlePostToolUseFailure(in)

	e := r.loadEngine(time.Now())
	if got := len(e.State().Episodes); got != 1 {
		t.Errorf("episodes = %d, want 1 after duplicate failure delivery", got)
	}
	if ep := e.State().OpenEpisode("tool:Edit"); ep == nil || ep.Failures != 1 {
		t.Errorf("episode failures = %+v, want a single recorded failure", ep)
	}
}

func TestUnknownToolIsIgnored(t *testing.T) {
	r := newTestRunner(t, nil)
	if out := r.HandlePostToolUse(toolUse("TodoWrite", map[string]interface{}{}, nil)); out != nil {
		t.Errorf("unexpected output: %+v", out)
	}
	e := r.loadEngine(time.Now())
	if len(e.State().Signals) != 0 {
		t.Errorf("unknown tool produced signals: %v", e.State().Signals)
	}
}
