package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var binaryPath string

func TestMain(m *testing.M) {
	projectRoot := getProjectRoot()

	// Build the binary before running tests
	binaryPath = filepath.Join(projectRoot, "tracehook_test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/tracehook")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		panic("Failed to build binary: " + err.Error() + "\nOutput: " + string(output))
	}

	code := m.Run()

	_ = os.Remove(binaryPath)
	os.Exit(code)
}

func getProjectRoot() string {
	wd, _ := os.Getwd()
	return filepath.Join(wd, "..", "..")
}

func getTestdataPath(filename string) string {
	wd, _ := os.Getwd()
	return filepath.Join(wd, "testdata", filename)
}

// sessionEnv isolates one hook session: its own state dir, home, and no
// API key so nothing reaches the network.
func sessionEnv(t *testing.T) []string {
	t.Helper()
	return append(os.Environ(),
		"TMPDIR="+t.TempDir(),
		"HOME="+t.TempDir(),
		"COMMONTRACE_API_KEY=",
		"COMMONTRACE_API_BASE_URL=",
	)
}

func runTracehook(env []string, args []string, stdin string) (string, string, error) {
	cmd := exec.Command(binaryPath, args...)
	cmd.Env = env
	cmd.Stdin = strings.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func hookArgs(event string) []string {
	return []string{"hook", "--event", event, "--config", getTestdataPath("low_threshold.yaml")}
}

func postToolUse(sessionID, tool string, toolInput, toolResponse map[string]interface{}) string {
	payload := map[string]interface{}{
		"session_id":    sessionID,
		"cwd":           "/work",
		"tool_name":     tool,
		"tool_input":    toolInput,
		"tool_response": toolResponse,
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

// ==================== Hook Command Tests ====================

func TestHook_ResolvedErrorPromptsAtStop(t *testing.T) {
	env := sessionEnv(t)
	sid := "it-resolved"

	// A command fails, the failing file is edited, the command succeeds.
	events := []string{
		postToolUse(sid, "Bash",
			map[string]interface{}{"command": "python build.py"},
			map[string]interface{}{"exit_code": 1, "stderr": "Traceback: boom"}),
		postToolUse(sid, "Edit",
			map[string]interface{}{"file_path": "/work/build.py", "new_string": "fixed = True"},
			map[string]interface{}{}),
		postToolUse(sid, "Bash",
			map[string]interface{}{"command": "python build.py"},
			map[string]interface{}{"exit_code": 0}),
	}
	for i, ev := range events {
		if _, stderr, err := runTracehook(env, hookArgs("PostToolUse"), ev); err != nil {
			t.Fatalf("event %d failed: %v\nstderr: %s", i, err, stderr)
		}
	}

	stop := fmt.Sprintf(`{"session_id":%q,"stop_hook_active":false}`, sid)
	stdout, stderr, err := runTracehook(env, hookArgs("Stop"), stop)
	if err != nil {
		t.Fatalf("stop failed: %v\nstderr: %s", err, stderr)
	}
	if stdout == "" {
		t.Fatal("expected a contribution prompt at stop")
	}

	var output map[string]interface{}
	if err := json.Unmarshal([]byte(stdout), &output); err != nil {
		t.Fatalf("Failed to parse JSON output: %v\nOutput: %s", err, stdout)
	}
	if output["decision"] != "block" {
		t.Errorf("decision = %v, want block", output["decision"])
	}
	reason, _ := output["reason"].(string)
	if !strings.Contains(reason, "contribute_trace") {
		t.Errorf("reason missing contribution instructions: %s", reason)
	}

	// A second stop with identical evidence stays silent.
	stdout, _, err = runTracehook(env, hookArgs("Stop"), stop)
	if err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
	if stdout != "" {
		t.Errorf("expected silence on repeated stop, got: %s", stdout)
	}
}

func TestHook_BenignSessionIsSilent(t *testing.T) {
	env := sessionEnv(t)
	sid := "it-benign"

	ev := postToolUse(sid, "Read",
		map[string]interface{}{"file_path": "/work/README.md"},
		map[string]interface{}{})
	if _, _, err := runTracehook(env, hookArgs("PostToolUse"), ev); err != nil {
		t.Fatalf("event failed: %v", err)
	}

	stop := fmt.Sprintf(`{"session_id":%q,"stop_hook_active":false}`, sid)
	stdout, _, err := runTracehook(env, hookArgs("Stop"), stop)
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if stdout != "" {
		t.Errorf("expected no output for a benign session, got: %s", stdout)
	}
}

func TestHook_StopHookActiveIsSilent(t *testing.T) {
	env := sessionEnv(t)

	stdout, _, err := runTracehook(env, hookArgs("Stop"),
		`{"session_id":"it-active","stop_hook_active":true}`)
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if stdout != "" {
		t.Errorf("expected no output when stop hook already active, got: %s", stdout)
	}
}

func TestHook_EmptyStdinIsSilent(t *testing.T) {
	env := sessionEnv(t)

	stdout, _, err := runTracehook(env, hookArgs("PostToolUse"), "")
	if err != nil {
		t.Fatalf("hook failed on empty stdin: %v", err)
	}
	if stdout != "" {
		t.Errorf("expected no output for empty stdin, got: %s", stdout)
	}
}

func TestHook_MalformedInputIsSilent(t *testing.T) {
	env := sessionEnv(t)

	stdout, _, err := runTracehook(env, hookArgs("PostToolUse"), "{not json")
	if err != nil {
		t.Fatalf("hook failed on malformed input: %v", err)
	}
	if stdout != "" {
		t.Errorf("expected no output for malformed input, got: %s", stdout)
	}
}

func TestHook_InvalidEventFails(t *testing.T) {
	env := sessionEnv(t)

	_, _, err := runTracehook(env, []string{"hook", "--event", "NotAnEvent"}, "{}")
	if err == nil {
		t.Error("expected non-zero exit for invalid event type")
	}
}

func TestHook_UserPromptFirstTurnNudge(t *testing.T) {
	env := sessionEnv(t)

	input := `{"session_id":"it-prompt","prompt":"help me fix this"}`
	stdout, _, err := runTracehook(env, hookArgs("UserPromptSubmit"), input)
	if err != nil {
		t.Fatalf("prompt hook failed: %v", err)
	}
	if !strings.Contains(stdout, "additionalContext") {
		t.Errorf("expected first-turn context output, got: %s", stdout)
	}
}

// ==================== Other Command Tests ====================

func TestVersionCommand(t *testing.T) {
	stdout, _, err := runTracehook(os.Environ(), []string{"version"}, "")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(stdout, "tracehook") {
		t.Errorf("unexpected version output: %s", stdout)
	}
}

func TestSetupWritesConfig(t *testing.T) {
	dir := t.TempDir()

	cmd := exec.Command(binaryPath, "setup")
	cmd.Dir = dir
	cmd.Env = sessionEnv(t)
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("setup failed: %v\noutput: %s", err, output)
	}

	configPath := filepath.Join(dir, ".commontrace", "config.yaml")
	if _, err := os.Stat(configPath); err != nil {
		t.Errorf("config not written: %v", err)
	}
	if !strings.Contains(string(output), "tracehook hook --event") {
		t.Errorf("setup output missing hook commands: %s", output)
	}

	// Without --force a second run refuses to overwrite.
	cmd = exec.Command(binaryPath, "setup")
	cmd.Dir = dir
	cmd.Env = sessionEnv(t)
	if err := cmd.Run(); err == nil {
		t.Error("expected failure when config already exists")
	}
}
