package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hook.log")
	if err := Init("debug", path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(InitQuiet)

	Info().Str("k", "v").Msg("hello")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(raw), `"k":"v"`) || !strings.Contains(string(raw), "hello") {
		t.Errorf("log file missing entry: %s", raw)
	}
}

func TestWithSessionAttachesID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hook.log")
	if err := Init("debug", path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(InitQuiet)

	sessionLog := WithSession("sess-42")
	sessionLog.Debug().Msg("scoped")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(raw), `"session":"sess-42"`) {
		t.Errorf("log entry missing session field: %s", raw)
	}
}

func TestInvalidLevelFallsBack(t *testing.T) {
	if err := Init("not-a-level", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(InitQuiet)
}
