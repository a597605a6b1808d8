package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewLoader(t *testing.T) {
	loader, err := NewLoader("")
	if err != nil {
		t.Fatalf("NewLoader failed: %v", err)
	}
	if loader.globalPath == "" {
		t.Error("globalPath is empty")
	}
	if loader.projectPath == "" {
		t.Error("projectPath is empty")
	}
}

func TestNewLoader_WithProjectDir(t *testing.T) {
	tmpDir := t.TempDir()

	loader, err := NewLoader(tmpDir)
	if err != nil {
		t.Fatalf("NewLoader failed: %v", err)
	}

	want := filepath.Join(tmpDir, ".commontrace", "config.yaml")
	if loader.projectPath != want {
		t.Errorf("got projectPath=%q, want %q", loader.projectPath, want)
	}
	if loader.ProjectConfigPath() != want {
		t.Errorf("ProjectConfigPath = %q, want %q", loader.ProjectConfigPath(), want)
	}
}

func TestLoader_Load_NoConfigFiles(t *testing.T) {
	tmpDir := t.TempDir()

	loader := &Loader{
		globalPath:  filepath.Join(tmpDir, "global", ".commontrace", "config.yaml"),
		projectPath: filepath.Join(tmpDir, "project", ".commontrace", "config.yaml"),
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Should be the defaults.
	if cfg.Detection.ScoreThreshold != 4.0 {
		t.Errorf("got ScoreThreshold=%v, want 4.0", cfg.Detection.ScoreThreshold)
	}
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoader_Load_GlobalOnly(t *testing.T) {
	tmpDir := t.TempDir()
	globalPath := filepath.Join(tmpDir, "global", ".commontrace", "config.yaml")

	writeConfig(t, globalPath, `version: "1"
settings:
  log_level: debug
api:
  api_key: global-key
detection:
  score_threshold: 3.0
`)

	loader := &Loader{
		globalPath:  globalPath,
		projectPath: filepath.Join(tmpDir, "project", ".commontrace", "config.yaml"),
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Settings.LogLevel != "debug" {
		t.Errorf("got LogLevel=%q, want debug", cfg.Settings.LogLevel)
	}
	if cfg.API.APIKey != "global-key" {
		t.Errorf("got APIKey=%q, want global-key", cfg.API.APIKey)
	}
	if cfg.Detection.ScoreThreshold != 3.0 {
		t.Errorf("got ScoreThreshold=%v, want 3.0", cfg.Detection.ScoreThreshold)
	}
	// Unset values keep defaults.
	if cfg.Detection.RepeatEditThreshold != 3 {
		t.Errorf("got RepeatEditThreshold=%d, want default 3", cfg.Detection.RepeatEditThreshold)
	}
	if cfg.API.BaseURL == "" {
		t.Error("BaseURL should keep its default")
	}
}

func TestLoader_Load_ProjectOverridesGlobal(t *testing.T) {
	tmpDir := t.TempDir()
	globalPath := filepath.Join(tmpDir, "global", ".commontrace", "config.yaml")
	projectPath := filepath.Join(tmpDir, "project", ".commontrace", "config.yaml")

	writeConfig(t, globalPath, `detection:
  score_threshold: 3.0
  repeat_edit_threshold: 4
`)
	writeConfig(t, projectPath, `detection:
  score_threshold: 6.0
`)

	loader := &Loader{globalPath: globalPath, projectPath: projectPath}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Detection.ScoreThreshold != 6.0 {
		t.Errorf("got ScoreThreshold=%v, want project value 6.0", cfg.Detection.ScoreThreshold)
	}
	if cfg.Detection.RepeatEditThreshold != 4 {
		t.Errorf("got RepeatEditThreshold=%d, want global value 4", cfg.Detection.RepeatEditThreshold)
	}
}

func TestLoader_Load_WeightOverridesMerge(t *testing.T) {
	tmpDir := t.TempDir()
	globalPath := filepath.Join(tmpDir, "global", ".commontrace", "config.yaml")
	projectPath := filepath.Join(tmpDir, "project", ".commontrace", "config.yaml")

	writeConfig(t, globalPath, `detection:
  weights:
    error_resolution: 5.0
    workaround: 2.0
`)
	writeConfig(t, projectPath, `detection:
  weights:
    workaround: 0.5
`)

	loader := &Loader{globalPath: globalPath, projectPath: projectPath}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Detection.Weights["error_resolution"] != 5.0 {
		t.Errorf("got error_resolution=%v, want global 5.0", cfg.Detection.Weights["error_resolution"])
	}
	if cfg.Detection.Weights["workaround"] != 0.5 {
		t.Errorf("got workaround=%v, want project 0.5", cfg.Detection.Weights["workaround"])
	}
}

func TestLoader_LoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "custom.yaml")
	writeConfig(t, path, `detection:
  session_gap: 15m
`)

	loader := &Loader{}
	cfg, err := loader.LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Detection.SessionGap != "15m" {
		t.Errorf("got SessionGap=%q, want 15m", cfg.Detection.SessionGap)
	}
	if cfg.Detection.ScoreThreshold != 4.0 {
		t.Errorf("got ScoreThreshold=%v, want default 4.0", cfg.Detection.ScoreThreshold)
	}
}

func TestLoader_LoadFromFile_Missing(t *testing.T) {
	loader := &Loader{}
	if _, err := loader.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoader_Load_MalformedYAML(t *testing.T) {
	tmpDir := t.TempDir()
	globalPath := filepath.Join(tmpDir, ".commontrace", "config.yaml")
	writeConfig(t, globalPath, "detection: [not: a: mapping")

	loader := &Loader{
		globalPath:  globalPath,
		projectPath: filepath.Join(tmpDir, "project", ".commontrace", "config.yaml"),
	}
	if _, err := loader.Load(); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestExists(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	if Exists(path) {
		t.Error("Exists returned true for missing file")
	}
	writeConfig(t, path, "version: \"1\"\n")
	if !Exists(path) {
		t.Error("Exists returned false for existing file")
	}
}
