package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	globalConfigDir  = ".commontrace"
	projectConfigDir = ".commontrace"
	configFileName   = "config.yaml"
)

// Loader handles loading and merging configuration files
type Loader struct {
	globalPath  string
	projectPath string
}

// NewLoader creates a new configuration loader
func NewLoader(projectDir string) (*Loader, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	if projectDir == "" {
		projectDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	return &Loader{
		globalPath:  filepath.Join(homeDir, globalConfigDir, configFileName),
		projectPath: filepath.Join(projectDir, projectConfigDir, configFileName),
	}, nil
}

// Load loads and merges configuration from defaults, global, and project files
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	globalCfg, err := l.loadFile(l.globalPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load global config: %w", err)
	}
	if globalCfg != nil {
		cfg = mergeConfigs(cfg, globalCfg)
	}

	projectCfg, err := l.loadFile(l.projectPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load project config: %w", err)
	}
	if projectCfg != nil {
		cfg = mergeConfigs(cfg, projectCfg)
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific file, merged over defaults
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	cfg, err := l.loadFile(path)
	if err != nil {
		return nil, err
	}
	return mergeConfigs(DefaultConfig(), cfg), nil
}

func (l *Loader) loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// mergeConfigs merges two configurations, with override taking precedence
// for every value that override actually sets.
func mergeConfigs(base, override *Config) *Config {
	result := &Config{
		Version: coalesce(override.Version, base.Version),
		Settings: Settings{
			LogLevel: coalesce(override.Settings.LogLevel, base.Settings.LogLevel),
			LogFile:  coalesce(override.Settings.LogFile, base.Settings.LogFile),
		},
		API: API{
			BaseURL:   coalesce(override.API.BaseURL, base.API.BaseURL),
			APIKey:    coalesce(override.API.APIKey, base.API.APIKey),
			Timeout:   coalesce(override.API.Timeout, base.API.Timeout),
			Telemetry: base.API.Telemetry,
		},
		Store: Store{
			Enabled: base.Store.Enabled,
			Path:    coalesce(override.Store.Path, base.Store.Path),
		},
		Detection: mergeDetection(base.Detection, override.Detection),
	}

	return result
}

func mergeDetection(base, override Detection) Detection {
	result := base

	if override.ScoreThreshold > 0 {
		result.ScoreThreshold = override.ScoreThreshold
	}
	if override.RepeatEditThreshold > 0 {
		result.RepeatEditThreshold = override.RepeatEditThreshold
	}
	if override.RepeatEditWindow != "" {
		result.RepeatEditWindow = override.RepeatEditWindow
	}
	if override.GenerationEditThreshold > 0 {
		result.GenerationEditThreshold = override.GenerationEditThreshold
	}
	if override.BreadthMinFiles > 0 {
		result.BreadthMinFiles = override.BreadthMinFiles
	}
	if override.BreadthMinDirs > 0 {
		result.BreadthMinDirs = override.BreadthMinDirs
	}
	if override.MigrationMinFiles > 0 {
		result.MigrationMinFiles = override.MigrationMinFiles
	}
	if override.SessionGap != "" {
		result.SessionGap = override.SessionGap
	}
	if override.RewriteSizeBytes > 0 {
		result.RewriteSizeBytes = override.RewriteSizeBytes
	}
	if len(override.TestPrograms) > 0 {
		result.TestPrograms = override.TestPrograms
	}

	// Weight overrides are per-pattern, not wholesale.
	if len(override.Weights) > 0 {
		merged := make(map[string]float64, len(base.Weights)+len(override.Weights))
		for k, v := range base.Weights {
			merged[k] = v
		}
		for k, v := range override.Weights {
			merged[k] = v
		}
		result.Weights = merged
	}

	result.Paths = mergePaths(base.Paths, override.Paths)
	result.Cooldowns = mergeCooldowns(base.Cooldowns, override.Cooldowns)

	return result
}

func mergePaths(base, override PathHeuristics) PathHeuristics {
	result := base
	if len(override.ConfigExtensions) > 0 {
		result.ConfigExtensions = override.ConfigExtensions
	}
	if len(override.ConfigNames) > 0 {
		result.ConfigNames = override.ConfigNames
	}
	if len(override.SecurityFragments) > 0 {
		result.SecurityFragments = override.SecurityFragments
	}
	if len(override.ManifestNames) > 0 {
		result.ManifestNames = override.ManifestNames
	}
	if len(override.InfraFragments) > 0 {
		result.InfraFragments = override.InfraFragments
	}
	if len(override.TestFragments) > 0 {
		result.TestFragments = override.TestFragments
	}
	if len(override.SourceLanguages) > 0 {
		result.SourceLanguages = override.SourceLanguages
	}
	return result
}

func mergeCooldowns(base, override Cooldowns) Cooldowns {
	return Cooldowns{
		ErrorSearch:     coalesce(override.ErrorSearch, base.ErrorSearch),
		ErrorRecurrence: coalesce(override.ErrorRecurrence, base.ErrorRecurrence),
		DomainEntry:     coalesce(override.DomainEntry, base.DomainEntry),
		PreCode:         coalesce(override.PreCode, base.PreCode),
	}
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// GlobalConfigPath returns the path to the global config file
func (l *Loader) GlobalConfigPath() string {
	return l.globalPath
}

// ProjectConfigPath returns the path to the project config file
func (l *Loader) ProjectConfigPath() string {
	return l.projectPath
}

// Exists checks if a config file exists at the given path
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
