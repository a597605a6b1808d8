package config

import "time"

// Config represents the complete tracehook configuration
type Config struct {
	Version   string    `yaml:"version"`
	Settings  Settings  `yaml:"settings"`
	API       API       `yaml:"api"`
	Detection Detection `yaml:"detection"`
	Store     Store     `yaml:"store"`
}

// Settings contains global configuration settings
type Settings struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file,omitempty"`
}

// API configures the remote CommonTrace knowledge-base client
type API struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key,omitempty"`
	Timeout   string `yaml:"timeout,omitempty"`
	Telemetry bool   `yaml:"telemetry"`
}

// Store configures the local cross-session SQLite store
type Store struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// Detection holds every tunable used by the knowledge-detection engine.
// All of these are configuration, not hidden constants: the defaults below
// are starting points, not claimed optima.
type Detection struct {
	// ScoreThreshold is the inclusive session score at which the Stop
	// hook prompts for a contribution.
	ScoreThreshold float64 `yaml:"score_threshold"`

	// RepeatEditThreshold is the per-file edit count that fires
	// file_edited_repeatedly, bounded by RepeatEditWindow.
	RepeatEditThreshold int    `yaml:"repeat_edit_threshold"`
	RepeatEditWindow    string `yaml:"repeat_edit_window"`

	// GenerationEditThreshold is the per-file edit count for the
	// generation_effect pattern.
	GenerationEditThreshold int `yaml:"generation_edit_threshold"`

	// BreadthMinFiles / BreadthMinDirs gate the many_files_touched signal.
	BreadthMinFiles int `yaml:"breadth_min_files"`
	BreadthMinDirs  int `yaml:"breadth_min_dirs"`

	// MigrationMinFiles is the number of edited files sharing one
	// extension that qualifies as a migration sweep.
	MigrationMinFiles int `yaml:"migration_min_files"`

	// SessionGap is the idle interval that emits long_session_gap and
	// closes any open edit burst.
	SessionGap string `yaml:"session_gap"`

	// RewriteSizeBytes is the payload size class above which an edit
	// counts as a wholesale rewrite (byte length only, never content).
	RewriteSizeBytes int `yaml:"rewrite_size_bytes"`

	// Weights overrides the built-in per-pattern weights.
	Weights map[string]float64 `yaml:"weights,omitempty"`

	Paths     PathHeuristics `yaml:"paths"`
	Cooldowns Cooldowns      `yaml:"cooldowns"`

	// TestPrograms lists command program tokens treated as test runners.
	TestPrograms []string `yaml:"test_programs,omitempty"`
}

// PathHeuristics classifies file paths by name alone (never by content).
type PathHeuristics struct {
	ConfigExtensions  []string          `yaml:"config_extensions,omitempty"`
	ConfigNames       []string          `yaml:"config_names,omitempty"`
	SecurityFragments []string          `yaml:"security_fragments,omitempty"`
	ManifestNames     []string          `yaml:"manifest_names,omitempty"`
	InfraFragments    []string          `yaml:"infra_fragments,omitempty"`
	TestFragments     []string          `yaml:"test_fragments,omitempty"`
	SourceLanguages   map[string]string `yaml:"source_languages,omitempty"`
}

// Cooldowns throttles the mid-session search triggers.
type Cooldowns struct {
	ErrorSearch     string `yaml:"error_search"`
	ErrorRecurrence string `yaml:"error_recurrence"`
	DomainEntry     string `yaml:"domain_entry"`
	PreCode         string `yaml:"pre_code"`
}

// APITimeout returns the parsed remote-call timeout.
func (a *API) APITimeout() time.Duration {
	return parseDuration(a.Timeout, 3*time.Second)
}

// RepeatWindow returns the parsed repeat-edit window.
func (d *Detection) RepeatWindow() time.Duration {
	return parseDuration(d.RepeatEditWindow, 10*time.Minute)
}

// GapWindow returns the parsed session-gap interval.
func (d *Detection) GapWindow() time.Duration {
	return parseDuration(d.SessionGap, 30*time.Minute)
}

// Cooldown returns the parsed cooldown for a named trigger.
func (c *Cooldowns) Cooldown(trigger string) time.Duration {
	switch trigger {
	case "error_search":
		return parseDuration(c.ErrorSearch, 30*time.Second)
	case "error_recurrence":
		return parseDuration(c.ErrorRecurrence, 60*time.Second)
	case "domain_entry":
		return parseDuration(c.DomainEntry, 120*time.Second)
	case "pre_code":
		return parseDuration(c.PreCode, 180*time.Second)
	default:
		return time.Minute
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Settings: Settings{
			LogLevel: "info",
		},
		API: API{
			BaseURL:   "https://api.commontrace.org",
			Timeout:   "3s",
			Telemetry: true,
		},
		Store: Store{
			Enabled: true,
		},
		Detection: Detection{
			ScoreThreshold:          4.0,
			RepeatEditThreshold:     3,
			RepeatEditWindow:        "10m",
			GenerationEditThreshold: 8,
			BreadthMinFiles:         5,
			BreadthMinDirs:          3,
			MigrationMinFiles:       5,
			SessionGap:              "30m",
			RewriteSizeBytes:        2048,
			Paths:                   DefaultPathHeuristics(),
			TestPrograms: []string{
				"pytest", "go", "npm", "npx", "jest", "cargo",
				"mvn", "gradle", "rspec", "phpunit", "make",
			},
		},
	}
}

// DefaultPathHeuristics returns the built-in path classification tables.
func DefaultPathHeuristics() PathHeuristics {
	return PathHeuristics{
		ConfigExtensions: []string{
			".json", ".yaml", ".yml", ".toml", ".ini", ".env", ".cfg",
			".conf", ".config", ".properties", ".xml", ".plist",
		},
		ConfigNames: []string{
			"config", "settings", "setup", ".env", "nginx", "apache",
			"makefile", "tsconfig", "webpack", "vite", "babel",
			"eslint", "prettier", "pyproject",
		},
		SecurityFragments: []string{
			"auth", "crypto", "secret", "credential", "token",
			"password", "permission", "acl", "cert", "tls", "oauth",
		},
		ManifestNames: []string{
			"package.json", "package-lock.json", "yarn.lock", "pnpm-lock.yaml",
			"go.mod", "go.sum", "cargo.toml", "cargo.lock", "gemfile",
			"gemfile.lock", "requirements.txt", "pyproject.toml", "poetry.lock",
			"pom.xml", "build.gradle", "composer.json", "composer.lock",
		},
		InfraFragments: []string{
			"dockerfile", "docker-compose", "compose", "helm", "chart",
			"k8s", "kubernetes", "terraform", ".tf", "ansible",
			"deploy", "ci", ".github/workflows", ".gitlab-ci",
		},
		TestFragments: []string{
			"_test.", ".test.", ".spec.", "test_", "/tests/", "/test/",
			"/spec/", "/__tests__/",
		},
		SourceLanguages: map[string]string{
			".py":   "python",
			".ts":   "typescript",
			".tsx":  "typescript",
			".js":   "javascript",
			".jsx":  "javascript",
			".go":   "go",
			".rs":   "rust",
			".java": "java",
			".rb":   "ruby",
		},
	}
}
