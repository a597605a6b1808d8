// Package probe detects the project context at session start. It looks
// only at names: top-level directory entries, file extensions, and the
// presence of well-known manifests. It never reads file contents and it
// degrades to an empty context on any failure, so session startup can
// never break on it.
package probe

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// Context is the structural fingerprint of a project directory.
type Context struct {
	Language    string `json:"language,omitempty"`
	Framework   string `json:"framework,omitempty"`
	SourceFiles int    `json:"source_files,omitempty"`
}

// Empty reports whether no coding context was detected.
func (c Context) Empty() bool { return c.Language == "" }

// Query renders the context as a knowledge-base search query.
func (c Context) Query() string {
	if c.Empty() {
		return ""
	}
	parts := []string{c.Language}
	if c.Framework != "" && c.Framework != c.Language {
		parts = append(parts, c.Framework)
	}
	parts = append(parts, "common patterns and solutions")
	return strings.Join(parts, " ")
}

// Fingerprint renders the context as a compact identity string for the
// local store.
func (c Context) Fingerprint() string {
	if c.Empty() {
		return ""
	}
	if c.Framework == "" || c.Framework == c.Language {
		return c.Language
	}
	return c.Language + "/" + c.Framework
}

// manifests maps well-known manifest files to an ecosystem tag, checked
// in order. Presence only; contents are never read.
var manifests = []struct {
	name string
	tag  string
}{
	{"pyproject.toml", "python"},
	{"package.json", "node"},
	{"Cargo.toml", "rust"},
	{"go.mod", "go"},
	{"Gemfile", "ruby"},
}

// Detect probes dir for a coding context. The languages table maps file
// extensions to language names. A directory without a .git entry, without
// recognizable source files, or probed past the context deadline yields
// an empty context.
func Detect(ctx context.Context, dir string, languages map[string]string) Context {
	if ctx.Err() != nil {
		return Context{}
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return Context{}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Context{}
	}

	counts := make(map[string]int)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, known := languages[ext]; known {
			counts[ext]++
		}
	}
	if len(counts) == 0 {
		return Context{}
	}
	if ctx.Err() != nil {
		return Context{}
	}

	primary := ""
	total := 0
	for ext, n := range counts {
		total += n
		if primary == "" || n > counts[primary] || (n == counts[primary] && ext < primary) {
			primary = ext
		}
	}

	out := Context{Language: languages[primary], SourceFiles: total}
	for _, m := range manifests {
		if _, err := os.Stat(filepath.Join(dir, m.name)); err == nil {
			out.Framework = m.tag
			break
		}
	}
	return out
}
