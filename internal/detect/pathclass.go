package detect

import (
	"path/filepath"
	"strings"

	"github.com/commontrace/tracehook/internal/config"
)

// PathClass classifies file paths by name alone. Classification feeds the
// pattern rules: a failure episode resolved by editing an auth-related file
// is security_hardening, one resolved by editing a dependency manifest is
// dependency_resolution, and so on. File contents are never read.
type PathClass struct {
	heuristics config.PathHeuristics
}

// NewPathClass builds a classifier from the configured heuristic tables.
func NewPathClass(h config.PathHeuristics) *PathClass {
	return &PathClass{heuristics: h}
}

// IsConfig reports whether the path names a configuration file.
func (p *PathClass) IsConfig(path string) bool {
	lower := strings.ToLower(path)
	ext := filepath.Ext(lower)
	for _, e := range p.heuristics.ConfigExtensions {
		if ext == e {
			return true
		}
	}
	base := filepath.Base(lower)
	for _, name := range p.heuristics.ConfigNames {
		if strings.Contains(base, name) {
			return true
		}
	}
	return false
}

// IsSecurity reports whether the path names security-relevant code.
func (p *PathClass) IsSecurity(path string) bool {
	lower := strings.ToLower(path)
	for _, frag := range p.heuristics.SecurityFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// IsManifest reports whether the path is a dependency manifest or lockfile.
func (p *PathClass) IsManifest(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	for _, name := range p.heuristics.ManifestNames {
		if base == name {
			return true
		}
	}
	return false
}

// IsInfra reports whether the path names infrastructure or CI material.
func (p *PathClass) IsInfra(path string) bool {
	lower := strings.ToLower(path)
	for _, frag := range p.heuristics.InfraFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// IsTest reports whether the path names a test file.
func (p *PathClass) IsTest(path string) bool {
	lower := strings.ToLower(path)
	for _, frag := range p.heuristics.TestFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// Language returns the source language for the path's extension, or "".
func (p *PathClass) Language(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	return p.heuristics.SourceLanguages[ext]
}
