package kb

import (
	"fmt"
	"strings"
)

const (
	contextPreview  = 100
	solutionPreview = 200
)

// FormatTrace renders one search result as a single line suitable for
// injection into the agent's context.
func FormatTrace(t Trace) string {
	title := t.Title
	if title == "" {
		title = "Untitled"
	}
	parts := []string{fmt.Sprintf("[%s]", title)}
	if t.ContextText != "" {
		parts = append(parts, truncate(t.ContextText, contextPreview)+"...")
	}
	if t.SolutionText != "" {
		parts = append(parts, "Solution: "+truncate(t.SolutionText, solutionPreview)+"...")
	}
	if t.ID != "" {
		parts = append(parts, fmt.Sprintf("(trace ID: %s)", t.ID))
	}
	return strings.Join(parts, " ")
}

// FormatTraces renders a numbered result list.
func FormatTraces(traces []Trace) string {
	lines := make([]string, 0, len(traces))
	for i, t := range traces {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, FormatTrace(t)))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
