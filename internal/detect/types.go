// Package detect implements the session knowledge-detection engine.
//
// The engine watches the stream of tool-use events in one agent session and
// infers, from structural evidence only (exit codes, paths, counts,
// timestamps, ordering), whether the session passed through a
// didn't-know-to-now-knows transition worth contributing to the knowledge
// base. It never reads message text, diff content, or file contents.
package detect

import "time"

// EventKind classifies a raw tool-use event from the host
type EventKind string

// Event kinds the extractor understands. Anything else is ignored.
const (
	EventCommand     EventKind = "command"
	EventFileEdit    EventKind = "file_edit"
	EventFileRead    EventKind = "file_read"
	EventSearch      EventKind = "search"
	EventWebLookup   EventKind = "web_lookup"
	EventCorrection  EventKind = "correction"
	EventToolFailure EventKind = "tool_failure"
)

// ToolEvent is one normalized tool-use event. The command string and path
// are opaque tokens: only the command's first whitespace-delimited token,
// the payload byte length, and the path itself are ever inspected.
type ToolEvent struct {
	Seq         int64
	Kind        EventKind
	Tool        string
	Path        string
	Command     string
	ExitCode    int
	Failed      bool
	PayloadSize int
	Time        time.Time
}

// SignalKind names a normalized structural fact derived from an event
type SignalKind string

// Signal kinds emitted by the extractor
const (
	SignalCommandFailed        SignalKind = "command_failed"
	SignalCommandSucceeded     SignalKind = "command_succeeded"
	SignalFileEdited           SignalKind = "file_edited"
	SignalFileEditedRepeatedly SignalKind = "file_edited_repeatedly"
	SignalTestRun              SignalKind = "test_run"
	SignalManyFilesTouched     SignalKind = "many_files_touched"
	SignalLongSessionGap       SignalKind = "long_session_gap"
	SignalResearchLookup       SignalKind = "research_lookup"
	SignalUserCorrection       SignalKind = "user_correction"
	SignalWholesaleRewrite     SignalKind = "wholesale_rewrite"
)

// Signal is one immutable derived fact, appended to the session's ordered
// signal log. Order is significant: the classifier detects
// failure-edits-success shapes from it.
type Signal struct {
	Seq     int64      `json:"seq"`
	Kind    SignalKind `json:"kind"`
	Path    string     `json:"path,omitempty"`
	Program string     `json:"program,omitempty"`
	Count   int        `json:"count,omitempty"`
	Dirs    int        `json:"dirs,omitempty"`
	Passed  bool       `json:"passed,omitempty"`
	Episode int        `json:"episode,omitempty"`
	At      time.Time  `json:"at"`
}

// Candidate is the classifier's output: one pattern detection with its
// weight contribution and supporting metadata. Candidates are additive;
// a session can match several patterns.
type Candidate struct {
	Pattern    string
	Weight     float64
	EpisodeKey string
	Meta       map[string]interface{}
	At         time.Time
}

// Recommendation is the terminal artifact produced once at session stop.
type Recommendation struct {
	ShouldPrompt    bool                   `json:"should_prompt"`
	Score           float64                `json:"score"`
	DominantPattern string                 `json:"dominant_pattern,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	Hint            string                 `json:"hint,omitempty"`
	DedupKey        string                 `json:"dedup_key,omitempty"`
}
