package detect

import "time"

// Episode brackets one failure-to-resolution arc: it opens on the first
// command failure, accumulates repeat failures and the files edited while
// open, and closes when a similar command later succeeds. Episodes are the
// deduplication unit for episode-shaped patterns, so a single fix arc
// scores once no matter how many failures preceded it.
type Episode struct {
	ID         int       `json:"id"`
	Program    string    `json:"program,omitempty"`
	FailedPath string    `json:"failed_path,omitempty"`
	Failures   int       `json:"failures"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at,omitempty"`
	Closed     bool      `json:"closed"`
	Edits      []string  `json:"edits,omitempty"`
}

// RecordEdit appends a distinct edited path to the episode.
func (e *Episode) RecordEdit(path string) {
	for _, p := range e.Edits {
		if p == path {
			return
		}
	}
	e.Edits = append(e.Edits, path)
}

// TouchedFailedPath reports whether any edit hit the path whose tooling
// originally failed. A resolution that never touches it is a workaround.
func (e *Episode) TouchedFailedPath() bool {
	if e.FailedPath == "" {
		return false
	}
	for _, p := range e.Edits {
		if p == e.FailedPath {
			return true
		}
	}
	return false
}

// Duration returns the open-to-close span of a closed episode.
func (e *Episode) Duration() time.Duration {
	if !e.Closed {
		return 0
	}
	return e.ClosedAt.Sub(e.OpenedAt)
}

// SessionState is the accumulated structural state of one session. It is
// rebuilt from its JSON snapshot on every hook invocation, so every field
// must serialize. LastSeq makes event replay idempotent: events at or
// below it are ignored.
type SessionState struct {
	SessionID   string    `json:"session_id"`
	StartedAt   time.Time `json:"started_at"`
	LastSeq     int64     `json:"last_seq"`
	LastEventAt time.Time `json:"last_event_at,omitempty"`

	Signals []Signal `json:"signals,omitempty"`

	// Per-file edit tracking. A burst is a run of edits to one file with
	// no window-sized pause between them; the repeat-edit signal fires at
	// most once per threshold per burst.
	EditCounts    map[string]int       `json:"edit_counts,omitempty"`
	BurstCounts   map[string]int       `json:"burst_counts,omitempty"`
	BurstIndex    map[string]int       `json:"burst_index,omitempty"`
	RepeatFiredAt map[string]int       `json:"repeat_fired_at,omitempty"`
	LastEdited    map[string]time.Time `json:"last_edited,omitempty"`

	// Breadth tracking across the whole session.
	Files        map[string]bool `json:"files,omitempty"`
	Dirs         map[string]bool `json:"dirs,omitempty"`
	BreadthFired bool            `json:"breadth_fired,omitempty"`

	// Extension sweep tracking for migration detection.
	ExtFiles map[string]map[string]bool `json:"ext_files,omitempty"`

	// Episodes, with the open ones indexed by episode key. Command
	// failures key on the program token, host-level tool failures on a
	// "tool:" prefixed name, so concurrent failure arcs of different
	// programs stay separate and close independently.
	Episodes      []*Episode     `json:"episodes,omitempty"`
	OpenEpisodes  map[string]int `json:"open_episodes,omitempty"`
	NextEpisodeID int            `json:"next_episode_id"`

	// Research-then-implement tracking.
	ResearchSeqs       []int64 `json:"research_seqs,omitempty"`
	EditsAfterResearch int     `json:"edits_after_research,omitempty"`

	// Test fail-fix-pass cycle tracking.
	LastTestFailSeq    int64    `json:"last_test_fail_seq,omitempty"`
	EditsSinceTestFail []string `json:"edits_since_test_fail,omitempty"`

	// ActionsSeen is true once any command or edit was observed; a
	// correction with no prior action carries no signal.
	ActionsSeen bool `json:"actions_seen,omitempty"`
}

// NewSessionState returns an empty state for a fresh session.
func NewSessionState(sessionID string, now time.Time) *SessionState {
	s := &SessionState{SessionID: sessionID, StartedAt: now, NextEpisodeID: 1}
	s.init()
	return s
}

func (s *SessionState) init() {
	if s.EditCounts == nil {
		s.EditCounts = make(map[string]int)
	}
	if s.BurstCounts == nil {
		s.BurstCounts = make(map[string]int)
	}
	if s.LastEdited == nil {
		s.LastEdited = make(map[string]time.Time)
	}
	if s.BurstIndex == nil {
		s.BurstIndex = make(map[string]int)
	}
	if s.RepeatFiredAt == nil {
		s.RepeatFiredAt = make(map[string]int)
	}
	if s.Files == nil {
		s.Files = make(map[string]bool)
	}
	if s.Dirs == nil {
		s.Dirs = make(map[string]bool)
	}
	if s.ExtFiles == nil {
		s.ExtFiles = make(map[string]map[string]bool)
	}
	if s.OpenEpisodes == nil {
		s.OpenEpisodes = make(map[string]int)
	}
	if s.NextEpisodeID == 0 {
		s.NextEpisodeID = 1
	}
}

// Record appends a signal to the ordered log.
func (s *SessionState) Record(sig Signal) {
	s.Signals = append(s.Signals, sig)
}

// Reset clears all accumulated state, keeping only the session identity.
// A new logical session in the same process starts from zero.
func (s *SessionState) Reset(now time.Time) {
	id := s.SessionID
	*s = SessionState{SessionID: id, StartedAt: now, NextEpisodeID: 1}
	s.init()
}

// Episode returns the episode with the given id, or nil.
func (s *SessionState) Episode(id int) *Episode {
	for _, ep := range s.Episodes {
		if ep.ID == id {
			return ep
		}
	}
	return nil
}

// OpenEpisode returns the open episode for the given key, or nil.
func (s *SessionState) OpenEpisode(key string) *Episode {
	id := s.OpenEpisodes[key]
	if id == 0 {
		return nil
	}
	ep := s.Episode(id)
	if ep == nil || ep.Closed {
		return nil
	}
	return ep
}

// OpenEpisodeList returns every episode still open, in log order.
func (s *SessionState) OpenEpisodeList() []*Episode {
	var open []*Episode
	for _, ep := range s.Episodes {
		if !ep.Closed {
			open = append(open, ep)
		}
	}
	return open
}

func (s *SessionState) openEpisode(key, program, path string, now time.Time) *Episode {
	ep := &Episode{
		ID:         s.NextEpisodeID,
		Program:    program,
		FailedPath: path,
		Failures:   1,
		OpenedAt:   now,
	}
	s.NextEpisodeID++
	s.Episodes = append(s.Episodes, ep)
	s.OpenEpisodes[key] = ep.ID
	return ep
}

func (s *SessionState) closeEpisode(key string, ep *Episode, now time.Time) {
	ep.Closed = true
	ep.ClosedAt = now
	delete(s.OpenEpisodes, key)
}
