package detect

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/commontrace/tracehook/internal/config"
)

// Engine is the incremental detection pipeline: extractor, classifier and
// scorer over one session's state. Observe is O(rules) per event; nothing
// rescans the signal log. The engine holds no goroutines and no I/O, so
// it can be rebuilt from a snapshot on every short-lived hook invocation.
type Engine struct {
	cfg   *config.Detection
	paths *PathClass
	state *SessionState
	score *ScoreState
	rules []rule
}

// New returns an engine with empty state for the given session.
func New(cfg *config.Detection, sessionID string, now time.Time) *Engine {
	return &Engine{
		cfg:   cfg,
		paths: NewPathClass(cfg.Paths),
		state: NewSessionState(sessionID, now),
		score: NewScoreState(),
		rules: defaultRules(),
	}
}

// Restore rebuilds an engine from a persisted snapshot.
func Restore(cfg *config.Detection, snap *Snapshot) *Engine {
	e := New(cfg, snap.State.SessionID, snap.State.StartedAt)
	snap.State.init()
	e.state = snap.State
	if snap.Score != nil {
		snap.Score.init()
		e.score = snap.Score
	}
	return e
}

// State exposes the session state for inspection and persistence.
func (e *Engine) State() *SessionState { return e.state }

// Score exposes the accumulated score state.
func (e *Engine) Score() *ScoreState { return e.score }

// Snapshot captures everything needed to resume in a later process.
func (e *Engine) Snapshot() *Snapshot {
	return &Snapshot{State: e.state, Score: e.score}
}

// Reset discards all accumulated session evidence.
func (e *Engine) Reset(now time.Time) {
	e.state.Reset(now)
	e.score = NewScoreState()
}

// Observe folds one event into the session. It returns the pattern
// candidates newly accepted by the scorer, which callers may use for
// logging or mid-session triggers. Events at or below the last seen
// sequence number are replays and change nothing.
func (e *Engine) Observe(ev ToolEvent) []Candidate {
	st := e.state
	if ev.Seq <= st.LastSeq {
		return nil
	}
	now := ev.Time
	if now.IsZero() {
		now = time.Now()
	}

	var sigs []Signal
	emit := func(sig Signal) {
		sig.Seq = ev.Seq
		sig.At = now
		st.Record(sig)
		sigs = append(sigs, sig)
	}

	if !st.LastEventAt.IsZero() && now.Sub(st.LastEventAt) >= e.cfg.GapWindow() {
		emit(Signal{Kind: SignalLongSessionGap})
		for p := range st.BurstCounts {
			if st.BurstCounts[p] > 0 {
				st.BurstIndex[p]++
			}
			st.BurstCounts[p] = 0
			st.RepeatFiredAt[p] = 0
		}
	}

	switch ev.Kind {
	case EventCommand:
		e.observeCommand(ev, now, emit)
	case EventFileEdit:
		e.observeEdit(ev, now, emit)
	case EventWebLookup:
		st.ActionsSeen = true
		st.ResearchSeqs = append(st.ResearchSeqs, ev.Seq)
		emit(Signal{Kind: SignalResearchLookup})
	case EventCorrection:
		if st.ActionsSeen {
			emit(Signal{Kind: SignalUserCorrection})
		}
	case EventToolFailure:
		st.ActionsSeen = true
		ep := e.recordFailure("tool:"+ev.Tool, ev.Tool, ev.Path, now)
		emit(Signal{Kind: SignalCommandFailed, Program: ev.Tool, Path: ev.Path, Count: ep.Failures, Episode: ep.ID})
	case EventFileRead, EventSearch:
		st.ActionsSeen = true
	}

	st.LastSeq = ev.Seq
	st.LastEventAt = now

	var accepted []Candidate
	for _, sig := range sigs {
		for _, r := range e.rules {
			for _, c := range r.match(e, sig) {
				c.Pattern = r.pattern
				if c.Weight == 0 {
					c.Weight = e.weight(r.pattern)
				}
				c.At = now
				if e.score.Add(c) {
					accepted = append(accepted, c)
				}
			}
		}
	}
	return accepted
}

// Finish renders the terminal recommendation. It does not mutate state,
// so calling it repeatedly on a stable session is idempotent.
func (e *Engine) Finish() Recommendation {
	return Decide(e.score, e.cfg.ScoreThreshold)
}

func (e *Engine) observeCommand(ev ToolEvent, now time.Time, emit func(Signal)) {
	st := e.state
	st.ActionsSeen = true
	prog := firstToken(ev.Command)
	failed := ev.Failed || ev.ExitCode != 0

	if failed {
		ep := e.recordFailure(prog, prog, ev.Path, now)
		emit(Signal{Kind: SignalCommandFailed, Program: prog, Path: ev.Path, Count: ep.Failures, Episode: ep.ID})
		if e.isTestProgram(prog) {
			st.LastTestFailSeq = ev.Seq
			st.EditsSinceTestFail = nil
			emit(Signal{Kind: SignalTestRun, Program: prog, Passed: false})
		}
		return
	}

	closed := 0
	if ep := st.OpenEpisode(prog); ep != nil {
		st.closeEpisode(prog, ep, now)
		closed = ep.ID
	}
	emit(Signal{Kind: SignalCommandSucceeded, Program: prog, Episode: closed})
	if e.isTestProgram(prog) {
		emit(Signal{Kind: SignalTestRun, Program: prog, Passed: true})
	}
}

// recordFailure opens a failure episode for the given key, or folds a
// repeat failure of the same key into the one already open. Failures of
// other programs leave each other's episodes untouched.
func (e *Engine) recordFailure(key, program, path string, now time.Time) *Episode {
	st := e.state
	if ep := st.OpenEpisode(key); ep != nil {
		ep.Failures++
		if ep.FailedPath == "" {
			ep.FailedPath = path
		}
		return ep
	}
	return st.openEpisode(key, program, path, now)
}

func (e *Engine) observeEdit(ev ToolEvent, now time.Time, emit func(Signal)) {
	st := e.state
	st.ActionsSeen = true
	path := ev.Path
	if path == "" {
		return
	}

	if last, ok := st.LastEdited[path]; ok && now.Sub(last) >= e.cfg.RepeatWindow() {
		if st.BurstCounts[path] > 0 {
			st.BurstIndex[path]++
		}
		st.BurstCounts[path] = 0
		st.RepeatFiredAt[path] = 0
	}
	st.EditCounts[path]++
	st.BurstCounts[path]++
	st.LastEdited[path] = now
	emit(Signal{Kind: SignalFileEdited, Path: path, Count: st.EditCounts[path]})

	burst := st.BurstCounts[path]
	if t := e.cfg.RepeatEditThreshold; t > 0 && burst >= t && st.RepeatFiredAt[path] < t {
		st.RepeatFiredAt[path] = t
		emit(Signal{Kind: SignalFileEditedRepeatedly, Path: path, Count: burst})
	}
	if t := e.cfg.GenerationEditThreshold; t > 0 && burst >= t && st.RepeatFiredAt[path] < t {
		st.RepeatFiredAt[path] = t
		emit(Signal{Kind: SignalFileEditedRepeatedly, Path: path, Count: burst})
	}

	st.Files[path] = true
	st.Dirs[filepath.Dir(path)] = true
	if !st.BreadthFired && len(st.Files) >= e.cfg.BreadthMinFiles && len(st.Dirs) >= e.cfg.BreadthMinDirs {
		st.BreadthFired = true
		emit(Signal{Kind: SignalManyFilesTouched, Count: len(st.Files), Dirs: len(st.Dirs)})
	}

	if e.paths.Language(path) != "" {
		ext := strings.ToLower(filepath.Ext(path))
		if st.ExtFiles[ext] == nil {
			st.ExtFiles[ext] = make(map[string]bool)
		}
		st.ExtFiles[ext][path] = true
	}

	for _, ep := range st.OpenEpisodeList() {
		ep.RecordEdit(path)
	}
	if len(st.ResearchSeqs) > 0 {
		st.EditsAfterResearch++
	}
	if st.LastTestFailSeq > 0 && !e.paths.IsTest(path) {
		st.EditsSinceTestFail = appendDistinct(st.EditsSinceTestFail, path)
	}

	if e.cfg.RewriteSizeBytes > 0 && ev.PayloadSize >= e.cfg.RewriteSizeBytes {
		emit(Signal{Kind: SignalWholesaleRewrite, Path: path, Count: burst})
	}
}

func (e *Engine) weight(pattern string) float64 {
	if w, ok := e.cfg.Weights[pattern]; ok {
		return w
	}
	return defaultWeights[pattern]
}

func (e *Engine) isTestProgram(prog string) bool {
	for _, p := range e.cfg.TestPrograms {
		if prog == p {
			return true
		}
	}
	return false
}

// firstToken returns the first whitespace-delimited token of a command.
// The rest of the command line is never inspected.
func firstToken(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	return filepath.Base(fields[0])
}

func appendDistinct(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
