package hooks

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/commontrace/tracehook/internal/config"
	"github.com/commontrace/tracehook/internal/detect"
	"github.com/commontrace/tracehook/internal/kb"
	"github.com/commontrace/tracehook/internal/localstore"
	"github.com/commontrace/tracehook/internal/logger"
	"github.com/commontrace/tracehook/internal/probe"
	"github.com/commontrace/tracehook/internal/statedir"

	"github.com/rs/zerolog"
)

const (
	// correctionWindow is how soon after agent activity a user prompt
	// counts as an interjection rather than a fresh request.
	correctionWindow = 30 * time.Second

	errorSimilarityThreshold = 0.75

	probeTimeout = 2 * time.Second

	firstTurnNudge = "Reminder: search CommonTrace (search_traces) before " +
		"solving coding problems. Contribute after solving."

	traceFooter = "\n\nUse get_trace with the ID to read the full solution."
)

var traceIDPattern = regexp.MustCompile(
	`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// Runner handles one hook invocation. Every handler is fail-open: an
// engine, store or network error degrades to a nil output and the host
// session continues undisturbed.
type Runner struct {
	cfg    *config.Config
	dir    *statedir.Dir
	client *kb.Client
	store  *localstore.Store
	cwd    string
	log    zerolog.Logger
}

// NewRunner wires a runner for the given session. The local store is
// optional; failure to open it disables cross-session features only.
func NewRunner(cfg *config.Config, sessionID, cwd string) (*Runner, error) {
	dir, err := statedir.Open(sessionID)
	if err != nil {
		return nil, fmt.Errorf("opening session state: %w", err)
	}
	r := &Runner{
		cfg:    cfg,
		dir:    dir,
		client: kb.New(&cfg.API),
		cwd:    cwd,
		log:    logger.WithSession(dir.SessionID()),
	}
	if cfg.Store.Enabled {
		store, err := localstore.Open(cfg.Store.Path)
		if err != nil {
			r.log.Debug().Err(err).Msg("local store unavailable")
		} else {
			r.store = store
		}
	}
	return r, nil
}

// Close releases the runner's resources.
func (r *Runner) Close() {
	if r.store != nil {
		_ = r.store.Close()
	}
}

// SessionID returns the resolved session id.
func (r *Runner) SessionID() string { return r.dir.SessionID() }

func (r *Runner) loadEngine(now time.Time) *detect.Engine {
	snap, err := detect.LoadSnapshot(r.dir.SnapshotPath())
	if err != nil {
		r.log.Debug().Err(err).Msg("snapshot unreadable, starting fresh")
	}
	if snap == nil {
		return detect.New(&r.cfg.Detection, r.dir.SessionID(), now)
	}
	return detect.Restore(&r.cfg.Detection, snap)
}

func (r *Runner) saveEngine(e *detect.Engine) {
	if err := detect.SaveSnapshot(r.dir.SnapshotPath(), e.Snapshot()); err != nil {
		r.log.Debug().Err(err).Msg("failed to persist engine snapshot")
	}
}

// HandleSessionStart probes the project, registers it in the local
// store, and seeds the session with relevant traces.
func (r *Runner) HandleSessionStart(in *SessionStartInput) *HookOutput {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	pctx := probe.Detect(ctx, r.cwd, r.cfg.Detection.Paths.SourceLanguages)

	if r.store != nil && r.cwd != "" {
		projectID, err := r.store.EnsureProject(r.cwd, pctx.Language, pctx.Framework)
		if err != nil {
			r.log.Debug().Err(err).Msg("project registration failed")
		} else {
			_ = r.store.StartSession(r.dir.SessionID(), projectID)
			_ = r.dir.SetProjectID(projectID)
			if pctx.Language != "" {
				_ = r.store.RecordEntity(projectID, "language", pctx.Language)
			}
			if enriched, err := r.store.ProjectContext(r.cwd); err == nil && enriched != nil {
				_ = r.dir.SetProjectContext(enriched)
			}
		}
	}

	if pctx.Empty() || !r.client.Available() {
		return nil
	}
	results, err := r.client.Search(context.Background(), pctx.Query(),
		[]string{pctx.Language}, r.dir.ProjectContext())
	if err != nil || len(results) == 0 {
		return nil
	}
	return NewContextOutput(SessionStart,
		"CommonTrace found traces relevant to this project:\n\n"+
			kb.FormatTraces(results)+traceFooter)
}

// HandleUserPromptSubmit bumps the turn counter, detects interjection
// corrections by timing, and nudges once on the first turn.
func (r *Runner) HandleUserPromptSubmit(in *UserPromptSubmitInput) *HookOutput {
	now := time.Now()
	count := r.dir.IncrementCounter("user_turn_count")

	e := r.loadEngine(now)
	last := e.State().LastEventAt
	if !last.IsZero() && now.Sub(last) < correctionWindow {
		seq := int64(r.dir.IncrementCounter("event_seq"))
		e.Observe(detect.ToolEvent{Seq: seq, Kind: detect.EventCorrection, Time: now})
		r.saveEngine(e)
	}

	if count == 1 {
		return NewContextOutput(UserPromptSubmit, firstTurnNudge)
	}
	return nil
}

// HandlePostToolUse feeds the engine one tool event and runs the
// mid-session search triggers.
func (r *Runner) HandlePostToolUse(in *PostToolUseInput) *HookOutput {
	now := time.Now()

	if strings.HasSuffix(in.ToolName, "contribute_trace") {
		r.recordContribution(in)
		return nil
	}
	if strings.HasSuffix(in.ToolName, "get_trace") {
		r.recordConsumption(in)
		return nil
	}

	// Drop host re-deliveries before a sequence number is issued;
	// a duplicate with a fresh seq would slip past the engine's guard.
	if r.dir.SeenEvent(in.ToolUseID) {
		return nil
	}

	seq := int64(r.dir.IncrementCounter("event_seq"))
	ev, errTail := NormalizeToolEvent(seq, in, now)
	if ev.Kind == "" {
		return nil
	}

	e := r.loadEngine(now)
	e.Observe(ev)
	r.saveEngine(e)

	switch {
	case ev.Kind == detect.EventCommand && ev.Failed && errTail != "":
		return r.errorTriggers(errTail)
	case ev.Kind == detect.EventFileEdit && ev.Path != "":
		return r.editTriggers(in.ToolName, ev.Path, e.State())
	}
	return nil
}

// HandlePostToolUseFailure records a host-level tool failure.
func (r *Runner) HandlePostToolUseFailure(in *PostToolUseFailureInput) *HookOutput {
	if r.dir.SeenEvent(in.ToolUseID) {
		return nil
	}
	now := time.Now()
	seq := int64(r.dir.IncrementCounter("event_seq"))

	e := r.loadEngine(now)
	e.Observe(detect.ToolEvent{
		Seq:    seq,
		Kind:   detect.EventToolFailure,
		Tool:   in.ToolName,
		Path:   editPath(in.ToolInput),
		Failed: true,
		Time:   now,
	})
	r.saveEngine(e)

	if r.store != nil && in.Error != "" {
		if projectID := r.dir.ProjectID(); projectID != 0 {
			sig := ErrorSignature(in.Error)
			_ = r.store.RecordErrorSignature(projectID, r.dir.SessionID(), sig, tail(in.Error))
		}
	}
	return nil
}

// HandleStop finalizes the session: persists history, reports telemetry,
// nudges for post-contribution amendments, and runs the decision gate.
func (r *Runner) HandleStop(in *StopInput) *HookOutput {
	if in.StopHookActive {
		return nil
	}
	now := time.Now()
	e := r.loadEngine(now)
	st := e.State()

	r.persistSession(st)

	if out := r.amendNudge(); out != nil {
		return out
	}

	rec := e.Finish()
	if !rec.ShouldPrompt {
		return nil
	}
	if r.dir.WasPrompted(rec.DedupKey) {
		return nil
	}
	r.dir.MarkPrompted(rec.DedupKey)
	return NewBlockOutput(contributionPrompt(rec))
}

// HandleSessionEnd persists whatever the session accumulated and removes
// the per-session state directory. No output is ever produced.
func (r *Runner) HandleSessionEnd() *HookOutput {
	e := r.loadEngine(time.Now())
	r.persistSession(e.State())
	if err := r.dir.Remove(); err != nil {
		r.log.Debug().Err(err).Msg("state dir cleanup failed")
	}
	return nil
}

func (r *Runner) persistSession(st *detect.SessionState) {
	if r.store == nil {
		return
	}
	sid := r.dir.SessionID()
	if _, err := r.store.ImportSignals(sid, st.Signals); err != nil {
		r.log.Debug().Err(err).Msg("signal import failed")
	}

	stats := localstore.SessionStats{
		ContributionCount: len(r.dir.Contributions()),
	}
	for _, sig := range st.Signals {
		if sig.Kind == detect.SignalCommandFailed {
			stats.ErrorCount++
		}
	}
	for _, ep := range st.Episodes {
		if ep.Closed {
			stats.ResolutionCount++
		}
	}
	if err := r.store.EndSession(sid, stats); err != nil {
		r.log.Debug().Err(err).Msg("session finalize failed")
	}

	if projectID := r.dir.ProjectID(); projectID != 0 {
		for ext := range st.ExtFiles {
			if lang := r.cfg.Detection.Paths.SourceLanguages[ext]; lang != "" {
				_ = r.store.RecordEntity(projectID, "language", lang)
			}
		}
	}

	if r.cfg.API.Telemetry && r.client.Available() {
		if triggerStats, err := r.store.TriggerEffectiveness(); err == nil {
			_ = r.client.ReportTriggerStats(context.Background(), sid, triggerStats)
		}
	}
}

// amendNudge prompts once when the conversation continued after a trace
// contribution: the newer turns may hold context worth folding in.
func (r *Runner) amendNudge() *HookOutput {
	contribs := r.dir.Contributions()
	if len(contribs) == 0 {
		return nil
	}
	turns := r.dir.ReadCounter("user_turn_count")
	turnsAt := r.dir.ReadCounter("user_turns_at_contribution")
	if turns <= turnsAt {
		return nil
	}

	last := contribs[len(contribs)-1].TraceID
	key := fmt.Sprintf("postcontrib-%s-%d", last, turns-turnsAt)
	if r.dir.WasPrompted(key) {
		return nil
	}
	r.dir.MarkPrompted(key)

	idNote := ""
	if last != "" {
		idNote = fmt.Sprintf(" (ID: %s)", last)
	}
	return NewBlockOutput(fmt.Sprintf(
		"You contributed a trace earlier and the conversation continued. "+
			"The trace may benefit from additional context. "+
			"Use amend_trace to update it%s, or say 'skip'.", idNote))
}

func (r *Runner) errorTriggers(errTail string) *HookOutput {
	sid := r.dir.SessionID()
	sig := ErrorSignature(errTail)
	projectID := r.dir.ProjectID()
	cooldowns := &r.cfg.Detection.Cooldowns

	if r.store != nil && projectID != 0 {
		_ = r.store.RecordErrorSignature(projectID, sid, sig, errTail)

		// Recurrence takes priority: the same error in earlier sessions
		// means an enriched search is more likely to land.
		if !r.dir.OnCooldown("error_recurrence", cooldowns.Cooldown("error_recurrence")) {
			matches, err := r.store.FindSimilarErrors(projectID, sig, sid, errorSimilarityThreshold)
			if err == nil && len(matches) > 0 && r.client.Available() {
				r.dir.SetCooldown("error_recurrence")
				_, _ = r.store.RecordTrigger(sid, "error_recurrence")
				results, err := r.client.Search(context.Background(),
					searchQuery(errTail), nil, r.dir.ProjectContext())
				if err == nil && len(results) > 0 {
					return NewContextOutput(PostToolUse, fmt.Sprintf(
						"This error has occurred in %d previous session(s). "+
							"CommonTrace found relevant traces:\n\n%s%s",
						len(matches), kb.FormatTraces(results), traceFooter))
				}
				return nil
			}
		}
	}

	if r.dir.OnCooldown("error_search", cooldowns.Cooldown("error_search")) || !r.client.Available() {
		return nil
	}
	r.dir.SetCooldown("error_search")
	if r.store != nil {
		_, _ = r.store.RecordTrigger(sid, "error_search")
	}
	results, err := r.client.Search(context.Background(), searchQuery(errTail), nil, nil)
	if err != nil || len(results) == 0 {
		return nil
	}
	return NewContextOutput(PostToolUse,
		"CommonTrace found relevant traces for this error:\n\n"+
			kb.FormatTraces(results)+traceFooter)
}

func (r *Runner) editTriggers(toolName, path string, st *detect.SessionState) *HookOutput {
	ext := strings.ToLower(filepath.Ext(path))
	lang := r.cfg.Detection.Paths.SourceLanguages[ext]
	if lang == "" {
		return nil
	}
	sid := r.dir.SessionID()
	cooldowns := &r.cfg.Detection.Cooldowns

	// Pre-code: first Write of a source file in this session.
	if toolName == "Write" && st.EditCounts[path] == 1 &&
		!r.dir.OnCooldown("pre_code", cooldowns.Cooldown("pre_code")) && r.client.Available() {
		r.dir.SetCooldown("pre_code")
		if r.store != nil {
			_, _ = r.store.RecordTrigger(sid, "pre_code")
		}
		stem := strings.TrimSuffix(filepath.Base(path), ext)
		query := fmt.Sprintf("%s %s implementation patterns", lang, strings.ToLower(stem))
		results, err := r.client.Search(context.Background(), query, nil, nil)
		if err == nil && len(results) > 0 {
			return NewContextOutput(PostToolUse, fmt.Sprintf(
				"Before implementing %s, CommonTrace found relevant patterns:\n\n%s%s",
				filepath.Base(path), kb.FormatTraces(results), traceFooter))
		}
		return nil
	}

	// Domain entry: first work in a language this project has not seen.
	if r.store == nil || r.dir.OnCooldown("domain_entry", cooldowns.Cooldown("domain_entry")) {
		return nil
	}
	projectID := r.dir.ProjectID()
	if projectID == 0 {
		return nil
	}
	known, err := r.store.KnownLanguages(projectID)
	if err != nil || known[lang] {
		return nil
	}
	r.dir.SetCooldown("domain_entry")
	_ = r.store.RecordEntity(projectID, "language", lang)
	if !r.client.Available() {
		return nil
	}
	_, _ = r.store.RecordTrigger(sid, "domain_entry")
	results, err := r.client.Search(context.Background(),
		lang+" common patterns and gotchas", nil, nil)
	if err == nil && len(results) > 0 {
		return NewContextOutput(PostToolUse, fmt.Sprintf(
			"You're working in %s for the first time in this project. "+
				"CommonTrace found relevant knowledge:\n\n%s%s",
			lang, kb.FormatTraces(results), traceFooter))
	}
	return nil
}

func (r *Runner) recordContribution(in *PostToolUseInput) {
	traceID := traceIDPattern.FindString(fmt.Sprint(in.ToolResponse))
	if err := r.dir.AppendContribution(traceID); err != nil {
		r.log.Debug().Err(err).Msg("failed to record contribution")
	}
	r.dir.WriteCounter("user_turns_at_contribution", r.dir.ReadCounter("user_turn_count"))
}

func (r *Runner) recordConsumption(in *PostToolUseInput) {
	if r.store == nil {
		return
	}
	traceID, _ := in.ToolInput["trace_id"].(string)
	if traceID == "" {
		traceID = traceIDPattern.FindString(fmt.Sprint(in.ToolResponse))
	}
	if traceID == "" {
		return
	}
	_ = r.store.RecordTraceConsumed(r.dir.SessionID(), traceID)
}

// searchQuery uses the last stretch of the error tail as the query and
// lets the search engine handle relevance.
func searchQuery(errTail string) string {
	q := strings.TrimSpace(errTail)
	if len(q) > 200 {
		q = q[len(q)-200:]
	}
	return q
}

func contributionPrompt(rec detect.Recommendation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This session looks worth contributing to CommonTrace (score %.1f).\n\n", rec.Score)
	b.WriteString(rec.Hint)

	var evidence []string
	if n := metaNumber(rec.Metadata, "error_count"); n > 0 {
		evidence = append(evidence, fmt.Sprintf("%.0f error(s) worked through", n))
	}
	if n := metaNumber(rec.Metadata, "iteration_count"); n > 0 {
		evidence = append(evidence, fmt.Sprintf("%.0f file(s) changed along the way", n))
	}
	if m := metaNumber(rec.Metadata, "time_to_resolution_minutes"); m > 0 {
		evidence = append(evidence, fmt.Sprintf("resolved in %.1f minute(s)", m))
	}
	if len(evidence) > 0 {
		b.WriteString("\n\nEvidence: " + strings.Join(evidence, ", ") + ".")
	}

	b.WriteString("\n\nIf you agree, contribute it with contribute_trace " +
		"(title, context, solution, tags), or say 'skip'.")
	return b.String()
}

// metaNumber reads a numeric metadata value. Values arrive as int when
// computed in-process and as float64 after a snapshot round-trip.
func metaNumber(meta map[string]interface{}, key string) float64 {
	switch v := meta[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return 0
}
