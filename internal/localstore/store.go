// Package localstore is the cross-session memory: a SQLite database of
// project fingerprints, session counters, entities and error signatures.
// It stores metadata about sessions, never trace content; traces live in
// the remote knowledge base.
package localstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/commontrace/tracehook/internal/detect"
	"github.com/commontrace/tracehook/internal/kb"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// Store is the SQLite-backed local store. Hook invocations are separate
// processes, so every operation is a complete transaction.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// SessionStats are the final counters written at session end.
type SessionStats struct {
	ErrorCount        int
	ResolutionCount   int
	ContributionCount int
}

// SessionRow is one row of the sessions table for inspection commands.
type SessionRow struct {
	ID                string
	ProjectPath       string
	StartedAt         time.Time
	EndedAt           time.Time
	ErrorCount        int
	ResolutionCount   int
	ContributionCount int
}

// EventRow is one imported session signal.
type EventRow struct {
	Type      string
	Data      string
	CreatedAt time.Time
}

// ErrorMatch is a previous session's error similar to the current one.
type ErrorMatch struct {
	SessionID  string
	Signature  string
	RawTail    string
	Similarity float64
}

// Open opens (and if needed creates) the store at path. An empty path
// defaults to ~/.commontrace/local.db.
func Open(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".commontrace", "local.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(3000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT UNIQUE NOT NULL,
		primary_language TEXT,
		primary_framework TEXT,
		first_seen_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL,
		session_count INTEGER DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		project_id INTEGER REFERENCES projects(id),
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		error_count INTEGER DEFAULT 0,
		resolution_count INTEGER DEFAULT 0,
		contribution_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS entities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER REFERENCES projects(id),
		entity_type TEXT NOT NULL,
		entity_value TEXT NOT NULL,
		first_seen_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL,
		occurrence_count INTEGER DEFAULT 1,
		UNIQUE(project_id, entity_type, entity_value)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT REFERENCES sessions(id),
		event_type TEXT NOT NULL,
		data_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS error_signatures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER REFERENCES projects(id),
		session_id TEXT REFERENCES sessions(id),
		signature TEXT NOT NULL,
		raw_tail TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trigger_feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		trigger_name TEXT NOT NULL,
		triggered_at INTEGER NOT NULL,
		trace_consumed_id TEXT,
		consumed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
	CREATE INDEX IF NOT EXISTS idx_signatures_project ON error_signatures(project_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_feedback_session ON trigger_feedback(session_id, triggered_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// EnsureProject registers the project or bumps its session counter, and
// returns the project id.
func (s *Store) EnsureProject(path, language, framework string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	var id int64
	err := s.db.QueryRow("SELECT id FROM projects WHERE path = ?", path).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := s.db.Exec(
			`INSERT INTO projects (path, primary_language, primary_framework, first_seen_at, last_seen_at)
			 VALUES (?, ?, ?, ?, ?)`,
			path, nullable(language), nullable(framework), now, now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert project: %w", err)
		}
		return res.LastInsertId()
	case err != nil:
		return 0, fmt.Errorf("failed to query project: %w", err)
	}

	_, err = s.db.Exec(
		`UPDATE projects SET last_seen_at = ?, session_count = session_count + 1,
		 primary_language = COALESCE(NULLIF(?, ''), primary_language),
		 primary_framework = COALESCE(NULLIF(?, ''), primary_framework)
		 WHERE id = ?`,
		now, language, framework, id)
	if err != nil {
		return 0, fmt.Errorf("failed to update project: %w", err)
	}
	return id, nil
}

// LookupProject returns the project id for a path, 0 if unknown.
func (s *Store) LookupProject(path string) (int64, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM projects WHERE path = ?", path).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query project: %w", err)
	}
	return id, nil
}

// StartSession records a new session. Re-registration is a no-op.
func (s *Store) StartSession(sessionID string, projectID int64) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO sessions (id, project_id, started_at) VALUES (?, ?, ?)",
		sessionID, projectID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	return nil
}

// EndSession finalizes a session with its counters.
func (s *Store) EndSession(sessionID string, stats SessionStats) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ?, error_count = ?, resolution_count = ?,
		 contribution_count = ? WHERE id = ?`,
		time.Now().Unix(), stats.ErrorCount, stats.ResolutionCount,
		stats.ContributionCount, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// RecordEntity upserts an entity (language, framework, domain) for a
// project and bumps its occurrence counter.
func (s *Store) RecordEntity(projectID int64, entityType, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	_, err := s.db.Exec(
		`INSERT INTO entities (project_id, entity_type, entity_value, first_seen_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(project_id, entity_type, entity_value)
		 DO UPDATE SET last_seen_at = ?, occurrence_count = occurrence_count + 1`,
		projectID, entityType, value, now, now, now)
	if err != nil {
		return fmt.Errorf("failed to record entity: %w", err)
	}
	return nil
}

// ImportSignals bulk-imports the session's signal log into the events
// table. Idempotent: a session already imported is skipped.
func (s *Store) ImportSignals(sessionID string, signals []detect.Signal) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing int
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM events WHERE session_id = ?", sessionID).Scan(&existing); err != nil {
		return 0, fmt.Errorf("failed to check events: %w", err)
	}
	if existing > 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	count := 0
	for _, sig := range signals {
		raw, err := json.Marshal(sig)
		if err != nil {
			continue
		}
		if _, err := tx.Exec(
			"INSERT INTO events (session_id, event_type, data_json, created_at) VALUES (?, ?, ?, ?)",
			sessionID, string(sig.Kind), string(raw), sig.At.Unix()); err != nil {
			return 0, fmt.Errorf("failed to insert event: %w", err)
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return count, nil
}

// ProjectContext builds the accumulated context fingerprint used to
// enrich remote searches. Returns nil for an unknown project.
func (s *Store) ProjectContext(path string) (*kb.ProjectContext, error) {
	var (
		id                  int64
		language, framework sql.NullString
		sessionCount        int
	)
	err := s.db.QueryRow(
		"SELECT id, primary_language, primary_framework, session_count FROM projects WHERE path = ?",
		path).Scan(&id, &language, &framework, &sessionCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query project: %w", err)
	}

	ctx := &kb.ProjectContext{
		Language:     language.String,
		Framework:    framework.String,
		SessionCount: sessionCount,
	}

	rows, err := s.db.Query(
		`SELECT entity_type, entity_value FROM entities
		 WHERE project_id = ? ORDER BY occurrence_count DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var etype, value string
		if err := rows.Scan(&etype, &value); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		switch etype {
		case "language":
			if ctx.Language == "" {
				ctx.Language = value
			}
		case "framework":
			if ctx.Framework == "" {
				ctx.Framework = value
			}
		case "domain":
			if len(ctx.Domains) < 5 {
				ctx.Domains = append(ctx.Domains, value)
			}
		}
	}
	return ctx, rows.Err()
}

// KnownLanguages returns the languages previously seen in a project.
func (s *Store) KnownLanguages(projectID int64) (map[string]bool, error) {
	rows, err := s.db.Query(
		"SELECT entity_value FROM entities WHERE project_id = ? AND entity_type = 'language'",
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query languages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan language: %w", err)
		}
		out[v] = true
	}
	return out, rows.Err()
}

const rawTailLimit = 500

// RecordErrorSignature stores a normalized error signature for
// cross-session recurrence matching.
func (s *Store) RecordErrorSignature(projectID int64, sessionID, signature, rawTail string) error {
	if len(rawTail) > rawTailLimit {
		rawTail = rawTail[:rawTailLimit]
	}
	_, err := s.db.Exec(
		`INSERT INTO error_signatures (project_id, session_id, signature, raw_tail, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		projectID, sessionID, signature, rawTail, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record signature: %w", err)
	}
	return nil
}

// FindSimilarErrors scans recent signatures from other sessions of the
// project and returns those whose token overlap with the given signature
// meets the threshold, at most one per session, newest first.
func (s *Store) FindSimilarErrors(projectID int64, signature, currentSession string, threshold float64) ([]ErrorMatch, error) {
	rows, err := s.db.Query(
		`SELECT session_id, signature, raw_tail FROM error_signatures
		 WHERE project_id = ? AND session_id != ?
		 ORDER BY created_at DESC LIMIT 100`,
		projectID, currentSession)
	if err != nil {
		return nil, fmt.Errorf("failed to query signatures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []ErrorMatch
	seen := make(map[string]bool)
	for rows.Next() {
		var m ErrorMatch
		if err := rows.Scan(&m.SessionID, &m.Signature, &m.RawTail); err != nil {
			return nil, fmt.Errorf("failed to scan signature: %w", err)
		}
		if seen[m.SessionID] {
			continue
		}
		m.Similarity = Similarity(signature, m.Signature)
		if m.Similarity >= threshold {
			matches = append(matches, m)
			seen[m.SessionID] = true
		}
		if len(matches) >= 10 {
			break
		}
	}
	return matches, rows.Err()
}

// RecordTrigger records that a mid-session search trigger fired.
func (s *Store) RecordTrigger(sessionID, triggerName string) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO trigger_feedback (session_id, trigger_name, triggered_at) VALUES (?, ?, ?)",
		sessionID, triggerName, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to record trigger: %w", err)
	}
	return res.LastInsertId()
}

// RecordTraceConsumed links a get_trace call to the most recent
// unconsumed trigger of the session, or records organic consumption.
func (s *Store) RecordTraceConsumed(sessionID, traceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	var id int64
	err := s.db.QueryRow(
		`SELECT id FROM trigger_feedback
		 WHERE session_id = ? AND trace_consumed_id IS NULL
		 ORDER BY triggered_at DESC LIMIT 1`, sessionID).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.Exec(
			`INSERT INTO trigger_feedback (session_id, trigger_name, triggered_at, trace_consumed_id, consumed_at)
			 VALUES (?, 'organic', ?, ?, ?)`,
			sessionID, now, traceID, now)
	case err == nil:
		_, err = s.db.Exec(
			"UPDATE trigger_feedback SET trace_consumed_id = ?, consumed_at = ? WHERE id = ?",
			traceID, now, id)
	}
	if err != nil {
		return fmt.Errorf("failed to record consumption: %w", err)
	}
	return nil
}

// TriggerEffectiveness aggregates fired vs consumed counts per trigger.
func (s *Store) TriggerEffectiveness() ([]kb.TriggerStat, error) {
	rows, err := s.db.Query(
		`SELECT trigger_name, COUNT(*),
		 SUM(CASE WHEN trace_consumed_id IS NOT NULL THEN 1 ELSE 0 END)
		 FROM trigger_feedback GROUP BY trigger_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []kb.TriggerStat
	for rows.Next() {
		var t kb.TriggerStat
		if err := rows.Scan(&t.TriggerType, &t.Fired, &t.Consumed); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListSessions returns recent sessions, newest first.
func (s *Store) ListSessions(limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT s.id, COALESCE(p.path, ''), s.started_at, COALESCE(s.ended_at, 0),
		 s.error_count, s.resolution_count, s.contribution_count
		 FROM sessions s LEFT JOIN projects p ON s.project_id = p.id
		 ORDER BY s.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		var started, ended int64
		if err := rows.Scan(&r.ID, &r.ProjectPath, &started, &ended,
			&r.ErrorCount, &r.ResolutionCount, &r.ContributionCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		if ended > 0 {
			r.EndedAt = time.Unix(ended, 0)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SessionEvents returns the imported signal log of one session.
func (s *Store) SessionEvents(sessionID string) ([]EventRow, error) {
	rows, err := s.db.Query(
		"SELECT event_type, data_json, created_at FROM events WHERE session_id = ? ORDER BY id",
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []EventRow
	for rows.Next() {
		var r EventRow
		var created int64
		if err := rows.Scan(&r.Type, &r.Data, &created); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		r.CreatedAt = time.Unix(created, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Clear deletes all session history, keeping project registrations.
func (s *Store) Clear() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM sessions")
	if err != nil {
		return 0, fmt.Errorf("failed to clear sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	for _, table := range []string{"events", "error_signatures", "trigger_feedback"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return n, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return n, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
