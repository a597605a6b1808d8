// Package statedir manages the per-session scratch directory. Hook
// invocations are separate processes, so everything a session needs to
// remember between events lives here as small files: the engine
// snapshot, counters, trigger cooldowns, prompt dedup markers and the
// local-store bridge values written at session start.
package statedir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/commontrace/tracehook/internal/kb"
)

// Root returns the directory holding all session state directories.
func Root() string {
	return filepath.Join(os.TempDir(), "commontrace-sessions")
}

// Dir is one session's state directory.
type Dir struct {
	sessionID string
	path      string
}

// Open resolves and creates the state directory for a session. An empty
// session id falls back to the parent pid, which is stable across the
// hook invocations of one agent process; failing that, a generated id.
func Open(sessionID string) (*Dir, error) {
	if sessionID == "" {
		if pp := os.Getppid(); pp > 1 {
			sessionID = "ppid-" + strconv.Itoa(pp)
		} else {
			sessionID = "gen-" + uuid.NewString()
		}
	}
	path := filepath.Join(Root(), sessionID)
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	return &Dir{sessionID: sessionID, path: path}, nil
}

// SessionID returns the resolved session id.
func (d *Dir) SessionID() string { return d.sessionID }

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

// SnapshotPath is the engine snapshot file.
func (d *Dir) SnapshotPath() string {
	return filepath.Join(d.path, "engine.json")
}

// Remove deletes the whole state directory. A fresh session id starts
// clean, so this is only for explicit cleanup.
func (d *Dir) Remove() error {
	return os.RemoveAll(d.path)
}

// ReadCounter reads a plain integer counter file, 0 if absent.
func (d *Dir) ReadCounter(name string) int {
	raw, err := os.ReadFile(filepath.Join(d.path, name))
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0
	}
	return n
}

// IncrementCounter bumps a counter file and returns the new value.
func (d *Dir) IncrementCounter(name string) int {
	n := d.ReadCounter(name) + 1
	_ = os.WriteFile(filepath.Join(d.path, name), []byte(strconv.Itoa(n)), 0o600)
	return n
}

// WriteCounter sets a counter file to an explicit value.
func (d *Dir) WriteCounter(name string, n int) {
	_ = os.WriteFile(filepath.Join(d.path, name), []byte(strconv.Itoa(n)), 0o600)
}

// SetProjectID bridges the local-store project id to later hooks.
func (d *Dir) SetProjectID(id int64) error {
	return os.WriteFile(filepath.Join(d.path, "project_id"),
		[]byte(strconv.FormatInt(id, 10)), 0o600)
}

// ProjectID reads the bridged project id, 0 if absent.
func (d *Dir) ProjectID() int64 {
	raw, err := os.ReadFile(filepath.Join(d.path, "project_id"))
	if err != nil {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// SetProjectContext bridges the context fingerprint to later hooks.
func (d *Dir) SetProjectContext(ctx *kb.ProjectContext) error {
	raw, err := json.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("encoding context: %w", err)
	}
	return os.WriteFile(filepath.Join(d.path, "context_fingerprint.json"), raw, 0o600)
}

// ProjectContext reads the bridged context fingerprint, nil if absent.
func (d *Dir) ProjectContext() *kb.ProjectContext {
	raw, err := os.ReadFile(filepath.Join(d.path, "context_fingerprint.json"))
	if err != nil {
		return nil
	}
	var ctx kb.ProjectContext
	if err := json.Unmarshal(raw, &ctx); err != nil {
		return nil
	}
	return &ctx
}

// OnCooldown reports whether a trigger fired within the given interval.
func (d *Dir) OnCooldown(trigger string, within time.Duration) bool {
	raw, err := os.ReadFile(d.cooldownPath(trigger))
	if err != nil {
		return false
	}
	last, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return false
	}
	return time.Since(time.Unix(last, 0)) < within
}

// SetCooldown stamps a trigger's cooldown timestamp.
func (d *Dir) SetCooldown(trigger string) {
	_ = os.MkdirAll(filepath.Join(d.path, "cooldowns"), 0o700)
	_ = os.WriteFile(d.cooldownPath(trigger),
		[]byte(strconv.FormatInt(time.Now().Unix(), 10)), 0o600)
}

func (d *Dir) cooldownPath(trigger string) string {
	return filepath.Join(d.path, "cooldowns", trigger+".ts")
}

// WasPrompted reports whether the session was already prompted for this
// recommendation fingerprint.
func (d *Dir) WasPrompted(dedupKey string) bool {
	_, err := os.Stat(filepath.Join(d.path, "dedup-"+dedupKey))
	return err == nil
}

// MarkPrompted records that the prompt for this fingerprint was shown.
func (d *Dir) MarkPrompted(dedupKey string) {
	_ = os.WriteFile(filepath.Join(d.path, "dedup-"+dedupKey),
		[]byte(strconv.FormatInt(time.Now().Unix(), 10)), 0o600)
}

// SeenEvent records a host-issued event id and reports whether it had
// been recorded before. Duplicate deliveries of the same tool use carry
// the same id, so a true return means the event was already processed.
// Empty ids are never deduplicated.
func (d *Dir) SeenEvent(id string) bool {
	if id == "" {
		return false
	}
	dir := filepath.Join(d.path, "events")
	_ = os.MkdirAll(dir, 0o700)
	marker := filepath.Join(dir, sanitize(id))
	f, err := os.OpenFile(marker, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return os.IsExist(err)
	}
	_ = f.Close()
	return false
}

// sanitize keeps an id usable as a file name.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		}
		return '_'
	}, id)
}

// Contribution is one trace contributed during the session.
type Contribution struct {
	TraceID string    `json:"trace_id"`
	At      time.Time `json:"at"`
}

// AppendContribution records a contributed trace id.
func (d *Dir) AppendContribution(traceID string) error {
	entry := Contribution{TraceID: traceID, At: time.Now()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding contribution: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(d.path, "contributions.jsonl"),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening contributions log: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("appending contribution: %w", err)
	}
	return nil
}

// Contributions returns the traces contributed so far, in order.
func (d *Dir) Contributions() []Contribution {
	raw, err := os.ReadFile(filepath.Join(d.path, "contributions.jsonl"))
	if err != nil {
		return nil
	}
	var out []Contribution
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var c Contribution
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}
