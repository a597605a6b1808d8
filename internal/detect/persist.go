package detect

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Snapshot is the serialized form of an engine. Hook invocations are
// separate short-lived processes, so the engine round-trips through a
// snapshot file between events.
type Snapshot struct {
	State *SessionState `json:"state"`
	Score *ScoreState   `json:"score"`
}

// SaveSnapshot writes the snapshot atomically to path.
func SaveSnapshot(path string, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot from path. A missing file is not an
// error; it returns (nil, nil) so callers start a fresh session.
func LoadSnapshot(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if snap.State == nil {
		return nil, nil
	}
	return &snap, nil
}
