package timer

import (
	"encoding/json"
	"fmt"
	"time"

	"focustimer/internal/model"
)

const snapshotVersion = 1

// snapshot is the durable record written on every state change.
type snapshot struct {
	Version        int              `json:"version"`
	State          model.TimerState `json:"state"`
	LastReconciled *time.Time       `json:"lastReconciledStartedAt,omitempty"`
	Revision       int              `json:"revision"`
	SavedAt        time.Time        `json:"savedAt"`
}

func encodeSnapshot(s snapshot) (string, error) {
	s.Version = snapshotVersion
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(raw), nil
}

// decodeSnapshot parses raw and rejects anything that could not have been
// written by encodeSnapshot. Callers treat an error as "no prior session".
func decodeSnapshot(raw string) (snapshot, error) {
	var s snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return snapshot{}, fmt.Errorf("decode snapshot: unsupported version %d", s.Version)
	}
	if !s.State.Mode.Valid() {
		return snapshot{}, fmt.Errorf("decode snapshot: unknown mode %q", s.State.Mode)
	}
	if s.State.RemainingSeconds < 0 || s.State.CompletedSessions < 0 || s.State.SegmentSeconds < 0 {
		return snapshot{}, fmt.Errorf("decode snapshot: negative counter")
	}
	if s.State.IsRunning != (s.State.StartedAt != nil) {
		return snapshot{}, fmt.Errorf("decode snapshot: running flag disagrees with startedAt")
	}
	return s, nil
}
