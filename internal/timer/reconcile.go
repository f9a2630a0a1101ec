package timer

import (
	"time"

	"focustimer/internal/cycle"
	"focustimer/internal/model"
)

type Verdict int

const (
	// VerdictNone means the timer is not running.
	VerdictNone Verdict = iota
	// VerdictResync means only RemainingSeconds was corrected.
	VerdictResync
	// VerdictComplete means the session elapsed and one transition applies.
	VerdictComplete
	// VerdictDuplicate means this run was already completed.
	VerdictDuplicate
)

func (v Verdict) String() string {
	switch v {
	case VerdictResync:
		return "resync"
	case VerdictComplete:
		return "complete"
	case VerdictDuplicate:
		return "duplicate"
	default:
		return "none"
	}
}

// Reconcile compares wall-clock time elapsed since state.StartedAt with the
// run's length and decides what should already have happened. marker is the
// StartedAt of the last run whose completion was applied. At most one
// transition is returned no matter how long the gap was.
func Reconcile(state model.TimerState, cfg model.SessionConfig, marker *time.Time, now time.Time) (model.TimerState, Verdict) {
	if !state.IsRunning || state.StartedAt == nil {
		return state, VerdictNone
	}

	total := time.Duration(runSeconds(state, cfg)) * time.Second
	elapsed := now.Sub(*state.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	if elapsed < total {
		remaining := total - elapsed
		state.RemainingSeconds = int((remaining + time.Second - 1) / time.Second)
		return state, VerdictResync
	}

	if marker != nil && marker.Equal(*state.StartedAt) {
		return state, VerdictDuplicate
	}
	return cycle.Next(state, cfg, now), VerdictComplete
}

// runSeconds is the countdown length of the current run.
func runSeconds(state model.TimerState, cfg model.SessionConfig) int {
	if state.SegmentSeconds > 0 {
		return state.SegmentSeconds
	}
	return cycle.Duration(state.Mode, cfg)
}
