// Package cycle holds the pure focus/break transition rules.
package cycle

import (
	"time"

	"focustimer/internal/model"
)

// Duration returns the configured length of mode in seconds.
func Duration(mode model.SessionMode, cfg model.SessionConfig) int {
	switch mode {
	case model.ModeShortBreak:
		return cfg.ShortBreakSeconds
	case model.ModeLongBreak:
		return cfg.LongBreakSeconds
	default:
		return cfg.FocusSeconds
	}
}

// Initial is the idle focus state used on first use and after a stop.
func Initial(cfg model.SessionConfig) model.TimerState {
	length := Duration(model.ModeFocus, cfg)
	return model.TimerState{
		Mode:             model.ModeFocus,
		RemainingSeconds: length,
		LengthSeconds:    length,
	}
}

// Next computes the state that follows prev once its countdown has reached
// zero. It performs no I/O; now is only used as the start time of an
// auto-started session.
func Next(prev model.TimerState, cfg model.SessionConfig, now time.Time) model.TimerState {
	next := model.TimerState{
		CompletedSessions: prev.CompletedSessions,
		ActiveSubjectID:   prev.ActiveSubjectID,
	}

	var autoStart bool
	if prev.Mode == model.ModeFocus {
		next.CompletedSessions++
		if next.CompletedSessions >= cfg.SessionsBeforeLongBreak {
			next.Mode = model.ModeLongBreak
			next.CompletedSessions = 0
		} else {
			next.Mode = model.ModeShortBreak
		}
		autoStart = cfg.AutoStartBreak
	} else {
		next.Mode = model.ModeFocus
		autoStart = cfg.AutoStartFocus
	}

	next.RemainingSeconds = Duration(next.Mode, cfg)
	next.LengthSeconds = next.RemainingSeconds
	if autoStart {
		startedAt := now
		next.IsRunning = true
		next.StartedAt = &startedAt
		next.SegmentSeconds = next.RemainingSeconds
	}
	return next
}
