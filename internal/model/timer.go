package model

import (
	"errors"
	"time"
)

type SessionMode string

const (
	ModeFocus      SessionMode = "focus"
	ModeShortBreak SessionMode = "short_break"
	ModeLongBreak  SessionMode = "long_break"
)

const (
	DefaultFocusSeconds            = 25 * 60
	DefaultShortBreakSeconds       = 5 * 60
	DefaultLongBreakSeconds        = 15 * 60
	DefaultSessionsBeforeLongBreak = 4
)

var ErrInvalidConfig = errors.New("invalid session config")

// Valid reports whether m is one of the three known modes.
func (m SessionMode) Valid() bool {
	return m == ModeFocus || m == ModeShortBreak || m == ModeLongBreak
}

// IsBreak reports whether m is a short or long break.
func (m SessionMode) IsBreak() bool {
	return m == ModeShortBreak || m == ModeLongBreak
}

// TimerState is the persisted state of one owner's focus timer.
//
// StartedAt is set if and only if IsRunning is true. SegmentSeconds holds the
// countdown value at the moment StartedAt was taken, so a resumed session is
// measured against its paused remainder rather than the full duration.
type TimerState struct {
	Mode              SessionMode `json:"mode"`
	IsRunning         bool        `json:"isRunning"`
	RemainingSeconds  int         `json:"remainingSeconds"`
	CompletedSessions int         `json:"completedSessions"`
	ActiveSubjectID   *string     `json:"activeSubjectId,omitempty"`
	StartedAt         *time.Time  `json:"startedAt,omitempty"`
	SegmentSeconds    int         `json:"segmentSeconds,omitempty"`
	// LengthSeconds is the full length of the current session: time already
	// counted down plus RemainingSeconds.
	LengthSeconds int `json:"lengthSeconds,omitempty"`
}

// SessionConfig is supplied from outside the engine and never mutated by it.
type SessionConfig struct {
	FocusSeconds            int  `json:"focusSeconds" yaml:"focus_seconds"`
	ShortBreakSeconds       int  `json:"shortBreakSeconds" yaml:"short_break_seconds"`
	LongBreakSeconds        int  `json:"longBreakSeconds" yaml:"long_break_seconds"`
	SessionsBeforeLongBreak int  `json:"sessionsBeforeLongBreak" yaml:"sessions_before_long_break"`
	AutoStartBreak          bool `json:"autoStartBreak" yaml:"auto_start_break"`
	AutoStartFocus          bool `json:"autoStartFocus" yaml:"auto_start_focus"`
}

// ConfigPatch is a partial SessionConfig. Nil fields keep the base value.
type ConfigPatch struct {
	FocusSeconds            *int  `json:"focusSeconds,omitempty"`
	ShortBreakSeconds       *int  `json:"shortBreakSeconds,omitempty"`
	LongBreakSeconds        *int  `json:"longBreakSeconds,omitempty"`
	SessionsBeforeLongBreak *int  `json:"sessionsBeforeLongBreak,omitempty"`
	AutoStartBreak          *bool `json:"autoStartBreak,omitempty"`
	AutoStartFocus          *bool `json:"autoStartFocus,omitempty"`
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		FocusSeconds:            DefaultFocusSeconds,
		ShortBreakSeconds:       DefaultShortBreakSeconds,
		LongBreakSeconds:        DefaultLongBreakSeconds,
		SessionsBeforeLongBreak: DefaultSessionsBeforeLongBreak,
	}
}

func (c SessionConfig) Validate() error {
	if c.FocusSeconds <= 0 || c.ShortBreakSeconds <= 0 || c.LongBreakSeconds <= 0 {
		return errors.Join(ErrInvalidConfig, errors.New("all durations must be positive seconds"))
	}
	if c.SessionsBeforeLongBreak < 1 {
		return errors.Join(ErrInvalidConfig, errors.New("sessionsBeforeLongBreak must be at least 1"))
	}
	return nil
}

// Merge returns c with every non-nil field of patch applied.
func (c SessionConfig) Merge(patch ConfigPatch) SessionConfig {
	if patch.FocusSeconds != nil {
		c.FocusSeconds = *patch.FocusSeconds
	}
	if patch.ShortBreakSeconds != nil {
		c.ShortBreakSeconds = *patch.ShortBreakSeconds
	}
	if patch.LongBreakSeconds != nil {
		c.LongBreakSeconds = *patch.LongBreakSeconds
	}
	if patch.SessionsBeforeLongBreak != nil {
		c.SessionsBeforeLongBreak = *patch.SessionsBeforeLongBreak
	}
	if patch.AutoStartBreak != nil {
		c.AutoStartBreak = *patch.AutoStartBreak
	}
	if patch.AutoStartFocus != nil {
		c.AutoStartFocus = *patch.AutoStartFocus
	}
	return c
}

// Combine layers next over p; fields set in next win.
func (p ConfigPatch) Combine(next ConfigPatch) ConfigPatch {
	if next.FocusSeconds != nil {
		p.FocusSeconds = next.FocusSeconds
	}
	if next.ShortBreakSeconds != nil {
		p.ShortBreakSeconds = next.ShortBreakSeconds
	}
	if next.LongBreakSeconds != nil {
		p.LongBreakSeconds = next.LongBreakSeconds
	}
	if next.SessionsBeforeLongBreak != nil {
		p.SessionsBeforeLongBreak = next.SessionsBeforeLongBreak
	}
	if next.AutoStartBreak != nil {
		p.AutoStartBreak = next.AutoStartBreak
	}
	if next.AutoStartFocus != nil {
		p.AutoStartFocus = next.AutoStartFocus
	}
	return p
}
