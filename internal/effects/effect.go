package effects

import (
	"context"
	"log"
	"time"

	"focustimer/internal/model"
)

type Kind string

const (
	KindCue          Kind = "cue"
	KindMessage      Kind = "message"
	KindNotification Kind = "notification"
	KindWarning      Kind = "warning"
)

type Cue string

const (
	CueFocusEnded Cue = "focus_ended"
	CueBreakEnded Cue = "break_ended"
)

// Origin tells whether a completion was observed live or discovered later by
// reconciliation.
type Origin string

const (
	OriginLive      Origin = "live"
	OriginWhileAway Origin = "while_away"
)

// Effect is one user-visible consequence of a state change.
type Effect struct {
	Kind     Kind      `json:"kind"`
	Cue      Cue       `json:"cue,omitempty"`
	Vibrate  []int     `json:"vibrate,omitempty"`
	Title    string    `json:"title,omitempty"`
	Body     string    `json:"body,omitempty"`
	Origin   Origin    `json:"origin,omitempty"`
	Deferred bool      `json:"deferred,omitempty"`
	At       time.Time `json:"at"`
}

// Transition describes a committed completion.
type Transition struct {
	Prev    model.TimerState
	Next    model.TimerState
	Origin  Origin
	Skipped bool
	At      time.Time
}

// Scheduler is the out-of-process reminder collaborator.
type Scheduler interface {
	Schedule(ctx context.Context, durationSeconds int, subjectID *string, mode model.SessionMode) (string, error)
	Cancel(ctx context.Context, reminderID string) error
}

// SessionSink receives attribution records for completed focus sessions.
type SessionSink interface {
	RecordSession(ctx context.Context, record model.SessionRecord) error
}

// Notifier shows a platform notification. Calls are fire-and-forget.
type Notifier interface {
	Notify(title, body string)
}

type LogNotifier struct{}

func (LogNotifier) Notify(title, body string) {
	log.Printf("notification: [%s] %s", title, body)
}
