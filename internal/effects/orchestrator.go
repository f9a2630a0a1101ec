// Package effects turns committed timer transitions into user-visible
// effects and calls to the external reminder and session-log collaborators.
package effects

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"focustimer/internal/cycle"
	"focustimer/internal/model"
)

var (
	focusEndedPattern = []int{200, 100, 200}
	breakEndedPattern = []int{400}
)

type Options struct {
	Owner           string
	Scheduler       Scheduler
	ReminderTimeout time.Duration
	Sink            SessionSink
	Notifier        Notifier
	Hub             *Hub
	// Hidden is the host visibility assumed until the first signal arrives.
	Hidden bool
}

// Orchestrator is owned by a single engine. The engine calls it only after
// the corresponding state has been committed and persisted.
type Orchestrator struct {
	owner     string
	hub       *Hub
	reminders *reminderSync
	sink      SessionSink
	notifier  Notifier

	mu          sync.Mutex
	hidden      bool
	viewFocused bool
	pending     *Effect
}

func New(opts Options) *Orchestrator {
	if opts.Scheduler == nil {
		opts.Scheduler = nopScheduler{}
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	return &Orchestrator{
		owner:       opts.Owner,
		hub:         opts.Hub,
		reminders:   newReminderSync(opts.Owner, opts.Scheduler, opts.ReminderTimeout),
		sink:        opts.Sink,
		notifier:    opts.Notifier,
		hidden:      opts.Hidden,
		viewFocused: true,
	}
}

// Subscribe returns a stream of effects for this owner.
func (o *Orchestrator) Subscribe(buffer int) (<-chan Effect, func()) {
	return o.hub.Subscribe(buffer)
}

// OnTransition dispatches the effects of a completed session: cue, message,
// reminder sync and, for a live natural focus completion, the session record.
func (o *Orchestrator) OnTransition(ctx context.Context, t Transition, cfg model.SessionConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()

	focusEnded := t.Prev.Mode == model.ModeFocus
	live := t.Origin == OriginLive

	if live {
		cue := Effect{Kind: KindCue, Cue: CueBreakEnded, Vibrate: breakEndedPattern, Origin: t.Origin, At: t.At}
		if focusEnded {
			cue.Cue = CueFocusEnded
			cue.Vibrate = focusEndedPattern
		}
		o.hub.Publish(cue)
	}

	title, body := transitionMessage(t)
	o.showLocked(Effect{Kind: KindMessage, Title: title, Body: body, Origin: t.Origin, At: t.At}, live)

	o.reminders.sync(t.Next)

	if live && !t.Skipped && focusEnded {
		o.recordSession(ctx, t, cfg)
	}
}

// OnWarning announces that the running session is about to end.
func (o *Orchestrator) OnWarning(state model.TimerState, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()

	body := "One minute left in this focus session."
	if state.Mode.IsBreak() {
		body = "One minute left in this break."
	}
	o.showLocked(Effect{Kind: KindWarning, Title: "Almost done", Body: body, Origin: OriginLive, At: at}, true)
}

// SyncReminder aligns the external reminder with state after a control
// operation such as start, pause or stop.
func (o *Orchestrator) SyncReminder(state model.TimerState) {
	o.reminders.sync(state)
}

// SetHidden records host visibility. Becoming visible delivers the pending
// deferred message, if any, exactly once.
func (o *Orchestrator) SetHidden(hidden bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.hidden = hidden
	if hidden || o.pending == nil {
		return
	}
	deferred := *o.pending
	o.pending = nil
	deferred.Deferred = true
	o.hub.Publish(deferred)
}

func (o *Orchestrator) SetViewFocused(focused bool) {
	o.mu.Lock()
	o.viewFocused = focused
	o.mu.Unlock()
}

// Hidden reports the last known host visibility.
func (o *Orchestrator) Hidden() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hidden
}

// Pending returns the deferred message waiting for the next foreground.
func (o *Orchestrator) Pending() *Effect {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		return nil
	}
	copied := *o.pending
	return &copied
}

// Close waits for outstanding reminder calls and closes subscriber streams.
func (o *Orchestrator) Close() {
	o.reminders.close()
	o.hub.Close()
}

func (o *Orchestrator) showLocked(effect Effect, notify bool) {
	if o.hidden {
		o.pending = &effect
	} else {
		o.hub.Publish(effect)
	}

	if notify && (o.hidden || !o.viewFocused) {
		o.notifier.Notify(effect.Title, effect.Body)
		o.hub.Publish(Effect{
			Kind:   KindNotification,
			Title:  effect.Title,
			Body:   effect.Body,
			Origin: effect.Origin,
			At:     effect.At,
		})
	}
}

func (o *Orchestrator) recordSession(ctx context.Context, t Transition, cfg model.SessionConfig) {
	if o.sink == nil {
		return
	}
	length := t.Prev.LengthSeconds
	if length <= 0 {
		length = cycle.Duration(t.Prev.Mode, cfg)
	}
	record := model.SessionRecord{
		ID:              uuid.NewString(),
		UserID:          o.owner,
		SubjectID:       t.Prev.ActiveSubjectID,
		Mode:            t.Prev.Mode,
		DurationSeconds: length,
		CompletedAt:     t.At,
		CreatedAt:       t.At,
	}
	if err := o.sink.RecordSession(ctx, record); err != nil {
		log.Printf("warning: record focus session for %s: %v", o.owner, err)
	}
}

func transitionMessage(t Transition) (string, string) {
	away := t.Origin == OriginWhileAway
	if t.Prev.Mode == model.ModeFocus {
		title := "Focus session complete"
		if t.Skipped {
			title = "Focus session skipped"
		} else if away {
			title = "Focus session finished while you were away"
		}
		if t.Next.Mode == model.ModeLongBreak {
			return title, "Time for a long break."
		}
		return title, "Time for a short break."
	}

	title := "Break is over"
	if t.Skipped {
		title = "Break skipped"
	} else if away {
		title = "Your break ended while you were away"
	}
	return title, "Ready to focus again?"
}

type nopScheduler struct{}

func (nopScheduler) Schedule(context.Context, int, *string, model.SessionMode) (string, error) {
	return "", nil
}

func (nopScheduler) Cancel(context.Context, string) error { return nil }
