// Package timer owns the focus timer state of one user: it persists every
// change, reconciles against wall-clock time after gaps in execution and
// hands committed transitions to the effects orchestrator.
package timer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"focustimer/internal/cycle"
	"focustimer/internal/effects"
	"focustimer/internal/model"
)

var ErrStaleRevision = errors.New("timer state changed since the given revision")

// warningAtSeconds is the remaining time at which the pre-warning fires.
const warningAtSeconds = 61

type View struct {
	Mode              model.SessionMode   `json:"mode"`
	IsRunning         bool                `json:"isRunning"`
	RemainingSeconds  int                 `json:"remainingSeconds"`
	CompletedSessions int                 `json:"completedSessions"`
	ActiveSubjectID   *string             `json:"activeSubjectId,omitempty"`
	StartedAt         *time.Time          `json:"startedAt,omitempty"`
	Revision          int                 `json:"revision"`
	Config            model.SessionConfig `json:"config"`
	Hidden            bool                `json:"hidden"`
	ServerTime        time.Time           `json:"serverTime"`
}

type Options struct {
	Owner    string
	Store    Store
	Effects  *effects.Orchestrator
	Defaults model.SessionConfig
	Now      func() time.Time
}

// Engine serialises every mutation behind one mutex, so a tick, a control
// call and a visibility signal each run to completion before the next.
type Engine struct {
	mu sync.Mutex

	owner string
	store Store
	fx    *effects.Orchestrator
	now   func() time.Time

	defaults  model.SessionConfig
	overrides model.ConfigPatch
	cfg       model.SessionConfig

	state    model.TimerState
	marker   *time.Time
	revision int
	warned   bool
}

func NewEngine(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Effects == nil {
		opts.Effects = effects.New(effects.Options{Owner: opts.Owner})
	}
	if err := opts.Defaults.Validate(); err != nil {
		opts.Defaults = model.DefaultSessionConfig()
	}

	return &Engine{
		owner:    opts.Owner,
		store:    opts.Store,
		fx:       opts.Effects,
		now:      opts.Now,
		defaults: opts.Defaults,
		cfg:      opts.Defaults,
		state:    cycle.Initial(opts.Defaults),
	}
}

func (e *Engine) Owner() string { return e.owner }

// Load reads the configuration overrides and the persisted snapshot once and
// reconciles the result before anything is exposed. A missing or corrupt
// snapshot starts from the default focus state. A failing store leaves the
// engine untouched and returns the error.
func (e *Engine) Load(ctx context.Context) (View, error) {
	ctx = context.WithoutCancel(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	overrides, err := e.readOverrides(ctx)
	if err != nil {
		return e.viewLocked(), err
	}
	snap, found, err := e.readSnapshot(ctx)
	if err != nil {
		return e.viewLocked(), err
	}

	e.overrides = overrides
	e.cfg = e.effectiveConfig()
	if found {
		e.state = snap.State
		e.marker = snap.LastReconciled
		e.revision = snap.Revision
	} else {
		e.state = cycle.Initial(e.cfg)
		e.marker = nil
	}
	e.normalizeLocked()
	e.reconcileLocked(ctx)
	return e.viewLocked(), nil
}

func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

// Reconcile corrects the state for wall-clock time elapsed since the run
// started and applies at most one completion.
func (e *Engine) Reconcile(ctx context.Context) (View, Verdict) {
	e.mu.Lock()
	defer e.mu.Unlock()
	verdict := e.reconcileLocked(ctx)
	return e.viewLocked(), verdict
}

// SetVisibility handles the host's foreground/background signal. Becoming
// visible delivers any deferred message and then reconciles.
func (e *Engine) SetVisibility(ctx context.Context, visible bool) View {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.fx.SetHidden(!visible)
	if visible {
		e.reconcileLocked(ctx)
	}
	return e.viewLocked()
}

func (e *Engine) SetViewFocused(focused bool) {
	e.fx.SetViewFocused(focused)
}

// Tick is the once-per-second liveness callback. Correctness never depends
// on its timing; Reconcile is the source of truth.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.IsRunning {
		return
	}
	now := e.now()

	warn := e.state.RemainingSeconds == warningAtSeconds && !e.warned
	if e.state.RemainingSeconds > 0 {
		e.state.RemainingSeconds--
	}
	if e.state.RemainingSeconds > 0 {
		e.persistLocked(ctx)
		if warn {
			e.warned = true
			e.fx.OnWarning(e.state, now)
		}
		return
	}

	e.completeLocked(ctx, cycle.Next(e.state, e.cfg, now), now, effects.OriginLive, false)
}

// Start begins or resumes the countdown. The remaining time is kept so a
// paused session continues where it stopped.
func (e *Engine) Start(ctx context.Context, baseRevision int, subjectID *string) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reconcileLocked(ctx)
	if err := e.checkRevisionLocked(baseRevision); err != nil {
		return e.viewLocked(), err
	}
	if e.state.IsRunning {
		return e.viewLocked(), nil
	}

	if subjectID != nil {
		subject := *subjectID
		e.state.ActiveSubjectID = &subject
	}
	if e.state.RemainingSeconds <= 0 {
		e.state.RemainingSeconds = cycle.Duration(e.state.Mode, e.cfg)
		e.state.LengthSeconds = e.state.RemainingSeconds
	}
	now := e.now()
	e.state.IsRunning = true
	e.state.StartedAt = &now
	e.state.SegmentSeconds = e.state.RemainingSeconds
	e.revision++

	e.persistLocked(ctx)
	e.fx.SyncReminder(e.state)
	return e.viewLocked(), nil
}

func (e *Engine) Pause(ctx context.Context, baseRevision int) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reconcileLocked(ctx)
	if err := e.checkRevisionLocked(baseRevision); err != nil {
		return e.viewLocked(), err
	}
	if !e.state.IsRunning {
		return e.viewLocked(), nil
	}

	e.state.IsRunning = false
	e.state.StartedAt = nil
	e.state.SegmentSeconds = 0
	e.revision++

	e.persistLocked(ctx)
	e.fx.SyncReminder(e.state)
	return e.viewLocked(), nil
}

// Stop resets to the default focus state and clears the persisted snapshot.
func (e *Engine) Stop(ctx context.Context, baseRevision int) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRevisionLocked(baseRevision); err != nil {
		return e.viewLocked(), err
	}

	e.state = cycle.Initial(e.cfg)
	e.marker = nil
	e.warned = false
	e.revision++

	if e.store != nil {
		if err := e.store.Delete(context.WithoutCancel(ctx), snapshotKey(e.owner)); err != nil {
			log.Printf("warning: clear timer snapshot for %s: %v", e.owner, err)
		}
	}
	e.fx.SyncReminder(e.state)
	return e.viewLocked(), nil
}

// Skip completes the current session immediately. The cycle advances as for
// a natural completion but no session record is written.
func (e *Engine) Skip(ctx context.Context, baseRevision int) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reconcileLocked(ctx)
	if err := e.checkRevisionLocked(baseRevision); err != nil {
		return e.viewLocked(), err
	}

	now := e.now()
	e.completeLocked(ctx, cycle.Next(e.state, e.cfg, now), now, effects.OriginLive, true)
	return e.viewLocked(), nil
}

// UpdateConfig layers patch over the stored overrides. A running countdown
// is never rescaled.
func (e *Engine) UpdateConfig(ctx context.Context, baseRevision int, patch model.ConfigPatch) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reconcileLocked(ctx)
	if err := e.checkRevisionLocked(baseRevision); err != nil {
		return e.viewLocked(), err
	}

	combined := e.overrides.Combine(patch)
	cfg := e.defaults.Merge(combined)
	if err := cfg.Validate(); err != nil {
		return e.viewLocked(), err
	}

	e.overrides = combined
	e.writeOverrides(ctx)
	e.applyConfigLocked(cfg)
	e.revision++
	e.persistLocked(ctx)
	return e.viewLocked(), nil
}

// SetDefaults replaces the built-in defaults the owner's overrides are
// merged over.
func (e *Engine) SetDefaults(defaults model.SessionConfig) error {
	if err := defaults.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaults = defaults
	e.applyConfigLocked(e.effectiveConfig())
	return nil
}

func (e *Engine) Subscribe(buffer int) (<-chan effects.Effect, func()) {
	return e.fx.Subscribe(buffer)
}

// Close flushes pending reminder calls and ends effect streams.
func (e *Engine) Close() {
	e.fx.Close()
}

func (e *Engine) reconcileLocked(ctx context.Context) Verdict {
	now := e.now()
	next, verdict := Reconcile(e.state, e.cfg, e.marker, now)

	switch verdict {
	case VerdictResync:
		if next.RemainingSeconds != e.state.RemainingSeconds {
			e.state = next
			e.persistLocked(ctx)
		}
	case VerdictComplete:
		e.completeLocked(ctx, next, now, effects.OriginWhileAway, false)
	case VerdictDuplicate:
		log.Printf("timer %s: completion of run started %s already applied", e.owner, e.state.StartedAt.Format(time.RFC3339))
	}
	return verdict
}

// completeLocked commits next, persists it and only then dispatches effects.
func (e *Engine) completeLocked(ctx context.Context, next model.TimerState, now time.Time, origin effects.Origin, skipped bool) {
	prev := e.state
	if prev.StartedAt != nil {
		consumed := *prev.StartedAt
		e.marker = &consumed
	}
	e.state = next
	e.warned = false
	e.revision++
	e.persistLocked(ctx)

	e.fx.OnTransition(ctx, effects.Transition{
		Prev:    prev,
		Next:    next,
		Origin:  origin,
		Skipped: skipped,
		At:      now,
	}, e.cfg)
}

func (e *Engine) applyConfigLocked(cfg model.SessionConfig) {
	oldDuration := cycle.Duration(e.state.Mode, e.cfg)
	e.cfg = cfg
	if e.state.IsRunning {
		return
	}
	newDuration := cycle.Duration(e.state.Mode, cfg)
	if e.state.RemainingSeconds == oldDuration || e.state.RemainingSeconds > newDuration {
		e.setRemainingLocked(newDuration)
	}
}

// setRemainingLocked changes the idle countdown and moves the session length
// with it, so time already counted is kept.
func (e *Engine) setRemainingLocked(remaining int) {
	e.state.LengthSeconds += remaining - e.state.RemainingSeconds
	e.state.RemainingSeconds = remaining
	if e.state.LengthSeconds < remaining {
		e.state.LengthSeconds = remaining
	}
}

// normalizeLocked restores the resting invariants on a freshly loaded state.
func (e *Engine) normalizeLocked() {
	if e.state.LengthSeconds <= 0 {
		e.state.LengthSeconds = cycle.Duration(e.state.Mode, e.cfg)
	}
	if e.state.LengthSeconds < e.state.RemainingSeconds {
		e.state.LengthSeconds = e.state.RemainingSeconds
	}
	if e.state.IsRunning {
		if e.state.SegmentSeconds <= 0 {
			e.state.SegmentSeconds = cycle.Duration(e.state.Mode, e.cfg)
		}
		if e.state.LengthSeconds < e.state.SegmentSeconds {
			e.state.LengthSeconds = e.state.SegmentSeconds
		}
		return
	}
	e.state.SegmentSeconds = 0
	limit := cycle.Duration(e.state.Mode, e.cfg)
	switch {
	case e.state.RemainingSeconds <= 0:
		e.state.RemainingSeconds = limit
		e.state.LengthSeconds = limit
	case e.state.RemainingSeconds > limit:
		e.setRemainingLocked(limit)
	}
	if e.state.CompletedSessions >= e.cfg.SessionsBeforeLongBreak {
		e.state.CompletedSessions = e.cfg.SessionsBeforeLongBreak - 1
	}
}

func (e *Engine) checkRevisionLocked(baseRevision int) error {
	if baseRevision <= 0 || baseRevision == e.revision {
		return nil
	}
	return ErrStaleRevision
}

func (e *Engine) effectiveConfig() model.SessionConfig {
	cfg := e.defaults.Merge(e.overrides)
	if err := cfg.Validate(); err != nil {
		log.Printf("warning: ignoring stored timer config for %s: %v", e.owner, err)
		return e.defaults
	}
	return cfg
}

func (e *Engine) persistLocked(ctx context.Context) {
	if e.store == nil {
		return
	}
	raw, err := encodeSnapshot(snapshot{
		State:          e.state,
		LastReconciled: e.marker,
		Revision:       e.revision,
		SavedAt:        e.now(),
	})
	if err != nil {
		log.Printf("warning: %v", err)
		return
	}
	if err := e.store.Put(context.WithoutCancel(ctx), snapshotKey(e.owner), raw); err != nil {
		log.Printf("warning: persist timer snapshot for %s: %v", e.owner, err)
	}
}

func (e *Engine) readSnapshot(ctx context.Context) (snapshot, bool, error) {
	if e.store == nil {
		return snapshot{}, false, nil
	}
	raw, ok, err := e.store.Get(ctx, snapshotKey(e.owner))
	if err != nil {
		return snapshot{}, false, fmt.Errorf("read timer snapshot for %s: %w", e.owner, err)
	}
	if !ok {
		return snapshot{}, false, nil
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		log.Printf("warning: ignoring timer snapshot for %s: %v", e.owner, err)
		return snapshot{}, false, nil
	}
	return snap, true, nil
}

func (e *Engine) readOverrides(ctx context.Context) (model.ConfigPatch, error) {
	var patch model.ConfigPatch
	if e.store == nil {
		return patch, nil
	}
	raw, ok, err := e.store.Get(ctx, configKey(e.owner))
	if err != nil {
		return patch, fmt.Errorf("read timer config for %s: %w", e.owner, err)
	}
	if !ok {
		return patch, nil
	}
	if err := json.Unmarshal([]byte(raw), &patch); err != nil {
		log.Printf("warning: ignoring timer config for %s: %v", e.owner, err)
		return model.ConfigPatch{}, nil
	}
	return patch, nil
}

func (e *Engine) writeOverrides(ctx context.Context) {
	if e.store == nil {
		return
	}
	raw, err := json.Marshal(e.overrides)
	if err != nil {
		log.Printf("warning: encode timer config for %s: %v", e.owner, err)
		return
	}
	if err := e.store.Put(context.WithoutCancel(ctx), configKey(e.owner), string(raw)); err != nil {
		log.Printf("warning: persist timer config for %s: %v", e.owner, err)
	}
}

func (e *Engine) viewLocked() View {
	view := View{
		Mode:              e.state.Mode,
		IsRunning:         e.state.IsRunning,
		RemainingSeconds:  e.state.RemainingSeconds,
		CompletedSessions: e.state.CompletedSessions,
		ActiveSubjectID:   e.state.ActiveSubjectID,
		Revision:          e.revision,
		Config:            e.cfg,
		Hidden:            e.fx.Hidden(),
		ServerTime:        e.now(),
	}
	if e.state.StartedAt != nil {
		startedAt := *e.state.StartedAt
		view.StartedAt = &startedAt
	}
	return view
}
