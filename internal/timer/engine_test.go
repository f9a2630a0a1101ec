package timer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focustimer/internal/effects"
	"focustimer/internal/model"
)

func strPtr(value string) *string { return &value }

func intPtr(value int) *int { return &value }

func TestEngineStartTickPauseResume(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemStore(), newFakeClock(), model.DefaultSessionConfig())
	h.load(t)

	view, err := h.engine.Start(ctx, 0, strPtr("math"))
	require.NoError(t, err)
	assert.True(t, view.IsRunning)
	assert.Equal(t, 1500, view.RemainingSeconds)
	assert.Equal(t, 1, view.Revision)
	require.NotNil(t, view.ActiveSubjectID)
	assert.Equal(t, "math", *view.ActiveSubjectID)

	h.tick(10)
	assert.Equal(t, 1490, h.engine.View().RemainingSeconds)

	view, err = h.engine.Pause(ctx, view.Revision)
	require.NoError(t, err)
	assert.False(t, view.IsRunning)
	assert.Nil(t, view.StartedAt)
	assert.Equal(t, 1490, view.RemainingSeconds)

	h.clock.Advance(time.Hour)
	assert.Equal(t, 1490, h.engine.View().RemainingSeconds)

	view, err = h.engine.Start(ctx, view.Revision, nil)
	require.NoError(t, err)
	assert.Equal(t, 1490, view.RemainingSeconds)
	require.NotNil(t, view.ActiveSubjectID)
	assert.Equal(t, "math", *view.ActiveSubjectID)

	h.clock.Advance(4500 * time.Millisecond)
	view, verdict := h.engine.Reconcile(ctx)
	assert.Equal(t, VerdictResync, verdict)
	assert.Equal(t, 1486, view.RemainingSeconds)
}

func TestEngineStartWhileRunningIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemStore(), newFakeClock(), model.DefaultSessionConfig())
	h.load(t)

	first, err := h.engine.Start(ctx, 0, strPtr("math"))
	require.NoError(t, err)
	h.tick(3)

	second, err := h.engine.Start(ctx, 0, strPtr("physics"))
	require.NoError(t, err)
	assert.Equal(t, first.Revision, second.Revision)
	assert.Equal(t, first.StartedAt, second.StartedAt)
	assert.Equal(t, "math", *second.ActiveSubjectID)
}

func TestEngineLiveFocusCompletionRecordsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemStore(), newFakeClock(), shortConfig())
	h.load(t)

	_, err := h.engine.Start(ctx, 0, strPtr("math"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		scheduled, _ := h.scheduler.calls()
		return len(scheduled) == 1
	}, time.Second, time.Millisecond)
	h.tick(5)

	view := h.engine.View()
	assert.Equal(t, model.ModeShortBreak, view.Mode)
	assert.Equal(t, 1, view.CompletedSessions)
	assert.Equal(t, 3, view.RemainingSeconds)
	assert.False(t, view.IsRunning)
	assert.Equal(t, 2, view.Revision)

	got := h.drain()
	require.Equal(t, []effects.Kind{effects.KindCue, effects.KindMessage}, kinds(got))
	assert.Equal(t, effects.CueFocusEnded, got[0].Cue)
	assert.NotEmpty(t, got[0].Vibrate)
	assert.Equal(t, effects.OriginLive, got[1].Origin)

	records := h.sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, "user-1", records[0].UserID)
	assert.Equal(t, model.ModeFocus, records[0].Mode)
	assert.Equal(t, 5, records[0].DurationSeconds)
	require.NotNil(t, records[0].SubjectID)
	assert.Equal(t, "math", *records[0].SubjectID)
	assert.True(t, records[0].CompletedAt.Equal(h.clock.Now()))

	require.Eventually(t, func() bool {
		scheduled, cancelled := h.scheduler.calls()
		return len(scheduled) == 1 && len(cancelled) == 1
	}, time.Second, 5*time.Millisecond)
	scheduled, cancelled := h.scheduler.calls()
	assert.Equal(t, 5, scheduled[0].seconds)
	assert.Equal(t, model.ModeFocus, scheduled[0].mode)
	assert.Equal(t, []string{"rem-1"}, cancelled)
}

func TestEngineRecordsLengthActuallyRun(t *testing.T) {
	ctx := context.Background()

	t.Run("config changed mid-run", func(t *testing.T) {
		h := newHarness(t, newMemStore(), newFakeClock(), shortConfig())
		h.load(t)

		_, err := h.engine.Start(ctx, 0, nil)
		require.NoError(t, err)
		h.tick(2)
		view, err := h.engine.UpdateConfig(ctx, 0, model.ConfigPatch{FocusSeconds: intPtr(10)})
		require.NoError(t, err)
		assert.Equal(t, 3, view.RemainingSeconds)
		h.tick(3)

		records := h.sink.all()
		require.Len(t, records, 1)
		assert.Equal(t, 5, records[0].DurationSeconds)
	})

	t.Run("paused countdown clamped", func(t *testing.T) {
		h := newHarness(t, newMemStore(), newFakeClock(), shortConfig())
		h.load(t)

		_, err := h.engine.Start(ctx, 0, nil)
		require.NoError(t, err)
		h.tick(2)
		_, err = h.engine.Pause(ctx, 0)
		require.NoError(t, err)
		view, err := h.engine.UpdateConfig(ctx, 0, model.ConfigPatch{FocusSeconds: intPtr(2)})
		require.NoError(t, err)
		assert.Equal(t, 2, view.RemainingSeconds)

		_, err = h.engine.Start(ctx, 0, nil)
		require.NoError(t, err)
		h.tick(2)

		records := h.sink.all()
		require.Len(t, records, 1)
		assert.Equal(t, 4, records[0].DurationSeconds)
	})
}

func TestEngineCompletesCycleIntoLongBreak(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemStore(), newFakeClock(), shortConfig())
	h.load(t)

	_, err := h.engine.Start(ctx, 0, nil)
	require.NoError(t, err)
	h.tick(5)
	assert.Equal(t, model.ModeShortBreak, h.engine.View().Mode)

	_, err = h.engine.Start(ctx, 0, nil)
	require.NoError(t, err)
	h.tick(3)
	assert.Equal(t, model.ModeFocus, h.engine.View().Mode)

	_, err = h.engine.Start(ctx, 0, nil)
	require.NoError(t, err)
	h.tick(5)

	view := h.engine.View()
	assert.Equal(t, model.ModeLongBreak, view.Mode)
	assert.Equal(t, 0, view.CompletedSessions)
	assert.Equal(t, 4, view.RemainingSeconds)
	assert.Len(t, h.sink.all(), 2)
}

func TestEngineSkipAdvancesWithoutRecord(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemStore(), newFakeClock(), model.DefaultSessionConfig())
	h.load(t)

	started, err := h.engine.Start(ctx, 0, nil)
	require.NoError(t, err)
	h.tick(30)

	view, err := h.engine.Skip(ctx, started.Revision)
	require.NoError(t, err)
	assert.Equal(t, model.ModeShortBreak, view.Mode)
	assert.Equal(t, 1, view.CompletedSessions)
	assert.Equal(t, 300, view.RemainingSeconds)
	assert.False(t, view.IsRunning)
	assert.Equal(t, started.Revision+1, view.Revision)
	assert.Empty(t, h.sink.all())

	var messages []effects.Effect
	for _, effect := range h.drain() {
		if effect.Kind == effects.KindMessage {
			messages = append(messages, effect)
		}
	}
	require.Len(t, messages, 1)
	assert.Equal(t, "Focus session skipped", messages[0].Title)

	view, err = h.engine.Skip(ctx, view.Revision)
	require.NoError(t, err)
	assert.Equal(t, model.ModeFocus, view.Mode)
	assert.Equal(t, 1, view.CompletedSessions)
}

func TestEngineRejectsStaleRevision(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemStore(), newFakeClock(), model.DefaultSessionConfig())
	h.load(t)

	started, err := h.engine.Start(ctx, 0, nil)
	require.NoError(t, err)

	view, err := h.engine.Pause(ctx, started.Revision+4)
	require.ErrorIs(t, err, ErrStaleRevision)
	assert.True(t, view.IsRunning)
	assert.Equal(t, started.Revision, view.Revision)

	_, err = h.engine.UpdateConfig(ctx, started.Revision+1, model.ConfigPatch{FocusSeconds: intPtr(60)})
	require.ErrorIs(t, err, ErrStaleRevision)
	assert.Equal(t, 1500, h.engine.View().Config.FocusSeconds)
}

func TestEngineStopResetsAndClearsSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemStore(), newFakeClock(), model.DefaultSessionConfig())
	h.load(t)

	_, err := h.engine.Skip(ctx, 0)
	require.NoError(t, err)
	_, err = h.engine.Skip(ctx, 0)
	require.NoError(t, err)
	_, err = h.engine.Start(ctx, 0, strPtr("math"))
	require.NoError(t, err)
	h.tick(3)
	_, ok := h.store.value(snapshotKey("user-1"))
	require.True(t, ok)

	view, err := h.engine.Stop(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, model.ModeFocus, view.Mode)
	assert.False(t, view.IsRunning)
	assert.Equal(t, 1500, view.RemainingSeconds)
	assert.Equal(t, 0, view.CompletedSessions)
	assert.Nil(t, view.ActiveSubjectID)

	_, ok = h.store.value(snapshotKey("user-1"))
	assert.False(t, ok)
}

func TestEngineReconcilesSessionThatEndedWhileAway(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := newFakeClock()

	first := newHarness(t, store, clock, model.DefaultSessionConfig())
	first.load(t)
	_, err := first.engine.Start(ctx, 0, strPtr("math"))
	require.NoError(t, err)
	first.engine.Close()

	clock.Advance(2000 * time.Second)

	second := newHarness(t, store, clock, model.DefaultSessionConfig())
	view := second.load(t)
	assert.Equal(t, model.ModeShortBreak, view.Mode)
	assert.Equal(t, 1, view.CompletedSessions)
	assert.False(t, view.IsRunning)
	assert.Equal(t, 300, view.RemainingSeconds)
	assert.Equal(t, 2, view.Revision)

	got := second.drain()
	require.Equal(t, []effects.Kind{effects.KindMessage}, kinds(got))
	assert.Equal(t, effects.OriginWhileAway, got[0].Origin)
	assert.Empty(t, second.sink.all())

	snap := second.persisted(t)
	assert.Equal(t, model.ModeShortBreak, snap.State.Mode)
	require.NotNil(t, snap.LastReconciled)
}

func TestEngineAppliesWhileAwayCompletionOnce(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := newFakeClock()
	cfg := model.DefaultSessionConfig()
	cfg.AutoStartBreak = true

	first := newHarness(t, store, clock, cfg)
	first.load(t)
	_, err := first.engine.Start(ctx, 0, nil)
	require.NoError(t, err)
	first.engine.Close()

	clock.Advance(1600 * time.Second)

	second := newHarness(t, store, clock, cfg)
	view := second.load(t)
	assert.Equal(t, model.ModeShortBreak, view.Mode)
	assert.Equal(t, 1, view.CompletedSessions)
	assert.True(t, view.IsRunning)

	second.engine.SetVisibility(ctx, true)
	second.engine.SetVisibility(ctx, true)
	_, verdict := second.engine.Reconcile(ctx)
	assert.Equal(t, VerdictResync, verdict)
	second.engine.Close()

	third := newHarness(t, store, clock, cfg)
	view = third.load(t)
	assert.Equal(t, 1, view.CompletedSessions)
	assert.Equal(t, model.ModeShortBreak, view.Mode)

	messages := 0
	for _, effect := range second.drain() {
		if effect.Kind == effects.KindMessage {
			messages++
		}
	}
	assert.Equal(t, 1, messages)
	assert.Empty(t, third.drain())
}

func TestEngineCollapsesLongAbsenceToOneTransition(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := newFakeClock()
	cfg := model.DefaultSessionConfig()
	cfg.AutoStartBreak = true
	cfg.AutoStartFocus = true

	first := newHarness(t, store, clock, cfg)
	first.load(t)
	_, err := first.engine.Start(ctx, 0, nil)
	require.NoError(t, err)
	first.engine.Close()

	clock.Advance(10 * time.Hour)

	second := newHarness(t, store, clock, cfg)
	view := second.load(t)
	assert.Equal(t, model.ModeShortBreak, view.Mode)
	assert.Equal(t, 1, view.CompletedSessions)
	assert.True(t, view.IsRunning)
	assert.Equal(t, 300, view.RemainingSeconds)
	require.NotNil(t, view.StartedAt)
	assert.True(t, view.StartedAt.Equal(clock.Now()))
	assert.Len(t, second.drain(), 1)
}

func TestEngineDefersMessageUntilVisible(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemStore(), newFakeClock(), shortConfig(), hidden())
	h.load(t)

	_, err := h.engine.Start(ctx, 0, nil)
	require.NoError(t, err)
	h.tick(5)

	assert.Equal(t, []effects.Kind{effects.KindCue, effects.KindNotification}, kinds(h.drain()))

	view := h.engine.SetVisibility(ctx, true)
	assert.False(t, view.Hidden)
	got := h.drain()
	require.Equal(t, []effects.Kind{effects.KindMessage}, kinds(got))
	assert.True(t, got[0].Deferred)

	h.engine.SetVisibility(ctx, false)
	h.engine.SetVisibility(ctx, true)
	assert.Empty(t, h.drain())
}

func TestEngineNotifiesWhenViewUnfocused(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemStore(), newFakeClock(), shortConfig())
	h.load(t)
	h.engine.SetViewFocused(false)

	_, err := h.engine.Start(ctx, 0, nil)
	require.NoError(t, err)
	h.tick(5)

	assert.Equal(t, []effects.Kind{effects.KindCue, effects.KindMessage, effects.KindNotification}, kinds(h.drain()))
}

func TestEngineWarnsOnceBeforeEnd(t *testing.T) {
	ctx := context.Background()
	cfg := shortConfig()
	cfg.FocusSeconds = 63
	h := newHarness(t, newMemStore(), newFakeClock(), cfg)
	h.load(t)

	_, err := h.engine.Start(ctx, 0, nil)
	require.NoError(t, err)
	h.tick(2)
	assert.Empty(t, h.drain())

	h.tick(10)
	got := h.drain()
	require.Equal(t, []effects.Kind{effects.KindWarning}, kinds(got))
	assert.Equal(t, "One minute left in this focus session.", got[0].Body)
}

func TestEnginePersistsEveryChange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemStore(), newFakeClock(), model.DefaultSessionConfig())
	h.load(t)

	view, err := h.engine.Start(ctx, 0, nil)
	require.NoError(t, err)
	snap := h.persisted(t)
	assert.True(t, snap.State.IsRunning)
	assert.Equal(t, view.Revision, snap.Revision)

	for i := 0; i < 3; i++ {
		h.tick(1)
		snap = h.persisted(t)
		assert.Equal(t, h.engine.View().RemainingSeconds, snap.State.RemainingSeconds)
	}

	view, err = h.engine.Pause(ctx, 0)
	require.NoError(t, err)
	snap = h.persisted(t)
	assert.False(t, snap.State.IsRunning)
	assert.Nil(t, snap.State.StartedAt)
	assert.Equal(t, view.Revision, snap.Revision)
}

func TestEngineUpdateConfig(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := newFakeClock()
	h := newHarness(t, store, clock, model.DefaultSessionConfig())
	h.load(t)

	view, err := h.engine.UpdateConfig(ctx, 0, model.ConfigPatch{FocusSeconds: intPtr(600)})
	require.NoError(t, err)
	assert.Equal(t, 600, view.Config.FocusSeconds)
	assert.Equal(t, 600, view.RemainingSeconds)

	_, err = h.engine.Start(ctx, 0, nil)
	require.NoError(t, err)
	h.tick(2)

	view, err = h.engine.UpdateConfig(ctx, 0, model.ConfigPatch{FocusSeconds: intPtr(900)})
	require.NoError(t, err)
	assert.Equal(t, 900, view.Config.FocusSeconds)
	assert.Equal(t, 598, view.RemainingSeconds)
	assert.True(t, view.IsRunning)

	_, err = h.engine.UpdateConfig(ctx, 0, model.ConfigPatch{SessionsBeforeLongBreak: intPtr(0)})
	require.ErrorIs(t, err, model.ErrInvalidConfig)
	h.engine.Close()

	reloaded := newHarness(t, store, clock, model.DefaultSessionConfig())
	view = reloaded.load(t)
	assert.Equal(t, 900, view.Config.FocusSeconds)
	assert.Equal(t, 4, view.Config.SessionsBeforeLongBreak)
	assert.True(t, view.IsRunning)
	assert.Equal(t, 598, view.RemainingSeconds)
}

func TestEngineClampsPausedRemainderToShorterDuration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemStore(), newFakeClock(), model.DefaultSessionConfig())
	h.load(t)

	_, err := h.engine.Start(ctx, 0, nil)
	require.NoError(t, err)
	h.tick(10)
	_, err = h.engine.Pause(ctx, 0)
	require.NoError(t, err)

	view, err := h.engine.UpdateConfig(ctx, 0, model.ConfigPatch{FocusSeconds: intPtr(600)})
	require.NoError(t, err)
	assert.Equal(t, 600, view.RemainingSeconds)

	view, err = h.engine.UpdateConfig(ctx, 0, model.ConfigPatch{FocusSeconds: intPtr(1200)})
	require.NoError(t, err)
	assert.Equal(t, 1200, view.RemainingSeconds)
}

func TestEngineIgnoresCorruptSnapshot(t *testing.T) {
	tests := map[string]string{
		"invalid json":     "{not json",
		"unknown version":  `{"version":7,"state":{"mode":"focus","remainingSeconds":10}}`,
		"unknown mode":     `{"version":1,"state":{"mode":"nap","remainingSeconds":10}}`,
		"running no start": `{"version":1,"state":{"mode":"focus","isRunning":true,"remainingSeconds":10}}`,
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			store := newMemStore()
			store.data[snapshotKey("user-1")] = raw

			h := newHarness(t, store, newFakeClock(), model.DefaultSessionConfig())
			view := h.load(t)
			assert.Equal(t, model.ModeFocus, view.Mode)
			assert.False(t, view.IsRunning)
			assert.Equal(t, 1500, view.RemainingSeconds)
			assert.Equal(t, 0, view.CompletedSessions)
		})
	}
}

func TestEngineKeepsRunningWhenPersistenceFails(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failPuts = true
	h := newHarness(t, store, newFakeClock(), model.DefaultSessionConfig())
	h.load(t)

	view, err := h.engine.Start(ctx, 0, nil)
	require.NoError(t, err)
	assert.True(t, view.IsRunning)

	h.tick(2)
	assert.Equal(t, 1498, h.engine.View().RemainingSeconds)
	_, ok := store.value(snapshotKey("user-1"))
	assert.False(t, ok)
}

func TestEngineSyncsReminderOnControlOps(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemStore(), newFakeClock(), model.DefaultSessionConfig())
	h.load(t)

	waitFor := func(scheduled, cancelled int) {
		t.Helper()
		require.Eventually(t, func() bool {
			s, c := h.scheduler.calls()
			return len(s) == scheduled && len(c) == cancelled
		}, time.Second, time.Millisecond)
	}

	_, err := h.engine.Start(ctx, 0, strPtr("math"))
	require.NoError(t, err)
	waitFor(1, 0)
	_, err = h.engine.Pause(ctx, 0)
	require.NoError(t, err)
	waitFor(1, 1)
	_, err = h.engine.Start(ctx, 0, nil)
	require.NoError(t, err)
	waitFor(2, 1)
	_, err = h.engine.Stop(ctx, 0)
	require.NoError(t, err)
	waitFor(2, 2)

	scheduled, cancelled := h.scheduler.calls()
	assert.Equal(t, 1500, scheduled[0].seconds)
	require.NotNil(t, scheduled[0].subjectID)
	assert.Equal(t, "math", *scheduled[0].subjectID)
	assert.Equal(t, []string{"rem-1", "rem-2"}, cancelled)
}

func TestEngineHoldsStateInvariants(t *testing.T) {
	ctx := context.Background()
	cfg := shortConfig()
	h := newHarness(t, newMemStore(), newFakeClock(), cfg)
	h.load(t)

	ops := []func(){
		func() { _, _ = h.engine.Start(ctx, 0, nil) },
		func() { h.tick(2) },
		func() { _, _ = h.engine.Pause(ctx, 0) },
		func() { h.clock.Advance(time.Minute) },
		func() { _, _ = h.engine.Start(ctx, 0, nil) },
		func() { h.tick(7) },
		func() { _, _ = h.engine.Skip(ctx, 0) },
		func() { _, _ = h.engine.Start(ctx, 0, nil) },
		func() { h.clock.Advance(time.Hour); h.engine.SetVisibility(ctx, true) },
		func() { _, _ = h.engine.Skip(ctx, 0) },
		func() { _, _ = h.engine.Stop(ctx, 0) },
	}

	for i, op := range ops {
		op()
		view := h.engine.View()
		assert.Equal(t, view.IsRunning, view.StartedAt != nil, "step %d", i)
		assert.GreaterOrEqual(t, view.RemainingSeconds, 0, "step %d", i)
		assert.LessOrEqual(t, view.RemainingSeconds, durationOf(view.Mode, cfg), "step %d", i)
		assert.GreaterOrEqual(t, view.CompletedSessions, 0, "step %d", i)
		assert.Less(t, view.CompletedSessions, cfg.SessionsBeforeLongBreak, "step %d", i)
	}
}

func durationOf(mode model.SessionMode, cfg model.SessionConfig) int {
	switch mode {
	case model.ModeShortBreak:
		return cfg.ShortBreakSeconds
	case model.ModeLongBreak:
		return cfg.LongBreakSeconds
	default:
		return cfg.FocusSeconds
	}
}
