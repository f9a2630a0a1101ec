package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"focustimer/internal/effects"
	"focustimer/internal/model"
)

var errStoreDown = errors.New("store unavailable")

type memStore struct {
	mu       sync.Mutex
	data     map[string]string
	failPuts bool
	failGets bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGets {
		return "", false, errStoreDown
	}
	value, ok := s.data[key]
	return value, ok, nil
}

func (s *memStore) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPuts {
		return errStoreDown
	}
	s.data[key] = value
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memStore) setFailGets(fail bool) {
	s.mu.Lock()
	s.failGets = fail
	s.mu.Unlock()
}

func (s *memStore) value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.data[key]
	return value, ok
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type scheduleCall struct {
	seconds   int
	subjectID *string
	mode      model.SessionMode
}

type fakeScheduler struct {
	mu        sync.Mutex
	nextID    int
	scheduled []scheduleCall
	cancelled []string
}

func (f *fakeScheduler) Schedule(_ context.Context, seconds int, subjectID *string, mode model.SessionMode) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.scheduled = append(f.scheduled, scheduleCall{seconds: seconds, subjectID: subjectID, mode: mode})
	return fmt.Sprintf("rem-%d", f.nextID), nil
}

func (f *fakeScheduler) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeScheduler) calls() ([]scheduleCall, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scheduleCall(nil), f.scheduled...), append([]string(nil), f.cancelled...)
}

type fakeSink struct {
	mu      sync.Mutex
	records []model.SessionRecord
}

func (f *fakeSink) RecordSession(_ context.Context, record model.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func (f *fakeSink) all() []model.SessionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.SessionRecord(nil), f.records...)
}

type harness struct {
	engine    *Engine
	store     *memStore
	clock     *fakeClock
	scheduler *fakeScheduler
	sink      *fakeSink
	effects   <-chan effects.Effect
}

type harnessOption func(*effects.Options)

func hidden() harnessOption {
	return func(o *effects.Options) { o.Hidden = true }
}

// newHarness builds an engine that is subscribed to its effects but not yet
// loaded, so effects emitted by Load are observable.
func newHarness(t *testing.T, store *memStore, clock *fakeClock, cfg model.SessionConfig, opts ...harnessOption) *harness {
	t.Helper()

	scheduler := &fakeScheduler{}
	sink := &fakeSink{}
	fxOpts := effects.Options{
		Owner:     "user-1",
		Scheduler: scheduler,
		Sink:      sink,
		Notifier:  effects.LogNotifier{},
	}
	for _, opt := range opts {
		opt(&fxOpts)
	}
	fx := effects.New(fxOpts)
	engine := NewEngine(Options{
		Owner:    "user-1",
		Store:    store,
		Effects:  fx,
		Defaults: cfg,
		Now:      clock.Now,
	})
	stream, _ := engine.Subscribe(64)
	t.Cleanup(engine.Close)

	return &harness{
		engine:    engine,
		store:     store,
		clock:     clock,
		scheduler: scheduler,
		sink:      sink,
		effects:   stream,
	}
}

// tick advances the clock and the engine together, one second at a time.
func (h *harness) tick(n int) {
	for i := 0; i < n; i++ {
		h.clock.Advance(time.Second)
		h.engine.Tick(context.Background())
	}
}

func (h *harness) drain() []effects.Effect {
	var out []effects.Effect
	for {
		select {
		case effect, ok := <-h.effects:
			if !ok {
				return out
			}
			out = append(out, effect)
		default:
			return out
		}
	}
}

func (h *harness) persisted(t *testing.T) snapshot {
	t.Helper()
	raw, ok := h.store.value(snapshotKey("user-1"))
	if !ok {
		t.Fatalf("no snapshot persisted")
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		t.Fatalf("decode persisted snapshot: %v", err)
	}
	return snap
}

func kinds(list []effects.Effect) []effects.Kind {
	out := make([]effects.Kind, 0, len(list))
	for _, effect := range list {
		out = append(out, effect.Kind)
	}
	return out
}

func shortConfig() model.SessionConfig {
	return model.SessionConfig{
		FocusSeconds:            5,
		ShortBreakSeconds:       3,
		LongBreakSeconds:        4,
		SessionsBeforeLongBreak: 2,
	}
}

func (h *harness) load(t *testing.T) View {
	t.Helper()
	view, err := h.engine.Load(context.Background())
	if err != nil {
		t.Fatalf("load engine: %v", err)
	}
	return view
}
