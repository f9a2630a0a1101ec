package timer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"focustimer/internal/effects"
	"focustimer/internal/model"
)

var ErrRegistryClosed = errors.New("timer registry closed")

type RegistryOptions struct {
	Store           Store
	Sink            effects.SessionSink
	Scheduler       effects.Scheduler
	Notifier        effects.Notifier
	ReminderTimeout time.Duration
	Defaults        model.SessionConfig
	// TickInterval of zero means one second; a negative value disables the
	// tick driver so callers can drive Tick themselves.
	TickInterval time.Duration
	StartHidden  bool
	Now          func() time.Time
}

// Registry holds one loaded engine per owner and runs its tick driver.
type Registry struct {
	opts RegistryOptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	engines map[string]*Engine
}

func NewRegistry(opts RegistryOptions) *Registry {
	if err := opts.Defaults.Validate(); err != nil {
		opts.Defaults = model.DefaultSessionConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		engines: make(map[string]*Engine),
	}
}

// Engine returns the owner's engine, loading and reconciling it on first use.
// An engine whose load failed is not kept; the next call loads again.
func (r *Registry) Engine(ctx context.Context, owner string) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if engine, ok := r.engines[owner]; ok {
		return engine, nil
	}

	fx := effects.New(effects.Options{
		Owner:           owner,
		Scheduler:       r.opts.Scheduler,
		ReminderTimeout: r.opts.ReminderTimeout,
		Sink:            r.opts.Sink,
		Notifier:        r.opts.Notifier,
		Hidden:          r.opts.StartHidden,
	})
	engine := NewEngine(Options{
		Owner:    owner,
		Store:    r.opts.Store,
		Effects:  fx,
		Defaults: r.opts.Defaults,
		Now:      r.opts.Now,
	})
	if _, err := engine.Load(ctx); err != nil {
		engine.Close()
		return nil, fmt.Errorf("load timer: %w", err)
	}
	r.engines[owner] = engine

	if r.opts.TickInterval >= 0 {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			RunDriver(r.ctx, engine, r.opts.TickInterval)
		}()
	}
	return engine, nil
}

// SetDefaults pushes new built-in defaults to every loaded engine and to
// engines loaded later.
func (r *Registry) SetDefaults(defaults model.SessionConfig) error {
	if err := defaults.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.opts.Defaults = defaults
	for owner, engine := range r.engines {
		if err := engine.SetDefaults(defaults); err != nil {
			log.Printf("warning: apply timer defaults for %s: %v", owner, err)
		}
	}
	return nil
}

// Close stops every tick driver and then closes the engines.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	engines := make([]*Engine, 0, len(r.engines))
	for _, engine := range r.engines {
		engines = append(engines, engine)
	}
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	for _, engine := range engines {
		engine.Close()
	}
}
