package effects

import (
	"context"
	"log"
	"sync"
	"time"

	"focustimer/internal/model"
)

type reminderJob struct {
	running   bool
	seconds   int
	subjectID *string
	mode      model.SessionMode
}

// reminderSync keeps at most one external reminder registered per engine.
// Calls run on a single worker goroutine so they stay ordered and never
// block the caller. Only the latest requested state is kept: updates that
// arrive while a call is in flight replace each other, so the worker always
// ends on the most recent one.
type reminderSync struct {
	owner     string
	scheduler Scheduler
	timeout   time.Duration

	mu      sync.Mutex
	closed  bool
	desired *reminderJob
	wake    chan struct{}
	done    chan struct{}

	// owned by the worker goroutine
	reminderID string
}

func newReminderSync(owner string, scheduler Scheduler, timeout time.Duration) *reminderSync {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	r := &reminderSync{
		owner:     owner,
		scheduler: scheduler,
		timeout:   timeout,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *reminderSync) sync(state model.TimerState) {
	job := reminderJob{
		running:   state.IsRunning,
		seconds:   state.RemainingSeconds,
		subjectID: state.ActiveSubjectID,
		mode:      state.Mode,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.desired = &job
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// close applies the last requested state and stops the worker.
func (r *reminderSync) close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.wake)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *reminderSync) run() {
	defer close(r.done)
	for range r.wake {
		r.drain()
	}
	r.drain()
}

func (r *reminderSync) drain() {
	for {
		r.mu.Lock()
		job := r.desired
		r.desired = nil
		r.mu.Unlock()
		if job == nil {
			return
		}
		r.apply(*job)
	}
}

func (r *reminderSync) apply(job reminderJob) {
	if r.reminderID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.scheduler.Cancel(ctx, r.reminderID)
		cancel()
		if err != nil {
			log.Printf("warning: cancel reminder %s for %s: %v", r.reminderID, r.owner, err)
		}
		r.reminderID = ""
	}

	if !job.running || job.seconds <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	id, err := r.scheduler.Schedule(ctx, job.seconds, job.subjectID, job.mode)
	if err != nil {
		log.Printf("warning: schedule reminder for %s: %v", r.owner, err)
		return
	}
	r.reminderID = id
}
