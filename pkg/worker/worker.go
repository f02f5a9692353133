// Package worker provides the two single-threaded executors that serialize
// state mutation for one engine session and its dependent sockets: a main
// loop that runs every codec operation and every network-callback handler,
// and a scheduler that runs ping, ping-timeout, and reconnect delays.
//
// Background HTTP and WebSocket callbacks arrive on arbitrary goroutines;
// they must Submit work to the main loop rather than mutate session state
// directly. The scheduler's timers themselves Submit to the main loop when
// they fire, so a single logical thread ends up owning all state.
package worker

import (
	"sync"
	"time"
)

// Worker is a single-goroutine task queue. Tasks submitted to it run in
// submission order, one at a time, never concurrently with each other.
type Worker struct {
	tasks   chan func()
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// New starts a worker with the given task queue depth.
func New(queueDepth int) *Worker {
	w := &Worker{
		tasks:   make(chan func(), queueDepth),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	defer close(w.stopped)
	for {
		select {
		case task, ok := <-w.tasks:
			if !ok {
				return
			}
			task()
		case <-w.done:
			// Drain whatever is already queued before exiting so a
			// close() submitted just before Shutdown still runs.
			for {
				select {
				case task := <-w.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// Submit enqueues a task to run on the worker goroutine. It never blocks the
// caller on the task's completion; it returns once the task is queued (or
// dropped, if the worker has already been shut down).
func (w *Worker) Submit(task func()) {
	if task == nil {
		return
	}
	select {
	case w.tasks <- task:
	case <-w.done:
	}
}

// Shutdown stops accepting new tasks and waits up to timeout for the
// goroutine to drain and exit. Calling Shutdown more than once is safe.
func (w *Worker) Shutdown(timeout time.Duration) {
	w.once.Do(func() {
		close(w.done)
	})
	select {
	case <-time.After(timeout):
	case <-w.stopped:
	}
}

// Timer is a cancellable one-shot timer handle, analogous to the session's
// ping and ping-timeout timers.
type Timer struct {
	t *time.Timer
}

// Scheduler runs delayed tasks and, on fire, hands them to a Worker so that
// the task itself executes serialized with all other session mutation.
type Scheduler struct {
	target *Worker
}

// NewScheduler returns a scheduler that submits fired tasks to target.
func NewScheduler(target *Worker) *Scheduler {
	return &Scheduler{target: target}
}

// Schedule runs task on the target worker after delay elapses. The returned
// Timer can be passed to Cancel to stop it before it fires; cancelling an
// already-fired or already-cancelled timer is a no-op.
func (s *Scheduler) Schedule(delay time.Duration, task func()) *Timer {
	t := time.AfterFunc(delay, func() {
		s.target.Submit(task)
	})
	return &Timer{t: t}
}

// Cancel stops a scheduled task from firing. Safe to call with a nil Timer
// or one that has already fired.
func Cancel(t *Timer) {
	if t == nil || t.t == nil {
		return
	}
	t.t.Stop()
}
