// Package scheduler provides cancellable delayed tasks keyed by name.
// Rooms and the connection manager use it so that teardown can cancel every
// pending timer referencing them instead of letting stale callbacks fire.
package scheduler

import (
	"sync"
	"time"
)

// Scheduler owns a set of named timers. Scheduling a key that is already
// pending replaces the previous timer.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{
		timers: make(map[string]*time.Timer),
	}
}

// Schedule runs fn after d unless the key is cancelled or the scheduler is
// stopped first. fn runs on its own goroutine.
func (s *Scheduler) Schedule(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.timers[key] = time.AfterFunc(d, func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
}

// Cancel stops the pending task for key, if any. It reports whether a task
// was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[key]
	if ok {
		t.Stop()
		delete(s.timers, key)
	}
	return ok
}

// Pending reports whether a task is scheduled for key.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Stop cancels every pending task. The scheduler accepts no further work.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}
