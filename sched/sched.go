// Package sched provides the timing facilities used by the history stack:
// duration measurement, debounced named scheduling for deferred work, and a
// process memory probe.
package sched

import (
	"runtime"
	"sync"
	"time"
)

// Token marks the start of a timed operation.
type Token struct {
	start time.Time
}

// StartTimer begins timing an operation.
func StartTimer() Token {
	return Token{start: time.Now()}
}

// EndTimer returns the elapsed time since the token was created.
func EndTimer(t Token) time.Duration {
	return time.Since(t.start)
}

// Scheduler runs named callbacks after a delay. Scheduling a name that is
// already pending cancels the pending timer first, so repeated scheduling
// debounces to a single run.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewScheduler creates a scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		timers: make(map[string]*time.Timer),
	}
}

// Schedule runs fn after d. A pending timer with the same name is cancelled.
// Scheduling on a stopped scheduler is a no-op.
func (s *Scheduler) Schedule(name string, fn func(), d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if t, ok := s.timers[name]; ok {
		t.Stop()
	}
	s.timers[name] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, name)
		stopped := s.stopped
		s.mu.Unlock()
		if !stopped {
			fn()
		}
	})
}

// Cancel stops a pending timer. Unknown names are ignored.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
}

// Pending returns the number of scheduled callbacks not yet run.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels all pending timers and rejects further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}
}

// MemoryUsage reports the process heap allocation in bytes.
func MemoryUsage() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}
