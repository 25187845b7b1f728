package sched

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimer(t *testing.T) {
	tok := StartTimer()
	time.Sleep(5 * time.Millisecond)
	if got := EndTimer(tok); got < 5*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 5ms", got)
	}
}

func TestScheduleRuns(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	done := make(chan struct{})
	s.Schedule("work", func() { close(done) }, 5*time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled callback never ran")
	}
	if s.Pending() != 0 {
		t.Errorf("pending = %d after run, want 0", s.Pending())
	}
}

func TestScheduleDebounces(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var runs atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		s.Schedule("gc", func() {
			runs.Add(1)
			close(done)
		}, 20*time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("debounced callback never ran")
	}
	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
}

func TestCancel(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var runs atomic.Int32
	s.Schedule("work", func() { runs.Add(1) }, 10*time.Millisecond)
	s.Cancel("work")
	s.Cancel("unknown")

	time.Sleep(30 * time.Millisecond)
	if got := runs.Load(); got != 0 {
		t.Errorf("runs = %d, want 0 after cancel", got)
	}
	if s.Pending() != 0 {
		t.Errorf("pending = %d, want 0", s.Pending())
	}
}

func TestStopRejectsScheduling(t *testing.T) {
	s := NewScheduler()

	var runs atomic.Int32
	s.Schedule("a", func() { runs.Add(1) }, 10*time.Millisecond)
	s.Stop()
	s.Schedule("b", func() { runs.Add(1) }, time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	if got := runs.Load(); got != 0 {
		t.Errorf("runs = %d, want 0 after stop", got)
	}
}

func TestMemoryUsage(t *testing.T) {
	if MemoryUsage() == 0 {
		t.Error("heap allocation should be nonzero")
	}
}
