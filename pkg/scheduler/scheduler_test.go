package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleFires(t *testing.T) {
	s := New()
	defer s.Stop()

	fired := make(chan struct{})
	s.Schedule("task", 10*time.Millisecond, func() { close(fired) })
	if !s.Pending("task") {
		t.Fatalf("task should be pending")
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("task never fired")
	}
	// The key is released once the task runs.
	deadline := time.Now().Add(time.Second)
	for s.Pending("task") {
		if time.Now().After(deadline) {
			t.Fatalf("task still pending after firing")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCancel(t *testing.T) {
	s := New()
	defer s.Stop()

	var fired atomic.Bool
	s.Schedule("task", 20*time.Millisecond, func() { fired.Store(true) })
	if !s.Cancel("task") {
		t.Fatalf("Cancel should report a pending task")
	}
	if s.Cancel("task") {
		t.Fatalf("second Cancel should report nothing pending")
	}

	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Errorf("cancelled task fired")
	}
}

func TestScheduleReplacesPendingKey(t *testing.T) {
	s := New()
	defer s.Stop()

	var first atomic.Bool
	second := make(chan struct{})
	s.Schedule("task", 20*time.Millisecond, func() { first.Store(true) })
	s.Schedule("task", 40*time.Millisecond, func() { close(second) })

	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatalf("replacement task never fired")
	}
	if first.Load() {
		t.Errorf("replaced task fired")
	}
}

func TestStop(t *testing.T) {
	s := New()

	var fired atomic.Bool
	s.Schedule("a", 20*time.Millisecond, func() { fired.Store(true) })
	s.Schedule("b", 20*time.Millisecond, func() { fired.Store(true) })
	s.Stop()

	// No further work is accepted after Stop.
	s.Schedule("c", time.Millisecond, func() { fired.Store(true) })

	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Errorf("task fired after Stop")
	}
	if s.Pending("a") || s.Pending("c") {
		t.Errorf("stopped scheduler reports pending tasks")
	}
}
