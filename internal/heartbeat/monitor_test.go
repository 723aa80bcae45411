package heartbeat

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTerminatesOnceAfterMissedPongs(t *testing.T) {
	var pings, terms atomic.Int32
	m := New(Config{Interval: 5 * time.Millisecond, MaxMissed: 3},
		func() error { pings.Add(1); return nil },
		func() { terms.Add(1) },
	)
	m.Start()
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for terms.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	// Give a stray tick the chance to terminate twice.
	time.Sleep(30 * time.Millisecond)

	if got := terms.Load(); got != 1 {
		t.Fatalf("terminate called %d times, want 1", got)
	}
	if got := pings.Load(); got != 3 {
		t.Fatalf("pings sent = %d, want 3", got)
	}
}

func TestPongKeepsConnectionAlive(t *testing.T) {
	var terms atomic.Int32
	var m *Monitor
	m = New(Config{Interval: 5 * time.Millisecond, MaxMissed: 2},
		// The previous ping is answered by the time the next one goes out.
		func() error { m.OnPong(); return nil },
		func() { terms.Add(1) },
	)
	m.Start()

	time.Sleep(80 * time.Millisecond)
	m.Stop()

	if got := terms.Load(); got != 0 {
		t.Fatalf("terminate called %d times for a responsive client", got)
	}
}

func TestTickIsDeterministic(t *testing.T) {
	var terms int
	m := New(Config{Interval: time.Hour, MaxMissed: 2}, func() error { return nil }, func() { terms++ })

	if !m.tick() || m.unanswered() != 1 {
		t.Fatalf("first tick: missed = %d", m.unanswered())
	}
	m.OnPong()
	if m.unanswered() != 0 {
		t.Fatalf("OnPong did not reset, missed = %d", m.unanswered())
	}
	m.tick()
	m.tick()
	if m.tick() {
		t.Fatal("tick after two misses should stop the loop")
	}
	if terms != 1 {
		t.Fatalf("terminate called %d times, want 1", terms)
	}
	if m.tick() {
		t.Fatal("tick after stop should report false")
	}
	if terms != 1 {
		t.Fatalf("terminate called again after stop: %d", terms)
	}
}
