package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRegistry() (*Registry, *clock) {
	c := &clock{now: time.Unix(1700000000, 0)}
	return NewWithClock(Config{}, c.Now), c
}

func register(t *testing.T, r *Registry, id string) {
	t.Helper()
	if _, err := r.Register(Registration{ID: id, Host: id + ".local", Port: 3003}); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r, _ := newRegistry()
	register(t, r, "a")

	if _, err := r.Register(Registration{ID: "a", Host: "other", Port: 1}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("err = %v, want ErrAlreadyRegistered", err)
	}

	s, _ := r.Get("a")
	if s.Host != "a.local" || s.Players != 0 || s.Status != StatusOnline {
		t.Fatalf("server = %+v", s)
	}
}

func TestHeartbeatUnknown(t *testing.T) {
	r, _ := newRegistry()
	if _, err := r.Heartbeat("ghost", 1, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAssignLeastLoaded(t *testing.T) {
	r, _ := newRegistry()
	for _, id := range []string{"A", "B", "C"} {
		register(t, r, id)
	}
	_, _ = r.Heartbeat("A", 3, "online")
	_, _ = r.Heartbeat("B", 1, "online")
	_, _ = r.Heartbeat("C", 0, "offline")

	s, err := r.Assign()
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if s.ID != "B" {
		t.Fatalf("assigned %s, want B", s.ID)
	}
}

func TestAssignTieBreaksOnRegistrationOrder(t *testing.T) {
	r, _ := newRegistry()
	for _, id := range []string{"z", "y", "x"} {
		register(t, r, id)
	}

	for i := 0; i < 10; i++ {
		s, _ := r.Assign()
		if s.ID != "z" {
			t.Fatalf("assigned %s, want z", s.ID)
		}
	}
}

func TestAssignNoServers(t *testing.T) {
	r, _ := newRegistry()
	if _, err := r.Assign(); !errors.Is(err, ErrNoServers) {
		t.Fatalf("err = %v", err)
	}

	register(t, r, "a")
	_, _ = r.Heartbeat("a", 0, "draining")
	if _, err := r.Assign(); !errors.Is(err, ErrNoServers) {
		t.Fatalf("err = %v, want ErrNoServers with only non-online servers", err)
	}
}

func TestSweepEvictsStale(t *testing.T) {
	r, c := newRegistry()
	register(t, r, "old")
	c.Advance(15 * time.Second)
	register(t, r, "fresh")
	_, _ = r.Heartbeat("old", 2, "offline")
	c.Advance(15 * time.Second)

	var evicted []string
	r.OnEvict(func(s Server) { evicted = append(evicted, s.ID) })

	// old heartbeated 15s ago, fresh registered 15s ago; neither is past 20s.
	if got := r.Sweep(c.Now()); len(got) != 0 {
		t.Fatalf("evicted %v too early", got)
	}

	_, _ = r.Heartbeat("fresh", 0, "")
	c.Advance(6 * time.Second)
	r.Sweep(c.Now())

	if len(evicted) != 1 || evicted[0] != "old" {
		t.Fatalf("evicted = %v, want [old]", evicted)
	}
	if _, ok := r.Get("old"); ok {
		t.Fatal("old is still registered")
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d", r.Len())
	}
}

func TestSnapshotOrderAndTotals(t *testing.T) {
	r, _ := newRegistry()
	for _, id := range []string{"b", "a", "c"} {
		register(t, r, id)
	}
	_, _ = r.Heartbeat("a", 4, "")
	_, _ = r.Heartbeat("c", 2, "offline")

	snap := r.Snapshot()
	if len(snap) != 3 || snap[0].ID != "b" || snap[1].ID != "a" || snap[2].ID != "c" {
		t.Fatalf("snapshot order = %v", snap)
	}
	if r.Players() != 6 || r.Online() != 2 {
		t.Fatalf("players = %d online = %d", r.Players(), r.Online())
	}
}

func TestRunStopsWithContext(t *testing.T) {
	r := New(Config{Staleness: time.Millisecond})
	register(t, r, "a")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for r.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if r.Len() != 0 {
		t.Fatal("stale server was not swept")
	}
}
