package matchmaking

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/woozymasta/overbyte/internal/geometry"
	"github.com/woozymasta/overbyte/internal/maps"
	"github.com/woozymasta/overbyte/internal/room"
)

type fakeConn struct {
	mu    sync.Mutex
	types []string
}

func (c *fakeConn) Send(frame []byte) error {
	var m struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &m); err != nil {
		return err
	}
	c.mu.Lock()
	c.types = append(c.types, m.Type)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close(string) {}

func (c *fakeConn) got() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.types...)
}

func newAllocator(t *testing.T, maxRooms int) (*Allocator, *room.Manager) {
	t.Helper()

	spawns := map[string][]geometry.Vec3{}
	for q := 1; q <= MaxPartySize; q++ {
		var pts []geometry.Vec3
		for i := 0; i < 2*q; i++ {
			pts = append(pts, geometry.Vec3{X: float64(i)})
		}
		spawns[maps.ModeFor(2*q)] = pts
	}
	list, err := maps.New([]maps.Map{{Name: "Arena", Spawns: spawns}})
	if err != nil {
		t.Fatalf("maps: %v", err)
	}

	m := room.NewManager(room.ManagerConfig{Maps: list, MaxRooms: maxRooms})
	a := New(m, Config{})
	m.OnTeardown(a.Release)
	return a, m
}

func TestTwoPlayersFormOneVsOne(t *testing.T) {
	a, m := newAllocator(t, 0)
	p1, p2 := &fakeConn{}, &fakeConn{}

	r, err := a.JoinQueue("p1", 1, p1)
	if err != nil || r != nil {
		t.Fatalf("first join = %v, %v; want nil, nil", r, err)
	}
	r, err = a.JoinQueue("p2", 1, p2)
	if err != nil || r == nil {
		t.Fatalf("second join = %v, %v; want a room", r, err)
	}

	if r.Status() != room.StatusPlaying || r.Info().Mode != "1v1" {
		t.Fatalf("room status = %s mode = %s", r.Status(), r.Info().Mode)
	}
	if a.RoomOf("p1") != r || a.RoomOf("p2") != r {
		t.Fatal("players not indexed to the new room")
	}
	if a.QueueLen(1) != 0 {
		t.Fatalf("queue length = %d after match", a.QueueLen(1))
	}
	if m.Count() != 1 {
		t.Fatalf("active rooms = %d", m.Count())
	}
	for name, c := range map[string]*fakeConn{"p1": p1, "p2": p2} {
		got := c.got()
		if len(got) != 2 || got[0] != "startGame" || got[1] != "startPositions" {
			t.Fatalf("%s frames = %v", name, got)
		}
	}
}

func TestJoinQueueIsIdempotentAndMoves(t *testing.T) {
	a, _ := newAllocator(t, 0)

	_, _ = a.JoinQueue("p1", 3, &fakeConn{})
	_, _ = a.JoinQueue("p1", 3, &fakeConn{})
	if a.QueueLen(3) != 1 {
		t.Fatalf("queue 3 length = %d, want 1", a.QueueLen(3))
	}

	_, _ = a.JoinQueue("p1", 2, &fakeConn{})
	if a.QueueLen(3) != 0 || a.QueueLen(2) != 1 {
		t.Fatalf("queue lengths after move: 3=%d 2=%d", a.QueueLen(3), a.QueueLen(2))
	}

	_, _ = a.JoinQueue("p1", 9, &fakeConn{})
	if q, ok := a.Queued("p1"); !ok || q != 4 {
		t.Fatalf("quantity 9 queued as %d, %v; want 4", q, ok)
	}

	if !a.LeaveQueue("p1") || a.LeaveQueue("p1") {
		t.Fatal("LeaveQueue should succeed once")
	}
}

func TestFIFOAndLeftovers(t *testing.T) {
	a, _ := newAllocator(t, 0)

	var r *room.Room
	for i := 1; i <= 5; i++ {
		got, err := a.JoinQueue(fmt.Sprintf("p%d", i), 2, &fakeConn{})
		if err != nil {
			t.Fatalf("join p%d: %v", i, err)
		}
		if got != nil {
			r = got
		}
	}

	if r == nil {
		t.Fatal("no room formed for four 2v2 players")
	}
	players := r.Players()
	want := []string{"p1", "p2", "p3", "p4"}
	for i := range want {
		if players[i] != want[i] {
			t.Fatalf("room players = %v, want %v", players, want)
		}
	}
	if q, ok := a.Queued("p5"); !ok || q != 2 {
		t.Fatal("p5 should still be queued for 2v2")
	}
}

func TestInRoomCannotQueue(t *testing.T) {
	a, _ := newAllocator(t, 0)
	_, _ = a.JoinQueue("p1", 1, &fakeConn{})
	_, _ = a.JoinQueue("p2", 1, &fakeConn{})

	if _, err := a.JoinQueue("p1", 2, &fakeConn{}); !errors.Is(err, ErrInRoom) {
		t.Fatalf("err = %v, want ErrInRoom", err)
	}
}

func TestTeardownReleasesPlayers(t *testing.T) {
	a, _ := newAllocator(t, 0)
	_, _ = a.JoinQueue("p1", 1, &fakeConn{})
	r, _ := a.JoinQueue("p2", 1, &fakeConn{})

	r.RemovePlayer("p1")
	r.RemovePlayer("p2")

	if a.RoomOf("p1") != nil || a.RoomOf("p2") != nil {
		t.Fatal("torn down room still indexed")
	}
	if _, err := a.JoinQueue("p1", 1, &fakeConn{}); err != nil {
		t.Fatalf("rejoin after teardown: %v", err)
	}
}

func TestRoomCapRestoresQueue(t *testing.T) {
	a, m := newAllocator(t, 1)
	if _, err := m.Create("busy", 8); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, _ = a.JoinQueue("p1", 1, &fakeConn{})
	if _, err := a.JoinQueue("p2", 1, &fakeConn{}); !errors.Is(err, room.ErrTooManyRooms) {
		t.Fatalf("err = %v, want ErrTooManyRooms", err)
	}
	if a.QueueLen(1) != 2 {
		t.Fatalf("queue length = %d, want both players kept", a.QueueLen(1))
	}
	if a.RoomOf("p1") != nil {
		t.Fatal("player indexed to a room that was never created")
	}
}

func TestQueueAndRoomMembershipAreExclusive(t *testing.T) {
	a, _ := newAllocator(t, 0)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i%24)
			_, _ = a.JoinQueue(id, i%4+1, &fakeConn{})
			if i%5 == 0 {
				a.LeaveQueue(id)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 24; i++ {
		id := fmt.Sprintf("p%d", i)
		_, queued := a.Queued(id)
		inRoom := a.RoomOf(id) != nil
		if queued && inRoom {
			t.Fatalf("%s is both queued and in a room", id)
		}
	}

	seen := map[string]int{}
	for q := 1; q <= MaxPartySize; q++ {
		a.qmu.Lock()
		for _, e := range a.queues[q] {
			seen[e.uuid]++
		}
		a.qmu.Unlock()
	}
	for id, n := range seen {
		if n > 1 {
			t.Fatalf("%s appears in %d queues", id, n)
		}
	}
}

func TestMemberOfAnyRoomCannotQueue(t *testing.T) {
	a, m := newAllocator(t, 0)
	r, err := m.Create("adhoc", 4)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.AddPlayer("p1", &fakeConn{}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if a.RoomOf("p1") != r {
		t.Fatal("RoomOf must find rooms the allocator did not create")
	}
	if _, err := a.JoinQueue("p1", 1, &fakeConn{}); !errors.Is(err, ErrInRoom) {
		t.Fatalf("err = %v, want ErrInRoom", err)
	}
	if a.QueueLen(1) != 0 {
		t.Fatal("room member was queued")
	}
}
