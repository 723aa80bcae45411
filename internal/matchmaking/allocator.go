// Package matchmaking groups queued players by party size and materializes
// rooms once a queue holds enough of them.
package matchmaking

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/overbyte/internal/protocol"
	"github.com/woozymasta/overbyte/internal/room"
)

// MaxPartySize is the largest supported party.
const MaxPartySize = 4

// ErrInRoom is returned when a player who is already in a room joins a queue.
var ErrInRoom = errors.New("player is already in a room")

// Rooms creates rooms for matched players and finds the room a player sits
// in, whoever created it.
type Rooms interface {
	Create(id string, maxPlayers int) (*room.Room, error)
	RoomOf(uuid string) *room.Room
}

// Config holds matchmaking settings.
type Config struct {
	// Capacity maps party size to room size; missing sizes use 2*size.
	Capacity map[int]int
}

type entry struct {
	conn room.Conn
	uuid string
}

// Allocator keeps one FIFO queue per party size and the player-to-room index
// of the rooms it created.
type Allocator struct {
	rooms    Rooms
	index    map[string]*room.Room
	newID    func(partySize int) string
	capacity [MaxPartySize + 1]int
	queues   [MaxPartySize + 1][]entry

	// qmu guards queues and serializes room creation; rmu guards index.
	// Lock order is qmu before rmu.
	qmu sync.Mutex
	rmu sync.RWMutex
}

// New creates an allocator backed by rooms.
func New(rooms Rooms, cfg Config) *Allocator {
	a := &Allocator{
		rooms: rooms,
		index: make(map[string]*room.Room),
		newID: func(q int) string { return fmt.Sprintf("%dv%d-%s", q, q, uuid.NewString()) },
	}
	for q := 1; q <= MaxPartySize; q++ {
		a.capacity[q] = 2 * q
		if c, ok := cfg.Capacity[q]; ok && c > 0 {
			a.capacity[q] = c
		}
	}
	return a
}

// JoinQueue queues uuid for a party size clamped to [1,4]. Joining the same
// queue twice is a no-op; joining another size moves the player. When the
// queue holds a full room's worth of players, the oldest are dequeued into a
// new room which starts immediately; that room is returned.
func (a *Allocator) JoinQueue(id string, quantity int, conn room.Conn) (*room.Room, error) {
	q := protocol.ClampPartySize(quantity)

	a.qmu.Lock()
	defer a.qmu.Unlock()

	if a.RoomOf(id) != nil {
		return nil, ErrInRoom
	}

	if cur, ok := a.queuedLocked(id); ok {
		if cur == q {
			return nil, nil
		}
		a.removeLocked(cur, id)
	}

	a.queues[q] = append(a.queues[q], entry{uuid: id, conn: conn})
	log.Debug().Str("player", id).Int("quantity", q).Int("queued", len(a.queues[q])).Msg("Player queued")

	need := a.capacity[q]
	if len(a.queues[q]) < need {
		return nil, nil
	}

	batch := make([]entry, need)
	copy(batch, a.queues[q][:need])
	a.queues[q] = append(a.queues[q][:0], a.queues[q][need:]...)

	r, err := a.rooms.Create(a.newID(q), need)
	if err != nil {
		// Put the batch back at the head so nobody loses their place.
		a.queues[q] = append(batch, a.queues[q]...)
		log.Warn().Err(err).Int("quantity", q).Msg("Failed to create matched room")
		return nil, fmt.Errorf("create room: %w", err)
	}

	a.rmu.Lock()
	for _, e := range batch {
		a.index[e.uuid] = r
	}
	a.rmu.Unlock()

	players := make([]string, 0, len(batch))
	for _, e := range batch {
		players = append(players, e.uuid)
		if err := r.AddPlayer(e.uuid, e.conn); err != nil {
			log.Error().Err(err).Str("room", r.ID()).Str("player", e.uuid).Msg("Failed to seat matched player")
		}
	}

	log.Info().Str("room", r.ID()).Int("quantity", q).Strs("players", players).Msg("Match formed")
	return r, nil
}

// LeaveQueue removes uuid from whichever queue holds it.
func (a *Allocator) LeaveQueue(id string) bool {
	a.qmu.Lock()
	defer a.qmu.Unlock()

	q, ok := a.queuedLocked(id)
	if !ok {
		return false
	}
	a.removeLocked(q, id)
	log.Debug().Str("player", id).Int("quantity", q).Msg("Player left queue")
	return true
}

// RoomOf returns the room uuid is a member of, or nil. Rooms the allocator
// seated the player in are checked first, then every active room.
func (a *Allocator) RoomOf(id string) *room.Room {
	a.rmu.RLock()
	r := a.index[id]
	a.rmu.RUnlock()

	if r != nil {
		return r
	}
	return a.rooms.RoomOf(id)
}

// Forget drops uuid from the room index after it left its room.
func (a *Allocator) Forget(id string) {
	a.rmu.Lock()
	delete(a.index, id)
	a.rmu.Unlock()
}

// Release drops every index entry pointing at r. It is registered as a room
// teardown listener.
func (a *Allocator) Release(r *room.Room) {
	a.rmu.Lock()
	defer a.rmu.Unlock()
	for id, cur := range a.index {
		if cur == r {
			delete(a.index, id)
		}
	}
}

// Queued returns the party size uuid is queued for.
func (a *Allocator) Queued(id string) (int, bool) {
	a.qmu.Lock()
	defer a.qmu.Unlock()
	return a.queuedLocked(id)
}

// QueueLen returns the number of players waiting for party size q.
func (a *Allocator) QueueLen(q int) int {
	if q < 1 || q > MaxPartySize {
		return 0
	}
	a.qmu.Lock()
	defer a.qmu.Unlock()
	return len(a.queues[q])
}

func (a *Allocator) queuedLocked(id string) (int, bool) {
	for q := 1; q <= MaxPartySize; q++ {
		for _, e := range a.queues[q] {
			if e.uuid == id {
				return q, true
			}
		}
	}
	return 0, false
}

func (a *Allocator) removeLocked(q int, id string) {
	queue := a.queues[q]
	for i, e := range queue {
		if e.uuid == id {
			a.queues[q] = append(queue[:i], queue[i+1:]...)
			return
		}
	}
}
