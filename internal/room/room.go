// Package room implements the authoritative match container: membership, the
// waiting/playing/cancelled state machine, the fill countdown and broadcasts.
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/woozymasta/overbyte/internal/geometry"
	"github.com/woozymasta/overbyte/internal/logger"
	"github.com/woozymasta/overbyte/internal/maps"
	"github.com/woozymasta/overbyte/internal/protocol"
)

// Status is the room lifecycle state.
type Status string

// Room states. Transitions are waiting->playing or waiting->cancelled only.
const (
	StatusWaiting   Status = "waiting"
	StatusPlaying   Status = "playing"
	StatusCancelled Status = "cancelled"
)

// Cancellation reasons sent in roomCancelled.
const (
	ReasonTimeout  = "timeout"
	ReasonNoSpawns = "no_spawns"
	ReasonShutdown = "shutdown"
)

// MaxHP is the starting health of every player.
const MaxHP = 100

var (
	// ErrRoomStarted is returned when joining a room that is no longer waiting.
	ErrRoomStarted = errors.New("room already started")

	// ErrRoomFull is returned when a waiting room has no free slot.
	ErrRoomFull = errors.New("room is full")

	// ErrRoomClosed is returned for operations on a torn down room.
	ErrRoomClosed = errors.New("room is closed")
)

// Conn is the outbound side of a player connection.
type Conn interface {
	// Send queues one encoded frame. It must not block on a slow peer.
	Send(frame []byte) error
	// Close ends the connection with a human-readable reason.
	Close(reason string)
}

// Session is a player slot inside a room.
type Session struct {
	conn      Conn
	UUID      string
	HP        int
	Connected bool
}

// Options configure a new room.
type Options struct {
	// Maps is the list a map is picked from on start.
	Maps *maps.List
	// OnTeardown is called once, without locks held, when the room empties or is cancelled.
	OnTeardown func(*Room)
	// MaxPlayers is the capacity; the room starts when it is reached.
	MaxPlayers int
	// Timeout is the waiting countdown; zero disables it.
	Timeout time.Duration
}

// Room is one match instance.
type Room struct {
	createdAt  time.Time
	maps       *maps.List
	onTeardown func(*Room)
	countdown  *time.Timer
	players    map[string]*Session
	log        zerolog.Logger
	id         string
	mode       string
	mapName    string
	status     Status
	order      []string
	maxPlayers int
	generation uint64
	closed     bool
	mu         sync.Mutex
}

// delivery is one frame prepared under the lock and sent after it is released.
// A non-empty closeReason closes the connection after the frame.
type delivery struct {
	conn        Conn
	closeReason string
	frame       []byte
}

// New creates a waiting room and arms its countdown.
func New(id string, opts Options) *Room {
	if opts.MaxPlayers < 1 {
		opts.MaxPlayers = 2
	}

	r := &Room{
		id:         id,
		maxPlayers: opts.MaxPlayers,
		mode:       maps.ModeFor(opts.MaxPlayers),
		maps:       opts.Maps,
		onTeardown: opts.OnTeardown,
		status:     StatusWaiting,
		players:    make(map[string]*Session, opts.MaxPlayers),
		createdAt:  time.Now(),
		log:        logger.Component("room").With().Str("room", id).Logger(),
	}

	if opts.Timeout > 0 {
		r.mu.Lock()
		r.armCountdownLocked(opts.Timeout)
		r.mu.Unlock()
	}

	return r
}

// ID returns the room id.
func (r *Room) ID() string { return r.id }

// MaxPlayers returns the room capacity.
func (r *Room) MaxPlayers() int { return r.maxPlayers }

// Status returns the current state.
func (r *Room) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// AddPlayer inserts a session. A uuid that is already a member gets its
// connection replaced, which is how a matched player attaches their socket.
// New members are only accepted while waiting. Reaching capacity starts the game.
func (r *Room) AddPlayer(uuid string, conn Conn) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return ErrRoomClosed
	}

	if s, ok := r.players[uuid]; ok {
		old := s.conn
		s.conn = conn
		s.Connected = true
		r.mu.Unlock()

		if old != nil && old != conn {
			old.Close("session replaced")
		}
		r.log.Debug().Str("player", uuid).Msg("Player connection rebound")
		return nil
	}

	if r.status != StatusWaiting {
		r.mu.Unlock()
		return ErrRoomStarted
	}
	if len(r.players) >= r.maxPlayers {
		r.mu.Unlock()
		return ErrRoomFull
	}

	r.players[uuid] = &Session{UUID: uuid, conn: conn, Connected: true, HP: MaxHP}
	r.order = append(r.order, uuid)
	r.log.Debug().Str("player", uuid).Int("players", len(r.players)).Msg("Player added")

	if r.connectedLocked() != r.maxPlayers {
		r.mu.Unlock()
		return nil
	}

	out, cancelled := r.startLocked()
	r.mu.Unlock()

	r.deliver(out)
	if cancelled {
		r.finish()
	}
	return nil
}

// startLocked flips a full room to playing and prepares startGame and
// startPositions for every member. A map without enough spawns cancels the room.
func (r *Room) startLocked() ([]delivery, bool) {
	r.stopCountdownLocked()

	var m maps.Map
	if r.maps != nil {
		m = r.maps.Pick(r.id)
	}
	spawns := m.Spawns[r.mode]
	if len(spawns) < len(r.order) {
		r.log.Error().
			Str("map", m.Name).
			Str("mode", r.mode).
			Int("spawns", len(spawns)).
			Int("players", len(r.order)).
			Msg("Not enough spawn points, cancelling room")
		return r.cancelLocked(ReasonNoSpawns), true
	}

	r.status = StatusPlaying
	r.mapName = m.Name

	players := make([]string, len(r.order))
	copy(players, r.order)

	positions := make(map[string]geometry.Vec3, len(players))
	for i, uuid := range players {
		positions[uuid] = spawns[i]
	}

	start := r.encode(protocol.StartGame{
		Type:    protocol.EventStartGame,
		RoomID:  r.id,
		Map:     m.Name,
		Mode:    r.mode,
		Players: players,
	})
	pos := r.encode(protocol.StartPositions{Type: protocol.EventStartPositions, Positions: positions})

	r.log.Info().
		Str("map", m.Name).
		Str("mode", r.mode).
		Strs("players", players).
		Msg("Game started")

	conns := r.connsLocked("")
	out := make([]delivery, 0, 2*len(conns))
	for _, c := range conns {
		out = append(out, delivery{conn: c, frame: start}, delivery{conn: c, frame: pos})
	}
	return out, false
}

// cancelLocked moves a waiting room to cancelled and empties it. The returned
// deliveries carry roomCancelled to every member and close them.
func (r *Room) cancelLocked(reason string) []delivery {
	r.stopCountdownLocked()
	r.status = StatusCancelled
	r.closed = true

	frame := r.encode(protocol.RoomCancelled{Type: protocol.EventRoomCancelled, RoomID: r.id, Reason: reason})

	out := make([]delivery, 0, len(r.players))
	for _, uuid := range r.order {
		s := r.players[uuid]
		s.Connected = false
		if s.conn != nil {
			out = append(out, delivery{conn: s.conn, frame: frame, closeReason: "room cancelled: " + reason})
		}
	}
	r.players = make(map[string]*Session)
	r.order = nil

	return out
}

// armCountdownLocked schedules the waiting timeout. The generation ties the
// timer to this arming so a stale fire is ignored.
func (r *Room) armCountdownLocked(d time.Duration) {
	r.generation++
	gen := r.generation
	r.countdown = time.AfterFunc(d, func() { r.expire(gen) })
}

// stopCountdownLocked cancels the countdown; later calls are no-ops.
func (r *Room) stopCountdownLocked() {
	if r.countdown == nil {
		return
	}
	r.countdown.Stop()
	r.countdown = nil
	r.generation++
}

// expire runs when the countdown fires.
func (r *Room) expire(gen uint64) {
	r.mu.Lock()
	if gen != r.generation || r.closed || r.status != StatusWaiting {
		r.mu.Unlock()
		return
	}
	r.countdown = nil

	r.log.Info().
		Int("players", len(r.players)).
		Int("max_players", r.maxPlayers).
		Msg("Room countdown expired")

	out := r.cancelLocked(ReasonTimeout)
	r.mu.Unlock()

	r.deliver(out)
	r.finish()
}

// Cancel cancels a waiting room, notifying and closing every member.
// It returns false if the room already left the waiting state.
func (r *Room) Cancel(reason string) bool {
	r.mu.Lock()
	if r.closed || r.status != StatusWaiting {
		r.mu.Unlock()
		return false
	}
	out := r.cancelLocked(reason)
	r.mu.Unlock()

	r.deliver(out)
	r.finish()
	return true
}

// RemovePlayer removes a member. The last member leaving tears the room down and
// receives roomDeleted; otherwise the others receive playerDisconnected.
func (r *Room) RemovePlayer(uuid string) bool {
	return r.remove(uuid, nil)
}

// Detach removes uuid only while conn is still its bound connection, so a
// superseded socket closing does not evict the player's new one.
func (r *Room) Detach(uuid string, conn Conn) bool {
	return r.remove(uuid, conn)
}

func (r *Room) remove(uuid string, expect Conn) bool {
	r.mu.Lock()

	s, ok := r.players[uuid]
	if !ok || (expect != nil && s.conn != expect) {
		r.mu.Unlock()
		return false
	}

	s.Connected = false
	delete(r.players, uuid)
	for i, id := range r.order {
		if id == uuid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	var out []delivery
	teardown := false
	if len(r.players) == 0 {
		r.stopCountdownLocked()
		r.closed = true
		teardown = true
		if s.conn != nil {
			out = append(out, delivery{conn: s.conn, frame: r.encode(protocol.RoomNotice{Type: protocol.EventRoomDeleted, RoomID: r.id})})
		}
	} else {
		frame := r.encode(protocol.PlayerDisconnected{Type: protocol.EventPlayerDisconnected, UUID: uuid})
		for _, c := range r.connsLocked("") {
			out = append(out, delivery{conn: c, frame: frame})
		}
	}
	r.mu.Unlock()

	r.log.Info().Str("player", uuid).Bool("teardown", teardown).Msg("Player removed")

	r.deliver(out)
	if teardown {
		r.finish()
	}
	return true
}

// Broadcast sends payload to every connected member.
func (r *Room) Broadcast(payload any) {
	r.BroadcastExcept("", payload)
}

// BroadcastExcept sends payload to every connected member but uuid.
func (r *Room) BroadcastExcept(uuid string, payload any) {
	frame := r.encode(payload)
	if frame == nil {
		return
	}

	r.mu.Lock()
	conns := r.connsLocked(uuid)
	r.mu.Unlock()

	for _, c := range conns {
		r.send(c, frame)
	}
}

// SendTo sends payload to a single member.
func (r *Room) SendTo(uuid string, payload any) {
	r.mu.Lock()
	s, ok := r.players[uuid]
	var conn Conn
	if ok && s.Connected {
		conn = s.conn
	}
	r.mu.Unlock()

	if conn == nil {
		return
	}
	if frame := r.encode(payload); frame != nil {
		r.send(conn, frame)
	}
}

// Has reports whether uuid is a connected member.
func (r *Room) Has(uuid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.players[uuid]
	return ok && s.Connected
}

// Damage subtracts damage from the target's HP, floored at zero, and returns the
// new value. ok is false when the target is not a connected member.
func (r *Room) Damage(target string, damage int) (hp int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, found := r.players[target]
	if !found || !s.Connected {
		return 0, false
	}

	s.HP -= damage
	if s.HP < 0 {
		s.HP = 0
	}
	return s.HP, true
}

// HP returns a member's current health.
func (r *Room) HP(uuid string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.players[uuid]
	if !ok {
		return 0, false
	}
	return s.HP, true
}

// ConnectedCount returns the number of connected members.
func (r *Room) ConnectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectedLocked()
}

// Players returns member uuids in join order.
func (r *Room) Players() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// isClosed reports whether the room was torn down.
func (r *Room) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Room) connectedLocked() int {
	n := 0
	for _, s := range r.players {
		if s.Connected {
			n++
		}
	}
	return n
}

// connsLocked snapshots the connections of connected members except skip.
func (r *Room) connsLocked(skip string) []Conn {
	conns := make([]Conn, 0, len(r.players))
	for _, uuid := range r.order {
		s := r.players[uuid]
		if s == nil || !s.Connected || s.conn == nil || uuid == skip {
			continue
		}
		conns = append(conns, s.conn)
	}
	return conns
}

func (r *Room) deliver(out []delivery) {
	for _, d := range out {
		if d.frame != nil {
			r.send(d.conn, d.frame)
		}
		if d.closeReason != "" {
			d.conn.Close(d.closeReason)
		}
	}
}

func (r *Room) send(c Conn, frame []byte) {
	if err := c.Send(frame); err != nil {
		r.log.Debug().Err(err).Msg("Send failed, skipping member")
	}
}

func (r *Room) encode(payload any) []byte {
	frame, err := protocol.Encode(payload)
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to encode frame")
		return nil
	}
	return frame
}

// finish runs the teardown callback.
func (r *Room) finish() {
	if r.onTeardown != nil {
		r.onTeardown(r)
	}
}

// Info is a point-in-time view of a room.
type Info struct {
	CreatedAt  time.Time `json:"created_at"`
	ID         string    `json:"id"`
	Status     Status    `json:"status"`
	Mode       string    `json:"mode"`
	Map        string    `json:"map,omitempty"`
	Players    []string  `json:"players"`
	MaxPlayers int       `json:"max_players"`
}

// Info returns a snapshot of the room.
func (r *Room) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	players := make([]string, len(r.order))
	copy(players, r.order)

	return Info{
		CreatedAt:  r.createdAt,
		ID:         r.id,
		Status:     r.status,
		Mode:       r.mode,
		Map:        r.mapName,
		Players:    players,
		MaxPlayers: r.maxPlayers,
	}
}

// CloseAll closes every member connection. Members are removed by their
// connection's disconnect path.
func (r *Room) CloseAll(reason string) {
	r.mu.Lock()
	conns := r.connsLocked("")
	r.mu.Unlock()

	for _, c := range conns {
		c.Close(reason)
	}
}
