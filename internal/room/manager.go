package room

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/overbyte/internal/maps"
)

var (
	// ErrNotFound is returned for an unknown room id.
	ErrNotFound = errors.New("room not found")

	// ErrExists is returned when creating a room with a used id.
	ErrExists = errors.New("room already exists")

	// ErrTooManyRooms is returned when the active room cap is reached.
	ErrTooManyRooms = errors.New("too many active rooms")

	// ErrUnsupportedSize is returned for a capacity the maps have no spawns for.
	ErrUnsupportedSize = errors.New("no map mode seats this many players")
)

// ManagerConfig configures the active room set.
type ManagerConfig struct {
	Maps *maps.List
	// MaxRooms caps concurrently active rooms; zero means unlimited.
	MaxRooms int
	// Timeout is the waiting countdown armed on each new room.
	Timeout time.Duration
}

// Manager owns the set of active rooms and removes them on teardown.
type Manager struct {
	rooms     map[string]*Room
	listeners []func(*Room)
	cfg       ManagerConfig
	mu        sync.RWMutex
}

// NewManager creates an empty room set.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{cfg: cfg, rooms: make(map[string]*Room)}
}

// OnTeardown registers fn to run after a room is removed from the set.
func (m *Manager) OnTeardown(fn func(*Room)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Create registers a new waiting room with the given capacity.
func (m *Manager) Create(id string, maxPlayers int) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.Maps != nil && !m.cfg.Maps.Seats(maxPlayers) {
		return nil, ErrUnsupportedSize
	}
	if _, ok := m.rooms[id]; ok {
		return nil, ErrExists
	}
	if m.cfg.MaxRooms > 0 && len(m.rooms) >= m.cfg.MaxRooms {
		return nil, ErrTooManyRooms
	}

	r := New(id, Options{
		Maps:       m.cfg.Maps,
		MaxPlayers: maxPlayers,
		Timeout:    m.cfg.Timeout,
		OnTeardown: m.teardown,
	})
	m.rooms[id] = r

	log.Info().Str("room", id).Int("max_players", maxPlayers).Msg("Room created")
	return r, nil
}

// Get returns the active room with id.
func (m *Manager) Get(id string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

// Count returns the number of active rooms.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Players returns the number of connected players across active rooms.
func (m *Manager) Players() int {
	total := 0
	for _, r := range m.list() {
		total += r.ConnectedCount()
	}
	return total
}

// Snapshot returns a view of every active room.
func (m *Manager) Snapshot() []Info {
	rooms := m.list()
	out := make([]Info, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	return out
}

// RoomOf returns the active room uuid is a member of, or nil.
func (m *Manager) RoomOf(uuid string) *Room {
	for _, r := range m.list() {
		if r.Has(uuid) {
			return r
		}
	}
	return nil
}

// Shutdown cancels waiting rooms and closes members of running ones.
func (m *Manager) Shutdown() {
	for _, r := range m.list() {
		if !r.Cancel(ReasonShutdown) {
			r.CloseAll("server shutting down")
		}
	}
}

func (m *Manager) list() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	return out
}

func (m *Manager) teardown(r *Room) {
	m.mu.Lock()
	if cur, ok := m.rooms[r.ID()]; ok && cur == r {
		delete(m.rooms, r.ID())
	}
	listeners := make([]func(*Room), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	log.Info().Str("room", r.ID()).Str("status", string(r.Status())).Msg("Room removed")

	for _, fn := range listeners {
		fn(r)
	}
}
