// Package anticheat rejects movement samples that move or turn a player further
// than the configured limits allow for the elapsed time.
package anticheat

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/woozymasta/overbyte/internal/geometry"
)

var (
	// ErrTeleport is returned when the displacement exceeds the allowance.
	ErrTeleport = errors.New("displacement exceeds teleport limit")

	// ErrRotation is returned when the yaw delta exceeds the allowance.
	ErrRotation = errors.New("rotation delta exceeds limit")
)

// Config holds the movement limits.
type Config struct {
	// TickRate is the length of one simulation tick.
	TickRate time.Duration
	// MaxTeleport is the largest displacement accepted per tick.
	MaxTeleport float64
	// MaxRotationDelta is the largest yaw change in degrees accepted per tick.
	MaxRotationDelta float64
}

// Sample is a reported movement. Velocity is carried for relaying only.
type Sample struct {
	Position  geometry.Vec3
	Velocity  geometry.Vec3
	RotationY float64
}

type state struct {
	at        time.Time
	position  geometry.Vec3
	rotationY float64
}

// Filter keeps the last accepted sample per player.
type Filter struct {
	now     func() time.Time
	players map[string]state
	cfg     Config
	mu      sync.Mutex
}

// New creates a filter using the wall clock.
func New(cfg Config) *Filter {
	return NewWithClock(cfg, time.Now)
}

// NewWithClock creates a filter with an injected clock.
func NewWithClock(cfg Config, now func() time.Time) *Filter {
	if cfg.TickRate <= 0 {
		cfg.TickRate = 50 * time.Millisecond
	}
	return &Filter{cfg: cfg, now: now, players: make(map[string]state)}
}

// Check validates s against the player's last accepted sample. The first
// sample of a player is always accepted. Rejected samples leave state unchanged.
func (f *Filter) Check(uuid string, s Sample) error {
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	prev, ok := f.players[uuid]
	if ok {
		ticks := f.ticks(now.Sub(prev.at))

		if s.Position.Dist(prev.position) > f.cfg.MaxTeleport*ticks {
			return ErrTeleport
		}

		allowed := math.Min(180, f.cfg.MaxRotationDelta*ticks)
		if RotationDelta(prev.rotationY, s.RotationY) > allowed {
			return ErrRotation
		}
	}

	f.players[uuid] = state{at: now, position: s.Position, rotationY: s.RotationY}
	return nil
}

// Forget drops the player's state.
func (f *Filter) Forget(uuid string) {
	f.mu.Lock()
	delete(f.players, uuid)
	f.mu.Unlock()
}

// Tracked returns the number of players with state.
func (f *Filter) Tracked() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.players)
}

// ticks converts elapsed time to whole ticks, at least one.
func (f *Filter) ticks(elapsed time.Duration) float64 {
	n := math.Floor(float64(elapsed) / float64(f.cfg.TickRate))
	if n < 1 {
		return 1
	}
	return n
}

// RotationDelta returns the shortest angular distance between two yaw angles in degrees.
func RotationDelta(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d < 0 {
		d += 360
	}
	if d > 180 {
		d = 360 - d
	}
	return d
}
