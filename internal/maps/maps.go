// Package maps holds the static map list and per-mode spawn points.
package maps

import (
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/segmentio/encoding/json"
	"github.com/woozymasta/overbyte/internal/geometry"
)

// ErrNoMaps is returned for an empty map document.
var ErrNoMaps = errors.New("map list is empty")

// Map is one playable level with spawn points keyed by mode ("1v1".."4v4").
type Map struct {
	Spawns map[string][]geometry.Vec3 `json:"spawns"`
	Name   string                     `json:"name"`
}

// List is the ordered, read-only set of maps.
type List struct {
	maps []Map
}

type document struct {
	Maps []Map `json:"maps"`
}

// Load parses a map document {"maps":[...]}.
func Load(r io.Reader) (*List, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode maps: %w", err)
	}

	return New(doc.Maps)
}

// New validates and wraps a map slice.
func New(maps []Map) (*List, error) {
	if len(maps) == 0 {
		return nil, ErrNoMaps
	}

	for _, m := range maps {
		if m.Name == "" {
			return nil, errors.New("map without a name")
		}
		for mode, spawns := range m.Spawns {
			for i, p := range spawns {
				if !p.Finite() {
					return nil, fmt.Errorf("map %s mode %s spawn %d is not finite", m.Name, mode, i)
				}
			}
		}
	}

	return &List{maps: maps}, nil
}

// Pick selects a map from a seed string. The same seed always yields the same map.
func (l *List) Pick(seed string) Map {
	i := xxhash.Sum64String(seed) % uint64(len(l.maps))
	return l.maps[i]
}

// Len returns the number of maps.
func (l *List) Len() int {
	return len(l.maps)
}

// Seats reports whether every map has a spawn for each of players in the
// matching mode. Only even sizes of at least two form a mode.
func (l *List) Seats(players int) bool {
	if players < 2 || players%2 != 0 {
		return false
	}
	mode := ModeFor(players)
	for _, m := range l.maps {
		if len(m.Spawns[mode]) < players {
			return false
		}
	}
	return true
}

// ModeFor returns the mode name for a room capacity, e.g. 4 players -> "2v2".
func ModeFor(players int) string {
	n := players / 2
	if n < 1 {
		n = 1
	}
	return fmt.Sprintf("%dv%d", n, n)
}
