package geometry

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/segmentio/encoding/json"
)

// Collider kinds exported from the level editor.
const (
	KindBox    = "box"
	KindSphere = "sphere"
	KindMesh   = "mesh"
)

// ErrNoColliders is returned when a collider document has no entries.
var ErrNoColliders = errors.New("collider document is empty")

// Collider is one static collision volume. Rotation is Euler angles in degrees,
// Size is the world-space extent.
type Collider struct {
	Type     string `json:"type"`
	MeshName string `json:"meshName,omitempty"`
	Position Vec3   `json:"position"`
	Rotation Vec3   `json:"rotation"`
	Scale    Vec3   `json:"scale"`
	Size     Vec3   `json:"size"`
}

// Index is the immutable set of colliders loaded at startup.
type Index struct {
	colliders []Collider
	boxes     []Collider
}

type document struct {
	Colliders []Collider `json:"colliders"`
}

// Load parses a collider document of the form {"colliders":[...]}.
func Load(r io.Reader) (*Index, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode colliders: %w", err)
	}
	if len(doc.Colliders) == 0 {
		return nil, ErrNoColliders
	}

	return New(doc.Colliders)
}

// LoadFile reads and parses a collider document from disk.
func LoadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return Load(f)
}

// New builds an index from already decoded colliders.
func New(colliders []Collider) (*Index, error) {
	idx := &Index{colliders: make([]Collider, 0, len(colliders))}

	for i, c := range colliders {
		c.Type = strings.ToLower(c.Type)
		if !c.Position.Finite() || !c.Rotation.Finite() || !c.Size.Finite() {
			return nil, fmt.Errorf("collider %d: non-finite transform", i)
		}
		idx.colliders = append(idx.colliders, c)
		if c.Type == KindBox {
			idx.boxes = append(idx.boxes, c)
		}
	}

	return idx, nil
}

// Len returns the total number of colliders.
func (idx *Index) Len() int {
	return len(idx.colliders)
}

// Boxes returns the number of box colliders taking part in ray queries.
func (idx *Index) Boxes() int {
	return len(idx.boxes)
}

// Blocked reports whether the segment from origin to hitPoint passes through any
// box collider, together with the segment length. Sphere and mesh colliders are
// not part of the query.
func (idx *Index) Blocked(origin, hitPoint Vec3) (bool, float64) {
	dist := hitPoint.Dist(origin)
	if idx == nil {
		return false, dist
	}

	dir := hitPoint.Sub(origin).Normalize()
	for _, box := range idx.boxes {
		if RayIntersectsOBB(origin, dir, box, dist) {
			return true, dist
		}
	}

	return false, dist
}
