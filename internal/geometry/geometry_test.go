package geometry

import (
	"errors"
	"strings"
	"testing"
)

const wallDoc = `{"colliders":[
	{"type":"Box","position":{"x":0,"y":1,"z":10},"rotation":{"x":0,"y":0,"z":0},"scale":{"x":1,"y":1,"z":1},"size":{"x":4,"y":2,"z":1}},
	{"type":"sphere","position":{"x":0,"y":1,"z":-10},"rotation":{"x":0,"y":0,"z":0},"scale":{"x":1,"y":1,"z":1},"size":{"x":4,"y":4,"z":4}},
	{"type":"mesh","meshName":"Ground","position":{"x":0,"y":0,"z":0},"rotation":{"x":0,"y":0,"z":0},"scale":{"x":1,"y":1,"z":1},"size":{"x":1,"y":1,"z":1}}
]}`

func mustLoad(t *testing.T, doc string) *Index {
	t.Helper()
	idx, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("load colliders: %v", err)
	}
	return idx
}

func TestLoadKeepsOnlyBoxesForQueries(t *testing.T) {
	idx := mustLoad(t, wallDoc)
	if idx.Len() != 3 {
		t.Fatalf("Len = %d, want 3", idx.Len())
	}
	if idx.Boxes() != 1 {
		t.Fatalf("Boxes = %d, want 1", idx.Boxes())
	}
}

func TestLoadRejectsEmptyDocument(t *testing.T) {
	_, err := Load(strings.NewReader(`{"colliders":[]}`))
	if !errors.Is(err, ErrNoColliders) {
		t.Fatalf("err = %v, want ErrNoColliders", err)
	}
}

func TestBlocked(t *testing.T) {
	idx := mustLoad(t, wallDoc)

	tests := []struct {
		name     string
		origin   Vec3
		hit      Vec3
		blocked  bool
		distance float64
	}{
		{"through wall", Vec3{0, 1, 0}, Vec3{0, 1, 20}, true, 20},
		{"stops before wall", Vec3{0, 1, 0}, Vec3{0, 1, 9}, false, 9},
		{"passes beside wall", Vec3{5, 1, 0}, Vec3{5, 1, 20}, false, 20},
		{"over the wall", Vec3{0, 5, 0}, Vec3{0, 5, 20}, false, 20},
		{"away from wall", Vec3{0, 1, 0}, Vec3{0, 1, -5}, false, 5},
		{"sphere is ignored", Vec3{0, 1, 0}, Vec3{0, 1, -20}, false, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocked, dist := idx.Blocked(tt.origin, tt.hit)
			if blocked != tt.blocked {
				t.Fatalf("blocked = %v, want %v", blocked, tt.blocked)
			}
			if dist != tt.distance {
				t.Fatalf("distance = %v, want %v", dist, tt.distance)
			}
		})
	}
}

func TestRayIntersectsRotatedBox(t *testing.T) {
	// A thin wall 10 long on X, turned 90 degrees so it runs along Z.
	wall := Collider{
		Type:     KindBox,
		Position: Vec3{X: 5, Y: 0, Z: 0},
		Size:     Vec3{X: 10, Y: 2, Z: 0.5},
		Rotation: Vec3{Y: 90},
	}

	// Along +X the rotated wall is only 0.5 thick and sits at x=5.
	if !RayIntersectsOBB(Vec3{}, Vec3{X: 1}, wall, 10) {
		t.Fatal("ray along +X should hit the rotated wall")
	}
	// At z=4 the rotated wall still covers the ray (half length 5).
	if !RayIntersectsOBB(Vec3{Z: 4}, Vec3{X: 1}, wall, 10) {
		t.Fatal("ray at z=4 should hit the rotated wall")
	}
	// Unrotated the same wall would only span z in [-0.25, 0.25].
	wall.Rotation.Y = 0
	if RayIntersectsOBB(Vec3{Z: 4}, Vec3{X: 1}, wall, 10) {
		t.Fatal("ray at z=4 should miss the unrotated wall")
	}
}

func TestRayIntersectsOBBRespectsDistance(t *testing.T) {
	box := Collider{Type: KindBox, Position: Vec3{Z: 10}, Size: Vec3{X: 2, Y: 2, Z: 2}}

	if !RayIntersectsOBB(Vec3{}, Vec3{Z: 1}, box, 9) {
		t.Fatal("entry at t=9 should count when maxDist is 9")
	}
	if RayIntersectsOBB(Vec3{}, Vec3{Z: 1}, box, 8.5) {
		t.Fatal("entry at t=9 should not count when maxDist is 8.5")
	}
	if RayIntersectsOBB(Vec3{Z: 20}, Vec3{Z: 1}, box, 100) {
		t.Fatal("box behind the origin should not count")
	}
}
