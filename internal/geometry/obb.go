package geometry

import "math"

const deg2rad = math.Pi / 180

// RayIntersectsOBB tests a ray against a box rotated around the Y axis using the
// slab method in the box's local frame. dir is expected to be normalized; the hit
// counts only when the entry point lies in [0, maxDist].
func RayIntersectsOBB(origin, dir Vec3, box Collider, maxDist float64) bool {
	rotY := box.Rotation.Y * deg2rad
	cosY, sinY := math.Cos(rotY), math.Sin(rotY)

	dx := origin.X - box.Position.X
	dz := origin.Z - box.Position.Z

	localOrigin := [3]float64{
		dx*cosY + dz*sinY,
		origin.Y - box.Position.Y,
		-dx*sinY + dz*cosY,
	}
	localDir := [3]float64{
		dir.X*cosY + dir.Z*sinY,
		dir.Y,
		-dir.X*sinY + dir.Z*cosY,
	}
	half := [3]float64{box.Size.X / 2, box.Size.Y / 2, box.Size.Z / 2}

	tmin, tmax := math.Inf(-1), math.Inf(1)
	for axis := 0; axis < 3; axis++ {
		if localDir[axis] == 0 {
			// Parallel to the slab: either always inside it or never.
			if localOrigin[axis] < -half[axis] || localOrigin[axis] > half[axis] {
				return false
			}
			continue
		}

		inv := 1 / localDir[axis]
		t1 := (-half[axis] - localOrigin[axis]) * inv
		t2 := (half[axis] - localOrigin[axis]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}

		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmax < tmin {
			return false
		}
	}

	return tmin >= 0 && tmin <= maxDist
}
