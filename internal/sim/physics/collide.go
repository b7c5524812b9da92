package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// prim is the world-space collision primitive of one shape instance.
// Spheres use radius; everything else is an oriented box.
type prim struct {
	sphere bool
	center mgl64.Vec3
	axes   [3]mgl64.Vec3
	half   mgl64.Vec3
	radius float64
}

func (b *Body) prim(i int) prim {
	center, rot, half := b.shapePose(i)
	if s, ok := b.shapes[i].Shape.(Sphere); ok {
		return prim{sphere: true, center: center, radius: s.Radius, half: half}
	}
	return prim{
		center: center,
		axes: [3]mgl64.Vec3{
			rot.Rotate(mgl64.Vec3{1, 0, 0}),
			rot.Rotate(mgl64.Vec3{0, 1, 0}),
			rot.Rotate(mgl64.Vec3{0, 0, 1}),
		},
		half: half,
	}
}

// aabb returns the world-space axis-aligned bounds of p.
func (p prim) aabb() (lo, hi mgl64.Vec3) {
	var ext mgl64.Vec3
	if p.sphere {
		ext = mgl64.Vec3{p.radius, p.radius, p.radius}
	} else {
		for k := 0; k < 3; k++ {
			for i := 0; i < 3; i++ {
				ext[k] += math.Abs(p.axes[i][k]) * p.half[i]
			}
		}
	}
	return p.center.Sub(ext), p.center.Add(ext)
}

func overlapAABB(aLo, aHi, bLo, bHi mgl64.Vec3) bool {
	for k := 0; k < 3; k++ {
		if aHi[k] < bLo[k] || bHi[k] < aLo[k] {
			return false
		}
	}
	return true
}

// collide returns the contact normal (pointing from a to b) and penetration depth.
func collide(a, b prim) (mgl64.Vec3, float64, bool) {
	switch {
	case a.sphere && b.sphere:
		return sphereSphere(a, b)
	case a.sphere:
		return sphereBox(a, b)
	case b.sphere:
		n, d, ok := sphereBox(b, a)
		return n.Mul(-1), d, ok
	default:
		return boxBox(a, b)
	}
}

func sphereSphere(a, b prim) (mgl64.Vec3, float64, bool) {
	d := b.center.Sub(a.center)
	dist := d.Len()
	r := a.radius + b.radius
	if dist >= r {
		return mgl64.Vec3{}, 0, false
	}
	if dist < 1e-9 {
		return mgl64.Vec3{0, 1, 0}, r, true
	}
	return d.Mul(1 / dist), r - dist, true
}

func sphereBox(s, box prim) (mgl64.Vec3, float64, bool) {
	rel := s.center.Sub(box.center)
	var local, closest mgl64.Vec3
	for i := 0; i < 3; i++ {
		local[i] = rel.Dot(box.axes[i])
		closest[i] = clamp(local[i], -box.half[i], box.half[i])
	}

	if closest != local {
		world := box.center
		for i := 0; i < 3; i++ {
			world = world.Add(box.axes[i].Mul(closest[i]))
		}
		diff := world.Sub(s.center)
		dist := diff.Len()
		if dist >= s.radius {
			return mgl64.Vec3{}, 0, false
		}
		return diff.Mul(1 / dist), s.radius - dist, true
	}

	// Center inside the box: push out through the nearest face.
	best, bestGap := 0, math.Inf(1)
	for i := 0; i < 3; i++ {
		if gap := box.half[i] - math.Abs(local[i]); gap < bestGap {
			best, bestGap = i, gap
		}
	}
	sign := 1.0
	if local[best] < 0 {
		sign = -1
	}
	return box.axes[best].Mul(-sign), s.radius + bestGap, true
}

// boxBox is a separating-axis test over the 15 candidate axes.
func boxBox(a, b prim) (mgl64.Vec3, float64, bool) {
	t := b.center.Sub(a.center)

	axes := make([]mgl64.Vec3, 0, 15)
	axes = append(axes, a.axes[:]...)
	axes = append(axes, b.axes[:]...)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			c := a.axes[i].Cross(b.axes[j])
			if c.LenSqr() > 1e-8 {
				axes = append(axes, c.Normalize())
			}
		}
	}

	minOverlap := math.Inf(1)
	var normal mgl64.Vec3
	for k, axis := range axes {
		ra, rb := 0.0, 0.0
		for i := 0; i < 3; i++ {
			ra += math.Abs(a.axes[i].Dot(axis)) * a.half[i]
			rb += math.Abs(b.axes[i].Dot(axis)) * b.half[i]
		}
		overlap := ra + rb - math.Abs(t.Dot(axis))
		if overlap <= 0 {
			return mgl64.Vec3{}, 0, false
		}
		// Face axes win ties against edge axes.
		if k >= 6 {
			overlap *= 1.05
		}
		if overlap < minOverlap {
			minOverlap = overlap
			normal = axis
			if k >= 6 {
				minOverlap /= 1.05
			}
		}
	}
	if t.Dot(normal) < 0 {
		normal = normal.Mul(-1)
	}
	return normal, minOverlap, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
