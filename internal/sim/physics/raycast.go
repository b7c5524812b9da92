package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type RayHit struct {
	Body     *Body
	Point    mgl64.Vec3
	Distance float64
}

// Raycast returns the nearest occluder hit along dir within maxDist.
// Shapes containing the origin are not hit, and exclude is skipped.
func (w *World) Raycast(origin, dir mgl64.Vec3, maxDist float64, mask uint32, exclude *Body) (RayHit, bool) {
	if dir.LenSqr() == 0 || maxDist <= 0 {
		return RayHit{}, false
	}
	dir = dir.Normalize()

	best := RayHit{Distance: math.Inf(1)}
	for _, b := range w.bodies {
		if b == exclude || !b.occluder || b.group&mask == 0 {
			continue
		}
		for i := range b.shapes {
			p := b.prim(i)
			var t float64
			var ok bool
			if p.sphere {
				t, ok = raySphere(origin, dir, p)
			} else {
				t, ok = rayBox(origin, dir, p)
			}
			if ok && t <= maxDist && t < best.Distance {
				best = RayHit{Body: b, Point: origin.Add(dir.Mul(t)), Distance: t}
			}
		}
	}
	if best.Body == nil {
		return RayHit{}, false
	}
	return best, true
}

func raySphere(o, d mgl64.Vec3, p prim) (float64, bool) {
	m := o.Sub(p.center)
	c := m.Dot(m) - p.radius*p.radius
	if c <= 0 {
		return 0, false
	}
	bq := m.Dot(d)
	if bq > 0 {
		return 0, false
	}
	disc := bq*bq - c
	if disc < 0 {
		return 0, false
	}
	return -bq - math.Sqrt(disc), true
}

// rayBox is a slab test in the box's local frame.
func rayBox(o, d mgl64.Vec3, p prim) (float64, bool) {
	rel := o.Sub(p.center)
	tMin, tMax := math.Inf(-1), math.Inf(1)
	inside := true
	for i := 0; i < 3; i++ {
		lo := rel.Dot(p.axes[i])
		dd := d.Dot(p.axes[i])
		if math.Abs(lo) > p.half[i] {
			inside = false
		}
		if math.Abs(dd) < 1e-12 {
			if math.Abs(lo) > p.half[i] {
				return 0, false
			}
			continue
		}
		t1 := (-p.half[i] - lo) / dd
		t2 := (p.half[i] - lo) / dd
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
		if tMin > tMax {
			return 0, false
		}
	}
	if inside || tMin < 0 {
		return 0, false
	}
	return tMin, true
}
