package physics

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"brawlarena.ai/internal/sim/catalogs"
)

// SkippedShape reports a collision node that produced no collider.
type SkippedShape struct {
	Name   string
	Kind   string
	Reason string
}

func (s SkippedShape) String() string {
	return fmt.Sprintf("%s (%s): %s", s.Name, s.Kind, s.Reason)
}

// DeriveDescriptors builds one descriptor per supported collision node.
// A node with children becomes a compound descriptor whose sub-shapes keep
// their own offsets; unsupported kinds are reported and skipped.
func DeriveDescriptors(nodes []catalogs.CollisionNode) ([]ShapeDescriptor, []SkippedShape) {
	var out []ShapeDescriptor
	var skipped []SkippedShape
	for _, n := range nodes {
		if len(n.Children) > 0 {
			subs, sk := DeriveDescriptors(n.Children)
			skipped = append(skipped, sk...)
			if len(subs) == 0 {
				continue
			}
			out = append(out, ShapeDescriptor{
				Name:         n.Name,
				Kind:         KindCompound,
				Position:     vec3(n.Position),
				Orientation:  quat(n.Quaternion),
				Compound:     subs,
				PreserveMesh: n.PreserveMesh,
				Material:     n.MaterialType,
			})
			continue
		}
		d, ok, reason := DeriveShape(n)
		if !ok {
			skipped = append(skipped, SkippedShape{Name: n.Name, Kind: n.Shape, Reason: reason})
			continue
		}
		out = append(out, d)
	}
	return out, skipped
}

// DeriveShape converts a single collision node. ok is false (with a reason)
// for shape kinds that have no collider.
func DeriveShape(n catalogs.CollisionNode) (ShapeDescriptor, bool, string) {
	d := ShapeDescriptor{
		Name:         n.Name,
		Kind:         Kind(n.Shape),
		Position:     vec3(n.Position),
		Orientation:  quat(n.Quaternion),
		PreserveMesh: n.PreserveMesh,
		Material:     n.MaterialType,
	}

	pts := scaledVertices(n)
	if len(pts) == 0 {
		return d, false, "no geometry"
	}
	size := extent(pts)

	switch d.Kind {
	case KindPlane:
		d.Shape = Box{HalfExtents: mgl64.Vec3{size.X() / 2, planeHalfThickness, size.Z() / 2}}
		d.Mask = MaskAll &^ GroupTrimeshColliders
	case KindBox:
		d.Shape = Box{HalfExtents: size.Mul(0.5)}
		d.Mask = MaskAll &^ GroupTrimeshColliders
	case KindSphere:
		d.Shape = Sphere{Radius: size.X() / 2}
	case KindCylinder:
		r := size.X() / 2
		d.Shape = Cylinder{RadiusTop: r, RadiusBottom: r, Height: size.Y(), Segments: cylinderSegments}
		d.Orientation = d.Orientation.Mul(mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{1, 0, 0}))
	case KindHull:
		d.Shape = Hull{Points: pts}
	default:
		return d, false, "unsupported shape kind"
	}
	return d, true, ""
}

// scaledVertices returns node vertices with scale applied and rotation ignored.
func scaledVertices(n catalogs.CollisionNode) []mgl64.Vec3 {
	s := vec3(n.Scale)
	if s == (mgl64.Vec3{}) {
		s = mgl64.Vec3{1, 1, 1}
	}
	out := make([]mgl64.Vec3, 0, len(n.Vertices))
	for _, v := range n.Vertices {
		out = append(out, mgl64.Vec3{v[0] * s[0], v[1] * s[1], v[2] * s[2]})
	}
	return out
}

func extent(pts []mgl64.Vec3) mgl64.Vec3 {
	_, half := Hull{Points: pts}.bounds()
	return half.Mul(2)
}

func vec3(v [3]float64) mgl64.Vec3 { return mgl64.Vec3{v[0], v[1], v[2]} }

// quat reads an x,y,z,w quaternion; the zero value maps to identity.
func quat(q [4]float64) mgl64.Quat {
	if q == ([4]float64{}) {
		return mgl64.QuatIdent()
	}
	return mgl64.Quat{W: q[3], V: mgl64.Vec3{q[0], q[1], q[2]}}.Normalize()
}
