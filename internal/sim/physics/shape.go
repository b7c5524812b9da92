package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Kind names a collision shape kind as authored on model nodes.
type Kind string

const (
	KindPlane    Kind = "plane"
	KindBox      Kind = "box"
	KindSphere   Kind = "sphere"
	KindCylinder Kind = "cylinder"
	KindHull     Kind = "trimesh"
	KindCompound Kind = "compound"
)

// planeHalfThickness is the half height of the box a plane node becomes.
const planeHalfThickness = 0.1

// cylinderSegments is kept for parity with exported debug geometry.
const cylinderSegments = 12

// Shape is a closed set of collider primitives. Each variant carries only its own parameters.
type Shape interface {
	Kind() Kind
	// bounds returns the shape-local center and half extents of its bounding box.
	bounds() (center, half mgl64.Vec3)
	isShape()
}

type Box struct {
	HalfExtents mgl64.Vec3
}

type Sphere struct {
	Radius float64
}

// Cylinder is aligned with its local Z axis.
type Cylinder struct {
	RadiusTop, RadiusBottom float64
	Height                  float64
	Segments                int
}

// Hull is a convex point cloud; contacts use its local bounding box.
type Hull struct {
	Points []mgl64.Vec3
}

func (Box) Kind() Kind      { return KindBox }
func (Sphere) Kind() Kind   { return KindSphere }
func (Cylinder) Kind() Kind { return KindCylinder }
func (Hull) Kind() Kind     { return KindHull }

func (Box) isShape()      {}
func (Sphere) isShape()   {}
func (Cylinder) isShape() {}
func (Hull) isShape()     {}

func (b Box) bounds() (mgl64.Vec3, mgl64.Vec3) { return mgl64.Vec3{}, b.HalfExtents }

func (s Sphere) bounds() (mgl64.Vec3, mgl64.Vec3) {
	return mgl64.Vec3{}, mgl64.Vec3{s.Radius, s.Radius, s.Radius}
}

func (c Cylinder) bounds() (mgl64.Vec3, mgl64.Vec3) {
	r := math.Max(c.RadiusTop, c.RadiusBottom)
	return mgl64.Vec3{}, mgl64.Vec3{r, r, c.Height / 2}
}

func (h Hull) bounds() (mgl64.Vec3, mgl64.Vec3) {
	if len(h.Points) == 0 {
		return mgl64.Vec3{}, mgl64.Vec3{}
	}
	lo, hi := h.Points[0], h.Points[0]
	for _, p := range h.Points[1:] {
		for i := 0; i < 3; i++ {
			lo[i] = math.Min(lo[i], p[i])
			hi[i] = math.Max(hi[i], p[i])
		}
	}
	return lo.Add(hi).Mul(0.5), hi.Sub(lo).Mul(0.5)
}

// ShapeDescriptor is derived once from a collision node and never mutated afterwards.
type ShapeDescriptor struct {
	Name        string
	Kind        Kind
	Position    mgl64.Vec3
	Orientation mgl64.Quat
	Shape       Shape
	// Mask overrides the owning body's collision mask when non-zero.
	Mask         uint32
	Material     string
	PreserveMesh bool
	// Compound holds sub-shapes (positions relative to the owning body) when Kind is KindCompound.
	Compound []ShapeDescriptor
}
