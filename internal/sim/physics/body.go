package physics

import (
	"github.com/go-gl/mathgl/mgl64"
)

type BodyKind uint8

const (
	BodyStatic BodyKind = iota
	BodyDynamic
	BodyKinematic
)

func (k BodyKind) String() string {
	switch k {
	case BodyStatic:
		return "static"
	case BodyDynamic:
		return "dynamic"
	case BodyKinematic:
		return "kinematic"
	default:
		return "unknown"
	}
}

// ShapeInstance places a shape on a body.
type ShapeInstance struct {
	Shape       Shape
	Offset      mgl64.Vec3
	Orientation mgl64.Quat
	// Mask overrides the body's filter mask when non-zero.
	Mask uint32
}

// Body is a rigid body owned by a World. Mutators are no-ops on nil and
// static bodies so callers can drive optional colliders without checks.
type Body struct {
	id   uint64
	name string
	kind BodyKind

	mass    float64
	invMass float64
	invI    float64

	pos mgl64.Vec3
	rot mgl64.Quat
	vel mgl64.Vec3
	ang mgl64.Vec3

	prevPos mgl64.Vec3
	prevRot mgl64.Quat
	iPos    mgl64.Vec3
	iRot    mgl64.Quat

	linearDamping  float64
	angularDamping float64

	shapes   []ShapeInstance
	material Material
	group    uint32
	mask     uint32
	occluder bool

	integrations uint64
}

func (b *Body) ID() uint64           { return b.id }
func (b *Body) Name() string         { return b.name }
func (b *Body) Kind() BodyKind       { return b.kind }
func (b *Body) Mass() float64        { return b.mass }
func (b *Body) Position() mgl64.Vec3 { return b.pos }
func (b *Body) Orientation() mgl64.Quat {
	return b.rot
}
func (b *Body) Velocity() mgl64.Vec3        { return b.vel }
func (b *Body) AngularVelocity() mgl64.Vec3 { return b.ang }
func (b *Body) Shapes() []ShapeInstance     { return b.shapes }
func (b *Body) Material() Material          { return b.material }
func (b *Body) Group() uint32               { return b.group }
func (b *Body) Occluder() bool              { return b.occluder }

// Interpolated returns the pose blended between the last two internal steps.
func (b *Body) Interpolated() (mgl64.Vec3, mgl64.Quat) { return b.iPos, b.iRot }

// Integrations counts the internal steps in which the solver integrated this body.
func (b *Body) Integrations() uint64 { return b.integrations }

func (b *Body) movable() bool { return b != nil && b.kind != BodyStatic }

// drivable reports whether velocity may be written. A dynamic body with
// zero mass is immovable and never takes locomotion velocity.
func (b *Body) drivable() bool {
	return b.movable() && (b.kind != BodyDynamic || b.invMass > 0)
}

// SetVelocityXZ overwrites the horizontal velocity and keeps the vertical one.
func (b *Body) SetVelocityXZ(x, z float64) {
	if !b.drivable() {
		return
	}
	b.vel[0] = x
	b.vel[2] = z
}

func (b *Body) SetVelocity(v mgl64.Vec3) {
	if !b.drivable() {
		return
	}
	b.vel = v
}

func (b *Body) SetOrientation(q mgl64.Quat) {
	if !b.movable() {
		return
	}
	b.rot = q.Normalize()
}

// ApplyLocalImpulse applies an impulse given in body space at a body-space point.
func (b *Body) ApplyLocalImpulse(impulse, point mgl64.Vec3) {
	if !b.drivable() || b.kind != BodyDynamic {
		return
	}
	j := b.rot.Rotate(impulse)
	r := b.rot.Rotate(point)
	b.vel = b.vel.Add(j.Mul(b.invMass))
	b.ang = b.ang.Add(r.Cross(j).Mul(b.invI))
}

// SetPose teleports the body. The interpolated pose follows immediately.
func (b *Body) SetPose(pos mgl64.Vec3, rot mgl64.Quat) {
	if !b.movable() {
		return
	}
	rot = rot.Normalize()
	b.pos, b.rot = pos, rot
	b.prevPos, b.prevRot = pos, rot
	b.iPos, b.iRot = pos, rot
}

// shapePose returns the world-space pose of the i-th shape's bounding-box center.
func (b *Body) shapePose(i int) (center mgl64.Vec3, rot mgl64.Quat, half mgl64.Vec3) {
	s := b.shapes[i]
	localCenter, h := s.Shape.bounds()
	rot = b.rot.Mul(s.Orientation)
	center = b.pos.Add(b.rot.Rotate(s.Offset)).Add(rot.Rotate(localCenter))
	return center, rot, h
}

func (b *Body) shapeMask(i int) uint32 {
	if m := b.shapes[i].Mask; m != 0 {
		return m
	}
	return b.mask
}
