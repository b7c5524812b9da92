package physics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"brawlarena.ai/internal/sim/catalogs"
)

func unitCube() [][3]float64 {
	return [][3]float64{{-0.5, -0.5, -0.5}, {0.5, 0.5, 0.5}}
}

func node(name, shape string, scale [3]float64) catalogs.CollisionNode {
	return catalogs.CollisionNode{
		Name:       name,
		Shape:      shape,
		Quaternion: [4]float64{0, 0, 0, 1},
		Scale:      scale,
		Vertices:   unitCube(),
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func nearVec(a, b mgl64.Vec3) bool {
	return near(a[0], b[0]) && near(a[1], b[1]) && near(a[2], b[2])
}

func groundAndBall(t *testing.T) (*World, *Body) {
	t.Helper()
	w := NewWorld(DefaultConfig())
	ground := []ShapeDescriptor{{Kind: KindBox, Orientation: mgl64.QuatIdent(), Shape: Box{HalfExtents: mgl64.Vec3{10, 0.5, 10}}}}
	if got := w.CreateStatic("ground", ground, mgl64.Vec3{0, -0.5, 0}, mgl64.QuatIdent()); len(got) != 1 {
		t.Fatalf("static bodies: got %d want 1", len(got))
	}
	ball := []ShapeDescriptor{{Kind: KindSphere, Orientation: mgl64.QuatIdent(), Shape: Sphere{Radius: 0.5}}}
	b := w.CreateDynamic("ball", 1, ball, mgl64.Vec3{0, 2, 0}, mgl64.QuatIdent())
	if b == nil {
		t.Fatalf("dynamic body is nil")
	}
	return w, b
}

func TestDeriveShape_Kinds(t *testing.T) {
	plane, ok, _ := DeriveShape(node("floor", "plane", [3]float64{8, 1, 4}))
	if !ok {
		t.Fatalf("plane skipped")
	}
	box, isBox := plane.Shape.(Box)
	if !isBox || !near(box.HalfExtents.X(), 4) || !near(box.HalfExtents.Y(), 0.1) || !near(box.HalfExtents.Z(), 2) {
		t.Fatalf("plane shape: %#v", plane.Shape)
	}
	if plane.Mask&GroupTrimeshColliders != 0 || plane.Mask&GroupCharacters == 0 {
		t.Fatalf("plane mask: %b", plane.Mask)
	}

	sphere, ok, _ := DeriveShape(node("ball", "sphere", [3]float64{2, 2, 2}))
	if !ok || !near(sphere.Shape.(Sphere).Radius, 1) {
		t.Fatalf("sphere: %#v ok=%v", sphere.Shape, ok)
	}

	cyl, ok, _ := DeriveShape(node("pillar", "cylinder", [3]float64{2, 6, 2}))
	if !ok {
		t.Fatalf("cylinder skipped")
	}
	c := cyl.Shape.(Cylinder)
	if !near(c.RadiusTop, 1) || !near(c.RadiusBottom, 1) || !near(c.Height, 6) || c.Segments != 12 {
		t.Fatalf("cylinder: %#v", c)
	}
	// Local Z of the cylinder must end up along the node's Y.
	axis := cyl.Orientation.Rotate(mgl64.Vec3{0, 0, 1})
	if !nearVec(axis, mgl64.Vec3{0, -1, 0}) && !nearVec(axis, mgl64.Vec3{0, 1, 0}) {
		t.Fatalf("cylinder axis: %v", axis)
	}

	if _, ok, reason := DeriveShape(node("ring", "torus", [3]float64{1, 1, 1})); ok || reason == "" {
		t.Fatalf("torus: ok=%v reason=%q", ok, reason)
	}
}

func TestDeriveShape_IgnoresNodeRotationWhenMeasuring(t *testing.T) {
	n := node("crate", "box", [3]float64{2, 4, 6})
	s := math.Sin(math.Pi / 4)
	n.Quaternion = [4]float64{0, s, 0, s}
	d, ok, _ := DeriveShape(n)
	if !ok {
		t.Fatalf("box skipped")
	}
	if got := d.Shape.(Box).HalfExtents; !nearVec(got, mgl64.Vec3{1, 2, 3}) {
		t.Fatalf("half extents: %v", got)
	}
	if math.Abs(d.Orientation.V.Y()-s) > 1e-9 {
		t.Fatalf("orientation not kept: %v", d.Orientation)
	}
}

func TestDeriveDescriptors_CompoundAndSkips(t *testing.T) {
	nodes := []catalogs.CollisionNode{
		{Name: "body", Children: []catalogs.CollisionNode{
			node("torso", "box", [3]float64{1, 1, 1}),
			node("head", "sphere", [3]float64{0.5, 0.5, 0.5}),
			node("halo", "torus", [3]float64{1, 1, 1}),
		}},
		node("shadow", "torus", [3]float64{1, 1, 1}),
	}
	descs, skipped := DeriveDescriptors(nodes)
	if len(descs) != 1 || descs[0].Kind != KindCompound || len(descs[0].Compound) != 2 {
		t.Fatalf("descriptors: %#v", descs)
	}
	if len(skipped) != 2 {
		t.Fatalf("skipped: %v", skipped)
	}
}

func TestStaticBodyNeverMoves(t *testing.T) {
	w := NewWorld(DefaultConfig())
	descs := []ShapeDescriptor{{Kind: KindBox, Position: mgl64.Vec3{1, 2, 3}, Orientation: mgl64.QuatIdent(), Shape: Box{HalfExtents: mgl64.Vec3{1, 1, 1}}}}
	bodies := w.CreateStatic("wall", descs, mgl64.Vec3{}, mgl64.QuatIdent())
	st := bodies[0]
	st.SetVelocityXZ(5, 5)
	st.SetOrientation(mgl64.QuatRotate(1, mgl64.Vec3{0, 1, 0}))
	st.ApplyLocalImpulse(mgl64.Vec3{0, 100, 0}, mgl64.Vec3{})
	st.SetPose(mgl64.Vec3{9, 9, 9}, mgl64.QuatIdent())

	// A dynamic box falling onto it must not disturb it either.
	w.CreateDynamic("crate", 1, []ShapeDescriptor{{Kind: KindBox, Orientation: mgl64.QuatIdent(), Shape: Box{HalfExtents: mgl64.Vec3{0.5, 0.5, 0.5}}}}, mgl64.Vec3{1, 4, 3}, mgl64.QuatIdent())
	for i := 0; i < 240; i++ {
		w.Step(1.0 / 60)
	}
	if st.Position() != (mgl64.Vec3{1, 2, 3}) || st.Orientation() != mgl64.QuatIdent() || st.Velocity() != (mgl64.Vec3{}) {
		t.Fatalf("static body moved: pos=%v rot=%v vel=%v", st.Position(), st.Orientation(), st.Velocity())
	}
	if st.Integrations() != 0 {
		t.Fatalf("static body integrated %d times", st.Integrations())
	}
}

func TestDynamicBodyRestsOnGround(t *testing.T) {
	w, ball := groundAndBall(t)
	for i := 0; i < 300; i++ {
		w.Step(1.0 / 60)
	}
	y := ball.Position().Y()
	if y < 0.4 || y > 0.55 {
		t.Fatalf("ball y=%v, want resting near 0.5", y)
	}
	if math.Abs(ball.Velocity().Y()) > 0.2 {
		t.Fatalf("ball still moving: %v", ball.Velocity())
	}
}

func TestStep_AccumulatesAndCapsSubSteps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSubSteps = 3
	w := NewWorld(cfg)
	if n := w.Step(0.5 / 60); n != 0 {
		t.Fatalf("half step ran %d internal steps", n)
	}
	if n := w.Step(0.5 / 60); n != 1 {
		t.Fatalf("second half step ran %d internal steps, want 1", n)
	}
	if n := w.Step(1); n != 3 {
		t.Fatalf("long frame ran %d internal steps, want cap 3", n)
	}
	if n := w.Step(0); n != 0 {
		t.Fatalf("zero dt ran %d steps", n)
	}
}

func TestInterpolatedPoseTrailsCurrent(t *testing.T) {
	w, ball := groundAndBall(t)
	w.Step(1.5 / 60)
	ip, _ := ball.Interpolated()
	if ip.Y() <= ball.Position().Y() || ip.Y() > 2 {
		t.Fatalf("interpolated y=%v current y=%v", ip.Y(), ball.Position().Y())
	}
}

func TestKinematicBodyIsNotIntegrated(t *testing.T) {
	w, _ := groundAndBall(t)
	k := w.CreateKinematic("remote", []ShapeDescriptor{{Kind: KindSphere, Orientation: mgl64.QuatIdent(), Shape: Sphere{Radius: 0.5}}}, mgl64.Vec3{3, 5, 0}, mgl64.QuatIdent())
	k.SetPose(mgl64.Vec3{1, 2, 3}, mgl64.QuatIdent())
	for i := 0; i < 30; i++ {
		w.Step(1.0 / 60)
	}
	if k.Position() != (mgl64.Vec3{1, 2, 3}) {
		t.Fatalf("kinematic moved to %v", k.Position())
	}
	if k.Integrations() != 0 {
		t.Fatalf("kinematic integrated %d times", k.Integrations())
	}
	if ip, _ := k.Interpolated(); ip != (mgl64.Vec3{1, 2, 3}) {
		t.Fatalf("kinematic interpolated pose %v", ip)
	}
}

func TestCreateDynamic_EmptyAndCompound(t *testing.T) {
	w := NewWorld(DefaultConfig())
	if b := w.CreateDynamic("ghost", 1, nil, mgl64.Vec3{}, mgl64.QuatIdent()); b != nil {
		t.Fatalf("expected nil body")
	}
	var nilBody *Body
	nilBody.SetVelocityXZ(1, 1)
	nilBody.SetPose(mgl64.Vec3{}, mgl64.QuatIdent())

	compound := ShapeDescriptor{Kind: KindCompound, Compound: []ShapeDescriptor{
		{Kind: KindBox, Orientation: mgl64.QuatIdent(), Shape: Box{HalfExtents: mgl64.Vec3{0.5, 0.5, 0.5}}},
		{Kind: KindSphere, Position: mgl64.Vec3{0, 1, 0}, Orientation: mgl64.QuatIdent(), Shape: Sphere{Radius: 0.3}},
	}}
	extra := ShapeDescriptor{Kind: KindSphere, Orientation: mgl64.QuatIdent(), Shape: Sphere{Radius: 9}}
	b := w.CreateDynamic("hero", 2, []ShapeDescriptor{compound, extra}, mgl64.Vec3{}, mgl64.QuatIdent())
	if len(b.Shapes()) != 2 {
		t.Fatalf("shapes: %d want 2", len(b.Shapes()))
	}
	if b.Material() != CharacterMaterial || b.Group() != GroupCharacters {
		t.Fatalf("material/group: %v %v", b.Material(), b.Group())
	}
}

func TestJumpImpulse(t *testing.T) {
	w := NewWorld(Config{FixedStep: 1.0 / 60})
	b := w.CreateDynamic("hero", 2, []ShapeDescriptor{{Kind: KindSphere, Orientation: mgl64.QuatIdent(), Shape: Sphere{Radius: 0.5}}}, mgl64.Vec3{}, mgl64.QuatRotate(1, mgl64.Vec3{0, 1, 0}))
	b.ApplyLocalImpulse(mgl64.Vec3{0, 10, 0}, mgl64.Vec3{})
	if v := b.Velocity(); !nearVec(v, mgl64.Vec3{0, 5, 0}) {
		t.Fatalf("velocity after impulse: %v", v)
	}
	if b.AngularVelocity() != (mgl64.Vec3{}) {
		t.Fatalf("impulse at origin spun the body: %v", b.AngularVelocity())
	}
}

func TestZeroMassDynamicIgnoresLocomotion(t *testing.T) {
	w := NewWorld(DefaultConfig())
	b := w.CreateDynamic("statue", 0, []ShapeDescriptor{{Kind: KindBox, Orientation: mgl64.QuatIdent(), Shape: Box{HalfExtents: mgl64.Vec3{0.5, 0.5, 0.5}}}}, mgl64.Vec3{0, 2, 0}, mgl64.QuatIdent())
	if b == nil {
		t.Fatalf("body not created")
	}
	b.SetVelocityXZ(3, 4)
	b.SetVelocity(mgl64.Vec3{1, 1, 1})
	b.ApplyLocalImpulse(mgl64.Vec3{0, 10, 0}, mgl64.Vec3{})
	if b.Velocity() != (mgl64.Vec3{}) {
		t.Fatalf("zero-mass body took velocity: %v", b.Velocity())
	}
	for i := 0; i < 30; i++ {
		w.Step(1.0 / 60)
	}
	if b.Position() != (mgl64.Vec3{0, 2, 0}) {
		t.Fatalf("zero-mass body moved: %v", b.Position())
	}
}

func TestFilterMaskSkipsTrimeshColliders(t *testing.T) {
	w := NewWorld(DefaultConfig())
	floor := ShapeDescriptor{Kind: KindBox, Orientation: mgl64.QuatIdent(), Mask: MaskAll &^ GroupTrimeshColliders, Shape: Box{HalfExtents: mgl64.Vec3{5, 0.5, 5}}}
	w.CreateStatic("floor", []ShapeDescriptor{floor}, mgl64.Vec3{}, mgl64.QuatIdent())
	b := w.CreateDynamic("mesh", 1, []ShapeDescriptor{{Kind: KindHull, Orientation: mgl64.QuatIdent(), Shape: Hull{Points: []mgl64.Vec3{{-0.5, -0.5, -0.5}, {0.5, 0.5, 0.5}}}}}, mgl64.Vec3{0, 1, 0}, mgl64.QuatIdent())
	b.group = GroupTrimeshColliders
	for i := 0; i < 60; i++ {
		w.Step(1.0 / 60)
	}
	if b.Position().Y() > 0 {
		t.Fatalf("trimesh collider was stopped by a masked box: y=%v", b.Position().Y())
	}
}

func TestRaycast(t *testing.T) {
	w := NewWorld(DefaultConfig())
	wall := ShapeDescriptor{Kind: KindBox, Orientation: mgl64.QuatIdent(), Shape: Box{HalfExtents: mgl64.Vec3{0.5, 2, 2}}}
	w.CreateStatic("wall", []ShapeDescriptor{wall}, mgl64.Vec3{5, 0, 0}, mgl64.QuatIdent())
	self := w.CreateDynamic("self", 1, []ShapeDescriptor{{Kind: KindSphere, Orientation: mgl64.QuatIdent(), Shape: Sphere{Radius: 1}}}, mgl64.Vec3{}, mgl64.QuatIdent())

	hit, ok := w.Raycast(mgl64.Vec3{}, mgl64.Vec3{1, 0, 0}, 10, MaskAll, self)
	if !ok || hit.Body.Name() != "wall" || !near(hit.Distance, 4.5) {
		t.Fatalf("hit=%+v ok=%v", hit, ok)
	}
	if _, ok := w.Raycast(mgl64.Vec3{}, mgl64.Vec3{1, 0, 0}, 3, MaskAll, self); ok {
		t.Fatalf("hit beyond max distance")
	}
	if _, ok := w.Raycast(mgl64.Vec3{}, mgl64.Vec3{-1, 0, 0}, 10, MaskAll, self); ok {
		t.Fatalf("hit behind the origin")
	}
	// Without exclusion the origin lies inside "self", which is never reported.
	if hit, ok := w.Raycast(mgl64.Vec3{}, mgl64.Vec3{1, 0, 0}, 10, MaskAll, nil); !ok || hit.Body.Name() != "wall" {
		t.Fatalf("hit=%+v ok=%v", hit, ok)
	}
}

func TestRemove(t *testing.T) {
	w, ball := groundAndBall(t)
	w.Remove(ball)
	w.Remove(nil)
	if len(w.Bodies()) != 1 {
		t.Fatalf("bodies after remove: %d", len(w.Bodies()))
	}
}
