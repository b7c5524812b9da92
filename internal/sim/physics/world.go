package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Material names a surface; contact parameters come from the pair table.
type Material struct {
	Name string
}

var (
	GroundMaterial    = Material{Name: "ground"}
	CharacterMaterial = Material{Name: "character"}
)

type ContactMaterial struct {
	Friction    float64
	Restitution float64
}

type Config struct {
	Gravity          mgl64.Vec3
	FixedStep        float64
	MaxSubSteps      int
	SolverIterations int
	Damping          float64
	Friction         float64
	Restitution      float64
}

func DefaultConfig() Config {
	return Config{
		Gravity:          mgl64.Vec3{0, -9.8, 0},
		FixedStep:        1.0 / 60.0,
		MaxSubSteps:      20,
		SolverIterations: 10,
		Damping:          0.05,
	}
}

const (
	contactSlop      = 0.005
	positionCorrect  = 0.8
	restitutionFloor = 1.0
)

// World owns all bodies. It is not safe for concurrent use; the simulation
// goroutine is its only caller.
type World struct {
	cfg    Config
	bodies []*Body
	nextID uint64

	pairs map[[2]string]ContactMaterial

	acc   float64
	steps uint64
}

func NewWorld(cfg Config) *World {
	def := DefaultConfig()
	if cfg.FixedStep <= 0 {
		cfg.FixedStep = def.FixedStep
	}
	if cfg.MaxSubSteps <= 0 {
		cfg.MaxSubSteps = def.MaxSubSteps
	}
	if cfg.SolverIterations <= 0 {
		cfg.SolverIterations = def.SolverIterations
	}
	if cfg.Damping < 0 || cfg.Damping >= 1 {
		cfg.Damping = def.Damping
	}
	return &World{cfg: cfg, pairs: map[[2]string]ContactMaterial{}}
}

func (w *World) Config() Config { return w.cfg }

// Bodies returns the registered bodies in creation order.
func (w *World) Bodies() []*Body { return w.bodies }

// Steps is the number of internal fixed steps taken so far.
func (w *World) Steps() uint64 { return w.steps }

func (w *World) SetContactMaterial(a, b Material, cm ContactMaterial) {
	w.pairs[pairKey(a, b)] = cm
}

func (w *World) contactMaterial(a, b Material) ContactMaterial {
	if cm, ok := w.pairs[pairKey(a, b)]; ok {
		return cm
	}
	return ContactMaterial{Friction: w.cfg.Friction, Restitution: w.cfg.Restitution}
}

func pairKey(a, b Material) [2]string {
	if a.Name > b.Name {
		a, b = b, a
	}
	return [2]string{a.Name, b.Name}
}

func (w *World) add(b *Body) *Body {
	w.nextID++
	b.id = w.nextID
	b.prevPos, b.prevRot = b.pos, b.rot
	b.iPos, b.iRot = b.pos, b.rot
	w.bodies = append(w.bodies, b)
	return b
}

// CreateStatic adds one mass-0 body per descriptor with the descriptor pose
// composed onto origin. Compound descriptors contribute one body per sub-shape.
func (w *World) CreateStatic(name string, descs []ShapeDescriptor, originPos mgl64.Vec3, originRot mgl64.Quat) []*Body {
	var out []*Body
	for _, d := range descs {
		pos := originPos.Add(originRot.Rotate(d.Position))
		rot := originRot.Mul(d.Orientation).Normalize()
		if d.Kind == KindCompound {
			out = append(out, w.CreateStatic(name, d.Compound, pos, rot)...)
			continue
		}
		b := &Body{
			name:     name,
			kind:     BodyStatic,
			pos:      pos,
			rot:      rot,
			material: GroundMaterial,
			group:    GroupDefault,
			mask:     MaskAll,
			occluder: true,
			shapes:   []ShapeInstance{{Shape: d.Shape, Orientation: mgl64.QuatIdent(), Mask: d.Mask}},
		}
		out = append(out, w.add(b))
	}
	return out
}

// CreateDynamic builds one body from the first descriptor. A nil body is
// returned when there is nothing to collide with.
func (w *World) CreateDynamic(name string, mass float64, descs []ShapeDescriptor, pos mgl64.Vec3, rot mgl64.Quat) *Body {
	b := w.newMovable(name, BodyDynamic, mass, descs, pos, rot)
	if b == nil {
		return nil
	}
	return w.add(b)
}

// CreateKinematic is CreateDynamic for bodies whose pose is set externally.
func (w *World) CreateKinematic(name string, descs []ShapeDescriptor, pos mgl64.Vec3, rot mgl64.Quat) *Body {
	b := w.newMovable(name, BodyKinematic, 0, descs, pos, rot)
	if b == nil {
		return nil
	}
	return w.add(b)
}

func (w *World) newMovable(name string, kind BodyKind, mass float64, descs []ShapeDescriptor, pos mgl64.Vec3, rot mgl64.Quat) *Body {
	if len(descs) == 0 {
		return nil
	}
	d := descs[0]
	b := &Body{
		name:           name,
		kind:           kind,
		mass:           mass,
		pos:            pos,
		rot:            rot.Normalize(),
		linearDamping:  w.cfg.Damping,
		angularDamping: w.cfg.Damping,
		material:       CharacterMaterial,
		group:          GroupCharacters,
		mask:           MaskAll,
		occluder:       true,
	}
	if d.Kind == KindCompound {
		for _, sub := range d.Compound {
			b.shapes = append(b.shapes, ShapeInstance{Shape: sub.Shape, Offset: sub.Position, Orientation: sub.Orientation, Mask: sub.Mask})
		}
	} else {
		b.shapes = []ShapeInstance{{Shape: d.Shape, Offset: d.Position, Orientation: d.Orientation, Mask: d.Mask}}
	}
	if len(b.shapes) == 0 {
		return nil
	}
	if kind == BodyDynamic && mass > 0 {
		b.invMass = 1 / mass
		_, half := b.shapes[0].Shape.bounds()
		size := (half.X() + half.Y() + half.Z()) / 3 * 2
		if i := mass * size * size / 6; i > 0 {
			b.invI = 1 / i
		}
	}
	return b
}

// Remove unregisters b. Unknown or nil bodies are ignored.
func (w *World) Remove(b *Body) {
	if b == nil {
		return
	}
	for i, x := range w.bodies {
		if x == b {
			w.bodies = append(w.bodies[:i], w.bodies[i+1:]...)
			return
		}
	}
}

// Step advances the world by wall-clock dt using fixed internal steps and
// refreshes every body's interpolated pose. It returns the number of
// internal steps taken.
func (w *World) Step(dt float64) int {
	if dt <= 0 || math.IsNaN(dt) {
		return 0
	}
	h := w.cfg.FixedStep
	w.acc += dt
	n := 0
	for w.acc >= h && n < w.cfg.MaxSubSteps {
		w.internalStep(h)
		w.acc -= h
		n++
	}
	w.acc = math.Mod(w.acc, h)
	alpha := w.acc / h
	for _, b := range w.bodies {
		if b.kind == BodyStatic {
			continue
		}
		b.iPos = b.prevPos.Add(b.pos.Sub(b.prevPos).Mul(alpha))
		b.iRot = mgl64.QuatSlerp(b.prevRot, b.rot, alpha)
	}
	return n
}

type contact struct {
	a, b   *Body
	normal mgl64.Vec3
	depth  float64
	cm     ContactMaterial
	vn0    float64
	accN   float64
}

func (w *World) internalStep(h float64) {
	w.steps++
	for _, b := range w.bodies {
		b.prevPos, b.prevRot = b.pos, b.rot
		if b.kind != BodyDynamic || b.invMass == 0 {
			continue
		}
		b.vel = b.vel.Add(w.cfg.Gravity.Mul(h))
		b.vel = b.vel.Mul(math.Pow(1-b.linearDamping, h))
		b.ang = b.ang.Mul(math.Pow(1-b.angularDamping, h))
	}

	contacts := w.detect()
	for _, c := range contacts {
		c.vn0 = c.b.vel.Sub(c.a.vel).Dot(c.normal)
	}
	for it := 0; it < w.cfg.SolverIterations; it++ {
		for _, c := range contacts {
			solve(c)
		}
	}

	for _, b := range w.bodies {
		if b.kind != BodyDynamic || b.invMass == 0 {
			continue
		}
		b.pos = b.pos.Add(b.vel.Mul(h))
		if b.ang.LenSqr() > 0 {
			spin := mgl64.Quat{W: 0, V: b.ang.Mul(0.5 * h)}
			b.rot = b.rot.Add(spin.Mul(b.rot)).Normalize()
		}
		b.integrations++
	}

	for _, c := range contacts {
		correct(c, h)
	}
}

// detect collects contacts between every movable body and everything else.
func (w *World) detect() []*contact {
	var out []*contact
	for i, a := range w.bodies {
		for j, b := range w.bodies {
			if i == j {
				continue
			}
			// Only dynamic bodies respond; each dynamic pair is visited once.
			if a.kind != BodyDynamic || a.invMass == 0 {
				continue
			}
			if b.kind == BodyDynamic && b.invMass > 0 && j < i {
				continue
			}
			out = append(out, w.pairContacts(a, b)...)
		}
	}
	return out
}

func (w *World) pairContacts(a, b *Body) []*contact {
	var out []*contact
	for i := range a.shapes {
		pa := a.prim(i)
		aLo, aHi := pa.aabb()
		for j := range b.shapes {
			if !canCollide(a.group, a.shapeMask(i), b.group, b.shapeMask(j)) {
				continue
			}
			pb := b.prim(j)
			bLo, bHi := pb.aabb()
			if !overlapAABB(aLo, aHi, bLo, bHi) {
				continue
			}
			n, depth, ok := collide(pa, pb)
			if !ok {
				continue
			}
			out = append(out, &contact{a: a, b: b, normal: n, depth: depth, cm: w.contactMaterial(a.material, b.material)})
		}
	}
	return out
}

// solve applies one sequential-impulse pass to c: non-penetration with
// accumulated clamping, then Coulomb friction bounded by the normal impulse.
func solve(c *contact) {
	im := c.a.invMass + c.b.invMass
	if im == 0 {
		return
	}
	rel := c.b.vel.Sub(c.a.vel)
	vn := rel.Dot(c.normal)

	target := 0.0
	if c.vn0 < -restitutionFloor {
		target = -c.cm.Restitution * c.vn0
	}
	jn := (target - vn) / im
	old := c.accN
	c.accN = math.Max(old+jn, 0)
	jn = c.accN - old
	applyPair(c, c.normal.Mul(jn))

	if c.cm.Friction <= 0 {
		return
	}
	rel = c.b.vel.Sub(c.a.vel)
	tan := rel.Sub(c.normal.Mul(rel.Dot(c.normal)))
	if tan.LenSqr() < 1e-12 {
		return
	}
	tan = tan.Normalize()
	maxF := c.cm.Friction * c.accN
	jt := clamp(-rel.Dot(tan)/im, -maxF, maxF)
	applyPair(c, tan.Mul(jt))
}

// applyPair adds impulse j to b and subtracts it from a.
func applyPair(c *contact, j mgl64.Vec3) {
	c.a.vel = c.a.vel.Sub(j.Mul(c.a.invMass))
	c.b.vel = c.b.vel.Add(j.Mul(c.b.invMass))
}

// correct projects remaining penetration out after integration.
func correct(c *contact, h float64) {
	im := c.a.invMass + c.b.invMass
	if im == 0 {
		return
	}
	depth := c.depth - c.b.vel.Sub(c.a.vel).Dot(c.normal)*h
	if depth <= contactSlop {
		return
	}
	push := c.normal.Mul((depth - contactSlop) * positionCorrect / im)
	c.a.pos = c.a.pos.Sub(push.Mul(c.a.invMass))
	c.b.pos = c.b.pos.Add(push.Mul(c.b.invMass))
}
