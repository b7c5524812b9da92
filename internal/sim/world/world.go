package world

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"brawlarena.ai/internal/persistence/snapshot"
	"brawlarena.ai/internal/presence"
	"brawlarena.ai/internal/sim/anim"
	"brawlarena.ai/internal/sim/catalogs"
	"brawlarena.ai/internal/sim/control"
	"brawlarena.ai/internal/sim/physics"
	"brawlarena.ai/internal/sim/tuning"
)

var (
	ErrUnknownModel  = errors.New("world: unknown model")
	ErrDuplicateName = errors.New("world: duplicate entity name")
)

// visualSlerp is how far the rendered orientation moves toward the body each tick.
const visualSlerp = 0.1

type Config struct {
	Session string
	Tuning  tuning.Tuning
	Logger  *log.Logger
	Seed    int64
}

// World is the explicit simulation context. Only the goroutine running Run
// (or the caller of StepOnce) may touch it.
type World struct {
	cfg  Config
	tun  tuning.Tuning
	log  *log.Logger
	cats *catalogs.Catalogs

	phys     *physics.World
	entities map[string]*Entity
	player   *Entity
	ctrl     *control.Controller
	azimuth  float64
	camera   CameraHit
	tick     uint64
	digest   string

	// Spawns and removals done outside StepOnce, logged with the next tick.
	recordedSpawns  []PlacedModel
	recordedRemoves []string
	missingClips    map[string]bool

	sink         TransformSink
	tickLogger   TickLogger
	snapshotSink chan<- snapshot.SnapshotV1

	intents   chan control.Intent
	azimuthCh chan float64
	remote    chan presence.RemoteTransform
	spawn     chan PlacedModel
	remove    chan string
	stateReq  chan chan StateSummary
	stop      chan struct{}
}

func New(cfg Config, cats *catalogs.Catalogs) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	cfg.Tuning.Normalize()
	tun := cfg.Tuning
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	pc := tun.Physics
	phys := physics.NewWorld(physics.Config{
		Gravity:          mgl64.Vec3{pc.Gravity[0], pc.Gravity[1], pc.Gravity[2]},
		FixedStep:        pc.FixedStep,
		MaxSubSteps:      pc.MaxSubSteps,
		SolverIterations: pc.SolverIterations,
		Damping:          pc.Damping,
		Friction:         pc.Friction,
		Restitution:      pc.Restitution,
	})
	phys.SetContactMaterial(physics.GroundMaterial, physics.CharacterMaterial, physics.ContactMaterial{
		Friction:    pc.Friction,
		Restitution: pc.Restitution,
	})

	queue := tun.Presence.MaxQueue
	return &World{
		cfg:          cfg,
		tun:          tun,
		log:          logger,
		cats:         cats,
		phys:         phys,
		entities:     map[string]*Entity{},
		missingClips: map[string]bool{},
		intents:      make(chan control.Intent, 8),
		azimuthCh:    make(chan float64, 8),
		remote:       make(chan presence.RemoteTransform, queue),
		spawn:        make(chan PlacedModel, 16),
		remove:       make(chan string, 16),
		stateReq:     make(chan chan StateSummary, 4),
		stop:         make(chan struct{}),
	}, nil
}

func (w *World) SetTransformSink(s TransformSink) { w.sink = s }
func (w *World) SetTickLogger(l TickLogger) { w.tickLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }
func (w *World) Physics() *physics.World { return w.phys }
func (w *World) CurrentTick() uint64 { return w.tick }

// LastDigest is the state digest of the most recent frame.
func (w *World) LastDigest() string { return w.digest }
func (w *World) Controller() *control.Controller { return w.ctrl }
func (w *World) Camera() CameraHit { return w.camera }
func (w *World) Entity(name string) *Entity { return w.entities[name] }
func (w *World) Player() *Entity { return w.player }

// SpawnPlacements instantiates every scene placement that is not a player slot.
func (w *World) SpawnPlacements() error {
	for _, p := range w.cats.Assets.Placements {
		if p.Player {
			continue
		}
		if err := w.Spawn(PlacementModel(p)); err != nil {
			return err
		}
	}
	return nil
}

// SpawnPoint returns the start position for the user at index, falling back
// to the origin when the scene declares none.
func (w *World) SpawnPoint(index int) [3]float64 {
	pts := w.cats.Assets.SpawnPoints
	if len(pts) == 0 {
		return [3]float64{}
	}
	if index < 0 {
		index = -index
	}
	return pts[index%len(pts)]
}

// PlacementModel converts a scene placement. Rotation is XYZ Euler degrees.
func PlacementModel(p catalogs.Placement) PlacedModel {
	q := eulerXYZ(p.StartRot)
	return PlacedModel{
		Name:     p.Name,
		Model:    p.Reference,
		Username: p.Username,
		Player:   p.Player,
		Pos:      p.StartPos,
		Rot:      [4]float64{q.V[0], q.V[1], q.V[2], q.W},
	}
}

func eulerXYZ(deg [3]float64) mgl64.Quat {
	qx := mgl64.QuatRotate(mgl64.DegToRad(deg[0]), mgl64.Vec3{1, 0, 0})
	qy := mgl64.QuatRotate(mgl64.DegToRad(deg[1]), mgl64.Vec3{0, 1, 0})
	qz := mgl64.QuatRotate(mgl64.DegToRad(deg[2]), mgl64.Vec3{0, 0, 1})
	return qx.Mul(qy).Mul(qz)
}

func rotOf(r [4]float64) mgl64.Quat {
	if r == ([4]float64{}) {
		return mgl64.QuatIdent()
	}
	return mgl64.Quat{W: r[3], V: mgl64.Vec3{r[0], r[1], r[2]}}.Normalize()
}

// Spawn instantiates a model. The call is recorded in the next tick log entry.
func (w *World) Spawn(p PlacedModel) error {
	if err := w.spawn1(p); err != nil {
		return err
	}
	w.recordedSpawns = append(w.recordedSpawns, p)
	return nil
}

func (w *World) spawn1(p PlacedModel) error {
	def, ok := w.cats.Models.ByID[p.Model]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownModel, p.Model)
	}
	if p.Name == "" {
		p.Name = p.Username
	}
	if p.Name == "" {
		return fmt.Errorf("world: spawn %q without a name", p.Model)
	}
	if _, dup := w.entities[p.Name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateName, p.Name)
	}
	local := p.Player && !p.Remote
	if local && w.player != nil {
		return fmt.Errorf("world: second local player %q (have %q)", p.Name, w.player.Name)
	}

	descs, skipped := physics.DeriveDescriptors(def.Collision)
	for _, s := range skipped {
		w.log.Printf("world: %s: collider skipped: %s", p.Name, s)
	}

	pos := mgl64.Vec3{p.Pos[0], p.Pos[1], p.Pos[2]}
	rot := rotOf(p.Rot)
	e := &Entity{
		Name:      p.Name,
		Model:     def.ID,
		Type:      def.Type,
		Username:  p.Username,
		Local:     local,
		Remote:    p.Remote,
		VisualPos: pos,
		VisualRot: rot,
		Hidden:    hiddenNodes(def.Collision, nil),
	}

	switch {
	case def.Type == catalogs.TypeStatic:
		e.Static = w.phys.CreateStatic(p.Name, descs, pos, rot)
	case p.Remote:
		e.Body = w.phys.CreateKinematic(p.Name, descs, pos, rot)
	default:
		e.Body = w.phys.CreateDynamic(p.Name, def.Physics.Mass, descs, pos, rot)
	}

	if len(def.Animations.Clips) > 0 {
		swap := def.Animations.SwapSpeed
		if swap <= 0 {
			swap = w.tun.Animation.SwapSpeed
		}
		clips := make([]anim.Clip, 0, len(def.Animations.Clips))
		for _, c := range def.Animations.Clips {
			clips = append(clips, anim.Clip{Name: c.Name, Duration: c.Duration})
		}
		m, err := anim.NewMixer(clips, anim.Settings{Default: def.Animations.Default, SwapSpeed: swap})
		if err != nil {
			w.log.Printf("world: %s: animations disabled: %v", p.Name, err)
		} else {
			e.Mixer = m
		}
	}

	if e.Local {
		initial := ""
		if e.Mixer != nil {
			initial = e.Mixer.Current()
		}
		w.player = e
		w.ctrl = control.New(control.Config{
			Speed:     def.Physics.Speed,
			JumpForce: def.Physics.JumpForce,
			Attacks:   def.Animations.Attack,
			Seed:      w.cfg.Seed,
		}, initial)
	}

	w.entities[p.Name] = e
	return nil
}

func hiddenNodes(nodes []catalogs.CollisionNode, out []string) []string {
	for _, n := range nodes {
		if !n.PreserveMesh && n.Name != "" {
			out = append(out, n.Name)
		}
		out = hiddenNodes(n.Children, out)
	}
	return out
}

// Remove destroys an entity, its bodies and any pending animation follow-up.
func (w *World) Remove(name string) bool {
	if !w.remove1(name) {
		return false
	}
	w.recordedRemoves = append(w.recordedRemoves, name)
	return true
}

func (w *World) remove1(name string) bool {
	e, ok := w.entities[name]
	if !ok {
		return false
	}
	w.phys.Remove(e.Body)
	for _, b := range e.Static {
		w.phys.Remove(b)
	}
	if e.Mixer != nil {
		e.Mixer.Cancel()
	}
	if e == w.player {
		w.player = nil
		w.ctrl = nil
	}
	delete(w.entities, name)
	return true
}

func (w *World) sortedNames() []string {
	names := make([]string, 0, len(w.entities))
	for n := range w.entities {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// characterFor finds the remote entity replicating the given user.
func (w *World) characterFor(username string) *Entity {
	if e, ok := w.entities[username]; ok && e.Username == username {
		return e
	}
	for _, e := range w.entities {
		if e.Username == username {
			return e
		}
	}
	return nil
}

// Transforms returns render poses sorted by entity name.
func (w *World) Transforms() []Transform {
	out := make([]Transform, 0, len(w.entities))
	for _, n := range w.sortedNames() {
		e := w.entities[n]
		out = append(out, Transform{Name: n, Pos: e.VisualPos, Rot: e.VisualRot, Hidden: e.Hidden})
	}
	return out
}

// Actions returns the animation state of every animated entity.
func (w *World) Actions() []ActionView {
	var out []ActionView
	for _, n := range w.sortedNames() {
		e := w.entities[n]
		if e.Mixer == nil {
			continue
		}
		out = append(out, ActionView{Name: n, Current: e.Mixer.Current(), Actions: e.Mixer.Snapshot()})
	}
	return out
}

func (w *World) summary() StateSummary {
	s := StateSummary{
		Tick:       w.tick,
		Entities:   w.sortedNames(),
		Bodies:     len(w.phys.Bodies()),
		PhysSteps:  w.phys.Steps(),
		Camera:     w.camera.Colliding,
		LastDigest: w.digest,
	}
	if w.player != nil {
		s.Player = w.player.Name
		c := w.ctrl.Controls()
		s.Action = c.Action
		s.Frozen = c.Freeze
	}
	return s
}

func finite(v mgl64.Vec3) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
