package control

import (
	"math"
	"math/rand"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"brawlarena.ai/internal/sim/anim"
)

// Body is the part of a rigid body the controller drives.
type Body interface {
	SetOrientation(q mgl64.Quat)
	SetVelocityXZ(x, z float64)
	ApplyLocalImpulse(impulse, point mgl64.Vec3)
}

// Animator is the part of an animation mixer the controller drives.
type Animator interface {
	Current() string
	Transition(target, queued string) error
	Lock()
	Unlock()
}

type Config struct {
	Speed     float64
	JumpForce float64
	// Attacks lists the clips a normal attack picks from.
	Attacks []string
	Seed    int64
}

// Controller turns intents into locomotion and action changes for the local character.
type Controller struct {
	cfg      Config
	rng      *rand.Rand
	controls Controls
	heading  float64
}

func New(cfg Config, initialAction string) *Controller {
	return &Controller{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		controls: Controls{Mode: ModeWalk, Action: initialAction},
	}
}

func (c *Controller) Controls() Controls { return c.controls }

// Heading is the last active yaw in radians.
func (c *Controller) Heading() float64 { return c.heading }

// Apply copies this tick's intent into the latch. Attacks latch until the
// follow-up action starts; a normal attack with no configured clips does not
// latch.
func (c *Controller) Apply(in Intent) {
	c.controls.Move = in.Move
	c.controls.Turn = in.Turn
	if in.Mode != "" {
		c.controls.Mode = in.Mode
	}
	c.controls.Jump = in.Jump
	if in.Attack && !c.controls.Attacking {
		mode := in.AttackMode
		if mode == "" {
			mode = AttackNormal
		}
		if mode == AttackSpecial || len(c.cfg.Attacks) > 0 {
			c.controls.Attacking = true
			c.controls.AttackMode = mode
		}
	}
}

// Drive sets orientation and horizontal velocity of b from the latched
// controls and applies the jump impulse.
func (c *Controller) Drive(b Body, azimuth float64) {
	if b == nil {
		return
	}
	if !c.controls.Attacking {
		if h, ok := Heading(azimuth, c.controls.Move, c.controls.Turn); ok {
			c.heading = h
		}
	}
	speed := Speed(c.cfg.Speed, c.controls)

	up := mgl64.Vec3{0, 1, 0}
	b.SetOrientation(mgl64.QuatRotate(c.heading, up))
	dir := mgl64.Vec3{math.Sin(c.heading), 0, math.Cos(c.heading)}.Mul(speed)
	b.SetVelocityXZ(dir.X(), dir.Z())

	if c.controls.Jump && !c.controls.Freeze {
		b.ApplyLocalImpulse(mgl64.Vec3{0, c.cfg.JumpForce, 0}, mgl64.Vec3{})
	}
}

// SelectAction picks the action the latched controls ask for. current is
// excluded from normal attack picks unless it is the only candidate.
func (c *Controller) SelectAction(current string) string {
	if c.controls.Attacking {
		switch c.controls.AttackMode {
		case AttackSpecial:
			return ActionSpecialAttack
		default:
			if a := c.pickAttack(current); a != "" {
				return a
			}
		}
	}
	switch {
	case c.controls.Jump:
		return ActionJump
	case c.controls.Move != MoveNone:
		return forwardAction(c.controls.Mode)
	case c.controls.Turn != TurnNone:
		return ActionRunForward
	}
	return ActionIdle
}

func (c *Controller) pickAttack(current string) string {
	candidates := make([]string, 0, len(c.cfg.Attacks))
	for _, a := range c.cfg.Attacks {
		if a != current {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		candidates = c.cfg.Attacks
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[c.rng.Intn(len(candidates))]
}

// Update selects this tick's action and transitions m when it changed.
// Jumps and attacks freeze selection until their follow-up starts. Without
// an animator no follow-up can start, so the attack latch is dropped.
func (c *Controller) Update(m Animator) error {
	if m == nil {
		c.controls.Attacking = false
		c.controls.Freeze = false
		c.controls.Action = c.SelectAction("")
		return nil
	}
	if c.controls.Freeze {
		return nil
	}
	current := m.Current()
	action := c.SelectAction(current)
	c.controls.Action = action
	if action == current {
		return nil
	}

	queued := ""
	if action == ActionJump || strings.Contains(action, "attack") {
		queued = forwardAction(c.controls.Mode)
		if c.controls.Move == MoveNone || c.controls.Attacking {
			queued = ActionIdle
		}
		c.controls.Freeze = true
		m.Lock()
	}
	if err := m.Transition(action, queued); err != nil {
		c.controls.Freeze = false
		c.controls.Attacking = false
		c.controls.Action = current
		m.Unlock()
		return err
	}
	return nil
}

// HandleEvent reacts to mixer events. A started follow-up releases the freeze
// and the attack latch.
func (c *Controller) HandleEvent(ev anim.Event, m Animator) {
	if ev.Kind != anim.NextActionStarted {
		return
	}
	c.controls.Action = ev.Action
	c.controls.Freeze = false
	c.controls.Attacking = false
	if m != nil {
		m.Unlock()
	}
}
