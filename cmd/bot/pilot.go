package main

import (
	"math"
	"math/rand"

	"brawlarena.ai/internal/sim/control"
)

// maneuver is one scripted stretch of input. Jump and Attack are only
// pressed on its first step.
type maneuver struct {
	intent control.Intent
	steps  int
}

var maneuvers = []maneuver{
	{intent: control.Intent{}, steps: 8},
	{intent: control.Intent{Move: control.MoveForward, Mode: control.ModeWalk}, steps: 12},
	{intent: control.Intent{Move: control.MoveForward, Mode: control.ModeRun}, steps: 10},
	{intent: control.Intent{Move: control.MoveForward, Turn: control.TurnLeft, Mode: control.ModeWalk}, steps: 6},
	{intent: control.Intent{Move: control.MoveBackward, Turn: control.TurnRight, Mode: control.ModeWalk}, steps: 6},
	{intent: control.Intent{Jump: true}, steps: 6},
	{intent: control.Intent{Move: control.MoveForward, Mode: control.ModeRun, Jump: true}, steps: 6},
	{intent: control.Intent{Attack: true, AttackMode: control.AttackNormal}, steps: 6},
	{intent: control.Intent{Attack: true, AttackMode: control.AttackSpecial}, steps: 8},
}

// pilot drives the local character with a seeded random walk over maneuvers
// while the camera orbits slowly.
type pilot struct {
	rng     *rand.Rand
	cur     maneuver
	left    int
	first   bool
	azimuth float64
	orbit   float64
}

func newPilot(seed int64, orbit float64) *pilot {
	return &pilot{rng: rand.New(rand.NewSource(seed)), orbit: orbit}
}

// Next advances one step and returns the intent and camera azimuth.
func (p *pilot) Next() (control.Intent, float64) {
	if p.left <= 0 {
		p.cur = maneuvers[p.rng.Intn(len(maneuvers))]
		p.left = p.cur.steps
		p.first = true
	}
	in := p.cur.intent
	if !p.first {
		in.Jump = false
		in.Attack = false
	}
	p.first = false
	p.left--

	p.azimuth = math.Mod(p.azimuth+p.orbit, 2*math.Pi)
	return in, p.azimuth
}
