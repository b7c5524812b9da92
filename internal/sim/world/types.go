package world

import (
	"github.com/go-gl/mathgl/mgl64"

	"brawlarena.ai/internal/presence"
	"brawlarena.ai/internal/sim/anim"
	"brawlarena.ai/internal/sim/control"
	"brawlarena.ai/internal/sim/physics"
)

// PlacedModel asks the world to instantiate a catalog model.
type PlacedModel struct {
	Name     string     `json:"name"`
	Model    string     `json:"model"`
	Username string     `json:"username,omitempty"`
	Player   bool       `json:"player,omitempty"`
	Remote   bool       `json:"remote,omitempty"`
	Pos      [3]float64 `json:"pos"`
	Rot      [4]float64 `json:"rot"` // x,y,z,w; zero means identity
}

// FrameInput is everything one tick consumes.
type FrameInput struct {
	Dt      float64                    `json:"dt"`
	Intent  control.Intent             `json:"intent"`
	Azimuth float64                    `json:"azimuth"`
	Remote  []presence.RemoteTransform `json:"remote,omitempty"`
	Spawns  []PlacedModel              `json:"spawns,omitempty"`
	Removes []string                   `json:"removes,omitempty"`
}

// Entity is one instantiated model.
type Entity struct {
	Name     string
	Model    string
	Type     string
	Username string
	Local    bool
	Remote   bool

	// Body is the movable body, nil for static scenery.
	Body   *physics.Body
	Static []*physics.Body
	Mixer  *anim.Mixer

	VisualPos mgl64.Vec3
	VisualRot mgl64.Quat
	// Hidden lists collision nodes that are not rendered.
	Hidden []string
}

// Transform is the render-facing pose of an entity.
type Transform struct {
	Name   string
	Pos    mgl64.Vec3
	Rot    mgl64.Quat
	Hidden []string
}

type ActionView struct {
	Name    string
	Current string
	Actions []anim.ActionState
}

// CameraHit is the result of the camera occlusion query.
type CameraHit struct {
	Colliding bool
	Point     mgl64.Vec3
	Distance  float64
	Body      string
}

// TransformSink receives the local player's pose for replication. It must not block.
type TransformSink interface {
	PublishTransform(pos mgl64.Vec3, rot mgl64.Quat)
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TickLogEntry struct {
	Tick   uint64     `json:"tick"`
	Input  FrameInput `json:"input"`
	Digest string     `json:"digest"`
}

type StateSummary struct {
	Tick       uint64   `json:"tick"`
	Entities   []string `json:"entities"`
	Player     string   `json:"player,omitempty"`
	Action     string   `json:"action,omitempty"`
	Frozen     bool     `json:"frozen"`
	Bodies     int      `json:"bodies"`
	PhysSteps  uint64   `json:"physics_steps"`
	Camera     bool     `json:"camera_colliding"`
	LastDigest string   `json:"last_digest"`
}
