package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	FrameRateHz int `yaml:"frame_rate_hz"`

	Physics   Physics   `yaml:"physics"`
	Animation Animation `yaml:"animation"`
	Presence  Presence  `yaml:"presence"`
	Camera    Camera    `yaml:"camera"`

	SnapshotEveryFrames int `yaml:"snapshot_every_frames"`
}

type Physics struct {
	FixedStep        float64    `yaml:"fixed_step"`
	MaxSubSteps      int        `yaml:"max_sub_steps"`
	SolverIterations int        `yaml:"solver_iterations"`
	Gravity          [3]float64 `yaml:"gravity"`
	Damping          float64    `yaml:"damping"`
	Friction         float64    `yaml:"friction"`
	Restitution      float64    `yaml:"restitution"`
}

type Animation struct {
	// SwapSpeed is the crossfade duration used when a model does not declare one.
	SwapSpeed float64 `yaml:"swap_speed"`
}

type Presence struct {
	SyncEveryFrames int `yaml:"sync_every_frames"`
	// MaxQueue bounds the per-connection outbound buffer on the presence server.
	MaxQueue int `yaml:"max_queue"`
}

type Camera struct {
	TargetRadius      float64 `yaml:"target_radius"`
	DistanceFromFloor float64 `yaml:"distance_from_floor"`
	Falloff           float64 `yaml:"falloff"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		FrameRateHz:     60,
		Physics: Physics{
			FixedStep:        1.0 / 60.0,
			MaxSubSteps:      20,
			SolverIterations: 10,
			Gravity:          [3]float64{0, -9.8, 0},
			Damping:          0.05,
		},
		Animation: Animation{SwapSpeed: 0.3},
		Presence: Presence{
			SyncEveryFrames: 3,
			MaxQueue:        64,
		},
		Camera: Camera{
			TargetRadius:      4,
			DistanceFromFloor: 1.6,
		},
		SnapshotEveryFrames: 3600,
	}
}

// Normalize fills zero values with defaults.
func (t *Tuning) Normalize() {
	d := Defaults()
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = d.ProtocolVersion
	}
	if t.FrameRateHz <= 0 {
		t.FrameRateHz = d.FrameRateHz
	}
	if t.Physics.FixedStep <= 0 {
		t.Physics.FixedStep = d.Physics.FixedStep
	}
	if t.Physics.MaxSubSteps <= 0 {
		t.Physics.MaxSubSteps = d.Physics.MaxSubSteps
	}
	if t.Physics.SolverIterations <= 0 {
		t.Physics.SolverIterations = d.Physics.SolverIterations
	}
	if t.Physics.Gravity == ([3]float64{}) {
		t.Physics.Gravity = d.Physics.Gravity
	}
	if t.Physics.Damping < 0 || t.Physics.Damping >= 1 {
		t.Physics.Damping = d.Physics.Damping
	}
	if t.Animation.SwapSpeed <= 0 {
		t.Animation.SwapSpeed = d.Animation.SwapSpeed
	}
	if t.Presence.SyncEveryFrames <= 0 {
		t.Presence.SyncEveryFrames = d.Presence.SyncEveryFrames
	}
	if t.Presence.MaxQueue <= 0 {
		t.Presence.MaxQueue = d.Presence.MaxQueue
	}
	if t.Camera.TargetRadius <= 0 {
		t.Camera.TargetRadius = d.Camera.TargetRadius
	}
	if t.SnapshotEveryFrames < 0 {
		t.SnapshotEveryFrames = 0
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	return t, nil
}
