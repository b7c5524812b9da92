package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_OverridesAndDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	raw := []byte(`
frame_rate_hz: 30
physics:
  solver_iterations: 4
  gravity: [0, -20, 0]
animation:
  swap_speed: 0.5
`)
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.FrameRateHz != 30 || tu.Physics.SolverIterations != 4 || tu.Physics.Gravity[1] != -20 {
		t.Fatalf("overrides not applied: %+v", tu)
	}
	if tu.Animation.SwapSpeed != 0.5 {
		t.Fatalf("swap_speed=%v", tu.Animation.SwapSpeed)
	}
	if tu.Physics.MaxSubSteps != 20 || tu.Physics.FixedStep != 1.0/60.0 {
		t.Fatalf("defaults lost: %+v", tu.Physics)
	}
	if tu.Presence.SyncEveryFrames != 3 {
		t.Fatalf("presence defaults lost: %+v", tu.Presence)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist, got %v", err)
	}
	p := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(p, []byte("physics: [1,2"), 0o644)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestNormalize_RejectsOutOfRangeDamping(t *testing.T) {
	tu := Tuning{}
	tu.Physics.Damping = 1.5
	tu.Normalize()
	if tu.Physics.Damping != 0.05 {
		t.Fatalf("damping=%v", tu.Physics.Damping)
	}
}
