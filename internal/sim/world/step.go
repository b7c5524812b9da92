package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"brawlarena.ai/internal/presence"
	"brawlarena.ai/internal/sim/control"
	"brawlarena.ai/internal/sim/physics"
)

// StepOnce advances the world by one frame and returns the tick it simulated
// together with the state digest after it. Replays and tests use it directly;
// Run calls it from the ticker.
func (w *World) StepOnce(in FrameInput) (tick uint64, digest string) {
	tick = w.tick
	recordedSpawns := append(w.recordedSpawns, in.Spawns...)
	recordedRemoves := append(w.recordedRemoves, in.Removes...)
	w.recordedSpawns, w.recordedRemoves = nil, nil

	for _, p := range in.Spawns {
		if err := w.spawn1(p); err != nil {
			w.log.Printf("world: tick %d: spawn %q: %v", tick, p.Name, err)
		}
	}
	for _, name := range in.Removes {
		w.remove1(name)
	}

	w.applyRemote(in.Remote)

	if w.ctrl != nil {
		w.ctrl.Apply(in.Intent)
	}
	w.azimuth = in.Azimuth

	dt := in.Dt
	if dt < 0 || math.IsNaN(dt) {
		dt = 0
	}
	w.phys.Step(dt)

	if w.ctrl != nil && w.player != nil {
		w.ctrl.Drive(w.player.Body, w.azimuth)
	}

	w.syncVisuals()
	w.camera = w.cameraQuery()
	w.updateAnimations(tick, dt)

	if w.sink != nil && w.player != nil && w.player.Body != nil {
		every := uint64(w.tun.Presence.SyncEveryFrames)
		if every > 0 && tick%every == 0 {
			w.sink.PublishTransform(w.player.Body.Position(), w.player.Body.Orientation())
		}
	}

	digest = w.stateDigest(tick)
	w.digest = digest
	if w.tickLogger != nil {
		in.Spawns = recordedSpawns
		in.Removes = recordedRemoves
		if err := w.tickLogger.WriteTick(TickLogEntry{Tick: tick, Input: in, Digest: digest}); err != nil {
			w.log.Printf("world: tick log: %v", err)
		}
	}

	if w.snapshotSink != nil && tick != 0 && w.tun.SnapshotEveryFrames > 0 {
		if tick%uint64(w.tun.SnapshotEveryFrames) == 0 {
			snap := w.ExportSnapshot(tick)
			select {
			case w.snapshotSink <- snap:
			default:
			}
		}
	}

	w.tick++
	return tick, digest
}

// applyRemote moves replicated characters to their published pose. Kinematic
// bodies are never integrated, so the pose holds until the next update.
func (w *World) applyRemote(updates []presence.RemoteTransform) {
	for _, rt := range updates {
		e := w.characterFor(rt.Key)
		if e == nil || e.Local || e.Body == nil {
			continue
		}
		if !finite(rt.Pos) {
			w.log.Printf("world: remote %q: non-finite position dropped", rt.Key)
			continue
		}
		rot := rt.Rot
		if rot.Len() == 0 {
			rot = mgl64.QuatIdent()
		}
		e.Body.SetPose(rt.Pos, rot.Normalize())
		e.VisualPos = rt.Pos
		e.VisualRot = rot.Normalize()
	}
}

// syncVisuals copies interpolated body poses to the render poses. The local
// player's orientation eases toward the body instead of snapping.
func (w *World) syncVisuals() {
	for _, e := range w.entities {
		if e.Body == nil || e.Remote {
			continue
		}
		pos, rot := e.Body.Interpolated()
		e.VisualPos = pos
		if e == w.player {
			e.VisualRot = mgl64.QuatSlerp(e.VisualRot, rot, visualSlerp)
		} else {
			e.VisualRot = rot
		}
	}
}

// cameraQuery casts from the player's head toward the orbit camera and
// reports the first occluder in between.
func (w *World) cameraQuery() CameraHit {
	if w.player == nil || w.player.Body == nil {
		return CameraHit{}
	}
	c := w.tun.Camera
	origin := w.player.VisualPos
	offset := mgl64.Vec3{
		math.Sin(w.azimuth) * c.TargetRadius,
		c.DistanceFromFloor,
		math.Cos(w.azimuth) * c.TargetRadius,
	}
	length := offset.Len()
	if length == 0 {
		return CameraHit{}
	}
	hit, ok := w.phys.Raycast(origin, offset.Mul(1/length), length+c.Falloff, physics.MaskAll, w.player.Body)
	if !ok {
		return CameraHit{}
	}
	return CameraHit{Colliding: true, Point: hit.Point, Distance: hit.Distance, Body: hit.Body.Name()}
}

func (w *World) updateAnimations(tick uint64, dt float64) {
	if w.ctrl != nil && w.player != nil {
		var m control.Animator
		if w.player.Mixer != nil {
			m = w.player.Mixer
		}
		if err := w.ctrl.Update(m); err != nil {
			// Logged once per model and message; the controller already released its freeze.
			key := w.player.Model + ": " + err.Error()
			if !w.missingClips[key] {
				w.missingClips[key] = true
				w.log.Printf("world: tick %d: %s", tick, key)
			}
		}
	}
	for _, name := range w.sortedNames() {
		e := w.entities[name]
		if e.Mixer == nil {
			continue
		}
		events := e.Mixer.Update(dt)
		for _, ev := range events {
			if ev.Err != nil {
				w.log.Printf("world: tick %d: %s: %v", tick, name, ev.Err)
			}
		}
		if e != w.player || w.ctrl == nil {
			continue
		}
		for _, ev := range events {
			w.ctrl.HandleEvent(ev, e.Mixer)
		}
	}
}
