package world

import (
	"github.com/go-gl/mathgl/mgl64"

	"brawlarena.ai/internal/persistence/snapshot"
	"brawlarena.ai/internal/sim/physics"
)

// ExportSnapshot captures the state after nowTick. Must be called from the
// simulation goroutine.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			Session: w.cfg.Session,
			Tick:    nowTick,
		},
		FrameRateHz:   w.tun.FrameRateHz,
		CatalogDigest: w.cats.Models.Digest + ":" + w.cats.Assets.Digest,
		Azimuth:       w.azimuth,
	}

	for _, b := range w.phys.Bodies() {
		if b.Kind() == physics.BodyStatic {
			continue
		}
		snap.Bodies = append(snap.Bodies, snapshot.BodyV1{
			ID:       b.ID(),
			Name:     b.Name(),
			Kind:     b.Kind().String(),
			Mass:     b.Mass(),
			Pos:      b.Position(),
			Rot:      quatArr(b.Orientation()),
			Vel:      b.Velocity(),
			AngVel:   b.AngularVelocity(),
			Occluder: b.Occluder(),
		})
	}

	for _, name := range w.sortedNames() {
		e := w.entities[name]
		ev := snapshot.EntityV1{
			Name:      name,
			Model:     e.Model,
			Username:  e.Username,
			Local:     e.Local,
			Remote:    e.Remote,
			VisualPos: e.VisualPos,
			VisualRot: quatArr(e.VisualRot),
			Hidden:    append([]string(nil), e.Hidden...),
		}
		if m := e.Mixer; m != nil {
			ev.Action = m.Current()
			ev.Queued, ev.QueuedIn, _ = m.Pending()
			ev.Locked = m.Locked()
			for _, a := range m.Snapshot() {
				ev.ActionTimes = append(ev.ActionTimes, snapshot.ActionV1{Name: a.Name, Weight: a.Weight, Time: a.Time})
			}
		}
		snap.Entities = append(snap.Entities, ev)
	}

	if w.ctrl != nil {
		c := w.ctrl.Controls()
		snap.Heading = w.ctrl.Heading()
		snap.Controls = &snapshot.ControlsV1{
			Move:       c.Move.String(),
			Turn:       c.Turn.String(),
			Mode:       string(c.Mode),
			Jump:       c.Jump,
			Attacking:  c.Attacking,
			AttackMode: string(c.AttackMode),
			Action:     c.Action,
			Freeze:     c.Freeze,
		}
	}
	return snap
}

func quatArr(q mgl64.Quat) [4]float64 {
	return [4]float64{q.V[0], q.V[1], q.V[2], q.W}
}
