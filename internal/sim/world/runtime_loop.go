package world

import (
	"context"
	"time"

	"brawlarena.ai/internal/presence"
	"brawlarena.ai/internal/sim/control"
)

// maxFrameDt bounds the measured frame time after a stall.
const maxFrameDt = 0.25

// Run drives StepOnce from a ticker at the configured frame rate. Inputs
// arrive on channels; the latest intent and azimuth win, remote transforms
// accumulate until the next frame.
func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.tun.FrameRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		intent        control.Intent
		azimuth       float64
		pendingRemote []presence.RemoteTransform
		pendingSpawns []PlacedModel
		pendingRemove []string
		pendingState  []chan StateSummary
	)
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case in := <-w.intents:
			intent = in
		case az := <-w.azimuthCh:
			azimuth = az
		case rt := <-w.remote:
			pendingRemote = append(pendingRemote, rt)
		case p := <-w.spawn:
			pendingSpawns = append(pendingSpawns, p)
		case name := <-w.remove:
			pendingRemove = append(pendingRemove, name)
		case req := <-w.stateReq:
			pendingState = append(pendingState, req)
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if dt > maxFrameDt {
				dt = maxFrameDt
			}
			w.StepOnce(FrameInput{
				Dt:      dt,
				Intent:  intent,
				Azimuth: azimuth,
				Remote:  pendingRemote,
				Spawns:  pendingSpawns,
				Removes: pendingRemove,
			})
			// Jump and attack are edges; they must not repeat on the next frame.
			intent.Jump = false
			intent.Attack = false
			for _, req := range pendingState {
				req <- w.summary()
			}
			pendingRemote = nil
			pendingSpawns = nil
			pendingRemove = nil
			pendingState = pendingState[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// Input channels for other goroutines. Sends drop the oldest value when full
// so a stalled simulation never blocks the network or input side.

func (w *World) SubmitIntent(in control.Intent) { sendLatest(w.intents, in) }
func (w *World) SetAzimuth(az float64)          { sendLatest(w.azimuthCh, az) }
func (w *World) PushRemote(rt presence.RemoteTransform) {
	sendLatest(w.remote, rt)
}

// RequestSpawn queues a spawn for the next frame.
func (w *World) RequestSpawn(ctx context.Context, p PlacedModel) error {
	select {
	case w.spawn <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *World) RequestRemove(ctx context.Context, name string) error {
	select {
	case w.remove <- name:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RemoteInbox exposes the remote transform channel so a presence store can
// write into it directly.
func (w *World) RemoteInbox() chan<- presence.RemoteTransform { return w.remote }

// State asks the running loop for a summary; it is answered after the next frame.
func (w *World) State(ctx context.Context) (StateSummary, error) {
	req := make(chan StateSummary, 1)
	select {
	case w.stateReq <- req:
	case <-ctx.Done():
		return StateSummary{}, ctx.Err()
	}
	select {
	case s := <-req:
		return s, nil
	case <-ctx.Done():
		return StateSummary{}, ctx.Err()
	}
}

func sendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
