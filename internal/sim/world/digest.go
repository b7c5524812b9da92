package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func digestWriteVec(h hashWriter, tmp *[8]byte, v mgl64.Vec3) {
	for _, x := range v {
		digestWriteF64(h, tmp, x)
	}
}

func digestWriteQuat(h hashWriter, tmp *[8]byte, q mgl64.Quat) {
	digestWriteF64(h, tmp, q.W)
	digestWriteVec(h, tmp, q.V)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// stateDigest hashes everything that influences future ticks: body state,
// render poses, animation state and the local controls.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, w.phys.Steps())
	digestWriteF64(h, &tmp, w.azimuth)

	for _, name := range w.sortedNames() {
		e := w.entities[name]
		digestWriteString(h, &tmp, name)
		digestWriteString(h, &tmp, e.Model)
		if b := e.Body; b != nil {
			h.Write([]byte{1, byte(b.Kind())})
			digestWriteVec(h, &tmp, b.Position())
			digestWriteQuat(h, &tmp, b.Orientation())
			digestWriteVec(h, &tmp, b.Velocity())
			digestWriteVec(h, &tmp, b.AngularVelocity())
		} else {
			h.Write([]byte{0})
		}
		digestWriteVec(h, &tmp, e.VisualPos)
		digestWriteQuat(h, &tmp, e.VisualRot)
		if e.Mixer != nil {
			digestWriteString(h, &tmp, e.Mixer.Current())
			next, in, ok := e.Mixer.Pending()
			h.Write([]byte{boolByte(ok), boolByte(e.Mixer.Locked())})
			if ok {
				digestWriteString(h, &tmp, next)
				digestWriteF64(h, &tmp, in)
			}
			for _, a := range e.Mixer.Snapshot() {
				digestWriteString(h, &tmp, a.Name)
				digestWriteF64(h, &tmp, a.Weight)
				digestWriteF64(h, &tmp, a.Time)
			}
		}
	}

	if w.ctrl != nil {
		c := w.ctrl.Controls()
		h.Write([]byte{byte(c.Move), byte(c.Turn), boolByte(c.Jump), boolByte(c.Attacking), boolByte(c.Freeze)})
		digestWriteString(h, &tmp, string(c.Mode))
		digestWriteString(h, &tmp, string(c.AttackMode))
		digestWriteString(h, &tmp, c.Action)
		digestWriteF64(h, &tmp, w.ctrl.Heading())
	}
	h.Write([]byte{boolByte(w.camera.Colliding)})

	return hex.EncodeToString(h.Sum(nil))
}
