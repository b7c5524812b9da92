package presence

import (
	"github.com/go-gl/mathgl/mgl64"

	"brawlarena.ai/internal/protocol"
)

// RemoteTransform is the pose of another player taken from a single record
// snapshot, so position and orientation always belong together.
type RemoteTransform struct {
	Key string     `json:"key"`
	Pos mgl64.Vec3 `json:"pos"`
	Rot mgl64.Quat `json:"rot"`
	Seq uint64     `json:"seq,omitempty"`
}

func Vec3ToProto(v mgl64.Vec3) protocol.Vec3 { return protocol.Vec3{X: v[0], Y: v[1], Z: v[2]} }

func Vec3FromProto(v protocol.Vec3) mgl64.Vec3 { return mgl64.Vec3{v.X, v.Y, v.Z} }

func QuatToProto(q mgl64.Quat) protocol.Quat {
	return protocol.Quat{X: q.V[0], Y: q.V[1], Z: q.V[2], W: q.W}
}

// QuatFromProto treats the all-zero quaternion as identity.
func QuatFromProto(q protocol.Quat) mgl64.Quat {
	if q == (protocol.Quat{}) {
		return mgl64.QuatIdent()
	}
	return mgl64.Quat{W: q.W, V: mgl64.Vec3{q.X, q.Y, q.Z}}
}

func transformOf(ev Event) RemoteTransform {
	return RemoteTransform{
		Key: ev.Key,
		Pos: Vec3FromProto(ev.Record.Pos),
		Rot: QuatFromProto(ev.Record.Quat),
		Seq: ev.Seq,
	}
}
