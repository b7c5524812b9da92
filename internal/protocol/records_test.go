package protocol

import (
	"math"
	"testing"
)

func TestUserPatchApply_LastWriteWinsPerField(t *testing.T) {
	rec := UserRecord{Username: "alice", Character: "knight", UserIndex: 3, Quat: IdentityQuat()}

	ready := true
	first := UserPatch{Ready: &ready, Pos: &Vec3{X: 1, Y: 2, Z: 3}}
	rec = first.Apply(rec)

	admin := true
	idx := 0
	second := UserPatch{IsRoomAdmin: &admin, UserIndex: &idx, Pos: &Vec3{X: 4}}
	rec = second.Apply(rec)

	if !rec.Ready || !rec.IsRoomAdmin || rec.UserIndex != 0 {
		t.Fatalf("flags not merged: %+v", rec)
	}
	if rec.Pos != (Vec3{X: 4}) {
		t.Fatalf("pos should come from the later write: %+v", rec.Pos)
	}
	if rec.Character != "knight" || rec.Quat != IdentityQuat() {
		t.Fatalf("untouched fields changed: %+v", rec)
	}
	if !(UserPatch{}).Empty() || first.Empty() {
		t.Fatalf("Empty mismatch")
	}
}

func TestRecordRoundTrip_AllCodecs(t *testing.T) {
	in := UserRecord{
		Username:  "bob",
		Character: "mage",
		Ready:     true,
		UserIndex: 2,
		Pos:       Vec3{X: 1.0 / 3.0, Y: -9.80665, Z: 123456.789012},
		Quat:      Quat{X: 0, Y: math.Sin(math.Pi / 8), Z: 0, W: math.Cos(math.Pi / 8)},
	}
	for _, name := range []string{CodecJSON, CodecMsgpack} {
		c, err := CodecByName(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		b, err := c.Marshal(SetMsg{Type: TypeSet, ReqID: "r1", Key: in.Username, Record: in})
		if err != nil {
			t.Fatalf("%s marshal: %v", name, err)
		}
		base, err := DecodeBaseWith(c, b)
		if err != nil || base.Type != TypeSet || base.ReqID != "r1" {
			t.Fatalf("%s base: %+v err=%v", name, base, err)
		}
		var out SetMsg
		if err := c.Unmarshal(b, &out); err != nil {
			t.Fatalf("%s unmarshal: %v", name, err)
		}
		got := out.Record
		if got.Username != in.Username || got.Character != in.Character || got.Ready != in.Ready || got.UserIndex != in.UserIndex {
			t.Fatalf("%s scalar mismatch: %+v", name, got)
		}
		pairs := [][2]float64{
			{got.Pos.X, in.Pos.X}, {got.Pos.Y, in.Pos.Y}, {got.Pos.Z, in.Pos.Z},
			{got.Quat.X, in.Quat.X}, {got.Quat.Y, in.Quat.Y}, {got.Quat.Z, in.Quat.Z}, {got.Quat.W, in.Quat.W},
		}
		for i, p := range pairs {
			if math.Abs(p[0]-p[1]) > 1e-6 {
				t.Fatalf("%s float %d: got=%v want=%v", name, i, p[0], p[1])
			}
		}
	}
	if _, err := CodecByName("xml"); err == nil {
		t.Fatalf("expected unknown codec error")
	}
}
