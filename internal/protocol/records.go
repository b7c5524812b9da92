package protocol

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityQuat is the orientation published before the first physics step.
func IdentityQuat() Quat { return Quat{W: 1} }

// UserRecord is the replicated presence state of one connected player, keyed by Username.
type UserRecord struct {
	Username    string `json:"username"`
	Character   string `json:"character"`
	Ready       bool   `json:"ready"`
	IsRoomAdmin bool   `json:"isRoomAdmin"`
	UserIndex   int    `json:"userIndex"`
	Pos         Vec3   `json:"pos"`
	Quat        Quat   `json:"quat"`
}

// UserPatch is a partial record update. Nil fields are left untouched.
type UserPatch struct {
	Character   *string `json:"character,omitempty"`
	Ready       *bool   `json:"ready,omitempty"`
	IsRoomAdmin *bool   `json:"isRoomAdmin,omitempty"`
	UserIndex   *int    `json:"userIndex,omitempty"`
	Pos         *Vec3   `json:"pos,omitempty"`
	Quat        *Quat   `json:"quat,omitempty"`
}

func (p UserPatch) Empty() bool {
	return p.Character == nil && p.Ready == nil && p.IsRoomAdmin == nil &&
		p.UserIndex == nil && p.Pos == nil && p.Quat == nil
}

// Apply returns rec with every present patch field overwritten.
func (p UserPatch) Apply(rec UserRecord) UserRecord {
	if p.Character != nil {
		rec.Character = *p.Character
	}
	if p.Ready != nil {
		rec.Ready = *p.Ready
	}
	if p.IsRoomAdmin != nil {
		rec.IsRoomAdmin = *p.IsRoomAdmin
	}
	if p.UserIndex != nil {
		rec.UserIndex = *p.UserIndex
	}
	if p.Pos != nil {
		rec.Pos = *p.Pos
	}
	if p.Quat != nil {
		rec.Quat = *p.Quat
	}
	return rec
}
