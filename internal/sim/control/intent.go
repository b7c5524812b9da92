package control

type Move uint8

const (
	MoveNone Move = iota
	MoveForward
	MoveBackward
)

func (m Move) String() string {
	switch m {
	case MoveForward:
		return "forward"
	case MoveBackward:
		return "backward"
	default:
		return ""
	}
}

type Turn uint8

const (
	TurnNone Turn = iota
	TurnLeft
	TurnRight
)

func (t Turn) String() string {
	switch t {
	case TurnLeft:
		return "left"
	case TurnRight:
		return "right"
	default:
		return ""
	}
}

type Mode string

const (
	ModeWalk Mode = "walk"
	ModeRun  Mode = "run"
)

type AttackMode string

const (
	AttackNormal  AttackMode = "normal"
	AttackSpecial AttackMode = "special"
)

// Intent is one tick of player input. It is overwritten every tick.
type Intent struct {
	Move       Move       `json:"move,omitempty"`
	Turn       Turn       `json:"turn,omitempty"`
	Mode       Mode       `json:"mode,omitempty"`
	Jump       bool       `json:"jump,omitempty"`
	Attack     bool       `json:"attack,omitempty"`
	AttackMode AttackMode `json:"attack_mode,omitempty"`
}

// Controls is the controller's latched view of the player's input.
// Attacking stays set until the follow-up action starts.
type Controls struct {
	Move       Move
	Turn       Turn
	Mode       Mode
	Jump       bool
	Attacking  bool
	AttackMode AttackMode
	Action     string
	Freeze     bool
}

// Action names the controller selects from.
const (
	ActionIdle          = "idle"
	ActionJump          = "jump"
	ActionSpecialAttack = "special-attack"
	ActionRunForward    = "run-forward"
)

func forwardAction(mode Mode) string {
	if mode == "" {
		mode = ModeWalk
	}
	return string(mode) + "-forward"
}
