package control

import "math"

// Heading converts camera azimuth and input into a world yaw about +Y.
// ok is false when neither move nor turn is active.
func Heading(azimuth float64, move Move, turn Turn) (float64, bool) {
	a := math.Pi / 4
	if move == MoveNone {
		a = math.Pi / 2
	}
	switch turn {
	case TurnLeft:
		if move == MoveBackward {
			return azimuth - a, true
		}
		return azimuth + math.Pi + a, true
	case TurnRight:
		if move == MoveBackward {
			return azimuth + a, true
		}
		return azimuth + math.Pi - a, true
	}
	switch move {
	case MoveForward:
		return azimuth + math.Pi, true
	case MoveBackward:
		return azimuth, true
	}
	return 0, false
}

// Speed is the horizontal speed for the latched controls.
func Speed(base float64, c Controls) float64 {
	if c.Attacking {
		return 0
	}
	if c.Move == MoveNone && c.Turn == TurnNone {
		return 0
	}
	if c.Mode == ModeRun {
		return base * 3
	}
	return base
}
