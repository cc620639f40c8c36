// Package drowsiness turns per-frame detections into debounced signals, a
// risk classification and escalation decisions.
//
// Nothing in this package reads the wall clock. Every operation takes the
// tick time from the caller, so sessions can be replayed with synthetic
// timestamps.
package drowsiness

// Edge is the transition of a boolean signal between two consecutive ticks.
type Edge uint8

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
)

// String returns the edge name used in logs.
func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	default:
		return "none"
	}
}

// DetectEdge compares the previous tick's value with the current one.
func DetectEdge(prev, cur bool) Edge {
	switch {
	case !prev && cur:
		return EdgeRising
	case prev && !cur:
		return EdgeFalling
	default:
		return EdgeNone
	}
}

// Transitions holds the edges of every tracked signal for one tick.
// They are computed once, before any derivation runs.
type Transitions struct {
	EyesClosed Edge `json:"eyes_closed"`
	Yawn       Edge `json:"yawn"`
	HeadNod    Edge `json:"head_nod"`
}
