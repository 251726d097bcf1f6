// Package components defines the ECS components of tons during a trace pass.
package components

import "github.com/go-gl/mathgl/mgl32"

// Motion is the way a ton currently travels.
type Motion uint8

const (
	MotionStraight  Motion = iota // Ray along Velocity
	MotionParabolic               // Hop along a parabola over the surface
	MotionFlow                    // Slide along the surface
	NumMotions
)

func (m Motion) String() string {
	switch m {
	case MotionStraight:
		return "straight"
	case MotionParabolic:
		return "parabolic"
	case MotionFlow:
		return "flow"
	}
	return "unknown"
}

// Position is a ton's world position.
type Position struct {
	P mgl32.Vec3
}

// Velocity is a ton's unit direction of travel.
type Velocity struct {
	D mgl32.Vec3
}

// Ton holds per-ton bookkeeping.
type Ton struct {
	Source  uint16
	Motion  Motion
	Bounces int32
	Settled bool
}

// Load holds the substances a ton carries and how eagerly it picks up more.
// Both slices are aligned to the simulation's substance table.
type Load struct {
	Substances  []float64
	PickupRates []float64
}
