package sim

import (
	"math"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/weathering/components"
)

// farAway bounds rays that are not limited by a motion model.
const farAway = float32(math.MaxFloat32 / 4)

// surfaceOffset lifts ray origins off the surface they start on.
const surfaceOffset = 1e-4

// traceChunk computes trajectories for snapshots [start, end).
func (s *Simulation) traceChunk(start, end, _ int) {
	for i := start; i < end; i++ {
		snap := &s.snapshots[i]
		// Seeded per ton so results do not depend on chunking.
		rng := rand.New(rand.NewPCG(s.cfg.Seed^s.pass, uint64(i)))
		s.trace(snap, &s.intents[i], rng)
	}
}

func (s *Simulation) trace(snap *tonSnapshot, in *intent, rng *rand.Rand) {
	src := s.sources[snap.Source]
	in.contacts = in.contacts[:0]
	in.bounces = 0
	in.settled = false

	pos, dir := snap.Pos, snap.Dir
	motion := components.MotionStraight
	var normal mgl32.Vec3

	for in.bounces < int32(s.cfg.MaxBounces) {
		var (
			h  hit
			ok bool
		)
		switch motion {
		case components.MotionStraight:
			h, ok = s.bvh.cast(pos.Add(dir.Mul(surfaceOffset)), dir, farAway)
		case components.MotionParabolic:
			h, ok = s.hop(pos, normal, src.parabolaHeight, rng)
		case components.MotionFlow:
			var stuck bool
			h, ok, stuck = s.flow(pos, normal, src)
			if stuck {
				in.settled = true
				break
			}
		}
		if in.settled {
			break
		}
		if !ok {
			// Left the scene.
			break
		}

		in.bounces++
		pos = h.point
		normal = h.normal

		near := s.surface.Within(pos, src.interactionRadius)
		if len(near) == 0 {
			near = s.surface.Nearest(pos, 1)
			if len(near) > 0 && near[0].Dist > 2*src.interactionRadius {
				near = near[:0]
			}
		}
		if len(near) == 0 {
			// No surfel to interact with, the ton is absorbed by the geometry.
			in.settled = true
			break
		}

		c := contact{surfels: make([]int32, len(near))}
		var keep [components.NumMotions]float64
		for j, nb := range near {
			c.surfels[j] = int32(nb.Index)
			d := &s.surface.Samples[nb.Index].Data
			keep[components.MotionStraight] += d.DeltaStraight
			keep[components.MotionParabolic] += d.DeltaParabolic
			keep[components.MotionFlow] += d.DeltaFlow
		}
		in.contacts = append(in.contacts, c)

		next := src.nextMotion(rng)
		if rng.Float64() >= keep[next]/float64(len(near)) {
			in.settled = true
			break
		}
		motion = next
		if motion == components.MotionStraight {
			dir = cosineHemisphere(normal, rng)
		} else {
			dir = normal
		}
	}

	in.final = pos
}

// hop follows a parabola of apex height h above the surface in a random
// tangent direction, then falls along gravity.
func (s *Simulation) hop(pos, normal mgl32.Vec3, h float32, rng *rand.Rand) (hit, bool) {
	if h <= 0 {
		return s.bvh.cast(pos.Add(normal.Mul(surfaceOffset)), s.down, farAway)
	}
	up := s.down.Mul(-1)
	t, bt := tangentFrame(up)
	phi := 2 * math.Pi * rng.Float64()
	horiz := t.Mul(float32(math.Cos(phi))).Add(bt.Mul(float32(math.Sin(phi))))
	length := 2 * h

	start := pos.Add(normal.Mul(surfaceOffset))
	prev := start
	segments := s.cfg.ParabolaSegments
	for k := 1; k <= segments; k++ {
		u := float32(k) / float32(segments)
		next := start.Add(horiz.Mul(u * length)).Add(up.Mul(4 * h * u * (1 - u)))
		seg := next.Sub(prev)
		segLen := seg.Len()
		if segLen > 0 {
			if hh, ok := s.bvh.cast(prev, seg.Mul(1/segLen), segLen); ok {
				return hh, true
			}
		}
		prev = next
	}
	return s.bvh.cast(prev, s.down, farAway)
}

// flow slides the ton along the surface in the flow direction projected onto
// the tangent plane. stuck reports a surface perpendicular to the flow.
func (s *Simulation) flow(pos, normal mgl32.Vec3, src *TonSource) (h hit, ok, stuck bool) {
	g := src.flowDirectionOr(s.down)
	tangent := g.Sub(normal.Mul(g.Dot(normal)))
	if tangent.Len() < 1e-4 || src.flowDistance <= 0 {
		return hit{}, false, true
	}
	tangent = tangent.Normalize()
	d := src.flowDistance

	origin := pos.Add(normal.Mul(surfaceOffset))
	// Obstacles in the way of the flow.
	if hh, ok := s.bvh.cast(origin, tangent, d); ok {
		return hh, true, false
	}
	// Re-attach to the surface below the displaced point.
	lifted := origin.Add(tangent.Mul(d)).Add(normal.Mul(0.5 * d))
	if hh, ok := s.bvh.cast(lifted, normal.Mul(-1), 1.5*d); ok {
		return hh, true, false
	}
	// Ran over an edge, fall.
	hh, ok := s.bvh.cast(lifted, s.down, farAway)
	return hh, ok, false
}
