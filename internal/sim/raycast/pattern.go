package raycast

import "math"

// Pattern is an ordered fan of directions sharing one radius.
type Pattern struct {
	Name       string
	Directions []Direction
	MaxRadius  int
}

func (p *Pattern) Len() int { return len(p.Directions) }

// NewPattern spreads rays evenly from start to end (radians, counter-clockwise).
// A full turn is divided into rays equal sectors so the first and last rays do
// not coincide; a partial arc includes both endpoints. rays is capped at
// maxRays.
func NewPattern(name string, start, end float64, rays, radius, maxRays int) Pattern {
	if maxRays > 0 && rays > maxRays {
		rays = maxRays
	}
	p := Pattern{Name: name, MaxRadius: radius}
	if rays <= 0 {
		return p
	}
	span := end - start
	if span < 0 {
		span += 2 * math.Pi
	}
	full := span >= 2*math.Pi-1e-9
	p.Directions = make([]Direction, 0, rays)
	for i := 0; i < rays; i++ {
		var a float64
		switch {
		case full:
			a = start + span*float64(i)/float64(rays)
		case rays == 1:
			a = start
		default:
			a = start + span*float64(i)/float64(rays-1)
		}
		p.Directions = append(p.Directions, AngleToDirection(a))
	}
	return p
}
