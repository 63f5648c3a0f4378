package raycast

import "math"

const (
	// FixedPointScale is the length of a unit direction vector.
	FixedPointScale = 1000
	// AnglePrecision is the number of buckets in a full turn.
	AnglePrecision = 256
)

// Direction is a fixed-point unit vector. AngleID is the nearest of the
// AnglePrecision buckets.
type Direction struct {
	DX, DY  int16
	AngleID uint16
}

func normalizeAngle(rad float64) float64 {
	a := math.Mod(rad, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

func AngleToDirection(rad float64) Direction {
	a := normalizeAngle(rad)
	id := int(math.Round(a/(2*math.Pi)*AnglePrecision)) % AnglePrecision
	return Direction{
		DX:      int16(math.Round(math.Cos(a) * FixedPointScale)),
		DY:      int16(math.Round(math.Sin(a) * FixedPointScale)),
		AngleID: uint16(id),
	}
}

// Angle returns the direction's heading in [0, 2π).
func (d Direction) Angle() float64 {
	return normalizeAngle(math.Atan2(float64(d.DY), float64(d.DX)))
}

func (d Direction) IsZero() bool { return d.DX == 0 && d.DY == 0 }

func buildAngleCache() []Direction {
	cache := make([]Direction, AnglePrecision)
	for i := range cache {
		d := AngleToDirection(float64(i) * 2 * math.Pi / AnglePrecision)
		d.AngleID = uint16(i)
		cache[i] = d
	}
	return cache
}
