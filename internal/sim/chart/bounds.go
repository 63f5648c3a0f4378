package chart

import "sonarchart/internal/sim/world/logic/mathx"

// Bounds is an axis-aligned rectangle with inclusive edges.
type Bounds struct {
	MinX, MinY int32
	MaxX, MaxY int32
}

// WorldBounds covers every 16-bit signed coordinate.
var WorldBounds = Bounds{MinX: -32768, MinY: -32768, MaxX: 32767, MaxY: 32767}

func NewBounds(minX, minY, maxX, maxY int) Bounds {
	return Bounds{MinX: int32(minX), MinY: int32(minY), MaxX: int32(maxX), MaxY: int32(maxY)}
}

// Around returns the square of half-size r centred on (x, y).
func Around(x, y, r int) Bounds {
	return NewBounds(x-r, y-r, x+r, y+r)
}

func (b Bounds) Valid() bool {
	return b.MinX <= b.MaxX && b.MinY <= b.MaxY
}

func (b Bounds) Contains(x, y int32) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

func (b Bounds) Intersects(o Bounds) bool {
	return !(b.MaxX < o.MinX || o.MaxX < b.MinX || b.MaxY < o.MinY || o.MaxY < b.MinY)
}

// Quadrants splits b into NW, NE, SW, SE. The lower/left half owns the
// midline, so every cell of b lands in exactly one quadrant. A rectangle
// narrower than two cells on either axis cannot be split.
func (b Bounds) Quadrants() ([4]Bounds, bool) {
	if b.MaxX <= b.MinX || b.MaxY <= b.MinY {
		return [4]Bounds{}, false
	}
	midX := int32(mathx.FloorDiv(int(b.MinX)+int(b.MaxX), 2))
	midY := int32(mathx.FloorDiv(int(b.MinY)+int(b.MaxY), 2))
	return [4]Bounds{
		{MinX: b.MinX, MinY: b.MinY, MaxX: midX, MaxY: midY},
		{MinX: midX + 1, MinY: b.MinY, MaxX: b.MaxX, MaxY: midY},
		{MinX: b.MinX, MinY: midY + 1, MaxX: midX, MaxY: b.MaxY},
		{MinX: midX + 1, MinY: midY + 1, MaxX: b.MaxX, MaxY: b.MaxY},
	}, true
}
