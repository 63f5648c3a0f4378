package gen

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

const (
	DefaultSize           = 33
	DefaultThreshold      = 90
	DefaultMaxDelta       = 80
	DefaultRoughnessDecay = 2
)

var ErrBadSize = errors.New("tile size must be 2^n+1 and at least 3")

type Params struct {
	Seed      uint32
	Size      int   // 2^n + 1
	Threshold uint8 // heights strictly above become solid

	MaxDelta       int // initial random spread on the 0..255 scale
	RoughnessDecay int // divisor applied to the spread after each pass
}

func (p Params) withDefaults() Params {
	if p.Size == 0 {
		p.Size = DefaultSize
	}
	if p.MaxDelta <= 0 {
		p.MaxDelta = DefaultMaxDelta
	}
	if p.RoughnessDecay <= 1 {
		p.RoughnessDecay = DefaultRoughnessDecay
	}
	return p
}

// ValidSize reports whether n is usable as a diamond-square edge length.
func ValidSize(n int) bool {
	if n < 3 {
		return false
	}
	m := n - 1
	return m&(m-1) == 0
}

// Tile is one generated square of terrain: a height field and the derived
// collision mask, both row-major with x fastest.
type Tile struct {
	Size      int
	Seed      uint32
	Threshold uint8

	heights []uint8
	solid   []bool
}

// Generate builds a tile with midpoint displacement. Identical params always
// produce identical heights and masks.
func Generate(p Params) (*Tile, error) {
	p = p.withDefaults()
	if !ValidSize(p.Size) {
		return nil, fmt.Errorf("generate seed=%d size=%d: %w", p.Seed, p.Size, ErrBadSize)
	}
	t := &Tile{
		Size:      p.Size,
		Seed:      p.Seed,
		Threshold: p.Threshold,
		heights:   make([]uint8, p.Size*p.Size),
		solid:     make([]bool, p.Size*p.Size),
	}
	r := lcg(p.Seed)
	t.diamondSquare(&r, p.MaxDelta, p.RoughnessDecay)
	t.applyThreshold()
	t.despeckle()
	return t, nil
}

func (t *Tile) index(x, y int) int {
	return x + y*t.Size
}

func (t *Tile) inside(x, y int) bool {
	return x >= 0 && x < t.Size && y >= 0 && y < t.Size
}

// Height returns the raw height at a tile-local cell, or 0 outside the tile.
func (t *Tile) Height(x, y int) uint8 {
	if !t.inside(x, y) {
		return 0
	}
	return t.heights[t.index(x, y)]
}

// Solid reports whether a tile-local cell is land. Cells outside the tile are
// never solid.
func (t *Tile) Solid(x, y int) bool {
	if !t.inside(x, y) {
		return false
	}
	return t.solid[t.index(x, y)]
}

func (t *Tile) LandCount() int {
	n := 0
	for _, s := range t.solid {
		if s {
			n++
		}
	}
	return n
}

// Mask returns a copy of the collision mask.
func (t *Tile) Mask() []bool {
	out := make([]bool, len(t.solid))
	copy(out, t.solid)
	return out
}

func (t *Tile) Digest() [32]byte {
	h := sha256.New()
	h.Write(t.heights)
	mask := make([]byte, len(t.solid))
	for i, s := range t.solid {
		if s {
			mask[i] = 1
		}
	}
	h.Write(mask)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (t *Tile) set(x, y, v int) {
	if !t.inside(x, y) {
		return
	}
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	t.heights[t.index(x, y)] = uint8(v)
}

func (t *Tile) diamondSquare(r *lcg, maxDelta, decay int) {
	last := t.Size - 1
	t.set(0, 0, 70+int(r.next()%110))
	t.set(last, 0, 70+int(r.next()%110))
	t.set(0, last, 70+int(r.next()%110))
	t.set(last, last, 70+int(r.next()%110))

	size := t.Size
	rough := maxDelta
	for size >= 3 {
		half := size / 2
		stride := size - 1

		for y := half; y < t.Size; y += stride {
			for x := half; x < t.Size; x += stride {
				avg := (int(t.Height(x-half, y-half)) + int(t.Height(x+half, y-half)) +
					int(t.Height(x-half, y+half)) + int(t.Height(x+half, y+half))) / 4
				t.set(x, y, avg+r.spread(rough))
			}
		}

		for y := 0; y < t.Size; y += half {
			x0 := 0
			if (y/half)%2 == 0 {
				x0 = half
			}
			for x := x0; x < t.Size; x += stride {
				total, n := 0, 0
				if x-half >= 0 {
					total += int(t.Height(x-half, y))
					n++
				}
				if x+half < t.Size {
					total += int(t.Height(x+half, y))
					n++
				}
				if y-half >= 0 {
					total += int(t.Height(x, y-half))
					n++
				}
				if y+half < t.Size {
					total += int(t.Height(x, y+half))
					n++
				}
				if n == 0 {
					continue
				}
				t.set(x, y, total/n+r.spread(rough))
			}
		}

		size = half + 1
		rough /= decay
	}
}

func (t *Tile) applyThreshold() {
	for i, h := range t.heights {
		t.solid[i] = h > t.Threshold
	}
}

// despeckle clears land cells that have no 8-connected land neighbour.
func (t *Tile) despeckle() {
	src := t.Mask()
	for y := 0; y < t.Size; y++ {
		for x := 0; x < t.Size; x++ {
			if !src[t.index(x, y)] {
				continue
			}
			if !hasLandNeighbour(src, t.Size, x, y) {
				t.solid[t.index(x, y)] = false
			}
		}
	}
}

func hasLandNeighbour(mask []bool, size, x, y int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= size || ny < 0 || ny >= size {
				continue
			}
			if mask[nx+ny*size] {
				return true
			}
		}
	}
	return false
}

// lcg is the tile-local generator. It is kept independent of math/rand so the
// byte stream is stable across Go releases.
type lcg uint32

func (r *lcg) next() uint32 {
	*r = *r*1103515245 + 12345
	return (uint32(*r) >> 16) & 0xFF
}

// spread returns a value in roughly [-span/2, span/2].
func (r *lcg) spread(span int) int {
	return int(r.next())*span/255 - span/2
}
