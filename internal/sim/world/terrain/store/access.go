package store

import (
	"sort"

	"sonarchart/internal/sim/world/logic/mathx"
	genpkg "sonarchart/internal/sim/world/terrain/gen"
)

// TileCoordOf maps a world cell to the tile containing it.
func (s *ChunkStore) TileCoordOf(wx, wy int) TileCoord {
	c, _, _ := s.split(wx, wy)
	return c
}

// split is the only place world coordinates are turned into tile and
// tile-local coordinates.
func (s *ChunkStore) split(wx, wy int) (TileCoord, int, int) {
	n := s.cfg.TileSize
	c := TileCoord{X: mathx.FloorDiv(wx, n), Y: mathx.FloorDiv(wy, n)}
	return c, mathx.Mod(wx, n), mathx.Mod(wy, n)
}

func (s *ChunkStore) activeIndex(c TileCoord) int {
	rx := c.X - s.origin.X
	ry := c.Y - s.origin.Y
	w := s.cfg.WindowSize
	if !s.built || rx < 0 || rx >= w || ry < 0 || ry >= w {
		return -1
	}
	return ry*w + rx
}

func (s *ChunkStore) activeSlot(c TileCoord) *Slot {
	i := s.activeIndex(c)
	if i < 0 || s.window[i] < 0 {
		return nil
	}
	sl := &s.slots[s.window[i]]
	if !sl.Loaded || sl.Tile == nil {
		return nil
	}
	return sl
}

// CheckCollision reports whether a world cell is solid terrain. Cells whose
// tile is not in the active window report no collision.
func (s *ChunkStore) CheckCollision(wx, wy int) bool {
	c, lx, ly := s.split(wx, wy)
	sl := s.activeSlot(c)
	if sl == nil {
		return false
	}
	return sl.Tile.Solid(lx, ly)
}

// TileAt returns the active tile containing a world cell.
func (s *ChunkStore) TileAt(wx, wy int) (*genpkg.Tile, TileCoord, bool) {
	c, _, _ := s.split(wx, wy)
	sl := s.activeSlot(c)
	if sl == nil {
		return nil, c, false
	}
	return sl.Tile, c, true
}

// ActiveTiles lists the loaded window tiles sorted by (X, Y).
func (s *ChunkStore) ActiveTiles() []TileCoord {
	out := make([]TileCoord, 0, len(s.window))
	for _, idx := range s.window {
		if idx < 0 || !s.slots[idx].Loaded {
			continue
		}
		out = append(out, s.slots[idx].Coord)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
	return out
}

// Center is the observer tile of the last rebuild.
func (s *ChunkStore) Center() (TileCoord, bool) { return s.center, s.built }
