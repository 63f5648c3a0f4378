package store

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"sonarchart/internal/sim/world/logic/mathx"
	genpkg "sonarchart/internal/sim/world/terrain/gen"
)

type UpdateResult struct {
	Changed bool
	Loaded  int
	Reused  int
	Evicted int
	Failed  int
}

// TileSeed derives the generation seed of a tile. A zero world seed keeps the
// plain coordinate hash.
func (s *ChunkStore) TileSeed(c TileCoord) uint32 {
	base := mathx.SpatialHash2(c.X, c.Y)
	if s.cfg.WorldSeed == 0 {
		return base
	}
	return base ^ uint32(mathx.Hash2(s.cfg.WorldSeed, c.X, c.Y))
}

// Update recentres the active window on the observer's tile. Tiles present in
// both the old and the new window keep their slot; the rest are evicted before
// new tiles are generated so the pool is never asked for more than one window.
func (s *ChunkStore) Update(wx, wy int) UpdateResult {
	c := s.TileCoordOf(wx, wy)
	if s.built && c == s.center {
		return UpdateResult{}
	}

	w := s.cfg.WindowSize
	off := -(w - 1) / 2
	origin := TileCoord{X: c.X + off, Y: c.Y + off}

	old := make([]int, len(s.window))
	copy(old, s.window)
	next := make([]int, len(s.window))
	for i := range next {
		next[i] = -1
	}

	res := UpdateResult{Changed: true}
	for i := range next {
		want := TileCoord{X: origin.X + i%w, Y: origin.Y + i/w}
		for j, idx := range old {
			if idx >= 0 && s.slots[idx].Coord == want {
				next[i] = idx
				old[j] = -1
				res.Reused++
				break
			}
		}
	}
	for _, idx := range old {
		if idx >= 0 {
			s.release(idx)
			res.Evicted++
		}
	}

	s.window = next
	s.origin = origin
	s.center = c
	s.built = true

	for i := range next {
		if next[i] >= 0 {
			continue
		}
		want := TileCoord{X: origin.X + i%w, Y: origin.Y + i/w}
		idx, err := s.load(want)
		if err != nil {
			res.Failed++
			s.stats.LoadFailures++
			s.log.WithFields(logrus.Fields{"cx": want.X, "cy": want.Y}).WithError(err).Warn("tile unavailable")
			continue
		}
		next[i] = idx
		res.Loaded++
	}

	s.stats.Recenters++
	s.stats.TilesLoaded += uint64(res.Loaded)
	s.stats.TilesReused += uint64(res.Reused)
	s.stats.TilesEvicted += uint64(res.Evicted)
	s.log.WithFields(logrus.Fields{
		"cx": c.X, "cy": c.Y,
		"loaded": res.Loaded, "reused": res.Reused, "evicted": res.Evicted, "failed": res.Failed,
	}).Debug("window recentred")
	return res
}

func (s *ChunkStore) load(c TileCoord) (int, error) {
	if len(s.free) == 0 {
		return -1, ErrPoolExhausted
	}
	idx := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]

	seed := s.TileSeed(c)
	tile, err := s.generate(genpkg.Params{
		Seed:      seed,
		Size:      s.cfg.TileSize,
		Threshold: s.cfg.Threshold,
	})
	if err != nil {
		s.free = append(s.free, idx)
		return -1, fmt.Errorf("generate tile %d,%d: %w", c.X, c.Y, err)
	}
	s.slots[idx] = Slot{
		Coord:  c,
		Seed:   seed,
		Tile:   tile,
		Loaded: true,
		inUse:  true,
	}
	s.log.WithFields(logrus.Fields{"cx": c.X, "cy": c.Y, "seed": seed, "land": tile.LandCount()}).Debug("tile loaded")
	return idx, nil
}

func (s *ChunkStore) release(idx int) {
	if !s.slots[idx].inUse {
		return
	}
	s.slots[idx] = Slot{}
	s.free = append(s.free, idx)
}
