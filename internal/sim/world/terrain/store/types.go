package store

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	genpkg "sonarchart/internal/sim/world/terrain/gen"
)

var ErrPoolExhausted = errors.New("tile pool exhausted")

type TileCoord struct {
	X int
	Y int
}

type Config struct {
	TileSize   int // edge length in world cells, 2^n+1
	WindowSize int // active window is WindowSize x WindowSize tiles
	PoolSize   int // tile slots; at least WindowSize^2 for a full window
	Threshold  uint8
	WorldSeed  int64 // 0 keeps the plain coordinate hash
}

func (c Config) withDefaults() Config {
	if c.TileSize == 0 {
		c.TileSize = genpkg.DefaultSize
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 2
	}
	if c.PoolSize <= 0 {
		c.PoolSize = c.WindowSize*c.WindowSize + 4
	}
	return c
}

// Slot is one entry of the tile pool. A slot is referenced by at most one
// window cell at a time.
type Slot struct {
	Coord  TileCoord
	Seed   uint32
	Tile   *genpkg.Tile
	Loaded bool

	inUse bool
}

type Stats struct {
	SlotsInUse   int
	TilesLoaded  uint64
	TilesReused  uint64
	TilesEvicted uint64
	LoadFailures uint64
	Recenters    uint64
}

type GenerateFunc func(genpkg.Params) (*genpkg.Tile, error)

type ChunkStore struct {
	cfg Config
	log logrus.FieldLogger

	generate GenerateFunc

	slots []Slot
	free  []int // stack of free slot indices

	window []int // slot index per window cell (row-major), -1 when empty
	origin TileCoord
	center TileCoord
	built  bool

	stats Stats
}

func NewChunkStore(cfg Config, log logrus.FieldLogger) (*ChunkStore, error) {
	cfg = cfg.withDefaults()
	if !genpkg.ValidSize(cfg.TileSize) {
		return nil, fmt.Errorf("chunk store tile size %d: %w", cfg.TileSize, genpkg.ErrBadSize)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &ChunkStore{
		cfg:      cfg,
		log:      log.WithField("component", "chunks"),
		generate: genpkg.Generate,
		slots:    make([]Slot, cfg.PoolSize),
		free:     make([]int, 0, cfg.PoolSize),
		window:   make([]int, cfg.WindowSize*cfg.WindowSize),
	}
	for i := cfg.PoolSize - 1; i >= 0; i-- {
		s.free = append(s.free, i)
	}
	for i := range s.window {
		s.window[i] = -1
	}
	return s, nil
}

// SetGenerator replaces the tile generator. Intended for tests that need to
// simulate generation failures.
func (s *ChunkStore) SetGenerator(fn GenerateFunc) {
	if fn == nil {
		fn = genpkg.Generate
	}
	s.generate = fn
}

func (s *ChunkStore) Config() Config { return s.cfg }

func (s *ChunkStore) Stats() Stats {
	st := s.stats
	st.SlotsInUse = len(s.slots) - len(s.free)
	return st
}
