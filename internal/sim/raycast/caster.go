// Package raycast steps integer rays outward from an origin against a caller
// supplied collision predicate and adapts the sonar pattern to frame time.
package raycast

import (
	"math"

	"github.com/sirupsen/logrus"
)

const (
	MinQuality = 0
	MaxQuality = 3
)

// Solid reports whether a world cell blocks a ray.
type Solid func(x, y int) bool

type Result struct {
	X, Y     int
	Distance int // steps taken, not euclidean length
	Hit      bool
	Complete bool
	Skipped  bool
}

type Config struct {
	MaxPatternRays int
	MaxDistance    int

	FullRays    int
	ForwardRays int
	SparseRays  int

	FrameBudgetMs     uint64
	CheckEveryMs      uint64
	DegradeCooldownMs uint64
	ImproveCooldownMs uint64
	InitialQuality    int
}

func DefaultConfig() Config {
	return Config{
		MaxPatternRays:    64,
		MaxDistance:       48,
		FullRays:          32,
		ForwardRays:       16,
		SparseRays:        8,
		FrameBudgetMs:     3,
		CheckEveryMs:      1000,
		DegradeCooldownMs: 1000,
		ImproveCooldownMs: 2000,
		InitialQuality:    1,
	}
}

type Stats struct {
	Rays     uint64
	Steps    uint64
	Hits     uint64
	Skipped  uint64
	Degrades uint64
	Improves uint64
}

// Caster owns the direction cache, the built-in sonar patterns and the
// adaptive quality state. It is not safe for concurrent use.
type Caster struct {
	cfg   Config
	log   logrus.FieldLogger
	cache []Direction

	full, forward, sparse Pattern

	quality    int
	worstFrame uint64
	lastCheck  uint64
	lastChange uint64

	stats Stats
}

func New(cfg Config, log logrus.FieldLogger) *Caster {
	def := DefaultConfig()
	if cfg.MaxPatternRays <= 0 {
		cfg.MaxPatternRays = def.MaxPatternRays
	}
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = def.MaxDistance
	}
	if cfg.FullRays <= 0 {
		cfg.FullRays = def.FullRays
	}
	if cfg.ForwardRays <= 0 {
		cfg.ForwardRays = def.ForwardRays
	}
	if cfg.SparseRays <= 0 {
		cfg.SparseRays = def.SparseRays
	}
	if cfg.FrameBudgetMs == 0 {
		cfg.FrameBudgetMs = def.FrameBudgetMs
	}
	if cfg.CheckEveryMs == 0 {
		cfg.CheckEveryMs = def.CheckEveryMs
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Caster{
		cfg:     cfg,
		log:     log.WithField("component", "raycast"),
		cache:   buildAngleCache(),
		quality: clampQuality(cfg.InitialQuality),
	}
	c.full = NewPattern("full", 0, 2*math.Pi, cfg.FullRays, cfg.MaxDistance, cfg.MaxPatternRays)
	c.forward = NewPattern("forward", -math.Pi/2, math.Pi/2, cfg.ForwardRays, cfg.MaxDistance, cfg.MaxPatternRays)
	c.sparse = NewPattern("sparse", 0, 2*math.Pi, cfg.SparseRays, cfg.MaxDistance/2, cfg.MaxPatternRays)
	return c
}

func (c *Caster) Config() Config { return c.cfg }

// CachedDirection returns the precomputed direction for an angle bucket.
func (c *Caster) CachedDirection(id uint16) Direction {
	return c.cache[int(id)%len(c.cache)]
}

func (c *Caster) FullPattern() *Pattern    { return &c.full }
func (c *Caster) ForwardPattern() *Pattern { return &c.forward }
func (c *Caster) SparsePattern() *Pattern  { return &c.sparse }

func (c *Caster) Stats() Stats { return c.stats }

// ResetFrameStats clears the per-frame ray counters. Quality transition
// counts are kept.
func (c *Caster) ResetFrameStats() {
	c.stats = Stats{Degrades: c.stats.Degrades, Improves: c.stats.Improves}
}

// CastRay walks from the origin toward origin+dir*maxDist. The origin itself
// is step 0 and is never checked for solidity, so Distance counts only the steps after it.
// A zero direction or a non-positive maxDist stops after that single origin
// step: the result sits at the origin, Complete, non-hit, with Distance 0.
// Otherwise the walk stops at the first solid cell, at the projected end, or
// after maxDist steps.
func (c *Caster) CastRay(ox, oy int, dir Direction, maxDist int, solid Solid) Result {
	c.stats.Rays++
	res := Result{X: ox, Y: oy, Complete: true}
	if dir.IsZero() || maxDist <= 0 {
		return res
	}
	ex, ey := endpoint(ox, oy, dir, maxDist)
	l := newLine(ox, oy, ex, ey)
	for res.Distance < maxDist && !l.done() {
		l.step()
		res.Distance++
		res.X, res.Y = l.x, l.y
		if solid != nil && solid(l.x, l.y) {
			res.Hit = true
			break
		}
	}
	c.stats.Steps += uint64(res.Distance)
	if res.Hit {
		c.stats.Hits++
	}
	return res
}

// CastPattern casts every ray of p from the origin. See CastPatternInto.
func (c *Caster) CastPattern(p *Pattern, ox, oy int, solid Solid) []Result {
	return c.CastPatternInto(p, ox, oy, solid, make([]Result, 0, p.Len()))
}

// CastPatternInto appends one result per direction of p to dst, in pattern
// order. Above quality 0 only every (quality+1)th ray is traced; the rest are
// reported as complete, skipped misses at the pattern's radius.
func (c *Caster) CastPatternInto(p *Pattern, ox, oy int, solid Solid, dst []Result) []Result {
	stride := c.quality + 1
	for i, dir := range p.Directions {
		if i%stride != 0 {
			ex, ey := endpoint(ox, oy, dir, p.MaxRadius)
			dst = append(dst, Result{
				X:        ex,
				Y:        ey,
				Distance: lineLength(ox, oy, ex, ey),
				Complete: true,
				Skipped:  true,
			})
			c.stats.Skipped++
			continue
		}
		dst = append(dst, c.CastRay(ox, oy, dir, p.MaxRadius, solid))
	}
	return dst
}
