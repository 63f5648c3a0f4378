// Package chart records sonar discoveries in a bounded quadtree. Nodes and
// points live in fixed arenas; the store never grows past its configured
// capacity and never silently drops a point it reported as stored.
package chart

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"sonarchart/internal/sim/clock"
)

var (
	ErrNoCapacity  = errors.New("chart: point capacity exhausted")
	ErrOutOfBounds = errors.New("chart: coordinate outside chart bounds")
	ErrBadConfig   = errors.New("chart: invalid config")
)

type Config struct {
	Bounds Bounds

	NodeCapacity     int
	PointCapacity    int
	MaxPointsPerNode int
	MaxDepth         int

	FadeStages  int
	FadeStageMs uint64
	AgeEveryMs  uint64
}

func DefaultConfig() Config {
	return Config{
		Bounds:           WorldBounds,
		NodeCapacity:     512,
		PointCapacity:    2048,
		MaxPointsPerNode: 8,
		MaxDepth:         12,
		FadeStages:       4,
		FadeStageMs:      15000,
		AgeEveryMs:       1000,
	}
}

// Validate reports the first unusable setting, wrapped in ErrBadConfig.
func (c Config) Validate() error {
	switch {
	case !c.Bounds.Valid():
		return fmt.Errorf("%w: bounds %+v", ErrBadConfig, c.Bounds)
	case c.NodeCapacity < 1:
		return fmt.Errorf("%w: node capacity %d", ErrBadConfig, c.NodeCapacity)
	case c.PointCapacity < 1:
		return fmt.Errorf("%w: point capacity %d", ErrBadConfig, c.PointCapacity)
	case c.MaxPointsPerNode < 1:
		return fmt.Errorf("%w: max points per node %d", ErrBadConfig, c.MaxPointsPerNode)
	case c.MaxDepth < 0 || c.MaxDepth > 255:
		return fmt.Errorf("%w: max depth %d", ErrBadConfig, c.MaxDepth)
	case c.FadeStages < 1 || c.FadeStages > 255:
		return fmt.Errorf("%w: fade stages %d", ErrBadConfig, c.FadeStages)
	case c.FadeStageMs == 0:
		return fmt.Errorf("%w: fade stage duration is zero", ErrBadConfig)
	}
	return nil
}

// Point is one discovered sample.
type Point struct {
	X, Y         int32
	DiscoveredAt uint64
	Terrain      bool
	Fade         FadeStage
}

type Outcome uint8

const (
	Added Outcome = iota + 1
	Refreshed
)

func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case Refreshed:
		return "refreshed"
	default:
		return "none"
	}
}

type Stats struct {
	Points int
	Nodes  int

	Subdivisions       uint64
	FailedSubdivisions uint64
	Overflowed         uint64

	// Reset by ResetFrameStats.
	Added     uint64
	Refreshed uint64
	Dropped   uint64
	Removed   uint64
	Queries   uint64
}

type Chart struct {
	cfg Config
	clk clock.Source
	log logrus.FieldLogger

	nodes  nodeArena
	points pointArena
	root   int32

	lastAge uint64
	aged    bool

	nodesExhausted bool

	stats Stats
	stack []int32
}

func New(cfg Config, clk clock.Source, log logrus.FieldLogger) (*Chart, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.NewWall()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Chart{
		cfg:    cfg,
		clk:    clk,
		log:    log.WithField("component", "chart"),
		nodes:  newNodeArena(cfg.NodeCapacity),
		points: newPointArena(cfg.PointCapacity),
	}
	c.root, _ = c.nodes.alloc(cfg.Bounds, 0)
	return c, nil
}

func (c *Chart) Config() Config { return c.cfg }

// Len is the number of stored points, including expired points that have not
// been reclaimed yet.
func (c *Chart) Len() int { return c.points.used() }

func (c *Chart) Stats() Stats {
	st := c.stats
	st.Points = c.points.used()
	st.Nodes = c.nodes.used()
	return st
}

func (c *Chart) ResetFrameStats() {
	c.stats.Added = 0
	c.stats.Refreshed = 0
	c.stats.Dropped = 0
	c.stats.Removed = 0
	c.stats.Queries = 0
}

// Insert records a sample at (x, y). A sample at an existing live coordinate
// refreshes that point; terrain is never downgraded to water. A point past the
// fade horizon that Sweep has not reclaimed yet is replaced by the new sample
// and reported as Added. ErrNoCapacity is returned only when a new point is
// needed and the point arena is full.
func (c *Chart) Insert(x, y int, terrain bool) (Outcome, error) {
	px, py := int32(x), int32(y)
	if int(px) != x || int(py) != y || !c.cfg.Bounds.Contains(px, py) {
		return 0, fmt.Errorf("%w: (%d,%d)", ErrOutOfBounds, x, y)
	}
	now := c.clk.NowMs()

	if pi, ok := c.find(px, py); ok {
		p := &c.points.slots[pi]
		stale := c.expired(c.stageAt(p.DiscoveredAt, now))
		p.DiscoveredAt = now
		p.Fade = FadeFull
		if stale {
			p.Terrain = terrain
			c.stats.Added++
			return Added, nil
		}
		if terrain {
			p.Terrain = true
		}
		c.stats.Refreshed++
		return Refreshed, nil
	}

	pi, ok := c.points.alloc()
	if !ok {
		c.stats.Dropped++
		c.log.WithFields(logrus.Fields{"x": x, "y": y, "terrain": terrain}).Debug("point arena exhausted")
		return 0, ErrNoCapacity
	}
	c.points.slots[pi] = Point{X: px, Y: py, DiscoveredAt: now, Terrain: terrain, Fade: FadeFull}
	c.place(c.root, pi)
	c.stats.Added++
	return Added, nil
}

// Lookup returns the live point stored at exactly (x, y).
func (c *Chart) Lookup(x, y int) (Point, bool) {
	px, py := int32(x), int32(y)
	if int(px) != x || int(py) != y || !c.cfg.Bounds.Contains(px, py) {
		return Point{}, false
	}
	pi, ok := c.find(px, py)
	if !ok {
		return Point{}, false
	}
	p := c.points.slots[pi]
	p.Fade = c.stageAt(p.DiscoveredAt, c.clk.NowMs())
	if c.expired(p.Fade) {
		return Point{}, false
	}
	return p, true
}

// Query returns every live point inside window.
func (c *Chart) Query(window Bounds) []Point {
	return c.QueryInto(window, nil)
}

// QueryInto appends every live point inside window to dst. Fade stages are
// computed against the current clock, so a point stops being reported as soon
// as it expires even if Age has not reclaimed it yet.
func (c *Chart) QueryInto(window Bounds, dst []Point) []Point {
	c.stats.Queries++
	return c.collect(window, dst)
}

func (c *Chart) collect(window Bounds, dst []Point) []Point {
	if !window.Valid() {
		return dst
	}
	now := c.clk.NowMs()
	stack := append(c.stack[:0], c.root)
	for len(stack) > 0 {
		ni := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &c.nodes.slots[ni]
		if !n.bounds.Intersects(window) {
			continue
		}
		// Own points first: internal nodes may still hold retained points.
		for _, pi := range n.points {
			p := c.points.slots[pi]
			if !window.Contains(p.X, p.Y) {
				continue
			}
			p.Fade = c.stageAt(p.DiscoveredAt, now)
			if c.expired(p.Fade) {
				continue
			}
			dst = append(dst, p)
		}
		if !n.leaf {
			for i := 3; i >= 0; i-- {
				if ch := n.children[i]; ch >= 0 {
					stack = append(stack, ch)
				}
			}
		}
	}
	c.stack = stack[:0]
	return dst
}

// Age reclaims expired points. It is throttled to once per AgeEveryMs; calls
// in between return 0 without touching the tree.
func (c *Chart) Age(now uint64) int {
	if c.aged && now >= c.lastAge && now-c.lastAge < c.cfg.AgeEveryMs {
		return 0
	}
	c.aged = true
	c.lastAge = now
	return c.Sweep(now)
}

// Sweep updates every point's fade stage and frees the expired ones. This is
// the only path that deletes points.
func (c *Chart) Sweep(now uint64) int {
	removed := 0
	stack := append(c.stack[:0], c.root)
	for len(stack) > 0 {
		ni := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &c.nodes.slots[ni]

		kept := n.points[:0]
		for _, pi := range n.points {
			p := &c.points.slots[pi]
			p.Fade = c.stageAt(p.DiscoveredAt, now)
			if c.expired(p.Fade) {
				c.points.release(pi)
				removed++
				continue
			}
			kept = append(kept, pi)
		}
		n.points = kept

		if !n.leaf {
			for _, ch := range n.children {
				if ch >= 0 {
					stack = append(stack, ch)
				}
			}
		}
	}
	c.stack = stack[:0]
	c.stats.Removed += uint64(removed)
	if removed > 0 {
		c.log.WithFields(logrus.Fields{"removed": removed, "points": c.points.used()}).Debug("faded points reclaimed")
	}
	return removed
}

// Reset drops every point and node and starts over with an empty root.
func (c *Chart) Reset() {
	c.nodes = newNodeArena(c.cfg.NodeCapacity)
	c.points = newPointArena(c.cfg.PointCapacity)
	c.root, _ = c.nodes.alloc(c.cfg.Bounds, 0)
	c.aged = false
	c.lastAge = 0
	c.nodesExhausted = false
	c.stats = Stats{}
}
