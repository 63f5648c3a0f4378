// Package sonar drives one observer's discovery loop: it keeps the terrain
// window around the observer, casts the sonar pattern for the current ping
// and records what the rays found in the chart.
package sonar

import (
	"errors"

	"github.com/sirupsen/logrus"

	"sonarchart/internal/sim/chart"
	"sonarchart/internal/sim/clock"
	"sonarchart/internal/sim/raycast"
	"sonarchart/internal/sim/world/terrain/store"
)

type Config struct {
	Chart  chart.Config
	Caster raycast.Config
	Chunks store.Config
	Ping   PingConfig

	PreferPerformance bool
}

func DefaultConfig() Config {
	return Config{
		Chart:  chart.DefaultConfig(),
		Caster: raycast.DefaultConfig(),
		Chunks: store.Config{Threshold: 90},
		Ping:   DefaultPingConfig(),
	}
}

// TickReport summarises one Tick. Counters cover that tick only.
type TickReport struct {
	Now uint64

	Chunks store.UpdateResult

	PingActive bool
	PingRadius int
	Cast       bool
	Pattern    string

	Rays      int
	Hits      int
	Skipped   int
	Added     int
	Refreshed int
	Dropped   int
	Clipped   int // samples outside the chart bounds
	Faded     int

	Quality        int
	QualityChanged bool
	ElapsedMs      uint64
}

// Pipeline owns the three discovery components. They share no state; the
// pipeline threads rays from the chunk store into the chart.
type Pipeline struct {
	cfg   Config
	clk   clock.Source // simulation time: timestamps, ping growth, aging
	frame clock.Source // wall time for measuring frame cost
	log   logrus.FieldLogger

	chunks *store.ChunkStore
	caster *raycast.Caster
	chart  *chart.Chart
	ping   Ping

	solid   raycast.Solid
	results []raycast.Result
	report  TickReport
}

func NewPipeline(cfg Config, clk clock.Source, log logrus.FieldLogger) (*Pipeline, error) {
	if clk == nil {
		clk = clock.NewWall()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	chunks, err := store.NewChunkStore(cfg.Chunks, log)
	if err != nil {
		return nil, err
	}
	ch, err := chart.New(cfg.Chart, clk, log)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:    cfg,
		clk:    clk,
		frame:  clk,
		log:    log.WithField("component", "sonar"),
		chunks: chunks,
		caster: raycast.New(cfg.Caster, log),
		chart:  ch,
		ping:   NewPing(cfg.Ping),
	}
	p.solid = chunks.CheckCollision
	p.results = make([]raycast.Result, 0, p.caster.Config().MaxPatternRays)
	return p, nil
}

// SetFrameClock sets the source used to time each Tick for quality
// adaptation. By default it is the simulation clock.
func (p *Pipeline) SetFrameClock(c clock.Source) {
	if c == nil {
		c = p.clk
	}
	p.frame = c
}

func (p *Pipeline) Chart() *chart.Chart       { return p.chart }
func (p *Pipeline) Caster() *raycast.Caster   { return p.caster }
func (p *Pipeline) Chunks() *store.ChunkStore { return p.chunks }
func (p *Pipeline) Ping() Ping                { return p.ping }

// Query returns the live chart points inside window.
func (p *Pipeline) Query(window chart.Bounds) []chart.Point {
	return p.chart.Query(window)
}

// Digest fingerprints the chart contents.
func (p *Pipeline) Digest() string { return p.chart.Digest() }

// StartPing begins a ping at the observer's position unless one is running.
func (p *Pipeline) StartPing(x, y int) bool {
	if !p.ping.Start(x, y, p.clk.NowMs()) {
		return false
	}
	p.log.WithFields(logrus.Fields{"x": x, "y": y}).Debug("ping started")
	return true
}

// Tick advances the pipeline by one frame with the observer at (x, y).
func (p *Pipeline) Tick(x, y int) TickReport {
	start := p.clk.NowMs()
	frameStart := p.frame.NowMs()
	p.chart.ResetFrameStats()
	p.caster.ResetFrameStats()
	p.report = TickReport{Now: start}

	p.report.Chunks = p.chunks.Update(x, y)

	if p.ping.Step(start) {
		p.sweep()
		if !p.ping.Active {
			p.log.WithFields(logrus.Fields{
				"x": p.ping.X, "y": p.ping.Y, "radius": p.ping.Radius,
				"points": p.chart.Len(),
			}).Debug("ping finished")
		}
	}
	p.report.PingActive = p.ping.Active
	p.report.PingRadius = p.ping.Radius

	p.report.Faded = p.chart.Age(start)

	cs := p.chart.Stats()
	p.report.Added = int(cs.Added)
	p.report.Refreshed = int(cs.Refreshed)
	p.report.Dropped = int(cs.Dropped)

	rs := p.caster.Stats()
	p.report.Rays = int(rs.Rays)
	p.report.Hits = int(rs.Hits)
	p.report.Skipped = int(rs.Skipped)

	if end := p.frame.NowMs(); end > frameStart {
		p.report.ElapsedMs = end - frameStart
	}
	p.report.QualityChanged = p.caster.ReportFrame(p.report.ElapsedMs, p.clk.NowMs())
	p.report.Quality = p.caster.Quality()
	return p.report
}

// sweep casts the adaptive pattern from the ping origin and records every
// sample that lies within the current ring.
func (p *Pipeline) sweep() {
	pat := p.caster.AdaptivePattern(p.cfg.PreferPerformance)
	p.report.Cast = true
	p.report.Pattern = pat.Name

	ox, oy, radius := p.ping.X, p.ping.Y, p.ping.Radius
	stride := p.ping.cfg.WaterStride
	p.results = p.caster.CastPatternInto(pat, ox, oy, p.solid, p.results[:0])

	for i, r := range p.results {
		if r.Skipped {
			continue
		}
		dir := pat.Directions[i]
		if r.Distance <= radius {
			p.record(r.X, r.Y, r.Hit)
			if r.Hit && r.Distance > 1 {
				raycast.Trace(ox, oy, dir, pat.MaxRadius, r.Distance-1, func(step, wx, wy int) {
					if step%stride == 0 {
						p.record(wx, wy, false)
					}
				})
			}
			continue
		}
		// The ray ran past the ring, so the cell on the ring is open water.
		raycast.Trace(ox, oy, dir, pat.MaxRadius, radius, func(step, wx, wy int) {
			if step == radius {
				p.record(wx, wy, false)
			}
		})
	}
}

func (p *Pipeline) record(x, y int, terrain bool) {
	if _, err := p.chart.Insert(x, y, terrain); err != nil {
		if errors.Is(err, chart.ErrOutOfBounds) {
			p.report.Clipped++
		}
	}
}
