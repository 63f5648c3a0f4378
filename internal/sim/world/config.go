package world

import (
	"sonarchart/internal/sim/sonar"
	"sonarchart/internal/sim/tuning"
)

type WorldConfig struct {
	ID         string
	RunID      string
	TickRateHz int
	Seed       int64

	Pipeline sonar.Config

	Route              RouteConfig
	AutoPingEveryTicks int // 0 disables automatic pings

	// Stream holds the defaults applied to observers that leave a field unset.
	Stream StreamConfig
}

type RouteConfig struct {
	Waypoints    [][2]int
	CellsPerTick int
}

type StreamConfig struct {
	ViewRadius int
	MaxPoints  int
	Tiles      bool
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "sonar"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.Route.CellsPerTick < 0 {
		c.Route.CellsPerTick = 0
	}
	if c.Stream.ViewRadius <= 0 {
		c.Stream.ViewRadius = 64
	}
	if c.Stream.MaxPoints <= 0 {
		c.Stream.MaxPoints = 4096
	}
}

// TickMs is the simulated duration of one tick.
func (c WorldConfig) TickMs() uint64 {
	if c.TickRateHz <= 0 {
		return 50
	}
	return uint64(1000 / c.TickRateHz)
}

// ConfigFromTuning builds a world config from a loaded tuning file.
func ConfigFromTuning(id, runID string, t tuning.Tuning) WorldConfig {
	wps := make([][2]int, 0, len(t.Route.Waypoints))
	for _, wp := range t.Route.Waypoints {
		if len(wp) != 2 {
			continue
		}
		wps = append(wps, [2]int{wp[0], wp[1]})
	}
	return WorldConfig{
		ID:         id,
		RunID:      runID,
		TickRateHz: t.TickRateHz,
		Seed:       t.WorldSeed,
		Pipeline:   t.PipelineConfig(),
		Route: RouteConfig{
			Waypoints:    wps,
			CellsPerTick: t.Route.CellsPerTick,
		},
		AutoPingEveryTicks: t.Ping.AutoEveryTicks,
		Stream: StreamConfig{
			ViewRadius: t.Stream.ViewRadius,
			MaxPoints:  t.Stream.MaxPoints,
			Tiles:      t.Stream.IncludeTerrain,
		},
	}
}
