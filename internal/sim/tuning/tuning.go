package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sonarchart/internal/sim/chart"
	"sonarchart/internal/sim/raycast"
	"sonarchart/internal/sim/sonar"
	"sonarchart/internal/sim/world/terrain/store"
)

type Tuning struct {
	TickRateHz int   `yaml:"tick_rate_hz"`
	WorldSeed  int64 `yaml:"world_seed"`

	Chart   Chart   `yaml:"chart"`
	Raycast Raycast `yaml:"raycast"`
	Chunks  Chunks  `yaml:"chunks"`
	Ping    Ping    `yaml:"ping"`
	Route   Route   `yaml:"route"`
	Stream  Stream  `yaml:"stream"`
}

type Chart struct {
	Bounds           []int  `yaml:"bounds"` // min_x, min_y, max_x, max_y
	NodeCapacity     int    `yaml:"node_capacity"`
	PointCapacity    int    `yaml:"point_capacity"`
	MaxPointsPerNode int    `yaml:"max_points_per_node"`
	MaxDepth         int    `yaml:"max_depth"`
	FadeStages       int    `yaml:"fade_stages"`
	FadeStageMs      uint64 `yaml:"fade_stage_ms"`
	AgeEveryMs       uint64 `yaml:"age_every_ms"`
}

type Raycast struct {
	MaxPatternRays    int    `yaml:"max_pattern_rays"`
	MaxDistance       int    `yaml:"max_distance"`
	FullRays          int    `yaml:"full_rays"`
	ForwardRays       int    `yaml:"forward_rays"`
	SparseRays        int    `yaml:"sparse_rays"`
	FrameBudgetMs     uint64 `yaml:"frame_budget_ms"`
	CheckEveryMs      uint64 `yaml:"check_every_ms"`
	DegradeCooldownMs uint64 `yaml:"degrade_cooldown_ms"`
	ImproveCooldownMs uint64 `yaml:"improve_cooldown_ms"`
	InitialQuality    int    `yaml:"initial_quality"`
	PreferPerformance bool   `yaml:"prefer_performance"`
}

type Chunks struct {
	TileSize   int `yaml:"tile_size"`
	WindowSize int `yaml:"window_size"`
	PoolSize   int `yaml:"pool_size"`
	Threshold  int `yaml:"threshold"`
}

type Ping struct {
	RadiusStep     int    `yaml:"radius_step"`
	GrowEveryMs    uint64 `yaml:"grow_every_ms"`
	MaxRadius      int    `yaml:"max_radius"`
	WaterStride    int    `yaml:"water_stride"`
	AutoEveryTicks int    `yaml:"auto_every_ticks"` // 0 disables automatic pings
}

// Route is the scripted observer path, walked in a loop.
type Route struct {
	Waypoints    [][]int `yaml:"waypoints"`
	CellsPerTick int     `yaml:"cells_per_tick"`
}

type Stream struct {
	ViewRadius     int     `yaml:"view_radius"`
	MaxPoints      int     `yaml:"max_points"`
	FramesPerSec   float64 `yaml:"frames_per_sec"`
	Burst          int     `yaml:"burst"`
	IncludeTerrain bool    `yaml:"include_terrain"`
}

func Defaults() Tuning {
	cd := chart.DefaultConfig()
	rd := raycast.DefaultConfig()
	pd := sonar.DefaultPingConfig()
	return Tuning{
		TickRateHz: 20,
		Chart: Chart{
			Bounds:           []int{int(cd.Bounds.MinX), int(cd.Bounds.MinY), int(cd.Bounds.MaxX), int(cd.Bounds.MaxY)},
			NodeCapacity:     cd.NodeCapacity,
			PointCapacity:    cd.PointCapacity,
			MaxPointsPerNode: cd.MaxPointsPerNode,
			MaxDepth:         cd.MaxDepth,
			FadeStages:       cd.FadeStages,
			FadeStageMs:      cd.FadeStageMs,
			AgeEveryMs:       cd.AgeEveryMs,
		},
		Raycast: Raycast{
			MaxPatternRays:    rd.MaxPatternRays,
			MaxDistance:       rd.MaxDistance,
			FullRays:          rd.FullRays,
			ForwardRays:       rd.ForwardRays,
			SparseRays:        rd.SparseRays,
			FrameBudgetMs:     rd.FrameBudgetMs,
			CheckEveryMs:      rd.CheckEveryMs,
			DegradeCooldownMs: rd.DegradeCooldownMs,
			ImproveCooldownMs: rd.ImproveCooldownMs,
			InitialQuality:    rd.InitialQuality,
		},
		Chunks: Chunks{
			TileSize:   33,
			WindowSize: 2,
			PoolSize:   8,
			Threshold:  90,
		},
		Ping: Ping{
			RadiusStep:     pd.RadiusStep,
			GrowEveryMs:    pd.GrowEveryMs,
			MaxRadius:      pd.MaxRadius,
			WaterStride:    pd.WaterStride,
			AutoEveryTicks: 40,
		},
		Route: Route{
			Waypoints:    [][]int{{16, 16}, {120, 16}, {120, 120}, {16, 120}},
			CellsPerTick: 1,
		},
		Stream: Stream{
			ViewRadius:     64,
			MaxPoints:      4096,
			FramesPerSec:   5,
			Burst:          2,
			IncludeTerrain: true,
		},
	}
}

// Load reads a tuning file on top of Defaults, so a file only needs the keys
// it changes.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

var ErrInvalid = errors.New("invalid tuning")

func (t Tuning) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
	}
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return bad("tick_rate_hz %d", t.TickRateHz)
	}
	if len(t.Chart.Bounds) != 4 {
		return bad("chart.bounds needs 4 values, got %d", len(t.Chart.Bounds))
	}
	for _, v := range t.Chart.Bounds {
		if v < -32768 || v > 32767 {
			return bad("chart.bounds value %d outside 16-bit range", v)
		}
	}
	if t.Chunks.Threshold < 0 || t.Chunks.Threshold > 255 {
		return bad("chunks.threshold %d", t.Chunks.Threshold)
	}
	if t.Chunks.WindowSize > 0 && t.Chunks.PoolSize > 0 && t.Chunks.PoolSize < t.Chunks.WindowSize*t.Chunks.WindowSize {
		return bad("chunks.pool_size %d smaller than window", t.Chunks.PoolSize)
	}
	if t.Raycast.InitialQuality < raycast.MinQuality || t.Raycast.InitialQuality > raycast.MaxQuality {
		return bad("raycast.initial_quality %d", t.Raycast.InitialQuality)
	}
	if t.Ping.AutoEveryTicks < 0 {
		return bad("ping.auto_every_ticks %d", t.Ping.AutoEveryTicks)
	}
	for i, wp := range t.Route.Waypoints {
		if len(wp) != 2 {
			return bad("route.waypoints[%d] needs 2 values", i)
		}
	}
	if t.Route.CellsPerTick < 0 {
		return bad("route.cells_per_tick %d", t.Route.CellsPerTick)
	}
	if t.Stream.FramesPerSec < 0 || t.Stream.Burst < 0 || t.Stream.MaxPoints < 0 || t.Stream.ViewRadius < 0 {
		return bad("stream limits must not be negative")
	}
	return t.ChartConfig().Validate()
}

func (t Tuning) ChartConfig() chart.Config {
	return chart.Config{
		Bounds:           chart.NewBounds(t.Chart.Bounds[0], t.Chart.Bounds[1], t.Chart.Bounds[2], t.Chart.Bounds[3]),
		NodeCapacity:     t.Chart.NodeCapacity,
		PointCapacity:    t.Chart.PointCapacity,
		MaxPointsPerNode: t.Chart.MaxPointsPerNode,
		MaxDepth:         t.Chart.MaxDepth,
		FadeStages:       t.Chart.FadeStages,
		FadeStageMs:      t.Chart.FadeStageMs,
		AgeEveryMs:       t.Chart.AgeEveryMs,
	}
}

// PipelineConfig maps the tuning onto the sonar pipeline's component configs.
func (t Tuning) PipelineConfig() sonar.Config {
	return sonar.Config{
		Chart: t.ChartConfig(),
		Caster: raycast.Config{
			MaxPatternRays:    t.Raycast.MaxPatternRays,
			MaxDistance:       t.Raycast.MaxDistance,
			FullRays:          t.Raycast.FullRays,
			ForwardRays:       t.Raycast.ForwardRays,
			SparseRays:        t.Raycast.SparseRays,
			FrameBudgetMs:     t.Raycast.FrameBudgetMs,
			CheckEveryMs:      t.Raycast.CheckEveryMs,
			DegradeCooldownMs: t.Raycast.DegradeCooldownMs,
			ImproveCooldownMs: t.Raycast.ImproveCooldownMs,
			InitialQuality:    t.Raycast.InitialQuality,
		},
		Chunks: store.Config{
			TileSize:   t.Chunks.TileSize,
			WindowSize: t.Chunks.WindowSize,
			PoolSize:   t.Chunks.PoolSize,
			Threshold:  uint8(t.Chunks.Threshold),
			WorldSeed:  t.WorldSeed,
		},
		Ping: sonar.PingConfig{
			RadiusStep:  t.Ping.RadiusStep,
			GrowEveryMs: t.Ping.GrowEveryMs,
			MaxRadius:   t.Ping.MaxRadius,
			WaterStride: t.Ping.WaterStride,
		},
		PreferPerformance: t.Raycast.PreferPerformance,
	}
}
