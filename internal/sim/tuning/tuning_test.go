package tuning

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"sonarchart/internal/sim/chart"
)

func writeTuning(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadRepoConfig(t *testing.T) {
	tune, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := tune.PipelineConfig()
	if cfg.Chart.Bounds != chart.WorldBounds {
		t.Fatalf("bounds: %+v", cfg.Chart.Bounds)
	}
	if cfg.Chunks.TileSize != 33 || cfg.Chunks.Threshold != 90 || cfg.Caster.MaxDistance != 48 {
		t.Fatalf("unexpected pipeline config: %+v", cfg)
	}
	if len(tune.Route.Waypoints) != 4 || tune.Ping.AutoEveryTicks != 40 {
		t.Fatalf("unexpected route/ping: %+v %+v", tune.Route, tune.Ping)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	p := writeTuning(t, "world_seed: 42\nchunks:\n  threshold: 120\n")
	tune, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.WorldSeed != 42 || tune.Chunks.Threshold != 120 {
		t.Fatalf("overrides not applied: %+v", tune)
	}
	if tune.TickRateHz != 20 || tune.Chunks.TileSize != 33 || tune.Chart.PointCapacity != 2048 {
		t.Fatalf("defaults lost: %+v", tune)
	}
	if tune.PipelineConfig().Chunks.WorldSeed != 42 {
		t.Fatalf("world seed not threaded into chunk config")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []string{
		"tick_rate_hz: 0\n",
		"chunks:\n  threshold: 300\n",
		"chart:\n  bounds: [0, 0, 10]\n",
		"raycast:\n  initial_quality: 7\n",
		"route:\n  waypoints: [[1, 2, 3]]\n",
	}
	for _, body := range cases {
		if _, err := Load(writeTuning(t, body)); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%q: expected ErrInvalid, got %v", body, err)
		}
	}
	if _, err := Load(writeTuning(t, "chart:\n  node_capacity: -1\n")); !errors.Is(err, chart.ErrBadConfig) {
		t.Fatalf("expected chart.ErrBadConfig, got %v", err)
	}
	if _, err := Load(writeTuning(t, "chart: [\n")); err == nil {
		t.Fatalf("expected yaml error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
