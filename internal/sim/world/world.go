package world

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"sonarchart/internal/sim/clock"
	"sonarchart/internal/sim/sonar"
)

// World hosts one sonar pipeline on a fixed-step clock. The observer follows
// the configured route and pings on a schedule or on request.
// All pipeline state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig
	log logrus.FieldLogger

	tick  atomic.Uint64
	sim   *clock.Manual
	pipe  *sonar.Pipeline
	route *route

	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	pingReq       chan struct{}
	stop          chan struct{}
	stopOnce      sync.Once

	observers map[string]*observerClient
	tileCache map[tileKey]tileBlob

	// Optional (may be nil). Implemented in internal/persistence/*.
	tickLogger TickLogger

	status atomic.Pointer[Status]
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// TickLogEntry is the per-tick telemetry record. Replays re-run the world from
// the same tuning and compare Digest tick by tick.
type TickLogEntry struct {
	Tick  uint64 `json:"tick"`
	RunID string `json:"run_id,omitempty"`
	NowMs uint64 `json:"now_ms"`
	X     int    `json:"x"`
	Y     int    `json:"y"`

	PingRequested bool   `json:"ping_requested,omitempty"`
	PingStarted   bool   `json:"ping_started,omitempty"`
	PingActive    bool   `json:"ping_active,omitempty"`
	PingRadius    int    `json:"ping_radius,omitempty"`
	Pattern       string `json:"pattern,omitempty"`

	Rays      int `json:"rays,omitempty"`
	Hits      int `json:"hits,omitempty"`
	Skipped   int `json:"skipped,omitempty"`
	Added     int `json:"added,omitempty"`
	Refreshed int `json:"refreshed,omitempty"`
	Dropped   int `json:"dropped,omitempty"`
	Clipped   int `json:"clipped,omitempty"`
	Faded     int `json:"faded,omitempty"`

	Quality        int    `json:"quality"`
	QualityChanged bool   `json:"quality_changed,omitempty"`
	ElapsedMs      uint64 `json:"elapsed_ms,omitempty"`

	TilesLoaded  int `json:"tiles_loaded,omitempty"`
	TilesEvicted int `json:"tiles_evicted,omitempty"`
	TilesFailed  int `json:"tiles_failed,omitempty"`

	ChartPoints int `json:"chart_points"`
	ChartNodes  int `json:"chart_nodes"`

	Digest string `json:"digest"`
}

func New(cfg WorldConfig, log logrus.FieldLogger) (*World, error) {
	cfg.applyDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Pipeline.Chunks.WorldSeed == 0 {
		cfg.Pipeline.Chunks.WorldSeed = cfg.Seed
	}
	sim := clock.NewManual(0)
	pipe, err := sonar.NewPipeline(cfg.Pipeline, sim, log)
	if err != nil {
		return nil, err
	}
	pipe.SetFrameClock(clock.NewWall())

	w := &World{
		cfg:           cfg,
		log:           log.WithFields(logrus.Fields{"component": "world", "world": cfg.ID}),
		sim:           sim,
		pipe:          pipe,
		route:         newRoute(cfg.Route),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 64),
		observerLeave: make(chan string, 16),
		pingReq:       make(chan struct{}, 1),
		stop:          make(chan struct{}),
		observers:     map[string]*observerClient{},
		tileCache:     map[tileKey]tileBlob{},
	}
	w.publishStatus(0, TickLogEntry{})
	return w, nil
}

var ErrBusy = errors.New("world busy")

func (w *World) SetTickLogger(l TickLogger) { w.tickLogger = l }

// SetFrameClock replaces the clock used to time ticks for quality adaptation.
// Replays use a frozen clock so the recorded quality drives pattern choice.
func (w *World) SetFrameClock(c clock.Source) { w.pipe.SetFrameClock(c) }

// SetQuality forces the caster quality level before the next tick.
func (w *World) SetQuality(level int) { w.pipe.Caster().SetQuality(level) }

// RequestPing asks for a ping at the observer's position on the next tick.
func (w *World) RequestPing() error {
	select {
	case w.pingReq <- struct{}{}:
		return nil
	default:
		return ErrBusy
	}
}

func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) Config() WorldConfig {
	if w == nil {
		return WorldConfig{}
	}
	cfg := w.cfg
	cfg.Route.Waypoints = append([][2]int(nil), w.cfg.Route.Waypoints...)
	return cfg
}

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// Pipeline exposes the sonar pipeline. Only safe from the world loop
// goroutine or while the loop is not running.
func (w *World) Pipeline() *sonar.Pipeline { return w.pipe }
