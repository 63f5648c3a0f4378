package world

import (
	"sonarchart/internal/sim/chart"
	"sonarchart/internal/sim/world/logic/mathx"
	"sonarchart/internal/sim/world/terrain/store"
)

// ObserverJoinRequest registers a read-only observer session that receives:
// - terrain tile masks and evictions (dataOut)
// - per-tick chart frames around the observer (tickOut)
//
// All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte
	DataOut   chan []byte

	ViewRadius int
	MaxPoints  int
	Tiles      bool
}

// ObserverSubscribeRequest updates an existing observer session subscription settings.
type ObserverSubscribeRequest struct {
	SessionID string

	ViewRadius int
	MaxPoints  int
	Tiles      bool
}

type observerClient struct {
	id      string
	tickOut chan []byte
	dataOut chan []byte

	cfg observerCfg

	// Tiles this observer holds, keyed by coordinate, valued by tile seed.
	tiles map[store.TileCoord]uint32

	points []chart.Point
}

type observerCfg struct {
	viewRadius int
	maxPoints  int
	tiles      bool
}

const (
	maxViewRadius = 1024
	maxPoints     = 16384
)

func (w *World) observerConfig(viewRadius, maxPts int, tiles bool) observerCfg {
	if viewRadius <= 0 {
		viewRadius = w.cfg.Stream.ViewRadius
	}
	if maxPts <= 0 {
		maxPts = w.cfg.Stream.MaxPoints
	}
	return observerCfg{
		viewRadius: mathx.ClampInt(viewRadius, 1, maxViewRadius),
		maxPoints:  mathx.ClampInt(maxPts, 1, maxPoints),
		tiles:      tiles,
	}
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if w == nil || req.SessionID == "" || req.TickOut == nil || req.DataOut == nil {
		return
	}
	if old := w.observers[req.SessionID]; old != nil {
		close(old.tickOut)
		close(old.dataOut)
	}
	w.observers[req.SessionID] = &observerClient{
		id:      req.SessionID,
		tickOut: req.TickOut,
		dataOut: req.DataOut,
		cfg:     w.observerConfig(req.ViewRadius, req.MaxPoints, req.Tiles),
		tiles:   map[store.TileCoord]uint32{},
	}
	w.log.WithField("session", req.SessionID).Info("observer joined")
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	c.cfg = w.observerConfig(req.ViewRadius, req.MaxPoints, req.Tiles)
	if !c.cfg.tiles {
		// Resubscribing with tiles later resends the whole window.
		c.tiles = map[store.TileCoord]uint32{}
	}
}

func (w *World) handleObserverLeave(id string) {
	c := w.observers[id]
	if c == nil {
		return
	}
	close(c.tickOut)
	close(c.dataOut)
	delete(w.observers, id)
	w.log.WithField("session", id).Info("observer left")
}

func (w *World) closeObservers() {
	for id := range w.observers {
		w.handleObserverLeave(id)
	}
}
