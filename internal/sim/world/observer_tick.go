package world

import (
	"encoding/json"

	"sonarchart/internal/observerproto"
	"sonarchart/internal/sim/chart"
	simenc "sonarchart/internal/sim/encoding"
	"sonarchart/internal/sim/world/terrain/store"
)

type tileKey struct {
	coord store.TileCoord
	seed  uint32
}

// tileBlob is an encoded TILE message shared by every observer.
type tileBlob struct {
	msg []byte
}

func (w *World) stepObservers(nowTick uint64, pattern string) {
	if len(w.observers) == 0 {
		return
	}

	active := w.pipe.Chunks().ActiveTiles()
	for _, c := range w.observers {
		if c.cfg.tiles {
			w.stepObserverTiles(c, active)
		}
	}
	w.pruneTileCache(active)

	x, y := w.route.pos()
	ping := w.pipe.Ping()
	cs := w.pipe.Chart().Stats()
	ccfg := w.pipe.Chart().Config()

	for _, c := range w.observers {
		c.points = w.pipe.Chart().QueryInto(chart.Around(x, y, c.cfg.viewRadius), c.points[:0])
		pts := c.points
		truncated := false
		if len(pts) > c.cfg.maxPoints {
			pts = pts[:c.cfg.maxPoints]
			truncated = true
		}
		out := make([]observerproto.PointState, 0, len(pts))
		for _, p := range pts {
			out = append(out, observerproto.PointState{
				X:       int(p.X),
				Y:       int(p.Y),
				Terrain: p.Terrain,
				Fade:    int(p.Fade),
				Opacity: chart.Opacity(p.Fade, ccfg.FadeStages),
			})
		}
		msg := observerproto.FrameMsg{
			Type:            observerproto.TypeFrame,
			ProtocolVersion: observerproto.Version,
			Tick:            nowTick,
			NowMs:           w.sim.NowMs(),
			Observer:        [2]int{x, y},
			Ping: observerproto.PingState{
				Active: ping.Active,
				X:      ping.X,
				Y:      ping.Y,
				Radius: ping.Radius,
			},
			Quality:   w.pipe.Caster().Quality(),
			Pattern:   pattern,
			Points:    out,
			Truncated: truncated,
			Stats: observerproto.ChartStats{
				Points:             cs.Points,
				Nodes:              cs.Nodes,
				Subdivisions:       cs.Subdivisions,
				FailedSubdivisions: cs.FailedSubdivisions,
				Overflowed:         cs.Overflowed,
			},
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		sendLatest(c.tickOut, b)
	}
}

// stepObserverTiles sends TILE for window tiles the observer lacks and
// TILE_EVICT for tiles that left the window. A message that does not fit the
// queue is retried on the next tick.
func (w *World) stepObserverTiles(c *observerClient, active []store.TileCoord) {
	chunks := w.pipe.Chunks()
	want := make(map[store.TileCoord]uint32, len(active))
	for _, coord := range active {
		want[coord] = chunks.TileSeed(coord)
	}

	for coord := range c.tiles {
		if _, ok := want[coord]; ok {
			continue
		}
		b, err := json.Marshal(observerproto.TileEvictMsg{
			Type:            observerproto.TypeTileEvict,
			ProtocolVersion: observerproto.Version,
			CX:              coord.X,
			CY:              coord.Y,
		})
		if err != nil {
			continue
		}
		if trySend(c.dataOut, b) {
			delete(c.tiles, coord)
		}
	}

	for _, coord := range active {
		seed := want[coord]
		if have, ok := c.tiles[coord]; ok && have == seed {
			continue
		}
		b, ok := w.tileMessage(coord, seed)
		if !ok {
			continue
		}
		if !trySend(c.dataOut, b) {
			return
		}
		c.tiles[coord] = seed
	}
}

func (w *World) tileMessage(coord store.TileCoord, seed uint32) ([]byte, bool) {
	key := tileKey{coord: coord, seed: seed}
	if blob, ok := w.tileCache[key]; ok {
		return blob.msg, true
	}
	size := w.pipe.Chunks().Config().TileSize
	tile, _, ok := w.pipe.Chunks().TileAt(coord.X*size, coord.Y*size)
	if !ok {
		return nil, false
	}
	b, err := json.Marshal(observerproto.TileMsg{
		Type:            observerproto.TypeTile,
		ProtocolVersion: observerproto.Version,
		CX:              coord.X,
		CY:              coord.Y,
		Size:            tile.Size,
		Seed:            tile.Seed,
		Encoding:        observerproto.EncodingMaskRLE,
		Data:            simenc.EncodeMask(tile.Mask()),
	})
	if err != nil {
		return nil, false
	}
	w.tileCache[key] = tileBlob{msg: b}
	return b, true
}

func (w *World) pruneTileCache(active []store.TileCoord) {
	if len(w.tileCache) <= len(active) {
		return
	}
	keep := make(map[store.TileCoord]bool, len(active))
	for _, c := range active {
		keep[c] = true
	}
	for k := range w.tileCache {
		if !keep[k.coord] {
			delete(w.tileCache, k)
		}
	}
}
