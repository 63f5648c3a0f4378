package world

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pendingPing := false
	for {
		select {
		case <-ctx.Done():
			w.closeObservers()
			return ctx.Err()
		case <-w.stop:
			w.closeObservers()
			return nil
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case <-w.pingReq:
			pendingPing = true
		case <-ticker.C:
			w.stepInternal(pendingPing)
			pendingPing = false
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// StepOnce advances the world by a single tick using the same ordering as the
// server loop. It is primarily intended for deterministic replays and tests.
func (w *World) StepOnce(pingRequested bool) TickLogEntry {
	return w.stepInternal(pingRequested)
}

func (w *World) stepInternal(pingRequested bool) TickLogEntry {
	tick := w.tick.Load()
	now := tick * w.cfg.TickMs()
	w.sim.Set(now)

	if tick > 0 {
		w.route.advance()
	}
	x, y := w.route.pos()

	auto := w.cfg.AutoPingEveryTicks > 0 && tick%uint64(w.cfg.AutoPingEveryTicks) == 0
	started := false
	if pingRequested || auto {
		started = w.pipe.StartPing(x, y)
	}

	rep := w.pipe.Tick(x, y)
	cs := w.pipe.Chart().Stats()

	entry := TickLogEntry{
		Tick:           tick,
		RunID:          w.cfg.RunID,
		NowMs:          now,
		X:              x,
		Y:              y,
		PingRequested:  pingRequested,
		PingStarted:    started,
		PingActive:     rep.PingActive,
		PingRadius:     rep.PingRadius,
		Pattern:        rep.Pattern,
		Rays:           rep.Rays,
		Hits:           rep.Hits,
		Skipped:        rep.Skipped,
		Added:          rep.Added,
		Refreshed:      rep.Refreshed,
		Dropped:        rep.Dropped,
		Clipped:        rep.Clipped,
		Faded:          rep.Faded,
		Quality:        rep.Quality,
		QualityChanged: rep.QualityChanged,
		ElapsedMs:      rep.ElapsedMs,
		TilesLoaded:    rep.Chunks.Loaded,
		TilesEvicted:   rep.Chunks.Evicted,
		TilesFailed:    rep.Chunks.Failed,
		ChartPoints:    cs.Points,
		ChartNodes:     cs.Nodes,
		Digest:         w.pipe.Digest(),
	}

	if rep.QualityChanged {
		w.log.WithFields(logrus.Fields{"tick": tick, "quality": rep.Quality, "elapsed_ms": rep.ElapsedMs}).Info("sonar quality changed")
	}
	if rep.Chunks.Failed > 0 {
		w.log.WithFields(logrus.Fields{"tick": tick, "failed": rep.Chunks.Failed}).Warn("terrain window incomplete")
	}

	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.log.WithError(err).WithField("tick", tick).Warn("tick log write failed")
		}
	}

	w.stepObservers(tick, rep.Pattern)
	w.tick.Add(1)
	w.publishStatus(tick, entry)
	return entry
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

// trySend enqueues without dropping anything already queued.
func trySend(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}
