package clock

import (
	"sync/atomic"
	"time"
)

// Source is a monotonic millisecond tick source.
type Source interface {
	NowMs() uint64
}

// Wall counts milliseconds since it was created, using the runtime's
// monotonic clock.
type Wall struct {
	start time.Time
}

func NewWall() *Wall { return &Wall{start: time.Now()} }

func (w *Wall) NowMs() uint64 {
	return uint64(time.Since(w.start) / time.Millisecond)
}

// Manual is advanced explicitly. Used by replays, tests and the fixed-step
// world loop.
type Manual struct {
	now atomic.Uint64
}

func NewManual(start uint64) *Manual {
	m := &Manual{}
	m.now.Store(start)
	return m
}

func (m *Manual) NowMs() uint64 { return m.now.Load() }

func (m *Manual) Set(ms uint64) { m.now.Store(ms) }

func (m *Manual) Advance(ms uint64) uint64 { return m.now.Add(ms) }
