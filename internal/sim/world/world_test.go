package world

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"sonarchart/internal/observerproto"
	"sonarchart/internal/sim/clock"
	simenc "sonarchart/internal/sim/encoding"
	"sonarchart/internal/sim/tuning"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig() WorldConfig {
	return ConfigFromTuning("test", "run-1", tuning.Defaults())
}

func newTestWorld(t *testing.T, cfg WorldConfig) *World {
	t.Helper()
	w, err := New(cfg, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.SetFrameClock(clock.NewManual(0))
	return w
}

// slowFrames advances by step on every read, so each tick looks expensive.
type slowFrames struct {
	now, step uint64
}

func (s *slowFrames) NowMs() uint64 {
	s.now += s.step
	return s.now
}

type memTickLog struct {
	entries []TickLogEntry
}

func (m *memTickLog) WriteTick(e TickLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func TestStepOnceIsDeterministic(t *testing.T) {
	a := newTestWorld(t, testConfig())
	b := newTestWorld(t, testConfig())
	sawPoints := false
	for i := 0; i < 120; i++ {
		ea := a.StepOnce(false)
		eb := b.StepOnce(false)
		if ea.Tick != uint64(i) {
			t.Fatalf("tick=%d want %d", ea.Tick, i)
		}
		if ea.Digest != eb.Digest || ea.X != eb.X || ea.Y != eb.Y {
			t.Fatalf("tick %d diverged: %+v vs %+v", i, ea, eb)
		}
		if ea.ChartPoints > 0 {
			sawPoints = true
		}
	}
	if !sawPoints {
		t.Fatalf("expected the route pings to record discoveries")
	}
	if a.CurrentTick() != 120 {
		t.Fatalf("CurrentTick=%d want 120", a.CurrentTick())
	}
}

func TestSimClockFollowsTicks(t *testing.T) {
	w := newTestWorld(t, testConfig())
	for i := 0; i < 3; i++ {
		e := w.StepOnce(false)
		if want := uint64(i) * 50; e.NowMs != want {
			t.Fatalf("tick %d now=%d want %d", i, e.NowMs, want)
		}
	}
}

func TestAutoPingStartsOnSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.AutoPingEveryTicks = 40
	w := newTestWorld(t, cfg)

	e := w.StepOnce(false)
	if !e.PingStarted || !e.PingActive || e.PingRadius != 0 {
		t.Fatalf("tick 0 should start a ping: %+v", e)
	}
	e = w.StepOnce(false)
	if e.PingStarted || e.PingRadius != 2 || e.Pattern == "" || e.Rays == 0 {
		t.Fatalf("tick 1 should grow and sweep: %+v", e)
	}
	for i := 2; i < 40; i++ {
		e = w.StepOnce(false)
		if e.PingStarted {
			t.Fatalf("unexpected ping start at tick %d", e.Tick)
		}
	}
	if e = w.StepOnce(false); !e.PingStarted {
		t.Fatalf("tick 40 should start a new ping: %+v", e)
	}
}

func TestRequestedPingWithoutSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.AutoPingEveryTicks = 0
	w := newTestWorld(t, cfg)

	if e := w.StepOnce(false); e.PingStarted || e.PingActive {
		t.Fatalf("no ping expected: %+v", e)
	}
	if err := w.RequestPing(); err != nil {
		t.Fatalf("RequestPing: %v", err)
	}
	if err := w.RequestPing(); err != ErrBusy {
		t.Fatalf("second queued request should report busy, got %v", err)
	}
	e := w.StepOnce(true)
	if !e.PingRequested || !e.PingStarted {
		t.Fatalf("requested ping did not start: %+v", e)
	}
}

func TestRouteWalksWaypointsInALoop(t *testing.T) {
	r := newRoute(RouteConfig{Waypoints: [][2]int{{0, 0}, {3, 0}, {3, 2}}, CellsPerTick: 1})
	want := [][2]int{{1, 0}, {2, 0}, {3, 0}, {3, 1}, {3, 2}, {2, 1}, {1, 0}, {0, 0}, {1, 0}}
	for i, w := range want {
		r.advance()
		if x, y := r.pos(); x != w[0] || y != w[1] {
			t.Fatalf("step %d at (%d,%d) want %v", i, x, y, w)
		}
	}
}

func TestRouteHandlesDegenerateInput(t *testing.T) {
	r := newRoute(RouteConfig{Waypoints: [][2]int{{5, 5}, {5, 5}}, CellsPerTick: 3})
	r.advance()
	if x, y := r.pos(); x != 5 || y != 5 {
		t.Fatalf("route moved to (%d,%d)", x, y)
	}
	empty := newRoute(RouteConfig{CellsPerTick: 3})
	empty.advance()
	if x, y := empty.pos(); x != 0 || y != 0 {
		t.Fatalf("empty route moved to (%d,%d)", x, y)
	}
}

func TestTickLoggerReceivesEveryTick(t *testing.T) {
	w := newTestWorld(t, testConfig())
	log := &memTickLog{}
	w.SetTickLogger(log)
	for i := 0; i < 5; i++ {
		w.StepOnce(false)
	}
	if len(log.entries) != 5 {
		t.Fatalf("logged %d entries want 5", len(log.entries))
	}
	for i, e := range log.entries {
		if e.Tick != uint64(i) || e.RunID != "run-1" || len(e.Digest) != 64 {
			t.Fatalf("bad entry %d: %+v", i, e)
		}
	}
}

func TestForcedQualityReproducesDigests(t *testing.T) {
	cfg := testConfig()
	live := newTestWorld(t, cfg)
	live.SetFrameClock(&slowFrames{step: 10})
	var entries []TickLogEntry
	changed := false
	for i := 0; i < 200; i++ {
		e := live.StepOnce(false)
		entries = append(entries, e)
		if e.QualityChanged {
			changed = true
		}
	}
	if !changed {
		t.Fatalf("slow frames should have changed the quality")
	}

	replay := newTestWorld(t, cfg)
	for i, want := range entries {
		if i > 0 {
			replay.SetQuality(entries[i-1].Quality)
		}
		got := replay.StepOnce(want.PingRequested)
		if got.Digest != want.Digest {
			t.Fatalf("tick %d digest mismatch", want.Tick)
		}
	}
}

func TestStatusIsPublished(t *testing.T) {
	w := newTestWorld(t, testConfig())
	if st := w.Status(); st.WorldID != "test" || st.Tick != 0 {
		t.Fatalf("initial status: %+v", st)
	}
	var last TickLogEntry
	for i := 0; i < 3; i++ {
		last = w.StepOnce(false)
	}
	st := w.Status()
	if st.Tick != 2 || st.X != last.X || st.Y != last.Y || st.Digest != last.Digest {
		t.Fatalf("status out of date: %+v vs %+v", st, last)
	}
	if st.TilesActive != 4 {
		t.Fatalf("tiles active=%d want 4", st.TilesActive)
	}
}

func joinObserver(w *World, id string, tiles bool) (chan []byte, chan []byte) {
	tickOut := make(chan []byte, 8)
	dataOut := make(chan []byte, 64)
	w.handleObserverJoin(ObserverJoinRequest{
		SessionID: id,
		TickOut:   tickOut,
		DataOut:   dataOut,
		Tiles:     tiles,
	})
	return tickOut, dataOut
}

func drainData(ch chan []byte) (tiles []observerproto.TileMsg, evicts []observerproto.TileEvictMsg) {
	for {
		select {
		case b := <-ch:
			var head struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal(b, &head)
			switch head.Type {
			case observerproto.TypeTile:
				var m observerproto.TileMsg
				_ = json.Unmarshal(b, &m)
				tiles = append(tiles, m)
			case observerproto.TypeTileEvict:
				var m observerproto.TileEvictMsg
				_ = json.Unmarshal(b, &m)
				evicts = append(evicts, m)
			}
		default:
			return tiles, evicts
		}
	}
}

func TestObserverReceivesTilesAndFrames(t *testing.T) {
	w := newTestWorld(t, testConfig())
	tickOut, dataOut := joinObserver(w, "O1", true)
	w.StepOnce(false)
	w.StepOnce(false)

	tiles, evicts := drainData(dataOut)
	if len(tiles) != 4 || len(evicts) != 0 {
		t.Fatalf("got %d tiles %d evicts, want 4/0", len(tiles), len(evicts))
	}
	chunks := w.Pipeline().Chunks()
	size := chunks.Config().TileSize
	for _, m := range tiles {
		if m.Encoding != observerproto.EncodingMaskRLE || m.Size != size {
			t.Fatalf("unexpected tile header: %+v", m)
		}
		mask, err := simenc.DecodeMask(m.Data, size*size)
		if err != nil {
			t.Fatalf("DecodeMask: %v", err)
		}
		tile, _, ok := chunks.TileAt(m.CX*size, m.CY*size)
		if !ok {
			t.Fatalf("tile (%d,%d) not active", m.CX, m.CY)
		}
		want := tile.Mask()
		for i := range want {
			if mask[i] != want[i] {
				t.Fatalf("tile (%d,%d) mask differs at %d", m.CX, m.CY, i)
			}
		}
	}

	var frame observerproto.FrameMsg
	select {
	case b := <-tickOut:
		if err := json.Unmarshal(b, &frame); err != nil {
			t.Fatalf("frame: %v", err)
		}
	default:
		t.Fatalf("no frame sent")
	}
	if frame.Type != observerproto.TypeFrame || frame.Tick > 1 {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestObserverTilesFollowTheWindow(t *testing.T) {
	cfg := testConfig()
	cfg.Route = RouteConfig{Waypoints: [][2]int{{0, 0}, {400, 0}}, CellsPerTick: 400}
	cfg.AutoPingEveryTicks = 0
	w := newTestWorld(t, cfg)
	_, dataOut := joinObserver(w, "O1", true)

	w.StepOnce(false)
	if tiles, _ := drainData(dataOut); len(tiles) != 4 {
		t.Fatalf("initial tiles=%d want 4", len(tiles))
	}
	w.StepOnce(false) // jumps to (400, 0)
	tiles, evicts := drainData(dataOut)
	if len(tiles) != 4 || len(evicts) != 4 {
		t.Fatalf("after move: %d tiles %d evicts, want 4/4", len(tiles), len(evicts))
	}
	w.StepOnce(false) // walks back to (0, 0)
	if len(w.observers["O1"].tiles) != len(w.Pipeline().Chunks().ActiveTiles()) {
		t.Fatalf("observer tile set out of sync with the window")
	}
}

func TestObserverWithoutTilesGetsOnlyFrames(t *testing.T) {
	w := newTestWorld(t, testConfig())
	tickOut, dataOut := joinObserver(w, "O1", false)
	w.StepOnce(false)
	if tiles, _ := drainData(dataOut); len(tiles) != 0 {
		t.Fatalf("unexpected tiles: %d", len(tiles))
	}
	if len(tickOut) != 1 {
		t.Fatalf("frames queued=%d want 1", len(tickOut))
	}

	w.handleObserverSubscribe(ObserverSubscribeRequest{SessionID: "O1", Tiles: true, ViewRadius: 8, MaxPoints: 1})
	if c := w.observers["O1"].cfg; c.viewRadius != 8 || c.maxPoints != 1 || !c.tiles {
		t.Fatalf("subscribe not applied: %+v", c)
	}
	w.StepOnce(false)
	if tiles, _ := drainData(dataOut); len(tiles) != 4 {
		t.Fatalf("tiles after subscribe=%d want 4", len(tiles))
	}
}

func TestFrameQueueKeepsLatest(t *testing.T) {
	w := newTestWorld(t, testConfig())
	tickOut := make(chan []byte, 1)
	w.handleObserverJoin(ObserverJoinRequest{SessionID: "O1", TickOut: tickOut, DataOut: make(chan []byte, 1)})
	for i := 0; i < 3; i++ {
		w.StepOnce(false)
	}
	var frame observerproto.FrameMsg
	if err := json.Unmarshal(<-tickOut, &frame); err != nil {
		t.Fatalf("frame: %v", err)
	}
	if frame.Tick != 2 {
		t.Fatalf("queued frame tick=%d want 2", frame.Tick)
	}
}

func TestObserverLeaveClosesChannels(t *testing.T) {
	w := newTestWorld(t, testConfig())
	tickOut, dataOut := joinObserver(w, "O1", true)
	w.handleObserverLeave("O1")
	if _, ok := <-tickOut; ok {
		t.Fatalf("tickOut should be closed")
	}
	for range dataOut {
	}
	if len(w.observers) != 0 {
		t.Fatalf("observer not removed")
	}
	w.handleObserverLeave("O1")
}
