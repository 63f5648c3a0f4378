package indexdb

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"sonarchart/internal/sim/tuning"
	"sonarchart/internal/sim/world"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func openTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "sonar.sqlite"), quietLogger())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSQLiteIndex_SummaryAndPings(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	if err := idx.RecordRun("run-1", "sonar", tuning.Defaults()); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	entries := []world.TickLogEntry{
		{Tick: 0, X: 5, Y: 6, PingStarted: true, PingActive: true, Quality: 1, ChartPoints: 0, Digest: "d0"},
		{Tick: 1, X: 5, Y: 6, PingActive: true, PingRadius: 2, Rays: 16, Hits: 3, Added: 10, Quality: 1, ChartPoints: 10, Digest: "d1"},
		{Tick: 2, X: 6, Y: 6, PingActive: false, PingRadius: 66, Rays: 16, Hits: 5, Added: 7, Dropped: 2, Quality: 2, ChartPoints: 17, Digest: "d2"},
		{Tick: 3, X: 7, Y: 6, Quality: 2, ChartPoints: 17, Digest: "d3"},
		{Tick: 4, X: 8, Y: 6, PingStarted: true, PingActive: true, Quality: 2, ChartPoints: 17, Digest: "d4"},
	}
	for _, e := range entries {
		e.RunID = "run-1"
		if err := idx.WriteTick(e); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	if err := idx.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	sum, err := idx.Summary(ctx, "run-1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Ticks != 5 || sum.FirstTick != 0 || sum.LastTick != 4 {
		t.Fatalf("tick range: %+v", sum)
	}
	if sum.MaxChartPoints != 17 || sum.TotalAdded != 17 || sum.TotalDropped != 2 {
		t.Fatalf("totals: %+v", sum)
	}
	if sum.QualityLevels[1] != 2 || sum.QualityLevels[2] != 3 {
		t.Fatalf("quality levels: %v", sum.QualityLevels)
	}
	if sum.LastDigest != "d4" {
		t.Fatalf("last digest=%q", sum.LastDigest)
	}
	if sum.Pings != 1 {
		t.Fatalf("finished pings=%d want 1 (second is still running)", sum.Pings)
	}

	pings, err := idx.Pings(ctx, "run-1")
	if err != nil {
		t.Fatalf("Pings: %v", err)
	}
	p := pings[0]
	if p.StartTick != 0 || p.EndTick != 2 || p.X != 5 || p.Y != 6 || p.MaxRadius != 66 || p.Rays != 32 || p.Hits != 8 || p.Added != 17 || p.Dropped != 2 {
		t.Fatalf("ping row: %+v", p)
	}

	js, digest, err := idx.RunTuning(ctx, "run-1")
	if err != nil || js == "" || len(digest) != 64 {
		t.Fatalf("RunTuning: %q %q %v", js, digest, err)
	}
}

func TestSQLiteIndex_CloseFlushesRunningPing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sonar.sqlite")
	idx, err := OpenSQLite(path, quietLogger())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_ = idx.WriteTick(world.TickLogEntry{RunID: "r", Tick: 9, PingStarted: true, PingActive: true, Digest: "x"})
	_ = idx.WriteTick(world.TickLogEntry{RunID: "r", Tick: 10, PingActive: true, PingRadius: 2, Digest: "y"})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := idx.WriteTick(world.TickLogEntry{Tick: 11}); err != nil {
		t.Fatalf("write after close should be ignored: %v", err)
	}

	again, err := OpenSQLite(path, quietLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	pings, err := again.Pings(context.Background(), "r")
	if err != nil {
		t.Fatalf("Pings: %v", err)
	}
	if len(pings) != 1 || pings[0].StartTick != 9 || pings[0].EndTick != 10 {
		t.Fatalf("unexpected pings: %+v", pings)
	}
}

func TestSQLiteIndex_CloseLogsFailedPingFlush(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "sonar.sqlite"), logger)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_ = idx.WriteTick(world.TickLogEntry{RunID: "r", Tick: 3, PingStarted: true, PingActive: true, Digest: "x"})
	if err := idx.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if _, err := idx.db.Exec(`DROP TABLE pings`); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "index ping flush failed on close" {
			if e.Data["tick"] != uint64(3) {
				t.Fatalf("tick field=%v", e.Data["tick"])
			}
			return
		}
	}
	t.Fatalf("failed ping flush was not logged: %+v", hook.AllEntries())
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.RecordRun("r", "w", tuning.Defaults())

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropRunTotal != 1 {
		t.Fatalf("drop stats: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
