package log

import (
	"encoding/json"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"

	"sonarchart/internal/sim/clock"
	"sonarchart/internal/sim/tuning"
	"sonarchart/internal/sim/world"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) now() time.Time { return f.t }

func TestTickLoggerRotatesHourlyAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	clk := &fakeNow{t: time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)}
	var closed []string
	l := NewTickLoggerWithOptions(dir, LoggerOptions{
		Now:     clk.now,
		OnClose: func(p string) { closed = append(closed, p) },
	})

	for i := 0; i < 3; i++ {
		if err := l.WriteTick(world.TickLogEntry{Tick: uint64(i), Digest: "a"}); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	clk.t = clk.t.Add(2 * time.Minute)
	for i := 3; i < 5; i++ {
		if err := l.WriteTick(world.TickLogEntry{Tick: uint64(i), Digest: "b"}); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	if len(closed) != 1 || filepath.Base(closed[0]) != "ticks-2026-03-01-10.jsonl.zst" {
		t.Fatalf("rotation should close the first hour: %v", closed)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(closed) != 2 || filepath.Base(closed[1]) != "ticks-2026-03-01-11.jsonl.zst" {
		t.Fatalf("Close should report the last file: %v", closed)
	}

	files, err := ListFiles(TickDir(dir), TickPrefix)
	if err != nil || len(files) != 2 {
		t.Fatalf("ListFiles: %v %v", files, err)
	}

	var ticks []uint64
	if err := ReadRunTicks(dir, func(e world.TickLogEntry) error {
		ticks = append(ticks, e.Tick)
		return nil
	}); err != nil {
		t.Fatalf("ReadRunTicks: %v", err)
	}
	if len(ticks) != 5 {
		t.Fatalf("read %d ticks want 5", len(ticks))
	}
	for i, tk := range ticks {
		if tk != uint64(i) {
			t.Fatalf("tick order: %v", ticks)
		}
	}
}

func TestAppendingToAnExistingHourKeepsBothFrames(t *testing.T) {
	dir := t.TempDir()
	clk := &fakeNow{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	for run := 0; run < 2; run++ {
		w := NewJSONLZstdWriterWithOptions(dir, "x", LoggerOptions{Now: clk.now})
		if err := w.Write(map[string]int{"n": run}); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	files, err := ListFiles(dir, "x")
	if err != nil || len(files) != 1 {
		t.Fatalf("ListFiles: %v %v", files, err)
	}
	var got []int
	if err := ReadJSONL(files[0], func(line []byte) error {
		var v map[string]int
		if err := json.Unmarshal(line, &v); err != nil {
			return err
		}
		got = append(got, v["n"])
		return nil
	}); err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("got %v", got)
	}
}

func TestTickEntriesMatchSchema(t *testing.T) {
	schema, err := jsonschema.Compile(filepath.Join("..", "..", "..", "schemas", "tick_log.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	w, err := world.New(world.ConfigFromTuning("test", "run-1", tuning.Defaults()), quiet)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	w.SetFrameClock(clock.NewManual(0))
	for i := 0; i < 5; i++ {
		e := w.StepOnce(false)
		b, _ := json.Marshal(e)
		var v any
		_ = json.Unmarshal(b, &v)
		if err := schema.Validate(v); err != nil {
			t.Fatalf("tick %d: %v", e.Tick, err)
		}
	}
}
