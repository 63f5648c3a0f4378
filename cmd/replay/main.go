package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"sonarchart/internal/persistence/indexdb"
	persistlog "sonarchart/internal/persistence/log"
	"sonarchart/internal/sim/clock"
	"sonarchart/internal/sim/tuning"
	"sonarchart/internal/sim/world"
)

func main() {
	var (
		runDir     = flag.String("run", "", "run directory containing ticks/ (data/runs/<run id>)")
		tuningPath = flag.String("tuning", "", "tuning.yaml used by the run (default: tuning recorded in the run index)")
		worldID    = flag.String("world", "sonar_1", "world id")
		verify     = flag.Bool("verify", false, "re-simulate the run and compare chart digests")
		fromTick   = flag.Uint64("from_tick", 0, "start comparing at tick (inclusive)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, 0 = end of log)")
	)
	flag.Parse()

	if *runDir == "" {
		fmt.Fprintln(os.Stderr, "missing -run")
		os.Exit(2)
	}

	var entries []world.TickLogEntry
	err := persistlog.ReadRunTicks(*runDir, func(e world.TickLogEntry) error {
		if *toTick != 0 && e.Tick > *toTick {
			return nil
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read ticks:", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no ticks found under", persistlog.TickDir(*runDir))
		os.Exit(1)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Tick < entries[j].Tick })

	printSummary(os.Stdout, summarize(entries))

	if !*verify {
		return
	}

	tune, err := loadRunTuning(*tuningPath, *runDir, entries[0].RunID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tuning:", err)
		os.Exit(1)
	}
	res, err := verifyRun(*worldID, tune, entries, *fromTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "verify:", err)
		os.Exit(1)
	}
	fmt.Printf("verify: checked=%d mismatches=%d\n", res.Checked, len(res.Mismatches))
	for i, m := range res.Mismatches {
		if i == 10 {
			fmt.Printf("  ... %d more\n", len(res.Mismatches)-i)
			break
		}
		fmt.Printf("  tick=%d want=%s got=%s\n", m.Tick, m.Want, m.Got)
	}
	if len(res.Mismatches) > 0 {
		os.Exit(1)
	}
}

type runSummary struct {
	RunID          string
	Ticks          int
	FirstTick      uint64
	LastTick       uint64
	Gaps           int
	PingsStarted   int
	PingsRequested int
	QualityLevels  map[int]int
	QualityChanges int
	MaxChartPoints int
	TotalAdded     int
	TotalDropped   int
	TilesFailed    int
	LastDigest     string
}

func summarize(entries []world.TickLogEntry) runSummary {
	s := runSummary{QualityLevels: map[int]int{}}
	for i, e := range entries {
		if i == 0 {
			s.RunID = e.RunID
			s.FirstTick = e.Tick
		} else if e.Tick != entries[i-1].Tick+1 {
			s.Gaps++
		}
		s.Ticks++
		s.LastTick = e.Tick
		if e.PingStarted {
			s.PingsStarted++
		}
		if e.PingRequested {
			s.PingsRequested++
		}
		s.QualityLevels[e.Quality]++
		if e.QualityChanged {
			s.QualityChanges++
		}
		if e.ChartPoints > s.MaxChartPoints {
			s.MaxChartPoints = e.ChartPoints
		}
		s.TotalAdded += e.Added
		s.TotalDropped += e.Dropped
		s.TilesFailed += e.TilesFailed
		s.LastDigest = e.Digest
	}
	return s
}

func printSummary(out io.Writer, s runSummary) {
	fmt.Fprintf(out, "run=%s ticks=%d range=[%d,%d] gaps=%d\n", s.RunID, s.Ticks, s.FirstTick, s.LastTick, s.Gaps)
	fmt.Fprintf(out, "pings started=%d requested=%d\n", s.PingsStarted, s.PingsRequested)
	fmt.Fprintf(out, "chart max_points=%d added=%d dropped=%d\n", s.MaxChartPoints, s.TotalAdded, s.TotalDropped)
	fmt.Fprintf(out, "tiles failed=%d\n", s.TilesFailed)

	levels := make([]int, 0, len(s.QualityLevels))
	for q := range s.QualityLevels {
		levels = append(levels, q)
	}
	sort.Ints(levels)
	fmt.Fprintf(out, "quality changes=%d", s.QualityChanges)
	for _, q := range levels {
		fmt.Fprintf(out, " q%d=%d", q, s.QualityLevels[q])
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "last digest=%s\n", s.LastDigest)
}

// loadRunTuning prefers an explicit file, then the tuning recorded in the
// run's SQLite index, then defaults.
func loadRunTuning(path, runDir, runID string) (tuning.Tuning, error) {
	if path != "" {
		return tuning.Load(path)
	}
	dbPath := filepath.Join(runDir, "index", "run.sqlite")
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return tuning.Defaults(), nil
		}
		return tuning.Tuning{}, err
	}
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	idx, err := indexdb.OpenSQLite(dbPath, quiet)
	if err != nil {
		return tuning.Tuning{}, err
	}
	defer idx.Close()
	js, _, err := idx.RunTuning(context.Background(), runID)
	if err != nil {
		return tuning.Tuning{}, fmt.Errorf("run %s not in index: %w", runID, err)
	}
	t := tuning.Defaults()
	if err := json.Unmarshal([]byte(js), &t); err != nil {
		return tuning.Tuning{}, err
	}
	return t, t.Validate()
}

type mismatch struct {
	Tick      uint64
	Want, Got string
}

type verifyResult struct {
	Checked    int
	Mismatches []mismatch
}

// verifyRun steps a fresh world through the logged ticks. The frame clock is
// frozen and each tick runs at the quality the live run ended the previous
// tick with, so pattern choice does not depend on replay speed.
func verifyRun(worldID string, tune tuning.Tuning, entries []world.TickLogEntry, fromTick uint64) (verifyResult, error) {
	var res verifyResult
	if len(entries) == 0 {
		return res, nil
	}
	if entries[0].Tick != 0 {
		return res, fmt.Errorf("log starts at tick %d; replay needs tick 0", entries[0].Tick)
	}
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	w, err := world.New(world.ConfigFromTuning(worldID, entries[0].RunID, tune), quiet)
	if err != nil {
		return res, err
	}
	w.SetFrameClock(clock.NewManual(0))

	for i, want := range entries {
		if want.Tick != uint64(i) {
			return res, fmt.Errorf("gap in log at tick %d", want.Tick)
		}
		if i > 0 {
			w.SetQuality(entries[i-1].Quality)
		}
		got := w.StepOnce(want.PingRequested)
		if want.Tick < fromTick {
			continue
		}
		res.Checked++
		if got.Digest != want.Digest {
			res.Mismatches = append(res.Mismatches, mismatch{Tick: want.Tick, Want: want.Digest, Got: got.Digest})
		}
	}
	return res, nil
}
