package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"sonarchart/internal/sim/tuning"
	"sonarchart/internal/sim/world"
)

// SQLiteIndex is a read-model of the tick log. Writes are queued and applied
// by a single writer goroutine; the JSONL logs remain the source of truth.
type SQLiteIndex struct {
	db  *sql.DB
	log logrus.FieldLogger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick atomic.Uint64
	dropRun  atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqRun
	reqSync
)

type req struct {
	kind reqKind

	tick world.TickLogEntry
	run  runRow
	done chan struct{}
}

type runRow struct {
	RunID        string
	WorldID      string
	StartedAt    string
	TuningJSON   string
	TuningDigest string
}

// pingAgg accumulates one ping from its start tick until it goes inactive.
type pingAgg struct {
	runID     string
	startTick uint64
	x, y      int
	rays      int
	hits      int
	added     int
	dropped   int
	maxRadius int
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	DropTickTotal uint64
	DropRunTotal  uint64
}

func OpenSQLite(path string, logger logrus.FieldLogger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		log: logger.WithField("component", "indexdb"),
		ch:  make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			world_id TEXT NOT NULL,
			started_at TEXT NOT NULL,
			tuning_json TEXT NOT NULL,
			tuning_digest TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			now_ms INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			quality INTEGER NOT NULL,
			pattern TEXT NOT NULL,
			rays INTEGER NOT NULL,
			hits INTEGER NOT NULL,
			added INTEGER NOT NULL,
			dropped INTEGER NOT NULL,
			chart_points INTEGER NOT NULL,
			chart_nodes INTEGER NOT NULL,
			digest TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS pings (
			run_id TEXT NOT NULL,
			start_tick INTEGER NOT NULL,
			end_tick INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			max_radius INTEGER NOT NULL,
			rays INTEGER NOT NULL,
			hits INTEGER NOT NULL,
			added INTEGER NOT NULL,
			dropped INTEGER NOT NULL,
			PRIMARY KEY (run_id, start_tick)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pings_pos ON pings(x, y);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

// RecordRun stores the tuning a run was started with.
func (s *SQLiteIndex) RecordRun(runID, worldID string, tune tuning.Tuning) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	r := runRow{
		RunID:        runID,
		WorldID:      worldID,
		StartedAt:    time.Now().UTC().Format(time.RFC3339Nano),
		TuningJSON:   string(b),
		TuningDigest: hex.EncodeToString(sum[:]),
	}
	select {
	case s.ch <- req{kind: reqRun, run: r}:
	default:
		s.dropRun.Add(1)
	}
	return nil
}

// Sync blocks until every write queued before it is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTickTotal: s.dropTick.Load(),
		DropRunTotal:  s.dropRun.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run_id,tick,now_ms,x,y,quality,pattern,rays,hits,added,dropped,chart_points,chart_nodes,digest,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertPing, _ := s.db.Prepare(`INSERT OR REPLACE INTO pings(run_id,start_tick,end_tick,x,y,max_radius,rays,hits,added,dropped) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,world_id,started_at,tuning_json,tuning_digest) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertPing, insertRun} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		ping     *pingAgg
		lastTick uint64
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.WithError(err).Warn("index begin tx failed")
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.log.WithError(err).Warn("index commit failed")
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		s.log.WithError(err).Warn("index write failed; rolling back batch")
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	writePing := func(endTick uint64) error {
		if ping == nil || insertPing == nil {
			return nil
		}
		p := ping
		ping = nil
		_, err := tx.Stmt(insertPing).Exec(p.runID, int64(p.startTick), int64(endTick), p.x, p.y, p.maxRadius, p.rays, p.hits, p.added, p.dropped)
		return err
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRun:
			if insertRun == nil {
				continue
			}
			if _, err := tx.Stmt(insertRun).Exec(r.run.RunID, r.run.WorldID, r.run.StartedAt, r.run.TuningJSON, r.run.TuningDigest); err != nil {
				rollback(err)
				continue
			}
			opCount++

		case reqTick:
			e := r.tick
			lastTick = e.Tick
			b, _ := json.Marshal(e)
			if insertTick != nil {
				if _, err := tx.Stmt(insertTick).Exec(
					e.RunID, int64(e.Tick), int64(e.NowMs), e.X, e.Y,
					e.Quality, e.Pattern, e.Rays, e.Hits, e.Added, e.Dropped,
					e.ChartPoints, e.ChartNodes, e.Digest, string(b),
				); err != nil {
					rollback(err)
					continue
				}
				opCount++
			}

			if e.PingStarted {
				// A new ping replaces one that never reported its end.
				if err := writePing(e.Tick); err != nil {
					rollback(err)
					continue
				}
				ping = &pingAgg{runID: e.RunID, startTick: e.Tick, x: e.X, y: e.Y}
			}
			if ping != nil {
				ping.rays += e.Rays
				ping.hits += e.Hits
				ping.added += e.Added
				ping.dropped += e.Dropped
				if e.PingRadius > ping.maxRadius {
					ping.maxRadius = e.PingRadius
				}
				if !e.PingActive {
					if err := writePing(e.Tick); err != nil {
						rollback(err)
						continue
					}
					opCount++
				}
			}
		}
		flushIfNeeded()
	}

	if ping != nil {
		begin()
		if tx != nil {
			if err := writePing(lastTick); err != nil {
				s.log.WithError(err).WithField("tick", lastTick).Warn("index ping flush failed on close")
			}
		}
	}
	commit()
}
