package indexdb

import (
	"context"
	"database/sql"
)

type RunSummary struct {
	RunID          string
	Ticks          int
	FirstTick      uint64
	LastTick       uint64
	Pings          int
	MaxChartPoints int
	TotalAdded     int
	TotalDropped   int
	QualityLevels  map[int]int // ticks spent at each quality
	LastDigest     string
}

type PingRow struct {
	StartTick uint64
	EndTick   uint64
	X, Y      int
	MaxRadius int
	Rays      int
	Hits      int
	Added     int
	Dropped   int
}

// Summary aggregates the indexed ticks of one run. Call Sync first to see
// writes that may still be queued.
func (s *SQLiteIndex) Summary(ctx context.Context, runID string) (RunSummary, error) {
	out := RunSummary{RunID: runID, QualityLevels: map[int]int{}}

	var first, last, maxPts, added, dropped sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), MIN(tick), MAX(tick), MAX(chart_points), SUM(added), SUM(dropped) FROM ticks WHERE run_id=?`, runID).
		Scan(&out.Ticks, &first, &last, &maxPts, &added, &dropped)
	if err != nil {
		return out, err
	}
	out.FirstTick = uint64(first.Int64)
	out.LastTick = uint64(last.Int64)
	out.MaxChartPoints = int(maxPts.Int64)
	out.TotalAdded = int(added.Int64)
	out.TotalDropped = int(dropped.Int64)

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pings WHERE run_id=?`, runID).Scan(&out.Pings); err != nil {
		return out, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT quality, COUNT(*) FROM ticks WHERE run_id=? GROUP BY quality`, runID)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var q, n int
		if err := rows.Scan(&q, &n); err != nil {
			return out, err
		}
		out.QualityLevels[q] = n
	}
	if err := rows.Err(); err != nil {
		return out, err
	}

	if out.Ticks > 0 {
		err = s.db.QueryRowContext(ctx, `SELECT digest FROM ticks WHERE run_id=? AND tick=?`, runID, int64(out.LastTick)).Scan(&out.LastDigest)
		if err != nil && err != sql.ErrNoRows {
			return out, err
		}
	}
	return out, nil
}

func (s *SQLiteIndex) Pings(ctx context.Context, runID string) ([]PingRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT start_tick,end_tick,x,y,max_radius,rays,hits,added,dropped FROM pings WHERE run_id=? ORDER BY start_tick`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PingRow
	for rows.Next() {
		var p PingRow
		var start, end int64
		if err := rows.Scan(&start, &end, &p.X, &p.Y, &p.MaxRadius, &p.Rays, &p.Hits, &p.Added, &p.Dropped); err != nil {
			return nil, err
		}
		p.StartTick, p.EndTick = uint64(start), uint64(end)
		out = append(out, p)
	}
	return out, rows.Err()
}

// RunTuning returns the stored tuning JSON and digest for a run.
func (s *SQLiteIndex) RunTuning(ctx context.Context, runID string) (string, string, error) {
	var js, digest string
	err := s.db.QueryRowContext(ctx, `SELECT tuning_json, tuning_digest FROM runs WHERE run_id=?`, runID).Scan(&js, &digest)
	return js, digest, err
}
