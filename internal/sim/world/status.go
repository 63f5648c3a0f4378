package world

// Status is a read-only snapshot published after every tick. It is safe to
// read from any goroutine.
type Status struct {
	WorldID string `json:"world_id"`
	RunID   string `json:"run_id,omitempty"`
	Tick    uint64 `json:"tick"`
	NowMs   uint64 `json:"now_ms"`

	X         int `json:"x"`
	Y         int `json:"y"`
	ToNextWay int `json:"to_next_waypoint"`

	PingActive bool   `json:"ping_active"`
	PingRadius int    `json:"ping_radius"`
	Quality    int    `json:"quality"`
	Pattern    string `json:"pattern,omitempty"`

	ChartPoints        int    `json:"chart_points"`
	ChartNodes         int    `json:"chart_nodes"`
	FailedSubdivisions uint64 `json:"failed_subdivisions"`
	Overflowed         uint64 `json:"overflowed"`

	TilesActive  int    `json:"tiles_active"`
	LoadFailures uint64 `json:"tile_load_failures"`

	Observers int    `json:"observers"`
	Digest    string `json:"digest,omitempty"`
}

func (w *World) Status() Status {
	if p := w.status.Load(); p != nil {
		return *p
	}
	return Status{WorldID: w.ID()}
}

func (w *World) publishStatus(tick uint64, e TickLogEntry) {
	cs := w.pipe.Chart().Stats()
	ss := w.pipe.Chunks().Stats()
	ping := w.pipe.Ping()
	x, y := w.route.pos()
	st := &Status{
		WorldID:            w.cfg.ID,
		RunID:              w.cfg.RunID,
		Tick:               tick,
		NowMs:              e.NowMs,
		X:                  x,
		Y:                  y,
		ToNextWay:          w.route.remaining(),
		PingActive:         ping.Active,
		PingRadius:         ping.Radius,
		Quality:            w.pipe.Caster().Quality(),
		Pattern:            e.Pattern,
		ChartPoints:        cs.Points,
		ChartNodes:         cs.Nodes,
		FailedSubdivisions: cs.FailedSubdivisions,
		Overflowed:         cs.Overflowed,
		TilesActive:        ss.SlotsInUse,
		LoadFailures:       ss.LoadFailures,
		Observers:          len(w.observers),
		Digest:             e.Digest,
	}
	w.status.Store(st)
}
