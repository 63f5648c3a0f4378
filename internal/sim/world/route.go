package world

import "sonarchart/internal/sim/world/logic/mathx"

// route walks the observer along a closed polyline, moving at most
// cellsPerTick cells per tick with 8-connected steps.
type route struct {
	waypoints    [][2]int
	cellsPerTick int

	x, y int
	next int
}

func newRoute(cfg RouteConfig) *route {
	r := &route{cellsPerTick: cfg.CellsPerTick}
	r.waypoints = append(r.waypoints, cfg.Waypoints...)
	if len(r.waypoints) > 0 {
		r.x, r.y = r.waypoints[0][0], r.waypoints[0][1]
		r.next = 1 % len(r.waypoints)
	}
	return r
}

func (r *route) pos() (int, int) { return r.x, r.y }

func (r *route) advance() {
	if len(r.waypoints) < 2 {
		return
	}
	budget := r.cellsPerTick
	// A degenerate loop where every waypoint is the same cell never arrives
	// anywhere new; cap the waypoint hops per tick.
	hops := 0
	for budget > 0 && hops <= len(r.waypoints) {
		tx, ty := r.waypoints[r.next][0], r.waypoints[r.next][1]
		if r.x == tx && r.y == ty {
			r.next = (r.next + 1) % len(r.waypoints)
			hops++
			continue
		}
		r.x += sign(tx - r.x)
		r.y += sign(ty - r.y)
		budget--
	}
}

// remaining is the Chebyshev distance to the next waypoint.
func (r *route) remaining() int {
	if len(r.waypoints) < 2 {
		return 0
	}
	tx, ty := r.waypoints[r.next][0], r.waypoints[r.next][1]
	dx, dy := mathx.AbsInt(tx-r.x), mathx.AbsInt(ty-r.y)
	if dx > dy {
		return dx
	}
	return dy
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
