package raycast

// line is an integer Bresenham walk from (x, y) to (x1, y1). Each step moves
// to an 8-connected neighbour.
type line struct {
	x, y   int
	x1, y1 int
	dx, dy int // dy is stored negated
	sx, sy int
	err    int
}

func newLine(x0, y0, x1, y1 int) line {
	l := line{x: x0, y: y0, x1: x1, y1: y1, sx: 1, sy: 1}
	l.dx = x1 - x0
	if l.dx < 0 {
		l.dx = -l.dx
		l.sx = -1
	}
	l.dy = y1 - y0
	if l.dy > 0 {
		l.dy = -l.dy
	} else {
		l.sy = -1
	}
	l.err = l.dx + l.dy
	return l
}

func (l *line) done() bool { return l.x == l.x1 && l.y == l.y1 }

func (l *line) step() {
	e2 := 2 * l.err
	if e2 >= l.dy {
		l.err += l.dy
		l.x += l.sx
	}
	if e2 <= l.dx {
		l.err += l.dx
		l.y += l.sy
	}
}

// lineLength is the number of steps newLine needs to reach its end.
func lineLength(x0, y0, x1, y1 int) int {
	dx, dy := x1-x0, y1-y0
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

// endpoint projects maxDist steps along dir, truncating toward zero.
func endpoint(ox, oy int, dir Direction, maxDist int) (int, int) {
	return ox + int(dir.DX)*maxDist/FixedPointScale, oy + int(dir.DY)*maxDist/FixedPointScale
}

// Trace replays the cells a CastRay with the same arguments would step
// through, calling visit for the origin (step 0) and each following cell up
// to and including step steps.
func Trace(ox, oy int, dir Direction, maxDist, steps int, visit func(step, x, y int)) {
	visit(0, ox, oy)
	if dir.IsZero() || maxDist <= 0 {
		return
	}
	if steps > maxDist {
		steps = maxDist
	}
	ex, ey := endpoint(ox, oy, dir, maxDist)
	l := newLine(ox, oy, ex, ey)
	for i := 1; i <= steps && !l.done(); i++ {
		l.step()
		visit(i, l.x, l.y)
	}
}
