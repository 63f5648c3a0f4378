package chart

import "github.com/sirupsen/logrus"

// find walks the single root-to-leaf path that can hold (x, y), checking the
// own list of every node on the way.
func (c *Chart) find(x, y int32) (int32, bool) {
	ni := c.root
	for ni >= 0 {
		n := &c.nodes.slots[ni]
		for _, pi := range n.points {
			p := &c.points.slots[pi]
			if p.X == x && p.Y == y {
				return pi, true
			}
		}
		if n.leaf {
			return -1, false
		}
		ni = c.childFor(n, x, y)
	}
	return -1, false
}

func (c *Chart) childFor(n *node, x, y int32) int32 {
	for _, ch := range n.children {
		if ch >= 0 && c.nodes.slots[ch].bounds.Contains(x, y) {
			return ch
		}
	}
	return -1
}

// place hands ownership of point pi to the tree below ni. It always succeeds:
// when a full leaf cannot be split the point is appended past capacity.
func (c *Chart) place(ni, pi int32) {
	p := &c.points.slots[pi]
	for {
		n := &c.nodes.slots[ni]
		if n.leaf {
			if len(n.points) < c.cfg.MaxPointsPerNode {
				n.points = append(n.points, pi)
				return
			}
			if !c.subdivide(ni) {
				n.points = append(n.points, pi)
				c.stats.Overflowed++
				return
			}
		}
		ch := c.childFor(n, p.X, p.Y)
		if ch < 0 {
			n.points = append(n.points, pi)
			c.stats.Overflowed++
			return
		}
		ni = ch
	}
}

// subdivide turns leaf ni into an internal node with four children. All four
// child slots are reserved up front; if the arena cannot supply them the node
// is left untouched as a leaf.
func (c *Chart) subdivide(ni int32) bool {
	n := &c.nodes.slots[ni]
	if int(n.depth) >= c.cfg.MaxDepth {
		return false
	}
	quads, ok := n.bounds.Quadrants()
	if !ok {
		return false
	}
	if c.nodes.available() < 4 {
		c.stats.FailedSubdivisions++
		if !c.nodesExhausted {
			c.nodesExhausted = true
			c.log.WithFields(logrus.Fields{
				"depth":  n.depth,
				"nodes":  c.nodes.used(),
				"points": len(n.points),
			}).Warn("node arena exhausted; keeping overfull leaf")
		}
		return false
	}

	for i, q := range quads {
		ch, _ := c.nodes.alloc(q, n.depth+1)
		n.children[i] = ch
	}
	n.leaf = false

	kept := n.points[:0]
	for _, pi := range n.points {
		p := &c.points.slots[pi]
		ch := c.childFor(n, p.X, p.Y)
		if ch < 0 {
			kept = append(kept, pi)
			continue
		}
		child := &c.nodes.slots[ch]
		child.points = append(child.points, pi)
	}
	n.points = kept
	c.stats.Subdivisions++
	return true
}
