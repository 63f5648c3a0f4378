package chart

// Arenas are fixed slot arrays addressed by index with a free stack. Nodes are
// only reclaimed wholesale by Reset; points are released by Sweep.

type node struct {
	bounds   Bounds
	depth    uint8
	leaf     bool
	children [4]int32
	points   []int32 // owned point slots; may exceed nominal capacity
}

type nodeArena struct {
	slots []node
	inUse []bool
	free  []int32
}

func newNodeArena(n int) nodeArena {
	a := nodeArena{
		slots: make([]node, n),
		inUse: make([]bool, n),
		free:  make([]int32, 0, n),
	}
	for i := n - 1; i >= 0; i-- {
		a.free = append(a.free, int32(i))
	}
	return a
}

func (a *nodeArena) available() int { return len(a.free) }
func (a *nodeArena) used() int      { return len(a.slots) - len(a.free) }

func (a *nodeArena) alloc(b Bounds, depth uint8) (int32, bool) {
	if len(a.free) == 0 {
		return -1, false
	}
	i := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.inUse[i] = true
	n := &a.slots[i]
	n.bounds = b
	n.depth = depth
	n.leaf = true
	n.children = [4]int32{-1, -1, -1, -1}
	n.points = n.points[:0]
	return i, true
}

type pointArena struct {
	slots []Point
	inUse []bool
	free  []int32
}

func newPointArena(n int) pointArena {
	a := pointArena{
		slots: make([]Point, n),
		inUse: make([]bool, n),
		free:  make([]int32, 0, n),
	}
	for i := n - 1; i >= 0; i-- {
		a.free = append(a.free, int32(i))
	}
	return a
}

func (a *pointArena) used() int { return len(a.slots) - len(a.free) }

func (a *pointArena) alloc() (int32, bool) {
	if len(a.free) == 0 {
		return -1, false
	}
	i := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.inUse[i] = true
	a.slots[i] = Point{}
	return i, true
}

func (a *pointArena) release(i int32) {
	if i < 0 || !a.inUse[i] {
		return
	}
	a.inUse[i] = false
	a.free = append(a.free, i)
}
