package tsne

import "math"

const maxTreeDepth = 64

type quadNode struct {
	cx, cy, hw float64 // cell center and half-width
	comX, comY float64 // center of mass
	count      int
	point      int // first point stored in a leaf, -1 otherwise
	child      int // index of the first of four children, -1 for a leaf
}

// quadTree is a Barnes-Hut space partition of a 2-D layout. Coincident points share one leaf.
type quadTree struct {
	nodes []quadNode
}

// buildQuadTree indexes the flattened layout y (x0, y0, x1, y1, ...). The node slice of a
// previous tree can be passed in to reuse its memory.
func buildQuadTree(y []float64, reuse []quadNode) *quadTree {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := 0; i < len(y); i += 2 {
		minX, maxX = math.Min(minX, y[i]), math.Max(maxX, y[i])
		minY, maxY = math.Min(minY, y[i+1]), math.Max(maxY, y[i+1])
	}
	hw := math.Max(maxX-minX, maxY-minY)/2*(1+1e-5) + 1e-5

	t := &quadTree{nodes: reuse[:0]}
	t.nodes = append(t.nodes, quadNode{cx: (minX + maxX) / 2, cy: (minY + maxY) / 2, hw: hw, point: -1, child: -1})
	for i := 0; i < len(y)/2; i++ {
		t.insert(i, y[2*i], y[2*i+1], y)
	}
	return t
}

func (t *quadTree) quadrant(node int, px, py float64) int {
	nd := &t.nodes[node]
	q := 0
	if px >= nd.cx {
		q |= 1
	}
	if py >= nd.cy {
		q |= 2
	}
	return q
}

func (t *quadTree) subdivide(node int) {
	nd := t.nodes[node]
	half := nd.hw / 2
	first := len(t.nodes)
	for q := range 4 {
		cx, cy := nd.cx-half, nd.cy-half
		if q&1 != 0 {
			cx = nd.cx + half
		}
		if q&2 != 0 {
			cy = nd.cy + half
		}
		t.nodes = append(t.nodes, quadNode{cx: cx, cy: cy, hw: half, point: -1, child: -1})
	}
	t.nodes[node].child = first
}

func (t *quadTree) insert(p int, px, py float64, y []float64) {
	idx := 0
	for depth := 0; ; depth++ {
		nd := &t.nodes[idx]
		c := float64(nd.count)
		nd.comX = (nd.comX*c + px) / (c + 1)
		nd.comY = (nd.comY*c + py) / (c + 1)
		nd.count++

		if nd.child >= 0 {
			idx = nd.child + t.quadrant(idx, px, py)
			continue
		}
		if nd.count == 1 {
			nd.point = p
			return
		}

		q := nd.point
		qx, qy := y[2*q], y[2*q+1]
		if (qx == px && qy == py) || depth >= maxTreeDepth {
			return
		}

		// Push the existing occupants down one level, then keep descending with p.
		prior := nd.count - 1
		t.subdivide(idx)
		nd = &t.nodes[idx]
		nd.point = -1
		c0 := nd.child + t.quadrant(idx, qx, qy)
		t.nodes[c0].count = prior
		t.nodes[c0].comX, t.nodes[c0].comY = qx, qy
		t.nodes[c0].point = q
		idx = nd.child + t.quadrant(idx, px, py)
	}
}

// repulsion returns the unnormalized repulsive force on point (px, py) and its share of the
// normalization Z = Σ 1/(1+d²). Cells smaller than theta times their distance are summarized
// by their center of mass. The point itself is excluded by following its own descent path.
func (t *quadTree) repulsion(px, py, theta float64) (fx, fy, sumQ float64) {
	return t.repulse(0, true, px, py, theta*theta)
}

func (t *quadTree) repulse(node int, onPath bool, px, py, theta2 float64) (fx, fy, sumQ float64) {
	nd := &t.nodes[node]
	if nd.count == 0 {
		return 0, 0, 0
	}
	dx, dy := px-nd.comX, py-nd.comY
	d2 := dx*dx + dy*dy

	if nd.child < 0 {
		c := nd.count
		if onPath {
			c--
		}
		if c == 0 {
			return 0, 0, 0
		}
		q := 1 / (1 + d2)
		w := float64(c) * q
		return w * q * dx, w * q * dy, w
	}

	if !onPath {
		width := 2 * nd.hw
		if width*width < theta2*d2 {
			q := 1 / (1 + d2)
			w := float64(nd.count) * q
			return w * q * dx, w * q * dy, w
		}
	}

	pathChild := -1
	if onPath {
		pathChild = nd.child + t.quadrant(node, px, py)
	}
	first := nd.child
	for k := range 4 {
		c := first + k
		cfx, cfy, cq := t.repulse(c, c == pathChild, px, py, theta2)
		fx += cfx
		fy += cfy
		sumQ += cq
	}
	return fx, fy, sumQ
}
