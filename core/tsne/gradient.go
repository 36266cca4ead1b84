package tsne

import "math"

type exactObjective struct {
	p       []float64
	n       int
	workers int
}

func newExactObjective(x [][]float64, perplexity float64, workers int) *exactObjective {
	return &exactObjective{p: denseAffinities(x, perplexity, workers), n: len(x), workers: workers}
}

func (e *exactObjective) scaleP(factor float64) {
	for k := range e.p {
		e.p[k] *= factor
	}
}

func (e *exactObjective) gradient(y, grad []float64, withError bool) float64 {
	n := e.n
	chunks := (n + chunkSize - 1) / chunkSize
	partZ := make([]float64, chunks)
	forChunks(n, e.workers, func(c, lo, hi int) {
		var z float64
		for i := lo; i < hi; i++ {
			for j := range n {
				if j != i {
					z += 1 / (1 + sqDist(y[2*i:2*i+2], y[2*j:2*j+2]))
				}
			}
		}
		partZ[c] = z
	})
	z := math.Max(sum(partZ), machineEpsilon)

	partKL := make([]float64, chunks)
	forChunks(n, e.workers, func(c, lo, hi int) {
		var kl float64
		for i := lo; i < hi; i++ {
			var gx, gy float64
			for j := range n {
				if j == i {
					continue
				}
				dx, dy := y[2*i]-y[2*j], y[2*i+1]-y[2*j+1]
				qu := 1 / (1 + dx*dx + dy*dy)
				pij := e.p[i*n+j]
				qij := math.Max(qu/z, machineEpsilon)
				f := (pij - qij) * qu
				gx += f * dx
				gy += f * dy
				if withError {
					kl += pij * math.Log(math.Max(pij, machineEpsilon)/qij)
				}
			}
			grad[2*i] = 4 * gx
			grad[2*i+1] = 4 * gy
		}
		partKL[c] = kl
	})
	return sum(partKL)
}

type barnesHutObjective struct {
	p       *sparseP
	n       int
	theta   float64
	workers int
	nodes   []quadNode
	negX    []float64
	negY    []float64
}

func newBarnesHutObjective(x [][]float64, perplexity, theta float64, workers int) *barnesHutObjective {
	n := len(x)
	return &barnesHutObjective{
		p:       sparseAffinities(x, perplexity, workers),
		n:       n,
		theta:   theta,
		workers: workers,
		negX:    make([]float64, n),
		negY:    make([]float64, n),
	}
}

func (b *barnesHutObjective) scaleP(factor float64) {
	for k := range b.p.vals {
		b.p.vals[k] *= factor
	}
}

func (b *barnesHutObjective) gradient(y, grad []float64, withError bool) float64 {
	tree := buildQuadTree(y, b.nodes)
	b.nodes = tree.nodes

	chunks := (b.n + chunkSize - 1) / chunkSize
	partZ := make([]float64, chunks)
	forChunks(b.n, b.workers, func(c, lo, hi int) {
		var z float64
		for i := lo; i < hi; i++ {
			fx, fy, q := tree.repulsion(y[2*i], y[2*i+1], b.theta)
			b.negX[i], b.negY[i] = fx, fy
			z += q
		}
		partZ[c] = z
	})
	z := math.Max(sum(partZ), machineEpsilon)

	partKL := make([]float64, chunks)
	forChunks(b.n, b.workers, func(c, lo, hi int) {
		var kl float64
		for i := lo; i < hi; i++ {
			var ax, ay float64
			for k := b.p.rowPtr[i]; k < b.p.rowPtr[i+1]; k++ {
				j := b.p.cols[k]
				pij := b.p.vals[k]
				dx, dy := y[2*i]-y[2*j], y[2*i+1]-y[2*j+1]
				qu := 1 / (1 + dx*dx + dy*dy)
				ax += pij * qu * dx
				ay += pij * qu * dy
				if withError {
					qij := math.Max(qu/z, machineEpsilon)
					kl += pij * math.Log(math.Max(pij, machineEpsilon)/qij)
				}
			}
			grad[2*i] = 4 * (ax - b.negX[i]/z)
			grad[2*i+1] = 4 * (ay - b.negY[i]/z)
		}
		partKL[c] = kl
	})
	return sum(partKL)
}
