package tsne

import (
	"math"
	"sort"
	"sync"
)

const (
	perplexityTol    = 1e-5
	maxBinarySteps   = 100
	chunkSize        = 256
	minConditionalSP = 1e-8
)

// conditionalRow fills out with p(j|i) for the given squared distances, searching the Gaussian
// precision so that the entropy of the row equals log(perplexity).
func conditionalRow(dist []float64, perplexity float64, out []float64) {
	desired := math.Log(perplexity)
	beta := 1.0
	betaMin, betaMax := math.Inf(-1), math.Inf(1)

	for range maxBinarySteps {
		sumP := 0.0
		for j, d := range dist {
			out[j] = math.Exp(-d * beta)
			sumP += out[j]
		}
		if sumP == 0 {
			sumP = minConditionalSP
		}
		sumDP := 0.0
		for j, d := range dist {
			out[j] /= sumP
			sumDP += d * out[j]
		}

		entropy := math.Log(sumP) + beta*sumDP
		diff := entropy - desired
		if math.Abs(diff) <= perplexityTol {
			return
		}
		if diff > 0 {
			betaMin = beta
			if math.IsInf(betaMax, 1) {
				beta *= 2
			} else {
				beta = (beta + betaMax) / 2
			}
		} else {
			betaMax = beta
			if math.IsInf(betaMin, -1) {
				beta /= 2
			} else {
				beta = (beta + betaMin) / 2
			}
		}
	}
}

// forChunks runs fn over fixed-size row chunks on a pool of workers. Chunk boundaries do not
// depend on the worker count, so per-chunk partial sums reduce identically for any pool size.
func forChunks(n, workers int, fn func(chunk, lo, hi int)) int {
	chunks := (n + chunkSize - 1) / chunkSize
	chunkCh := make(chan int, chunks)
	for c := range chunks {
		chunkCh <- c
	}
	close(chunkCh)

	var wg sync.WaitGroup
	for range min(workers, chunks) {
		wg.Go(func() {
			for c := range chunkCh {
				lo := c * chunkSize
				fn(c, lo, min(lo+chunkSize, n))
			}
		})
	}
	wg.Wait()
	return chunks
}

func sum(parts []float64) float64 {
	var s float64
	for _, p := range parts {
		s += p
	}
	return s
}

// denseAffinities returns the symmetric joint probabilities over all pairs, row-major n×n.
func denseAffinities(x [][]float64, perplexity float64, workers int) []float64 {
	n := len(x)
	cond := make([]float64, n*n)
	forChunks(n, workers, func(_, lo, hi int) {
		dist := make([]float64, n-1)
		out := make([]float64, n-1)
		for i := lo; i < hi; i++ {
			k := 0
			for j := range n {
				if j != i {
					dist[k] = sqDist(x[i], x[j])
					k++
				}
			}
			conditionalRow(dist, perplexity, out)
			k = 0
			for j := range n {
				if j != i {
					cond[i*n+j] = out[k]
					k++
				}
			}
		}
	})

	p := make([]float64, n*n)
	var total float64
	for i := range n {
		for j := range n {
			v := cond[i*n+j] + cond[j*n+i]
			p[i*n+j] = v
			total += v
		}
	}
	total = math.Max(total, machineEpsilon)
	for k := range p {
		p[k] = math.Max(p[k]/total, machineEpsilon)
	}
	for i := range n {
		p[i*n+i] = 0
	}
	return p
}

// sparseP is a symmetric joint probability matrix in compressed sparse row form.
type sparseP struct {
	rowPtr []int
	cols   []int
	vals   []float64
}

type neighbor struct {
	idx  int
	dist float64
}

// less orders neighbors by distance, then by index for stable results.
func (a neighbor) less(b neighbor) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.idx < b.idx
}

// nearestNeighbors returns the k nearest rows of row i by squared distance, using a bounded max-heap.
func nearestNeighbors(x [][]float64, i, k int, heap []neighbor) []neighbor {
	heap = heap[:0]
	for j := range x {
		if j == i {
			continue
		}
		cand := neighbor{idx: j, dist: sqDist(x[i], x[j])}
		if len(heap) < k {
			heap = append(heap, cand)
			siftUp(heap, len(heap)-1)
			continue
		}
		if cand.less(heap[0]) {
			heap[0] = cand
			siftDown(heap, 0)
		}
	}
	sort.Slice(heap, func(a, b int) bool { return heap[a].less(heap[b]) })
	return heap
}

func siftUp(h []neighbor, i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h[parent].less(h[i]) {
			return
		}
		h[parent], h[i] = h[i], h[parent]
		i = parent
	}
}

func siftDown(h []neighbor, i int) {
	for {
		largest := i
		l, r := 2*i+1, 2*i+2
		if l < len(h) && h[largest].less(h[l]) {
			largest = l
		}
		if r < len(h) && h[largest].less(h[r]) {
			largest = r
		}
		if largest == i {
			return
		}
		h[i], h[largest] = h[largest], h[i]
		i = largest
	}
}

// sparseAffinities computes joint probabilities restricted to the 3·perplexity nearest neighbors.
func sparseAffinities(x [][]float64, perplexity float64, workers int) *sparseP {
	n := len(x)
	k := min(n-1, int(neighborsPerPerplex*perplexity+1))

	nbrIdx := make([][]int, n)
	nbrVal := make([][]float64, n)
	forChunks(n, workers, func(_, lo, hi int) {
		heap := make([]neighbor, 0, k)
		dist := make([]float64, k)
		for i := lo; i < hi; i++ {
			heap = nearestNeighbors(x, i, k, heap)
			idx := make([]int, k)
			for j, nb := range heap {
				idx[j] = nb.idx
				dist[j] = nb.dist
			}
			out := make([]float64, k)
			conditionalRow(dist, perplexity, out)
			nbrIdx[i] = idx
			nbrVal[i] = out
		}
	})

	// Symmetrize: P = cond + condᵀ, then normalize to sum 1.
	rows := make([]map[int]float64, n)
	for i := range rows {
		rows[i] = make(map[int]float64, 2*k)
	}
	for i := range n {
		for j, col := range nbrIdx[i] {
			v := nbrVal[i][j]
			rows[i][col] += v
			rows[col][i] += v
		}
	}

	p := &sparseP{rowPtr: make([]int, n+1)}
	var total float64
	for i, row := range rows {
		cols := make([]int, 0, len(row))
		for c := range row {
			cols = append(cols, c)
		}
		sort.Ints(cols)
		for _, c := range cols {
			p.cols = append(p.cols, c)
			p.vals = append(p.vals, row[c])
			total += row[c]
		}
		p.rowPtr[i+1] = len(p.cols)
	}
	total = math.Max(total, machineEpsilon)
	for k := range p.vals {
		p.vals[k] /= total
	}
	return p
}
