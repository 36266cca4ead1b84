// Package dbscan groups projected matches into density-based clusters.
package dbscan

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

// Noise labels points that belong to no cluster.
const Noise = schema.NoiseClusterID

const unvisited = -2

// Cluster labels every point with a cluster id or Noise.
//
// A point is a core point when at least minSamples points, itself included, lie within eps.
// Clusters are the connected sets of core points plus the border points they reach. Cluster ids
// are assigned 0, 1, 2... in the order of each cluster's lowest-index core point, and a border
// point reachable from several clusters joins the one with the lowest id. The result depends
// only on the points, their order and the two parameters.
func Cluster(points []schema.Point, eps float64, minSamples int) ([]int, error) {
	if eps <= 0 || math.IsNaN(eps) || math.IsInf(eps, 0) {
		return nil, contract.ConfigurationError("epsilon must be a positive finite number, got %g", eps)
	}
	if minSamples < 1 {
		return nil, contract.ConfigurationError("min-samples must be at least 1, got %d", minSamples)
	}

	labels := make([]int, len(points))
	if len(points) == 0 {
		return labels, nil
	}

	idx := newIndex(points)
	neighbors := make([][]int, len(points))
	core := make([]bool, len(points))
	for i := range points {
		neighbors[i] = idx.within(points[i], eps)
		core[i] = len(neighbors[i]) >= minSamples
		labels[i] = unvisited
	}

	next := 0
	for i := range points {
		if labels[i] != unvisited || !core[i] {
			continue
		}
		expand(i, next, labels, neighbors, core)
		next++
	}

	for i, l := range labels {
		if l == unvisited {
			labels[i] = Noise
		}
	}
	return labels, nil
}

// expand grows cluster id from a seed core point with a breadth-first walk over core points.
func expand(seed, id int, labels []int, neighbors [][]int, core []bool) {
	labels[seed] = id
	queue := []int{seed}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, q := range neighbors[p] {
			if labels[q] != unvisited {
				continue
			}
			labels[q] = id
			if core[q] {
				queue = append(queue, q)
			}
		}
	}
}

// CountClusters returns the number of distinct non-noise labels and the number of noise points.
func CountClusters(labels []int) (clusters, noise int) {
	seen := make(map[int]struct{})
	for _, l := range labels {
		if l == Noise {
			noise++
			continue
		}
		seen[l] = struct{}{}
	}
	return len(seen), noise
}

// Members groups row indices by cluster id, in row order. Noise is left out.
func Members(labels []int) map[int][]int {
	out := make(map[int][]int)
	for i, l := range labels {
		if l != Noise {
			out[l] = append(out[l], i)
		}
	}
	return out
}

// ClusterIDs returns the non-noise ids present in labels, ascending.
func ClusterIDs(labels []int) []int {
	seen := make(map[int]struct{})
	var ids []int
	for _, l := range labels {
		if l == Noise {
			continue
		}
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			ids = append(ids, l)
		}
	}
	sort.Ints(ids)
	return ids
}

// indexedPoint is a kd-tree point that remembers its row.
type indexedPoint struct {
	row int
	pos kdtree.Point
}

func (p indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.pos.Compare(c.(indexedPoint).pos, d)
}

func (p indexedPoint) Dims() int { return 2 }

// Distance is the squared Euclidean distance, as kdtree expects.
func (p indexedPoint) Distance(c kdtree.Comparable) float64 {
	return p.pos.Distance(c.(indexedPoint).pos)
}

type pointSet []indexedPoint

func (s pointSet) Index(i int) kdtree.Comparable { return s[i] }
func (s pointSet) Len() int                      { return len(s) }
func (s pointSet) Slice(start, end int) kdtree.Interface {
	return s[start:end]
}

func (s pointSet) Pivot(d kdtree.Dim) int {
	p := plane{dim: d, points: s}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

// plane sorts a pointSet along one dimension.
type plane struct {
	dim    kdtree.Dim
	points pointSet
}

func (p plane) Len() int           { return len(p.points) }
func (p plane) Less(i, j int) bool { return p.points[i].pos[p.dim] < p.points[j].pos[p.dim] }
func (p plane) Swap(i, j int)      { p.points[i], p.points[j] = p.points[j], p.points[i] }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{dim: p.dim, points: p.points[start:end]}
}

type index struct {
	tree *kdtree.Tree
}

func newIndex(points []schema.Point) *index {
	// kdtree.New reorders its input, so it gets its own slice.
	set := make(pointSet, len(points))
	for i, p := range points {
		set[i] = indexedPoint{row: i, pos: kdtree.Point{p.X, p.Y}}
	}
	return &index{tree: kdtree.New(set, false)}
}

// within returns the rows at distance <= eps from p, itself included, ascending.
func (x *index) within(p schema.Point, eps float64) []int {
	keeper := kdtree.NewDistKeeper(eps * eps)
	x.tree.NearestSet(keeper, indexedPoint{row: -1, pos: kdtree.Point{p.X, p.Y}})

	rows := make([]int, 0, keeper.Len())
	for _, c := range keeper.Heap {
		if c.Comparable == nil {
			continue
		}
		rows = append(rows, c.Comparable.(indexedPoint).row)
	}
	sort.Ints(rows)
	return rows
}
