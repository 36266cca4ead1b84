package tsne

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func exactRepulsion(y []float64, i int) (fx, fy, sumQ float64) {
	for j := 0; j < len(y)/2; j++ {
		if j == i {
			continue
		}
		dx, dy := y[2*i]-y[2*j], y[2*i+1]-y[2*j+1]
		q := 1 / (1 + dx*dx + dy*dy)
		fx += q * q * dx
		fy += q * q * dy
		sumQ += q
	}
	return fx, fy, sumQ
}

func TestQuadTreeExactWhenThetaIsZero(t *testing.T) {
	y := []float64{0, 0, 1, 2, -3, 0.5, 4, -1, 0.25, 0.25, 2, 2}
	tree := buildQuadTree(y, nil)
	assert.Equal(t, 6, tree.nodes[0].count)

	for i := 0; i < len(y)/2; i++ {
		fx, fy, q := tree.repulsion(y[2*i], y[2*i+1], 0)
		ex, ey, eq := exactRepulsion(y, i)
		assert.InDelta(t, ex, fx, 1e-12)
		assert.InDelta(t, ey, fy, 1e-12)
		assert.InDelta(t, eq, q, 1e-12)
	}
}

func TestQuadTreeMergesCoincidentPoints(t *testing.T) {
	y := []float64{1, 1, 1, 1, 1, 1, 5, 5}
	tree := buildQuadTree(y, nil)
	assert.Equal(t, 4, tree.nodes[0].count)

	fx, fy, q := tree.repulsion(1, 1, 0.5)
	ex, ey, eq := exactRepulsion(y, 0)
	assert.InDelta(t, ex, fx, 1e-12)
	assert.InDelta(t, ey, fy, 1e-12)
	assert.InDelta(t, eq, q, 1e-12)
}

func TestQuadTreeApproximationIsClose(t *testing.T) {
	var y []float64
	for i := range 200 {
		a := float64(i) * 0.7
		y = append(y, 10*math.Cos(a)*float64(i%7), 10*math.Sin(a)*float64(i%5))
	}
	tree := buildQuadTree(y, nil)
	for _, i := range []int{0, 50, 199} {
		_, _, q := tree.repulsion(y[2*i], y[2*i+1], 0.5)
		_, _, eq := exactRepulsion(y, i)
		assert.InEpsilon(t, eq, q, 0.05)
	}
}
