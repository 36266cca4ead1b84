package tsne

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

// twoGroups returns size rows near (2, 0, 0) followed by size rows near (0, 2, 1).
func twoGroups(size int) [][]float64 {
	x := make([][]float64, 0, 2*size)
	for i := range size {
		jitter := float64(i%3) * 0.01
		x = append(x, []float64{2 + jitter, 0, 0})
	}
	for i := range size {
		jitter := float64(i%3) * 0.01
		x = append(x, []float64{0, 2 + jitter, 1})
	}
	return x
}

func centroid(points []schema.Point) schema.Point {
	var c schema.Point
	for _, p := range points {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= float64(len(points))
	c.Y /= float64(len(points))
	return c
}

func spread(points []schema.Point, c schema.Point) float64 {
	var worst float64
	for _, p := range points {
		worst = math.Max(worst, math.Hypot(p.X-c.X, p.Y-c.Y))
	}
	return worst
}

func TestProjectSeparatesGroups(t *testing.T) {
	for _, method := range []Method{Exact, BarnesHut} {
		t.Run(string(method), func(t *testing.T) {
			x := twoGroups(15)
			points, err := Project(context.Background(), x, Options{Perplexity: 5, MaxIter: 500, Method: method, Seed: 7})
			require.NoError(t, err)
			require.Len(t, points, len(x))

			a, b := points[:15], points[15:]
			ca, cb := centroid(a), centroid(b)
			gap := math.Hypot(ca.X-cb.X, ca.Y-cb.Y)
			assert.Greater(t, gap, spread(a, ca)+spread(b, cb))
		})
	}
}

func TestProjectIsDeterministic(t *testing.T) {
	x := twoGroups(10)
	opts := Options{Perplexity: 4, MaxIter: 300, Seed: 42}

	first, err := Project(context.Background(), x, opts)
	require.NoError(t, err)

	opts.Workers = 1
	second, err := Project(context.Background(), x, opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestProjectDoesNotMutateInput(t *testing.T) {
	x := twoGroups(5)
	before := twoGroups(5)
	_, err := Project(context.Background(), x, Options{Perplexity: 3, MaxIter: 260})
	require.NoError(t, err)
	assert.Equal(t, before, x)
}

func TestProjectErrors(t *testing.T) {
	tests := []struct {
		name string
		x    [][]float64
		opts Options
		kind contract.Kind
	}{
		{"perplexity equals rows", twoGroups(5), Options{Perplexity: 10}, contract.InsufficientDataKind},
		{"perplexity above rows", twoGroups(5), Options{Perplexity: 20}, contract.InsufficientDataKind},
		{"single row", [][]float64{{1}}, Options{Perplexity: 0.5}, contract.InsufficientDataKind},
		{"no rows", nil, Options{}, contract.InsufficientDataKind},
		{"ragged rows", [][]float64{{1, 2}, {1}, {3, 4}}, Options{Perplexity: 1}, contract.AlignmentKind},
		{"not finite", [][]float64{{1}, {math.NaN()}, {3}}, Options{Perplexity: 1}, contract.ConfigurationKind},
		{"unknown method", twoGroups(5), Options{Perplexity: 2, Method: "fft"}, contract.ConfigurationKind},
		{"too few iterations", twoGroups(5), Options{Perplexity: 2, MaxIter: 10}, contract.ConfigurationKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Project(context.Background(), tt.x, tt.opts)
			require.Error(t, err)
			assert.Equal(t, tt.kind, contract.ErrorKind(err))
		})
	}
}

func TestProjectHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Project(ctx, twoGroups(10), Options{Perplexity: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProjectConstantData(t *testing.T) {
	x := make([][]float64, 12)
	for i := range x {
		x[i] = []float64{1, 1}
	}
	points, err := Project(context.Background(), x, Options{Perplexity: 3, MaxIter: 260, Seed: 1})
	require.NoError(t, err)
	require.Len(t, points, 12)
	for _, p := range points {
		assert.False(t, math.IsNaN(p.X) || math.IsNaN(p.Y))
	}
}

func TestAutoLearningRate(t *testing.T) {
	assert.Equal(t, 50.0, AutoLearningRate(100, 12))
	assert.Equal(t, 200.0, AutoLearningRate(9600, 12))
}

func TestDefaultOptions(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, 20.0, o.Perplexity)
	assert.Equal(t, 4000, o.MaxIter)
	assert.Equal(t, InitPCA, o.Init)
	assert.Equal(t, BarnesHut, o.Method)
	assert.Equal(t, 0.5, o.Theta)
	assert.Equal(t, 12.0, o.EarlyExaggeration)
	assert.Positive(t, o.Workers)
}
