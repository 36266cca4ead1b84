// Package tsne projects high-dimensional rows to 2-D with t-distributed stochastic neighbor embedding.
package tsne

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

// Method selects how gradients are computed.
type Method string

// Supported gradient methods.
const (
	BarnesHut Method = "barnes_hut"
	Exact     Method = "exact"
)

// Init selects the starting layout.
type Init string

// Supported initializations.
const (
	InitPCA    Init = "pca"
	InitRandom Init = "random"
)

// Optimizer constants.
const (
	explorationIters     = 250
	iterCheck            = 50
	iterWithoutProgress  = 300
	minGradNorm          = 1e-7
	minGain              = 0.01
	initialMomentum      = 0.5
	finalMomentum        = 0.8
	minAutoLearningRate  = 50.0
	initScale            = 1e-4
	machineEpsilon       = 1e-12
	defaultTheta         = 0.5
	defaultExaggeration  = 12.0
	neighborsPerPerplex  = 3
	minimumIterationsRun = explorationIters
)

// Options configures a projection. The zero value of every field selects its default.
type Options struct {
	Perplexity        float64
	MaxIter           int
	Init              Init
	Method            Method
	Theta             float64
	EarlyExaggeration float64
	LearningRate      float64 // 0 selects max(N / EarlyExaggeration / 4, 50)
	Seed              int64
	Workers           int
}

// DefaultOptions returns the parameters used by a regular meta run.
func DefaultOptions() Options {
	return Options{
		Perplexity:        contract.DefaultPerplexity,
		MaxIter:           contract.DefaultMaxIter,
		Init:              InitPCA,
		Method:            BarnesHut,
		Theta:             defaultTheta,
		EarlyExaggeration: defaultExaggeration,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Perplexity == 0 {
		o.Perplexity = d.Perplexity
	}
	if o.MaxIter == 0 {
		o.MaxIter = d.MaxIter
	}
	if o.Init == "" {
		o.Init = d.Init
	}
	if o.Method == "" {
		o.Method = d.Method
	}
	if o.Theta == 0 {
		o.Theta = d.Theta
	}
	if o.EarlyExaggeration == 0 {
		o.EarlyExaggeration = d.EarlyExaggeration
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

func (o Options) validate() error {
	switch {
	case o.Perplexity <= 0:
		return contract.ConfigurationError("perplexity must be positive, got %g", o.Perplexity)
	case o.MaxIter < minimumIterationsRun:
		return contract.ConfigurationError("max iterations must be at least %d, got %d", minimumIterationsRun, o.MaxIter)
	case o.Theta < 0 || o.Theta > 1:
		return contract.ConfigurationError("theta must be within [0, 1], got %g", o.Theta)
	case o.EarlyExaggeration < 1:
		return contract.ConfigurationError("early exaggeration must be at least 1, got %g", o.EarlyExaggeration)
	case o.LearningRate < 0:
		return contract.ConfigurationError("learning rate must not be negative, got %g", o.LearningRate)
	}
	switch o.Method {
	case BarnesHut, Exact:
	default:
		return contract.ConfigurationError("unknown method %q", o.Method)
	}
	switch o.Init {
	case InitPCA, InitRandom:
	default:
		return contract.ConfigurationError("unknown init %q", o.Init)
	}
	return nil
}

// AutoLearningRate is the learning rate chosen when Options.LearningRate is 0.
func AutoLearningRate(n int, exaggeration float64) float64 {
	return math.Max(float64(n)/exaggeration/4, minAutoLearningRate)
}

// Project embeds the rows of x into the plane. The output has one point per row, in row order.
// The input is never modified. Results are reproducible for a fixed Seed and Workers count
// does not change them.
func Project(ctx context.Context, x [][]float64, opts Options) ([]schema.Point, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	n := len(x)
	if n < 2 {
		return nil, contract.InsufficientDataError("projection needs at least 2 matches, got %d", n)
	}
	if opts.Perplexity >= float64(n) {
		return nil, contract.InsufficientDataError("perplexity %g must be lower than the number of matches (%d)", opts.Perplexity, n)
	}
	d := len(x[0])
	for i, row := range x {
		if len(row) != d {
			return nil, contract.AlignmentError("row %d has %d columns, expected %d", i, len(row), d)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, contract.ConfigurationError("row %d contains a non-finite value", i)
			}
		}
	}

	var obj objective
	if opts.Method == Exact {
		obj = newExactObjective(x, opts.Perplexity, opts.Workers)
	} else {
		obj = newBarnesHutObjective(x, opts.Perplexity, opts.Theta, opts.Workers)
	}

	y := initialLayout(x, opts.Init, opts.Seed)
	lr := opts.LearningRate
	if lr == 0 {
		lr = AutoLearningRate(n, opts.EarlyExaggeration)
	}

	opt := &optimizer{
		obj:          obj,
		y:            y,
		update:       make([]float64, len(y)),
		gains:        ones(len(y)),
		grad:         make([]float64, len(y)),
		learningRate: lr,
	}

	obj.scaleP(opts.EarlyExaggeration)
	last, err := opt.run(ctx, 0, explorationIters, initialMomentum, explorationIters)
	if err != nil {
		return nil, err
	}
	obj.scaleP(1 / opts.EarlyExaggeration)
	if opts.MaxIter > explorationIters {
		if _, err := opt.run(ctx, last+1, opts.MaxIter, finalMomentum, iterWithoutProgress); err != nil {
			return nil, err
		}
	}

	points := make([]schema.Point, n)
	for i := range points {
		points[i] = schema.Point{X: y[2*i], Y: y[2*i+1]}
	}
	return points, nil
}

// objective computes the KL divergence gradient of a layout.
type objective interface {
	// gradient writes dC/dy into grad and returns the divergence when withError is set.
	gradient(y, grad []float64, withError bool) float64
	scaleP(factor float64)
}

type optimizer struct {
	obj          objective
	y            []float64
	update       []float64
	gains        []float64
	grad         []float64
	learningRate float64
}

// run performs gradient descent with momentum and per-parameter gains over iterations [start, end).
// It returns the last iteration executed.
func (o *optimizer) run(ctx context.Context, start, end int, momentum float64, patience int) (int, error) {
	bestError := math.MaxFloat64
	bestIter := start
	i := start
	for ; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return i, fmt.Errorf("projection interrupted at iteration %d: %w", i, err)
		}

		check := (i+1)%iterCheck == 0
		kl := o.obj.gradient(o.y, o.grad, check || i == end-1)

		for k, g := range o.grad {
			if o.update[k]*g < 0 {
				o.gains[k] += 0.2
			} else {
				o.gains[k] *= 0.8
			}
			if o.gains[k] < minGain {
				o.gains[k] = minGain
			}
			g *= o.gains[k]
			o.grad[k] = g
			o.update[k] = momentum*o.update[k] - o.learningRate*g
			o.y[k] += o.update[k]
		}

		if check {
			if kl < bestError {
				bestError = kl
				bestIter = i
			} else if i-bestIter > patience {
				break
			}
			if norm(o.grad) <= minGradNorm {
				break
			}
		}
	}
	return min(i, end-1), nil
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func sqDist(a, b []float64) float64 {
	var s float64
	for k := range a {
		diff := a[k] - b[k]
		s += diff * diff
	}
	return s
}
