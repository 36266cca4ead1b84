package tsne

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// initialLayout returns the flattened starting positions. PCA falls back to a seeded random
// layout when the data has no variance along its first principal component.
func initialLayout(x [][]float64, init Init, seed int64) []float64 {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
	if init == InitPCA {
		if y, ok := pcaLayout(x, rng); ok {
			return y
		}
	}
	return randomLayout(len(x), rng)
}

func randomLayout(n int, rng *rand.Rand) []float64 {
	y := make([]float64, 2*n)
	for k := range y {
		y[k] = initScale * rng.NormFloat64()
	}
	return y
}

// pcaLayout projects the centered data on its first two principal components and rescales
// so that the first coordinate has standard deviation 1e-4.
func pcaLayout(x [][]float64, rng *rand.Rand) ([]float64, bool) {
	n, d := len(x), len(x[0])
	if d == 0 {
		return nil, false
	}

	data := mat.NewDense(n, d, nil)
	means := make([]float64, d)
	for i, row := range x {
		for k, v := range row {
			data.Set(i, k, v)
			means[k] += v
		}
	}
	for k := range means {
		means[k] /= float64(n)
	}
	for i := range n {
		for k := range d {
			data.Set(i, k, data.At(i, k)-means[k])
		}
	}

	var pc stat.PC
	if !pc.PrincipalComponents(data, nil) {
		return nil, false
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	_, comps := vecs.Dims()

	var proj mat.Dense
	proj.Mul(data, &vecs)

	y := make([]float64, 2*n)
	for i := range n {
		y[2*i] = proj.At(i, 0)
		if comps > 1 {
			y[2*i+1] = proj.At(i, 1)
		} else {
			y[2*i+1] = initScale * rng.NormFloat64()
		}
	}

	xs := make([]float64, n)
	for i := range n {
		xs[i] = y[2*i]
	}
	sd := stat.PopStdDev(xs, nil)
	if sd == 0 || math.IsNaN(sd) {
		return nil, false
	}
	scale := initScale / sd
	for i := range n {
		y[2*i] *= scale
		if comps > 1 {
			y[2*i+1] *= scale
		}
	}
	return y, true
}
