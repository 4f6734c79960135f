// Package affinity converts per-modality expression matrices into symmetric
// cell-by-cell similarity matrices using a distance metric and a Gaussian
// kernel with local or global bandwidth.
//
// Distance kernels are dispatched through a metric catalog. The Euclidean
// kernel is swapped for a Gonum BLAS implementation at init when the CPU
// supports AVX2; Gonum handles the SIMD dispatch internally.
package affinity

import (
	"math"
	"sync"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/blas/gonum"
	"gonum.org/v1/gonum/stat"
)

// Metric selects the pairwise distance used between cell expression profiles.
type Metric string

const (
	// Euclidean is the plain Euclidean distance on expression columns.
	Euclidean Metric = "euclidean"
	// Correlation is the Pearson correlation distance, 1 - r. Scale-free,
	// which suits antibody-tag counts whose totals vary per cell.
	Correlation Metric = "correlation"
)

type distanceFunc func(a, b []float64) float64

// metricFuncs maps a metric to its implementation. Defaults are pure Go;
// init may override entries with BLAS-backed versions.
var metricFuncs = map[Metric]distanceFunc{
	Euclidean:   euclideanGo,
	Correlation: correlationDistance,
}

func init() {
	if cpuid.CPU.Has(cpuid.AVX2) {
		metricFuncs[Euclidean] = euclideanBLAS
	}
}

// distanceFor returns the implementation for a metric, or false if the
// metric is unknown.
func distanceFor(m Metric) (distanceFunc, bool) {
	fn, ok := metricFuncs[m]
	return fn, ok
}

// diffWorkspace pools scratch slices for the BLAS difference vector so the
// pairwise loop does not allocate per pair.
var diffWorkspace = sync.Pool{
	New: func() interface{} {
		s := make([]float64, 2048)
		return &s
	},
}

var blasEngine = gonum.Implementation{}

// euclideanBLAS computes the Euclidean distance through Gonum BLAS
// (Daxpy + Ddot on a pooled workspace).
func euclideanBLAS(a, b []float64) float64 {
	n := len(a)
	diffPtr := diffWorkspace.Get().(*[]float64)
	defer diffWorkspace.Put(diffPtr)
	if cap(*diffPtr) < n {
		*diffPtr = make([]float64, n)
	}
	diff := (*diffPtr)[:n]

	copy(diff, a)
	blasEngine.Daxpy(n, -1, b, 1, diff, 1)
	dot := blasEngine.Ddot(n, diff, 1, diff, 1)
	return sqrtNonNeg(dot)
}

// euclideanGo is the pure Go reference implementation.
func euclideanGo(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sqrtNonNeg(sum)
}

// correlationDistance is 1 - Pearson(a, b). Callers must reject
// zero-variance profiles before dispatching here.
func correlationDistance(a, b []float64) float64 {
	r := stat.Correlation(a, b, nil)
	d := 1 - r
	if d < 0 {
		// Rounding can push r marginally above 1 for identical profiles.
		return 0
	}
	return d
}

// sqrtNonNeg clamps tiny negative dot products from floating-point error
// before taking the root.
func sqrtNonNeg(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}
