package affinity

import (
	"math"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/sanonone/citefuse/pkg/matrix"
	"github.com/sanonone/citefuse/pkg/metrics"
)

// SigmaMode selects how the Gaussian kernel bandwidth is chosen.
type SigmaMode string

const (
	// SigmaLocal derives a per-pair bandwidth from each cell's mean distance
	// to its k nearest neighbors, so dense and sparse regions of the
	// expression space are scaled comparably.
	SigmaLocal SigmaMode = "local"
	// SigmaGlobal uses one bandwidth, the mean of all pairwise distances.
	SigmaGlobal SigmaMode = "global"
)

// Options configures Build.
type Options struct {
	// KNeighbors sets the neighborhood size for local bandwidth estimation.
	KNeighbors int
	// Sigma selects local or global bandwidth. Default SigmaLocal.
	Sigma SigmaMode
	// Metric selects the pairwise distance. Default Euclidean.
	Metric Metric
	// Workers bounds the row-parallel distance computation.
	// 0 means GOMAXPROCS.
	Workers int
}

// Build converts one modality's expression matrix into a symmetric affinity
// matrix. Distances are computed between cell columns, passed through a
// Gaussian kernel, symmetrized, and the diagonal is zeroed.
//
// Zero-distance pairs (identical expression) receive maximal similarity.
// The result is deterministic for a given input and options, regardless of
// how rows are partitioned across workers.
func Build(expr *matrix.Expression, opts Options) (*matrix.Affinity, error) {
	if opts.Sigma == "" {
		opts.Sigma = SigmaLocal
	}
	if opts.Metric == "" {
		opts.Metric = Euclidean
	}

	_, n := expr.Dims()
	if opts.KNeighbors < 1 || opts.KNeighbors > n-1 {
		return nil, &matrix.InvalidParameterError{
			Op: "affinity.Build", Name: "k_neighbors", Value: opts.KNeighbors,
			Reason: "must be in [1, cells-1]",
		}
	}
	dist, ok := distanceFor(opts.Metric)
	if !ok {
		return nil, &matrix.InvalidParameterError{
			Op: "affinity.Build", Name: "metric", Value: string(opts.Metric),
			Reason: "unknown metric",
		}
	}

	cols, err := cellColumns(expr)
	if err != nil {
		return nil, err
	}

	d := pairwiseDistances(cols, dist, opts.Workers)

	w := kernelWeights(d, opts)

	out := matrix.Symmetrize(w)
	for i := 0; i < n; i++ {
		out.Set(i, i, 0)
	}

	aff, err := matrix.NewAffinity(out, expr.Cells())
	if err != nil {
		return nil, err
	}
	metrics.AffinityBuilds.WithLabelValues(string(opts.Metric)).Inc()
	return aff, nil
}

// cellColumns extracts per-cell profiles and rejects constant cells, whose
// correlation distance is undefined.
func cellColumns(expr *matrix.Expression) ([][]float64, error) {
	f, n := expr.Dims()
	cells := expr.Cells()
	cols := make([][]float64, n)
	for j := 0; j < n; j++ {
		col := expr.CellColumn(j, nil)
		constant := true
		for i := 1; i < f; i++ {
			if col[i] != col[0] {
				constant = false
				break
			}
		}
		if constant {
			return nil, &matrix.DegenerateInputError{Op: "affinity.Build", Cell: cells[j]}
		}
		cols[j] = col
	}
	return cols, nil
}

// pairwiseDistances fills the symmetric distance matrix, sharding rows
// across a bounded worker pool. Each worker owns disjoint rows, so no
// locking is needed on the shared result.
func pairwiseDistances(cols [][]float64, dist distanceFunc, workers int) [][]float64 {
	n := len(cols)
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(start int) {
			defer wg.Done()
			for i := start; i < n; i += workers {
				for j := i + 1; j < n; j++ {
					v := dist(cols[i], cols[j])
					d[i][j] = v
				}
			}
		}(w)
	}
	wg.Wait()

	// Mirror the upper triangle once the workers are done.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d[j][i] = d[i][j]
		}
	}
	return d
}

// kernelWeights applies the Gaussian kernel with the configured bandwidth.
func kernelWeights(d [][]float64, opts Options) *mat.Dense {
	n := len(d)
	w := mat.NewDense(n, n, nil)

	switch opts.Sigma {
	case SigmaGlobal:
		sigma := globalSigma(d)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				w.Set(i, j, gaussian(d[i][j], sigma))
			}
		}
	default: // SigmaLocal
		mu := knnMeanDistances(d, opts.KNeighbors)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				// Pairwise bandwidth blends both cells' local scales with
				// the distance itself, the usual SNF local scaling.
				sigma := (mu[i] + mu[j] + d[i][j]) / 3
				w.Set(i, j, gaussian(d[i][j], sigma))
			}
		}
	}
	return w
}

// gaussian evaluates exp(-d² / 2σ²). A zero bandwidth only occurs when the
// distance itself is zero; that pair gets maximal similarity.
func gaussian(d, sigma float64) float64 {
	if sigma == 0 {
		return 1
	}
	return math.Exp(-(d * d) / (2 * sigma * sigma))
}

// knnMeanDistances returns, per cell, the mean distance to its k nearest
// other cells.
func knnMeanDistances(d [][]float64, k int) []float64 {
	n := len(d)
	mu := make([]float64, n)
	row := make([]float64, 0, n-1)
	for i := 0; i < n; i++ {
		row = row[:0]
		for j := 0; j < n; j++ {
			if j != i {
				row = append(row, d[i][j])
			}
		}
		sort.Float64s(row)
		var sum float64
		for _, v := range row[:k] {
			sum += v
		}
		mu[i] = sum / float64(k)
	}
	return mu
}

// globalSigma is the mean off-diagonal distance.
func globalSigma(d [][]float64) float64 {
	n := len(d)
	var sum float64
	var count int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += d[i][j]
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
