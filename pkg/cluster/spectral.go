package cluster

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/sanonone/citefuse/pkg/matrix"
	"github.com/sanonone/citefuse/pkg/metrics"
)

// SpectralOptions configures the stochastic partition step of Spectral.
type SpectralOptions struct {
	// Seed fixes the k-means initialization for reproducible labels.
	// Seed 0 draws a time-based seed, so unseeded runs may differ.
	Seed int64
	// MaxKMeansIter caps the Lloyd iterations. 0 means 100.
	MaxKMeansIter int
}

// Spectral partitions cells into k groups by eigendecomposition of the
// symmetric normalized Laplacian L = I - D^{-1/2} A D^{-1/2}. The embedding
// is formed from the k smallest-eigenvalue eigenvectors, row-normalized,
// and partitioned by seeded k-means. The full eigenvalue spectrum is
// returned alongside the assignment so callers can validate k against the
// eigengap.
//
// A disconnected affinity graph yields one zero eigenvalue per connected
// component; this is expected, not an error.
func Spectral(aff *matrix.Affinity, k int, opts SpectralOptions) (*Assignment, *Spectrum, error) {
	n := aff.N()
	if k < 2 || k > n-1 {
		return nil, nil, &matrix.InvalidParameterError{
			Op: "cluster.Spectral", Name: "k", Value: k,
			Reason: "must be in [2, cells-1]",
		}
	}

	embedding, spectrum, err := SpectralEmbedding(aff, k)
	if err != nil {
		return nil, nil, err
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	maxIter := opts.MaxKMeansIter
	if maxIter <= 0 {
		maxIter = 100
	}
	rng := rand.New(rand.NewSource(seed))
	labels := kMeans(embedding, k, rng, maxIter)

	metrics.Clusterings.WithLabelValues("spectral").Inc()
	return &Assignment{
		Cells:  aff.Cells(),
		Labels: labels,
		K:      countLabels(labels),
		Method: "spectral",
		Seed:   opts.Seed,
	}, spectrum, nil
}

// SpectralEmbedding computes the Laplacian eigendecomposition of an
// affinity matrix and returns the row-normalized embedding on the dims
// smallest-eigenvalue eigenvectors together with the full spectrum. It is
// shared by Spectral and by the spectral fallback of the embed package.
func SpectralEmbedding(aff *matrix.Affinity, dims int) (*mat.Dense, *Spectrum, error) {
	n := aff.N()
	if dims < 1 || dims >= n {
		return nil, nil, &matrix.InvalidParameterError{
			Op: "cluster.SpectralEmbedding", Name: "dims", Value: dims,
			Reason: "must be in [1, cells-1]",
		}
	}

	lap := normalizedLaplacian(aff)

	var eig mat.EigenSym
	if ok := eig.Factorize(lap, true); !ok {
		return nil, nil, fmt.Errorf("cluster: Laplacian eigendecomposition failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// EigenSym returns values in ascending order; the embedding is the
	// first dims columns, one row per cell, each row scaled to unit norm.
	embedding := mat.NewDense(n, dims, nil)
	for i := 0; i < n; i++ {
		var norm float64
		for j := 0; j < dims; j++ {
			v := vectors.At(i, j)
			embedding.Set(i, j, v)
			norm += v * v
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for j := 0; j < dims; j++ {
				embedding.Set(i, j, embedding.At(i, j)/norm)
			}
		}
	}

	return embedding, &Spectrum{values: values, vectors: &vectors}, nil
}

// normalizedLaplacian builds L = I - D^{-1/2} A D^{-1/2} as a symmetric
// matrix. Rows with zero degree (fully isolated cells) get L_ii = 0, the
// standard convention.
func normalizedLaplacian(aff *matrix.Affinity) *mat.SymDense {
	n := aff.N()
	dInvSqrt := make([]float64, n)
	for i := 0; i < n; i++ {
		var d float64
		for j := 0; j < n; j++ {
			d += aff.At(i, j)
		}
		if d > 0 {
			dInvSqrt[i] = 1 / math.Sqrt(d)
		}
	}

	lap := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if i == j {
				if dInvSqrt[i] > 0 {
					lap.SetSym(i, i, 1-aff.At(i, i)*dInvSqrt[i]*dInvSqrt[i])
				}
				continue
			}
			lap.SetSym(i, j, -aff.At(i, j)*dInvSqrt[i]*dInvSqrt[j])
		}
	}
	return lap
}
