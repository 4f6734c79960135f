// Package embed projects a fused affinity matrix into 2D/3D coordinates
// for visualization. It is a thin adapter: its only real job is converting
// the similarity matrix into the distance representation each embedding
// algorithm expects.
package embed

import (
	"github.com/danaugrs/go-tsne/tsne"
	"gonum.org/v1/gonum/mat"

	"github.com/sanonone/citefuse/pkg/cluster"
	"github.com/sanonone/citefuse/pkg/matrix"
	"github.com/sanonone/citefuse/pkg/metrics"
)

// Method selects the embedding algorithm.
type Method string

const (
	// TSNE runs t-SNE on the similarity-derived distance matrix.
	TSNE Method = "tsne"
	// SpectralMap uses the Laplacian eigenvector embedding directly. Fast,
	// deterministic, and linear; a useful sanity baseline next to t-SNE.
	SpectralMap Method = "spectral"
	// UMAP is declared for configuration completeness but not implemented;
	// there is no maintained Go implementation to adapt.
	UMAP Method = "umap"
)

// Options configures Embed.
type Options struct {
	Method Method
	// Dims is the output dimensionality, 2 or 3.
	Dims int
	// Seed is reserved for seedable methods. The t-SNE implementation draws
	// its initial layout from the process-global random source, so tsne runs
	// are not reproducible; spectral embeddings are deterministic regardless.
	Seed int64
	// Perplexity for t-SNE. 0 means 30, clamped below (cells-1)/3.
	Perplexity float64
	// MaxIter for t-SNE gradient descent. 0 means 1000.
	MaxIter int
	// LearningRate for t-SNE. 0 means 200.
	LearningRate float64
}

// Embed converts the affinity matrix to distances (d = max - a, zero
// diagonal) and runs the selected algorithm. The returned matrix has one
// row per cell in the affinity's cell order.
func Embed(aff *matrix.Affinity, opts Options) (*mat.Dense, error) {
	n := aff.N()
	if opts.Dims < 2 || opts.Dims > 3 {
		return nil, &matrix.InvalidParameterError{
			Op: "embed.Embed", Name: "dims", Value: opts.Dims,
			Reason: "must be 2 or 3",
		}
	}

	var coords *mat.Dense
	switch opts.Method {
	case TSNE:
		coords = embedTSNE(distancesFrom(aff), n, opts)
	case SpectralMap:
		emb, _, err := cluster.SpectralEmbedding(aff, opts.Dims)
		if err != nil {
			return nil, err
		}
		coords = emb
	case UMAP:
		return nil, &matrix.InvalidParameterError{
			Op: "embed.Embed", Name: "method", Value: string(opts.Method),
			Reason: "umap is not supported",
		}
	default:
		return nil, &matrix.InvalidParameterError{
			Op: "embed.Embed", Name: "method", Value: string(opts.Method),
			Reason: "unknown method",
		}
	}

	metrics.Embeddings.WithLabelValues(string(opts.Method)).Inc()
	return coords, nil
}

// distancesFrom converts similarities to distances: d_ij = max(A) - A_ij
// with a zero diagonal, so the most similar pair becomes the closest.
func distancesFrom(aff *matrix.Affinity) *mat.Dense {
	n := aff.N()
	max := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if v := aff.At(i, j); v > max {
				max = v
			}
		}
	}
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			d.Set(i, j, max-aff.At(i, j))
		}
	}
	return d
}

func embedTSNE(d *mat.Dense, n int, opts Options) *mat.Dense {
	perplexity := opts.Perplexity
	if perplexity == 0 {
		perplexity = 30
	}
	if limit := float64(n-1) / 3; perplexity > limit {
		perplexity = limit
	}
	maxIter := opts.MaxIter
	if maxIter == 0 {
		maxIter = 1000
	}
	learningRate := opts.LearningRate
	if learningRate == 0 {
		learningRate = 200
	}
	t := tsne.NewTSNE(opts.Dims, perplexity, learningRate, maxIter, false)
	return mat.DenseCopyOf(t.EmbedDistances(d, nil))
}
