package cluster

import (
	"gonum.org/v1/gonum/mat"
)

// Spectrum is the full eigendecomposition of the symmetric normalized
// Laplacian of an affinity matrix: eigenvalues in ascending order paired
// with their eigenvectors (as matrix columns). Callers use it both to read
// the clustering embedding and to choose a cluster count from the eigengap.
type Spectrum struct {
	values  []float64
	vectors *mat.Dense
}

// Values returns a copy of the eigenvalues in ascending order.
func (s *Spectrum) Values() []float64 { return append([]float64(nil), s.values...) }

// Vectors returns the eigenvector matrix; column j pairs with Values()[j].
// The returned matrix is shared and must not be mutated.
func (s *Spectrum) Vectors() *mat.Dense { return s.vectors }

// ZeroCount reports how many eigenvalues are zero within tol. For a graph
// Laplacian this equals the number of connected components, so isolated
// blobs show up here rather than as an error.
func (s *Spectrum) ZeroCount(tol float64) int {
	count := 0
	for _, v := range s.values {
		if v < tol {
			count++
		}
	}
	return count
}

// SuggestK picks a cluster count by locating the largest gap between
// consecutive eigenvalues among the first maxK. Returns at least 2.
func (s *Spectrum) SuggestK(maxK int) int {
	if maxK > len(s.values) {
		maxK = len(s.values)
	}
	best, bestGap := 2, -1.0
	for i := 1; i < maxK; i++ {
		gap := s.values[i] - s.values[i-1]
		if gap > bestGap {
			bestGap = gap
			best = i
		}
	}
	if best < 2 {
		best = 2
	}
	return best
}
