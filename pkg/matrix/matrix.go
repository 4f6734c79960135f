// Package matrix defines the shared numeric types of the citefuse core:
// features-by-cells expression matrices, symmetric cell-by-cell affinity
// matrices, and the per-cell neighbor sets derived from them.
//
// Every type carries its ordered cell-ID axis so that multi-modality
// operations can verify that their inputs describe the same cells in the
// same order before doing any arithmetic.
package matrix

import (
	"gonum.org/v1/gonum/mat"
)

// Expression is an immutable features x cells count matrix for one modality
// (RNA transcripts, antibody tags, hashtag oligos). Rows are features,
// columns are cells.
type Expression struct {
	data     *mat.Dense
	features []string
	cells    []string
}

// NewExpression wraps a dense matrix with its feature and cell axes.
// The matrix takes ownership of data; callers must not mutate it afterwards.
func NewExpression(data *mat.Dense, features, cells []string) (*Expression, error) {
	r, c := data.Dims()
	if r != len(features) {
		return nil, &ShapeMismatchError{Op: "NewExpression", Want: len(features), Got: r, Axis: "features"}
	}
	if c != len(cells) {
		return nil, &ShapeMismatchError{Op: "NewExpression", Want: len(cells), Got: c, Axis: "cells"}
	}
	if c == 0 {
		return nil, &EmptyInputError{Op: "NewExpression", Need: 1, Got: 0}
	}
	return &Expression{data: data, features: features, cells: cells}, nil
}

// Dims returns the number of features and cells.
func (e *Expression) Dims() (features, cells int) { return e.data.Dims() }

// Cells returns a copy of the ordered cell-ID axis.
func (e *Expression) Cells() []string { return append([]string(nil), e.cells...) }

// Features returns a copy of the feature-ID axis.
func (e *Expression) Features() []string { return append([]string(nil), e.features...) }

// At returns the count for feature i in cell j.
func (e *Expression) At(i, j int) float64 { return e.data.At(i, j) }

// CellColumn copies the expression profile of cell j into dst, growing it
// if needed, and returns the slice.
func (e *Expression) CellColumn(j int, dst []float64) []float64 {
	f, _ := e.data.Dims()
	if cap(dst) < f {
		dst = make([]float64, f)
	}
	dst = dst[:f]
	for i := 0; i < f; i++ {
		dst[i] = e.data.At(i, j)
	}
	return dst
}

// AlignedWith reports whether two expression matrices share an identical,
// identically ordered cell axis. Modalities fed into fusion must align.
func (e *Expression) AlignedWith(o *Expression) bool {
	return sameAxis(e.cells, o.cells)
}

// Affinity is a square, symmetric, non-negative cell-by-cell similarity
// matrix over an ordered cell axis. The diagonal is conventionally zero for
// kernel-built affinities; fused matrices may carry a self-retention term.
type Affinity struct {
	data  *mat.Dense
	cells []string
}

// NewAffinity wraps an n x n matrix with its cell axis. The matrix must be
// square and match the axis length; symmetry is the producer's contract and
// is not re-checked here.
func NewAffinity(data *mat.Dense, cells []string) (*Affinity, error) {
	r, c := data.Dims()
	if r != c {
		return nil, &ShapeMismatchError{Op: "NewAffinity", Want: r, Got: c, Axis: "cells"}
	}
	if r != len(cells) {
		return nil, &ShapeMismatchError{Op: "NewAffinity", Want: len(cells), Got: r, Axis: "cells"}
	}
	if r == 0 {
		return nil, &EmptyInputError{Op: "NewAffinity", Need: 1, Got: 0}
	}
	return &Affinity{data: data, cells: cells}, nil
}

// N returns the number of cells.
func (a *Affinity) N() int { n, _ := a.data.Dims(); return n }

// Cells returns a copy of the ordered cell-ID axis.
func (a *Affinity) Cells() []string { return append([]string(nil), a.cells...) }

// At returns the similarity between cells i and j.
func (a *Affinity) At(i, j int) float64 { return a.data.At(i, j) }

// View exposes the backing matrix for read-only numeric consumption
// (Laplacian construction, diffusion products). Callers must not mutate it.
func (a *Affinity) View() mat.Matrix { return a.data }

// Dense returns an independent copy of the backing matrix.
func (a *Affinity) Dense() *mat.Dense {
	var out mat.Dense
	out.CloneFrom(a.data)
	return &out
}

// SameCells reports whether two affinities share the same ordered cell axis.
func (a *Affinity) SameCells(b *Affinity) bool { return sameAxis(a.cells, b.cells) }

// Symmetrize returns (M + Mᵀ)/2 as a new matrix.
func Symmetrize(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}
	return out
}

// RowNormalize returns a new matrix whose off-diagonal entries in each row
// sum to 1/2 with the diagonal fixed at 1/2. This half-weight convention
// keeps the result row-stochastic while bounding the self-transition, which
// is what the fusion diffusion operator expects of its status matrices.
func RowNormalize(m mat.Matrix) *mat.Dense {
	n, _ := m.Dims()
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			if j != i {
				sum += m.At(i, j)
			}
		}
		for j := 0; j < n; j++ {
			if j == i {
				out.Set(i, j, 0.5)
			} else if sum > 0 {
				out.Set(i, j, m.At(i, j)/(2*sum))
			}
		}
	}
	return out
}

func sameAxis(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
