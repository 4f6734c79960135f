// Package fusion implements similarity network fusion: the iterative
// cross-diffusion of two or more per-modality affinity matrices into one
// consensus affinity matrix over the same cell set.
//
// Each modality carries a status matrix, initialized to its own normalized
// affinity. Every iteration diffuses the average of the other modalities'
// statuses through the modality's own k-nearest-neighbor transition kernel,
// then mixes in a small identity retention term so no modality can lose all
// of its own signal. The statuses converge toward mutual agreement and
// their elementwise average is the fused output.
package fusion

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/sanonone/citefuse/pkg/matrix"
	"github.com/sanonone/citefuse/pkg/metrics"
)

// Options configures Fuse.
type Options struct {
	// KNeighbors restricts each modality's diffusion kernel to the k most
	// similar cells per cell.
	KNeighbors int
	// MaxIter is the iteration cap. Without Tolerance, exactly MaxIter
	// iterations run.
	MaxIter int
	// MixFraction in (0,1) is the identity self-retention weight applied
	// after every diffusion step.
	MixFraction float64
	// Tolerance enables early stopping: iteration ends once the Frobenius
	// norm of every status matrix's change falls below it. 0 disables
	// early stopping.
	Tolerance float64
}

// NonConvergenceWarning notes that fusion hit MaxIter before the requested
// tolerance was met. It is carried on the Result, never returned as an
// error; the fused matrix is still usable.
type NonConvergenceWarning struct {
	Iterations int
	Delta      float64
	Tolerance  float64
}

func (w *NonConvergenceWarning) String() string {
	return fmt.Sprintf("fusion stopped at %d iterations with delta %.3g above tolerance %.3g",
		w.Iterations, w.Delta, w.Tolerance)
}

// Result is the outcome of one fusion run.
type Result struct {
	// Fused is the consensus affinity matrix.
	Fused *matrix.Affinity
	// Iterations is the number of diffusion iterations actually run.
	Iterations int
	// Converged reports whether early stopping triggered before MaxIter.
	// Always false when Options.Tolerance is 0.
	Converged bool
	// Warning is non-nil when a tolerance was requested but not reached.
	Warning *NonConvergenceWarning
}

// Fuse cross-diffuses the given per-modality affinity matrices into one
// consensus matrix. All inputs must share the same ordered cell axis.
// The computation is fully deterministic: identical inputs and options
// produce bit-identical output.
func Fuse(affs []*matrix.Affinity, opts Options) (*Result, error) {
	if len(affs) < 2 {
		return nil, &matrix.EmptyInputError{Op: "fusion.Fuse", Need: 2, Got: len(affs)}
	}
	first := affs[0]
	n := first.N()
	for i, a := range affs[1:] {
		if a.N() != n {
			return nil, &matrix.ShapeMismatchError{
				Op: "fusion.Fuse", Want: n, Got: a.N(), Axis: "cells",
			}
		}
		if !first.SameCells(a) {
			return nil, &matrix.ShapeMismatchError{
				Op: fmt.Sprintf("fusion.Fuse(modality %d)", i+1), Want: n, Got: a.N(), Axis: "cell ordering",
			}
		}
	}
	if opts.MixFraction <= 0 || opts.MixFraction >= 1 {
		return nil, &matrix.InvalidParameterError{
			Op: "fusion.Fuse", Name: "mix_fraction", Value: opts.MixFraction,
			Reason: "must be in (0,1)",
		}
	}
	if opts.MaxIter < 1 {
		return nil, &matrix.InvalidParameterError{
			Op: "fusion.Fuse", Name: "max_iter", Value: opts.MaxIter,
			Reason: "must be >= 1",
		}
	}
	if opts.KNeighbors < 1 || opts.KNeighbors > n-1 {
		return nil, &matrix.InvalidParameterError{
			Op: "fusion.Fuse", Name: "k_neighbors", Value: opts.KNeighbors,
			Reason: "must be in [1, cells-1]",
		}
	}

	start := time.Now()
	st, err := newState(affs, opts)
	if err != nil {
		return nil, err
	}

	var (
		iters     int
		converged bool
		lastDelta float64
	)
	for iters = 1; iters <= opts.MaxIter; iters++ {
		lastDelta = st.step(opts.MixFraction)
		metrics.FusionIterations.Inc()
		if opts.Tolerance > 0 && lastDelta < opts.Tolerance {
			converged = true
			break
		}
	}
	if iters > opts.MaxIter {
		iters = opts.MaxIter
	}

	fused, err := st.fused(first.Cells())
	if err != nil {
		return nil, err
	}
	metrics.FusionDuration.Observe(time.Since(start).Seconds())

	res := &Result{Fused: fused, Iterations: iters, Converged: converged}
	if opts.Tolerance > 0 && !converged {
		res.Warning = &NonConvergenceWarning{
			Iterations: iters,
			Delta:      lastDelta,
			Tolerance:  opts.Tolerance,
		}
	}
	return res, nil
}

// state is the private per-iteration working set: one status matrix and one
// fixed local transition kernel per modality.
type state struct {
	n        int
	statuses []*mat.Dense
	kernels  []*mat.Dense
}

func newState(affs []*matrix.Affinity, opts Options) (*state, error) {
	n := affs[0].N()
	st := &state{n: n}
	for _, a := range affs {
		st.statuses = append(st.statuses, matrix.RowNormalize(a.View()))
		k, err := localKernel(a, opts.KNeighbors)
		if err != nil {
			return nil, err
		}
		st.kernels = append(st.kernels, k)
	}
	return st, nil
}

// localKernel builds the sparse row-stochastic transition matrix restricted
// to each cell's k nearest neighbors.
func localKernel(a *matrix.Affinity, k int) (*mat.Dense, error) {
	ns, err := matrix.Neighbors(a, k)
	if err != nil {
		return nil, err
	}
	n := a.N()
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		var sum float64
		for _, nb := range ns.Of(i) {
			sum += nb.Weight
		}
		if sum == 0 {
			// Isolated cell: keep all its mass on itself.
			out.Set(i, i, 1)
			continue
		}
		for _, nb := range ns.Of(i) {
			out.Set(i, nb.Index, nb.Weight/sum)
		}
	}
	return out, nil
}

// step runs one synchronous cross-diffusion update across all modalities
// and returns the largest Frobenius-norm change of any status matrix.
func (st *state) step(mix float64) float64 {
	m := len(st.statuses)
	next := make([]*mat.Dense, m)
	var maxDelta float64

	for v := 0; v < m; v++ {
		avg := st.averageOthers(v)

		var prod, upd mat.Dense
		prod.Mul(st.kernels[v], avg)
		upd.Mul(&prod, st.kernels[v].T())

		upd.Scale(1-mix, &upd)
		for i := 0; i < st.n; i++ {
			upd.Set(i, i, upd.At(i, i)+mix)
		}

		sym := matrix.Symmetrize(&upd)

		var diff mat.Dense
		diff.Sub(sym, st.statuses[v])
		if d := mat.Norm(&diff, 2); d > maxDelta {
			maxDelta = d
		}
		next[v] = sym
	}
	st.statuses = next
	return maxDelta
}

// averageOthers returns the elementwise mean of every status matrix except v.
func (st *state) averageOthers(v int) *mat.Dense {
	out := mat.NewDense(st.n, st.n, nil)
	var count float64
	for u, s := range st.statuses {
		if u == v {
			continue
		}
		out.Add(out, s)
		count++
	}
	out.Scale(1/count, out)
	return out
}

// fused averages the final statuses, renormalizes, and re-symmetrizes so
// the output is directly usable for Laplacian construction.
func (st *state) fused(cells []string) (*matrix.Affinity, error) {
	out := mat.NewDense(st.n, st.n, nil)
	for _, s := range st.statuses {
		out.Add(out, s)
	}
	out.Scale(1/float64(len(st.statuses)), out)

	out = matrix.Symmetrize(matrix.RowNormalize(out))
	return matrix.NewAffinity(out, cells)
}
