// Package cluster partitions cells using an affinity matrix, either by
// spectral decomposition of the normalized graph Laplacian or by community
// detection on a k-nearest-neighbor graph.
package cluster

// Assignment maps each cell to a dense integer cluster label starting at 0.
// It is an immutable result object; Labels is ordered like Cells.
type Assignment struct {
	Cells  []string
	Labels []int
	// K is the number of distinct labels in Labels.
	K int
	// Method records the producing algorithm ("spectral", "louvain", ...).
	Method string
	// Seed is the random seed used for any stochastic step, 0 when the
	// run was unseeded or the algorithm is deterministic.
	Seed int64
}

// Map returns the cellID -> label mapping.
func (a *Assignment) Map() map[string]int {
	m := make(map[string]int, len(a.Cells))
	for i, id := range a.Cells {
		m[id] = a.Labels[i]
	}
	return m
}

// Sizes returns the member count of each cluster, indexed by label.
func (a *Assignment) Sizes() []int {
	sizes := make([]int, a.K)
	for _, l := range a.Labels {
		sizes[l]++
	}
	return sizes
}

// countLabels returns the number of distinct labels, assuming they are
// dense from 0.
func countLabels(labels []int) int {
	max := -1
	for _, l := range labels {
		if l > max {
			max = l
		}
	}
	return max + 1
}
