package matrix

import (
	"sort"
)

// Neighbor is one entry of a cell's nearest-neighbor list.
type Neighbor struct {
	Index  int
	Weight float64
}

// NeighborSet holds, for every cell, its k most similar other cells ordered
// by descending similarity. Derived from an Affinity; used to restrict
// fusion diffusion to local neighborhoods and to build community graphs.
type NeighborSet struct {
	k         int
	neighbors [][]Neighbor
}

// Neighbors extracts the top-k neighbor list of every cell from an affinity
// matrix. Self-similarity is excluded. Ties are broken by the lower cell
// index so the result is deterministic.
func Neighbors(a *Affinity, k int) (*NeighborSet, error) {
	n := a.N()
	if k < 1 || k > n-1 {
		return nil, &InvalidParameterError{
			Op: "Neighbors", Name: "k_neighbors", Value: k,
			Reason: "must be in [1, cells-1]",
		}
	}

	sets := make([][]Neighbor, n)
	row := make([]Neighbor, 0, n-1)
	for i := 0; i < n; i++ {
		row = row[:0]
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			row = append(row, Neighbor{Index: j, Weight: a.At(i, j)})
		}
		sort.SliceStable(row, func(p, q int) bool {
			if row[p].Weight != row[q].Weight {
				return row[p].Weight > row[q].Weight
			}
			return row[p].Index < row[q].Index
		})
		sets[i] = append([]Neighbor(nil), row[:k]...)
	}
	return &NeighborSet{k: k, neighbors: sets}, nil
}

// K returns the neighbor count per cell.
func (s *NeighborSet) K() int { return s.k }

// Len returns the number of cells in the set.
func (s *NeighborSet) Len() int { return len(s.neighbors) }

// Of returns cell i's neighbor list, ordered by descending similarity.
// The returned slice is shared; callers must not mutate it.
func (s *NeighborSet) Of(i int) []Neighbor { return s.neighbors[i] }
