// Package container holds the results of a CITE-seq analysis run keyed by a
// single ordered cell axis: named expression assays, per-modality and fused
// affinity matrices, cluster assignments, embedding coordinates, and
// per-cell metadata.
//
// Each stored result is an explicit immutable value stamped with a run
// record; downstream collaborators (doublet removal, differential
// expression, plotting) read from here instead of sharing mutable state.
package container

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/btree"
	"gonum.org/v1/gonum/mat"

	"github.com/sanonone/citefuse/pkg/cluster"
	"github.com/sanonone/citefuse/pkg/matrix"
)

// Record documents one stored result: what was stored under which name,
// with which parameters, and when.
type Record struct {
	ID      string
	Kind    string
	Name    string
	Params  map[string]any
	Created time.Time
}

// CellSet is a concurrency-safe container over one ordered cell axis.
type CellSet struct {
	mu    sync.RWMutex
	cells []string
	index map[string]int

	assays      map[string]*matrix.Expression
	affinities  map[string]*matrix.Affinity
	assignments map[string]*cluster.Assignment
	embeddings  map[string]*mat.Dense

	// meta keeps per-cell annotations in an ordered index so exports walk
	// cells in ID order without a sort.
	meta btree.Map[string, map[string]string]

	records []Record
}

// New creates a container over the given cell axis. Cell IDs must be
// non-empty and unique.
func New(cells []string) (*CellSet, error) {
	if len(cells) == 0 {
		return nil, &matrix.EmptyInputError{Op: "container.New", Need: 1, Got: 0}
	}
	index := make(map[string]int, len(cells))
	for i, id := range cells {
		if id == "" {
			return nil, fmt.Errorf("container.New: empty cell ID at position %d", i)
		}
		if _, dup := index[id]; dup {
			return nil, fmt.Errorf("container.New: duplicate cell ID %q", id)
		}
		index[id] = i
	}
	return &CellSet{
		cells:       append([]string(nil), cells...),
		index:       index,
		assays:      make(map[string]*matrix.Expression),
		affinities:  make(map[string]*matrix.Affinity),
		assignments: make(map[string]*cluster.Assignment),
		embeddings:  make(map[string]*mat.Dense),
	}, nil
}

// Cells returns a copy of the ordered cell axis.
func (cs *CellSet) Cells() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return append([]string(nil), cs.cells...)
}

// Len returns the number of cells.
func (cs *CellSet) Len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.cells)
}

// AddAssay stores a named expression modality. Its cell axis must match the
// container's exactly.
func (cs *CellSet) AddAssay(name string, expr *matrix.Expression, params map[string]any) error {
	if !sameAxis(cs.cells, expr.Cells()) {
		_, n := expr.Dims()
		return &matrix.ShapeMismatchError{Op: "container.AddAssay", Want: len(cs.cells), Got: n, Axis: "cells"}
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.assays[name] = expr
	cs.record("assay", name, params)
	return nil
}

// Assay returns the named expression modality.
func (cs *CellSet) Assay(name string) (*matrix.Expression, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	e, ok := cs.assays[name]
	return e, ok
}

// SetAffinity stores a named affinity matrix (per-modality or fused).
func (cs *CellSet) SetAffinity(name string, aff *matrix.Affinity, params map[string]any) error {
	if !sameAxis(cs.cells, aff.Cells()) {
		return &matrix.ShapeMismatchError{Op: "container.SetAffinity", Want: len(cs.cells), Got: aff.N(), Axis: "cells"}
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.affinities[name] = aff
	cs.record("affinity", name, params)
	return nil
}

// Affinity returns the named affinity matrix.
func (cs *CellSet) Affinity(name string) (*matrix.Affinity, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	a, ok := cs.affinities[name]
	return a, ok
}

// SetAssignment stores a named cluster assignment.
func (cs *CellSet) SetAssignment(name string, a *cluster.Assignment, params map[string]any) error {
	if !sameAxis(cs.cells, a.Cells) {
		return &matrix.ShapeMismatchError{Op: "container.SetAssignment", Want: len(cs.cells), Got: len(a.Cells), Axis: "cells"}
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.assignments[name] = a
	cs.record("assignment", name, params)
	return nil
}

// Assignment returns the named cluster assignment.
func (cs *CellSet) Assignment(name string) (*cluster.Assignment, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	a, ok := cs.assignments[name]
	return a, ok
}

// SetEmbedding caches embedding coordinates under a caller-supplied name so
// they can be retrieved alongside per-cell metadata later.
func (cs *CellSet) SetEmbedding(name string, coords *mat.Dense, params map[string]any) error {
	r, _ := coords.Dims()
	if r != len(cs.cells) {
		return &matrix.ShapeMismatchError{Op: "container.SetEmbedding", Want: len(cs.cells), Got: r, Axis: "cells"}
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.embeddings[name] = coords
	cs.record("embedding", name, params)
	return nil
}

// Embedding returns the named coordinates.
func (cs *CellSet) Embedding(name string) (*mat.Dense, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	e, ok := cs.embeddings[name]
	return e, ok
}

// SetMeta attaches a key/value annotation to a cell.
func (cs *CellSet) SetMeta(cellID, key, value string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.index[cellID]; !ok {
		return fmt.Errorf("container.SetMeta: unknown cell ID %q", cellID)
	}
	m, ok := cs.meta.Get(cellID)
	if !ok {
		m = make(map[string]string)
	}
	m[key] = value
	cs.meta.Set(cellID, m)
	return nil
}

// Meta returns a copy of a cell's annotations.
func (cs *CellSet) Meta(cellID string) map[string]string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	m, ok := cs.meta.Get(cellID)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ScanMeta walks annotations in cell-ID order until fn returns false.
func (cs *CellSet) ScanMeta(fn func(cellID string, meta map[string]string) bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	cs.meta.Scan(fn)
}

// Records returns the run records in storage order.
func (cs *CellSet) Records() []Record {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return append([]Record(nil), cs.records...)
}

// record must be called with cs.mu held.
func (cs *CellSet) record(kind, name string, params map[string]any) {
	cs.records = append(cs.records, Record{
		ID:      uuid.NewString(),
		Kind:    kind,
		Name:    name,
		Params:  params,
		Created: time.Now(),
	})
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
