// Package export serializes affinity matrices for the ingestion/export
// collaborator: a plain CSV form (symmetric numeric matrix plus the ordered
// cell-ID axis) and a length-prefixed binary frame with an optional
// half-precision payload for large cell counts.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/sanonone/citefuse/pkg/matrix"
)

// WriteAffinityCSV writes the cell-ID header row followed by one row of
// similarities per cell.
func WriteAffinityCSV(w io.Writer, aff *matrix.Affinity) error {
	cw := csv.NewWriter(w)
	cells := aff.Cells()
	if err := cw.Write(cells); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}

	n := aff.N()
	row := make([]string, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			row[j] = strconv.FormatFloat(aff.At(i, j), 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadAffinityCSV reads the format written by WriteAffinityCSV.
func ReadAffinityCSV(r io.Reader) (*matrix.Affinity, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("export: read header: %w", err)
	}
	n := len(header)

	data := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		rec, err := cr.Read()
		if err != nil {
			return nil, fmt.Errorf("export: read row %d: %w", i, err)
		}
		if len(rec) != n {
			return nil, &matrix.ShapeMismatchError{Op: "export.ReadAffinityCSV", Want: n, Got: len(rec), Axis: "cells"}
		}
		for j, s := range rec {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("export: row %d col %d: %w", i, j, err)
			}
			data.Set(i, j, v)
		}
	}
	return matrix.NewAffinity(data, header)
}

// WriteLabelsCSV writes cell_id,label pairs for a cluster assignment, with
// a header row.
func WriteLabelsCSV(w io.Writer, cells []string, labels []int) error {
	if len(cells) != len(labels) {
		return &matrix.ShapeMismatchError{Op: "export.WriteLabelsCSV", Want: len(cells), Got: len(labels), Axis: "cells"}
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"cell_id", "cluster"}); err != nil {
		return err
	}
	for i, id := range cells {
		if err := cw.Write([]string{id, strconv.Itoa(labels[i])}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCoordinatesCSV writes cell_id plus one column per embedding
// dimension.
func WriteCoordinatesCSV(w io.Writer, cells []string, coords *mat.Dense) error {
	r, dims := coords.Dims()
	if r != len(cells) {
		return &matrix.ShapeMismatchError{Op: "export.WriteCoordinatesCSV", Want: len(cells), Got: r, Axis: "cells"}
	}
	cw := csv.NewWriter(w)
	header := make([]string, dims+1)
	header[0] = "cell_id"
	for d := 0; d < dims; d++ {
		header[d+1] = fmt.Sprintf("dim_%d", d+1)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, dims+1)
	for i, id := range cells {
		row[0] = id
		for d := 0; d < dims; d++ {
			row[d+1] = strconv.FormatFloat(coords.At(i, d), 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
