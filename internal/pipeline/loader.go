package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/sanonone/citefuse/pkg/matrix"
)

// ReadExpressionCSV loads a count matrix: first row is the cell-ID header
// (first field is a corner label and is ignored), every following row is a
// feature name plus one count per cell.
func ReadExpressionCSV(path string) (*matrix.Expression, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("pipeline: %s: read header: %w", path, err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("pipeline: %s: header has no cell columns", path)
	}
	cells := header[1:]

	var (
		features []string
		values   []float64
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pipeline: %s: line %d: %w", path, line, err)
		}
		if len(rec) != len(header) {
			return nil, fmt.Errorf("pipeline: %s: line %d has %d fields, want %d", path, line, len(rec), len(header))
		}
		features = append(features, rec[0])
		for _, s := range rec[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("pipeline: %s: line %d: %w", path, line, err)
			}
			values = append(values, v)
		}
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("pipeline: %s: no feature rows", path)
	}

	data := mat.NewDense(len(features), len(cells), values)
	return matrix.NewExpression(data, features, cells)
}
