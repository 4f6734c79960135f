package matrix

import (
	"errors"
	"fmt"
)

// Sentinel targets for errors.Is. The typed errors below unwrap to these so
// callers can branch on the class without inspecting fields.
var (
	// ErrShapeMismatch indicates matrices that should describe the same cell
	// set differ in dimension or cell ordering.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrEmptyInput indicates fewer inputs than the operation requires.
	ErrEmptyInput = errors.New("empty input")
	// ErrDegenerateInput indicates a zero-variance cell or feature that makes
	// distances undefined.
	ErrDegenerateInput = errors.New("degenerate input")
	// ErrInvalidParameter indicates an out-of-range configuration value.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// ShapeMismatchError reports mismatched dimensions or cell orderings between
// matrices that must share an axis.
type ShapeMismatchError struct {
	Op   string
	Want int
	Got  int
	Axis string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: %s axis mismatch: want %d, got %d", e.Op, e.Axis, e.Want, e.Got)
}

func (e *ShapeMismatchError) Unwrap() error { return ErrShapeMismatch }

// EmptyInputError reports too few inputs for a multi-input operation.
type EmptyInputError struct {
	Op   string
	Need int
	Got  int
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("%s: need at least %d input(s), got %d", e.Op, e.Need, e.Got)
}

func (e *EmptyInputError) Unwrap() error { return ErrEmptyInput }

// DegenerateInputError reports a cell whose expression has zero variance,
// which leaves correlation distances undefined.
type DegenerateInputError struct {
	Op   string
	Cell string
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("%s: cell %q has constant expression", e.Op, e.Cell)
}

func (e *DegenerateInputError) Unwrap() error { return ErrDegenerateInput }

// InvalidParameterError reports a configuration value outside its valid range.
type InvalidParameterError struct {
	Op     string
	Name   string
	Value  any
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("%s: parameter %s=%v: %s", e.Op, e.Name, e.Value, e.Reason)
}

func (e *InvalidParameterError) Unwrap() error { return ErrInvalidParameter }
