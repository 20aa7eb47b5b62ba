package tile

import "fmt"

// ErrEmptyInput is returned when there are no tiles to scale.
// Use errors.Is(err, ErrEmptyInput) to check for this error.
var ErrEmptyInput = &EmptyInputError{}

// EmptyInputError reports an empty tile set.
type EmptyInputError struct{}

func (e *EmptyInputError) Error() string {
	return "no tiles supplied"
}

func (e *EmptyInputError) Is(target error) bool {
	_, ok := target.(*EmptyInputError)
	return ok
}

// ErrEmptyFootprint is returned when a tile has no opaque pixel left.
var ErrEmptyFootprint = &EmptyFootprintError{}

// EmptyFootprintError reports a tile that is fully transparent at the given scale.
type EmptyFootprintError struct {
	Name  string
	Scale float64
}

func (e *EmptyFootprintError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("tile %q has no opaque pixels at scale %.4f", e.Name, e.Scale)
	}
	return "tile has no opaque pixels"
}

func (e *EmptyFootprintError) Is(target error) bool {
	_, ok := target.(*EmptyFootprintError)
	return ok
}

// InvalidWeightError reports a weight that is not a positive number.
type InvalidWeightError struct {
	Name   string
	Weight float64
}

func (e *InvalidWeightError) Error() string {
	return fmt.Sprintf("tile %q has invalid weight %v (must be > 0)", e.Name, e.Weight)
}
