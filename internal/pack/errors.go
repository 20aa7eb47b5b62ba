package pack

import "fmt"

// ErrPlacementExhausted is returned when no attempt placed every tile.
// Use errors.Is(err, ErrPlacementExhausted) to check for this error and
// errors.As to inspect the details.
var ErrPlacementExhausted = &PlacementExhaustedError{}

// PlacementExhaustedError reports that the attempt budget ran out.
type PlacementExhaustedError struct {
	Attempts  int
	Placed    int // best placed count over all attempts
	Total     int
	LastRatio float64
	// Partial is the best attempt, set only when Options.KeepPartial is true.
	Partial *Result
	// Cause is set when relaxation stopped early, for example because a tile
	// shrank to nothing.
	Cause error
}

func (e *PlacementExhaustedError) Error() string {
	if e.Total == 0 {
		return "placement exhausted"
	}
	msg := fmt.Sprintf("placement exhausted after %d attempts: best pass placed %d of %d tiles (last ratio %.2f)",
		e.Attempts, e.Placed, e.Total, e.LastRatio)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *PlacementExhaustedError) Unwrap() error {
	return e.Cause
}

func (e *PlacementExhaustedError) Is(target error) bool {
	_, ok := target.(*PlacementExhaustedError)
	return ok
}
