package canvas

// ErrInvalidCanvas is returned when canvas geometry or a mask cannot produce a
// usable canvas. Use errors.Is(err, ErrInvalidCanvas) to check for it.
var ErrInvalidCanvas = &InvalidCanvasError{}

// InvalidCanvasError describes why a canvas could not be built.
type InvalidCanvasError struct {
	Reason string
}

func (e *InvalidCanvasError) Error() string {
	if e.Reason != "" {
		return "invalid canvas: " + e.Reason
	}
	return "invalid canvas"
}

func (e *InvalidCanvasError) Is(target error) bool {
	_, ok := target.(*InvalidCanvasError)
	return ok
}
