package config

import "fmt"

// ValidationError reports an invalid layout field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ErrInvalid matches any *ValidationError with errors.Is.
var ErrInvalid = &ValidationError{}
