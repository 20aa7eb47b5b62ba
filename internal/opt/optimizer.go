// Package opt wraps black-box minimizers used to tune layout parameters.
package opt

// Optimizer minimizes a black-box objective over a box-bounded space.
type Optimizer interface {
	// Run minimizes eval over [lower, upper] in dim dimensions and returns the
	// best position found and its cost. eval is never called with a position
	// outside the bounds.
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}
