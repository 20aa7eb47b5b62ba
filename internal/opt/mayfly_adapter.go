package opt

import (
	"log/slog"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter runs the mayfly algorithm on the unit hypercube and maps
// positions onto the caller's per-dimension bounds.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a mayfly optimizer. popSize must be at least 20.
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  max(popSize, 20),
		seed:     seed,
	}
}

// Run implements Optimizer.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	// The library takes scalar bounds, so search in [0,1]^dim and rescale.
	toBounds := func(u []float64) []float64 {
		x := make([]float64, dim)
		for i := range x {
			t := math.Max(0, math.Min(1, u[i]))
			x[i] = lower[i] + t*(upper[i]-lower[i])
		}
		return x
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(u []float64) float64 {
		return eval(toBounds(u))
	}
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		slog.Warn("Mayfly optimization failed, falling back to lower bound", "error", err)
		x := append([]float64(nil), lower[:dim]...)
		return x, eval(x)
	}

	return toBounds(result.GlobalBest.Position), result.GlobalBest.Cost
}
