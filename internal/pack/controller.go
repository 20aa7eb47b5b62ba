package pack

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/cwbudde/tilecloud/internal/canvas"
	"github.com/cwbudde/tilecloud/internal/imgutil"
	"github.com/cwbudde/tilecloud/internal/opt"
	"github.com/cwbudde/tilecloud/internal/tile"
	"golang.org/x/sync/errgroup"
)

// Strategy selects how relaxation ratios are chosen across attempts.
type Strategy string

const (
	// StrategySweep tries Start, Start+Step, ... and stops at the first success.
	StrategySweep Strategy = "sweep"
	// StrategySearch looks for the smallest successful ratio in the sweep range
	// with an evolutionary optimizer.
	StrategySearch Strategy = "search"
)

// SearchOptions configures StrategySearch.
type SearchOptions struct {
	Iterations int   `json:"iterations" toml:"iterations" yaml:"iterations"`
	Population int   `json:"population" toml:"population" yaml:"population"`
	Seed       int64 `json:"seed" toml:"seed" yaml:"seed"`
}

// Options controls the relaxation loop.
type Options struct {
	Start       float64
	Step        float64
	MaxAttempts int
	Strategy    Strategy
	Search      SearchOptions
	// CropAlpha is the alpha threshold for cropping scaled tiles.
	CropAlpha uint8
	// Workers bounds parallel footprint extraction; <= 0 means NumCPU.
	Workers int
	// KeepPartial attaches the best failed attempt to PlacementExhaustedError.
	KeepPartial bool
}

// DefaultOptions returns the standard sweep: 20 attempts from 1.0 in steps of 0.1.
func DefaultOptions() Options {
	return Options{
		Start:       1.0,
		Step:        0.1,
		MaxAttempts: 20,
		Strategy:    StrategySweep,
		Search:      SearchOptions{Iterations: 10, Population: 20, Seed: 42},
		CropAlpha:   4,
		Workers:     runtime.NumCPU(),
	}
}

// Attempt describes one finished placement pass.
type Attempt struct {
	Number     int           `json:"attempt"`
	Ratio      float64       `json:"ratio"`
	Placed     int           `json:"placed"`
	Total      int           `json:"total"`
	FailedTile string        `json:"failedTile,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Success reports whether every tile was placed.
func (a Attempt) Success() bool {
	return a.Placed == a.Total
}

// Result is a finished layout.
type Result struct {
	Ratio      float64
	Attempts   int
	Placed     int
	Total      int
	Placements []Placement
	Canvas     *canvas.Canvas
}

// Image returns the composited layout.
func (r *Result) Image() *image.NRGBA {
	return r.Canvas.Image()
}

// Controller drives placement attempts.
type Controller struct {
	opts      Options
	resizer   imgutil.Resizer
	optimizer opt.Optimizer

	// OnAttempt, if set, is called after every pass.
	OnAttempt func(Attempt)
}

// NewController creates a controller. A nil resizer selects Lanczos.
func NewController(opts Options, resizer imgutil.Resizer) *Controller {
	if resizer == nil {
		resizer = imgutil.LanczosResizer{}
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Controller{opts: opts, resizer: resizer}
}

// WithOptimizer replaces the optimizer used by StrategySearch.
func (c *Controller) WithOptimizer(o opt.Optimizer) *Controller {
	c.optimizer = o
	return c
}

// Options returns the controller's options.
func (c *Controller) Options() Options {
	return c.opts
}

// Run lays out sources on tmpl. Validation errors are returned immediately;
// a failed pass only advances to the next ratio. If no attempt succeeds the
// error is a *PlacementExhaustedError. A tile with no opaque pixels at the
// start ratio is an input error; one that vanishes at a later ratio ends
// relaxation as exhaustion with the tile error as Cause.
func (c *Controller) Run(ctx context.Context, tmpl *canvas.Template, sources []*tile.Source) (*Result, error) {
	if len(sources) == 0 {
		return nil, tile.ErrEmptyInput
	}
	if c.opts.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", c.opts.MaxAttempts)
	}
	if c.opts.Start < 1 {
		return nil, fmt.Errorf("start ratio must be >= 1, got %v", c.opts.Start)
	}

	slog.Info("Starting layout",
		"shape", tmpl.Shape,
		"width", tmpl.Width,
		"height", tmpl.Height,
		"tiles", len(sources),
		"strategy", c.opts.Strategy,
	)

	switch c.opts.Strategy {
	case StrategySweep, "":
		return c.sweep(ctx, tmpl, sources)
	case StrategySearch:
		return c.search(ctx, tmpl, sources)
	default:
		return nil, fmt.Errorf("unknown strategy: %s", c.opts.Strategy)
	}
}

func (c *Controller) sweep(ctx context.Context, tmpl *canvas.Template, sources []*tile.Source) (*Result, error) {
	tracker := newBestTracker(c.opts.KeepPartial)

	for i := 0; i < c.opts.MaxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ratio := c.opts.Start + c.opts.Step*float64(i)
		res, err := c.Attempt(ctx, tmpl, sources, ratio, i+1)
		if err != nil {
			// Past the first ratio a vanished tile ends relaxation: every
			// further ratio only shrinks it more.
			if i > 0 && errors.Is(err, tile.ErrEmptyFootprint) {
				return nil, tracker.exhausted(i, ratio-c.opts.Step, err)
			}
			return nil, err
		}
		if res.Placed == res.Total {
			slog.Info("Layout complete", "attempts", i+1, "ratio", ratio, "tiles", res.Total)
			return res, nil
		}
		tracker.observe(res)
	}

	return nil, tracker.exhausted(c.opts.MaxAttempts, c.opts.Start+c.opts.Step*float64(c.opts.MaxAttempts-1), nil)
}

func (c *Controller) search(ctx context.Context, tmpl *canvas.Template, sources []*tile.Source) (*Result, error) {
	lower := c.opts.Start
	upper := c.opts.Start + c.opts.Step*float64(c.opts.MaxAttempts-1)
	if upper <= lower {
		return c.sweep(ctx, tmpl, sources)
	}

	optimizer := c.optimizer
	if optimizer == nil {
		optimizer = opt.NewMayfly(c.opts.Search.Iterations, c.opts.Search.Population, c.opts.Search.Seed)
	}

	total := float64(len(sources))
	tracker := newBestTracker(c.opts.KeepPartial)
	memo := make(map[int64]float64)
	lowerKey := int64(math.Round(lower * 1000))
	var best *Result
	var runErr, vanished error
	attempts := 0

	eval := func(x []float64) float64 {
		if runErr != nil {
			return upper + total
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			return upper + total
		}

		// Ratios closer than 1e-3 produce the same pixels; reuse the outcome.
		key := int64(math.Round(x[0] * 1000))
		if cost, ok := memo[key]; ok {
			return cost
		}
		ratio := float64(key) / 1000

		res, err := c.Attempt(ctx, tmpl, sources, ratio, attempts+1)
		if err != nil {
			// A tile that vanishes above the lowest ratio rules out that
			// ratio, not the whole search.
			if key > lowerKey && errors.Is(err, tile.ErrEmptyFootprint) {
				vanished = err
				memo[key] = upper + total
				return upper + total
			}
			runErr = err
			return upper + total
		}
		attempts++

		var cost float64
		if res.Placed == res.Total {
			cost = ratio
			if best == nil || ratio < best.Ratio {
				best = res
			}
		} else {
			cost = upper + float64(res.Total-res.Placed)
			tracker.observe(res)
		}
		memo[key] = cost
		return cost
	}

	optimizer.Run(eval, []float64{lower}, []float64{upper}, 1)

	if runErr != nil {
		return nil, runErr
	}
	if best == nil {
		return nil, tracker.exhausted(attempts, upper, vanished)
	}

	best.Attempts = attempts
	slog.Info("Layout search complete", "evaluations", attempts, "ratio", best.Ratio, "tiles", best.Total)
	return best, nil
}

// Attempt runs a single pass at ratio against a fresh instance of tmpl.
func (c *Controller) Attempt(ctx context.Context, tmpl *canvas.Template, sources []*tile.Source, ratio float64, number int) (*Result, error) {
	start := time.Now()

	scales, err := tile.Scales(sources, tmpl.Area, ratio)
	if err != nil {
		return nil, err
	}

	tiles, err := c.buildTiles(ctx, sources, scales)
	if err != nil {
		return nil, err
	}
	SortTiles(tiles)

	pass := Place(tmpl.Instantiate(), tiles)

	attempt := Attempt{
		Number:     number,
		Ratio:      ratio,
		Placed:     pass.Placed,
		Total:      len(tiles),
		FailedTile: pass.FailedTile,
		Duration:   time.Since(start),
	}
	slog.Debug("Placement attempt finished",
		"attempt", number,
		"ratio", ratio,
		"placed", pass.Placed,
		"total", len(tiles),
		"failed_tile", pass.FailedTile,
		"duration", attempt.Duration,
	)
	if c.OnAttempt != nil {
		c.OnAttempt(attempt)
	}

	return &Result{
		Ratio:      ratio,
		Attempts:   number,
		Placed:     pass.Placed,
		Total:      len(tiles),
		Placements: pass.Placements,
		Canvas:     pass.Canvas,
	}, nil
}

// buildTiles resizes and extracts every source in parallel. Results are
// stored by index so the output does not depend on scheduling.
func (c *Controller) buildTiles(ctx context.Context, sources []*tile.Source, scales []float64) ([]*tile.Tile, error) {
	tiles := make([]*tile.Tile, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t, err := tile.Build(src, i, scales[i], c.resizer, c.opts.CropAlpha)
			if err != nil {
				return err
			}
			tiles[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tiles, nil
}

// bestTracker remembers the failed attempt that placed the most tiles.
type bestTracker struct {
	keep bool
	best *Result
}

func newBestTracker(keep bool) *bestTracker {
	return &bestTracker{keep: keep}
}

func (b *bestTracker) observe(res *Result) {
	if b.best == nil || res.Placed > b.best.Placed {
		b.best = res
	}
}

func (b *bestTracker) exhausted(attempts int, lastRatio float64, cause error) error {
	err := &PlacementExhaustedError{Attempts: attempts, LastRatio: lastRatio, Cause: cause}
	if b.best != nil {
		err.Placed = b.best.Placed
		err.Total = b.best.Total
		if b.keep {
			err.Partial = b.best
		}
	}
	slog.Warn("Layout exhausted", "attempts", attempts, "best_placed", err.Placed, "total", err.Total, "cause", cause)
	return err
}
