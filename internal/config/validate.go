package config

import (
	"fmt"

	"github.com/cwbudde/tilecloud/internal/canvas"
	"github.com/cwbudde/tilecloud/internal/imgutil"
	"github.com/cwbudde/tilecloud/internal/pack"
)

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func checkAlpha(field string, v int) error {
	if v < 0 || v > 255 {
		return invalid(field, "must be in [0, 255], got %d", v)
	}
	return nil
}

// Validate checks the layout for errors that would otherwise surface deep in
// a run.
func (l Layout) Validate() error {
	switch canvas.Shape(l.Canvas.Shape) {
	case canvas.ShapeRectangle, canvas.ShapeEllipse:
		if l.Canvas.Width <= 0 || l.Canvas.Height <= 0 {
			return invalid("canvas size", "must be positive, got %dx%d", l.Canvas.Width, l.Canvas.Height)
		}
	case canvas.ShapeMask:
		if l.Canvas.Mask == "" {
			return invalid("canvas.mask", "required for the mask shape")
		}
	default:
		return invalid("canvas.shape", "unknown shape %q", l.Canvas.Shape)
	}

	if l.Canvas.ContourWidth < 0 {
		return invalid("canvas.contour_width", "must not be negative")
	}
	if err := checkAlpha("canvas.contour_alpha", l.Canvas.ContourAlpha); err != nil {
		return err
	}
	if err := checkAlpha("canvas.crop_alpha", l.Canvas.CropAlpha); err != nil {
		return err
	}
	if err := checkAlpha("relax.crop_alpha", l.Relax.CropAlpha); err != nil {
		return err
	}
	if _, err := ParseColor(l.Canvas.ContourColor); err != nil {
		return invalid("canvas.contour_color", "%v", err)
	}
	if _, err := ParseColor(l.Canvas.Background); err != nil {
		return invalid("canvas.background", "%v", err)
	}

	if len(l.Tiles) == 0 && l.TileDir == "" {
		return invalid("tiles", "no tiles and no tile directory")
	}
	for i, t := range l.Tiles {
		if t.Name == "" && t.Path == "" {
			return invalid(fmt.Sprintf("tiles[%d]", i), "needs a name or a path")
		}
		if !(t.Weight > 0) {
			return invalid(fmt.Sprintf("tiles[%d].weight", i), "must be > 0, got %v", t.Weight)
		}
	}

	if l.Relax.Start < 1 {
		return invalid("relax.start", "must be >= 1, got %v", l.Relax.Start)
	}
	if l.Relax.Step < 0 {
		return invalid("relax.step", "must not be negative, got %v", l.Relax.Step)
	}
	if l.Relax.MaxAttempts <= 0 {
		return invalid("relax.max_attempts", "must be positive, got %d", l.Relax.MaxAttempts)
	}
	switch pack.Strategy(l.Relax.Strategy) {
	case pack.StrategySweep, pack.StrategySearch, "":
	default:
		return invalid("relax.strategy", "unknown strategy %q", l.Relax.Strategy)
	}

	if _, err := imgutil.NewResizer(l.Resampler); err != nil {
		return invalid("resampler", "%v", err)
	}
	if l.Workers < 0 {
		return invalid("workers", "must not be negative")
	}
	return nil
}
