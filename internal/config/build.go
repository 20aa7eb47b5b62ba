package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/cwbudde/tilecloud/internal/canvas"
	"github.com/cwbudde/tilecloud/internal/imgutil"
	"github.com/cwbudde/tilecloud/internal/pack"
	"github.com/cwbudde/tilecloud/internal/tile"
)

// Template builds the canvas template described by the layout.
func (l Layout) Template() (*canvas.Template, error) {
	bg, err := ParseColor(l.Canvas.Background)
	if err != nil {
		return nil, fmt.Errorf("failed to parse background: %w", err)
	}

	switch canvas.Shape(l.Canvas.Shape) {
	case canvas.ShapeRectangle:
		return canvas.NewRectangle(l.Canvas.Width, l.Canvas.Height, bg)
	case canvas.ShapeEllipse:
		return canvas.NewEllipse(l.Canvas.Width, l.Canvas.Height, bg)
	case canvas.ShapeMask:
		band, err := ParseColor(l.Canvas.ContourColor)
		if err != nil {
			return nil, fmt.Errorf("failed to parse contour color: %w", err)
		}
		mask, err := imgutil.Decode(l.Canvas.Mask)
		if err != nil {
			return nil, err
		}
		return canvas.NewMask(mask, canvas.MaskOptions{
			CropAlpha:    uint8(l.Canvas.CropAlpha),
			ContourAlpha: uint8(l.Canvas.ContourAlpha),
			BandWidth:    l.Canvas.ContourWidth,
			BandColor:    band,
			Background:   bg,
		})
	default:
		return nil, fmt.Errorf("unknown canvas shape: %s", l.Canvas.Shape)
	}
}

// Sources loads every tile image. Explicit tiles come first, followed by the
// images of TileDir weighted with tile.DefaultWeight.
func (l Layout) Sources() ([]*tile.Source, error) {
	lib := tile.Library{Root: l.Library.Root, Vendor: l.Library.Vendor}

	var sources []*tile.Source
	for _, t := range l.Tiles {
		path := t.Path
		if path == "" {
			resolved, err := lib.Resolve(t.Name)
			if err != nil {
				return nil, err
			}
			path = resolved
		}
		name := t.Name
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		src, err := tile.Load(name, path, t.Weight)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	if l.TileDir != "" {
		paths, err := tile.ListImages(l.TileDir)
		if err != nil {
			return nil, err
		}
		for i, path := range paths {
			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			src, err := tile.Load(name, path, tile.DefaultWeight(i))
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
		}
	}

	if len(sources) == 0 {
		return nil, tile.ErrEmptyInput
	}
	slog.Debug("Tiles loaded", "count", len(sources))
	return sources, nil
}

// PackOptions returns the controller options described by the layout.
func (l Layout) PackOptions() pack.Options {
	opts := pack.DefaultOptions()
	opts.Start = l.Relax.Start
	opts.Step = l.Relax.Step
	opts.MaxAttempts = l.Relax.MaxAttempts
	if l.Relax.Strategy != "" {
		opts.Strategy = pack.Strategy(l.Relax.Strategy)
	}
	opts.CropAlpha = uint8(l.Relax.CropAlpha)
	opts.KeepPartial = l.Relax.KeepPartial
	opts.Search = l.Relax.Search
	if l.Workers > 0 {
		opts.Workers = l.Workers
	}
	return opts
}

// Controller builds a pack.Controller for the layout.
func (l Layout) Controller() (*pack.Controller, error) {
	resizer, err := imgutil.NewResizer(l.Resampler)
	if err != nil {
		return nil, err
	}
	return pack.NewController(l.PackOptions(), resizer), nil
}
