// Package config describes a layout job: the canvas, the tiles and the
// relaxation settings. Layouts load from TOML, YAML or JSON and turn into the
// values the pack package consumes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cwbudde/tilecloud/internal/canvas"
	"github.com/cwbudde/tilecloud/internal/pack"
	"gopkg.in/yaml.v3"
)

// CanvasConfig selects and sizes the canvas.
type CanvasConfig struct {
	Shape  string `json:"shape" toml:"shape" yaml:"shape"`
	Width  int    `json:"width" toml:"width" yaml:"width"`
	Height int    `json:"height" toml:"height" yaml:"height"`
	// Mask is the image used by the mask shape.
	Mask         string `json:"mask,omitempty" toml:"mask" yaml:"mask,omitempty"`
	ContourWidth int    `json:"contourWidth" toml:"contour_width" yaml:"contour_width"`
	ContourColor string `json:"contourColor" toml:"contour_color" yaml:"contour_color"`
	ContourAlpha int    `json:"contourAlpha" toml:"contour_alpha" yaml:"contour_alpha"`
	CropAlpha    int    `json:"cropAlpha" toml:"crop_alpha" yaml:"crop_alpha"`
	Background   string `json:"background" toml:"background" yaml:"background"`
}

// TileConfig is one weighted tile. Name is a file path, a codepoint key or
// an emoji; Path, when set, overrides library resolution.
type TileConfig struct {
	Name   string  `json:"name" toml:"name" yaml:"name"`
	Path   string  `json:"path,omitempty" toml:"path" yaml:"path,omitempty"`
	Weight float64 `json:"weight" toml:"weight" yaml:"weight"`
}

// LibraryConfig points at a tile image library.
type LibraryConfig struct {
	Root   string `json:"root,omitempty" toml:"root" yaml:"root,omitempty"`
	Vendor string `json:"vendor,omitempty" toml:"vendor" yaml:"vendor,omitempty"`
}

// RelaxConfig controls the relaxation loop.
type RelaxConfig struct {
	Start       float64            `json:"start" toml:"start" yaml:"start"`
	Step        float64            `json:"step" toml:"step" yaml:"step"`
	MaxAttempts int                `json:"maxAttempts" toml:"max_attempts" yaml:"max_attempts"`
	Strategy    string             `json:"strategy" toml:"strategy" yaml:"strategy"`
	KeepPartial bool               `json:"keepPartial" toml:"keep_partial" yaml:"keep_partial"`
	CropAlpha   int                `json:"cropAlpha" toml:"crop_alpha" yaml:"crop_alpha"`
	Search      pack.SearchOptions `json:"search" toml:"search" yaml:"search"`
}

// Layout is a complete layout job.
type Layout struct {
	Canvas    CanvasConfig  `json:"canvas" toml:"canvas" yaml:"canvas"`
	Tiles     []TileConfig  `json:"tiles,omitempty" toml:"tiles" yaml:"tiles,omitempty"`
	TileDir   string        `json:"tileDir,omitempty" toml:"tile_dir" yaml:"tile_dir,omitempty"`
	Library   LibraryConfig `json:"library" toml:"library" yaml:"library"`
	Relax     RelaxConfig   `json:"relax" toml:"relax" yaml:"relax"`
	Resampler string        `json:"resampler" toml:"resampler" yaml:"resampler"`
	Workers   int           `json:"workers,omitempty" toml:"workers" yaml:"workers,omitempty"`
	Outputs   []string      `json:"outputs,omitempty" toml:"outputs" yaml:"outputs,omitempty"`
}

// Default returns a 720x360 ellipse layout with the standard relaxation sweep.
func Default() Layout {
	opts := pack.DefaultOptions()
	return Layout{
		Canvas: CanvasConfig{
			Shape:        string(canvas.ShapeEllipse),
			Width:        720,
			Height:       360,
			ContourWidth: 5,
			ContourColor: "#00acee",
			ContourAlpha: 10,
			Background:   "white",
		},
		Relax: RelaxConfig{
			Start:       opts.Start,
			Step:        opts.Step,
			MaxAttempts: opts.MaxAttempts,
			Strategy:    string(opts.Strategy),
			CropAlpha:   int(opts.CropAlpha),
			Search:      opts.Search,
		},
		Resampler: "lanczos",
	}
}

// Load reads a layout file, choosing the decoder by extension. Fields missing
// from the file keep their Default values.
func Load(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return Layout{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Parse decodes data in the given format ("toml", "yaml", "yml" or "json",
// with or without a leading dot) over Default and validates the result.
func Parse(data []byte, format string) (Layout, error) {
	cfg := Default()
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return Layout{}, fmt.Errorf("failed to parse toml: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Layout{}, fmt.Errorf("failed to parse yaml: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Layout{}, fmt.Errorf("failed to parse json: %w", err)
		}
	default:
		return Layout{}, fmt.Errorf("unsupported config format: %q", format)
	}

	if err := cfg.Validate(); err != nil {
		return Layout{}, err
	}
	return cfg, nil
}
