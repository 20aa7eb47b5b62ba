// Package tile turns weighted source images into placeable tiles: it sizes
// them against the canvas area, resizes them and reduces them to pixel
// footprints.
package tile

import (
	"errors"
	"fmt"
	"image"

	"github.com/cwbudde/tilecloud/internal/imgutil"
)

// Source is a weighted tile image at its native resolution.
type Source struct {
	Name   string
	Weight float64
	Image  *image.NRGBA
}

// NewSource validates and wraps an already decoded image.
func NewSource(name string, weight float64, img *image.NRGBA) (*Source, error) {
	if !(weight > 0) {
		return nil, &InvalidWeightError{Name: name, Weight: weight}
	}
	if _, ok := imgutil.OpaqueBounds(img, 1); !ok {
		return nil, &EmptyFootprintError{Name: name, Scale: 1}
	}
	return &Source{Name: name, Weight: weight, Image: img}, nil
}

// Load decodes the image at path into a Source.
func Load(name, path string, weight float64) (*Source, error) {
	img, err := imgutil.Decode(path)
	if err != nil {
		return nil, err
	}
	src, err := NewSource(name, weight, img)
	if err != nil {
		return nil, fmt.Errorf("failed to load tile %s: %w", path, err)
	}
	return src, nil
}

// Tile is a source rendered at a particular scale.
type Tile struct {
	Name      string
	Weight    float64
	Scale     float64
	Size      image.Point // resized image size, before cropping
	Footprint *Footprint
	// Index is the position of the tile in the caller's source list.
	Index int
}

// Build resizes src by scale and extracts its footprint.
func Build(src *Source, index int, scale float64, resizer imgutil.Resizer, cropAlpha uint8) (*Tile, error) {
	scaled := resizer.Resize(src.Image, scale)
	fp, err := ExtractFootprint(scaled, cropAlpha)
	if err != nil {
		if errors.Is(err, ErrEmptyFootprint) {
			return nil, &EmptyFootprintError{Name: src.Name, Scale: scale}
		}
		return nil, fmt.Errorf("failed to extract footprint of %s: %w", src.Name, err)
	}
	return &Tile{
		Name:      src.Name,
		Weight:    src.Weight,
		Scale:     scale,
		Size:      scaled.Bounds().Size(),
		Footprint: fp,
		Index:     index,
	}, nil
}
