// Package canvas models the occupancy grid tiles are packed onto.
//
// A Template is the immutable original canvas produced by one of the shape
// builders. Every placement attempt calls Instantiate to get a fresh, mutable
// Canvas with its own occupancy, image and position queue, so a failed attempt
// never leaks state into the next one.
package canvas

import (
	"cmp"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"slices"

	"github.com/cwbudde/tilecloud/internal/geom"
	"github.com/cwbudde/tilecloud/internal/imgutil"
	"github.com/disintegration/imaging"
)

// Shape selects how the free region of a canvas is derived.
type Shape string

const (
	ShapeRectangle Shape = "rectangle"
	ShapeEllipse   Shape = "ellipse"
	ShapeMask      Shape = "mask"
)

// Template is an immutable canvas description.
type Template struct {
	Shape  Shape
	Width  int
	Height int
	// Area sizes the tiles. It is not necessarily the number of free cells.
	Area   float64
	Center image.Point

	taken []bool // row-major, y*Width+x
	base  *image.NRGBA
	order []image.Point // free cells, nearest to Center first
}

// MaskOptions controls how a mask image becomes a canvas.
type MaskOptions struct {
	// CropAlpha is the alpha threshold used to find the mask's bounding box.
	CropAlpha uint8
	// ContourAlpha is the alpha step that counts as an opacity boundary.
	ContourAlpha uint8
	// BandWidth is the contour band width in pixels; 0 disables the band.
	BandWidth int
	// BandColor paints the contour band.
	BandColor color.NRGBA
	// Background fills the canvas image.
	Background color.Color
}

func checkSize(w, h int) error {
	if w <= 0 || h <= 0 {
		return &InvalidCanvasError{Reason: fmt.Sprintf("size must be positive, got %dx%d", w, h)}
	}
	return nil
}

// NewRectangle builds a canvas where every cell is free.
func NewRectangle(w, h int, bg color.Color) (*Template, error) {
	if err := checkSize(w, h); err != nil {
		return nil, err
	}
	t := &Template{
		Shape:  ShapeRectangle,
		Width:  w,
		Height: h,
		Area:   float64(w * h),
		Center: image.Pt(w/2, h/2),
		taken:  make([]bool, w*h),
		base:   imgutil.NewCanvasImage(w, h, bg),
	}
	t.buildOrder()
	return t, nil
}

// NewEllipse builds a canvas whose free cells form the ellipse inscribed in
// the w×h box. Area is the ideal ellipse area π·rx·ry rather than the
// discrete cell count so tile sizing does not depend on boundary aliasing.
func NewEllipse(w, h int, bg color.Color) (*Template, error) {
	if err := checkSize(w, h); err != nil {
		return nil, err
	}
	rx, ry := float64(w)/2, float64(h)/2
	t := &Template{
		Shape:  ShapeEllipse,
		Width:  w,
		Height: h,
		Area:   math.Pi * rx * ry,
		Center: image.Pt(w/2, h/2),
		taken:  make([]bool, w*h),
		base:   imgutil.NewCanvasImage(w, h, bg),
	}
	cx, cy := float64(t.Center.X), float64(t.Center.Y)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t.taken[y*w+x] = !geom.InEllipse(cx, cy, float64(x), float64(y), rx, ry)
		}
	}
	t.buildOrder()
	return t, nil
}

// NewMask builds a canvas from the opaque pixels of mask. The mask is cropped
// to its opaque bounding box and centered in a canvas inflated by BandWidth on
// every side. Cells whose Chebyshev distance to a contour cell is less than
// BandWidth are taken and painted in BandColor; the bound is exclusive, so a
// band of 5 covers the contour cell and the 4 rings around it.
func NewMask(mask *image.NRGBA, opts MaskOptions) (*Template, error) {
	if opts.BandWidth < 0 {
		return nil, &InvalidCanvasError{Reason: "contour band width must not be negative"}
	}
	cropped, err := imgutil.CropToOpaque(mask, opts.CropAlpha)
	if err != nil {
		return nil, &InvalidCanvasError{Reason: "mask has no opaque pixels"}
	}

	band := opts.BandWidth
	w := cropped.Bounds().Dx() + 2*band
	h := cropped.Bounds().Dy() + 2*band
	padded := imaging.Paste(imaging.New(w, h, color.NRGBA{}), cropped, image.Pt(band, band))

	t := &Template{
		Shape:  ShapeMask,
		Width:  w,
		Height: h,
		Center: image.Pt(w/2, h/2),
		taken:  make([]bool, w*h),
		base:   imgutil.NewCanvasImage(w, h, opts.Background),
	}

	opaque := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if imgutil.Alpha(padded, x, y) > 0 {
				opaque++
			} else {
				t.taken[y*w+x] = true
			}
		}
	}
	if opaque == 0 {
		return nil, &InvalidCanvasError{Reason: "mask has no opaque pixels"}
	}
	t.Area = float64(opaque)

	if band > 0 {
		contour := imgutil.DetectContour(padded, opts.ContourAlpha)
		for _, p := range contour {
			for dy := -band + 1; dy < band; dy++ {
				for dx := -band + 1; dx < band; dx++ {
					x, y := p.X+dx, p.Y+dy
					if x < 0 || y < 0 || x >= w || y >= h {
						continue
					}
					t.taken[y*w+x] = true
					t.base.SetNRGBA(x, y, opts.BandColor)
				}
			}
		}
		slog.Debug("Contour band drawn", "contour_cells", len(contour), "band", band)
	}

	t.buildOrder()
	return t, nil
}

// buildOrder sorts the free cells by distance to the center. Cells are
// enumerated column by column, and the stable sort keeps that order for ties.
func (t *Template) buildOrder() {
	type cell struct {
		p    image.Point
		dist float64
	}
	cells := make([]cell, 0, len(t.taken))
	for x := 0; x < t.Width; x++ {
		for y := 0; y < t.Height; y++ {
			if t.taken[y*t.Width+x] {
				continue
			}
			p := image.Pt(x, y)
			cells = append(cells, cell{p: p, dist: geom.PointDistance(p, t.Center)})
		}
	}
	slices.SortStableFunc(cells, func(a, b cell) int {
		return cmp.Compare(a.dist, b.dist)
	})

	t.order = make([]image.Point, len(cells))
	for i, c := range cells {
		t.order[i] = c.p
	}
}

// Taken reports whether (x, y) is unavailable in the original canvas.
// Out-of-bounds cells are taken.
func (t *Template) Taken(x, y int) bool {
	if x < 0 || y < 0 || x >= t.Width || y >= t.Height {
		return true
	}
	return t.taken[y*t.Width+x]
}

// FreeCells returns the number of cells available for placement.
func (t *Template) FreeCells() int {
	return len(t.order)
}

// Image returns a copy of the canvas image before any tile is drawn.
func (t *Template) Image() *image.NRGBA {
	return imaging.Clone(t.base)
}

// Instantiate returns a fresh mutable canvas built from the template.
func (t *Template) Instantiate() *Canvas {
	return &Canvas{
		Width:  t.Width,
		Height: t.Height,
		Center: t.Center,
		taken:  slices.Clone(t.taken),
		img:    imaging.Clone(t.base),
		queue:  &Queue{cells: slices.Clone(t.order)},
	}
}
