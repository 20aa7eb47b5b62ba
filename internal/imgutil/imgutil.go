// Package imgutil provides the raster collaborators of the layout engine:
// decoding, cropping, contour detection, resizing, per-pixel compositing and
// export. Everything operates on *image.NRGBA with bounds starting at (0,0).
package imgutil

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// ErrFullyTransparent is returned when an image has no pixel at or above the
// requested alpha threshold.
var ErrFullyTransparent = errors.New("image has no opaque pixels")

// Decode loads an image file and converts it to NRGBA.
func Decode(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return imaging.Clone(img), nil
}

// DecodeReader decodes an image from r and converts it to NRGBA.
func DecodeReader(r io.Reader) (*image.NRGBA, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return imaging.Clone(img), nil
}

// Alpha returns the alpha value at (x, y) of a zero-origin NRGBA image.
func Alpha(img *image.NRGBA, x, y int) uint8 {
	return img.Pix[img.PixOffset(x, y)+3]
}

// OpaqueBounds returns the smallest rectangle containing every pixel whose alpha
// is at least threshold. A threshold of 0 is treated as 1 so that fully
// transparent padding is always stripped.
func OpaqueBounds(img *image.NRGBA, threshold uint8) (image.Rectangle, bool) {
	if threshold == 0 {
		threshold = 1
	}
	b := img.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.Pix[img.PixOffset(x, y)+3] < threshold {
				continue
			}
			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x)
			maxY = max(maxY, y)
		}
	}
	if maxX < minX {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// CropToOpaque strips the border rows and columns whose alpha stays below
// threshold. The result always starts at (0,0).
func CropToOpaque(img *image.NRGBA, threshold uint8) (*image.NRGBA, error) {
	r, ok := OpaqueBounds(img, threshold)
	if !ok {
		return nil, ErrFullyTransparent
	}
	return imaging.Crop(img, r), nil
}

// DetectContour returns the cells where alpha changes by more than threshold
// relative to the last flagged value, scanning each column top to bottom and
// then each row left to right. A cell may appear twice if both scans flag it.
func DetectContour(img *image.NRGBA, threshold uint8) []image.Point {
	b := img.Bounds()
	var contour []image.Point

	for x := b.Min.X; x < b.Max.X; x++ {
		prev := int(Alpha(img, x, b.Min.Y))
		for y := b.Min.Y + 1; y < b.Max.Y; y++ {
			a := int(Alpha(img, x, y))
			if absInt(a-prev) > int(threshold) {
				contour = append(contour, image.Pt(x, y))
				prev = a
			}
		}
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		prev := int(Alpha(img, b.Min.X, y))
		for x := b.Min.X + 1; x < b.Max.X; x++ {
			a := int(Alpha(img, x, y))
			if absInt(a-prev) > int(threshold) {
				contour = append(contour, image.Pt(x, y))
				prev = a
			}
		}
	}

	return contour
}

// Composite blends c over the pixel at (x, y) using source-over.
// Out-of-bounds coordinates are ignored.
func Composite(dst *image.NRGBA, x, y int, c color.NRGBA) {
	if !(image.Point{X: x, Y: y}).In(dst.Bounds()) || c.A == 0 {
		return
	}
	i := dst.PixOffset(x, y)
	if c.A == 255 {
		dst.Pix[i+0], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = c.R, c.G, c.B, 255
		return
	}

	sa := float64(c.A) / 255
	da := float64(dst.Pix[i+3]) / 255
	outA := sa + da*(1-sa)
	blend := func(s, d uint8) uint8 {
		v := (float64(s)*sa + float64(d)*da*(1-sa)) / outA
		return uint8(v + 0.5)
	}
	dst.Pix[i+0] = blend(c.R, dst.Pix[i+0])
	dst.Pix[i+1] = blend(c.G, dst.Pix[i+1])
	dst.Pix[i+2] = blend(c.B, dst.Pix[i+2])
	dst.Pix[i+3] = uint8(outA*255 + 0.5)
}

// NewCanvasImage returns a w×h image filled with bg, or white if bg is nil.
func NewCanvasImage(w, h int, bg color.Color) *image.NRGBA {
	if bg == nil {
		bg = color.White
	}
	return imaging.New(w, h, bg)
}

// Export writes img to path. The format is taken from the file extension
// (png, jpg, jpeg, gif, tif, tiff, bmp).
func Export(img image.Image, path string) error {
	if _, err := imaging.FormatFromFilename(path); err != nil {
		return fmt.Errorf("unsupported output format for %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
