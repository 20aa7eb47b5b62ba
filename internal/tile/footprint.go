package tile

import (
	"cmp"
	"errors"
	"image"
	"image/color"
	"math"
	"slices"

	"github.com/cwbudde/tilecloud/internal/imgutil"
)

// Footprint is the set of opaque pixels of a scaled tile, expressed as offsets
// from the tile's opacity centroid. Offsets are ordered farthest from the
// centroid first, which is the order collision checks use.
type Footprint struct {
	Offsets []image.Point
	Colors  []color.NRGBA
	// Bounds is the cropped image extent in offset space; it contains every offset.
	Bounds image.Rectangle
}

// Len returns the number of opaque pixels.
func (f *Footprint) Len() int {
	return len(f.Offsets)
}

// ExtractFootprint crops img to its opaque bounding box and returns its
// footprint. Pixels with any alpha count as opaque; cropAlpha only controls
// the bounding box.
func ExtractFootprint(img *image.NRGBA, cropAlpha uint8) (*Footprint, error) {
	cropped, err := imgutil.CropToOpaque(img, cropAlpha)
	if err != nil {
		if errors.Is(err, imgutil.ErrFullyTransparent) {
			return nil, ErrEmptyFootprint
		}
		return nil, err
	}

	b := cropped.Bounds()
	var pts []image.Point
	var cols []color.NRGBA
	var sumX, sumY int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := cropped.NRGBAAt(x, y)
			if c.A == 0 {
				continue
			}
			pts = append(pts, image.Pt(x, y))
			cols = append(cols, c)
			sumX += x
			sumY += y
		}
	}
	if len(pts) == 0 {
		return nil, ErrEmptyFootprint
	}

	n := float64(len(pts))
	cx := int(math.Round(float64(sumX) / n))
	cy := int(math.Round(float64(sumY) / n))

	type entry struct {
		off  image.Point
		col  color.NRGBA
		dist int
	}
	entries := make([]entry, len(pts))
	for i, p := range pts {
		off := image.Pt(p.X-cx, p.Y-cy)
		entries[i] = entry{off: off, col: cols[i], dist: off.X*off.X + off.Y*off.Y}
	}
	slices.SortStableFunc(entries, func(a, b entry) int {
		return cmp.Compare(b.dist, a.dist)
	})

	fp := &Footprint{
		Offsets: make([]image.Point, len(entries)),
		Colors:  make([]color.NRGBA, len(entries)),
		Bounds:  image.Rect(b.Min.X-cx, b.Min.Y-cy, b.Max.X-cx, b.Max.Y-cy),
	}
	for i, e := range entries {
		fp.Offsets[i] = e.off
		fp.Colors[i] = e.col
	}
	return fp, nil
}
