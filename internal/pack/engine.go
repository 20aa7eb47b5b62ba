// Package pack places tiles on a canvas. Place runs one greedy pass; the
// Controller repeats passes with a growing relaxation ratio until every tile
// fits or the attempt budget is spent.
package pack

import (
	"cmp"
	"image"
	"slices"

	"github.com/cwbudde/tilecloud/internal/canvas"
	"github.com/cwbudde/tilecloud/internal/tile"
)

// Placement records a committed tile.
type Placement struct {
	Name   string  `json:"name"`
	Index  int     `json:"index"`
	Weight float64 `json:"weight"`
	Scale  float64 `json:"scale"`
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Cells  int     `json:"cells"`
}

// Anchor returns the canvas cell the tile's centroid was placed on.
func (p Placement) Anchor() image.Point {
	return image.Pt(p.X, p.Y)
}

// PassResult is the outcome of one greedy pass.
type PassResult struct {
	Placed     int
	Placements []Placement
	// FailedTile names the tile that stopped the pass, if any.
	FailedTile string
	Canvas     *canvas.Canvas
}

// SortTiles orders tiles by descending scale. Equal scales keep input order.
func SortTiles(tiles []*tile.Tile) {
	slices.SortStableFunc(tiles, func(a, b *tile.Tile) int {
		return cmp.Compare(b.Scale, a.Scale)
	})
}

// Place commits tiles in the given order at the first queue position where
// they fit. The pass stops at the first tile that fits nowhere; lighter tiles
// never jump ahead of a heavier one.
func Place(c *canvas.Canvas, tiles []*tile.Tile) *PassResult {
	res := &PassResult{Canvas: c}
	q := c.Queue()

	for _, t := range tiles {
		anchor, ok := findAnchor(c, t.Footprint)
		if !ok {
			res.FailedTile = t.Name
			break
		}

		commit(c, t.Footprint, anchor)
		q.Prune(func(p image.Point) bool { return c.Taken(p.X, p.Y) })

		res.Placed++
		res.Placements = append(res.Placements, Placement{
			Name:   t.Name,
			Index:  t.Index,
			Weight: t.Weight,
			Scale:  t.Scale,
			X:      anchor.X,
			Y:      anchor.Y,
			Cells:  t.Footprint.Len(),
		})
	}

	return res
}

// findAnchor walks the queue nearest-first and returns the first fitting cell.
func findAnchor(c *canvas.Canvas, fp *tile.Footprint) (image.Point, bool) {
	for _, p := range c.Queue().Cells() {
		if Fits(c, fp, p) {
			return p, true
		}
	}
	return image.Point{}, false
}

// Fits reports whether fp anchored at anchor lies entirely on free cells.
func Fits(c *canvas.Canvas, fp *tile.Footprint, anchor image.Point) bool {
	// Bounds is the exact extent of the footprint, so this rejects exactly the
	// anchors where some offset would leave the canvas.
	b := fp.Bounds.Add(anchor)
	if b.Min.X < 0 || b.Min.Y < 0 || b.Max.X > c.Width || b.Max.Y > c.Height {
		return false
	}
	for _, off := range fp.Offsets {
		if c.Taken(anchor.X+off.X, anchor.Y+off.Y) {
			return false
		}
	}
	return true
}

func commit(c *canvas.Canvas, fp *tile.Footprint, anchor image.Point) {
	for i, off := range fp.Offsets {
		c.Occupy(anchor.X+off.X, anchor.Y+off.Y, fp.Colors[i])
	}
}
