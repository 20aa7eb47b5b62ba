package canvas

import (
	"image"
	"image/color"

	"github.com/cwbudde/tilecloud/internal/imgutil"
)

// Canvas is the mutable per-attempt state: occupancy, the composited image and
// the position queue. It is owned by a single placement pass.
type Canvas struct {
	Width  int
	Height int
	Center image.Point

	taken []bool
	img   *image.NRGBA
	queue *Queue
}

// InBounds reports whether (x, y) lies on the canvas.
func (c *Canvas) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < c.Width && y < c.Height
}

// Taken reports whether (x, y) is occupied. Out-of-bounds cells are taken.
func (c *Canvas) Taken(x, y int) bool {
	if !c.InBounds(x, y) {
		return true
	}
	return c.taken[y*c.Width+x]
}

// Occupy marks (x, y) taken and composites col into the canvas image.
// The caller must have checked that the cell is free.
func (c *Canvas) Occupy(x, y int, col color.NRGBA) {
	c.taken[y*c.Width+x] = true
	imgutil.Composite(c.img, x, y, col)
}

// Queue returns the canvas's position queue.
func (c *Canvas) Queue() *Queue {
	return c.queue
}

// Image returns the composited canvas image.
func (c *Canvas) Image() *image.NRGBA {
	return c.img
}

// TakenCount returns the number of occupied cells.
func (c *Canvas) TakenCount() int {
	n := 0
	for _, t := range c.taken {
		if t {
			n++
		}
	}
	return n
}
