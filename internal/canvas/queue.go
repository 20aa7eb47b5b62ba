package canvas

import (
	"image"
	"slices"
)

// Queue is the ordered list of candidate anchor cells, nearest to the canvas
// center first. It only ever shrinks.
type Queue struct {
	cells []image.Point
}

// Len returns the number of remaining candidates.
func (q *Queue) Len() int {
	return len(q.cells)
}

// At returns the i-th candidate.
func (q *Queue) At(i int) image.Point {
	return q.cells[i]
}

// Cells returns the remaining candidates. The slice must not be modified.
func (q *Queue) Cells() []image.Point {
	return q.cells
}

// Prune removes every candidate for which taken returns true, keeping the
// relative order of the rest. It returns the number of removed cells.
func (q *Queue) Prune(taken func(image.Point) bool) int {
	before := len(q.cells)
	q.cells = slices.DeleteFunc(q.cells, taken)
	return before - len(q.cells)
}
