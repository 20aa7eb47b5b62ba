// Package geom holds the small amount of plane geometry the layout engine needs.
package geom

import (
	"image"
	"math"
)

// Distance returns the Euclidean distance between two points.
func Distance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x1-x2, y1-y2)
}

// PointDistance returns the Euclidean distance between two integer points.
func PointDistance(a, b image.Point) float64 {
	return Distance(float64(a.X), float64(a.Y), float64(b.X), float64(b.Y))
}

// InEllipse reports whether (x, y) lies inside or on the axis-aligned ellipse
// centered at (cx, cy) with radii rx and ry.
func InEllipse(cx, cy, x, y, rx, ry float64) bool {
	if rx <= 0 || ry <= 0 {
		return false
	}
	dx := (x - cx) / rx
	dy := (y - cy) / ry
	return dx*dx+dy*dy <= 1
}
