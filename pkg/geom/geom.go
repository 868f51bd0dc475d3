// Package geom holds the small coordinate types shared by the SVG compiler
// and the G-code parser: points in machine millimetres, polylines, and the
// SVG-local view box used while parsing source documents.
package geom

import "math"

// Point is a location in millimetres on the machine canvas. The origin is
// front-left; +Y runs away from the operator.
type Point struct {
	X, Y float64
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	dx := q.X - p.X
	dy := q.Y - p.Y
	return math.Hypot(dx, dy)
}

// Path is an ordered sequence of points meant to be drawn contiguously with
// the pen down. A well-formed Path has at least two points; shorter paths
// are dropped by callers rather than represented here.
type Path []Point

// Bounds returns the axis-aligned bounding box of every point across all
// paths. ok is false for an empty input, in which case the zero Box is
// returned.
func Bounds(paths []Path) (box Box, ok bool) {
	first := true
	for _, path := range paths {
		for _, pt := range path {
			if first {
				box.MinX, box.MaxX = pt.X, pt.X
				box.MinY, box.MaxY = pt.Y, pt.Y
				first = false
				continue
			}
			box.MinX = math.Min(box.MinX, pt.X)
			box.MaxX = math.Max(box.MaxX, pt.X)
			box.MinY = math.Min(box.MinY, pt.Y)
			box.MaxY = math.Max(box.MaxY, pt.Y)
		}
	}
	return box, !first
}

// Box is an axis-aligned bounding box.
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// Width returns the box's horizontal extent.
func (b Box) Width() float64 { return b.MaxX - b.MinX }

// Height returns the box's vertical extent.
func (b Box) Height() float64 { return b.MaxY - b.MinY }

// ViewBox is the SVG-local coordinate frame declared by a document's
// viewBox attribute (or synthesized from width/height when absent).
type ViewBox struct {
	MinX, MinY, Width, Height float64
}
