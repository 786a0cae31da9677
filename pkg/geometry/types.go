// Package geometry provides basic geometric types used throughout the application.
package geometry

import (
	"image"
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Length returns the Euclidean norm of the point taken as a vector.
func (p Point2D) Length() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y)
}

// Sub returns the difference of two points.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{X: p.X - other.X, Y: p.Y - other.Y}
}

// PointInt represents a 2D point with integer coordinates.
type PointInt struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Length returns the Euclidean norm of the point taken as a vector.
func (p PointInt) Length() float64 {
	return math.Sqrt(float64(p.X*p.X + p.Y*p.Y))
}

// Sub returns the difference of two points.
func (p PointInt) Sub(other PointInt) PointInt {
	return PointInt{X: p.X - other.X, Y: p.Y - other.Y}
}

// ToFloat converts to Point2D.
func (p PointInt) ToFloat() Point2D {
	return Point2D{X: float64(p.X), Y: float64(p.Y)}
}

// FromImagePoint converts an image.Point (as returned by gocv) to a PointInt.
func FromImagePoint(p image.Point) PointInt {
	return PointInt{X: p.X, Y: p.Y}
}

// Line is a segment between two points.
type Line struct {
	P1 PointInt `json:"p1"`
	P2 PointInt `json:"p2"`
}

// Length returns the Euclidean length of the segment.
func (l Line) Length() float64 {
	return l.P2.Sub(l.P1).Length()
}

// RectInt represents a rectangle with integer coordinates.
type RectInt struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FromImageRect converts an image.Rectangle to a RectInt.
func FromImageRect(r image.Rectangle) RectInt {
	return RectInt{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// ToImage converts to an image.Rectangle.
func (r RectInt) ToImage() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Empty reports whether the rectangle has no area.
func (r RectInt) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Area returns Width*Height, or 0 for empty rectangles.
func (r RectInt) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

// Intersect returns the overlap of two rectangles. The result is Empty when
// they do not overlap.
func (r RectInt) Intersect(other RectInt) RectInt {
	x0 := max(r.X, other.X)
	y0 := max(r.Y, other.Y)
	x1 := min(r.X+r.Width, other.X+other.Width)
	y1 := min(r.Y+r.Height, other.Y+other.Height)
	if x1 <= x0 || y1 <= y0 {
		return RectInt{X: x0, Y: y0}
	}
	return RectInt{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Inset shrinks the rectangle by d pixels on every side.
func (r RectInt) Inset(d int) RectInt {
	return RectInt{X: r.X + d, Y: r.Y + d, Width: r.Width - 2*d, Height: r.Height - 2*d}
}
