package geometry

import (
	"errors"
	"math"
	"sort"
)

// ErrDegeneratePolygon is returned when a polygon has no usable vertices,
// e.g. all of them coincide with the centroid or three corners are collinear.
var ErrDegeneratePolygon = errors.New("degenerate polygon")

// Polygon is an ordered list of vertices with an implicit closing edge from
// the last vertex back to the first.
type Polygon []PointInt

// Centroid returns the arithmetic mean of the vertices, truncated towards zero.
func (p Polygon) Centroid() PointInt {
	if len(p) == 0 {
		return PointInt{}
	}
	var sumX, sumY int
	for _, v := range p {
		sumX += v.X
		sumY += v.Y
	}
	return PointInt{X: sumX / len(p), Y: sumY / len(p)}
}

// SignedArea returns the shoelace area. It is positive when the vertices wind
// counter-clockwise in a y-up frame (clockwise on screen).
func (p Polygon) SignedArea() float64 {
	if len(p) < 3 {
		return 0
	}
	var sum int
	n := len(p)
	for i := 0; i < n; i++ {
		a, b := p[i], p[(i+1)%n]
		sum += a.X*b.Y - b.X*a.Y
	}
	return float64(sum) / 2
}

// Area returns the unsigned area.
func (p Polygon) Area() float64 {
	return math.Abs(p.SignedArea())
}

// OrderCounterClockwise sorts the vertices by their angle around the centroid.
//
// The angle is acos(y/|v|) of the centroid-relative vertex, which measures the
// deviation from the +y axis without distinguishing left from right. The
// result is consistent for a given input but not a canonical winding: two
// mirror-image polygons may come out in different orders. Vertices that
// coincide with the centroid are dropped. The sort is stable, so ordering an
// already ordered polygon returns it unchanged.
func (p Polygon) OrderCounterClockwise() (Polygon, error) {
	if len(p) == 0 {
		return nil, ErrDegeneratePolygon
	}
	center := p.Centroid()

	type entry struct {
		vertex PointInt
		angle  float64
	}
	entries := make([]entry, 0, len(p))
	for _, v := range p {
		rel := v.Sub(center)
		length := rel.Length()
		if length == 0 {
			continue
		}
		entries = append(entries, entry{vertex: v, angle: math.Acos(float64(rel.Y) / length)})
	}
	if len(entries) == 0 {
		return nil, ErrDegeneratePolygon
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].angle < entries[j].angle
	})

	ordered := make(Polygon, len(entries))
	for i, e := range entries {
		ordered[i] = e.vertex
	}
	return ordered, nil
}

// CompareArea orders two areas for max-selection. NaN never compares greater
// than anything, so a polygon whose area could not be computed is never
// selected as the maximum. Returns -1, 0 or 1; 0 also covers any NaN pair.
func CompareArea(a, b float64) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// crossProduct computes the cross product of vectors OA and OB.
func crossProduct(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// Collinear reports whether the three points lie on one line (within eps).
func Collinear(a, b, c Point2D, eps float64) bool {
	return math.Abs(crossProduct(a, b, c)) <= eps
}
