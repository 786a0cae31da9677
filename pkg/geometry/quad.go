package geometry

import (
	"fmt"
	"sort"
)

// Quad is a quadrilateral with named corners.
type Quad struct {
	TopLeft     PointInt `json:"top_left"`
	TopRight    PointInt `json:"top_right"`
	BottomRight PointInt `json:"bottom_right"`
	BottomLeft  PointInt `json:"bottom_left"`
}

// Top returns the top edge, left to right.
func (q Quad) Top() Line { return Line{P1: q.TopLeft, P2: q.TopRight} }

// Right returns the right edge, top to bottom.
func (q Quad) Right() Line { return Line{P1: q.TopRight, P2: q.BottomRight} }

// Bottom returns the bottom edge, right to left.
func (q Quad) Bottom() Line { return Line{P1: q.BottomRight, P2: q.BottomLeft} }

// Left returns the left edge, bottom to top.
func (q Quad) Left() Line { return Line{P1: q.BottomLeft, P2: q.TopLeft} }

// Corners returns the corners in TL, TR, BR, BL order.
func (q Quad) Corners() [4]PointInt {
	return [4]PointInt{q.TopLeft, q.TopRight, q.BottomRight, q.BottomLeft}
}

// Polygon returns the corners as a polygon in TL, TR, BR, BL order.
func (q Quad) Polygon() Polygon {
	c := q.Corners()
	return Polygon(c[:])
}

// Area returns the enclosed area.
func (q Quad) Area() float64 {
	return q.Polygon().Area()
}

func (q Quad) String() string {
	return fmt.Sprintf("TL(%d,%d) TR(%d,%d) BR(%d,%d) BL(%d,%d)",
		q.TopLeft.X, q.TopLeft.Y, q.TopRight.X, q.TopRight.Y,
		q.BottomRight.X, q.BottomRight.Y, q.BottomLeft.X, q.BottomLeft.Y)
}

// QuadFromPolygon assigns corner roles to a 4-vertex polygon from the vertex
// positions alone, so the result does not depend on the polygon's winding.
//
// TL minimises x+y, BR maximises x+y, TR maximises x-y and BL maximises y-x.
// When those extremes do not pick four distinct vertices (a quad rotated close
// to 45°), the vertices are split into the top and bottom pair by y and each
// pair is ordered by x.
func QuadFromPolygon(p Polygon) (Quad, error) {
	if len(p) != 4 {
		return Quad{}, fmt.Errorf("%w: need 4 vertices, got %d", ErrDegeneratePolygon, len(p))
	}

	pick := func(better func(a, b PointInt) bool) int {
		best := 0
		for i := 1; i < len(p); i++ {
			if better(p[i], p[best]) {
				best = i
			}
		}
		return best
	}

	tl := pick(func(a, b PointInt) bool { return a.X+a.Y < b.X+b.Y })
	tr := pick(func(a, b PointInt) bool { return a.X-a.Y > b.X-b.Y })
	br := pick(func(a, b PointInt) bool { return a.X+a.Y > b.X+b.Y })
	bl := pick(func(a, b PointInt) bool { return a.Y-a.X > b.Y-b.X })

	var q Quad
	if distinct(tl, tr, br, bl) {
		q = Quad{TopLeft: p[tl], TopRight: p[tr], BottomRight: p[br], BottomLeft: p[bl]}
	} else {
		q = splitByY(p)
	}

	if degenerateQuad(q) {
		return Quad{}, fmt.Errorf("%w: corners %s", ErrDegeneratePolygon, q)
	}
	return q, nil
}

func distinct(idx ...int) bool {
	seen := make(map[int]bool, len(idx))
	for _, i := range idx {
		if seen[i] {
			return false
		}
		seen[i] = true
	}
	return true
}

func splitByY(p Polygon) Quad {
	pts := make([]PointInt, len(p))
	copy(pts, p)
	sort.SliceStable(pts, func(i, j int) bool {
		if pts[i].Y != pts[j].Y {
			return pts[i].Y < pts[j].Y
		}
		return pts[i].X < pts[j].X
	})

	top, bottom := pts[:2], pts[2:]
	if top[0].X > top[1].X {
		top[0], top[1] = top[1], top[0]
	}
	if bottom[0].X > bottom[1].X {
		bottom[0], bottom[1] = bottom[1], bottom[0]
	}
	return Quad{TopLeft: top[0], TopRight: top[1], BottomRight: bottom[1], BottomLeft: bottom[0]}
}

// degenerateQuad reports whether any three consecutive corners are collinear.
func degenerateQuad(q Quad) bool {
	c := q.Corners()
	for i := 0; i < 4; i++ {
		a, b, d := c[i].ToFloat(), c[(i+1)%4].ToFloat(), c[(i+2)%4].ToFloat()
		if Collinear(a, b, d, 0) {
			return true
		}
	}
	return false
}
