// Package quad finds the document boundary in an edge map.
package quad

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"

	"tablescan/pkg/geometry"

	"gocv.io/x/gocv"
)

// ErrNoQuadrilateralFound is returned when no contour simplifies to a usable
// 4-vertex polygon. Without a boundary the image cannot be rectified.
var ErrNoQuadrilateralFound = errors.New("no quadrilateral found")

// Params configures quadrilateral detection.
type Params struct {
	// EpsilonRatio scales the hull perimeter into the ApproxPolyDP tolerance.
	EpsilonRatio float64
	// MinAreaRatio discards candidates smaller than this fraction of the
	// image area. Zero keeps everything.
	MinAreaRatio float64
}

// DefaultParams returns default detection parameters.
func DefaultParams() Params {
	return Params{
		EpsilonRatio: 0.001,
		MinAreaRatio: 0,
	}
}

// Candidate is a simplified 4-vertex hull together with its area.
type Candidate struct {
	Polygon geometry.Polygon
	Area    float64
}

// Detect returns the largest quadrilateral outlined in edges, with corners
// assigned to their roles.
func Detect(edges gocv.Mat, p Params) (geometry.Quad, error) {
	return choose(Candidates(edges, p))
}

// choose returns the first candidate, in the given order, whose vertices can
// be ordered and assigned corner roles. Degenerate candidates are skipped.
func choose(candidates []Candidate) (geometry.Quad, error) {
	for _, c := range candidates {
		ordered, err := c.Polygon.OrderCounterClockwise()
		if err != nil {
			continue
		}
		q, err := geometry.QuadFromPolygon(ordered)
		if err != nil {
			continue
		}
		return q, nil
	}

	return geometry.Quad{}, fmt.Errorf("%w (%d candidates)", ErrNoQuadrilateralFound, len(candidates))
}

// Candidates traces the outer contours of edges, simplifies each convex hull
// and returns the 4-vertex results with a valid area, largest first.
func Candidates(edges gocv.Mat, p Params) []Candidate {
	if edges.Empty() {
		return nil
	}

	contours := gocv.FindContours(edges, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	minArea := p.MinAreaRatio * float64(edges.Rows()*edges.Cols())

	var candidates []Candidate
	for i := 0; i < contours.Size(); i++ {
		poly, ok := simplifyHull(contours.At(i), p.EpsilonRatio)
		if !ok || len(poly) != 4 {
			continue
		}

		area := polygonArea(poly)
		if geometry.CompareArea(area, minArea) < 0 || !(area > 0) {
			continue
		}
		candidates = append(candidates, Candidate{Polygon: poly, Area: area})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return geometry.CompareArea(candidates[i].Area, candidates[j].Area) > 0
	})
	return candidates
}

// simplifyHull computes the convex hull of a contour and approximates it with
// a tolerance proportional to the hull perimeter.
func simplifyHull(contour gocv.PointVector, epsilonRatio float64) (geometry.Polygon, bool) {
	if contour.Size() < 3 {
		return nil, false
	}

	hullMat := gocv.NewMat()
	defer hullMat.Close()
	gocv.ConvexHull(contour, &hullMat, false, true)
	if hullMat.Empty() {
		return nil, false
	}

	hull := gocv.NewPointVectorFromMat(hullMat)
	defer hull.Close()

	epsilon := epsilonRatio * gocv.ArcLength(hull, true)
	approx := gocv.ApproxPolyDP(hull, epsilon, true)
	defer approx.Close()

	pts := approx.ToPoints()
	poly := make(geometry.Polygon, len(pts))
	for i, pt := range pts {
		poly[i] = geometry.FromImagePoint(pt)
	}
	return poly, true
}

// polygonArea measures a polygon with the contour-area primitive. Anything
// that is not a finite area is reported as NaN so it never wins a comparison.
func polygonArea(poly geometry.Polygon) float64 {
	pts := make([]image.Point, len(poly))
	for i, v := range poly {
		pts[i] = image.Point{X: v.X, Y: v.Y}
	}
	pv := gocv.NewPointVectorFromPoints(pts)
	defer pv.Close()

	area := gocv.ContourArea(pv)
	if math.IsInf(area, 0) || math.IsNaN(area) {
		return math.NaN()
	}
	return area
}
