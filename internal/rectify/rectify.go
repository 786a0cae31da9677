// Package rectify maps a detected document quadrilateral onto an
// axis-aligned rectangle.
package rectify

import (
	"errors"
	"fmt"
	"image"
	"math"

	"tablescan/pkg/geometry"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// ErrSingularTransform is returned when no homography exists for the
// quadrilateral, e.g. when corners coincide or three of them are collinear.
var ErrSingularTransform = errors.New("singular perspective transform")

// Result holds a rectified image and the transform that produced it.
type Result struct {
	Image     gocv.Mat
	Transform geometry.Homography
	Width     int
	Height    int
}

// Close releases the rectified image.
func (r *Result) Close() error {
	return r.Image.Close()
}

// Dimensions returns the target rectangle size for a quadrilateral: the longer
// of the two horizontal edges and the longer of the two vertical edges.
func Dimensions(q geometry.Quad) (width, height float64) {
	width = math.Max(q.Top().Length(), q.Bottom().Length())
	height = math.Max(q.Left().Length(), q.Right().Length())
	return width, height
}

// Destination returns the target rectangle corners in TL, TR, BR, BL order,
// matching geometry.Quad.Corners.
func Destination(width, height float64) [4]geometry.Point2D {
	return [4]geometry.Point2D{
		{X: 0, Y: 0},
		{X: width - 1, Y: 0},
		{X: width - 1, Y: height - 1},
		{X: 0, Y: height - 1},
	}
}

// Rectify warps src so that the quadrilateral q fills the output image.
func Rectify(src gocv.Mat, q geometry.Quad) (*Result, error) {
	if src.Empty() {
		return nil, fmt.Errorf("empty source image")
	}

	width, height := Dimensions(q)
	w, h := int(math.Round(width)), int(math.Round(height))
	if w < 2 || h < 2 {
		return nil, fmt.Errorf("%w: target size %dx%d", ErrSingularTransform, w, h)
	}

	var corners [4]geometry.Point2D
	for i, c := range q.Corners() {
		corners[i] = c.ToFloat()
	}

	transform, err := EstimateHomography(corners, Destination(width, height))
	if err != nil {
		return nil, err
	}

	return &Result{
		Image:     WarpPerspective(src, transform, w, h),
		Transform: transform,
		Width:     w,
		Height:    h,
	}, nil
}

// EstimateHomography solves for the projective transform that maps each src
// point onto the dst point with the same index. The eight unknowns (h33 fixed
// to 1) are found with a direct linear solve.
func EstimateHomography(src, dst [4]geometry.Point2D) (geometry.Homography, error) {
	if err := checkCorners(src); err != nil {
		return geometry.Homography{}, err
	}
	if err := checkCorners(dst); err != nil {
		return geometry.Homography{}, err
	}

	// For each correspondence (x,y) -> (u,v):
	// u = (h0*x + h1*y + h2) / (h6*x + h7*y + 1)
	// v = (h3*x + h4*y + h5) / (h6*x + h7*y + 1)
	A := mat.NewDense(8, 8, nil)
	B := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y

		A.SetRow(i*2, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		B.SetVec(i*2, u)

		A.SetRow(i*2+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		B.SetVec(i*2+1, v)
	}

	var params mat.VecDense
	if err := params.SolveVec(A, B); err != nil {
		return geometry.Homography{}, fmt.Errorf("%w: %v", ErrSingularTransform, err)
	}

	var h geometry.Homography
	for i := 0; i < 8; i++ {
		h[i] = params.AtVec(i)
		if math.IsNaN(h[i]) || math.IsInf(h[i], 0) {
			return geometry.Homography{}, ErrSingularTransform
		}
	}
	h[8] = 1
	return h, nil
}

// checkCorners rejects duplicate corners and collinear triples.
func checkCorners(pts [4]geometry.Point2D) error {
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			if pts[i] == pts[j] {
				return fmt.Errorf("%w: duplicate corner (%.1f, %.1f)", ErrSingularTransform, pts[i].X, pts[i].Y)
			}
		}
	}
	for i := 0; i < 4; i++ {
		a, b, c := pts[i], pts[(i+1)%4], pts[(i+2)%4]
		if geometry.Collinear(a, b, c, 1e-9) {
			return fmt.Errorf("%w: collinear corners", ErrSingularTransform)
		}
	}
	return nil
}

// WarpPerspective applies a homography to an image.
func WarpPerspective(src gocv.Mat, transform geometry.Homography, width, height int) gocv.Mat {
	transformMat := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer transformMat.Close()
	for r, row := range transform.ToMatrix() {
		for c, v := range row {
			transformMat.SetDoubleAt(r, c, v)
		}
	}

	dst := gocv.NewMat()
	gocv.WarpPerspective(src, &dst, transformMat, image.Point{X: width, Y: height})
	return dst
}
