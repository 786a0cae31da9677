package quad

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"tablescan/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

func blankMat(t *testing.T, rows, cols int) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8U)
	t.Cleanup(func() { m.Close() })
	return m
}

func edgesOf(t *testing.T, img gocv.Mat) gocv.Mat {
	t.Helper()
	edges := gocv.NewMat()
	t.Cleanup(func() { edges.Close() })
	gocv.Canny(img, &edges, 50, 150)
	return edges
}

func TestDetectWhiteRectangle(t *testing.T) {
	img := blankMat(t, 300, 400)
	gocv.Rectangle(&img, image.Rect(10, 10, 311, 211), white, -1)

	q, err := Detect(edgesOf(t, img), DefaultParams())
	require.NoError(t, err)

	assert.InEpsilon(t, 300.0*200.0, q.Area(), 0.01)
	assert.InDelta(t, 10, q.TopLeft.X, 2)
	assert.InDelta(t, 10, q.TopLeft.Y, 2)
	assert.InDelta(t, 310, q.BottomRight.X, 2)
	assert.InDelta(t, 210, q.BottomRight.Y, 2)
	assert.Less(t, q.TopLeft.X, q.TopRight.X)
	assert.Less(t, q.TopRight.Y, q.BottomRight.Y)
}

func TestDetectPicksLargestQuadrilateral(t *testing.T) {
	img := blankMat(t, 400, 500)
	gocv.Rectangle(&img, image.Rect(20, 20, 81, 71), white, -1)
	gocv.Rectangle(&img, image.Rect(150, 100, 451, 351), white, -1)

	edges := edgesOf(t, img)
	candidates := Candidates(edges, DefaultParams())
	require.Len(t, candidates, 2)
	assert.Greater(t, candidates[0].Area, candidates[1].Area)

	q, err := Detect(edges, DefaultParams())
	require.NoError(t, err)
	assert.InDelta(t, 150, q.TopLeft.X, 2)
	assert.InDelta(t, 100, q.TopLeft.Y, 2)
}

func TestDetectMinAreaRatio(t *testing.T) {
	img := blankMat(t, 400, 500)
	gocv.Rectangle(&img, image.Rect(20, 20, 81, 71), white, -1)

	p := DefaultParams()
	p.MinAreaRatio = 0.1
	_, err := Detect(edgesOf(t, img), p)
	assert.True(t, errors.Is(err, ErrNoQuadrilateralFound))
}

func TestDetectNoContours(t *testing.T) {
	img := blankMat(t, 200, 200)

	_, err := Detect(edgesOf(t, img), DefaultParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoQuadrilateralFound))
}

func TestDetectIgnoresNonQuadrilaterals(t *testing.T) {
	img := blankMat(t, 300, 300)
	gocv.Circle(&img, image.Pt(150, 150), 100, white, -1)

	_, err := Detect(edgesOf(t, img), DefaultParams())
	assert.True(t, errors.Is(err, ErrNoQuadrilateralFound))
}

func TestDetectEmptyMat(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()

	assert.Empty(t, Candidates(empty, DefaultParams()))
	_, err := Detect(empty, DefaultParams())
	assert.True(t, errors.Is(err, ErrNoQuadrilateralFound))
}

func TestPolygonAreaMatchesShoelace(t *testing.T) {
	poly := geometry.Polygon{{0, 0}, {40, 0}, {40, 30}, {0, 30}}
	assert.InDelta(t, poly.Area(), polygonArea(poly), 1e-9)
}

func TestChooseSkipsDegenerateCandidates(t *testing.T) {
	candidates := []Candidate{
		// Three vertices on y=0: every corner assignment has a straight angle.
		{Polygon: geometry.Polygon{{0, 0}, {100, 0}, {200, 0}, {100, 100}}, Area: 10000},
		// All vertices coincide with the centroid and cannot be ordered.
		{Polygon: geometry.Polygon{{5, 5}, {5, 5}, {5, 5}, {5, 5}}, Area: 5000},
		{Polygon: geometry.Polygon{{10, 10}, {60, 10}, {60, 40}, {10, 40}}, Area: 1500},
	}

	q, err := choose(candidates)
	require.NoError(t, err)
	assert.Equal(t, geometry.PointInt{X: 10, Y: 10}, q.TopLeft)
	assert.Equal(t, geometry.PointInt{X: 60, Y: 10}, q.TopRight)
	assert.Equal(t, geometry.PointInt{X: 60, Y: 40}, q.BottomRight)
	assert.Equal(t, geometry.PointInt{X: 10, Y: 40}, q.BottomLeft)
}

func TestChooseAllDegenerate(t *testing.T) {
	_, err := choose([]Candidate{
		{Polygon: geometry.Polygon{{0, 0}, {100, 0}, {200, 0}, {100, 100}}, Area: 10000},
		{Polygon: geometry.Polygon{{5, 5}, {5, 5}, {5, 5}, {5, 5}}, Area: 5000},
	})
	assert.True(t, errors.Is(err, ErrNoQuadrilateralFound))

	_, err = choose(nil)
	assert.True(t, errors.Is(err, ErrNoQuadrilateralFound))
}
