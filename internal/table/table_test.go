package table

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

func box(x, y, w, h int) geometry.RectInt {
	return geometry.RectInt{X: x, Y: y, Width: w, Height: h}
}

func TestClusterRowsSeparatedRows(t *testing.T) {
	const h = 20
	boxes := []geometry.RectInt{
		box(5, 100, 40, h),
		box(7, 0, 40, h),
		box(3, 50, 40, h),
		box(9, 25, 40, h),
	}

	rows, err := ClusterRows(boxes)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for _, row := range rows {
		assert.Len(t, row, 1)
	}
	assert.Equal(t, 0, rows[0][0].Y)
	assert.Equal(t, 25, rows[1][0].Y)
	assert.Equal(t, 50, rows[2][0].Y)
	assert.Equal(t, 100, rows[3][0].Y)
}

func TestClusterRowsSingleRowSortedByX(t *testing.T) {
	boxes := []geometry.RectInt{
		box(300, 10, 50, 30),
		box(10, 10, 50, 30),
		box(150, 10, 50, 30),
		box(75, 10, 50, 30),
	}

	rows, err := ClusterRows(boxes)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var xs []int
	for _, b := range rows[0] {
		xs = append(xs, b.X)
	}
	assert.Equal(t, []int{10, 75, 150, 300}, xs)
}

func TestClusterRowsToleratesJitterAndRaggedRows(t *testing.T) {
	boxes := []geometry.RectInt{
		box(200, 12, 90, 40),
		box(10, 10, 90, 40),
		box(110, 14, 90, 40),
		box(10, 60, 90, 40),
		box(110, 58, 90, 40),
	}

	rows, err := ClusterRows(boxes)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 3)
	assert.Len(t, rows[1], 2)
	assert.Equal(t, 10, rows[0][0].X)
	assert.Equal(t, 200, rows[0][2].X)
	assert.Equal(t, 110, rows[1][1].X)
}

func TestClusterRowsKeepsEveryBox(t *testing.T) {
	boxes := []geometry.RectInt{
		box(0, 0, 10, 10), box(20, 3, 10, 10), box(0, 40, 10, 10),
		box(20, 44, 10, 10), box(0, 80, 10, 10),
	}
	rows, err := ClusterRows(boxes)
	require.NoError(t, err)

	n := 0
	for _, row := range rows {
		n += len(row)
	}
	assert.Equal(t, len(boxes), n)
}

func TestClusterRowsEmpty(t *testing.T) {
	_, err := ClusterRows(nil)
	assert.True(t, errors.Is(err, ErrNoCellsFound))

	_, err = MeanHeight(nil)
	assert.True(t, errors.Is(err, ErrNoCellsFound))
}

// ruledTable draws a grid of rows x cols cells, each cellW x cellH, with
// black lines on a white page.
func ruledTable(t *testing.T, pageW, pageH, originX, originY, rows, cols, cellW, cellH int) gocv.Mat {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), pageH, pageW, gocv.MatTypeCV8U)
	black := color.RGBA{A: 255}

	right := originX + cols*cellW
	bottom := originY + rows*cellH
	for r := 0; r <= rows; r++ {
		y := originY + r*cellH
		gocv.Line(&img, image.Pt(originX, y), image.Pt(right, y), black, 2)
	}
	for c := 0; c <= cols; c++ {
		x := originX + c*cellW
		gocv.Line(&img, image.Pt(x, originY), image.Pt(x, bottom), black, 2)
	}
	return img
}

func TestExtractRuledTable(t *testing.T) {
	img := ruledTable(t, 600, 400, 50, 50, 3, 2, 250, 100)
	defer img.Close()

	tbl, err := Extract(img, DefaultParams())
	require.NoError(t, err)
	defer tbl.Close()

	require.Len(t, tbl.Rows, 3)
	for i, row := range tbl.Rows {
		require.Len(t, row, 2, "row %d", i)
		assert.Less(t, row[0].X, row[1].X)
		assert.InDelta(t, 240, row[0].Width, 15)
		assert.InDelta(t, 90, row[0].Height, 15)
	}
	assert.Less(t, tbl.Rows[0][0].Y, tbl.Rows[1][0].Y)
	assert.Less(t, tbl.Rows[1][0].Y, tbl.Rows[2][0].Y)
	assert.Equal(t, 6, tbl.Cells())
	assert.Equal(t, 2, tbl.Columns())
	assert.False(t, tbl.Image.Empty())
}

func TestExtractKeepsCellWithStrayRuling(t *testing.T) {
	img := ruledTable(t, 600, 400, 50, 50, 3, 2, 250, 100)
	defer img.Close()

	// An underline spanning 60% of the first cell survives the line opening.
	gocv.Line(&img, image.Pt(100, 100), image.Pt(250, 100), color.RGBA{A: 255}, 2)

	tbl, err := Extract(img, DefaultParams())
	require.NoError(t, err)
	defer tbl.Close()

	require.Len(t, tbl.Rows, 3)
	for i, row := range tbl.Rows {
		require.Len(t, row, 2, "row %d", i)
		assert.InDelta(t, 90, row[0].Height, 15, "row %d", i)
	}
}

func TestNestingDepths(t *testing.T) {
	// 0: page margin, 1: outline hole, 2-3: cells, 4: hole inside cell 2,
	// 5: region inside that hole.
	links := []link{
		{child: 1, parent: -1},
		{child: 2, parent: 0},
		{child: 4, parent: 1},
		{child: -1, parent: 1},
		{child: 5, parent: 2},
		{child: -1, parent: 4},
	}
	depths := nestingDepths(links)
	assert.Equal(t, []int{0, 1, 2, 2, 3, 4}, depths)

	var kept []int
	for i, d := range depths {
		if isGridCell(d, links[i].child >= 0) {
			kept = append(kept, i)
		}
	}
	assert.Equal(t, []int{2, 3, 5}, kept)
}

func TestNestingDepthsCycle(t *testing.T) {
	links := []link{{child: -1, parent: 1}, {child: -1, parent: 0}}
	assert.NotPanics(t, func() { nestingDepths(links) })
}

func TestIsGridCellTopLevel(t *testing.T) {
	assert.True(t, isGridCell(0, false))
	assert.False(t, isGridCell(0, true))
	assert.False(t, isGridCell(1, false))
}

func TestExtractWithoutCellFilterKeepsOutlines(t *testing.T) {
	img := ruledTable(t, 600, 400, 50, 50, 3, 2, 250, 100)
	defer img.Close()

	p := DefaultParams()
	p.GridCellsOnly = false
	boxes, err := Boxes(img, p)
	require.NoError(t, err)
	assert.Greater(t, len(boxes), 6)
}

func TestExtractNoCells(t *testing.T) {
	black := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 200, 300, gocv.MatTypeCV8U)
	defer black.Close()

	_, err := Extract(black, DefaultParams())
	assert.True(t, errors.Is(err, ErrNoCellsFound))

	empty := gocv.NewMat()
	defer empty.Close()
	_, err = Extract(empty, DefaultParams())
	assert.True(t, errors.Is(err, ErrNoCellsFound))
}
