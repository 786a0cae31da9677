// Package table recovers the cell grid of a ruled table from a rectified page.
package table

import (
	"errors"
	"fmt"
	"image"

	"tablescan/pkg/geometry"

	"gocv.io/x/gocv"
)

// ErrNoCellsFound is returned when no cell boxes survive extraction.
var ErrNoCellsFound = errors.New("no table cells found")

// Params configures ruling-line isolation and cell tracing.
type Params struct {
	// Kernel lengths are the image dimension divided by these values.
	HorizontalDivisor int
	VerticalDivisor   int

	// Iterations of the opening that isolates ruling lines.
	Iterations int
	// IntersectionErosions is how often the inverted ruling mask is eroded
	// with a 3x3 cross to close gaps at line crossings.
	IntersectionErosions int

	// Blend weight of the vertical mask; the horizontal mask gets 1-LineWeight.
	LineWeight float64

	// GridCellsOnly keeps only the white regions nested inside the table
	// outline, dropping the page margin, the outline hole and any holes left
	// inside a cell by stray ruling.
	GridCellsOnly bool

	// Binarize applies Otsu and inversion first, so dark ruling on a light
	// page becomes foreground. Disable for input that is already inverted.
	Binarize bool
}

// DefaultParams returns default table extraction parameters.
func DefaultParams() Params {
	return Params{
		HorizontalDivisor:    50,
		VerticalDivisor:      35,
		Iterations:           8,
		IntersectionErosions: 2,
		LineWeight:           0.5,
		GridCellsOnly:        true,
		Binarize:             true,
	}
}

// Table is the recovered grid. Rows are ordered top to bottom and the boxes
// of each row left to right; rows may have different lengths.
type Table struct {
	Image gocv.Mat
	Rows  [][]geometry.RectInt
}

// Close releases the table image.
func (t *Table) Close() error {
	return t.Image.Close()
}

// Cells returns the total number of boxes.
func (t *Table) Cells() int {
	n := 0
	for _, row := range t.Rows {
		n += len(row)
	}
	return n
}

// Columns returns the length of the longest row.
func (t *Table) Columns() int {
	n := 0
	for _, row := range t.Rows {
		n = max(n, len(row))
	}
	return n
}

// Extract finds the cell boxes of the table in img and groups them into rows.
// The table keeps its own copy of img.
func Extract(img gocv.Mat, p Params) (*Table, error) {
	boxes, err := Boxes(img, p)
	if err != nil {
		return nil, err
	}

	rows, err := ClusterRows(boxes)
	if err != nil {
		return nil, err
	}

	return &Table{Image: img.Clone(), Rows: rows}, nil
}

// Boxes returns the bounding boxes of the regions enclosed by ruling lines.
func Boxes(img gocv.Mat, p Params) ([]geometry.RectInt, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrNoCellsFound)
	}

	binary := gocv.NewMat()
	defer binary.Close()
	if p.Binarize {
		gocv.Threshold(img, &binary, 128, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
		gocv.BitwiseNot(binary, &binary)
	} else {
		img.CopyTo(&binary)
	}

	lines := RulingMask(binary, p)
	defer lines.Close()

	cells := cellMask(lines, p)
	defer cells.Close()

	hierarchy := gocv.NewMat()
	defer hierarchy.Close()
	contours := gocv.FindContoursWithParams(cells, &hierarchy, gocv.RetrievalTree, gocv.ChainApproxSimple)
	defer contours.Close()

	links := hierarchyLinks(hierarchy, contours.Size())
	depths := nestingDepths(links)

	var boxes []geometry.RectInt
	for i := 0; i < contours.Size(); i++ {
		if p.GridCellsOnly && !isGridCell(depths[i], links[i].child >= 0) {
			continue
		}
		box := geometry.FromImageRect(gocv.BoundingRect(contours.At(i)))
		if box.Empty() {
			continue
		}
		boxes = append(boxes, box)
	}

	if len(boxes) == 0 {
		return nil, ErrNoCellsFound
	}
	return boxes, nil
}

// RulingMask isolates horizontal and vertical ruling lines of a binary image
// (foreground = ink) and blends them into a single mask.
func RulingMask(binary gocv.Mat, p Params) gocv.Mat {
	horizontalKernel := gocv.GetStructuringElement(gocv.MorphRect,
		image.Point{X: max(1, binary.Cols()/p.HorizontalDivisor), Y: 1})
	defer horizontalKernel.Close()

	verticalKernel := gocv.GetStructuringElement(gocv.MorphRect,
		image.Point{X: 1, Y: max(1, binary.Rows()/p.VerticalDivisor)})
	defer verticalKernel.Close()

	horizontal := openIterated(binary, horizontalKernel, p.Iterations)
	defer horizontal.Close()

	vertical := openIterated(binary, verticalKernel, p.Iterations)
	defer vertical.Close()

	blended := gocv.NewMat()
	gocv.AddWeighted(vertical, p.LineWeight, horizontal, 1-p.LineWeight, 0, &blended)
	return blended
}

// cellMask turns the ruling mask into white cell interiors on black lines.
func cellMask(lines gocv.Mat, p Params) gocv.Mat {
	inverted := gocv.NewMat()
	defer inverted.Close()
	gocv.BitwiseNot(lines, &inverted)

	cross := gocv.GetStructuringElement(gocv.MorphCross, image.Point{X: 3, Y: 3})
	defer cross.Close()
	for i := 0; i < p.IntersectionErosions; i++ {
		gocv.Erode(inverted, &inverted, cross)
	}

	cells := gocv.NewMat()
	gocv.Threshold(inverted, &cells, 128, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	return cells
}

// openIterated erodes n times and then dilates n times, which is how OpenCV
// interprets an opening with an iteration count.
func openIterated(src, kernel gocv.Mat, n int) gocv.Mat {
	dst := src.Clone()
	for i := 0; i < n; i++ {
		gocv.Erode(dst, &dst, kernel)
	}
	for i := 0; i < n; i++ {
		gocv.Dilate(dst, &dst, kernel)
	}
	return dst
}

// link holds the tree links of one contour.
type link struct {
	child  int
	parent int
}

// hierarchyLinks reads the first-child and parent links of n contours.
// Hierarchy entries are [next, previous, first child, parent].
func hierarchyLinks(hierarchy gocv.Mat, n int) []link {
	links := make([]link, n)
	for i := range links {
		links[i] = link{child: -1, parent: -1}
		if hierarchy.Empty() {
			continue
		}
		v := hierarchy.GetVeciAt(0, i)
		links[i] = link{child: int(v[2]), parent: int(v[3])}
	}
	return links
}

// nestingDepths returns how many contours enclose each contour. Top-level
// contours have depth 0.
func nestingDepths(links []link) []int {
	depths := make([]int, len(links))
	for i := range depths {
		depths[i] = -1
	}

	var depth func(i int) int
	depth = func(i int) int {
		if depths[i] >= 0 {
			return depths[i]
		}
		d := 0
		if p := links[i].parent; p >= 0 && p < len(links) && p != i {
			depths[i] = 0 // guards against malformed cycles
			d = depth(p) + 1
		}
		depths[i] = d
		return d
	}

	for i := range links {
		depth(i)
	}
	return depths
}

// isGridCell decides whether a contour of the cell mask outlines a cell.
// Even depths are outer borders of white regions, odd depths are holes. The
// page margin sits at depth 0 and encloses the table outline hole at depth 1,
// so cells start at depth 2. A childless top-level region is kept too: it is a
// cell of a table that fills the whole image.
func isGridCell(depth int, hasChild bool) bool {
	if depth%2 != 0 {
		return false
	}
	return depth >= 2 || !hasChild
}
