// Package cells crops table cells, normalises them and hands them to an OCR
// capability.
package cells

import (
	"context"
	"errors"
	"image"
	"sort"

	"tablescan/internal/table"
	"tablescan/pkg/geometry"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

// Recognizer turns a small, binarised cell image into text.
// Implementations need not be safe for concurrent use.
type Recognizer interface {
	Recognize(img gocv.Mat) (string, error)
}

// RecognizedCell is one extracted cell and the text read from it. Text is
// empty when recognition failed.
type RecognizedCell struct {
	Row    int              `json:"row"`
	Column int              `json:"column"`
	Box    geometry.RectInt `json:"box"`
	Text   string           `json:"text"`
}

// Target is a cell selected for extraction. Crop may differ from Box when the
// left edge was shaved.
type Target struct {
	Row    int
	Column int
	Box    geometry.RectInt
	Crop   geometry.RectInt
}

// Extractor runs recognition over the selected cells of a table. Rows are
// processed in parallel, one recognizer per worker.
type Extractor struct {
	params Params
	pool   chan Recognizer
	log    *logrus.Entry
}

// NewExtractor creates an Extractor. Each recognizer is used by at most one
// goroutine at a time, so the number of recognizers bounds the parallelism.
func NewExtractor(p Params, recognizers []Recognizer, log *logrus.Entry) (*Extractor, error) {
	if len(recognizers) == 0 {
		return nil, errors.New("cells: at least one recognizer is required")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	pool := make(chan Recognizer, len(recognizers))
	for _, r := range recognizers {
		pool <- r
	}
	return &Extractor{params: p, pool: pool, log: log}, nil
}

// Workers returns the number of recognizers in the pool.
func (e *Extractor) Workers() int {
	return cap(e.pool)
}

// Extract recognises every selected cell of t. Cells whose normalised crop is
// empty are skipped; OCR failures yield an empty Text. The result is ordered
// by row, then column. Only context cancellation is returned as an error.
func (e *Extractor) Extract(ctx context.Context, t *table.Table) ([]RecognizedCell, error) {
	targets := Select(t, e.params)
	if len(targets) == 0 {
		return nil, nil
	}

	groups := groupByRow(targets)
	results := make([][]RecognizedCell, len(groups))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Workers())

	for i, group := range groups {
		g.Go(func() error {
			rec, err := e.borrow(ctx)
			if err != nil {
				return err
			}
			defer e.release(rec)

			for _, target := range group {
				if err := ctx.Err(); err != nil {
					return err
				}
				if cell, ok := e.recognize(t.Image, target, rec); ok {
					results[i] = append(results[i], cell)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var cells []RecognizedCell
	for _, rs := range results {
		cells = append(cells, rs...)
	}
	return cells, nil
}

func (e *Extractor) recognize(img gocv.Mat, target Target, rec Recognizer) (RecognizedCell, bool) {
	crop, ok := Normalize(img, target.Crop, e.params)
	if !ok {
		return RecognizedCell{}, false
	}
	defer crop.Close()

	cell := RecognizedCell{Row: target.Row, Column: target.Column, Box: target.Box}
	text, err := rec.Recognize(crop)
	if err != nil {
		e.log.WithFields(logrus.Fields{
			"row":    target.Row,
			"column": target.Column,
		}).WithError(err).Warn("cell recognition failed")
		return cell, true
	}
	cell.Text = text
	return cell, true
}

func (e *Extractor) borrow(ctx context.Context) (Recognizer, error) {
	select {
	case r := <-e.pool:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Extractor) release(r Recognizer) {
	e.pool <- r
}

// Select applies the column and size filters to the table and returns the
// cells to extract in row-major order.
func Select(t *table.Table, p Params) []Target {
	if t == nil {
		return nil
	}

	// The first box of a column that passes the size filter fixes the
	// column's reference left edge.
	refX := map[int]int{}

	var targets []Target
	for r, row := range t.Rows {
		if len(row) < p.MinRowCells {
			continue
		}

		columns := []int{p.Column}
		if p.Column == AllColumns {
			columns = columns[:0]
			for c := range row {
				columns = append(columns, c)
			}
		}

		for _, c := range columns {
			if c < 0 || c >= len(row) {
				continue
			}
			box := row[c]
			if box.Width <= p.MinWidth || box.Height <= p.MinHeight {
				continue
			}
			if _, ok := refX[c]; !ok {
				refX[c] = box.X - p.LeftSlack
			}

			crop := box
			if box.X < refX[c] {
				crop.X += p.Delta
				crop.Width -= p.Delta
			}
			targets = append(targets, Target{Row: r, Column: c, Box: box, Crop: crop})
		}
	}
	return targets
}

// Normalize crops box from img, upscales it, mends broken strokes with a
// closing, binarises and trims Delta*Scale pixels from every edge. It reports
// false when nothing is left.
func Normalize(img gocv.Mat, box geometry.RectInt, p Params) (gocv.Mat, bool) {
	bounds := geometry.RectInt{Width: img.Cols(), Height: img.Rows()}
	region := box.Intersect(bounds)
	if region.Empty() {
		return gocv.Mat{}, false
	}

	scale := max(1, p.Scale)

	crop := img.Region(region.ToImage())
	defer crop.Close()

	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(crop, &scaled, image.Point{X: region.Width * scale, Y: region.Height * scale}, 0, 0, gocv.InterpolationLinear)

	kernel := gocv.GetStructuringElement(gocv.MorphCross, image.Point{X: 3, Y: 3})
	defer kernel.Close()

	closed := gocv.NewMat()
	defer closed.Close()
	gocv.MorphologyEx(scaled, &closed, gocv.MorphClose, kernel)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(closed, &binary, p.Threshold, 255, gocv.ThresholdBinary)

	inner := geometry.RectInt{Width: binary.Cols(), Height: binary.Rows()}.Inset(p.Delta * scale)
	if inner.Empty() {
		return gocv.Mat{}, false
	}

	trimmed := binary.Region(inner.ToImage())
	defer trimmed.Close()
	return trimmed.Clone(), true
}

// groupByRow splits row-major targets into one slice per row.
func groupByRow(targets []Target) [][]Target {
	var groups [][]Target
	for i, t := range targets {
		if i == 0 || t.Row != targets[i-1].Row {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], t)
	}
	return groups
}

// Grid folds recognised cells into a row-major text grid. Rows and columns
// that produced no cell are left out; gaps inside a row are empty strings.
func Grid(cells []RecognizedCell) [][]string {
	if len(cells) == 0 {
		return nil
	}

	rows := indexOf(cells, func(c RecognizedCell) int { return c.Row })
	cols := indexOf(cells, func(c RecognizedCell) int { return c.Column })

	grid := make([][]string, len(rows))
	for i := range grid {
		grid[i] = make([]string, len(cols))
	}
	for _, c := range cells {
		grid[rows[c.Row]][cols[c.Column]] = c.Text
	}
	return grid
}

// indexOf maps each distinct key to its rank among all keys.
func indexOf(cells []RecognizedCell, key func(RecognizedCell) int) map[int]int {
	seen := map[int]bool{}
	var keys []int
	for _, c := range cells {
		k := key(c)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)

	index := make(map[int]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}
	return index
}
