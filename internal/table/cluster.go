package table

import (
	"sort"

	"tablescan/pkg/geometry"
)

// MeanHeight returns the arithmetic mean of the box heights. The mean of an
// empty set is undefined and reported as ErrNoCellsFound.
func MeanHeight(boxes []geometry.RectInt) (float64, error) {
	if len(boxes) == 0 {
		return 0, ErrNoCellsFound
	}
	var sum int
	for _, b := range boxes {
		sum += b.Height
	}
	return float64(sum) / float64(len(boxes)), nil
}

// ClusterRows groups cell boxes into rows.
//
// Boxes are taken in ascending y. The first unconsumed box anchors a row, and
// every following box with y <= anchor.y + meanHeight/2 joins it. Each row is
// sorted by ascending x. Rows may differ in length.
func ClusterRows(boxes []geometry.RectInt) ([][]geometry.RectInt, error) {
	mean, err := MeanHeight(boxes)
	if err != nil {
		return nil, err
	}

	sorted := make([]geometry.RectInt, len(boxes))
	copy(sorted, boxes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Y < sorted[j].Y
	})

	var rows [][]geometry.RectInt
	for start := 0; start < len(sorted); {
		limit := float64(sorted[start].Y) + mean/2

		end := start + 1
		for end < len(sorted) && float64(sorted[end].Y) <= limit {
			end++
		}

		row := make([]geometry.RectInt, end-start)
		copy(row, sorted[start:end])
		sort.SliceStable(row, func(i, j int) bool {
			return row[i].X < row[j].X
		})
		rows = append(rows, row)
		start = end
	}

	return rows, nil
}
