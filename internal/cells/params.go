package cells

// AllColumns selects every column of the table for extraction.
const AllColumns = -1

// Params configures which cells are extracted and how they are normalised
// before recognition.
type Params struct {
	// Column is the column index to extract, or AllColumns.
	Column int
	// MinRowCells skips rows with fewer boxes; short rows are usually ruling
	// noise or header fragments.
	MinRowCells int
	// Boxes must be strictly larger than these to be extracted.
	MinWidth  int
	MinHeight int

	// Delta is the margin in source pixels shaved off to keep ruling lines
	// out of the crop.
	Delta int
	// Scale is the integer upscaling factor applied before recognition.
	Scale int
	// LeftSlack is how far left of the column's first box another box may
	// start before its left edge is shaved by Delta.
	LeftSlack int
	// Threshold for the final binarisation.
	Threshold float32
}

// DefaultParams returns the "name column" configuration: column 1 of rows
// with at least three cells.
func DefaultParams() Params {
	return Params{
		Column:      1,
		MinRowCells: 3,
		MinWidth:    10,
		MinHeight:   10,
		Delta:       1,
		Scale:       2,
		LeftSlack:   10,
		Threshold:   128,
	}
}

// WithColumn returns a copy of params selecting a different column.
func (p Params) WithColumn(column int) Params {
	p.Column = column
	return p
}

// WithMinSize returns a copy of params with a different minimum box size.
func (p Params) WithMinSize(width, height int) Params {
	p.MinWidth = width
	p.MinHeight = height
	return p
}
