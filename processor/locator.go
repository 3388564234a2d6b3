package processor

import (
	"fmt"

	"gasflow/models"
)

// BlockLocator finds the first data row of an entry point's block in a
// quality sheet.
type BlockLocator interface {
	Locate(grid models.Grid, point string) (start int, found bool)
}

// MarkerLocator looks for the first row with a cell containing the point's
// marker text and returns the row Offset rows below it.
type MarkerLocator struct {
	Format string // e.g. "Entry Point: %s"
	Offset int
}

func (m MarkerLocator) Locate(grid models.Grid, point string) (int, bool) {
	marker := fmt.Sprintf(m.Format, point)
	for i := range grid {
		if grid.RowContains(i, marker) {
			return i + m.Offset, true
		}
	}
	return 0, false
}
