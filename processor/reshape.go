package processor

import (
	"fmt"
	"strings"
	"time"

	"gasflow/models"
)

// WideLayout locates the table inside a wide sheet where rows are periods and
// columns are points.
type WideLayout struct {
	SkipRows            int
	DropColumns         []int
	TrimTrailingColumns int
	TrimTrailingRows    int
	AggregateMarker     string
	EntryColumns        int
	TimeFormat          TimeFormat
}

// Reshape melts a wide sheet into long records, one per (period, point).
// Header columns after the period column are points: the first EntryColumns
// of them are entries, the rest exits. Records come out point by point.
func Reshape(grid models.Grid, layout WideLayout) ([]models.LongRecord, error) {
	rows := strip(grid, layout)

	headerAt := -1
	for i, row := range rows {
		if !isBlank(row.cells) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, fmt.Errorf("no header row after skipping %d rows", layout.SkipRows)
	}
	header := rows[headerAt].cells

	type point struct {
		col  int
		id   string
		kind models.PointType
	}
	var points []point
	for col := 1; col < len(header); col++ {
		label := strings.TrimSpace(header[col])
		if label == "" {
			continue
		}
		kind := models.Exit
		if len(points) < layout.EntryColumns {
			kind = models.Entry
		}
		points = append(points, point{col: col, id: label, kind: kind})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("header row has no point columns")
	}

	var periods []sheetRow
	var stamps []time.Time
	for _, row := range rows[headerAt+1:] {
		if row.cells[0] == "" {
			continue
		}
		ts, err := ParsePeriod(row.cells[0], layout.TimeFormat)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row.line+1, err)
		}
		periods = append(periods, row)
		stamps = append(stamps, ts)
	}

	records := make([]models.LongRecord, 0, len(points)*len(periods))
	for _, pt := range points {
		for i, row := range periods {
			v, err := ParseCell(row.cells[pt.col])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", row.line+1, pt.id, err)
			}
			records = append(records, models.LongRecord{
				Timestamp: stamps[i],
				PointID:   pt.id,
				PointType: pt.kind,
				Value:     v,
			})
		}
	}
	return records, nil
}

type sheetRow struct {
	cells []string
	line  int // zero-based row in the source grid
}

// strip applies the row and column trims of the layout and drops aggregate
// rows. Every returned row has the same, non-zero width.
func strip(grid models.Grid, layout WideLayout) []sheetRow {
	width := grid.Width()
	dropped := map[int]bool{}
	for _, c := range layout.DropColumns {
		dropped[c] = true
	}

	end := len(grid) - layout.TrimTrailingRows
	var out []sheetRow
	for r := layout.SkipRows; r < end; r++ {
		cells := make([]string, 0, width)
		for c := 0; c < width; c++ {
			if dropped[c] {
				continue
			}
			cells = append(cells, grid.Cell(r, c))
		}
		if n := len(cells) - layout.TrimTrailingColumns; n > 0 {
			cells = cells[:n]
		} else {
			cells = []string{""}
		}
		if layout.AggregateMarker != "" && strings.Contains(cells[0], layout.AggregateMarker) {
			continue
		}
		out = append(out, sheetRow{cells: cells, line: r})
	}
	return out
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
