package processor

import (
	"fmt"
	"strings"

	"gasflow/logger"
	"gasflow/models"
)

// EntryPoint is a point with a yearly quality block and the first year the
// block covers.
type EntryPoint struct {
	Name      string
	StartYear int
}

// QualityLayout describes the blocks of the gas quality sheet. The first of
// Columns is the period (a year), the rest are values.
type QualityLayout struct {
	EntryPoints []EntryPoint
	Columns     []string
	ThroughYear int
}

// ValueColumns returns the column names without the leading period column.
func (l QualityLayout) ValueColumns() []string {
	if len(l.Columns) == 0 {
		return nil
	}
	return l.Columns[1:]
}

// AssembleQuality reads one block per entry point and concatenates them.
// A point whose block cannot be located is skipped with a warning; a cell
// that is not a number fails the whole assembly.
func AssembleQuality(grid models.Grid, layout QualityLayout, locator BlockLocator, log *logger.Entry) ([]models.QualityRecord, error) {
	if log == nil {
		log = logger.GetLogger().WithComponent("quality")
	}
	if len(layout.Columns) < 2 {
		return nil, fmt.Errorf("quality layout needs a period column and at least one value column")
	}

	var records []models.QualityRecord
	for _, point := range layout.EntryPoints {
		start, found := locator.Locate(grid, point.Name)
		if !found {
			log.WithFields(logger.Fields{"point": point.Name}).Warn("entry point block not found in quality sheet; skipping")
			continue
		}

		end := start + layout.ThroughYear - point.StartYear + 1
		if end > len(grid) {
			end = len(grid)
		}

		for r := start; r < end; r++ {
			period := grid.Cell(r, 0)
			if period == "" {
				break
			}
			ts, err := ParsePeriod(period, TimeFormatYear)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", point.Name, r+1, err)
			}

			values := make([]*float64, 0, len(layout.Columns)-1)
			for c := 1; c < len(layout.Columns); c++ {
				v, err := ParseCell(grid.Cell(r, c))
				if err != nil {
					return nil, fmt.Errorf("%s row %d column %q: %w", point.Name, r+1, layout.Columns[c], err)
				}
				values = append(values, v)
			}

			records = append(records, models.QualityRecord{
				Timestamp: ts,
				PointID:   strings.TrimSpace(point.Name),
				Values:    values,
			})
		}
	}
	return records, nil
}
