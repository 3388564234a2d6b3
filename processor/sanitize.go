package processor

import (
	"time"

	"gasflow/models"
)

// NormalizeTimestamp converts t to UTC wall clock.
func NormalizeTimestamp(t time.Time) time.Time {
	return t.UTC()
}

// Duplicate is a key shared by more than one row. Rows holds the row indexes
// in table order.
type Duplicate struct {
	Key  string
	Rows []int
}

// FindDuplicates lists every key that appears on more than one row, in order
// of first appearance. The table is left untouched.
func FindDuplicates(t models.Table) []Duplicate {
	seen := make(map[string]int, len(t.Rows))
	var dups []Duplicate
	for i, r := range t.Rows {
		key := t.Key(r)
		first, ok := seen[key]
		if !ok {
			seen[key] = i
			continue
		}
		if first >= 0 {
			dups = append(dups, Duplicate{Key: key, Rows: []int{first, i}})
			seen[key] = -len(dups)
			continue
		}
		d := &dups[-first-1]
		d.Rows = append(d.Rows, i)
	}
	return dups
}

// DuplicateRows counts the rows involved in duplicates.
func DuplicateRows(dups []Duplicate) int {
	n := 0
	for _, d := range dups {
		n += len(d.Rows)
	}
	return n
}
