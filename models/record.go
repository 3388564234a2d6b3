package models

import (
	"fmt"
	"strings"
	"time"
)

// PointType tags a measurement point as an entry into or an exit from the system
type PointType string

const (
	Entry PointType = "entry"
	Exit  PointType = "exit"
)

// Key column names understood by the storage layer
const (
	KeyTimestamp = "timestamp"
	KeyPointID   = "point_id"
	KeyPointType = "point_type"
)

// LongRecord is one observation of one point at one period
type LongRecord struct {
	Timestamp time.Time `json:"timestamp"`
	PointID   string    `json:"point_id"`
	PointType PointType `json:"point_type"`
	Value     *float64  `json:"value"` // nil = missing
}

// QualityRecord is one yearly gas quality row of an entry point. Values
// follow the column order of the quality layout, timestamp excluded.
type QualityRecord struct {
	Timestamp time.Time  `json:"timestamp"`
	PointID   string     `json:"point_id"`
	Values    []*float64 `json:"values"`
}

// Row is a table row. Only the key fields named by the table's KeyColumns
// are meaningful.
type Row struct {
	Timestamp time.Time
	PointID   string
	PointType PointType
	Values    []*float64
}

// Table is the unit handed to storage: named key columns, named nullable
// float64 value columns and rows.
type Table struct {
	KeyColumns   []string
	ValueColumns []string
	Rows         []Row
}

func (t Table) Len() int {
	return len(t.Rows)
}

// Key renders the key columns of a row, e.g. "2024-01-01T00:00:00Z|KIPI|entry".
func (t Table) Key(r Row) string {
	parts := make([]string, 0, len(t.KeyColumns))
	for _, col := range t.KeyColumns {
		parts = append(parts, r.keyValue(col))
	}
	return strings.Join(parts, "|")
}

func (r Row) keyValue(col string) string {
	switch col {
	case KeyTimestamp:
		return r.Timestamp.Format(time.RFC3339)
	case KeyPointID:
		return r.PointID
	case KeyPointType:
		return string(r.PointType)
	}
	return ""
}

// Append concatenates the rows of other onto t. Both tables must share a schema.
func (t Table) Append(other Table) (Table, error) {
	if len(t.KeyColumns) == 0 && len(t.ValueColumns) == 0 {
		return other, nil
	}
	if strings.Join(t.KeyColumns, ",") != strings.Join(other.KeyColumns, ",") ||
		strings.Join(t.ValueColumns, ",") != strings.Join(other.ValueColumns, ",") {
		return t, fmt.Errorf("cannot append table %v/%v to %v/%v", other.KeyColumns, other.ValueColumns, t.KeyColumns, t.ValueColumns)
	}
	t.Rows = append(t.Rows, other.Rows...)
	return t, nil
}

// LongTable builds the (timestamp, point_id, point_type) -> value table.
func LongTable(records []LongRecord) Table {
	t := Table{
		KeyColumns:   []string{KeyTimestamp, KeyPointID, KeyPointType},
		ValueColumns: []string{"value"},
		Rows:         make([]Row, 0, len(records)),
	}
	for _, r := range records {
		t.Rows = append(t.Rows, Row{
			Timestamp: r.Timestamp,
			PointID:   r.PointID,
			PointType: r.PointType,
			Values:    []*float64{r.Value},
		})
	}
	return t
}

// QualityTable builds the (timestamp, point_id) -> quality columns table.
func QualityTable(columns []string, records []QualityRecord) Table {
	t := Table{
		KeyColumns:   []string{KeyTimestamp, KeyPointID},
		ValueColumns: append([]string(nil), columns...),
		Rows:         make([]Row, 0, len(records)),
	}
	for _, r := range records {
		t.Rows = append(t.Rows, Row{
			Timestamp: r.Timestamp,
			PointID:   r.PointID,
			Values:    r.Values,
		})
	}
	return t
}

// Output is the result of an asset run: a table, or nothing at all.
// An absent output is different from a table with zero rows.
type Output struct {
	table *Table
}

func Present(t Table) Output {
	return Output{table: &t}
}

func Absent() Output {
	return Output{}
}

func (o Output) IsAbsent() bool {
	return o.table == nil
}

func (o Output) Table() (Table, bool) {
	if o.table == nil {
		return Table{}, false
	}
	return *o.table, true
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
