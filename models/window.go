package models

import (
	"fmt"
	"time"
)

// PartitionWindow is the half-open time range [Start, End) one run covers.
type PartitionWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w PartitionWindow) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

func (w PartitionWindow) Empty() bool {
	return !w.Start.Before(w.End)
}

func (w PartitionWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Split cuts the window into consecutive sub-windows of length step. The last
// one is clamped to End, so together they cover the window exactly.
func (w PartitionWindow) Split(step time.Duration) []PartitionWindow {
	if w.Empty() {
		return nil
	}
	if step <= 0 {
		return []PartitionWindow{w}
	}
	var out []PartitionWindow
	for start := w.Start; start.Before(w.End); start = start.Add(step) {
		end := start.Add(step)
		if end.After(w.End) {
			end = w.End
		}
		out = append(out, PartitionWindow{Start: start, End: end})
	}
	return out
}
