package models

import "strings"

// Grid is one spreadsheet sheet as rows of cell text. Rows can be ragged.
type Grid [][]string

// Cell returns the trimmed cell text, or "" when out of range.
func (g Grid) Cell(row, col int) string {
	if row < 0 || row >= len(g) || col < 0 || col >= len(g[row]) {
		return ""
	}
	return strings.TrimSpace(g[row][col])
}

// Width is the length of the longest row.
func (g Grid) Width() int {
	w := 0
	for _, r := range g {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// RowContains reports whether any cell of the row contains s.
func (g Grid) RowContains(row int, s string) bool {
	if row < 0 || row >= len(g) {
		return false
	}
	for _, cell := range g[row] {
		if strings.Contains(cell, s) {
			return true
		}
	}
	return false
}
