package processor

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// missingMarkers are cells that stand for "no value".
var missingMarkers = map[string]bool{
	"-": true, "–": true, "—": true,
}

// thousandsRe matches numbers whose commas can only be thousands separators.
var thousandsRe = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// ParseCell turns a spreadsheet value cell into a number. Blank cells and
// lone dashes are missing (nil). A leading "<" is dropped, so "<1.2" reads
// as 1.2. Commas are removed only when they group thousands, as in
// "1,234.5"; any other comma, such as the decimal comma of "11,73", is an
// error.
func ParseCell(cell string) (*float64, error) {
	s := strings.TrimSpace(cell)
	if s == "" || missingMarkers[s] {
		return nil, nil
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "<"))
	s = strings.ReplaceAll(s, "\u00a0", "")
	if strings.Contains(s, ",") {
		if !thousandsRe.MatchString(s) {
			return nil, fmt.Errorf("not a number: %q", cell)
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	if s == "" || missingMarkers[s] {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("not a number: %q", cell)
	}
	return &v, nil
}

// TimeFormat says how the period column of a sheet is written.
type TimeFormat string

const (
	TimeFormatYear TimeFormat = "year"
	TimeFormatDate TimeFormat = "date"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"2.1.2006",
	"02-01-2006",
}

// ParsePeriod reads the first cell of a data row as a UTC timestamp.
func ParsePeriod(cell string, format TimeFormat) (time.Time, error) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty period cell")
	}
	if format == TimeFormatYear {
		if year, ok := parseYear(s); ok {
			return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return parseDate(s)
}

func parseYear(s string) (int, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	year := int(f)
	if year < 1900 || year > 2200 {
		return 0, false
	}
	return year, true
}

func parseDate(s string) (time.Time, error) {
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid excel date %q: %w", s, err)
		}
		return NormalizeTimestamp(t), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
