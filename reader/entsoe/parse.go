package entsoe

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Point is one value of a time series at the start of its interval.
type Point struct {
	Timestamp    time.Time
	Value        float64
	BusinessType string // e.g. A60 minimum, A61 maximum possible
	PsrType      string // production type, B01..B25
	Consumption  bool   // production-type series measured leaving the zone
}

type marketDocument struct {
	XMLName    xml.Name
	TimeSeries []timeSeries `xml:"TimeSeries"`
	Reason     []reason     `xml:"Reason"`
}

type reason struct {
	Code string `xml:"code"`
	Text string `xml:"text"`
}

type timeSeries struct {
	BusinessType   string   `xml:"businessType"`
	CurveType      string   `xml:"curveType"`
	PsrType        string   `xml:"MktPSRType>psrType"`
	InBiddingZone  string   `xml:"inBiddingZone_Domain.mRID"`
	OutBiddingZone string   `xml:"outBiddingZone_Domain.mRID"`
	Periods        []period `xml:"Period"`
}

type period struct {
	Start      string     `xml:"timeInterval>start"`
	End        string     `xml:"timeInterval>end"`
	Resolution string     `xml:"resolution"`
	Points     []xmlPoint `xml:"Point"`
}

type xmlPoint struct {
	Position int    `xml:"position"`
	Price    string `xml:"price.amount"`
	Quantity string `xml:"quantity"`
}

const (
	noDataReason = "999"

	// curveVariableBlocks omits a position whose value repeats the previous one.
	curveVariableBlocks = "A03"
)

type seriesKey struct {
	businessType string
	psrType      string
	consumption  bool
}

// parseDocument decodes a market document into points ordered by time.
// An acknowledgement document carrying reason 999 yields ErrNoMatchingData.
// A series published at several resolutions keeps the hourly one, or the
// coarsest when there is no hourly one.
func parseDocument(data []byte) ([]Point, error) {
	var doc marketDocument
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode market document: %w", err)
	}

	if strings.HasPrefix(doc.XMLName.Local, "Acknowledgement") {
		for _, r := range doc.Reason {
			if r.Code == noDataReason {
				return nil, ErrNoMatchingData
			}
		}
		texts := make([]string, 0, len(doc.Reason))
		for _, r := range doc.Reason {
			texts = append(texts, fmt.Sprintf("%s: %s", r.Code, r.Text))
		}
		return nil, fmt.Errorf("request rejected: %s", strings.Join(texts, "; "))
	}
	if !strings.HasSuffix(doc.XMLName.Local, "MarketDocument") {
		return nil, fmt.Errorf("unexpected document <%s>", doc.XMLName.Local)
	}

	series := map[seriesKey]map[time.Duration][]Point{}
	var keys []seriesKey
	for _, ts := range doc.TimeSeries {
		key := seriesKey{
			businessType: ts.BusinessType,
			psrType:      ts.PsrType,
			consumption:  ts.PsrType != "" && ts.OutBiddingZone != "",
		}
		if series[key] == nil {
			series[key] = map[time.Duration][]Point{}
			keys = append(keys, key)
		}
		for _, p := range ts.Periods {
			pp, res, err := p.points(ts.CurveType)
			if err != nil {
				return nil, err
			}
			for i := range pp {
				pp[i].BusinessType = key.businessType
				pp[i].PsrType = key.psrType
				pp[i].Consumption = key.consumption
			}
			series[key][res.length()] = append(series[key][res.length()], pp...)
		}
	}

	var points []Point
	for _, key := range keys {
		points = append(points, series[key][preferredResolution(series[key])]...)
	}
	if len(points) == 0 {
		return nil, ErrNoMatchingData
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points, nil
}

func preferredResolution(byRes map[time.Duration][]Point) time.Duration {
	if _, ok := byRes[time.Hour]; ok {
		return time.Hour
	}
	var best time.Duration
	for res := range byRes {
		if res > best {
			best = res
		}
	}
	return best
}

// maxPositions bounds the positions of a period; a month of 15 minute
// steps is under 3000.
const maxPositions = 100000

func (p period) points(curve string) ([]Point, resolution, error) {
	start, err := parseInstant(p.Start)
	if err != nil {
		return nil, resolution{}, err
	}
	step, err := parseResolution(p.Resolution)
	if err != nil {
		return nil, resolution{}, err
	}

	values := make(map[int]float64, len(p.Points))
	positions := make([]int, 0, len(p.Points))
	for _, pt := range p.Points {
		raw := pt.Quantity
		if pt.Price != "" {
			raw = pt.Price
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, step, fmt.Errorf("point %d: value %q is not a number", pt.Position, raw)
		}
		if pt.Position < 1 {
			return nil, step, fmt.Errorf("point position %d out of range", pt.Position)
		}
		if _, ok := values[pt.Position]; !ok {
			positions = append(positions, pt.Position)
		}
		values[pt.Position] = v
	}
	sort.Ints(positions)

	if curve != curveVariableBlocks {
		out := make([]Point, 0, len(positions))
		for _, pos := range positions {
			out = append(out, Point{Timestamp: step.add(start, pos-1), Value: values[pos]})
		}
		return out, step, nil
	}

	end, err := parseInstant(p.End)
	if err != nil {
		return nil, step, err
	}
	n := 0
	for n < maxPositions && step.add(start, n).Before(end) {
		n++
	}
	if len(positions) > 0 && positions[len(positions)-1] > n {
		return nil, step, fmt.Errorf("point position %d beyond the period end", positions[len(positions)-1])
	}

	// omitted positions repeat the value before them
	out := make([]Point, 0, n)
	var (
		last float64
		seen bool
	)
	for pos := 1; pos <= n; pos++ {
		if v, ok := values[pos]; ok {
			last, seen = v, true
		}
		if seen {
			out = append(out, Point{Timestamp: step.add(start, pos-1), Value: last})
		}
	}
	return out, step, nil
}

var instantLayouts = []string{"2006-01-02T15:04Z07:00", "2006-01-02T15:04:05Z07:00"}

func parseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised interval start %q", s)
}

// resolution is an ISO 8601 duration limited to what the platform uses.
type resolution struct {
	d    time.Duration
	days int
}

// length is the nominal step used to compare resolutions.
func (r resolution) length() time.Duration {
	if r.days > 0 {
		return time.Duration(r.days) * 24 * time.Hour
	}
	return r.d
}

func (r resolution) add(t time.Time, n int) time.Time {
	if r.days > 0 {
		return t.AddDate(0, 0, r.days*n)
	}
	return t.Add(time.Duration(n) * r.d)
}

var resolutionRe = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?)?$`)

func parseResolution(s string) (resolution, error) {
	m := resolutionRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		return resolution{}, fmt.Errorf("unsupported resolution %q", s)
	}
	atoi := func(v string) int {
		n, _ := strconv.Atoi(v)
		return n
	}
	if m[1] != "" && m[2] == "" && m[3] == "" {
		return resolution{days: atoi(m[1])}, nil
	}
	d := time.Duration(atoi(m[1]))*24*time.Hour + time.Duration(atoi(m[2]))*time.Hour + time.Duration(atoi(m[3]))*time.Minute
	if d <= 0 {
		return resolution{}, fmt.Errorf("unsupported resolution %q", s)
	}
	return resolution{d: d}, nil
}

var psrTypeNames = map[string]string{
	"B01": "biomass",
	"B02": "fossil_brown_coal_lignite",
	"B03": "fossil_coal_derived_gas",
	"B04": "fossil_gas",
	"B05": "fossil_hard_coal",
	"B06": "fossil_oil",
	"B07": "fossil_oil_shale",
	"B08": "fossil_peat",
	"B09": "geothermal",
	"B10": "hydro_pumped_storage",
	"B11": "hydro_run_of_river_and_poundage",
	"B12": "hydro_water_reservoir",
	"B13": "marine",
	"B14": "nuclear",
	"B15": "other_renewable",
	"B16": "solar",
	"B17": "waste",
	"B18": "wind_offshore",
	"B19": "wind_onshore",
	"B20": "other",
	"B25": "energy_storage",
}

// PsrTypeName returns the column name of a production type, or the lower
// cased code for codes it does not know.
func PsrTypeName(code string) string {
	if name, ok := psrTypeNames[code]; ok {
		return name
	}
	return strings.ToLower(code)
}
