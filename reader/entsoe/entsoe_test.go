package entsoe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gasflow/internal/retry"
	"gasflow/models"
	"gasflow/reader"
)

const pricesDoc = `<?xml version="1.0" encoding="UTF-8"?>
<Publication_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-3:publicationdocument:7:0">
  <TimeSeries>
    <businessType>A62</businessType>
    <Period>
      <timeInterval><start>2023-12-31T23:00Z</start><end>2024-01-01T23:00Z</end></timeInterval>
      <resolution>PT60M</resolution>
      <Point><position>1</position><price.amount>95.10</price.amount></Point>
      <Point><position>2</position><price.amount>90.00</price.amount></Point>
      <Point><position>3</position><price.amount>88.5</price.amount></Point>
    </Period>
  </TimeSeries>
</Publication_MarketDocument>`

const noDataAck = `<?xml version="1.0" encoding="UTF-8"?>
<Acknowledgement_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-1:acknowledgementdocument:7:0">
  <Reason><code>999</code><text>No matching data found for Data item</text></Reason>
</Acknowledgement_MarketDocument>`

func TestParseDocumentPrices(t *testing.T) {
	points, err := parseDocument([]byte(pricesDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	want := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	if !points[2].Timestamp.Equal(want) || points[2].Value != 88.5 {
		t.Errorf("unexpected third point %+v", points[2])
	}
}

func TestParseDocumentAcknowledgement(t *testing.T) {
	if _, err := parseDocument([]byte(noDataAck)); !errors.Is(err, ErrNoMatchingData) {
		t.Fatalf("expected ErrNoMatchingData, got %v", err)
	}
	rejected := strings.Replace(noDataAck, "<code>999</code>", "<code>A01</code>", 1)
	if _, err := parseDocument([]byte(rejected)); err == nil || errors.Is(err, ErrNoMatchingData) {
		t.Fatalf("expected a rejection error, got %v", err)
	}
}

func TestParseResolution(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"PT15M", base.Add(30 * time.Minute)},
		{"PT60M", base.Add(2 * time.Hour)},
		{"PT1H", base.Add(2 * time.Hour)},
		{"P1D", base.AddDate(0, 0, 2)},
		{"P7D", base.AddDate(0, 0, 14)},
	}
	for _, tt := range tests {
		r, err := parseResolution(tt.in)
		if err != nil {
			t.Errorf("%s: %v", tt.in, err)
			continue
		}
		if got := r.add(base, 2); !got.Equal(tt.want) {
			t.Errorf("%s: got %v want %v", tt.in, got, tt.want)
		}
	}
	if _, err := parseResolution("P1Y"); err == nil {
		t.Errorf("expected error for yearly resolution")
	}
}

func window() models.PartitionWindow {
	return models.PartitionWindow{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestDayAheadPricesRequest(t *testing.T) {
	t.Setenv("ENTSOE_API_KEY", "secret")
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = map[string]string{}
		for k := range r.URL.Query() {
			got[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(pricesDoc))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api", "", srv.Client(), nil)
	points, err := c.DayAheadPrices(context.Background(), "10YGR-HTSO-----Y", window())
	if err != nil {
		t.Fatalf("prices: %v", err)
	}
	// the 23:00 point of Dec 31 falls outside the partition
	if len(points) != 2 {
		t.Fatalf("expected 2 points inside the window, got %d", len(points))
	}
	want := map[string]string{
		"documentType":  "A44",
		"in_Domain":     "10YGR-HTSO-----Y",
		"out_Domain":    "10YGR-HTSO-----Y",
		"periodStart":   "202401010000",
		"periodEnd":     "202402010000",
		"securityToken": "secret",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestQueryNoDataOnBadRequest(t *testing.T) {
	t.Setenv("ENTSOE_API_KEY", "secret")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(noDataAck))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client(), nil)
	if _, err := c.CrossborderFlows(context.Background(), "A", "B", window()); !errors.Is(err, ErrNoMatchingData) {
		t.Fatalf("expected ErrNoMatchingData, got %v", err)
	}
}

func TestQueryUnauthorized(t *testing.T) {
	t.Setenv("ENTSOE_API_KEY", "wrong")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("<html>Unauthorized</html>"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client(), nil)
	_, err := c.ActualLoad(context.Background(), "Z", window())
	var se *reader.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 status error, got %v", err)
	}
	if strings.Contains(se.URL, "wrong") {
		t.Errorf("token leaked into error")
	}
}

func TestQueryMissingTokenIsPermanent(t *testing.T) {
	t.Setenv("GASFLOW_TEST_TOKEN", "")
	c := NewClient("http://unused", "GASFLOW_TEST_TOKEN", nil, nil)
	_, err := c.ActualLoad(context.Background(), "Z", window())
	if err == nil || !retry.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

const gappedPricesDoc = `<?xml version="1.0" encoding="UTF-8"?>
<Publication_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-3:publicationdocument:7:3">
  <TimeSeries>
    <businessType>A62</businessType>
    <curveType>A03</curveType>
    <Period>
      <timeInterval><start>2024-01-01T00:00Z</start><end>2024-01-01T04:00Z</end></timeInterval>
      <resolution>PT60M</resolution>
      <Point><position>1</position><price.amount>80</price.amount></Point>
      <Point><position>3</position><price.amount>95</price.amount></Point>
    </Period>
  </TimeSeries>
</Publication_MarketDocument>`

func TestParseDocumentFillsOmittedPositions(t *testing.T) {
	points, err := parseDocument([]byte(gappedPricesDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(points) != 4 {
		t.Fatalf("expected 4 hourly points for a 4h period, got %d", len(points))
	}
	want := []float64{80, 80, 95, 95}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range points {
		if !p.Timestamp.Equal(start.Add(time.Duration(i)*time.Hour)) || p.Value != want[i] {
			t.Errorf("point %d = %+v, want %v at %v", i, p, want[i], start.Add(time.Duration(i)*time.Hour))
		}
	}

	beyond := strings.Replace(gappedPricesDoc, "<position>3</position>", "<position>9</position>", 1)
	if _, err := parseDocument([]byte(beyond)); err == nil {
		t.Errorf("expected an error for a position past the period end")
	}
}

const mixedResolutionDoc = `<?xml version="1.0" encoding="UTF-8"?>
<Publication_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-3:publicationdocument:7:3">
  <TimeSeries>
    <businessType>A62</businessType>
    <curveType>A03</curveType>
    <Period>
      <timeInterval><start>2024-01-01T00:00Z</start><end>2024-01-01T01:00Z</end></timeInterval>
      <resolution>PT15M</resolution>
      <Point><position>1</position><price.amount>70</price.amount></Point>
      <Point><position>2</position><price.amount>72</price.amount></Point>
    </Period>
  </TimeSeries>
  <TimeSeries>
    <businessType>A62</businessType>
    <curveType>A03</curveType>
    <Period>
      <timeInterval><start>2024-01-01T00:00Z</start><end>2024-01-01T01:00Z</end></timeInterval>
      <resolution>PT60M</resolution>
      <Point><position>1</position><price.amount>71.5</price.amount></Point>
    </Period>
  </TimeSeries>
</Publication_MarketDocument>`

func TestParseDocumentMixedResolutionsKeepHourly(t *testing.T) {
	points, err := parseDocument([]byte(mixedResolutionDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(points) != 1 || points[0].Value != 71.5 {
		t.Fatalf("expected the single hourly point, got %+v", points)
	}
}

const generationDoc = `<?xml version="1.0" encoding="UTF-8"?>
<GL_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-6:generationloaddocument:3:0">
  <TimeSeries>
    <businessType>A01</businessType>
    <inBiddingZone_Domain.mRID codingScheme="A01">10YGR-HTSO-----Y</inBiddingZone_Domain.mRID>
    <MktPSRType><psrType>B10</psrType></MktPSRType>
    <Period>
      <timeInterval><start>2024-01-01T00:00Z</start><end>2024-01-01T01:00Z</end></timeInterval>
      <resolution>PT60M</resolution>
      <Point><position>1</position><quantity>120</quantity></Point>
    </Period>
  </TimeSeries>
  <TimeSeries>
    <businessType>A01</businessType>
    <outBiddingZone_Domain.mRID codingScheme="A01">10YGR-HTSO-----Y</outBiddingZone_Domain.mRID>
    <MktPSRType><psrType>B10</psrType></MktPSRType>
    <Period>
      <timeInterval><start>2024-01-01T00:00Z</start><end>2024-01-01T01:00Z</end></timeInterval>
      <resolution>PT60M</resolution>
      <Point><position>1</position><quantity>90</quantity></Point>
    </Period>
  </TimeSeries>
</GL_MarketDocument>`

func TestParseDocumentProductionTypes(t *testing.T) {
	points, err := parseDocument([]byte(generationDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	var generation, consumption int
	for _, p := range points {
		if p.PsrType != "B10" {
			t.Errorf("unexpected psr type %q", p.PsrType)
		}
		if p.Consumption {
			consumption++
			if p.Value != 90 {
				t.Errorf("unexpected consumption %v", p.Value)
			}
		} else {
			generation++
		}
	}
	if generation != 1 || consumption != 1 {
		t.Errorf("got %d generation and %d consumption points", generation, consumption)
	}
	if PsrTypeName("B10") != "hydro_pumped_storage" || PsrTypeName("B99") != "b99" {
		t.Errorf("unexpected production type names")
	}
}

const weekAheadDoc = `<?xml version="1.0" encoding="UTF-8"?>
<GL_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-6:generationloaddocument:3:0">
  <TimeSeries>
    <businessType>A60</businessType>
    <outBiddingZone_Domain.mRID codingScheme="A01">10YGR-HTSO-----Y</outBiddingZone_Domain.mRID>
    <Period>
      <timeInterval><start>2023-12-31T22:00Z</start><end>2024-01-02T22:00Z</end></timeInterval>
      <resolution>P1D</resolution>
      <Point><position>1</position><quantity>4000</quantity></Point>
      <Point><position>2</position><quantity>4100</quantity></Point>
    </Period>
  </TimeSeries>
</GL_MarketDocument>`

func TestLoadForecastRoundsToMidnight(t *testing.T) {
	t.Setenv("ENTSOE_API_KEY", "secret")
	var process string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		process = r.URL.Query().Get("processType")
		w.Write([]byte(weekAheadDoc))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client(), nil)
	points, err := c.LoadForecast(context.Background(), "10YGR-HTSO-----Y", ProcessWeekAhead, window())
	if err != nil {
		t.Fatalf("load forecast: %v", err)
	}
	if process != ProcessWeekAhead {
		t.Errorf("processType = %q", process)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if !points[0].Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) || points[0].BusinessType != "A60" {
		t.Errorf("unexpected first point %+v", points[0])
	}
}
