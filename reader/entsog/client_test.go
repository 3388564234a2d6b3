package entsog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gasflow/internal/retry"
	"gasflow/reader"
)

func TestOperatorPointDirections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/operatorpointdirections" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"operatorpointdirections":[
			{"operatorKey":"GR-TSO-0001","pointKey":"ITP-00080","directionKey":"entry","tSOCountry":"GR","tSOBalancingZone":"Greece"},
			{"operatorKey":"BG-TSO-0001","pointKey":"ITP-00080","directionKey":"exit","tSOCountry":"BG","tSOBalancingZone":"Bulgaria"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/v1/", srv.Client(), nil)
	points, err := c.OperatorPointDirections(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].Key() != "GR-TSO-0001ITP-00080entry" {
		t.Errorf("unexpected key %s", points[0].Key())
	}
}

func TestOperationalDataQueryAndDecode(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(`{"operationalDatas":[
			{"periodFrom":"2024-01-01T06:00:00+01:00","pointLabel":"Kipi","directionKey":"entry","operatorKey":"GR","value":12.5},
			{"periodFrom":"2024-01-02T05:00:00","pointLabel":"Kipi","directionKey":"entry","operatorKey":"GR","value":"7"},
			{"periodFrom":"2024-01-02T05:00:00","pointLabel":"Kipi","directionKey":"exit","operatorKey":"GR","value":""},
			{"periodFrom":"2024-01-02T05:00:00","pointLabel":"Sidirokastro","directionKey":"entry","operatorKey":"GR","value":null}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows, err := c.OperationalData(context.Background(), from, from.AddDate(0, 0, 1), []Indicator{PhysicalFlow}, []string{"a", "b"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	want := map[string]string{
		"from": "2024-01-01", "to": "2024-01-02", "indicator": "Physical Flow",
		"pointDirection": "a,b", "periodType": "day", "timezone": "UTC", "limit": "-1",
	}
	for k, v := range want {
		if query[k] != v {
			t.Errorf("query %s = %q, want %q", k, query[k], v)
		}
	}

	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	if v := rows[0].Value.Value; v == nil || *v != 12.5 {
		t.Errorf("numeric value not decoded: %v", v)
	}
	if v := rows[1].Value.Value; v == nil || *v != 7 {
		t.Errorf("string value not decoded: %v", v)
	}
	if rows[2].Value.Value != nil || rows[3].Value.Value != nil {
		t.Errorf("empty and null values must be unset")
	}
	if got := rows[0].PeriodFrom.UTC(); got.Hour() != 5 {
		t.Errorf("unexpected period %v", got)
	}
	if got := rows[1].PeriodFrom.Time; got.Location() != time.UTC || got.Hour() != 5 {
		t.Errorf("zone-less time should be UTC, got %v", got)
	}
}

func TestOperationalDataNoMatchingData(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"404", http.StatusNotFound, `{"message":"No Data Found"}`},
		{"message on 200", http.StatusOK, `{"message":"No Data Found"}`},
		{"empty list", http.StatusOK, `{"operationaldatas":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, srv.Client(), nil)
			_, err := c.OperationalData(context.Background(), time.Now(), time.Now(), []Indicator{Nomination}, []string{"k"})
			if !errors.Is(err, ErrNoMatchingData) {
				t.Fatalf("expected ErrNoMatchingData, got %v", err)
			}
		})
	}
}

func TestOperationalDataServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)
	_, err := c.OperationalData(context.Background(), time.Now(), time.Now(), []Indicator{Allocation}, []string{"k"})
	var se *reader.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status error, got %v", err)
	}
	if !retry.DefaultClassifier(err) {
		t.Errorf("503 should be retryable")
	}
}

func TestUnknownIndicator(t *testing.T) {
	c := NewClient("http://unused", nil, nil)
	if _, err := c.OperationalData(context.Background(), time.Now(), time.Now(), []Indicator{"gcv"}, nil); err == nil {
		t.Fatalf("expected error for unknown indicator")
	}
}

func TestNullableFloat(t *testing.T) {
	var n NullableFloat
	if err := json.Unmarshal([]byte(`"abc"`), &n); err == nil {
		t.Errorf("expected error for non numeric string")
	}
	if err := json.Unmarshal([]byte(`3`), &n); err != nil || *n.Value != 3 {
		t.Errorf("unexpected %v %v", n.Value, err)
	}
}
