package entsog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Indicator is an operational data series published by ENTSOG.
type Indicator string

const (
	PhysicalFlow Indicator = "physical_flow"
	Nomination   Indicator = "nomination"
	Allocation   Indicator = "allocation"
	Renomination Indicator = "renomination"
)

var indicatorNames = map[Indicator]string{
	PhysicalFlow: "Physical Flow",
	Nomination:   "Nomination",
	Allocation:   "Allocation",
	Renomination: "Renomination",
}

// APIName returns the indicator as the API spells it.
func (i Indicator) APIName() (string, error) {
	name, ok := indicatorNames[i]
	if !ok {
		return "", fmt.Errorf("unknown indicator %q", string(i))
	}
	return name, nil
}

// PointDirection is one entry of the operatorpointdirections listing.
type PointDirection struct {
	OperatorKey      string `json:"operatorKey"`
	OperatorLabel    string `json:"operatorLabel"`
	PointKey         string `json:"pointKey"`
	PointLabel       string `json:"pointLabel"`
	DirectionKey     string `json:"directionKey"`
	TSOCountry       string `json:"tSOCountry"`
	TSOBalancingZone string `json:"tSOBalancingZone"`
}

// Key is the pointDirection filter value: operator, point and direction
// keys concatenated.
func (p PointDirection) Key() string {
	return p.OperatorKey + p.PointKey + p.DirectionKey
}

// OperationalData is one row of the operationaldatas listing.
type OperationalData struct {
	PeriodFrom    APITime       `json:"periodFrom"`
	PeriodTo      APITime       `json:"periodTo"`
	Indicator     string        `json:"indicator"`
	OperatorKey   string        `json:"operatorKey"`
	OperatorLabel string        `json:"operatorLabel"`
	PointKey      string        `json:"pointKey"`
	PointLabel    string        `json:"pointLabel"`
	DirectionKey  string        `json:"directionKey"`
	Unit          string        `json:"unit"`
	Value         NullableFloat `json:"value"`
}

// APITime accepts RFC 3339 timestamps and zone-less ones, which are UTC.
type APITime struct {
	time.Time
}

var apiTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

func (t *APITime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range apiTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognised time %q", s)
}

// NullableFloat decodes a number, a numeric string, "" or null. The last two
// leave it unset.
type NullableFloat struct {
	Value *float64
}

func (n *NullableFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		n.Value = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			n.Value = nil
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("value %q is not a number", s)
		}
		n.Value = &v
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

type pointDirectionsResponse struct {
	PointDirections []PointDirection `json:"operatorpointdirections"`
	Message         string           `json:"message"`
}

// operationalResponse also matches "operationalDatas", since field names
// match case-insensitively.
type operationalResponse struct {
	Datas   []OperationalData `json:"operationaldatas"`
	Data    []OperationalData `json:"operationalData"`
	Message string            `json:"message"`
}

func (r operationalResponse) rows() []OperationalData {
	if len(r.Datas) > 0 {
		return r.Datas
	}
	return r.Data
}
