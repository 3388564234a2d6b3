package processor

import (
	"fmt"
	"strings"
	"time"

	"gasflow/models"
)

// OperatorObservation is one operational value reported by a transmission
// system operator for a point, direction and period.
type OperatorObservation struct {
	PeriodFrom    time.Time
	PointLabel    string
	DirectionKey  string
	OperatorKey   string
	OperatorLabel string
	Value         *float64 // nil when the source sent null or ""
}

type collisionKey struct {
	period    int64
	point     string
	direction string
}

// LabelOperatorCollisions renames points reported by more than one operator
// for the same period and direction, appending the operator to the label so
// each operator's row gets its own key. Rows without a collision are kept
// as they are. The input is not modified.
func LabelOperatorCollisions(obs []OperatorObservation) []OperatorObservation {
	operators := map[collisionKey]map[string]bool{}
	for _, o := range obs {
		k := keyOf(o)
		if operators[k] == nil {
			operators[k] = map[string]bool{}
		}
		operators[k][o.OperatorKey] = true
	}

	out := make([]OperatorObservation, len(obs))
	for i, o := range obs {
		if len(operators[keyOf(o)]) > 1 {
			o.PointLabel = fmt.Sprintf("%s (%s)", o.PointLabel, operatorName(o))
		}
		out[i] = o
	}
	return out
}

func keyOf(o OperatorObservation) collisionKey {
	return collisionKey{
		period:    o.PeriodFrom.UnixNano(),
		point:     o.PointLabel,
		direction: strings.ToLower(o.DirectionKey),
	}
}

func operatorName(o OperatorObservation) string {
	if o.OperatorLabel != "" {
		return o.OperatorLabel
	}
	return o.OperatorKey
}

// ToLongRecords renames observations to the long schema, normalises their
// timestamps and drops the ones without a value.
func ToLongRecords(obs []OperatorObservation) []models.LongRecord {
	out := make([]models.LongRecord, 0, len(obs))
	for _, o := range obs {
		if o.Value == nil {
			continue
		}
		out = append(out, models.LongRecord{
			Timestamp: NormalizeTimestamp(o.PeriodFrom),
			PointID:   o.PointLabel,
			PointType: models.PointType(strings.ToLower(o.DirectionKey)),
			Value:     o.Value,
		})
	}
	return out
}
