package writer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"gasflow/logger"
	"gasflow/models"
)

type recordingEmitter struct {
	batches []Batch
	err     error
}

func (r *recordingEmitter) Emit(_ context.Context, b Batch) error {
	r.batches = append(r.batches, b)
	return r.err
}

func sampleTable() models.Table {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return models.LongTable([]models.LongRecord{
		{Timestamp: ts, PointID: "KIPI", PointType: models.Entry, Value: models.Float(1.5)},
		{Timestamp: ts, PointID: "KIPI", PointType: models.Exit, Value: nil},
		{Timestamp: ts.AddDate(0, 0, 1), PointID: "AGIA TRIADA", PointType: models.Entry, Value: models.Float(3)},
	})
}

func TestMultiStopsAtFirstFailure(t *testing.T) {
	first := &recordingEmitter{err: errors.New("boom")}
	second := &recordingEmitter{}
	err := Multi{first, second}.Emit(context.Background(), Batch{Asset: "a"})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected first emitter error, got %v", err)
	}
	if len(second.batches) != 0 {
		t.Errorf("second emitter must not run after a failure")
	}
}

func TestMultiWithoutEmitters(t *testing.T) {
	if err := (Multi{}).Emit(context.Background(), Batch{}); err == nil {
		t.Fatalf("expected error for empty emitter list")
	}
}

func TestLogEmitter(t *testing.T) {
	l, hook := test.NewNullLogger()
	e := NewLogEmitter(&logger.Log{Logger: l})
	if err := e.Emit(context.Background(), Batch{Asset: "desfa_flows_daily", Table: sampleTable()}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Message != "would write 3 rows" {
		t.Fatalf("unexpected log entry %+v", entry)
	}
	if entry.Data["first_key"] != "2024-01-01T00:00:00Z|KIPI|entry" {
		t.Errorf("unexpected first key %v", entry.Data["first_key"])
	}
}
