package processor

import (
	"testing"
	"time"

	"gasflow/models"
)

func obs(period time.Time, point, dir, op string, v *float64) OperatorObservation {
	return OperatorObservation{
		PeriodFrom:    period,
		PointLabel:    point,
		DirectionKey:  dir,
		OperatorKey:   op,
		OperatorLabel: op + " SA",
		Value:         v,
	}
}

func TestLabelOperatorCollisions(t *testing.T) {
	p := time.Date(2024, 1, 1, 6, 0, 0, 0, time.FixedZone("CET", 3600))
	in := []OperatorObservation{
		obs(p, "Kipi", "entry", "GR-TSO-0001", models.Float(1)),
		obs(p, "Kipi", "entry", "TR-TSO-0001", models.Float(2)),
		obs(p, "Kipi", "exit", "GR-TSO-0001", models.Float(3)),
		obs(p.Add(24*time.Hour), "Kipi", "entry", "GR-TSO-0001", models.Float(4)),
	}
	out := LabelOperatorCollisions(in)

	if out[0].PointLabel != "Kipi (GR-TSO-0001 SA)" || out[1].PointLabel != "Kipi (TR-TSO-0001 SA)" {
		t.Errorf("colliding rows not labelled: %q %q", out[0].PointLabel, out[1].PointLabel)
	}
	if out[2].PointLabel != "Kipi" || out[3].PointLabel != "Kipi" {
		t.Errorf("non-colliding rows must keep their label: %q %q", out[2].PointLabel, out[3].PointLabel)
	}
	if in[0].PointLabel != "Kipi" {
		t.Errorf("input was modified")
	}

	table := models.LongTable(ToLongRecords(out))
	if dups := FindDuplicates(table); len(dups) != 0 {
		t.Errorf("labelling should separate keys, got %v", dups)
	}
}

func TestLabelOperatorCollisionsSameOperatorTwice(t *testing.T) {
	p := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []OperatorObservation{
		obs(p, "Kipi", "entry", "GR-TSO-0001", models.Float(1)),
		obs(p, "Kipi", "entry", "GR-TSO-0001", models.Float(2)),
	}
	out := LabelOperatorCollisions(in)
	if out[0].PointLabel != "Kipi" || out[1].PointLabel != "Kipi" {
		t.Fatalf("a single operator is not a collision")
	}

	table := models.LongTable(ToLongRecords(out))
	dups := FindDuplicates(table)
	if len(dups) != 1 || len(dups[0].Rows) != 2 {
		t.Fatalf("expected one duplicate key over two rows, got %v", dups)
	}
	if table.Len() != 2 {
		t.Fatalf("duplicates must not be removed")
	}
}

func TestToLongRecords(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	p := time.Date(2024, 1, 1, 6, 0, 0, 0, cet)
	records := ToLongRecords([]OperatorObservation{
		obs(p, "Kipi", "Entry", "GR", models.Float(5)),
		obs(p, "Kipi", "exit", "GR", nil),
	})
	if len(records) != 1 {
		t.Fatalf("expected null values dropped, got %d records", len(records))
	}
	r := records[0]
	if r.Timestamp.Location() != time.UTC || r.Timestamp.Hour() != 5 {
		t.Errorf("timestamp not normalised to UTC: %v", r.Timestamp)
	}
	if r.PointID != "Kipi" || r.PointType != models.Entry || *r.Value != 5 {
		t.Errorf("unexpected record %+v", r)
	}
}

func TestFindDuplicatesGroupsAllRows(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	table := models.LongTable([]models.LongRecord{
		{Timestamp: ts, PointID: "A", PointType: models.Entry},
		{Timestamp: ts, PointID: "B", PointType: models.Entry},
		{Timestamp: ts, PointID: "A", PointType: models.Entry},
		{Timestamp: ts, PointID: "A", PointType: models.Exit},
		{Timestamp: ts, PointID: "A", PointType: models.Entry},
		{Timestamp: ts, PointID: "B", PointType: models.Entry},
	})
	dups := FindDuplicates(table)
	if len(dups) != 2 {
		t.Fatalf("expected 2 duplicate keys, got %v", dups)
	}
	if got := dups[0].Rows; len(got) != 3 || got[0] != 0 || got[1] != 2 || got[2] != 4 {
		t.Errorf("unexpected rows for first key: %v", got)
	}
	if got := dups[1].Rows; len(got) != 2 || got[0] != 1 || got[1] != 5 {
		t.Errorf("unexpected rows for second key: %v", got)
	}
	if DuplicateRows(dups) != 5 {
		t.Errorf("expected 5 duplicate rows, got %d", DuplicateRows(dups))
	}
}
