package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"gasflow/config"
	"gasflow/logger"
	"gasflow/models"
	"gasflow/writer"
)

type recordingEmitter struct {
	batches []writer.Batch
	err     error
}

func (r *recordingEmitter) Emit(_ context.Context, b writer.Batch) error {
	r.batches = append(r.batches, b)
	return r.err
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Retry = config.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 2}
	return &cfg
}

func testRunner(t *testing.T, reg *Registry, sources *Sources, em writer.Emitter) (*Runner, *test.Hook) {
	t.Helper()
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	r := NewRunner(testConfig(), reg, sources, em, &logger.Log{Logger: l})
	r.now = func() time.Time { return time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC) }
	r.newID = func() string { return "run-1" }
	return r, hook
}

func staticAsset(name string, fn MaterializeFunc) *Registry {
	reg := NewRegistry()
	reg.Register(Asset{Name: name, Group: "test", Partitions: monopartition(name), Materialize: fn})
	return reg
}

func warnings(hook *test.Hook) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			out = append(out, e)
		}
	}
	return out
}

var day = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRunEmitsTable(t *testing.T) {
	reg := staticAsset("a", func(_ context.Context, rc *RunContext) (models.Output, error) {
		if rc.RunID != "run-1" || rc.Window.Start.Unix() != 0 {
			t.Errorf("unexpected run context %+v", rc)
		}
		return models.Present(models.LongTable([]models.LongRecord{
			{Timestamp: day, PointID: "KIPI", PointType: models.Entry, Value: models.Float(1)},
		})), nil
	})
	em := &recordingEmitter{}
	r, hook := testRunner(t, reg, &Sources{}, em)

	report, err := r.Run(context.Background(), "a", "a_monopartition")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(em.batches) != 1 {
		t.Fatalf("expected one batch, got %d", len(em.batches))
	}
	b := em.batches[0]
	if b.Asset != "a" || b.Group != "test" || b.Partition != "a_monopartition" || b.RunID != "run-1" || b.Table.Len() != 1 {
		t.Errorf("unexpected batch %+v", b)
	}
	if report.Rows != 1 || report.Absent {
		t.Errorf("unexpected report %+v", report)
	}
	if len(warnings(hook)) != 0 {
		t.Errorf("unexpected warnings")
	}
}

func TestRunAbsentEmitsNothing(t *testing.T) {
	reg := staticAsset("a", func(context.Context, *RunContext) (models.Output, error) {
		return models.Absent(), nil
	})
	em := &recordingEmitter{}
	r, _ := testRunner(t, reg, &Sources{}, em)
	report, err := r.Run(context.Background(), "a", "a_monopartition")
	if err != nil {
		t.Fatalf("absent output must not fail: %v", err)
	}
	if len(em.batches) != 0 || !report.Absent {
		t.Errorf("absent output must not be emitted")
	}
}

func TestRunEmptyTableIsEmitted(t *testing.T) {
	reg := staticAsset("a", func(context.Context, *RunContext) (models.Output, error) {
		return models.Present(models.LongTable(nil)), nil
	})
	em := &recordingEmitter{}
	r, _ := testRunner(t, reg, &Sources{}, em)
	if _, err := r.Run(context.Background(), "a", "a_monopartition"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(em.batches) != 1 || em.batches[0].Table.Len() != 0 {
		t.Errorf("a zero-row table is still an output")
	}
}

func TestRunWarnsOnceAboutDuplicatesAndKeepsThem(t *testing.T) {
	reg := staticAsset("dups", func(context.Context, *RunContext) (models.Output, error) {
		return models.Present(models.LongTable([]models.LongRecord{
			{Timestamp: day, PointID: "KIPI", PointType: models.Entry, Value: models.Float(1)},
			{Timestamp: day, PointID: "KIPI", PointType: models.Entry, Value: models.Float(2)},
			{Timestamp: day, PointID: "KIPI", PointType: models.Exit, Value: models.Float(3)},
			{Timestamp: day, PointID: "AGIA TRIADA", PointType: models.Entry, Value: nil},
			{Timestamp: day, PointID: "AGIA TRIADA", PointType: models.Entry, Value: nil},
		})), nil
	})
	em := &recordingEmitter{}
	r, hook := testRunner(t, reg, &Sources{}, em)

	report, err := r.Run(context.Background(), "dups", "dups_monopartition")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	warns := warnings(hook)
	if len(warns) != 1 {
		t.Fatalf("expected one warning, got %d", len(warns))
	}
	if !strings.Contains(warns[0].Message, "KIPI|entry rows [0 1]") || !strings.Contains(warns[0].Message, "AGIA TRIADA|entry rows [3 4]") {
		t.Errorf("warning should list every duplicate: %s", warns[0].Message)
	}
	if em.batches[0].Table.Len() != 5 {
		t.Errorf("duplicates must be kept, got %d rows", em.batches[0].Table.Len())
	}
	if report.Duplicates != 4 || report.Warnings() != 1 {
		t.Errorf("unexpected report %+v warnings=%d", report, report.Warnings())
	}
}

func TestRunErrors(t *testing.T) {
	boom := errors.New("boom")
	reg := staticAsset("a", func(context.Context, *RunContext) (models.Output, error) {
		return models.Output{}, boom
	})
	r, _ := testRunner(t, reg, &Sources{}, &recordingEmitter{})

	if _, err := r.Run(context.Background(), "nope", "x"); !errors.Is(err, ErrUnknownAsset) {
		t.Errorf("expected ErrUnknownAsset, got %v", err)
	}
	if _, err := r.Run(context.Background(), "a", "2024-01"); err == nil {
		t.Errorf("expected error for a wrong partition key")
	}
	if _, err := r.Run(context.Background(), "a", "a_monopartition"); !errors.Is(err, boom) {
		t.Errorf("expected materialization error, got %v", err)
	}
}

func TestRunEmitFailure(t *testing.T) {
	reg := staticAsset("a", func(context.Context, *RunContext) (models.Output, error) {
		return models.Present(models.LongTable(nil)), nil
	})
	storage := errors.New("connection refused")
	r, _ := testRunner(t, reg, &Sources{}, &recordingEmitter{err: storage})
	if _, err := r.Run(context.Background(), "a", "a_monopartition"); !errors.Is(err, storage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg, err := DefaultRegistry(testConfig())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	want := []string{
		"desfa_flows_daily", "desfa_ng_gcv_daily", "desfa_ng_quality_yearly",
		"entsog_flows_daily", "entsog_nominations_daily", "entsog_allocations_daily", "entsog_renominations_daily",
		"entsoe_day_ahead_prices", "entsoe_total_load_actual", "entsoe_total_load_day_ahead",
		"entsoe_crossborder_flows", "entsoe_generation_forecast_day_ahead", "entsoe_generation_forecast_windsolar",
		"entsoe_actual_generation_per_type", "entsoe_hydro_reservoir_storage",
		"entsoe_total_load_week_ahead", "entsoe_total_load_month_ahead", "entsoe_total_load_year_ahead",
	}
	assets := reg.List()
	if len(assets) != len(want) {
		t.Fatalf("expected %d assets, got %d", len(want), len(assets))
	}
	for i, name := range want {
		if assets[i].Name != name || assets[i].Description == "" {
			t.Errorf("asset %d = %+v, want %s", i, assets[i].Name, name)
		}
	}
	flows, _ := reg.Get("entsog_flows_daily")
	if flows.Partitions.Describe() != "monthly from 2017-01" {
		t.Errorf("unexpected partitions %s", flows.Partitions.Describe())
	}
	hydro, _ := reg.Get("entsoe_hydro_reservoir_storage")
	if hydro.Partitions.Describe() != "monthly from 2017-09" {
		t.Errorf("unexpected hydro partitions %s", hydro.Partitions.Describe())
	}
	if err := reg.Register(assets[0]); err == nil {
		t.Errorf("expected duplicate registration to fail")
	}
}
