package logger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type componentStat struct {
	warns  int64
	errors int64
}

var components sync.Map // map[string]*componentStat

func statFor(component string) *componentStat {
	v, _ := components.LoadOrStore(component, &componentStat{})
	return v.(*componentStat)
}

func recordWarn(component string) {
	atomic.AddInt64(&statFor(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&statFor(component).errors, 1)
}

// ComponentCounts returns the warnings and errors logged so far through
// entries carrying the given component.
func ComponentCounts(component string) (warns, errors int64) {
	v, ok := components.Load(component)
	if !ok {
		return 0, 0
	}
	cs := v.(*componentStat)
	return atomic.LoadInt64(&cs.warns), atomic.LoadInt64(&cs.errors)
}

// RunReport summarises one asset run.
type RunReport struct {
	Asset      string
	Partition  string
	RunID      string
	Rows       int
	Duplicates int
	Absent     bool
	Started    time.Time
	Finished   time.Time

	warnsAtStart  int64
	errorsAtStart int64
}

// NewRunReport starts a report for the asset. Warnings logged by the asset's
// component from now on are attributed to this run.
func NewRunReport(asset, partition, runID string) *RunReport {
	w, e := ComponentCounts(asset)
	return &RunReport{
		Asset:         asset,
		Partition:     partition,
		RunID:         runID,
		Started:       time.Now(),
		warnsAtStart:  w,
		errorsAtStart: e,
	}
}

// Warnings returns the warnings logged by the asset component during the run.
func (r *RunReport) Warnings() int64 {
	w, _ := ComponentCounts(r.Asset)
	return w - r.warnsAtStart
}

func (r *RunReport) Errors() int64 {
	_, e := ComponentCounts(r.Asset)
	return e - r.errorsAtStart
}

// Finish stamps the end time, logs the summary and publishes it.
func (r *RunReport) Finish(ctx context.Context, log *Log) {
	if r.Finished.IsZero() {
		r.Finished = time.Now()
	}
	duration := r.Finished.Sub(r.Started)

	log.WithComponent("report").WithFields(Fields{
		"asset":       r.Asset,
		"partition":   r.Partition,
		"run_id":      r.RunID,
		"rows":        r.Rows,
		"duplicates":  r.Duplicates,
		"absent":      r.Absent,
		"warnings":    r.Warnings(),
		"errors":      r.Errors(),
		"duration_ms": float64(duration.Nanoseconds()) / 1e6,
	}).Info("run report")

	dims := []cwtypes.Dimension{{Name: aws.String("asset"), Value: aws.String(r.Asset)}}
	publishMetrics(ctx, []cwtypes.MetricDatum{
		{MetricName: aws.String("RowsEmitted"), Dimensions: dims, Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(r.Rows))},
		{MetricName: aws.String("DuplicateKeys"), Dimensions: dims, Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(r.Duplicates))},
		{MetricName: aws.String("Warnings"), Dimensions: dims, Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(r.Warnings()))},
		{MetricName: aws.String("RunDuration"), Dimensions: dims, Unit: cwtypes.StandardUnitMilliseconds, Value: aws.Float64(float64(duration.Milliseconds()))},
	})
}
