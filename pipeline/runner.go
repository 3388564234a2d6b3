package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gasflow/config"
	"gasflow/logger"
	"gasflow/processor"
	"gasflow/writer"
)

// ErrUnknownAsset is returned for asset names that are not registered.
var ErrUnknownAsset = errors.New("unknown asset")

// Runner materialises one asset partition per call and hands the result to
// the emitter.
type Runner struct {
	registry *Registry
	sources  *Sources
	emitter  writer.Emitter
	cfg      *config.Config
	log      *logger.Log

	now   func() time.Time
	newID func() string
}

func NewRunner(cfg *config.Config, registry *Registry, sources *Sources, emitter writer.Emitter, log *logger.Log) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Runner{
		registry: registry,
		sources:  sources,
		emitter:  emitter,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Run materialises the asset for the partition. An absent output is not an
// error and emits nothing. Duplicate keys are reported once and kept.
func (r *Runner) Run(ctx context.Context, assetName, partitionKey string) (*logger.RunReport, error) {
	asset, ok := r.registry.Get(assetName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, assetName)
	}
	window, err := asset.Partitions.Window(partitionKey, r.now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", assetName, err)
	}

	runID := r.newID()
	log := r.log.WithComponent(asset.Name).WithFields(logger.Fields{
		"partition": partitionKey,
		"run_id":    runID,
	})
	rc := &RunContext{
		Asset:     asset.Name,
		Partition: partitionKey,
		Window:    window,
		RunID:     runID,
		Log:       log,
		Sources:   r.sources,
		Config:    r.cfg,
	}

	report := logger.NewRunReport(asset.Name, partitionKey, runID)
	defer report.Finish(ctx, r.log)

	log.Info(fmt.Sprintf("Handling partition from %s to %s", window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339)))

	out, err := asset.Materialize(ctx, rc)
	if err != nil {
		log.WithError(err).Error("materialization failed")
		return report, fmt.Errorf("%s %s: %w", assetName, partitionKey, err)
	}

	table, present := out.Table()
	if !present {
		report.Absent = true
		log.Info("no data for partition; nothing emitted")
		return report, nil
	}

	if dups := processor.FindDuplicates(table); len(dups) > 0 {
		report.Duplicates = processor.DuplicateRows(dups)
		lines := make([]string, 0, len(dups))
		for _, d := range dups {
			lines = append(lines, fmt.Sprintf("%s rows %v", d.Key, d.Rows))
		}
		log.WithFields(logger.Fields{
			"duplicate_keys": len(dups),
			"duplicate_rows": report.Duplicates,
		}).Warn("Found duplicates in the index! They are as follows:\n" + strings.Join(lines, "\n"))
	}

	err = r.emitter.Emit(ctx, writer.Batch{
		Asset:     asset.Name,
		Group:     asset.Group,
		Partition: partitionKey,
		RunID:     runID,
		Table:     table,
	})
	if err != nil {
		log.WithError(err).Error("emit failed")
		return report, fmt.Errorf("emit %s %s: %w", assetName, partitionKey, err)
	}

	report.Rows = table.Len()
	return report, nil
}
