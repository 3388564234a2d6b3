package pipeline

import (
	"context"
	"fmt"

	"gasflow/config"
	"gasflow/logger"
	"gasflow/models"
	"gasflow/processor"
	"gasflow/reader"
)

func desfaAssets() []Asset {
	return []Asset{
		{
			Name:        "desfa_flows_daily",
			Group:       "desfa",
			Description: "Deliveries / off-takes per entry and exit point per year since 2008",
			Partitions:  monopartition("desfa_flows_daily"),
			Materialize: func(ctx context.Context, rc *RunContext) (models.Output, error) {
				return wideSheet(ctx, rc, rc.Config.Desfa.FlowsURL, rc.Config.Desfa.Flows)
			},
		},
		{
			Name:        "desfa_ng_gcv_daily",
			Group:       "desfa",
			Description: "Daily natural gas gross calorific value at entry and exit points since Nov. 2011",
			Partitions:  monopartition("desfa_ng_gcv_daily"),
			Materialize: func(ctx context.Context, rc *RunContext) (models.Output, error) {
				return wideSheet(ctx, rc, rc.Config.Desfa.GCVURL, rc.Config.Desfa.GCV)
			},
		},
		{
			Name:  "desfa_ng_quality_yearly",
			Group: "desfa",
			Description: "Yearly natural gas quality indicators at entry points since 2008. Dew points are plain " +
				"averages, the other indicators are flow-weighted averages",
			Partitions:  monopartition("desfa_ng_quality_yearly"),
			Materialize: qualitySheet,
		},
	}
}

// WideLayout converts a configured sheet layout.
func WideLayout(c config.SheetLayoutConfig) processor.WideLayout {
	return processor.WideLayout{
		SkipRows:            c.SkipRows,
		DropColumns:         c.DropColumns,
		TrimTrailingColumns: c.TrimTrailingColumns,
		TrimTrailingRows:    c.TrimTrailingRows,
		AggregateMarker:     c.AggregateMarker,
		EntryColumns:        c.EntryColumns,
		TimeFormat:          processor.TimeFormat(c.TimeFormat),
	}
}

func wideSheet(ctx context.Context, rc *RunContext, url string, layout config.SheetLayoutConfig) (models.Output, error) {
	rc.Log.WithField("url", url).Info("fetching spreadsheet")
	grid, err := reader.FetchWorkbook(ctx, rc.Sources.HTTP, url)
	if err != nil {
		return models.Output{}, err
	}

	records, err := processor.Reshape(grid, WideLayout(layout))
	if err != nil {
		return models.Output{}, fmt.Errorf("reshape %s: %w", url, err)
	}
	logger.LogDataFlowEntry(rc.Log, "desfa", rc.Asset, len(records), "long_record")
	return models.Present(models.LongTable(records)), nil
}

func qualityLayout(c config.QualityConfig, throughYear int) processor.QualityLayout {
	points := make([]processor.EntryPoint, 0, len(c.EntryPoints))
	for _, p := range c.EntryPoints {
		points = append(points, processor.EntryPoint{Name: p.Name, StartYear: p.StartYear})
	}
	return processor.QualityLayout{EntryPoints: points, Columns: c.Columns, ThroughYear: throughYear}
}

func qualitySheet(ctx context.Context, rc *RunContext) (models.Output, error) {
	q := rc.Config.Desfa.Quality
	rc.Log.WithField("url", rc.Config.Desfa.QualityURL).Info("fetching spreadsheet")
	grid, err := reader.FetchWorkbook(ctx, rc.Sources.HTTP, rc.Config.Desfa.QualityURL)
	if err != nil {
		return models.Output{}, err
	}

	// blocks run up to the year the run happens in
	layout := qualityLayout(q, rc.Window.End.Year())
	locator := processor.MarkerLocator{Format: q.MarkerFormat, Offset: q.MarkerOffset}
	records, err := processor.AssembleQuality(grid, layout, locator, rc.Log)
	if err != nil {
		return models.Output{}, fmt.Errorf("assemble quality table: %w", err)
	}
	logger.LogDataFlowEntry(rc.Log, "desfa", rc.Asset, len(records), "quality_record")
	return models.Present(models.QualityTable(layout.ValueColumns(), records)), nil
}
