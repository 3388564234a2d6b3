package pipeline

import (
	"context"

	"gasflow/models"
	"gasflow/reader/entsog"
)

func entsogAssets(months MonthlyPartitions) []Asset {
	series := []struct {
		name        string
		indicator   entsog.Indicator
		description string
	}{
		{"entsog_flows_daily", entsog.PhysicalFlow, "Daily physical flows at Greek entry and exit points since 2017"},
		{"entsog_nominations_daily", entsog.Nomination, "Daily nominations for Greek entry and exit points since 2017"},
		{"entsog_allocations_daily", entsog.Allocation, "Daily allocations for Greek entry and exit points since 2017"},
		{"entsog_renominations_daily", entsog.Renomination, "Daily renominations for Greek entry and exit points since 2017"},
	}

	assets := make([]Asset, 0, len(series))
	for _, s := range series {
		indicator := s.indicator
		assets = append(assets, Asset{
			Name:        s.name,
			Group:       "entsog",
			Description: s.description,
			Partitions:  months,
			Materialize: func(ctx context.Context, rc *RunContext) (models.Output, error) {
				return operationalData(ctx, rc, indicator)
			},
		})
	}
	return assets
}

func operationalData(ctx context.Context, rc *RunContext, indicator entsog.Indicator) (models.Output, error) {
	c := rc.Config.Entsog
	f := entsog.NewFetcher(rc.Sources.Entsog, entsog.FetcherConfig{
		Retry:         rc.RetryPolicy(),
		WindowDays:    c.WindowDays,
		OnExhausted:   c.OnExhausted,
		BalancingZone: c.BalancingZone,
		Country:       c.Country,
	}, rc.Log)
	return f.Fetch(ctx, rc.Window, indicator)
}
