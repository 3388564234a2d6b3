package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gasflow/internal/retry"
	"gasflow/logger"
	"gasflow/models"
	"gasflow/reader/entsoe"
)

func entsoeAssets(months, hydroMonths MonthlyPartitions) []Asset {
	assets := []Asset{
		{
			Name:        "entsoe_day_ahead_prices",
			Group:       "entsoe",
			Description: "Day-ahead price per MWh for each market time unit of the Greek bidding zone",
			Partitions:  months,
			Materialize: func(ctx context.Context, rc *RunContext) (models.Output, error) {
				return zoneSeries(ctx, rc, "price", rc.Sources.Entsoe.DayAheadPrices)
			},
		},
		{
			Name:        "entsoe_total_load_actual",
			Group:       "entsoe",
			Description: "Average realised total load per market time unit of the Greek bidding zone",
			Partitions:  months,
			Materialize: func(ctx context.Context, rc *RunContext) (models.Output, error) {
				return zoneSeries(ctx, rc, "actual_load", rc.Sources.Entsoe.ActualLoad)
			},
		},
		{
			Name:        "entsoe_total_load_day_ahead",
			Group:       "entsoe",
			Description: "Day-ahead forecast of the average total load per market time unit",
			Partitions:  months,
			Materialize: func(ctx context.Context, rc *RunContext) (models.Output, error) {
				return zoneSeries(ctx, rc, "total_load", func(ctx context.Context, zone string, w models.PartitionWindow) ([]entsoe.Point, error) {
					return rc.Sources.Entsoe.LoadForecast(ctx, zone, entsoe.ProcessDayAhead, w)
				})
			},
		},
		{
			Name:  "entsoe_crossborder_flows",
			Group: "entsoe",
			Description: "Measured physical flows between Greece and each neighbouring bidding zone per market " +
				"time unit, one point per direction (gr_al is Greece to Albania)",
			Partitions:  months,
			Materialize: crossborderFlows,
		},
		{
			Name:        "entsoe_generation_forecast_day_ahead",
			Group:       "entsoe",
			Description: "Scheduled net generation (MW) per market time unit of the following day",
			Partitions:  months,
			Materialize: func(ctx context.Context, rc *RunContext) (models.Output, error) {
				return zoneSeries(ctx, rc, "scheduled_generation", rc.Sources.Entsoe.GenerationForecast)
			},
		},
		{
			Name:  "entsoe_generation_forecast_windsolar",
			Group: "entsoe",
			Description: "Wind and solar net generation forecasts (MW) per market time unit, day-ahead and " +
				"intraday, one column per production type and horizon",
			Partitions:  months,
			Materialize: windSolarForecast,
		},
		{
			Name:  "entsoe_actual_generation_per_type",
			Group: "entsoe",
			Description: "Actual net generation (MW) per production type, averaged per market time unit. " +
				"Pumped storage consumption gets its own _consumption column",
			Partitions:  months,
			Materialize: generationPerType,
		},
		{
			Name:        "entsoe_hydro_reservoir_storage",
			Group:       "entsoe",
			Description: "Weekly average filling (MWh) of all water reservoirs and hydro storage plants",
			Partitions:  hydroMonths,
			Materialize: func(ctx context.Context, rc *RunContext) (models.Output, error) {
				return zoneSeries(ctx, rc, "stored_energy", rc.Sources.Entsoe.HydroReservoirStorage)
			},
		},
	}

	horizons := []struct{ name, process, description string }{
		{"week", entsoe.ProcessWeekAhead, "Week ahead forecast of minimum and maximum total load per day"},
		{"month", entsoe.ProcessMonthAhead, "Month ahead forecast of minimum and maximum total load per week"},
		{"year", entsoe.ProcessYearAhead, "Year ahead forecast of minimum and maximum total load per week"},
	}
	for _, h := range horizons {
		process := h.process
		assets = append(assets, Asset{
			Name:        "entsoe_total_load_" + h.name + "_ahead",
			Group:       "entsoe",
			Description: h.description,
			Partitions:  months,
			Materialize: func(ctx context.Context, rc *RunContext) (models.Output, error) {
				return loadForecastRange(ctx, rc, process)
			},
		})
	}
	return assets
}

type zoneQuery func(ctx context.Context, zone string, w models.PartitionWindow) ([]entsoe.Point, error)

// queryPoints retries transient failures. No data is returned as
// entsoe.ErrNoMatchingData without retrying.
func queryPoints(ctx context.Context, rc *RunContext, call func(context.Context) ([]entsoe.Point, error)) ([]entsoe.Point, error) {
	var points []entsoe.Point
	err := retry.Do(ctx, rc.RetryPolicy(), func(ctx context.Context) error {
		var err error
		points, err = call(ctx)
		if errors.Is(err, entsoe.ErrNoMatchingData) {
			return retry.Permanent(err)
		}
		return err
	}, retry.WithNotify(func(attempt int, err error, wait time.Duration) {
		rc.Log.WithError(err).WithFields(logger.Fields{
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
		}).Info("attempt failed; retrying")
	}))
	return points, err
}

func zoneSeries(ctx context.Context, rc *RunContext, column string, query zoneQuery) (models.Output, error) {
	zone := rc.Config.Entsoe.BiddingZone
	points, err := queryPoints(ctx, rc, func(ctx context.Context) ([]entsoe.Point, error) {
		return query(ctx, zone, rc.Window)
	})
	if errors.Is(err, entsoe.ErrNoMatchingData) {
		rc.Log.Info("no matching data for partition")
		return models.Absent(), nil
	}
	if err != nil {
		return models.Output{}, err
	}

	t := models.Table{
		KeyColumns:   []string{models.KeyTimestamp},
		ValueColumns: []string{column},
		Rows:         make([]models.Row, 0, len(points)),
	}
	for _, p := range points {
		t.Rows = append(t.Rows, models.Row{Timestamp: p.Timestamp.UTC(), Values: []*float64{models.Float(p.Value)}})
	}
	return models.Present(t), nil
}

// cell is one value of a wide table being assembled.
type cell struct {
	ts     time.Time
	column string
	value  float64
}

// pivot builds a table keyed by timestamp with one value column per cell
// column, sorted by name. A later cell for the same timestamp and column
// replaces an earlier one.
func pivot(cells []cell) models.Table {
	byTime := map[time.Time]map[string]float64{}
	seen := map[string]bool{}
	var (
		names  []string
		stamps []time.Time
	)
	for _, c := range cells {
		if !seen[c.column] {
			seen[c.column] = true
			names = append(names, c.column)
		}
		ts := c.ts.UTC()
		if byTime[ts] == nil {
			byTime[ts] = map[string]float64{}
			stamps = append(stamps, ts)
		}
		byTime[ts][c.column] = c.value
	}
	sort.Strings(names)
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	t := models.Table{
		KeyColumns:   []string{models.KeyTimestamp},
		ValueColumns: names,
		Rows:         make([]models.Row, 0, len(stamps)),
	}
	for _, ts := range stamps {
		values := make([]*float64, len(names))
		for i, name := range names {
			if v, ok := byTime[ts][name]; ok {
				values[i] = models.Float(v)
			}
		}
		t.Rows = append(t.Rows, models.Row{Timestamp: ts, Values: values})
	}
	return t
}

// loadForecastRange reads the minimum (A60) and maximum (A61) series of a
// week, month or year ahead load forecast.
func loadForecastRange(ctx context.Context, rc *RunContext, process string) (models.Output, error) {
	zone := rc.Config.Entsoe.BiddingZone
	points, err := queryPoints(ctx, rc, func(ctx context.Context) ([]entsoe.Point, error) {
		return rc.Sources.Entsoe.LoadForecast(ctx, zone, process, rc.Window)
	})
	if errors.Is(err, entsoe.ErrNoMatchingData) {
		rc.Log.Info("no matching data for partition")
		return models.Absent(), nil
	}
	if err != nil {
		return models.Output{}, err
	}

	var cells []cell
	for _, p := range points {
		switch p.BusinessType {
		case "A60":
			cells = append(cells, cell{p.Timestamp, "min_total_load", p.Value})
		case "A61":
			cells = append(cells, cell{p.Timestamp, "max_total_load", p.Value})
		}
	}
	if len(cells) == 0 {
		rc.Log.Info("no minimum or maximum series in partition")
		return models.Absent(), nil
	}
	return models.Present(pivot(cells)), nil
}

func generationPerType(ctx context.Context, rc *RunContext) (models.Output, error) {
	zone := rc.Config.Entsoe.BiddingZone
	points, err := queryPoints(ctx, rc, func(ctx context.Context) ([]entsoe.Point, error) {
		return rc.Sources.Entsoe.ActualGenerationPerType(ctx, zone, rc.Window)
	})
	if errors.Is(err, entsoe.ErrNoMatchingData) {
		rc.Log.Info("no matching data for partition")
		return models.Absent(), nil
	}
	if err != nil {
		return models.Output{}, err
	}

	cells := make([]cell, 0, len(points))
	for _, p := range points {
		name := entsoe.PsrTypeName(p.PsrType)
		if p.Consumption {
			name += "_consumption"
		}
		cells = append(cells, cell{p.Timestamp, name, p.Value})
	}
	return models.Present(pivot(cells)), nil
}

// windSolarForecast joins the day-ahead and intraday forecasts. Either horizon
// may be missing; the partition is absent only when both are.
func windSolarForecast(ctx context.Context, rc *RunContext) (models.Output, error) {
	zone := rc.Config.Entsoe.BiddingZone
	horizons := []struct{ process, suffix string }{
		{entsoe.ProcessDayAhead, "_dayahead"},
		{entsoe.ProcessIntraday, "_intraday"},
	}

	var cells []cell
	for _, h := range horizons {
		points, err := queryPoints(ctx, rc, func(ctx context.Context) ([]entsoe.Point, error) {
			return rc.Sources.Entsoe.WindSolarForecast(ctx, zone, h.process, rc.Window)
		})
		if errors.Is(err, entsoe.ErrNoMatchingData) {
			rc.Log.WithField("process_type", h.process).Info("no matching data")
			continue
		}
		if err != nil {
			return models.Output{}, fmt.Errorf("wind and solar forecast %s: %w", h.process, err)
		}
		for _, p := range points {
			cells = append(cells, cell{p.Timestamp, entsoe.PsrTypeName(p.PsrType) + h.suffix, p.Value})
		}
	}
	if len(cells) == 0 {
		rc.Log.Info("no matching data for any horizon")
		return models.Absent(), nil
	}
	return models.Present(pivot(cells)), nil
}

type direction struct {
	id       string
	from, to []string
}

// crossborderDirections lists the outbound directions of every neighbour
// followed by the inbound ones.
func crossborderDirections(country, zone string, neighbours []neighbour) []direction {
	var out, in []direction
	for _, n := range neighbours {
		out = append(out, direction{id: country + "_" + n.name, from: []string{zone}, to: n.domains})
		in = append(in, direction{id: n.name + "_" + country, from: n.domains, to: []string{zone}})
	}
	return append(out, in...)
}

type neighbour struct {
	name    string
	domains []string
}

func crossborderFlows(ctx context.Context, rc *RunContext) (models.Output, error) {
	c := rc.Config.Entsoe
	neighbours := make([]neighbour, 0, len(c.Neighbours))
	for _, n := range c.Neighbours {
		neighbours = append(neighbours, neighbour{name: strings.ToLower(n.Name), domains: n.Domains})
	}

	var records []models.Row
	for _, d := range crossborderDirections(strings.ToLower(c.Country), c.BiddingZone, neighbours) {
		// a neighbour with several zones is summed; a missing pair adds nothing
		sums := map[time.Time]float64{}
		for _, from := range d.from {
			for _, to := range d.to {
				rc.Log.WithFields(logger.Fields{"from": from, "to": to}).Info("fetching crossborder flows")
				points, err := queryPoints(ctx, rc, func(ctx context.Context) ([]entsoe.Point, error) {
					return rc.Sources.Entsoe.CrossborderFlows(ctx, from, to, rc.Window)
				})
				if errors.Is(err, entsoe.ErrNoMatchingData) {
					rc.Log.WithFields(logger.Fields{"from": from, "to": to}).Info("no matching data")
					continue
				}
				if err != nil {
					return models.Output{}, fmt.Errorf("crossborder flows %s: %w", d.id, err)
				}
				for _, p := range points {
					sums[p.Timestamp.UTC()] += p.Value
				}
			}
		}

		stamps := make([]time.Time, 0, len(sums))
		for ts := range sums {
			stamps = append(stamps, ts)
		}
		sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
		for _, ts := range stamps {
			records = append(records, models.Row{Timestamp: ts, PointID: d.id, Values: []*float64{models.Float(sums[ts])}})
		}
	}

	if len(records) == 0 {
		rc.Log.Info("no matching data for any direction")
		return models.Absent(), nil
	}
	return models.Present(models.Table{
		KeyColumns:   []string{models.KeyTimestamp, models.KeyPointID},
		ValueColumns: []string{"value"},
		Rows:         records,
	}), nil
}
