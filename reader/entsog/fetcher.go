package entsog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gasflow/internal/retry"
	"gasflow/logger"
	"gasflow/models"
	"gasflow/processor"
)

// API is the part of Client the fetcher needs.
type API interface {
	OperatorPointDirections(ctx context.Context) ([]PointDirection, error)
	OperationalData(ctx context.Context, from, to time.Time, indicators []Indicator, keys []string) ([]OperationalData, error)
}

// Exhaustion policies for a sub-window whose retries ran out.
const (
	OnExhaustedFail = "fail"
	OnExhaustedSkip = "skip"
)

type FetcherConfig struct {
	Retry         retry.Policy
	WindowDays    int
	OnExhausted   string
	BalancingZone string
	Country       string
}

// Fetcher pulls one indicator for a partition window, one request per
// sub-window of WindowDays days.
type Fetcher struct {
	api  API
	cfg  FetcherConfig
	log  *logger.Entry
	keys []string
}

func NewFetcher(api API, cfg FetcherConfig, log *logger.Entry) *Fetcher {
	if cfg.WindowDays < 2 {
		cfg.WindowDays = 2
	}
	if cfg.OnExhausted == "" {
		cfg.OnExhausted = OnExhaustedFail
	}
	if log == nil {
		log = logger.GetLogger().WithComponent("entsog_fetcher")
	}
	return &Fetcher{api: api, cfg: cfg, log: log}
}

// PointDirectionKeys returns the keys of the point directions whose TSO sits
// in the configured balancing zone or country. The listing is fetched once
// per Fetcher.
func (f *Fetcher) PointDirectionKeys(ctx context.Context) ([]string, error) {
	if f.keys != nil {
		return f.keys, nil
	}

	var points []PointDirection
	err := retry.Do(ctx, f.cfg.Retry, func(ctx context.Context) error {
		var err error
		points, err = f.api.OperatorPointDirections(ctx)
		return err
	}, retry.WithNotify(f.notify("operatorpointdirections")))
	if err != nil {
		return nil, fmt.Errorf("list point directions: %w", err)
	}

	keys := []string{}
	for _, p := range points {
		inZone := f.cfg.BalancingZone != "" && strings.Contains(p.TSOBalancingZone, f.cfg.BalancingZone)
		inCountry := f.cfg.Country != "" && p.TSOCountry == f.cfg.Country
		if inZone || inCountry {
			keys = append(keys, p.Key())
		}
	}
	f.log.WithFields(logger.Fields{"points": len(points), "selected": len(keys)}).Info("resolved point directions")
	f.keys = keys
	return keys, nil
}

// Fetch collects the indicator over the window as long records. It returns
// models.Absent() when no sub-window yielded any data.
func (f *Fetcher) Fetch(ctx context.Context, window models.PartitionWindow, indicator Indicator) (models.Output, error) {
	if _, err := indicator.APIName(); err != nil {
		return models.Output{}, err
	}
	keys, err := f.PointDirectionKeys(ctx)
	if err != nil {
		return models.Output{}, err
	}
	if len(keys) == 0 {
		f.log.Warn("no point directions matched the zone filter")
		return models.Absent(), nil
	}

	var (
		table     models.Table
		collected bool
	)
	for _, sub := range window.Split(time.Duration(f.cfg.WindowDays) * 24 * time.Hour) {
		from := sub.Start
		to := from.AddDate(0, 0, 1)
		log := f.log.WithFields(logger.Fields{
			"from":      from.Format("2006-01-02"),
			"to":        to.Format("2006-01-02"),
			"indicator": string(indicator),
		})

		var rows []OperationalData
		err := retry.Do(ctx, f.cfg.Retry, func(ctx context.Context) error {
			var err error
			rows, err = f.api.OperationalData(ctx, from, to, []Indicator{indicator}, keys)
			if errors.Is(err, ErrNoMatchingData) {
				rows = nil
				return nil
			}
			return err
		}, retry.WithNotify(f.notify("operationaldatas")))
		if err != nil {
			if errors.Is(err, retry.ErrExhausted) && f.cfg.OnExhausted == OnExhaustedSkip {
				log.WithError(err).Warn("retries exhausted; skipping sub-window")
				continue
			}
			return models.Output{}, fmt.Errorf("fetch %s %s..%s: %w", indicator, from.Format("2006-01-02"), to.Format("2006-01-02"), err)
		}
		if len(rows) == 0 {
			log.Debug("no matching data")
			continue
		}
		collected = true

		obs := make([]processor.OperatorObservation, 0, len(rows))
		for _, r := range rows {
			obs = append(obs, processor.OperatorObservation{
				PeriodFrom:    r.PeriodFrom.Time,
				PointLabel:    r.PointLabel,
				DirectionKey:  r.DirectionKey,
				OperatorKey:   r.OperatorKey,
				OperatorLabel: r.OperatorLabel,
				Value:         r.Value.Value,
			})
		}

		var kept []models.LongRecord
		for _, rec := range processor.ToLongRecords(processor.LabelOperatorCollisions(obs)) {
			if window.Contains(rec.Timestamp) {
				kept = append(kept, rec)
			}
		}
		if table, err = table.Append(models.LongTable(kept)); err != nil {
			return models.Output{}, err
		}
		log.WithFields(logger.Fields{"rows": len(rows), "kept": len(kept)}).Info("fetched operational data")
	}

	if !collected {
		return models.Absent(), nil
	}
	return models.Present(table), nil
}

func (f *Fetcher) notify(endpoint string) retry.Notify {
	return func(attempt int, err error, wait time.Duration) {
		f.log.WithError(err).WithFields(logger.Fields{
			"endpoint": endpoint,
			"attempt":  attempt,
			"wait_ms":  wait.Milliseconds(),
		}).Info("attempt failed; retrying")
	}
}
