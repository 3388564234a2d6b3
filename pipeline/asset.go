package pipeline

import (
	"context"
	"fmt"
	"net/http"

	"gasflow/config"
	"gasflow/internal/retry"
	"gasflow/logger"
	"gasflow/models"
	"gasflow/reader/entsoe"
	"gasflow/reader/entsog"
)

// EntsoeAPI is the part of the ENTSO-E client the assets use.
type EntsoeAPI interface {
	DayAheadPrices(ctx context.Context, zone string, w models.PartitionWindow) ([]entsoe.Point, error)
	ActualLoad(ctx context.Context, zone string, w models.PartitionWindow) ([]entsoe.Point, error)
	LoadForecast(ctx context.Context, zone, process string, w models.PartitionWindow) ([]entsoe.Point, error)
	GenerationForecast(ctx context.Context, zone string, w models.PartitionWindow) ([]entsoe.Point, error)
	WindSolarForecast(ctx context.Context, zone, process string, w models.PartitionWindow) ([]entsoe.Point, error)
	ActualGenerationPerType(ctx context.Context, zone string, w models.PartitionWindow) ([]entsoe.Point, error)
	HydroReservoirStorage(ctx context.Context, zone string, w models.PartitionWindow) ([]entsoe.Point, error)
	CrossborderFlows(ctx context.Context, from, to string, w models.PartitionWindow) ([]entsoe.Point, error)
}

// Sources holds the clients assets fetch through.
type Sources struct {
	HTTP   *http.Client
	Entsog entsog.API
	Entsoe EntsoeAPI
}

// RunContext is what an asset sees of its run.
type RunContext struct {
	Asset     string
	Partition string
	Window    models.PartitionWindow
	RunID     string
	Log       *logger.Entry
	Sources   *Sources
	Config    *config.Config
}

// RetryPolicy converts the configured retry settings.
func (rc *RunContext) RetryPolicy() retry.Policy {
	r := rc.Config.Retry
	return retry.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		MaxDelay:    r.MaxDelay,
		Multiplier:  r.BackoffMultiplier,
	}
}

// MaterializeFunc produces the output of an asset for one partition.
type MaterializeFunc func(ctx context.Context, rc *RunContext) (models.Output, error)

type Asset struct {
	Name        string
	Group       string
	Description string
	Partitions  Partitions
	Materialize MaterializeFunc
}

// Registry keeps assets in registration order.
type Registry struct {
	assets map[string]Asset
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{assets: make(map[string]Asset)}
}

func (r *Registry) Register(a Asset) error {
	if a.Name == "" || a.Materialize == nil || a.Partitions == nil {
		return fmt.Errorf("asset %q is incomplete", a.Name)
	}
	if _, ok := r.assets[a.Name]; ok {
		return fmt.Errorf("asset %q registered twice", a.Name)
	}
	r.assets[a.Name] = a
	r.order = append(r.order, a.Name)
	return nil
}

func (r *Registry) Get(name string) (Asset, bool) {
	a, ok := r.assets[name]
	return a, ok
}

func (r *Registry) List() []Asset {
	out := make([]Asset, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.assets[name])
	}
	return out
}

// DefaultRegistry registers the DESFA, ENTSOG and ENTSO-E assets.
func DefaultRegistry(cfg *config.Config) (*Registry, error) {
	entsogMonths, err := NewMonthlyPartitions(cfg.Entsog.PartitionStart)
	if err != nil {
		return nil, fmt.Errorf("entsog: %w", err)
	}
	entsoeMonths, err := NewMonthlyPartitions(cfg.Entsoe.PartitionStart)
	if err != nil {
		return nil, fmt.Errorf("entsoe: %w", err)
	}
	hydroMonths, err := NewMonthlyPartitions(cfg.Entsoe.HydroPartitionStart)
	if err != nil {
		return nil, fmt.Errorf("entsoe hydro: %w", err)
	}

	reg := NewRegistry()
	assets := append(append(desfaAssets(), entsogAssets(entsogMonths)...), entsoeAssets(entsoeMonths, hydroMonths)...)
	for _, a := range assets {
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func monopartition(name string) StaticPartitions {
	return StaticPartitions{Key: name + "_monopartition"}
}
