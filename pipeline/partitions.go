package pipeline

import (
	"fmt"
	"time"

	"gasflow/models"
)

const monthLayout = "2006-01"

// Partitions turns partition keys into the time windows an asset runs over.
type Partitions interface {
	// Keys lists the partitions that exist at now.
	Keys(now time.Time) []string
	Window(key string, now time.Time) (models.PartitionWindow, error)
	Describe() string
}

// StaticPartitions has a single key covering all of history.
type StaticPartitions struct {
	Key string
}

func (p StaticPartitions) Keys(time.Time) []string {
	return []string{p.Key}
}

func (p StaticPartitions) Window(key string, now time.Time) (models.PartitionWindow, error) {
	if key != p.Key {
		return models.PartitionWindow{}, fmt.Errorf("unknown partition %q, expected %q", key, p.Key)
	}
	return models.PartitionWindow{Start: time.Unix(0, 0).UTC(), End: now.UTC()}, nil
}

func (p StaticPartitions) Describe() string {
	return "static " + p.Key
}

// MonthlyPartitions has one YYYY-MM key per calendar month from Start. A month
// is listed once it is complete; the running month can still be requested.
type MonthlyPartitions struct {
	Start time.Time
}

// NewMonthlyPartitions parses a YYYY-MM start month.
func NewMonthlyPartitions(start string) (MonthlyPartitions, error) {
	t, err := time.Parse(monthLayout, start)
	if err != nil {
		return MonthlyPartitions{}, fmt.Errorf("invalid partition start %q: %w", start, err)
	}
	return MonthlyPartitions{Start: t.UTC()}, nil
}

func (p MonthlyPartitions) Keys(now time.Time) []string {
	var keys []string
	for m := p.Start; !m.AddDate(0, 1, 0).After(now); m = m.AddDate(0, 1, 0) {
		keys = append(keys, m.Format(monthLayout))
	}
	return keys
}

func (p MonthlyPartitions) Window(key string, now time.Time) (models.PartitionWindow, error) {
	start, err := time.Parse(monthLayout, key)
	if err != nil {
		return models.PartitionWindow{}, fmt.Errorf("invalid monthly partition %q: want YYYY-MM", key)
	}
	if start.Before(p.Start) {
		return models.PartitionWindow{}, fmt.Errorf("partition %s precedes the first partition %s", key, p.Start.Format(monthLayout))
	}
	if start.After(now) {
		return models.PartitionWindow{}, fmt.Errorf("partition %s is in the future", key)
	}
	return models.PartitionWindow{Start: start, End: start.AddDate(0, 1, 0)}, nil
}

func (p MonthlyPartitions) Describe() string {
	return "monthly from " + p.Start.Format(monthLayout)
}
