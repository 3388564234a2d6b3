package writer

import (
	"context"
	"errors"
	"fmt"

	"gasflow/logger"
	"gasflow/models"
)

// Batch is one asset run's output handed to storage.
type Batch struct {
	Asset     string
	Group     string
	Partition string
	RunID     string
	Table     models.Table
}

// Emitter persists a batch. Implementations must be safe to call once per run.
type Emitter interface {
	Emit(ctx context.Context, b Batch) error
}

// Multi fans a batch out to every emitter in order and stops at the first failure.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, b Batch) error {
	if len(m) == 0 {
		return errors.New("no emitters configured")
	}
	for _, e := range m {
		if err := e.Emit(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// LogEmitter only logs what would have been written. Used for dry runs.
type LogEmitter struct {
	log *logger.Log
}

func NewLogEmitter(log *logger.Log) *LogEmitter {
	if log == nil {
		log = logger.GetLogger()
	}
	return &LogEmitter{log: log}
}

func (e *LogEmitter) Emit(_ context.Context, b Batch) error {
	entry := e.log.WithComponent("dry_run").WithFields(logger.Fields{
		"asset":         b.Asset,
		"group":         b.Group,
		"partition":     b.Partition,
		"run_id":        b.RunID,
		"rows":          b.Table.Len(),
		"key_columns":   b.Table.KeyColumns,
		"value_columns": b.Table.ValueColumns,
	})
	if b.Table.Len() > 0 {
		entry = entry.WithField("first_key", b.Table.Key(b.Table.Rows[0]))
	}
	entry.Info(fmt.Sprintf("would write %d rows", b.Table.Len()))
	return nil
}
