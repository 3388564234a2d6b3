package writer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/local"

	appconfig "gasflow/config"
	"gasflow/logger"
)

// LocalEmitter writes every batch as a parquet file below a directory,
// using the same layout as the S3 object keys.
type LocalEmitter struct {
	dir          string
	partitioning appconfig.PartitioningConfig
	parquet      appconfig.ParquetConfig
	log          *logger.Log
}

func NewLocalEmitter(cfg *appconfig.Config) *LocalEmitter {
	return &LocalEmitter{
		dir:          cfg.Storage.Local.Dir,
		partitioning: cfg.Writer.Partitioning,
		parquet:      cfg.Writer.Formats.Parquet,
		log:          logger.GetLogger(),
	}
}

func (e *LocalEmitter) Emit(ctx context.Context, b Batch) error {
	path := filepath.Join(e.dir, filepath.FromSlash(ObjectKey(e.partitioning, b)))
	log := e.log.WithComponent("local_writer").WithFields(logger.Fields{
		"asset":     b.Asset,
		"partition": b.Partition,
		"path":      path,
	})

	if b.Table.Len() == 0 {
		log.Debug("batch has no records, skipping")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := writeParquet(fw, b.Table, e.parquet); err != nil {
		fw.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	log.WithField("rows", b.Table.Len()).Info("batch written")
	return nil
}
