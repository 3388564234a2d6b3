package writer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "gasflow/config"
	"gasflow/logger"
	"gasflow/models"
)

const upsertChunk = 1000

// DB is the subset of *pgxpool.Pool the postgres emitter needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresEmitter upserts tables keyed by their key columns. The target table
// is named after the asset and created on first use.
type PostgresEmitter struct {
	db     DB
	schema string
	log    *logger.Log
}

func NewPostgresEmitter(db DB, schema string) *PostgresEmitter {
	if schema == "" {
		schema = "public"
	}
	return &PostgresEmitter{db: db, schema: schema, log: logger.GetLogger()}
}

// Connect opens a pool for the configured database and verifies it answers.
func Connect(ctx context.Context, cfg appconfig.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func (e *PostgresEmitter) Emit(ctx context.Context, b Batch) error {
	table := pgx.Identifier{e.schema, b.Asset}.Sanitize()
	log := e.log.WithComponent("postgres_writer").WithFields(logger.Fields{
		"asset":     b.Asset,
		"partition": b.Partition,
		"run_id":    b.RunID,
	})
	log.Info(fmt.Sprintf("Writing %d rows to %s.%s", b.Table.Len(), e.schema, b.Asset))

	if len(b.Table.KeyColumns) == 0 {
		return fmt.Errorf("table for %s has no key columns", b.Asset)
	}
	if b.Table.Len() == 0 {
		return nil
	}

	if _, err := e.db.Exec(ctx, createTableSQL(table, b.Table)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	query := upsertSQL(table, b.Table)
	start := time.Now()
	for lo := 0; lo < len(b.Table.Rows); lo += upsertChunk {
		hi := lo + upsertChunk
		if hi > len(b.Table.Rows) {
			hi = len(b.Table.Rows)
		}
		if err := e.sendChunk(ctx, query, b.Table, b.Table.Rows[lo:hi]); err != nil {
			return fmt.Errorf("upsert into %s: %w", table, err)
		}
	}

	logger.LogPerformanceEntry(log, "postgres_writer", "upsert", time.Since(start), logger.Fields{"rows": b.Table.Len()})
	return nil
}

func (e *PostgresEmitter) sendChunk(ctx context.Context, query string, t models.Table, rows []models.Row) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(query, rowArgs(t, r)...)
	}

	res := e.db.SendBatch(ctx, batch)
	for range rows {
		if _, err := res.Exec(); err != nil {
			res.Close()
			return err
		}
	}
	return res.Close()
}

func rowArgs(t models.Table, r models.Row) []any {
	args := make([]any, 0, len(t.KeyColumns)+len(t.ValueColumns))
	for _, col := range t.KeyColumns {
		switch col {
		case models.KeyTimestamp:
			args = append(args, r.Timestamp.UTC())
		case models.KeyPointID:
			args = append(args, r.PointID)
		case models.KeyPointType:
			args = append(args, string(r.PointType))
		}
	}
	for i := range t.ValueColumns {
		var v *float64
		if i < len(r.Values) {
			v = r.Values[i]
		}
		args = append(args, v)
	}
	return args
}

func columnType(col string) string {
	switch col {
	case models.KeyTimestamp:
		return "TIMESTAMP"
	case models.KeyPointID, models.KeyPointType:
		return "TEXT"
	}
	return "DOUBLE PRECISION"
}

func quoted(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgx.Identifier{c}.Sanitize()
	}
	return out
}

func createTableSQL(table string, t models.Table) string {
	var defs []string
	for _, c := range append(append([]string(nil), t.KeyColumns...), t.ValueColumns...) {
		def := pgx.Identifier{c}.Sanitize() + " " + columnType(c)
		if columnType(c) != "DOUBLE PRECISION" {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, PRIMARY KEY (%s))",
		table, strings.Join(defs, ", "), strings.Join(quoted(t.KeyColumns), ", "))
}

func upsertSQL(table string, t models.Table) string {
	cols := quoted(append(append([]string(nil), t.KeyColumns...), t.ValueColumns...))
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	conflict := "DO NOTHING"
	if len(t.ValueColumns) > 0 {
		sets := make([]string, 0, len(t.ValueColumns))
		for _, c := range quoted(t.ValueColumns) {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
		conflict = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		table, strings.Join(cols, ", "), strings.Join(params, ", "),
		strings.Join(quoted(t.KeyColumns), ", "), conflict)
}
