// Package database provides the read-only relational stores that hold inform
// notes, one implementation per driver family, plus schema migrations.
package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/config"
	"github.com/ekaya-inc/downtime-engine/pkg/models"
)

// Store is a pooled, read-only connection to the inform note database.
// Implementations are safe for concurrent use.
type Store interface {
	Dialect() Dialect
	Ping(ctx context.Context) error
	// Query runs sql with $n placeholders and returns at most limit rows.
	Query(ctx context.Context, sql string, args []any, limit int) ([]models.Row, error)
	// TableExists reports whether name is a table in the current schema.
	TableExists(ctx context.Context, name string) (bool, error)
	Close()
}

// Open connects to the store described by cfg and verifies it with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgresStore(ctx, &PostgresConfig{
			URL:      cfg.ConnectionString(),
			MinConns: cfg.PoolMinConns,
			MaxConns: cfg.PoolMaxConns,
		}, logger)
	case config.DriverSQLServer, config.DriverSQLite:
		return OpenSQLStore(ctx, &SQLConfig{
			Driver:       cfg.Driver,
			DSN:          cfg.ConnectionString(),
			MaxOpenConns: int(cfg.PoolMaxConns),
			MaxIdleConns: int(cfg.PoolMinConns),
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// normalizeValue converts a driver value into the canonical Row shape:
// timestamps as TimestampLayout text, numerics as float64 or int64.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(models.TimestampLayout)
	case []byte:
		return string(val)
	case string, bool, float64, int64:
		return val
	case float32:
		return float64(val)
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case int16:
		return int64(val)
	case int8:
		return int64(val)
	case uint32:
		return int64(val)
	case uint16:
		return int64(val)
	case uint8:
		return int64(val)
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return fmt.Sprint(val)
	}
}

// normalizeDecimal parses the text form some drivers return for DECIMAL,
// NUMERIC and MONEY columns.
func normalizeDecimal(v any) any {
	var s string
	switch val := v.(type) {
	case []byte:
		s = string(val)
	case string:
		s = val
	default:
		return normalizeValue(v)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return s
	}
	return f
}

func isDecimalType(dbType string) bool {
	switch strings.ToUpper(dbType) {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return true
	}
	return false
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 1
	}
	return limit
}
