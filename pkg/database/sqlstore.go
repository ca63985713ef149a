package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/config"
	"github.com/ekaya-inc/downtime-engine/pkg/logging"
	"github.com/ekaya-inc/downtime-engine/pkg/models"
)

// SQLConfig holds connection settings for SQLStore.
type SQLConfig struct {
	// Driver is config.DriverSQLServer or config.DriverSQLite.
	Driver       string
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// SQLStore is a Store over database/sql, used for SQL Server and SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

var _ Store = (*SQLStore)(nil)

// OpenSQLStore opens the pool and pings it.
func OpenSQLStore(ctx context.Context, cfg *SQLConfig, logger *zap.Logger) (*SQLStore, error) {
	if cfg.Driver != config.DriverSQLServer && cfg.Driver != config.DriverSQLite {
		return nil, fmt.Errorf("unsupported database/sql driver %q", cfg.Driver)
	}
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Driver, err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 5
	}
	if cfg.Driver == config.DriverSQLite {
		// sqlite serializes writers and an in-memory database is per connection
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(min(max(cfg.MaxIdleConns, 1), maxOpen))
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database",
		zap.String("driver", cfg.Driver),
		zap.String("dsn", logging.SanitizeConnectionString(cfg.DSN)),
		zap.Int("max_open_conns", maxOpen))

	return &SQLStore{db: db, dialect: dialect, logger: logger.Named(cfg.Driver)}, nil
}

func (s *SQLStore) Dialect() Dialect { return s.dialect }

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Query(ctx context.Context, query string, args []any, limit int) ([]models.Row, error) {
	limit = clampLimit(limit)
	q, boundArgs := s.dialect.Rebind(s.dialect.LimitQuery(query, limit), args)

	rows, err := s.db.QueryContext(ctx, q, boundArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]string, len(columnNames))
	decimal := make([]bool, len(columnNames))
	for i, name := range columnNames {
		columns[i] = strings.ToLower(name)
		decimal[i] = isDecimalType(columnTypes[i].DatabaseTypeName())
	}

	var result []models.Row
	for rows.Next() {
		if len(result) >= limit {
			break
		}
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(models.Row, len(columns))
		for i, col := range columns {
			if decimal[i] {
				row[col] = normalizeDecimal(values[i])
			} else {
				row[col] = normalizeValue(values[i])
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

func (s *SQLStore) TableExists(ctx context.Context, name string) (bool, error) {
	q, args := s.dialect.Rebind(s.dialect.TableExistsQuery(), []any{name})
	var one int
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return true, nil
}

// DB exposes the underlying pool for seeding local and test databases.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("Failed to close database", zap.Error(err))
	}
}
