// Package querybuilder turns a DowntimeFilter into parameterized SQL over the
// inform_note fact table and executes it against a database.Store.
package querybuilder

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
	"github.com/ekaya-inc/downtime-engine/pkg/config"
	"github.com/ekaya-inc/downtime-engine/pkg/database"
	"github.com/ekaya-inc/downtime-engine/pkg/logging"
	"github.com/ekaya-inc/downtime-engine/pkg/models"
)

// Config holds the query tunables.
type Config struct {
	ToleranceRatio float64
	DefaultLimit   int
	MaxLimit       int
}

// DefaultConfig returns the tunables used when nothing is configured.
func DefaultConfig() Config {
	return Config{ToleranceRatio: 0.1, DefaultLimit: 20, MaxLimit: 1000}
}

// ConfigFrom adapts the application query configuration.
func ConfigFrom(c config.QueryConfig) Config {
	return Config{ToleranceRatio: c.ToleranceRatio, DefaultLimit: c.DefaultLimit, MaxLimit: c.MaxLimit}
}

// Plan is a parameterized statement. SQL uses $1..$n placeholders.
type Plan struct {
	SQL  string `json:"sql"`
	Args []any  `json:"binds"`
}

// Builder builds and runs downtime queries. It is safe for concurrent use;
// the only state is the set of detected lookup tables.
type Builder struct {
	store  database.Store
	cfg    Config
	logger *zap.Logger

	mu      sync.RWMutex
	lookups map[string]bool
}

// NewBuilder creates a Builder. No lookup tables are joined until
// DetectLookups runs.
func NewBuilder(store database.Store, cfg Config, logger *zap.Logger) *Builder {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultConfig().DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultConfig().MaxLimit
	}
	return &Builder{
		store:   store,
		cfg:     cfg,
		logger:  logger.Named("querybuilder"),
		lookups: map[string]bool{},
	}
}

// prepare normalizes and validates f and rejects filters without constraints.
func prepare(f models.DowntimeFilter) (models.DowntimeFilter, error) {
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return f, err
	}
	if !f.IsSpecific() {
		return f, apperrors.ErrFilterNotSpecific
	}
	return f, nil
}

// BuildQuery builds the row listing for f, newest first.
func (b *Builder) BuildQuery(f models.DowntimeFilter) (Plan, error) {
	f, err := prepare(f)
	if err != nil {
		return Plan{}, err
	}

	var w whereBuilder
	tol := b.cfg.ToleranceRatio
	if err := filterConditions(&w, f, b.store.Dialect(), &tol); err != nil {
		return Plan{}, err
	}
	where, args := w.render()

	name := func(table string) string {
		l := lookupByName(table)
		return l.nameColumn(b.lookupAvailable(table)) + " AS " + l.nameAs
	}
	cols := []string{
		"n.informnote_id", "n.site_id", "n.factory_id", "n.line_id",
		"n.process_id", name("process"),
		"n.model_id", name("model"),
		"n.eqp_id", name("equipment"),
		"n.down_start_time", "n.down_end_time", "n.down_time_minutes", "n.down_type",
		"n.error_code", name("error_code"),
		"n.act_prob_reason", "n.act_content", "n.act_start_time", "n.act_end_time",
		"n.operator", "n.first_detector", "n.status_id",
	}
	joins := b.joins()

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM inform_note n")
	for _, j := range joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}
	if where != "" {
		sb.WriteString(" ")
		sb.WriteString(where)
	}
	sb.WriteString(" ORDER BY n.down_start_time DESC")

	return Plan{SQL: sb.String(), Args: args}, nil
}

// BuildStatisticsQuery builds the aggregate over the events matching f. The
// approximate downtime value is not applied: statistics cover every event
// matching the other constraints.
func (b *Builder) BuildStatisticsQuery(f models.DowntimeFilter) (Plan, error) {
	f, err := prepare(f)
	if err != nil {
		return Plan{}, err
	}

	var w whereBuilder
	if err := filterConditions(&w, f, b.store.Dialect(), nil); err != nil {
		return Plan{}, err
	}
	where, args := w.render()

	sql := `SELECT COUNT(*) AS total_count, ` +
		`COALESCE(SUM(n.down_time_minutes), 0) AS total_minutes, ` +
		`COALESCE(AVG(n.down_time_minutes), 0) AS avg_minutes, ` +
		`COALESCE(MIN(n.down_time_minutes), 0) AS min_minutes, ` +
		`COALESCE(MAX(n.down_time_minutes), 0) AS max_minutes, ` +
		`SUM(CASE WHEN n.down_type = 'SCHEDULED' THEN 1 ELSE 0 END) AS scheduled_count, ` +
		`SUM(CASE WHEN n.down_type = 'UNSCHEDULED' THEN 1 ELSE 0 END) AS unscheduled_count, ` +
		`SUM(CASE WHEN n.status_id = 'COMPLETED' THEN 1 ELSE 0 END) AS completed_count, ` +
		`SUM(CASE WHEN n.status_id = 'IN_PROGRESS' THEN 1 ELSE 0 END) AS in_progress_count ` +
		`FROM inform_note n`
	if where != "" {
		sql += " " + where
	}
	return Plan{SQL: sql, Args: args}, nil
}

// Limit clamps a requested row count into [1, MaxLimit]; zero or negative
// selects DefaultLimit.
func (b *Builder) Limit(requested int) int {
	if requested <= 0 {
		return min(b.cfg.DefaultLimit, b.cfg.MaxLimit)
	}
	return min(requested, b.cfg.MaxLimit)
}

// ExecuteQuery runs plan and returns at most limit rows. Store failures wrap
// apperrors.ErrStoreUnavailable.
func (b *Builder) ExecuteQuery(ctx context.Context, plan Plan, limit int) ([]models.Row, error) {
	limit = b.Limit(limit)
	rows, err := b.store.Query(ctx, plan.SQL, plan.Args, limit)
	if err != nil {
		b.logger.Error("Query failed",
			zap.String("sql", logging.SanitizeQuery(plan.SQL)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
	}
	b.logger.Debug("Query executed",
		zap.String("sql", logging.SanitizeQuery(plan.SQL)),
		zap.Int("rows", len(rows)),
		zap.Int("limit", limit))
	return rows, nil
}

// GetStatistics aggregates the events matching f. Absent aggregates are 0.
func (b *Builder) GetStatistics(ctx context.Context, f models.DowntimeFilter) (models.DowntimeStatistics, error) {
	plan, err := b.BuildStatisticsQuery(f)
	if err != nil {
		return models.DowntimeStatistics{}, err
	}
	rows, err := b.ExecuteQuery(ctx, plan, 1)
	if err != nil {
		return models.DowntimeStatistics{}, err
	}
	if len(rows) == 0 {
		return models.DowntimeStatistics{}, nil
	}
	return statisticsFromRow(rows[0]), nil
}

func statisticsFromRow(r models.Row) models.DowntimeStatistics {
	num := func(col string) float64 {
		v, _ := r.Float(col)
		return v
	}
	count := func(col string) int64 {
		return int64(num(col))
	}
	return models.DowntimeStatistics{
		TotalCount:       count("total_count"),
		TotalMinutes:     num("total_minutes"),
		AvgMinutes:       num("avg_minutes"),
		MinMinutes:       num("min_minutes"),
		MaxMinutes:       num("max_minutes"),
		ScheduledCount:   count("scheduled_count"),
		UnscheduledCount: count("unscheduled_count"),
		CompletedCount:   count("completed_count"),
		InProgressCount:  count("in_progress_count"),
	}
}
