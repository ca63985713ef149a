package querybuilder

import (
	"fmt"
	"strings"
	"time"

	"github.com/ekaya-inc/downtime-engine/pkg/database"
	"github.com/ekaya-inc/downtime-engine/pkg/models"
)

// Fact table columns, qualified with the n alias. Only these identifiers are
// ever rendered into a WHERE clause.
const (
	colSiteID          = "n.site_id"
	colFactoryID       = "n.factory_id"
	colLineID          = "n.line_id"
	colProcessID       = "n.process_id"
	colModelID         = "n.model_id"
	colEquipmentID     = "n.eqp_id"
	colDowntimeType    = "n.down_type"
	colStatus          = "n.status_id"
	colErrorCode       = "n.error_code"
	colDowntimeMinutes = "n.down_time_minutes"
	colDownStartTime   = "n.down_start_time"
)

type operator string

const (
	opEq      operator = "="
	opGTE     operator = ">="
	opLTE     operator = "<="
	opBetween operator = "BETWEEN"
	opNotNull operator = "IS NOT NULL"
)

// condition is one (column, operator, value) triple. BETWEEN carries two
// values; IS NOT NULL carries none.
type condition struct {
	column string
	op     operator
	values []any
}

// whereBuilder collects conditions and renders them with $1..$n placeholders
// in insertion order.
type whereBuilder struct {
	conds []condition
}

func (w *whereBuilder) add(column string, op operator, values ...any) {
	w.conds = append(w.conds, condition{column: column, op: op, values: values})
}

// eq adds an equality condition when value is non-empty.
func (w *whereBuilder) eq(column, value string) {
	if value != "" {
		w.add(column, opEq, value)
	}
}

// render returns the clause (including the WHERE keyword, or "" when there
// are no conditions) and its bind values.
func (w *whereBuilder) render() (string, []any) {
	if len(w.conds) == 0 {
		return "", nil
	}

	var (
		parts []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	for _, c := range w.conds {
		switch c.op {
		case opBetween:
			lo := next(c.values[0])
			hi := next(c.values[1])
			parts = append(parts, fmt.Sprintf("%s BETWEEN %s AND %s", c.column, lo, hi))
		case opNotNull:
			parts = append(parts, fmt.Sprintf("%s IS NOT NULL", c.column))
		default:
			parts = append(parts, fmt.Sprintf("%s %s %s", c.column, c.op, next(c.values[0])))
		}
	}
	return "WHERE " + strings.Join(parts, " AND "), args
}

// filterConditions appends the conditions of a normalized, validated filter.
// When tolerance is nil the approximate downtime value is ignored.
func filterConditions(w *whereBuilder, f models.DowntimeFilter, dialect database.Dialect, tolerance *float64) error {
	w.eq(colSiteID, f.SiteID)
	w.eq(colFactoryID, f.FactoryID)
	w.eq(colLineID, f.LineID)
	w.eq(colProcessID, f.ProcessID)
	w.eq(colModelID, f.ModelID)
	w.eq(colEquipmentID, f.EquipmentID)
	w.eq(colDowntimeType, string(f.DowntimeType))
	w.eq(colStatus, string(f.Status))
	w.eq(colErrorCode, f.ErrorCode)

	if f.DowntimeMinutes != nil && tolerance != nil {
		lo, hi := toleranceBand(*f.DowntimeMinutes, *tolerance)
		w.add(colDowntimeMinutes, opBetween, lo, hi)
	}
	if f.DowntimeMinMinutes != nil {
		w.add(colDowntimeMinutes, opGTE, *f.DowntimeMinMinutes)
	}
	if f.DowntimeMaxMinutes != nil {
		w.add(colDowntimeMinutes, opLTE, *f.DowntimeMaxMinutes)
	}

	if f.StartTimeFrom != "" {
		t, err := time.ParseInLocation(models.TimestampLayout, f.StartTimeFrom, time.Local)
		if err != nil {
			return fmt.Errorf("invalid start_time_from: %w", err)
		}
		w.add(colDownStartTime, opGTE, dialect.TimeArg(t))
	}
	if f.StartTimeTo != "" {
		t, err := time.ParseInLocation(models.TimestampLayout, f.StartTimeTo, time.Local)
		if err != nil {
			return fmt.Errorf("invalid start_time_to: %w", err)
		}
		w.add(colDownStartTime, opLTE, dialect.TimeArg(t))
	}
	return nil
}

// toleranceBand widens v into [v*(1-tol), v*(1+tol)], never below zero.
func toleranceBand(v, tol float64) (float64, float64) {
	return max(0, v*(1-tol)), v * (1 + tol)
}
