package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
)

// TimestampLayout is the canonical text form of every timestamp the engine
// binds, returns or renders.
const TimestampLayout = "2006-01-02 15:04:05"

// DateLayout is accepted for caller-supplied time bounds.
const DateLayout = "2006-01-02"

// DowntimeType classifies a downtime event as planned or not.
type DowntimeType string

const (
	DowntimeScheduled   DowntimeType = "SCHEDULED"
	DowntimeUnscheduled DowntimeType = "UNSCHEDULED"
)

// Valid reports whether t is one of the known downtime types.
func (t DowntimeType) Valid() bool {
	return t == DowntimeScheduled || t == DowntimeUnscheduled
}

// Status is the handling state of a downtime event.
type Status string

const (
	StatusCompleted  Status = "COMPLETED"
	StatusInProgress Status = "IN_PROGRESS"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusCompleted || s == StatusInProgress
}

// DowntimeFilter is the structured form of a question: every constraint the
// extractor (or an upstream caller) found. Empty strings and nil pointers mean
// "unconstrained". Values are passed by copy; nothing mutates a filter once
// it has been handed to another component.
type DowntimeFilter struct {
	SiteID      string `json:"site_id,omitempty"`
	FactoryID   string `json:"factory_id,omitempty"`
	LineID      string `json:"line_id,omitempty"`
	ProcessID   string `json:"process_id,omitempty"`
	ModelID     string `json:"model_id,omitempty"`
	EquipmentID string `json:"eqp_id,omitempty"`

	DowntimeType DowntimeType `json:"down_type,omitempty"`
	Status       Status       `json:"status_id,omitempty"`
	ErrorCode    string       `json:"error_code,omitempty"`

	// DowntimeMinutes is an approximate value; queries match it within a tolerance band.
	DowntimeMinutes    *float64 `json:"down_time_minutes,omitempty"`
	DowntimeMinMinutes *float64 `json:"down_time_min,omitempty"`
	DowntimeMaxMinutes *float64 `json:"down_time_max,omitempty"`

	StartTimeFrom string `json:"start_time_from,omitempty"`
	StartTimeTo   string `json:"start_time_to,omitempty"`
}

// FilterField is one present constraint of a filter, in display order.
type FilterField struct {
	Key   string
	Value string
}

// IsSpecific reports whether at least one constraint is present.
// Only specific filters may be turned into store queries.
func (f DowntimeFilter) IsSpecific() bool {
	return len(f.Fields()) > 0
}

// Fields lists the present constraints in a stable order. Keys match the
// JSON field names.
func (f DowntimeFilter) Fields() []FilterField {
	var out []FilterField
	add := func(key, value string) {
		if value != "" {
			out = append(out, FilterField{Key: key, Value: value})
		}
	}
	addNum := func(key string, v *float64) {
		if v != nil {
			add(key, FormatNumber(*v))
		}
	}

	add("site_id", f.SiteID)
	add("factory_id", f.FactoryID)
	add("line_id", f.LineID)
	add("process_id", f.ProcessID)
	add("model_id", f.ModelID)
	add("eqp_id", f.EquipmentID)
	add("down_type", string(f.DowntimeType))
	add("status_id", string(f.Status))
	add("error_code", f.ErrorCode)
	addNum("down_time_minutes", f.DowntimeMinutes)
	addNum("down_time_min", f.DowntimeMinMinutes)
	addNum("down_time_max", f.DowntimeMaxMinutes)
	add("start_time_from", f.StartTimeFrom)
	add("start_time_to", f.StartTimeTo)
	return out
}

// Merge returns a copy of f where every constraint present in hints replaces
// the corresponding one in f.
func (f DowntimeFilter) Merge(hints DowntimeFilter) DowntimeFilter {
	out := f
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&out.SiteID, hints.SiteID)
	pick(&out.FactoryID, hints.FactoryID)
	pick(&out.LineID, hints.LineID)
	pick(&out.ProcessID, hints.ProcessID)
	pick(&out.ModelID, hints.ModelID)
	pick(&out.EquipmentID, hints.EquipmentID)
	pick(&out.ErrorCode, hints.ErrorCode)
	pick(&out.StartTimeFrom, hints.StartTimeFrom)
	pick(&out.StartTimeTo, hints.StartTimeTo)
	if hints.DowntimeType != "" {
		out.DowntimeType = hints.DowntimeType
	}
	if hints.Status != "" {
		out.Status = hints.Status
	}

	// an explicit value or range from the caller replaces the whole numeric group
	if hints.DowntimeMinutes != nil || hints.DowntimeMinMinutes != nil || hints.DowntimeMaxMinutes != nil {
		out.DowntimeMinutes = copyFloat(hints.DowntimeMinutes)
		out.DowntimeMinMinutes = copyFloat(hints.DowntimeMinMinutes)
		out.DowntimeMaxMinutes = copyFloat(hints.DowntimeMaxMinutes)
	} else {
		out.DowntimeMinutes = copyFloat(f.DowntimeMinutes)
		out.DowntimeMinMinutes = copyFloat(f.DowntimeMinMinutes)
		out.DowntimeMaxMinutes = copyFloat(f.DowntimeMaxMinutes)
	}
	return out
}

// Normalize returns a copy with identifiers trimmed and upper-cased, "null"
// placeholders dropped, and date-only time bounds expanded to full timestamps.
func (f DowntimeFilter) Normalize() DowntimeFilter {
	out := f
	for _, p := range []*string{&out.SiteID, &out.FactoryID, &out.LineID, &out.ProcessID, &out.ModelID, &out.EquipmentID, &out.ErrorCode} {
		*p = strings.ToUpper(CleanValue(*p))
	}
	out.DowntimeType = DowntimeType(strings.ToUpper(CleanValue(string(out.DowntimeType))))
	out.Status = Status(strings.ToUpper(CleanValue(string(out.Status))))
	out.StartTimeFrom = expandDate(CleanValue(out.StartTimeFrom), "00:00:00")
	out.StartTimeTo = expandDate(CleanValue(out.StartTimeTo), "23:59:59")
	out.DowntimeMinutes = copyFloat(f.DowntimeMinutes)
	out.DowntimeMinMinutes = copyFloat(f.DowntimeMinMinutes)
	out.DowntimeMaxMinutes = copyFloat(f.DowntimeMaxMinutes)
	return out
}

// Validate checks enum values, numeric bounds and time formats. Every failure
// wraps apperrors.ErrValidation.
func (f DowntimeFilter) Validate() error {
	var errs []error
	if f.DowntimeType != "" && !f.DowntimeType.Valid() {
		errs = append(errs, fmt.Errorf("down_type must be SCHEDULED or UNSCHEDULED, got %q", f.DowntimeType))
	}
	if f.Status != "" && !f.Status.Valid() {
		errs = append(errs, fmt.Errorf("status_id must be COMPLETED or IN_PROGRESS, got %q", f.Status))
	}
	for _, n := range []struct {
		name string
		v    *float64
	}{
		{"down_time_minutes", f.DowntimeMinutes},
		{"down_time_min", f.DowntimeMinMinutes},
		{"down_time_max", f.DowntimeMaxMinutes},
	} {
		if n.v != nil && *n.v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", n.name))
		}
	}
	if f.DowntimeMinMinutes != nil && f.DowntimeMaxMinutes != nil && *f.DowntimeMinMinutes > *f.DowntimeMaxMinutes {
		errs = append(errs, errors.New("down_time_min must not exceed down_time_max"))
	}
	for _, ts := range []struct{ name, v string }{
		{"start_time_from", f.StartTimeFrom},
		{"start_time_to", f.StartTimeTo},
	} {
		if ts.v == "" {
			continue
		}
		if _, err := time.ParseInLocation(TimestampLayout, ts.v, time.Local); err != nil {
			errs = append(errs, fmt.Errorf("%s must be formatted %s", ts.name, TimestampLayout))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", apperrors.ErrValidation, errors.Join(errs...))
}

// CleanValue trims s and treats "null"/"none" placeholders sent by workflow
// engines as absent.
func CleanValue(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "null", "none", "undefined":
		return ""
	}
	return s
}

// Float returns a pointer to v, for building filters in code.
func Float(v float64) *float64 {
	return &v
}

// FormatNumber renders v without trailing zeros ("120", "90.5").
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func expandDate(s, clock string) string {
	if _, err := time.Parse(DateLayout, s); err == nil {
		return s + " " + clock
	}
	return s
}

// Row is one result record keyed by lower-case column name. Timestamps are
// already rendered with TimestampLayout and numerics are float64 or int64.
type Row map[string]any

// String returns the column as text, or "" when absent or null.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return FormatNumber(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Float returns the column as a number and whether it was present and numeric.
func (r Row) Float(col string) (float64, bool) {
	switch v := r[col].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// DowntimeStatistics aggregates the events matching a filter. Every field is
// zero, never absent, when nothing matched.
type DowntimeStatistics struct {
	TotalCount       int64   `json:"total_count"`
	TotalMinutes     float64 `json:"total_minutes"`
	AvgMinutes       float64 `json:"avg_minutes"`
	MinMinutes       float64 `json:"min_minutes"`
	MaxMinutes       float64 `json:"max_minutes"`
	ScheduledCount   int64   `json:"scheduled_count"`
	UnscheduledCount int64   `json:"unscheduled_count"`
	CompletedCount   int64   `json:"completed_count"`
	InProgressCount  int64   `json:"in_progress_count"`
}
