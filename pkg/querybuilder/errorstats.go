package querybuilder

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
	"github.com/ekaya-inc/downtime-engine/pkg/database"
	"github.com/ekaya-inc/downtime-engine/pkg/models"
)

// GroupBy selects how error-code statistics are bucketed.
type GroupBy string

const (
	GroupByErrorCode GroupBy = "error_code"
	GroupByMonth     GroupBy = "month"
	GroupByDay       GroupBy = "day"
)

// ErrorCodeStatsRequest narrows the error-code statistics. Dates accept
// either 2006-01-02 or a full timestamp.
type ErrorCodeStatsRequest struct {
	StartDate   string  `json:"start_date,omitempty"`
	EndDate     string  `json:"end_date,omitempty"`
	ProcessID   string  `json:"process_id,omitempty"`
	ModelID     string  `json:"model_id,omitempty"`
	EquipmentID string  `json:"eqp_id,omitempty"`
	ErrorCode   string  `json:"error_code,omitempty"`
	GroupBy     GroupBy `json:"group_by,omitempty"`
}

// Filter returns the request's constraints as a normalized DowntimeFilter.
func (r ErrorCodeStatsRequest) Filter() models.DowntimeFilter {
	return models.DowntimeFilter{
		ProcessID:     r.ProcessID,
		ModelID:       r.ModelID,
		EquipmentID:   r.EquipmentID,
		ErrorCode:     r.ErrorCode,
		StartTimeFrom: r.StartDate,
		StartTimeTo:   r.EndDate,
	}.Normalize()
}

// BuildErrorCodeStatsQuery counts events and downtime per process, model,
// equipment and error code, optionally per month or day. Unlike BuildQuery
// it accepts an unconstrained request.
func (b *Builder) BuildErrorCodeStatsQuery(req ErrorCodeStatsRequest) (Plan, error) {
	var granularity database.Granularity
	switch req.GroupBy {
	case "", GroupByErrorCode:
	case GroupByMonth:
		granularity = database.GranularityMonth
	case GroupByDay:
		granularity = database.GranularityDay
	default:
		return Plan{}, fmt.Errorf("%w: group_by must be error_code, month or day", apperrors.ErrValidation)
	}

	f := req.Filter()
	if err := f.Validate(); err != nil {
		return Plan{}, err
	}

	var w whereBuilder
	w.add(colErrorCode, opNotNull)
	if err := filterConditions(&w, f, b.store.Dialect(), nil); err != nil {
		return Plan{}, err
	}
	where, args := w.render()

	var (
		selects []string
		groups  []string
		orders  []string
	)
	if granularity != "" {
		period := b.store.Dialect().PeriodExpr(colDownStartTime, granularity)
		selects = append(selects, period+" AS period")
		groups = append(groups, period)
		orders = append(orders, "period ASC")
	} else {
		selects = append(selects, "NULL AS period")
	}

	for _, l := range lookupTables {
		available := b.lookupAvailable(l.name)
		name := l.nameColumn(available)
		selects = append(selects, l.factKey+" AS "+strings.TrimPrefix(l.factKey, "n."), name+" AS "+l.nameAs)
		groups = append(groups, l.factKey)
		if available {
			groups = append(groups, name)
		}
	}
	selects = append(selects,
		"COUNT(*) AS event_count",
		"COALESCE(SUM(n.down_time_minutes), 0) AS total_minutes",
		"COALESCE(AVG(n.down_time_minutes), 0) AS avg_minutes")
	orders = append(orders, "n.process_id ASC", "n.error_code ASC")

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString(" FROM inform_note n")
	for _, j := range b.joins() {
		sb.WriteString(" ")
		sb.WriteString(j)
	}
	sb.WriteString(" ")
	sb.WriteString(where)
	sb.WriteString(" GROUP BY ")
	sb.WriteString(strings.Join(groups, ", "))
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(orders, ", "))

	return Plan{SQL: sb.String(), Args: args}, nil
}
