package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
	"github.com/ekaya-inc/downtime-engine/pkg/database"
	"github.com/ekaya-inc/downtime-engine/pkg/logging"
	"github.com/ekaya-inc/downtime-engine/pkg/models"
	"github.com/ekaya-inc/downtime-engine/pkg/querybuilder"
)

// errorCodeStatsLimit bounds the number of groups returned in one response;
// the builder's MaxLimit applies on top.
const errorCodeStatsLimit = 1000

// ErrorCodeStat is one group of error-code statistics.
type ErrorCodeStat struct {
	Period        *string `json:"period"`
	ProcessID     *string `json:"process_id"`
	ProcessName   *string `json:"process_name"`
	ModelID       *string `json:"model_id"`
	ModelName     *string `json:"model_name"`
	EquipmentID   *string `json:"eqp_id"`
	EquipmentName *string `json:"eqp_name"`
	ErrorCode     string  `json:"error_code"`
	ErrorDesc     *string `json:"error_desc"`
	EventCount    int64   `json:"event_count"`
	TotalMinutes  float64 `json:"total_minutes"`
	AvgMinutes    float64 `json:"avg_minutes"`
}

// ErrorCodeStats is the grouped result of an error-code statistics request.
type ErrorCodeStats struct {
	GroupBy querybuilder.GroupBy `json:"group_by"`
	Total   int                  `json:"total"`
	Data    []ErrorCodeStat      `json:"data"`
}

// StatsService computes aggregate statistics over inform notes.
type StatsService interface {
	ErrorCodeStats(ctx context.Context, req querybuilder.ErrorCodeStatsRequest) (*ErrorCodeStats, error)
}

type statsService struct {
	builder *querybuilder.Builder
	store   database.Store
	logger  *zap.Logger
}

var _ StatsService = (*statsService)(nil)

// NewStatsService creates a StatsService.
func NewStatsService(builder *querybuilder.Builder, store database.Store, logger *zap.Logger) StatsService {
	return &statsService{
		builder: builder,
		store:   store,
		logger:  logger.Named("stats"),
	}
}

func (s *statsService) ErrorCodeStats(ctx context.Context, req querybuilder.ErrorCodeStatsRequest) (*ErrorCodeStats, error) {
	if req.GroupBy == "" {
		req.GroupBy = querybuilder.GroupByErrorCode
	}

	plan, err := s.builder.BuildErrorCodeStatsQuery(req)
	if err != nil {
		return nil, err
	}

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("Store unreachable", zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
	}

	rows, err := s.builder.ExecuteQuery(ctx, plan, errorCodeStatsLimit)
	if err != nil {
		return nil, err
	}

	out := &ErrorCodeStats{GroupBy: req.GroupBy, Data: make([]ErrorCodeStat, 0, len(rows))}
	for _, r := range rows {
		out.Data = append(out.Data, errorCodeStatFromRow(r))
	}
	out.Total = len(out.Data)

	s.logger.Info("Error-code statistics computed",
		zap.String("group_by", string(req.GroupBy)),
		zap.Int("groups", out.Total))
	return out, nil
}

func errorCodeStatFromRow(r models.Row) ErrorCodeStat {
	opt := func(col string) *string {
		if v := r.String(col); v != "" {
			return &v
		}
		return nil
	}
	num := func(col string) float64 {
		v, _ := r.Float(col)
		return v
	}
	return ErrorCodeStat{
		Period:        opt("period"),
		ProcessID:     opt("process_id"),
		ProcessName:   opt("process_name"),
		ModelID:       opt("model_id"),
		ModelName:     opt("model_name"),
		EquipmentID:   opt("eqp_id"),
		EquipmentName: opt("eqp_name"),
		ErrorCode:     r.String("error_code"),
		ErrorDesc:     opt("error_desc"),
		EventCount:    int64(num("event_count")),
		TotalMinutes:  num("total_minutes"),
		AvgMinutes:    num("avg_minutes"),
	}
}
