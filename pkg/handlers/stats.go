package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
	"github.com/ekaya-inc/downtime-engine/pkg/audit"
	"github.com/ekaya-inc/downtime-engine/pkg/auth"
	"github.com/ekaya-inc/downtime-engine/pkg/querybuilder"
	"github.com/ekaya-inc/downtime-engine/pkg/services"
	"github.com/ekaya-inc/downtime-engine/pkg/sql"
)

// ErrorCodeStatsResponse is the body of a successful error-code statistics call.
type ErrorCodeStatsResponse struct {
	Success bool                     `json:"success"`
	GroupBy querybuilder.GroupBy     `json:"group_by"`
	Total   int                      `json:"total"`
	Data    []services.ErrorCodeStat `json:"data"`
}

// StatsHandler serves aggregate statistics.
type StatsHandler struct {
	service services.StatsService
	auditor *audit.SecurityAuditor
	logger  *zap.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(service services.StatsService, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		service: service,
		auditor: audit.NewSecurityAuditor(logger),
		logger:  logger.Named("stats"),
	}
}

// RegisterRoutes registers the statistics routes.
func (h *StatsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.Handle("POST /api/v1/informnote/stats/error-code",
		authMiddleware.RequireAuth(http.HandlerFunc(h.ErrorCodeStats)))
}

// ErrorCodeStats handles POST /api/v1/informnote/stats/error-code.
func (h *StatsHandler) ErrorCodeStats(w http.ResponseWriter, r *http.Request) {
	var req querybuilder.ErrorCodeStatsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	values := map[string]string{
		"start_date": req.StartDate,
		"end_date":   req.EndDate,
		"process_id": req.ProcessID,
		"model_id":   req.ModelID,
		"eqp_id":     req.EquipmentID,
		"error_code": req.ErrorCode,
	}
	findings := sql.CheckAllParameters(values)
	if err := sql.FindingsError(findings); err != nil {
		h.auditor.LogInjectionAttempt(r, findings, values)
		writeError(w, h.logger, http.StatusBadRequest, "invalid_parameters", err.Error())
		return
	}

	stats, err := h.service.ErrorCodeStats(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrValidation):
			h.auditor.LogParameterValidation(r, err.Error())
			writeError(w, h.logger, http.StatusBadRequest, "invalid_parameters", err.Error())
		case errors.Is(err, apperrors.ErrStoreUnavailable):
			writeError(w, h.logger, http.StatusServiceUnavailable, "store_unavailable", services.StoreUnavailableMessage)
		default:
			h.logger.Error("Error-code statistics failed", zap.Error(err))
			writeError(w, h.logger, http.StatusInternalServerError, "internal_error", internalErrorMessage)
		}
		return
	}

	writeResponse(w, h.logger, http.StatusOK, ErrorCodeStatsResponse{
		Success: true,
		GroupBy: stats.GroupBy,
		Total:   stats.Total,
		Data:    stats.Data,
	})
}
