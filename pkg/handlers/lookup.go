package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
	"github.com/ekaya-inc/downtime-engine/pkg/audit"
	"github.com/ekaya-inc/downtime-engine/pkg/auth"
	"github.com/ekaya-inc/downtime-engine/pkg/services"
	"github.com/ekaya-inc/downtime-engine/pkg/sql"
)

// LookupIDsRequest is the body of POST /lookup/ids. Each entity may be
// given as an object or as flat fields; object fields win and flat fields
// fill whatever the object leaves empty.
type LookupIDsRequest struct {
	Process   *services.EntityRef `json:"process,omitempty"`
	Model     *services.EntityRef `json:"model,omitempty"`
	Equipment *services.EntityRef `json:"equipment,omitempty"`

	ProcessID   string `json:"process_id,omitempty"`
	ProcessName string `json:"process_name,omitempty"`
	ModelID     string `json:"model_id,omitempty"`
	ModelName   string `json:"model_name,omitempty"`
	EqpID       string `json:"eqp_id,omitempty"`
	EqpName     string `json:"eqp_name,omitempty"`
}

// LookupIDsResponse carries the resolved ids; unresolved ids are null.
type LookupIDsResponse struct {
	ProcessID   *string `json:"process_id"`
	ModelID     *string `json:"model_id"`
	EquipmentID *string `json:"eqp_id"`
	Success     bool    `json:"success"`
}

func mergeRef(obj *services.EntityRef, id, name string) services.EntityRef {
	ref := services.EntityRef{ID: id, Name: name}
	if obj == nil {
		return ref
	}
	if obj.ID != "" {
		ref.ID = obj.ID
	}
	if obj.Name != "" {
		ref.Name = obj.Name
	}
	return ref
}

func (r LookupIDsRequest) toServiceRequest() services.LookupRequest {
	return services.LookupRequest{
		Process:   mergeRef(r.Process, r.ProcessID, r.ProcessName),
		Model:     mergeRef(r.Model, r.ModelID, r.ModelName),
		Equipment: mergeRef(r.Equipment, r.EqpID, r.EqpName),
	}
}

// LookupHandler resolves process, model and equipment ids.
type LookupHandler struct {
	service services.LookupService
	auditor *audit.SecurityAuditor
	logger  *zap.Logger
}

// NewLookupHandler creates a LookupHandler.
func NewLookupHandler(service services.LookupService, logger *zap.Logger) *LookupHandler {
	return &LookupHandler{
		service: service,
		auditor: audit.NewSecurityAuditor(logger),
		logger:  logger.Named("lookup"),
	}
}

// RegisterRoutes registers the lookup routes.
func (h *LookupHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.Handle("POST /lookup/ids", authMiddleware.RequireAuth(http.HandlerFunc(h.LookupIDs)))
}

// LookupIDs handles POST /lookup/ids.
func (h *LookupHandler) LookupIDs(w http.ResponseWriter, r *http.Request) {
	var body LookupIDsRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req := body.toServiceRequest()

	values := map[string]string{
		"process_id":   req.Process.ID,
		"process_name": req.Process.Name,
		"model_id":     req.Model.ID,
		"model_name":   req.Model.Name,
		"eqp_id":       req.Equipment.ID,
		"eqp_name":     req.Equipment.Name,
	}
	findings := sql.CheckAllParameters(values)
	if err := sql.FindingsError(findings); err != nil {
		h.auditor.LogInjectionAttempt(r, findings, values)
		writeError(w, h.logger, http.StatusBadRequest, "invalid_parameters", err.Error())
		return
	}

	res, err := h.service.LookupIDs(r.Context(), req)
	if err != nil {
		if errors.Is(err, apperrors.ErrStoreUnavailable) {
			writeError(w, h.logger, http.StatusServiceUnavailable, "store_unavailable", services.StoreUnavailableMessage)
			return
		}
		h.logger.Error("Id lookup failed", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", internalErrorMessage)
		return
	}

	writeResponse(w, h.logger, http.StatusOK, LookupIDsResponse{
		ProcessID:   res.ProcessID,
		ModelID:     res.ModelID,
		EquipmentID: res.EquipmentID,
		Success:     true,
	})
}
