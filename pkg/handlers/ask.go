package handlers

import (
	"errors"
	"net/http"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
	"github.com/ekaya-inc/downtime-engine/pkg/audit"
	"github.com/ekaya-inc/downtime-engine/pkg/auth"
	"github.com/ekaya-inc/downtime-engine/pkg/middleware"
	"github.com/ekaya-inc/downtime-engine/pkg/models"
	"github.com/ekaya-inc/downtime-engine/pkg/services"
	"github.com/ekaya-inc/downtime-engine/pkg/sql"
)

// internalErrorMessage is shown when a request fails unexpectedly.
const internalErrorMessage = "요청을 처리하는 중 오류가 발생했습니다. 잠시 후 다시 시도해 주세요."

// AskRequest is the body of POST /ask. Filters are optional hints from an
// upstream workflow; they override what is extracted from the question.
type AskRequest struct {
	Question string                 `json:"question"`
	Filters  *models.DowntimeFilter `json:"filters,omitempty"`
	Context  string                 `json:"context,omitempty"`
	Limit    int                    `json:"limit,omitempty"`
}

// AskResponse is the body of every /ask reply, including failures past
// request validation.
type AskResponse struct {
	Answer      string `json:"answer"`
	Question    string `json:"question"`
	Success     bool   `json:"success"`
	IsSpecific  *bool  `json:"is_specific,omitempty"`
	ResultCount *int   `json:"result_count,omitempty"`
	Source      string `json:"source"`
}

// AnalyzeRequest is the body of POST /ask/analyze.
type AnalyzeRequest struct {
	Question string                 `json:"question"`
	Filters  *models.DowntimeFilter `json:"filters,omitempty"`
}

// AskHandler serves natural-language questions.
type AskHandler struct {
	service services.AskService
	auditor *audit.SecurityAuditor
	logger  *zap.Logger
}

// NewAskHandler creates an AskHandler.
func NewAskHandler(service services.AskService, logger *zap.Logger) *AskHandler {
	return &AskHandler{
		service: service,
		auditor: audit.NewSecurityAuditor(logger),
		logger:  logger.Named("ask"),
	}
}

// RegisterRoutes registers the question routes.
func (h *AskHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.Handle("POST /ask", authMiddleware.RequireAuth(h.recoverer(http.HandlerFunc(h.Ask))))
	mux.Handle("POST /ask/analyze", authMiddleware.RequireAuth(h.recoverer(http.HandlerFunc(h.Analyze))))
}

// Ask handles POST /ask.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_question", "질문을 입력해 주세요.")
		return
	}
	if req.Filters != nil {
		findings := sql.CheckFilter(*req.Filters)
		if err := sql.FindingsError(findings); err != nil {
			h.auditor.LogInjectionAttempt(r, findings, filterValues(*req.Filters))
			writeError(w, h.logger, http.StatusBadRequest, "invalid_filters", err.Error())
			return
		}
	}

	res, err := h.service.Ask(r.Context(), services.AskRequest{
		Question: req.Question,
		Hints:    req.Filters,
		Context:  req.Context,
		Limit:    req.Limit,
	})
	if err != nil {
		h.writeAskError(w, r, req.Question, err)
		return
	}

	resp := AskResponse{
		Answer:     res.Answer,
		Question:   res.Question,
		Success:    res.Success,
		IsSpecific: &res.IsSpecific,
		Source:     res.Source,
	}
	if res.Source == services.SourceDatabase {
		resp.ResultCount = &res.ResultCount
	}

	h.logger.Info("Question answered",
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		zap.String("subject", auth.SubjectFromContext(r.Context())),
		zap.String("source", res.Source),
		zap.Bool("is_specific", res.IsSpecific),
		zap.Int("result_count", res.ResultCount))
	writeResponse(w, h.logger, http.StatusOK, resp)
}

func (h *AskHandler) writeAskError(w http.ResponseWriter, r *http.Request, question string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		h.auditor.LogParameterValidation(r, err.Error())
		writeError(w, h.logger, http.StatusBadRequest, "invalid_filters", err.Error())
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		writeResponse(w, h.logger, http.StatusServiceUnavailable, AskResponse{
			Answer:   services.StoreUnavailableMessage,
			Question: question,
			Source:   services.SourceDatabase,
		})
	default:
		h.logger.Error("Failed to answer question",
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
			zap.Error(err))
		writeResponse(w, h.logger, http.StatusInternalServerError, AskResponse{
			Answer:   internalErrorMessage,
			Question: question,
		})
	}
}

// Analyze handles POST /ask/analyze: the extracted filter and the query that
// would run, without touching the store.
func (h *AskHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" && req.Filters == nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_question", "질문을 입력해 주세요.")
		return
	}

	analysis, err := h.service.Analyze(req.Question, req.Filters)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_filters", err.Error())
			return
		}
		h.logger.Error("Failed to analyze question", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", internalErrorMessage)
		return
	}
	writeResponse(w, h.logger, http.StatusOK, analysis)
}

// recoverer turns a panic in next into a 500 AskResponse.
func (h *AskHandler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Error("Panic while answering question",
					zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()))
				writeResponse(w, h.logger, http.StatusInternalServerError, AskResponse{Answer: internalErrorMessage})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func filterValues(f models.DowntimeFilter) map[string]string {
	values := make(map[string]string)
	for _, field := range f.Fields() {
		values[field.Key] = field.Value
	}
	return values
}
