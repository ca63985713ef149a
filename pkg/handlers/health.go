package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/config"
	"github.com/ekaya-inc/downtime-engine/pkg/database"
	"github.com/ekaya-inc/downtime-engine/pkg/logging"
)

// ServiceName identifies this service in ping responses.
const ServiceName = "downtime-engine"

// healthCheckTimeout bounds the store ping done by /health.
const healthCheckTimeout = 3 * time.Second

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthResponse reports whether the store is reachable.
type HealthResponse struct {
	Status            string `json:"status"`
	DatabaseConnected bool   `json:"database_connected"`
}

// RootResponse is returned by GET /.
type RootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	store  database.Store
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. store may be nil, in which
// case the service always reports unhealthy.
func NewHealthHandler(cfg *config.Config, store database.Store, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, store: store, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Root handles GET /.
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.logger, http.StatusOK, RootResponse{
		Message: h.cfg.AppName + " is running",
		Version: h.cfg.Version,
	})
}

// Health handles GET /health. It always answers 200; the body says whether
// the store responded.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "unhealthy"}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn("Health check failed", zap.String("error", logging.SanitizeError(err)))
		} else {
			resp.Status = "healthy"
			resp.DatabaseConnected = true
		}
	}
	writeResponse(w, h.logger, http.StatusOK, resp)
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     ServiceName,
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	writeResponse(w, h.logger, http.StatusOK, response)
}
