package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ideavolution/coordinator/internal/api"
	"github.com/ideavolution/coordinator/internal/logger"
	"gorm.io/gorm"
)

// HTTPHandler serves the unauthenticated operational endpoints
type HTTPHandler struct {
	db *gorm.DB
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(db *gorm.DB) *HTTPHandler {
	return &HTTPHandler{db: db}
}

// SetupRoutes configures all HTTP routes
func (h *HTTPHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/api/health", h.handleHealth)
}

// handleHealth reports liveness and whether the database answers
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := api.HealthResponse{Status: "ok", Database: "ok", Time: time.Now().UTC().Format(time.RFC3339)}
	status := http.StatusOK

	if err := h.pingDB(r.Context()); err != nil {
		logger.WarnKV(r.Context(), "Health check: database unreachable", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}
	api.RespondJSON(w, status, resp)
}

func (h *HTTPHandler) pingDB(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
