package handlers

import (
	"net/http"

	"github.com/ideavolution/coordinator/internal/api"
	"github.com/ideavolution/coordinator/internal/lifecycle"
	"github.com/ideavolution/coordinator/internal/middleware"
	"github.com/ideavolution/coordinator/internal/services"
)

// APIHandler serves the coordination API used by the restaurant, food bank
// and driver dashboards
type APIHandler struct {
	alerts    *services.AlertService
	directory *services.DirectoryService
	mapper    api.AlertMapper
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(alerts *services.AlertService, directory *services.DirectoryService) *APIHandler {
	h := &APIHandler{alerts: alerts, directory: directory}
	if alerts != nil {
		h.mapper = api.AlertMapper{Deadline: alerts.Deadline}
	}
	return h
}

// SetupRoutes sets up all API routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	// Alerts
	mux.HandleFunc("GET /api/alerts", h.handleListAlerts)
	mux.HandleFunc("POST /api/alerts", h.handleCreateAlert)
	mux.HandleFunc("GET /api/alerts/{id}", h.handleGetAlert)
	mux.HandleFunc("POST /api/alerts/{id}/accept", h.handleAcceptAlert)
	mux.HandleFunc("POST /api/alerts/{id}/assign-driver", h.handleAssignDriver)
	mux.HandleFunc("PUT /api/alerts/{id}/status", h.handleUpdateStatus)
	mux.HandleFunc("POST /api/alerts/{id}/cancel", h.handleCancelAlert)

	// Restaurants
	mux.HandleFunc("GET /api/restaurants", h.handleListRestaurants)
	mux.HandleFunc("POST /api/restaurants", h.handleCreateRestaurant)
	mux.HandleFunc("GET /api/restaurants/{id}", h.handleGetRestaurant)

	// Food banks
	mux.HandleFunc("GET /api/foodbanks", h.handleListFoodBanks)
	mux.HandleFunc("POST /api/foodbanks", h.handleCreateFoodBank)
	mux.HandleFunc("GET /api/foodbanks/{id}", h.handleGetFoodBank)
	mux.HandleFunc("PUT /api/foodbanks/{id}/active", h.handleSetFoodBankActive)

	// Drivers
	mux.HandleFunc("GET /api/drivers", h.handleListDrivers)
	mux.HandleFunc("POST /api/drivers", h.handleCreateDriver)
	mux.HandleFunc("GET /api/drivers/available", h.handleAvailableDrivers)
	mux.HandleFunc("GET /api/drivers/{id}", h.handleGetDriver)
	mux.HandleFunc("PUT /api/drivers/{id}/availability", h.handleDriverAvailability)
}

// requireActor returns the caller or writes 401
func requireActor(w http.ResponseWriter, r *http.Request) (lifecycle.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		api.RespondErrorWithCode(w, http.StatusUnauthorized, "unauthorized", "actor identity required")
		return lifecycle.Actor{}, false
	}
	return actor, true
}

// actAs resolves the party id a request acts for. Parties act for
// themselves; an admin must name the party explicitly.
func actAs(w http.ResponseWriter, actor lifecycle.Actor, role lifecycle.Role, field, requested string) (string, bool) {
	switch actor.Role {
	case role:
		if requested != "" && requested != actor.ID {
			api.RespondErrorWithCode(w, http.StatusForbidden, api.CodeForbidden, field+" does not match the caller")
			return "", false
		}
		return actor.ID, true
	case lifecycle.RoleAdmin:
		if requested == "" {
			api.RespondValidationError(w, map[string]string{field: "is required"})
			return "", false
		}
		return requested, true
	default:
		api.RespondErrorWithCode(w, http.StatusForbidden, api.CodeForbidden, string(actor.Role)+" may not perform this action")
		return "", false
	}
}
