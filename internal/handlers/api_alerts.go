package handlers

import (
	"net/http"

	"github.com/ideavolution/coordinator/internal/api"
	"github.com/ideavolution/coordinator/internal/database"
	"github.com/ideavolution/coordinator/internal/lifecycle"
	"github.com/ideavolution/coordinator/internal/logger"
	"github.com/ideavolution/coordinator/internal/services"
)

// respondAlert writes a single alert with its party summaries
func (h *APIHandler) respondAlert(w http.ResponseWriter, r *http.Request, status int, a *database.Alert) {
	api.RespondJSON(w, status, h.alertResponse(r, a))
}

func (h *APIHandler) alertResponse(r *http.Request, a *database.Alert) api.AlertResponse {
	dir, err := h.alerts.Parties(r.Context(), *a)
	if err != nil {
		// the alert itself is authoritative; summaries are decoration
		logger.WarnKV(r.Context(), "Failed to load party summaries", "alert_id", a.ID, "error", err)
		dir = nil
	}
	return h.mapper.ToResponse(*a, dir)
}

// handleListAlerts handles GET /api/alerts
func (h *APIHandler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	filter, errs := api.ParseAlertFilter(r)
	if errs != nil {
		api.RespondValidationError(w, errs)
		return
	}

	alerts, err := h.alerts.List(r.Context(), filter)
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	dir, err := h.alerts.Parties(r.Context(), alerts...)
	if err != nil {
		logger.WarnKV(r.Context(), "Failed to load party summaries", "error", err)
		dir = nil
	}
	api.RespondJSON(w, http.StatusOK, h.mapper.ToList(alerts, dir))
}

// handleCreateAlert handles POST /api/alerts
func (h *APIHandler) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req api.CreateAlertRequest
	if errs := api.DecodeAndValidate(r, &req); errs != nil {
		api.RespondValidationError(w, errs)
		return
	}

	restaurantID, ok := actAs(w, actor, lifecycle.RoleRestaurant, "restaurant_id", req.RestaurantID)
	if !ok {
		return
	}

	alert, err := h.alerts.Create(r.Context(), services.CreateAlertInput{
		RestaurantID: restaurantID,
		FoodItems:    api.FoodItemsFromRequest(req.FoodItems),
		Notes:        req.Notes,
		PickupTime:   req.PickupTime,
	})
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	h.respondAlert(w, r, http.StatusCreated, alert)
}

// handleGetAlert handles GET /api/alerts/{id}
func (h *APIHandler) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	h.respondAlert(w, r, http.StatusOK, alert)
}

// handleAcceptAlert handles POST /api/alerts/{id}/accept
func (h *APIHandler) handleAcceptAlert(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req api.AcceptAlertRequest
	if r.ContentLength != 0 {
		if errs := api.DecodeAndValidate(r, &req); errs != nil {
			api.RespondValidationError(w, errs)
			return
		}
	}

	foodbankID, ok := actAs(w, actor, lifecycle.RoleFoodbank, "foodbank_id", req.FoodbankID)
	if !ok {
		return
	}

	alert, err := h.alerts.Accept(r.Context(), r.PathValue("id"), foodbankID)
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	h.respondAlert(w, r, http.StatusOK, alert)
}

// handleAssignDriver handles POST /api/alerts/{id}/assign-driver
func (h *APIHandler) handleAssignDriver(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req api.AssignDriverRequest
	if errs := api.DecodeAndValidate(r, &req); errs != nil {
		api.RespondValidationError(w, errs)
		return
	}

	alert, delivery, err := h.alerts.AssignDriver(r.Context(), actor, r.PathValue("id"), req.DriverID)
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.AssignDriverResponse{
		Alert:           h.alertResponse(r, alert),
		DeliveryRequest: delivery,
	})
}

// handleUpdateStatus handles PUT /api/alerts/{id}/status
func (h *APIHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req api.UpdateStatusRequest
	if errs := api.DecodeAndValidate(r, &req); errs != nil {
		api.RespondValidationError(w, errs)
		return
	}

	alert, err := h.alerts.UpdateStatus(r.Context(), actor, r.PathValue("id"), req.Status)
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	h.respondAlert(w, r, http.StatusOK, alert)
}

// handleCancelAlert handles POST /api/alerts/{id}/cancel
func (h *APIHandler) handleCancelAlert(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req api.CancelAlertRequest
	if r.ContentLength != 0 {
		if errs := api.DecodeAndValidate(r, &req); errs != nil {
			api.RespondValidationError(w, errs)
			return
		}
	}

	alert, err := h.alerts.Cancel(r.Context(), actor, r.PathValue("id"), req.Reason)
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	h.respondAlert(w, r, http.StatusOK, alert)
}
