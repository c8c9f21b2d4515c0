package handlers

import (
	"net/http"

	"github.com/ideavolution/coordinator/internal/api"
	"github.com/ideavolution/coordinator/internal/database"
	"github.com/ideavolution/coordinator/internal/lifecycle"
)

// ========== Restaurants ==========

// handleListRestaurants handles GET /api/restaurants
func (h *APIHandler) handleListRestaurants(w http.ResponseWriter, r *http.Request) {
	rows, err := h.directory.ListRestaurants(r.Context())
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, rows)
}

// handleCreateRestaurant handles POST /api/restaurants
func (h *APIHandler) handleCreateRestaurant(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRestaurantRequest
	if errs := api.DecodeAndValidate(r, &req); errs != nil {
		api.RespondValidationError(w, errs)
		return
	}

	restaurant, err := h.directory.CreateRestaurant(r.Context(), &database.Restaurant{
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Address:       req.Address,
		ContactPerson: req.ContactPerson,
	})
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, restaurant)
}

// handleGetRestaurant handles GET /api/restaurants/{id}
func (h *APIHandler) handleGetRestaurant(w http.ResponseWriter, r *http.Request) {
	restaurant, err := h.directory.GetRestaurant(r.Context(), r.PathValue("id"))
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, restaurant)
}

// ========== Food banks ==========

// handleListFoodBanks handles GET /api/foodbanks?active=true
func (h *APIHandler) handleListFoodBanks(w http.ResponseWriter, r *http.Request) {
	rows, err := h.directory.ListFoodBanks(r.Context(), api.ParseBoolQuery(r, "active", false))
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, rows)
}

// handleCreateFoodBank handles POST /api/foodbanks. Still-open donations are
// offered to the new food bank straight away.
func (h *APIHandler) handleCreateFoodBank(w http.ResponseWriter, r *http.Request) {
	var req api.CreateFoodBankRequest
	if errs := api.DecodeAndValidate(r, &req); errs != nil {
		api.RespondValidationError(w, errs)
		return
	}

	fb, offered, err := h.directory.CreateFoodBank(r.Context(), &database.FoodBank{
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Address:       req.Address,
		ContactPerson: req.ContactPerson,
		Capacity:      req.Capacity,
	})
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, api.FoodBankCreatedResponse{FoodBank: *fb, OfferedAlerts: len(offered)})
}

// handleGetFoodBank handles GET /api/foodbanks/{id}
func (h *APIHandler) handleGetFoodBank(w http.ResponseWriter, r *http.Request) {
	fb, err := h.directory.GetFoodBank(r.Context(), r.PathValue("id"))
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, fb)
}

// handleSetFoodBankActive handles PUT /api/foodbanks/{id}/active
func (h *APIHandler) handleSetFoodBankActive(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if actor.Role != lifecycle.RoleAdmin && !(actor.Role == lifecycle.RoleFoodbank && actor.ID == id) {
		api.RespondErrorWithCode(w, http.StatusForbidden, api.CodeForbidden, "only the food bank itself or an admin may change its status")
		return
	}

	var req api.SetFoodBankActiveRequest
	if errs := api.DecodeAndValidate(r, &req); errs != nil {
		api.RespondValidationError(w, errs)
		return
	}

	fb, err := h.directory.SetFoodBankActive(r.Context(), id, *req.IsActive)
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, fb)
}

// ========== Drivers ==========

// handleListDrivers handles GET /api/drivers
func (h *APIHandler) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.directory.ListDrivers(r.Context(), false)
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, rows)
}

// handleAvailableDrivers handles GET /api/drivers/available
func (h *APIHandler) handleAvailableDrivers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.directory.ListDrivers(r.Context(), true)
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, rows)
}

// handleCreateDriver handles POST /api/drivers
func (h *APIHandler) handleCreateDriver(w http.ResponseWriter, r *http.Request) {
	var req api.CreateDriverRequest
	if errs := api.DecodeAndValidate(r, &req); errs != nil {
		api.RespondValidationError(w, errs)
		return
	}

	driver, err := h.directory.CreateDriver(r.Context(), &database.Driver{
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		LicenseNumber: req.LicenseNumber,
		VehicleType:   req.VehicleType,
	})
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, driver)
}

// handleGetDriver handles GET /api/drivers/{id}
func (h *APIHandler) handleGetDriver(w http.ResponseWriter, r *http.Request) {
	driver, err := h.directory.GetDriver(r.Context(), r.PathValue("id"))
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, driver)
}

// handleDriverAvailability handles PUT /api/drivers/{id}/availability
func (h *APIHandler) handleDriverAvailability(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if actor.Role != lifecycle.RoleAdmin && !(actor.Role == lifecycle.RoleDriver && actor.ID == id) {
		api.RespondErrorWithCode(w, http.StatusForbidden, api.CodeForbidden, "only the driver itself or an admin may change availability")
		return
	}

	var req api.DriverAvailabilityRequest
	if errs := api.DecodeAndValidate(r, &req); errs != nil {
		api.RespondValidationError(w, errs)
		return
	}

	driver, err := h.directory.SetDriverAvailability(r.Context(), id, *req.IsAvailable, api.LocationFromRequest(req.Location))
	if err != nil {
		api.RespondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, driver)
}
