package api

import (
	"time"

	"github.com/ideavolution/coordinator/internal/database"
	"github.com/ideavolution/coordinator/internal/lifecycle"
)

// ========== Alert Types ==========

// FoodItemRequest is one line of a donation
type FoodItemRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Quantity int    `json:"quantity" validate:"gt=0"`
	Unit     string `json:"unit" validate:"omitempty,max=32"`
}

// CreateAlertRequest is the request body for POST /api/alerts.
// RestaurantID may be omitted when the caller is the restaurant itself.
type CreateAlertRequest struct {
	RestaurantID string            `json:"restaurant_id" validate:"omitempty,max=36"`
	FoodItems    []FoodItemRequest `json:"food_items" validate:"required,min=1,dive"`
	Notes        string            `json:"notes" validate:"omitempty,max=2000"`
	PickupTime   *time.Time        `json:"pickup_time,omitempty"`
}

// AcceptAlertRequest is the request body for POST /api/alerts/{id}/accept.
// FoodbankID may be omitted when the caller is the food bank itself.
type AcceptAlertRequest struct {
	FoodbankID string `json:"foodbank_id" validate:"omitempty,max=36"`
}

// AssignDriverRequest is the request body for POST /api/alerts/{id}/assign-driver.
type AssignDriverRequest struct {
	DriverID string `json:"driver_id" validate:"required,max=36"`
}

// UpdateStatusRequest is the request body for PUT /api/alerts/{id}/status.
type UpdateStatusRequest struct {
	Status lifecycle.Status `json:"status" validate:"required,alert_status"`
}

// CancelAlertRequest is the request body for POST /api/alerts/{id}/cancel.
type CancelAlertRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=255"`
}

// ========== Directory Types ==========

// CreateRestaurantRequest is the request body for POST /api/restaurants.
type CreateRestaurantRequest struct {
	Name          string `json:"name" validate:"required,max=255"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"required,max=64"`
	Address       string `json:"address" validate:"required"`
	ContactPerson string `json:"contact_person" validate:"omitempty,max=255"`
}

// CreateFoodBankRequest is the request body for POST /api/foodbanks.
type CreateFoodBankRequest struct {
	Name          string `json:"name" validate:"required,max=255"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"required,max=64"`
	Address       string `json:"address" validate:"required"`
	ContactPerson string `json:"contact_person" validate:"omitempty,max=255"`
	Capacity      int    `json:"capacity" validate:"gte=0"`
}

// SetFoodBankActiveRequest is the request body for PUT /api/foodbanks/{id}/active.
type SetFoodBankActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// CreateDriverRequest is the request body for POST /api/drivers.
type CreateDriverRequest struct {
	Name          string `json:"name" validate:"required,max=255"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"required,max=64"`
	LicenseNumber string `json:"license_number" validate:"required,max=64"`
	VehicleType   string `json:"vehicle_type" validate:"required,oneof=car van truck"`
}

// LocationRequest is a reported coordinate pair
type LocationRequest struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

// DriverAvailabilityRequest is the request body for PUT /api/drivers/{id}/availability.
type DriverAvailabilityRequest struct {
	IsAvailable *bool            `json:"is_available" validate:"required"`
	Location    *LocationRequest `json:"location,omitempty"`
}

// ========== Response Types ==========

// AlertResponse is an alert with the contact details of its parties.
// ResponseDeadline is only set while the alert is pending.
type AlertResponse struct {
	database.Alert
	Restaurant       *database.PartySummary `json:"restaurant,omitempty"`
	Foodbank         *database.PartySummary `json:"foodbank,omitempty"`
	Driver           *database.PartySummary `json:"driver,omitempty"`
	ResponseDeadline *time.Time             `json:"response_deadline,omitempty"`
}

// AlertListResponse is the response body for GET /api/alerts.
type AlertListResponse struct {
	Alerts []AlertResponse `json:"alerts"`
	Count  int             `json:"count"`
}

// AssignDriverResponse is the response body for POST /api/alerts/{id}/assign-driver.
type AssignDriverResponse struct {
	Alert           AlertResponse             `json:"alert"`
	DeliveryRequest *database.DeliveryRequest `json:"delivery_request"`
}

// FoodBankCreatedResponse reports the new food bank and how many open
// donations were offered to it.
type FoodBankCreatedResponse struct {
	database.FoodBank
	OfferedAlerts int `json:"offered_alerts"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Time     string `json:"time"`
}
