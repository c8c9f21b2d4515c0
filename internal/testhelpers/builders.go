package testhelpers

import (
	"time"

	"github.com/google/uuid"
	"github.com/ideavolution/coordinator/internal/database"
	"github.com/ideavolution/coordinator/internal/lifecycle"
)

// ========================================
// Alert Builder
// ========================================

// AlertBuilder builds Alert rows for seeding tests directly
type AlertBuilder struct {
	alert database.Alert
}

// NewAlertBuilder creates a pending alert with one food item
func NewAlertBuilder() *AlertBuilder {
	now := time.Now().UTC()
	return &AlertBuilder{
		alert: database.Alert{
			ID:                uuid.NewString(),
			RestaurantID:      "r1",
			Status:            lifecycle.StatusPending,
			FoodItems:         database.FoodItems{{Name: "Bread", Quantity: 10, Unit: "loaves"}},
			NotifiedFoodbanks: database.StringSet{},
			ExpiresAt:         now.Add(24 * time.Hour),
			CreatedAt:         now,
		},
	}
}

// WithID sets the alert id
func (b *AlertBuilder) WithID(id string) *AlertBuilder {
	b.alert.ID = id
	return b
}

// WithRestaurant sets the creating restaurant
func (b *AlertBuilder) WithRestaurant(id string) *AlertBuilder {
	b.alert.RestaurantID = id
	return b
}

// WithStatus sets the status
func (b *AlertBuilder) WithStatus(status lifecycle.Status) *AlertBuilder {
	b.alert.Status = status
	return b
}

// WithFoodbank sets the accepting food bank
func (b *AlertBuilder) WithFoodbank(id string) *AlertBuilder {
	b.alert.FoodbankID = id
	now := time.Now().UTC()
	b.alert.AcceptedAt = &now
	return b
}

// WithDriver sets the assigned driver
func (b *AlertBuilder) WithDriver(id string) *AlertBuilder {
	b.alert.DriverID = id
	return b
}

// Notified records food banks the alert was offered to
func (b *AlertBuilder) Notified(ids ...string) *AlertBuilder {
	for _, id := range ids {
		b.alert.NotifiedFoodbanks = b.alert.NotifiedFoodbanks.Add(id)
	}
	return b
}

// CreatedAt backdates the alert
func (b *AlertBuilder) CreatedAt(ts time.Time) *AlertBuilder {
	b.alert.CreatedAt = ts
	return b
}

// WithItems replaces the food items
func (b *AlertBuilder) WithItems(items ...database.FoodItem) *AlertBuilder {
	b.alert.SetFoodItems(items)
	return b
}

// Build returns the constructed alert
func (b *AlertBuilder) Build() database.Alert {
	b.alert.TotalQuantity = b.alert.FoodItems.Total()
	return b.alert
}

// ========================================
// Directory Builders
// ========================================

// NewRestaurant returns an active restaurant
func NewRestaurant(id, name string) *database.Restaurant {
	return &database.Restaurant{
		ID:       id,
		Name:     name,
		Phone:    "555-0100",
		Address:  "1 Main St",
		IsActive: true,
	}
}

// NewFoodBank returns an active food bank
func NewFoodBank(id, name string) *database.FoodBank {
	return &database.FoodBank{
		ID:       id,
		Name:     name,
		Phone:    "555-0200",
		Address:  "2 Depot Rd",
		Capacity: 100,
		IsActive: true,
	}
}

// NewDriver returns an active, available driver
func NewDriver(id, name string) *database.Driver {
	return &database.Driver{
		ID:          id,
		Name:        name,
		Phone:       "555-0300",
		VehicleType: "van",
		IsAvailable: true,
		IsActive:    true,
		Rating:      5,
	}
}
