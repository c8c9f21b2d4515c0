package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/ideavolution/coordinator/internal/lifecycle"
	"gorm.io/gorm"
)

// scanJSON decodes a JSON column value into dst
func scanJSON(value interface{}, dst interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("type assertion to []byte failed")
	}
}

// FoodItem is one line of a donation
type FoodItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Unit     string `json:"unit"`
}

// FoodItems is stored as a JSON array, preserving order
type FoodItems []FoodItem

// Scan implements the sql.Scanner interface
func (f *FoodItems) Scan(value interface{}) error {
	if value == nil {
		*f = FoodItems{}
		return nil
	}
	return scanJSON(value, f)
}

// Value implements the driver.Valuer interface
func (f FoodItems) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Total returns the sum of item quantities
func (f FoodItems) Total() int {
	total := 0
	for _, item := range f {
		total += item.Quantity
	}
	return total
}

// StringSet is an insertion-ordered set of ids stored as a JSON array
type StringSet []string

// Scan implements the sql.Scanner interface
func (s *StringSet) Scan(value interface{}) error {
	if value == nil {
		*s = StringSet{}
		return nil
	}
	return scanJSON(value, s)
}

// Value implements the driver.Valuer interface
func (s StringSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Contains reports whether id is in the set
func (s StringSet) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Add returns the set with id appended if it was absent
func (s StringSet) Add(id string) StringSet {
	if s.Contains(id) {
		return s
	}
	return append(s, id)
}

// Location is a coordinate pair reported by a driver
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Scan implements the sql.Scanner interface
func (l *Location) Scan(value interface{}) error {
	if value == nil {
		*l = Location{}
		return nil
	}
	return scanJSON(value, l)
}

// Value implements the driver.Valuer interface
func (l Location) Value() (driver.Value, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Alert is a single donation offer moving through the lifecycle.
// FoodbankID and DriverID are empty until assigned and never change afterwards.
type Alert struct {
	ID                string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RestaurantID      string           `gorm:"type:varchar(36);not null;index" json:"restaurant_id"`
	FoodbankID        string           `gorm:"type:varchar(36);index" json:"foodbank_id,omitempty"`
	DriverID          string           `gorm:"type:varchar(36);index" json:"driver_id,omitempty"`
	Status            lifecycle.Status `gorm:"type:varchar(32);not null;index" json:"status"`
	FoodItems         FoodItems        `gorm:"type:jsonb;not null" json:"food_items"`
	TotalQuantity     int              `gorm:"not null" json:"total_quantity"`
	Notes             string           `gorm:"type:text" json:"notes,omitempty"`
	NotifiedFoodbanks StringSet        `gorm:"type:jsonb" json:"notified_foodbanks"`
	PickupTime        *time.Time       `json:"pickup_time,omitempty"`
	DeliveryTime      *time.Time       `json:"delivery_time,omitempty"`
	AcceptedAt        *time.Time       `json:"accepted_at,omitempty"`
	CancelReason      string           `gorm:"type:varchar(255)" json:"cancel_reason,omitempty"`
	ExpiresAt         time.Time        `gorm:"not null" json:"expires_at"`
	CreatedAt         time.Time        `gorm:"not null;index" json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (Alert) TableName() string {
	return "alerts"
}

// BeforeSave keeps TotalQuantity derived from FoodItems
func (a *Alert) BeforeSave(tx *gorm.DB) error {
	if a.FoodItems != nil {
		a.TotalQuantity = a.FoodItems.Total()
	}
	return nil
}

// SetFoodItems replaces the item list and recomputes the total
func (a *Alert) SetFoodItems(items FoodItems) {
	a.FoodItems = items
	a.TotalQuantity = items.Total()
}

// Parties returns the ids attached to the alert
func (a *Alert) Parties() lifecycle.Parties {
	return lifecycle.Parties{
		RestaurantID: a.RestaurantID,
		FoodbankID:   a.FoodbankID,
		DriverID:     a.DriverID,
	}
}

// Restaurant is a donor
type Restaurant struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name          string    `gorm:"type:varchar(255);not null" json:"name"`
	Email         string    `gorm:"type:varchar(255)" json:"email"`
	Phone         string    `gorm:"type:varchar(64)" json:"phone"`
	Address       string    `gorm:"type:text" json:"address"`
	ContactPerson string    `gorm:"type:varchar(255)" json:"contact_person,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Restaurant) TableName() string {
	return "restaurants"
}

// FoodBank receives donations
type FoodBank struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name          string    `gorm:"type:varchar(255);not null" json:"name"`
	Email         string    `gorm:"type:varchar(255)" json:"email"`
	Phone         string    `gorm:"type:varchar(64)" json:"phone"`
	Address       string    `gorm:"type:text" json:"address"`
	ContactPerson string    `gorm:"type:varchar(255)" json:"contact_person,omitempty"`
	Capacity      int       `gorm:"default:100" json:"capacity"`
	IsActive      bool      `gorm:"index" json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (FoodBank) TableName() string {
	return "foodbanks"
}

// Driver transports donations
type Driver struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name            string    `gorm:"type:varchar(255);not null" json:"name"`
	Email           string    `gorm:"type:varchar(255)" json:"email"`
	Phone           string    `gorm:"type:varchar(64)" json:"phone"`
	LicenseNumber   string    `gorm:"type:varchar(64)" json:"license_number"`
	VehicleType     string    `gorm:"type:varchar(32)" json:"vehicle_type"`
	CurrentLocation *Location `gorm:"type:jsonb" json:"current_location,omitempty"`
	IsAvailable     bool      `gorm:"index" json:"is_available"`
	IsActive        bool      `json:"is_active"`
	Rating          float64   `gorm:"default:5" json:"rating"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Driver) TableName() string {
	return "drivers"
}

// DeliveryStatus tracks the driver's leg of an alert
type DeliveryStatus string

const (
	DeliveryStatusAssigned  DeliveryStatus = "assigned"
	DeliveryStatusPickedUp  DeliveryStatus = "picked_up"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
)

// DefaultEstimatedDurationMinutes is used when no route estimate is available
const DefaultEstimatedDurationMinutes = 30

// DeliveryRequest is created when a driver is assigned to an alert
type DeliveryRequest struct {
	ID                       string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AlertID                  string         `gorm:"type:varchar(36);not null;uniqueIndex" json:"alert_id"`
	DriverID                 string         `gorm:"type:varchar(36);not null;index" json:"driver_id"`
	PickupAddress            string         `gorm:"type:text" json:"pickup_address"`
	DeliveryAddress          string         `gorm:"type:text" json:"delivery_address"`
	EstimatedDurationMinutes int            `json:"estimated_duration"`
	ActualPickupTime         *time.Time     `json:"actual_pickup_time,omitempty"`
	ActualDeliveryTime       *time.Time     `json:"actual_delivery_time,omitempty"`
	Status                   DeliveryStatus `gorm:"type:varchar(32);not null" json:"status"`
	CreatedAt                time.Time      `json:"created_at"`
	UpdatedAt                time.Time      `json:"updated_at"`
}

func (DeliveryRequest) TableName() string {
	return "delivery_requests"
}
