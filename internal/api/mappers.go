package api

import (
	"time"

	"github.com/ideavolution/coordinator/internal/database"
	"github.com/ideavolution/coordinator/internal/lifecycle"
)

// DeadlineFunc reports when a pending alert stops accepting responses
type DeadlineFunc func(*database.Alert) time.Time

// AlertMapper converts alerts to responses, attaching party summaries from
// dir when available.
type AlertMapper struct {
	Deadline DeadlineFunc
}

// AlertToResponse converts an alert without deadline information.
func AlertToResponse(a database.Alert, dir *database.PartyDirectory) AlertResponse {
	return AlertMapper{}.ToResponse(a, dir)
}

// ToResponse converts a single alert
func (m AlertMapper) ToResponse(a database.Alert, dir *database.PartyDirectory) AlertResponse {
	resp := AlertResponse{Alert: a}
	if dir != nil {
		resp.Restaurant = lookupParty(dir.Restaurants, a.RestaurantID)
		resp.Foodbank = lookupParty(dir.FoodBanks, a.FoodbankID)
		resp.Driver = lookupParty(dir.Drivers, a.DriverID)
	}
	if m.Deadline != nil && a.Status == lifecycle.StatusPending {
		d := m.Deadline(&a)
		resp.ResponseDeadline = &d
	}
	return resp
}

// ToList converts a slice of alerts
func (m AlertMapper) ToList(alerts []database.Alert, dir *database.PartyDirectory) AlertListResponse {
	items := make([]AlertResponse, len(alerts))
	for i, a := range alerts {
		items[i] = m.ToResponse(a, dir)
	}
	return AlertListResponse{Alerts: items, Count: len(items)}
}

func lookupParty(m map[string]database.PartySummary, id string) *database.PartySummary {
	if id == "" {
		return nil
	}
	p, ok := m[id]
	if !ok {
		return nil
	}
	return &p
}

// FoodItemsFromRequest converts request lines to stored items.
func FoodItemsFromRequest(items []FoodItemRequest) []database.FoodItem {
	out := make([]database.FoodItem, len(items))
	for i, it := range items {
		out[i] = database.FoodItem{Name: it.Name, Quantity: it.Quantity, Unit: it.Unit}
	}
	return out
}

// LocationFromRequest converts an optional reported location.
func LocationFromRequest(l *LocationRequest) *database.Location {
	if l == nil {
		return nil
	}
	return &database.Location{Lat: l.Lat, Lng: l.Lng}
}
