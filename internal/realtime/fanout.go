package realtime

import (
	"context"
	"math"
	"time"

	"github.com/ideavolution/coordinator/internal/database"
	"github.com/ideavolution/coordinator/internal/lifecycle"
	"github.com/ideavolution/coordinator/internal/services"
)

// Fanout turns committed alert changes into room events
type Fanout struct {
	out      Dispatcher
	deadline func(*database.Alert) time.Time
	now      func() time.Time
}

// NewFanout creates a fanout writing to out. deadline reports when a pending
// alert stops accepting responses; it may be nil.
func NewFanout(out Dispatcher, deadline func(*database.Alert) time.Time) *Fanout {
	return &Fanout{out: out, deadline: deadline, now: time.Now}
}

type newAlertPayload struct {
	AlertID          string         `json:"alert_id"`
	Alert            database.Alert `json:"alert"`
	Message          string         `json:"message"`
	ExpiresInMinutes int            `json:"expires_in_minutes"`
}

type alertPayload struct {
	AlertID string         `json:"alert_id"`
	Alert   database.Alert `json:"alert"`
	Message string         `json:"message"`
}

type deliveryPayload struct {
	AlertID           string                    `json:"alert_id"`
	Alert             database.Alert            `json:"alert"`
	DeliveryRequest   *database.DeliveryRequest `json:"delivery_request"`
	Message           string                    `json:"message"`
	EstimatedDuration int                       `json:"estimated_duration"`
}

// StatusPayload is the body of alert_status_update
type StatusPayload struct {
	AlertID string           `json:"alert_id"`
	Status  lifecycle.Status `json:"status"`
}

// LocationPayload is the body of driver_location_update
type LocationPayload struct {
	DriverID string            `json:"driver_id"`
	AlertID  string            `json:"alert_id"`
	Location database.Location `json:"location"`
}

// Notify implements services.Notifier
func (f *Fanout) Notify(ctx context.Context, ch services.Change) {
	a := ch.Alert

	switch ch.Kind {
	case services.ChangeCreated, services.ChangeOffered:
		rooms := make([]Room, 0, len(ch.Recipients))
		for _, id := range ch.Recipients {
			rooms = append(rooms, RoomFor(lifecycle.RoleFoodbank, id))
		}
		f.out.Dispatch(ctx, rooms, Event{Event: EventNewFoodAlert, Data: newAlertPayload{
			AlertID:          a.ID,
			Alert:            a,
			Message:          "New food donation available for pickup",
			ExpiresInMinutes: f.minutesLeft(&a),
		}})
		return

	case services.ChangeAccepted:
		f.out.Dispatch(ctx, []Room{RoomFor(lifecycle.RoleRestaurant, a.RestaurantID)}, Event{
			Event: EventAlertAccepted,
			Data:  alertPayload{AlertID: a.ID, Alert: a, Message: "Your donation was accepted by a food bank"},
		})

	case services.ChangeDriverAssigned:
		estimate := database.DefaultEstimatedDurationMinutes
		if ch.Delivery != nil && ch.Delivery.EstimatedDurationMinutes > 0 {
			estimate = ch.Delivery.EstimatedDurationMinutes
		}
		if a.DriverID != "" {
			f.out.Dispatch(ctx, []Room{RoomFor(lifecycle.RoleDriver, a.DriverID)}, Event{
				Event: EventDeliveryRequest,
				Data: deliveryPayload{
					AlertID:           a.ID,
					Alert:             a,
					DeliveryRequest:   ch.Delivery,
					Message:           "New delivery assigned to you",
					EstimatedDuration: estimate,
				},
			})
		}
		if a.FoodbankID != "" {
			f.out.Dispatch(ctx, []Room{RoomFor(lifecycle.RoleFoodbank, a.FoodbankID)}, Event{
				Event: EventDriverAssigned,
				Data:  alertPayload{AlertID: a.ID, Alert: a, Message: "A driver was assigned to your pickup"},
			})
		}

	case services.ChangeExpired:
		f.out.Dispatch(ctx, []Room{RoomFor(lifecycle.RoleRestaurant, a.RestaurantID)}, Event{
			Event: EventAlertExpired,
			Data:  alertPayload{AlertID: a.ID, Alert: a, Message: "No food bank responded in time"},
		})
	}

	f.out.Dispatch(ctx, PartyRooms(&a), Event{
		Event: EventStatusUpdate,
		Data:  StatusPayload{AlertID: a.ID, Status: a.Status},
	})
}

// RelayLocation forwards a driver position to the alert's restaurant and
// food bank
func (f *Fanout) RelayLocation(ctx context.Context, a *database.Alert, loc database.Location) {
	rooms := []Room{RoomFor(lifecycle.RoleRestaurant, a.RestaurantID)}
	if a.FoodbankID != "" {
		rooms = append(rooms, RoomFor(lifecycle.RoleFoodbank, a.FoodbankID))
	}
	f.out.Dispatch(ctx, rooms, Event{
		Event: EventDriverLocation,
		Data:  LocationPayload{DriverID: a.DriverID, AlertID: a.ID, Location: loc},
	})
}

// PartyRooms returns the rooms of the parties attached to a
func PartyRooms(a *database.Alert) []Room {
	rooms := []Room{RoomFor(lifecycle.RoleRestaurant, a.RestaurantID)}
	if a.FoodbankID != "" {
		rooms = append(rooms, RoomFor(lifecycle.RoleFoodbank, a.FoodbankID))
	}
	if a.DriverID != "" {
		rooms = append(rooms, RoomFor(lifecycle.RoleDriver, a.DriverID))
	}
	return rooms
}

func (f *Fanout) minutesLeft(a *database.Alert) int {
	if f.deadline == nil {
		return 0
	}
	left := f.deadline(a).Sub(f.now())
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Minutes()))
}
