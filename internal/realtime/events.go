// Package realtime delivers alert events to connected dashboards. Clients
// join rooms named after a role and an id; the fanout maps each committed
// alert change to the rooms that should hear about it.
package realtime

import (
	"fmt"
	"strings"

	"github.com/ideavolution/coordinator/internal/lifecycle"
)

// EventType names a server-to-client event
type EventType string

const (
	EventNewFoodAlert    EventType = "new_food_alert"
	EventAlertAccepted   EventType = "alert_accepted"
	EventDeliveryRequest EventType = "delivery_request"
	EventDriverAssigned  EventType = "driver_assigned"
	EventStatusUpdate    EventType = "alert_status_update"
	EventAlertExpired    EventType = "alert_expired"
	EventDriverLocation  EventType = "driver_location_update"

	// connection control
	EventConnected  EventType = "connected"
	EventJoinedRoom EventType = "joined_room"
	EventLeftRoom   EventType = "left_room"
	EventPong       EventType = "pong"
	EventError      EventType = "error"
)

// Event is the JSON frame written to a client
type Event struct {
	Event EventType   `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Room identifies a (role, id) subscription
type Room string

// RoomFor returns the room of a role and id, e.g. "foodbank_42"
func RoomFor(role lifecycle.Role, id string) Room {
	return Room(fmt.Sprintf("%s_%s", role, id))
}

// ParseRoom splits a room name back into role and id
func ParseRoom(name string) (lifecycle.Role, string, error) {
	role, id, ok := strings.Cut(name, "_")
	if !ok || id == "" {
		return "", "", fmt.Errorf("malformed room %q", name)
	}
	r := lifecycle.Role(role)
	if !r.RoomRole() {
		return "", "", fmt.Errorf("unknown room role %q", role)
	}
	return r, id, nil
}
