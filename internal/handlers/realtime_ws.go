package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ideavolution/coordinator/internal/database"
	"github.com/ideavolution/coordinator/internal/lifecycle"
	"github.com/ideavolution/coordinator/internal/logger"
	"github.com/ideavolution/coordinator/internal/middleware"
	"github.com/ideavolution/coordinator/internal/realtime"
)

// Client-to-server frames
const (
	msgJoinRestaurant = "join_restaurant"
	msgJoinFoodbank   = "join_foodbank"
	msgJoinDriver     = "join_driver"
	msgLeaveRoom      = "leave_room"
	msgPing           = "ping"
	msgLocationUpdate = "location_update"
)

// AlertReader loads the current state of an alert
type AlertReader interface {
	Get(ctx context.Context, id string) (*database.Alert, error)
}

// RealtimeWSHandler serves the dashboard websocket at /ws
type RealtimeWSHandler struct {
	hub      *realtime.Hub
	fanout   *realtime.Fanout
	alerts   AlertReader
	upgrader websocket.Upgrader
}

// NewRealtimeWSHandler creates the websocket handler. allowOrigin decides
// which browser origins may connect; nil allows all.
func NewRealtimeWSHandler(hub *realtime.Hub, fanout *realtime.Fanout, alerts AlertReader, allowOrigin func(string) bool) *RealtimeWSHandler {
	return &RealtimeWSHandler{
		hub:    hub,
		fanout: fanout,
		alerts: alerts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return allowOrigin == nil || allowOrigin(r.Header.Get("Origin"))
			},
		},
	}
}

// SetupRoutes registers the websocket endpoint
func (h *RealtimeWSHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades the request and serves the connection
func (h *RealtimeWSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnKV(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}

	actor, identified := middleware.ActorFromContext(r.Context())
	session := &wsSession{h: h, actor: actor, identified: identified}

	// the request context ends with the handler; keep only its logger
	ctx := logger.ToContext(context.Background(), logger.FromContext(r.Context()))
	h.hub.Serve(ctx, conn, func(c *realtime.Client) {
		h.hub.Send(c, realtime.Event{Event: realtime.EventConnected, Data: map[string]string{
			"message":   "Connected to food rescue coordinator",
			"client_id": c.ID,
		}})
		logger.DebugKV(ctx, "Realtime client connected", "client_id", c.ID)
	}, session.handle)
}

// wsSession holds the identity a connection was opened with. Anonymous
// sessions only exist when identity is not enforced.
type wsSession struct {
	h          *RealtimeWSHandler
	actor      lifecycle.Actor
	identified bool
}

type joinData struct {
	RestaurantID string `json:"restaurant_id"`
	FoodbankID   string `json:"foodbank_id"`
	DriverID     string `json:"driver_id"`
}

type leaveData struct {
	Room string `json:"room"`
}

type locationData struct {
	DriverID string             `json:"driver_id"`
	AlertID  string             `json:"alert_id"`
	Location *database.Location `json:"location"`
}

func (s *wsSession) handle(ctx context.Context, c *realtime.Client, msg realtime.Inbound) {
	switch msg.Event {
	case msgJoinRestaurant, msgJoinFoodbank, msgJoinDriver:
		var d joinData
		if !s.decode(c, msg, &d) {
			return
		}
		role, id := lifecycle.RoleRestaurant, d.RestaurantID
		switch msg.Event {
		case msgJoinFoodbank:
			role, id = lifecycle.RoleFoodbank, d.FoodbankID
		case msgJoinDriver:
			role, id = lifecycle.RoleDriver, d.DriverID
		}
		s.join(ctx, c, role, id)

	case msgLeaveRoom:
		var d leaveData
		if !s.decode(c, msg, &d) {
			return
		}
		if _, _, err := realtime.ParseRoom(d.Room); err != nil {
			s.fail(c, err.Error())
			return
		}
		s.h.hub.Leave(c, realtime.Room(d.Room))
		s.h.hub.Send(c, realtime.Event{Event: realtime.EventLeftRoom, Data: map[string]string{"room": d.Room}})

	case msgPing:
		s.h.hub.Send(c, realtime.Event{Event: realtime.EventPong, Data: map[string]string{
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		}})

	case msgLocationUpdate:
		var d locationData
		if !s.decode(c, msg, &d) {
			return
		}
		s.relayLocation(ctx, c, d)

	default:
		s.fail(c, fmt.Sprintf("unknown event %q", msg.Event))
	}
}

func (s *wsSession) join(ctx context.Context, c *realtime.Client, role lifecycle.Role, id string) {
	if id == "" && s.identified && s.actor.Role == role {
		id = s.actor.ID
	}
	if id == "" {
		s.fail(c, fmt.Sprintf("%s_id is required", role))
		return
	}
	if s.identified && s.actor.Role != lifecycle.RoleAdmin && (s.actor.Role != role || s.actor.ID != id) {
		s.fail(c, "may only join your own room")
		return
	}

	room := realtime.RoomFor(role, id)
	s.h.hub.Join(c, room)
	s.h.hub.Send(c, realtime.Event{Event: realtime.EventJoinedRoom, Data: map[string]string{
		"room": string(room),
		"type": string(role),
	}})
	logger.DebugKV(ctx, "Client joined room", "client_id", c.ID, "room", room)
}

func (s *wsSession) relayLocation(ctx context.Context, c *realtime.Client, d locationData) {
	if d.DriverID == "" && s.identified && s.actor.Role == lifecycle.RoleDriver {
		d.DriverID = s.actor.ID
	}
	if d.DriverID == "" || d.AlertID == "" || d.Location == nil {
		s.fail(c, "driver_id, alert_id and location are required")
		return
	}
	if s.identified && s.actor.Role != lifecycle.RoleAdmin && (s.actor.Role != lifecycle.RoleDriver || s.actor.ID != d.DriverID) {
		s.fail(c, "may only report your own location")
		return
	}

	alert, err := s.h.alerts.Get(ctx, d.AlertID)
	if err != nil {
		s.fail(c, "alert not found")
		return
	}
	if alert.DriverID != d.DriverID || !alert.Status.IsActiveDelivery() {
		s.fail(c, "driver is not delivering this alert")
		return
	}
	s.h.fanout.RelayLocation(ctx, alert, *d.Location)
}

func (s *wsSession) decode(c *realtime.Client, msg realtime.Inbound, dst interface{}) bool {
	if len(msg.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(msg.Data, dst); err != nil {
		s.fail(c, "malformed data for "+msg.Event)
		return false
	}
	return true
}

func (s *wsSession) fail(c *realtime.Client, message string) {
	s.h.hub.Send(c, realtime.Event{Event: realtime.EventError, Data: map[string]string{"message": message}})
}
