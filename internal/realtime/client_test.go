package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ideavolution/coordinator/internal/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_RoundTrip(t *testing.T) {
	hub := NewHub()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	room := RoomFor(lifecycle.RoleRestaurant, "r1")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(context.Background(), conn,
			func(c *Client) { hub.Send(c, Event{Event: EventConnected}) },
			func(ctx context.Context, c *Client, msg Inbound) {
				if msg.Event == "join" {
					hub.Join(c, room)
					hub.Send(c, Event{Event: EventJoinedRoom})
				}
			})
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventConnected, ev.Event)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventError, ev.Event)

	require.NoError(t, conn.WriteJSON(Inbound{Event: "join"}))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventJoinedRoom, ev.Event)

	hub.Deliver(context.Background(), []Room{room}, Event{Event: EventStatusUpdate, Data: StatusPayload{AlertID: "a1", Status: lifecycle.StatusDelivered}})
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventStatusUpdate, ev.Event)

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.RoomSize(room) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 0, hub.RoomSize(room), "disconnect leaves every room")
}
