package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ideavolution/coordinator/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
)

// Inbound is a client-to-server frame
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// InboundHandler processes one client frame
type InboundHandler func(ctx context.Context, c *Client, msg Inbound)

// Serve runs the connection until the peer goes away. It registers a client,
// pumps Outbound to the socket on a separate goroutine and hands every
// inbound frame to handle.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, onOpen func(c *Client), handle InboundHandler) {
	c := h.NewClient()
	ctx = logger.WithKV(ctx, "client_id", c.ID)
	defer func() {
		h.RemoveClient(c)
		_ = conn.Close()
		logger.DebugKV(ctx, "Realtime client disconnected")
	}()

	go h.writePump(ctx, conn, c)
	if onOpen != nil {
		onOpen(c)
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.WarnKV(ctx, "WebSocket read error", "error", err)
			}
			return
		}

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.Send(c, Event{Event: EventError, Data: map[string]string{"message": "malformed message"}})
			continue
		}
		handle(ctx, c, msg)
	}
}

func (h *Hub) writePump(ctx context.Context, conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case raw := <-c.Outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				logger.DebugKV(ctx, "WebSocket write failed", "error", err)
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		case <-c.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
