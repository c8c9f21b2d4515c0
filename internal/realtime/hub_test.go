package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ideavolution/coordinator/internal/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain returns every event queued for c
func drain(t *testing.T, c *Client) []Event {
	t.Helper()
	var out []Event
	for {
		select {
		case raw := <-c.Outbound:
			var ev Event
			require.NoError(t, json.Unmarshal(raw, &ev))
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventNames(evs []Event) []EventType {
	names := make([]EventType, len(evs))
	for i, ev := range evs {
		names[i] = ev.Event
	}
	return names
}

func TestRoomFor_AndParse(t *testing.T) {
	room := RoomFor(lifecycle.RoleFoodbank, "fb-42")
	assert.Equal(t, Room("foodbank_fb-42"), room)

	role, id, err := ParseRoom(string(room))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.RoleFoodbank, role)
	assert.Equal(t, "fb-42", id)

	for _, bad := range []string{"", "foodbank", "foodbank_", "admin_1", "system_x"} {
		_, _, err := ParseRoom(bad)
		assert.Error(t, err, bad)
	}
}

func TestHub_JoinLeaveIdempotent(t *testing.T) {
	h := NewHub()
	c := h.NewClient()
	room := RoomFor(lifecycle.RoleRestaurant, "r1")

	assert.True(t, h.Join(c, room))
	assert.False(t, h.Join(c, room), "second join is a no-op")
	assert.Equal(t, 1, h.RoomSize(room))

	assert.True(t, h.Leave(c, room))
	assert.False(t, h.Leave(c, room))
	assert.Equal(t, 0, h.RoomSize(room))
}

func TestHub_DeliverOncePerClient(t *testing.T) {
	h := NewHub()
	both := h.NewClient()
	onlyFB := h.NewClient()
	outsider := h.NewClient()

	r1 := RoomFor(lifecycle.RoleRestaurant, "r1")
	fb := RoomFor(lifecycle.RoleFoodbank, "fbX")
	h.Join(both, r1)
	h.Join(both, fb)
	h.Join(onlyFB, fb)
	h.Join(outsider, RoomFor(lifecycle.RoleFoodbank, "fbY"))

	n := h.Deliver(context.Background(), []Room{r1, fb}, Event{Event: EventStatusUpdate})
	assert.Equal(t, 2, n)
	assert.Len(t, drain(t, both), 1)
	assert.Len(t, drain(t, onlyFB), 1)
	assert.Empty(t, drain(t, outsider))
}

func TestHub_FullQueueDropsWithoutBlocking(t *testing.T) {
	h := NewHub()
	slow := h.NewClient()
	room := RoomFor(lifecycle.RoleDriver, "d1")
	h.Join(slow, room)

	for i := 0; i < DefaultClientBuffer; i++ {
		require.Equal(t, 1, h.Deliver(context.Background(), []Room{room}, Event{Event: EventPong}))
	}
	assert.Equal(t, 0, h.Deliver(context.Background(), []Room{room}, Event{Event: EventPong}))
	assert.Len(t, drain(t, slow), DefaultClientBuffer)
}

func TestHub_RemoveClient(t *testing.T) {
	h := NewHub()
	c := h.NewClient()
	room := RoomFor(lifecycle.RoleFoodbank, "fbX")
	h.Join(c, room)

	h.RemoveClient(c)
	h.RemoveClient(c)

	assert.Equal(t, 0, h.RoomSize(room))
	assert.Empty(t, h.Rooms(c))
	assert.False(t, h.Join(c, room), "removed clients cannot rejoin")
	assert.False(t, h.Send(c, Event{Event: EventPong}))
	select {
	case <-c.Done():
	default:
		t.Fatal("Done should be closed")
	}
}
