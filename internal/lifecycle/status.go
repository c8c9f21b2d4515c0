// Package lifecycle defines the donation alert state graph and decides which
// actor may move an alert along which edge. It holds no state of its own; the
// services package applies its decisions under the per-alert lock.
package lifecycle

// Status is the lifecycle state of an alert
type Status string

const (
	StatusPending          Status = "pending"
	StatusFoodbankAccepted Status = "foodbank_accepted"
	StatusDriverAssigned   Status = "driver_assigned"
	StatusPickedUp         Status = "picked_up"
	StatusInTransit        Status = "in_transit"
	StatusDelivered        Status = "delivered"
	StatusExpired          Status = "expired"
	StatusCancelled        Status = "cancelled"
)

// rank orders statuses along the main path. Side branches share the highest
// rank so that no edge can leave them.
var rank = map[Status]int{
	StatusPending:          0,
	StatusFoodbankAccepted: 1,
	StatusDriverAssigned:   2,
	StatusPickedUp:         3,
	StatusInTransit:        4,
	StatusDelivered:        5,
	StatusExpired:          5,
	StatusCancelled:        5,
}

// AllStatuses returns every known status in path order
func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusFoodbankAccepted,
		StatusDriverAssigned,
		StatusPickedUp,
		StatusInTransit,
		StatusDelivered,
		StatusExpired,
		StatusCancelled,
	}
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	_, ok := rank[s]
	return ok
}

// IsTerminal reports whether no further transition may leave s
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusExpired || s == StatusCancelled
}

// IsActiveDelivery reports whether a driver is currently carrying the alert
func (s Status) IsActiveDelivery() bool {
	return s == StatusDriverAssigned || s == StatusPickedUp || s == StatusInTransit
}

// Rank returns the position of s along the lifecycle, or -1 if unknown
func (s Status) Rank() int {
	if r, ok := rank[s]; ok {
		return r
	}
	return -1
}

// Precedes reports whether moving from s to next goes forward in the graph
func (s Status) Precedes(next Status) bool {
	return s.Valid() && next.Valid() && s.Rank() < next.Rank()
}

func (s Status) String() string {
	return string(s)
}
