package lifecycle

import "fmt"

// Role identifies the kind of party acting on an alert
type Role string

const (
	RoleRestaurant Role = "restaurant"
	RoleFoodbank   Role = "foodbank"
	RoleDriver     Role = "driver"
	RoleAdmin      Role = "admin"
	// RoleSystem is used by the escalation scheduler and background jobs
	RoleSystem Role = "system"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleRestaurant, RoleFoodbank, RoleDriver, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// RoomRole reports whether r may subscribe to a notification room
func (r Role) RoomRole() bool {
	return r == RoleRestaurant || r == RoleFoodbank || r == RoleDriver
}

// Actor is the party performing an action
type Actor struct {
	Role Role   `json:"role"`
	ID   string `json:"id"`
}

// SystemActor is the actor used for scheduler-driven transitions
var SystemActor = Actor{Role: RoleSystem, ID: "escalation-scheduler"}

func (a Actor) String() string {
	return fmt.Sprintf("%s:%s", a.Role, a.ID)
}

// Action names an edge of the state graph
type Action string

const (
	ActionAccept        Action = "accept"
	ActionExpire        Action = "expire"
	ActionAssignDriver  Action = "assign_driver"
	ActionPickUp        Action = "pick_up"
	ActionStartDelivery Action = "start_delivery"
	ActionDeliver       Action = "deliver"
	ActionCancel        Action = "cancel"
)

// Parties are the ids attached to an alert, used for identity checks
type Parties struct {
	RestaurantID string
	FoodbankID   string
	DriverID     string
}

// Edge is one row of the transition table
type Edge struct {
	From   Status
	To     Status
	Action Action
	Roles  []Role
}

var edges = []Edge{
	{From: StatusPending, To: StatusFoodbankAccepted, Action: ActionAccept, Roles: []Role{RoleFoodbank}},
	{From: StatusPending, To: StatusExpired, Action: ActionExpire, Roles: []Role{RoleSystem}},
	{From: StatusFoodbankAccepted, To: StatusDriverAssigned, Action: ActionAssignDriver, Roles: []Role{RoleFoodbank}},
	{From: StatusDriverAssigned, To: StatusPickedUp, Action: ActionPickUp, Roles: []Role{RoleDriver}},
	{From: StatusPickedUp, To: StatusInTransit, Action: ActionStartDelivery, Roles: []Role{RoleDriver}},
	{From: StatusInTransit, To: StatusDelivered, Action: ActionDeliver, Roles: []Role{RoleDriver}},
	{From: StatusPending, To: StatusCancelled, Action: ActionCancel, Roles: []Role{RoleRestaurant, RoleAdmin, RoleSystem}},
	{From: StatusFoodbankAccepted, To: StatusCancelled, Action: ActionCancel, Roles: []Role{RoleRestaurant, RoleAdmin, RoleSystem}},
	{From: StatusDriverAssigned, To: StatusCancelled, Action: ActionCancel, Roles: []Role{RoleRestaurant, RoleAdmin, RoleSystem}},
}

// Edges returns a copy of the transition table
func Edges() []Edge {
	out := make([]Edge, len(edges))
	copy(out, edges)
	return out
}

// Lookup finds the edge leaving from for the given action
func Lookup(from Status, action Action) (Edge, bool) {
	for _, e := range edges {
		if e.From == from && e.Action == action {
			return e, true
		}
	}
	return Edge{}, false
}

// ActionFor returns the action that leads into status to, if any edge does
func ActionFor(to Status) (Action, bool) {
	for _, e := range edges {
		if e.To == to {
			return e.Action, true
		}
	}
	return "", false
}

// Permits reports whether actor may take this edge on an alert with the
// given parties. Role membership is necessary but not sufficient: the
// restaurant must be the creator, the food bank must be the acceptor when one
// is set, and the driver must be the assigned driver.
func (e Edge) Permits(actor Actor, p Parties) error {
	allowed := false
	for _, r := range e.Roles {
		if r == actor.Role {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%s may not %s an alert", actor.Role, e.Action)
	}

	switch actor.Role {
	case RoleRestaurant:
		if actor.ID != p.RestaurantID {
			return fmt.Errorf("only the creating restaurant may %s this alert", e.Action)
		}
	case RoleFoodbank:
		if e.Action != ActionAccept && actor.ID != p.FoodbankID {
			return fmt.Errorf("only the accepting food bank may %s this alert", e.Action)
		}
	case RoleDriver:
		if actor.ID != p.DriverID {
			return fmt.Errorf("only the assigned driver may %s this alert", e.Action)
		}
	}
	return nil
}
