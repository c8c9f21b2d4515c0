package services

import (
	"context"
	"time"

	"github.com/ideavolution/coordinator/internal/database"
	"github.com/ideavolution/coordinator/internal/lifecycle"
)

// ChangeKind classifies a committed alert mutation
type ChangeKind string

const (
	ChangeCreated        ChangeKind = "created"
	ChangeOffered        ChangeKind = "offered"
	ChangeAccepted       ChangeKind = "accepted"
	ChangeDriverAssigned ChangeKind = "driver_assigned"
	ChangeStatus         ChangeKind = "status"
	ChangeExpired        ChangeKind = "expired"
	ChangeCancelled      ChangeKind = "cancelled"
)

// Change describes a committed mutation. Alert is the canonical row after the
// change.
type Change struct {
	Kind     ChangeKind
	Alert    database.Alert
	Previous lifecycle.Status
	Actor    lifecycle.Actor
	// Delivery is set for ChangeDriverAssigned
	Delivery *database.DeliveryRequest
	// Recipients lists the food banks a created or offered alert was sent to
	Recipients []string
}

// Notifier receives committed changes. Implementations must not block and
// must not fail the caller; delivery problems are theirs to log.
type Notifier interface {
	Notify(ctx context.Context, change Change)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, change Change)

// Notify calls f
func (f NotifierFunc) Notify(ctx context.Context, change Change) {
	f(ctx, change)
}

// Notifiers fans a change out to several notifiers in order
type Notifiers []Notifier

// Notify implements Notifier
func (n Notifiers) Notify(ctx context.Context, change Change) {
	for _, notifier := range n {
		if notifier != nil {
			notifier.Notify(ctx, change)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Change) {}

// Escalator owns the per-alert response deadlines
type Escalator interface {
	Arm(alertID string, deadline time.Time)
	Cancel(alertID string)
}

type nopEscalator struct{}

func (nopEscalator) Arm(string, time.Time) {}
func (nopEscalator) Cancel(string)         {}
