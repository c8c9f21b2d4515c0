package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ideavolution/coordinator/internal/database"
	"github.com/ideavolution/coordinator/internal/lifecycle"
	"github.com/ideavolution/coordinator/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recordingNotifier) Notify(_ context.Context, c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recordingNotifier) kinds() []ChangeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChangeKind, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.Kind
	}
	return out
}

type recordingEscalator struct {
	mu        sync.Mutex
	armed     map[string]time.Time
	cancelled []string
}

func (e *recordingEscalator) Arm(id string, deadline time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.armed == nil {
		e.armed = map[string]time.Time{}
	}
	e.armed[id] = deadline
}

func (e *recordingEscalator) Cancel(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = append(e.cancelled, id)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fixture struct {
	db        *gorm.DB
	svc       *AlertService
	dir       *DirectoryService
	notes     *recordingNotifier
	escalator *recordingEscalator
	clock     *fakeClock
	t0        time.Time
}

var (
	restaurantActor = lifecycle.Actor{Role: lifecycle.RoleRestaurant, ID: "r1"}
	foodbankX       = lifecycle.Actor{Role: lifecycle.RoleFoodbank, ID: "fbX"}
	driverD         = lifecycle.Actor{Role: lifecycle.RoleDriver, ID: "d1"}
	adminActor      = lifecycle.Actor{Role: lifecycle.RoleAdmin, ID: "ops"}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testhelpers.NewTestDB(t)
	testhelpers.MustCreate(t, db,
		testhelpers.NewRestaurant("r1", "Bistro"),
		testhelpers.NewRestaurant("r2", "Cafe"),
		testhelpers.NewFoodBank("fbX", "North Pantry"),
		testhelpers.NewFoodBank("fbY", "South Pantry"),
		testhelpers.NewDriver("d1", "Dana"),
		testhelpers.NewDriver("d2", "Eli"),
	)

	notes := &recordingNotifier{}
	esc := &recordingEscalator{}
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: t0}

	svc := NewAlertService(db, AlertServiceConfig{EscalationWindow: 10 * time.Minute, DonationValidity: 24 * time.Hour}, notes)
	svc.SetClock(clock.Now)
	svc.SetEscalator(esc)

	return &fixture{
		db:        db,
		svc:       svc,
		dir:       NewDirectoryService(db, svc),
		notes:     notes,
		escalator: esc,
		clock:     clock,
		t0:        t0,
	}
}

func (f *fixture) create(t *testing.T) *database.Alert {
	t.Helper()
	alert, err := f.svc.Create(context.Background(), CreateAlertInput{
		RestaurantID: "r1",
		FoodItems:    []database.FoodItem{{Name: "Bread", Quantity: 10, Unit: "loaves"}},
	})
	require.NoError(t, err)
	return alert
}

func (f *fixture) accepted(t *testing.T) *database.Alert {
	t.Helper()
	alert := f.create(t)
	_, err := f.svc.Accept(context.Background(), alert.ID, "fbX")
	require.NoError(t, err)
	return alert
}

func TestCreate_ScenarioA(t *testing.T) {
	f := newFixture(t)

	alert := f.create(t)

	assert.Equal(t, 10, alert.TotalQuantity)
	assert.Equal(t, lifecycle.StatusPending, alert.Status)
	assert.Equal(t, f.t0.Add(24*time.Hour), alert.ExpiresAt)
	assert.ElementsMatch(t, []string{"fbX", "fbY"}, []string(alert.NotifiedFoodbanks))
	assert.Equal(t, f.t0.Add(10*time.Minute), f.escalator.armed[alert.ID])

	stored, err := f.svc.Get(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.TotalQuantity)

	require.Len(t, f.notes.changes, 1)
	assert.Equal(t, ChangeCreated, f.notes.changes[0].Kind)
	assert.ElementsMatch(t, []string{"fbX", "fbY"}, f.notes.changes[0].Recipients)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    CreateAlertInput
		field string
	}{
		{"no items", CreateAlertInput{RestaurantID: "r1"}, "food_items"},
		{"zero quantity", CreateAlertInput{RestaurantID: "r1", FoodItems: []database.FoodItem{{Name: "Soup", Quantity: 0}}}, "food_items[0].quantity"},
		{"negative quantity", CreateAlertInput{RestaurantID: "r1", FoodItems: []database.FoodItem{{Name: "Soup", Quantity: 2}, {Name: "Rice", Quantity: -1}}}, "food_items[1].quantity"},
		{"missing name", CreateAlertInput{RestaurantID: "r1", FoodItems: []database.FoodItem{{Quantity: 1}}}, "food_items[0].name"},
		{"missing restaurant", CreateAlertInput{FoodItems: []database.FoodItem{{Name: "Soup", Quantity: 1}}}, "restaurant_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	var count int64
	f.db.Model(&database.Alert{}).Count(&count)
	assert.Zero(t, count, "rejected input must not be stored")
}

func TestCreate_CleansText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alert, err := f.svc.Create(ctx, CreateAlertInput{
		RestaurantID: " r1 ",
		FoodItems:    []database.FoodItem{{Name: "  sour\x00dough\n loaves ", Quantity: 4, Unit: "pcs\x1b"}},
		Notes:        "  side door\x07\nring twice ",
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", alert.RestaurantID)
	assert.Equal(t, "sourdough loaves", alert.FoodItems[0].Name)
	assert.Equal(t, "pcs", alert.FoodItems[0].Unit)
	assert.Equal(t, "side door\nring twice", alert.Notes)

	_, err = f.svc.Create(ctx, CreateAlertInput{
		RestaurantID: "r1",
		FoodItems:    []database.FoodItem{{Name: "\x00\x01", Quantity: 1}},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "food_items[0].name")

	updated, err := f.svc.Cancel(ctx, restaurantActor, alert.ID, " closing\n  early\x00 ")
	require.NoError(t, err)
	assert.Equal(t, "closing early", updated.CancelReason)
}

func TestCreate_UnknownRestaurant(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), CreateAlertInput{
		RestaurantID: "nope",
		FoodItems:    []database.FoodItem{{Name: "Soup", Quantity: 1}},
	})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "restaurant", nf.Entity)
}

func TestAccept_ScenarioB(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alert := f.create(t)

	updated, err := f.svc.Accept(ctx, alert.ID, "fbX")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusFoodbankAccepted, updated.Status)
	assert.Equal(t, "fbX", updated.FoodbankID)
	assert.NotNil(t, updated.AcceptedAt)
	assert.Contains(t, f.escalator.cancelled, alert.ID)

	_, err = f.svc.Accept(ctx, alert.ID, "fbY")
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonAlreadyAccepted, ce.Reason)
	require.NotNil(t, ce.Current)
	assert.Equal(t, "fbX", ce.Current.FoodbankID)

	assert.Equal(t, []ChangeKind{ChangeCreated, ChangeAccepted}, f.notes.kinds())
}

func TestAccept_ConcurrentExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alert := f.create(t)

	const attempts = 12
	var (
		mu        sync.Mutex
		successes int
		conflicts int
	)
	testhelpers.ConcurrentTestWithTimeout(t, 10*time.Second, attempts, func(i int) {
		fb := "fbX"
		if i%2 == 1 {
			fb = "fbY"
		}
		_, err := f.svc.Accept(ctx, alert.ID, fb)
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			successes++
		} else if IsConflict(err) {
			conflicts++
		}
	})

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
	assert.Zero(t, f.svc.locks.Len(), "lock entries must be released")
}

func TestAccept_ScenarioD_AfterDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alert := f.create(t)

	f.clock.Set(f.t0.Add(10*time.Minute + time.Second))
	_, err := f.svc.Accept(ctx, alert.ID, "fbX")

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonExpired, ce.Reason)
	require.NotNil(t, ce.Current)
	assert.Equal(t, lifecycle.StatusExpired, ce.Current.Status)
	assert.Empty(t, ce.Current.FoodbankID)

	_, err = f.svc.Accept(ctx, alert.ID, "fbY")
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonExpired, ce.Reason)
	assert.Equal(t, []ChangeKind{ChangeCreated, ChangeExpired}, f.notes.kinds())
}

func TestAccept_AtExactDeadlineLoses(t *testing.T) {
	f := newFixture(t)
	alert := f.create(t)

	f.clock.Set(f.t0.Add(10 * time.Minute))
	_, err := f.svc.Accept(context.Background(), alert.ID, "fbX")
	require.True(t, IsConflict(err))

	stored, _ := f.svc.Get(context.Background(), alert.ID)
	assert.Equal(t, lifecycle.StatusExpired, stored.Status)
}

func TestAccept_JustBeforeDeadlineWins(t *testing.T) {
	f := newFixture(t)
	alert := f.create(t)

	f.clock.Set(f.t0.Add(10*time.Minute - time.Millisecond))
	updated, err := f.svc.Accept(context.Background(), alert.ID, "fbX")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusFoodbankAccepted, updated.Status)

	// the timer firing afterwards is a no-op
	f.clock.Set(f.t0.Add(11 * time.Minute))
	expired, err := f.svc.Expire(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestAccept_Eligibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alert := f.create(t)

	testhelpers.MustCreate(t, f.db, testhelpers.NewFoodBank("fbZ", "Late Pantry"))
	_, err := f.svc.Accept(ctx, alert.ID, "fbZ")
	var fe *ForbiddenError
	require.ErrorAs(t, err, &fe)

	_, err = f.svc.Accept(ctx, alert.ID, "ghost")
	assert.True(t, IsNotFound(err))

	_, err = f.svc.Accept(ctx, "missing", "fbX")
	assert.True(t, IsNotFound(err))

	_, err = f.svc.Accept(ctx, alert.ID, "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestExpire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alert := f.create(t)

	ok, err := f.svc.Expire(ctx, alert.ID)
	require.NoError(t, err)
	assert.False(t, ok, "deadline not reached")

	f.clock.Set(f.t0.Add(10 * time.Minute))
	ok, err = f.svc.Expire(ctx, alert.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.Expire(ctx, alert.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second expiry is a no-op")

	last := f.notes.changes[len(f.notes.changes)-1]
	assert.Equal(t, ChangeExpired, last.Kind)
	assert.Equal(t, lifecycle.RoleSystem, last.Actor.Role)

	ok, err = f.svc.Expire(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAssignDriver_ScenarioC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alert := f.accepted(t)

	updated, delivery, err := f.svc.AssignDriver(ctx, foodbankX, alert.ID, "d1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusDriverAssigned, updated.Status)
	assert.Equal(t, "d1", updated.DriverID)
	assert.Equal(t, database.DeliveryStatusAssigned, delivery.Status)
	assert.Equal(t, "1 Main St", delivery.PickupAddress)
	assert.Equal(t, "2 Depot Rd", delivery.DeliveryAddress)
	assert.Equal(t, 30, delivery.EstimatedDurationMinutes)

	d, err := f.dir.GetDriver(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, d.IsAvailable)

	available, err := f.dir.ListDrivers(ctx, true)
	require.NoError(t, err)
	for _, drv := range available {
		assert.NotEqual(t, "d1", drv.ID)
	}

	// the busy driver cannot take a second alert
	second := f.accepted(t)
	_, _, err = f.svc.AssignDriver(ctx, foodbankX, second.ID, "d1")
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonDriverUnavailable, ce.Reason)
	stored, _ := f.svc.Get(ctx, second.ID)
	assert.Equal(t, lifecycle.StatusFoodbankAccepted, stored.Status)
	assert.Empty(t, stored.DriverID)

	// reassignment is rejected
	_, _, err = f.svc.AssignDriver(ctx, foodbankX, alert.ID, "d2")
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonAlreadyAssigned, ce.Reason)
}

func TestAssignDriver_Forbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alert := f.accepted(t)

	for _, actor := range []lifecycle.Actor{
		{Role: lifecycle.RoleFoodbank, ID: "fbY"},
		restaurantActor,
		driverD,
	} {
		_, _, err := f.svc.AssignDriver(ctx, actor, alert.ID, "d1")
		var fe *ForbiddenError
		assert.ErrorAs(t, err, &fe, "actor %s", actor)
	}

	d, _ := f.dir.GetDriver(ctx, "d1")
	assert.True(t, d.IsAvailable, "rejected assignment must not claim the driver")
}

func TestAssignDriver_PendingIsInvalidTransition(t *testing.T) {
	f := newFixture(t)
	alert := f.create(t)

	_, _, err := f.svc.AssignDriver(context.Background(), foodbankX, alert.ID, "d1")
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonInvalidTransition, ce.Reason)
}

func TestUpdateStatus_ScenarioE(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alert := f.accepted(t)
	_, _, err := f.svc.AssignDriver(ctx, foodbankX, alert.ID, "d1")
	require.NoError(t, err)

	updated, err := f.svc.UpdateStatus(ctx, driverD, alert.ID, lifecycle.StatusPickedUp)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusPickedUp, updated.Status)

	_, err = f.svc.UpdateStatus(ctx, driverD, alert.ID, lifecycle.StatusDelivered)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce, "skipping in_transit must be rejected")
	assert.Equal(t, ReasonInvalidTransition, ce.Reason)
	assert.Equal(t, lifecycle.StatusPickedUp, ce.Current.Status)

	_, err = f.svc.UpdateStatus(ctx, driverD, alert.ID, lifecycle.StatusInTransit)
	require.NoError(t, err)
	updated, err = f.svc.UpdateStatus(ctx, driverD, alert.ID, lifecycle.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusDelivered, updated.Status)
	assert.NotNil(t, updated.DeliveryTime)

	var delivery database.DeliveryRequest
	require.NoError(t, f.db.Where("alert_id = ?", alert.ID).First(&delivery).Error)
	assert.Equal(t, database.DeliveryStatusDelivered, delivery.Status)
	assert.NotNil(t, delivery.ActualPickupTime)
	assert.NotNil(t, delivery.ActualDeliveryTime)

	d, _ := f.dir.GetDriver(ctx, "d1")
	assert.True(t, d.IsAvailable, "driver is released on delivery")

	// terminal
	_, err = f.svc.Cancel(ctx, restaurantActor, alert.ID, "too late")
	assert.True(t, IsConflict(err))
}

func TestUpdateStatus_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alert := f.accepted(t)
	_, _, err := f.svc.AssignDriver(ctx, foodbankX, alert.ID, "d1")
	require.NoError(t, err)

	var verr *ValidationError
	_, err = f.svc.UpdateStatus(ctx, driverD, alert.ID, "teleported")
	assert.ErrorAs(t, err, &verr)
	_, err = f.svc.UpdateStatus(ctx, driverD, alert.ID, lifecycle.StatusPending)
	assert.ErrorAs(t, err, &verr)
	_, err = f.svc.UpdateStatus(ctx, foodbankX, alert.ID, lifecycle.StatusDriverAssigned)
	assert.ErrorAs(t, err, &verr)
	_, err = f.svc.UpdateStatus(ctx, driverD, alert.ID, lifecycle.StatusExpired)
	assert.ErrorAs(t, err, &verr)

	var fe *ForbiddenError
	_, err = f.svc.UpdateStatus(ctx, lifecycle.Actor{Role: lifecycle.RoleDriver, ID: "d2"}, alert.ID, lifecycle.StatusPickedUp)
	assert.ErrorAs(t, err, &fe, "only the assigned driver")
	_, err = f.svc.UpdateStatus(ctx, restaurantActor, alert.ID, lifecycle.StatusPickedUp)
	assert.ErrorAs(t, err, &fe)

	stored, _ := f.svc.Get(ctx, alert.ID)
	assert.Equal(t, lifecycle.StatusDriverAssigned, stored.Status)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("creator cancels pending", func(t *testing.T) {
		alert := f.create(t)
		updated, err := f.svc.Cancel(ctx, restaurantActor, alert.ID, "kitchen closed")
		require.NoError(t, err)
		assert.Equal(t, lifecycle.StatusCancelled, updated.Status)
		assert.Equal(t, "kitchen closed", updated.CancelReason)
		assert.Contains(t, f.escalator.cancelled, alert.ID)
	})

	t.Run("other restaurant forbidden", func(t *testing.T) {
		alert := f.create(t)
		_, err := f.svc.Cancel(ctx, lifecycle.Actor{Role: lifecycle.RoleRestaurant, ID: "r2"}, alert.ID, "")
		var fe *ForbiddenError
		assert.ErrorAs(t, err, &fe)
	})

	t.Run("admin cancels assigned and releases driver", func(t *testing.T) {
		alert := f.accepted(t)
		_, _, err := f.svc.AssignDriver(ctx, foodbankX, alert.ID, "d2")
		require.NoError(t, err)

		updated, err := f.svc.UpdateStatus(ctx, adminActor, alert.ID, lifecycle.StatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, lifecycle.StatusCancelled, updated.Status)
		assert.Equal(t, "d2", updated.DriverID, "assignment is kept for the record")

		d, _ := f.dir.GetDriver(ctx, "d2")
		assert.True(t, d.IsAvailable)
		var delivery database.DeliveryRequest
		require.NoError(t, f.db.Where("alert_id = ?", alert.ID).First(&delivery).Error)
		assert.Equal(t, database.DeliveryStatusCancelled, delivery.Status)
	})

	t.Run("picked up cannot be cancelled", func(t *testing.T) {
		alert := f.accepted(t)
		_, _, err := f.svc.AssignDriver(ctx, foodbankX, alert.ID, "d1")
		require.NoError(t, err)
		_, err = f.svc.UpdateStatus(ctx, driverD, alert.ID, lifecycle.StatusPickedUp)
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, adminActor, alert.ID, "")
		assert.True(t, IsConflict(err))
	})

	t.Run("in transit cannot be cancelled", func(t *testing.T) {
		alert := f.accepted(t)
		_, _, err := f.svc.AssignDriver(ctx, foodbankX, alert.ID, "d1")
		require.NoError(t, err)
		for _, s := range []lifecycle.Status{lifecycle.StatusPickedUp, lifecycle.StatusInTransit} {
			_, err = f.svc.UpdateStatus(ctx, driverD, alert.ID, s)
			require.NoError(t, err)
		}

		_, err = f.svc.Cancel(ctx, restaurantActor, alert.ID, "changed plans")
		var ce *ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, ReasonInvalidTransition, ce.Reason)
		assert.Equal(t, lifecycle.StatusInTransit, ce.Current.Status)

		stored, _ := f.svc.Get(ctx, alert.ID)
		assert.Equal(t, lifecycle.StatusInTransit, stored.Status)
		assert.Empty(t, stored.CancelReason)
	})
}

func TestStatusNeverRegresses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alert := f.accepted(t)
	_, _, err := f.svc.AssignDriver(ctx, foodbankX, alert.ID, "d1")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, driverD, alert.ID, lifecycle.StatusPickedUp)
	require.NoError(t, err)

	statuses := lifecycle.AllStatuses()
	for _, s := range statuses {
		before, _ := f.svc.Get(ctx, alert.ID)
		after, err := f.svc.UpdateStatus(ctx, driverD, alert.ID, s)
		if err == nil {
			assert.True(t, before.Status.Precedes(after.Status), "%s -> %s", before.Status, after.Status)
		}
	}
}

func TestCancelStaleAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale := f.accepted(t)

	f.clock.Set(f.t0.Add(50 * time.Minute))
	fresh := f.create(t)
	_, err := f.svc.Accept(ctx, fresh.ID, "fbY")
	require.NoError(t, err)

	f.clock.Set(f.t0.Add(61 * time.Minute))
	n, err := f.svc.CancelStaleAccepted(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := f.svc.Get(ctx, stale.ID)
	assert.Equal(t, lifecycle.StatusCancelled, got.Status)
	assert.Equal(t, CancelReasonNoDriver, got.CancelReason)
	got, _ = f.svc.Get(ctx, fresh.ID)
	assert.Equal(t, lifecycle.StatusFoodbankAccepted, got.Status)

	n, err = f.svc.CancelStaleAccepted(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n, "disabled policy cancels nothing")
}

func TestList_FiltersAndOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.create(t)
	f.clock.Set(f.t0.Add(time.Minute))
	second := f.create(t)
	f.clock.Set(f.t0.Add(2 * time.Minute))
	third, err := f.svc.Create(ctx, CreateAlertInput{RestaurantID: "r2", FoodItems: []database.FoodItem{{Name: "Soup", Quantity: 4}}})
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, second.ID, "fbX")
	require.NoError(t, err)

	all, err := f.svc.List(ctx, database.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	pendingR1, err := f.svc.List(ctx, database.AlertFilter{Status: lifecycle.StatusPending, RestaurantID: "r1"})
	require.NoError(t, err)
	require.Len(t, pendingR1, 1)
	assert.Equal(t, first.ID, pendingR1[0].ID)

	byFoodbank, err := f.svc.List(ctx, database.AlertFilter{FoodbankID: "fbX"})
	require.NoError(t, err)
	require.Len(t, byFoodbank, 1)
	assert.Equal(t, second.ID, byFoodbank[0].ID)

	_, err = f.svc.List(ctx, database.AlertFilter{Status: "bogus"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestOfferPending_LateFoodBank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	open := f.create(t)
	taken := f.accepted(t)

	fb, offered, err := f.dir.CreateFoodBank(ctx, &database.FoodBank{Name: "Late Pantry", Address: "9 Far Rd"})
	require.NoError(t, err)
	require.Len(t, offered, 1)
	assert.Equal(t, open.ID, offered[0].ID)

	stored, _ := f.svc.Get(ctx, open.ID)
	assert.True(t, stored.NotifiedFoodbanks.Contains(fb.ID))
	stored, _ = f.svc.Get(ctx, taken.ID)
	assert.False(t, stored.NotifiedFoodbanks.Contains(fb.ID))

	last := f.notes.changes[len(f.notes.changes)-1]
	assert.Equal(t, ChangeOffered, last.Kind)
	assert.Equal(t, []string{fb.ID}, last.Recipients)

	// offering again is a no-op
	again, err := f.svc.OfferPending(ctx, fb.ID)
	require.NoError(t, err)
	assert.Empty(t, again)

	// the late food bank may now accept
	_, err = f.svc.Accept(ctx, open.ID, fb.ID)
	assert.NoError(t, err)
}
