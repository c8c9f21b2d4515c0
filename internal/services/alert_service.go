package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ideavolution/coordinator/internal/database"
	"github.com/ideavolution/coordinator/internal/lifecycle"
	"github.com/ideavolution/coordinator/internal/logger"
	"github.com/ideavolution/coordinator/internal/utils"
	"gorm.io/gorm"
)

// Default windows used when the config leaves them unset
const (
	DefaultEscalationWindow = 10 * time.Minute
	DefaultDonationValidity = 24 * time.Hour
)

// AlertServiceConfig holds the timing policy of the lifecycle
type AlertServiceConfig struct {
	EscalationWindow time.Duration
	DonationValidity time.Duration
}

// CreateAlertInput is the payload of a new donation
type CreateAlertInput struct {
	RestaurantID string
	FoodItems    []database.FoodItem
	Notes        string
	PickupTime   *time.Time
}

// AlertService owns every mutation of an alert. Each mutation holds the
// alert's lock for its whole read-validate-write sequence and additionally
// writes through a conditional update on the expected status.
type AlertService struct {
	db        *gorm.DB
	locks     *KeyedMutex
	cfg       AlertServiceConfig
	now       func() time.Time
	notifier  Notifier
	escalator Escalator
}

// NewAlertService creates a new AlertService
func NewAlertService(db *gorm.DB, cfg AlertServiceConfig, notifier Notifier) *AlertService {
	if cfg.EscalationWindow <= 0 {
		cfg.EscalationWindow = DefaultEscalationWindow
	}
	if cfg.DonationValidity <= 0 {
		cfg.DonationValidity = DefaultDonationValidity
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &AlertService{
		db:        db,
		locks:     NewKeyedMutex(),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		notifier:  notifier,
		escalator: nopEscalator{},
	}
}

// SetEscalator wires the deadline scheduler. It is set after construction
// because the scheduler itself calls back into the service.
func (s *AlertService) SetEscalator(e Escalator) {
	if e == nil {
		e = nopEscalator{}
	}
	s.escalator = e
}

// SetClock overrides the time source
func (s *AlertService) SetClock(now func() time.Time) {
	s.now = now
}

// Deadline returns the end of the alert's escalation window. The window is
// half-open: an action at exactly the deadline is too late.
func (s *AlertService) Deadline(a *database.Alert) time.Time {
	return a.CreatedAt.Add(s.cfg.EscalationWindow)
}

// Create validates and stores a new pending alert, offers it to every active
// food bank and arms its escalation deadline
func (s *AlertService) Create(ctx context.Context, in CreateAlertInput) (*database.Alert, error) {
	in = normalizeCreate(in)
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	restaurant, err := database.GetRestaurant(s.db, in.RestaurantID)
	if err != nil {
		return nil, s.lookupError(err, "restaurant", in.RestaurantID)
	}

	foodbanks, err := database.ActiveFoodBankIDs(s.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list food banks: %w", err)
	}

	now := s.now()
	alert := &database.Alert{
		ID:                uuid.NewString(),
		RestaurantID:      restaurant.ID,
		Status:            lifecycle.StatusPending,
		Notes:             in.Notes,
		PickupTime:        in.PickupTime,
		NotifiedFoodbanks: database.StringSet{},
		ExpiresAt:         now.Add(s.cfg.DonationValidity),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	alert.SetFoodItems(in.FoodItems)
	for _, id := range foodbanks {
		alert.NotifiedFoodbanks = alert.NotifiedFoodbanks.Add(id)
	}

	if err := s.db.Create(alert).Error; err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	s.escalator.Arm(alert.ID, s.Deadline(alert))
	logger.InfoKV(ctx, "Alert created",
		"alert_id", alert.ID, "restaurant_id", alert.RestaurantID,
		"total_quantity", alert.TotalQuantity, "notified", len(foodbanks))

	s.notifier.Notify(ctx, Change{
		Kind:       ChangeCreated,
		Alert:      *alert,
		Actor:      lifecycle.Actor{Role: lifecycle.RoleRestaurant, ID: alert.RestaurantID},
		Recipients: foodbanks,
	})
	return alert, nil
}

// normalizeCreate cleans caller-supplied text so validation sees what will
// be stored
func normalizeCreate(in CreateAlertInput) CreateAlertInput {
	in.RestaurantID = strings.TrimSpace(in.RestaurantID)
	in.Notes = utils.CleanText(in.Notes)
	items := make([]database.FoodItem, len(in.FoodItems))
	for i, item := range in.FoodItems {
		item.Name = utils.SingleLine(utils.CleanText(item.Name))
		item.Unit = utils.SingleLine(utils.CleanText(item.Unit))
		items[i] = item
	}
	in.FoodItems = items
	return in
}

func validateCreate(in CreateAlertInput) error {
	verr := &ValidationError{}
	if strings.TrimSpace(in.RestaurantID) == "" {
		verr.Add("restaurant_id", "is required")
	}
	if len(in.FoodItems) == 0 {
		verr.Add("food_items", "must contain at least one item")
	}
	for i, item := range in.FoodItems {
		if strings.TrimSpace(item.Name) == "" {
			verr.Add(fmt.Sprintf("food_items[%d].name", i), "is required")
		}
		if item.Quantity <= 0 {
			verr.Add(fmt.Sprintf("food_items[%d].quantity", i), "must be greater than zero")
		}
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// Get returns the alert with the given id
func (s *AlertService) Get(ctx context.Context, id string) (*database.Alert, error) {
	alert, err := database.GetAlert(s.db, id)
	if err != nil {
		return nil, s.lookupError(err, "alert", id)
	}
	return alert, nil
}

// List returns alerts matching the filter, newest first
func (s *AlertService) List(ctx context.Context, f database.AlertFilter) ([]database.Alert, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, NewValidationError("status", fmt.Sprintf("unknown status %q", f.Status))
	}
	alerts, err := database.ListAlerts(s.db, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// Parties resolves contact summaries for the parties of the given alerts
func (s *AlertService) Parties(ctx context.Context, alerts ...database.Alert) (*database.PartyDirectory, error) {
	return database.LoadPartyDirectory(s.db, alerts)
}

// PendingAlerts returns every alert still waiting for a food bank
func (s *AlertService) PendingAlerts(ctx context.Context) ([]database.Alert, error) {
	return database.PendingAlerts(s.db)
}

// Accept records foodbankID as the alert's acceptor. Exactly one of any set
// of concurrent accepts succeeds.
func (s *AlertService) Accept(ctx context.Context, alertID, foodbankID string) (*database.Alert, error) {
	if strings.TrimSpace(foodbankID) == "" {
		return nil, NewValidationError("foodbank_id", "is required")
	}

	unlock := s.locks.Lock(alertKey(alertID))
	defer unlock()

	alert, err := database.GetAlert(s.db, alertID)
	if err != nil {
		return nil, s.lookupError(err, "alert", alertID)
	}
	foodbank, err := database.GetFoodBank(s.db, foodbankID)
	if err != nil {
		return nil, s.lookupError(err, "food bank", foodbankID)
	}

	if alert.Status != lifecycle.StatusPending {
		return nil, s.acceptConflict(alert)
	}
	if !s.now().Before(s.Deadline(alert)) {
		expired, err := s.expireLocked(ctx, alert)
		if err != nil {
			return nil, err
		}
		return nil, conflict(ReasonExpired, expired)
	}

	edge, _ := lifecycle.Lookup(alert.Status, lifecycle.ActionAccept)
	actor := lifecycle.Actor{Role: lifecycle.RoleFoodbank, ID: foodbank.ID}
	if err := edge.Permits(actor, alert.Parties()); err != nil {
		return nil, &ForbiddenError{Reason: err.Error()}
	}
	if !foodbank.IsActive {
		return nil, &ForbiddenError{Reason: "food bank is not active"}
	}
	if !alert.NotifiedFoodbanks.Contains(foodbank.ID) {
		return nil, &ForbiddenError{Reason: "alert was not offered to this food bank"}
	}

	acceptedAt := s.now()
	err = database.CompareAndSetStatus(s.db, alert.ID, lifecycle.StatusPending, lifecycle.StatusFoodbankAccepted,
		map[string]interface{}{"foodbank_id": foodbank.ID, "accepted_at": acceptedAt})
	if err != nil {
		if errors.Is(err, database.ErrStaleStatus) {
			current, _ := database.GetAlert(s.db, alert.ID)
			return nil, s.acceptConflict(current)
		}
		return nil, err
	}

	s.escalator.Cancel(alert.ID)
	updated, err := database.GetAlert(s.db, alert.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload alert: %w", err)
	}

	logger.InfoKV(ctx, "Alert accepted", "alert_id", alert.ID, "foodbank_id", foodbank.ID)
	s.notifier.Notify(ctx, Change{Kind: ChangeAccepted, Alert: *updated, Previous: lifecycle.StatusPending, Actor: actor})
	return updated, nil
}

func (s *AlertService) acceptConflict(current *database.Alert) error {
	if current == nil {
		return conflict(ReasonInvalidTransition, nil)
	}
	switch {
	case current.Status == lifecycle.StatusExpired:
		return conflict(ReasonExpired, current)
	case current.FoodbankID != "":
		return conflict(ReasonAlreadyAccepted, current)
	default:
		return conflict(ReasonInvalidTransition, current)
	}
}

// AssignDriver attaches an available driver to an accepted alert and opens
// its delivery request
func (s *AlertService) AssignDriver(ctx context.Context, actor lifecycle.Actor, alertID, driverID string) (*database.Alert, *database.DeliveryRequest, error) {
	if strings.TrimSpace(driverID) == "" {
		return nil, nil, NewValidationError("driver_id", "is required")
	}

	unlock := s.locks.Lock(alertKey(alertID))
	defer unlock()
	unlockDriver := s.locks.Lock(driverKey(driverID))
	defer unlockDriver()

	alert, err := database.GetAlert(s.db, alertID)
	if err != nil {
		return nil, nil, s.lookupError(err, "alert", alertID)
	}
	driver, err := database.GetDriver(s.db, driverID)
	if err != nil {
		return nil, nil, s.lookupError(err, "driver", driverID)
	}

	if alert.Status != lifecycle.StatusFoodbankAccepted {
		if alert.DriverID != "" {
			return nil, nil, conflict(ReasonAlreadyAssigned, alert)
		}
		return nil, nil, conflict(ReasonInvalidTransition, alert)
	}
	edge, _ := lifecycle.Lookup(alert.Status, lifecycle.ActionAssignDriver)
	if err := edge.Permits(actor, alert.Parties()); err != nil {
		return nil, nil, &ForbiddenError{Reason: err.Error()}
	}

	delivery := &database.DeliveryRequest{
		ID:                       uuid.NewString(),
		AlertID:                  alert.ID,
		DriverID:                 driver.ID,
		EstimatedDurationMinutes: database.DefaultEstimatedDurationMinutes,
		Status:                   database.DeliveryStatusAssigned,
	}
	if r, err := database.GetRestaurant(s.db, alert.RestaurantID); err == nil {
		delivery.PickupAddress = r.Address
	}
	if fb, err := database.GetFoodBank(s.db, alert.FoodbankID); err == nil {
		delivery.DeliveryAddress = fb.Address
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		claimed, err := database.ClaimDriver(tx, driver.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return conflict(ReasonDriverUnavailable, alert)
		}
		if err := database.CompareAndSetStatus(tx, alert.ID, lifecycle.StatusFoodbankAccepted, lifecycle.StatusDriverAssigned,
			map[string]interface{}{"driver_id": driver.ID}); err != nil {
			return err
		}
		return tx.Create(delivery).Error
	})
	if err != nil {
		if errors.Is(err, database.ErrStaleStatus) {
			current, _ := database.GetAlert(s.db, alert.ID)
			return nil, nil, conflict(ReasonInvalidTransition, current)
		}
		return nil, nil, err
	}

	updated, err := database.GetAlert(s.db, alert.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reload alert: %w", err)
	}

	logger.InfoKV(ctx, "Driver assigned", "alert_id", alert.ID, "driver_id", driver.ID, "delivery_id", delivery.ID)
	s.notifier.Notify(ctx, Change{Kind: ChangeDriverAssigned, Alert: *updated, Previous: alert.Status, Actor: actor, Delivery: delivery})
	return updated, delivery, nil
}

// UpdateStatus applies one of the driver's forward edges, or a cancel. The
// accept, assign and expire edges have dedicated operations and are rejected
// here.
func (s *AlertService) UpdateStatus(ctx context.Context, actor lifecycle.Actor, alertID string, status lifecycle.Status) (*database.Alert, error) {
	if !status.Valid() {
		return nil, NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	action, ok := lifecycle.ActionFor(status)
	if !ok {
		return nil, NewValidationError("status", fmt.Sprintf("%s is not a reachable status", status))
	}
	switch action {
	case lifecycle.ActionAccept, lifecycle.ActionAssignDriver, lifecycle.ActionExpire:
		return nil, NewValidationError("status", fmt.Sprintf("%s is set through its own operation", status))
	case lifecycle.ActionCancel:
		return s.Cancel(ctx, actor, alertID, "")
	}

	unlock := s.locks.Lock(alertKey(alertID))
	defer unlock()

	alert, err := database.GetAlert(s.db, alertID)
	if err != nil {
		return nil, s.lookupError(err, "alert", alertID)
	}

	edge, ok := lifecycle.Lookup(alert.Status, action)
	if !ok || edge.To != status {
		return nil, conflict(ReasonInvalidTransition, alert)
	}
	if err := edge.Permits(actor, alert.Parties()); err != nil {
		return nil, &ForbiddenError{Reason: err.Error()}
	}

	now := s.now()
	alertUpdates := map[string]interface{}{}
	deliveryUpdates := map[string]interface{}{}
	switch status {
	case lifecycle.StatusPickedUp:
		deliveryUpdates["status"] = database.DeliveryStatusPickedUp
		deliveryUpdates["actual_pickup_time"] = now
	case lifecycle.StatusDelivered:
		alertUpdates["delivery_time"] = now
		deliveryUpdates["status"] = database.DeliveryStatusDelivered
		deliveryUpdates["actual_delivery_time"] = now
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := database.CompareAndSetStatus(tx, alert.ID, alert.Status, status, alertUpdates); err != nil {
			return err
		}
		if len(deliveryUpdates) > 0 {
			if err := tx.Model(&database.DeliveryRequest{}).Where("alert_id = ?", alert.ID).Updates(deliveryUpdates).Error; err != nil {
				return fmt.Errorf("failed to update delivery request: %w", err)
			}
		}
		if status == lifecycle.StatusDelivered {
			return database.ReleaseDriver(tx, alert.DriverID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, database.ErrStaleStatus) {
			current, _ := database.GetAlert(s.db, alert.ID)
			return nil, conflict(ReasonInvalidTransition, current)
		}
		return nil, err
	}

	updated, err := database.GetAlert(s.db, alert.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload alert: %w", err)
	}
	logger.InfoKV(ctx, "Alert status updated", "alert_id", alert.ID, "from", alert.Status, "to", status, "actor", actor.String())
	s.notifier.Notify(ctx, Change{Kind: ChangeStatus, Alert: *updated, Previous: alert.Status, Actor: actor})
	return updated, nil
}

// Cancel ends a non-terminal alert that has not been picked up, releasing
// its driver if one was assigned
func (s *AlertService) Cancel(ctx context.Context, actor lifecycle.Actor, alertID, reason string) (*database.Alert, error) {
	unlock := s.locks.Lock(alertKey(alertID))
	defer unlock()

	alert, err := database.GetAlert(s.db, alertID)
	if err != nil {
		return nil, s.lookupError(err, "alert", alertID)
	}
	return s.cancelLocked(ctx, actor, alert, reason)
}

func (s *AlertService) cancelLocked(ctx context.Context, actor lifecycle.Actor, alert *database.Alert, reason string) (*database.Alert, error) {
	reason = utils.SingleLine(utils.CleanText(reason))
	edge, ok := lifecycle.Lookup(alert.Status, lifecycle.ActionCancel)
	if !ok {
		return nil, conflict(ReasonInvalidTransition, alert)
	}
	if err := edge.Permits(actor, alert.Parties()); err != nil {
		return nil, &ForbiddenError{Reason: err.Error()}
	}

	if alert.DriverID != "" {
		unlockDriver := s.locks.Lock(driverKey(alert.DriverID))
		defer unlockDriver()
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := database.CompareAndSetStatus(tx, alert.ID, alert.Status, lifecycle.StatusCancelled,
			map[string]interface{}{"cancel_reason": reason}); err != nil {
			return err
		}
		if alert.DriverID == "" {
			return nil
		}
		if err := tx.Model(&database.DeliveryRequest{}).Where("alert_id = ?", alert.ID).
			Update("status", database.DeliveryStatusCancelled).Error; err != nil {
			return fmt.Errorf("failed to cancel delivery request: %w", err)
		}
		return database.ReleaseDriver(tx, alert.DriverID)
	})
	if err != nil {
		if errors.Is(err, database.ErrStaleStatus) {
			current, _ := database.GetAlert(s.db, alert.ID)
			return nil, conflict(ReasonInvalidTransition, current)
		}
		return nil, err
	}

	s.escalator.Cancel(alert.ID)
	updated, err := database.GetAlert(s.db, alert.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload alert: %w", err)
	}
	logger.InfoKV(ctx, "Alert cancelled", "alert_id", alert.ID, "from", alert.Status, "actor", actor.String(), "reason", reason)
	s.notifier.Notify(ctx, Change{Kind: ChangeCancelled, Alert: *updated, Previous: alert.Status, Actor: actor})
	return updated, nil
}

// Expire moves a pending alert whose window has elapsed to expired. It
// returns false when there was nothing to do: the alert was accepted or
// cancelled first, or its deadline has not passed.
func (s *AlertService) Expire(ctx context.Context, alertID string) (bool, error) {
	unlock := s.locks.Lock(alertKey(alertID))
	defer unlock()

	alert, err := database.GetAlert(s.db, alertID)
	if err != nil {
		if database.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load alert %s: %w", alertID, err)
	}
	if alert.Status != lifecycle.StatusPending || s.now().Before(s.Deadline(alert)) {
		return false, nil
	}
	if _, err := s.expireLocked(ctx, alert); err != nil {
		return false, err
	}
	return true, nil
}

func (s *AlertService) expireLocked(ctx context.Context, alert *database.Alert) (*database.Alert, error) {
	err := database.CompareAndSetStatus(s.db, alert.ID, lifecycle.StatusPending, lifecycle.StatusExpired, nil)
	if err != nil {
		if errors.Is(err, database.ErrStaleStatus) {
			return database.GetAlert(s.db, alert.ID)
		}
		return nil, err
	}
	s.escalator.Cancel(alert.ID)

	updated, err := database.GetAlert(s.db, alert.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload alert: %w", err)
	}
	logger.InfoKV(ctx, "Alert expired", "alert_id", alert.ID, "restaurant_id", alert.RestaurantID)
	s.notifier.Notify(ctx, Change{Kind: ChangeExpired, Alert: *updated, Previous: lifecycle.StatusPending, Actor: lifecycle.SystemActor})
	return updated, nil
}

// CancelStaleAccepted cancels accepted alerts that have waited longer than
// maxWait for a driver. It returns the number cancelled.
func (s *AlertService) CancelStaleAccepted(ctx context.Context, maxWait time.Duration) (int, error) {
	if maxWait <= 0 {
		return 0, nil
	}
	stale, err := database.StaleAcceptedAlerts(s.db, s.now().Add(-maxWait))
	if err != nil {
		return 0, fmt.Errorf("failed to list stale accepted alerts: %w", err)
	}

	cancelled := 0
	for _, a := range stale {
		_, err := s.Cancel(ctx, lifecycle.SystemActor, a.ID, CancelReasonNoDriver)
		switch {
		case err == nil:
			cancelled++
		case IsConflict(err):
			// moved on since the query
		default:
			logger.WarnKV(ctx, "Failed to cancel stale alert", "alert_id", a.ID, "error", err)
		}
	}
	return cancelled, nil
}

// OfferPending offers every open alert the food bank has not seen yet to it,
// recording it as notified. Used when a food bank registers or is
// re-activated.
func (s *AlertService) OfferPending(ctx context.Context, foodbankID string) ([]database.Alert, error) {
	pending, err := database.PendingAlerts(s.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending alerts: %w", err)
	}

	var offered []database.Alert
	for _, candidate := range pending {
		if candidate.NotifiedFoodbanks.Contains(foodbankID) {
			continue
		}
		alert, ok, err := s.offerOne(candidate.ID, foodbankID)
		if err != nil {
			return offered, err
		}
		if !ok {
			continue
		}
		offered = append(offered, *alert)
		s.notifier.Notify(ctx, Change{
			Kind:       ChangeOffered,
			Alert:      *alert,
			Actor:      lifecycle.SystemActor,
			Recipients: []string{foodbankID},
		})
	}
	if len(offered) > 0 {
		logger.InfoKV(ctx, "Offered pending alerts to food bank", "foodbank_id", foodbankID, "count", len(offered))
	}
	return offered, nil
}

func (s *AlertService) offerOne(alertID, foodbankID string) (*database.Alert, bool, error) {
	unlock := s.locks.Lock(alertKey(alertID))
	defer unlock()

	alert, err := database.GetAlert(s.db, alertID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load alert %s: %w", alertID, err)
	}
	if alert.Status != lifecycle.StatusPending || !s.now().Before(s.Deadline(alert)) ||
		alert.NotifiedFoodbanks.Contains(foodbankID) {
		return nil, false, nil
	}

	notified := alert.NotifiedFoodbanks.Add(foodbankID)
	err = database.CompareAndSetStatus(s.db, alert.ID, lifecycle.StatusPending, lifecycle.StatusPending,
		map[string]interface{}{"notified_foodbanks": notified})
	if errors.Is(err, database.ErrStaleStatus) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	alert.NotifiedFoodbanks = notified
	return alert, true, nil
}

func (s *AlertService) lookupError(err error, entity, id string) error {
	if database.IsNotFound(err) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return fmt.Errorf("failed to load %s %s: %w", entity, id, err)
}
