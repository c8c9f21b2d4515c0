package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/ideavolution/coordinator/internal/lifecycle"
	"gorm.io/gorm"
)

// ErrStaleStatus is returned when a conditional update finds the alert no
// longer in the expected status
var ErrStaleStatus = errors.New("alert status changed concurrently")

// AlertFilter selects alerts conjunctively; empty fields are ignored
type AlertFilter struct {
	Status       lifecycle.Status
	RestaurantID string
	FoodbankID   string
	DriverID     string
	Limit        int
}

// Apply adds the filter's conditions to q
func (f AlertFilter) Apply(q *gorm.DB) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.RestaurantID != "" {
		q = q.Where("restaurant_id = ?", f.RestaurantID)
	}
	if f.FoodbankID != "" {
		q = q.Where("foodbank_id = ?", f.FoodbankID)
	}
	if f.DriverID != "" {
		q = q.Where("driver_id = ?", f.DriverID)
	}
	return q
}

// ListAlerts returns matching alerts, newest first
func ListAlerts(db *gorm.DB, f AlertFilter) ([]Alert, error) {
	var alerts []Alert
	q := f.Apply(db.Model(&Alert{})).Order("created_at desc").Order("id desc")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

// GetAlert loads an alert by id
func GetAlert(db *gorm.DB, id string) (*Alert, error) {
	var alert Alert
	if err := db.Where("id = ?", id).First(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// PendingAlerts returns every alert still waiting for a food bank
func PendingAlerts(db *gorm.DB) ([]Alert, error) {
	var alerts []Alert
	err := db.Where("status = ?", lifecycle.StatusPending).Order("created_at asc").Find(&alerts).Error
	return alerts, err
}

// StaleAcceptedAlerts returns accepted alerts whose acceptance is older than cutoff
func StaleAcceptedAlerts(db *gorm.DB, cutoff time.Time) ([]Alert, error) {
	var alerts []Alert
	err := db.Where("status = ? AND accepted_at < ?", lifecycle.StatusFoodbankAccepted, cutoff).
		Order("accepted_at asc").Find(&alerts).Error
	return alerts, err
}

// CompareAndSetStatus moves the alert from one status to another, applying
// extra column updates only if the row is still in from. It returns
// ErrStaleStatus when another writer got there first.
func CompareAndSetStatus(tx *gorm.DB, id string, from, to lifecycle.Status, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	updates["updated_at"] = time.Now()

	result := tx.Model(&Alert{}).Where("id = ? AND status = ?", id, from).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update alert %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// ActiveDeliveryCount counts alerts a driver is currently carrying
func ActiveDeliveryCount(db *gorm.DB, driverID string) (int64, error) {
	var count int64
	err := db.Model(&Alert{}).
		Where("driver_id = ? AND status IN ?", driverID, []lifecycle.Status{
			lifecycle.StatusDriverAssigned,
			lifecycle.StatusPickedUp,
			lifecycle.StatusInTransit,
		}).Count(&count).Error
	return count, err
}

// IsNotFound reports whether err means the record does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
