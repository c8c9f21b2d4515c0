package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ideavolution/coordinator/internal/database"
	"github.com/ideavolution/coordinator/internal/logger"
	"gorm.io/gorm"
)

// DirectoryService manages restaurants, food banks and drivers
type DirectoryService struct {
	db     *gorm.DB
	alerts *AlertService
}

// NewDirectoryService creates a new DirectoryService sharing the alert
// service's locks
func NewDirectoryService(db *gorm.DB, alerts *AlertService) *DirectoryService {
	return &DirectoryService{db: db, alerts: alerts}
}

// ========== Restaurants ==========

// CreateRestaurant registers a donor
func (s *DirectoryService) CreateRestaurant(ctx context.Context, r *database.Restaurant) (*database.Restaurant, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.IsActive = true
	if err := s.db.Create(r).Error; err != nil {
		return nil, fmt.Errorf("failed to create restaurant: %w", err)
	}
	logger.InfoKV(ctx, "Restaurant registered", "restaurant_id", r.ID)
	return r, nil
}

// ListRestaurants returns every restaurant ordered by name
func (s *DirectoryService) ListRestaurants(ctx context.Context) ([]database.Restaurant, error) {
	var rows []database.Restaurant
	if err := s.db.Order("name asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetRestaurant returns a restaurant by id
func (s *DirectoryService) GetRestaurant(ctx context.Context, id string) (*database.Restaurant, error) {
	r, err := database.GetRestaurant(s.db, id)
	if err != nil {
		return nil, s.alerts.lookupError(err, "restaurant", id)
	}
	return r, nil
}

// ========== Food banks ==========

// CreateFoodBank registers a food bank and offers it the alerts still open
func (s *DirectoryService) CreateFoodBank(ctx context.Context, fb *database.FoodBank) (*database.FoodBank, []database.Alert, error) {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.Capacity <= 0 {
		fb.Capacity = 100
	}
	fb.IsActive = true
	if err := s.db.Create(fb).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to create food bank: %w", err)
	}
	logger.InfoKV(ctx, "Food bank registered", "foodbank_id", fb.ID)

	offered, err := s.alerts.OfferPending(ctx, fb.ID)
	if err != nil {
		logger.WarnKV(ctx, "Failed to offer pending alerts", "foodbank_id", fb.ID, "error", err)
	}
	return fb, offered, nil
}

// SetFoodBankActive toggles whether new alerts are offered to the food bank.
// Activation also offers the alerts still open.
func (s *DirectoryService) SetFoodBankActive(ctx context.Context, id string, active bool) (*database.FoodBank, error) {
	fb, err := database.GetFoodBank(s.db, id)
	if err != nil {
		return nil, s.alerts.lookupError(err, "food bank", id)
	}
	if err := s.db.Model(fb).Update("is_active", active).Error; err != nil {
		return nil, fmt.Errorf("failed to update food bank: %w", err)
	}
	fb.IsActive = active
	if active {
		if _, err := s.alerts.OfferPending(ctx, fb.ID); err != nil {
			logger.WarnKV(ctx, "Failed to offer pending alerts", "foodbank_id", fb.ID, "error", err)
		}
	}
	return fb, nil
}

// ListFoodBanks returns food banks ordered by name
func (s *DirectoryService) ListFoodBanks(ctx context.Context, activeOnly bool) ([]database.FoodBank, error) {
	q := s.db.Order("name asc")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var rows []database.FoodBank
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetFoodBank returns a food bank by id
func (s *DirectoryService) GetFoodBank(ctx context.Context, id string) (*database.FoodBank, error) {
	fb, err := database.GetFoodBank(s.db, id)
	if err != nil {
		return nil, s.alerts.lookupError(err, "food bank", id)
	}
	return fb, nil
}

// ========== Drivers ==========

// CreateDriver registers an available driver
func (s *DirectoryService) CreateDriver(ctx context.Context, d *database.Driver) (*database.Driver, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Rating == 0 {
		d.Rating = 5
	}
	d.IsActive = true
	d.IsAvailable = true
	if err := s.db.Create(d).Error; err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}
	logger.InfoKV(ctx, "Driver registered", "driver_id", d.ID)
	return d, nil
}

// ListDrivers returns drivers ordered by name. availableOnly restricts the
// list to those a food bank may assign.
func (s *DirectoryService) ListDrivers(ctx context.Context, availableOnly bool) ([]database.Driver, error) {
	q := s.db.Order("name asc")
	if availableOnly {
		q = q.Where("is_available = ? AND is_active = ?", true, true)
	}
	var rows []database.Driver
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetDriver returns a driver by id
func (s *DirectoryService) GetDriver(ctx context.Context, id string) (*database.Driver, error) {
	d, err := database.GetDriver(s.db, id)
	if err != nil {
		return nil, s.alerts.lookupError(err, "driver", id)
	}
	return d, nil
}

// SetDriverAvailability toggles the driver's availability flag and records
// the reported location. A driver carrying an active delivery cannot be
// marked available.
func (s *DirectoryService) SetDriverAvailability(ctx context.Context, id string, available bool, location *database.Location) (*database.Driver, error) {
	unlock := s.alerts.locks.Lock(driverKey(id))
	defer unlock()

	d, err := database.GetDriver(s.db, id)
	if err != nil {
		return nil, s.alerts.lookupError(err, "driver", id)
	}

	if available {
		active, err := database.ActiveDeliveryCount(s.db, id)
		if err != nil {
			return nil, fmt.Errorf("failed to count active deliveries: %w", err)
		}
		if active > 0 {
			return nil, conflict(ReasonDriverBusy, nil)
		}
	}

	updates := map[string]interface{}{"is_available": available}
	if location != nil {
		updates["current_location"] = *location
	}
	if err := s.db.Model(&database.Driver{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update driver: %w", err)
	}

	d.IsAvailable = available
	if location != nil {
		loc := *location
		d.CurrentLocation = &loc
	}
	logger.InfoKV(ctx, "Driver availability changed", "driver_id", id, "available", available)
	return d, nil
}
