package database

import (
	"fmt"

	"gorm.io/gorm"
)

// GetRestaurant loads a restaurant by id
func GetRestaurant(db *gorm.DB, id string) (*Restaurant, error) {
	var r Restaurant
	if err := db.Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// GetFoodBank loads a food bank by id
func GetFoodBank(db *gorm.DB, id string) (*FoodBank, error) {
	var fb FoodBank
	if err := db.Where("id = ?", id).First(&fb).Error; err != nil {
		return nil, err
	}
	return &fb, nil
}

// GetDriver loads a driver by id
func GetDriver(db *gorm.DB, id string) (*Driver, error) {
	var d Driver
	if err := db.Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// ActiveFoodBankIDs returns the ids of food banks that receive new alerts
func ActiveFoodBankIDs(db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.Model(&FoodBank{}).Where("is_active = ?", true).Order("created_at asc").Pluck("id", &ids).Error
	return ids, err
}

// ClaimDriver marks an available, active driver as busy. It returns false if
// the driver was not available at the time of the update.
func ClaimDriver(tx *gorm.DB, id string) (bool, error) {
	result := tx.Model(&Driver{}).
		Where("id = ? AND is_available = ? AND is_active = ?", id, true, true).
		Update("is_available", false)
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim driver %s: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ReleaseDriver marks the driver available again
func ReleaseDriver(tx *gorm.DB, id string) error {
	if id == "" {
		return nil
	}
	return tx.Model(&Driver{}).Where("id = ?", id).Update("is_available", true).Error
}

// PartySummary is the contact detail attached to alert responses
type PartySummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	Address     string `json:"address,omitempty"`
	VehicleType string `json:"vehicle_type,omitempty"`
}

// PartyDirectory resolves party summaries in bulk
type PartyDirectory struct {
	Restaurants map[string]PartySummary
	FoodBanks   map[string]PartySummary
	Drivers     map[string]PartySummary
}

// LoadPartyDirectory fetches summaries for every party referenced by alerts
func LoadPartyDirectory(db *gorm.DB, alerts []Alert) (*PartyDirectory, error) {
	var restaurantIDs, foodbankIDs, driverIDs []string
	for _, a := range alerts {
		restaurantIDs = append(restaurantIDs, a.RestaurantID)
		if a.FoodbankID != "" {
			foodbankIDs = append(foodbankIDs, a.FoodbankID)
		}
		if a.DriverID != "" {
			driverIDs = append(driverIDs, a.DriverID)
		}
	}

	dir := &PartyDirectory{
		Restaurants: make(map[string]PartySummary),
		FoodBanks:   make(map[string]PartySummary),
		Drivers:     make(map[string]PartySummary),
	}

	if len(restaurantIDs) > 0 {
		var rows []Restaurant
		if err := db.Where("id IN ?", restaurantIDs).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			dir.Restaurants[r.ID] = PartySummary{ID: r.ID, Name: r.Name, Phone: r.Phone, Email: r.Email, Address: r.Address}
		}
	}
	if len(foodbankIDs) > 0 {
		var rows []FoodBank
		if err := db.Where("id IN ?", foodbankIDs).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, fb := range rows {
			dir.FoodBanks[fb.ID] = PartySummary{ID: fb.ID, Name: fb.Name, Phone: fb.Phone, Email: fb.Email, Address: fb.Address}
		}
	}
	if len(driverIDs) > 0 {
		var rows []Driver
		if err := db.Where("id IN ?", driverIDs).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, d := range rows {
			dir.Drivers[d.ID] = PartySummary{ID: d.ID, Name: d.Name, Phone: d.Phone, Email: d.Email, VehicleType: d.VehicleType}
		}
	}
	return dir, nil
}
