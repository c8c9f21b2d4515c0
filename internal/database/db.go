package database

import (
	"fmt"
	"strings"

	"github.com/ideavolution/coordinator/internal/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// Open opens a database for the given URL without touching the global.
// "sqlite://<path>" opens a SQLite file; anything else is handed to the
// PostgreSQL driver.
func Open(dsn string, logLevel gormlogger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector
	isSQLite := strings.HasPrefix(dsn, "sqlite://")
	if isSQLite {
		dialector = sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	} else {
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if isSQLite {
		// SQLite allows a single writer; serialise through one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Connect opens the database and stores it in DB
func Connect(dsn string, logLevel gormlogger.LogLevel) error {
	db, err := Open(dsn, logLevel)
	if err != nil {
		return err
	}
	DB = db
	logger.Logger().Info("Database connection established")
	return nil
}

// Models lists every table owned by the service
func Models() []interface{} {
	return []interface{}{
		&Restaurant{},
		&FoodBank{},
		&Driver{},
		&Alert{},
		&DeliveryRequest{},
	}
}

// AutoMigrate runs database migrations on db
func AutoMigrate(db *gorm.DB) error {
	logger.Logger().Info("Running database migrations...")
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Logger().Info("Database migrations completed successfully")
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
