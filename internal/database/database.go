package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/moneykids/invest-api/internal/database/migrations"
	"github.com/moneykids/invest-api/internal/member"
	"github.com/moneykids/invest-api/internal/points"
	"github.com/moneykids/invest-api/internal/stock"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddPriceSnapshots(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.AddTradeLedger(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	err = db.AutoMigrate(
		&member.Member{},
		&points.PointMovement{},
		&stock.Stock{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
