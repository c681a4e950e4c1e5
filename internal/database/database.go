package database

import (
	"fmt"

	"github.com/ksred/dca-api/internal/database/migrations"
	"github.com/ksred/dca-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection at the given
// sqlite path
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddExecutionIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	err = db.AutoMigrate(
		&types.Order{},
		&types.Balance{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
