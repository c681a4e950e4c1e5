package migrations

import (
	"github.com/ksred/dca-api/internal/types"
	"gorm.io/gorm"
)

// AddExecutionIndexes creates the execution record table and query indexes
func AddExecutionIndexes(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.ExecutionRecord{}); err != nil {
		return err
	}

	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// Composite index for per-order history queries, newest last
		`CREATE INDEX IF NOT EXISTS idx_execution_records_order_time
		 ON execution_records(order_id, executed_at)`,

		// Index for success filtering in audits
		`CREATE INDEX IF NOT EXISTS idx_execution_records_success
		 ON execution_records(success)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
