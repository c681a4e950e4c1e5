package dca

import (
	"errors"
	"time"

	"github.com/ksred/dca-api/internal/custody"
	"github.com/ksred/dca-api/internal/types"
	"gorm.io/gorm"
)

// Database is the durable order store. All multi-field order updates run in a
// single transaction so no partial state is ever visible to other callers.
type Database struct {
	db     *gorm.DB
	ledger *custody.Ledger
}

// NewDatabase creates an order store over the given connection and custody
// ledger.
func NewDatabase(db *gorm.DB, ledger *custody.Ledger) *Database {
	return &Database{db: db, ledger: ledger}
}

// CreateOrder persists a new order.
func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Create(order).Error
}

// GetOrder retrieves an order by its ID. Returns nil, nil when no order
// exists.
func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetOrderByOrderIDAndOwner retrieves an order scoped to its owner.
func (d *Database) GetOrderByOrderIDAndOwner(orderID, owner string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ? AND owner = ?", orderID, owner).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// ListOrdersByOwner returns every order belonging to owner.
func (d *Database) ListOrdersByOwner(owner string) ([]types.Order, error) {
	var orders []types.Order
	if err := d.db.Where("owner = ?", owner).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListDueOrders returns all active orders whose next eligible time has been
// reached and that still hold at least one tranche of budget.
func (d *Database) ListDueOrders(now time.Time) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.
		Where("status = ? AND next_eligible_at <= ? AND remaining_budget >= tranche_amount",
			types.OrderStatusActive, now).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListExecutions returns the append-only execution history of an order,
// oldest first.
func (d *Database) ListExecutions(orderID string) ([]types.ExecutionRecord, error) {
	var records []types.ExecutionRecord
	if err := d.db.Where("order_id = ?", orderID).Order("id asc").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// FundOrder moves amount of the order's source asset from the owner's custody
// balance into the order's budget. Both writes commit together or not at all.
func (d *Database) FundOrder(orderID string, amount int64) (*types.Order, error) {
	var funded types.Order
	err := d.db.Transaction(func(tx *gorm.DB) error {
		var order types.Order
		if err := tx.Where("order_id = ?", orderID).First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.ErrNotFound
			}
			return err
		}

		if order.Status == types.OrderStatusCancelled {
			return types.ErrOrderCancelled
		}
		if order.Status == types.OrderStatusExhausted {
			return types.ErrAlreadyTerminal
		}

		if err := d.ledger.DebitTx(tx, order.Owner, order.SourceAsset, amount); err != nil {
			return err
		}

		order.RemainingBudget += amount
		order.TotalFunded += amount
		order.UpdatedAt = time.Now()
		if err := tx.Save(&order).Error; err != nil {
			return err
		}

		funded = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &funded, nil
}

// CancelOrder transitions an active order to CANCELLED. The caller must be
// the owner; cancelling a terminal order is a no-op error.
func (d *Database) CancelOrder(orderID, caller string) (*types.Order, error) {
	var cancelled types.Order
	err := d.db.Transaction(func(tx *gorm.DB) error {
		var order types.Order
		if err := tx.Where("order_id = ?", orderID).First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.ErrNotFound
			}
			return err
		}

		if order.Owner != caller {
			return types.ErrUnauthorized
		}
		if order.Terminal() {
			return types.ErrAlreadyTerminal
		}

		order.Status = types.OrderStatusCancelled
		order.UpdatedAt = time.Now()
		if err := tx.Save(&order).Error; err != nil {
			return err
		}

		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cancelled, nil
}

// WithdrawRemaining returns the unused budget of a cancelled order to the
// owner's custody balance. The order stays CANCELLED.
func (d *Database) WithdrawRemaining(orderID, caller string) (int64, error) {
	var withdrawn int64
	err := d.db.Transaction(func(tx *gorm.DB) error {
		var order types.Order
		if err := tx.Where("order_id = ?", orderID).First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.ErrNotFound
			}
			return err
		}

		if order.Owner != caller {
			return types.ErrUnauthorized
		}
		if order.Status != types.OrderStatusCancelled {
			return types.ErrNotCancelled
		}

		withdrawn = order.RemainingBudget
		if withdrawn == 0 {
			return nil
		}

		if err := d.ledger.CreditTx(tx, order.Owner, order.SourceAsset, withdrawn); err != nil {
			return err
		}

		order.RemainingBudget = 0
		order.UpdatedAt = time.Now()
		return tx.Save(&order).Error
	})
	if err != nil {
		return 0, err
	}
	return withdrawn, nil
}

// RecordExecution commits a successful execution: one transaction appends the
// record, decrements the budget, credits the accumulated output and the
// owner's target-asset balance, advances the schedule, and applies the
// EXHAUSTED transition. A crash on either side of the commit leaves the order
// exactly as it was.
func (d *Database) RecordExecution(order *types.Order, record *types.ExecutionRecord) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		var current types.Order
		if err := tx.Where("order_id = ?", order.OrderID).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.ErrNotFound
			}
			return err
		}

		// The budget may have been withdrawn while the swap was in flight;
		// committing would drive it negative and double-pay the owner, so
		// the attempt is aborted and settles as a failed record instead.
		if current.RemainingBudget < record.InputAmount {
			return types.ErrInsufficientBudget
		}

		// The order may have been cancelled after the due check; the
		// execution still settles into a consistent record, but a cancelled
		// order does not come back to life.
		wasCancelled := current.Status == types.OrderStatusCancelled

		current.RemainingBudget -= record.InputAmount
		current.AccumulatedOutput += record.OutputAmount
		current.ExecutionCount++
		current.NextEligibleAt = current.NextEligibleAt.Add(order.Interval())
		current.UpdatedAt = time.Now()

		if !wasCancelled {
			current.Status = types.OrderStatusActive
			if current.RemainingBudget < current.TrancheAmount {
				current.Status = types.OrderStatusExhausted
			}
			if current.MaxExecutions > 0 && current.ExecutionCount >= current.MaxExecutions {
				current.Status = types.OrderStatusExhausted
			}
		}

		if err := tx.Save(&current).Error; err != nil {
			return err
		}

		if err := d.ledger.CreditTx(tx, current.Owner, current.TargetAsset, record.OutputAmount); err != nil {
			return err
		}

		if err := tx.Create(record).Error; err != nil {
			return err
		}

		*order = current
		return nil
	})
}

// RecordFailure appends a failed execution record without touching any order
// field: the reservation reads as if it never happened.
func (d *Database) RecordFailure(record *types.ExecutionRecord) error {
	return d.db.Create(record).Error
}
