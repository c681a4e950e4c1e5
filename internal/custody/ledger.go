package custody

import (
	"errors"
	"time"

	"github.com/ksred/dca-api/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Ledger is the custody collaborator: per owner/asset balances with an atomic
// increment/decrement discipline. Every mutation runs inside a database
// transaction so concurrent tranches on the same balance cannot race.
type Ledger struct {
	db *gorm.DB
}

// NewLedger creates a custody ledger backed by the given database.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// BalanceOf returns the current holdings of owner in asset. A missing row
// reads as zero.
func (l *Ledger) BalanceOf(owner, asset string) (int64, error) {
	var balance types.Balance
	err := l.db.Where("owner = ? AND asset = ?", owner, asset).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance.Amount, nil
}

// TransferIn credits amount of asset to owner from outside the ledger.
func (l *Ledger) TransferIn(owner, asset string, amount int64) error {
	if amount <= 0 {
		return types.ErrInvalidParameters
	}
	return l.db.Transaction(func(tx *gorm.DB) error {
		return l.CreditTx(tx, owner, asset, amount)
	})
}

// TransferOut debits amount of asset from owner, paying it out of the ledger.
// Fails with ErrInsufficientFunds when the balance cannot cover it.
func (l *Ledger) TransferOut(owner, asset string, amount int64) error {
	if amount <= 0 {
		return types.ErrInvalidParameters
	}
	return l.db.Transaction(func(tx *gorm.DB) error {
		return l.DebitTx(tx, owner, asset, amount)
	})
}

// CreditTx increments a balance inside an existing transaction. Callers that
// need cross-table atomicity (order funding, execution crediting) compose this
// with their own writes under one tx.
func (l *Ledger) CreditTx(tx *gorm.DB, owner, asset string, amount int64) error {
	var balance types.Balance
	err := tx.Where("owner = ? AND asset = ?", owner, asset).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		balance = types.Balance{
			Owner:     owner,
			Asset:     asset,
			Amount:    amount,
			UpdatedAt: time.Now(),
		}
		return tx.Create(&balance).Error
	}
	if err != nil {
		return err
	}

	balance.Amount += amount
	balance.UpdatedAt = time.Now()
	return tx.Save(&balance).Error
}

// DebitTx decrements a balance inside an existing transaction, failing with
// ErrInsufficientFunds when the balance cannot cover the amount.
func (l *Ledger) DebitTx(tx *gorm.DB, owner, asset string, amount int64) error {
	var balance types.Balance
	err := tx.Where("owner = ? AND asset = ?", owner, asset).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ErrInsufficientFunds
	}
	if err != nil {
		return err
	}

	if balance.Amount < amount {
		log.Debug().
			Str("owner", owner).
			Str("asset", asset).
			Int64("balance", balance.Amount).
			Int64("requested", amount).
			Msg("debit rejected, balance too low")
		return types.ErrInsufficientFunds
	}

	balance.Amount -= amount
	balance.UpdatedAt = time.Now()
	return tx.Save(&balance).Error
}
