package types

import (
	"time"

	"gorm.io/gorm"
)

// Order side labels
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order status values. Terminal statuses never transition back to ACTIVE.
const (
	OrderStatusActive    = "ACTIVE"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusExhausted = "EXHAUSTED"
)

// Order represents one recurring-purchase plan. A fixed tranche of the source
// asset is converted into the target asset every interval until the budget is
// exhausted or the order is cancelled. All amounts are integer base units.
type Order struct {
	gorm.Model        `json:"-"`
	OrderID           string    `gorm:"uniqueIndex" json:"order_id"`
	Owner             string    `gorm:"index" json:"owner"`
	SourceAsset       string    `json:"source_asset"`
	TargetAsset       string    `json:"target_asset"`
	Side              string    `json:"side"` // BUY or SELL
	TrancheAmount     int64     `json:"tranche_amount"`
	IntervalSeconds   int64     `json:"interval_seconds"`
	MaxExecutions     int64     `json:"max_executions"` // 0 = unlimited
	ExecutionCount    int64     `json:"execution_count"`
	RemainingBudget   int64     `json:"remaining_budget"`
	AccumulatedOutput int64     `json:"accumulated_output"`
	TotalFunded       int64     `json:"total_funded"`
	NextEligibleAt    time.Time `json:"next_eligible_at"`
	Status            string    `json:"status"` // ACTIVE, CANCELLED, EXHAUSTED
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Interval returns the order's execution interval as a duration.
func (o *Order) Interval() time.Duration {
	return time.Duration(o.IntervalSeconds) * time.Second
}

// Terminal reports whether the order has reached a terminal status.
func (o *Order) Terminal() bool {
	return o.Status == OrderStatusCancelled || o.Status == OrderStatusExhausted
}

// ExecutionRecord is an append-only audit entry for one execution attempt,
// successful or failed. Records are never mutated after creation.
type ExecutionRecord struct {
	gorm.Model    `json:"-"`
	RecordID      string    `gorm:"uniqueIndex" json:"record_id"`
	OrderID       string    `gorm:"index" json:"order_id"`
	ExecutedAt    time.Time `json:"executed_at"`
	InputAmount   int64     `json:"input_amount"`
	OutputAmount  int64     `json:"output_amount"`
	MinOutput     int64     `json:"min_output"` // price bound the swap was held to
	Success       bool      `json:"success"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// Balance is one custody ledger row: the holdings of a single owner in a
// single asset. Funding an order moves value out of the source balance;
// successful executions credit the target balance.
type Balance struct {
	gorm.Model `json:"-"`
	Owner      string    `gorm:"uniqueIndex:idx_balances_owner_asset" json:"owner"`
	Asset      string    `gorm:"uniqueIndex:idx_balances_owner_asset" json:"asset"`
	Amount     int64     `json:"amount"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateOrderRequest is the payload accepted by the order creation endpoint.
type CreateOrderRequest struct {
	SourceAsset     string `json:"source_asset" binding:"required"`
	TargetAsset     string `json:"target_asset" binding:"required"`
	Side            string `json:"side"`
	TrancheAmount   int64  `json:"tranche_amount" binding:"required"`
	IntervalSeconds int64  `json:"interval_seconds" binding:"required"`
	MaxExecutions   int64  `json:"max_executions"`
	StartAt         int64  `json:"start_at"` // unix seconds, 0 = now
}

// FundOrderRequest is the payload accepted by the funding endpoint.
type FundOrderRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// WithdrawResponse reports the amount returned by withdrawRemaining.
type WithdrawResponse struct {
	OrderID string `json:"order_id"`
	Asset   string `json:"asset"`
	Amount  int64  `json:"amount"`
}

// TickResponse is returned by the internal tick trigger.
type TickResponse struct {
	TickedAt time.Time         `json:"ticked_at"`
	Records  []ExecutionRecord `json:"records"`
}
