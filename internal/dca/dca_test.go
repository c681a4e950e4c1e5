package dca

import (
	"testing"

	"github.com/ksred/dca-api/internal/custody"
	"github.com/ksred/dca-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (*Service, *custody.Ledger) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Order{}, &types.ExecutionRecord{}, &types.Balance{}))

	ledger := custody.NewLedger(db)
	return NewService(db, ledger), ledger
}

func validRequest() *types.CreateOrderRequest {
	return &types.CreateOrderRequest{
		SourceAsset:     "USDC",
		TargetAsset:     "WETH",
		TrancheAmount:   100,
		IntervalSeconds: 86400,
	}
}

func TestCreateOrderValidation(t *testing.T) {
	service, _ := setupService(t)

	tests := []struct {
		name   string
		mutate func(*types.CreateOrderRequest)
	}{
		{"zero tranche", func(r *types.CreateOrderRequest) { r.TrancheAmount = 0 }},
		{"negative tranche", func(r *types.CreateOrderRequest) { r.TrancheAmount = -10 }},
		{"zero interval", func(r *types.CreateOrderRequest) { r.IntervalSeconds = 0 }},
		{"negative interval", func(r *types.CreateOrderRequest) { r.IntervalSeconds = -60 }},
		{"negative max executions", func(r *types.CreateOrderRequest) { r.MaxExecutions = -1 }},
		{"missing source asset", func(r *types.CreateOrderRequest) { r.SourceAsset = "" }},
		{"same assets", func(r *types.CreateOrderRequest) { r.TargetAsset = "USDC" }},
		{"unknown side", func(r *types.CreateOrderRequest) { r.Side = "HOLD" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(req)
			_, err := service.CreateOrder("alice", req)
			assert.ErrorIs(t, err, types.ErrInvalidParameters)
		})
	}
}

func TestCreateOrderDefaults(t *testing.T) {
	service, _ := setupService(t)

	order, err := service.CreateOrder("alice", validRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, order.OrderID)
	assert.Equal(t, "alice", order.Owner)
	assert.Equal(t, types.SideBuy, order.Side)
	assert.Equal(t, types.OrderStatusActive, order.Status)
	assert.Equal(t, int64(0), order.RemainingBudget)
	assert.Equal(t, int64(0), order.AccumulatedOutput)
	assert.False(t, order.NextEligibleAt.IsZero())
}

func TestFundOrder(t *testing.T) {
	service, ledger := setupService(t)
	require.NoError(t, ledger.TransferIn("alice", "USDC", 1000))

	order, err := service.CreateOrder("alice", validRequest())
	require.NoError(t, err)

	funded, err := service.FundOrder(order.OrderID, "alice", 300)
	require.NoError(t, err)
	assert.Equal(t, int64(300), funded.RemainingBudget)
	assert.Equal(t, int64(300), funded.TotalFunded)

	// Funding debits the owner's custody balance
	balance, err := ledger.BalanceOf("alice", "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(700), balance)
}

func TestFundOrderFailures(t *testing.T) {
	service, ledger := setupService(t)
	require.NoError(t, ledger.TransferIn("alice", "USDC", 1000))

	order, err := service.CreateOrder("alice", validRequest())
	require.NoError(t, err)

	_, err = service.FundOrder("missing", "alice", 100)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = service.FundOrder(order.OrderID, "mallory", 100)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = service.FundOrder(order.OrderID, "alice", 0)
	assert.ErrorIs(t, err, types.ErrInvalidParameters)

	// More than the custody balance holds
	_, err = service.FundOrder(order.OrderID, "alice", 5000)
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)

	// A rejected funding changes nothing
	current, err := service.GetOrderForOwner(order.OrderID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), current.RemainingBudget)

	_, err = service.CancelOrder(order.OrderID, "alice")
	require.NoError(t, err)

	_, err = service.FundOrder(order.OrderID, "alice", 100)
	assert.ErrorIs(t, err, types.ErrOrderCancelled)
}

func TestCancelAndWithdraw(t *testing.T) {
	service, ledger := setupService(t)
	require.NoError(t, ledger.TransferIn("alice", "USDC", 1000))

	order, err := service.CreateOrder("alice", validRequest())
	require.NoError(t, err)
	_, err = service.FundOrder(order.OrderID, "alice", 150)
	require.NoError(t, err)

	// Only the owner may cancel
	_, err = service.CancelOrder(order.OrderID, "mallory")
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	// Withdraw requires cancellation first
	_, err = service.WithdrawRemaining(order.OrderID, "alice")
	assert.ErrorIs(t, err, types.ErrNotCancelled)

	cancelled, err := service.CancelOrder(order.OrderID, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusCancelled, cancelled.Status)

	// Cancelling again is a no-op error
	_, err = service.CancelOrder(order.OrderID, "alice")
	assert.ErrorIs(t, err, types.ErrAlreadyTerminal)

	withdrawal, err := service.WithdrawRemaining(order.OrderID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(150), withdrawal.Amount)
	assert.Equal(t, "USDC", withdrawal.Asset)

	// The order stays cancelled with an empty budget
	current, err := service.GetOrderForOwner(order.OrderID, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusCancelled, current.Status)
	assert.Equal(t, int64(0), current.RemainingBudget)

	// Withdrawn funds are back in custody
	balance, err := ledger.BalanceOf("alice", "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	// A second withdrawal has nothing left to return
	withdrawal, err = service.WithdrawRemaining(order.OrderID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), withdrawal.Amount)
}

func TestDueOrderListing(t *testing.T) {
	service, ledger := setupService(t)
	require.NoError(t, ledger.TransferIn("alice", "USDC", 1000))

	funded, err := service.CreateOrder("alice", validRequest())
	require.NoError(t, err)
	_, err = service.FundOrder(funded.OrderID, "alice", 300)
	require.NoError(t, err)

	// Unfunded orders are never due: one tranche cannot be covered
	unfunded, err := service.CreateOrder("alice", validRequest())
	require.NoError(t, err)

	// Future orders are not due yet
	future := validRequest()
	future.StartAt = funded.NextEligibleAt.Unix() + 86400*30
	_, err = service.CreateOrder("alice", future)
	require.NoError(t, err)

	due, err := service.Database().ListDueOrders(funded.NextEligibleAt)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, funded.OrderID, due[0].OrderID)
	assert.NotEqual(t, unfunded.OrderID, due[0].OrderID)
}
