package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/dca-api/internal/custody"
	"github.com/ksred/dca-api/internal/dca"
	"github.com/ksred/dca-api/internal/engine"
	"github.com/ksred/dca-api/internal/exchange"
	"github.com/ksred/dca-api/internal/guard"
	"github.com/ksred/dca-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupScheduler(t *testing.T) (*Scheduler, *dca.Database) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Order{}, &types.ExecutionRecord{}, &types.Balance{}))

	ledger := custody.NewLedger(db)
	store := dca.NewDatabase(db, ledger)

	router := exchange.NewRouter("0xrouter")
	router.MinLatency = 0
	router.MaxLatency = 0
	router.SuccessRate = 1
	router.PriceVariance = 0
	router.SetRate("USDC", "WETH", 2)

	eng := engine.New(store, guard.NewPriceGuard(router), router, 100, time.Second)
	return New(store, eng, 3), store
}

func seedOrder(t *testing.T, store *dca.Database, owner, source, target string, start time.Time) *types.Order {
	t.Helper()
	order := &types.Order{
		OrderID:         uuid.New().String(),
		Owner:           owner,
		SourceAsset:     source,
		TargetAsset:     target,
		Side:            types.SideBuy,
		TrancheAmount:   100,
		IntervalSeconds: 3600,
		RemainingBudget: 500,
		TotalFunded:     500,
		NextEligibleAt:  start,
		Status:          types.OrderStatusActive,
	}
	require.NoError(t, store.CreateOrder(order))
	return order
}

func TestTickIsolatesFailures(t *testing.T) {
	scheduler, store := setupScheduler(t)
	start := time.Now().Truncate(time.Second)

	var failing *types.Order
	orderIDs := make(map[string]bool)
	for i := 0; i < 10; i++ {
		source, target := "USDC", "WETH"
		if i == 3 {
			// No reference price for this pair: quote fails, execution is
			// recorded as failed
			source, target = "FOO", "BAR"
		}
		order := seedOrder(t, store, fmt.Sprintf("owner-%d", i), source, target, start)
		orderIDs[order.OrderID] = true
		if i == 3 {
			failing = order
		}
	}

	records, err := scheduler.Tick(context.Background(), start)
	require.NoError(t, err)
	require.Len(t, records, 10)

	succeeded, failed := 0, 0
	seen := make(map[string]int)
	for _, record := range records {
		seen[record.OrderID]++
		assert.True(t, orderIDs[record.OrderID])
		if record.Success {
			succeeded++
		} else {
			failed++
			assert.Equal(t, failing.OrderID, record.OrderID)
		}
	}

	assert.Equal(t, 9, succeeded)
	assert.Equal(t, 1, failed)

	// Each order is attempted at most once per tick
	for orderID, count := range seen {
		assert.Equal(t, 1, count, "order %s attempted more than once", orderID)
	}

	// The failing order rolled back and stays due for the next tick
	current, err := store.GetOrder(failing.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), current.RemainingBudget)
	assert.Equal(t, start.Unix(), current.NextEligibleAt.Unix())
	assert.Equal(t, types.OrderStatusActive, current.Status)
}

func TestTickSkipsOrdersNotDue(t *testing.T) {
	scheduler, store := setupScheduler(t)
	start := time.Now().Truncate(time.Second)

	seedOrder(t, store, "alice", "USDC", "WETH", start.Add(time.Hour))

	records, err := scheduler.Tick(context.Background(), start)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTickReschedulesSuccessfulOrders(t *testing.T) {
	scheduler, store := setupScheduler(t)
	start := time.Now().Truncate(time.Second)

	order := seedOrder(t, store, "alice", "USDC", "WETH", start)

	records, err := scheduler.Tick(context.Background(), start)
	require.NoError(t, err)
	require.Len(t, records, 1)

	// The same tick time again finds nothing due
	records, err = scheduler.Tick(context.Background(), start)
	require.NoError(t, err)
	assert.Empty(t, records)

	// One interval later the order runs again
	records, err = scheduler.Tick(context.Background(), start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, order.OrderID, records[0].OrderID)
}

func TestTickSkipsCancelledOrders(t *testing.T) {
	scheduler, store := setupScheduler(t)
	start := time.Now().Truncate(time.Second)

	order := seedOrder(t, store, "alice", "USDC", "WETH", start)
	_, err := store.CancelOrder(order.OrderID, "alice")
	require.NoError(t, err)

	records, err := scheduler.Tick(context.Background(), start)
	require.NoError(t, err)
	assert.Empty(t, records)
}
