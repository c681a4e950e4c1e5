package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/dca-api/internal/dca"
	"github.com/ksred/dca-api/internal/exchange"
	"github.com/ksred/dca-api/internal/guard"
	"github.com/ksred/dca-api/internal/metrics"
	"github.com/ksred/dca-api/internal/types"
	"github.com/rs/zerolog/log"
)

// Engine executes due orders against the exchange, guarded by the price
// guard. It owns the execution state machine: preconditions, the guarded
// swap, and the atomic commit or full rollback of each attempt.
type Engine struct {
	store    *dca.Database
	guard    *guard.PriceGuard
	exchange exchange.Exchange

	slippageBps int64
	swapTimeout time.Duration

	// serializes executions per order across overlapping ticks
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an execution engine with the given slippage tolerance (basis
// points) and swap timeout.
func New(store *dca.Database, priceGuard *guard.PriceGuard, ex exchange.Exchange, slippageBps int64, swapTimeout time.Duration) *Engine {
	return &Engine{
		store:       store,
		guard:       priceGuard,
		exchange:    ex,
		slippageBps: slippageBps,
		swapTimeout: swapTimeout,
		locks:       make(map[string]*sync.Mutex),
	}
}

func (e *Engine) orderLock(orderID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[orderID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[orderID] = lock
	}
	return lock
}

// releaseLock drops a terminal order's lock entry so the map does not grow
// forever. Terminal statuses never revert, so a late caller recreating the
// entry fails the Active precondition before mutating anything.
func (e *Engine) releaseLock(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.locks, orderID)
}

// Execute runs one execution attempt for an order.
//
// Precondition failures (NotFound, Inactive, NotDue, InsufficientBudget)
// return a nil record and the typed error; nothing is recorded and no state
// changes. External failures (quote unavailable, swap rejected, timeout)
// return the failed ExecutionRecord with a nil error: the reservation is
// rolled back, the schedule does not advance, and the order stays eligible
// for retry on the next due tick.
func (e *Engine) Execute(ctx context.Context, orderID string, now time.Time) (*types.ExecutionRecord, error) {
	lock := e.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	logger := log.With().
		Str("component", "execution_engine").
		Str("order_id", orderID).
		Logger()

	order, err := e.store.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, types.ErrNotFound
	}

	// Cancellation is checked here, before any reservation is made.
	if order.Status != types.OrderStatusActive {
		e.releaseLock(orderID)
		return nil, types.ErrInactive
	}
	if now.Before(order.NextEligibleAt) {
		return nil, types.ErrNotDue
	}
	if order.RemainingBudget < order.TrancheAmount {
		return nil, types.ErrInsufficientBudget
	}

	minOutput, err := e.guard.MinimumAcceptableOutput(ctx, order.SourceAsset, order.TargetAsset, order.TrancheAmount, e.slippageBps)
	if err != nil {
		logger.Warn().Err(err).Msg("price guard could not bound the trade")
		return e.recordFailure(order, now, 0, err)
	}

	swapCtx, cancel := context.WithTimeout(ctx, e.swapTimeout)
	defer cancel()

	deadline := now.Add(e.swapTimeout)
	output, err := e.exchange.Swap(swapCtx, order.SourceAsset, order.TargetAsset, order.TrancheAmount, minOutput, deadline)
	if err != nil {
		// Timeouts and rejections roll the reservation back entirely;
		// remaining budget reads as if the attempt never happened.
		logger.Warn().Err(err).Int64("min_output", minOutput).Msg("swap failed, reservation rolled back")
		return e.recordFailure(order, now, minOutput, err)
	}

	record := &types.ExecutionRecord{
		RecordID:     uuid.New().String(),
		OrderID:      order.OrderID,
		ExecutedAt:   now,
		InputAmount:  order.TrancheAmount,
		OutputAmount: output,
		MinOutput:    minOutput,
		Success:      true,
	}

	if err := e.store.RecordExecution(order, record); err != nil {
		// The budget was withdrawn while the swap was in flight; the commit
		// aborted rather than driving the budget negative, so the attempt
		// settles as a failed record.
		if errors.Is(err, types.ErrInsufficientBudget) {
			logger.Warn().Msg("budget withdrawn mid-flight, execution not credited")
			return e.recordFailure(order, now, minOutput, err)
		}
		logger.Error().Err(err).Msg("failed to commit execution")
		return nil, err
	}

	metrics.ExecutionsTotal.WithLabelValues("success").Inc()
	metrics.TrancheInputTotal.Add(float64(record.InputAmount))

	if order.Terminal() {
		e.releaseLock(orderID)
	}

	logger.Info().
		Str("record_id", record.RecordID).
		Int64("input_amount", record.InputAmount).
		Int64("output_amount", record.OutputAmount).
		Int64("min_output", record.MinOutput).
		Str("status", order.Status).
		Time("next_eligible_at", order.NextEligibleAt).
		Msg("tranche executed")

	return record, nil
}

// recordFailure appends a failed execution record without touching any order
// field.
func (e *Engine) recordFailure(order *types.Order, now time.Time, minOutput int64, cause error) (*types.ExecutionRecord, error) {
	record := &types.ExecutionRecord{
		RecordID:      uuid.New().String(),
		OrderID:       order.OrderID,
		ExecutedAt:    now,
		InputAmount:   order.TrancheAmount,
		MinOutput:     minOutput,
		Success:       false,
		FailureReason: cause.Error(),
	}

	if err := e.store.RecordFailure(record); err != nil {
		return nil, err
	}

	metrics.ExecutionsTotal.WithLabelValues("failure").Inc()
	return record, nil
}
