package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ksred/dca-api/internal/dca"
	"github.com/ksred/dca-api/internal/engine"
	"github.com/ksred/dca-api/internal/metrics"
	"github.com/ksred/dca-api/internal/types"
	"github.com/rs/zerolog/log"
)

// Scheduler enumerates due orders and drives the execution engine. Each order
// is attempted at most once per tick, and one order's failure never blocks
// the others.
type Scheduler struct {
	store       *dca.Database
	engine      *engine.Engine
	workerCount int
}

// New creates a scheduler running at most workerCount executions
// concurrently within a tick.
func New(store *dca.Database, eng *engine.Engine, workerCount int) *Scheduler {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Scheduler{
		store:       store,
		engine:      eng,
		workerCount: workerCount,
	}
}

// Tick runs one discrete scheduling pass at the given time and returns the
// execution records produced, successful and failed alike. Ordering across
// orders within a tick is unspecified.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) ([]types.ExecutionRecord, error) {
	logger := log.With().Str("component", "scheduler").Time("now", now).Logger()
	started := time.Now()

	due, err := s.store.ListDueOrders(now)
	if err != nil {
		return nil, err
	}

	metrics.TicksTotal.Inc()
	metrics.DueOrders.Set(float64(len(due)))
	logger.Info().Int("due_count", len(due)).Msg("processing due orders")

	var (
		mu      sync.Mutex
		records []types.ExecutionRecord
		wg      sync.WaitGroup
		sem     = make(chan struct{}, s.workerCount)
	)

	for _, order := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(orderID string) {
			defer wg.Done()
			defer func() { <-sem }()

			record, err := s.engine.Execute(ctx, orderID, now)
			if err != nil {
				// Precondition races are expected: the order may have been
				// cancelled or executed by an overlapping tick after it was
				// listed. They are skips, not failures.
				if errors.Is(err, types.ErrNotDue) ||
					errors.Is(err, types.ErrInactive) ||
					errors.Is(err, types.ErrInsufficientBudget) ||
					errors.Is(err, types.ErrNotFound) {
					logger.Debug().Err(err).Str("order_id", orderID).Msg("order skipped")
					return
				}
				logger.Error().Err(err).Str("order_id", orderID).Msg("execution errored")
				return
			}

			mu.Lock()
			records = append(records, *record)
			mu.Unlock()
		}(order.OrderID)
	}

	wg.Wait()

	metrics.TickDuration.Observe(time.Since(started).Seconds())
	logger.Info().
		Int("record_count", len(records)).
		Dur("elapsed", time.Since(started)).
		Msg("tick complete")

	return records, nil
}
