package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor drives the scheduler on a fixed period. Ticks can also be
// triggered externally through the internal API; the processor is the
// convenience loop for unattended operation.
type Processor struct {
	scheduler    *Scheduler
	tickInterval time.Duration
}

// NewProcessor creates a processor ticking at the given interval.
func NewProcessor(s *Scheduler, tickInterval time.Duration) *Processor {
	return &Processor{
		scheduler:    s,
		tickInterval: tickInterval,
	}
}

// Start begins the scheduling loop and blocks until the context is cancelled.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "scheduler_processor").Logger()
	logger.Info().Dur("tick_interval", p.tickInterval).Msg("starting scheduler processor")

	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down scheduler processor")
			return
		case <-ticker.C:
			if _, err := p.scheduler.Tick(ctx, time.Now()); err != nil {
				logger.Error().Err(err).Msg("tick failed")
			}
		}
	}
}
