package guard

import (
	"context"
	"fmt"

	"github.com/ksred/dca-api/internal/exchange"
	"github.com/ksred/dca-api/internal/types"
	"github.com/rs/zerolog/log"
)

// bps denominator
const bpsScale = 10000

// PriceGuard computes the lowest acceptable swap output for a trade, based on
// a reference quote from the exchange and a slippage tolerance in basis
// points. Every execution is held to this bound so a manipulated price makes
// the swap revert instead of completing.
type PriceGuard struct {
	exchange exchange.Exchange
}

// NewPriceGuard creates a guard backed by the given exchange's quoting
// capability.
func NewPriceGuard(ex exchange.Exchange) *PriceGuard {
	return &PriceGuard{exchange: ex}
}

// MinimumAcceptableOutput returns floor(quote * (1 - toleranceBps/10000)).
// Fails with ErrQuoteUnavailable when the exchange cannot price the pair and
// ErrInvalidParameters for an out-of-range tolerance.
func (g *PriceGuard) MinimumAcceptableOutput(ctx context.Context, sourceAsset, targetAsset string, inputAmount, toleranceBps int64) (int64, error) {
	if toleranceBps < 0 || toleranceBps >= bpsScale {
		return 0, fmt.Errorf("%w: slippage tolerance %d bps out of range", types.ErrInvalidParameters, toleranceBps)
	}

	quote, err := g.exchange.Quote(ctx, sourceAsset, targetAsset, inputAmount)
	if err != nil {
		return 0, err
	}

	// Integer math floors toward zero, which is the conservative direction
	// for a lower bound. The quotient/remainder split keeps the
	// intermediate products inside int64 for quotes near the type's limit.
	keepBps := bpsScale - toleranceBps
	minOutput := quote/bpsScale*keepBps + quote%bpsScale*keepBps/bpsScale

	log.Debug().
		Str("source_asset", sourceAsset).
		Str("target_asset", targetAsset).
		Int64("input_amount", inputAmount).
		Int64("quote", quote).
		Int64("tolerance_bps", toleranceBps).
		Int64("min_output", minOutput).
		Msg("computed minimum acceptable output")

	return minOutput, nil
}
