package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ksred/dca-api/internal/types"
	"github.com/rs/zerolog/log"
)

// Exchange is the price-discovery and swap-execution collaborator. The engine
// treats every call as blocking and externally confirmed; a call that does not
// return within the caller's deadline is a failed attempt.
type Exchange interface {
	// Quote returns the expected output of converting amount of sourceAsset
	// into targetAsset at the current reference price.
	Quote(ctx context.Context, sourceAsset, targetAsset string, amount int64) (int64, error)

	// Swap converts amount of sourceAsset into targetAsset, failing rather
	// than completing below minOutput or past the deadline.
	Swap(ctx context.Context, sourceAsset, targetAsset string, amount, minOutput int64, deadline time.Time) (int64, error)
}

// Router simulates a DEX router bound to a fixed router address. The address
// is provisioning-time configuration: set once at construction, immutable, and
// part of the router's identity.
type Router struct {
	address string

	mu    sync.RWMutex
	rates map[string]float64 // "SOURCE/TARGET" -> units of target per unit of source

	MinLatency    int // in milliseconds
	MaxLatency    int
	SuccessRate   float64 // 0-1, probability a swap is accepted at all
	PriceVariance float64 // max fractional drift between quote and fill
}

// NewRouter creates a simulated router at the given address with default
// market behavior.
func NewRouter(address string) *Router {
	return &Router{
		address:       address,
		rates:         make(map[string]float64),
		MinLatency:    5,
		MaxLatency:    30,
		SuccessRate:   0.95,
		PriceVariance: 0.02,
	}
}

// Address returns the router address the instance was provisioned with.
func (r *Router) Address() string {
	return r.address
}

// SetRate sets the reference price for a pair, in units of target per unit of
// source.
func (r *Router) SetRate(sourceAsset, targetAsset string, rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[pairKey(sourceAsset, targetAsset)] = rate
}

func (r *Router) rate(sourceAsset, targetAsset string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rate, ok := r.rates[pairKey(sourceAsset, targetAsset)]
	return rate, ok
}

// Quote implements Exchange. Fails with ErrQuoteUnavailable for unknown pairs.
func (r *Router) Quote(ctx context.Context, sourceAsset, targetAsset string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	rate, ok := r.rate(sourceAsset, targetAsset)
	if !ok {
		log.Warn().
			Str("router", r.address).
			Str("source_asset", sourceAsset).
			Str("target_asset", targetAsset).
			Msg("no reference price for pair")
		return 0, types.ErrQuoteUnavailable
	}

	return int64(float64(amount) * rate), nil
}

// Swap implements Exchange. The simulated fill price drifts randomly around
// the reference quote; fills below minOutput are rejected, which is what the
// price guard relies on.
func (r *Router) Swap(ctx context.Context, sourceAsset, targetAsset string, amount, minOutput int64, deadline time.Time) (int64, error) {
	logger := log.With().
		Str("router", r.address).
		Str("source_asset", sourceAsset).
		Str("target_asset", targetAsset).
		Int64("amount", amount).
		Int64("min_output", minOutput).
		Logger()

	logger.Info().Msg("attempting swap")

	// Simulate network and confirmation latency
	if r.MaxLatency > r.MinLatency {
		latency := rand.Intn(r.MaxLatency-r.MinLatency+1) + r.MinLatency
		select {
		case <-time.After(time.Duration(latency) * time.Millisecond):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	if !deadline.IsZero() && time.Now().After(deadline) {
		logger.Warn().Time("deadline", deadline).Msg("swap deadline expired")
		return 0, fmt.Errorf("%w: deadline expired", types.ErrSwapFailed)
	}

	rate, ok := r.rate(sourceAsset, targetAsset)
	if !ok {
		return 0, types.ErrQuoteUnavailable
	}

	if rand.Float64() > r.SuccessRate {
		logger.Warn().Float64("success_rate", r.SuccessRate).Msg("swap rejected by venue")
		return 0, fmt.Errorf("%w: insufficient liquidity", types.ErrSwapFailed)
	}

	// Fill price drifts around the reference quote
	drift := 1.0
	if r.PriceVariance > 0 {
		drift = 1 + (rand.Float64()*2*r.PriceVariance - r.PriceVariance)
	}
	output := int64(float64(amount) * rate * drift)

	if output < minOutput {
		logger.Warn().
			Int64("output", output).
			Msg("fill below minimum output, swap reverted")
		return 0, fmt.Errorf("%w: output %d below minimum %d", types.ErrSwapFailed, output, minOutput)
	}

	logger.Info().Int64("output", output).Msg("swap executed")
	return output, nil
}

func pairKey(sourceAsset, targetAsset string) string {
	return sourceAsset + "/" + targetAsset
}
