package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/ksred/dca-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deterministicRouter removes the simulated market noise so fills equal the
// reference quote exactly.
func deterministicRouter() *Router {
	r := NewRouter("0xrouter")
	r.MinLatency = 0
	r.MaxLatency = 0
	r.SuccessRate = 1
	r.PriceVariance = 0
	return r
}

func TestRouterQuote(t *testing.T) {
	r := deterministicRouter()
	r.SetRate("USDC", "WETH", 0.5)

	quote, err := r.Quote(context.Background(), "USDC", "WETH", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(500), quote)
}

func TestRouterQuoteUnknownPair(t *testing.T) {
	r := deterministicRouter()

	_, err := r.Quote(context.Background(), "FOO", "BAR", 1000)
	assert.ErrorIs(t, err, types.ErrQuoteUnavailable)
}

func TestRouterSwapHonorsMinOutput(t *testing.T) {
	r := deterministicRouter()
	r.SetRate("USDC", "WETH", 2)

	deadline := time.Now().Add(time.Minute)

	// Fill of 200 clears a bound of 200
	output, err := r.Swap(context.Background(), "USDC", "WETH", 100, 200, deadline)
	require.NoError(t, err)
	assert.Equal(t, int64(200), output)

	// A bound above the achievable fill reverts the swap
	_, err = r.Swap(context.Background(), "USDC", "WETH", 100, 201, deadline)
	assert.ErrorIs(t, err, types.ErrSwapFailed)
}

func TestRouterSwapDeadlineExpired(t *testing.T) {
	r := deterministicRouter()
	r.SetRate("USDC", "WETH", 2)

	_, err := r.Swap(context.Background(), "USDC", "WETH", 100, 0, time.Now().Add(-time.Second))
	assert.ErrorIs(t, err, types.ErrSwapFailed)
}

func TestRouterAddressIsImmutable(t *testing.T) {
	r := NewRouter("0x3bFA4769FB09eefC5a80d6E87c3B9C650f7Ae48E")
	assert.Equal(t, "0x3bFA4769FB09eefC5a80d6E87c3B9C650f7Ae48E", r.Address())
}
