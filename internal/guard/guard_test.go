package guard

import (
	"context"
	"testing"
	"time"

	"github.com/ksred/dca-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubExchange implements exchange.Exchange with canned quotes.
type stubExchange struct {
	quote    int64
	quoteErr error
}

func (s *stubExchange) Quote(_ context.Context, _, _ string, _ int64) (int64, error) {
	return s.quote, s.quoteErr
}

func (s *stubExchange) Swap(_ context.Context, _, _ string, _, _ int64, _ time.Time) (int64, error) {
	panic("not used")
}

func TestMinimumAcceptableOutput(t *testing.T) {
	tests := []struct {
		name         string
		quote        int64
		toleranceBps int64
		expected     int64
	}{
		{
			name:         "one percent tolerance",
			quote:        10000,
			toleranceBps: 100,
			expected:     9900,
		},
		{
			name:         "zero tolerance keeps the full quote",
			quote:        12345,
			toleranceBps: 0,
			expected:     12345,
		},
		{
			name:         "result floors toward zero",
			quote:        999,
			toleranceBps: 50, // 999 * 9950 / 10000 = 994.0005
			expected:     994,
		},
		{
			name:         "small quote with large tolerance",
			quote:        3,
			toleranceBps: 5000,
			expected:     1,
		},
		{
			name:         "quote near the int64 limit does not overflow",
			quote:        9_000_000_000_000_000_000,
			toleranceBps: 100,
			expected:     8_910_000_000_000_000_000,
		},
		{
			name:         "large quote with remainder floors exactly",
			quote:        9_000_000_000_000_000_003,
			toleranceBps: 1, // remainder part 3 * 9999 / 10000 floors to 2
			expected:     8_999_100_000_000_000_002,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := NewPriceGuard(&stubExchange{quote: tc.quote})
			minOutput, err := g.MinimumAcceptableOutput(context.Background(), "USDC", "WETH", 100, tc.toleranceBps)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, minOutput)
		})
	}
}

func TestMinimumAcceptableOutputQuoteUnavailable(t *testing.T) {
	g := NewPriceGuard(&stubExchange{quoteErr: types.ErrQuoteUnavailable})

	_, err := g.MinimumAcceptableOutput(context.Background(), "FOO", "BAR", 100, 100)
	assert.ErrorIs(t, err, types.ErrQuoteUnavailable)
}

func TestMinimumAcceptableOutputToleranceRange(t *testing.T) {
	g := NewPriceGuard(&stubExchange{quote: 1000})

	_, err := g.MinimumAcceptableOutput(context.Background(), "USDC", "WETH", 100, -1)
	assert.ErrorIs(t, err, types.ErrInvalidParameters)

	_, err = g.MinimumAcceptableOutput(context.Background(), "USDC", "WETH", 100, 10000)
	assert.ErrorIs(t, err, types.ErrInvalidParameters)
}
