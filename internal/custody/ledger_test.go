package custody

import (
	"testing"

	"github.com/ksred/dca-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Balance{}))
	return db
}

func TestLedgerTransfers(t *testing.T) {
	ledger := NewLedger(setupTestDB(t))

	// Missing rows read as zero
	balance, err := ledger.BalanceOf("alice", "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	require.NoError(t, ledger.TransferIn("alice", "USDC", 1000))
	require.NoError(t, ledger.TransferIn("alice", "USDC", 500))

	balance, err = ledger.BalanceOf("alice", "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), balance)

	require.NoError(t, ledger.TransferOut("alice", "USDC", 400))

	balance, err = ledger.BalanceOf("alice", "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(1100), balance)
}

func TestLedgerInsufficientFunds(t *testing.T) {
	ledger := NewLedger(setupTestDB(t))

	// No balance row at all
	err := ledger.TransferOut("bob", "USDC", 100)
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)

	require.NoError(t, ledger.TransferIn("bob", "USDC", 50))

	err = ledger.TransferOut("bob", "USDC", 100)
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)

	// A rejected debit leaves the balance untouched
	balance, err := ledger.BalanceOf("bob", "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)
}

func TestLedgerRejectsNonPositiveAmounts(t *testing.T) {
	ledger := NewLedger(setupTestDB(t))

	assert.ErrorIs(t, ledger.TransferIn("carol", "USDC", 0), types.ErrInvalidParameters)
	assert.ErrorIs(t, ledger.TransferIn("carol", "USDC", -5), types.ErrInvalidParameters)
	assert.ErrorIs(t, ledger.TransferOut("carol", "USDC", 0), types.ErrInvalidParameters)
}

func TestLedgerBalancesAreIsolated(t *testing.T) {
	ledger := NewLedger(setupTestDB(t))

	require.NoError(t, ledger.TransferIn("alice", "USDC", 100))
	require.NoError(t, ledger.TransferIn("alice", "WETH", 200))
	require.NoError(t, ledger.TransferIn("bob", "USDC", 300))

	tests := []struct {
		owner    string
		asset    string
		expected int64
	}{
		{"alice", "USDC", 100},
		{"alice", "WETH", 200},
		{"bob", "USDC", 300},
		{"bob", "WETH", 0},
	}

	for _, tc := range tests {
		balance, err := ledger.BalanceOf(tc.owner, tc.asset)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, balance, "%s/%s", tc.owner, tc.asset)
	}
}
