package store_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/voice-bridge/billing"
	"github.com/warp/voice-bridge/billing/store"
	"github.com/warp/voice-bridge/billing/storetest"
)

func TestMemory_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) billing.Store { return store.NewMemory() })
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateAccount(ctx, billing.Account{ID: "u1", Balance: decimal.NewFromInt(1)}))

	acc, err := m.GetAccount(ctx, "u1")
	require.NoError(t, err)
	acc.Balance = decimal.NewFromInt(100)
	acc.Transactions = append(acc.Transactions, billing.Entry{ID: "x"})

	again, err := m.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, again.Balance.Equal(decimal.NewFromInt(1)))
	assert.Empty(t, again.Transactions)
}

func TestMemory_DuplicateAccount(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateAccount(ctx, billing.Account{ID: "u1"}))
	assert.ErrorIs(t, m.CreateAccount(ctx, billing.Account{ID: "u1"}), billing.ErrAccountExists)
}

func TestMemory_ListAccounts_SortedByID(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, m.CreateAccount(ctx, billing.Account{ID: id}))
	}

	accounts, err := m.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, "a", accounts[0].ID)
	assert.Equal(t, "c", accounts[2].ID)
}
