package main

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/voice-bridge/billing"
	memstore "github.com/warp/voice-bridge/billing/store"
)

func TestAccountIDs(t *testing.T) {
	assert.Equal(t, []string{"alice", "load-0001", "load-0002"}, accountIDs("alice", "load", 2))
	assert.Empty(t, accountIDs("", "user", 0))
}

func TestSeed_OpeningBalanceIsLedgered(t *testing.T) {
	// GIVEN: An empty store and an opening balance of 5
	// WHEN: Two accounts are seeded, one of them twice
	// THEN: Both exist with balance 5, a single TOPUP entry each, and no drift

	store := memstore.NewMemory()
	ledger := billing.NewLedger(store, nil, nil)
	ctx := context.Background()
	opening := decimal.RequireFromString("5")

	created, skipped, err := seed(ctx, ledger, []string{"a", "b", "a"}, opening)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 1, skipped)

	for _, id := range []string{"a", "b"} {
		acc, err := store.GetAccount(ctx, id)
		require.NoError(t, err)
		assert.True(t, acc.Balance.Equal(opening))
		require.Len(t, acc.Transactions, 1)
		assert.Equal(t, "opening", acc.Transactions[0].PaymentID)
		assert.True(t, acc.Drift().IsZero())
	}
}

func TestSeed_ZeroBalance_NoEntry(t *testing.T) {
	store := memstore.NewMemory()
	ledger := billing.NewLedger(store, nil, nil)

	_, _, err := seed(context.Background(), ledger, []string{"z"}, decimal.Zero)
	require.NoError(t, err)

	acc, err := store.GetAccount(context.Background(), "z")
	require.NoError(t, err)
	assert.Empty(t, acc.Transactions)
}
