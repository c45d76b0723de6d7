// Package storetest holds the behavioural checks every billing.Store backend must pass.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/voice-bridge/billing"
)

// Factory returns an empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) billing.Store

// Run executes the store contract against a fresh store per subtest.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetAccount_Missing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("CreateAccount_Duplicate", func(t *testing.T) { testDuplicate(t, newStore(t)) })
	t.Run("Apply_IncrementsAndAppends", func(t *testing.T) { testApply(t, newStore(t)) })
	t.Run("Apply_Floor", func(t *testing.T) { testFloor(t, newStore(t)) })
	t.Run("Apply_MissingAccount", func(t *testing.T) { testApplyMissing(t, newStore(t)) })
	t.Run("Apply_ConcurrentNoLostUpdates", func(t *testing.T) { testConcurrent(t, newStore(t)) })
	t.Run("ListAccounts", func(t *testing.T) { testList(t, newStore(t)) })
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func entry(typ billing.EntryType, amount string) billing.Entry {
	return billing.Entry{
		ID:     uuid.NewString(),
		Type:   typ,
		Amount: dec(amount),
		Date:   time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC),
	}
}

func testGetMissing(t *testing.T, s billing.Store) {
	_, err := s.GetAccount(context.Background(), "ghost")
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func testDuplicate(t *testing.T, s billing.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, billing.Account{ID: "u1", Balance: dec("1")}))
	assert.ErrorIs(t, s.CreateAccount(ctx, billing.Account{ID: "u1"}), billing.ErrAccountExists)
}

func testApply(t *testing.T, s billing.Store) {
	// GIVEN: An account with balance 1.00
	// WHEN: An SMS spend and a top-up are applied
	// THEN: The balance follows and both entries are kept in order with their fields

	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, billing.Account{ID: "u1", Balance: dec("1.00")}))

	sms := entry(billing.EntrySMS, "-0.05")
	sms.MessageSID = "SM123"
	balance, err := s.Apply(ctx, billing.Mutation{UserID: "u1", Delta: dec("-0.05"), Entry: sms, Floor: billing.ZeroFloor()})
	require.NoError(t, err)
	assert.True(t, dec("0.95").Equal(balance), "got %s", balance)

	top := entry(billing.EntryTopUp, "10.00")
	top.PaymentID = "pay_123"
	balance, err = s.Apply(ctx, billing.Mutation{UserID: "u1", Delta: dec("10.00"), Entry: top})
	require.NoError(t, err)
	assert.True(t, dec("10.95").Equal(balance), "got %s", balance)

	acc, err := s.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, dec("10.95").Equal(acc.Balance))
	require.Len(t, acc.Transactions, 2)

	assert.Equal(t, sms.ID, acc.Transactions[0].ID)
	assert.Equal(t, billing.EntrySMS, acc.Transactions[0].Type)
	assert.True(t, dec("-0.05").Equal(acc.Transactions[0].Amount))
	assert.Equal(t, "SM123", acc.Transactions[0].MessageSID)
	assert.True(t, sms.Date.Equal(acc.Transactions[0].Date))

	assert.Equal(t, billing.EntryTopUp, acc.Transactions[1].Type)
	assert.Equal(t, "pay_123", acc.Transactions[1].PaymentID)
}

func testFloor(t *testing.T, s billing.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, billing.Account{ID: "u1", Balance: dec("0.02")}))

	_, err := s.Apply(ctx, billing.Mutation{
		UserID: "u1",
		Delta:  dec("-0.05"),
		Entry:  entry(billing.EntrySMS, "-0.05"),
		Floor:  billing.ZeroFloor(),
	})
	assert.ErrorIs(t, err, billing.ErrInsufficientBalance)

	acc, err := s.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, dec("0.02").Equal(acc.Balance))
	assert.Empty(t, acc.Transactions)
}

func testApplyMissing(t *testing.T, s billing.Store) {
	_, err := s.Apply(context.Background(), billing.Mutation{UserID: "ghost", Delta: dec("1"), Entry: entry(billing.EntryTopUp, "1")})
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func testConcurrent(t *testing.T, s billing.Store) {
	// GIVEN: An empty account
	// WHEN: Many writers increment it concurrently
	// THEN: No update is lost

	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, billing.Account{ID: "u1", Balance: dec("0")}))

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Apply(ctx, billing.Mutation{UserID: "u1", Delta: dec("0.10"), Entry: entry(billing.EntryTopUp, "0.10")})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	acc, err := s.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, dec("1.00").Equal(acc.Balance), "got %s", acc.Balance)
	assert.Len(t, acc.Transactions, writers)
	assert.True(t, acc.Drift().IsZero())
}

func testList(t *testing.T, s billing.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, billing.Account{
		ID:           "b",
		Balance:      dec("1"),
		Transactions: []billing.Entry{entry(billing.EntryTopUp, "1")},
	}))
	require.NoError(t, s.CreateAccount(ctx, billing.Account{ID: "a", Balance: dec("2")}))

	accounts, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	byID := map[string]billing.Account{}
	for _, a := range accounts {
		byID[a.ID] = a
	}
	assert.Len(t, byID["b"].Transactions, 1)
	assert.True(t, dec("2").Equal(byID["a"].Balance))
}
