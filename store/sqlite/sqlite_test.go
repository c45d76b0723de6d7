package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/voice-bridge/billing"
	"github.com/warp/voice-bridge/billing/storetest"
	"github.com/warp/voice-bridge/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) billing.Store { return newTestStore(t) })
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	// GIVEN: A file-backed store with one debited account
	// WHEN: The store is closed and reopened
	// THEN: Balance and entries are still there

	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	store, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, store.CreateAccount(ctx, billing.Account{ID: "u1", Balance: decimal.RequireFromString("1.00")}))
	_, err = store.Apply(ctx, billing.Mutation{
		UserID: "u1",
		Delta:  decimal.RequireFromString("-0.05"),
		Entry:  billing.Entry{ID: "e1", Type: billing.EntrySMS, Amount: decimal.RequireFromString("-0.05"), MessageSID: "SM1"},
		Floor:  billing.ZeroFloor(),
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	acc, err := reopened.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "0.95", acc.Balance.StringFixed(2))
	require.Len(t, acc.Transactions, 1)
	assert.Equal(t, "SM1", acc.Transactions[0].MessageSID)
}

func TestStore_CorruptEntryDate_Errors(t *testing.T) {
	// GIVEN: An account whose entry row carries an unparseable date
	// WHEN: GetAccount reads it back
	// THEN: The read fails naming the entry instead of returning a zero date

	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	store, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, store.CreateAccount(ctx, billing.Account{ID: "u1", Balance: decimal.RequireFromString("1.00")}))
	require.NoError(t, store.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		INSERT INTO entries (id, user_id, entry_type, amount, date)
		VALUES ('e-bad', 'u1', 'TOPUP', '1.00', 'yesterday')
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	_, err = reopened.GetAccount(ctx, "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "e-bad")
	assert.Contains(t, err.Error(), "yesterday")
}
