package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/voice-bridge/billing"
	memstore "github.com/warp/voice-bridge/billing/store"
	"github.com/warp/voice-bridge/billing/storetest"
)

type recordingPublisher struct {
	events []billing.EntryAppended
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e billing.EntryAppended) error {
	p.events = append(p.events, e)
	return p.err
}

func TestLedger_ApplyDelta_StampsEntry(t *testing.T) {
	// GIVEN: A ledger with a fixed clock
	// WHEN: A delta is applied
	// THEN: The entry gets a fresh id, the clock's UTC time and amount == delta

	store := memstore.NewMemory()
	seedAccount(t, store, "u1", "1.00")
	ledger := billing.NewLedger(store, nil, nil)
	fixed := time.Date(2025, time.March, 10, 12, 30, 0, 0, time.FixedZone("AST", 3*3600))
	ledger.Now = func() time.Time { return fixed }

	balance, err := ledger.ApplyDelta(context.Background(), "u1", dec("2.00"), billing.Entry{Type: billing.EntryTopUp, PaymentID: "p"})
	require.NoError(t, err)
	assertDecimal(t, "3.00", balance)

	acc := loadAccount(t, store, "u1")
	require.Len(t, acc.Transactions, 1)
	e := acc.Transactions[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, fixed.UTC(), e.Date)
	assert.Equal(t, "2025-03-10T09:30:00.000Z", e.DateString())
	assertDecimal(t, "2.00", e.Amount)
}

func TestLedger_EntryIDsAreUnique(t *testing.T) {
	store := memstore.NewMemory()
	seedAccount(t, store, "u1", "0")
	ledger := billing.NewLedger(store, nil, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := ledger.ApplyDelta(ctx, "u1", dec("1"), billing.NewTopUpEntry(dec("1"), ""))
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	for _, e := range loadAccount(t, store, "u1").Transactions {
		assert.False(t, seen[e.ID], "duplicate entry id %s", e.ID)
		seen[e.ID] = true
	}
}

func TestLedger_Debit_RejectedBelowZero(t *testing.T) {
	store := memstore.NewMemory()
	seedAccount(t, store, "u1", "0.03")
	ledger := billing.NewLedger(store, nil, nil)

	_, err := ledger.Debit(context.Background(), &billing.Reservation{UserID: "u1", Cost: dec("0.05")}, billing.NewSMSEntry(dec("0.05"), "SM1"))

	assert.ErrorIs(t, err, billing.ErrInsufficientBalance)
	assert.NotErrorIs(t, err, billing.ErrWriteFailed)
	acc := loadAccount(t, store, "u1")
	assertDecimal(t, "0.03", acc.Balance)
	assert.Empty(t, acc.Transactions)
}

func TestLedger_ApplyDelta_Unconditional(t *testing.T) {
	// Top-ups and manual corrections carry no floor.
	store := memstore.NewMemory()
	seedAccount(t, store, "u1", "0")
	ledger := billing.NewLedger(store, nil, nil)

	balance, err := ledger.ApplyDelta(context.Background(), "u1", dec("-1"), billing.Entry{Type: billing.EntryTopUp})
	require.NoError(t, err)
	assertDecimal(t, "-1", balance)
}

func TestLedger_StoreError_WrappedAsWriteFailed(t *testing.T) {
	store := storetest.NewFaulty(memstore.NewMemory())
	seedAccount(t, store, "u1", "1")
	store.FailApply(errors.New("unavailable"))
	ledger := billing.NewLedger(store, nil, nil)

	_, err := ledger.ApplyDelta(context.Background(), "u1", dec("1"), billing.Entry{Type: billing.EntryTopUp})

	assert.ErrorIs(t, err, billing.ErrWriteFailed)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestLedger_MissingUser(t *testing.T) {
	ledger := billing.NewLedger(memstore.NewMemory(), nil, nil)
	ctx := context.Background()

	_, err := ledger.ApplyDelta(ctx, "ghost", dec("1"), billing.Entry{})
	assert.ErrorIs(t, err, billing.ErrNotFound)

	_, err = ledger.ApplyDelta(ctx, "", dec("1"), billing.Entry{})
	assert.ErrorIs(t, err, billing.ErrInvalidInput)

	_, err = ledger.Account(ctx, "ghost")
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestLedger_PublishesEvents(t *testing.T) {
	// GIVEN: A publisher that fails
	// WHEN: A delta is applied
	// THEN: The write still succeeds and the event carries the new balance

	store := memstore.NewMemory()
	seedAccount(t, store, "u1", "1")
	pub := &recordingPublisher{err: errors.New("broker down")}
	ledger := billing.NewLedger(store, pub, nil)

	balance, err := ledger.ApplyDelta(context.Background(), "u1", dec("0.5"), billing.NewTopUpEntry(dec("0.5"), "p"))
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "u1", pub.events[0].UserID)
	assert.True(t, balance.Equal(pub.events[0].Balance))
	assert.Equal(t, billing.EntryTopUp, pub.events[0].Entry.Type)
}

func TestLedger_FailedWrite_NoEvent(t *testing.T) {
	store := memstore.NewMemory()
	seedAccount(t, store, "u1", "0")
	pub := &recordingPublisher{}
	ledger := billing.NewLedger(store, pub, nil)

	_, err := ledger.Debit(context.Background(), &billing.Reservation{UserID: "u1", Cost: dec("1")}, billing.NewSMSEntry(dec("1"), "SM"))
	require.Error(t, err)
	assert.Empty(t, pub.events)
}

func TestEntryConstructors(t *testing.T) {
	sms := billing.NewSMSEntry(dec("0.05"), "SM1")
	assert.Equal(t, billing.EntrySMS, sms.Type)
	assertDecimal(t, "-0.05", sms.Amount)
	assert.Equal(t, "SM1", sms.MessageSID)

	top := billing.NewTopUpEntry(dec("3"), "")
	assert.Equal(t, billing.ManualPaymentRef, top.PaymentID)

	parsed, err := billing.ParseDate("2025-03-10T09:30:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC), parsed)
}
