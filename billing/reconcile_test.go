package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/voice-bridge/billing"
	memstore "github.com/warp/voice-bridge/billing/store"
)

func TestReconciler_ReportsOnlyDriftedAccounts(t *testing.T) {
	// GIVEN: One consistent account and one whose balance was set out-of-band
	// WHEN: The reconciler runs
	// THEN: Only the inconsistent one is reported, with the right drift

	store := memstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, billing.Account{
		ID:           "good",
		Balance:      dec("1.00"),
		Transactions: []billing.Entry{billing.NewTopUpEntry(dec("1.00"), "p")},
	}))
	seedAccount(t, store, "bad", "5.00")

	r := billing.NewReconciler(store, nil)
	report, err := r.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Accounts)
	require.Len(t, report.Drifted, 1)
	assert.Equal(t, "bad", report.Drifted[0].UserID)
	assertDecimal(t, "5.00", report.Drifted[0].Drift)
	assertDecimal(t, "0", report.Drifted[0].LedgerSum)
	assert.Same(t, report, r.LastReport())
}

func TestReconciler_LastReport_NilBeforeRun(t *testing.T) {
	r := billing.NewReconciler(memstore.NewMemory(), nil)
	assert.Nil(t, r.LastReport())
}

func TestReconciler_StartRunsImmediately(t *testing.T) {
	store := memstore.NewMemory()
	seedAccount(t, store, "u1", "1")

	r := billing.NewReconciler(store, nil)
	r.Interval = time.Hour
	r.Start()
	defer r.Stop()

	assert.Eventually(t, func() bool { return r.LastReport() != nil }, time.Second, 10*time.Millisecond)
}

func TestReconciler_Disabled_DoesNotStart(t *testing.T) {
	r := billing.NewReconciler(memstore.NewMemory(), nil)
	r.Enabled = false
	r.Start()
	r.Stop()

	assert.Nil(t, r.LastReport())
}
