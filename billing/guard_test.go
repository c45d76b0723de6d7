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

func TestGuard_BalanceCoversCost_Allowed(t *testing.T) {
	store := memstore.NewMemory()
	seedAccount(t, store, "u1", "1.00")
	guard := billing.NewGuard(store)

	r, err := guard.CheckAndReserve(context.Background(), "u1", dec("0.05"))
	require.NoError(t, err)
	defer r.Release()

	assert.True(t, r.Allowed)
	assertDecimal(t, "1.00", r.CurrentBalance)
}

func TestGuard_BalanceBelowCost_Denied(t *testing.T) {
	store := memstore.NewMemory()
	seedAccount(t, store, "u1", "0.02")
	guard := billing.NewGuard(store)

	r, err := guard.CheckAndReserve(context.Background(), "u1", dec("0.05"))
	require.NoError(t, err)

	assert.False(t, r.Allowed)
	assertDecimal(t, "0.02", r.CurrentBalance)
}

func TestGuard_ZeroCost_AlwaysAllowed(t *testing.T) {
	store := memstore.NewMemory()
	seedAccount(t, store, "u1", "0")
	guard := billing.NewGuard(store)

	r, err := guard.CheckAndReserve(context.Background(), "u1", dec("0"))
	require.NoError(t, err)
	defer r.Release()
	assert.True(t, r.Allowed)
}

func TestGuard_UnknownUser_NotFound(t *testing.T) {
	guard := billing.NewGuard(memstore.NewMemory())

	_, err := guard.CheckAndReserve(context.Background(), "ghost", dec("0.05"))
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestGuard_InvalidArguments(t *testing.T) {
	guard := billing.NewGuard(memstore.NewMemory())
	ctx := context.Background()

	_, err := guard.CheckAndReserve(ctx, "", dec("0.05"))
	assert.ErrorIs(t, err, billing.ErrInvalidInput)

	_, err = guard.CheckAndReserve(ctx, "u1", dec("-1"))
	assert.ErrorIs(t, err, billing.ErrInvalidInput)
}

func TestGuard_HeldReservation_BlocksSameAccount(t *testing.T) {
	// GIVEN: An allowed reservation that has not been released
	// WHEN: A second check on the same account runs with a short deadline
	// THEN: It times out; after Release it goes through

	store := memstore.NewMemory()
	seedAccount(t, store, "u1", "1.00")
	guard := billing.NewGuard(store)

	first, err := guard.CheckAndReserve(context.Background(), "u1", dec("0.05"))
	require.NoError(t, err)
	require.True(t, first.Allowed)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = guard.CheckAndReserve(ctx, "u1", dec("0.05"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	first.Release()
	first.Release() // idempotent

	second, err := guard.CheckAndReserve(context.Background(), "u1", dec("0.05"))
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	second.Release()
}

func TestGuard_DeniedReservation_DoesNotHoldLock(t *testing.T) {
	store := memstore.NewMemory()
	seedAccount(t, store, "u1", "0.01")
	guard := billing.NewGuard(store)

	denied, err := guard.CheckAndReserve(context.Background(), "u1", dec("0.05"))
	require.NoError(t, err)
	require.False(t, denied.Allowed)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = guard.CheckAndReserve(ctx, "u1", dec("0.01"))
	assert.NoError(t, err)
}

func TestGuard_OtherAccount_NotBlocked(t *testing.T) {
	store := memstore.NewMemory()
	seedAccount(t, store, "a", "1.00")
	seedAccount(t, store, "b", "1.00")
	guard := billing.NewGuard(store)

	held, err := guard.CheckAndReserve(context.Background(), "a", dec("0.05"))
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r, err := guard.CheckAndReserve(ctx, "b", dec("0.05"))
	require.NoError(t, err)
	r.Release()
}
