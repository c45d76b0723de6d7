package storetest

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/voice-bridge/billing"
)

// Faulty wraps a store with injectable failures: failed writes, and accounts
// that disappear between a read and a write.
type Faulty struct {
	billing.Store

	mu       sync.Mutex
	applyErr error
	removed  map[string]bool
}

// NewFaulty wraps inner. Until configured it behaves exactly like inner.
func NewFaulty(inner billing.Store) *Faulty {
	return &Faulty{Store: inner, removed: make(map[string]bool)}
}

// FailApply makes every following Apply return err. A nil err clears it.
func (f *Faulty) FailApply(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyErr = err
}

// Remove hides an account from every following read and write.
func (f *Faulty) Remove(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed[userID] = true
}

func (f *Faulty) GetAccount(ctx context.Context, userID string) (*billing.Account, error) {
	if f.isRemoved(userID) {
		return nil, billing.ErrNotFound
	}
	return f.Store.GetAccount(ctx, userID)
}

func (f *Faulty) Apply(ctx context.Context, m billing.Mutation) (decimal.Decimal, error) {
	f.mu.Lock()
	applyErr, removed := f.applyErr, f.removed[m.UserID]
	f.mu.Unlock()

	if applyErr != nil {
		return decimal.Zero, applyErr
	}
	if removed {
		return decimal.Zero, billing.ErrNotFound
	}
	return f.Store.Apply(ctx, m)
}

func (f *Faulty) isRemoved(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.removed[userID]
}
