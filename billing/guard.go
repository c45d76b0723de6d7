package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SPEND GUARD
// =============================================================================

// Guard answers "does this user have enough balance for an action that is about
// to be taken". The check and the later debit are separated by the side effect
// (sending a message), so a passing check holds a per-account lock until the
// reservation is released. Within one process two spends against the same
// account are therefore serialised from check to debit; across processes the
// conditional write in Ledger.Debit is the backstop.
type Guard struct {
	Store Store

	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	sem  chan struct{}
	refs int
}

// NewGuard creates a guard reading balances from store.
func NewGuard(store Store) *Guard {
	return &Guard{
		Store: store,
		locks: make(map[string]*accountLock),
	}
}

// Reservation is the outcome of CheckAndReserve. When Allowed is true the
// account stays locked until Release is called.
type Reservation struct {
	UserID         string
	Cost           decimal.Decimal
	Allowed        bool
	CurrentBalance decimal.Decimal

	once    sync.Once
	release func()
}

// Release unlocks the account. Safe to call more than once.
func (r *Reservation) Release() {
	r.once.Do(func() {
		if r.release != nil {
			r.release()
		}
	})
}

// CheckAndReserve reads the user's balance and reports whether it covers cost.
// Returns ErrNotFound when the user does not exist. A denied reservation is
// returned already released.
func (g *Guard) CheckAndReserve(ctx context.Context, userID string, cost decimal.Decimal) (*Reservation, error) {
	if userID == "" {
		return nil, invalidInput("user id is required")
	}
	if cost.IsNegative() {
		return nil, invalidInput("cost must not be negative")
	}

	unlock, err := g.lock(ctx, userID)
	if err != nil {
		return nil, err
	}

	acc, err := g.Store.GetAccount(ctx, userID)
	if err != nil {
		unlock()
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("guard read for %s: %w", userID, err)
	}

	r := &Reservation{
		UserID:         userID,
		Cost:           cost,
		Allowed:        acc.Balance.GreaterThanOrEqual(cost),
		CurrentBalance: acc.Balance,
		release:        unlock,
	}
	if !r.Allowed {
		r.Release()
	}
	return r, nil
}

// lock blocks until the account lock is held or ctx is done.
func (g *Guard) lock(ctx context.Context, userID string) (func(), error) {
	g.mu.Lock()
	l, ok := g.locks[userID]
	if !ok {
		l = &accountLock{sem: make(chan struct{}, 1)}
		g.locks[userID] = l
	}
	l.refs++
	g.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			g.unref(userID, l)
		}, nil
	case <-ctx.Done():
		g.unref(userID, l)
		return nil, ctx.Err()
	}
}

func (g *Guard) unref(userID string, l *accountLock) {
	g.mu.Lock()
	defer g.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(g.locks, userID)
	}
}
