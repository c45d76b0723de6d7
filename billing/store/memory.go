// Package store provides the in-memory billing.Store.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/voice-bridge/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	accounts map[string]*billing.Account
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]*billing.Account),
	}
}

func (m *Memory) GetAccount(_ context.Context, userID string) (*billing.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.accounts[userID]
	if !ok {
		return nil, billing.ErrNotFound
	}
	out := clone(acc)
	return &out, nil
}

// Apply increments the stored balance and appends the entry under one lock.
func (m *Memory) Apply(_ context.Context, mut billing.Mutation) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[mut.UserID]
	if !ok {
		return decimal.Zero, billing.ErrNotFound
	}
	if !mut.Allows(acc.Balance) {
		return decimal.Zero, mut.Rejection(acc.Balance)
	}

	acc.Balance = acc.Balance.Add(mut.Delta)
	acc.Transactions = append(acc.Transactions, mut.Entry)
	return acc.Balance, nil
}

func (m *Memory) CreateAccount(_ context.Context, acc billing.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[acc.ID]; ok {
		return billing.ErrAccountExists
	}
	c := clone(&acc)
	m.accounts[acc.ID] = &c
	return nil
}

// ListAccounts returns copies ordered by id.
func (m *Memory) ListAccounts(_ context.Context) ([]billing.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]billing.Account, 0, len(m.accounts))
	for _, acc := range m.accounts {
		result = append(result, clone(acc))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) Close() error { return nil }

func clone(acc *billing.Account) billing.Account {
	out := *acc
	out.Transactions = append([]billing.Entry(nil), acc.Transactions...)
	return out
}
