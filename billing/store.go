package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Ledger Store (external document database)
// =============================================================================

// Store persists accounts. Transactions are append-only: the only write to an
// existing account is Apply, which increments the balance and appends one entry
// as a single store-side operation.
//
// Implementations:
//   - billing/store:   in-memory (tests, dev)
//   - store/sqlite:    local file database
//   - store/postgres:  pgx
//   - store/mongo:     MongoDB documents
//   - store/firestore: Firestore documents
type Store interface {
	// GetAccount returns the account or ErrNotFound.
	GetAccount(ctx context.Context, userID string) (*Account, error)

	// Apply performs one Debit-and-Log write and returns the new balance.
	// Returns ErrNotFound for a missing account and an
	// *InsufficientBalanceError when m.Floor rejects the write.
	Apply(ctx context.Context, m Mutation) (decimal.Decimal, error)

	// CreateAccount inserts an account as given. Returns ErrAccountExists for a duplicate id.
	CreateAccount(ctx context.Context, acc Account) error

	// ListAccounts returns every account with its transactions.
	ListAccounts(ctx context.Context) ([]Account, error)

	Close() error
}

// EventPublisher receives ledger events after successful writes.
type EventPublisher interface {
	Publish(ctx context.Context, event EntryAppended) error
}

// EntryAppended is emitted after every successful Debit-and-Log write.
type EntryAppended struct {
	UserID  string
	Entry   Entry
	Balance decimal.Decimal
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, EntryAppended) error { return nil }
