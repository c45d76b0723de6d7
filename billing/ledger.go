/*
ledger.go - Debit-and-Log

PURPOSE:
  Applies a signed delta to a user's balance and appends the matching entry to
  the user's transaction list, as ONE store write. The entry's id and date are
  stamped here, at execution time.

GUARANTEES:
  - The increment is computed by the store against the balance stored at write
    time (commutative counter update), so concurrent top-ups and spends never
    lose each other's updates.
  - Debit() is conditional: the store refuses to take the balance below zero.
  - A failed write is reported as ErrWriteFailed. Side effects the caller made
    before the write (a sent SMS) are NOT rolled back.

EVENTS:
  Every successful write is published as EntryAppended. Publish failures are
  logged and never surface to the caller.

SEE ALSO:
  - guard.go: produces the Reservation that Debit() consumes
  - store.go: Store.Apply
*/
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger is the only writer of account balances.
type Ledger struct {
	Store     Store
	Publisher EventPublisher

	// Now stamps entry dates. Defaults to time.Now.
	Now func() time.Time

	logger *slog.Logger
}

// NewLedger creates a ledger over store. A nil publisher disables events.
func NewLedger(store Store, publisher EventPublisher, logger *slog.Logger) *Ledger {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		Store:     store,
		Publisher: publisher,
		Now:       time.Now,
		logger:    logger.With("component", "ledger"),
	}
}

// Account returns the account for userID.
func (l *Ledger) Account(ctx context.Context, userID string) (*Account, error) {
	acc, err := l.Store.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load account %s: %w", userID, err)
	}
	return acc, nil
}

// ApplyDelta increments the balance by delta and appends entry, unconditionally.
func (l *Ledger) ApplyDelta(ctx context.Context, userID string, delta decimal.Decimal, entry Entry) (decimal.Decimal, error) {
	return l.apply(ctx, Mutation{UserID: userID, Delta: delta, Entry: entry})
}

// Debit charges the reserved cost and appends entry. The write is rejected by
// the store if it would take the balance below zero.
func (l *Ledger) Debit(ctx context.Context, r *Reservation, entry Entry) (decimal.Decimal, error) {
	return l.apply(ctx, Mutation{
		UserID: r.UserID,
		Delta:  r.Cost.Neg(),
		Entry:  entry,
		Floor:  ZeroFloor(),
	})
}

func (l *Ledger) apply(ctx context.Context, m Mutation) (decimal.Decimal, error) {
	if m.UserID == "" {
		return decimal.Zero, invalidInput("user id is required")
	}
	m.Entry.ID = uuid.NewString()
	m.Entry.Date = l.Now().UTC()
	m.Entry.Amount = m.Delta

	balance, err := l.Store.Apply(ctx, m)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInsufficientBalance) {
			return decimal.Zero, err
		}
		l.logger.ErrorContext(ctx, "ledger write failed",
			"user_id", m.UserID, "delta", m.Delta.String(), "type", m.Entry.Type, "error", err)
		return decimal.Zero, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	l.logger.InfoContext(ctx, "entry appended",
		"user_id", m.UserID, "entry_id", m.Entry.ID, "type", m.Entry.Type,
		"amount", m.Delta.String(), "balance", balance.String())

	event := EntryAppended{UserID: m.UserID, Entry: m.Entry, Balance: balance}
	if err := l.Publisher.Publish(ctx, event); err != nil {
		l.logger.WarnContext(ctx, "failed to publish ledger event", "user_id", m.UserID, "entry_id", m.Entry.ID, "error", err)
	}
	return balance, nil
}
