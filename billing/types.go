/*
Package billing holds the account balance and transaction ledger for the voice bridge.

PURPOSE:
  Every paid action (sending an SMS) and every top-up moves a user's balance and
  appends one Entry to that user's transaction list. This package owns that pair of
  writes and the guard that decides whether a spend may go ahead.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account:  one document per end user (id, balance, transactions)
  - Entry:    an immutable line in the transaction list
  - Mutation: one Debit-and-Log write handed to a Store

INVARIANT (intended, checked by the reconciler):
  balance == sum(transactions[].amount)

SEE ALSO:
  - ledger.go:    Debit-and-Log
  - guard.go:     Spend Guard
  - service.go:   SMS-spend and top-up flows
  - reconcile.go: drift detection
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType tags a transaction entry.
type EntryType string

const (
	EntrySMS   EntryType = "SMS"
	EntryTopUp EntryType = "TOPUP"
)

// ManualPaymentRef is recorded on top-ups that arrive without a payment reference.
const ManualPaymentRef = "manual"

// DateLayout is the ISO-8601 layout used for entry dates (millisecond precision, UTC).
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// =============================================================================
// ACCOUNT
// =============================================================================

// Account is a user's balance document. Accounts are created out-of-band and
// never deleted by this service.
type Account struct {
	ID           string
	Balance      decimal.Decimal
	Transactions []Entry
}

// LedgerSum returns the sum of all entry amounts.
func (a Account) LedgerSum() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range a.Transactions {
		sum = sum.Add(e.Amount)
	}
	return sum
}

// Drift is balance minus the ledger sum. Zero for a consistent account.
func (a Account) Drift() decimal.Decimal {
	return a.Balance.Sub(a.LedgerSum())
}

// =============================================================================
// ENTRY
// =============================================================================

// Entry is one line of an account's transaction list. Immutable once appended.
type Entry struct {
	ID     string
	Type   EntryType
	Amount decimal.Decimal
	Date   time.Time

	// PaymentID is set on top-ups only.
	PaymentID string
	// MessageSID is set on SMS spends only.
	MessageSID string
}

// DateString renders the entry date in DateLayout.
func (e Entry) DateString() string {
	return e.Date.UTC().Format(DateLayout)
}

// ParseDate parses a date written by DateString (or any RFC 3339 timestamp).
func ParseDate(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// NewSMSEntry builds the entry for one sent message.
func NewSMSEntry(cost decimal.Decimal, sid string) Entry {
	return Entry{Type: EntrySMS, Amount: cost.Neg(), MessageSID: sid}
}

// NewTopUpEntry builds a top-up entry. An empty paymentID becomes ManualPaymentRef.
func NewTopUpEntry(amount decimal.Decimal, paymentID string) Entry {
	if paymentID == "" {
		paymentID = ManualPaymentRef
	}
	return Entry{Type: EntryTopUp, Amount: amount, PaymentID: paymentID}
}

// =============================================================================
// MUTATION - one Debit-and-Log write
// =============================================================================

// Mutation increments an account balance by Delta and appends Entry in a single
// store write. The increment is applied to whatever balance is stored at write
// time, never to a value the caller read earlier.
type Mutation struct {
	UserID string
	Delta  decimal.Decimal
	Entry  Entry

	// Floor, when set, makes the write conditional: it is rejected if the
	// resulting balance would drop below Floor.
	Floor *decimal.Decimal
}

// Allows reports whether the mutation may be applied to balance.
func (m Mutation) Allows(balance decimal.Decimal) bool {
	if m.Floor == nil {
		return true
	}
	return balance.Add(m.Delta).GreaterThanOrEqual(*m.Floor)
}

// Rejection builds the error a store returns when Allows is false.
func (m Mutation) Rejection(balance decimal.Decimal) error {
	return &InsufficientBalanceError{
		UserID:    m.UserID,
		Available: balance,
		Requested: m.Delta.Neg(),
	}
}

// ZeroFloor returns a floor of zero for guarded spends.
func ZeroFloor() *decimal.Decimal {
	z := decimal.Zero
	return &z
}
