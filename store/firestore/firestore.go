/*
Package firestore provides a Cloud Firestore-backed billing.Store.

DOCUMENT SHAPE (collection "users", one document per user id):
  balance:      number
  transactions: array of maps {id, type, amount, date, paymentId?, messageSid?}
  date is an ISO-8601 string with millisecond precision.

Apply runs inside RunTransaction: the document is read, the floor checked, and
ONE Update carries firestore.Increment on balance and firestore.ArrayUnion on
transactions. Firestore retries the transaction on contention.

Firestore numbers are doubles. Values read back are rounded to Scale decimal
places so accumulated binary error never shows up as ledger drift.
*/
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"github.com/warp/voice-bridge/billing"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionName = "users"

	// Scale is the number of decimal places kept when reading numbers back.
	Scale = 4
)

// Store implements billing.Store on one Firestore collection.
type Store struct {
	client *firestore.Client
	users  *firestore.CollectionRef
}

type accountDoc struct {
	Balance      float64    `firestore:"balance"`
	Transactions []entryDoc `firestore:"transactions"`
}

type entryDoc struct {
	ID         string  `firestore:"id"`
	Type       string  `firestore:"type"`
	Amount     float64 `firestore:"amount"`
	Date       string  `firestore:"date"`
	PaymentID  string  `firestore:"paymentId,omitempty"`
	MessageSID string  `firestore:"messageSid,omitempty"`
}

// New opens a client for projectID. With no options the client falls back to
// application default credentials.
func New(ctx context.Context, projectID string, opts ...option.ClientOption) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create firestore client: %w", err)
	}
	return &Store{client: client, users: client.Collection(collectionName)}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) GetAccount(ctx context.Context, userID string) (*billing.Account, error) {
	snap, err := s.users.Doc(userID).Get(ctx)
	if err != nil {
		return nil, mapErr(userID, err)
	}
	return decodeAccount(snap)
}

func (s *Store) Apply(ctx context.Context, m billing.Mutation) (decimal.Decimal, error) {
	ref := s.users.Doc(m.UserID)
	delta, _ := m.Delta.Float64()

	var balance decimal.Decimal
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return mapErr(m.UserID, err)
		}
		current, err := readBalance(snap)
		if err != nil {
			return err
		}
		if !m.Allows(current) {
			return m.Rejection(current)
		}

		balance = current.Add(m.Delta)
		return tx.Update(ref, []firestore.Update{
			{Path: "balance", Value: firestore.Increment(delta)},
			{Path: "transactions", Value: firestore.ArrayUnion(toEntryMap(m.Entry))},
		})
	})
	if err != nil {
		var insufficient *billing.InsufficientBalanceError
		if errors.Is(err, billing.ErrNotFound) || errors.As(err, &insufficient) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("update user %s: %w", m.UserID, err)
	}
	return balance, nil
}

func (s *Store) CreateAccount(ctx context.Context, acc billing.Account) error {
	balance, _ := acc.Balance.Float64()
	entries := make([]any, 0, len(acc.Transactions))
	for _, e := range acc.Transactions {
		entries = append(entries, toEntryMap(e))
	}

	_, err := s.users.Doc(acc.ID).Create(ctx, map[string]any{
		"balance":      balance,
		"transactions": entries,
	})
	if status.Code(err) == codes.AlreadyExists {
		return billing.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("create user %s: %w", acc.ID, err)
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]billing.Account, error) {
	iter := s.users.OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var accounts []billing.Account
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		acc, err := decodeAccount(snap)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, nil
}

func mapErr(userID string, err error) error {
	if status.Code(err) == codes.NotFound {
		return billing.ErrNotFound
	}
	return fmt.Errorf("read user %s: %w", userID, err)
}

func number(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(Scale)
}

func readBalance(snap *firestore.DocumentSnapshot) (decimal.Decimal, error) {
	v, err := snap.DataAt("balance")
	if err != nil {
		return decimal.Zero, fmt.Errorf("user %s has no balance: %w", snap.Ref.ID, err)
	}
	switch n := v.(type) {
	case float64:
		return number(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	default:
		return decimal.Zero, fmt.Errorf("user %s balance has type %T", snap.Ref.ID, v)
	}
}

func decodeAccount(snap *firestore.DocumentSnapshot) (*billing.Account, error) {
	var doc accountDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", snap.Ref.ID, err)
	}

	acc := &billing.Account{ID: snap.Ref.ID, Balance: number(doc.Balance)}
	for _, ed := range doc.Transactions {
		e, err := decodeEntry(ed)
		if err != nil {
			return nil, fmt.Errorf("decode user %s: %w", snap.Ref.ID, err)
		}
		acc.Transactions = append(acc.Transactions, e)
	}
	return acc, nil
}

func decodeEntry(ed entryDoc) (billing.Entry, error) {
	e := billing.Entry{
		ID:         ed.ID,
		Type:       billing.EntryType(ed.Type),
		Amount:     number(ed.Amount),
		PaymentID:  ed.PaymentID,
		MessageSID: ed.MessageSID,
	}
	date, err := billing.ParseDate(ed.Date)
	if err != nil {
		return e, fmt.Errorf("entry %s: corrupt date %q: %w", ed.ID, ed.Date, err)
	}
	e.Date = date
	return e, nil
}

func toEntryMap(e billing.Entry) map[string]any {
	amount, _ := e.Amount.Float64()
	out := map[string]any{
		"id":     e.ID,
		"type":   string(e.Type),
		"amount": amount,
		"date":   e.DateString(),
	}
	if e.PaymentID != "" {
		out["paymentId"] = e.PaymentID
	}
	if e.MessageSID != "" {
		out["messageSid"] = e.MessageSID
	}
	return out
}
