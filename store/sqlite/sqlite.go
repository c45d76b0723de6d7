/*
Package sqlite provides a SQLite-backed billing.Store.

PURPOSE:
  Local, single-file ledger store for development and small deployments.
  Implements the same Debit-and-Log contract as the document stores: one
  Apply call increments the balance and appends one entry atomically.

KEY TABLES:
  accounts: one row per user (id, balance)
  entries:  append-only transaction list, ordered by seq within a user

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the entries table
  - No DELETE statements on the entries table
  - The only UPDATE on accounts is the balance increment inside Apply

NUMERIC STORAGE:
  Balances and amounts are stored as decimal TEXT. SQLite has no exact decimal
  type, so the increment is computed with shopspring/decimal inside the same
  transaction that reads the row.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety plus a database transaction per Apply.
  Multiple processes sharing one file are serialised by SQLite's writer lock.

USAGE:
  store, err := sqlite.New("./voicebridge.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - billing/store.go: Interface definition
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/voice-bridge/billing"
)

// Store implements billing.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		balance TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Transactions (append-only per account)
	CREATE TABLE IF NOT EXISTS entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL REFERENCES accounts(id),
		entry_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		date TEXT NOT NULL,
		payment_id TEXT,
		message_sid TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entries_user_seq
		ON entries(user_id, seq);
	CREATE INDEX IF NOT EXISTS idx_entries_message_sid
		ON entries(message_sid) WHERE message_sid IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// billing.Store
// =============================================================================

// GetAccount returns the account and its entries in append order.
func (s *Store) GetAccount(ctx context.Context, userID string) (*billing.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadAccount(ctx, s.db, userID)
}

// Apply increments the balance and appends the entry in one transaction.
func (s *Store) Apply(ctx context.Context, m billing.Mutation) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	balance, err := readBalance(ctx, sqlTx, m.UserID)
	if err != nil {
		return decimal.Zero, err
	}
	if !m.Allows(balance) {
		return decimal.Zero, m.Rejection(balance)
	}

	next := balance.Add(m.Delta)
	if _, err := sqlTx.ExecContext(ctx,
		"UPDATE accounts SET balance = ? WHERE id = ?",
		next.String(), m.UserID,
	); err != nil {
		return decimal.Zero, fmt.Errorf("failed to update balance: %w", err)
	}
	if err := appendEntry(ctx, sqlTx, m.UserID, m.Entry); err != nil {
		return decimal.Zero, err
	}

	if err := sqlTx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit: %w", err)
	}
	return next, nil
}

// CreateAccount inserts an account with whatever entries it already carries.
func (s *Store) CreateAccount(ctx context.Context, acc billing.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx,
		"INSERT INTO accounts (id, balance, created_at) VALUES (?, ?, ?)",
		acc.ID, acc.Balance.String(), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return billing.ErrAccountExists
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	for _, e := range acc.Transactions {
		if err := appendEntry(ctx, sqlTx, acc.ID, e); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// ListAccounts returns every account ordered by id.
func (s *Store) ListAccounts(ctx context.Context) ([]billing.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	accounts := make([]billing.Account, 0, len(ids))
	for _, id := range ids {
		acc, err := s.loadAccount(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, nil
}

// =============================================================================
// Helpers
// =============================================================================

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func readBalance(ctx context.Context, q querier, userID string) (decimal.Decimal, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT balance FROM accounts WHERE id = ?", userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, billing.ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt balance %q for %s: %w", raw, userID, err)
	}
	return balance, nil
}

func (s *Store) loadAccount(ctx context.Context, q querier, userID string) (*billing.Account, error) {
	balance, err := readBalance(ctx, q, userID)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, entry_type, amount, date, payment_id, message_sid
		FROM entries
		WHERE user_id = ?
		ORDER BY seq ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	acc := &billing.Account{ID: userID, Balance: balance}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		acc.Transactions = append(acc.Transactions, e)
	}
	return acc, rows.Err()
}

func appendEntry(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, userID string, e billing.Entry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO entries (id, user_id, entry_type, amount, date, payment_id, message_sid)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		userID,
		string(e.Type),
		e.Amount.String(),
		e.DateString(),
		nullString(e.PaymentID),
		nullString(e.MessageSID),
	)
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

func scanEntry(rows *sql.Rows) (billing.Entry, error) {
	var (
		e          billing.Entry
		entryType  string
		amount     string
		date       string
		paymentID  sql.NullString
		messageSID sql.NullString
	)

	if err := rows.Scan(&e.ID, &entryType, &amount, &date, &paymentID, &messageSID); err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	var err error
	e.Type = billing.EntryType(entryType)
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return e, fmt.Errorf("corrupt amount %q on entry %s: %w", amount, e.ID, err)
	}
	if e.Date, err = billing.ParseDate(date); err != nil {
		return e, fmt.Errorf("corrupt date %q on entry %s: %w", date, e.ID, err)
	}
	e.PaymentID = paymentID.String
	e.MessageSID = messageSID.String
	return e, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
