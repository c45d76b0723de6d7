/*
Package postgres provides a PostgreSQL-backed billing.Store using pgx.

The Debit-and-Log write is a single conditional UPDATE ... RETURNING plus the
entry INSERT in one transaction. The increment is evaluated by the database
against the row as it stands at write time, so concurrent writers never lose
each other's updates and a floored debit cannot overdraw even across
processes.

Balances and amounts are NUMERIC and cross the driver boundary as text so
that shopspring/decimal keeps exact values.
*/
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/voice-bridge/billing"
)

// Store implements billing.Store on a pgx pool.
type Store struct {
	db *pgxpool.Pool
}

// New connects, pings and migrates.
func New(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := &Store{db: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS accounts (
		id         TEXT PRIMARY KEY,
		balance    NUMERIC(20, 4) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS entries (
		seq         BIGSERIAL PRIMARY KEY,
		id          TEXT NOT NULL UNIQUE,
		user_id     TEXT NOT NULL REFERENCES accounts(id),
		entry_type  TEXT NOT NULL,
		amount      NUMERIC(20, 4) NOT NULL,
		date        TIMESTAMPTZ NOT NULL,
		payment_id  TEXT,
		message_sid TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entries_user_seq ON entries(user_id, seq);
	`)
	return err
}

// Truncate empties both tables. Used by tests sharing one database.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "TRUNCATE entries, accounts")
	return err
}

func (s *Store) GetAccount(ctx context.Context, userID string) (*billing.Account, error) {
	return loadAccount(ctx, s.db, userID)
}

// Apply runs the conditional increment and the entry insert in one transaction.
func (s *Store) Apply(ctx context.Context, m billing.Mutation) (decimal.Decimal, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var floor any
	if m.Floor != nil {
		floor = m.Floor.String()
	}

	var raw string
	err = tx.QueryRow(ctx, `
		UPDATE accounts
		SET balance = balance + $2::numeric
		WHERE id = $1
		  AND ($3::numeric IS NULL OR balance + $2::numeric >= $3::numeric)
		RETURNING balance::text
	`, m.UserID, m.Delta.String(), floor).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, s.explainNoRows(ctx, m)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance update failed: %w", err)
	}

	if err := insertEntry(ctx, tx, m.UserID, m.Entry); err != nil {
		return decimal.Zero, err
	}
	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("tx commit failed: %w", err)
	}
	return decimal.NewFromString(raw)
}

// explainNoRows tells a missing account apart from a floor rejection.
func (s *Store) explainNoRows(ctx context.Context, m billing.Mutation) error {
	balance, err := readBalance(ctx, s.db, m.UserID)
	if err != nil {
		return err
	}
	return m.Rejection(balance)
}

func (s *Store) CreateAccount(ctx context.Context, acc billing.Account) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "INSERT INTO accounts (id, balance) VALUES ($1, $2::numeric)", acc.ID, acc.Balance.String())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return billing.ErrAccountExists
		}
		return fmt.Errorf("account insert failed: %w", err)
	}
	for _, e := range acc.Transactions {
		if err := insertEntry(ctx, tx, acc.ID, e); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ListAccounts(ctx context.Context) ([]billing.Account, error) {
	rows, err := s.db.Query(ctx, "SELECT id FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list accounts failed: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	accounts := make([]billing.Account, 0, len(ids))
	for _, id := range ids {
		acc, err := loadAccount(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func readBalance(ctx context.Context, q querier, userID string) (decimal.Decimal, error) {
	var raw string
	err := q.QueryRow(ctx, "SELECT balance::text FROM accounts WHERE id = $1", userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, billing.ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance query failed: %w", err)
	}
	return decimal.NewFromString(raw)
}

func loadAccount(ctx context.Context, q querier, userID string) (*billing.Account, error) {
	balance, err := readBalance(ctx, q, userID)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, entry_type, amount::text, date, COALESCE(payment_id, ''), COALESCE(message_sid, '')
		FROM entries
		WHERE user_id = $1
		ORDER BY seq ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("entries query failed: %w", err)
	}
	defer rows.Close()

	acc := &billing.Account{ID: userID, Balance: balance}
	for rows.Next() {
		var (
			e         billing.Entry
			entryType string
			amount    string
		)
		if err := rows.Scan(&e.ID, &entryType, &amount, &e.Date, &e.PaymentID, &e.MessageSID); err != nil {
			return nil, fmt.Errorf("entry scan failed: %w", err)
		}
		e.Type = billing.EntryType(entryType)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("corrupt amount %q on entry %s: %w", amount, e.ID, err)
		}
		e.Date = e.Date.UTC()
		acc.Transactions = append(acc.Transactions, e)
	}
	return acc, rows.Err()
}

func insertEntry(ctx context.Context, tx pgx.Tx, userID string, e billing.Entry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO entries (id, user_id, entry_type, amount, date, payment_id, message_sid)
		VALUES ($1, $2, $3, $4::numeric, $5, NULLIF($6, ''), NULLIF($7, ''))
	`, e.ID, userID, string(e.Type), e.Amount.String(), e.Date, e.PaymentID, e.MessageSID)
	if err != nil {
		return fmt.Errorf("entry insert failed: %w", err)
	}
	return nil
}
