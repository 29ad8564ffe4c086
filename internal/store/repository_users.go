package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateUser(ctx context.Context, name, token string) (string, error) {
	id := NewID()
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO users (id, name, token) VALUES ($1, $2, $3)`,
		id, name, token)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) GetUserByToken(ctx context.Context, token string) (*User, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM users WHERE token = $1`, token)
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) EnsureAccount(ctx context.Context, userID string, initial int64) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO accounts (user_id, balance) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, initial)
	return err
}

func (s *Store) GetBalance(ctx context.Context, userID string) (int64, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE user_id = $1`, userID)
	var balance int64
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

// Debit subtracts amount from the user's balance and records a ledger entry
// in the same transaction. Returns ErrInsufficientBalance without mutating
// anything when the balance cannot cover the amount.
func (s *Store) Debit(ctx context.Context, userID string, amount int64, entryType, refType, refID string) (int64, error) {
	return s.applyLedger(ctx, userID, -amount, entryType, refType, refID)
}

func (s *Store) Credit(ctx context.Context, userID string, amount int64, entryType, refType, refID string) (int64, error) {
	return s.applyLedger(ctx, userID, amount, entryType, refType, refID)
}

func (s *Store) applyLedger(ctx context.Context, userID string, delta int64, entryType, refType, refID string) (int64, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`UPDATE accounts SET balance = balance + $2, updated_at = now()
		 WHERE user_id = $1 AND balance + $2 >= 0
		 RETURNING balance`,
		userID, delta)
	var balance int64
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrInsufficientBalance
		}
		return 0, err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (id, user_id, amount, entry_type, ref_type, ref_id)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		NewID(), userID, delta, entryType, refType, refID); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, userID string, limit, offset int) ([]LedgerEntry, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, user_id, amount, entry_type, ref_type, ref_id, created_at
		 FROM ledger_entries
		 WHERE $1 = '' OR user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LedgerEntry{}
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.EntryType, &e.RefType, &e.RefID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
