package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/kantor-dev/kantor-backend/internal/domain"
)

// AccountRepository stores one row per user: the balance document (jsonb)
// plus a version column. Balance writes are guarded by the version so a
// concurrent commit between read and write surfaces as domain.ErrConflict
// instead of a lost update.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Get(ctx context.Context, userID string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, balance, push_token, version, created_at
		 FROM accounts WHERE user_id = $1`, userID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	return a, nil
}

// Create inserts a freshly granted account. A concurrent first-time creation
// of the same account trips the primary key and is reported as
// domain.ErrConflict so the caller's retry loop re-reads the winner's row.
func (r *AccountRepository) Create(ctx context.Context, tx *sql.Tx, account *domain.Account) error {
	balance, err := json.Marshal(account.Balance)
	if err != nil {
		return fmt.Errorf("Create: marshal balance: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (user_id, balance, push_token, version, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		account.UserID, balance, account.PushToken, account.Version, account.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("Create: %w", domain.ErrConflict)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// UpdateBalance applies a new balance document if and only if nobody else
// committed since the read that produced it (version = newVersion-1).
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *sql.Tx, userID string, newBalance domain.Balance, newVersion int64) error {
	balance, err := json.Marshal(newBalance)
	if err != nil {
		return fmt.Errorf("UpdateBalance: marshal balance: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, version = $2 WHERE user_id = $3 AND version = $4`,
		balance, newVersion, userID, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalance: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateBalance: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateBalance: %w", domain.ErrConflict)
	}
	return nil
}

// SetPushToken overwrites the registered device token. Re-registration
// replaces, never merges. Reports whether an account row existed.
func (r *AccountRepository) SetPushToken(ctx context.Context, userID, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET push_token = $1 WHERE user_id = $2`, token, userID,
	)
	if err != nil {
		return false, fmt.Errorf("SetPushToken: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("SetPushToken: rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *AccountRepository) GetPushToken(ctx context.Context, userID string) (*string, error) {
	var token *string
	err := r.db.QueryRowContext(ctx,
		`SELECT push_token FROM accounts WHERE user_id = $1`, userID,
	).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetPushToken: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetPushToken: %w", err)
	}
	return token, nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	var balance []byte
	err := s.Scan(&a.UserID, &balance, &a.PushToken, &a.Version, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(balance, &a.Balance); err != nil {
		return nil, fmt.Errorf("unmarshal balance: %w", err)
	}
	return &a, nil
}
