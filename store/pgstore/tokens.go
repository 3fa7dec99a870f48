package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goReset/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	insertTokenSQL = `INSERT INTO password_reset_tokens
	(id, account_id, fingerprint, issued_at, expires_at, used)
	VALUES ($1, $2, $3, $4, $5, false)`

	findValidTokenSQL = `SELECT id::text, account_id, issued_at, expires_at
	FROM password_reset_tokens
	WHERE fingerprint = $1 AND used = false AND expires_at > $2`

	markUsedSQL = `UPDATE password_reset_tokens SET used = true, used_at = $2
	WHERE id = $1 AND used = false AND expires_at > $2`

	invalidateAccountSQL = `UPDATE password_reset_tokens SET used = true, used_at = $2
	WHERE account_id = $1 AND used = false`

	lockAccountSQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

	purgeExpiredSQL = `DELETE FROM password_reset_tokens WHERE expires_at < $1`
)

// TokenStore is a PostgreSQL store.TokenStore and store.Replacer.
type TokenStore struct {
	db  DB
	now store.Clock
}

// NewTokenStore wraps db. A nil clock uses time.Now.
func NewTokenStore(db DB, now store.Clock) *TokenStore {
	if now == nil {
		now = time.Now
	}
	return &TokenStore{db: db, now: now}
}

// Insert adds a new row.
func (s *TokenStore) Insert(ctx context.Context, token store.ResetToken) error {
	if err := store.CheckRecord(token); err != nil {
		return err
	}
	return insertToken(ctx, s.db, token)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertToken(ctx context.Context, db execer, token store.ResetToken) error {
	_, err := db.Exec(ctx, insertTokenSQL,
		token.ID,
		token.AccountID,
		token.Fingerprint[:],
		token.IssuedAt.UTC(),
		token.ExpiresAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidRecord
		}
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// Replace serializes on the account with a transaction-scoped advisory lock,
// invalidates outstanding rows and inserts token.
func (s *TokenStore) Replace(ctx context.Context, token store.ResetToken) (err error) {
	if err := store.CheckRecord(token); err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, lockAccountSQL, token.AccountID); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if _, err = tx.Exec(ctx, invalidateAccountSQL, token.AccountID, s.now().UTC()); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if err = insertToken(ctx, tx, token); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// FindValidByFingerprint selects an unused, unexpired row.
func (s *TokenStore) FindValidByFingerprint(ctx context.Context, fingerprint [32]byte) (store.ResetToken, bool, error) {
	rec := store.ResetToken{Fingerprint: fingerprint}
	err := s.db.QueryRow(ctx, findValidTokenSQL, fingerprint[:], s.now().UTC()).
		Scan(&rec.ID, &rec.AccountID, &rec.IssuedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ResetToken{}, false, nil
		}
		return store.ResetToken{}, false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return rec, true, nil
}

// MarkUsedAtomically is a conditional UPDATE; the row lock taken by
// PostgreSQL makes concurrent callers observe at most one affected row.
func (s *TokenStore) MarkUsedAtomically(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, markUsedSQL, id, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return tag.RowsAffected() == 1, nil
}

// InvalidateAllForAccount marks every unused row of the account used.
func (s *TokenStore) InvalidateAllForAccount(ctx context.Context, accountID string) error {
	if _, err := s.db.Exec(ctx, invalidateAccountSQL, accountID, s.now().UTC()); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// PurgeExpired deletes rows that expired before cutoff.
func (s *TokenStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, purgeExpiredSQL, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return tag.RowsAffected(), nil
}
