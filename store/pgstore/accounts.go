package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/goReset/store"
	"github.com/jackc/pgx/v5"
)

// AccountsConfig names the externally owned users table and its columns.
type AccountsConfig struct {
	Table        string
	IDColumn     string
	EmailColumn  string
	HashColumn   string
	UpdatedAtCol string
}

func (c AccountsConfig) withDefaults() AccountsConfig {
	if c.Table == "" {
		c.Table = "users"
	}
	if c.IDColumn == "" {
		c.IDColumn = "id"
	}
	if c.EmailColumn == "" {
		c.EmailColumn = "email"
	}
	if c.HashColumn == "" {
		c.HashColumn = "password_hash"
	}
	return c
}

// Accounts looks users up by email and writes new password hashes.
type Accounts struct {
	db        DB
	findSQL   string
	updateSQL string
}

// NewAccounts builds an Accounts for the configured table.
func NewAccounts(db DB, cfg AccountsConfig) *Accounts {
	cfg = cfg.withDefaults()
	table := pgx.Identifier{cfg.Table}.Sanitize()
	id := pgx.Identifier{cfg.IDColumn}.Sanitize()
	email := pgx.Identifier{cfg.EmailColumn}.Sanitize()
	hash := pgx.Identifier{cfg.HashColumn}.Sanitize()

	set := hash + " = $2"
	if cfg.UpdatedAtCol != "" {
		set += ", " + pgx.Identifier{cfg.UpdatedAtCol}.Sanitize() + " = now()"
	}

	return &Accounts{
		db:        db,
		findSQL:   fmt.Sprintf("SELECT %s::text FROM %s WHERE lower(%s) = $1 LIMIT 1", id, table, email),
		updateSQL: fmt.Sprintf("UPDATE %s SET %s WHERE %s::text = $1", table, set, id),
	}
}

// FindByEmail matches emails case-insensitively.
func (a *Accounts) FindByEmail(ctx context.Context, email string) (string, bool, error) {
	var id string
	err := a.db.QueryRow(ctx, a.findSQL, strings.ToLower(email)).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return id, true, nil
}

// ErrAccountMissing is returned when an update touches no row.
var ErrAccountMissing = errors.New("account not found")

// UpdatePasswordHash replaces the stored credential hash.
func (a *Accounts) UpdatePasswordHash(ctx context.Context, accountID, hash string) error {
	tag, err := a.db.Exec(ctx, a.updateSQL, accountID, hash)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountMissing
	}
	return nil
}
