package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnavailable wraps backend failures (timeouts, connection errors).
	ErrUnavailable = errors.New("token store unavailable")
	// ErrInvalidRecord is returned when a record passed to Insert or Replace
	// is missing required fields.
	ErrInvalidRecord = errors.New("invalid reset token record")
)

// ResetToken is the persisted form of an issued reset token.
type ResetToken struct {
	ID          string
	AccountID   string
	Fingerprint [32]byte
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Used        bool
}

// ValidAt reports whether the record is unused and unexpired at now.
func (t ResetToken) ValidAt(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

// TokenStore persists reset tokens keyed by fingerprint.
//
// MarkUsedAtomically is the only operation that may flip Used. It must be a
// compare-and-set: when many callers race on the same ID, exactly one observes
// true.
type TokenStore interface {
	Insert(ctx context.Context, token ResetToken) error
	FindValidByFingerprint(ctx context.Context, fingerprint [32]byte) (ResetToken, bool, error)
	MarkUsedAtomically(ctx context.Context, id string) (bool, error)
	InvalidateAllForAccount(ctx context.Context, accountID string) error
}

// Replacer is implemented by stores that can invalidate every outstanding
// token of an account and insert a new one in a single atomic step.
type Replacer interface {
	Replace(ctx context.Context, token ResetToken) error
}

// Clock supplies the current time to stores that evaluate expiry.
type Clock func() time.Time

// CheckRecord validates the fields every backend requires.
func CheckRecord(token ResetToken) error {
	if token.ID == "" || token.AccountID == "" {
		return ErrInvalidRecord
	}
	if token.ExpiresAt.IsZero() || !token.ExpiresAt.After(token.IssuedAt) {
		return ErrInvalidRecord
	}
	var zero [32]byte
	if token.Fingerprint == zero {
		return ErrInvalidRecord
	}
	return nil
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}
