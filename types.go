package goReset

import (
	"context"
	"time"

	"github.com/MrEthical07/goReset/internal/audit"
)

// AccountLookup resolves a normalized email to an account. found is false
// for unknown addresses; err is reserved for backend failures.
type AccountLookup interface {
	FindByEmail(ctx context.Context, email string) (accountID string, found bool, err error)
}

// CredentialWriter replaces an account's password hash.
type CredentialWriter interface {
	UpdatePasswordHash(ctx context.Context, accountID, hash string) error
}

// AccountStore is the account collaborator the engine needs.
type AccountStore interface {
	AccountLookup
	CredentialWriter
}

// PasswordHasher produces and checks password hashes. password.Argon2 and
// password.Bcrypt implement it.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) (bool, error)
}

// SessionRevoker ends every session of an account after its password was
// reset.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, accountID string) error
}

// RateLimiter admits or rejects one attempt under key.
type RateLimiter interface {
	Admit(ctx context.Context, key string) (bool, error)
}

// RandomSource yields cryptographically strong bytes.
type RandomSource interface {
	Bytes(n int) ([]byte, error)
}

// Clock supplies the time used for token expiry and rate windows. Response
// floors always use the monotonic wall clock.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// AuditSink receives audit events.
type AuditSink = audit.Sink

// AuditEvent is one audit record.
type AuditEvent = audit.Event

// RequestResult is returned by RequestReset. Message is identical for every
// outcome.
type RequestResult struct {
	Message string
}

// RedeemResult is returned by RedeemToken.
type RedeemResult struct {
	Success bool
	Message string
}
