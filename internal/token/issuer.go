// Package token issues reset tokens and derives their fingerprints.
package token

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goReset/internal"
	"github.com/MrEthical07/goReset/store"
)

// MinBytes is the smallest accepted raw token size (128 bits).
const MinBytes = 16

var (
	// ErrRandomFailure wraps a failing or short random source.
	ErrRandomFailure = errors.New("token random source failed")
	// ErrInvalidConfig is returned by New for unusable parameters.
	ErrInvalidConfig = errors.New("invalid token issuer config")
)

// RandomSource yields cryptographically strong bytes.
type RandomSource interface {
	Bytes(n int) ([]byte, error)
}

// Config controls token size, lifetime and fingerprinting.
type Config struct {
	TTL   time.Duration
	Bytes int
	// FingerprintKey switches fingerprints from SHA-256 to HMAC-SHA256.
	FingerprintKey []byte
}

// Issuer generates raw tokens and persists only their fingerprints.
type Issuer struct {
	store  store.TokenStore
	random RandomSource
	now    func() time.Time
	cfg    Config
}

// New validates cfg and returns an Issuer.
func New(st store.TokenStore, random RandomSource, now func() time.Time, cfg Config) (*Issuer, error) {
	if st == nil || random == nil || now == nil {
		return nil, fmt.Errorf("%w: store, random source and clock are required", ErrInvalidConfig)
	}
	if cfg.Bytes < MinBytes {
		return nil, fmt.Errorf("%w: token must carry at least %d bytes", ErrInvalidConfig, MinBytes)
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("%w: ttl must be > 0", ErrInvalidConfig)
	}
	return &Issuer{store: st, random: random, now: now, cfg: cfg}, nil
}

// Issue creates a token for accountID, invalidating every earlier one, and
// returns the raw token for delivery.
func (i *Issuer) Issue(ctx context.Context, accountID string) (string, store.ResetToken, error) {
	raw, err := i.random.Bytes(i.cfg.Bytes)
	if err != nil {
		return "", store.ResetToken{}, fmt.Errorf("%w: %v", ErrRandomFailure, err)
	}
	if len(raw) != i.cfg.Bytes {
		return "", store.ResetToken{}, fmt.Errorf("%w: %v", ErrRandomFailure, internal.ErrShortRandom)
	}

	encoded := internal.EncodeToken(raw)
	now := i.now()
	rec := store.ResetToken{
		ID:          store.NewID(),
		AccountID:   accountID,
		Fingerprint: i.Fingerprint(encoded),
		IssuedAt:    now,
		ExpiresAt:   now.Add(i.cfg.TTL),
	}

	if r, ok := i.store.(store.Replacer); ok {
		if err := r.Replace(ctx, rec); err != nil {
			return "", store.ResetToken{}, err
		}
		return encoded, rec, nil
	}

	if err := i.store.InvalidateAllForAccount(ctx, accountID); err != nil {
		return "", store.ResetToken{}, err
	}
	if err := i.store.Insert(ctx, rec); err != nil {
		return "", store.ResetToken{}, err
	}
	return encoded, rec, nil
}

// Fingerprint derives the stored lookup key of a raw token.
func (i *Issuer) Fingerprint(raw string) [32]byte {
	if len(i.cfg.FingerprintKey) == 0 {
		return sha256.Sum256([]byte(raw))
	}
	mac := hmac.New(sha256.New, i.cfg.FingerprintKey)
	mac.Write([]byte(raw))
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// WellFormed reports whether raw could have been produced by this issuer.
func (i *Issuer) WellFormed(raw string) bool {
	_, err := internal.DecodeToken(raw, i.cfg.Bytes)
	return err == nil
}
