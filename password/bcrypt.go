package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores input past 72 bytes, so longer passwords are refused.
const bcryptMaxBytes = 72

// Bcrypt hashes passwords with bcrypt, for deployments whose account store
// already holds bcrypt hashes.
type Bcrypt struct {
	cost   int
	policy Policy
}

// NewBcrypt returns a bcrypt hasher. A zero cost uses bcrypt.DefaultCost.
func NewBcrypt(cost int, policy Policy) (*Bcrypt, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost)
	}
	policy = policy.withDefaults()
	if policy.MaxBytes > bcryptMaxBytes {
		policy.MaxBytes = bcryptMaxBytes
	}
	if policy.MinBytes > policy.MaxBytes {
		return nil, errors.New("password min length exceeds bcrypt limit")
	}
	return &Bcrypt{cost: cost, policy: policy}, nil
}

// Policy returns the effective length policy.
func (b *Bcrypt) Policy() Policy {
	return b.policy
}

// Hash returns a bcrypt hash of password.
func (b *Bcrypt) Hash(password string) (string, error) {
	if err := b.policy.Check(password); err != nil {
		return "", err
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether password matches hash.
func (b *Bcrypt) Verify(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
}
