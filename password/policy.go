package password

import "errors"

const (
	// DefaultMinPasswordBytes is the shortest accepted new password.
	DefaultMinPasswordBytes = 8
	// DefaultMaxPasswordBytes bounds hashing cost per request.
	DefaultMaxPasswordBytes = 1024
)

var (
	ErrTooShort    = errors.New("password is too short")
	ErrTooLong     = errors.New("password is too long")
	ErrInvalidHash = errors.New("invalid password hash")
)

// Policy bounds password length in bytes. Passwords are used exactly as
// provided, without Unicode normalization.
type Policy struct {
	MinBytes int
	MaxBytes int
}

func (p Policy) withDefaults() Policy {
	if p.MinBytes <= 0 {
		p.MinBytes = DefaultMinPasswordBytes
	}
	if p.MaxBytes <= 0 {
		p.MaxBytes = DefaultMaxPasswordBytes
	}
	return p
}

// Check returns ErrTooShort or ErrTooLong when plain violates the policy.
func (p Policy) Check(plain string) error {
	p = p.withDefaults()
	if len(plain) < p.MinBytes {
		return ErrTooShort
	}
	if len(plain) > p.MaxBytes {
		return ErrTooLong
	}
	return nil
}
