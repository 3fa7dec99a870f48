package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// ErrShortRandom is returned when a random source yields fewer bytes than
// requested.
var ErrShortRandom = errors.New("random source returned short read")

// CryptoRandom reads from crypto/rand.
type CryptoRandom struct{}

// Bytes returns n bytes from the operating system CSPRNG.
func (CryptoRandom) Bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := rand.Read(buf)
	if err != nil {
		return nil, err
	}
	if read != n {
		return nil, ErrShortRandom
	}
	return buf, nil
}

// EncodeToken renders raw token bytes as base64url without padding.
func EncodeToken(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeToken parses a token produced by EncodeToken and checks its size.
func DecodeToken(token string, size int) ([]byte, error) {
	if base64.RawURLEncoding.EncodedLen(size) != len(token) {
		return nil, errors.New("invalid reset token size")
	}
	raw, err := base64.RawURLEncoding.Strict().DecodeString(token)
	if err != nil {
		return nil, err
	}
	if len(raw) != size {
		return nil, errors.New("invalid reset token size")
	}
	return raw, nil
}
