// Package redact renders sensitive values in a form that is safe to log.
package redact

import (
	"encoding/hex"
	"log/slog"
	"strings"
)

const fingerprintPrefix = 12

// Fingerprint returns the first hex characters of a token fingerprint.
// The raw token can never be recovered from it.
func Fingerprint(fp [32]byte) string {
	return hex.EncodeToString(fp[:])[:fingerprintPrefix]
}

// Email keeps the first character of the local part and the domain.
func Email(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// IP is returned unchanged unless empty.
func IP(ip string) string {
	if ip == "" {
		return "unknown"
	}
	return ip
}

// FingerprintAttr is a slog attribute for a fingerprint.
func FingerprintAttr(fp [32]byte) slog.Attr {
	return slog.String("fingerprint", Fingerprint(fp))
}

// EmailAttr is a slog attribute for an email address.
func EmailAttr(email string) slog.Attr {
	return slog.String("email", Email(email))
}

// AccountAttr is a slog attribute for an account identifier.
func AccountAttr(accountID string) slog.Attr {
	return slog.String("account_id", accountID)
}

// ErrorAttr is a slog attribute for an error, omitted when err is nil.
func ErrorAttr(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
