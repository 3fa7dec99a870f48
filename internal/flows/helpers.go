package flows

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"
)

var discardLogger = slog.New(slog.DiscardHandler)

const unknownSource = "unknown"

// NormalizeEmail trims surrounding space and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IdentityKey derives the limiter key for a normalized email. The address
// itself never reaches the limiter backend.
func IdentityKey(normalizedEmail string) string {
	sum := sha256.Sum256([]byte(normalizedEmail))
	return "email:" + hex.EncodeToString(sum[:16])
}

func sourceKey(ip string) string {
	if ip == "" {
		ip = unknownSource
	}
	return "ip:" + ip
}

func redeemKey(ip string) string {
	return "redeem:" + ip
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func admit(ctx context.Context, fn func(context.Context, string) (bool, error), key string, timeout time.Duration) (bool, error) {
	limitCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	return fn(limitCtx, key)
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// padToFloor sleeps until at least floor has elapsed since start. A caller
// that went away is not waited for.
func padToFloor(ctx context.Context, start time.Time, floor time.Duration, since func(time.Time) time.Duration, sleep func(context.Context, time.Duration) error) {
	if floor <= 0 {
		return
	}
	if remaining := floor - since(start); remaining > 0 {
		_ = sleep(ctx, remaining)
	}
}
