package goReset

import "context"

type clientIPContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. RedeemToken uses it
// for its throttle key and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// ClientIPFromContext returns the address set by WithClientIP.
func ClientIPFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	ip, ok := ctx.Value(clientIPContextKey{}).(string)
	return ip, ok
}

func clientIPFromContext(ctx context.Context) string {
	ip, _ := ClientIPFromContext(ctx)
	return ip
}
