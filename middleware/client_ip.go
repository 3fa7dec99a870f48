package middleware

import (
	"net"
	"net/http"

	goReset "github.com/MrEthical07/goReset"
)

// ClientIP attaches the request's remote address to the context so
// Engine.RedeemToken can throttle per caller. Mount a proxy-aware rewrite of
// RemoteAddr (chi's middleware.RealIP, for example) in front when the service
// sits behind a trusted proxy.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := goReset.WithClientIP(r.Context(), RemoteIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RemoteIP returns the host part of r.RemoteAddr, or RemoteAddr unchanged
// when it carries no port.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
