package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	goReset "github.com/MrEthical07/goReset"
)

func TestClientIPAttachesHost(t *testing.T) {
	var got string
	h := ClientIP(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = goReset.ClientIPFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/password/reset", nil)
	req.RemoteAddr = "203.0.113.9:41234"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "203.0.113.9" {
		t.Fatalf("client ip = %q", got)
	}
}

func TestRemoteIPWithoutPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "2001:db8::1"
	if got := RemoteIP(req); got != "2001:db8::1" {
		t.Fatalf("RemoteIP = %q", got)
	}
}

func TestNoStoreHeaders(t *testing.T) {
	h := NoStore(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/password/reset?token=x", nil))

	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}
	if rec.Header().Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("Referrer-Policy = %q", rec.Header().Get("Referrer-Policy"))
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
}
