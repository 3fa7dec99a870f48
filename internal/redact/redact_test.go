package redact

import (
	"crypto/sha256"
	"strings"
	"testing"
)

func TestEmail(t *testing.T) {
	cases := map[string]string{
		"alice@example.com": "a***@example.com",
		"b@x.io":            "b***@x.io",
		"not-an-email":      "***",
		"@example.com":      "***",
		"":                  "***",
	}
	for in, want := range cases {
		if got := Email(in); got != want {
			t.Fatalf("Email(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFingerprintIsPrefix(t *testing.T) {
	fp := sha256.Sum256([]byte("raw"))
	got := Fingerprint(fp)
	if len(got) != 12 {
		t.Fatalf("expected 12 chars, got %d", len(got))
	}
	if strings.Contains(got, "raw") {
		t.Fatal("fingerprint must not contain the raw input")
	}
}

func TestErrorAttrNil(t *testing.T) {
	if attr := ErrorAttr(nil); attr.Key != "" {
		t.Fatalf("expected empty attr, got %v", attr)
	}
}
