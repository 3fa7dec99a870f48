package token

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goReset/internal"
	"github.com/MrEthical07/goReset/store"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return epoch }

type failingRandom struct{ short bool }

func (f failingRandom) Bytes(n int) ([]byte, error) {
	if f.short {
		return make([]byte, n-1), nil
	}
	return nil, errors.New("entropy exhausted")
}

// insertOnly hides the Replacer implementation of the memory store.
type insertOnly struct{ store.TokenStore }

func newIssuer(t *testing.T, st store.TokenStore, cfg Config) *Issuer {
	t.Helper()
	if cfg.TTL == 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.Bytes == 0 {
		cfg.Bytes = 32
	}
	iss, err := New(st, internal.CryptoRandom{}, fixedNow, cfg)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return iss
}

func TestIssuePersistsFingerprintOnly(t *testing.T) {
	st := store.NewMemoryStore(fixedNow)
	iss := newIssuer(t, st, Config{})

	raw, rec, err := iss.Issue(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(raw) != 43 {
		t.Fatalf("expected 43 char token for 32 bytes, got %d", len(raw))
	}
	if !iss.WellFormed(raw) {
		t.Fatal("issued token must be well formed")
	}
	if rec.Fingerprint != sha256.Sum256([]byte(raw)) {
		t.Fatal("fingerprint must be sha256 of the raw token")
	}
	if !rec.ExpiresAt.Equal(epoch.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", rec.ExpiresAt)
	}

	got, found, err := st.FindValidByFingerprint(context.Background(), iss.Fingerprint(raw))
	if err != nil || !found {
		t.Fatalf("find: found=%v err=%v", found, err)
	}
	if got.ID != rec.ID || got.AccountID != "acct-1" {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestIssueInvalidatesPrevious(t *testing.T) {
	for name, st := range map[string]store.TokenStore{
		"replacer":    store.NewMemoryStore(fixedNow),
		"insert-only": insertOnly{store.NewMemoryStore(fixedNow)},
	} {
		t.Run(name, func(t *testing.T) {
			iss := newIssuer(t, st, Config{})
			first, _, err := iss.Issue(context.Background(), "acct-1")
			if err != nil {
				t.Fatalf("issue first: %v", err)
			}
			second, _, err := iss.Issue(context.Background(), "acct-1")
			if err != nil {
				t.Fatalf("issue second: %v", err)
			}
			if first == second {
				t.Fatal("tokens must differ")
			}
			if _, found, _ := st.FindValidByFingerprint(context.Background(), iss.Fingerprint(first)); found {
				t.Fatal("first token must be invalid after reissue")
			}
			if _, found, _ := st.FindValidByFingerprint(context.Background(), iss.Fingerprint(second)); !found {
				t.Fatal("second token must be valid")
			}
		})
	}
}

func TestFingerprintKeyed(t *testing.T) {
	plain := newIssuer(t, store.NewMemoryStore(fixedNow), Config{})
	keyed := newIssuer(t, store.NewMemoryStore(fixedNow), Config{FingerprintKey: []byte("pepper")})
	other := newIssuer(t, store.NewMemoryStore(fixedNow), Config{FingerprintKey: []byte("other")})

	raw := "dGVzdA"
	if plain.Fingerprint(raw) == keyed.Fingerprint(raw) {
		t.Fatal("keyed fingerprint must differ from plain sha256")
	}
	if keyed.Fingerprint(raw) != keyed.Fingerprint(raw) {
		t.Fatal("fingerprint must be deterministic")
	}
	if keyed.Fingerprint(raw) == other.Fingerprint(raw) {
		t.Fatal("different keys must give different fingerprints")
	}
}

func TestIssueRandomFailure(t *testing.T) {
	for name, rnd := range map[string]RandomSource{
		"error": failingRandom{},
		"short": failingRandom{short: true},
	} {
		t.Run(name, func(t *testing.T) {
			st := store.NewMemoryStore(fixedNow)
			iss, err := New(st, rnd, fixedNow, Config{TTL: time.Minute, Bytes: 32})
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			if _, _, err := iss.Issue(context.Background(), "acct-1"); !errors.Is(err, ErrRandomFailure) {
				t.Fatalf("expected ErrRandomFailure, got %v", err)
			}
			if st.Len() != 0 {
				t.Fatal("nothing may be stored when randomness fails")
			}
		})
	}
}

func TestNewRejectsWeakConfig(t *testing.T) {
	st := store.NewMemoryStore(fixedNow)
	cases := map[string]Config{
		"short token": {TTL: time.Minute, Bytes: 8},
		"no ttl":      {Bytes: 32},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := New(st, internal.CryptoRandom{}, fixedNow, cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
	if _, err := New(st, nil, fixedNow, Config{TTL: time.Minute, Bytes: 32}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for nil random, got %v", err)
	}
}
