package goReset

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goReset/mail"
	"github.com/MrEthical07/goReset/password"
	"github.com/MrEthical07/goReset/store"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memAccounts struct {
	mu         sync.Mutex
	byEmail    map[string]string
	hashes     map[string]string
	lookups    int
	lookupErr  error
	updateErr  error
	updateHits int
}

func newMemAccounts() *memAccounts {
	return &memAccounts{
		byEmail: map[string]string{"alice@example.com": "acct-alice"},
		hashes:  map[string]string{"acct-alice": "old-hash"},
	}
}

func (a *memAccounts) FindByEmail(_ context.Context, email string) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lookups++
	if a.lookupErr != nil {
		return "", false, a.lookupErr
	}
	id, ok := a.byEmail[email]
	return id, ok, nil
}

func (a *memAccounts) UpdatePasswordHash(_ context.Context, accountID, hash string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updateHits++
	if a.updateErr != nil {
		return a.updateErr
	}
	a.hashes[accountID] = hash
	return nil
}

func (a *memAccounts) hash(accountID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hashes[accountID]
}

func (a *memAccounts) lookupCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lookups
}

func (a *memAccounts) setUpdateErr(err error) {
	a.mu.Lock()
	a.updateErr = err
	a.mu.Unlock()
}

type limiterFunc func(ctx context.Context, key string) (bool, error)

func (f limiterFunc) Admit(ctx context.Context, key string) (bool, error) { return f(ctx, key) }

type randomFunc func(n int) ([]byte, error)

func (f randomFunc) Bytes(n int) ([]byte, error) { return f(n) }

type unavailableStore struct{}

func (unavailableStore) Insert(context.Context, store.ResetToken) error {
	return store.ErrUnavailable
}

func (unavailableStore) FindValidByFingerprint(context.Context, [32]byte) (store.ResetToken, bool, error) {
	return store.ResetToken{}, false, store.ErrUnavailable
}

func (unavailableStore) MarkUsedAtomically(context.Context, string) (bool, error) {
	return false, store.ErrUnavailable
}

func (unavailableStore) InvalidateAllForAccount(context.Context, string) error {
	return store.ErrUnavailable
}

type revokerFunc func(ctx context.Context, accountID string) error

func (f revokerFunc) RevokeAll(ctx context.Context, accountID string) error { return f(ctx, accountID) }

type testEngine struct {
	*Engine
	accounts *memAccounts
	mails    *mail.Recorder
	clock    *fakeClock
	hasher   *password.Bcrypt
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Response.MinResponseFloor = 0
	cfg.RateLimit.SweepInterval = 0
	cfg.Mail.ResetURL = "https://app.example.com/password/reset"
	return cfg
}

func newTestHasher(t *testing.T) *password.Bcrypt {
	t.Helper()

	h, err := password.NewBcrypt(bcrypt.MinCost, password.Policy{})
	if err != nil {
		t.Fatalf("NewBcrypt failed: %v", err)
	}
	return h
}

func newTestEngine(t *testing.T, cfg Config, configure func(*Builder)) *testEngine {
	t.Helper()

	te := &testEngine{
		accounts: newMemAccounts(),
		mails:    &mail.Recorder{},
		clock:    newFakeClock(),
		hasher:   newTestHasher(t),
	}
	b := New().
		WithConfig(cfg).
		WithAccounts(te.accounts).
		WithMailer(te.mails).
		WithHasher(te.hasher).
		WithClock(te.clock)
	if configure != nil {
		configure(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	te.Engine = engine
	return te
}

var tokenInLink = regexp.MustCompile(`[?&]token=([A-Za-z0-9_-]+)`)

// lastToken extracts the raw token from the most recent reset mail.
func (te *testEngine) lastToken(t *testing.T) string {
	t.Helper()

	msg, ok := te.mails.Last()
	if !ok {
		t.Fatalf("expected a reset mail")
	}
	m := tokenInLink.FindStringSubmatch(msg.Body)
	if m == nil {
		t.Fatalf("reset mail carries no token link: %q", msg.Body)
	}
	return m[1]
}

func (te *testEngine) requestToken(t *testing.T, email string) string {
	t.Helper()

	te.RequestReset(context.Background(), "203.0.113.7", email)
	return te.lastToken(t)
}

var errBoom = errors.New("boom")
