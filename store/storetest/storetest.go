// Package storetest provides a conformance suite for store.TokenStore
// implementations.
package storetest

import (
	"context"
	"crypto/sha256"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goReset/store"
)

// Clock is a manually advanced clock shared between a suite and the store
// under test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock fixed at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Factory builds a fresh, empty store that reads time from clock.
type Factory func(t *testing.T, clock *Clock) store.TokenStore

// RacingRedeemers is the number of goroutines used by the single-use check.
const RacingRedeemers = 64

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("InsertThenFind", func(t *testing.T) {
		clock, s := setup(t, newStore)
		tok := record(clock, "acct-1", "raw-1", 15*time.Minute)
		mustInsert(t, s, tok)

		got, found, err := s.FindValidByFingerprint(context.Background(), tok.Fingerprint)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if !found {
			t.Fatal("expected record to be found")
		}
		if got.ID != tok.ID || got.AccountID != tok.AccountID || got.Used {
			t.Fatalf("unexpected record: %+v", got)
		}
		if !got.ExpiresAt.Equal(tok.ExpiresAt) {
			t.Fatalf("expires mismatch: got %v want %v", got.ExpiresAt, tok.ExpiresAt)
		}
	})

	t.Run("UnknownFingerprint", func(t *testing.T) {
		_, s := setup(t, newStore)
		_, found, err := s.FindValidByFingerprint(context.Background(), sha256.Sum256([]byte("nope")))
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if found {
			t.Fatal("unknown fingerprint must not be found")
		}
		ok, err := s.MarkUsedAtomically(context.Background(), store.NewID())
		if err != nil {
			t.Fatalf("mark: %v", err)
		}
		if ok {
			t.Fatal("unknown id must not be marked")
		}
	})

	t.Run("ExpiredIsInvisible", func(t *testing.T) {
		clock, s := setup(t, newStore)
		tok := record(clock, "acct-1", "raw-exp", time.Minute)
		mustInsert(t, s, tok)

		clock.Advance(time.Minute + time.Second)
		_, found, err := s.FindValidByFingerprint(context.Background(), tok.Fingerprint)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if found {
			t.Fatal("expired record must not be found")
		}
		ok, err := s.MarkUsedAtomically(context.Background(), tok.ID)
		if err != nil {
			t.Fatalf("mark: %v", err)
		}
		if ok {
			t.Fatal("expired record must not be redeemable")
		}
	})

	t.Run("MarkUsedOnce", func(t *testing.T) {
		clock, s := setup(t, newStore)
		tok := record(clock, "acct-1", "raw-once", 15*time.Minute)
		mustInsert(t, s, tok)

		ok, err := s.MarkUsedAtomically(context.Background(), tok.ID)
		if err != nil || !ok {
			t.Fatalf("first mark: ok=%v err=%v", ok, err)
		}
		ok, err = s.MarkUsedAtomically(context.Background(), tok.ID)
		if err != nil {
			t.Fatalf("second mark: %v", err)
		}
		if ok {
			t.Fatal("second mark must fail")
		}
		if _, found, _ := s.FindValidByFingerprint(context.Background(), tok.Fingerprint); found {
			t.Fatal("used record must not be found")
		}
	})

	t.Run("ConcurrentMarkUsed", func(t *testing.T) {
		clock, s := setup(t, newStore)
		tok := record(clock, "acct-1", "raw-race", 15*time.Minute)
		mustInsert(t, s, tok)

		var (
			wg      sync.WaitGroup
			winners atomic.Int64
			errs    atomic.Int64
		)
		start := make(chan struct{})
		for i := 0; i < RacingRedeemers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				ok, err := s.MarkUsedAtomically(context.Background(), tok.ID)
				if err != nil {
					errs.Add(1)
					return
				}
				if ok {
					winners.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		if errs.Load() != 0 {
			t.Fatalf("unexpected errors: %d", errs.Load())
		}
		if winners.Load() != 1 {
			t.Fatalf("expected exactly one winner, got %d", winners.Load())
		}
	})

	t.Run("InvalidateAllForAccount", func(t *testing.T) {
		clock, s := setup(t, newStore)
		a1 := record(clock, "acct-1", "raw-a1", 15*time.Minute)
		a2 := record(clock, "acct-1", "raw-a2", 15*time.Minute)
		b1 := record(clock, "acct-2", "raw-b1", 15*time.Minute)
		mustInsert(t, s, a1)
		mustInsert(t, s, a2)
		mustInsert(t, s, b1)

		if err := s.InvalidateAllForAccount(context.Background(), "acct-1"); err != nil {
			t.Fatalf("invalidate: %v", err)
		}
		for _, tok := range []store.ResetToken{a1, a2} {
			if _, found, _ := s.FindValidByFingerprint(context.Background(), tok.Fingerprint); found {
				t.Fatalf("token %s should be invalidated", tok.ID)
			}
		}
		if _, found, _ := s.FindValidByFingerprint(context.Background(), b1.Fingerprint); !found {
			t.Fatal("other account must be unaffected")
		}
		if err := s.InvalidateAllForAccount(context.Background(), "acct-none"); err != nil {
			t.Fatalf("invalidate unknown account: %v", err)
		}
	})

	t.Run("Replace", func(t *testing.T) {
		clock, s := setup(t, newStore)
		r, ok := s.(store.Replacer)
		if !ok {
			t.Skip("store does not implement store.Replacer")
		}
		first := record(clock, "acct-1", "raw-r1", 15*time.Minute)
		second := record(clock, "acct-1", "raw-r2", 15*time.Minute)
		if err := r.Replace(context.Background(), first); err != nil {
			t.Fatalf("replace first: %v", err)
		}
		if err := r.Replace(context.Background(), second); err != nil {
			t.Fatalf("replace second: %v", err)
		}
		if _, found, _ := s.FindValidByFingerprint(context.Background(), first.Fingerprint); found {
			t.Fatal("replaced token must be invalid")
		}
		if _, found, _ := s.FindValidByFingerprint(context.Background(), second.Fingerprint); !found {
			t.Fatal("replacement token must be valid")
		}
	})

	t.Run("RejectsIncompleteRecord", func(t *testing.T) {
		clock, s := setup(t, newStore)
		tok := record(clock, "", "raw-bad", 15*time.Minute)
		if err := s.Insert(context.Background(), tok); err == nil {
			t.Fatal("expected error for record without account")
		}
	})
}

func setup(t *testing.T, newStore Factory) (*Clock, store.TokenStore) {
	t.Helper()
	clock := NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return clock, newStore(t, clock)
}

func record(clock *Clock, accountID, raw string, ttl time.Duration) store.ResetToken {
	now := clock.Now()
	return store.ResetToken{
		ID:          store.NewID(),
		AccountID:   accountID,
		Fingerprint: sha256.Sum256([]byte(raw)),
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}
}

func mustInsert(t *testing.T, s store.TokenStore, tok store.ResetToken) {
	t.Helper()
	if err := s.Insert(context.Background(), tok); err != nil {
		t.Fatalf("insert: %v", err)
	}
}
