package redisstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goReset/store"
	"github.com/MrEthical07/goReset/store/storetest"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestRedisStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T, clock *storetest.Clock) store.TokenStore {
		_, rdb := newTestRedis(t)
		return New(rdb, Config{Now: clock.Now})
	})
}

func TestRedisStoreRecordLayout(t *testing.T) {
	mr, rdb := newTestRedis(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(rdb, Config{Prefix: "t", Retention: time.Hour, Now: func() time.Time { return now }})

	tok := store.ResetToken{
		ID:          "id-1",
		AccountID:   "acct-9",
		Fingerprint: sha256.Sum256([]byte("raw")),
		IssuedAt:    now,
		ExpiresAt:   now.Add(15 * time.Minute),
	}
	if err := s.Insert(context.Background(), tok); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if got := mr.HGet("t:t:id-1", "v"); got != "1" {
		t.Fatalf("expected version field 1, got %q", got)
	}
	if got := mr.HGet("t:t:id-1", "used"); got != "0" {
		t.Fatalf("expected used=0, got %q", got)
	}
	ttl := mr.TTL("t:t:id-1")
	if ttl <= 15*time.Minute || ttl > 75*time.Minute {
		t.Fatalf("unexpected record ttl %v", ttl)
	}
	if ok, _ := mr.SIsMember("t:a:acct-9", "id-1"); !ok {
		t.Fatal("expected id in account index")
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := New(rdb, Config{})
	mr.Close()

	_, _, err := s.FindValidByFingerprint(context.Background(), sha256.Sum256([]byte("x")))
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	_, err = s.MarkUsedAtomically(context.Background(), "id")
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRedisStoreRejectsUnknownVersion(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := New(rdb, Config{})
	fp := sha256.Sum256([]byte("raw"))

	if err := mr.Set(s.fingerprintKey(fp), "id-x"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	mr.HSet(s.recordKey("id-x"), "v", "9", "used", "0")

	_, found, err := s.FindValidByFingerprint(context.Background(), fp)
	if found || !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected decode failure, found=%v err=%v", found, err)
	}
}
