package session

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, "rs"), mr
}

func TestSaveGetDelete(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Save(ctx, "acct-1", "sid-1", []byte("blob"), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, ok, err := store.Get(ctx, "sid-1")
	if err != nil || !ok || string(data) != "blob" {
		t.Fatalf("get = %q %v %v", data, ok, err)
	}

	if err := store.Delete(ctx, "acct-1", "sid-1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, "acct-1", "sid-1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "sid-1"); ok {
		t.Fatalf("session still present after delete")
	}
}

func TestSaveRejectsInvalidInput(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Save(ctx, "", "sid", nil, time.Hour); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	if err := store.Save(ctx, "acct", "sid", nil, 0); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestRevokeAllRemovesOnlyThatAccount(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	for _, sid := range []string{"a1", "a2", "a3"} {
		if err := store.Save(ctx, "acct-a", sid, []byte(sid), time.Hour); err != nil {
			t.Fatalf("save %s: %v", sid, err)
		}
	}
	if err := store.Save(ctx, "acct-b", "b1", []byte("b1"), time.Hour); err != nil {
		t.Fatalf("save b1: %v", err)
	}

	if err := store.RevokeAll(ctx, "acct-a"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	ids, err := store.ActiveSessionIDs(ctx, "acct-a")
	if err != nil || len(ids) != 0 {
		t.Fatalf("acct-a sessions = %v %v", ids, err)
	}
	for _, sid := range []string{"a1", "a2", "a3"} {
		if _, ok, _ := store.Get(ctx, sid); ok {
			t.Fatalf("session %s survived revoke", sid)
		}
	}
	if _, ok, _ := store.Get(ctx, "b1"); !ok {
		t.Fatalf("other account lost its session")
	}

	if err := store.RevokeAll(ctx, "acct-none"); err != nil {
		t.Fatalf("revoke of unknown account: %v", err)
	}
}

func TestActiveSessionIDsPrunesExpired(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Save(ctx, "acct", "short", nil, time.Minute); err != nil {
		t.Fatalf("save short: %v", err)
	}
	if err := store.Save(ctx, "acct", "long", nil, time.Hour); err != nil {
		t.Fatalf("save long: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	ids, err := store.ActiveSessionIDs(ctx, "acct")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 1 || ids[0] != "long" {
		t.Fatalf("active = %v", ids)
	}
	members, err := mr.Members("rs:a:acct")
	if err != nil || len(members) != 1 {
		t.Fatalf("index after prune = %v %v", members, err)
	}
}

func TestIndexOutlivesLongestSession(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Save(ctx, "acct", "long", nil, time.Hour); err != nil {
		t.Fatalf("save long: %v", err)
	}
	if err := store.Save(ctx, "acct", "short", nil, time.Minute); err != nil {
		t.Fatalf("save short: %v", err)
	}
	if ttl := mr.TTL("rs:a:acct"); ttl < 59*time.Minute {
		t.Fatalf("index ttl shrank to %v", ttl)
	}
}

func TestRedisUnavailable(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	mr.Close()

	if err := store.RevokeAll(context.Background(), "acct"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
