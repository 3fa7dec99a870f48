//go:build integration
// +build integration

package test

import (
	"context"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	goReset "github.com/MrEthical07/goReset"
	"github.com/MrEthical07/goReset/mail"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// redisMode describes which Redis backend the suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

// redisModes returns miniredis plus a real standalone Redis when REDIS_ADDR
// is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				mr := miniredis.RunT(t)
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = rdb.Close() })
				return rdb
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				// Flush the test DB to avoid state leaking between runs.
				rdb.FlushDB(context.Background())
				t.Cleanup(func() {
					rdb.FlushDB(context.Background())
					_ = rdb.Close()
				})
				return rdb
			},
		})
	}
	return modes
}

type accounts struct {
	mu     sync.Mutex
	hashes map[string]string
}

func newAccounts() *accounts {
	return &accounts{hashes: map[string]string{}}
}

func (a *accounts) FindByEmail(_ context.Context, email string) (string, bool, error) {
	if email == "alice@example.com" {
		return "acct-alice", true, nil
	}
	return "", false, nil
}

func (a *accounts) UpdatePasswordHash(_ context.Context, accountID, hash string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hashes[accountID] = hash
	return nil
}

func (a *accounts) hash(accountID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hashes[accountID]
}

func integrationConfig() goReset.Config {
	cfg := goReset.DefaultConfig()
	cfg.Response.MinResponseFloor = 0
	cfg.RateLimit.SweepInterval = 0
	cfg.Mail.ResetURL = "https://app.example.com/password/reset"
	// Real Redis round trips on CI can exceed the tight defaults.
	cfg.Timeouts.Limiter = time.Second
	cfg.Timeouts.Store = time.Second
	cfg.Timeouts.Mail = time.Second
	return cfg
}

func tokenFromMail(t *testing.T, mails *mail.Recorder) string {
	t.Helper()

	msg, ok := mails.Last()
	if !ok {
		t.Fatalf("expected a reset mail")
	}
	for _, field := range strings.Fields(msg.Body) {
		link, err := url.Parse(field)
		if err != nil || link.Scheme != "https" {
			continue
		}
		if tok := link.Query().Get("token"); tok != "" {
			return tok
		}
	}
	t.Fatalf("reset mail carries no token link: %q", msg.Body)
	return ""
}
