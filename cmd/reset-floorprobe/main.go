// Command reset-floorprobe measures how long each RequestReset branch takes
// against a real (or in-process) Redis and recommends a MinResponseFloor that
// hides the difference. It then races concurrent redemptions of one token.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	goReset "github.com/MrEthical07/goReset"
	"github.com/MrEthical07/goReset/mail"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const knownEmail = "probe@example.com"

type accounts struct{}

func (accounts) FindByEmail(_ context.Context, email string) (string, bool, error) {
	if email == knownEmail {
		return "acct-probe", true, nil
	}
	return "", false, nil
}

func (accounts) UpdatePasswordHash(context.Context, string, string) error { return nil }

type denyAll struct{}

func (denyAll) Admit(context.Context, string) (bool, error) { return false, nil }

type branch struct {
	name  string
	email string
	deny  bool
}

func main() {
	var (
		samples     = flag.Int("samples", 500, "requests per branch")
		racers      = flag.Int("racers", 64, "goroutines redeeming the same token")
		mailLatency = flag.Duration("mail-latency", 40*time.Millisecond, "simulated mail transport latency")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		headroom    = flag.Float64("headroom", 0.2, "fraction added to the slowest p99")
	)
	flag.Parse()

	if *samples <= 0 || *racers <= 0 || *headroom < 0 {
		fmt.Fprintln(os.Stderr, "samples and racers must be > 0, headroom >= 0")
		os.Exit(2)
	}

	client, cleanup, err := redisClient(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx := context.Background()
	slowMail := mail.MailerFunc(func(ctx context.Context, _ mail.Message) error {
		select {
		case <-time.After(*mailLatency):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	branches := []branch{
		{name: "rate_limited", email: knownEmail, deny: true},
		{name: "invalid_email", email: "not-an-email"},
		{name: "unknown_account", email: "nobody@example.com"},
		{name: "issued", email: knownEmail},
	}

	var slowest time.Duration
	fmt.Println("---- request branches (floor disabled) ----")
	for _, b := range branches {
		engine, err := probeEngine(client, slowMail, b.deny)
		if err != nil {
			fmt.Fprintf(os.Stderr, "build %s: %v\n", b.name, err)
			os.Exit(1)
		}
		s := measure(ctx, engine, b.email, *samples)
		engine.Close()
		printStats(b.name, s)
		if s.p99 > slowest {
			slowest = s.p99
		}
	}

	recommended := time.Duration(float64(slowest) * (1 + *headroom))
	fmt.Printf("recommended MinResponseFloor: %s (RESET_RESPONSE_MIN_FLOOR)\n", recommended.Round(time.Millisecond))

	wins, err := race(ctx, client, *racers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "race: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("---- single-use race ----")
	fmt.Printf("racers=%d successes=%d\n", *racers, wins)
	if wins != 1 {
		os.Exit(1)
	}
}

func redisClient(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func probeConfig() goReset.Config {
	cfg := goReset.DefaultConfig()
	cfg.Response.MinResponseFloor = 0
	cfg.RateLimit.MaxRequests = 1 << 30
	cfg.RateLimit.RedeemMaxRequests = 1 << 30
	cfg.RateLimit.SweepInterval = 0
	return cfg
}

func probeEngine(client redis.UniversalClient, mailer mail.Mailer, deny bool) (*goReset.Engine, error) {
	b := goReset.New().
		WithConfig(probeConfig()).
		WithRedis(client).
		WithAccounts(accounts{}).
		WithMailer(mailer)
	if deny {
		b = b.WithRateLimiter(denyAll{})
	}
	return b.Build()
}

func measure(ctx context.Context, engine *goReset.Engine, email string, n int) phaseStats {
	latencies := make([]time.Duration, 0, n)
	start := time.Now()
	for i := 0; i < n; i++ {
		t0 := time.Now()
		engine.RequestReset(ctx, fmt.Sprintf("198.51.100.%d", i%250), email)
		latencies = append(latencies, time.Since(t0))
	}
	return computeStats(time.Since(start), latencies)
}

func race(ctx context.Context, client redis.UniversalClient, racers int) (int64, error) {
	mails := &mail.Recorder{}
	engine, err := probeEngine(client, mails, false)
	if err != nil {
		return 0, err
	}
	defer engine.Close()

	engine.RequestReset(ctx, "198.51.100.1", knownEmail)
	msg, ok := mails.Last()
	if !ok {
		return 0, fmt.Errorf("no reset mail captured")
	}
	token, err := tokenFromBody(msg.Body)
	if err != nil {
		return 0, err
	}

	var (
		wg    sync.WaitGroup
		wins  int64
		ready = make(chan struct{})
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ready
			if engine.RedeemToken(ctx, token, "correct-horse-battery-staple").Success {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	close(ready)
	wg.Wait()
	return wins, nil
}

func tokenFromBody(body string) (string, error) {
	for _, field := range strings.Fields(body) {
		if !strings.HasPrefix(field, "http") {
			continue
		}
		link, err := url.Parse(field)
		if err != nil {
			continue
		}
		if tok := link.Query().Get("token"); tok != "" {
			return tok, nil
		}
	}
	return "", fmt.Errorf("reset mail carries no token link")
}

type phaseStats struct {
	total time.Duration
	ops   int
	p50   time.Duration
	p95   time.Duration
	p99   time.Duration
	max   time.Duration
}

func computeStats(total time.Duration, samples []time.Duration) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total: total,
		ops:   len(samples),
		p50:   percentile(samples, 50),
		p95:   percentile(samples, 95),
		p99:   percentile(samples, 99),
		max:   samples[len(samples)-1],
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%-16s ops=%d total=%s p50=%s p95=%s p99=%s max=%s\n",
		name,
		s.ops,
		s.total.Round(time.Millisecond),
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
		s.max.Round(time.Microsecond),
	)
}
