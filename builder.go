package goReset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"text/template"
	"time"

	"github.com/MrEthical07/goReset/internal"
	"github.com/MrEthical07/goReset/internal/audit"
	"github.com/MrEthical07/goReset/internal/rate"
	"github.com/MrEthical07/goReset/internal/token"
	"github.com/MrEthical07/goReset/mail"
	"github.com/MrEthical07/goReset/password"
	"github.com/MrEthical07/goReset/store"
	"github.com/MrEthical07/goReset/store/redisstore"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Builder assembles an Engine. A Builder can build exactly once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	tokens   store.TokenStore
	limiter  RateLimiter
	accounts AccountStore
	mailer   mail.Mailer
	hasher   PasswordHasher
	revoker  SessionRevoker

	logger    *slog.Logger
	auditSink AuditSink
	clock     Clock
	random    RandomSource

	built bool
}

// New returns a Builder holding DefaultConfig and a crypto/rand source.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		random: internal.CryptoRandom{},
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis backs the token store and every rate limiter with Redis, which
// makes them shared across instances.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithTokenStore overrides the token store, e.g. with pgstore.TokenStore.
func (b *Builder) WithTokenStore(st store.TokenStore) *Builder {
	b.tokens = st
	return b
}

// WithRateLimiter overrides the per-IP request limiter. Identity and redeem
// throttles still follow RateLimitConfig, so ProductionMode needs WithRedis
// for them unless both are disabled.
func (b *Builder) WithRateLimiter(l RateLimiter) *Builder {
	b.limiter = l
	return b
}

func (b *Builder) WithAccounts(accounts AccountStore) *Builder {
	b.accounts = accounts
	return b
}

func (b *Builder) WithMailer(m mail.Mailer) *Builder {
	b.mailer = m
	return b
}

// WithHasher replaces the default argon2id hasher.
func (b *Builder) WithHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithSessionRevoker(r SessionRevoker) *Builder {
	b.revoker = r
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithRandom replaces the random source. Passing nil makes Build fail.
func (b *Builder) WithRandom(r RandomSource) *Builder {
	b.random = r
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every component and starts the
// background sweepers of in-memory backends. Call Engine.Close to stop them.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderReused
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.accounts == nil {
		return nil, ErrMissingAccounts
	}
	if b.mailer == nil {
		return nil, ErrMissingMailer
	}
	if b.random == nil {
		return nil, ErrMissingRandom
	}

	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// -------- TOKEN STORE --------
	tokens := b.tokens
	var memoryTokens *store.MemoryStore
	if tokens == nil {
		switch {
		case b.redis != nil:
			tokens = redisstore.New(b.redis, redisstore.Config{
				Prefix:    cfg.Token.RedisPrefix,
				Retention: cfg.Token.Retention,
				Now:       clock.Now,
			})
		case cfg.Security.ProductionMode:
			return nil, ErrSharedStore
		default:
			memoryTokens = store.NewMemoryStore(clock.Now)
			tokens = memoryTokens
		}
	}

	issuer, err := token.New(tokens, b.random, clock.Now, token.Config{
		TTL:            cfg.Token.TTL,
		Bytes:          cfg.Token.Bytes,
		FingerprintKey: []byte(cfg.Token.FingerprintKey),
	})
	if err != nil {
		return nil, err
	}

	// -------- RATE LIMITERS --------
	var sweepers []*rate.Memory
	newLimiter := func(name string, maxRequests int, window time.Duration) (RateLimiter, error) {
		rc := rate.Config{MaxRequests: maxRequests, Window: window}
		if b.redis != nil {
			l, err := rate.NewRedis(b.redis, rc, cfg.RateLimit.RedisPrefix+":"+name, clock.Now)
			if err != nil {
				return nil, fmt.Errorf("%s limiter: %w", name, err)
			}
			return l, nil
		}
		// Per-process counters reset per instance behind a load balancer.
		if cfg.Security.ProductionMode {
			return nil, fmt.Errorf("%s limiter: %w", name, ErrSharedLimiter)
		}
		opts := []rate.MemoryOption{rate.WithClock(clock.Now), rate.WithLogger(logger)}
		if cfg.RateLimit.SweepInterval > 0 {
			opts = append(opts, rate.WithSweepInterval(cfg.RateLimit.SweepInterval))
		}
		m, err := rate.NewMemory(rc, opts...)
		if err != nil {
			return nil, fmt.Errorf("%s limiter: %w", name, err)
		}
		sweepers = append(sweepers, m)
		return m, nil
	}

	requestLimiter := b.limiter
	if requestLimiter == nil {
		if requestLimiter, err = newLimiter("req", cfg.RateLimit.MaxRequests, cfg.RateLimit.Window); err != nil {
			return nil, err
		}
	}
	var identityLimiter, redeemLimiter RateLimiter
	if cfg.RateLimit.EnableIdentityThrottle {
		if identityLimiter, err = newLimiter("id", cfg.RateLimit.IdentityMaxRequests, cfg.RateLimit.IdentityWindow); err != nil {
			return nil, err
		}
	}
	if cfg.RateLimit.RedeemMaxRequests > 0 {
		if redeemLimiter, err = newLimiter("redeem", cfg.RateLimit.RedeemMaxRequests, cfg.RateLimit.RedeemWindow); err != nil {
			return nil, err
		}
	}

	// -------- PASSWORD --------
	hasher := b.hasher
	if hasher == nil {
		ph, err := password.NewArgon2(password.Config{
			Memory:           cfg.Password.Memory,
			Time:             cfg.Password.Time,
			Parallelism:      cfg.Password.Parallelism,
			SaltLength:       cfg.Password.SaltLength,
			KeyLength:        cfg.Password.KeyLength,
			MinPasswordBytes: cfg.Password.MinLength,
			MaxPasswordBytes: cfg.Password.MaxLength,
		})
		if err != nil {
			return nil, err
		}
		hasher = ph
	}

	// -------- MAIL --------
	resetURL, err := url.Parse(cfg.Mail.ResetURL)
	if err != nil {
		return nil, err
	}
	body, err := template.New("reset").Option("missingkey=error").Parse(cfg.Mail.BodyTemplate)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:          cfg,
		logger:          logger,
		clock:           clock,
		issuer:          issuer,
		tokens:          tokens,
		requestLimiter:  requestLimiter,
		identityLimiter: identityLimiter,
		redeemLimiter:   redeemLimiter,
		accounts:        b.accounts,
		mailer:          b.mailer,
		hasher:          hasher,
		policy:          password.Policy{MinBytes: cfg.Password.MinLength, MaxBytes: cfg.Password.MaxLength},
		revoker:         b.revoker,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		resetURL:        resetURL,
		body:            body,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- BACKGROUND --------
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	if cfg.RateLimit.SweepInterval > 0 {
		for _, m := range sweepers {
			group.Go(m.Run(gctx))
		}
		if memoryTokens != nil {
			group.Go(purgeLoop(gctx, memoryTokens, clock, cfg.RateLimit.SweepInterval, cfg.Token.Retention, logger))
		}
	}
	engine.stop = cancel
	engine.background = group

	b.built = true
	return engine, nil
}

// purgeLoop removes memory-store tokens whose retention has passed.
func purgeLoop(ctx context.Context, st *store.MemoryStore, clock Clock, interval, retention time.Duration, logger *slog.Logger) func() error {
	return func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				n, err := st.PurgeExpired(ctx, clock.Now().Add(-retention))
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.WarnContext(ctx, "token purge failed", slog.String("error", err.Error()))
					continue
				}
				if n > 0 {
					logger.DebugContext(ctx, "purged expired reset tokens", slog.Int("removed", n))
				}
			}
		}
	}
}
