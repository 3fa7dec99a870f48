package rate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// window is the attempt history of one key: a ring of at most MaxRequests
// timestamps, oldest at next once full.
type window struct {
	mu     sync.Mutex
	stamps []time.Time
	next   int
	last   time.Time
	dead   bool
}

func (w *window) admit(now time.Time, cfg Config) bool {
	cutoff := now.Add(-cfg.Window)
	inWindow := 0
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			inWindow++
		}
	}

	if len(w.stamps) < cfg.MaxRequests {
		w.stamps = append(w.stamps, now)
	} else {
		w.stamps[w.next] = now
		w.next = (w.next + 1) % cfg.MaxRequests
	}
	w.last = now

	return inWindow < cfg.MaxRequests
}

// MemoryStats reports key churn for observability.
type MemoryStats struct {
	KeysCreated int64
	KeysRemoved int64
	ActiveKeys  int
	IsRunning   bool
}

// MemoryOption configures a Memory limiter.
type MemoryOption func(*Memory)

// WithSweepInterval sets how often idle keys are dropped. Zero disables the sweeper.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *Memory) {
		m.sweepInterval = d
	}
}

// WithLogger sets the logger used by the sweeper.
func WithLogger(logger *slog.Logger) MemoryOption {
	return func(m *Memory) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now Clock) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// Memory is a process-local sliding-window limiter.
type Memory struct {
	cfg Config

	mu   sync.RWMutex
	keys map[string]*window

	now           Clock
	sweepInterval time.Duration
	logger        *slog.Logger
	running       atomic.Bool

	keysCreated atomic.Int64
	keysRemoved atomic.Int64
}

// NewMemory creates a limiter. Call Start or Run to enable the sweeper.
func NewMemory(cfg Config, opts ...MemoryOption) (*Memory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Memory{
		cfg:           cfg,
		keys:          make(map[string]*window),
		now:           time.Now,
		sweepInterval: time.Minute,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Admit records an attempt under key and reports whether it is admitted.
// Only the key's own lock is held while deciding.
func (m *Memory) Admit(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	for {
		w := m.lookup(key)
		w.mu.Lock()
		if w.dead {
			// swept between lookup and lock
			w.mu.Unlock()
			continue
		}
		allowed := w.admit(m.now(), m.cfg)
		w.mu.Unlock()
		return allowed, nil
	}
}

func (m *Memory) lookup(key string) *window {
	m.mu.RLock()
	w := m.keys[key]
	m.mu.RUnlock()
	if w != nil {
		return w
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if w = m.keys[key]; w == nil {
		w = &window{stamps: make([]time.Time, 0, m.cfg.MaxRequests)}
		m.keys[key] = w
		m.keysCreated.Add(1)
	}
	return w
}

// Sweep drops keys whose newest attempt left the window and returns how many
// were removed.
func (m *Memory) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, w := range m.keys {
		w.mu.Lock()
		if now.Sub(w.last) >= m.cfg.Window {
			w.dead = true
			delete(m.keys, key)
			removed++
		}
		w.mu.Unlock()
	}
	if removed > 0 {
		m.keysRemoved.Add(int64(removed))
	}
	return removed
}

// Start runs the sweeper until ctx is cancelled.
func (m *Memory) Start(ctx context.Context) error {
	if m.sweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be > 0, got %v", m.sweepInterval)
	}
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("rate limiter sweeper already running")
	}
	defer m.running.Store(false)

	m.logger.InfoContext(ctx, "rate limiter sweeper started",
		slog.Duration("sweep_interval", m.sweepInterval))

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.InfoContext(context.Background(), "rate limiter sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.DebugContext(ctx, "rate limiter swept idle keys", slog.Int("removed", n))
			}
		}
	}
}

// Run adapts Start to errgroup.Group.Go; cancellation is a clean exit.
func (m *Memory) Run(ctx context.Context) func() error {
	return func() error {
		err := m.Start(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}
}

// Stats returns current key counts.
func (m *Memory) Stats() MemoryStats {
	m.mu.RLock()
	active := len(m.keys)
	m.mu.RUnlock()
	return MemoryStats{
		KeysCreated: m.keysCreated.Load(),
		KeysRemoved: m.keysRemoved.Load(),
		ActiveKeys:  active,
		IsRunning:   m.running.Load(),
	}
}
