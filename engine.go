package goReset

import (
	"log/slog"
	"net/url"
	"sync"
	"text/template"

	"github.com/MrEthical07/goReset/internal/audit"
	"github.com/MrEthical07/goReset/internal/token"
	"github.com/MrEthical07/goReset/mail"
	"github.com/MrEthical07/goReset/password"
	"github.com/MrEthical07/goReset/store"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
)

// Engine coordinates reset requests and redemptions. It is safe for
// concurrent use. Build one with New().…Build().
type Engine struct {
	config Config
	logger *slog.Logger
	clock  Clock

	issuer          *token.Issuer
	tokens          store.TokenStore
	requestLimiter  RateLimiter
	identityLimiter RateLimiter
	redeemLimiter   RateLimiter

	accounts AccountStore
	mailer   mail.Mailer
	hasher   PasswordHasher
	policy   password.Policy
	revoker  SessionRevoker

	validate *validator.Validate
	resetURL *url.URL
	body     *template.Template

	audit   *audit.Dispatcher
	metrics *Metrics

	unattributedOnce sync.Once

	stop       func()
	background *errgroup.Group
}

// Close stops background sweepers and drains the audit queue.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.stop != nil {
		e.stop()
	}
	if e.background != nil {
		if err := e.background.Wait(); err != nil {
			e.logger.Warn("background task stopped with error", slog.String("error", err.Error()))
		}
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events never reached the sink.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the configuration the engine was built with.
func (e *Engine) Config() Config {
	return e.config
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}
