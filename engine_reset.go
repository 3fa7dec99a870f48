package goReset

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goReset/internal/flows"
	"github.com/MrEthical07/goReset/mail"
)

// RequestReset starts a reset for email on behalf of sourceIP.
//
// The result is the same for every outcome (rate limited, malformed email,
// unknown account, backend failure, mail failure or success) and the call
// takes at least Response.MinResponseFloor. Only a known account receives
// an email, carrying a fresh token that replaces any earlier one.
func (e *Engine) RequestReset(ctx context.Context, sourceIP, email string) RequestResult {
	if e == nil {
		return RequestResult{Message: RequestResetMessage}
	}
	if err := flows.RunRequestReset(ctx, sourceIP, email, e.requestResetDeps()); err != nil {
		e.logger.LogAttrs(ctx, slog.LevelDebug, "reset request completed", slog.String("outcome", string(auditErrorCode(err))))
	}
	return RequestResult{Message: RequestResetMessage}
}

// RedeemToken consumes rawToken and sets newPassword on its account.
//
// Every failure yields RedeemFailureMessage. Exactly one of any number of
// concurrent callers presenting the same valid token succeeds. Attach the
// caller's address with WithClientIP: redemptions without one skip the
// redemption throttle.
func (e *Engine) RedeemToken(ctx context.Context, rawToken, newPassword string) RedeemResult {
	if e == nil {
		return RedeemResult{Message: RedeemFailureMessage}
	}
	if _, err := flows.RunRedeemToken(ctx, rawToken, newPassword, e.redeemTokenDeps()); err != nil {
		e.logger.LogAttrs(ctx, slog.LevelDebug, "reset redeem completed", slog.String("outcome", string(auditErrorCode(err))))
		return RedeemResult{Message: RedeemFailureMessage}
	}
	return RedeemResult{Success: true, Message: RedeemSuccessMessage}
}

// CheckToken reports whether rawToken is currently redeemable without
// consuming it. Use it to decide whether to render a reset form.
func (e *Engine) CheckToken(ctx context.Context, rawToken string) bool {
	if e == nil {
		return false
	}
	return flows.RunCheckToken(ctx, rawToken, flows.CheckTokenDeps{
		StoreTimeout: e.config.Timeouts.Store,
		Logger:       e.logger,
		WellFormed:   e.issuer.WellFormed,
		Fingerprint:  e.issuer.Fingerprint,
		FindValid:    e.tokens.FindValidByFingerprint,
	})
}

func (e *Engine) requestResetDeps() flows.RequestResetDeps {
	deps := flows.RequestResetDeps{
		MinResponseFloor: e.config.Response.MinResponseFloor,
		LimiterTimeout:   e.config.Timeouts.Limiter,
		StoreTimeout:     e.config.Timeouts.Store,
		MailTimeout:      e.config.Timeouts.Mail,
		FailOpen:         e.config.RateLimit.FailOpen,

		Logger: e.logger,

		AdmitSource:    e.requestLimiter.Admit,
		NormalizeEmail: flows.NormalizeEmail,
		ValidEmail:     e.validEmail,
		FindAccount:    e.accounts.FindByEmail,
		IssueToken:     e.issuer.Issue,
		SendResetMail:  e.sendResetMail,

		MetricInc:      e.metricIncInt,
		ObserveLatency: e.observeLatency,
		EmitAudit:      e.emitAudit,

		Metrics: resetMetrics,
		Events:  resetEvents,
		Errors:  resetErrors,
	}
	if e.identityLimiter != nil {
		deps.AdmitIdentity = e.identityLimiter.Admit
	}
	return deps
}

func (e *Engine) redeemTokenDeps() flows.RedeemTokenDeps {
	deps := flows.RedeemTokenDeps{
		RedeemFloor:    e.config.Response.RedeemFloor,
		LimiterTimeout: e.config.Timeouts.Limiter,
		StoreTimeout:   e.config.Timeouts.Store,
		FailOpen:       e.config.RateLimit.FailOpen,

		Logger: e.logger,

		ClientIP:       clientIPFromContext,
		CheckPassword:  e.policy.Check,
		WellFormed:     e.issuer.WellFormed,
		Fingerprint:    e.issuer.Fingerprint,
		FindValid:      e.tokens.FindValidByFingerprint,
		MarkUsed:       e.tokens.MarkUsedAtomically,
		HashPassword:   e.hasher.Hash,
		UpdatePassword: e.accounts.UpdatePasswordHash,

		MetricInc:      e.metricIncInt,
		ObserveLatency: e.observeLatency,
		EmitAudit:      e.emitAudit,

		Metrics: resetMetrics,
		Events:  resetEvents,
		Errors:  resetErrors,
	}
	if e.redeemLimiter != nil {
		deps.AdmitRedeem = e.redeemLimiter.Admit
		deps.Unattributed = e.warnUnattributed
	}
	if e.revoker != nil {
		deps.RevokeSessions = e.revoker.RevokeAll
	}
	return deps
}

func (e *Engine) warnUnattributed(ctx context.Context) {
	e.unattributedOnce.Do(func() {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "redeem throttle skipped: no client IP in context, attach one with WithClientIP")
	})
}

func (e *Engine) validEmail(email string) bool {
	return e.validate.Var(email, "required,email,max=254") == nil
}

// ResetLink returns the link mailed for rawToken.
func (e *Engine) ResetLink(rawToken string) string {
	link := *e.resetURL
	q := link.Query()
	q.Set("token", rawToken)
	link.RawQuery = q.Encode()
	return link.String()
}

func (e *Engine) sendResetMail(ctx context.Context, to, rawToken string) error {
	var body bytes.Buffer
	if err := e.body.Execute(&body, MailData{Link: e.ResetLink(rawToken), TTL: e.config.Token.TTL}); err != nil {
		return fmt.Errorf("render reset mail: %w", err)
	}
	return e.mailer.Send(ctx, mail.Message{
		To:      to,
		Subject: e.config.Mail.Subject,
		Body:    body.String(),
	})
}

func (e *Engine) metricIncInt(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) observeLatency(id int, d time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.Observe(MetricID(id), d)
}

var resetMetrics = flows.PasswordResetMetrics{
	Request:            int(MetricResetRequest),
	RequestRateLimited: int(MetricResetRequestRateLimited),
	RequestInvalid:     int(MetricResetRequestInvalidEmail),
	RequestUnknown:     int(MetricResetRequestUnknownAccount),
	Issued:             int(MetricResetTokenIssued),
	MailFailure:        int(MetricResetMailFailure),
	Redeem:             int(MetricResetRedeem),
	RedeemSuccess:      int(MetricResetRedeemSuccess),
	RedeemInvalid:      int(MetricResetRedeemInvalid),
	RedeemConflict:     int(MetricResetRedeemConflict),
	RedeemRateLimited:  int(MetricResetRedeemRateLimited),
	PasswordPolicy:     int(MetricResetPasswordPolicy),
	Unavailable:        int(MetricBackendUnavailable),
	RequestLatency:     int(MetricRequestLatency),
	RedeemLatency:      int(MetricRedeemLatency),
}

var resetEvents = flows.PasswordResetEvents{
	Request:     AuditResetRequest,
	Issue:       AuditResetIssue,
	Redeem:      AuditResetRedeem,
	Replay:      AuditResetReplay,
	RateLimited: AuditRateLimited,
}

var resetErrors = flows.PasswordResetErrors{
	EngineNotReady:  ErrEngineNotReady,
	RateLimited:     ErrRateLimited,
	InvalidEmail:    ErrInvalidEmail,
	AccountNotFound: ErrAccountNotFound,
	TokenInvalid:    ErrTokenInvalid,
	TokenConflict:   ErrTokenConflict,
	PasswordPolicy:  ErrPasswordPolicy,
	Unavailable:     ErrUnavailable,
	Delivery:        ErrDeliveryFailed,
}
