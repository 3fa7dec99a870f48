package flows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goReset/internal/redact"
	"github.com/MrEthical07/goReset/store"
)

type PasswordResetMetrics struct {
	Request            int
	RequestRateLimited int
	RequestInvalid     int
	RequestUnknown     int
	Issued             int
	MailFailure        int
	Redeem             int
	RedeemSuccess      int
	RedeemInvalid      int
	RedeemConflict     int
	RedeemRateLimited  int
	PasswordPolicy     int
	Unavailable        int
	RequestLatency     int
	RedeemLatency      int
}

type PasswordResetEvents struct {
	Request     string
	Issue       string
	Redeem      string
	Replay      string
	RateLimited string
}

type PasswordResetErrors struct {
	EngineNotReady  error
	RateLimited     error
	InvalidEmail    error
	AccountNotFound error
	TokenInvalid    error
	TokenConflict   error
	PasswordPolicy  error
	Unavailable     error
	Delivery        error
}

// RequestResetDeps is built by the engine for every RequestReset call.
type RequestResetDeps struct {
	MinResponseFloor time.Duration
	LimiterTimeout   time.Duration
	StoreTimeout     time.Duration
	MailTimeout      time.Duration
	FailOpen         bool

	Logger *slog.Logger
	Start  func() time.Time
	Since  func(time.Time) time.Duration
	Sleep  func(context.Context, time.Duration) error

	AdmitSource    func(context.Context, string) (bool, error)
	AdmitIdentity  func(context.Context, string) (bool, error)
	NormalizeEmail func(string) string
	ValidEmail     func(string) bool
	FindAccount    func(context.Context, string) (string, bool, error)
	IssueToken     func(context.Context, string) (string, store.ResetToken, error)
	SendResetMail  func(context.Context, string, string) error

	MetricInc      func(int)
	ObserveLatency func(int, time.Duration)
	EmitAudit      func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// RunRequestReset drives one reset request and returns the internal outcome.
// The caller must never surface that outcome: every branch maps to the same
// confirmation, and every branch returns no earlier than MinResponseFloor.
func RunRequestReset(ctx context.Context, sourceIP, email string, deps RequestResetDeps) (err error) {
	normalizeRequestResetDeps(&deps)

	start := deps.Start()
	defer func() {
		padToFloor(ctx, start, deps.MinResponseFloor, deps.Since, deps.Sleep)
		deps.ObserveLatency(deps.Metrics.RequestLatency, deps.Since(start))
	}()

	if deps.AdmitSource == nil || deps.FindAccount == nil || deps.IssueToken == nil || deps.SendResetMail == nil {
		return deps.Errors.EngineNotReady
	}
	deps.MetricInc(deps.Metrics.Request)

	admitted, err := admit(ctx, deps.AdmitSource, sourceKey(sourceIP), deps.LimiterTimeout)
	if err != nil {
		deps.Logger.LogAttrs(ctx, slog.LevelWarn, "rate limiter unavailable", slog.String("ip", redact.IP(sourceIP)), redact.ErrorAttr(err))
		deps.MetricInc(deps.Metrics.Unavailable)
		if !deps.FailOpen {
			deps.EmitAudit(ctx, deps.Events.Request, false, "", sourceIP, deps.Errors.Unavailable, reasonMeta("limiter_unavailable"))
			return fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
		}
		admitted = true
	}
	if !admitted {
		deps.MetricInc(deps.Metrics.RequestRateLimited)
		deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", sourceIP, deps.Errors.RateLimited, func() map[string]string {
			return map[string]string{"operation": "password_reset_request", "scope": "ip"}
		})
		return deps.Errors.RateLimited
	}

	normalized := deps.NormalizeEmail(email)
	if !deps.ValidEmail(normalized) {
		deps.MetricInc(deps.Metrics.RequestInvalid)
		deps.EmitAudit(ctx, deps.Events.Request, false, "", sourceIP, deps.Errors.InvalidEmail, reasonMeta("invalid_email"))
		return deps.Errors.InvalidEmail
	}

	if deps.AdmitIdentity != nil {
		admitted, err := admit(ctx, deps.AdmitIdentity, IdentityKey(normalized), deps.LimiterTimeout)
		if err != nil {
			deps.Logger.LogAttrs(ctx, slog.LevelWarn, "identity rate limiter unavailable", redact.ErrorAttr(err))
			deps.MetricInc(deps.Metrics.Unavailable)
			if !deps.FailOpen {
				return fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
			}
			admitted = true
		}
		if !admitted {
			deps.MetricInc(deps.Metrics.RequestRateLimited)
			deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", sourceIP, deps.Errors.RateLimited, func() map[string]string {
				return map[string]string{"operation": "password_reset_request", "scope": "identity", "email": redact.Email(normalized)}
			})
			return deps.Errors.RateLimited
		}
	}

	lookupCtx, cancel := withTimeout(ctx, deps.StoreTimeout)
	accountID, found, err := deps.FindAccount(lookupCtx, normalized)
	cancel()
	if err != nil {
		deps.Logger.LogAttrs(ctx, slog.LevelError, "account lookup failed", redact.EmailAttr(normalized), redact.ErrorAttr(err))
		deps.MetricInc(deps.Metrics.Unavailable)
		deps.EmitAudit(ctx, deps.Events.Request, false, "", sourceIP, deps.Errors.Unavailable, reasonMeta("lookup_failed"))
		return fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	if !found {
		deps.MetricInc(deps.Metrics.RequestUnknown)
		deps.EmitAudit(ctx, deps.Events.Request, false, "", sourceIP, deps.Errors.AccountNotFound, func() map[string]string {
			return map[string]string{"email": redact.Email(normalized)}
		})
		return deps.Errors.AccountNotFound
	}

	issueCtx, cancel := withTimeout(ctx, deps.StoreTimeout)
	raw, record, err := deps.IssueToken(issueCtx, accountID)
	cancel()
	if err != nil {
		deps.Logger.LogAttrs(ctx, slog.LevelError, "reset token issue failed", redact.AccountAttr(accountID), redact.ErrorAttr(err))
		deps.MetricInc(deps.Metrics.Unavailable)
		deps.EmitAudit(ctx, deps.Events.Issue, false, accountID, sourceIP, deps.Errors.Unavailable, nil)
		return fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	deps.MetricInc(deps.Metrics.Issued)
	deps.EmitAudit(ctx, deps.Events.Issue, true, accountID, sourceIP, nil, func() map[string]string {
		return map[string]string{
			"fingerprint": redact.Fingerprint(record.Fingerprint),
			"expires_at":  record.ExpiresAt.UTC().Format(time.RFC3339),
		}
	})

	mailCtx, cancel := withTimeout(ctx, deps.MailTimeout)
	err = deps.SendResetMail(mailCtx, normalized, raw)
	cancel()
	if err != nil {
		deps.Logger.LogAttrs(ctx, slog.LevelWarn, "reset mail delivery failed",
			redact.AccountAttr(accountID), redact.FingerprintAttr(record.Fingerprint), redact.ErrorAttr(err))
		deps.MetricInc(deps.Metrics.MailFailure)
		deps.EmitAudit(ctx, deps.Events.Request, false, accountID, sourceIP, deps.Errors.Delivery, reasonMeta("mail_failed"))
		return errors.Join(deps.Errors.Delivery, err)
	}

	deps.Logger.LogAttrs(ctx, slog.LevelInfo, "reset link sent", redact.AccountAttr(accountID), redact.FingerprintAttr(record.Fingerprint))
	deps.EmitAudit(ctx, deps.Events.Request, true, accountID, sourceIP, nil, nil)
	return nil
}

// RedeemTokenDeps is built by the engine for every RedeemToken call.
type RedeemTokenDeps struct {
	RedeemFloor    time.Duration
	LimiterTimeout time.Duration
	StoreTimeout   time.Duration
	FailOpen       bool

	Logger *slog.Logger
	Start  func() time.Time
	Since  func(time.Time) time.Duration
	Sleep  func(context.Context, time.Duration) error

	ClientIP       func(context.Context) string
	AdmitRedeem    func(context.Context, string) (bool, error)
	Unattributed   func(context.Context)
	CheckPassword  func(string) error
	WellFormed     func(string) bool
	Fingerprint    func(string) [32]byte
	FindValid      func(context.Context, [32]byte) (store.ResetToken, bool, error)
	MarkUsed       func(context.Context, string) (bool, error)
	HashPassword   func(string) (string, error)
	UpdatePassword func(context.Context, string, string) error
	RevokeSessions func(context.Context, string) error

	MetricInc      func(int)
	ObserveLatency func(int, time.Duration)
	EmitAudit      func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// RunRedeemToken consumes rawToken and installs newPassword. It returns the
// account whose credential changed.
//
// Once MarkUsed reports success the token stays consumed, even when hashing or
// persisting the new credential fails afterwards.
func RunRedeemToken(ctx context.Context, rawToken, newPassword string, deps RedeemTokenDeps) (accountID string, err error) {
	normalizeRedeemTokenDeps(&deps)

	start := deps.Start()
	defer func() {
		padToFloor(ctx, start, deps.RedeemFloor, deps.Since, deps.Sleep)
		deps.ObserveLatency(deps.Metrics.RedeemLatency, deps.Since(start))
	}()

	if deps.CheckPassword == nil || deps.Fingerprint == nil || deps.FindValid == nil || deps.MarkUsed == nil ||
		deps.HashPassword == nil || deps.UpdatePassword == nil {
		return "", deps.Errors.EngineNotReady
	}
	deps.MetricInc(deps.Metrics.Redeem)
	ip := deps.ClientIP(ctx)

	// Without a source address every caller would share one bucket.
	if deps.AdmitRedeem != nil && ip == "" {
		deps.Unattributed(ctx)
	}
	if deps.AdmitRedeem != nil && ip != "" {
		admitted, err := admit(ctx, deps.AdmitRedeem, redeemKey(ip), deps.LimiterTimeout)
		if err != nil {
			deps.Logger.LogAttrs(ctx, slog.LevelWarn, "redeem rate limiter unavailable", redact.ErrorAttr(err))
			deps.MetricInc(deps.Metrics.Unavailable)
			if !deps.FailOpen {
				return "", fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
			}
			admitted = true
		}
		if !admitted {
			deps.MetricInc(deps.Metrics.RedeemRateLimited)
			deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", ip, deps.Errors.RateLimited, func() map[string]string {
				return map[string]string{"operation": "password_reset_redeem", "scope": "ip"}
			})
			return "", deps.Errors.RateLimited
		}
	}

	if err := deps.CheckPassword(newPassword); err != nil {
		deps.MetricInc(deps.Metrics.PasswordPolicy)
		deps.EmitAudit(ctx, deps.Events.Redeem, false, "", ip, deps.Errors.PasswordPolicy, reasonMeta("password_policy"))
		return "", fmt.Errorf("%w: %v", deps.Errors.PasswordPolicy, err)
	}

	if rawToken == "" || (deps.WellFormed != nil && !deps.WellFormed(rawToken)) {
		deps.MetricInc(deps.Metrics.RedeemInvalid)
		deps.EmitAudit(ctx, deps.Events.Redeem, false, "", ip, deps.Errors.TokenInvalid, reasonMeta("malformed"))
		return "", deps.Errors.TokenInvalid
	}
	fp := deps.Fingerprint(rawToken)

	findCtx, cancel := withTimeout(ctx, deps.StoreTimeout)
	record, found, err := deps.FindValid(findCtx, fp)
	cancel()
	if err != nil {
		deps.Logger.LogAttrs(ctx, slog.LevelError, "reset token lookup failed", redact.FingerprintAttr(fp), redact.ErrorAttr(err))
		deps.MetricInc(deps.Metrics.Unavailable)
		deps.EmitAudit(ctx, deps.Events.Redeem, false, "", ip, deps.Errors.Unavailable, reasonMeta("lookup_failed"))
		return "", fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	if !found {
		deps.MetricInc(deps.Metrics.RedeemInvalid)
		deps.EmitAudit(ctx, deps.Events.Redeem, false, "", ip, deps.Errors.TokenInvalid, func() map[string]string {
			return map[string]string{"fingerprint": redact.Fingerprint(fp)}
		})
		return "", deps.Errors.TokenInvalid
	}

	markCtx, cancel := withTimeout(ctx, deps.StoreTimeout)
	won, err := deps.MarkUsed(markCtx, record.ID)
	cancel()
	if err != nil {
		deps.Logger.LogAttrs(ctx, slog.LevelError, "reset token consume failed",
			redact.AccountAttr(record.AccountID), redact.FingerprintAttr(fp), redact.ErrorAttr(err))
		deps.MetricInc(deps.Metrics.Unavailable)
		deps.EmitAudit(ctx, deps.Events.Redeem, false, record.AccountID, ip, deps.Errors.Unavailable, reasonMeta("consume_failed"))
		return "", fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	if !won {
		deps.MetricInc(deps.Metrics.RedeemConflict)
		deps.EmitAudit(ctx, deps.Events.Replay, false, record.AccountID, ip, deps.Errors.TokenConflict, func() map[string]string {
			return map[string]string{"fingerprint": redact.Fingerprint(fp)}
		})
		return "", deps.Errors.TokenConflict
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		deps.Logger.LogAttrs(ctx, slog.LevelError, "password hashing failed after token was consumed",
			redact.AccountAttr(record.AccountID), redact.FingerprintAttr(fp), redact.ErrorAttr(err))
		deps.MetricInc(deps.Metrics.Unavailable)
		deps.EmitAudit(ctx, deps.Events.Redeem, false, record.AccountID, ip, deps.Errors.Unavailable, reasonMeta("hash_failed"))
		return "", fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}

	writeCtx, cancel := withTimeout(ctx, deps.StoreTimeout)
	err = deps.UpdatePassword(writeCtx, record.AccountID, hash)
	cancel()
	if err != nil {
		deps.Logger.LogAttrs(ctx, slog.LevelError, "password update failed after token was consumed",
			redact.AccountAttr(record.AccountID), redact.FingerprintAttr(fp), redact.ErrorAttr(err))
		deps.MetricInc(deps.Metrics.Unavailable)
		deps.EmitAudit(ctx, deps.Events.Redeem, false, record.AccountID, ip, deps.Errors.Unavailable, reasonMeta("update_failed"))
		return "", fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}

	deps.MetricInc(deps.Metrics.RedeemSuccess)
	deps.EmitAudit(ctx, deps.Events.Redeem, true, record.AccountID, ip, nil, func() map[string]string {
		return map[string]string{"fingerprint": redact.Fingerprint(fp)}
	})
	deps.Logger.LogAttrs(ctx, slog.LevelInfo, "password reset completed", redact.AccountAttr(record.AccountID))

	if deps.RevokeSessions != nil {
		revokeCtx, cancel := withTimeout(ctx, deps.StoreTimeout)
		err := deps.RevokeSessions(revokeCtx, record.AccountID)
		cancel()
		if err != nil {
			deps.Logger.LogAttrs(ctx, slog.LevelWarn, "session revocation failed after password reset",
				redact.AccountAttr(record.AccountID), redact.ErrorAttr(err))
		}
	}
	return record.AccountID, nil
}

// CheckTokenDeps is built by the engine for every CheckToken call.
type CheckTokenDeps struct {
	StoreTimeout time.Duration
	Logger       *slog.Logger

	WellFormed  func(string) bool
	Fingerprint func(string) [32]byte
	FindValid   func(context.Context, [32]byte) (store.ResetToken, bool, error)
}

// RunCheckToken reports whether rawToken would currently be accepted. It
// never consumes the token. Backend errors report false.
func RunCheckToken(ctx context.Context, rawToken string, deps CheckTokenDeps) bool {
	if deps.Logger == nil {
		deps.Logger = discardLogger
	}
	if rawToken == "" || deps.Fingerprint == nil || deps.FindValid == nil {
		return false
	}
	if deps.WellFormed != nil && !deps.WellFormed(rawToken) {
		return false
	}
	fp := deps.Fingerprint(rawToken)

	findCtx, cancel := withTimeout(ctx, deps.StoreTimeout)
	defer cancel()
	_, found, err := deps.FindValid(findCtx, fp)
	if err != nil {
		deps.Logger.LogAttrs(ctx, slog.LevelWarn, "reset token check failed", redact.FingerprintAttr(fp), redact.ErrorAttr(err))
		return false
	}
	return found
}

func reasonMeta(reason string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"reason": reason}
	}
}

func normalizeRequestResetDeps(deps *RequestResetDeps) {
	if deps.Logger == nil {
		deps.Logger = discardLogger
	}
	if deps.Start == nil {
		deps.Start = time.Now
	}
	if deps.Since == nil {
		deps.Since = time.Since
	}
	if deps.Sleep == nil {
		deps.Sleep = Sleep
	}
	if deps.NormalizeEmail == nil {
		deps.NormalizeEmail = NormalizeEmail
	}
	if deps.ValidEmail == nil {
		deps.ValidEmail = func(s string) bool { return s != "" }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.ObserveLatency == nil {
		deps.ObserveLatency = func(int, time.Duration) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}

func normalizeRedeemTokenDeps(deps *RedeemTokenDeps) {
	if deps.Logger == nil {
		deps.Logger = discardLogger
	}
	if deps.Start == nil {
		deps.Start = time.Now
	}
	if deps.Since == nil {
		deps.Since = time.Since
	}
	if deps.Sleep == nil {
		deps.Sleep = Sleep
	}
	if deps.ClientIP == nil {
		deps.ClientIP = func(context.Context) string { return "" }
	}
	if deps.Unattributed == nil {
		deps.Unattributed = func(context.Context) {}
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.ObserveLatency == nil {
		deps.ObserveLatency = func(int, time.Duration) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}
