package goReset

import "errors"

// Outcome kinds. The engine never returns these to the requester; they only
// reach logs and audit events. Match them with errors.Is.
var (
	ErrRateLimited     = errors.New("rate limited")
	ErrInvalidEmail    = errors.New("invalid email")
	ErrAccountNotFound = errors.New("account not found")
	ErrTokenInvalid    = errors.New("reset token invalid or expired")
	ErrTokenConflict   = errors.New("reset token already redeemed")
	ErrPasswordPolicy  = errors.New("password does not meet policy")
	ErrUnavailable     = errors.New("backend unavailable")
	ErrDeliveryFailed  = errors.New("reset mail delivery failed")
	ErrEngineNotReady  = errors.New("engine not ready")
)

// Build errors.
var (
	ErrMissingAccounts = errors.New("account store is required")
	ErrMissingMailer   = errors.New("mailer is required")
	ErrMissingRandom   = errors.New("random source is required")
	ErrSharedStore     = errors.New("production mode requires a shared token store")
	ErrSharedLimiter   = errors.New("production mode requires shared rate limiters")
	ErrBuilderReused   = errors.New("builder already used")
)

// Fixed external messages. Every branch of an operation yields exactly one
// of these, byte for byte.
const (
	RequestResetMessage  = "If an account exists for that email, a password reset link has been sent."
	RedeemSuccessMessage = "Your password has been reset."
	RedeemFailureMessage = "Password reset failed. The link may be invalid or expired, or the new password does not meet requirements."
)
