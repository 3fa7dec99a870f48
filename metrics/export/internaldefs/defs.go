package internaldefs

import (
	goReset "github.com/MrEthical07/goReset"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   goReset.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   goReset.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goReset.MetricResetRequest, Name: "goreset_request_total", Help: "Password reset requests."},
	{ID: goReset.MetricResetRequestRateLimited, Name: "goreset_request_rate_limited_total", Help: "Reset requests rejected by a rate limiter."},
	{ID: goReset.MetricResetRequestInvalidEmail, Name: "goreset_request_invalid_email_total", Help: "Reset requests with a malformed email."},
	{ID: goReset.MetricResetRequestUnknownAccount, Name: "goreset_request_unknown_account_total", Help: "Reset requests for an email without an account."},
	{ID: goReset.MetricResetTokenIssued, Name: "goreset_token_issued_total", Help: "Reset tokens issued."},
	{ID: goReset.MetricResetMailFailure, Name: "goreset_mail_failure_total", Help: "Reset mails the transport failed to send."},
	{ID: goReset.MetricResetRedeem, Name: "goreset_redeem_total", Help: "Token redemption attempts."},
	{ID: goReset.MetricResetRedeemSuccess, Name: "goreset_redeem_success_total", Help: "Successful password resets."},
	{ID: goReset.MetricResetRedeemInvalid, Name: "goreset_redeem_invalid_total", Help: "Redemptions with an unknown, used or expired token."},
	{ID: goReset.MetricResetRedeemConflict, Name: "goreset_redeem_conflict_total", Help: "Redemptions that lost the race for a token."},
	{ID: goReset.MetricResetRedeemRateLimited, Name: "goreset_redeem_rate_limited_total", Help: "Redemptions rejected by the redemption throttle."},
	{ID: goReset.MetricResetPasswordPolicy, Name: "goreset_password_policy_total", Help: "Redemptions with a password outside the policy."},
	{ID: goReset.MetricBackendUnavailable, Name: "goreset_backend_unavailable_total", Help: "Failed calls to a store, limiter or hasher."},
}

var HistogramDefs = []HistogramDef{
	{ID: goReset.MetricRequestLatency, Name: "goreset_request_latency_seconds", Help: "RequestReset latency including the response floor."},
	{ID: goReset.MetricRedeemLatency, Name: "goreset_redeem_latency_seconds", Help: "RedeemToken latency."},
}

// HistogramBounds are the upper bounds of the engine's latency buckets.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"0.75",
	"1",
	"2.5",
	"+Inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
