// Package goReset issues and redeems single-use, time-bounded password reset
// tokens without revealing whether an email belongs to an account.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goReset is the public surface: [Engine], [Builder], [Config] and the
// collaborator interfaces ([AccountStore], [PasswordHasher], [SessionRevoker]).
// Token generation, rate limiting, audit dispatch and flow orchestration live
// under internal/. Persistence backends live in store/, mail transports in
// mail/, hashers in password/. session/ revokes sessions after a reset,
// middleware/ adapts net/http and metrics/export publishes counters.
//
// # Guarantees
//
//   - RequestReset returns the same message on every branch and never before
//     Response.MinResponseFloor has elapsed.
//   - Only a token fingerprint is stored. Raw tokens and passwords never
//     reach a log record or audit event.
//   - A token is redeemed at most once, even under concurrent redemption.
//   - Issuing a token invalidates every earlier token of the account.
//
// # What this package must NOT do
//
//   - Surface internal outcome errors to the requester.
//   - Hold a lock across a store, mailer or sleep call.
package goReset
