// Package internal contains helpers that are private to goReset, mainly
// secure random generation and the wire encoding of raw reset tokens.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators behind RequestReset and RedeemToken
//   - rate: sliding-window admission control (memory and Redis)
//   - redact: log-safe renderings of emails and fingerprints
//   - token: issuance and fingerprinting of reset tokens
//
// # What this package must NOT do
//
//   - Export types that appear in the public goReset API.
//   - Be imported by any package outside the goReset module.
package internal
