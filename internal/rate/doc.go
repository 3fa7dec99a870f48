// Package rate implements sliding-window admission control for reset
// requests.
//
// # Window semantics
//
// Every evaluated call is recorded as one attempt, admitted or not. A call is
// rejected when at least MaxRequests earlier attempts for the same key fall
// inside the trailing Window. Only the newest MaxRequests timestamps per key
// are kept, which is enough to decide and bounds memory under a flood.
//
// Backends:
//   - [Memory]: per-key mutex, periodic sweep of idle keys.
//   - [Redis]: one sorted set per key, updated by a single Lua script.
//
// # What this package must NOT do
//
//   - Decide which keys a request is evaluated against (the engine does).
//   - Be imported outside the goReset module.
package rate
