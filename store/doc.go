// Package store defines the persistence contract for password reset tokens
// and ships an in-memory implementation.
//
// # Record semantics
//
// A [ResetToken] is identified by an opaque store-assigned ID and looked up by
// the fingerprint of the raw token. The raw token itself never reaches a store.
// A record is "valid" while it is unused and the current time is before
// ExpiresAt. Lookups never tell a caller why a record is not valid.
//
// # Backends
//
//   - [MemoryStore]: single process, tests and development.
//   - store/redisstore: Redis hashes plus Lua compare-and-set.
//   - store/pgstore: PostgreSQL via pgx with goose migrations.
//
// Every backend must pass the conformance suite in store/storetest.
package store
