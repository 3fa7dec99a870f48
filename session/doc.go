// Package session is a small Redis session index for applications that keep
// their own session blobs.
//
// Sessions are stored as opaque bytes with a TTL and indexed per account, so
// [Store.RevokeAll] can drop every session of an account in one call. Pass
// the Store to goReset's Builder.WithSessionRevoker to sign an account out
// everywhere after its password is reset.
//
// The package does not interpret session contents and does not import goReset.
package session
