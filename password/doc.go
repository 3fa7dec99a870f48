// Package password hashes new credentials chosen during a reset.
//
// # Output format
//
// [Argon2] produces PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Bcrypt] produces standard $2a$ strings for stores that already use bcrypt.
//
// Both enforce a byte-length [Policy] before doing any work, so an oversized
// password cannot be used to burn CPU.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Log plaintext passwords.
package password
