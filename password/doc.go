// Package password implements salted, deliberately slow password hashing.
//
// Two hashers are provided. [Argon2] (the default) encodes digests in PHC
// string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
//
// [Bcrypt] produces standard $2a$ digests. Both expose Hash and Verify with
// the same signatures, so callers can swap them behind an interface.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password strength rules
// are enforced by the keygate Engine before a password ever reaches a hasher.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other keygate package.
//   - Log plaintext passwords.
package password
