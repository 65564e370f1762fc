// Package stores provides the Redis-backed secret store used for pending
// registrations and password recoveries.
//
// # Design
//
// Each secret is a versioned, binary-encoded record stored under a prefixed
// key with a TTL. Redemption goes through Take, a Lua GET→PTTL→DEL script, so
// a record is handed to at most one caller.
//
// # Architecture boundaries
//
// This package owns persistence and atomicity of transient records. It does
// NOT generate codes or hash passwords, and does not decide whether a redemption is
// valid. That belongs to internal/flows.
//
// # What this package must NOT do
//
//   - Import keygate or any sibling internal package.
//   - Log record contents.
package stores
