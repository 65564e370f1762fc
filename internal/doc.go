// Package internal contains helper utilities that are private to keygate,
// currently the one-time code generator.
//
// # Sub-packages
//
//   - flows: pure-function orchestrators for every Engine workflow
//   - stores: Redis-backed secret store and pending-record codecs
//   - config: service configuration for cmd/keygate
//
// # What this package must NOT do
//
//   - Export types that appear in the public keygate API.
//   - Be imported by any package outside the keygate module.
package internal
