// Package flows contains pure-function orchestrators for every Engine
// workflow: registration, authentication, token refresh and password
// recovery.
//
// Each Run* function accepts a typed dependency struct and has no side
// effects beyond those dependencies, so flows can be exercised with plain
// closures in tests and the Engine type stays thin.
//
// # Architecture boundaries
//
// Flow functions coordinate the secret store, account store, hasher, token
// manager, notifier, audit and metrics. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import keygate (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency closures.
package flows
