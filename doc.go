// Package keygate implements account registration, login, token refresh and
// password recovery for services that authenticate users by nickname or
// email and a password.
//
// Registration and recovery are two-step: the first call parks the request in
// a Redis-backed secret store under a random six-digit code and emails the
// code; the second call redeems it. Codes are single-use and expire after
// three minutes. Logins return a signed access token and a longer-lived
// refresh token; refresh tokens are stateless and only mint new access
// tokens.
//
// # Architecture boundaries
//
// keygate is the public surface. It exposes [Engine], [Builder], [Config] and
// the storage interfaces [AccountStore], [SecretStore] and [Notifier].
// Workflow orchestration, code generation and the Redis secret store live
// under internal/. Concrete account stores live under storage/, mailers under
// notify/ and the HTTP surface under transport/httpapi.
//
// # Concurrency
//
// Engine methods are safe for concurrent use after [Builder.Build]. Code
// redemption is atomic in the secret store, so a code confirmed twice in
// parallel creates at most one account.
package keygate
