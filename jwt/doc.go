// Package jwt issues and verifies the stateless access and refresh tokens
// handed out after login.
//
// Both token types are JWTs whose subject is the account ID. A token_type
// claim keeps them apart: ParseAccess rejects refresh tokens and vice versa.
// Nothing is persisted, so refresh tokens cannot be revoked before expiry.
package jwt
