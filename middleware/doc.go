// Package middleware guards routes with keygate access tokens.
//
//   - [Guard] wraps a net/http handler.
//   - [Gin] is the same check as gin middleware.
//
// Both read the Authorization bearer token, call ValidateAccess and attach
// the resulting principal to the request. Token logic stays in the engine;
// this package only translates HTTP into that call.
package middleware
