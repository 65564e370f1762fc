// Package httpapi serves the keygate workflows as a JSON API on gin.
//
// Routes:
//
//	POST /auth/register                   start a registration, mails a code
//	POST /auth/register-confirm           {"code"} creates the account
//	POST /auth/login                      {"nickname","password","token_time"}
//	POST /auth/logout                     clears the refresh cookie
//	POST /auth/token/refresh              new access token from the cookie
//	POST /auth/request-password-recovery  {"email"} mails a recovery code
//	POST /auth/password-recovery          {"code","password","confirm_password"}
//	GET  /auth/session                    subject of the bearer access token
//	GET  /healthz
//	GET  /metrics                         when Options.Metrics is set
//
// The refresh token travels only in the HttpOnly "refreshToken" cookie.
// Field problems come back as 400 {"errors": {field: message}}. Login
// failures are 404 per field, or a single 401 with
// Options.MaskCredentialErrors.
package httpapi
