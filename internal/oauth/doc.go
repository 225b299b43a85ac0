// Package oauth implements the token lifecycle engine for Roomkit's
// embedded OAuth 2.0 authorization server.
//
// It covers client resolution and authentication, scope algebra, PKCE
// verification, single-use authorization codes, opaque access/refresh
// token issuance, refresh token rotation with replay detection,
// revocation, and introspection.
//
// Tokens are opaque 256-bit random values. Raw values are returned to the
// caller exactly once; only their SHA-256 hash is ever persisted. Every
// validation path resolves a presented raw value to a stored row, so
// revocation takes effect immediately.
//
// The two operations with real concurrency hazards - code redemption and
// refresh rotation - run as single SQLite transactions so that concurrent
// attempts on the same code or token cannot both succeed.
package oauth
