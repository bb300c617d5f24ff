// Package jwt provides a simple and easy-to-use interface
// for working with JSON Web Tokens (JWTs).
//
// It supports creating, parsing, and verifying signed JWTs,
// encrypting claims or nested signed tokens with JWE, and
// checking the registered time, issuer, and audience claims.
// Signing and encryption are delegated to the jws and jwe
// packages, so the same algorithm allow-lists and key rules
// apply.
package jwt
