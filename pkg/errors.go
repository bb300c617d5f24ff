package jose

import "errors"

// Errors returned by the JOSE packages. Callers should match them with
// errors.Is, since most are wrapped with additional context.
var (
	// ErrInvalidKey is returned for malformed, inconsistent, or unsuitable
	// key material, including public keys used where a private key is needed.
	ErrInvalidKey = errors.New("jose: invalid key")

	// ErrUnsupportedAlgorithm is returned for unknown algorithm identifiers,
	// and for registered ones the caller has not allowed.
	ErrUnsupportedAlgorithm = errors.New("jose: unsupported algorithm")

	// ErrMalformedToken is returned when a serialized JWS or JWE cannot be
	// parsed: wrong segment count, invalid base64url, or non-JSON headers.
	ErrMalformedToken = errors.New("jose: malformed token")

	// ErrInvalidHeader is returned for missing required parameters,
	// conflicting parameters, or an algorithm that does not fit the key.
	ErrInvalidHeader = errors.New("jose: invalid header")

	// ErrAuthenticationFailure is returned when a signature or an
	// authentication tag does not verify. It is never wrapped with detail.
	ErrAuthenticationFailure = errors.New("jose: authentication failure")

	// ErrKeyMismatch is returned when strict key ID matching is requested and
	// no caller supplied key matches the token's "kid".
	ErrKeyMismatch = errors.New("jose: key mismatch")
)
