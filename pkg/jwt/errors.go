package jwt

import (
	"errors"
	"fmt"
)

var (
	ErrNoClaimSet = errors.New("no claim set")

	// ErrMissingClaim is returned when a claim that is required is absent.
	ErrMissingClaim = errors.New("missing claim")

	// ErrInvalidClaim is returned when a registered claim has the wrong
	// JSON type.
	ErrInvalidClaim = errors.New("invalid claim")

	// ErrTokenExpired is returned when the "exp" claim is not after the
	// current time, allowing for clock skew.
	ErrTokenExpired = errors.New("token is expired")

	// ErrTokenNotYetValid is returned when the "nbf" claim is after the
	// current time, allowing for clock skew.
	ErrTokenNotYetValid = errors.New("token is not valid yet")

	// ErrInvalidIssuer is returned when the "iss" claim is not allowed.
	ErrInvalidIssuer = errors.New("issuer is not allowed")

	// ErrInvalidAudience is returned when none of the "aud" values are
	// allowed.
	ErrInvalidAudience = errors.New("audience is not allowed")
)

type ErrSigningFailed struct {
	Inner error
}

func (e *ErrSigningFailed) Error() string {
	return fmt.Sprintf("signing failed: %v", e.Inner)
}

func (e *ErrSigningFailed) Unwrap() error {
	return e.Inner
}

func NewSigningError(inner error) *ErrSigningFailed {
	return &ErrSigningFailed{Inner: inner}
}

// ErrInvalidType is returned when a token's "typ" header is not "JWT".
type ErrInvalidType struct {
	Inner error
}

func (e *ErrInvalidType) Error() string {
	return fmt.Sprintf("invalid type: %v", e.Inner)
}

func (e *ErrInvalidType) Unwrap() error {
	return e.Inner
}

func NewInvalidTypeError(inner error) *ErrInvalidType {
	return &ErrInvalidType{Inner: inner}
}
