package base64

import (
	"errors"
	"fmt"

	asmbase64 "github.com/segmentio/asm/base64"
)

// ErrNonCanonical is returned by Decode for input that decodes, but is not
// the unique unpadded base64url encoding of its bytes: padding characters,
// embedded line breaks, or non-zero trailing bits.
var ErrNonCanonical = errors.New("base64: non-canonical base64url input")

// Decode returns the base64url decoded bytes from the given input.
// This function implements base64url decoding as defined in RFC 4648 Section 5,
// which is used in JWS and JWE specifications (RFC 7515, RFC 7516).
//
// Input must be unpadded. Empty input decodes to an empty, non-nil slice,
// because empty segments are legal (detached payloads, direct encryption).
func Decode(input string) ([]byte, error) {
	if len(input) == 0 {
		return []byte{}, nil
	}

	result, err := asmbase64.RawURLEncoding.DecodeString(input)
	if err != nil {
		return nil, fmt.Errorf("base64: invalid base64url input: %w", err)
	}

	// Only one spelling of any byte string is accepted, otherwise a token
	// could be altered without changing what it decodes to.
	if asmbase64.RawURLEncoding.EncodeToString(result) != input {
		return nil, ErrNonCanonical
	}

	return result, nil
}

// Encode returns the base64url encoded string from the given input.
// This function implements base64url encoding as defined in RFC 4648 Section 5,
// which is used in JWS and JWE specifications (RFC 7515, RFC 7516).
//
// The output never contains padding characters.
func Encode(input []byte) string {
	if len(input) == 0 {
		return ""
	}
	return asmbase64.RawURLEncoding.EncodeToString(input)
}

// EncodeString is shorthand for Encode([]byte(input)).
func EncodeString(input string) string {
	return Encode([]byte(input))
}
