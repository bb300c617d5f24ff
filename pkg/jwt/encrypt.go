package jwt

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwe"
	"github.com/picatz/jose/v2/pkg/jwk"
)

// Encrypt returns a compact JWE whose plaintext is the claims set. The
// header must define "alg" and "enc", and "typ" defaults to "JWT".
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-7.1
func Encrypt(params header.Parameters, claims ClaimsSet, key jwk.Key, opts ...jwe.Option) (string, error) {
	if len(claims) == 0 {
		return "", fmt.Errorf("cannot encrypt token: %w", ErrNoClaimSet)
	}
	normalized, err := claims.normalize()
	if err != nil {
		return "", err
	}
	plaintext, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("failed to encode claims: %w", err)
	}

	params = params.Clone()
	if params == nil {
		params = header.Parameters{}
	}
	if !params.Has(header.Type) {
		params[header.Type] = Type
	} else if err := checkType(params); err != nil {
		return "", err
	}

	return encrypt(plaintext, params, key, opts)
}

// EncryptSigned nests a signed token in a compact JWE, setting "cty" to
// "JWT" so the recipient knows to verify the inner token.
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-5.2
func EncryptSigned(t *Token, params header.Parameters, key jwk.Key, opts ...jwe.Option) (string, error) {
	if t == nil || t.encrypted || (len(t.Signature) == 0 && t.signed == nil) {
		return "", fmt.Errorf("%w: only signed tokens can be nested", jose.ErrMalformedToken)
	}

	params = params.Clone()
	if params == nil {
		params = header.Parameters{}
	}
	params[header.ContentType] = Type

	return encrypt([]byte(t.String()), params, key, opts)
}

func encrypt(plaintext []byte, params header.Parameters, key jwk.Key, opts []jwe.Option) (string, error) {
	msg, err := jwe.Encrypt(plaintext, params, key, opts...)
	if err != nil {
		return "", err
	}
	return msg.CompactString()
}

// Decrypt decrypts a compact JWE carrying a JWT. The options are the jwe
// decryption options, so jwe.WithAllowedAlgorithms and
// jwe.WithAllowedEncryption are required.
//
// When "cty" is "JWT" the plaintext is a nested signed token, which is
// parsed and returned unverified; call Verify on it. Otherwise the claims
// are authenticated by the JWE, and the returned token's claims should be
// checked with ValidateClaims.
func Decrypt(input string, opts ...jwe.Option) (*Token, error) {
	msg, err := jwe.Parse(input)
	if err != nil {
		return nil, err
	}

	plaintext, err := msg.Decrypt(opts...)
	if err != nil {
		return nil, err
	}

	if cty, err := msg.Protected.ContentType(); err == nil && isJWTContentType(cty) {
		return ParseString(string(plaintext))
	}

	if err := checkType(msg.Protected); err != nil {
		return nil, err
	}
	claims, err := parseClaims(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jose.ErrMalformedToken, err)
	}

	return &Token{
		Header:    msg.Protected,
		Claims:    claims,
		raw:       input,
		encrypted: true,
	}, nil
}

func isJWTContentType(cty string) bool {
	return strings.EqualFold(cty, Type) || strings.EqualFold(cty, "application/"+Type)
}
