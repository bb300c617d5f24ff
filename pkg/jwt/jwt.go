package jwt

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jws"
	"github.com/picatz/jose/v2/pkg/jwk"
)

// Type "JWT" is the media type used by JSON Web Token (JWT).
//
// # Example
//
//	header := header.Parameters{
//		header.Type:      jwt.Type,
//		header.Algorithm: jwa.HS256,
//	}
//
// https://www.rfc-editor.org/rfc/rfc7519.html#section-5.1
const Type = header.TypeJWT

// Token is a decoded JSON Web Token, a string representing a
// set of claims as a JSON object that is encoded in a JWS or
// JWE, enabling the claims to be digitally signed or MACed
// and/or encrypted.
//
// A signed JWT contains three parts, separated by dots (".") which are:
//
//  1. Header
//  2. Claims (Payload)
//  3. Signature
//
// Tokens returned by Decrypt carry the JWE protected header and no
// signature.
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-1
type Token struct {
	// Header is the set of parameters that are used to describe
	// the cryptographic operations applied to the JWT claims set.
	Header header.Parameters

	// Claims is the set of claims that are asserted by the JWT.
	//
	// This is sometimes referred to as the "payload".
	Claims ClaimsSet

	// Signature is the cryptographic signature or MAC value
	// that is used to validate the JWT.
	Signature []byte

	// raw is the (original) string representation of the JWT.
	raw string

	// signed is the JWS the token was signed or parsed as, which keeps
	// the exact signing input.
	signed *jws.Signature

	// encrypted is set for tokens whose claims were decrypted from a JWE.
	encrypted bool
}

// New can be used to create a signed Token object. If this fails for any
// reason, an error is returned with a nil token.
//
// The header must define "alg". The "typ" (header.Type) defaults to "JWT",
// and any other value is rejected.
//
// The claims set must not be empty. Registered time claims may be given
// as time.Time or integer seconds, and registered string claims may be
// given as a fmt.Stringer.
//
// The key must support signing with the algorithm defined in the header,
// see jwk.CheckSupport.
func New(params header.Parameters, claims ClaimsSet, key jwk.Key, opts ...jws.Option) (*Token, error) {
	// Given params set cannot be empty.
	if len(params) == 0 {
		return nil, fmt.Errorf("%w: cannot create token with empty header parameters", jose.ErrInvalidHeader)
	}

	// Given claims set cannot be empty.
	if len(claims) == 0 {
		return nil, fmt.Errorf("cannot create token: %w", ErrNoClaimSet)
	}

	normalized, err := claims.normalize()
	if err != nil {
		return nil, err
	}

	params = params.Clone()
	if !params.Has(header.Type) {
		params[header.Type] = Type
	} else if err := checkType(params); err != nil {
		return nil, err
	}

	token := &Token{
		Header: params,
		Claims: normalized,
	}

	if _, err := token.Sign(key, opts...); err != nil {
		return nil, err
	}

	return token, nil
}

// Sign signs the token's header and claims with the given key, replacing
// any previous signature, and returns the signature. Registered claims are
// normalized first, as in New.
func (t *Token) Sign(key jwk.Key, opts ...jws.Option) ([]byte, error) {
	claims, err := t.Claims.normalize()
	if err != nil {
		return nil, NewSigningError(err)
	}
	t.Claims = claims

	payload, err := json.Marshal(t.Claims)
	if err != nil {
		return nil, NewSigningError(fmt.Errorf("failed to encode claims: %w", err))
	}

	s, err := jws.New(t.Header, payload, key, opts...)
	if err != nil {
		return nil, NewSigningError(err)
	}

	t.Header = s.Header
	t.Signature = s.Signature
	t.signed = s
	t.raw = s.String()
	t.encrypted = false
	return t.Signature, nil
}

// computeString computes the string representation of a token that was
// assembled by hand rather than signed or parsed.
func (t *Token) computeString() string {
	var buff strings.Builder

	h, err := t.Header.Base64URLString()
	if err != nil {
		fmt.Fprintf(&buff, "<invalid-header %q>", err)
	} else {
		buff.WriteString(h)
	}
	buff.WriteByte('.')
	buff.WriteString(t.Claims.String())
	buff.WriteByte('.')
	buff.WriteString(base64.Encode(t.Signature))

	return buff.String()
}

// String returns the string representation of the token, which is
// the raw JWT string of three base64url encoded parts, separated
// by a period.
func (t *Token) String() string {
	// Return the raw string if it is set.
	if len(t.raw) != 0 {
		return t.raw
	}

	// If there raw string is not set, compute it.
	return t.computeString()
}

// Encrypted returns true if the claims were decrypted from a JWE rather
// than parsed from a JWS.
func (t *Token) Encrypted() bool {
	return t.encrypted
}

// Parseable is a type that can be parsed into a JWT,
// either a string or byte slice.
type Parseable interface {
	~string | ~[]byte
}

// Parse parses a given JWT, and returns a Token or an error
// if the JWT fails to parse.
//
// # Warning
//
// This is a low-level function that does not verify the
// signature of the token. Use ParseAndVerify to parse
// and verify the signature of a token in one step.
// Otherwise, use Parse to parse a token, and then
// use the Verify method to verify it.
func Parse[T Parseable](input T) (*Token, error) {
	return ParseString(string(input))
}

// ParseAndVerify parses a given JWT, and verifies the signature and
// claims using the given verification configuration options.
func ParseAndVerify[T Parseable](input T, verifyOptions ...VerifyOption) (*Token, error) {
	token, err := Parse(input)
	if err != nil {
		return nil, err
	}

	err = token.Verify(verifyOptions...)
	if err != nil {
		return nil, err
	}

	return token, nil
}

// ParseString parses a given JWT string, and returns a Token
// or an error if the JWT fails to parse.
//
// # Warning
//
// This is a low-level function that does not verify the
// signature of the token. Use ParseAndVerify to parse
// and verify the signature of a token in one step.
func ParseString(input string) (*Token, error) {
	s, err := jws.Parse(input)
	if err != nil {
		return nil, err
	}
	if s.Detached() {
		return nil, fmt.Errorf("%w: JWT has no claims", jose.ErrMalformedToken)
	}
	if err := checkType(s.Header); err != nil {
		return nil, err
	}

	claims, err := parseClaims(s.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jose.ErrMalformedToken, err)
	}

	return &Token{
		Header:    s.Header,
		Claims:    claims,
		Signature: s.Signature,
		raw:       input,
		signed:    s,
	}, nil
}

// checkType rejects a "typ" header parameter other than "JWT". The
// parameter is optional, and compared without regard to case.
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-5.1
func checkType(h header.Parameters) error {
	if !h.Has(header.Type) {
		return nil
	}
	typ, err := h.Type()
	if err != nil {
		return NewInvalidTypeError(fmt.Errorf("%w: %w", jose.ErrInvalidHeader, err))
	}
	if !strings.EqualFold(typ, Type) && !strings.EqualFold(typ, "application/"+Type) {
		return NewInvalidTypeError(fmt.Errorf("%w: header type %q is not supported", jose.ErrInvalidHeader, typ))
	}
	return nil
}

// FromHTTPAuthorizationHeader extracts a JWT string from the Authorization header of an HTTP request.
// If the Authorization header is not set, then an error is returned.
//
// # Warning
//
// This value needs to be parsed and verified before it can be used safely.
func FromHTTPAuthorizationHeader(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing authorization header")
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || token == "" || strings.Contains(token, " ") {
		return "", fmt.Errorf("invalid authorization header format")
	}

	if !strings.EqualFold(scheme, "bearer") {
		return "", fmt.Errorf("invalid authorization header scheme %q", scheme)
	}

	return token, nil
}

// HTTPHeaderValue is a type that can be used as a value when setting
// an HTTP request header.
type HTTPHeaderValue interface {
	string | *Token
}

// SetHTTPAuthorizationHeader sets the Authorization header of an HTTP request
// to the given JWT. The JWT is prefixed with "Bearer ", as required by the
// HTTP Authorization header specification.
//
// https://tools.ietf.org/html/rfc6750#section-2.1
func SetHTTPAuthorizationHeader[T HTTPHeaderValue](r *http.Request, jwt T) {
	r.Header.Set("Authorization", fmt.Sprintf("Bearer %s", jwt))
}
