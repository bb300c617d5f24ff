package jwt

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jws"
	"github.com/picatz/jose/v2/pkg/jwk"
)

// Signer issues signed tokens with a fixed key, filling in the registered
// claims a caller would otherwise repeat for every token.
type Signer struct {
	// Key is the signing key. Its "kid", if any, is copied to the header.
	Key jwk.Key

	// Algorithm is the signature algorithm. If empty, the key's "alg" is
	// used, or a default for the key type, see DefaultAlgorithm.
	Algorithm jwa.Algorithm

	// Issuer is set as the "iss" claim when the claims do not have one.
	Issuer string

	// Lifetime sets "exp" relative to "iat" when the claims do not have
	// one. Zero issues tokens without an expiration time.
	Lifetime time.Duration

	// Clock returns the issue time. If not set, time.Now is used.
	Clock Clock

	// Options are passed to jws.New.
	Options []jws.Option
}

// DefaultAlgorithm returns the signature algorithm used for a key that
// does not name one: HS256 for "oct" keys, RS256 for "RSA" keys, the
// ECDSA algorithm matching the curve of "EC" keys, and EdDSA for Ed25519.
func DefaultAlgorithm(key jwk.Key) (jwa.Algorithm, error) {
	switch key.KeyType() {
	case jwa.KeyTypeOctet:
		return jwa.HS256, nil
	case jwa.KeyTypeRSA:
		return jwa.RS256, nil
	case jwa.KeyTypeEC:
		switch key.Curve() {
		case jwa.CurveP256:
			return jwa.ES256, nil
		case jwa.CurveP384:
			return jwa.ES384, nil
		case jwa.CurveP521:
			return jwa.ES512, nil
		case jwa.CurveSecp256k1:
			return jwa.ES256K, nil
		}
	case jwa.KeyTypeOKP:
		if key.Curve() == jwa.CurveEd25519 {
			return jwa.EdDSA, nil
		}
	}
	return "", fmt.Errorf("%w: no signature algorithm for %q key with curve %q", jose.ErrInvalidKey, key.KeyType(), key.Curve())
}

// Sign issues a token for the claims. The given claims are not modified.
//
// "iat" is set to the current time, "jti" to a random UUID, and "iss"
// and "exp" from the signer's settings, unless the claims already have
// them.
func (s *Signer) Sign(claims ClaimsSet) (*Token, error) {
	if s.Key == nil {
		return nil, fmt.Errorf("%w: signer has no key", jose.ErrInvalidKey)
	}

	alg := s.Algorithm
	if alg == "" {
		alg = s.Key.Algorithm()
	}
	if alg == "" {
		var err error
		if alg, err = DefaultAlgorithm(s.Key); err != nil {
			return nil, err
		}
	}

	clock := s.Clock
	if clock == nil {
		clock = time.Now
	}
	now := clock()

	claims = claims.Clone()
	if claims == nil {
		claims = ClaimsSet{}
	}
	if _, ok := claims[IssuedAt]; !ok {
		claims[IssuedAt] = now.Unix()
	}
	if _, ok := claims[JWTID]; !ok {
		claims[JWTID] = uuid.NewString()
	}
	if _, ok := claims[Issuer]; !ok && s.Issuer != "" {
		claims[Issuer] = s.Issuer
	}
	if _, ok := claims[ExpirationTime]; !ok && s.Lifetime > 0 {
		claims[ExpirationTime] = now.Add(s.Lifetime).Unix()
	}

	params := header.Parameters{
		header.Algorithm: alg,
		header.Type:      Type,
	}
	if kid := s.Key.KeyID(); kid != "" {
		params[header.KeyID] = kid
	}

	return New(params, claims, s.Key, s.Options...)
}
