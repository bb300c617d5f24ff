package jwa

import (
	"crypto/elliptic"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	jose "github.com/picatz/jose/v2/pkg"
)

// Curve names used as the JWK "crv" value.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-6.2.1.1
// https://datatracker.ietf.org/doc/html/rfc8037#section-5
// https://datatracker.ietf.org/doc/html/rfc8812#section-3.1
const (
	CurveP256      = "P-256"
	CurveP384      = "P-384"
	CurveP521      = "P-521"
	CurveSecp256k1 = "secp256k1"
	CurveEd25519   = "Ed25519"
	CurveX25519    = "X25519"
)

// EllipticCurve returns the curve for an EC "crv" value.
func EllipticCurve(name string) (elliptic.Curve, error) {
	switch name {
	case CurveP256:
		return elliptic.P256(), nil
	case CurveP384:
		return elliptic.P384(), nil
	case CurveP521:
		return elliptic.P521(), nil
	case CurveSecp256k1:
		return secp256k1.S256(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported curve %q", jose.ErrInvalidKey, name)
	}
}

// CurveName returns the "crv" value for an elliptic curve.
func CurveName(curve elliptic.Curve) (string, error) {
	if curve == nil {
		return "", fmt.Errorf("%w: missing curve", jose.ErrInvalidKey)
	}
	switch curve.Params().Name {
	case elliptic.P256().Params().Name:
		return CurveP256, nil
	case elliptic.P384().Params().Name:
		return CurveP384, nil
	case elliptic.P521().Params().Name:
		return CurveP521, nil
	}
	// The secp256k1 parameters carry no name.
	if curve.Params().P.Cmp(secp256k1.S256().Params().P) == 0 &&
		curve.Params().N.Cmp(secp256k1.S256().Params().N) == 0 {
		return CurveSecp256k1, nil
	}
	return "", fmt.Errorf("%w: unsupported curve %q", jose.ErrInvalidKey, curve.Params().Name)
}

// CurveSize returns the size in bytes of a field element, or coordinate,
// for the named curve.
func CurveSize(name string) int {
	switch name {
	case CurveP256, CurveSecp256k1, CurveEd25519, CurveX25519:
		return 32
	case CurveP384:
		return 48
	case CurveP521:
		return 66
	default:
		return 0
	}
}
