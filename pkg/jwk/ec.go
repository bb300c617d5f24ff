package jwk

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/subtle"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/jwa"
)

// ECKey is an "EC" key on one of the P-256, P-384, P-521 or secp256k1
// curves.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-6.2
type ECKey struct {
	metadata
	crv  string
	pub  *ecdsa.PublicKey
	priv *ecdsa.PrivateKey
}

func ecdhCurve(crv string) ecdh.Curve {
	switch crv {
	case jwa.CurveP256:
		return ecdh.P256()
	case jwa.CurveP384:
		return ecdh.P384()
	case jwa.CurveP521:
		return ecdh.P521()
	default:
		return nil
	}
}

// uncompressedPoint returns the SEC 1 encoding 0x04 || X || Y.
func uncompressedPoint(x, y []byte) []byte {
	point := make([]byte, 0, 1+len(x)+len(y))
	point = append(point, 0x04)
	point = append(point, x...)
	return append(point, y...)
}

func ecKeyFromValue(m metadata, v Value) (*ECKey, error) {
	crv, err := requiredString(v, Curve)
	if err != nil {
		return nil, err
	}
	curve, err := jwa.EllipticCurve(crv)
	if err != nil {
		return nil, err
	}
	size := jwa.CurveSize(crv)

	x, err := requiredBytes(v, X)
	if err != nil {
		return nil, err
	}
	y, err := requiredBytes(v, Y)
	if err != nil {
		return nil, err
	}
	if len(x) != size || len(y) != size {
		return nil, fmt.Errorf("%w: %s coordinates must be %d bytes", jose.ErrInvalidKey, crv, size)
	}

	point := uncompressedPoint(x, y)
	if c := ecdhCurve(crv); c != nil {
		if _, err := c.NewPublicKey(point); err != nil {
			return nil, fmt.Errorf("%w: point is not on curve %s", jose.ErrInvalidKey, crv)
		}
	} else if _, err := secp256k1.ParsePubKey(point); err != nil {
		return nil, fmt.Errorf("%w: point is not on curve %s", jose.ErrInvalidKey, crv)
	}

	pub := &ecdsa.PublicKey{Curve: curve, X: new(big.Int).SetBytes(x), Y: new(big.Int).SetBytes(y)}
	key := &ECKey{metadata: m, crv: crv, pub: pub}

	d, hasD, err := optionalBytes(v, D)
	if err != nil {
		return nil, err
	}
	if !hasD {
		return key, nil
	}
	if len(d) != size {
		return nil, fmt.Errorf("%w: %s private key must be %d bytes", jose.ErrInvalidKey, crv, size)
	}

	var derived []byte
	if c := ecdhCurve(crv); c != nil {
		priv, err := c.NewPrivateKey(d)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid %s private key", jose.ErrInvalidKey, crv)
		}
		derived = priv.PublicKey().Bytes()
	} else {
		scalar := new(big.Int).SetBytes(d)
		if scalar.Sign() == 0 || scalar.Cmp(secp256k1.S256().Params().N) >= 0 {
			return nil, fmt.Errorf("%w: invalid %s private key", jose.ErrInvalidKey, crv)
		}
		derived = secp256k1.PrivKeyFromBytes(d).PubKey().SerializeUncompressed()
	}
	if subtle.ConstantTimeCompare(derived, point) != 1 {
		return nil, fmt.Errorf("%w: private key does not match public key", jose.ErrInvalidKey)
	}

	key.priv = &ecdsa.PrivateKey{PublicKey: *pub, D: new(big.Int).SetBytes(d)}
	key.pub = &key.priv.PublicKey
	return key, nil
}

func (k *ECKey) KeyType() jwa.KeyType { return jwa.KeyTypeEC }
func (k *ECKey) Curve() string        { return k.crv }
func (k *ECKey) IsPrivate() bool      { return k.priv != nil }
func (k *ECKey) Size() int            { return k.pub.Curve.Params().BitSize }

func (k *ECKey) Public() (Key, error) {
	return &ECKey{metadata: k.metadata, crv: k.crv, pub: k.pub}, nil
}

func (k *ECKey) coordinates() (x, y string) {
	size := jwa.CurveSize(k.crv)
	return base64.Encode(k.pub.X.FillBytes(make([]byte, size))),
		base64.Encode(k.pub.Y.FillBytes(make([]byte, size)))
}

func (k *ECKey) Value(includePrivate bool) Value {
	v := Value{}
	k.metadata.put(v)
	x, y := k.coordinates()
	v[KeyType] = jwa.KeyTypeEC
	v[Curve] = k.crv
	v[X] = x
	v[Y] = y
	if includePrivate && k.priv != nil {
		v[D] = base64.Encode(k.priv.D.FillBytes(make([]byte, jwa.CurveSize(k.crv))))
	}
	return v
}

func (k *ECKey) Thumbprint(h crypto.Hash) ([]byte, error) {
	return thumbprint(k, h)
}

func (k *ECKey) thumbprintMembers() [][2]string {
	x, y := k.coordinates()
	return [][2]string{{Curve, k.crv}, {KeyType, jwa.KeyTypeEC}, {X, x}, {Y, y}}
}

func (k *ECKey) Supports(alg jwa.Algorithm, op Operation) bool {
	return CheckSupport(k, alg, op) == nil
}

// Material returns a copy of the *ecdsa.PrivateKey for private keys, and
// of the *ecdsa.PublicKey otherwise.
func (k *ECKey) Material() any {
	if k.priv != nil {
		return &ecdsa.PrivateKey{PublicKey: *cloneECPublic(&k.priv.PublicKey), D: cloneInt(k.priv.D)}
	}
	return cloneECPublic(k.pub)
}

func cloneECPublic(pub *ecdsa.PublicKey) *ecdsa.PublicKey {
	return &ecdsa.PublicKey{Curve: pub.Curve, X: cloneInt(pub.X), Y: cloneInt(pub.Y)}
}

func cloneInt(n *big.Int) *big.Int {
	if n == nil {
		return nil
	}
	return new(big.Int).Set(n)
}

func (k *ECKey) MarshalJSON() ([]byte, error) {
	return marshalKey(k)
}
