package jwk

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/subtle"
	"fmt"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/jwa"
)

// OKPKey is an "OKP" octet key pair on the Ed25519 or X25519 curve.
//
// https://datatracker.ietf.org/doc/html/rfc8037#section-2
type OKPKey struct {
	metadata
	crv  string
	x    []byte
	d    []byte
	priv any
	pub  any
}

func okpKeyFromValue(m metadata, v Value) (*OKPKey, error) {
	crv, err := requiredString(v, Curve)
	if err != nil {
		return nil, err
	}
	x, err := requiredBytes(v, X)
	if err != nil {
		return nil, err
	}
	d, hasD, err := optionalBytes(v, D)
	if err != nil {
		return nil, err
	}
	if !hasD {
		d = nil
	}
	return newOKPKey(m, crv, x, d)
}

func newOKPKey(m metadata, crv string, x, d []byte) (*OKPKey, error) {
	key := &OKPKey{metadata: m, crv: crv, x: x}

	switch crv {
	case jwa.CurveEd25519:
		if len(x) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: Ed25519 public key must be %d bytes", jose.ErrInvalidKey, ed25519.PublicKeySize)
		}
		key.pub = ed25519.PublicKey(x)
		if d == nil {
			return key, nil
		}
		if len(d) != ed25519.SeedSize {
			return nil, fmt.Errorf("%w: Ed25519 private key must be %d bytes", jose.ErrInvalidKey, ed25519.SeedSize)
		}
		priv := ed25519.NewKeyFromSeed(d)
		if subtle.ConstantTimeCompare(priv.Public().(ed25519.PublicKey), x) != 1 {
			return nil, fmt.Errorf("%w: private key does not match public key", jose.ErrInvalidKey)
		}
		key.d = d
		key.priv = priv
	case jwa.CurveX25519:
		pub, err := ecdh.X25519().NewPublicKey(x)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid X25519 public key", jose.ErrInvalidKey)
		}
		key.pub = pub
		if d == nil {
			return key, nil
		}
		priv, err := ecdh.X25519().NewPrivateKey(d)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid X25519 private key", jose.ErrInvalidKey)
		}
		if subtle.ConstantTimeCompare(priv.PublicKey().Bytes(), x) != 1 {
			return nil, fmt.Errorf("%w: private key does not match public key", jose.ErrInvalidKey)
		}
		key.d = d
		key.priv = priv
	default:
		return nil, fmt.Errorf("%w: unsupported OKP curve %q", jose.ErrInvalidKey, crv)
	}

	return key, nil
}

func (k *OKPKey) KeyType() jwa.KeyType { return jwa.KeyTypeOKP }
func (k *OKPKey) Curve() string        { return k.crv }
func (k *OKPKey) IsPrivate() bool      { return k.priv != nil }
func (k *OKPKey) Size() int            { return len(k.x) * 8 }

func (k *OKPKey) Public() (Key, error) {
	return &OKPKey{metadata: k.metadata, crv: k.crv, x: k.x, pub: k.pub}, nil
}

func (k *OKPKey) Value(includePrivate bool) Value {
	v := Value{}
	k.metadata.put(v)
	v[KeyType] = jwa.KeyTypeOKP
	v[Curve] = k.crv
	v[X] = base64.Encode(k.x)
	if includePrivate && k.priv != nil {
		v[D] = base64.Encode(k.d)
	}
	return v
}

func (k *OKPKey) Thumbprint(h crypto.Hash) ([]byte, error) {
	return thumbprint(k, h)
}

func (k *OKPKey) thumbprintMembers() [][2]string {
	return [][2]string{{Curve, k.crv}, {KeyType, jwa.KeyTypeOKP}, {X, base64.Encode(k.x)}}
}

func (k *OKPKey) Supports(alg jwa.Algorithm, op Operation) bool {
	return CheckSupport(k, alg, op) == nil
}

// Material returns a copy of the ed25519.PrivateKey or ed25519.PublicKey
// for Ed25519 keys, and the immutable *ecdh.PrivateKey or *ecdh.PublicKey
// for X25519 keys.
func (k *OKPKey) Material() any {
	material := k.pub
	if k.priv != nil {
		material = k.priv
	}
	switch key := material.(type) {
	case ed25519.PrivateKey:
		return append(ed25519.PrivateKey(nil), key...)
	case ed25519.PublicKey:
		return append(ed25519.PublicKey(nil), key...)
	default:
		return material
	}
}

func (k *OKPKey) MarshalJSON() ([]byte, error) {
	return marshalKey(k)
}
