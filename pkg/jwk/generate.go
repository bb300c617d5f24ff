package jwk

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/jwa"
)

// Default sizes and curves used by Generate.
const (
	DefaultSymmetricKeySize = 256
	DefaultRSAKeySize       = 2048
	DefaultECCurve          = jwa.CurveP256
	DefaultOKPCurve         = jwa.CurveEd25519
)

// MinRSAKeySize is the smallest RSA modulus Generate will create.
const MinRSAKeySize = 2048

type options struct {
	size    int
	crv     string
	kid     string
	noKeyID bool
	use     Use
	alg     jwa.Algorithm
	ops     []Operation
}

// Option configures Generate, GenerateForAlgorithm and FromCryptoKey.
type Option func(*options)

// WithSize sets the key size in bits for "oct" and "RSA" keys.
func WithSize(bits int) Option {
	return func(o *options) { o.size = bits }
}

// WithCurve sets the "crv" of generated "EC" and "OKP" keys.
func WithCurve(crv string) Option {
	return func(o *options) { o.crv = crv }
}

// WithKeyID sets the "kid". Without it, the key ID defaults to the
// base64url encoded SHA-256 thumbprint of the key.
func WithKeyID(kid string) Option {
	return func(o *options) { o.kid = kid }
}

// WithoutKeyID leaves the "kid" member unset instead of defaulting it to
// the thumbprint.
func WithoutKeyID() Option {
	return func(o *options) { o.noKeyID = true }
}

// WithUse sets the "use" member.
func WithUse(use Use) Option {
	return func(o *options) { o.use = use }
}

// WithAlgorithm sets the "alg" member, restricting the key to a single
// algorithm.
func WithAlgorithm(alg jwa.Algorithm) Option {
	return func(o *options) { o.alg = alg }
}

// WithOperations sets the "key_ops" member.
func WithOperations(ops ...Operation) Option {
	return func(o *options) { o.ops = ops }
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Generate creates a new random key of the given key type.
//
// Without options it creates a 256 bit "oct" key, a 2048 bit "RSA" key,
// a P-256 "EC" key or an Ed25519 "OKP" key.
func Generate(kty jwa.KeyType, opts ...Option) (Key, error) {
	o := newOptions(opts)

	var material any
	switch kty {
	case jwa.KeyTypeOctet:
		size := o.size
		if size == 0 {
			size = DefaultSymmetricKeySize
		}
		if size < 0 || size%8 != 0 {
			return nil, fmt.Errorf("%w: invalid symmetric key size %d", jose.ErrInvalidKey, size)
		}
		secret := make([]byte, size/8)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate symmetric key: %w", err)
		}
		material = secret
	case jwa.KeyTypeRSA:
		size := o.size
		if size == 0 {
			size = DefaultRSAKeySize
		}
		if size < MinRSAKeySize {
			return nil, fmt.Errorf("%w: RSA keys must be at least %d bits", jose.ErrInvalidKey, MinRSAKeySize)
		}
		priv, err := rsa.GenerateKey(rand.Reader, size)
		if err != nil {
			return nil, fmt.Errorf("failed to generate RSA key: %w", err)
		}
		material = priv
	case jwa.KeyTypeEC:
		crv := o.crv
		if crv == "" {
			crv = DefaultECCurve
		}
		if crv == jwa.CurveSecp256k1 {
			priv, err := secp256k1.GeneratePrivateKey()
			if err != nil {
				return nil, fmt.Errorf("failed to generate secp256k1 key: %w", err)
			}
			material = priv.ToECDSA()
			break
		}
		curve, err := jwa.EllipticCurve(crv)
		if err != nil {
			return nil, err
		}
		priv, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate EC key: %w", err)
		}
		material = priv
	case jwa.KeyTypeOKP:
		crv := o.crv
		if crv == "" {
			crv = DefaultOKPCurve
		}
		switch crv {
		case jwa.CurveEd25519:
			_, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return nil, fmt.Errorf("failed to generate Ed25519 key: %w", err)
			}
			material = priv
		case jwa.CurveX25519:
			priv, err := ecdh.X25519().GenerateKey(rand.Reader)
			if err != nil {
				return nil, fmt.Errorf("failed to generate X25519 key: %w", err)
			}
			material = priv
		default:
			return nil, fmt.Errorf("%w: unsupported OKP curve %q", jose.ErrInvalidKey, crv)
		}
	default:
		return nil, fmt.Errorf("%w: %w: %q", jose.ErrInvalidKey, ErrUnsupportedKeyType, kty)
	}

	return fromCryptoKey(material, o)
}

// GenerateForAlgorithm creates a new random key suitable for the given
// algorithm, with its "alg" member set. Content encryption algorithms
// produce an "oct" key of the CEK size for use with "dir", without an
// "alg" member.
func GenerateForAlgorithm(alg jwa.Algorithm, opts ...Option) (Key, error) {
	d, err := jwa.Lookup(alg)
	if err != nil {
		return nil, err
	}
	if len(d.KeyTypes) == 0 {
		return nil, fmt.Errorf("%w: %q does not use a key", jose.ErrInvalidKey, alg)
	}
	if d.Mode == jwa.ModeDirect {
		return nil, fmt.Errorf("%w: the key size for %q depends on the content encryption algorithm", jose.ErrInvalidKey, alg)
	}

	defaults := []Option{}
	switch kty := d.KeyTypes[0]; kty {
	case jwa.KeyTypeOctet:
		switch {
		case d.KeySize > 0:
			defaults = append(defaults, WithSize(d.KeySize))
		case d.Hash != 0:
			defaults = append(defaults, WithSize(d.Hash.Size()*8))
		}
	case jwa.KeyTypeRSA:
		defaults = append(defaults, WithSize(max(d.MinKeySize, DefaultRSAKeySize)))
	}
	if len(d.Curves) > 0 {
		defaults = append(defaults, WithCurve(d.Curves[0]))
	}
	if d.Category != jwa.CategoryContentEncryption {
		defaults = append(defaults, WithAlgorithm(alg))
	}

	return Generate(d.KeyTypes[0], append(defaults, opts...)...)
}

// FromCryptoKey returns the key for a Go crypto value. Supported values
// are []byte, *rsa.PrivateKey, *rsa.PublicKey, *ecdsa.PrivateKey,
// *ecdsa.PublicKey, ed25519.PrivateKey, ed25519.PublicKey,
// *ecdh.PrivateKey and *ecdh.PublicKey.
func FromCryptoKey(material any, opts ...Option) (Key, error) {
	return fromCryptoKey(material, newOptions(opts))
}

func fromCryptoKey(material any, o *options) (Key, error) {
	v := Value{}

	switch key := material.(type) {
	case []byte:
		if len(key) == 0 {
			return nil, fmt.Errorf("%w: empty symmetric key", jose.ErrInvalidKey)
		}
		v[KeyType] = jwa.KeyTypeOctet
		v[K] = base64.Encode(key)
	case *rsa.PrivateKey:
		if len(key.Primes) != 2 {
			return nil, fmt.Errorf("%w: multi-prime RSA keys are not supported", jose.ErrInvalidKey)
		}
		// Precompute on a copy, the caller owns key.
		priv := *key
		priv.Precompute()
		key = &priv
		putRSAPublic(v, &key.PublicKey)
		v[D] = base64.Encode(key.D.Bytes())
		v[P] = base64.Encode(key.Primes[0].Bytes())
		v[Q] = base64.Encode(key.Primes[1].Bytes())
		v[DP] = base64.Encode(key.Precomputed.Dp.Bytes())
		v[DQ] = base64.Encode(key.Precomputed.Dq.Bytes())
		v[QI] = base64.Encode(key.Precomputed.Qinv.Bytes())
	case *rsa.PublicKey:
		putRSAPublic(v, key)
	case *ecdsa.PrivateKey:
		if err := putECPublic(v, &key.PublicKey); err != nil {
			return nil, err
		}
		v[D] = base64.Encode(key.D.FillBytes(make([]byte, jwa.CurveSize(v[Curve].(string)))))
	case *ecdsa.PublicKey:
		if err := putECPublic(v, key); err != nil {
			return nil, err
		}
	case ed25519.PrivateKey:
		v[KeyType] = jwa.KeyTypeOKP
		v[Curve] = jwa.CurveEd25519
		v[X] = base64.Encode(key.Public().(ed25519.PublicKey))
		v[D] = base64.Encode(key.Seed())
	case ed25519.PublicKey:
		v[KeyType] = jwa.KeyTypeOKP
		v[Curve] = jwa.CurveEd25519
		v[X] = base64.Encode(key)
	case *ecdh.PrivateKey:
		if err := putECDHPublic(v, key.PublicKey()); err != nil {
			return nil, err
		}
		v[D] = base64.Encode(key.Bytes())
	case *ecdh.PublicKey:
		if err := putECDHPublic(v, key); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %w: %T", jose.ErrInvalidKey, ErrUnsupportedKeyType, material)
	}

	if o.kid != "" {
		v[KeyID] = o.kid
	}
	if o.use != "" {
		v[PublicKeyUse] = o.use
	}
	if o.alg != "" {
		v[Algorithm] = o.alg
	}
	if len(o.ops) > 0 {
		v[KeyOperations] = o.ops
	}

	k, err := FromValue(v)
	if err != nil {
		return nil, err
	}
	if o.kid != "" || o.noKeyID {
		return k, nil
	}

	tp, err := k.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, err
	}
	v[KeyID] = base64.Encode(tp)
	return FromValue(v)
}

func putRSAPublic(v Value, pub *rsa.PublicKey) {
	v[KeyType] = jwa.KeyTypeRSA
	v[N] = base64.Encode(pub.N.Bytes())
	v[E] = base64.Encode(big.NewInt(int64(pub.E)).Bytes())
}

func putECPublic(v Value, pub *ecdsa.PublicKey) error {
	crv, err := jwa.CurveName(pub.Curve)
	if err != nil {
		return err
	}
	size := jwa.CurveSize(crv)
	v[KeyType] = jwa.KeyTypeEC
	v[Curve] = crv
	v[X] = base64.Encode(pub.X.FillBytes(make([]byte, size)))
	v[Y] = base64.Encode(pub.Y.FillBytes(make([]byte, size)))
	return nil
}

// putECDHPublic handles both X25519 keys, which become "OKP" keys, and
// NIST curve keys, which become "EC" keys.
func putECDHPublic(v Value, pub *ecdh.PublicKey) error {
	var curve elliptic.Curve
	switch pub.Curve() {
	case ecdh.X25519():
		v[KeyType] = jwa.KeyTypeOKP
		v[Curve] = jwa.CurveX25519
		v[X] = base64.Encode(pub.Bytes())
		return nil
	case ecdh.P256():
		curve = elliptic.P256()
	case ecdh.P384():
		curve = elliptic.P384()
	case ecdh.P521():
		curve = elliptic.P521()
	default:
		return fmt.Errorf("%w: unsupported ECDH curve", jose.ErrInvalidKey)
	}

	// Uncompressed point: 0x04 || X || Y.
	point := pub.Bytes()
	size := (len(point) - 1) / 2
	crv, err := jwa.CurveName(curve)
	if err != nil {
		return err
	}
	v[KeyType] = jwa.KeyTypeEC
	v[Curve] = crv
	v[X] = base64.Encode(point[1 : 1+size])
	v[Y] = base64.Encode(point[1+size:])
	return nil
}
