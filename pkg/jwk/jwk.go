package jwk

import (
	"crypto"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/jwa"
	"golang.org/x/exp/slices"
)

// https://datatracker.ietf.org/doc/html/rfc7517#section-4
type (
	ParamaterName = string

	RSA       = ParamaterName
	ECDSA     = ParamaterName
	Symmetric = ParamaterName
)

const (
	KeyType              ParamaterName = "kty"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.1
	PublicKeyUse         ParamaterName = "use"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.2
	KeyOperations        ParamaterName = "key_ops"  // https://datatracker.ietf.org/doc/html/rfc7517#section-4.3
	Algorithm            ParamaterName = "alg"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.4
	KeyID                ParamaterName = "kid"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.5
	X509URL              ParamaterName = "x5u"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.6
	X509CertificateChain ParamaterName = "x5c"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.7
	X509SHA1Thumbprint   ParamaterName = "x5t"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.8
	X509SHA256Thumbprint ParamaterName = "x5t#S256" // https://datatracker.ietf.org/doc/html/rfc7517#section-4.9

	// K is the symmetric key value within a JWK.
	// https://datatracker.ietf.org/doc/html/rfc7518#section-6.4.1
	K Symmetric = "k"

	// Curve is the curve value within an EC or OKP JWK, such as "P-256".
	// https://datatracker.ietf.org/doc/html/rfc7518#section-6.2.1.1
	Curve ECDSA = "crv"
	X     ECDSA = "x" // X is the x-coordinate for the elliptic curve point, or the OKP public key.
	Y     ECDSA = "y" // Y is the y-coordinate for the elliptic curve point.

	N  RSA = "n"  // N is the RSA public modulus value.
	E  RSA = "e"  // E is the RSA public exponent value.
	D  RSA = "d"  // D is the RSA private exponent value, or the EC and OKP private key.
	P  RSA = "p"  // P is the first prime factor.
	Q  RSA = "q"  // Q is the second prime factor.
	DP RSA = "dp" // DP is the first factor CRT exponent.
	DQ RSA = "dq" // DQ is the second factor CRT exponent.
	QI RSA = "qi" // QI is the first CRT coefficient.
)

// Use is a "use" value, identifying the intended use of a public key.
//
// https://datatracker.ietf.org/doc/html/rfc7517#section-4.2
type Use = string

const (
	UseSignature  Use = "sig"
	UseEncryption Use = "enc"
)

// Operation is a "key_ops" value.
//
// https://datatracker.ietf.org/doc/html/rfc7517#section-4.3
type Operation = string

const (
	OperationSign       Operation = "sign"
	OperationVerify     Operation = "verify"
	OperationEncrypt    Operation = "encrypt"
	OperationDecrypt    Operation = "decrypt"
	OperationWrapKey    Operation = "wrapKey"
	OperationUnwrapKey  Operation = "unwrapKey"
	OperationDeriveKey  Operation = "deriveKey"
	OperationDeriveBits Operation = "deriveBits"
)

var (
	signatureOperations  = []Operation{OperationSign, OperationVerify}
	encryptionOperations = []Operation{OperationEncrypt, OperationDecrypt, OperationWrapKey, OperationUnwrapKey, OperationDeriveKey, OperationDeriveBits}
)

// Value is a JSON object containing the parameters describing
// the cryptographic operations and parameters employed.
//
// https://datatracker.ietf.org/doc/html/rfc7517#section-4
type Value = map[ParamaterName]any

// Key is a validated, immutable JSON Web Key. It is implemented by
// *SymmetricKey, *RSAKey, *ECKey and *OKPKey.
type Key interface {
	// KeyType returns the "kty" value.
	KeyType() jwa.KeyType

	// KeyID returns the "kid" value, if any.
	KeyID() string

	// Use returns the "use" value, if any.
	Use() Use

	// Operations returns the "key_ops" values, if any.
	Operations() []Operation

	// Algorithm returns the "alg" value, if any.
	Algorithm() jwa.Algorithm

	// Curve returns the "crv" value for EC and OKP keys, or an empty
	// string for other key types.
	Curve() string

	// IsPrivate returns true if the key holds private or secret material.
	IsPrivate() bool

	// Size returns the key size in bits.
	Size() int

	// Public returns the public projection of the key. It never carries
	// private material, and fails for symmetric keys.
	Public() (Key, error)

	// Value returns the JWK representation of the key. Private members
	// are only included when includePrivate is true.
	Value(includePrivate bool) Value

	// Thumbprint returns the RFC 7638 thumbprint of the key.
	Thumbprint(h crypto.Hash) ([]byte, error)

	// Supports returns true if the key can be used for the operation
	// with the given algorithm. See CheckSupport for the reason.
	Supports(alg jwa.Algorithm, op Operation) bool

	// Material returns the Go crypto value of the key, such as a []byte,
	// *rsa.PrivateKey or ed25519.PublicKey.
	Material() any

	// MarshalJSON returns the public JWK representation of the key,
	// or the full representation for symmetric keys.
	MarshalJSON() ([]byte, error)

	thumbprintMembers() [][2]string
}

// metadata holds the members every key type shares.
type metadata struct {
	kid string
	use Use
	ops []Operation
	alg jwa.Algorithm

	// other holds unrecognized members, such as "x5c", so they survive
	// a round trip.
	other Value
}

func (m metadata) KeyID() string            { return m.kid }
func (m metadata) Use() Use                 { return m.use }
func (m metadata) Operations() []Operation  { return slices.Clone(m.ops) }
func (m metadata) Algorithm() jwa.Algorithm { return m.alg }

func (m metadata) put(v Value) {
	for name, value := range m.other {
		v[name] = value
	}
	if m.kid != "" {
		v[KeyID] = m.kid
	}
	if m.use != "" {
		v[PublicKeyUse] = m.use
	}
	if len(m.ops) > 0 {
		ops := make([]any, len(m.ops))
		for i, op := range m.ops {
			ops[i] = op
		}
		v[KeyOperations] = ops
	}
	if m.alg != "" {
		v[Algorithm] = m.alg
	}
}

// validate checks "use" and "key_ops" on their own and against each other.
func (m metadata) validate() error {
	switch m.use {
	case "", UseSignature, UseEncryption:
	default:
		return fmt.Errorf("%w: invalid %q value %q", jose.ErrInvalidKey, PublicKeyUse, m.use)
	}

	seen := make(map[Operation]struct{}, len(m.ops))
	for _, op := range m.ops {
		if !slices.Contains(signatureOperations, op) && !slices.Contains(encryptionOperations, op) {
			return fmt.Errorf("%w: unknown %q value %q", jose.ErrInvalidKey, KeyOperations, op)
		}
		if _, dup := seen[op]; dup {
			return fmt.Errorf("%w: duplicate %q value %q", jose.ErrInvalidKey, KeyOperations, op)
		}
		seen[op] = struct{}{}

		switch {
		case m.use == UseSignature && !slices.Contains(signatureOperations, op),
			m.use == UseEncryption && !slices.Contains(encryptionOperations, op):
			return fmt.Errorf("%w: %q value %q is inconsistent with %q value %q", jose.ErrInvalidKey, KeyOperations, op, PublicKeyUse, m.use)
		}
	}
	return nil
}

// familyMembers are decoded by the key types, everything else that is not
// metadata is kept as is.
var familyMembers = []ParamaterName{KeyType, K, Curve, X, Y, N, E, D, P, Q, DP, DQ, QI}

func metadataFromValue(v Value) (metadata, error) {
	var (
		m   metadata
		err error
	)

	if m.kid, err = optionalString(v, KeyID); err != nil {
		return m, err
	}
	if m.use, err = optionalString(v, PublicKeyUse); err != nil {
		return m, err
	}
	if m.alg, err = optionalString(v, Algorithm); err != nil {
		return m, err
	}

	if raw, ok := v[KeyOperations]; ok {
		list, ok := raw.([]any)
		if !ok {
			if strs, isStrings := raw.([]string); isStrings {
				for _, s := range strs {
					list = append(list, s)
				}
			} else {
				return m, fmt.Errorf("%w: %q must be an array of strings", jose.ErrInvalidKey, KeyOperations)
			}
		}
		for _, item := range list {
			op, ok := item.(string)
			if !ok {
				return m, fmt.Errorf("%w: %q must be an array of strings", jose.ErrInvalidKey, KeyOperations)
			}
			m.ops = append(m.ops, op)
		}
	}

	for name, value := range v {
		switch name {
		case KeyID, PublicKeyUse, Algorithm, KeyOperations:
			continue
		}
		if slices.Contains(familyMembers, name) {
			continue
		}
		if m.other == nil {
			m.other = Value{}
		}
		m.other[name] = value
	}

	return m, m.validate()
}

// FromValue validates the given JWK value and returns the key it describes.
// Every failure wraps jose.ErrInvalidKey.
func FromValue(v Value) (Key, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: empty JWK", jose.ErrInvalidKey)
	}

	kty, err := requiredString(v, KeyType)
	if err != nil {
		return nil, err
	}

	m, err := metadataFromValue(v)
	if err != nil {
		return nil, err
	}

	switch kty {
	case jwa.KeyTypeOctet:
		return symmetricKeyFromValue(m, v)
	case jwa.KeyTypeRSA:
		return rsaKeyFromValue(m, v)
	case jwa.KeyTypeEC:
		return ecKeyFromValue(m, v)
	case jwa.KeyTypeOKP:
		return okpKeyFromValue(m, v)
	default:
		return nil, fmt.Errorf("%w: %w: %q", jose.ErrInvalidKey, ErrUnsupportedKeyType, kty)
	}
}

// ErrUnsupportedKeyType is wrapped by FromValue for "kty" values that are
// not understood. Sets skip such keys.
var ErrUnsupportedKeyType = errors.New("unsupported key type")

// Parse parses and validates a JSON encoded JWK.
func Parse(data []byte) (Key, error) {
	v := Value{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: failed to decode JWK JSON: %v", jose.ErrInvalidKey, err)
	}
	return FromValue(v)
}

func marshalKey(k Key) ([]byte, error) {
	return json.Marshal(k.Value(k.KeyType() == jwa.KeyTypeOctet))
}

func optionalString(v Value, name ParamaterName) (string, error) {
	raw, ok := v[name]
	if !ok {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string, got %T", jose.ErrInvalidKey, name, raw)
	}
	return s, nil
}

func requiredString(v Value, name ParamaterName) (string, error) {
	if _, ok := v[name]; !ok {
		return "", fmt.Errorf("%w: missing required paramater %q", jose.ErrInvalidKey, name)
	}
	s, err := optionalString(v, name)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%w: empty paramater %q", jose.ErrInvalidKey, name)
	}
	return s, nil
}

func requiredBytes(v Value, name ParamaterName) ([]byte, error) {
	s, err := requiredString(v, name)
	if err != nil {
		return nil, err
	}
	b, err := base64.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 encoding for %q: %v", jose.ErrInvalidKey, name, err)
	}
	return b, nil
}

func optionalBytes(v Value, name ParamaterName) ([]byte, bool, error) {
	if _, ok := v[name]; !ok {
		return nil, false, nil
	}
	b, err := requiredBytes(v, name)
	return b, true, err
}
