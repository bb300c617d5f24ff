package jwk

import (
	"crypto"
	"fmt"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/jwa"
)

// SymmetricKey is an "oct" key: a shared secret used for HMAC, AES key
// wrapping, direct encryption, or as a PBES2 password.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-6.4
type SymmetricKey struct {
	metadata
	key []byte
}

func symmetricKeyFromValue(m metadata, v Value) (*SymmetricKey, error) {
	k, err := requiredBytes(v, K)
	if err != nil {
		return nil, err
	}
	return &SymmetricKey{metadata: m, key: k}, nil
}

func (k *SymmetricKey) KeyType() jwa.KeyType { return jwa.KeyTypeOctet }
func (k *SymmetricKey) Curve() string        { return "" }
func (k *SymmetricKey) IsPrivate() bool      { return true }
func (k *SymmetricKey) Size() int            { return len(k.key) * 8 }

// Public always fails, a shared secret has no public projection.
func (k *SymmetricKey) Public() (Key, error) {
	return nil, fmt.Errorf("%w: symmetric keys have no public form", jose.ErrInvalidKey)
}

// Value returns the JWK representation. The secret "k" member is only
// included when includePrivate is true.
func (k *SymmetricKey) Value(includePrivate bool) Value {
	v := Value{}
	k.metadata.put(v)
	v[KeyType] = jwa.KeyTypeOctet
	if includePrivate {
		v[K] = base64.Encode(k.key)
	}
	return v
}

func (k *SymmetricKey) Thumbprint(h crypto.Hash) ([]byte, error) {
	return thumbprint(k, h)
}

func (k *SymmetricKey) thumbprintMembers() [][2]string {
	return [][2]string{{K, base64.Encode(k.key)}, {KeyType, jwa.KeyTypeOctet}}
}

func (k *SymmetricKey) Supports(alg jwa.Algorithm, op Operation) bool {
	return CheckSupport(k, alg, op) == nil
}

// Material returns a copy of the secret.
func (k *SymmetricKey) Material() any {
	out := make([]byte, len(k.key))
	copy(out, k.key)
	return out
}

func (k *SymmetricKey) MarshalJSON() ([]byte, error) {
	return marshalKey(k)
}
