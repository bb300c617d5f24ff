package jwk

import (
	"fmt"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/jwa"
	"golang.org/x/exp/slices"
)

// privateOperations can only be performed with private or secret material.
var privateOperations = []Operation{OperationSign, OperationDecrypt, OperationUnwrapKey}

// CheckSupport returns nil if the key can be used for the operation with
// the given algorithm, or an error describing why not. Unknown algorithms
// fail with jose.ErrUnsupportedAlgorithm before the key is inspected, and
// every other failure wraps jose.ErrInvalidKey.
//
// It combines the algorithm's key type, size and curve requirements with
// the key's "use", "key_ops" and "alg" members.
func CheckSupport(k Key, alg jwa.Algorithm, op Operation) error {
	d, err := jwa.Lookup(alg)
	if err != nil {
		return err
	}
	if k == nil {
		return fmt.Errorf("%w: no key", jose.ErrInvalidKey)
	}

	var ops []Operation
	switch d.Category {
	case jwa.CategorySignature:
		ops = signatureOperations
	case jwa.CategoryKeyManagement:
		ops = encryptionOperations
	default:
		return fmt.Errorf("%w: %q is not a signature or key management algorithm", jose.ErrInvalidKey, alg)
	}
	if !slices.Contains(ops, op) {
		return fmt.Errorf("%w: operation %q cannot be performed with %q", jose.ErrInvalidKey, op, alg)
	}

	if err := d.CheckKey(k.KeyType(), k.Size(), k.Curve()); err != nil {
		return err
	}

	switch k.Use() {
	case UseSignature:
		if d.Category != jwa.CategorySignature {
			return fmt.Errorf("%w: key with %q %q cannot be used with %q", jose.ErrInvalidKey, PublicKeyUse, UseSignature, alg)
		}
	case UseEncryption:
		if d.Category != jwa.CategoryKeyManagement {
			return fmt.Errorf("%w: key with %q %q cannot be used with %q", jose.ErrInvalidKey, PublicKeyUse, UseEncryption, alg)
		}
	}

	if keyOps := k.Operations(); len(keyOps) > 0 && !slices.Contains(keyOps, op) {
		return fmt.Errorf("%w: %q does not permit %q", jose.ErrInvalidKey, KeyOperations, op)
	}

	if hint := k.Algorithm(); hint != "" && hint != alg {
		return fmt.Errorf("%w: key is restricted to %q, not %q", jose.ErrInvalidKey, hint, alg)
	}

	if slices.Contains(privateOperations, op) && !k.IsPrivate() {
		return fmt.Errorf("%w: operation %q requires a private key", jose.ErrInvalidKey, op)
	}

	return nil
}
