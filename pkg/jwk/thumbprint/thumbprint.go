// Package thumbprint computes JWK Thumbprints and JWK Thumbprint URIs.
//
// https://datatracker.ietf.org/doc/html/rfc7638
// https://datatracker.ietf.org/doc/html/rfc9278
package thumbprint

import (
	"crypto"
	"fmt"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/jwk"
)

// URIPrefix is the URN prefix of a JWK Thumbprint URI, followed by the
// hash name and the base64url encoded thumbprint.
const URIPrefix = "urn:ietf:params:oauth:jwk-thumbprint:"

// Generate returns the JWK Thumbprint for the given JWK following
// the steps defined in RFC 7638. The value is validated first, so an
// invalid key never produces a thumbprint.
func Generate(value jwk.Value, h crypto.Hash) ([]byte, error) {
	k, err := jwk.FromValue(value)
	if err != nil {
		return nil, err
	}
	return k.Thumbprint(h)
}

// GenerateString returns the JWK Thumbprint for the given JWK following
// the steps defined in RFC 7638 as a base64 encoded string.
func GenerateString(value jwk.Value, h crypto.Hash) (string, error) {
	thumbprint, err := Generate(value, h)
	if err != nil {
		return "", err
	}
	return base64.Encode(thumbprint), nil
}

// URI returns the JWK Thumbprint URI of the key, such as
// "urn:ietf:params:oauth:jwk-thumbprint:sha-256:NzbLsXh8...".
//
// https://datatracker.ietf.org/doc/html/rfc9278#section-3
func URI(k jwk.Key, h crypto.Hash) (string, error) {
	if h == 0 {
		h = crypto.SHA256
	}

	var name string
	switch h {
	case crypto.SHA256:
		name = "sha-256"
	case crypto.SHA384:
		name = "sha-384"
	case crypto.SHA512:
		name = "sha-512"
	default:
		return "", fmt.Errorf("%w: no JWK Thumbprint URI hash name for %v", jose.ErrUnsupportedAlgorithm, h)
	}

	thumbprint, err := k.Thumbprint(h)
	if err != nil {
		return "", err
	}
	return URIPrefix + name + ":" + base64.Encode(thumbprint), nil
}
