package jwk

import (
	"bytes"
	"crypto"
	_ "crypto/sha256"
	"fmt"

	"github.com/goccy/go-json"
	jose "github.com/picatz/jose/v2/pkg"
)

// thumbprint follows the steps defined in RFC 7638.
//
// https://datatracker.ietf.org/doc/html/rfc7638#section-3
func thumbprint(k Key, h crypto.Hash) ([]byte, error) {
	// 1. Construct a JSON object [RFC7159] containing only the required
	// members of a JWK representing the key and with no whitespace or
	// line breaks before or after any syntactic elements and with the
	// required members ordered lexicographically by the Unicode
	// [UNICODE] code points of the member names.
	//
	// We cannot rely on a JSON encoder for the member order, so each
	// key type lists its members already sorted.
	b := bytes.NewBuffer(nil)
	b.WriteByte('{')
	for i, member := range k.thumbprintMembers() {
		if i > 0 {
			b.WriteByte(',')
		}
		name, err := json.Marshal(member[0])
		if err != nil {
			return nil, fmt.Errorf("%w: failed to encode thumbprint member: %v", jose.ErrInvalidKey, err)
		}
		value, err := json.Marshal(member[1])
		if err != nil {
			return nil, fmt.Errorf("%w: failed to encode thumbprint member: %v", jose.ErrInvalidKey, err)
		}
		b.Write(name)
		b.WriteByte(':')
		b.Write(value)
	}
	b.WriteByte('}')

	// 2. Hash the octets of the UTF-8 representation of this JSON object
	// with a cryptographic hash function H. If none is specified, SHA-256
	// is used.
	if h == 0 {
		h = crypto.SHA256
	}
	if !h.Available() {
		return nil, fmt.Errorf("%w: hash %v is not available", jose.ErrUnsupportedAlgorithm, h)
	}

	hash := h.New()
	hash.Write(b.Bytes())
	return hash.Sum(nil), nil
}
