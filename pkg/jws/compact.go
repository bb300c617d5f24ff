package jws

import (
	"fmt"
	"strings"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwk"
)

// Signature is a JWS using the compact serialization, a single signature
// over a payload with an integrity protected header.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.1
type Signature struct {
	// Header is the protected header.
	Header Header

	// Payload is the signed content. It is empty for a parsed detached
	// signature, see WithDetachedPayload.
	Payload []byte

	// Signature is the signature or MAC value.
	Signature []byte

	// protected is the encoded header exactly as signed or parsed, so the
	// signing input never depends on re-serializing the header.
	protected string

	detached bool
}

// New creates a signed JWS. The header must contain "alg", and the key
// must support signing with it. The "none" algorithm requires a nil key
// and WithInsecureAllowNone.
func New(h Header, payload []byte, key jwk.Key, opts ...Option) (*Signature, error) {
	c, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	alg, _ := h.Algorithm()
	s, err := newSignature(h, payload, key, c)
	c.Observer.Observe(jose.OperationSign, alg, err)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newSignature(h Header, payload []byte, key jwk.Key, c *Config) (*Signature, error) {
	h, _, protected, d, err := prepare(h, nil, c)
	if err != nil {
		return nil, err
	}

	encode, err := h.Base64URLEncodePayload()
	if err != nil {
		return nil, err
	}
	if !encode && !c.Detached && strings.ContainsRune(string(payload), '.') {
		return nil, fmt.Errorf("%w: unencoded compact payload must not contain a period", jose.ErrMalformedToken)
	}

	sig, err := sign(d, key, SigningInput(protected, payload, encode), c)
	if err != nil {
		return nil, err
	}

	return &Signature{
		Header:    h,
		Payload:   append([]byte(nil), payload...),
		Signature: sig,
		protected: protected,
		detached:  c.Detached,
	}, nil
}

// String returns the compact serialization, three segments separated by
// periods. A detached payload is serialized as an empty segment.
func (s *Signature) String() string {
	protected := s.protected
	if protected == "" {
		protected, _ = s.Header.Base64URLString()
	}

	var payload string
	if !s.detached {
		if encode, _ := s.Header.Base64URLEncodePayload(); encode {
			payload = base64.Encode(s.Payload)
		} else {
			payload = string(s.Payload)
		}
	}

	return protected + "." + payload + "." + base64.Encode(s.Signature)
}

// Detached returns true if the payload is not part of the serialization.
func (s *Signature) Detached() bool {
	return s.detached
}

// Parse parses a compact serialized JWS without verifying it.
func Parse(input string) (*Signature, error) {
	if input == "" {
		return nil, fmt.Errorf("%w: empty JWS string", jose.ErrMalformedToken)
	}
	if dots := strings.Count(input, "."); dots != 2 {
		return nil, fmt.Errorf("%w: invalid JWS format, expected 2 dots, got %d", jose.ErrMalformedToken, dots)
	}
	parts := strings.SplitN(input, ".", 3)

	h, err := header.Parse(parts[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}

	encode, err := h.Base64URLEncodePayload()
	if err != nil {
		return nil, err
	}

	var payload []byte
	if encode {
		payload, err = base64.Decode(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode payload: %w", jose.ErrMalformedToken, err)
		}
	} else {
		payload = []byte(parts[1])
	}

	sig, err := base64.Decode(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode signature: %w", jose.ErrMalformedToken, err)
	}

	return &Signature{
		Header:    h,
		Payload:   payload,
		Signature: sig,
		protected: parts[0],
		detached:  parts[1] == "",
	}, nil
}

// Verify checks the signature against the caller's allow-list and keys.
// Verification fails without WithAllowedAlgorithms, and every signature
// mismatch is reported as jose.ErrAuthenticationFailure.
func (s *Signature) Verify(opts ...Option) error {
	c, err := newConfig(opts)
	if err != nil {
		return err
	}

	alg, err := s.verify(c)
	c.Observer.Observe(jose.OperationVerify, alg, err)
	return err
}

func (s *Signature) verify(c *Config) (string, error) {
	protected := s.protected
	if protected == "" {
		var err error
		if protected, err = s.Header.Base64URLString(); err != nil {
			return "", fmt.Errorf("%w: %w", jose.ErrInvalidHeader, err)
		}
	}

	payload := s.Payload
	if c.Payload != nil {
		if len(s.Payload) > 0 {
			return "", fmt.Errorf("%w: detached payload given for an attached JWS", jose.ErrMalformedToken)
		}
		payload = c.Payload
	}

	return verifySignature(s.Header, protected, payload, s.Signature, c)
}
