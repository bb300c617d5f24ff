package jws

import (
	"fmt"
	"unicode/utf8"

	"github.com/goccy/go-json"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwk"
)

// Signer describes one signature of a JSON serialized JWS.
type Signer struct {
	// Protected is the integrity protected header.
	Protected Header

	// Header is the unprotected header. It must not share parameter
	// names with Protected.
	Header Header

	// Key signs the payload, and must be nil for "none".
	Key jwk.Key
}

// MessageSignature is one entry of the "signatures" member.
type MessageSignature struct {
	Protected Header
	Header    Header
	Signature []byte

	protected string
}

// Message is a JWS using the JSON serialization, carrying any number of
// signatures over a single payload.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.2
type Message struct {
	// Payload is the signed content. It is empty for a parsed detached
	// message, see WithDetachedPayload.
	Payload    []byte
	Signatures []*MessageSignature

	detached bool
	encode   bool
}

// Sign signs the payload once per signer, producing a JSON serialized
// JWS. Each signer's header must contain "alg".
func Sign(payload []byte, signers []Signer, opts ...Option) (*Message, error) {
	c, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	if len(signers) == 0 {
		return nil, fmt.Errorf("%w: no signers", jose.ErrInvalidHeader)
	}

	m := &Message{
		Payload:  append([]byte(nil), payload...),
		detached: c.Detached,
		encode:   !c.Unencoded,
	}
	if c.Unencoded && !utf8.Valid(payload) && !c.Detached {
		return nil, fmt.Errorf("%w: unencoded JSON payload must be valid UTF-8", jose.ErrMalformedToken)
	}

	for _, s := range signers {
		joint, _ := header.Merge(s.Protected, s.Header)
		alg, _ := joint.Algorithm()

		entry, err := signEntry(payload, s, c)
		c.Observer.Observe(jose.OperationSign, alg, err)
		if err != nil {
			return nil, err
		}
		m.Signatures = append(m.Signatures, entry)
	}
	return m, nil
}

func signEntry(payload []byte, s Signer, c *Config) (*MessageSignature, error) {
	protected, joint, encoded, d, err := prepare(s.Protected, s.Header, c)
	if err != nil {
		return nil, err
	}
	encode, err := joint.Base64URLEncodePayload()
	if err != nil {
		return nil, err
	}
	sig, err := sign(d, s.Key, SigningInput(encoded, payload, encode), c)
	if err != nil {
		return nil, err
	}
	return &MessageSignature{
		Protected: protected,
		Header:    s.Header.Clone(),
		Signature: sig,
		protected: encoded,
	}, nil
}

// Detached returns true if the payload is not part of the serialization.
func (m *Message) Detached() bool {
	return m.detached
}

type jsonSignature struct {
	Protected string `json:"protected,omitempty"`
	Header    Header `json:"header,omitempty"`
	Signature string `json:"signature"`
}

type jsonGeneral struct {
	Payload    *string         `json:"payload,omitempty"`
	Signatures []jsonSignature `json:"signatures"`
}

type jsonFlattened struct {
	Payload *string `json:"payload,omitempty"`
	jsonSignature
}

func (m *Message) payloadMember() *string {
	if m.detached {
		return nil
	}
	var payload string
	if m.encode {
		payload = base64.Encode(m.Payload)
	} else {
		payload = string(m.Payload)
	}
	return &payload
}

func (s *MessageSignature) member() jsonSignature {
	return jsonSignature{
		Protected: s.protected,
		Header:    s.Header,
		Signature: base64.Encode(s.Signature),
	}
}

// MarshalJSON returns the general JSON serialization.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.2.1
func (m *Message) MarshalJSON() ([]byte, error) {
	out := jsonGeneral{Payload: m.payloadMember(), Signatures: make([]jsonSignature, 0, len(m.Signatures))}
	for _, s := range m.Signatures {
		out.Signatures = append(out.Signatures, s.member())
	}
	return json.Marshal(out)
}

// Flatten returns the flattened JSON serialization, which is only
// possible for a single signature.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.2.2
func (m *Message) Flatten() ([]byte, error) {
	if len(m.Signatures) != 1 {
		return nil, fmt.Errorf("%w: flattened serialization needs exactly one signature, have %d", jose.ErrMalformedToken, len(m.Signatures))
	}
	return json.Marshal(jsonFlattened{Payload: m.payloadMember(), jsonSignature: m.Signatures[0].member()})
}

// Compact returns the compact serialization of a single signature message
// without an unprotected header.
func (m *Message) Compact() (*Signature, error) {
	if len(m.Signatures) != 1 {
		return nil, fmt.Errorf("%w: compact serialization needs exactly one signature, have %d", jose.ErrMalformedToken, len(m.Signatures))
	}
	s := m.Signatures[0]
	if len(s.Header) > 0 || s.protected == "" {
		return nil, fmt.Errorf("%w: compact serialization needs a protected header only", jose.ErrInvalidHeader)
	}
	return &Signature{
		Header:    s.Protected,
		Payload:   m.Payload,
		Signature: s.Signature,
		protected: s.protected,
		detached:  m.detached,
	}, nil
}

type jsonInput struct {
	Payload    *string          `json:"payload"`
	Signatures *[]jsonSignature `json:"signatures"`
	Protected  *string          `json:"protected"`
	Header     Header           `json:"header"`
	Signature  *string          `json:"signature"`
}

// ParseJSON parses a general or flattened JSON serialized JWS without
// verifying it.
func ParseJSON(data []byte) (*Message, error) {
	var in jsonInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: failed to decode JWS JSON: %v", jose.ErrMalformedToken, err)
	}

	var entries []jsonSignature
	switch {
	case in.Signatures != nil && (in.Signature != nil || in.Protected != nil || in.Header != nil):
		return nil, fmt.Errorf("%w: JWS JSON mixes general and flattened members", jose.ErrMalformedToken)
	case in.Signatures != nil:
		entries = *in.Signatures
	case in.Signature != nil:
		entry := jsonSignature{Header: in.Header, Signature: *in.Signature}
		if in.Protected != nil {
			entry.Protected = *in.Protected
		}
		entries = []jsonSignature{entry}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: JWS JSON has no signatures", jose.ErrMalformedToken)
	}

	m := &Message{detached: in.Payload == nil}
	for i, e := range entries {
		s, encode, err := parseEntry(e)
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
		if i > 0 && encode != m.encode {
			return nil, fmt.Errorf("%w: signatures disagree on %q", jose.ErrInvalidHeader, header.Base64URLEncodePayload)
		}
		m.encode = encode
		m.Signatures = append(m.Signatures, s)
	}

	if in.Payload != nil {
		if m.encode {
			payload, err := base64.Decode(*in.Payload)
			if err != nil {
				return nil, fmt.Errorf("%w: failed to decode payload: %w", jose.ErrMalformedToken, err)
			}
			m.Payload = payload
		} else {
			m.Payload = []byte(*in.Payload)
		}
	}
	return m, nil
}

func parseEntry(e jsonSignature) (*MessageSignature, bool, error) {
	s := &MessageSignature{Header: e.Header, protected: e.Protected}

	if e.Protected != "" {
		h, err := header.Parse(e.Protected)
		if err != nil {
			return nil, false, err
		}
		s.Protected = h
	}

	for _, name := range []string{header.Critical, header.Base64URLEncodePayload} {
		if s.Header.Has(name) {
			return nil, false, fmt.Errorf("%w: %q must be integrity protected", jose.ErrInvalidHeader, name)
		}
	}
	joint, err := header.Merge(s.Protected, s.Header)
	if err != nil {
		return nil, false, err
	}
	if err := joint.Validate(); err != nil {
		return nil, false, err
	}

	sig, err := base64.Decode(e.Signature)
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to decode signature: %w", jose.ErrMalformedToken, err)
	}
	s.Signature = sig

	encode, err := joint.Base64URLEncodePayload()
	return s, encode, err
}

// Verify checks the signatures against the caller's allow-list and keys.
// With the default VerifyAny policy one valid signature is enough, with
// VerifyAll every signature must verify. WithRequiredKeyID restricts
// verification to the signatures whose "kid" matches.
func (m *Message) Verify(opts ...Option) error {
	c, err := newConfig(opts)
	if err != nil {
		return err
	}

	payload := m.Payload
	if c.Payload != nil {
		if len(m.Payload) > 0 {
			return fmt.Errorf("%w: detached payload given for an attached JWS", jose.ErrMalformedToken)
		}
		payload = c.Payload
	}

	var (
		firstErr error
		checked  int
	)
	for _, s := range m.Signatures {
		joint, err := header.Merge(s.Protected, s.Header)
		if err != nil {
			return err
		}
		if c.KeyID != "" {
			if kid, _ := joint.KeyID(); kid != c.KeyID {
				continue
			}
		}
		checked++

		alg, err := verifySignature(joint, s.protected, payload, s.Signature, c)
		c.Observer.Observe(jose.OperationVerify, alg, err)

		switch {
		case err == nil && c.Policy == VerifyAny:
			return nil
		case err != nil && c.Policy == VerifyAll:
			return err
		case err != nil && firstErr == nil:
			firstErr = err
		}
	}

	if checked == 0 {
		c.Logger.V(1).Info("no signature with required key ID", "kid", c.KeyID)
		return fmt.Errorf("%w: no signature with %q %q", jose.ErrKeyMismatch, header.KeyID, c.KeyID)
	}
	if c.Policy == VerifyAny {
		return firstErr
	}
	return nil
}
