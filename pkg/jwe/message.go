package jwe

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/header"
)

// MessageRecipient is one entry of the "recipients" member.
type MessageRecipient struct {
	// Header is the per-recipient unprotected header.
	Header Header

	// EncryptedKey is empty for the direct modes.
	EncryptedKey []byte
}

// Message is a JWE. A message with a single recipient and only a
// protected header can use the compact serialization, any other needs
// the JSON serialization.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-7
type Message struct {
	// Protected is the integrity protected header.
	Protected Header

	// Unprotected is the shared unprotected header.
	Unprotected Header

	Recipients []*MessageRecipient

	// AAD is the additional authenticated data of the JSON serialization.
	AAD []byte

	IV         []byte
	Ciphertext []byte
	Tag        []byte

	// protected is the encoded header exactly as encrypted or parsed,
	// since the AAD covers these bytes.
	protected string
}

// CompactString returns the compact serialization, five segments separated
// by periods. Empty segments, such as the encrypted key of "dir", are
// serialized with zero length.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-7.1
func (m *Message) CompactString() (string, error) {
	if len(m.Recipients) != 1 {
		return "", fmt.Errorf("%w: compact serialization needs exactly one recipient, have %d", jose.ErrMalformedToken, len(m.Recipients))
	}
	if m.protected == "" || len(m.Unprotected) > 0 || len(m.Recipients[0].Header) > 0 || len(m.AAD) > 0 {
		return "", fmt.Errorf("%w: compact serialization needs a protected header only", jose.ErrInvalidHeader)
	}

	return strings.Join([]string{
		m.protected,
		base64.Encode(m.Recipients[0].EncryptedKey),
		base64.Encode(m.IV),
		base64.Encode(m.Ciphertext),
		base64.Encode(m.Tag),
	}, "."), nil
}

type jsonRecipient struct {
	Header       Header `json:"header,omitempty"`
	EncryptedKey string `json:"encrypted_key,omitempty"`
}

type jsonGeneral struct {
	Protected   string          `json:"protected,omitempty"`
	Unprotected Header          `json:"unprotected,omitempty"`
	Recipients  []jsonRecipient `json:"recipients"`
	AAD         string          `json:"aad,omitempty"`
	IV          string          `json:"iv,omitempty"`
	Ciphertext  string          `json:"ciphertext"`
	Tag         string          `json:"tag,omitempty"`
}

type jsonFlattened struct {
	Protected    string `json:"protected,omitempty"`
	Unprotected  Header `json:"unprotected,omitempty"`
	Header       Header `json:"header,omitempty"`
	EncryptedKey string `json:"encrypted_key,omitempty"`
	AAD          string `json:"aad,omitempty"`
	IV           string `json:"iv,omitempty"`
	Ciphertext   string `json:"ciphertext"`
	Tag          string `json:"tag,omitempty"`
}

// MarshalJSON returns the general JSON serialization.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-7.2.1
func (m *Message) MarshalJSON() ([]byte, error) {
	out := jsonGeneral{
		Protected:   m.protected,
		Unprotected: m.Unprotected,
		Recipients:  make([]jsonRecipient, 0, len(m.Recipients)),
		AAD:         base64.Encode(m.AAD),
		IV:          base64.Encode(m.IV),
		Ciphertext:  base64.Encode(m.Ciphertext),
		Tag:         base64.Encode(m.Tag),
	}
	for _, r := range m.Recipients {
		out.Recipients = append(out.Recipients, jsonRecipient{
			Header:       r.Header,
			EncryptedKey: base64.Encode(r.EncryptedKey),
		})
	}
	return json.Marshal(out)
}

// Flatten returns the flattened JSON serialization, which is only possible
// for a single recipient.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-7.2.2
func (m *Message) Flatten() ([]byte, error) {
	if len(m.Recipients) != 1 {
		return nil, fmt.Errorf("%w: flattened serialization needs exactly one recipient, have %d", jose.ErrMalformedToken, len(m.Recipients))
	}
	return json.Marshal(jsonFlattened{
		Protected:    m.protected,
		Unprotected:  m.Unprotected,
		Header:       m.Recipients[0].Header,
		EncryptedKey: base64.Encode(m.Recipients[0].EncryptedKey),
		AAD:          base64.Encode(m.AAD),
		IV:           base64.Encode(m.IV),
		Ciphertext:   base64.Encode(m.Ciphertext),
		Tag:          base64.Encode(m.Tag),
	})
}

// Parse parses a compact serialized JWE without decrypting it.
func Parse(input string) (*Message, error) {
	if input == "" {
		return nil, fmt.Errorf("%w: empty JWE string", jose.ErrMalformedToken)
	}
	if dots := strings.Count(input, "."); dots != 4 {
		return nil, fmt.Errorf("%w: invalid JWE format, expected 4 dots, got %d", jose.ErrMalformedToken, dots)
	}
	parts := strings.SplitN(input, ".", 5)
	if parts[0] == "" {
		return nil, fmt.Errorf("%w: missing protected header", jose.ErrMalformedToken)
	}

	h, err := header.Parse(parts[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}

	segments := make([][]byte, 4)
	for i, name := range []string{"encrypted key", "iv", "ciphertext", "tag"} {
		if segments[i], err = base64.Decode(parts[i+1]); err != nil {
			return nil, fmt.Errorf("%w: failed to decode %s: %w", jose.ErrMalformedToken, name, err)
		}
	}

	return &Message{
		Protected:  h,
		Recipients: []*MessageRecipient{{EncryptedKey: segments[0]}},
		IV:         segments[1],
		Ciphertext: segments[2],
		Tag:        segments[3],
		protected:  parts[0],
	}, nil
}

type jsonInput struct {
	Protected    *string          `json:"protected"`
	Unprotected  Header           `json:"unprotected"`
	Recipients   *[]jsonRecipient `json:"recipients"`
	Header       Header           `json:"header"`
	EncryptedKey *string          `json:"encrypted_key"`
	AAD          *string          `json:"aad"`
	IV           *string          `json:"iv"`
	Ciphertext   *string          `json:"ciphertext"`
	Tag          *string          `json:"tag"`
}

// ParseJSON parses a general or flattened JSON serialized JWE without
// decrypting it.
func ParseJSON(data []byte) (*Message, error) {
	var in jsonInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: failed to decode JWE JSON: %v", jose.ErrMalformedToken, err)
	}
	if in.Ciphertext == nil {
		return nil, fmt.Errorf("%w: JWE JSON has no ciphertext", jose.ErrMalformedToken)
	}

	var recipients []jsonRecipient
	switch {
	case in.Recipients != nil && (in.Header != nil || in.EncryptedKey != nil):
		return nil, fmt.Errorf("%w: JWE JSON mixes general and flattened members", jose.ErrMalformedToken)
	case in.Recipients != nil:
		recipients = *in.Recipients
		if len(recipients) == 0 {
			return nil, fmt.Errorf("%w: JWE JSON has no recipients", jose.ErrMalformedToken)
		}
	default:
		r := jsonRecipient{Header: in.Header}
		if in.EncryptedKey != nil {
			r.EncryptedKey = *in.EncryptedKey
		}
		recipients = []jsonRecipient{r}
	}

	m := &Message{Unprotected: in.Unprotected}
	if in.Protected != nil && *in.Protected != "" {
		h, err := header.Parse(*in.Protected)
		if err != nil {
			return nil, fmt.Errorf("failed to decode header: %w", err)
		}
		m.Protected = h
		m.protected = *in.Protected
	}
	if err := m.Unprotected.Validate(); err != nil {
		return nil, err
	}

	for i, r := range recipients {
		if err := r.Header.Validate(); err != nil {
			return nil, fmt.Errorf("recipient %d: %w", i, err)
		}
		encryptedKey, err := base64.Decode(r.EncryptedKey)
		if err != nil {
			return nil, fmt.Errorf("%w: recipient %d: failed to decode encrypted key: %w", jose.ErrMalformedToken, i, err)
		}
		m.Recipients = append(m.Recipients, &MessageRecipient{Header: r.Header, EncryptedKey: encryptedKey})
	}

	for _, f := range []struct {
		name  string
		value *string
		dst   *[]byte
	}{
		{"aad", in.AAD, &m.AAD},
		{"iv", in.IV, &m.IV},
		{"ciphertext", in.Ciphertext, &m.Ciphertext},
		{"tag", in.Tag, &m.Tag},
	} {
		if f.value == nil {
			continue
		}
		b, err := base64.Decode(*f.value)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode %s: %w", jose.ErrMalformedToken, f.name, err)
		}
		*f.dst = b
	}
	return m, nil
}
