package jwe

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwk"
)

// Decrypt decrypts the message for the first recipient that one of the
// configured keys can decrypt, returning the plaintext.
//
// Both WithAllowedAlgorithms and WithAllowedEncryption are required. Any
// failure after the key management step returns exactly
// jose.ErrAuthenticationFailure.
func (m *Message) Decrypt(opts ...Option) ([]byte, error) {
	c, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	plaintext, alg, err := m.decrypt(c)
	c.Observer.Observe(jose.OperationDecrypt, alg, err)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

func (m *Message) decrypt(c *Config) ([]byte, jwa.Algorithm, error) {
	if len(c.AllowedAlgorithms) == 0 || len(c.AllowedEncryption) == 0 {
		return nil, "", fmt.Errorf("%w: no allowed algorithms configured", jose.ErrUnsupportedAlgorithm)
	}
	if len(m.Recipients) == 0 {
		return nil, "", fmt.Errorf("%w: message has no recipients", jose.ErrMalformedToken)
	}
	if len(c.Keys) == 0 {
		return nil, "", fmt.Errorf("%w: no decryption key provided", jose.ErrInvalidKey)
	}

	var (
		lastErr      error
		alg          jwa.Algorithm
		tried        bool
		authenticate bool
	)
	for _, r := range m.Recipients {
		joint, err := header.Merge(m.Protected, m.Unprotected, r.Header)
		if err != nil {
			return nil, "", err
		}
		if c.KeyID != "" {
			if kid, _ := joint.KeyID(); kid != c.KeyID {
				continue
			}
		}
		tried = true

		alg, _ = joint.Algorithm()
		plaintext, err := m.decryptRecipient(joint, r, c)
		if err == nil {
			return plaintext, alg, nil
		}
		if errors.Is(err, jose.ErrAuthenticationFailure) {
			authenticate = true
		}
		lastErr = err
	}

	if !tried {
		c.Logger.V(1).Info("no recipient matches key ID", "kid", c.KeyID)
		return nil, "", fmt.Errorf("%w: no recipient with %q %q", jose.ErrKeyMismatch, header.KeyID, c.KeyID)
	}
	if authenticate {
		return nil, alg, jose.ErrAuthenticationFailure
	}
	return nil, alg, lastErr
}

// decryptRecipient runs key management and content decryption for one
// recipient with every candidate key.
func (m *Message) decryptRecipient(joint Header, r *MessageRecipient, c *Config) ([]byte, error) {
	alg, err := joint.Algorithm()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jose.ErrInvalidHeader, err)
	}
	enc, err := joint.Encryption()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jose.ErrInvalidHeader, err)
	}

	d, err := jwa.LookupCategory(alg, jwa.CategoryKeyManagement)
	if err != nil {
		return nil, err
	}
	ed, err := jwa.LookupCategory(enc, jwa.CategoryContentEncryption)
	if err != nil {
		return nil, err
	}
	if !c.AllowedAlgorithms.Allowed(alg) {
		c.Logger.V(1).Info("rejected algorithm not in allow-list", "alg", alg)
		return nil, fmt.Errorf("%w: %q is not allowed", jose.ErrUnsupportedAlgorithm, alg)
	}
	if !c.AllowedEncryption.Allowed(enc) {
		c.Logger.V(1).Info("rejected encryption not in allow-list", "enc", enc)
		return nil, fmt.Errorf("%w: %q is not allowed", jose.ErrUnsupportedAlgorithm, enc)
	}

	if err := joint.Validate(); err != nil {
		return nil, err
	}
	if err := checkCritical(joint, c); err != nil {
		return nil, err
	}
	compressed, err := checkZip(m.Protected, m.Unprotected, r.Header)
	if err != nil {
		return nil, err
	}

	params, err := keyParams(joint, d, enc, c)
	if err != nil {
		return nil, err
	}
	if d.Wrapper == nil && len(r.EncryptedKey) > 0 {
		return nil, fmt.Errorf("%w: %q requires an empty encrypted key", jose.ErrMalformedToken, alg)
	}

	candidates, err := selectKeys(joint, d, c)
	if err != nil {
		return nil, err
	}

	cekSize := ed.KeySize / 8
	aad := AAD(m.protected, m.AAD)

	var (
		lastErr  error
		attempts int
	)
	for _, key := range candidates {
		cek, err := unwrapKey(d, key, r.EncryptedKey, cekSize, params)
		if err != nil {
			// Derivation failed, another key may still succeed.
			lastErr = err
			continue
		}
		attempts++

		content, err := ed.Cipher.Decrypt(cek, m.IV, aad, m.Ciphertext, m.Tag)
		if err != nil {
			continue
		}
		if !compressed {
			return content, nil
		}
		plaintext, err := inflate(content, c.MaxDecompressedSize)
		if err != nil {
			c.Logger.V(1).Info("rejected compressed plaintext", "error", err)
			return nil, jose.ErrAuthenticationFailure
		}
		return plaintext, nil
	}

	if attempts > 0 || lastErr == nil {
		return nil, jose.ErrAuthenticationFailure
	}
	return nil, lastErr
}

// keyParams builds the typed key management parameters from the header,
// enforcing the configured "p2c" limit.
func keyParams(joint Header, d jwa.Descriptor, enc jwa.Algorithm, c *Config) (*jwa.KeyParams, error) {
	params := &jwa.KeyParams{Enc: enc}

	switch d.Mode {
	case jwa.ModeDirectKeyAgreement, jwa.ModeKeyAgreementWithWrap:
		epk, err := joint.EphemeralPublicKey()
		if err != nil {
			return nil, err
		}
		params.EPK = epk.Material()
	case jwa.ModePassword:
		count, err := joint.PBES2Count()
		if err != nil {
			return nil, err
		}
		if count > c.MaxPBES2Count {
			c.Logger.V(1).Info("rejected PBES2 count above limit", "p2c", count, "max", c.MaxPBES2Count)
			return nil, fmt.Errorf("%w: %q %d exceeds the limit of %d", jose.ErrInvalidHeader, header.PBES2Count, count, c.MaxPBES2Count)
		}
		params.P2C = count
	}

	for name, dst := range map[string]*[]byte{
		header.AgreementPartyUInfo:  &params.APU,
		header.AgreementPartyVInfo:  &params.APV,
		header.InitializationVector: &params.IV,
		header.AuthenticationTag:    &params.Tag,
		header.PBES2SaltInput:       &params.P2S,
	} {
		if !joint.Has(name) {
			continue
		}
		b, err := joint.Bytes(name)
		if err != nil {
			return nil, err
		}
		*dst = b
	}
	return params, nil
}

// selectKeys returns the configured keys that may decrypt for a recipient
// with the given header.
func selectKeys(joint Header, d jwa.Descriptor, c *Config) ([]jwk.Key, error) {
	kid, _ := joint.KeyID()
	if c.RequireKeyID && kid == "" {
		return nil, fmt.Errorf("%w: header has no %q", jose.ErrKeyMismatch, header.KeyID)
	}

	var (
		candidates []jwk.Key
		matched    bool
		lastErr    error
	)
	op := keyOperation(d.Mode, false)
	for _, key := range c.Keys {
		switch {
		case c.RequireKeyID && key.KeyID() != kid:
			continue
		case !c.RequireKeyID && kid != "" && key.KeyID() != "" && key.KeyID() != kid:
			continue
		}
		matched = true
		if err := jwk.CheckSupport(key, d.Name, op); err != nil {
			lastErr = err
			continue
		}
		if op == jwk.OperationDeriveKey && !key.IsPrivate() {
			lastErr = fmt.Errorf("%w: %q requires a private key to decrypt", jose.ErrInvalidKey, d.Name)
			continue
		}
		candidates = append(candidates, key)
	}

	if !matched {
		c.Logger.V(1).Info("no key matches header key ID", "kid", kid)
		return nil, fmt.Errorf("%w: no key with %q %q", jose.ErrKeyMismatch, header.KeyID, kid)
	}
	if len(candidates) == 0 {
		c.Logger.V(1).Info("no key can be used with header algorithm", "alg", d.Name, "error", lastErr)
		return nil, fmt.Errorf("%w: %w", jose.ErrInvalidHeader, lastErr)
	}
	return candidates, nil
}

// unwrapKey runs the recipient side of the key management mode. A CEK
// that fails to unwrap, or has the wrong length, is replaced by a random
// one so the failure surfaces only as a content authentication failure.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-11.5
func unwrapKey(d jwa.Descriptor, key jwk.Key, encryptedKey []byte, cekSize int, params *jwa.KeyParams) ([]byte, error) {
	kek := key.Material()
	if d.Deriver != nil {
		size := cekSize
		if d.Wrapper != nil {
			size = d.DerivedKeySize / 8
		}
		derived, err := d.Deriver.DeriveRecipientKey(kek, size, params)
		if err != nil {
			return nil, err
		}
		if d.Wrapper == nil {
			return derived, nil
		}
		kek = derived
	}

	cek, err := d.Wrapper.Unwrap(kek, encryptedKey, params)
	if errors.Is(err, jose.ErrInvalidKey) {
		return nil, err
	}
	if err != nil || len(cek) != cekSize {
		cek = make([]byte, cekSize)
		if _, err := io.ReadFull(rand.Reader, cek); err != nil {
			return nil, fmt.Errorf("failed to get random CEK: %w", err)
		}
	}
	return cek, nil
}
