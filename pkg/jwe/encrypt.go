package jwe

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwk"
)

// Recipient describes one recipient of a JSON serialized JWE.
type Recipient struct {
	// Header is the per-recipient unprotected header. It carries "alg"
	// unless every recipient uses the one in the protected header.
	Header Header

	// Key is the recipient's public key, shared symmetric key, or
	// password, as an "oct" key.
	Key jwk.Key
}

// Encrypt encrypts the plaintext for a single recipient, producing a
// message that can use the compact serialization. The header is the
// protected header and must contain "alg" and "enc". Values generated by
// the key management algorithm, such as "epk" or "p2s", are added to it.
func Encrypt(plaintext []byte, h Header, key jwk.Key, opts ...Option) (*Message, error) {
	c, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	if len(c.SharedHeader) > 0 || len(c.AAD) > 0 {
		return nil, fmt.Errorf("%w: a compact message has no shared header or AAD", jose.ErrInvalidHeader)
	}

	alg, _ := h.Algorithm()
	m, err := encrypt(plaintext, h, []Recipient{{Key: key}}, true, c)
	c.Observer.Observe(jose.OperationEncrypt, alg, err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// EncryptJSON encrypts the plaintext once for every recipient, sharing the
// content encryption key. "enc" must be in the protected header or the
// shared header set with WithSharedHeader. The direct modes, "dir" and
// "ECDH-ES", allow a single recipient only.
func EncryptJSON(plaintext []byte, protected Header, recipients []Recipient, opts ...Option) (*Message, error) {
	c, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	m, err := encrypt(plaintext, protected, recipients, false, c)
	for _, r := range recipients {
		joint, _ := header.Merge(protected, r.Header)
		alg, _ := joint.Algorithm()
		c.Observer.Observe(jose.OperationEncrypt, alg, err)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

type plan struct {
	header Header
	joint  Header
	key    jwk.Key
	d      jwa.Descriptor
}

func encrypt(plaintext []byte, protected Header, recipients []Recipient, compact bool, c *Config) (*Message, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: no recipients", jose.ErrInvalidHeader)
	}

	protected = protected.Clone()
	if protected == nil {
		protected = Header{}
	}
	shared := c.SharedHeader.Clone()
	if c.Compress {
		protected[header.Zip] = CompressionDeflate
	}

	common, err := header.Merge(protected, shared)
	if err != nil {
		return nil, err
	}
	enc, err := common.Encryption()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jose.ErrInvalidHeader, err)
	}
	ed, err := jwa.LookupCategory(enc, jwa.CategoryContentEncryption)
	if err != nil {
		return nil, err
	}
	compress, err := checkZip(protected, shared)
	if err != nil {
		return nil, err
	}

	plans := make([]plan, 0, len(recipients))
	direct := false
	for _, r := range recipients {
		rh := r.Header.Clone()
		if rh == nil {
			rh = Header{}
		}
		for _, name := range []string{header.Encryption, header.Zip, header.Critical} {
			if rh.Has(name) {
				return nil, fmt.Errorf("%w: %q must be shared by every recipient", jose.ErrInvalidHeader, name)
			}
		}

		joint, err := header.Merge(protected, shared, rh)
		if err != nil {
			return nil, err
		}
		alg, err := joint.Algorithm()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", jose.ErrInvalidHeader, err)
		}
		d, err := jwa.LookupCategory(alg, jwa.CategoryKeyManagement)
		if err != nil {
			return nil, err
		}
		if err := joint.Validate(); err != nil {
			return nil, err
		}
		if err := checkCritical(joint, c); err != nil {
			return nil, err
		}
		if d.Wrapper == nil {
			direct = true
		}
		plans = append(plans, plan{header: rh, joint: joint, key: r.Key, d: d})
	}

	if direct && len(recipients) > 1 {
		return nil, fmt.Errorf("%w: direct key management allows a single recipient", jose.ErrInvalidHeader)
	}
	if direct && c.CEK != nil {
		return nil, fmt.Errorf("%w: the CEK is derived with direct key management", jose.ErrInvalidHeader)
	}

	cekSize := ed.KeySize / 8
	var cek []byte
	if !direct {
		if cek, err = contentKey(c.CEK, cekSize); err != nil {
			return nil, err
		}
	}

	m := &Message{
		Protected:   protected,
		Unprotected: shared,
		AAD:         c.AAD,
	}
	for _, p := range plans {
		target := p.header
		if compact {
			target = protected
		}
		encryptedKey, derived, err := wrapKey(p, cek, cekSize, enc, target, c)
		if err != nil {
			return nil, err
		}
		if direct {
			cek = derived
		}

		r := &MessageRecipient{EncryptedKey: encryptedKey}
		if len(p.header) > 0 {
			r.Header = p.header
		}
		m.Recipients = append(m.Recipients, r)
	}

	// Generated parameters must not collide with caller supplied ones.
	for _, r := range m.Recipients {
		joint, err := header.Merge(protected, shared, r.Header)
		if err != nil {
			return nil, err
		}
		if err := joint.Validate(); err != nil {
			return nil, err
		}
	}

	if len(protected) > 0 {
		if m.protected, err = protected.Base64URLString(); err != nil {
			return nil, fmt.Errorf("%w: %w", jose.ErrInvalidHeader, err)
		}
	}

	iv := c.IV
	if iv == nil {
		iv = make([]byte, ed.Cipher.IVSize())
		if _, err := io.ReadFull(rand.Reader, iv); err != nil {
			return nil, fmt.Errorf("failed to get random iv: %w", err)
		}
	} else if len(iv) != ed.Cipher.IVSize() {
		return nil, fmt.Errorf("%w: %q requires a %d byte IV, got %d", jose.ErrInvalidHeader, enc, ed.Cipher.IVSize(), len(iv))
	}

	content := plaintext
	if compress {
		if content, err = deflate(plaintext); err != nil {
			return nil, err
		}
	}

	ciphertext, tag, err := ed.Cipher.Encrypt(cek, iv, AAD(m.protected, m.AAD), content)
	if err != nil {
		return nil, err
	}
	m.IV = append([]byte(nil), iv...)
	m.Ciphertext = ciphertext
	m.Tag = tag
	return m, nil
}

// contentKey returns the caller's CEK, or a new random one.
func contentKey(cek []byte, size int) ([]byte, error) {
	if cek != nil {
		if len(cek) != size {
			return nil, fmt.Errorf("%w: CEK must be %d bytes, got %d", jose.ErrInvalidKey, size, len(cek))
		}
		return append([]byte(nil), cek...), nil
	}
	cek = make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, cek); err != nil {
		return nil, fmt.Errorf("failed to get random CEK: %w", err)
	}
	return cek, nil
}

// wrapKey runs the sender side of the recipient's key management mode. It
// returns the encrypted key, or for the direct modes the derived CEK, and
// records generated header parameters in target.
func wrapKey(p plan, cek []byte, cekSize int, enc jwa.Algorithm, target Header, c *Config) ([]byte, []byte, error) {
	if p.key == nil {
		return nil, nil, fmt.Errorf("%w: no key for %q", jose.ErrInvalidKey, p.d.Name)
	}
	if err := jwk.CheckSupport(p.key, p.d.Name, keyOperation(p.d.Mode, true)); err != nil {
		return nil, nil, err
	}

	params, err := senderParams(p, enc, c)
	if err != nil {
		return nil, nil, err
	}

	kek := p.key.Material()
	if p.d.Deriver != nil {
		size := cekSize
		if p.d.Wrapper != nil {
			size = p.d.DerivedKeySize / 8
		}
		derived, err := p.d.Deriver.DeriveSenderKey(kek, size, params)
		if err != nil {
			return nil, nil, err
		}
		if p.d.Wrapper == nil {
			if err := recordParams(target, p.joint, params); err != nil {
				return nil, nil, err
			}
			return nil, derived, nil
		}
		kek = derived
	}

	encryptedKey, err := p.d.Wrapper.Wrap(kek, cek, params)
	if err != nil {
		return nil, nil, err
	}
	if err := recordParams(target, p.joint, params); err != nil {
		return nil, nil, err
	}
	return encryptedKey, nil, nil
}

// senderParams collects the caller chosen key management inputs. Values
// in the recipient's header are used as given; an option setting the same
// value must agree with it.
func senderParams(p plan, enc jwa.Algorithm, c *Config) (*jwa.KeyParams, error) {
	params := &jwa.KeyParams{Enc: enc}
	var err error
	switch p.d.Mode {
	case jwa.ModeDirectKeyAgreement, jwa.ModeKeyAgreementWithWrap:
		if params.APU, err = headerBytes(p.joint, header.AgreementPartyUInfo, c.APU); err != nil {
			return nil, err
		}
		if params.APV, err = headerBytes(p.joint, header.AgreementPartyVInfo, c.APV); err != nil {
			return nil, err
		}
	case jwa.ModePassword:
		if params.P2S, err = headerBytes(p.joint, header.PBES2SaltInput, c.PBES2Salt); err != nil {
			return nil, err
		}
		params.P2C = c.PBES2Count
		if p.joint.Has(header.PBES2Count) {
			count, err := p.joint.PBES2Count()
			if err != nil {
				return nil, err
			}
			if params.P2C > 0 && params.P2C != count {
				return nil, fmt.Errorf("%w: %q %d conflicts with the configured count %d", jose.ErrInvalidHeader, header.PBES2Count, count, params.P2C)
			}
			params.P2C = count
		}
	}
	return params, nil
}

func headerBytes(h Header, name string, configured []byte) ([]byte, error) {
	if !h.Has(name) {
		return configured, nil
	}
	value, err := h.Bytes(name)
	if err != nil {
		return nil, err
	}
	if configured != nil && !bytes.Equal(configured, value) {
		return nil, fmt.Errorf("%w: %q conflicts with the configured value", jose.ErrInvalidHeader, name)
	}
	return value, nil
}

// recordParams adds the key management values chosen by the sender to
// the header. Inputs already present in the recipient's joint header are
// left where the caller put them.
func recordParams(h, joint Header, params *jwa.KeyParams) error {
	if params.EPK != nil {
		epk, err := jwk.FromCryptoKey(params.EPK, jwk.WithoutKeyID())
		if err != nil {
			return err
		}
		h[header.EphemeralPublicKey] = epk.Value(false)
	}
	for name, value := range map[string][]byte{
		header.AgreementPartyUInfo:  params.APU,
		header.AgreementPartyVInfo:  params.APV,
		header.InitializationVector: params.IV,
		header.AuthenticationTag:    params.Tag,
		header.PBES2SaltInput:       params.P2S,
	} {
		if len(value) > 0 && !joint.Has(name) {
			h[name] = base64.Encode(value)
		}
	}
	if params.P2C > 0 && !joint.Has(header.PBES2Count) {
		h[header.PBES2Count] = params.P2C
	}
	return nil
}
