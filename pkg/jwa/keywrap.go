package jwa

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	jose "github.com/picatz/jose/v2/pkg"
)

// errKeyUnwrap is returned by every Unwrap failure that depends on the
// encrypted key, so failures cannot be told apart.
var errKeyUnwrap = errors.New("jwa: key unwrap failed")

// defaultIV is the RFC 3394 default initial value.
var defaultIV = [8]byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

// KeyWrap wraps the given key with AES Key Wrap.
//
// https://datatracker.ietf.org/doc/html/rfc3394#section-2.2.1
func KeyWrap(block cipher.Block, key []byte) ([]byte, error) {
	if len(key)%8 != 0 || len(key) < 16 {
		return nil, fmt.Errorf("%w: key to wrap must be a multiple of 64 bits and at least 128 bits, got %d bytes", jose.ErrInvalidKey, len(key))
	}

	n := len(key) / 8
	out := make([]byte, len(key)+8)
	copy(out[8:], key)

	var a [8]byte
	copy(a[:], defaultIV[:])

	var b [16]byte
	for j := 0; j < 6; j++ {
		for i := 1; i <= n; i++ {
			copy(b[:8], a[:])
			copy(b[8:], out[i*8:(i+1)*8])
			block.Encrypt(b[:], b[:])

			t := uint64(n*j + i)
			binary.BigEndian.PutUint64(a[:], binary.BigEndian.Uint64(b[:8])^t)
			copy(out[i*8:(i+1)*8], b[8:])
		}
	}
	copy(out[:8], a[:])
	return out, nil
}

// KeyUnwrap unwraps a key wrapped with AES Key Wrap, checking the
// integrity value in constant time.
//
// https://datatracker.ietf.org/doc/html/rfc3394#section-2.2.2
func KeyUnwrap(block cipher.Block, wrapped []byte) ([]byte, error) {
	if len(wrapped)%8 != 0 || len(wrapped) < 24 {
		return nil, errKeyUnwrap
	}

	n := len(wrapped)/8 - 1
	r := make([]byte, n*8)
	copy(r, wrapped[8:])

	var a [8]byte
	copy(a[:], wrapped[:8])

	var b [16]byte
	for j := 5; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			t := uint64(n*j + i)
			binary.BigEndian.PutUint64(b[:8], binary.BigEndian.Uint64(a[:])^t)
			copy(b[8:], r[(i-1)*8:i*8])
			block.Decrypt(b[:], b[:])

			copy(a[:], b[:8])
			copy(r[(i-1)*8:i*8], b[8:])
		}
	}

	if subtle.ConstantTimeCompare(a[:], defaultIV[:]) != 1 {
		return nil, errKeyUnwrap
	}
	return r, nil
}

func symmetricKey(key any, size int) ([]byte, error) {
	secret, ok := key.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: requires a symmetric key, got %T", jose.ErrInvalidKey, key)
	}
	if len(secret) != size {
		return nil, fmt.Errorf("%w: requires a %d bit key, got %d bits", jose.ErrInvalidKey, size*8, len(secret)*8)
	}
	return secret, nil
}

// https://datatracker.ietf.org/doc/html/rfc7518#section-4.4
type aesKW struct {
	size int
}

func (w aesKW) Wrap(kek any, cek []byte, _ *KeyParams) ([]byte, error) {
	secret, err := symmetricKey(kek, w.size)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher for key wrap: %w", err)
	}
	return KeyWrap(block, cek)
}

func (w aesKW) Unwrap(kek any, encryptedKey []byte, _ *KeyParams) ([]byte, error) {
	secret, err := symmetricKey(kek, w.size)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher for key unwrap: %w", err)
	}
	return KeyUnwrap(block, encryptedKey)
}

// https://datatracker.ietf.org/doc/html/rfc7518#section-4.7
type aesGCMKW struct {
	size int
}

func (w aesGCMKW) aead(kek any) (cipher.AEAD, error) {
	secret, err := symmetricKey(kek, w.size)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create new AES cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Wrap records the random IV and the authentication tag in params.
func (w aesGCMKW) Wrap(kek any, cek []byte, params *KeyParams) ([]byte, error) {
	aead, err := w.aead(kek)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to get random iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, cek, nil)
	split := len(sealed) - aead.Overhead()

	params.IV = iv
	params.Tag = sealed[split:]
	return sealed[:split], nil
}

func (w aesGCMKW) Unwrap(kek any, encryptedKey []byte, params *KeyParams) ([]byte, error) {
	aead, err := w.aead(kek)
	if err != nil {
		return nil, err
	}
	if len(params.IV) != aead.NonceSize() || len(params.Tag) != aead.Overhead() {
		return nil, errKeyUnwrap
	}

	sealed := make([]byte, 0, len(encryptedKey)+len(params.Tag))
	sealed = append(sealed, encryptedKey...)
	sealed = append(sealed, params.Tag...)

	cek, err := aead.Open(nil, params.IV, sealed, nil)
	if err != nil {
		return nil, errKeyUnwrap
	}
	return cek, nil
}

// https://datatracker.ietf.org/doc/html/rfc7518#section-4.3
type rsaOAEP struct {
	hash crypto.Hash
}

func (w rsaOAEP) Wrap(kek any, cek []byte, _ *KeyParams) ([]byte, error) {
	var pub *rsa.PublicKey
	switch k := kek.(type) {
	case *rsa.PublicKey:
		pub = k
	case *rsa.PrivateKey:
		pub = &k.PublicKey
	default:
		return nil, fmt.Errorf("%w: RSA-OAEP requires *rsa.PublicKey, got %T", jose.ErrInvalidKey, kek)
	}
	if pub.N.BitLen() < 2048 {
		return nil, fmt.Errorf("%w: RSA key size %d is less than 2048 bits", jose.ErrInvalidKey, pub.N.BitLen())
	}
	return rsa.EncryptOAEP(w.hash.New(), rand.Reader, pub, cek, nil)
}

func (w rsaOAEP) Unwrap(kek any, encryptedKey []byte, _ *KeyParams) ([]byte, error) {
	priv, ok := kek.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: RSA-OAEP decryption requires *rsa.PrivateKey, got %T", jose.ErrInvalidKey, kek)
	}
	if priv.N.BitLen() < 2048 {
		return nil, fmt.Errorf("%w: RSA key size %d is less than 2048 bits", jose.ErrInvalidKey, priv.N.BitLen())
	}
	cek, err := rsa.DecryptOAEP(w.hash.New(), rand.Reader, priv, encryptedKey, nil)
	if err != nil {
		return nil, errKeyUnwrap
	}
	return cek, nil
}
