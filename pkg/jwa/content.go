package jwa

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	jose "github.com/picatz/jose/v2/pkg"
)

// AES_CBC_HMAC_SHA2 composite authenticated encryption. The CEK is the MAC
// key followed by the encryption key, each half of keySize.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-5.2
type aesCBCHMAC struct {
	keySize int
	hash    crypto.Hash
}

func (aesCBCHMAC) IVSize() int { return aes.BlockSize }

func (c aesCBCHMAC) tag(macKey, aad, iv, ciphertext []byte) []byte {
	var al [8]byte
	binary.BigEndian.PutUint64(al[:], uint64(len(aad))*8)

	h := hmac.New(c.hash.New, macKey)
	h.Write(aad)
	h.Write(iv)
	h.Write(ciphertext)
	h.Write(al[:])
	return h.Sum(nil)[:c.keySize/2]
}

func (c aesCBCHMAC) Encrypt(cek, iv, aad, plaintext []byte) ([]byte, []byte, error) {
	if len(cek) != c.keySize {
		return nil, nil, fmt.Errorf("%w: CEK must be %d bits, got %d bits", jose.ErrInvalidKey, c.keySize*8, len(cek)*8)
	}
	if len(iv) != aes.BlockSize {
		return nil, nil, fmt.Errorf("%w: IV must be %d bytes, got %d", jose.ErrInvalidHeader, aes.BlockSize, len(iv))
	}
	macKey, encKey := cek[:c.keySize/2], cek[c.keySize/2:]

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	// PKCS #7 padding always adds between one and a full block of bytes.
	padding := aes.BlockSize - len(plaintext)%aes.BlockSize
	ciphertext := make([]byte, len(plaintext)+padding)
	copy(ciphertext, plaintext)
	for i := len(plaintext); i < len(ciphertext); i++ {
		ciphertext[i] = byte(padding)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, ciphertext)

	return ciphertext, c.tag(macKey, aad, iv, ciphertext), nil
}

func (c aesCBCHMAC) Decrypt(cek, iv, aad, ciphertext, tag []byte) ([]byte, error) {
	if len(cek) != c.keySize || len(iv) != aes.BlockSize || len(tag) != c.keySize/2 {
		return nil, jose.ErrAuthenticationFailure
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, jose.ErrAuthenticationFailure
	}
	macKey, encKey := cek[:c.keySize/2], cek[c.keySize/2:]

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, jose.ErrAuthenticationFailure
	}

	expected := c.tag(macKey, aad, iv, ciphertext)

	buf := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(buf, ciphertext)

	toRemove, good := extractPadding(buf)
	if subtle.ConstantTimeCompare(expected, tag)&int(good&1) != 1 {
		return nil, jose.ErrAuthenticationFailure
	}
	return buf[:len(buf)-toRemove], nil
}

// extractPadding returns, in constant time, the length of the PKCS #7
// padding at the end of payload, and 0xff if the padding is valid or 0
// otherwise. The length is zero when the padding is invalid.
func extractPadding(payload []byte) (toRemove int, good byte) {
	paddingLen := payload[len(payload)-1]

	// 1 <= paddingLen <= block size
	good = byte(subtle.ConstantTimeLessOrEq(1, int(paddingLen)) &
		subtle.ConstantTimeLessOrEq(int(paddingLen), aes.BlockSize))
	good = -good

	for i := 1; i <= aes.BlockSize; i++ {
		t := uint(paddingLen) - uint(i)
		// if i <= paddingLen then the MSB of t is zero
		mask := byte(int32(^t) >> 31)
		b := payload[len(payload)-i]
		good &^= mask&paddingLen ^ mask&b
	}

	good &= good << 4
	good &= good << 2
	good &= good << 1
	good = uint8(int8(good) >> 7)

	paddingLen &= good
	return int(paddingLen), good
}

// https://datatracker.ietf.org/doc/html/rfc7518#section-5.3
type aesGCM struct {
	keySize int
}

const gcmTagSize = 16

func (aesGCM) IVSize() int { return 12 }

func (c aesGCM) aead(cek []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (c aesGCM) Encrypt(cek, iv, aad, plaintext []byte) ([]byte, []byte, error) {
	if len(cek) != c.keySize {
		return nil, nil, fmt.Errorf("%w: CEK must be %d bits, got %d bits", jose.ErrInvalidKey, c.keySize*8, len(cek)*8)
	}
	if len(iv) != c.IVSize() {
		return nil, nil, fmt.Errorf("%w: IV must be %d bytes, got %d", jose.ErrInvalidHeader, c.IVSize(), len(iv))
	}
	aead, err := c.aead(cek)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create AES-GCM cipher: %w", err)
	}
	sealed := aead.Seal(nil, iv, plaintext, aad)
	split := len(sealed) - gcmTagSize
	return sealed[:split], sealed[split:], nil
}

func (c aesGCM) Decrypt(cek, iv, aad, ciphertext, tag []byte) ([]byte, error) {
	if len(cek) != c.keySize || len(iv) != c.IVSize() || len(tag) != gcmTagSize {
		return nil, jose.ErrAuthenticationFailure
	}
	aead, err := c.aead(cek)
	if err != nil {
		return nil, jose.ErrAuthenticationFailure
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, jose.ErrAuthenticationFailure
	}
	return plaintext, nil
}
