package jwa

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	jose "github.com/picatz/jose/v2/pkg"
	"golang.org/x/crypto/pbkdf2"
)

// https://datatracker.ietf.org/doc/html/rfc7518#section-4.5
type directDeriver struct{}

func (directDeriver) derive(key any, size int) ([]byte, error) {
	secret, err := symmetricKey(key, size)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(secret))
	copy(out, secret)
	return out, nil
}

func (d directDeriver) DeriveSenderKey(key any, size int, _ *KeyParams) ([]byte, error) {
	return d.derive(key, size)
}

func (d directDeriver) DeriveRecipientKey(key any, size int, _ *KeyParams) ([]byte, error) {
	return d.derive(key, size)
}

// ecdhDeriver implements ECDH-ES key agreement. An empty algorithmID means
// direct key agreement, where the "enc" value is the KDF algorithm ID.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.6
type ecdhDeriver struct {
	algorithmID Algorithm
}

func (d ecdhDeriver) algID(params *KeyParams) (string, error) {
	if d.algorithmID != "" {
		return d.algorithmID, nil
	}
	if params.Enc == "" {
		return "", fmt.Errorf("%w: ECDH-ES requires an \"enc\" value", jose.ErrInvalidHeader)
	}
	return params.Enc, nil
}

// DeriveSenderKey generates an ephemeral key on the recipient's curve and
// records its public half as params.EPK.
func (d ecdhDeriver) DeriveSenderKey(key any, size int, params *KeyParams) ([]byte, error) {
	algID, err := d.algID(params)
	if err != nil {
		return nil, err
	}
	recipient, err := ecdhPublicKey(key)
	if err != nil {
		return nil, err
	}
	ephemeral, err := recipient.Curve().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	z, err := ephemeral.ECDH(recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: key agreement failed: %v", jose.ErrInvalidKey, err)
	}
	params.EPK = ephemeral.PublicKey()
	return ConcatKDF(z, algID, params.APU, params.APV, size), nil
}

func (d ecdhDeriver) DeriveRecipientKey(key any, size int, params *KeyParams) ([]byte, error) {
	algID, err := d.algID(params)
	if err != nil {
		return nil, err
	}
	priv, err := ecdhPrivateKey(key)
	if err != nil {
		return nil, err
	}
	if params.EPK == nil {
		return nil, fmt.Errorf("%w: missing \"epk\"", jose.ErrInvalidHeader)
	}
	epk, err := ecdhPublicKey(params.EPK)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid \"epk\": %v", jose.ErrInvalidHeader, err)
	}
	if epk.Curve() != priv.Curve() {
		return nil, fmt.Errorf("%w: \"epk\" curve does not match the recipient key", jose.ErrInvalidHeader)
	}
	z, err := priv.ECDH(epk)
	if err != nil {
		return nil, fmt.Errorf("%w: key agreement failed: %v", jose.ErrInvalidKey, err)
	}
	return ConcatKDF(z, algID, params.APU, params.APV, size), nil
}

func ecdhPublicKey(key any) (*ecdh.PublicKey, error) {
	switch k := key.(type) {
	case *ecdh.PublicKey:
		return k, nil
	case *ecdh.PrivateKey:
		return k.PublicKey(), nil
	case *ecdsa.PublicKey:
		pub, err := k.ECDH()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", jose.ErrInvalidKey, err)
		}
		return pub, nil
	case *ecdsa.PrivateKey:
		pub, err := k.PublicKey.ECDH()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", jose.ErrInvalidKey, err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("%w: key agreement requires an EC or X25519 public key, got %T", jose.ErrInvalidKey, key)
	}
}

func ecdhPrivateKey(key any) (*ecdh.PrivateKey, error) {
	switch k := key.(type) {
	case *ecdh.PrivateKey:
		return k, nil
	case *ecdsa.PrivateKey:
		priv, err := k.ECDH()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", jose.ErrInvalidKey, err)
		}
		return priv, nil
	default:
		return nil, fmt.Errorf("%w: key agreement requires an EC or X25519 private key, got %T", jose.ErrInvalidKey, key)
	}
}

// ConcatKDF derives size bytes from the shared secret z using the
// single step KDF of NIST SP 800-56A with SHA-256, as profiled for JOSE.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.6.2
func ConcatKDF(z []byte, algID string, apu, apv []byte, size int) []byte {
	otherInfo := make([]byte, 0, 16+len(algID)+len(apu)+len(apv))
	otherInfo = lengthPrefixed(otherInfo, []byte(algID))
	otherInfo = lengthPrefixed(otherInfo, apu)
	otherInfo = lengthPrefixed(otherInfo, apv)
	otherInfo = binary.BigEndian.AppendUint32(otherInfo, uint32(size*8))

	out := make([]byte, 0, size+sha256.Size)
	var counter [4]byte
	for round := uint32(1); len(out) < size; round++ {
		binary.BigEndian.PutUint32(counter[:], round)
		h := sha256.New()
		h.Write(counter[:])
		h.Write(z)
		h.Write(otherInfo)
		out = h.Sum(out)
	}
	return out[:size]
}

func lengthPrefixed(dst, data []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(data)))
	return append(dst, data...)
}

// Defaults for PBES2 when the sender does not choose values.
const (
	DefaultPBES2Count    = 100000
	DefaultPBES2SaltSize = 16
	MinPBES2SaltSize     = 8
)

// https://datatracker.ietf.org/doc/html/rfc7518#section-4.8
type pbes2Deriver struct {
	name Algorithm
	hash crypto.Hash
}

func (d pbes2Deriver) derive(key any, size int, salt []byte, count int) ([]byte, error) {
	password, ok := key.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: PBES2 requires a password, got %T", jose.ErrInvalidKey, key)
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("%w: empty PBES2 password", jose.ErrInvalidKey)
	}

	// The salt value used is (UTF8(Alg) || 0x00 || Salt Input).
	fullSalt := make([]byte, 0, len(d.name)+1+len(salt))
	fullSalt = append(fullSalt, d.name...)
	fullSalt = append(fullSalt, 0x00)
	fullSalt = append(fullSalt, salt...)

	return pbkdf2.Key(password, fullSalt, count, size, d.hash.New), nil
}

// DeriveSenderKey uses params.P2S and params.P2C when set, generating a
// random salt and using DefaultPBES2Count otherwise.
func (d pbes2Deriver) DeriveSenderKey(key any, size int, params *KeyParams) ([]byte, error) {
	if len(params.P2S) == 0 {
		params.P2S = make([]byte, DefaultPBES2SaltSize)
		if _, err := io.ReadFull(rand.Reader, params.P2S); err != nil {
			return nil, fmt.Errorf("failed to get random salt: %w", err)
		}
	}
	if len(params.P2S) < MinPBES2SaltSize {
		return nil, fmt.Errorf("%w: \"p2s\" must be at least %d bytes", jose.ErrInvalidHeader, MinPBES2SaltSize)
	}
	if params.P2C <= 0 {
		params.P2C = DefaultPBES2Count
	}
	return d.derive(key, size, params.P2S, params.P2C)
}

func (d pbes2Deriver) DeriveRecipientKey(key any, size int, params *KeyParams) ([]byte, error) {
	if len(params.P2S) < MinPBES2SaltSize {
		return nil, fmt.Errorf("%w: \"p2s\" must be at least %d bytes", jose.ErrInvalidHeader, MinPBES2SaltSize)
	}
	if params.P2C <= 0 {
		return nil, fmt.Errorf("%w: \"p2c\" must be positive", jose.ErrInvalidHeader)
	}
	return d.derive(key, size, params.P2S, params.P2C)
}
