package jwa

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"math/big"

	jose "github.com/picatz/jose/v2/pkg"
)

func digest(h crypto.Hash, input []byte) ([]byte, error) {
	if !h.Available() {
		return nil, fmt.Errorf("%w: hash %v is not available", jose.ErrUnsupportedAlgorithm, h)
	}
	hash := h.New()
	hash.Write(input)
	return hash.Sum(nil), nil
}

// https://datatracker.ietf.org/doc/html/rfc7518#section-3.2
type hmacSigner struct {
	hash crypto.Hash
}

func (s hmacSigner) mac(key any, input []byte) ([]byte, error) {
	secret, ok := key.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: HMAC requires a symmetric key, got %T", jose.ErrInvalidKey, key)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty HMAC key", jose.ErrInvalidKey)
	}
	h := hmac.New(s.hash.New, secret)
	h.Write(input)
	return h.Sum(nil), nil
}

func (s hmacSigner) Sign(key any, input []byte) ([]byte, error) {
	return s.mac(key, input)
}

func (s hmacSigner) Verify(key any, input, signature []byte) error {
	expected, err := s.mac(key, input)
	if err != nil {
		return err
	}
	if !hmac.Equal(expected, signature) {
		return jose.ErrAuthenticationFailure
	}
	return nil
}

// https://datatracker.ietf.org/doc/html/rfc7518#section-3.3
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.5
type rsaSigner struct {
	hash crypto.Hash
	pss  bool
}

func (s rsaSigner) pssOptions() *rsa.PSSOptions {
	return &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: s.hash}
}

func (s rsaSigner) Sign(key any, input []byte) ([]byte, error) {
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: RSA signing requires *rsa.PrivateKey, got %T", jose.ErrInvalidKey, key)
	}
	if priv.N.BitLen() < 2048 {
		return nil, fmt.Errorf("%w: RSA key size %d is less than 2048 bits", jose.ErrInvalidKey, priv.N.BitLen())
	}
	d, err := digest(s.hash, input)
	if err != nil {
		return nil, err
	}
	if s.pss {
		return rsa.SignPSS(rand.Reader, priv, s.hash, d, s.pssOptions())
	}
	return rsa.SignPKCS1v15(rand.Reader, priv, s.hash, d)
}

func (s rsaSigner) Verify(key any, input, signature []byte) error {
	var pub *rsa.PublicKey
	switch k := key.(type) {
	case *rsa.PublicKey:
		pub = k
	case *rsa.PrivateKey:
		pub = &k.PublicKey
	default:
		return fmt.Errorf("%w: RSA verification requires *rsa.PublicKey, got %T", jose.ErrInvalidKey, key)
	}
	if pub.N.BitLen() < 2048 {
		return fmt.Errorf("%w: RSA key size %d is less than 2048 bits", jose.ErrInvalidKey, pub.N.BitLen())
	}
	d, err := digest(s.hash, input)
	if err != nil {
		return err
	}
	if s.pss {
		err = rsa.VerifyPSS(pub, s.hash, d, signature, s.pssOptions())
	} else {
		err = rsa.VerifyPKCS1v15(pub, s.hash, d, signature)
	}
	if err != nil {
		return jose.ErrAuthenticationFailure
	}
	return nil
}

// https://datatracker.ietf.org/doc/html/rfc7518#section-3.4
type ecdsaSigner struct {
	hash  crypto.Hash
	curve string
}

func (s ecdsaSigner) checkCurve(pub *ecdsa.PublicKey) error {
	name, err := CurveName(pub.Curve)
	if err != nil {
		return err
	}
	if name != s.curve {
		return fmt.Errorf("%w: curve %q does not match required curve %q", jose.ErrInvalidKey, name, s.curve)
	}
	return nil
}

func (s ecdsaSigner) Sign(key any, input []byte) ([]byte, error) {
	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: ECDSA signing requires *ecdsa.PrivateKey, got %T", jose.ErrInvalidKey, key)
	}
	if err := s.checkCurve(&priv.PublicKey); err != nil {
		return nil, err
	}
	d, err := digest(s.hash, input)
	if err != nil {
		return nil, err
	}
	r, sig, err := ecdsa.Sign(rand.Reader, priv, d)
	if err != nil {
		return nil, fmt.Errorf("failed to sign with ECDSA private key: %w", err)
	}

	// The signature is the fixed width concatenation R || S.
	size := CurveSize(s.curve)
	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	sig.FillBytes(out[size:])
	return out, nil
}

func (s ecdsaSigner) Verify(key any, input, signature []byte) error {
	var pub *ecdsa.PublicKey
	switch k := key.(type) {
	case *ecdsa.PublicKey:
		pub = k
	case *ecdsa.PrivateKey:
		pub = &k.PublicKey
	default:
		return fmt.Errorf("%w: ECDSA verification requires *ecdsa.PublicKey, got %T", jose.ErrInvalidKey, key)
	}
	if err := s.checkCurve(pub); err != nil {
		return err
	}
	size := CurveSize(s.curve)
	if len(signature) != 2*size {
		return jose.ErrAuthenticationFailure
	}
	d, err := digest(s.hash, input)
	if err != nil {
		return err
	}
	r := new(big.Int).SetBytes(signature[:size])
	sig := new(big.Int).SetBytes(signature[size:])
	if !ecdsa.Verify(pub, d, r, sig) {
		return jose.ErrAuthenticationFailure
	}
	return nil
}

// https://datatracker.ietf.org/doc/html/rfc8037#section-3.1
type eddsaSigner struct{}

func (eddsaSigner) Sign(key any, input []byte) ([]byte, error) {
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: EdDSA signing requires ed25519.PrivateKey, got %T", jose.ErrInvalidKey, key)
	}
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: invalid Ed25519 private key size %d", jose.ErrInvalidKey, len(priv))
	}
	return ed25519.Sign(priv, input), nil
}

func (eddsaSigner) Verify(key any, input, signature []byte) error {
	var pub ed25519.PublicKey
	switch k := key.(type) {
	case ed25519.PublicKey:
		pub = k
	case ed25519.PrivateKey:
		if len(k) != ed25519.PrivateKeySize {
			return fmt.Errorf("%w: invalid Ed25519 private key size %d", jose.ErrInvalidKey, len(k))
		}
		pub = k.Public().(ed25519.PublicKey)
	default:
		return fmt.Errorf("%w: EdDSA verification requires ed25519.PublicKey, got %T", jose.ErrInvalidKey, key)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: invalid Ed25519 public key size %d", jose.ErrInvalidKey, len(pub))
	}
	if !ed25519.Verify(pub, input, signature) {
		return jose.ErrAuthenticationFailure
	}
	return nil
}

// noneSigner produces and accepts only the empty signature. Engines gate
// its use behind an explicit insecure opt-in.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.6
type noneSigner struct{}

func (noneSigner) Sign(_ any, _ []byte) ([]byte, error) {
	return []byte{}, nil
}

func (noneSigner) Verify(_ any, _, signature []byte) error {
	if len(signature) != 0 {
		return jose.ErrAuthenticationFailure
	}
	return nil
}
