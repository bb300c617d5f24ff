// Package keyutil converts between PEM encoded keys and JWKs.
//
// Private keys may be PKCS #1 ("RSA PRIVATE KEY"), SEC 1 ("EC PRIVATE KEY")
// or PKCS #8 ("PRIVATE KEY"). Public keys may be PKIX ("PUBLIC KEY"),
// PKCS #1 ("RSA PUBLIC KEY") or taken from an X.509 certificate. SEC 1 and
// PKIX encodings of secp256k1 keys, which crypto/x509 does not support, are
// handled here.
package keyutil

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwk"
)

// PEM block types.
const (
	BlockPrivateKey    = "PRIVATE KEY"
	BlockRSAPrivateKey = "RSA PRIVATE KEY"
	BlockECPrivateKey  = "EC PRIVATE KEY"
	BlockPublicKey     = "PUBLIC KEY"
	BlockRSAPublicKey  = "RSA PUBLIC KEY"
	BlockCertificate   = "CERTIFICATE"
)

var (
	oidPublicKeyECDSA = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1      = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

// ErrNoPEMBlock is returned when the input has no PEM block.
var ErrNoPEMBlock = errors.New("no PEM block found")

// ParsePrivateKey parses the first PEM encoded private key from the given
// reader. The options are passed to jwk.FromCryptoKey, so the key ID
// defaults to the key's thumbprint.
func ParsePrivateKey(r io.Reader, opts ...jwk.Option) (jwk.Key, error) {
	block, err := readBlock(r)
	if err != nil {
		return nil, err
	}
	material, err := parsePrivateBlock(block)
	if err != nil {
		return nil, err
	}
	return jwk.FromCryptoKey(material, opts...)
}

// ParsePublicKey parses the first PEM encoded public key or certificate
// from the given reader.
func ParsePublicKey(r io.Reader, opts ...jwk.Option) (jwk.Key, error) {
	block, err := readBlock(r)
	if err != nil {
		return nil, err
	}
	material, err := parsePublicBlock(block)
	if err != nil {
		return nil, err
	}
	return jwk.FromCryptoKey(material, opts...)
}

// ParseSet parses every key in a PEM bundle into a set. Blocks of other
// types are skipped.
func ParseSet(data []byte) (*jwk.Set, error) {
	var keys []jwk.Key
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}

		var (
			material any
			err      error
		)
		switch block.Type {
		case BlockPrivateKey, BlockRSAPrivateKey, BlockECPrivateKey:
			material, err = parsePrivateBlock(block)
		case BlockPublicKey, BlockRSAPublicKey, BlockCertificate:
			material, err = parsePublicBlock(block)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}

		key, err := jwk.FromCryptoKey(material)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %w", jose.ErrInvalidKey, ErrNoPEMBlock)
	}
	return jwk.NewSet(keys...), nil
}

func readBlock(r io.Reader) (*pem.Block, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read PEM data: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: %w", jose.ErrInvalidKey, ErrNoPEMBlock)
	}
	return block, nil
}

func parsePrivateBlock(block *pem.Block) (any, error) {
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := parseSecp256k1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: failed to parse %q block as a private key", jose.ErrInvalidKey, block.Type)
}

func parsePublicBlock(block *pem.Block) (any, error) {
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		return cert.PublicKey, nil
	}
	if key, err := parseSecp256k1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: failed to parse %q block as a public key", jose.ErrInvalidKey, block.Type)
}

// ecPrivateKey is the SEC 1 ECPrivateKey structure.
//
// https://datatracker.ietf.org/doc/html/rfc5915#section-3
type ecPrivateKey struct {
	Version       int
	PrivateKey    []byte
	NamedCurveOID asn1.ObjectIdentifier `asn1:"optional,explicit,tag:0"`
	PublicKey     asn1.BitString        `asn1:"optional,explicit,tag:1"`
}

type publicKeyInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

func parseSecp256k1PrivateKey(der []byte) (*ecdsa.PrivateKey, error) {
	var key ecPrivateKey
	if _, err := asn1.Unmarshal(der, &key); err != nil {
		return nil, err
	}
	if !key.NamedCurveOID.Equal(oidSecp256k1) {
		return nil, fmt.Errorf("not a secp256k1 key")
	}
	if len(key.PrivateKey) != jwa.CurveSize(jwa.CurveSecp256k1) {
		return nil, fmt.Errorf("invalid secp256k1 private key length %d", len(key.PrivateKey))
	}
	return secp256k1.PrivKeyFromBytes(key.PrivateKey).ToECDSA(), nil
}

func parseSecp256k1PublicKey(der []byte) (*ecdsa.PublicKey, error) {
	var info publicKeyInfo
	if _, err := asn1.Unmarshal(der, &info); err != nil {
		return nil, err
	}
	var curve asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(info.Algorithm.Parameters.FullBytes, &curve); err != nil {
		return nil, err
	}
	if !info.Algorithm.Algorithm.Equal(oidPublicKeyECDSA) || !curve.Equal(oidSecp256k1) {
		return nil, fmt.Errorf("not a secp256k1 key")
	}
	pub, err := secp256k1.ParsePubKey(info.PublicKey.RightAlign())
	if err != nil {
		return nil, err
	}
	return pub.ToECDSA(), nil
}

// EncodePrivateKey returns the PEM encoding of a private key: PKCS #8 for
// RSA, NIST curve and OKP keys, and SEC 1 for secp256k1 keys.
func EncodePrivateKey(key jwk.Key) ([]byte, error) {
	if key == nil || !key.IsPrivate() || key.KeyType() == jwa.KeyTypeOctet {
		return nil, fmt.Errorf("%w: an asymmetric private key is required", jose.ErrInvalidKey)
	}

	if key.Curve() == jwa.CurveSecp256k1 {
		priv := key.Material().(*ecdsa.PrivateKey)
		der, err := asn1.Marshal(ecPrivateKey{
			Version:       1,
			PrivateKey:    priv.D.FillBytes(make([]byte, jwa.CurveSize(jwa.CurveSecp256k1))),
			NamedCurveOID: oidSecp256k1,
			PublicKey:     asn1.BitString{Bytes: uncompressed(&priv.PublicKey), BitLength: 65 * 8},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode secp256k1 private key: %w", err)
		}
		return pem.EncodeToMemory(&pem.Block{Type: BlockECPrivateKey, Bytes: der}), nil
	}

	der, err := x509.MarshalPKCS8PrivateKey(key.Material())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jose.ErrInvalidKey, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: BlockPrivateKey, Bytes: der}), nil
}

// EncodePublicKey returns the PKIX PEM encoding of the public part of a key.
func EncodePublicKey(key jwk.Key) ([]byte, error) {
	if key == nil || key.KeyType() == jwa.KeyTypeOctet {
		return nil, fmt.Errorf("%w: an asymmetric key is required", jose.ErrInvalidKey)
	}
	public, err := key.Public()
	if err != nil {
		return nil, err
	}

	if key.Curve() == jwa.CurveSecp256k1 {
		params, err := asn1.Marshal(oidSecp256k1)
		if err != nil {
			return nil, err
		}
		pub := uncompressed(public.Material().(*ecdsa.PublicKey))
		der, err := asn1.Marshal(publicKeyInfo{
			Algorithm: pkix.AlgorithmIdentifier{
				Algorithm:  oidPublicKeyECDSA,
				Parameters: asn1.RawValue{FullBytes: params},
			},
			PublicKey: asn1.BitString{Bytes: pub, BitLength: len(pub) * 8},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode secp256k1 public key: %w", err)
		}
		return pem.EncodeToMemory(&pem.Block{Type: BlockPublicKey, Bytes: der}), nil
	}

	der, err := x509.MarshalPKIXPublicKey(public.Material())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jose.ErrInvalidKey, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: BlockPublicKey, Bytes: der}), nil
}

func uncompressed(pub *ecdsa.PublicKey) []byte {
	size := jwa.CurveSize(jwa.CurveSecp256k1)
	var b bytes.Buffer
	b.WriteByte(4)
	b.Write(pub.X.FillBytes(make([]byte, size)))
	b.Write(pub.Y.FillBytes(make([]byte, size)))
	return b.Bytes()
}
