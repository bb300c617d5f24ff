package jwa

import (
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"

	jose "github.com/picatz/jose/v2/pkg"
	"golang.org/x/exp/slices"
)

// Category is the kind of operation an algorithm performs.
type Category int

const (
	CategorySignature Category = iota + 1
	CategoryKeyManagement
	CategoryContentEncryption
)

func (c Category) String() string {
	switch c {
	case CategorySignature:
		return "signature"
	case CategoryKeyManagement:
		return "key-management"
	case CategoryContentEncryption:
		return "content-encryption"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Mode is the JWE key management mode of a key management algorithm.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-2
type Mode int

const (
	ModeUnknown Mode = iota

	// ModeDirect uses the shared symmetric key as the CEK.
	ModeDirect

	// ModeKeyWrap wraps a random CEK with the recipient's key.
	ModeKeyWrap

	// ModeDirectKeyAgreement derives the CEK with ECDH and Concat KDF.
	ModeDirectKeyAgreement

	// ModeKeyAgreementWithWrap derives a key wrapping key with ECDH and
	// Concat KDF, and wraps a random CEK with it.
	ModeKeyAgreementWithWrap

	// ModePassword derives a key wrapping key from a password with
	// PBKDF2, and wraps a random CEK with it.
	ModePassword
)

func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeKeyWrap:
		return "key-wrap"
	case ModeDirectKeyAgreement:
		return "direct-key-agreement"
	case ModeKeyAgreementWithWrap:
		return "key-agreement-with-wrap"
	case ModePassword:
		return "password"
	default:
		return "unknown"
	}
}

// KeyType is a JWK "kty" value.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-6.1
type KeyType = string

const (
	KeyTypeOctet KeyType = "oct"
	KeyTypeRSA   KeyType = "RSA"
	KeyTypeEC    KeyType = "EC"
	KeyTypeOKP   KeyType = "OKP"
)

// Signer signs and verifies a JWS signing input with the Go crypto value
// of a key, such as a []byte or *ecdsa.PrivateKey.
type Signer interface {
	Sign(key any, input []byte) ([]byte, error)

	// Verify returns jose.ErrAuthenticationFailure for any signature that
	// does not verify, without saying why.
	Verify(key any, input, signature []byte) error
}

// Wrapper encrypts and decrypts a CEK with a key encryption key.
type Wrapper interface {
	Wrap(kek any, cek []byte, params *KeyParams) ([]byte, error)
	Unwrap(kek any, encryptedKey []byte, params *KeyParams) ([]byte, error)
}

// Deriver computes a key of the given size in bytes. The result is the CEK
// for direct modes, or the key encryption key handed to the descriptor's
// Wrapper otherwise.
type Deriver interface {
	// DeriveSenderKey may generate values, such as an ephemeral key or
	// a salt, and records them in params.
	DeriveSenderKey(key any, size int, params *KeyParams) ([]byte, error)

	// DeriveRecipientKey reads the values recorded by the sender.
	DeriveRecipientKey(key any, size int, params *KeyParams) ([]byte, error)
}

// Cipher performs authenticated content encryption.
type Cipher interface {
	// IVSize is the required initialization vector length in bytes.
	IVSize() int

	Encrypt(cek, iv, aad, plaintext []byte) (ciphertext, tag []byte, err error)

	// Decrypt returns jose.ErrAuthenticationFailure for any input that does
	// not authenticate. No plaintext is returned in that case.
	Decrypt(cek, iv, aad, ciphertext, tag []byte) ([]byte, error)
}

// KeyParams carries the JWE header parameters consumed or produced by key
// management algorithms.
type KeyParams struct {
	// Enc is the content encryption algorithm the CEK is for. ECDH-ES
	// uses it as the Concat KDF algorithm ID.
	Enc Algorithm

	// EPK is the ephemeral public key, as a *ecdh.PublicKey or
	// *ecdsa.PublicKey.
	EPK any

	APU []byte
	APV []byte

	IV  []byte
	Tag []byte

	P2S []byte
	P2C int
}

// Descriptor describes a registered algorithm and holds the strategy that
// implements it. Exactly one of Signer, Cipher, or a combination of Deriver
// and Wrapper is set, according to Category.
type Descriptor struct {
	Name        Algorithm
	Description string
	Category    Category

	// KeyTypes are the JWK key types usable with the algorithm.
	KeyTypes []KeyType

	// MinKeySize is the minimum key size in bits, if any.
	MinKeySize int

	// KeySize is the exact key size in bits, if fixed. For content
	// encryption algorithms this is the CEK size.
	KeySize int

	// Curves are the allowed curves for EC and OKP keys.
	Curves []string

	// DerivedKeySize is the size in bits of the key encryption key a
	// Deriver produces for a Wrapper, for the agreement and password
	// modes that use both.
	DerivedKeySize int

	Hash crypto.Hash
	Mode Mode

	Signer  Signer
	Deriver Deriver
	Wrapper Wrapper
	Cipher  Cipher
}

// CheckKey returns an error wrapping jose.ErrInvalidKey if a key of the
// given type, size in bits and curve cannot be used with the algorithm.
// The curve is ignored for key types without one.
func (d Descriptor) CheckKey(kty KeyType, bits int, crv string) error {
	if !slices.Contains(d.KeyTypes, kty) {
		return fmt.Errorf("%w: key type %q cannot be used with %q", jose.ErrInvalidKey, kty, d.Name)
	}
	if d.KeySize > 0 && bits != d.KeySize {
		return fmt.Errorf("%w: %q requires a %d bit key, got %d bits", jose.ErrInvalidKey, d.Name, d.KeySize, bits)
	}
	if d.MinKeySize > 0 && bits < d.MinKeySize {
		return fmt.Errorf("%w: %q requires a key of at least %d bits, got %d bits", jose.ErrInvalidKey, d.Name, d.MinKeySize, bits)
	}
	if (kty == KeyTypeEC || kty == KeyTypeOKP) && len(d.Curves) > 0 && !slices.Contains(d.Curves, crv) {
		return fmt.Errorf("%w: curve %q cannot be used with %q", jose.ErrInvalidKey, crv, d.Name)
	}
	return nil
}

// Lookup returns the descriptor registered for the given identifier, or
// an error wrapping jose.ErrUnsupportedAlgorithm.
func Lookup(id Algorithm) (Descriptor, error) {
	d, ok := registry[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", jose.ErrUnsupportedAlgorithm, id)
	}
	d.KeyTypes = slices.Clone(d.KeyTypes)
	d.Curves = slices.Clone(d.Curves)
	return d, nil
}

// LookupCategory is like Lookup, but also requires the algorithm to be of
// the given category.
func LookupCategory(id Algorithm, category Category) (Descriptor, error) {
	d, err := Lookup(id)
	if err != nil {
		return Descriptor{}, err
	}
	if d.Category != category {
		return Descriptor{}, fmt.Errorf("%w: %q is not a %s algorithm", jose.ErrUnsupportedAlgorithm, id, category)
	}
	return d, nil
}

// Algorithms returns the registered identifiers of the given category,
// sorted. A zero category returns every identifier.
func Algorithms(category Category) []Algorithm {
	algs := make([]Algorithm, 0, len(registry))
	for id, d := range registry {
		if category == 0 || d.Category == category {
			algs = append(algs, id)
		}
	}
	slices.Sort(algs)
	return algs
}

// registry is built once at package initialization and never written to
// afterwards, so it is safe for concurrent reads.
var registry = buildRegistry()

func buildRegistry() map[Algorithm]Descriptor {
	var (
		ecdhes   = []string{CurveP256, CurveP384, CurveP521, CurveX25519}
		ecdhKeys = []KeyType{KeyTypeEC, KeyTypeOKP}
		oct      = []KeyType{KeyTypeOctet}
		rsaKeys  = []KeyType{KeyTypeRSA}
	)

	descriptors := []Descriptor{
		// Signatures.
		{Name: HS256, Description: "HMAC using SHA-256", Category: CategorySignature, KeyTypes: oct, Hash: crypto.SHA256, Signer: hmacSigner{crypto.SHA256}},
		{Name: HS384, Description: "HMAC using SHA-384", Category: CategorySignature, KeyTypes: oct, Hash: crypto.SHA384, Signer: hmacSigner{crypto.SHA384}},
		{Name: HS512, Description: "HMAC using SHA-512", Category: CategorySignature, KeyTypes: oct, Hash: crypto.SHA512, Signer: hmacSigner{crypto.SHA512}},
		{Name: RS256, Description: "RSASSA-PKCS1-v1_5 using SHA-256", Category: CategorySignature, KeyTypes: rsaKeys, MinKeySize: 2048, Hash: crypto.SHA256, Signer: rsaSigner{hash: crypto.SHA256}},
		{Name: RS384, Description: "RSASSA-PKCS1-v1_5 using SHA-384", Category: CategorySignature, KeyTypes: rsaKeys, MinKeySize: 2048, Hash: crypto.SHA384, Signer: rsaSigner{hash: crypto.SHA384}},
		{Name: RS512, Description: "RSASSA-PKCS1-v1_5 using SHA-512", Category: CategorySignature, KeyTypes: rsaKeys, MinKeySize: 2048, Hash: crypto.SHA512, Signer: rsaSigner{hash: crypto.SHA512}},
		{Name: PS256, Description: "RSASSA-PSS using SHA-256 and MGF1 with SHA-256", Category: CategorySignature, KeyTypes: rsaKeys, MinKeySize: 2048, Hash: crypto.SHA256, Signer: rsaSigner{hash: crypto.SHA256, pss: true}},
		{Name: PS384, Description: "RSASSA-PSS using SHA-384 and MGF1 with SHA-384", Category: CategorySignature, KeyTypes: rsaKeys, MinKeySize: 2048, Hash: crypto.SHA384, Signer: rsaSigner{hash: crypto.SHA384, pss: true}},
		{Name: PS512, Description: "RSASSA-PSS using SHA-512 and MGF1 with SHA-512", Category: CategorySignature, KeyTypes: rsaKeys, MinKeySize: 2048, Hash: crypto.SHA512, Signer: rsaSigner{hash: crypto.SHA512, pss: true}},
		{Name: ES256, Description: "ECDSA using P-256 and SHA-256", Category: CategorySignature, KeyTypes: []KeyType{KeyTypeEC}, Curves: []string{CurveP256}, Hash: crypto.SHA256, Signer: ecdsaSigner{hash: crypto.SHA256, curve: CurveP256}},
		{Name: ES384, Description: "ECDSA using P-384 and SHA-384", Category: CategorySignature, KeyTypes: []KeyType{KeyTypeEC}, Curves: []string{CurveP384}, Hash: crypto.SHA384, Signer: ecdsaSigner{hash: crypto.SHA384, curve: CurveP384}},
		{Name: ES512, Description: "ECDSA using P-521 and SHA-512", Category: CategorySignature, KeyTypes: []KeyType{KeyTypeEC}, Curves: []string{CurveP521}, Hash: crypto.SHA512, Signer: ecdsaSigner{hash: crypto.SHA512, curve: CurveP521}},
		{Name: ES256K, Description: "ECDSA using secp256k1 and SHA-256", Category: CategorySignature, KeyTypes: []KeyType{KeyTypeEC}, Curves: []string{CurveSecp256k1}, Hash: crypto.SHA256, Signer: ecdsaSigner{hash: crypto.SHA256, curve: CurveSecp256k1}},
		{Name: EdDSA, Description: "EdDSA using Ed25519", Category: CategorySignature, KeyTypes: []KeyType{KeyTypeOKP}, Curves: []string{CurveEd25519}, Signer: eddsaSigner{}},
		{Name: None, Description: "No digital signature or MAC performed", Category: CategorySignature, Signer: noneSigner{}},

		// Key management.
		{Name: Direct, Description: "Direct use of a shared symmetric key as the CEK", Category: CategoryKeyManagement, KeyTypes: oct, Mode: ModeDirect, Deriver: directDeriver{}},
		{Name: A128KW, Description: "AES Key Wrap with default initial value using 128-bit key", Category: CategoryKeyManagement, KeyTypes: oct, KeySize: 128, Mode: ModeKeyWrap, Wrapper: aesKW{size: 16}},
		{Name: A192KW, Description: "AES Key Wrap with default initial value using 192-bit key", Category: CategoryKeyManagement, KeyTypes: oct, KeySize: 192, Mode: ModeKeyWrap, Wrapper: aesKW{size: 24}},
		{Name: A256KW, Description: "AES Key Wrap with default initial value using 256-bit key", Category: CategoryKeyManagement, KeyTypes: oct, KeySize: 256, Mode: ModeKeyWrap, Wrapper: aesKW{size: 32}},
		{Name: A128GCMKW, Description: "Key wrapping with AES GCM using 128-bit key", Category: CategoryKeyManagement, KeyTypes: oct, KeySize: 128, Mode: ModeKeyWrap, Wrapper: aesGCMKW{size: 16}},
		{Name: A192GCMKW, Description: "Key wrapping with AES GCM using 192-bit key", Category: CategoryKeyManagement, KeyTypes: oct, KeySize: 192, Mode: ModeKeyWrap, Wrapper: aesGCMKW{size: 24}},
		{Name: A256GCMKW, Description: "Key wrapping with AES GCM using 256-bit key", Category: CategoryKeyManagement, KeyTypes: oct, KeySize: 256, Mode: ModeKeyWrap, Wrapper: aesGCMKW{size: 32}},
		{Name: RSAOAEP, Description: "RSAES OAEP using default parameters", Category: CategoryKeyManagement, KeyTypes: rsaKeys, MinKeySize: 2048, Hash: crypto.SHA1, Mode: ModeKeyWrap, Wrapper: rsaOAEP{hash: crypto.SHA1}},
		{Name: RSAOAEP256, Description: "RSAES OAEP using SHA-256 and MGF1 with SHA-256", Category: CategoryKeyManagement, KeyTypes: rsaKeys, MinKeySize: 2048, Hash: crypto.SHA256, Mode: ModeKeyWrap, Wrapper: rsaOAEP{hash: crypto.SHA256}},
		{Name: RSAOAEP384, Description: "RSAES OAEP using SHA-384 and MGF1 with SHA-384", Category: CategoryKeyManagement, KeyTypes: rsaKeys, MinKeySize: 2048, Hash: crypto.SHA384, Mode: ModeKeyWrap, Wrapper: rsaOAEP{hash: crypto.SHA384}},
		{Name: RSAOAEP512, Description: "RSAES OAEP using SHA-512 and MGF1 with SHA-512", Category: CategoryKeyManagement, KeyTypes: rsaKeys, MinKeySize: 2048, Hash: crypto.SHA512, Mode: ModeKeyWrap, Wrapper: rsaOAEP{hash: crypto.SHA512}},
		{Name: ECDHES, Description: "ECDH-ES using Concat KDF", Category: CategoryKeyManagement, KeyTypes: ecdhKeys, Curves: ecdhes, Hash: crypto.SHA256, Mode: ModeDirectKeyAgreement, Deriver: ecdhDeriver{}},
		{Name: ECDHESA128KW, Description: `ECDH-ES using Concat KDF and CEK wrapped with "A128KW"`, Category: CategoryKeyManagement, KeyTypes: ecdhKeys, Curves: ecdhes, Hash: crypto.SHA256, Mode: ModeKeyAgreementWithWrap, DerivedKeySize: 128, Deriver: ecdhDeriver{algorithmID: ECDHESA128KW}, Wrapper: aesKW{size: 16}},
		{Name: ECDHESA192KW, Description: `ECDH-ES using Concat KDF and CEK wrapped with "A192KW"`, Category: CategoryKeyManagement, KeyTypes: ecdhKeys, Curves: ecdhes, Hash: crypto.SHA256, Mode: ModeKeyAgreementWithWrap, DerivedKeySize: 192, Deriver: ecdhDeriver{algorithmID: ECDHESA192KW}, Wrapper: aesKW{size: 24}},
		{Name: ECDHESA256KW, Description: `ECDH-ES using Concat KDF and CEK wrapped with "A256KW"`, Category: CategoryKeyManagement, KeyTypes: ecdhKeys, Curves: ecdhes, Hash: crypto.SHA256, Mode: ModeKeyAgreementWithWrap, DerivedKeySize: 256, Deriver: ecdhDeriver{algorithmID: ECDHESA256KW}, Wrapper: aesKW{size: 32}},
		{Name: PBES2HS256A128KW, Description: `PBES2 with HMAC SHA-256 and "A128KW" wrapping`, Category: CategoryKeyManagement, KeyTypes: oct, Hash: crypto.SHA256, Mode: ModePassword, DerivedKeySize: 128, Deriver: pbes2Deriver{name: PBES2HS256A128KW, hash: crypto.SHA256}, Wrapper: aesKW{size: 16}},
		{Name: PBES2HS384A192KW, Description: `PBES2 with HMAC SHA-384 and "A192KW" wrapping`, Category: CategoryKeyManagement, KeyTypes: oct, Hash: crypto.SHA384, Mode: ModePassword, DerivedKeySize: 192, Deriver: pbes2Deriver{name: PBES2HS384A192KW, hash: crypto.SHA384}, Wrapper: aesKW{size: 24}},
		{Name: PBES2HS512A256KW, Description: `PBES2 with HMAC SHA-512 and "A256KW" wrapping`, Category: CategoryKeyManagement, KeyTypes: oct, Hash: crypto.SHA512, Mode: ModePassword, DerivedKeySize: 256, Deriver: pbes2Deriver{name: PBES2HS512A256KW, hash: crypto.SHA512}, Wrapper: aesKW{size: 32}},

		// Content encryption.
		{Name: A128CBCHS256, Description: "AES_128_CBC_HMAC_SHA_256 authenticated encryption", Category: CategoryContentEncryption, KeyTypes: oct, KeySize: 256, Hash: crypto.SHA256, Cipher: aesCBCHMAC{keySize: 32, hash: crypto.SHA256}},
		{Name: A192CBCHS384, Description: "AES_192_CBC_HMAC_SHA_384 authenticated encryption", Category: CategoryContentEncryption, KeyTypes: oct, KeySize: 384, Hash: crypto.SHA384, Cipher: aesCBCHMAC{keySize: 48, hash: crypto.SHA384}},
		{Name: A256CBCHS512, Description: "AES_256_CBC_HMAC_SHA_512 authenticated encryption", Category: CategoryContentEncryption, KeyTypes: oct, KeySize: 512, Hash: crypto.SHA512, Cipher: aesCBCHMAC{keySize: 64, hash: crypto.SHA512}},
		{Name: A128GCM, Description: "AES GCM using 128-bit key", Category: CategoryContentEncryption, KeyTypes: oct, KeySize: 128, Cipher: aesGCM{keySize: 16}},
		{Name: A192GCM, Description: "AES GCM using 192-bit key", Category: CategoryContentEncryption, KeyTypes: oct, KeySize: 192, Cipher: aesGCM{keySize: 24}},
		{Name: A256GCM, Description: "AES GCM using 256-bit key", Category: CategoryContentEncryption, KeyTypes: oct, KeySize: 256, Cipher: aesGCM{keySize: 32}},
	}

	m := make(map[Algorithm]Descriptor, len(descriptors))
	for _, d := range descriptors {
		if _, dup := m[d.Name]; dup {
			panic(fmt.Sprintf("jwa: duplicate algorithm %q", d.Name))
		}
		m[d.Name] = d
	}
	return m
}
