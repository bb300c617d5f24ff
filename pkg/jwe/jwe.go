package jwe

import (
	"fmt"

	"github.com/go-logr/logr"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwk"
	"golang.org/x/exp/slices"
)

// Header is a JSON object containing the parameters describing
// the cryptographic operations and parameters employed.
type Header = header.Parameters

// CompressionDeflate is the "zip" value for DEFLATE compressed plaintext.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-4.1.3
const CompressionDeflate = jwa.Deflate

// Limits applied when decrypting, unless changed with options.
const (
	DefaultMaxPBES2Count             = 1000000
	DefaultMaxDecompressedSize int64 = 10 << 20
)

// Config holds the settings used when encrypting and decrypting. Options
// that only apply to one of the two are ignored by the other.
type Config struct {
	// AllowedAlgorithms is the set of key management "alg" values
	// accepted when decrypting. It is required.
	AllowedAlgorithms jwa.AllowedAlgorithms

	// AllowedEncryption is the set of content encryption "enc" values
	// accepted when decrypting. It is required.
	AllowedEncryption jwa.AllowedAlgorithms

	// Keys are the candidate decryption keys.
	Keys []jwk.Key

	// RequireKeyID requires the header "kid" to match the key ID of the
	// decryption key.
	RequireKeyID bool

	// KeyID, when set, names the recipient to decrypt for.
	KeyID string

	// Critical lists extension header parameter names the caller
	// understands.
	Critical []string

	// CEK and IV replace the random content encryption key and
	// initialization vector. They exist for known-answer tests.
	CEK []byte
	IV  []byte

	// PBES2Count and PBES2Salt are the "p2c" and "p2s" values used by
	// the sender for password based encryption.
	PBES2Count int
	PBES2Salt  []byte

	// APU and APV are the agreement party information used by the
	// sender for ECDH-ES.
	APU []byte
	APV []byte

	// Compress deflates the plaintext, setting "zip" in the protected
	// header.
	Compress bool

	// MaxPBES2Count is the largest "p2c" accepted when decrypting.
	MaxPBES2Count int

	// MaxDecompressedSize is the largest plaintext, in bytes, that a
	// compressed message may inflate to.
	MaxDecompressedSize int64

	// SharedHeader is the JSON serialization "unprotected" header.
	SharedHeader Header

	// AAD is the JSON serialization additional authenticated data.
	AAD []byte

	Logger   logr.Logger
	Observer jose.Observer
}

// Option is a functional option type used to configure encryption and
// decryption.
type Option func(*Config) error

func newConfig(opts []Option) (*Config, error) {
	c := &Config{
		MaxPBES2Count:       DefaultMaxPBES2Count,
		MaxDecompressedSize: DefaultMaxDecompressedSize,
		Logger:              logr.Discard(),
		Observer:            jose.NopObserver,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("option error: %w", err)
		}
	}
	return c, nil
}

// WithAllowedAlgorithms sets the key management algorithms accepted when
// decrypting.
func WithAllowedAlgorithms(algs ...jwa.Algorithm) Option {
	return func(c *Config) error {
		c.AllowedAlgorithms = jwa.NewAllowedAlgorithms(algs...)
		return nil
	}
}

// WithAllowedEncryption sets the content encryption algorithms accepted
// when decrypting.
func WithAllowedEncryption(encs ...jwa.Algorithm) Option {
	return func(c *Config) error {
		c.AllowedEncryption = jwa.NewAllowedAlgorithms(encs...)
		return nil
	}
}

// WithKey appends a key to the set of decryption keys.
func WithKey(key jwk.Key) Option {
	return func(c *Config) error {
		if key == nil {
			return fmt.Errorf("%w: nil key", jose.ErrInvalidKey)
		}
		c.Keys = append(c.Keys, key)
		return nil
	}
}

// WithKeySet appends every key of the set to the decryption keys.
func WithKeySet(set *jwk.Set) Option {
	return func(c *Config) error {
		if set == nil {
			return fmt.Errorf("%w: nil key set", jose.ErrInvalidKey)
		}
		c.Keys = append(c.Keys, set.Keys()...)
		return nil
	}
}

// WithRequireKeyID requires the header "kid" to equal the key ID of the
// key that decrypts it.
func WithRequireKeyID() Option {
	return func(c *Config) error {
		c.RequireKeyID = true
		return nil
	}
}

// WithRequiredKeyID decrypts only for the recipient with the given "kid",
// which implies WithRequireKeyID.
func WithRequiredKeyID(kid string) Option {
	return func(c *Config) error {
		c.RequireKeyID = true
		c.KeyID = kid
		return nil
	}
}

// WithCritical marks extension header parameters as understood, so they
// may be listed in "crit".
func WithCritical(names ...string) Option {
	return func(c *Config) error {
		c.Critical = append(c.Critical, names...)
		return nil
	}
}

// WithCEK sets the content encryption key instead of generating one. It
// cannot be used with the direct modes, where the CEK is derived.
//
// # WARNING
//
// Reusing a CEK across messages is not safe. This is meant for
// known-answer tests.
func WithCEK(cek []byte) Option {
	return func(c *Config) error {
		c.CEK = cek
		return nil
	}
}

// WithIV sets the content encryption initialization vector instead of
// generating one.
//
// # WARNING
//
// Reusing an IV with the same key breaks AES-GCM. This is meant for
// known-answer tests.
func WithIV(iv []byte) Option {
	return func(c *Config) error {
		c.IV = iv
		return nil
	}
}

// WithPBES2Count sets the PBKDF2 iteration count used by the sender.
func WithPBES2Count(count int) Option {
	return func(c *Config) error {
		if count <= 0 {
			return fmt.Errorf("%w: PBES2 count must be positive", jose.ErrInvalidHeader)
		}
		c.PBES2Count = count
		return nil
	}
}

// WithPBES2Salt sets the PBES2 salt input used by the sender.
func WithPBES2Salt(salt []byte) Option {
	return func(c *Config) error {
		c.PBES2Salt = salt
		return nil
	}
}

// WithPartyInfo sets the "apu" and "apv" values used by the sender for
// ECDH-ES key agreement.
func WithPartyInfo(apu, apv []byte) Option {
	return func(c *Config) error {
		c.APU = apu
		c.APV = apv
		return nil
	}
}

// WithCompression deflates the plaintext before encryption.
func WithCompression() Option {
	return func(c *Config) error {
		c.Compress = true
		return nil
	}
}

// WithMaxPBES2Count sets the largest "p2c" accepted when decrypting.
func WithMaxPBES2Count(count int) Option {
	return func(c *Config) error {
		c.MaxPBES2Count = count
		return nil
	}
}

// WithMaxDecompressedSize sets the largest plaintext a compressed message
// may inflate to.
func WithMaxDecompressedSize(size int64) Option {
	return func(c *Config) error {
		c.MaxDecompressedSize = size
		return nil
	}
}

// WithSharedHeader sets the shared unprotected header of a JSON
// serialized message.
func WithSharedHeader(h Header) Option {
	return func(c *Config) error {
		c.SharedHeader = h
		return nil
	}
}

// WithAAD sets the additional authenticated data of a JSON serialized
// message.
func WithAAD(aad []byte) Option {
	return func(c *Config) error {
		c.AAD = aad
		return nil
	}
}

// WithLogger sets the logger used for policy decisions.
func WithLogger(logger logr.Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// WithObserver sets the observer notified of every operation.
func WithObserver(o jose.Observer) Option {
	return func(c *Config) error {
		if o == nil {
			o = jose.NopObserver
		}
		c.Observer = o
		return nil
	}
}

// AAD returns the additional authenticated data of the content
// encryption: the encoded protected header, followed by a period and the
// encoded JWE AAD when there is one.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-5.1
func AAD(protected string, external []byte) []byte {
	if len(external) == 0 {
		return []byte(protected)
	}
	return []byte(protected + "." + base64.Encode(external))
}

// keyOperation returns the "key_ops" value a key must permit to be used
// with a key management mode.
func keyOperation(mode jwa.Mode, encrypting bool) jwk.Operation {
	switch mode {
	case jwa.ModeDirect:
		if encrypting {
			return jwk.OperationEncrypt
		}
		return jwk.OperationDecrypt
	case jwa.ModeKeyWrap:
		if encrypting {
			return jwk.OperationWrapKey
		}
		return jwk.OperationUnwrapKey
	default:
		return jwk.OperationDeriveKey
	}
}

// checkCritical rejects "crit" extensions that are not understood.
func checkCritical(h Header, c *Config) error {
	crit, err := h.Critical()
	if err != nil {
		if h.Has(header.Critical) {
			return err
		}
		return nil
	}
	for _, name := range crit {
		if !slices.Contains(c.Critical, name) {
			return fmt.Errorf("%w: critical parameter %q is not understood", jose.ErrInvalidHeader, name)
		}
	}
	return nil
}

// checkZip requires "zip" to be integrity protected and to name DEFLATE.
func checkZip(protected Header, others ...Header) (bool, error) {
	for _, h := range others {
		if h.Has(header.Zip) {
			return false, fmt.Errorf("%w: %q must be integrity protected", jose.ErrInvalidHeader, header.Zip)
		}
	}
	if !protected.Has(header.Zip) {
		return false, nil
	}
	zip, err := protected.String(header.Zip)
	if err != nil {
		return false, err
	}
	if zip != CompressionDeflate {
		return false, fmt.Errorf("%w: compression %q", jose.ErrUnsupportedAlgorithm, zip)
	}
	return true, nil
}
