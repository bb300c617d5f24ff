// Package policy loads verification and decryption requirements from the
// environment or a YAML document and turns them into engine options.
//
// Environment variables use the JOSE_ prefix:
//
//	JOSE_SIGNATURE_ALGORITHMS=ES256,EdDSA
//	JOSE_KEY_MANAGEMENT_ALGORITHMS=ECDH-ES+A256KW
//	JOSE_ENCRYPTION_ALGORITHMS=A256GCM
//	JOSE_REQUIRE_KEY_ID=true
//	JOSE_CLOCK_SKEW_TOLERANCE=30s
//
// The same fields are read from YAML using snake case keys.
package policy

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwe"
	"github.com/picatz/jose/v2/pkg/jws"
	"github.com/picatz/jose/v2/pkg/jwt"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "JOSE_"

var (
	// ErrParsingConfig is returned when the environment or YAML input
	// cannot be decoded into a Config.
	ErrParsingConfig = errors.New("failed to parse policy config")

	// ErrInvalidConfig is returned by Validate.
	ErrInvalidConfig = errors.New("invalid policy config")
)

// Config describes what a verifier or decrypter accepts.
//
// Zero values leave the engine defaults in place.
type Config struct {
	// SignatureAlgorithms is the JWS "alg" allow-list.
	SignatureAlgorithms []jwa.Algorithm `env:"SIGNATURE_ALGORITHMS" yaml:"signature_algorithms"`

	// KeyManagementAlgorithms is the JWE "alg" allow-list.
	KeyManagementAlgorithms []jwa.Algorithm `env:"KEY_MANAGEMENT_ALGORITHMS" yaml:"key_management_algorithms"`

	// EncryptionAlgorithms is the JWE "enc" allow-list.
	EncryptionAlgorithms []jwa.Algorithm `env:"ENCRYPTION_ALGORITHMS" yaml:"encryption_algorithms"`

	InsecureAllowNone bool `env:"INSECURE_ALLOW_NONE" yaml:"insecure_allow_none"`
	RequireKeyID      bool `env:"REQUIRE_KEY_ID" yaml:"require_key_id"`

	// VerifyAll requires every signature of a JSON serialized JWS to
	// verify, instead of any one of them.
	VerifyAll bool `env:"VERIFY_ALL" yaml:"verify_all"`

	// Critical lists understood extension header parameters.
	Critical []string `env:"CRITICAL" yaml:"critical"`

	MaxPBES2Count       int   `env:"MAX_PBES2_COUNT" yaml:"max_pbes2_count"`
	MaxDecompressedSize int64 `env:"MAX_DECOMPRESSED_SIZE" yaml:"max_decompressed_size"`

	ClockSkewTolerance time.Duration `env:"CLOCK_SKEW_TOLERANCE" yaml:"clock_skew_tolerance"`
	AllowedIssuers     []string      `env:"ALLOWED_ISSUERS" yaml:"allowed_issuers"`
	AllowedAudiences   []string      `env:"ALLOWED_AUDIENCES" yaml:"allowed_audiences"`
	RequiredClaims     []string      `env:"REQUIRED_CLAIMS" yaml:"required_claims"`
}

// LoadEnv reads a Config from JOSE_ prefixed environment variables.
// List values are comma separated.
func LoadEnv() (*Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadYAML reads a Config from a YAML document. Unknown keys are an error.
func LoadYAML(r io.Reader) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrParsingConfig, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every algorithm is registered in the right category
// and that the limits are not negative.
func (c *Config) Validate() error {
	lists := []struct {
		algs     []jwa.Algorithm
		category jwa.Category
	}{
		{c.SignatureAlgorithms, jwa.CategorySignature},
		{c.KeyManagementAlgorithms, jwa.CategoryKeyManagement},
		{c.EncryptionAlgorithms, jwa.CategoryContentEncryption},
	}
	for _, list := range lists {
		for _, alg := range list.algs {
			if _, err := jwa.LookupCategory(alg, list.category); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
			}
		}
	}

	switch {
	case c.MaxPBES2Count < 0:
		return fmt.Errorf("%w: negative max PBES2 count %d", ErrInvalidConfig, c.MaxPBES2Count)
	case c.MaxDecompressedSize < 0:
		return fmt.Errorf("%w: negative max decompressed size %d", ErrInvalidConfig, c.MaxDecompressedSize)
	case c.ClockSkewTolerance < 0:
		return fmt.Errorf("%w: negative clock skew tolerance %v", ErrInvalidConfig, c.ClockSkewTolerance)
	}
	return nil
}

// JWSOptions returns the verification options for the jws package,
// followed by any extra options given.
func (c *Config) JWSOptions(extra ...jws.Option) []jws.Option {
	var opts []jws.Option
	if len(c.SignatureAlgorithms) > 0 {
		opts = append(opts, jws.WithAllowedAlgorithms(c.SignatureAlgorithms...))
	}
	if c.InsecureAllowNone {
		opts = append(opts, jws.WithInsecureAllowNone())
	}
	if c.RequireKeyID {
		opts = append(opts, jws.WithRequireKeyID())
	}
	if c.VerifyAll {
		opts = append(opts, jws.WithPolicy(jws.VerifyAll))
	}
	if len(c.Critical) > 0 {
		opts = append(opts, jws.WithCritical(c.Critical...))
	}
	return append(opts, extra...)
}

// JWEOptions returns the decryption options for the jwe package, followed
// by any extra options given.
func (c *Config) JWEOptions(extra ...jwe.Option) []jwe.Option {
	var opts []jwe.Option
	if len(c.KeyManagementAlgorithms) > 0 {
		opts = append(opts, jwe.WithAllowedAlgorithms(c.KeyManagementAlgorithms...))
	}
	if len(c.EncryptionAlgorithms) > 0 {
		opts = append(opts, jwe.WithAllowedEncryption(c.EncryptionAlgorithms...))
	}
	if c.RequireKeyID {
		opts = append(opts, jwe.WithRequireKeyID())
	}
	if len(c.Critical) > 0 {
		opts = append(opts, jwe.WithCritical(c.Critical...))
	}
	if c.MaxPBES2Count > 0 {
		opts = append(opts, jwe.WithMaxPBES2Count(c.MaxPBES2Count))
	}
	if c.MaxDecompressedSize > 0 {
		opts = append(opts, jwe.WithMaxDecompressedSize(c.MaxDecompressedSize))
	}
	return append(opts, extra...)
}

// JWTOptions returns the verification options for the jwt package,
// followed by any extra options given. Without SignatureAlgorithms the
// jwt default allow-list applies.
func (c *Config) JWTOptions(extra ...jwt.VerifyOption) []jwt.VerifyOption {
	var opts []jwt.VerifyOption
	if len(c.SignatureAlgorithms) > 0 {
		opts = append(opts, jwt.WithAllowedAlgorithms(c.SignatureAlgorithms...))
	}
	if c.InsecureAllowNone {
		opts = append(opts, jwt.WithAllowInsecureNoneAlgorithm(true))
	}
	if c.RequireKeyID {
		opts = append(opts, jwt.WithRequireKeyID())
	}
	if len(c.Critical) > 0 {
		opts = append(opts, jwt.WithSupportedCriticalHeaders(c.Critical...))
	}
	if c.ClockSkewTolerance > 0 {
		opts = append(opts, jwt.WithClockSkewTolerance(c.ClockSkewTolerance))
	}
	if len(c.AllowedIssuers) > 0 {
		opts = append(opts, jwt.WithAllowedIssuers(c.AllowedIssuers...))
	}
	if len(c.AllowedAudiences) > 0 {
		opts = append(opts, jwt.WithAllowedAudiences(c.AllowedAudiences...))
	}
	if len(c.RequiredClaims) > 0 {
		opts = append(opts, jwt.WithRequiredClaims(c.RequiredClaims...))
	}
	return append(opts, extra...)
}

