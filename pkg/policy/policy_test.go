package policy_test

import (
	"strings"
	"testing"
	"time"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwe"
	"github.com/picatz/jose/v2/pkg/jwk"
	"github.com/picatz/jose/v2/pkg/jws"
	"github.com/picatz/jose/v2/pkg/jwt"
	"github.com/picatz/jose/v2/pkg/policy"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("JOSE_SIGNATURE_ALGORITHMS", "ES256,EdDSA")
	t.Setenv("JOSE_KEY_MANAGEMENT_ALGORITHMS", "A256KW,ECDH-ES+A256KW")
	t.Setenv("JOSE_ENCRYPTION_ALGORITHMS", "A256GCM")
	t.Setenv("JOSE_REQUIRE_KEY_ID", "true")
	t.Setenv("JOSE_VERIFY_ALL", "true")
	t.Setenv("JOSE_MAX_PBES2_COUNT", "5000")
	t.Setenv("JOSE_CLOCK_SKEW_TOLERANCE", "30s")
	t.Setenv("JOSE_ALLOWED_ISSUERS", "https://a.example.com,https://b.example.com")
	t.Setenv("JOSE_REQUIRED_CLAIMS", "exp")

	c, err := policy.LoadEnv()
	require.NoError(t, err)
	require.Equal(t, &policy.Config{
		SignatureAlgorithms:     []jwa.Algorithm{jwa.ES256, jwa.EdDSA},
		KeyManagementAlgorithms: []jwa.Algorithm{jwa.A256KW, jwa.ECDHESA256KW},
		EncryptionAlgorithms:    []jwa.Algorithm{jwa.A256GCM},
		RequireKeyID:            true,
		VerifyAll:               true,
		MaxPBES2Count:           5000,
		ClockSkewTolerance:      30 * time.Second,
		AllowedIssuers:          []string{"https://a.example.com", "https://b.example.com"},
		RequiredClaims:          []string{jwt.ExpirationTime},
	}, c)

	require.Len(t, c.JWSOptions(), 3)
	require.Len(t, c.JWEOptions(), 4)
	require.Len(t, c.JWTOptions(), 5)
}

func TestLoadEnvErrors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr error
	}{
		{"bad bool", "JOSE_REQUIRE_KEY_ID", "maybe", policy.ErrParsingConfig},
		{"bad duration", "JOSE_CLOCK_SKEW_TOLERANCE", "soon", policy.ErrParsingConfig},
		{"unknown algorithm", "JOSE_SIGNATURE_ALGORITHMS", "HS999", jose.ErrUnsupportedAlgorithm},
		{"wrong category", "JOSE_SIGNATURE_ALGORITHMS", "A256GCM", policy.ErrInvalidConfig},
		{"negative limit", "JOSE_MAX_PBES2_COUNT", "-1", policy.ErrInvalidConfig},
		{"negative skew", "JOSE_CLOCK_SKEW_TOLERANCE", "-1s", policy.ErrInvalidConfig},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Setenv(test.key, test.value)

			c, err := policy.LoadEnv()
			require.ErrorIs(t, err, test.wantErr)
			require.Nil(t, c)
		})
	}
}

func TestLoadYAML(t *testing.T) {
	c, err := policy.LoadYAML(strings.NewReader(`
signature_algorithms: [HS256]
key_management_algorithms: [A256KW]
encryption_algorithms: [A256GCM, A128CBC-HS256]
critical: ["https://example.com/ext"]
max_decompressed_size: 1024
clock_skew_tolerance: 1m
allowed_audiences: [api]
`))
	require.NoError(t, err)
	require.Equal(t, []jwa.Algorithm{jwa.HS256}, c.SignatureAlgorithms)
	require.Equal(t, []jwa.Algorithm{jwa.A256GCM, jwa.A128CBCHS256}, c.EncryptionAlgorithms)
	require.Equal(t, []string{"https://example.com/ext"}, c.Critical)
	require.Equal(t, int64(1024), c.MaxDecompressedSize)
	require.Equal(t, time.Minute, c.ClockSkewTolerance)
	require.Equal(t, []string{"api"}, c.AllowedAudiences)

	t.Run("empty document", func(t *testing.T) {
		c, err := policy.LoadYAML(strings.NewReader(""))
		require.NoError(t, err)
		require.Equal(t, &policy.Config{}, c)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := policy.LoadYAML(strings.NewReader("allowed_algs: [HS256]\n"))
		require.ErrorIs(t, err, policy.ErrParsingConfig)
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		_, err := policy.LoadYAML(strings.NewReader("encryption_algorithms: [A512GCM]\n"))
		require.ErrorIs(t, err, policy.ErrInvalidConfig)
		require.ErrorIs(t, err, jose.ErrUnsupportedAlgorithm)
	})
}

func TestJWSOptions(t *testing.T) {
	key, err := jwk.Generate(jwa.KeyTypeOctet)
	require.NoError(t, err)

	sig, err := jws.New(jws.Header{header.Algorithm: jwa.HS256}, []byte("payload"), key)
	require.NoError(t, err)

	c := &policy.Config{SignatureAlgorithms: []jwa.Algorithm{jwa.HS256}}
	require.NoError(t, sig.Verify(c.JWSOptions(jws.WithKey(key))...))

	c = &policy.Config{SignatureAlgorithms: []jwa.Algorithm{jwa.ES256}}
	err = sig.Verify(c.JWSOptions(jws.WithKey(key))...)
	require.ErrorIs(t, err, jose.ErrUnsupportedAlgorithm)

	c = &policy.Config{SignatureAlgorithms: []jwa.Algorithm{jwa.HS256}, RequireKeyID: true}
	err = sig.Verify(c.JWSOptions(jws.WithKey(key))...)
	require.ErrorIs(t, err, jose.ErrKeyMismatch)
}

func TestJWEOptions(t *testing.T) {
	key, err := jwk.Generate(jwa.KeyTypeOctet)
	require.NoError(t, err)

	msg, err := jwe.Encrypt([]byte("secret"), jwe.Header{
		header.Algorithm:  jwa.A256KW,
		header.Encryption: jwa.A256GCM,
	}, key)
	require.NoError(t, err)

	c := &policy.Config{
		KeyManagementAlgorithms: []jwa.Algorithm{jwa.A256KW},
		EncryptionAlgorithms:    []jwa.Algorithm{jwa.A256GCM},
	}
	plaintext, err := msg.Decrypt(c.JWEOptions(jwe.WithKey(key))...)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), plaintext)

	c.EncryptionAlgorithms = []jwa.Algorithm{jwa.A128GCM}
	_, err = msg.Decrypt(c.JWEOptions(jwe.WithKey(key))...)
	require.ErrorIs(t, err, jose.ErrUnsupportedAlgorithm)
}

func TestJWTOptions(t *testing.T) {
	key, err := jwk.Generate(jwa.KeyTypeOctet)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	token, err := jwt.New(
		header.Parameters{header.Algorithm: jwa.HS256},
		jwt.ClaimsSet{
			jwt.Issuer:         "https://issuer.example.com",
			jwt.Audience:       "api",
			jwt.ExpirationTime: now,
		},
		key,
	)
	require.NoError(t, err)

	c := &policy.Config{
		SignatureAlgorithms: []jwa.Algorithm{jwa.HS256},
		ClockSkewTolerance:  time.Minute,
		AllowedIssuers:      []string{"https://issuer.example.com"},
		AllowedAudiences:    []string{"api"},
		RequiredClaims:      []string{jwt.ExpirationTime},
	}

	clock := jwt.WithClock(func() time.Time { return now.Add(30 * time.Second) })
	require.NoError(t, token.Verify(c.JWTOptions(jwt.WithKey(key), clock)...))

	c.ClockSkewTolerance = 0
	err = token.Verify(c.JWTOptions(jwt.WithKey(key), clock)...)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)

	c.ClockSkewTolerance = time.Minute
	c.AllowedAudiences = []string{"other"}
	err = token.Verify(c.JWTOptions(jwt.WithKey(key), clock)...)
	require.Error(t, err)
}
