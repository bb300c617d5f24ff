package header_test

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwk"
	"github.com/stretchr/testify/require"
)

func TestJSONDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, params header.Parameters)
	}{
		{
			name:  "typ and alg",
			input: `{"typ":"JWT","alg":"HS256"}`,
			check: func(t *testing.T, params header.Parameters) {
				typ, err := params.Type()
				require.NoError(t, err)
				require.Equal(t, header.TypeJWT, typ)

				alg, err := params.Algorithm()
				require.NoError(t, err)
				require.Equal(t, jwa.HS256, alg)
			},
		},
		{
			name:  "typ and alg and kid",
			input: `{"typ":"JWT","alg":"HS256","kid":"key-id"}`,
			check: func(t *testing.T, params header.Parameters) {
				kid, err := params.Get(header.KeyID)
				require.NoError(t, err)
				require.Equal(t, "key-id", kid)

				kid, err = params.KeyID()
				require.NoError(t, err)
				require.Equal(t, "key-id", kid)
			},
		},
		{
			name:  "typ and alg and kid and crit",
			input: `{"typ":"JWT","alg":"HS256","kid":"key-id","crit":["exp","nbf"],"exp":1,"nbf":0}`,
			check: func(t *testing.T, params header.Parameters) {
				crit, err := params.Get(header.Critical)
				require.NoError(t, err)
				require.Equal(t, []any{"exp", "nbf"}, crit)

				names, err := params.Critical()
				require.NoError(t, err)
				require.Equal(t, []string{"exp", "nbf"}, names)
				require.NoError(t, params.Validate())
			},
		},
		{
			name:  "missing typ",
			input: `{"alg":"HS256"}`,
			check: func(t *testing.T, params header.Parameters) {
				typ, err := params.Type()
				require.Error(t, err)
				require.ErrorIs(t, err, header.ErrParameterNotFound)
				require.Equal(t, "", typ)
			},
		},
		{
			name:  "missing alg",
			input: `{"typ":"JWT"}`,
			check: func(t *testing.T, params header.Parameters) {
				alg, err := params.Algorithm()
				require.Error(t, err)
				require.ErrorIs(t, err, header.ErrParameterNotFound)
				require.Equal(t, "", alg)
			},
		},
		{
			name:  "invalid typ",
			input: `{"typ":123,"alg":"HS256"}`,
			check: func(t *testing.T, params header.Parameters) {
				typ, err := params.Type()
				require.Error(t, err)
				require.ErrorIs(t, err, header.ErrInvalidParameterType)
				require.ErrorIs(t, err, jose.ErrInvalidHeader)
				require.Equal(t, "", typ)
			},
		},
		{
			name:  "invalid alg",
			input: `{"typ":"JWT","alg":123}`,
			check: func(t *testing.T, params header.Parameters) {
				alg, err := params.Algorithm()
				require.Error(t, err)
				require.ErrorIs(t, err, header.ErrInvalidParameterType)
				require.Equal(t, "", alg)
			},
		},
		{
			name:  "b64 defaults to true",
			input: `{"alg":"HS256"}`,
			check: func(t *testing.T, params header.Parameters) {
				b64, err := params.Base64URLEncodePayload()
				require.NoError(t, err)
				require.True(t, b64)
			},
		},
		{
			name:  "p2c",
			input: `{"alg":"PBES2-HS256+A128KW","p2c":4096,"p2s":"2WCTcJZ1Rvd_CJuJripQ1w"}`,
			check: func(t *testing.T, params header.Parameters) {
				count, err := params.PBES2Count()
				require.NoError(t, err)
				require.Equal(t, 4096, count)

				salt, err := params.Bytes(header.PBES2SaltInput)
				require.NoError(t, err)
				require.Len(t, salt, 16)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var params header.Parameters
			err := json.NewDecoder(strings.NewReader(test.input)).Decode(&params)
			require.NoError(t, err)

			test.check(t, params)
		})
	}
}

func TestParse(t *testing.T) {
	// https://datatracker.ietf.org/doc/html/rfc7515#appendix-A.1
	h, err := header.Parse("eyJ0eXAiOiJKV1QiLA0KICJhbGciOiJIUzI1NiJ9")
	require.NoError(t, err)
	require.Equal(t, header.Parameters{"typ": "JWT", "alg": "HS256"}, h)

	tests := []struct {
		name  string
		input string
		err   error
	}{
		{"padded", "eyJhbGciOiJIUzI1NiJ9==", jose.ErrMalformedToken},
		{"not base64url", "eyJhbGciOiJIUzI1NiJ9!", jose.ErrMalformedToken},
		{"not JSON", base64.EncodeString("alg"), jose.ErrMalformedToken},
		{"array", base64.EncodeString(`["alg"]`), jose.ErrMalformedToken},
		{"null", base64.EncodeString(`null`), jose.ErrMalformedToken},
		{"empty crit", base64.EncodeString(`{"alg":"HS256","crit":[]}`), jose.ErrInvalidHeader},
		{"registered crit", base64.EncodeString(`{"alg":"HS256","crit":["alg"]}`), jose.ErrInvalidHeader},
		{"missing crit", base64.EncodeString(`{"alg":"HS256","crit":["exp"]}`), jose.ErrInvalidHeader},
		{"crit not strings", base64.EncodeString(`{"alg":"HS256","crit":[1],"1":1}`), jose.ErrInvalidHeader},
		{"kid not a string", base64.EncodeString(`{"alg":"HS256","kid":7}`), jose.ErrInvalidHeader},
		{"b64 not a boolean", base64.EncodeString(`{"alg":"HS256","b64":"false"}`), jose.ErrInvalidHeader},
		{"zero p2c", base64.EncodeString(`{"alg":"PBES2-HS256+A128KW","p2c":0}`), jose.ErrInvalidHeader},
		{"fractional p2c", base64.EncodeString(`{"alg":"PBES2-HS256+A128KW","p2c":1.5}`), jose.ErrInvalidHeader},
		{"epk not an object", base64.EncodeString(`{"alg":"ECDH-ES","epk":"key"}`), jose.ErrInvalidHeader},
		{"x5c not strings", base64.EncodeString(`{"alg":"RS256","x5c":[1]}`), jose.ErrInvalidHeader},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := header.Parse(test.input)
			require.ErrorIs(t, err, test.err)
		})
	}

	t.Run("duplicate member names", func(t *testing.T) {
		h, err := header.Parse(base64.EncodeString(`{"alg":"none","alg":"HS256"}`))
		require.NoError(t, err)
		alg, err := h.Algorithm()
		require.NoError(t, err)
		require.Equal(t, jwa.HS256, alg)
	})
}

func TestBase64URLString(t *testing.T) {
	h := header.Parameters{
		header.Type:      header.TypeJWT,
		header.Algorithm: jwa.HS256,
	}

	s, err := h.Base64URLString()
	require.NoError(t, err)
	require.Equal(t, base64.EncodeString(`{"alg":"HS256","typ":"JWT"}`), s)

	parsed, err := header.Parse(s)
	require.NoError(t, err)
	require.Equal(t, h, parsed)
}

func TestEphemeralPublicKey(t *testing.T) {
	k, err := jwk.Generate(jwa.KeyTypeEC)
	require.NoError(t, err)
	pub, err := k.Public()
	require.NoError(t, err)

	h := header.Parameters{header.EphemeralPublicKey: pub.Value(false)}
	epk, err := h.EphemeralPublicKey()
	require.NoError(t, err)
	require.Equal(t, pub.Value(false), epk.Value(false))

	h = header.Parameters{header.EphemeralPublicKey: k.Value(true)}
	_, err = h.EphemeralPublicKey()
	require.ErrorIs(t, err, jose.ErrInvalidHeader)

	_, err = header.Parameters{}.EphemeralPublicKey()
	require.ErrorIs(t, err, header.ErrParameterNotFound)
}

func TestAlgorithmFamily(t *testing.T) {
	tests := []struct {
		alg        jwa.Algorithm
		symmetric  bool
		asymmetric bool
	}{
		{jwa.HS256, true, false},
		{jwa.A128KW, true, false},
		{jwa.RS256, false, true},
		{jwa.ES256K, false, true},
		{jwa.ECDHES, false, true},
		{jwa.None, false, false},
	}

	for _, test := range tests {
		t.Run(test.alg, func(t *testing.T) {
			h := header.Parameters{header.Algorithm: test.alg}

			symmetric, err := h.SymetricAlgorithm()
			require.NoError(t, err)
			require.Equal(t, test.symmetric, symmetric)

			asymmetric, err := h.AsymetricAlgorithm()
			require.NoError(t, err)
			require.Equal(t, test.asymmetric, asymmetric)
		})
	}

	_, err := header.Parameters{header.Algorithm: "HS999"}.SymetricAlgorithm()
	require.ErrorIs(t, err, jose.ErrUnsupportedAlgorithm)
}

func TestMerge(t *testing.T) {
	merged, err := header.Merge(
		header.Parameters{header.Algorithm: jwa.A128KW},
		header.Parameters{header.Encryption: jwa.A128GCM},
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, header.Parameters{"alg": "A128KW", "enc": "A128GCM"}, merged)

	_, err = header.Merge(
		header.Parameters{header.Algorithm: jwa.A128KW},
		header.Parameters{header.Algorithm: jwa.A256KW},
	)
	require.ErrorIs(t, err, jose.ErrInvalidHeader)
}
