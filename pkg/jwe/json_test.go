package jwe

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/goccy/go-json"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwk"
	"github.com/stretchr/testify/require"
)

func TestJSONSerialization(t *testing.T) {
	secret := mustKey(t, randomBytes(t, 16), jwk.WithKeyID("kw"))
	rsaPriv := testRSAKey(t)
	rsaKey := mustKey(t, rsaPriv, jwk.WithKeyID("rsa"))
	rsaPub := mustKey(t, &rsaPriv.PublicKey, jwk.WithKeyID("rsa"))
	ecPriv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ecKey := mustKey(t, ecPriv, jwk.WithKeyID("ec"))
	ecPub := mustKey(t, &ecPriv.PublicKey, jwk.WithKeyID("ec"))

	plaintext := []byte("three recipients, one ciphertext")
	msg, err := EncryptJSON(plaintext,
		Header{header.Encryption: jwa.A128CBCHS256},
		[]Recipient{
			{Header: Header{header.Algorithm: jwa.A128KW, header.KeyID: "kw"}, Key: secret},
			{Header: Header{header.Algorithm: jwa.RSAOAEP256, header.KeyID: "rsa"}, Key: rsaPub},
			{Header: Header{header.Algorithm: jwa.ECDHESA256KW, header.KeyID: "ec"}, Key: ecPub},
		},
		WithSharedHeader(Header{"jku": "https://server.example.com/keys.jwks"}),
		WithAAD([]byte("external data")),
	)
	require.NoError(t, err)
	require.Len(t, msg.Recipients, 3)
	require.True(t, msg.Recipients[2].Header.Has(header.EphemeralPublicKey))
	require.False(t, msg.Protected.Has(header.EphemeralPublicKey))

	data, err := msg.MarshalJSON()
	require.NoError(t, err)

	var members map[string]any
	require.NoError(t, json.Unmarshal(data, &members))
	for _, name := range []string{"protected", "unprotected", "recipients", "aad", "iv", "ciphertext", "tag"} {
		require.Contains(t, members, name)
	}

	parsed, err := ParseJSON(data)
	require.NoError(t, err)

	allowed := []Option{
		WithAllowedAlgorithms(jwa.A128KW, jwa.RSAOAEP256, jwa.ECDHESA256KW),
		WithAllowedEncryption(jwa.A128CBCHS256),
	}

	for _, key := range []jwk.Key{secret, rsaKey, ecKey} {
		t.Run("decrypt with "+key.KeyID(), func(t *testing.T) {
			got, err := parsed.Decrypt(append(allowed, WithKey(key))...)
			require.NoError(t, err)
			require.Equal(t, plaintext, got)
		})
	}

	t.Run("required key ID", func(t *testing.T) {
		got, err := parsed.Decrypt(append(allowed, WithKey(ecKey), WithRequiredKeyID("ec"))...)
		require.NoError(t, err)
		require.Equal(t, plaintext, got)

		_, err = parsed.Decrypt(append(allowed, WithKey(ecKey), WithRequiredKeyID("nobody"))...)
		require.ErrorIs(t, err, jose.ErrKeyMismatch)
	})

	t.Run("recipient algorithm not allowed", func(t *testing.T) {
		_, err := parsed.Decrypt(
			WithAllowedAlgorithms(jwa.A128KW),
			WithAllowedEncryption(jwa.A128CBCHS256),
			WithKey(rsaKey),
		)
		require.Error(t, err)
	})

	t.Run("tampered aad", func(t *testing.T) {
		tampered, err := ParseJSON(data)
		require.NoError(t, err)
		tampered.AAD = []byte("external datA")

		_, err = tampered.Decrypt(append(allowed, WithKey(secret))...)
		require.Equal(t, jose.ErrAuthenticationFailure, err)
	})

	t.Run("flatten needs one recipient", func(t *testing.T) {
		_, err := msg.Flatten()
		require.ErrorIs(t, err, jose.ErrMalformedToken)
	})
}

func TestJSONFlattened(t *testing.T) {
	key := mustKey(t, randomBytes(t, 32))
	msg, err := EncryptJSON([]byte("flat"),
		Header{header.Encryption: jwa.A256GCM},
		[]Recipient{{Header: Header{header.Algorithm: jwa.A256GCMKW}, Key: key}},
	)
	require.NoError(t, err)

	for _, name := range []string{header.InitializationVector, header.AuthenticationTag} {
		require.True(t, msg.Recipients[0].Header.Has(name), name)
	}

	data, err := msg.Flatten()
	require.NoError(t, err)

	var members map[string]any
	require.NoError(t, json.Unmarshal(data, &members))
	require.NotContains(t, members, "recipients")
	require.Contains(t, members, "header")
	require.Contains(t, members, "encrypted_key")

	parsed, err := ParseJSON(data)
	require.NoError(t, err)
	require.Len(t, parsed.Recipients, 1)

	got, err := parsed.Decrypt(decryptOpts(jwa.A256GCMKW, jwa.A256GCM, key)...)
	require.NoError(t, err)
	require.Equal(t, "flat", string(got))
}

func TestJSONDirect(t *testing.T) {
	key := mustKey(t, randomBytes(t, 16))
	other := mustKey(t, randomBytes(t, 16))

	t.Run("single recipient", func(t *testing.T) {
		msg, err := EncryptJSON([]byte("direct"),
			Header{header.Algorithm: jwa.Direct, header.Encryption: jwa.A128GCM},
			[]Recipient{{Key: key}},
		)
		require.NoError(t, err)
		require.Empty(t, msg.Recipients[0].EncryptedKey)

		token, err := msg.CompactString()
		require.NoError(t, err)

		parsed, err := Parse(token)
		require.NoError(t, err)
		got, err := parsed.Decrypt(decryptOpts(jwa.Direct, jwa.A128GCM, key)...)
		require.NoError(t, err)
		require.Equal(t, "direct", string(got))
	})

	t.Run("several recipients", func(t *testing.T) {
		_, err := EncryptJSON([]byte("direct"),
			Header{header.Algorithm: jwa.Direct, header.Encryption: jwa.A128GCM},
			[]Recipient{{Key: key}, {Key: other}},
		)
		require.ErrorIs(t, err, jose.ErrInvalidHeader)
	})

	t.Run("encrypted key present", func(t *testing.T) {
		msg, err := Encrypt([]byte("direct"),
			Header{header.Algorithm: jwa.Direct, header.Encryption: jwa.A128GCM},
			key,
		)
		require.NoError(t, err)
		msg.Recipients[0].EncryptedKey = []byte{1, 2, 3}

		_, err = msg.Decrypt(decryptOpts(jwa.Direct, jwa.A128GCM, key)...)
		require.ErrorIs(t, err, jose.ErrMalformedToken)
	})

	t.Run("enc in recipient header", func(t *testing.T) {
		_, err := EncryptJSON([]byte("x"),
			Header{header.Algorithm: jwa.A128KW},
			[]Recipient{{Header: Header{header.Encryption: jwa.A128GCM}, Key: key}},
		)
		require.ErrorIs(t, err, jose.ErrInvalidHeader)
	})

	t.Run("duplicate parameter", func(t *testing.T) {
		_, err := EncryptJSON([]byte("x"),
			Header{header.Algorithm: jwa.A128KW, header.Encryption: jwa.A128GCM},
			[]Recipient{{Header: Header{header.Algorithm: jwa.A128KW}, Key: key}},
		)
		require.ErrorIs(t, err, jose.ErrInvalidHeader)
	})
}

func TestJSONInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `not json`},
		{"no ciphertext", `{"protected":"eyJlbmMiOiJBMTI4R0NNIn0","recipients":[{}],"iv":"AAAA","tag":"AAAA"}`},
		{"empty recipients", `{"protected":"eyJlbmMiOiJBMTI4R0NNIn0","recipients":[],"ciphertext":"AAAA"}`},
		{"mixed forms", `{"recipients":[{"header":{"alg":"A128KW"}}],"header":{"alg":"A128KW"},"ciphertext":"AAAA"}`},
		{"padded ciphertext", `{"header":{"alg":"dir"},"ciphertext":"AA=="}`},
		{"bad encrypted key", `{"header":{"alg":"A128KW"},"encrypted_key":"!!","ciphertext":"AAAA"}`},
		{"bad header type", `{"header":{"alg":1},"ciphertext":"AAAA"}`},
		{"bad protected header", `{"protected":"e30=","header":{"alg":"dir"},"ciphertext":"AAAA"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseJSON([]byte(tt.input))
			require.Nil(t, msg)
			require.Error(t, err)
		})
	}

	t.Run("malformed errors", func(t *testing.T) {
		_, err := ParseJSON([]byte(`{"iv":"AAAA"}`))
		require.ErrorIs(t, err, jose.ErrMalformedToken)
	})
}
