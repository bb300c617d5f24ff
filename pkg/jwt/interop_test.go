package jwt_test

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwt"
	"github.com/stretchr/testify/require"
)

// TestInteropGolangJWT checks tokens against github.com/golang-jwt/jwt in
// both directions.
func TestInteropGolangJWT(t *testing.T) {
	rsaPrivate := testRSAKey(t)

	ecdsaPrivate, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	edPublic, edPrivate, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		alg     jwa.Algorithm
		method  gjwt.SigningMethod
		private any
		public  any
	}{
		{jwa.HS256, gjwt.SigningMethodHS256, testHMACSecretKey, testHMACSecretKey},
		{jwa.HS512, gjwt.SigningMethodHS512, testHMACSecretKey, testHMACSecretKey},
		{jwa.RS256, gjwt.SigningMethodRS256, rsaPrivate, &rsaPrivate.PublicKey},
		{jwa.PS256, gjwt.SigningMethodPS256, rsaPrivate, &rsaPrivate.PublicKey},
		{jwa.ES256, gjwt.SigningMethodES256, ecdsaPrivate, &ecdsaPrivate.PublicKey},
		{jwa.EdDSA, gjwt.SigningMethodEdDSA, edPrivate, edPublic},
	}

	exp := time.Now().Add(time.Hour).Unix()

	for _, test := range tests {
		t.Run(test.alg, func(t *testing.T) {
			t.Run("sign here, verify there", func(t *testing.T) {
				token := testToken(t,
					header.Parameters{header.Algorithm: test.alg},
					jwt.ClaimsSet{jwt.Subject: "interop", jwt.ExpirationTime: exp},
					mustKey(t, test.private),
				)

				parsed, err := gjwt.Parse(token.String(), func(*gjwt.Token) (any, error) {
					return test.public, nil
				}, gjwt.WithValidMethods([]string{test.alg}))
				require.NoError(t, err)
				require.True(t, parsed.Valid)

				sub, err := parsed.Claims.GetSubject()
				require.NoError(t, err)
				require.Equal(t, "interop", sub)
			})

			t.Run("sign there, verify here", func(t *testing.T) {
				signed, err := gjwt.NewWithClaims(test.method, gjwt.MapClaims{
					"sub": "interop",
					"exp": exp,
				}).SignedString(test.private)
				require.NoError(t, err)

				token, err := jwt.ParseAndVerify(signed,
					jwt.WithKeys(test.public),
					jwt.WithAllowedAlgorithms(test.alg),
					jwt.WithRequiredClaims(jwt.ExpirationTime),
				)
				require.NoError(t, err)
				require.Equal(t, "interop", token.Claims[jwt.Subject])
				require.Equal(t, exp, token.Claims[jwt.ExpirationTime])
			})

			t.Run("wrong algorithm rejected", func(t *testing.T) {
				signed, err := gjwt.NewWithClaims(test.method, gjwt.MapClaims{"sub": "interop"}).SignedString(test.private)
				require.NoError(t, err)

				_, err = jwt.ParseAndVerify(signed,
					jwt.WithKeys(test.public),
					jwt.WithAllowedAlgorithms(jwa.RS512),
				)
				require.Error(t, err)
			})
		})
	}
}
