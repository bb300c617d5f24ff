package jwa

// Algorithm is a registered JOSE algorithm identifier, such as
// "HS256" or "RSA-OAEP-256".
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.1
type Algorithm = string

// HMAC with SHA-2 Functions
//
// These algorithms are used to construct a MAC using a shared secret
// and the Hash-based Message Authentication Code (HMAC) construction
// [RFC2104] employing SHA-2 [SHS] hash functions.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.2
const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
)

// RSASSA-PKCS1-v1_5
//
// These algorithms are used to digitally sign a JWS and produce a
// JWS Signature using PKCS #1 v1.5 methods.
//
// # RSA Key Size
//
// A key of size 2048 bits or larger MUST be used with these algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.3
const (
	RS256 Algorithm = "RS256"
	RS384 Algorithm = "RS384"
	RS512 Algorithm = "RS512"
)

// ECDSA
//
// These algorithms are used to digitally sign a JWS and produce a
// JWS Signature using ECDSA algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.4
const (
	ES256 Algorithm = "ES256"
	ES384 Algorithm = "ES384"
	ES512 Algorithm = "ES512"
)

// RSASSA-PSS
//
// These algorithms are used to digitally sign a JWS and produce a
// JWS Signature using the RSASSA-PSS algorithms.
//
// # RSA Key Size
//
// A key of size 2048 bits or larger MUST be used with these algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.5
const (
	PS256 Algorithm = "PS256"
	PS384 Algorithm = "PS384"
	PS512 Algorithm = "PS512"
)

// No signature or MAC performed (unprotected JWS). This algorithm is
// intended to be used to create a JWS that is not integrity protected.
//
// # Warning
//
// The use of this algorithm is considered dangerous. It is registered,
// but every engine refuses it unless the caller both allow-lists it and
// opts in to insecure behavior explicitly.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.6
const None Algorithm = "none"

// ES256K is ECDSA using the secp256k1 curve and SHA-256.
//
// https://datatracker.ietf.org/doc/html/rfc8812#section-3.2
const ES256K Algorithm = "ES256K"

// EdDSA is the Edwards-curve Digital Signature Algorithm. Only the
// Ed25519 curve is supported.
//
// https://datatracker.ietf.org/doc/html/rfc8037#section-3.1
const EdDSA Algorithm = "EdDSA"

// Key management algorithms, used as the "alg" value of a JWE to determine
// the Content Encryption Key (CEK).
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.1
const (
	// https://datatracker.ietf.org/doc/html/rfc7518#section-4.5
	Direct Algorithm = "dir"

	// https://datatracker.ietf.org/doc/html/rfc7518#section-4.4
	A128KW Algorithm = "A128KW"
	A192KW Algorithm = "A192KW"
	A256KW Algorithm = "A256KW"

	// https://datatracker.ietf.org/doc/html/rfc7518#section-4.7
	A128GCMKW Algorithm = "A128GCMKW"
	A192GCMKW Algorithm = "A192GCMKW"
	A256GCMKW Algorithm = "A256GCMKW"

	// https://datatracker.ietf.org/doc/html/rfc7518#section-4.3
	RSAOAEP    Algorithm = "RSA-OAEP"
	RSAOAEP256 Algorithm = "RSA-OAEP-256"
	RSAOAEP384 Algorithm = "RSA-OAEP-384"
	RSAOAEP512 Algorithm = "RSA-OAEP-512"

	// https://datatracker.ietf.org/doc/html/rfc7518#section-4.6
	ECDHES       Algorithm = "ECDH-ES"
	ECDHESA128KW Algorithm = "ECDH-ES+A128KW"
	ECDHESA192KW Algorithm = "ECDH-ES+A192KW"
	ECDHESA256KW Algorithm = "ECDH-ES+A256KW"

	// https://datatracker.ietf.org/doc/html/rfc7518#section-4.8
	PBES2HS256A128KW Algorithm = "PBES2-HS256+A128KW"
	PBES2HS384A192KW Algorithm = "PBES2-HS384+A192KW"
	PBES2HS512A256KW Algorithm = "PBES2-HS512+A256KW"
)

// Content encryption algorithms, used as the "enc" value of a JWE.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-5.1
const (
	// https://datatracker.ietf.org/doc/html/rfc7518#section-5.2
	A128CBCHS256 Algorithm = "A128CBC-HS256"
	A192CBCHS384 Algorithm = "A192CBC-HS384"
	A256CBCHS512 Algorithm = "A256CBC-HS512"

	// https://datatracker.ietf.org/doc/html/rfc7518#section-5.3
	A128GCM Algorithm = "A128GCM"
	A192GCM Algorithm = "A192GCM"
	A256GCM Algorithm = "A256GCM"
)

// Deflate is the only registered JWE "zip" value.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-4.1.3
const Deflate = "DEF"
