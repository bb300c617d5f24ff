// Package jose implements JavaScript Object Signing and Encryption (JOSE) related functionality.
//
// The sub-packages are layered leaves first:
//
//   - base64: unpadded base64url codec
//   - jwa: the algorithm registry (signature, key management, content encryption)
//   - header: typed JOSE header parameters
//   - jwk: the key model and RFC 7638 thumbprints
//   - jws: signing and verification, compact and JSON serializations
//   - jwe: encryption and decryption, compact and JSON serializations
//   - jwt: a thin claims layer on top of jws and jwe
//   - keyutil: PEM import and export of JWKs
//   - policy: allow-lists and limits loaded from the environment or YAML
//   - metrics: a Prometheus Observer
//
// This package holds the error values shared by all of them, and the
// Observer hook the jws and jwe engines report to.
//
// Related RFCs:
//   - RFC7515 https://datatracker.ietf.org/doc/html/rfc7515 JWS, JSON Web Signature
//   - RFC7516 https://datatracker.ietf.org/doc/html/rfc7516 JWE, JSON Web Encryption
//   - RFC7517 https://datatracker.ietf.org/doc/html/rfc7517 JWK, JSON Web Key
//   - RFC7518 https://datatracker.ietf.org/doc/html/rfc7518 JWA, JSON Web Algorithms
//   - RFC7519 https://datatracker.ietf.org/doc/html/rfc7519 JWT, JSON Web Token
//   - RFC7638 https://datatracker.ietf.org/doc/html/rfc7638 JWK Thumbprint
//   - RFC7797 https://datatracker.ietf.org/doc/html/rfc7797 JWS Unencoded Payload Option
//   - RFC8037 https://datatracker.ietf.org/doc/html/rfc8037 CFRG curves in JOSE
//
// Related Information:
//   - https://datatracker.ietf.org/wg/jose/charter/
package jose
