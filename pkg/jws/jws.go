package jws

import (
	"bytes"
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
//
// The JOSE (JSON Object Signing and Encryption) Header is comprised
// of a set of Header Parameters.
type Header = header.Parameters

// understood lists the "crit" extensions this package implements.
var understood = []string{header.Base64URLEncodePayload}

// Policy decides how many signatures of a JSON serialized JWS must verify.
type Policy int

const (
	// VerifyAny requires at least one signature to verify.
	VerifyAny Policy = iota

	// VerifyAll requires every signature to verify.
	VerifyAll
)

// Config holds the settings used when signing and verifying. Options
// that only apply to one of the two are ignored by the other.
type Config struct {
	// AllowedAlgorithms is the set of "alg" values accepted when
	// verifying. It is required: verification fails when it is empty.
	AllowedAlgorithms jwa.AllowedAlgorithms

	// InsecureAllowNone allows the "none" algorithm to be used, which
	// is considered insecure, dangerous, and disabled by default. When
	// verifying, it must be set in addition to being allowed.
	InsecureAllowNone bool

	// Keys are the candidate verification keys.
	Keys []jwk.Key

	// RequireKeyID requires the header "kid" to match the key ID of the
	// verification key.
	RequireKeyID bool

	// KeyID, when set, names the signature that must verify in a JSON
	// serialized JWS.
	KeyID string

	// Policy is used for JSON serialized signatures.
	Policy Policy

	// Critical lists extension header parameter names the caller
	// understands, in addition to "b64".
	Critical []string

	// Detached leaves the payload out of the serialization when signing.
	Detached bool

	// Unencoded signs the payload as is, using the RFC 7797 "b64" header.
	Unencoded bool

	// Payload is the detached payload used when verifying.
	Payload []byte

	Logger   logr.Logger
	Observer jose.Observer
}

// Option is a functional option type used to configure signing and
// verification.
type Option func(*Config) error

func newConfig(opts []Option) (*Config, error) {
	c := &Config{
		Logger:   logr.Discard(),
		Observer: jose.NopObserver,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("option error: %w", err)
		}
	}
	return c, nil
}

// WithAllowedAlgorithms sets the algorithms accepted when verifying.
func WithAllowedAlgorithms(algs ...jwa.Algorithm) Option {
	return func(c *Config) error {
		c.AllowedAlgorithms = jwa.NewAllowedAlgorithms(algs...)
		return nil
	}
}

// WithInsecureAllowNone allows the "none" algorithm to be used.
// Users must explicitly enable this option, as it is
// considered insecure, dangerous, and disabled by default.
//
// # WARNING
//
// This is not recommended, and should only be used
// for testing purposes.
func WithInsecureAllowNone() Option {
	return func(c *Config) error {
		c.InsecureAllowNone = true
		return nil
	}
}

// WithKey appends a key to the set of verification keys.
func WithKey(key jwk.Key) Option {
	return func(c *Config) error {
		if key == nil {
			return fmt.Errorf("%w: nil key", jose.ErrInvalidKey)
		}
		c.Keys = append(c.Keys, key)
		return nil
	}
}

// WithKeySet appends every key of the set to the verification keys.
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
// key that verifies it.
func WithRequireKeyID() Option {
	return func(c *Config) error {
		c.RequireKeyID = true
		return nil
	}
}

// WithRequiredKeyID requires the signature made with the given "kid" to
// verify, which implies WithRequireKeyID.
func WithRequiredKeyID(kid string) Option {
	return func(c *Config) error {
		c.RequireKeyID = true
		c.KeyID = kid
		return nil
	}
}

// WithPolicy sets how many JSON serialized signatures must verify.
func WithPolicy(p Policy) Option {
	return func(c *Config) error {
		c.Policy = p
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

// WithDetached leaves the payload out of the serialization.
//
// https://datatracker.ietf.org/doc/html/rfc7515#appendix-F
func WithDetached() Option {
	return func(c *Config) error {
		c.Detached = true
		return nil
	}
}

// WithDetachedPayload supplies the payload of a detached signature for
// verification.
func WithDetachedPayload(payload []byte) Option {
	return func(c *Config) error {
		c.Payload = payload
		return nil
	}
}

// WithUnencodedPayload signs the payload without base64url encoding it,
// setting "b64" to false and listing it in "crit".
//
// https://datatracker.ietf.org/doc/html/rfc7797
func WithUnencodedPayload() Option {
	return func(c *Config) error {
		c.Unencoded = true
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

// SigningInput returns the bytes that are signed: the protected header,
// a period, and the payload, which is base64url encoded unless encode is
// false.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-5.1
// https://datatracker.ietf.org/doc/html/rfc7797#section-3
func SigningInput(protected string, payload []byte, encode bool) []byte {
	buff := bytes.NewBuffer(make([]byte, 0, len(protected)+1+len(payload)*4/3+4))
	buff.WriteString(protected)
	buff.WriteByte('.')
	if encode {
		buff.WriteString(base64.Encode(payload))
	} else {
		buff.Write(payload)
	}
	return buff.Bytes()
}

// prepare validates the protected and unprotected headers for signing,
// applying the "b64" option, and returns the protected header, the joint
// header and the encoded protected header.
func prepare(protected, unprotected Header, c *Config) (Header, Header, string, jwa.Descriptor, error) {
	var none jwa.Descriptor

	protected = protected.Clone()
	if protected == nil {
		protected = Header{}
	}

	for _, name := range []string{header.Critical, header.Base64URLEncodePayload} {
		if unprotected.Has(name) {
			return nil, nil, "", none, fmt.Errorf("%w: %q must be integrity protected", jose.ErrInvalidHeader, name)
		}
	}

	if c.Unencoded {
		protected[header.Base64URLEncodePayload] = false
		crit, err := protected.Critical()
		if err != nil && protected.Has(header.Critical) {
			return nil, nil, "", none, err
		}
		if !slices.Contains(crit, header.Base64URLEncodePayload) {
			crit = append(crit, header.Base64URLEncodePayload)
		}
		protected[header.Critical] = crit
	}

	joint, err := header.Merge(protected, unprotected)
	if err != nil {
		return nil, nil, "", none, err
	}

	alg, err := joint.Algorithm()
	if err != nil {
		return nil, nil, "", none, fmt.Errorf("%w: %w", jose.ErrInvalidHeader, err)
	}
	d, err := jwa.LookupCategory(alg, jwa.CategorySignature)
	if err != nil {
		return nil, nil, "", none, err
	}
	if err := joint.Validate(); err != nil {
		return nil, nil, "", none, err
	}
	if err := checkCritical(joint, c); err != nil {
		return nil, nil, "", none, err
	}

	var encoded string
	if len(protected) > 0 {
		if encoded, err = protected.Base64URLString(); err != nil {
			return nil, nil, "", none, fmt.Errorf("%w: %w", jose.ErrInvalidHeader, err)
		}
	}
	return protected, joint, encoded, d, nil
}

// sign produces a signature over the input, refusing "none" unless the
// insecure opt-in is set.
func sign(d jwa.Descriptor, key jwk.Key, input []byte, c *Config) ([]byte, error) {
	if d.Name == jwa.None {
		if !c.InsecureAllowNone {
			return nil, fmt.Errorf("%w: %q is disabled", jose.ErrUnsupportedAlgorithm, jwa.None)
		}
		if key != nil {
			return nil, fmt.Errorf("%w: %q does not use a key", jose.ErrInvalidKey, jwa.None)
		}
		return d.Signer.Sign(nil, input)
	}

	if key == nil {
		return nil, fmt.Errorf("%w: no signing key", jose.ErrInvalidKey)
	}
	if err := jwk.CheckSupport(key, d.Name, jwk.OperationSign); err != nil {
		return nil, err
	}
	return d.Signer.Sign(key.Material(), input)
}

// checkCritical rejects "crit" extensions that are not understood.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4.1.11
func checkCritical(h Header, c *Config) error {
	crit, err := h.Critical()
	if err != nil {
		if h.Has(header.Critical) {
			return err
		}
		return nil
	}
	for _, name := range crit {
		if !slices.Contains(understood, name) && !slices.Contains(c.Critical, name) {
			return fmt.Errorf("%w: critical parameter %q is not understood", jose.ErrInvalidHeader, name)
		}
	}
	return nil
}

// verifySignature checks one signature against the allow-list and the
// configured keys. The protected header carries "alg" unless the whole
// JOSE header is passed, so the joint header is used for dispatch.
func verifySignature(joint Header, protected string, payload []byte, sig []byte, c *Config) (jwa.Algorithm, error) {
	alg, err := joint.Algorithm()
	if err != nil {
		return "", fmt.Errorf("%w: %w", jose.ErrInvalidHeader, err)
	}

	if len(c.AllowedAlgorithms) == 0 {
		return alg, fmt.Errorf("%w: no allowed algorithms configured", jose.ErrUnsupportedAlgorithm)
	}
	d, err := jwa.LookupCategory(alg, jwa.CategorySignature)
	if err != nil {
		return alg, err
	}
	if !c.AllowedAlgorithms.Allowed(alg) {
		c.Logger.V(1).Info("rejected algorithm not in allow-list", "alg", alg)
		return alg, fmt.Errorf("%w: %q is not allowed", jose.ErrUnsupportedAlgorithm, alg)
	}
	if err := checkCritical(joint, c); err != nil {
		return alg, err
	}

	encode, err := joint.Base64URLEncodePayload()
	if err != nil {
		return alg, err
	}
	input := SigningInput(protected, payload, encode)

	if alg == jwa.None {
		if !c.InsecureAllowNone {
			c.Logger.V(1).Info("rejected unsecured JWS")
			return alg, fmt.Errorf("%w: %q is disabled", jose.ErrUnsupportedAlgorithm, jwa.None)
		}
		if err := d.Signer.Verify(nil, input, sig); err != nil {
			return alg, jose.ErrAuthenticationFailure
		}
		return alg, nil
	}

	candidates, err := selectKeys(joint, d, c)
	if err != nil {
		return alg, err
	}
	for _, key := range candidates {
		if err := d.Signer.Verify(key.Material(), input, sig); err == nil {
			return alg, nil
		}
	}
	return alg, jose.ErrAuthenticationFailure
}

// selectKeys returns the configured keys that may verify a signature
// with the given header, before any signature is checked.
func selectKeys(joint Header, d jwa.Descriptor, c *Config) ([]jwk.Key, error) {
	if len(c.Keys) == 0 {
		return nil, fmt.Errorf("%w: no verification key provided for %q", jose.ErrInvalidKey, d.Name)
	}

	kid, _ := joint.KeyID()
	if c.RequireKeyID && kid == "" {
		return nil, fmt.Errorf("%w: header has no %q", jose.ErrKeyMismatch, header.KeyID)
	}

	var (
		candidates []jwk.Key
		matched    bool
		lastErr    error
	)
	for _, key := range c.Keys {
		switch {
		case c.RequireKeyID && key.KeyID() != kid:
			continue
		case !c.RequireKeyID && kid != "" && key.KeyID() != "" && key.KeyID() != kid:
			continue
		}
		matched = true
		if err := jwk.CheckSupport(key, d.Name, jwk.OperationVerify); err != nil {
			lastErr = err
			continue
		}
		candidates = append(candidates, key)
	}

	if !matched {
		c.Logger.V(1).Info("no key matches header key ID", "kid", kid)
		return nil, fmt.Errorf("%w: no key with %q %q", jose.ErrKeyMismatch, header.KeyID, kid)
	}
	if len(candidates) == 0 {
		c.Logger.V(1).Info("no key can be used with header algorithm", "alg", d.Name, "error", lastErr)
		return nil, fmt.Errorf("%w: %w", jose.ErrInvalidHeader, lastErr)
	}
	return candidates, nil
}
