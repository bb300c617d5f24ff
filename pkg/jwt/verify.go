package jwt

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jws"
	"github.com/picatz/jose/v2/pkg/jwk"
	"golang.org/x/exp/slices"
)

var defaultAllowedAlgorithms = []jwa.Algorithm{
	jwa.RS256, jwa.RS384, jwa.RS512,
	jwa.ES256, jwa.ES384, jwa.ES512,
	jwa.HS256, jwa.HS384, jwa.HS512,
	jwa.PS256, jwa.PS384, jwa.PS512,
	jwa.EdDSA,
}

// DefaultAllowedAlgorithms returns the signature algorithms accepted by
// Verify when WithAllowedAlgorithms is not given.
func DefaultAllowedAlgorithms() []jwa.Algorithm {
	return slices.Clone(defaultAllowedAlgorithms)
}

// Clock is type used to represent a function that returns the current time.
type Clock func() time.Time

// VerifyConfig is a configuration type for verifying JWTs.
type VerifyConfig struct {
	// InsecureAllowNone allows the "none" algorithm to be used, which
	// is considered insecure, dangerous, and disabled by default. It must be
	// set in addition to being enabled in the allowed algorithms.
	InsecureAllowNone bool

	// AllowedAlgorithms is a set of allowed algorithms for the JWT.
	//
	// If not set, then DefaultAllowedAlgorithms will be used.
	AllowedAlgorithms []jwa.Algorithm

	// AllowedIssuers is a set of allowed issuers for the JWT.
	//
	// If not set, then any issuers are allowed.
	AllowedIssuers []string

	// AllowedAudiences is a set of allowed audiences for the JWT.
	//
	// If not set, then any audiences are allowed.
	AllowedAudiences []string

	// AllowedKeys is a set of allowed keys for the JWT.
	//
	// If not set, then verification will fail if the algorithm
	// is not "none".
	AllowedKeys []jwk.Key

	// RequireKeyID requires the header "kid" to match the key ID of the
	// verification key.
	RequireKeyID bool

	// RequiredClaims must be present in the claims set.
	RequiredClaims []ClaimName

	// Clock is a function that returns the current time.
	//
	// This is used to verify the "exp" and "nbf" claims.
	//
	// If not set, then time.Now will be used.
	Clock Clock

	// ClockSkewTolerance is the clock skew tolerated when checking "exp"
	// and "nbf".
	ClockSkewTolerance time.Duration

	// Critical lists extension header parameters the caller understands.
	Critical []string

	Logger   logr.Logger
	Observer jose.Observer
}

// VerifyOption is a functional option type used to configure
// the verification requirements for JWTs.
type VerifyOption func(*VerifyConfig) error

func newVerifyConfig(opts []VerifyOption) (*VerifyConfig, error) {
	config := &VerifyConfig{
		AllowedAlgorithms: DefaultAllowedAlgorithms(),
		Clock:             time.Now,
		Logger:            logr.Discard(),
		Observer:          jose.NopObserver,
	}

	for _, opt := range opts {
		err := opt(config)
		if err != nil {
			return nil, fmt.Errorf("verify option error: %w", err)
		}
	}
	return config, nil
}

// WithAllowInsecureNoneAlgorithm allows the "none" algorithm to be used.
// Users must explicitly enable this option, as it is
// considered insecure, dangerous, and disabled by default.
//
// # WARNING
//
// This is not recommended, and should only be used
// for testing purposes.
func WithAllowInsecureNoneAlgorithm(value bool) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.InsecureAllowNone = value
		return nil
	}
}

// WithAllowedIssuers sets the allowed issuers for the JWT.
func WithAllowedIssuers(issuers ...string) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.AllowedIssuers = issuers
		return nil
	}
}

// WithAllowedAudiences sets the allowed audiences for the JWT.
func WithAllowedAudiences(audiences ...string) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.AllowedAudiences = audiences
		return nil
	}
}

// WithAllowedAlgorithms sets the allowed algorithms for the JWT.
func WithAllowedAlgorithms(algs ...jwa.Algorithm) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.AllowedAlgorithms = algs
		return nil
	}
}

// WithKey appends a key to the set of allowed keys for the JWT.
func WithKey(key jwk.Key) VerifyOption {
	return func(vc *VerifyConfig) error {
		if key == nil {
			return fmt.Errorf("%w: nil key", jose.ErrInvalidKey)
		}
		vc.AllowedKeys = append(vc.AllowedKeys, key)
		return nil
	}
}

// WithKeys sets the allowed keys for the JWT. Each value is either a
// jwk.Key, or a Go crypto key accepted by jwk.FromCryptoKey, such as a
// *rsa.PublicKey or a []byte shared secret. Crypto keys are given no key
// ID, so they are tried for any "kid".
func WithKeys(values ...any) VerifyOption {
	return func(vc *VerifyConfig) error {
		keys := make([]jwk.Key, 0, len(values))
		for _, value := range values {
			key, err := asKey(value)
			if err != nil {
				return err
			}
			keys = append(keys, key)
		}
		vc.AllowedKeys = keys
		return nil
	}
}

// WithKeySet appends every key of the set to the allowed keys.
func WithKeySet(set *jwk.Set) VerifyOption {
	return func(vc *VerifyConfig) error {
		if set == nil {
			return fmt.Errorf("%w: nil key set", jose.ErrInvalidKey)
		}
		vc.AllowedKeys = append(vc.AllowedKeys, set.Keys()...)
		return nil
	}
}

func asKey(value any) (jwk.Key, error) {
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil key", jose.ErrInvalidKey)
	case jwk.Key:
		return v, nil
	case string:
		value = []byte(v)
	}

	key, err := jwk.FromCryptoKey(value)
	if err != nil {
		return nil, err
	}
	v := key.Value(true)
	delete(v, jwk.KeyID)
	return jwk.FromValue(v)
}

// WithRequireKeyID requires the header "kid" to equal the key ID of the
// key that verifies it.
func WithRequireKeyID() VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.RequireKeyID = true
		return nil
	}
}

// WithRequiredClaims requires the given claims to be present.
func WithRequiredClaims(names ...ClaimName) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.RequiredClaims = append(vc.RequiredClaims, names...)
		return nil
	}
}

// WithClock sets the clock function for verifying the JWT.
func WithClock(clock Clock) VerifyOption {
	return func(vc *VerifyConfig) error {
		if clock == nil {
			return fmt.Errorf("nil clock")
		}
		vc.Clock = clock
		return nil
	}
}

// WithDefaultClock sets the clock function for verifying the JWT
// to time.Now.
func WithDefaultClock() VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.Clock = time.Now
		return nil
	}
}

// WithClockSkewTolerance tolerates the given clock skew when checking
// "exp" and "nbf".
func WithClockSkewTolerance(tolerance time.Duration) VerifyOption {
	return func(vc *VerifyConfig) error {
		if tolerance < 0 {
			return fmt.Errorf("negative clock skew tolerance %v", tolerance)
		}
		vc.ClockSkewTolerance = tolerance
		return nil
	}
}

// WithSupportedCriticalHeaders marks extension header parameters as
// understood, so they may be listed in "crit".
func WithSupportedCriticalHeaders(names ...string) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.Critical = append(vc.Critical, names...)
		return nil
	}
}

// WithLogger sets the logger used for rejected tokens.
func WithLogger(logger logr.Logger) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.Logger = logger
		return nil
	}
}

// WithObserver sets the observer notified of signature verification.
func WithObserver(o jose.Observer) VerifyOption {
	return func(vc *VerifyConfig) error {
		if o == nil {
			o = jose.NopObserver
		}
		vc.Observer = o
		return nil
	}
}

// Expired returns true if the token is expired, false otherwise.
// If an error occurs while checking expiration, it is returned.
//
// Only use the boolean value if error is nil.
func (t *Token) Expired(clock Clock) (bool, error) {
	if _, ok := t.Claims[ExpirationTime]; !ok {
		return false, nil
	}
	exp, err := t.Claims.Time(ExpirationTime)
	if err != nil {
		return false, err
	}
	return !clock().Before(exp), nil
}

// Expires returns true if the token has an expiration time claim,
// false otherwise. If an error occurs while checking expiration,
// it is returned.
//
// Only use the boolean value if error is nil.
func (t *Token) Expires() (bool, error) {
	if _, ok := t.Claims[ExpirationTime]; !ok {
		return false, nil
	}
	if _, err := t.Claims.Time(ExpirationTime); err != nil {
		return false, err
	}
	return true, nil
}

// Verify is used to verify a signed Token object with the given config options.
// The signature is checked first, then the claims. If this fails for any
// reason, an error is returned.
//
// Signature mismatches are reported as exactly jose.ErrAuthenticationFailure.
// Tokens returned by Decrypt have no signature, use ValidateClaims instead.
func (t *Token) Verify(opts ...VerifyOption) error {
	config, err := newVerifyConfig(opts)
	if err != nil {
		return err
	}

	if err := t.verifySignature(config); err != nil {
		return err
	}
	return t.validateClaims(config)
}

// VerifySignature checks only the signature of the token.
func (t *Token) VerifySignature(opts ...VerifyOption) error {
	config, err := newVerifyConfig(opts)
	if err != nil {
		return err
	}
	return t.verifySignature(config)
}

// ValidateClaims checks only the claims of the token, using the issuer,
// audience, required claim, and clock options.
func (t *Token) ValidateClaims(opts ...VerifyOption) error {
	config, err := newVerifyConfig(opts)
	if err != nil {
		return err
	}
	return t.validateClaims(config)
}

func (t *Token) verifySignature(config *VerifyConfig) error {
	if t.encrypted {
		return fmt.Errorf("%w: token is encrypted, not signed", jose.ErrMalformedToken)
	}

	s := t.signed
	if s == nil {
		var err error
		if s, err = jws.Parse(t.String()); err != nil {
			return err
		}
	}

	opts := []jws.Option{
		jws.WithAllowedAlgorithms(config.AllowedAlgorithms...),
		jws.WithCritical(config.Critical...),
		jws.WithLogger(config.Logger),
		jws.WithObserver(config.Observer),
	}
	for _, key := range config.AllowedKeys {
		opts = append(opts, jws.WithKey(key))
	}
	if config.InsecureAllowNone {
		opts = append(opts, jws.WithInsecureAllowNone())
	}
	if config.RequireKeyID {
		opts = append(opts, jws.WithRequireKeyID())
	}

	return s.Verify(opts...)
}

func (t *Token) validateClaims(config *VerifyConfig) error {
	for _, name := range config.RequiredClaims {
		if _, ok := t.Claims[name]; !ok {
			config.Logger.V(1).Info("rejected token missing claim", "claim", name)
			return fmt.Errorf("%w: %q", ErrMissingClaim, name)
		}
	}

	now := config.Clock()

	if _, ok := t.Claims[ExpirationTime]; ok {
		exp, err := t.Claims.Time(ExpirationTime)
		if err != nil {
			return err
		}
		if !now.Before(exp.Add(config.ClockSkewTolerance)) {
			config.Logger.V(1).Info("rejected expired token", "exp", exp, "now", now)
			return fmt.Errorf("%w: expired at %v", ErrTokenExpired, exp)
		}
	}

	if _, ok := t.Claims[NotBefore]; ok {
		nbf, err := t.Claims.Time(NotBefore)
		if err != nil {
			return err
		}
		if now.Add(config.ClockSkewTolerance).Before(nbf) {
			config.Logger.V(1).Info("rejected token before nbf", "nbf", nbf, "now", now)
			return fmt.Errorf("%w: unable to be used before %v", ErrTokenNotYetValid, nbf)
		}
	}

	if _, ok := t.Claims[IssuedAt]; ok {
		if _, err := t.Claims.Time(IssuedAt); err != nil {
			return err
		}
	}

	// If the allowed issuers is empty, then any issuer is allowed.
	//
	// Otherwise, the issuer must be in the allowed issuers.
	if config.AllowedIssuers != nil {
		issuer, err := t.Claims.Issuer()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidIssuer, err)
		}
		if !slices.Contains(config.AllowedIssuers, issuer) {
			config.Logger.V(1).Info("rejected issuer", "iss", issuer)
			return fmt.Errorf("%w: %q", ErrInvalidIssuer, issuer)
		}
	}

	// If the allowed audiences is empty, then any audience is allowed.
	//
	// Otherwise, one of the token's audiences must be allowed.
	if config.AllowedAudiences != nil {
		audience, err := t.Claims.Audience()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidAudience, err)
		}
		if !slices.ContainsFunc(audience, func(aud string) bool {
			return slices.Contains(config.AllowedAudiences, aud)
		}) {
			config.Logger.V(1).Info("rejected audience", "aud", audience)
			return fmt.Errorf("%w: %q", ErrInvalidAudience, audience)
		}
	}

	return nil
}
