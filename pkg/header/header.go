package header

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/goccy/go-json"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwk"
	"golang.org/x/exp/slices"
)

// There are three classes of Header Parameter names: Registered Header
// Parameter names, Public Header Parameter names, and Private Header
// Parameter names.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4
type (
	ParamaterName = string

	Registered = ParamaterName
	Public     = ParamaterName
	Private    = ParamaterName
)

// Registered Header Paramater Names
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4.1
const (
	Type                            Registered = "typ"
	Algorithm                       Registered = "alg"
	JWKSetURL                       Registered = "jku"
	JSONWebKey                      Registered = "jwk"
	X509URL                         Registered = "x5u"
	X509CertificateChain            Registered = "x5c"
	X509CertificateSHA1Thumbprint   Registered = "x5t"
	X509CertificateSHA256Thumbprint Registered = "x5t#S256"
	ContentType                     Registered = "cty"
	Critical                        Registered = "crit"

	// https://www.rfc-editor.org/rfc/rfc7516.html#section-4.1.2
	Encryption Registered = "enc"

	// https://www.rfc-editor.org/rfc/rfc7516.html#section-4.1.3
	Zip Registered = "zip"

	// https://www.rfc-editor.org/rfc/rfc7516.html#section-4.1.6
	KeyID Registered = "kid"
)

// Header Parameters used for key management.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.6.1
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.7.1
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.8.1
const (
	EphemeralPublicKey   Registered = "epk"
	AgreementPartyUInfo  Registered = "apu"
	AgreementPartyVInfo  Registered = "apv"
	InitializationVector Registered = "iv"
	AuthenticationTag    Registered = "tag"
	PBES2SaltInput       Registered = "p2s"
	PBES2Count           Registered = "p2c"
)

// Base64URLEncodePayload is the "b64" Header Parameter.
//
// https://datatracker.ietf.org/doc/html/rfc7797#section-3
const Base64URLEncodePayload Registered = "b64"

const TypeJWT = "JWT"

var (
	// ErrParameterNotFound is returned when a header does not contain a
	// requested parameter.
	ErrParameterNotFound = errors.New("header parameter not found")

	// ErrInvalidParameterType is returned when a header parameter has a
	// JSON type other than the one registered for it.
	ErrInvalidParameterType = errors.New("invalid header parameter type")
)

// registered holds every parameter name with a meaning defined by the
// JOSE RFCs, which therefore cannot be listed in "crit".
var registered = []Registered{
	Type, Algorithm, JWKSetURL, JSONWebKey, X509URL, X509CertificateChain,
	X509CertificateSHA1Thumbprint, X509CertificateSHA256Thumbprint,
	ContentType, Critical, Encryption, Zip, KeyID,
	EphemeralPublicKey, AgreementPartyUInfo, AgreementPartyVInfo,
	InitializationVector, AuthenticationTag, PBES2SaltInput, PBES2Count,
}

var stringParameters = []Registered{
	Type, Algorithm, JWKSetURL, X509URL, X509CertificateSHA1Thumbprint,
	X509CertificateSHA256Thumbprint, ContentType, Encryption, Zip, KeyID,
	AgreementPartyUInfo, AgreementPartyVInfo, InitializationVector,
	AuthenticationTag, PBES2SaltInput,
}

// Parameters is a JSON object containing the parameters describing
// the cryptographic operations and parameters employed.
//
// The JOSE (JSON Object Signing and Encryption) Parameters is comprised
// of a set of Parameters Parameters.
type Parameters map[ParamaterName]any

// Parse decodes a base64url encoded JSON header. Encoding failures wrap
// jose.ErrMalformedToken, and invalid parameters wrap jose.ErrInvalidHeader.
// When a member name appears more than once, the last value wins.
func Parse(b64 string) (Parameters, error) {
	b, err := base64.Decode(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode header: %w", jose.ErrMalformedToken, err)
	}

	var h Parameters
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, fmt.Errorf("%w: failed to decode header JSON: %v", jose.ErrMalformedToken, err)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: header is not a JSON object", jose.ErrMalformedToken)
	}

	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// Base64URLString returns the base64url encoded JSON representation.
// Members are sorted by name, so equal headers always encode the same way.
func (h Parameters) Base64URLString() (string, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("failed to encode JOSE header base64 URL string: %w", err)
	}
	return base64.Encode(b), nil
}

// Validate checks the JSON type of every registered parameter present,
// and the rules for "crit":
//
//   - it must be a non-empty array of strings
//   - it must not list registered parameter names
//   - every listed name must be present in the header
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4.1.11
func (h Parameters) Validate() error {
	for _, name := range stringParameters {
		if _, err := h.String(name); err != nil && !errors.Is(err, ErrParameterNotFound) {
			return err
		}
	}

	for _, name := range []Registered{JSONWebKey, EphemeralPublicKey} {
		value, ok := h[name]
		if !ok {
			continue
		}
		switch value.(type) {
		case map[string]any, jwk.Key:
		default:
			return invalidType(name, "a JSON object", value)
		}
	}

	if _, err := h.X509CertificateChain(); err != nil && !errors.Is(err, ErrParameterNotFound) {
		return err
	}

	if _, err := h.PBES2Count(); err != nil && !errors.Is(err, ErrParameterNotFound) {
		return err
	}

	if value, ok := h[Base64URLEncodePayload]; ok {
		if _, ok := value.(bool); !ok {
			return invalidType(Base64URLEncodePayload, "a boolean", value)
		}
	}

	crit, err := h.Critical()
	if errors.Is(err, ErrParameterNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(crit) == 0 {
		return fmt.Errorf("%w: %q must not be empty", jose.ErrInvalidHeader, Critical)
	}
	for _, name := range crit {
		if slices.Contains(registered, name) {
			return fmt.Errorf("%w: %q must not list registered parameter %q", jose.ErrInvalidHeader, Critical, name)
		}
		if _, ok := h[name]; !ok {
			return fmt.Errorf("%w: critical parameter %q is missing", jose.ErrInvalidHeader, name)
		}
	}
	return nil
}

func invalidType(name ParamaterName, want string, value any) error {
	return fmt.Errorf("%w: %w: %q must be %s, is %T", jose.ErrInvalidHeader, ErrInvalidParameterType, name, want, value)
}

// Get returns the raw value of a parameter.
func (h Parameters) Get(param ParamaterName) (any, error) {
	value, ok := h[param]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrParameterNotFound, param)
	}
	return value, nil
}

// Has returns true if the parameter is present.
func (h Parameters) Has(param ParamaterName) bool {
	_, ok := h[param]
	return ok
}

// String returns the value of a string parameter.
func (h Parameters) String(param ParamaterName) (string, error) {
	value, err := h.Get(param)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", invalidType(param, "a string", value)
	}
	return s, nil
}

// Bytes returns the base64url decoded value of a string parameter, such
// as "iv" or "p2s".
func (h Parameters) Bytes(param ParamaterName) ([]byte, error) {
	s, err := h.String(param)
	if err != nil {
		return nil, err
	}
	b, err := base64.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not valid base64url: %w", jose.ErrInvalidHeader, param, err)
	}
	return b, nil
}

func (h Parameters) Type() (string, error) {
	return h.String(Type)
}

func (h Parameters) Algorithm() (jwa.Algorithm, error) {
	return h.String(Algorithm)
}

func (h Parameters) Encryption() (jwa.Algorithm, error) {
	return h.String(Encryption)
}

func (h Parameters) KeyID() (string, error) {
	return h.String(KeyID)
}

func (h Parameters) ContentType() (string, error) {
	return h.String(ContentType)
}

// Critical returns the "crit" parameter names.
func (h Parameters) Critical() ([]string, error) {
	return h.stringList(Critical)
}

// X509CertificateChain returns the base64 (not base64url) encoded DER
// certificates of the "x5c" parameter.
func (h Parameters) X509CertificateChain() ([]string, error) {
	return h.stringList(X509CertificateChain)
}

func (h Parameters) stringList(param ParamaterName) ([]string, error) {
	value, err := h.Get(param)
	if err != nil {
		return nil, err
	}
	switch v := value.(type) {
	case []string:
		return slices.Clone(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, invalidType(param, "an array of strings", value)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, invalidType(param, "an array of strings", value)
	}
}

// PBES2Count returns the "p2c" iteration count, which must be a positive
// integer.
func (h Parameters) PBES2Count() (int, error) {
	value, err := h.Get(PBES2Count)
	if err != nil {
		return 0, err
	}
	var n float64
	switch v := value.(type) {
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case uint64:
		n = float64(v)
	case float64:
		n = v
	case json.Number:
		if n, err = v.Float64(); err != nil {
			return 0, invalidType(PBES2Count, "an integer", value)
		}
	default:
		return 0, invalidType(PBES2Count, "an integer", value)
	}
	if n != math.Trunc(n) || n < 1 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %q must be a positive integer", jose.ErrInvalidHeader, PBES2Count)
	}
	return int(n), nil
}

// Base64URLEncodePayload returns the "b64" value, which defaults to true.
func (h Parameters) Base64URLEncodePayload() (bool, error) {
	value, ok := h[Base64URLEncodePayload]
	if !ok {
		return true, nil
	}
	b, ok := value.(bool)
	if !ok {
		return true, invalidType(Base64URLEncodePayload, "a boolean", value)
	}
	return b, nil
}

// EphemeralPublicKey returns the "epk" parameter as a public key.
func (h Parameters) EphemeralPublicKey() (jwk.Key, error) {
	return h.key(EphemeralPublicKey)
}

// JSONWebKey returns the "jwk" parameter as a public key.
func (h Parameters) JSONWebKey() (jwk.Key, error) {
	return h.key(JSONWebKey)
}

func (h Parameters) key(param ParamaterName) (jwk.Key, error) {
	value, err := h.Get(param)
	if err != nil {
		return nil, err
	}
	var k jwk.Key
	switch v := value.(type) {
	case jwk.Key:
		k = v
	case map[string]any:
		if k, err = jwk.FromValue(v); err != nil {
			return nil, fmt.Errorf("%w: invalid %q: %w", jose.ErrInvalidHeader, param, err)
		}
	default:
		return nil, invalidType(param, "a JSON object", value)
	}
	if k.IsPrivate() {
		return nil, fmt.Errorf("%w: %q must not contain private key material", jose.ErrInvalidHeader, param)
	}
	return k, nil
}

// SymetricAlgorithm returns true if the "alg" parameter names an
// algorithm keyed with a shared "oct" key.
func (h Parameters) SymetricAlgorithm() (bool, error) {
	alg, err := h.Algorithm()
	if err != nil {
		return false, err
	}
	d, err := jwa.Lookup(alg)
	if err != nil {
		return false, err
	}
	return slices.Contains(d.KeyTypes, jwa.KeyTypeOctet), nil
}

// AsymetricAlgorithm returns true if the "alg" parameter names an
// algorithm keyed with a public/private key pair.
func (h Parameters) AsymetricAlgorithm() (bool, error) {
	alg, err := h.Algorithm()
	if err != nil {
		return false, err
	}
	d, err := jwa.Lookup(alg)
	if err != nil {
		return false, err
	}
	return len(d.KeyTypes) > 0 && !slices.Contains(d.KeyTypes, jwa.KeyTypeOctet), nil
}

// Clone returns a shallow copy of the parameters.
func (h Parameters) Clone() Parameters {
	if h == nil {
		return nil
	}
	out := make(Parameters, len(h))
	for name, value := range h {
		out[name] = value
	}
	return out
}

// Names returns the parameter names, sorted.
func (h Parameters) Names() []ParamaterName {
	names := make([]ParamaterName, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns the union of the given headers. It fails with
// jose.ErrInvalidHeader if a parameter name appears in more than one.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.2.1
// https://datatracker.ietf.org/doc/html/rfc7516#section-7.2.1
func Merge(headers ...Parameters) (Parameters, error) {
	out := Parameters{}
	for _, h := range headers {
		for _, name := range h.Names() {
			if _, dup := out[name]; dup {
				return nil, fmt.Errorf("%w: parameter %q appears in more than one header", jose.ErrInvalidHeader, name)
			}
			out[name] = h[name]
		}
	}
	return out, nil
}
