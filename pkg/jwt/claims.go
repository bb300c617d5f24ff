package jwt

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/picatz/jose/v2/pkg/base64"
)

// There are three classes of JWT Claim Names:
// 1. Registered Claim Names
// 2. Public Claim Names
// 3. Private Claim Names
type (
	ClaimName = string

	Registered = ClaimName
	Public     = ClaimName
	Private    = ClaimName
)

// ClaimValue is a piece of information asserted about a subject, represented
// as a name/value pair consisting of a ClaimName and a ClaimValue.
type ClaimValue = any

// Registered Claim Names
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-4.1
const (
	Issuer         Registered = "iss"
	Subject        Registered = "sub"
	Audience       Registered = "aud"
	ExpirationTime Registered = "exp"
	NotBefore      Registered = "nbf"
	IssuedAt       Registered = "iat"
	JWTID          Registered = "jti"
)

// timeClaims are the registered claims holding a NumericDate.
var timeClaims = []Registered{ExpirationTime, NotBefore, IssuedAt}

// ClaimsSet is a JSON object that contains the claims conveyed by the JWT.
//
// A claim is a piece of information asserted about a subject, represented
// as a name/value pair consisting of a Claim Name and a Claim Value.
type ClaimsSet map[ClaimName]ClaimValue

// String returns the base64url encoded JSON claims set, the payload of a
// signed JWT.
func (claims ClaimsSet) String() string {
	b, err := json.Marshal(claims)
	if err != nil {
		return fmt.Sprintf("<invalid-claims-set %q: %#v>", err, claims)
	}
	return base64.Encode(b)
}

func (claims ClaimsSet) Get(name ClaimName) (ClaimValue, error) {
	value, ok := claims[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingClaim, name)
	}
	return value, nil
}

func (claims ClaimsSet) Set(name ClaimName, value ClaimValue) {
	claims[name] = value
}

// Names returns the claim names, sorted.
func (claims ClaimsSet) Names() []ClaimName {
	names := make([]ClaimName, 0, len(claims))
	for name := range claims {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a shallow copy of the claims set.
func (claims ClaimsSet) Clone() ClaimsSet {
	if claims == nil {
		return nil
	}
	clone := make(ClaimsSet, len(claims))
	for name, value := range claims {
		clone[name] = value
	}
	return clone
}

// stringClaim returns a claim that must be a JSON string.
func (claims ClaimsSet) stringClaim(name ClaimName) (string, error) {
	value, err := claims.Get(name)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string, got %T", ErrInvalidClaim, name, value)
	}
	return s, nil
}

// Issuer returns the "iss" claim.
func (claims ClaimsSet) Issuer() (string, error) {
	return claims.stringClaim(Issuer)
}

// Subject returns the "sub" claim.
func (claims ClaimsSet) Subject() (string, error) {
	return claims.stringClaim(Subject)
}

// ID returns the "jti" claim.
func (claims ClaimsSet) ID() (string, error) {
	return claims.stringClaim(JWTID)
}

// Audience returns the "aud" claim, which may be a single string or an
// array of strings.
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-4.1.3
func (claims ClaimsSet) Audience() ([]string, error) {
	value, err := claims.Get(Audience)
	if err != nil {
		return nil, err
	}

	switch v := value.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		audience := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %q must only contain strings, got %T", ErrInvalidClaim, Audience, item)
			}
			audience = append(audience, s)
		}
		return audience, nil
	default:
		return nil, fmt.Errorf("%w: %q must be a string or an array of strings, got %T", ErrInvalidClaim, Audience, value)
	}
}

// Time returns a NumericDate claim, such as "exp", as a time.
func (claims ClaimsSet) Time(name ClaimName) (time.Time, error) {
	value, err := claims.Get(name)
	if err != nil {
		return time.Time{}, err
	}
	seconds, err := numericDate(name, value)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(seconds, 0), nil
}

// numericDate converts the value of a time claim to seconds since the
// epoch. Fractional seconds are truncated.
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-2
func numericDate(name ClaimName, value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v > math.MaxInt64 || v < math.MinInt64 {
			return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidClaim, name)
		}
		return int64(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrInvalidClaim, name, err)
		}
		return numericDate(name, f)
	case time.Time:
		return v.Unix(), nil
	default:
		return 0, fmt.Errorf("%w: invalid type %T used for %q", ErrInvalidClaim, value, name)
	}
}

// normalize returns a copy of the claims with registered claims converted
// to their JSON types: times become NumericDate seconds and Stringer values
// become strings.
func (claims ClaimsSet) normalize() (ClaimsSet, error) {
	out := claims.Clone()
	for name, value := range out {
		switch name {
		case ExpirationTime, NotBefore, IssuedAt:
			seconds, err := numericDate(name, value)
			if err != nil {
				return nil, err
			}
			out[name] = seconds
		case Issuer, Subject, JWTID:
			switch v := value.(type) {
			case string:
			case fmt.Stringer:
				out[name] = v.String()
			default:
				return nil, fmt.Errorf("%w: cannot use %T with %q", ErrInvalidClaim, v, name)
			}
		case Audience:
			switch v := value.(type) {
			case string, []string:
			case fmt.Stringer:
				out[name] = v.String()
			default:
				if _, err := out.Audience(); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

// parseClaims decodes a JSON claims set, converting the time claims to
// int64 seconds.
func parseClaims(b []byte) (ClaimsSet, error) {
	claims := ClaimsSet{}
	if err := json.Unmarshal(b, &claims); err != nil {
		return nil, fmt.Errorf("failed to decode claims JSON: %w", err)
	}
	if claims == nil {
		return nil, fmt.Errorf("%w: claims set is null", ErrInvalidClaim)
	}

	for _, name := range timeClaims {
		value, ok := claims[name]
		if !ok {
			continue
		}
		seconds, err := numericDate(name, value)
		if err != nil {
			return nil, err
		}
		claims[name] = seconds
	}
	return claims, nil
}
